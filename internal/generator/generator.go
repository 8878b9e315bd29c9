// Package generator produces the identifiers of one unit of work as a lazy
// stream. An Iterator holds a single reusable buffer, so a unit of any size
// can be written out without being held in memory.
package generator

import (
	"fmt"
	"iter"

	"github.com/dyluth/ninogen/internal/keyspace"
)

const (
	// DefaultBodyLength is the number of digits in the numeric body.
	DefaultBodyLength = 6

	// DefaultTrailing is the ordered set of trailing letters.
	DefaultTrailing = "ABCD"
)

// Params fixes the shape of every identifier in a unit.
type Params struct {
	BodyLength int
	Trailing   string
}

// DefaultParams returns the standard identifier shape.
func DefaultParams() Params {
	return Params{BodyLength: DefaultBodyLength, Trailing: DefaultTrailing}
}

// Validate checks that the parameters describe a non-empty keyspace.
func (p Params) Validate() error {
	if p.BodyLength < 1 || p.BodyLength > 17 {
		return fmt.Errorf("body length must be between 1 and 17, got %d", p.BodyLength)
	}
	if p.Trailing == "" {
		return fmt.Errorf("trailing letter set cannot be empty")
	}
	seen := make(map[rune]bool, len(p.Trailing))
	for _, r := range p.Trailing {
		if r < 'A' || r > 'Z' {
			return fmt.Errorf("trailing letter %q must be uppercase A-Z", r)
		}
		if seen[r] {
			return fmt.Errorf("trailing letter %q listed twice", r)
		}
		seen[r] = true
	}
	return nil
}

// PerUnit returns how many identifiers one prefix yields: 10^BodyLength * len(Trailing).
func (p Params) PerUnit() int64 {
	n := int64(1)
	for i := 0; i < p.BodyLength; i++ {
		n *= 10
	}
	return n * int64(len(p.Trailing))
}

// Iterator walks the identifiers of one prefix. The digit body is the outer
// loop in ascending order and the trailing letter the inner loop.
//
// An Iterator is not safe for concurrent use. It cannot be rewound; create a
// new one to restart from the beginning.
type Iterator struct {
	params  Params
	buf     []byte
	trail   int
	started bool
	done    bool
	count   int64
}

// New returns an iterator positioned before the first identifier of prefix.
func New(prefix keyspace.Prefix, params Params) *Iterator {
	buf := make([]byte, 2+params.BodyLength+1)
	buf[0] = prefix.First
	buf[1] = prefix.Second
	for i := 2; i < 2+params.BodyLength; i++ {
		buf[i] = '0'
	}
	return &Iterator{params: params, buf: buf}
}

// Next advances to the next identifier and reports whether one exists.
func (it *Iterator) Next() bool {
	if it.done {
		return false
	}
	if !it.started {
		it.started = true
	} else if !it.advance() {
		it.done = true
		return false
	}
	it.buf[len(it.buf)-1] = it.params.Trailing[it.trail]
	it.count++
	return true
}

func (it *Iterator) advance() bool {
	if it.trail+1 < len(it.params.Trailing) {
		it.trail++
		return true
	}
	it.trail = 0

	// Odometer increment over the digit body.
	for i := 1 + it.params.BodyLength; i >= 2; i-- {
		if it.buf[i] < '9' {
			it.buf[i]++
			return true
		}
		it.buf[i] = '0'
	}
	return false
}

// Bytes returns the current identifier. The slice is reused by the next call
// to Next and must not be retained.
func (it *Iterator) Bytes() []byte {
	return it.buf
}

// String returns a copy of the current identifier.
func (it *Iterator) String() string {
	return string(it.buf)
}

// Count returns how many identifiers have been produced so far.
func (it *Iterator) Count() int64 {
	return it.count
}

// Seq returns the identifiers of prefix as a range-over-func sequence.
func Seq(prefix keyspace.Prefix, params Params) iter.Seq[string] {
	return func(yield func(string) bool) {
		it := New(prefix, params)
		for it.Next() {
			if !yield(it.String()) {
				return
			}
		}
	}
}
