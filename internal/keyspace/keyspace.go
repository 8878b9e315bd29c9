// Package keyspace divides the identifier keyspace into independent units of
// work. Each unit is a two-letter prefix drawn from two restricted alphabets,
// minus a set of reserved letter pairs.
package keyspace

import (
	"fmt"
	"sort"
	"strings"
)

const (
	// DefaultFirstExcluded lists letters that never appear as the first prefix letter.
	DefaultFirstExcluded = "DFIQUV"

	// DefaultSecondExcluded lists letters that never appear as the second prefix letter.
	DefaultSecondExcluded = "DFIQUVO"

	letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// DefaultReserved holds the prefixes that are never allocated.
var DefaultReserved = []string{"BG", "GB", "NK", "KN", "TN", "NT", "ZZ"}

// Prefix is the two-character key of one unit of work and its output partition.
type Prefix struct {
	First  byte
	Second byte
}

// String returns the two-character form of the prefix, e.g. "AB".
func (p Prefix) String() string {
	return string([]byte{p.First, p.Second})
}

// ParsePrefix parses a two-letter uppercase prefix.
func ParsePrefix(s string) (Prefix, error) {
	if len(s) != 2 {
		return Prefix{}, fmt.Errorf("invalid prefix %q: must be exactly two letters", s)
	}
	for i := 0; i < 2; i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return Prefix{}, fmt.Errorf("invalid prefix %q: must be uppercase A-Z", s)
		}
	}
	return Prefix{First: s[0], Second: s[1]}, nil
}

// Alphabet is an ordered set of uppercase letters.
type Alphabet string

// NewAlphabet returns A-Z without the letters in excluded.
func NewAlphabet(excluded string) Alphabet {
	excluded = strings.ToUpper(excluded)
	var b strings.Builder
	for i := 0; i < len(letters); i++ {
		if !strings.ContainsRune(excluded, rune(letters[i])) {
			b.WriteByte(letters[i])
		}
	}
	return Alphabet(b.String())
}

// ExclusionSet is a read-only set of reserved prefix strings.
type ExclusionSet map[string]struct{}

// NewExclusionSet builds an ExclusionSet from prefix strings.
func NewExclusionSet(prefixes ...string) ExclusionSet {
	set := make(ExclusionSet, len(prefixes))
	for _, p := range prefixes {
		set[strings.ToUpper(p)] = struct{}{}
	}
	return set
}

// Contains reports whether the prefix is reserved.
func (s ExclusionSet) Contains(p Prefix) bool {
	_, ok := s[p.String()]
	return ok
}

// Sorted returns the reserved prefixes in ascending order.
func (s ExclusionSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Candidates returns the ordered cross product of the two alphabets.
// The first alphabet is the outer loop.
func Candidates(first, second Alphabet) []Prefix {
	out := make([]Prefix, 0, len(first)*len(second))
	for i := 0; i < len(first); i++ {
		for j := 0; j < len(second); j++ {
			out = append(out, Prefix{First: first[i], Second: second[j]})
		}
	}
	return out
}

// Partition returns the units of work: every candidate prefix that is not reserved,
// in candidate order. The result depends only on its inputs.
func Partition(first, second Alphabet, excluded ExclusionSet) []Prefix {
	candidates := Candidates(first, second)
	units := candidates[:0]
	for _, p := range candidates {
		if excluded.Contains(p) {
			continue
		}
		units = append(units, p)
	}
	return units
}

// Default partitions the keyspace with the default alphabets and reserved prefixes.
func Default() []Prefix {
	return Partition(
		NewAlphabet(DefaultFirstExcluded),
		NewAlphabet(DefaultSecondExcluded),
		NewExclusionSet(DefaultReserved...),
	)
}

// Strings returns the string form of each prefix, preserving order.
func Strings(prefixes []Prefix) []string {
	out := make([]string, len(prefixes))
	for i, p := range prefixes {
		out[i] = p.String()
	}
	return out
}

// Filter keeps the units listed in only, preserving unit order.
// It returns an error naming any requested prefix that is not a unit.
func Filter(units []Prefix, only []string) ([]Prefix, error) {
	if len(only) == 0 {
		return units, nil
	}

	wanted := make(map[string]bool, len(only))
	for _, s := range only {
		p, err := ParsePrefix(strings.ToUpper(s))
		if err != nil {
			return nil, err
		}
		wanted[p.String()] = false
	}

	var out []Prefix
	for _, p := range units {
		if _, ok := wanted[p.String()]; ok {
			wanted[p.String()] = true
			out = append(out, p)
		}
	}

	var missing []string
	for s, found := range wanted {
		if !found {
			missing = append(missing, s)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("prefixes not in keyspace: %s", strings.Join(missing, ", "))
	}

	return out, nil
}
