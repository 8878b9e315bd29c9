// Package partition persists the identifiers of one unit of work to its own
// output file. Each prefix owns exactly one file for the duration of its
// unit, so writers never need file-level locking.
package partition

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dyluth/ninogen/internal/keyspace"
	"github.com/dyluth/ninogen/internal/progress"
)

// Mode selects what happens to an existing partition file.
type Mode string

const (
	// ModeTruncate clears an existing file so a re-run reproduces the same output.
	ModeTruncate Mode = "truncate"

	// ModeAppend adds to an existing file. Re-running a job duplicates every record.
	ModeAppend Mode = "append"
)

// DefaultBatchSize is how many records are written between progress reports
// and cancellation checks.
const DefaultBatchSize = 100_000

const bufferSize = 1 << 20

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeTruncate, ModeAppend:
		return Mode(s), nil
	case "":
		return ModeTruncate, nil
	default:
		return "", fmt.Errorf("unknown output mode %q (expected: truncate or append)", s)
	}
}

// FileName returns the partition file name for prefix, e.g. "ninos_AB.txt".
func FileName(prefix keyspace.Prefix) string {
	return fmt.Sprintf("ninos_%s.txt", prefix)
}

// Source is a stream of records, as produced by generator.Iterator.
type Source interface {
	Next() bool
	Bytes() []byte
}

// Writer writes one partition per call to Write.
type Writer struct {
	Dir       string
	Mode      Mode
	BatchSize int64
	Observer  progress.Observer
}

// Path returns the file path of prefix's partition.
func (w *Writer) Path(prefix keyspace.Prefix) string {
	return filepath.Join(w.Dir, FileName(prefix))
}

// Write streams src into prefix's partition, one newline-terminated record per
// item, and returns the number of records written.
//
// The file is flushed and closed on every return path. Progress is reported
// to the Observer every BatchSize records and once more for the remainder,
// so the sum of reports always equals the returned count.
func (w *Writer) Write(ctx context.Context, prefix keyspace.Prefix, src Source) (n int64, err error) {
	if err := os.MkdirAll(w.dir(), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.OpenFile(w.Path(prefix), w.openFlags(), 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to open partition %s: %w", FileName(prefix), err)
	}

	bw := bufio.NewWriterSize(f, bufferSize)
	var pending int64

	defer func() {
		flushErr := bw.Flush()
		closeErr := f.Close()
		if err == nil {
			if cerr := errors.Join(flushErr, closeErr); cerr != nil {
				err = fmt.Errorf("failed to close partition %s: %w", FileName(prefix), cerr)
			}
		}
		w.report(pending)
	}()

	batch := w.batchSize()
	for src.Next() {
		if _, err := bw.Write(src.Bytes()); err != nil {
			return n, fmt.Errorf("failed to write partition %s: %w", FileName(prefix), err)
		}
		if err := bw.WriteByte('\n'); err != nil {
			return n, fmt.Errorf("failed to write partition %s: %w", FileName(prefix), err)
		}
		n++
		pending++

		if pending == batch {
			w.report(pending)
			pending = 0
			if err := ctx.Err(); err != nil {
				return n, err
			}
		}
	}

	return n, nil
}

func (w *Writer) report(n int64) {
	if n > 0 && w.Observer != nil {
		w.Observer.Advance(n)
	}
}

func (w *Writer) dir() string {
	if w.Dir == "" {
		return "."
	}
	return w.Dir
}

func (w *Writer) batchSize() int64 {
	if w.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return w.BatchSize
}

func (w *Writer) openFlags() int {
	if w.Mode == ModeAppend {
		return os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	return os.O_CREATE | os.O_WRONLY | os.O_TRUNC
}

// CheckWritable verifies that dir can be created and written to by creating
// and removing a probe file.
func CheckWritable(dir string) error {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	probe, err := os.CreateTemp(dir, ".ninogen-probe-*")
	if err != nil {
		return fmt.Errorf("output directory %s is not writable: %w", dir, err)
	}
	name := probe.Name()
	probe.Close()
	return os.Remove(name)
}
