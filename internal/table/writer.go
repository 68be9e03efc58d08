package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"golang.org/x/text/transform"
)

// Writer appends records to a delimited output file and reports the file
// size after each flush so checkpoints can record a resumable byte offset.
type Writer struct {
	file *os.File
	out  *csv.Writer
	enc  *transform.Writer
}

// Create opens path as a fresh output table, discarding any previous
// content, and writes the header row.
func Create(path string, delimiter rune, encodingName string, header []string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create output table: %w", err)
	}

	w, err := newWriter(f, delimiter, encodingName)
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := w.Append(header); err != nil {
		w.Close()
		return nil, err
	}
	if _, err := w.Flush(); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

// Resume reopens path, drops everything past the committed byte offset, and
// positions the writer to append after it.
func Resume(path string, delimiter rune, encodingName string, offset int64) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("reopen output table: %w", err)
	}
	if err := f.Truncate(offset); err != nil {
		f.Close()
		return nil, fmt.Errorf("truncate output table to committed offset: %w", err)
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("seek output table: %w", err)
	}

	w, err := newWriter(f, delimiter, encodingName)
	if err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

func newWriter(f *os.File, delimiter rune, encodingName string) (*Writer, error) {
	enc, err := lookupEncoding(encodingName)
	if err != nil {
		return nil, err
	}

	w := &Writer{file: f}
	var dst io.Writer = f
	if enc != nil {
		w.enc = transform.NewWriter(f, enc.NewEncoder())
		dst = w.enc
	}
	w.out = csv.NewWriter(dst)
	w.out.Comma = delimiter
	return w, nil
}

// Append buffers one record. It only reaches disk at the next Flush.
func (w *Writer) Append(record []string) error {
	if err := w.out.Write(record); err != nil {
		return fmt.Errorf("append output record: %w", err)
	}
	return nil
}

// Flush writes buffered records through to disk and returns the resulting
// file size in bytes. Flush happens at record boundaries only, so the size
// is always a clean truncation point for a later resume.
func (w *Writer) Flush() (int64, error) {
	w.out.Flush()
	if err := w.out.Error(); err != nil {
		return 0, fmt.Errorf("flush output table: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return 0, fmt.Errorf("sync output table: %w", err)
	}
	offset, err := w.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("measure output table: %w", err)
	}
	return offset, nil
}

// Close flushes any buffered records and releases the file.
func (w *Writer) Close() error {
	w.out.Flush()
	err := w.out.Error()
	if w.enc != nil {
		if cerr := w.enc.Close(); err == nil {
			err = cerr
		}
	}
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("close output table: %w", err)
	}
	return nil
}
