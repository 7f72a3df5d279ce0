package report

import (
	"bytes"
	"fmt"
	"os"
	"sync"
)

// Sink receives rendered report sections.
type Sink interface {
	Append(section []byte) error
	Contents() ([]byte, error)
}

// File is an append-only report file.
type File struct {
	path string
	mu   sync.Mutex
}

// NewFile returns a report file sink for path. Nothing is touched until Truncate or Append.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the report location.
func (f *File) Path() string { return f.path }

// Truncate empties the report, creating it if needed. Called once at startup.
func (f *File) Truncate() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fh, err := os.OpenFile(f.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("truncate report %s: %w", f.path, err)
	}
	return fh.Close()
}

// Append writes one section to the end of the report.
func (f *File) Append(section []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fh, err := os.OpenFile(f.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open report %s: %w", f.path, err)
	}
	if _, err := fh.Write(section); err != nil {
		fh.Close()
		return fmt.Errorf("write report %s: %w", f.path, err)
	}
	return fh.Close()
}

// Contents reads the whole report.
func (f *File) Contents() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return os.ReadFile(f.path)
}

// Buffer is an in-memory Sink.
type Buffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *Buffer) Append(section []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Write(section)
	return nil
}

func (b *Buffer) Contents() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...), nil
}
