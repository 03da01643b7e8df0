// Package console provides the kernel's output sinks.
package console

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	tty "github.com/mattn/go-tty"
)

// Console emits lines of text.
type Console interface {
	WriteLine(p []byte) error
}

// Printf formats a diagnostic line onto c.
func Printf(c Console, format string, args ...any) error {
	return c.WriteLine([]byte(fmt.Sprintf(format, args...)))
}

// Writer is a Console backed by an io.Writer.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

func (c *Writer) WriteLine(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	line := make([]byte, 0, len(p)+1)
	line = append(line, p...)
	line = append(line, '\n')
	_, err := c.w.Write(line)
	return err
}

// TTY is a Console bound to a serial or terminal device.
type TTY struct {
	*Writer
	dev *tty.TTY
}

// OpenTTY opens the device at path.
func OpenTTY(path string) (*TTY, error) {
	dev, err := tty.OpenDevice(path)
	if err != nil {
		return nil, fmt.Errorf("open console device %s: %w", path, err)
	}
	return &TTY{Writer: NewWriter(dev.Output()), dev: dev}, nil
}

// Close releases the device.
func (c *TTY) Close() error { return c.dev.Close() }

// Recorder keeps every emitted line in memory.
type Recorder struct {
	mu    sync.Mutex
	lines [][]byte
}

func (r *Recorder) WriteLine(p []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, bytes.Clone(p))
	return nil
}

// Lines returns a copy of the recorded lines.
func (r *Recorder) Lines() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([][]byte, len(r.lines))
	for i, l := range r.lines {
		out[i] = bytes.Clone(l)
	}
	return out
}

// Contains reports whether any recorded line contains sub.
func (r *Recorder) Contains(sub string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.lines {
		if bytes.Contains(l, []byte(sub)) {
			return true
		}
	}
	return false
}
