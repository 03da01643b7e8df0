// Package machine models the host-visible power state of the machine.
package machine

import (
	"fmt"
	"sync"
)

// ExitCode is the status reported to the host when the machine halts.
type ExitCode int

const (
	ExitSuccess ExitCode = 0
	ExitFailure ExitCode = 1
)

func (c ExitCode) String() string {
	switch c {
	case ExitSuccess:
		return "success"
	case ExitFailure:
		return "failure"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// Machine halts exactly once; later calls to Shutdown keep the first status.
type Machine struct {
	once sync.Once
	mu   sync.Mutex
	code ExitCode
	done chan struct{}
}

// New creates a running machine.
func New() *Machine {
	return &Machine{done: make(chan struct{})}
}

// Shutdown halts the machine with code.
func (m *Machine) Shutdown(code ExitCode) {
	m.once.Do(func() {
		m.mu.Lock()
		m.code = code
		m.mu.Unlock()
		close(m.done)
	})
}

// Done is closed once the machine has halted.
func (m *Machine) Done() <-chan struct{} { return m.done }

// Halted reports whether Shutdown has been called.
func (m *Machine) Halted() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

// Status returns the exit code and whether the machine has halted.
func (m *Machine) Status() (ExitCode, bool) {
	if !m.Halted() {
		return 0, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.code, true
}
