package syscalls

import (
	"errors"
	"fmt"
	"strings"

	"ukern/internal/console"
	"ukern/internal/cpu"
	"ukern/internal/machine"
	"ukern/internal/mem"
)

// Action tells the execution loop how to continue after a system call.
type Action int

const (
	// ActionResume re-enters the task's user context.
	ActionResume Action = iota
	// ActionExit ends the calling task.
	ActionExit
	// ActionHalt stops the machine; no further scheduling happens.
	ActionHalt
)

func (a Action) String() string {
	switch a {
	case ActionResume:
		return "Resume"
	case ActionExit:
		return "Exit"
	case ActionHalt:
		return "Halt"
	default:
		return "Unknown"
	}
}

// Policy selects what happens on an unrecognized system call number.
type Policy int

const (
	// PolicyHalt stops the machine with a failure status.
	PolicyHalt Policy = iota
	// PolicyENOSYS fails only the call with ENOSYS.
	PolicyENOSYS
)

var ErrUnknownPolicy = errors.New("unknown syscall policy")

// ParsePolicy accepts "halt" or "enosys".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "halt":
		return PolicyHalt, nil
	case "enosys":
		return PolicyENOSYS, nil
	default:
		return PolicyHalt, fmt.Errorf("%q: %w", s, ErrUnknownPolicy)
	}
}

func (p Policy) String() string {
	if p == PolicyENOSYS {
		return "enosys"
	}
	return "halt"
}

// Halter stops the machine.
type Halter interface {
	Shutdown(code machine.ExitCode)
}

// MaxWriteLimit is the largest kernel buffer a single write may allocate.
const MaxWriteLimit = 1 << 20

// Config tunes the dispatcher. MaxWriteBytes is clamped to
// [1, MaxWriteLimit].
type Config struct {
	MaxWriteBytes uint64
	Unknown       Policy
}

// Dispatcher performs decoded system calls against one task's saved state.
type Dispatcher struct {
	con  console.Console
	halt Halter
	cfg  Config
}

// NewDispatcher creates a dispatcher writing to con and halting through h.
func NewDispatcher(con console.Console, h Halter, cfg Config) *Dispatcher {
	if cfg.MaxWriteBytes == 0 || cfg.MaxWriteBytes > MaxWriteLimit {
		cfg.MaxWriteBytes = MaxWriteLimit
	}
	return &Dispatcher{con: con, halt: h, cfg: cfg}
}

// Dispatch decodes the request held in uc, performs it and reports how the
// caller should continue. Results, including negated errno values, are
// written to the result register of uc. User memory is only reached through
// vm's bounded copy.
func (d *Dispatcher) Dispatch(uc *cpu.UserContext, vm *mem.VmSpace) (Request, Action) {
	req := Decode(uc.GeneralRegs())

	switch r := req.(type) {
	case Write:
		n, errno := d.write(r, vm)
		if errno != 0 {
			uc.SetSyscallRet(errno.Ret())
		} else {
			uc.SetSyscallRet(n)
		}
		return req, ActionResume

	case Shutdown:
		_ = console.Printf(d.con, "[Kernel] Shutting down")
		d.halt.Shutdown(machine.ExitSuccess)
		return req, ActionHalt

	case Exit:
		return req, ActionExit

	case Unknown:
		if d.cfg.Unknown == PolicyENOSYS {
			uc.SetSyscallRet(ENOSYS.Ret())
			return req, ActionResume
		}
		_ = console.Printf(d.con, "[Kernel] Unimplemented syscall %d received", r.Nr)
		d.halt.Shutdown(machine.ExitFailure)
		return req, ActionHalt
	}

	// Decode only produces the cases above.
	panic(fmt.Sprintf("unhandled request %T", req))
}

func (d *Dispatcher) write(r Write, vm *mem.VmSpace) (uint64, Errno) {
	if r.Len == 0 {
		return 0, 0
	}
	if r.Len > d.cfg.MaxWriteBytes {
		return 0, EINVAL
	}

	// validate before sizing a kernel buffer from user input
	if err := vm.Check(r.Buf, int(r.Len), mem.PermR|mem.PermU); err != nil {
		return 0, EFAULT
	}
	buf := make([]byte, r.Len)
	if err := vm.ReadBytes(r.Buf, buf); err != nil {
		return 0, EFAULT
	}
	if err := d.con.WriteLine(buf); err != nil {
		return 0, EIO
	}
	return r.Len, 0
}
