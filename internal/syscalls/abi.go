// Package syscalls decodes the register-encoded system call ABI and carries
// out the requested kernel services.
package syscalls

import (
	"fmt"

	"ukern/internal/cpu"
)

// System call numbers. The number travels in A0, arguments in A1..A4.
const (
	SysWrite    uint64 = 1
	SysShutdown uint64 = 48
	SysExit     uint64 = 60
)

// Errno values returned to user programs as negated results.
type Errno int64

const (
	EIO    Errno = 5
	EFAULT Errno = 14
	EINVAL Errno = 22
	ENOSYS Errno = 38
)

// Ret encodes e as the value placed in the result register.
func (e Errno) Ret() uint64 { return uint64(-int64(e)) }

func (e Errno) Error() string {
	switch e {
	case EIO:
		return "EIO"
	case EFAULT:
		return "EFAULT"
	case EINVAL:
		return "EINVAL"
	case ENOSYS:
		return "ENOSYS"
	default:
		return fmt.Sprintf("errno(%d)", int64(e))
	}
}

// argRegs are the argument registers in ABI order.
var argRegs = [4]cpu.Reg{cpu.A1, cpu.A2, cpu.A3, cpu.A4}

// Request is a decoded system call. The concrete type tells which call was
// made; its fields are the typed arguments.
type Request interface {
	Number() uint64
	String() string
}

// Write asks for Len bytes at Buf to be emitted on the console. FD is carried
// but not interpreted.
type Write struct {
	FD  uint64
	Buf uint64
	Len uint64
}

// Shutdown powers the machine off with a success status.
type Shutdown struct{}

// Exit ends the calling task.
type Exit struct{}

// Unknown is any number outside the supported set.
type Unknown struct {
	Nr   uint64
	Args [4]uint64
}

func (Write) Number() uint64 { return SysWrite }

func (Shutdown) Number() uint64 { return SysShutdown }

func (Exit) Number() uint64 { return SysExit }

func (u Unknown) Number() uint64 { return u.Nr }

func (w Write) String() string {
	return fmt.Sprintf("write(%d, %#x, %d)", w.FD, w.Buf, w.Len)
}

func (Shutdown) String() string { return "shutdown()" }

func (Exit) String() string { return "exit()" }

func (u Unknown) String() string {
	return fmt.Sprintf("syscall_%d(%#x, %#x, %#x, %#x)", u.Nr, u.Args[0], u.Args[1], u.Args[2], u.Args[3])
}

// Decode reads the number and arguments out of regs.
func Decode(regs *cpu.GeneralRegs) Request {
	var args [4]uint64
	for i, r := range argRegs {
		args[i] = regs[r]
	}

	switch nr := regs[cpu.A0]; nr {
	case SysWrite:
		return Write{FD: args[0], Buf: args[1], Len: args[2]}
	case SysShutdown:
		return Shutdown{}
	case SysExit:
		return Exit{}
	default:
		return Unknown{Nr: nr, Args: args}
	}
}
