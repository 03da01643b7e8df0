package cpu

import (
	"fmt"
	"strings"

	"ukern/internal/mem"
)

// Reg names a general-purpose register.
type Reg uint8

const (
	A0 Reg = iota
	A1
	A2
	A3
	A4
	A5
	A6
	A7
	T0
	T1
	T2
	T3
	T4
	T5
	SP
	RA

	NumRegs
)

var regNames = [NumRegs]string{
	"a0", "a1", "a2", "a3", "a4", "a5", "a6", "a7",
	"t0", "t1", "t2", "t3", "t4", "t5", "sp", "ra",
}

func (r Reg) String() string {
	if r < NumRegs {
		return regNames[r]
	}
	return fmt.Sprintf("r%d", uint8(r))
}

// GeneralRegs is the general-purpose register file.
type GeneralRegs [NumRegs]uint64

// TrapCause classifies why user-mode execution stopped.
type TrapCause int

const (
	TrapUnknown TrapCause = iota
	TrapSyscall
	TrapIllegalInstruction
	TrapPageFault
	TrapBreakpoint
	TrapMisalignedFetch
	TrapWatchdog
)

func (c TrapCause) String() string {
	switch c {
	case TrapSyscall:
		return "Syscall"
	case TrapIllegalInstruction:
		return "IllegalInstruction"
	case TrapPageFault:
		return "PageFault"
	case TrapBreakpoint:
		return "Breakpoint"
	case TrapMisalignedFetch:
		return "MisalignedFetch"
	case TrapWatchdog:
		return "Watchdog"
	default:
		return "Unknown"
	}
}

// TrapInfo is the exception metadata latched on the transition back to the
// kernel.
type TrapInfo struct {
	Cause     TrapCause
	IP        uint64     // instruction that trapped
	Opcode    byte       // raw opcode, for illegal instructions
	FaultAddr uint64     // page faults only
	Access    mem.Access // page faults only
}

func (ti TrapInfo) String() string {
	switch ti.Cause {
	case TrapPageFault:
		return fmt.Sprintf("TrapInfo { cause: %s, ip: %#x, fault_addr: %#x, access: %s }",
			ti.Cause, ti.IP, ti.FaultAddr, ti.Access)
	case TrapIllegalInstruction:
		return fmt.Sprintf("TrapInfo { cause: %s, ip: %#x, opcode: %#02x }", ti.Cause, ti.IP, ti.Opcode)
	default:
		return fmt.Sprintf("TrapInfo { cause: %s, ip: %#x }", ti.Cause, ti.IP)
	}
}

// UserContext is the saved CPU state of a user program.
type UserContext struct {
	regs GeneralRegs
	ip   uint64
	trap TrapInfo
}

// InstructionPointer returns the saved instruction pointer.
func (c *UserContext) InstructionPointer() uint64 { return c.ip }

// SetInstructionPointer sets where execution resumes.
func (c *UserContext) SetInstructionPointer(ip uint64) { c.ip = ip }

// GeneralRegs exposes the register file.
func (c *UserContext) GeneralRegs() *GeneralRegs { return &c.regs }

// Reg returns the value of r. Out-of-range registers read as zero.
func (c *UserContext) Reg(r Reg) uint64 {
	if r >= NumRegs {
		return 0
	}
	return c.regs[r]
}

// SetReg sets r to v. Writes to out-of-range registers are dropped.
func (c *UserContext) SetReg(r Reg, v uint64) {
	if r < NumRegs {
		c.regs[r] = v
	}
}

// SetSyscallRet writes a system call result into the result register.
func (c *UserContext) SetSyscallRet(v uint64) { c.regs[A0] = v }

// TrapInformation returns the metadata of the last trap.
func (c *UserContext) TrapInformation() TrapInfo { return c.trap }

// Dump formats the register file for diagnostics.
func (c *UserContext) Dump() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ip = %#018x\n", c.ip)
	for r := Reg(0); r < NumRegs; r++ {
		fmt.Fprintf(&b, "%-2s = %#018x", r, c.regs[r])
		if r%4 == 3 {
			b.WriteByte('\n')
		} else {
			b.WriteString("  ")
		}
	}
	return b.String()
}
