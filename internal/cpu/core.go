package cpu

import (
	"encoding/binary"
	"errors"

	"ukern/internal/mem"
)

// Core runs user-mode code against the MMU's active address space until the
// code traps back to the kernel.
type Core struct {
	mmu      *mem.MMU
	maxSteps uint64 // 0 means unlimited
}

// NewCore creates a core. maxSteps bounds the instructions retired per
// Execute call; exhausting it raises a watchdog trap.
func NewCore(mmu *mem.MMU, maxSteps uint64) *Core {
	return &Core{mmu: mmu, maxSteps: maxSteps}
}

// MMU returns the core's translation unit.
func (c *Core) MMU() *mem.MMU { return c.mmu }

// Execute resumes uc at its instruction pointer. It returns, with the trap
// latched into uc, when the program raises a syscall or an exception. On a
// trap uc's instruction pointer still addresses the trapping instruction.
func (c *Core) Execute(uc *UserContext) TrapInfo {
	uc.trap = c.run(uc)
	return uc.trap
}

func (c *Core) run(uc *UserContext) TrapInfo {
	var raw [InstrSize]byte
	for steps := uint64(0); ; steps++ {
		ip := uc.ip
		if c.maxSteps > 0 && steps >= c.maxSteps {
			return TrapInfo{Cause: TrapWatchdog, IP: ip}
		}
		if ip%InstrSize != 0 {
			return TrapInfo{Cause: TrapMisalignedFetch, IP: ip}
		}
		if err := c.mmu.Fetch(ip, raw[:]); err != nil {
			return pageFault(ip, err)
		}

		in := Decode(raw[:])
		if in.Rd >= NumRegs || in.Rs >= NumRegs {
			return TrapInfo{Cause: TrapIllegalInstruction, IP: ip, Opcode: in.Op}
		}

		next := ip + InstrSize
		switch in.Op {
		case OpLI:
			uc.regs[in.Rd] = uint64(in.Imm)
		case OpADDI:
			uc.regs[in.Rd] = uc.regs[in.Rs] + sext(in.Imm)
		case OpMOV:
			uc.regs[in.Rd] = uc.regs[in.Rs]
		case OpLD:
			var b [8]byte
			if err := c.mmu.Load(uc.regs[in.Rs]+sext(in.Imm), b[:]); err != nil {
				return pageFault(ip, err)
			}
			uc.regs[in.Rd] = binary.LittleEndian.Uint64(b[:])
		case OpST:
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], uc.regs[in.Rs])
			if err := c.mmu.Store(uc.regs[in.Rd]+sext(in.Imm), b[:]); err != nil {
				return pageFault(ip, err)
			}
		case OpJMP:
			next = uint64(in.Imm)
		case OpBNEZ:
			if uc.regs[in.Rs] != 0 {
				next = uint64(in.Imm)
			}
		case OpSYSCALL:
			return TrapInfo{Cause: TrapSyscall, IP: ip}
		case OpEBREAK:
			return TrapInfo{Cause: TrapBreakpoint, IP: ip}
		default:
			return TrapInfo{Cause: TrapIllegalInstruction, IP: ip, Opcode: in.Op}
		}
		uc.ip = next
	}
}

func pageFault(ip uint64, err error) TrapInfo {
	var fe *mem.FaultError
	if !errors.As(err, &fe) {
		return TrapInfo{Cause: TrapUnknown, IP: ip}
	}
	return TrapInfo{Cause: TrapPageFault, IP: ip, FaultAddr: fe.Addr, Access: fe.Access}
}
