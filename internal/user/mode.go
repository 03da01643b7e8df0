package user

import "ukern/internal/cpu"

// Event is the reason control came back from user mode.
type Event int

const (
	EventSyscall Event = iota
	EventException
)

func (e Event) String() string {
	if e == EventSyscall {
		return "Syscall"
	}
	return "Exception"
}

// Classify maps every trap cause to exactly one event. Only a syscall
// instruction yields EventSyscall; anything else, unknown causes included,
// is an exception.
func Classify(cause cpu.TrapCause) Event {
	if cause == cpu.TrapSyscall {
		return EventSyscall
	}
	return EventException
}

// UserMode switches a core into a user space and back.
type UserMode struct {
	space *UserSpace
	core  *cpu.Core
}

// NewUserMode binds space to the core that will run it.
func NewUserMode(space *UserSpace, core *cpu.Core) *UserMode {
	return &UserMode{space: space, core: core}
}

// Execute activates the address space, runs the program from its saved
// instruction pointer and returns when it traps. The address space is only
// active for the duration of the call.
func (um *UserMode) Execute() Event {
	mmu := um.core.MMU()
	mmu.Activate(um.space.vm)
	defer mmu.Deactivate()

	ti := um.core.Execute(um.space.ctx)
	return Classify(ti.Cause)
}

// Context gives the kernel mutable access to the saved CPU state.
func (um *UserMode) Context() *cpu.UserContext { return um.space.ctx }

// UserSpace returns the space being executed.
func (um *UserMode) UserSpace() *UserSpace { return um.space }
