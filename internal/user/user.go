// Package user pairs an address space with saved CPU state and switches
// between kernel and user mode.
package user

import (
	"errors"
	"fmt"

	"ukern/internal/cpu"
	"ukern/internal/mem"
)

var ErrEmptyImage = errors.New("empty program image")

// UserSpace is the environment a user program runs in: an address space and
// the CPU state to resume it with.
type UserSpace struct {
	vm  *mem.VmSpace
	ctx *cpu.UserContext
}

// NewUserSpace pairs vm with an initial CPU state.
func NewUserSpace(vm *mem.VmSpace, init cpu.UserContext) *UserSpace {
	ctx := init
	return &UserSpace{vm: vm, ctx: &ctx}
}

// VmSpace returns the address space.
func (us *UserSpace) VmSpace() *mem.VmSpace { return us.vm }

// CPUState returns the saved CPU state. The kernel only changes it between
// user-mode executions.
func (us *UserSpace) CPUState() *cpu.UserContext { return us.ctx }

// Release unmaps the address space and returns its frames.
func (us *UserSpace) Release() { us.vm.Clear() }

// Load copies image into freshly allocated frames, maps them at mapAddr with
// perm and sets the instruction pointer to entry.
func Load(alloc *mem.FrameAllocator, image []byte, mapAddr, entry uint64, perm mem.Perm) (*UserSpace, error) {
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}

	nframes := int(mem.AlignUp(uint64(len(image))) / mem.PageSize)
	frames, err := alloc.Alloc(nframes)
	if err != nil {
		return nil, fmt.Errorf("load image: %w", err)
	}
	if err := frames.WriteBytes(0, image); err != nil {
		_ = frames.Free()
		return nil, fmt.Errorf("load image: %w", err)
	}

	vm := mem.NewVmSpace()
	if err := vm.Map(frames, mem.MapOptions{Addr: mapAddr, Perm: perm}); err != nil {
		_ = frames.Free()
		return nil, fmt.Errorf("load image: %w", err)
	}

	var ctx cpu.UserContext
	ctx.SetInstructionPointer(entry)
	return NewUserSpace(vm, ctx), nil
}
