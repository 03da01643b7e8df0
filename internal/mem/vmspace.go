package mem

import (
	"errors"
	"fmt"
	"sync"

	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/emirpasic/gods/utils"
)

var (
	ErrUnmapped   = errors.New("address not mapped")
	ErrPermission = errors.New("mapping does not permit access")
	ErrMisaligned = errors.New("address not page aligned")
	ErrOverlap    = errors.New("mapping overlaps an existing region")
	ErrNoRegion   = errors.New("no region at address")
)

// Access is the kind of memory access that triggered a fault.
type Access int

const (
	AccessRead Access = iota
	AccessWrite
	AccessExec
)

func (a Access) String() string {
	switch a {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	case AccessExec:
		return "exec"
	default:
		return "unknown"
	}
}

// FaultError reports the first address of a range that could not be accessed.
type FaultError struct {
	Addr   uint64
	Access Access
	Err    error // ErrUnmapped or ErrPermission
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("%s fault at %#x: %v", e.Access, e.Addr, e.Err)
}

func (e *FaultError) Unwrap() error { return e.Err }

// MapOptions selects where and how a run of frames is mapped.
type MapOptions struct {
	Addr uint64
	Perm Perm
}

// Region describes one mapping of an address space.
type Region struct {
	Base uint64
	Size uint64
	Perm Perm
}

// End returns the first address past the region.
func (r Region) End() uint64 { return r.Base + r.Size }

type mapping struct {
	Region
	frames *Frames
}

// VmSpace is an isolated virtual address space. Regions are indexed by their
// base address so translation is a floor lookup.
type VmSpace struct {
	mu      sync.RWMutex
	regions *redblacktree.Tree // uint64 base -> *mapping
}

// NewVmSpace creates an empty address space.
func NewVmSpace() *VmSpace {
	return &VmSpace{regions: redblacktree.NewWith(utils.UInt64Comparator)}
}

// Map places frames at opts.Addr with opts.Perm. The address space takes
// ownership of the frames and frees them on Unmap or Clear.
func (vs *VmSpace) Map(frames *Frames, opts MapOptions) error {
	if opts.Addr%PageSize != 0 {
		return fmt.Errorf("map at %#x: %w", opts.Addr, ErrMisaligned)
	}
	size := uint64(frames.Len())
	if size == 0 || opts.Addr+size < opts.Addr {
		return fmt.Errorf("map %d bytes at %#x: %w", size, opts.Addr, ErrFrameRange)
	}

	vs.mu.Lock()
	defer vs.mu.Unlock()

	if node, ok := vs.regions.Floor(opts.Addr + size - 1); ok {
		if m := node.Value.(*mapping); m.End() > opts.Addr {
			return fmt.Errorf("map [%#x, %#x) over [%#x, %#x): %w",
				opts.Addr, opts.Addr+size, m.Base, m.End(), ErrOverlap)
		}
	}
	vs.regions.Put(opts.Addr, &mapping{
		Region: Region{Base: opts.Addr, Size: size, Perm: opts.Perm},
		frames: frames,
	})
	return nil
}

// Unmap removes the region based at addr and frees its frames.
func (vs *VmSpace) Unmap(addr uint64) error {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	v, ok := vs.regions.Get(addr)
	if !ok {
		return fmt.Errorf("unmap %#x: %w", addr, ErrNoRegion)
	}
	vs.regions.Remove(addr)
	return v.(*mapping).frames.Free()
}

// Clear unmaps every region and frees the backing frames.
func (vs *VmSpace) Clear() {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	for _, v := range vs.regions.Values() {
		_ = v.(*mapping).frames.Free()
	}
	vs.regions.Clear()
}

// Regions returns the current mappings ordered by base address.
func (vs *VmSpace) Regions() []Region {
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	out := make([]Region, 0, vs.regions.Size())
	for _, v := range vs.regions.Values() {
		out = append(out, v.(*mapping).Region)
	}
	return out
}

// Check validates that [addr, addr+n) lies entirely inside mappings that
// grant need. Adjacent regions may be spanned.
func (vs *VmSpace) Check(addr uint64, n int, need Perm) error {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	return vs.check(addr, n, need)
}

// ReadBytes copies user memory at addr into the kernel buffer p. Nothing is
// copied unless the whole range is mapped user-readable.
func (vs *VmSpace) ReadBytes(addr uint64, p []byte) error {
	return vs.Access(addr, p, PermR|PermU, false)
}

// WriteBytes copies p into user memory at addr. Nothing is written unless the
// whole range is mapped user-writable.
func (vs *VmSpace) WriteBytes(addr uint64, p []byte) error {
	return vs.Access(addr, p, PermW|PermU, true)
}

// Access is the single bounded-copy primitive: it validates [addr,
// addr+len(p)) against need and then copies in the requested direction
// through the backing frames.
func (vs *VmSpace) Access(addr uint64, p []byte, need Perm, write bool) error {
	if write {
		vs.mu.Lock()
		defer vs.mu.Unlock()
	} else {
		vs.mu.RLock()
		defer vs.mu.RUnlock()
	}

	if err := vs.check(addr, len(p), need); err != nil {
		return err
	}

	for done := 0; done < len(p); {
		cur := addr + uint64(done)
		m := vs.lookup(cur)
		off := int(cur - m.Base)
		n := len(p) - done
		if avail := int(m.Size) - off; n > avail {
			n = avail
		}
		var err error
		if write {
			err = m.frames.WriteBytes(off, p[done:done+n])
		} else {
			err = m.frames.ReadBytes(off, p[done:done+n])
		}
		if err != nil {
			return err
		}
		done += n
	}
	return nil
}

func (vs *VmSpace) check(addr uint64, n int, need Perm) error {
	if n <= 0 {
		return nil
	}
	access := accessFor(need)
	end := addr + uint64(n)
	if end < addr {
		return &FaultError{Addr: addr, Access: access, Err: ErrUnmapped}
	}
	for cur := addr; cur < end; {
		m := vs.lookup(cur)
		if m == nil {
			return &FaultError{Addr: cur, Access: access, Err: ErrUnmapped}
		}
		if !m.Perm.Has(need) {
			return &FaultError{Addr: cur, Access: access, Err: ErrPermission}
		}
		cur = m.End()
	}
	return nil
}

func (vs *VmSpace) lookup(addr uint64) *mapping {
	node, ok := vs.regions.Floor(addr)
	if !ok {
		return nil
	}
	m := node.Value.(*mapping)
	if addr-m.Base >= m.Size {
		return nil
	}
	return m
}

func accessFor(need Perm) Access {
	switch {
	case need&PermX != 0:
		return AccessExec
	case need&PermW != 0:
		return AccessWrite
	default:
		return AccessRead
	}
}
