package mem

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrOutOfFrames  = errors.New("out of physical frames")
	ErrInvalidCount = errors.New("frame count must be positive")
	ErrFrameRange   = errors.New("access outside frame range")
	ErrDoubleFree   = errors.New("frames already freed")
)

// FrameAllocator hands out physically contiguous runs of frames from a fixed
// pool. Frame contents live in the Frames value returned by Alloc.
type FrameAllocator struct {
	mu    sync.Mutex
	used  []bool
	inUse int
}

// NewFrameAllocator creates an allocator managing total frames.
func NewFrameAllocator(total int) *FrameAllocator {
	return &FrameAllocator{used: make([]bool, total)}
}

// Alloc reserves n contiguous, zeroed frames using first fit.
func (a *FrameAllocator) Alloc(n int) (*Frames, error) {
	if n <= 0 {
		return nil, ErrInvalidCount
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	run := 0
	for i := range a.used {
		if a.used[i] {
			run = 0
			continue
		}
		run++
		if run == n {
			start := i - n + 1
			for j := start; j <= i; j++ {
				a.used[j] = true
			}
			a.inUse += n
			return &Frames{
				alloc: a,
				start: start,
				count: n,
				data:  make([]byte, n*PageSize),
			}, nil
		}
	}
	return nil, fmt.Errorf("alloc %d frames (%d of %d in use): %w", n, a.inUse, len(a.used), ErrOutOfFrames)
}

// InUse returns the number of frames currently allocated.
func (a *FrameAllocator) InUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inUse
}

// Total returns the size of the pool in frames.
func (a *FrameAllocator) Total() int { return len(a.used) }

func (a *FrameAllocator) release(start, count int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := start; i < start+count; i++ {
		a.used[i] = false
	}
	a.inUse -= count
}

// Frames is a run of contiguous physical frames. The kernel reaches their
// contents only through ReadBytes and WriteBytes.
type Frames struct {
	alloc *FrameAllocator
	start int
	count int
	data  []byte
	freed bool
}

// PFN returns the number of the first frame in the run.
func (f *Frames) PFN() int { return f.start }

// Count returns the number of frames in the run.
func (f *Frames) Count() int { return f.count }

// Len returns the size of the run in bytes.
func (f *Frames) Len() int { return len(f.data) }

// WriteBytes copies p into the frames starting at byte offset off.
func (f *Frames) WriteBytes(off int, p []byte) error {
	if err := f.check(off, len(p)); err != nil {
		return err
	}
	copy(f.data[off:], p)
	return nil
}

// ReadBytes fills p from the frames starting at byte offset off.
func (f *Frames) ReadBytes(off int, p []byte) error {
	if err := f.check(off, len(p)); err != nil {
		return err
	}
	copy(p, f.data[off:])
	return nil
}

// Free returns the frames to their allocator.
func (f *Frames) Free() error {
	if f.freed {
		return ErrDoubleFree
	}
	f.freed = true
	f.data = nil
	f.alloc.release(f.start, f.count)
	return nil
}

func (f *Frames) check(off, n int) error {
	if f.freed {
		return ErrDoubleFree
	}
	if off < 0 || n < 0 || off > len(f.data) || n > len(f.data)-off {
		return fmt.Errorf("offset %d len %d in %d bytes: %w", off, n, len(f.data), ErrFrameRange)
	}
	return nil
}
