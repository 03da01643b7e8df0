package sched

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"ukern/internal/cpu"
	"ukern/internal/mem"
	"ukern/internal/user"
)

// TaskID uniquely identifies a task for the lifetime of the process.
type TaskID uint64

// State is the lifecycle state of a task.
type State int32

const (
	Runnable State = iota
	Running
	Exited
)

func (s State) String() string {
	switch s {
	case Runnable:
		return "Runnable"
	case Running:
		return "Running"
	case Exited:
		return "Exited"
	default:
		return "Unknown"
	}
}

var (
	// ErrConfig is wrapped by every task construction failure.
	ErrConfig = errors.New("invalid task configuration")
	// ErrYield is returned by an entry function to hand the task back to the
	// run queue instead of finishing it.
	ErrYield = errors.New("task yielded")
	// ErrExited is returned when admitting a task that has already exited.
	ErrExited = errors.New("task has exited")
	// ErrQueued is returned when admitting a task that is already queued.
	ErrQueued = errors.New("task already queued")
	// ErrRunning is returned when admitting a task that is executing.
	ErrRunning = errors.New("task is running")
	// ErrNotRunning is returned when yielding a task that is not executing.
	ErrNotRunning = errors.New("task is not running")
)

// Entry is what a task executes each time it is dispatched.
type Entry func(ctx context.Context, t *Task) error

var lastTaskID atomic.Uint64

// Task is one schedulable unit of execution.
type Task struct {
	id     TaskID
	entry  Entry
	space  *user.UserSpace
	data   atomic.Value

	mu     sync.Mutex   // serializes lifecycle transitions
	state  atomic.Int32 // written under mu
	queued bool
	exit   sync.Once
}

// TaskOptions builds a Task.
type TaskOptions struct {
	entry Entry
	space *user.UserSpace
	data  any
}

// NewTaskOptions starts building a task that runs entry.
func NewTaskOptions(entry Entry) *TaskOptions {
	return &TaskOptions{entry: entry}
}

// UserSpace attaches the user execution context the task runs. Kernel-only
// tasks leave it unset.
func (o *TaskOptions) UserSpace(us *user.UserSpace) *TaskOptions {
	o.space = us
	return o
}

// Data sets the initial value of the scheduler-owned data slot.
func (o *TaskOptions) Data(v any) *TaskOptions {
	o.data = v
	return o
}

// Build validates the options and returns a Runnable task that is not yet
// admitted to any scheduler.
func (o *TaskOptions) Build() (*Task, error) {
	if o.entry == nil {
		return nil, fmt.Errorf("%w: no entry function", ErrConfig)
	}
	if o.space != nil {
		ip := o.space.CPUState().InstructionPointer()
		if ip == 0 || ip%cpu.InstrSize != 0 {
			return nil, fmt.Errorf("%w: bad entry point %#x", ErrConfig, ip)
		}
		if err := o.space.VmSpace().Check(ip, cpu.InstrSize, mem.PermX|mem.PermU); err != nil {
			return nil, fmt.Errorf("%w: entry point %#x: %v", ErrConfig, ip, err)
		}
	}

	t := &Task{
		id:    TaskID(lastTaskID.Add(1)),
		entry: o.entry,
		space: o.space,
	}
	t.data.Store(dataSlot{o.data})
	return t, nil
}

// dataSlot lets the slot hold values of differing concrete types, nil
// included.
type dataSlot struct{ v any }

func (t *Task) ID() TaskID { return t.id }

func (t *Task) State() State { return State(t.state.Load()) }

// UserSpace returns the task's user execution context, or nil for kernel
// tasks.
func (t *Task) UserSpace() *user.UserSpace { return t.space }

// Data returns the scheduler-owned data slot.
func (t *Task) Data() any { return t.data.Load().(dataSlot).v }

// SetData replaces the scheduler-owned data slot.
func (t *Task) SetData(v any) { t.data.Store(dataSlot{v}) }

// Run admits the task to s. Admission order, not construction order, fixes
// the task's place in the queue. Only a Runnable task that is not already
// queued can be admitted.
func (t *Task) Run(s Scheduler) error {
	t.mu.Lock()
	switch {
	case t.State() == Exited:
		t.mu.Unlock()
		return fmt.Errorf("admit task %d: %w", t.id, ErrExited)
	case t.State() == Running:
		t.mu.Unlock()
		return fmt.Errorf("admit task %d: %w", t.id, ErrRunning)
	case t.queued:
		t.mu.Unlock()
		return fmt.Errorf("admit task %d: %w", t.id, ErrQueued)
	}
	t.queued = true
	t.mu.Unlock()

	s.Enqueue(t)
	return nil
}

// Yield hands a Running task back to s once its entry function has
// returned ErrYield. Only the caller that dispatched the task may yield it.
func (t *Task) Yield(s Scheduler) error {
	t.mu.Lock()
	if t.State() != Running {
		t.mu.Unlock()
		return fmt.Errorf("yield task %d: %w", t.id, ErrNotRunning)
	}
	t.state.Store(int32(Runnable))
	t.queued = true
	t.mu.Unlock()

	s.Enqueue(t)
	return nil
}

// Dispatch marks a dequeued task Running and runs its entry function on the
// calling goroutine.
func (t *Task) Dispatch(ctx context.Context) error {
	t.mu.Lock()
	switch t.State() {
	case Exited:
		t.mu.Unlock()
		return ErrExited
	case Running:
		t.mu.Unlock()
		return ErrRunning
	}
	t.queued = false
	t.state.Store(int32(Running))
	t.mu.Unlock()

	return t.entry(ctx, t)
}

// Exit moves the task to Exited and releases its user execution context.
// It is safe to call more than once.
func (t *Task) Exit() {
	t.exit.Do(func() {
		t.mu.Lock()
		t.state.Store(int32(Exited))
		t.queued = false
		t.mu.Unlock()

		if t.space != nil {
			t.space.Release()
		}
	})
}
