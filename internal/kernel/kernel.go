// Package kernel runs the execution loop: it takes tasks from the scheduler,
// enters their user contexts and handles whatever brings them back.
package kernel

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"ukern/internal/console"
	"ukern/internal/cpu"
	"ukern/internal/machine"
	"ukern/internal/mem"
	"ukern/internal/sched"
	"ukern/internal/syscalls"
	"ukern/internal/user"
)

var (
	// ErrNoUserSpace is returned by UserEntry for a task without a user
	// execution context.
	ErrNoUserSpace = errors.New("task has no user space")
	// ErrHalted is returned by UserEntry when a system call stopped the machine.
	ErrHalted = errors.New("machine halted")
	// ErrAlreadyRun is returned by a second call to Run.
	ErrAlreadyRun = errors.New("kernel already run")
)

// TaskFault reports the CPU exception that terminated a task.
type TaskFault struct {
	Task sched.TaskID
	Trap cpu.TrapInfo
}

func (e *TaskFault) Error() string {
	return fmt.Sprintf("task %d: user mode exception: %s", e.Task, e.Trap)
}

// Kernel owns one core's execution loop. The scheduler is installed once at
// construction and never replaced.
type Kernel struct {
	cfg   Config
	sched sched.Scheduler
	con   console.Console
	mach  *machine.Machine
	core  *cpu.Core
	disp  *syscalls.Dispatcher
	clock *sched.TickClock

	started  atomic.Bool
	statusCh chan sched.StatusEvent

	// logging-related
	logMu     sync.Mutex
	trace     io.Writer
	history   []sched.StatusEvent
	csvFile   *os.File
	csvWriter *csv.Writer
}

// New creates a kernel scheduling through s, writing to con and halting m.
func New(cfg Config, s sched.Scheduler, con console.Console, m *machine.Machine) *Kernel {
	cfg = cfg.sanitize()
	return &Kernel{
		cfg:   cfg,
		sched: s,
		con:   con,
		mach:  m,
		core:  cpu.NewCore(&mem.MMU{}, cfg.MaxSteps),
		disp: syscalls.NewDispatcher(con, m, syscalls.Config{
			MaxWriteBytes: cfg.MaxWriteBytes,
			Unknown:       cfg.policy(),
		}),
		clock:    sched.NewTickClock(1),
		statusCh: make(chan sched.StatusEvent, 256), // buffered channel for status events
	}
}

// Scheduler returns the installed scheduler.
func (k *Kernel) Scheduler() sched.Scheduler { return k.sched }

// MMU returns the core's translation unit.
func (k *Kernel) MMU() *mem.MMU { return k.core.MMU() }

// NewUserTask builds a task that runs us in user mode.
func (k *Kernel) NewUserTask(us *user.UserSpace) (*sched.Task, error) {
	return sched.NewTaskOptions(k.UserEntry).UserSpace(us).Data(0).Build()
}

// Spawn admits t to the scheduler.
func (k *Kernel) Spawn(t *sched.Task) error {
	if err := t.Run(k.sched); err != nil {
		return err
	}
	k.handleEvent(sched.StatusEvent{Time: time.Now(), Kind: sched.StatusEnqueue, TaskID: t.ID()})
	return nil
}

// Run drives the execution loop until the machine halts, ctx is cancelled,
// or, with exit_when_idle, the run queue drains. A kernel runs once.
func (k *Kernel) Run(ctx context.Context) error {
	if !k.started.CompareAndSwap(false, true) {
		return ErrAlreadyRun
	}
	if !k.cfg.ExitWhenIdle {
		k.clock.Start(time.Duration(k.cfg.IdleTickMS) * time.Millisecond)
	}

	// start loop
	go k.loop(ctx)

	// consume events
	for ev := range k.statusCh {
		k.handleEvent(ev)
	}

	k.closeCSV()
	if k.mach.Halted() {
		return nil
	}
	return ctx.Err()
}

func (k *Kernel) emit(kind sched.StatusKind, id sched.TaskID, detail string) {
	k.statusCh <- sched.StatusEvent{Time: time.Now(), Kind: kind, TaskID: id, Detail: detail}
}

// loop is the scheduling point. The run queue lock is only held inside
// Dequeue, never while a task runs.
func (k *Kernel) loop(ctx context.Context) {
	defer func() {
		if !k.cfg.ExitWhenIdle {
			// stop the underlying clock to release its goroutine
			k.clock.Stop()
		}
		close(k.statusCh)
	}()

	idle := false
	for {
		if ctx.Err() != nil || k.mach.Halted() {
			return
		}

		t, ok := k.sched.Dequeue()
		if !ok {
			if !idle {
				idle = true
				k.emit(sched.StatusIdle, 0, "")
			}
			if k.cfg.ExitWhenIdle {
				return
			}
			select {
			case <-k.clock.Ch:
				k.emit(sched.StatusTick, 0, "")
			case <-k.mach.Done():
			case <-ctx.Done():
			}
			continue
		}

		idle = false
		k.dispatch(ctx, t)
	}
}

func (k *Kernel) dispatch(ctx context.Context, t *sched.Task) {
	k.emit(sched.StatusDispatch, t.ID(), "")

	err := t.Dispatch(ctx)
	if errors.Is(err, sched.ErrYield) {
		if rerr := t.Yield(k.sched); rerr != nil {
			t.Exit()
			k.emit(sched.StatusFinish, t.ID(), rerr.Error())
			return
		}
		k.emit(sched.StatusPreempt, t.ID(), "")
		return
	}

	t.Exit()
	detail := "exited"
	if err != nil {
		detail = err.Error()
	}
	k.emit(sched.StatusFinish, t.ID(), detail)
	if errors.Is(err, ErrHalted) {
		code, _ := k.mach.Status()
		k.emit(sched.StatusShutdown, t.ID(), code.String())
	}
}

// UserEntry is the entry behavior of user tasks. It alternates between the
// task's user context and the kernel until the task exits, faults, or the
// scheduler asks it to yield.
func (k *Kernel) UserEntry(ctx context.Context, t *sched.Task) error {
	us := t.UserSpace()
	if us == nil {
		return ErrNoUserSpace
	}
	um := user.NewUserMode(us, k.core)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		switch um.Execute() {
		case user.EventSyscall:
			uc := um.Context()
			uc.SetInstructionPointer(uc.InstructionPointer() + cpu.InstrSize)

			req, action := k.disp.Dispatch(uc, us.VmSpace())
			k.emit(sched.StatusSyscall, t.ID(), fmt.Sprintf("%s = %#x", req, uc.Reg(cpu.A0)))

			switch action {
			case syscalls.ActionExit:
				return nil
			case syscalls.ActionHalt:
				return ErrHalted
			}
			if k.sched.ShouldPreempt(t) {
				return sched.ErrYield
			}

		case user.EventException:
			uc := um.Context()
			fault := &TaskFault{Task: t.ID(), Trap: uc.TrapInformation()}
			k.reportFault(uc)
			k.emit(sched.StatusFault, t.ID(), fault.Trap.String())
			return fault
		}
	}
}

func (k *Kernel) reportFault(uc *cpu.UserContext) {
	_ = console.Printf(k.con, "[Kernel] User mode exception detected!")
	_ = console.Printf(k.con, "%s", uc.TrapInformation())
	_ = console.Printf(k.con, "%s", uc.Dump())
}
