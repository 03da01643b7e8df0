package sched

import (
	"context"
	"errors"
	"testing"

	"ukern/internal/cpu"
	"ukern/internal/mem"
	"ukern/internal/user"
)

func loadSpace(t *testing.T, alloc *mem.FrameAllocator, entry uint64, perm mem.Perm) *user.UserSpace {
	t.Helper()
	image := cpu.NewAssembler(0x400000).Li(cpu.A0, 60).Syscall().Bytes()
	us, err := user.Load(alloc, image, 0x400000, entry, perm)
	if err != nil {
		t.Fatal(err)
	}
	return us
}

func TestBuildValidatesConfiguration(t *testing.T) {
	alloc := mem.NewFrameAllocator(8)
	entry := func(context.Context, *Task) error { return nil }

	specs := []struct {
		name string
		opts *TaskOptions
	}{
		{"no entry", NewTaskOptions(nil)},
		{"zero entry point", NewTaskOptions(entry).UserSpace(loadSpace(t, alloc, 0, mem.PermRWXU))},
		{"misaligned entry point", NewTaskOptions(entry).UserSpace(loadSpace(t, alloc, 0x400004, mem.PermRWXU))},
		{"unmapped entry point", NewTaskOptions(entry).UserSpace(loadSpace(t, alloc, 0x500000, mem.PermRWXU))},
		{"entry point not executable", NewTaskOptions(entry).UserSpace(loadSpace(t, alloc, 0x400000, mem.PermRWU))},
	}

	for _, spec := range specs {
		if _, err := spec.opts.Build(); !errors.Is(err, ErrConfig) {
			t.Errorf("[%s] expected ErrConfig; got %v", spec.name, err)
		}
	}

	us := loadSpace(t, alloc, 0x400000, mem.PermRXU)
	task, err := NewTaskOptions(entry).UserSpace(us).Data(0).Build()
	if err != nil {
		t.Fatal(err)
	}
	if task.State() != Runnable {
		t.Fatalf("expected new task to be %s; got %s", Runnable, task.State())
	}
	if task.Data() != 0 {
		t.Fatalf("expected data slot 0; got %v", task.Data())
	}
	task.SetData("bookkeeping")
	if task.Data() != "bookkeeping" {
		t.Fatalf("expected updated data slot; got %v", task.Data())
	}
}

func TestTaskIDsAreUnique(t *testing.T) {
	seen := make(map[TaskID]bool)
	for i := 0; i < 100; i++ {
		id := kernelTask(t).ID()
		if seen[id] {
			t.Fatalf("expected unique task ids; %d repeated", id)
		}
		seen[id] = true
	}
}

func TestTaskLifecycle(t *testing.T) {
	alloc := mem.NewFrameAllocator(4)
	var ran bool
	task, err := NewTaskOptions(func(ctx context.Context, self *Task) error {
		ran = true
		if self.State() != Running {
			t.Errorf("expected %s inside entry; got %s", Running, self.State())
		}
		return nil
	}).UserSpace(loadSpace(t, alloc, 0x400000, mem.PermRWXU)).Build()
	if err != nil {
		t.Fatal(err)
	}

	s := NewFIFO()
	if err := task.Run(s); err != nil {
		t.Fatal(err)
	}
	if err := task.Run(s); !errors.Is(err, ErrQueued) {
		t.Fatalf("expected ErrQueued; got %v", err)
	}

	got, ok := s.Dequeue()
	if !ok || got != task {
		t.Fatal("expected admitted task to be dequeued")
	}
	if err := got.Dispatch(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Fatal("expected entry to run")
	}

	task.Exit()
	task.Exit()
	if task.State() != Exited {
		t.Fatalf("expected %s; got %s", Exited, task.State())
	}
	if exp, got := 0, alloc.InUse(); exp != got {
		t.Fatalf("expected user space frames to be released; %d still in use", got)
	}
	if err := task.Run(s); !errors.Is(err, ErrExited) {
		t.Fatalf("expected ErrExited; got %v", err)
	}
	if err := task.Dispatch(context.Background()); !errors.Is(err, ErrExited) {
		t.Fatalf("expected ErrExited; got %v", err)
	}
	if s.Len() != 0 {
		t.Fatal("expected exited task to stay out of the queue")
	}
}

func TestRunningTaskCannotBeReadmitted(t *testing.T) {
	s := NewFIFO()
	var admitErr error
	task, err := NewTaskOptions(func(_ context.Context, self *Task) error {
		admitErr = self.Run(s)
		return nil
	}).Build()
	if err != nil {
		t.Fatal(err)
	}

	if err := task.Run(s); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Dequeue()
	if err := got.Dispatch(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !errors.Is(admitErr, ErrRunning) {
		t.Fatalf("expected ErrRunning from admission inside entry; got %v", admitErr)
	}
	if task.State() != Running {
		t.Fatalf("expected state to stay %s; got %s", Running, task.State())
	}
	if s.Len() != 0 {
		t.Fatalf("expected run queue to stay empty; got %d tasks", s.Len())
	}
	if err := task.Dispatch(context.Background()); !errors.Is(err, ErrRunning) {
		t.Fatalf("expected ErrRunning for a second dispatch; got %v", err)
	}
}

func TestYieldRequeuesOnlyRunningTasks(t *testing.T) {
	s := NewFIFO()
	task, err := NewTaskOptions(func(context.Context, *Task) error { return ErrYield }).Build()
	if err != nil {
		t.Fatal(err)
	}

	if err := task.Yield(s); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning before dispatch; got %v", err)
	}
	if err := task.Run(s); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Dequeue()
	if err := got.Dispatch(context.Background()); !errors.Is(err, ErrYield) {
		t.Fatalf("expected ErrYield; got %v", err)
	}
	if err := task.Yield(s); err != nil {
		t.Fatal(err)
	}
	if task.State() != Runnable || !s.Contains(task.ID()) {
		t.Fatal("expected yielded task to be Runnable and queued")
	}
	if err := task.Yield(s); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning for a queued task; got %v", err)
	}

	task.Exit()
	if err := task.Yield(s); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning for an exited task; got %v", err)
	}
}

func TestConcurrentAdmissionAndExit(t *testing.T) {
	for i := 0; i < 200; i++ {
		s := NewFIFO()
		task := kernelTask(t)

		done := make(chan error, 1)
		go func() { done <- task.Run(s) }()
		task.Exit()
		err := <-done

		if err == nil {
			// admitted before the exit; the queued entry must not dispatch
			got, ok := s.Dequeue()
			if !ok || got != task {
				t.Fatal("expected admitted task in the queue")
			}
			if derr := got.Dispatch(context.Background()); !errors.Is(derr, ErrExited) {
				t.Fatalf("expected ErrExited dispatching an exited task; got %v", derr)
			}
			continue
		}
		if !errors.Is(err, ErrExited) {
			t.Fatalf("expected ErrExited; got %v", err)
		}
		if s.Len() != 0 {
			t.Fatal("expected rejected task to stay out of the queue")
		}
	}
}
