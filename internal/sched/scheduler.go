// internal/sched/scheduler.go

package sched

import (
	"sync"

	"github.com/emirpasic/gods/queues/linkedlistqueue"
	"github.com/emirpasic/gods/sets/hashset"
)

// Scheduler is the policy surface the execution loop schedules through. Any
// implementation may be installed at boot.
type Scheduler interface {
	// Enqueue makes t eligible for selection.
	Enqueue(t *Task)
	// Dequeue removes and returns the next task, or false when none is
	// runnable. An empty queue is not an error.
	Dequeue() (*Task, bool)
	// ShouldPreempt reports whether the running task t must yield before
	// it does so voluntarily.
	ShouldPreempt(t *Task) bool
}

// FIFO runs tasks in admission order and never preempts.
type FIFO struct {
	mu     sync.Mutex             // protects queue and queued
	queue  *linkedlistqueue.Queue // *Task, front is next
	queued *hashset.Set           // TaskIDs currently in queue
}

// NewFIFO creates an empty FIFO scheduler.
func NewFIFO() *FIFO {
	return &FIFO{
		queue:  linkedlistqueue.New(),
		queued: hashset.New(),
	}
}

// Enqueue appends t. A task already in the queue is not added twice.
func (s *FIFO) Enqueue(t *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.queued.Contains(t.ID()) {
		return
	}
	s.queued.Add(t.ID())
	s.queue.Enqueue(t)
}

// Dequeue removes the task at the front.
func (s *FIFO) Dequeue() (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.queue.Dequeue()
	if !ok {
		return nil, false
	}
	t := v.(*Task)
	s.queued.Remove(t.ID())
	return t, true
}

// ShouldPreempt always answers false: tasks run until they exit, fault or
// yield on their own.
func (s *FIFO) ShouldPreempt(*Task) bool { return false }

// Len returns the number of queued tasks.
func (s *FIFO) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Size()
}

// Contains reports whether the task with id is queued.
func (s *FIFO) Contains(id TaskID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queued.Contains(id)
}
