// internal/sched/schedulerEvent.go

package sched

import (
	"time"
)

// StatusKind represents the type of scheduler event
type StatusKind int

const (
	StatusIdle StatusKind = iota
	StatusEnqueue
	StatusDispatch
	StatusPreempt
	StatusFinish
	StatusTick
	StatusSyscall
	StatusFault
	StatusShutdown
)

// StatusEvent is emitted on every scheduling decision and kernel entry
type StatusEvent struct {
	Time   time.Time
	Kind   StatusKind
	TaskID TaskID
	Detail string
}

func (sk StatusKind) String() string {
	switch sk {
	case StatusIdle:
		return "Idle"
	case StatusEnqueue:
		return "Enqueued"
	case StatusDispatch:
		return "Dispatch"
	case StatusPreempt:
		return "Preempt"
	case StatusFinish:
		return "Finish"
	case StatusTick:
		return "Tick"
	case StatusSyscall:
		return "Syscall"
	case StatusFault:
		return "Fault"
	case StatusShutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}
