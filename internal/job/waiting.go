package job

import (
	"context"
	"time"

	"ukern/internal/sched"
)

// Sleep returns a kernel-mode entry that waits for the given duration and
// then finishes. If the kernel is stopped first, the wait is cut short.
func Sleep(ms int64) sched.Entry {
	return func(ctx context.Context, _ *sched.Task) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(ms) * time.Millisecond):
			// If the time is up, we just return nil.
			return nil
		}
	}
}
