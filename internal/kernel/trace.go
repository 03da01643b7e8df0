package kernel

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"ukern/internal/sched"
)

// SetTraceWriter sends one human-readable line per event to w. A nil writer
// turns the trace off.
func (k *Kernel) SetTraceWriter(w io.Writer) {
	k.logMu.Lock()
	defer k.logMu.Unlock()
	k.trace = w
}

// EnableCSVLogging opens the given file path for CSV logging of events.
// Must be called before Run().
func (k *Kernel) EnableCSVLogging(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)

	// write header
	w.Write([]string{"timestamp", "tick", "event", "task_id", "detail"})
	w.Flush()

	k.logMu.Lock()
	defer k.logMu.Unlock()
	k.csvFile = f
	k.csvWriter = w
	return w.Error()
}

// History returns every event handled so far, idle ticks excluded.
func (k *Kernel) History() []sched.StatusEvent {
	k.logMu.Lock()
	defer k.logMu.Unlock()
	return append([]sched.StatusEvent(nil), k.history...)
}

func (k *Kernel) handleEvent(ev sched.StatusEvent) {
	// if we received a tick event which periodically occurs,
	// we can just return early and not log it for the brevity of output.
	if ev.Kind == sched.StatusTick {
		return
	}

	k.logMu.Lock()
	defer k.logMu.Unlock()

	k.history = append(k.history, ev)

	// an auxiliary function to center the event kind in the output
	center := func(str string, width int) string {
		spaces := int(float64(width-len(str)) / 2)
		return strings.Repeat(" ", spaces) + str + strings.Repeat(" ", width-(spaces+len(str)))
	}

	if k.trace != nil {
		fmt.Fprintf(k.trace, "%s = Tick: %07d [%s] => Task: %04d %s\n",
			ev.Time.Format("Jan 02 15:04:05.000"),
			k.clock.Count(),
			center(ev.Kind.String(), 16),
			ev.TaskID,
			ev.Detail,
		)
	}

	// CSV output
	if k.csvWriter != nil {
		rec := []string{
			ev.Time.Format(time.RFC3339Nano),
			strconv.FormatInt(k.clock.Count(), 10),
			ev.Kind.String(),
			strconv.FormatUint(uint64(ev.TaskID), 10),
			ev.Detail,
		}
		k.csvWriter.Write(rec)
		k.csvWriter.Flush()
	}
}

func (k *Kernel) closeCSV() {
	k.logMu.Lock()
	defer k.logMu.Unlock()
	if k.csvFile != nil {
		k.csvWriter.Flush()
		k.csvFile.Close()
		k.csvFile, k.csvWriter = nil, nil
	}
}
