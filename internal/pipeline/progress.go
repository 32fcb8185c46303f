package pipeline

import (
	"log/slog"
	"sync"
)

// ProgressFunc receives milestone updates. Implementations may be slow or
// even panic; the pipeline never blocks or fails on them.
type ProgressFunc func(percent int, message string)

// Fixed milestones. Percentages only ever move forward.
const (
	milestoneDownload   = 5
	milestoneExtract    = 25
	milestoneRedact     = 40
	milestoneParse      = 55
	milestoneCategorize = 75
	milestoneAnalyze    = 85
	milestoneStore      = 95
	milestoneDone       = 100
)

// reporter enforces monotonic progress and isolates the pipeline from the
// callback. Updates are dispatched on their own goroutine with a recover so
// a misbehaving sink cannot stall or crash a run.
type reporter struct {
	fn     ProgressFunc
	logger *slog.Logger
	mu     sync.Mutex
	last   int
}

func newReporter(fn ProgressFunc, logger *slog.Logger) *reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &reporter{fn: fn, logger: logger}
}

func (r *reporter) report(percent int, message string) {
	if r.fn == nil {
		return
	}

	r.mu.Lock()
	if percent <= r.last {
		r.mu.Unlock()
		return
	}
	r.last = percent
	r.mu.Unlock()

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Warn("progress callback panicked", "panic", rec, "percent", percent)
			}
		}()
		r.fn(percent, message)
	}()
}
