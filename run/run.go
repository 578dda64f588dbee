// CLAUDE:SUMMARY Per-run control block: state machine, cooperative pause/stop flags, filled/total counters and the progress sink.
// Package run holds the state of one scan/fill run. A Control is shared
// between the goroutine driving the fill and the callers flipping pause or
// stop; every method is safe for concurrent use.
package run

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// State is the run state machine:
// Idle → Scanned → Filling → {Paused ⇄ Filling} → Completed | Stopped.
type State int32

const (
	Idle State = iota
	Scanned
	Filling
	Paused
	Completed
	Stopped
)

func (s State) String() string {
	switch s {
	case Scanned:
		return "scanned"
	case Filling:
		return "filling"
	case Paused:
		return "paused"
	case Completed:
		return "completed"
	case Stopped:
		return "stopped"
	}
	return "idle"
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == Completed || s == Stopped }

// DefaultPollInterval is how often a paused run checks its flags.
const DefaultPollInterval = 200 * time.Millisecond

// Status texts reported through the sink.
const (
	StatusReady     = "Ready"
	StatusFilling   = "Filling"
	StatusPaused    = "Paused"
	StatusResumed   = "Resumed"
	StatusStopped   = "Stopped"
	StatusCompleted = "Completed"
)

// Snapshot is a consistent view of a Control.
type Snapshot struct {
	ID     string `json:"id"`
	State  string `json:"state"`
	Filled int    `json:"filled"`
	Total  int    `json:"total"`
	Status string `json:"status"`
}

// Control is the run context of one fill.
type Control struct {
	id   string
	poll time.Duration
	sink ProgressSink

	stopped atomic.Bool
	paused  atomic.Bool

	mu     sync.Mutex
	state  State
	filled int
	total  int
	status string
}

// NewControl creates an idle control. A nil sink discards progress; a
// non-positive poll means DefaultPollInterval.
func NewControl(id string, sink ProgressSink, poll time.Duration) *Control {
	if sink == nil {
		sink = Discard
	}
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &Control{id: id, poll: poll, sink: sink, status: StatusReady}
}

func (c *Control) ID() string { return c.id }

// Stop requests the run to end at its next check. It is sticky.
func (c *Control) Stop() {
	c.stopped.Store(true)
	c.mu.Lock()
	if c.state == Idle || c.state == Scanned {
		c.state = Stopped
		c.status = StatusStopped
	}
	c.mu.Unlock()
}

func (c *Control) Stopped() bool { return c.stopped.Load() }

// Pause suspends (true) or resumes (false) the run between fields.
func (c *Control) Pause(p bool) {
	if c.paused.Swap(p) == p {
		return
	}
	status := StatusResumed
	if p {
		status = StatusPaused
	}
	c.mu.Lock()
	if !c.state.Terminal() {
		c.status = status
		if c.state == Filling && p {
			c.state = Paused
		} else if c.state == Paused && !p {
			c.state = Filling
		}
	}
	filled, total := c.filled, c.total
	c.mu.Unlock()
	c.sink.Update(filled, total, status)
}

func (c *Control) Paused() bool { return c.paused.Load() }

// WaitIfPaused polls while the run is paused. It returns false when the
// run was stopped (before or during the pause) or ctx ended.
func (c *Control) WaitIfPaused(ctx context.Context) bool {
	if !c.paused.Load() {
		return !c.stopped.Load() && ctx.Err() == nil
	}
	t := time.NewTicker(c.poll)
	defer t.Stop()
	for c.paused.Load() && !c.stopped.Load() {
		select {
		case <-ctx.Done():
			return false
		case <-t.C:
		}
	}
	return !c.stopped.Load() && ctx.Err() == nil
}

// Continue is the between-fields check: it waits out a pause and reports
// whether the run may go on.
func (c *Control) Continue(ctx context.Context) bool {
	if c.stopped.Load() || ctx.Err() != nil {
		return false
	}
	return c.WaitIfPaused(ctx)
}

// MarkScanned records a completed scan.
func (c *Control) MarkScanned() {
	c.mu.Lock()
	if c.state == Idle {
		c.state = Scanned
	}
	c.mu.Unlock()
}

// Begin enters Filling with total fields. It returns false when the run
// was already stopped.
func (c *Control) Begin(total int) bool {
	c.mu.Lock()
	if c.stopped.Load() || c.state.Terminal() {
		c.state, c.status = Stopped, StatusStopped
		filled := c.filled
		c.mu.Unlock()
		c.sink.Update(filled, total, StatusStopped)
		return false
	}
	c.state, c.total, c.filled, c.status = Filling, total, 0, StatusFilling
	if c.paused.Load() {
		c.state = Paused
	}
	c.mu.Unlock()
	c.sink.Update(0, total, StatusFilling)
	return true
}

// AddTotal grows the field count, used when sections append fields.
func (c *Control) AddTotal(n int) {
	c.mu.Lock()
	c.total += n
	c.mu.Unlock()
}

// Filled counts one written field and reports progress with status.
func (c *Control) Filled(status string) {
	c.mu.Lock()
	c.filled++
	if c.total < c.filled {
		c.total = c.filled
	}
	c.status = status
	filled, total := c.filled, c.total
	c.mu.Unlock()
	c.sink.Update(filled, total, status)
}

// Report sends progress without counting a field.
func (c *Control) Report(status string) {
	c.mu.Lock()
	c.status = status
	filled, total := c.filled, c.total
	c.mu.Unlock()
	c.sink.Update(filled, total, status)
}

// Finish moves to Completed, or Stopped when a stop was requested.
func (c *Control) Finish() State {
	c.mu.Lock()
	if c.stopped.Load() {
		c.state, c.status = Stopped, StatusStopped
	} else {
		c.state, c.status = Completed, StatusCompleted
	}
	st, filled, total, status := c.state, c.filled, c.total, c.status
	c.mu.Unlock()
	c.sink.Update(filled, total, status)
	return st
}

func (c *Control) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Control) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{ID: c.id, State: c.state.String(), Filled: c.filled, Total: c.total, Status: c.status}
}

// ProgressSink receives {filled, total, status} after every field.
// Implementations must not block.
type ProgressSink interface {
	Update(filled, total int, status string)
}

// SinkFunc adapts a function to ProgressSink.
type SinkFunc func(filled, total int, status string)

func (f SinkFunc) Update(filled, total int, status string) { f(filled, total, status) }

// Discard drops progress.
var Discard ProgressSink = SinkFunc(func(int, int, string) {})

// LogSink mirrors progress to logger at debug level.
func LogSink(logger *slog.Logger, runID string) ProgressSink {
	if logger == nil {
		logger = slog.Default()
	}
	return SinkFunc(func(filled, total int, status string) {
		logger.Debug("run: progress", "run_id", runID, "filled", filled, "total", total, "status", status)
	})
}

// Multi fans progress out to every sink.
func Multi(sinks ...ProgressSink) ProgressSink {
	return SinkFunc(func(filled, total int, status string) {
		for _, s := range sinks {
			if s != nil {
				s.Update(filled, total, status)
			}
		}
	})
}
