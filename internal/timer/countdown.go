package timer

import (
	"time"

	"impromptu/internal/domain"
	"impromptu/internal/ports"
)

const tickInterval = time.Second

// Countdown is a restartable, pausable whole-second countdown. It is not
// safe for concurrent use; all calls and callbacks share the scheduler's
// logical thread.
type Countdown struct {
	sched      ports.Scheduler
	remaining  int
	total      int
	running    bool
	disposed   bool
	resets     int
	handle     ports.Handle
	onTick     func(remaining int)
	onComplete func()
}

// Option configures a Countdown.
type Option func(*Countdown)

// WithTick registers the per-second observer; it receives the seconds left after the tick.
func WithTick(fn func(remaining int)) Option {
	return func(c *Countdown) { c.onTick = fn }
}

// WithCompletion registers the callback fired once when the countdown reaches zero.
func WithCompletion(fn func()) Option {
	return func(c *Countdown) { c.onComplete = fn }
}

func New(sched ports.Scheduler, seconds int, opts ...Option) *Countdown {
	if seconds < 0 {
		seconds = 0
	}
	c := &Countdown{sched: sched, remaining: seconds, total: seconds}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins decrementing once per second. It is a no-op while running,
// after Dispose, or when nothing remains.
func (c *Countdown) Start() {
	if c.running || c.disposed || c.remaining <= 0 {
		return
	}
	c.running = true
	c.handle = c.sched.Every(tickInterval, c.tick)
}

// Pause halts decrementing and keeps the remaining seconds.
func (c *Countdown) Pause() {
	c.halt()
}

// Reset halts decrementing and sets the remaining seconds unconditionally.
func (c *Countdown) Reset(seconds int) {
	c.halt()
	if seconds < 0 {
		seconds = 0
	}
	c.remaining = seconds
	c.total = seconds
	c.resets++
}

// Dispose halts and releases the scheduling resource. Safe to call repeatedly.
func (c *Countdown) Dispose() {
	c.halt()
	c.disposed = true
}

func (c *Countdown) Remaining() int { return c.remaining }

func (c *Countdown) Running() bool { return c.running }

// State returns the timer snapshot for presentation.
func (c *Countdown) State() domain.TimerState {
	return domain.TimerState{
		SecondsRemaining: c.remaining,
		TotalSeconds:     c.total,
		IsRunning:        c.running,
	}
}

func (c *Countdown) tick() {
	if !c.running {
		return
	}
	resets := c.resets
	next := c.remaining - 1
	if next < 0 {
		next = 0
	}
	c.remaining = next
	if next <= 0 {
		c.halt()
	}
	if c.onTick != nil {
		c.onTick(next)
	}
	// A Reset from inside the tick observer replaces this countdown.
	if next == 0 && resets == c.resets && c.onComplete != nil {
		c.onComplete()
	}
}

func (c *Countdown) halt() {
	c.running = false
	if c.handle != nil {
		c.handle.Cancel()
		c.handle = nil
	}
}
