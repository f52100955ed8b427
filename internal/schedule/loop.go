package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"impromptu/internal/ports"
)

// ErrLoopStopped is returned by Call once the loop has exited.
var ErrLoopStopped = errors.New("event loop stopped")

// Loop runs every callback on a single goroutine in posting order.
type Loop struct {
	logger *slog.Logger

	mu      sync.Mutex
	pending []func()
	wake    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

func NewLoop(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		logger:  logger,
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
}

// Run drains posted callbacks until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	defer l.once.Do(func() { close(l.stopped) })
	for {
		for _, fn := range l.drain() {
			l.exec(fn)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Post queues fn for the loop goroutine. It never blocks.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.pending = append(l.pending, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Call runs fn on the loop and waits for it to return.
// It must not be invoked from the loop goroutine.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-l.stopped:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) After(delay time.Duration, fn func()) ports.Handle {
	h := &loopHandle{}
	t := time.AfterFunc(delay, func() {
		l.Post(h.guard(fn))
	})
	h.stop = func() { t.Stop() }
	return h
}

func (l *Loop) Every(interval time.Duration, fn func()) ports.Handle {
	h := &loopHandle{quit: make(chan struct{})}
	ticker := time.NewTicker(interval)
	h.stop = func() {
		ticker.Stop()
		close(h.quit)
	}
	go func() {
		for {
			select {
			case <-ticker.C:
				l.Post(h.guard(fn))
			case <-h.quit:
				return
			}
		}
	}()
	return h
}

func (l *Loop) Go(work func(), then func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				l.logger.Error("background work panicked", "panic", fmt.Sprint(r))
			}
		}()
		work()
		if then != nil {
			l.Post(then)
		}
	}()
}

func (l *Loop) drain() []func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	batch := l.pending
	l.pending = nil
	return batch
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("loop callback panicked", "panic", fmt.Sprint(r))
		}
	}()
	fn()
}

type loopHandle struct {
	cancelled atomic.Bool
	stopOnce  sync.Once
	stop      func()
	quit      chan struct{}
}

// guard drops callbacks that were queued before Cancel but run after it.
func (h *loopHandle) guard(fn func()) func() {
	return func() {
		if h.cancelled.Load() {
			return
		}
		fn()
	}
}

func (h *loopHandle) Cancel() {
	h.cancelled.Store(true)
	h.stopOnce.Do(func() {
		if h.stop != nil {
			h.stop()
		}
	})
}
