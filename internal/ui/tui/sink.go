package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"impromptu/internal/domain"
)

type viewMsg struct{ view domain.View }

type sessionMsg struct{ session domain.Session }

// sender is the part of *tea.Program the sink needs.
type sender interface {
	Send(msg tea.Msg)
}

// maxPendingViews bounds how many undelivered view snapshots are kept.
const maxPendingViews = 64

// Sink forwards controller events into a running tea.Program. Events
// published before Attach are queued and delivered in order. Only view
// snapshots are ever dropped; recorded sessions are always delivered.
type Sink struct {
	mu      sync.Mutex
	program sender
	pending []tea.Msg
	views   int
	wake    chan struct{}
	once    sync.Once
}

func NewSink() *Sink {
	return &Sink{wake: make(chan struct{}, 1)}
}

// Attach starts delivery to program. Only the first call has an effect.
func (s *Sink) Attach(program sender) {
	s.once.Do(func() {
		s.mu.Lock()
		s.program = program
		s.mu.Unlock()
		go s.deliver()
	})
}

func (s *Sink) ViewChanged(view domain.View) {
	s.publish(viewMsg{view: view})
}

func (s *Sink) SessionRecorded(session domain.Session) {
	s.publish(sessionMsg{session: session})
}

// publish never blocks the caller's thread. Past maxPendingViews the
// oldest pending view is dropped; views are full snapshots so the latest
// one is what matters.
func (s *Sink) publish(msg tea.Msg) {
	s.mu.Lock()
	s.pending = append(s.pending, msg)
	if _, ok := msg.(viewMsg); ok {
		s.views++
		if s.views > maxPendingViews {
			s.dropOldestViewLocked()
		}
	}
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Sink) dropOldestViewLocked() {
	for i, msg := range s.pending {
		if _, ok := msg.(viewMsg); ok {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			s.views--
			return
		}
	}
}

func (s *Sink) deliver() {
	for range s.wake {
		s.mu.Lock()
		program := s.program
		batch := s.pending
		s.pending = nil
		s.views = 0
		s.mu.Unlock()
		for _, msg := range batch {
			program.Send(msg)
		}
	}
}
