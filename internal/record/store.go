package record

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"impromptu/internal/domain"
	"impromptu/internal/ports"
)

const (
	DefaultKey   = "impromptu_sessions"
	DefaultLimit = 50
)

// Store is the bounded, most-recent-first session log. The in-memory log is
// authoritative; persistence failures are logged and never returned.
type Store struct {
	kv     ports.KeyValueStore
	key    string
	limit  int
	logger *slog.Logger

	// writeMu orders mutations end to end so the persisted log always
	// matches the latest in-memory log. Readers only take mu.
	writeMu  sync.Mutex
	mu       sync.RWMutex
	sessions []domain.Session
}

type Option func(*Store)

func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

func WithLimit(limit int) Option {
	return func(s *Store) {
		if limit > 0 {
			s.limit = limit
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open loads the persisted log. Unreadable or malformed data yields an empty log.
func Open(ctx context.Context, kv ports.KeyValueStore, opts ...Option) *Store {
	s := &Store{
		kv:     kv,
		key:    DefaultKey,
		limit:  DefaultLimit,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sessions = s.load(ctx)
	return s
}

func (s *Store) load(ctx context.Context) []domain.Session {
	raw, ok, err := s.kv.Read(ctx, s.key)
	if err != nil {
		s.logger.Error("failed to load sessions", "key", s.key, "error", err)
		return nil
	}
	if !ok || raw == "" {
		return nil
	}
	var sessions []domain.Session
	if err := json.Unmarshal([]byte(raw), &sessions); err != nil {
		s.logger.Error("failed to decode sessions", "key", s.key, "error", err)
		return nil
	}
	if len(sessions) > s.limit {
		sessions = sessions[:s.limit]
	}
	return sessions
}

// Save upserts by id: any entry with the same id is removed and the session
// is prepended, then the log is truncated to the limit.
func (s *Store) Save(ctx context.Context, session domain.Session) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	next := make([]domain.Session, 0, len(s.sessions)+1)
	next = append(next, session.Clone())
	for _, existing := range s.sessions {
		if existing.ID != session.ID {
			next = append(next, existing)
		}
	}
	if len(next) > s.limit {
		next = next[:s.limit]
	}
	s.sessions = next
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(ctx, snapshot)
}

// Update merges patch into the entry with id. Absent ids are ignored.
func (s *Store) Update(ctx context.Context, id string, patch domain.SessionPatch) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	found := false
	for i := range s.sessions {
		if s.sessions[i].ID == id {
			patch.Apply(&s.sessions[i])
			found = true
			break
		}
	}
	if !found {
		s.mu.Unlock()
		return
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(ctx, snapshot)
}

func (s *Store) Get(id string) (domain.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, session := range s.sessions {
		if session.ID == id {
			return session.Clone(), true
		}
	}
	return domain.Session{}, false
}

// Delete removes the entry with id and reports whether one existed.
func (s *Store) Delete(ctx context.Context, id string) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	next := make([]domain.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		if session.ID != id {
			next = append(next, session)
		}
	}
	if len(next) == len(s.sessions) {
		s.mu.Unlock()
		return false
	}
	s.sessions = next
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(ctx, snapshot)
	return true
}

// List returns the log, most recent first.
func (s *Store) List() []domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() []domain.Session {
	out := make([]domain.Session, len(s.sessions))
	for i, session := range s.sessions {
		out[i] = session.Clone()
	}
	return out
}

func (s *Store) persist(ctx context.Context, sessions []domain.Session) {
	raw, err := json.Marshal(sessions)
	if err != nil {
		s.logger.Error("failed to encode sessions", "error", err)
		return
	}
	if err := s.kv.Write(ctx, s.key, string(raw)); err != nil {
		s.logger.Error("failed to persist sessions", "key", s.key, "count", len(sessions), "error", err)
	}
}
