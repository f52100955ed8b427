package usecase

import (
	"context"
	"errors"
	"strings"

	"impromptu/internal/domain"
	"impromptu/internal/ports"
	"impromptu/internal/scoring"
)

var ErrRatingsIncomplete = errors.New("all seven ratings are required")

// SessionStore is the persistence surface the controller needs.
type SessionStore interface {
	Save(ctx context.Context, session domain.Session)
	Update(ctx context.Context, id string, patch domain.SessionPatch)
}

type sessionFinalizer struct {
	store SessionStore
	clock ports.Clock
}

func newSessionFinalizer(store SessionStore, clock ports.Clock) sessionFinalizer {
	return sessionFinalizer{store: store, clock: clock}
}

// Complete scores the reflection, marks the session COMPLETED and persists it.
func (f sessionFinalizer) Complete(ctx context.Context, active *activeSession) (domain.Session, error) {
	ratings, ok := active.ratings.Complete()
	if !ok {
		return domain.Session{}, ErrRatingsIncomplete
	}

	score := scoring.CalculateOverallScore(ratings)
	status := domain.SessionStatusCompleted
	completedAt := f.clock.Now()
	audio := active.audio.Clone()
	if audio == nil {
		audio = &domain.AudioCaptureResult{Available: false}
	}

	patch := domain.SessionPatch{
		CompletedAt:  &completedAt,
		Status:       &status,
		Ratings:      &ratings,
		OverallScore: &score,
		Audio:        audio,
	}
	if notes := strings.TrimSpace(active.notes); notes != "" {
		patch.Notes = &notes
	}

	f.store.Update(ctx, active.record.ID, patch)
	patch.Apply(&active.record)
	return active.record.Clone(), nil
}

// Cancel marks the session CANCELLED with the navigational reason and
// whatever audio result exists at this moment.
func (f sessionFinalizer) Cancel(ctx context.Context, active *activeSession, reason domain.CancelReason) domain.Session {
	status := domain.SessionStatusCancelled
	patch := domain.SessionPatch{
		Status:       &status,
		CancelReason: &reason,
		Audio:        active.audio.Clone(),
	}
	f.store.Update(ctx, active.record.ID, patch)
	patch.Apply(&active.record)
	return active.record.Clone()
}
