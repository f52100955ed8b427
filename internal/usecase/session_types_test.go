package usecase

import (
	"errors"
	"testing"

	"impromptu/internal/domain"
)

func TestTransitionTableRejectsUnlistedPairs(t *testing.T) {
	t.Parallel()

	screens := []domain.Screen{
		domain.ScreenHome, domain.ScreenWordReveal, domain.ScreenThink, domain.ScreenSpeak,
		domain.ScreenPlayback, domain.ScreenReflect, domain.ScreenScoreSummary,
	}
	events := []lifecycleEvent{
		eventSpin, eventBack, eventStart, eventThinkDone, eventSkip, eventSpeakDone,
		eventContinue, eventDone, eventNewSession, eventCancel,
	}

	legal := 0
	for _, screen := range screens {
		for _, event := range events {
			next, err := nextScreen(screen, event)
			if _, listed := transitions[screen][event]; listed {
				legal++
				if err != nil {
					t.Fatalf("%s on %s: unexpected error %v", event, screen, err)
				}
				continue
			}
			if !errors.Is(err, ErrIllegalTransition) || next != screen {
				t.Fatalf("%s on %s: expected rejection, got %s / %v", event, screen, next, err)
			}
		}
	}
	if legal != 14 {
		t.Fatalf("expected 14 legal transitions, got %d", legal)
	}
}

func TestHomeIsReachableFromEveryAbandonableScreen(t *testing.T) {
	t.Parallel()

	for _, screen := range []domain.Screen{domain.ScreenThink, domain.ScreenSpeak, domain.ScreenPlayback} {
		if !cancellable(screen) {
			t.Fatalf("%s must be cancellable", screen)
		}
		if next, _ := nextScreen(screen, eventCancel); next != domain.ScreenHome {
			t.Fatalf("%s cancel must lead home, got %s", screen, next)
		}
	}
	for _, screen := range []domain.Screen{domain.ScreenHome, domain.ScreenWordReveal, domain.ScreenReflect, domain.ScreenScoreSummary} {
		if cancellable(screen) {
			t.Fatalf("%s must not be cancellable", screen)
		}
	}
}
