package main

import (
	"errors"
	"fmt"
	"testing"

	"impromptu/internal/domain"
	"impromptu/internal/usecase"
)

func TestIntentErrorMessage(t *testing.T) {
	t.Parallel()

	cases := map[error]string{
		usecase.ErrIllegalTransition:   "That action is not available right now",
		usecase.ErrRatingsIncomplete:   "Rate every criterion before finishing",
		usecase.ErrInvalidRating:       "Ratings must be between 1 and 5",
		usecase.ErrUnknownCriterion:    "Unknown rating criterion",
		usecase.ErrNoRecording:         "No recording to play",
		usecase.ErrPlaybackUnavailable: "Playback unavailable",
		usecase.ErrUnreachableState:    "Session state was lost",
	}
	for err, want := range cases {
		err := err
		want := want
		t.Run(err.Error(), func(t *testing.T) {
			t.Parallel()
			wrapped := fmt.Errorf("context: %w", err)
			if got := intentErrorMessage(wrapped); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := intentErrorMessage(errors.New("other")); got != "Unexpected error" {
		t.Fatalf("expected fallback, got %q", got)
	}
}

func TestRequireReady(t *testing.T) {
	t.Parallel()

	app := NewApp()
	if err := app.requireReady(); err == nil {
		t.Fatalf("expected uninitialized error")
	}
	if err := app.Spin(); err == nil {
		t.Fatalf("intents must fail before startup")
	}
	if _, err := app.History(); err == nil {
		t.Fatalf("history must fail before startup")
	}

	bootErr := errors.New("boot")
	app.bootErr = bootErr
	if err := app.requireReady(); !errors.Is(err, bootErr) {
		t.Fatalf("expected boot error, got %v", err)
	}
	if err := app.Rate("opening", 3); !errors.Is(err, bootErr) {
		t.Fatalf("expected boot error from intent, got %v", err)
	}
}

func TestGetViewTracksLatestSnapshot(t *testing.T) {
	t.Parallel()

	app := NewApp()
	if view := app.GetView(); view.Screen != domain.ScreenHome {
		t.Fatalf("expected home before any update, got %+v", view)
	}

	app.ViewChanged(domain.View{Screen: domain.ScreenThink, Word: "Courage"})
	app.SessionRecorded(domain.Session{ID: "s1"})
	if view := app.GetView(); view.Screen != domain.ScreenThink || view.Word != "Courage" {
		t.Fatalf("unexpected view: %+v", view)
	}
}

func TestRuntimeInfoAndModesWithoutStartup(t *testing.T) {
	t.Parallel()

	app := NewApp()
	app.bootErr = errors.New("boot")
	if info := app.GetRuntimeInfo(); info["error"] != "boot" {
		t.Fatalf("unexpected runtime info: %v", info)
	}
	if got := len(app.Modes()); got != 6 {
		t.Fatalf("expected six default modes, got %d", got)
	}
}
