package usecase

import (
	"errors"
	"fmt"

	"impromptu/internal/domain"
)

var (
	ErrIllegalTransition = errors.New("illegal transition")
	ErrUnreachableState  = errors.New("unreachable state")
)

// lifecycleEvent is an input to the screen state machine.
type lifecycleEvent string

const (
	eventSpin       lifecycleEvent = "spin"
	eventBack       lifecycleEvent = "back"
	eventStart      lifecycleEvent = "start"
	eventThinkDone  lifecycleEvent = "think_done"
	eventSkip       lifecycleEvent = "skip"
	eventSpeakDone  lifecycleEvent = "speak_done"
	eventContinue   lifecycleEvent = "continue"
	eventDone       lifecycleEvent = "done"
	eventNewSession lifecycleEvent = "new_session"
	eventCancel     lifecycleEvent = "cancel"
)

// transitions enumerates every legal (screen, event) pair.
var transitions = map[domain.Screen]map[lifecycleEvent]domain.Screen{
	domain.ScreenHome: {
		eventSpin: domain.ScreenWordReveal,
	},
	domain.ScreenWordReveal: {
		eventSpin:  domain.ScreenWordReveal,
		eventBack:  domain.ScreenHome,
		eventStart: domain.ScreenThink,
	},
	domain.ScreenThink: {
		eventThinkDone: domain.ScreenSpeak,
		eventSkip:      domain.ScreenSpeak,
		eventCancel:    domain.ScreenHome,
	},
	domain.ScreenSpeak: {
		eventSpeakDone: domain.ScreenPlayback,
		eventCancel:    domain.ScreenHome,
	},
	domain.ScreenPlayback: {
		eventContinue: domain.ScreenReflect,
		eventCancel:   domain.ScreenHome,
	},
	domain.ScreenReflect: {
		eventBack: domain.ScreenPlayback,
		eventDone: domain.ScreenScoreSummary,
	},
	domain.ScreenScoreSummary: {
		eventNewSession: domain.ScreenHome,
	},
}

// nextScreen resolves a transition without applying it.
func nextScreen(from domain.Screen, event lifecycleEvent) (domain.Screen, error) {
	next, ok := transitions[from][event]
	if !ok {
		return from, fmt.Errorf("%w: %s on %s", ErrIllegalTransition, event, from)
	}
	return next, nil
}

// cancellable reports whether back or backgrounding abandons the session.
func cancellable(screen domain.Screen) bool {
	_, ok := transitions[screen][eventCancel]
	return ok
}

// activeSession is the state owned by one session from start until it is
// completed or abandoned.
type activeSession struct {
	record domain.Session
	run    uint64

	finalizing bool
	audio      *domain.AudioCaptureResult

	ratings domain.RatingDraft
	notes   string
}

func newActiveSession(record domain.Session, run uint64) *activeSession {
	return &activeSession{record: record, run: run, ratings: domain.RatingDraft{}}
}
