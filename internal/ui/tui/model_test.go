package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"impromptu/internal/domain"
	"impromptu/internal/usecase"
)

func TestRevealAnimationSettlesEveryLetterThenCompletes(t *testing.T) {
	t.Parallel()

	intents := &fakeIntents{}
	m := newTestModel(intents)

	m, cmd := update(t, m, viewMsg{view: domain.View{Screen: domain.ScreenWordReveal, Word: "Tea", Revealing: true}})
	pending := run(cmd)
	for len(pending) > 0 {
		msg := pending[0]
		pending = pending[1:]
		m, cmd = update(t, m, msg)
		pending = append(pending, run(cmd)...)
	}

	want := []string{"LetterSettled", "LetterSettled", "LetterSettled", "RevealComplete"}
	if got := intents.names(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected intents: %v", got)
	}
	if m.revealText() != "Tea" {
		t.Fatalf("expected settled word, got %q", m.revealText())
	}
}

func TestStaleRevealTickIsIgnored(t *testing.T) {
	t.Parallel()

	intents := &fakeIntents{}
	m := newTestModel(intents)
	m, _ = update(t, m, viewMsg{view: domain.View{Screen: domain.ScreenWordReveal, Word: "Tea", Revealing: true}})
	stale := revealTickMsg{gen: m.revealGen}
	m, _ = update(t, m, viewMsg{view: domain.View{Screen: domain.ScreenWordReveal, Word: "Coffee", Revealing: true}})

	m, cmd := update(t, m, stale)
	if cmd != nil || m.settled != 0 {
		t.Fatalf("stale tick must not advance the reveal, settled=%d", m.settled)
	}
	if len(intents.names()) != 0 {
		t.Fatalf("stale tick must not reach the controller: %v", intents.names())
	}
}

func TestHomeKeysMapToIntents(t *testing.T) {
	t.Parallel()

	intents := &fakeIntents{}
	m := newTestModel(intents)
	m, _ = update(t, m, viewMsg{view: domain.View{Screen: domain.ScreenHome, Mode: domain.ModeStory}})

	for _, k := range []tea.KeyMsg{
		{Type: tea.KeyEnter},
		runes("m"),
		runes("p"),
		runes("t"),
	} {
		var cmd tea.Cmd
		m, cmd = update(t, m, k)
		run(cmd)
	}
	if got := strings.Join(intents.names(), ","); got != "Spin,CycleMode,RequestPermission" {
		t.Fatalf("unexpected intents: %s", got)
	}

	m, _ = update(t, m, viewMsg{view: domain.View{Screen: domain.ScreenHome, Mode: domain.ModeManual}})
	_, cmd := update(t, m, runes("T"))
	run(cmd)
	if got := intents.last(); got != "AdjustManual(think,5)" {
		t.Fatalf("expected manual adjustment, got %s", got)
	}
}

func TestRevealActionsWaitForReadiness(t *testing.T) {
	t.Parallel()

	intents := &fakeIntents{}
	m := newTestModel(intents)
	m, _ = update(t, m, viewMsg{view: domain.View{Screen: domain.ScreenWordReveal, Word: "Tea"}})

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Fatalf("start must wait for actions")
	}
	m, _ = update(t, m, viewMsg{view: domain.View{Screen: domain.ScreenWordReveal, Word: "Tea", ActionsReady: true}})
	_, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	run(cmd)
	if intents.last() != "Start" {
		t.Fatalf("expected start, got %v", intents.names())
	}
}

func TestReflectRatesAndFinishesWithNotes(t *testing.T) {
	t.Parallel()

	intents := &fakeIntents{}
	m := newTestModel(intents)
	m, _ = update(t, m, viewMsg{view: domain.View{Screen: domain.ScreenReflect, Word: "Tea"}})

	m, cmd := update(t, m, runes("3"))
	run(cmd)
	if intents.last() != "Rate(opening,3)" || m.cursor != 1 {
		t.Fatalf("unexpected rate: %v cursor=%d", intents.names(), m.cursor)
	}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if !m.notesFocused {
		t.Fatalf("tab must focus notes")
	}
	m, _ = update(t, m, runes("good"))
	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})
	run(cmd)
	if m.notesFocused {
		t.Fatalf("finishing must leave the notes editor")
	}

	names := intents.names()
	if len(names) < 2 || names[len(names)-2] != "SetNotes(good)" || names[len(names)-1] != "Done" {
		t.Fatalf("expected notes synced before done, got %v", names)
	}
}

func TestIntentsRunInIssueOrder(t *testing.T) {
	t.Parallel()

	intents := &fakeIntents{}
	m := newTestModel(intents)
	m, _ = update(t, m, viewMsg{view: domain.View{Screen: domain.ScreenReflect, Word: "Tea"}})

	m, rate := update(t, m, runes("4"))
	_, done := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})

	// Commands run in reverse to mimic the runtime scheduling them freely.
	run(done)
	run(rate)

	want := "Rate(opening,4),SetNotes(),Done"
	if got := strings.Join(intents.names(), ","); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestBlurBackgroundsTheSession(t *testing.T) {
	t.Parallel()

	intents := &fakeIntents{}
	m := newTestModel(intents)
	_, cmd := update(t, m, tea.BlurMsg{})
	run(cmd)
	if intents.last() != "Background" {
		t.Fatalf("expected background, got %v", intents.names())
	}
}

func TestIntentErrorsSurfaceInStatus(t *testing.T) {
	t.Parallel()

	m := newTestModel(&fakeIntents{})
	m, _ = update(t, m, intentDoneMsg{err: fmt.Errorf("wrap: %w", usecase.ErrRatingsIncomplete)})
	if m.status != "rate every criterion before finishing" {
		t.Fatalf("unexpected status %q", m.status)
	}
	m, _ = update(t, m, intentDoneMsg{err: usecase.ErrIllegalTransition})
	if m.status != "" {
		t.Fatalf("illegal transitions are silent, got %q", m.status)
	}
	m, _ = update(t, m, intentDoneMsg{err: errors.New("disk full")})
	if m.status != "disk full" {
		t.Fatalf("unexpected status %q", m.status)
	}
}

func TestViewRendersScreens(t *testing.T) {
	t.Parallel()

	score := 3.7
	duration := int64(4200)
	cases := []struct {
		view domain.View
		want string
	}{
		{domain.View{Screen: domain.ScreenHome, Mode: domain.ModeStory, ModeDescriptor: "Narrative arc"}, "Narrative arc"},
		{domain.View{Screen: domain.ScreenThink, Word: "Harbor", Think: domain.TimerState{SecondsRemaining: 75, TotalSeconds: 90, IsRunning: true}}, "1:15"},
		{domain.View{Screen: domain.ScreenSpeak, Word: "Harbor", Recording: true}, "recording"},
		{domain.View{Screen: domain.ScreenPlayback, Word: "Harbor", Audio: &domain.AudioCaptureResult{ErrorCode: domain.AudioErrorNoAudio}}, "No audio captured"},
		{domain.View{Screen: domain.ScreenPlayback, Word: "Harbor", Audio: &domain.AudioCaptureResult{Available: true, DurationMs: &duration}, Playing: true}, "playing 4.2s"},
		{domain.View{Screen: domain.ScreenReflect, Ratings: domain.RatingDraft{domain.CriterionClarity: 4}}, "Language & expression"},
		{domain.View{Screen: domain.ScreenScoreSummary, Word: "Harbor", OverallScore: &score}, "3.7"},
	}
	for _, tc := range cases {
		m := newTestModel(&fakeIntents{})
		m, _ = update(t, m, viewMsg{view: tc.view})
		if out := m.View(); !strings.Contains(out, tc.want) {
			t.Fatalf("%s: expected %q in output:\n%s", tc.view.Screen, tc.want, out)
		}
	}
}

func TestSessionMessagesUpdateStatus(t *testing.T) {
	t.Parallel()

	score := 4.0
	m := newTestModel(&fakeIntents{})
	m, _ = update(t, m, sessionMsg{session: domain.Session{Word: "Tea", Status: domain.SessionStatusCompleted, OverallScore: &score}})
	if m.saved != 1 || !strings.Contains(m.status, "4.0") {
		t.Fatalf("unexpected status %q saved=%d", m.status, m.saved)
	}
	m, _ = update(t, m, sessionMsg{session: domain.Session{Word: "Tea", Status: domain.SessionStatusCancelled}})
	if !strings.Contains(m.status, "cancelled") {
		t.Fatalf("unexpected status %q", m.status)
	}
}

func newTestModel(intents Intents) Model {
	m := NewModel(context.Background(), intents)
	m.spinFor = 0
	m.letterEvery = 0
	return m
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	if !ok {
		t.Fatalf("unexpected model type %T", next)
	}
	return model, cmd
}

// run executes cmd and any batched commands in order and returns the
// messages that are not intent acknowledgements.
func run(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	switch msg := cmd().(type) {
	case tea.BatchMsg:
		var out []tea.Msg
		for _, c := range msg {
			out = append(out, run(c)...)
		}
		return out
	case intentDoneMsg, nil:
		return nil
	default:
		return []tea.Msg{msg}
	}
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

type fakeIntents struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeIntents) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return nil
}

func (f *fakeIntents) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeIntents) last() string {
	names := f.names()
	if len(names) == 0 {
		return ""
	}
	return names[len(names)-1]
}

func (f *fakeIntents) Spin(context.Context) error           { return f.record("Spin") }
func (f *fakeIntents) LetterSettled(context.Context) error  { return f.record("LetterSettled") }
func (f *fakeIntents) RevealComplete(context.Context) error { return f.record("RevealComplete") }
func (f *fakeIntents) Start(context.Context) error          { return f.record("Start") }
func (f *fakeIntents) Skip(context.Context) error           { return f.record("Skip") }
func (f *fakeIntents) Back(context.Context) error           { return f.record("Back") }
func (f *fakeIntents) Background(context.Context) error     { return f.record("Background") }
func (f *fakeIntents) Continue(context.Context) error       { return f.record("Continue") }
func (f *fakeIntents) TogglePlayback(context.Context) error { return f.record("TogglePlayback") }
func (f *fakeIntents) Replay(context.Context) error         { return f.record("Replay") }
func (f *fakeIntents) Done(context.Context) error           { return f.record("Done") }
func (f *fakeIntents) NewSession(context.Context) error     { return f.record("NewSession") }
func (f *fakeIntents) CycleMode(context.Context) error      { return f.record("CycleMode") }
func (f *fakeIntents) RequestPermission(context.Context) error {
	return f.record("RequestPermission")
}
func (f *fakeIntents) Refresh(context.Context) error { return f.record("Refresh") }

func (f *fakeIntents) Rate(_ context.Context, c domain.Criterion, r domain.Rating) error {
	return f.record(fmt.Sprintf("Rate(%s,%d)", c, r))
}

func (f *fakeIntents) SetNotes(_ context.Context, notes string) error {
	return f.record(fmt.Sprintf("SetNotes(%s)", notes))
}

func (f *fakeIntents) AdjustManual(_ context.Context, field usecase.ManualField, delta int) error {
	return f.record(fmt.Sprintf("AdjustManual(%s,%d)", field, delta))
}
