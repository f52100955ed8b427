package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"impromptu/internal/domain"
	"impromptu/internal/ui/theme"
	"impromptu/internal/usecase"
)

// Intents is the controller surface the terminal UI drives.
type Intents interface {
	Spin(ctx context.Context) error
	LetterSettled(ctx context.Context) error
	RevealComplete(ctx context.Context) error
	Start(ctx context.Context) error
	Skip(ctx context.Context) error
	Back(ctx context.Context) error
	Background(ctx context.Context) error
	Continue(ctx context.Context) error
	TogglePlayback(ctx context.Context) error
	Replay(ctx context.Context) error
	Rate(ctx context.Context, criterion domain.Criterion, rating domain.Rating) error
	SetNotes(ctx context.Context, notes string) error
	AdjustManual(ctx context.Context, field usecase.ManualField, delta int) error
	Done(ctx context.Context) error
	NewSession(ctx context.Context) error
	CycleMode(ctx context.Context) error
	RequestPermission(ctx context.Context) error
	Refresh(ctx context.Context) error
}

const (
	defaultSpinFor     = 600 * time.Millisecond
	defaultLetterEvery = 90 * time.Millisecond
	manualStep         = 5
	scrambleRune       = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

var criterionLabels = map[domain.Criterion]string{
	domain.CriterionOpening:            "Opening",
	domain.CriterionStructure:          "Structure",
	domain.CriterionEnding:             "Ending",
	domain.CriterionConfidence:         "Confidence",
	domain.CriterionClarity:            "Clarity",
	domain.CriterionAuthenticity:       "Authenticity",
	domain.CriterionLanguageExpression: "Language & expression",
}

type intentDoneMsg struct{ err error }

type revealTickMsg struct{ gen int }

// Model is the root Bubble Tea model. Rendering follows the latest view
// snapshot; every key press becomes an intent run off the update loop.
type Model struct {
	ctx     context.Context
	intents Intents
	queue   *intentQueue

	view     domain.View
	received bool

	revealGen   int
	settled     int
	frame       int
	spinFor     time.Duration
	letterEvery time.Duration

	cursor       int
	notes        textarea.Model
	notesFocused bool

	keys   keyMap
	help   help.Model
	bar    progress.Model
	status string
	saved  int
	width  int
	height int
}

func NewModel(ctx context.Context, intents Intents) Model {
	notes := textarea.New()
	notes.Placeholder = "What went well? What would you change?"
	notes.CharLimit = 2000
	notes.ShowLineNumbers = false
	notes.SetWidth(56)
	notes.SetHeight(4)

	bar := progress.New(progress.WithSolidFill(string(theme.Lavender)), progress.WithoutPercentage())
	bar.Width = 40

	return Model{
		ctx:     ctx,
		intents: intents,
		queue:   newIntentQueue(ctx),
		view:    domain.View{Screen: domain.ScreenHome},
		notes:   notes,
		keys:    defaultKeys(),
		help:    help.New(),
		bar:     bar,

		spinFor:     defaultSpinFor,
		letterEvery: defaultLetterEvery,
	}
}

func (m Model) Init() tea.Cmd {
	return m.call(m.intents.Refresh)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.BlurMsg:
		return m, m.call(m.intents.Background)

	case viewMsg:
		return m.applyView(msg.view)

	case sessionMsg:
		m.saved++
		m.status = savedStatus(msg.session)
		return m, nil

	case intentDoneMsg:
		if msg.err != nil {
			m.status = statusFor(msg.err)
		}
		return m, nil

	case revealTickMsg:
		return m.advanceReveal(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	if m.notesFocused {
		var cmd tea.Cmd
		m.notes, cmd = m.notes.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) applyView(view domain.View) (tea.Model, tea.Cmd) {
	prev := m.view
	m.view = view
	m.received = true

	var cmds []tea.Cmd
	switch {
	case view.Screen == domain.ScreenWordReveal && view.Revealing &&
		(!prev.Revealing || prev.Word != view.Word || prev.Screen != domain.ScreenWordReveal):
		m.revealGen++
		m.settled = 0
		m.frame = 0
		cmds = append(cmds, revealTick(m.revealGen, m.spinFor))
	case !view.Revealing:
		m.settled = len([]rune(view.Word))
	}

	if view.Screen == domain.ScreenReflect && prev.Screen != domain.ScreenReflect {
		m.cursor = 0
		m.notes.SetValue(view.Notes)
	}
	if view.Screen != domain.ScreenReflect && m.notesFocused {
		m.notesFocused = false
		m.notes.Blur()
	}
	if view.Screen != prev.Screen {
		m.status = ""
	}
	return m, tea.Batch(cmds...)
}

func (m Model) advanceReveal(msg revealTickMsg) (tea.Model, tea.Cmd) {
	if msg.gen != m.revealGen || m.view.Screen != domain.ScreenWordReveal || !m.view.Revealing {
		return m, nil
	}
	m.frame++
	m.settled++
	letters := len([]rune(m.view.Word))
	if m.settled >= letters {
		m.settled = letters
		return m, m.call(func(ctx context.Context) error {
			if err := m.intents.LetterSettled(ctx); err != nil {
				return err
			}
			return m.intents.RevealComplete(ctx)
		})
	}
	return m, tea.Batch(m.call(m.intents.LetterSettled), revealTick(m.revealGen, m.letterEvery))
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.notesFocused {
		return m.handleNotesKey(msg)
	}
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}

	k := m.keys
	switch m.view.Screen {
	case domain.ScreenHome:
		switch {
		case key.Matches(msg, k.Spin):
			return m, m.call(m.intents.Spin)
		case key.Matches(msg, k.Mode):
			return m, m.call(m.intents.CycleMode)
		case key.Matches(msg, k.Permission):
			m.status = "checking microphone…"
			return m, m.call(m.intents.RequestPermission)
		case key.Matches(msg, k.ThinkLess):
			return m, m.adjust(usecase.ManualThink, -manualStep)
		case key.Matches(msg, k.ThinkMore):
			return m, m.adjust(usecase.ManualThink, manualStep)
		case key.Matches(msg, k.SpeakLess):
			return m, m.adjust(usecase.ManualSpeak, -manualStep)
		case key.Matches(msg, k.SpeakMore):
			return m, m.adjust(usecase.ManualSpeak, manualStep)
		}

	case domain.ScreenWordReveal:
		switch {
		case key.Matches(msg, k.Back):
			return m, m.call(m.intents.Back)
		case !m.view.ActionsReady:
		case key.Matches(msg, k.Start):
			return m, m.call(m.intents.Start)
		case key.Matches(msg, k.SpinAgain):
			return m, m.call(m.intents.Spin)
		}

	case domain.ScreenThink:
		switch {
		case key.Matches(msg, k.Skip):
			return m, m.call(m.intents.Skip)
		case key.Matches(msg, k.Back):
			return m, m.call(m.intents.Back)
		}

	case domain.ScreenSpeak:
		if key.Matches(msg, k.Back) {
			return m, m.call(m.intents.Back)
		}

	case domain.ScreenPlayback:
		switch {
		case key.Matches(msg, k.Play):
			return m, m.call(m.intents.TogglePlayback)
		case key.Matches(msg, k.Continue):
			return m, m.call(m.intents.Continue)
		case key.Matches(msg, k.Back):
			return m, m.call(m.intents.Back)
		}

	case domain.ScreenReflect:
		switch {
		case key.Matches(msg, k.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, k.Down):
			if m.cursor < len(domain.Criteria)-1 {
				m.cursor++
			}
		case key.Matches(msg, k.Rate):
			criterion := domain.Criteria[m.cursor]
			rating := domain.Rating(msg.Runes[0] - '0')
			if m.cursor < len(domain.Criteria)-1 {
				m.cursor++
			}
			return m, m.call(func(ctx context.Context) error {
				return m.intents.Rate(ctx, criterion, rating)
			})
		case key.Matches(msg, k.Notes):
			m.notesFocused = true
			cmd := m.notes.Focus()
			return m, cmd
		case key.Matches(msg, k.Done):
			return m, m.finish()
		case key.Matches(msg, k.Back):
			return m, m.syncNotesThen(m.intents.Back)
		}

	case domain.ScreenScoreSummary:
		switch {
		case key.Matches(msg, k.Again):
			return m, m.call(m.intents.NewSession)
		case key.Matches(msg, k.Replay):
			return m, m.call(m.intents.Replay)
		}
	}
	return m, nil
}

func (m Model) handleNotesKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "tab", "esc":
		m.notesFocused = false
		m.notes.Blur()
		return m, m.syncNotesThen(nil)
	case "ctrl+s":
		m.notesFocused = false
		m.notes.Blur()
		return m, m.finish()
	}
	var cmd tea.Cmd
	m.notes, cmd = m.notes.Update(msg)
	return m, cmd
}

func (m Model) finish() tea.Cmd {
	return m.syncNotesThen(m.intents.Done)
}

// syncNotesThen stores the notes draft and then runs next in the same
// command, so the two intents cannot reorder.
func (m Model) syncNotesThen(next func(context.Context) error) tea.Cmd {
	notes := m.notes.Value()
	return m.call(func(ctx context.Context) error {
		if err := m.intents.SetNotes(ctx, notes); err != nil {
			return err
		}
		if next == nil {
			return nil
		}
		return next(ctx)
	})
}

func (m Model) adjust(field usecase.ManualField, delta int) tea.Cmd {
	if m.view.Mode != domain.ModeManual {
		return nil
	}
	return m.call(func(ctx context.Context) error {
		return m.intents.AdjustManual(ctx, field, delta)
	})
}

// call queues fn behind every intent issued before it. The returned
// command only waits for the result.
func (m Model) call(fn func(context.Context) error) tea.Cmd {
	ctx := m.ctx
	done := m.queue.push(fn)
	return func() tea.Msg {
		select {
		case err := <-done:
			return intentDoneMsg{err: err}
		case <-ctx.Done():
			return nil
		}
	}
}

func revealTick(gen int, after time.Duration) tea.Cmd {
	return tea.Tick(after, func(time.Time) tea.Msg { return revealTickMsg{gen: gen} })
}

func statusFor(err error) string {
	switch {
	case errors.Is(err, usecase.ErrIllegalTransition):
		return ""
	case errors.Is(err, usecase.ErrRatingsIncomplete):
		return "rate every criterion before finishing"
	case errors.Is(err, usecase.ErrNoRecording), errors.Is(err, usecase.ErrPlaybackUnavailable):
		return "playback unavailable"
	case errors.Is(err, context.Canceled):
		return ""
	default:
		return err.Error()
	}
}

func savedStatus(session domain.Session) string {
	switch session.Status {
	case domain.SessionStatusCancelled:
		return fmt.Sprintf("session on %q cancelled", session.Word)
	case domain.SessionStatusFailed:
		return fmt.Sprintf("session on %q failed", session.Word)
	}
	if session.OverallScore != nil {
		return fmt.Sprintf("saved %q · %.1f", session.Word, *session.OverallScore)
	}
	return fmt.Sprintf("saved %q", session.Word)
}

// ─── view ────────────────────────────────────────────────────────────────────

func (m Model) View() string {
	body := m.renderScreen()
	footer := m.help.ShortHelpView(m.keys.forScreen(m.view, m.notesFocused))
	if m.status != "" {
		footer = theme.Muted.Render(m.status) + "\n" + footer
	}
	content := lipgloss.JoinVertical(lipgloss.Center,
		m.renderHeader(),
		theme.PaneActive.Render(body),
		footer,
	)
	if m.width == 0 || m.height == 0 {
		return content
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
}

func (m Model) renderHeader() string {
	mode := theme.Hot.Render(string(m.view.Mode))
	if m.view.ModeDescriptor != "" {
		mode += theme.Muted.Render(" · " + m.view.ModeDescriptor)
	}
	return theme.Title.Render("impromptu") + "  " + mode
}

func (m Model) renderScreen() string {
	if !m.received {
		return theme.Muted.Render("starting…")
	}
	v := m.view
	switch v.Screen {
	case domain.ScreenHome:
		return m.renderHome()
	case domain.ScreenWordReveal:
		word := theme.Word.Render(m.revealText())
		if !v.ActionsReady {
			return word
		}
		return lipgloss.JoinVertical(lipgloss.Center, word, "", theme.Muted.Render("ready when you are"))
	case domain.ScreenThink:
		return lipgloss.JoinVertical(lipgloss.Center,
			theme.Word.Render(v.Word), "",
			theme.Muted.Render("think"), m.renderTimer(v.Think),
		)
	case domain.ScreenSpeak:
		rec := theme.Muted.Render("not recording")
		switch {
		case v.Recording:
			rec = theme.Alert.Render("● recording")
		case v.AudioNotice != "":
			rec = theme.Muted.Render(v.AudioNotice)
		}
		return lipgloss.JoinVertical(lipgloss.Center,
			theme.Word.Render(v.Word), "",
			theme.Muted.Render("speak"), m.renderTimer(v.Speak), "", rec,
		)
	case domain.ScreenPlayback:
		return lipgloss.JoinVertical(lipgloss.Center,
			theme.Word.Render(v.Word), "", m.renderAudio(),
		)
	case domain.ScreenReflect:
		return m.renderReflect()
	case domain.ScreenScoreSummary:
		return m.renderSummary()
	}
	return ""
}

func (m Model) renderHome() string {
	v := m.view
	lines := []string{theme.Muted.Render("spin for a word, think, then speak")}
	if v.Mode == domain.ModeManual {
		lines = append(lines, fmt.Sprintf("think %ds · speak %ds", v.ManualThink, v.ManualSpeak))
	}
	lines = append(lines, "", micStatus(v))
	if m.saved > 0 {
		lines = append(lines, theme.Muted.Render(fmt.Sprintf("%d session(s) saved this run", m.saved)))
	}
	return lipgloss.JoinVertical(lipgloss.Center, lines...)
}

func micStatus(v domain.View) string {
	switch {
	case !v.RecordingSupported:
		return theme.Muted.Render("recording unavailable on this system")
	case v.RequestingPermission:
		return theme.Muted.Render("checking microphone…")
	case v.Permission == domain.PermissionGranted:
		return theme.Good.Render("microphone ready")
	case v.Permission == domain.PermissionDenied:
		return theme.Alert.Render("microphone unavailable")
	}
	return theme.Muted.Render("microphone not checked")
}

// revealText shows settled letters and scrambles the rest.
func (m Model) revealText() string {
	runes := []rune(m.view.Word)
	var b strings.Builder
	for i, r := range runes {
		if i < m.settled || r == ' ' {
			b.WriteRune(r)
			continue
		}
		b.WriteByte(scrambleRune[(m.frame*7+i*11+m.revealGen)%len(scrambleRune)])
	}
	return b.String()
}

func (m Model) renderTimer(t domain.TimerState) string {
	clock := fmt.Sprintf("%d:%02d", t.SecondsRemaining/60, t.SecondsRemaining%60)
	style := theme.Timer
	if t.IsRunning && t.SecondsRemaining <= 5 {
		style = theme.TimerLate
	}
	percent := 0.0
	if t.TotalSeconds > 0 {
		percent = float64(t.SecondsRemaining) / float64(t.TotalSeconds)
	}
	return lipgloss.JoinVertical(lipgloss.Center, style.Render(clock), m.bar.ViewAs(percent))
}

func (m Model) renderAudio() string {
	v := m.view
	switch {
	case v.Finalizing:
		return theme.Muted.Render("saving recording…")
	case v.Audio == nil:
		return theme.Muted.Render("no recording")
	case !v.Audio.Available:
		return theme.Muted.Render(domain.AudioErrorMessage(v.Audio.ErrorCode))
	}
	length := ""
	if v.Audio.DurationMs != nil {
		length = (time.Duration(*v.Audio.DurationMs) * time.Millisecond).Round(100 * time.Millisecond).String()
	}
	if v.Playing {
		return theme.Good.Render("▶ playing " + length)
	}
	return theme.Muted.Render("❚❚ " + length)
}

func (m Model) renderReflect() string {
	lines := make([]string, 0, len(domain.Criteria)+4)
	for i, c := range domain.Criteria {
		label := fmt.Sprintf("%-22s", criterionLabels[c])
		if i == m.cursor && !m.notesFocused {
			label = theme.Selected.Render(label)
		}
		lines = append(lines, label+"  "+ratingDots(m.view.Ratings[c]))
	}
	lines = append(lines, "", theme.Muted.Render("notes"), m.notes.View())
	if m.view.CanComplete {
		lines = append(lines, theme.Good.Render("all criteria rated"))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func ratingDots(r domain.Rating) string {
	if r == 0 {
		return theme.Muted.Render("·····")
	}
	return theme.Hot.Render(strings.Repeat("●", int(r))) +
		theme.Muted.Render(strings.Repeat("○", int(domain.MaxRating-r)))
}

func (m Model) renderSummary() string {
	v := m.view
	score := "–"
	if v.OverallScore != nil {
		score = fmt.Sprintf("%.1f", *v.OverallScore)
	}
	lines := []string{
		theme.Word.Render(v.Word), "",
		theme.Muted.Render("overall"),
		theme.Hot.Render(score),
	}
	if v.Audio != nil && v.Audio.Available {
		lines = append(lines, "", m.renderAudio())
	}
	return lipgloss.JoinVertical(lipgloss.Center, lines...)
}
