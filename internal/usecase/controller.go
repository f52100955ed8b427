package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"impromptu/internal/domain"
	"impromptu/internal/modes"
	"impromptu/internal/ports"
	"impromptu/internal/scoring"
	"impromptu/internal/timer"
)

var (
	ErrInvalidRating       = errors.New("rating must be between 1 and 5")
	ErrUnknownCriterion    = errors.New("unknown rating criterion")
	ErrNoRecording         = errors.New("no recording available")
	ErrPlaybackUnavailable = errors.New("playback unavailable")
)

// Capture is the audio capture surface the controller drives.
type Capture interface {
	Supported() bool
	IsRecording() bool
	Result() *domain.AudioCaptureResult
	Start(ctx context.Context) *domain.AudioCaptureResult
	Stop(ctx context.Context) *domain.AudioCaptureResult
	Abandon(ctx context.Context) *domain.AudioCaptureResult
	Detach() func()
	ProbePermission(ctx context.Context) domain.PermissionState
}

type noopSink struct{}

func (noopSink) ViewChanged(domain.View)         {}
func (noopSink) SessionRecorded(domain.Session) {}

// ManualField selects which manual duration AdjustManual changes.
type ManualField string

const (
	ManualThink ManualField = "think"
	ManualSpeak ManualField = "speak"
)

// Config controls lifecycle pacing.
type Config struct {
	DefaultMode     domain.Mode
	StopTimeout     time.Duration
	ThinkStartDelay time.Duration
	SpeakStartDelay time.Duration
	ActionsDelay    time.Duration
	SpinTicks       int
	SpinTickEvery   time.Duration
}

func (c Config) withDefaults() Config {
	if c.DefaultMode == "" {
		c.DefaultMode = domain.ModeExplanation
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 5 * time.Second
	}
	if c.ThinkStartDelay <= 0 {
		c.ThinkStartDelay = 500 * time.Millisecond
	}
	if c.SpeakStartDelay <= 0 {
		c.SpeakStartDelay = 300 * time.Millisecond
	}
	if c.ActionsDelay <= 0 {
		c.ActionsDelay = 400 * time.Millisecond
	}
	if c.SpinTicks <= 0 {
		c.SpinTicks = 26
	}
	if c.SpinTickEvery <= 0 {
		c.SpinTickEvery = 60 * time.Millisecond
	}
	return c
}

// Deps are the collaborators of a SessionController. Cues and Players may be nil.
type Deps struct {
	Scheduler ports.Scheduler
	Capture   Capture
	Store     SessionStore
	Words     ports.WordSource
	Modes     ports.ModeTable
	Cues      ports.CuePlayer
	Players   ports.PlayerFactory
	Events    ports.EventSink
	Clock     ports.Clock
	IDs       ports.IDGenerator
	Logger    *slog.Logger
}

// SessionController owns the practice lifecycle. It is not safe for
// concurrent use: every method and callback must run on the scheduler's
// logical thread.
type SessionController struct {
	sched     ports.Scheduler
	capture   Capture
	store     SessionStore
	words     ports.WordSource
	modes     ports.ModeTable
	cues      ports.CuePlayer
	players   ports.PlayerFactory
	events    ports.EventSink
	clock     ports.Clock
	ids       ports.IDGenerator
	logger    *slog.Logger
	finalizer sessionFinalizer
	cfg       Config

	screen      domain.Screen
	mode        domain.Mode
	manualThink int
	manualSpeak int

	word         string
	used         map[string]struct{}
	revealing    bool
	actionsReady bool

	think   *timer.Countdown
	speak   *timer.Countdown
	lastCue int
	pending []ports.Handle

	run     uint64
	current *activeSession
	// summary is the completed session shown on SCORE_SUMMARY.
	summary *domain.Session

	permission           domain.PermissionState
	requestingPermission bool

	player    ports.Player
	playing   bool
	playedOut bool
	closed    bool
}

func NewSessionController(deps Deps, cfg Config) *SessionController {
	cfg = cfg.withDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	events := deps.Events
	if events == nil {
		events = noopSink{}
	}
	c := &SessionController{
		sched:       deps.Scheduler,
		capture:     deps.Capture,
		store:       deps.Store,
		words:       deps.Words,
		modes:       deps.Modes,
		cues:        deps.Cues,
		players:     deps.Players,
		events:      events,
		clock:       deps.Clock,
		ids:         deps.IDs,
		logger:      logger,
		finalizer:   newSessionFinalizer(deps.Store, deps.Clock),
		cfg:         cfg,
		screen:      domain.ScreenHome,
		mode:        cfg.DefaultMode,
		manualThink: 30,
		manualSpeak: 60,
		used:        make(map[string]struct{}),
		permission:  domain.PermissionUnknown,
	}
	modeCfg := c.modes.ConfigFor(c.mode)
	c.think = timer.New(c.sched, modeCfg.ThinkSeconds,
		timer.WithTick(c.onThinkTick),
		timer.WithCompletion(c.onThinkComplete),
	)
	c.speak = timer.New(c.sched, modeCfg.SpeakSeconds,
		timer.WithTick(c.onSpeakTick),
		timer.WithCompletion(c.onSpeakComplete),
	)
	return c
}

// Screen returns the current lifecycle phase.
func (c *SessionController) Screen() domain.Screen { return c.screen }

// Session returns the in-flight or just-completed session, if any.
func (c *SessionController) Session() (domain.Session, bool) {
	if c.current != nil {
		return c.current.record.Clone(), true
	}
	if c.summary != nil {
		return c.summary.Clone(), true
	}
	return domain.Session{}, false
}

// Refresh re-emits the current view.
func (c *SessionController) Refresh() {
	c.emit()
}

// Spin picks a new topic word and enters the reveal.
func (c *SessionController) Spin() error {
	if err := c.transition(eventSpin); err != nil {
		return err
	}

	if len(c.used) >= c.words.Size() {
		c.used = make(map[string]struct{})
	}
	c.word = c.words.PickWord(c.used)
	c.used[c.word] = struct{}{}
	c.revealing = true
	c.actionsReady = false

	c.cue(domain.CueWhirr)
	for i := 1; i <= c.cfg.SpinTicks; i++ {
		c.later(time.Duration(i)*c.cfg.SpinTickEvery, func() { c.cue(domain.CueTick) })
	}
	c.emit()
	return nil
}

// LetterSettled plays the per-letter reveal cue.
func (c *SessionController) LetterSettled() {
	if c.screen == domain.ScreenWordReveal && c.revealing {
		c.cue(domain.CueTock)
	}
}

// RevealComplete ends the reveal animation; actions appear shortly after.
func (c *SessionController) RevealComplete() error {
	if c.screen != domain.ScreenWordReveal {
		return fmt.Errorf("%w: reveal complete on %s", ErrIllegalTransition, c.screen)
	}
	if !c.revealing {
		return nil
	}
	c.revealing = false
	c.cue(domain.CueThum)
	c.later(c.cfg.ActionsDelay, func() {
		c.actionsReady = true
		c.emit()
	})
	c.emit()
	return nil
}

// Start creates and persists the session and begins the think phase.
func (c *SessionController) Start() error {
	if err := c.transition(eventStart); err != nil {
		return err
	}

	thinkSeconds, speakSeconds := c.effectiveDurations()
	c.run++
	record := domain.Session{
		ID:           c.ids.New(),
		CreatedAt:    c.clock.Now(),
		Mode:         c.mode,
		Word:         c.word,
		ThinkSeconds: thinkSeconds,
		SpeakSeconds: speakSeconds,
		Status:       domain.SessionStatusCompleted,
	}
	c.current = newActiveSession(record, c.run)
	c.summary = nil
	c.store.Save(context.Background(), record)

	c.lastCue = 0
	c.think.Reset(thinkSeconds)
	c.speak.Reset(speakSeconds)
	c.cue(domain.CueAmbientStart)
	c.later(c.cfg.ThinkStartDelay, func() {
		c.think.Start()
		c.emit()
	})
	c.logger.Info("session started", "session_id", record.ID, "mode", record.Mode, "think", thinkSeconds, "speak", speakSeconds)
	c.emit()
	return nil
}

// Skip ends the think phase early.
func (c *SessionController) Skip() error {
	return c.enterSpeak(eventSkip)
}

// Back navigates backwards; from THINK, SPEAK or PLAYBACK it abandons the session.
func (c *SessionController) Back() error {
	if cancellable(c.screen) {
		return c.cancel(domain.CancelReasonUserBack)
	}
	if err := c.transition(eventBack); err != nil {
		return err
	}
	if c.screen == domain.ScreenHome {
		c.word = ""
		c.revealing = false
		c.actionsReady = false
	}
	c.emit()
	return nil
}

// Background abandons an in-flight session when the app loses visibility.
// It is a no-op on other screens.
func (c *SessionController) Background() error {
	if !cancellable(c.screen) {
		return nil
	}
	return c.cancel(domain.CancelReasonAppBackground)
}

// Continue leaves playback for reflection.
func (c *SessionController) Continue() error {
	if err := c.transition(eventContinue); err != nil {
		return err
	}
	c.pausePlayback()
	c.emit()
	return nil
}

// TogglePlayback plays or pauses the recording on PLAYBACK.
func (c *SessionController) TogglePlayback() error {
	if c.screen != domain.ScreenPlayback {
		return fmt.Errorf("%w: toggle playback on %s", ErrIllegalTransition, c.screen)
	}
	if c.playing {
		c.pausePlayback()
		c.emit()
		return nil
	}
	if err := c.ensurePlayer(); err != nil {
		return err
	}
	if c.playedOut {
		if err := c.player.Rewind(); err != nil {
			c.logger.Warn("rewind failed", "error", err)
		}
	}
	if err := c.player.Play(); err != nil {
		c.logger.Warn("playback failed", "error", err)
		return fmt.Errorf("%w: %v", ErrPlaybackUnavailable, err)
	}
	c.playing = true
	c.playedOut = false
	c.emit()
	return nil
}

// Replay restarts the recording from the beginning on SCORE_SUMMARY.
func (c *SessionController) Replay() error {
	if c.screen != domain.ScreenScoreSummary {
		return fmt.Errorf("%w: replay on %s", ErrIllegalTransition, c.screen)
	}
	if err := c.ensurePlayer(); err != nil {
		return err
	}
	if err := c.player.Rewind(); err != nil {
		c.logger.Warn("rewind failed", "error", err)
	}
	if err := c.player.Play(); err != nil {
		c.logger.Warn("playback failed", "error", err)
		return fmt.Errorf("%w: %v", ErrPlaybackUnavailable, err)
	}
	c.playing = true
	c.playedOut = false
	c.emit()
	return nil
}

// Rate records one criterion during reflection.
func (c *SessionController) Rate(criterion domain.Criterion, rating domain.Rating) error {
	if c.screen != domain.ScreenReflect || c.current == nil {
		return fmt.Errorf("%w: rate on %s", ErrIllegalTransition, c.screen)
	}
	if !domain.KnownCriterion(criterion) {
		return fmt.Errorf("%w: %q", ErrUnknownCriterion, criterion)
	}
	if !rating.Valid() {
		return fmt.Errorf("%w: got %d", ErrInvalidRating, rating)
	}
	c.current.ratings[criterion] = rating
	c.emit()
	return nil
}

// SetNotes replaces the free-form reflection notes.
func (c *SessionController) SetNotes(notes string) error {
	if c.screen != domain.ScreenReflect || c.current == nil {
		return fmt.Errorf("%w: notes on %s", ErrIllegalTransition, c.screen)
	}
	c.current.notes = notes
	c.emit()
	return nil
}

// Done completes the session once every criterion is rated.
func (c *SessionController) Done() error {
	if _, err := nextScreen(c.screen, eventDone); err != nil || c.current == nil {
		return fmt.Errorf("%w: done on %s", ErrIllegalTransition, c.screen)
	}
	if !scoring.HasAllRatings(c.current.ratings) {
		return ErrRatingsIncomplete
	}

	completed, err := c.finalizer.Complete(context.Background(), c.current)
	if err != nil {
		return err
	}
	c.summary = &completed
	if err := c.transition(eventDone); err != nil {
		c.summary = nil
		return err
	}
	c.current = nil
	c.pausePlayback()
	c.logger.Info("session completed", "session_id", completed.ID, "score", *completed.OverallScore)
	c.events.SessionRecorded(completed)
	c.emit()
	return nil
}

// NewSession returns home and clears everything tied to the finished run.
func (c *SessionController) NewSession() error {
	if err := c.transition(eventNewSession); err != nil {
		return err
	}
	c.closePlayer()
	c.releaseCapture()
	c.summary = nil
	c.current = nil
	c.word = ""
	c.revealing = false
	c.actionsReady = false
	c.used = make(map[string]struct{})
	c.permission = domain.PermissionUnknown
	c.emit()
	return nil
}

// CycleMode advances to the next mode preset.
func (c *SessionController) CycleMode() error {
	if c.screen != domain.ScreenHome {
		return fmt.Errorf("%w: mode change on %s", ErrIllegalTransition, c.screen)
	}
	c.mode = c.modes.Next(c.mode)
	c.emit()
	return nil
}

// AdjustManual changes a manual duration by delta seconds, clamped.
func (c *SessionController) AdjustManual(field ManualField, delta int) error {
	if c.screen != domain.ScreenHome {
		return fmt.Errorf("%w: manual timing on %s", ErrIllegalTransition, c.screen)
	}
	switch field {
	case ManualThink:
		c.manualThink = modes.ClampManual(c.manualThink + delta)
	case ManualSpeak:
		c.manualSpeak = modes.ClampManual(c.manualSpeak + delta)
	default:
		return fmt.Errorf("unknown manual field %q", field)
	}
	c.emit()
	return nil
}

// RequestPermission probes microphone access from HOME.
func (c *SessionController) RequestPermission() error {
	if c.screen != domain.ScreenHome {
		return fmt.Errorf("%w: permission request on %s", ErrIllegalTransition, c.screen)
	}
	if c.requestingPermission || !c.capture.Supported() {
		return nil
	}
	c.requestingPermission = true
	c.emit()

	var state domain.PermissionState
	c.sched.Go(func() {
		state = c.capture.ProbePermission(context.Background())
	}, func() {
		c.requestingPermission = false
		c.permission = state
		c.emit()
	})
	return nil
}

// Close abandons any in-flight session and releases timers, playback and capture.
func (c *SessionController) Close() {
	if c.closed {
		return
	}
	if cancellable(c.screen) {
		_ = c.cancel(domain.CancelReasonAppBackground)
	}
	c.closed = true
	c.clearPending()
	c.think.Dispose()
	c.speak.Dispose()
	c.closePlayer()
	c.capture.Detach()()
}

func (c *SessionController) enterSpeak(event lifecycleEvent) error {
	if err := c.transition(event); err != nil {
		return err
	}
	active := c.current
	c.think.Pause()
	c.lastCue = 0
	c.speak.Reset(active.record.SpeakSeconds)
	c.cue(domain.CueToneShift)

	run := c.run
	var result *domain.AudioCaptureResult
	c.sched.Go(func() {
		result = c.capture.Start(context.Background())
	}, func() {
		if run != c.run || c.screen != domain.ScreenSpeak {
			return
		}
		active.audio = result
		c.later(c.cfg.SpeakStartDelay, func() {
			c.speak.Start()
			c.emit()
		})
		c.emit()
	})
	c.emit()
	return nil
}

func (c *SessionController) onThinkTick(remaining int) {
	c.countdownCue(remaining)
	c.emit()
}

func (c *SessionController) onSpeakTick(remaining int) {
	c.countdownCue(remaining)
	c.emit()
}

func (c *SessionController) onThinkComplete() {
	if c.screen != domain.ScreenThink {
		return
	}
	if err := c.enterSpeak(eventThinkDone); err != nil {
		c.logger.Error("think completion rejected", "error", err)
	}
}

func (c *SessionController) onSpeakComplete() {
	if c.screen != domain.ScreenSpeak || c.current == nil || c.current.finalizing {
		return
	}
	active := c.current
	c.speak.Pause()
	active.finalizing = true
	c.emit()

	run := c.run
	var result *domain.AudioCaptureResult
	c.sched.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.StopTimeout)
		defer cancel()
		result = c.capture.Stop(ctx)
	}, func() {
		if run != c.run {
			return
		}
		active.finalizing = false
		if result != nil {
			active.audio = result
		}
		if err := c.transition(eventSpeakDone); err != nil {
			c.logger.Error("speak completion rejected", "error", err)
			return
		}
		c.emit()
	})
}

// countdownCue fires at most once per remaining value in 5..1.
func (c *SessionController) countdownCue(remaining int) {
	if remaining < 1 || remaining > 5 || remaining == c.lastCue {
		return
	}
	c.lastCue = remaining
	c.cue(domain.CueCountdownTick)
}

func (c *SessionController) cancel(reason domain.CancelReason) error {
	if err := c.transition(eventCancel); err != nil {
		return err
	}
	c.think.Pause()
	c.speak.Pause()
	c.run++

	active := c.current
	c.current = nil
	c.closePlayer()

	if active == nil {
		c.releaseCapture()
		c.emit()
		return nil
	}

	recording := c.capture.IsRecording() || active.finalizing
	if snapshot := c.capture.Result(); snapshot != nil {
		active.audio = snapshot
	}
	cancelled := c.finalizer.Cancel(context.Background(), active, reason)
	c.logger.Info("session cancelled", "session_id", cancelled.ID, "reason", reason, "recording", recording)

	if recording {
		// Best-effort: the settled recording is attached once the stop finishes.
		var result *domain.AudioCaptureResult
		id := cancelled.ID
		c.sched.Go(func() {
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.StopTimeout)
			defer cancel()
			result = c.capture.Abandon(ctx)
		}, func() {
			if result != nil {
				c.store.Update(context.Background(), id, domain.SessionPatch{Audio: result})
			}
		})
	} else {
		c.releaseCapture()
	}

	c.word = ""
	c.revealing = false
	c.actionsReady = false
	c.events.SessionRecorded(cancelled)
	c.emit()
	return nil
}

// transition applies one state-machine step and drops delays tied to the old phase.
func (c *SessionController) transition(event lifecycleEvent) error {
	next, err := nextScreen(c.screen, event)
	if err != nil {
		c.logger.Debug("rejected transition", "screen", c.screen, "event", event)
		return err
	}
	if next == domain.ScreenScoreSummary && (c.summary == nil || c.summary.OverallScore == nil) {
		return fmt.Errorf("%w: score summary without an overall score", ErrUnreachableState)
	}
	c.clearPending()
	c.screen = next
	return nil
}

func (c *SessionController) later(delay time.Duration, fn func()) {
	c.pending = append(c.pending, c.sched.After(delay, fn))
}

func (c *SessionController) clearPending() {
	for _, h := range c.pending {
		h.Cancel()
	}
	c.pending = nil
}

func (c *SessionController) effectiveDurations() (int, int) {
	if c.mode == domain.ModeManual {
		return c.manualThink, c.manualSpeak
	}
	cfg := c.modes.ConfigFor(c.mode)
	return cfg.ThinkSeconds, cfg.SpeakSeconds
}

func (c *SessionController) cue(cue domain.Cue) {
	if c.cues != nil {
		c.cues.Play(cue)
	}
}

func (c *SessionController) releaseCapture() {
	c.sched.Go(c.capture.Detach(), nil)
}

func (c *SessionController) playbackAudio() *domain.AudioCaptureResult {
	if c.current != nil {
		return c.current.audio
	}
	if c.summary != nil {
		return c.summary.Audio
	}
	return nil
}

func (c *SessionController) ensurePlayer() error {
	audio := c.playbackAudio()
	if audio == nil || !audio.Available || audio.FileURI == "" {
		return ErrNoRecording
	}
	if c.player != nil {
		return nil
	}
	if c.players == nil {
		return ErrPlaybackUnavailable
	}
	run := c.run
	var player ports.Player
	onEnded := func() {
		c.sched.Post(func() {
			if run != c.run || c.player != player {
				return
			}
			c.playing = false
			c.playedOut = true
			c.emit()
		})
	}
	opened, err := c.players.Open(audio.FileURI, onEnded)
	if err != nil {
		c.logger.Warn("failed to open recording", "uri", audio.FileURI, "error", err)
		return fmt.Errorf("%w: %v", ErrPlaybackUnavailable, err)
	}
	player = opened
	c.player = opened
	return nil
}

func (c *SessionController) pausePlayback() {
	if c.player != nil && c.playing {
		if err := c.player.Pause(); err != nil {
			c.logger.Warn("pause failed", "error", err)
		}
	}
	c.playing = false
}

func (c *SessionController) closePlayer() {
	c.pausePlayback()
	if c.player != nil {
		_ = c.player.Close()
		c.player = nil
	}
	c.playedOut = false
}

func (c *SessionController) emit() {
	if !c.closed {
		c.events.ViewChanged(c.View())
	}
}

// View builds the presentation snapshot.
func (c *SessionController) View() domain.View {
	modeCfg := c.modes.ConfigFor(c.mode)
	view := domain.View{
		Screen:               c.screen,
		Mode:                 c.mode,
		ModeDescriptor:       modeCfg.Descriptor,
		ManualThink:          c.manualThink,
		ManualSpeak:          c.manualSpeak,
		Word:                 c.word,
		Revealing:            c.revealing,
		ActionsReady:         c.actionsReady,
		Think:                c.think.State(),
		Speak:                c.speak.State(),
		RecordingSupported:   c.capture.Supported(),
		Permission:           c.permission,
		RequestingPermission: c.requestingPermission,
		Recording:            c.capture.IsRecording(),
		Playing:              c.playing,
		Ratings:              domain.RatingDraft{},
	}
	if c.screen == domain.ScreenHome {
		view.Think.TotalSeconds, view.Speak.TotalSeconds = c.effectiveDurations()
		view.Think.SecondsRemaining = view.Think.TotalSeconds
		view.Speak.SecondsRemaining = view.Speak.TotalSeconds
		view.Think.IsRunning, view.Speak.IsRunning = false, false
	}

	if c.current != nil {
		view.SessionID = c.current.record.ID
		view.Word = c.current.record.Word
		view.Finalizing = c.current.finalizing
		view.Ratings = c.current.ratings.Clone()
		view.Notes = c.current.notes
		view.CanComplete = scoring.HasAllRatings(c.current.ratings)
	}
	if c.summary != nil {
		view.SessionID = c.summary.ID
		view.Word = c.summary.Word
		view.OverallScore = c.summary.OverallScore
		if c.summary.Ratings != nil {
			for i, value := range c.summary.Ratings.Values() {
				view.Ratings[domain.Criteria[i]] = value
			}
		}
		if c.summary.Notes != nil {
			view.Notes = *c.summary.Notes
		}
	}

	if audio := c.playbackAudio(); audio != nil {
		view.Audio = audio.Clone()
		if !audio.Available && audio.ErrorCode != "" {
			view.AudioNotice = domain.AudioErrorMessage(audio.ErrorCode)
		}
	}
	if c.screen == domain.ScreenPlayback && view.Audio == nil {
		view.AudioNotice = domain.AudioErrorMessage(domain.AudioErrorUnknown)
	}
	return view
}
