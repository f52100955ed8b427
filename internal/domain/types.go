package domain

import "time"

// Mode names a practice preset with its own think/speak defaults.
type Mode string

const (
	ModeExplanation Mode = "EXPLANATION"
	ModeStory       Mode = "STORY"
	ModeDebate      Mode = "DEBATE"
	ModeElevator    Mode = "ELEVATOR"
	ModeSpeed       Mode = "SPEED"
	ModeManual      Mode = "MANUAL"
)

// Screen models the session lifecycle phase shown to the user.
type Screen string

const (
	ScreenHome         Screen = "HOME"
	ScreenWordReveal   Screen = "WORD_REVEAL"
	ScreenThink        Screen = "THINK"
	ScreenSpeak        Screen = "SPEAK"
	ScreenPlayback     Screen = "PLAYBACK"
	ScreenReflect      Screen = "REFLECT"
	ScreenScoreSummary Screen = "SCORE_SUMMARY"
)

// SessionStatus is the terminal classification of a session.
type SessionStatus string

const (
	SessionStatusCompleted SessionStatus = "COMPLETED"
	SessionStatusCancelled SessionStatus = "CANCELLED"
	SessionStatusFailed    SessionStatus = "FAILED"
)

// CancelReason records what interrupted a cancelled session.
type CancelReason string

const (
	CancelReasonUserBack         CancelReason = "USER_BACK"
	CancelReasonAppBackground    CancelReason = "APP_BACKGROUND"
	CancelReasonError            CancelReason = "ERROR"
	CancelReasonPermissionDenied CancelReason = "PERMISSION_DENIED"
	CancelReasonAudioInterrupted CancelReason = "AUDIO_INTERRUPTED"
)

// AudioErrorCode classifies why no usable audio exists.
type AudioErrorCode string

const (
	AudioErrorMicPermission AudioErrorCode = "MIC_PERMISSION"
	AudioErrorRecStartFail  AudioErrorCode = "REC_START_FAIL"
	AudioErrorRecStopFail   AudioErrorCode = "REC_STOP_FAIL"
	AudioErrorInterrupted   AudioErrorCode = "INTERRUPTED"
	AudioErrorNoAudio       AudioErrorCode = "NO_AUDIO"
	AudioErrorUnknown       AudioErrorCode = "UNKNOWN"
)

// AudioCaptureResult is the outcome of one recording attempt.
type AudioCaptureResult struct {
	Available          bool           `json:"available"`
	FileURI            string         `json:"fileUri,omitempty"`
	DurationMs         *int64         `json:"durationMs,omitempty"`
	RecordingStartedAt *time.Time     `json:"recordingStartedAt,omitempty"`
	RecordingEndedAt   *time.Time     `json:"recordingEndedAt,omitempty"`
	ErrorCode          AudioErrorCode `json:"errorCode,omitempty"`
}

// Clone returns a deep copy so callers never share pointer fields.
func (r *AudioCaptureResult) Clone() *AudioCaptureResult {
	if r == nil {
		return nil
	}
	out := *r
	if r.DurationMs != nil {
		d := *r.DurationMs
		out.DurationMs = &d
	}
	out.RecordingStartedAt = cloneTime(r.RecordingStartedAt)
	out.RecordingEndedAt = cloneTime(r.RecordingEndedAt)
	return &out
}

// Session is one attempt at the think/speak exercise.
type Session struct {
	ID           string              `json:"id"`
	CreatedAt    time.Time           `json:"createdAt"`
	CompletedAt  *time.Time          `json:"completedAt,omitempty"`
	Mode         Mode                `json:"mode"`
	Word         string              `json:"word"`
	ThinkSeconds int                 `json:"thinkSeconds"`
	SpeakSeconds int                 `json:"speakSeconds"`
	Status       SessionStatus       `json:"status"`
	CancelReason CancelReason        `json:"cancelReason,omitempty"`
	Ratings      *Ratings            `json:"ratings,omitempty"`
	OverallScore *float64            `json:"overallScore,omitempty"`
	Notes        *string             `json:"notes,omitempty"`
	Audio        *AudioCaptureResult `json:"audio,omitempty"`
}

// Clone returns a deep copy of the session.
func (s Session) Clone() Session {
	out := s
	out.CompletedAt = cloneTime(s.CompletedAt)
	if s.Ratings != nil {
		r := *s.Ratings
		out.Ratings = &r
	}
	if s.OverallScore != nil {
		v := *s.OverallScore
		out.OverallScore = &v
	}
	if s.Notes != nil {
		n := *s.Notes
		out.Notes = &n
	}
	out.Audio = s.Audio.Clone()
	return out
}

// SessionPatch carries the fields merged by a store update; nil fields are left untouched.
type SessionPatch struct {
	CompletedAt  *time.Time
	Status       *SessionStatus
	CancelReason *CancelReason
	Ratings      *Ratings
	OverallScore *float64
	Notes        *string
	Audio        *AudioCaptureResult
}

// Apply merges the patch into s.
func (p SessionPatch) Apply(s *Session) {
	if p.CompletedAt != nil {
		s.CompletedAt = cloneTime(p.CompletedAt)
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.CancelReason != nil {
		s.CancelReason = *p.CancelReason
	}
	if p.Ratings != nil {
		r := *p.Ratings
		s.Ratings = &r
	}
	if p.OverallScore != nil {
		v := *p.OverallScore
		s.OverallScore = &v
	}
	if p.Notes != nil {
		n := *p.Notes
		s.Notes = &n
	}
	if p.Audio != nil {
		s.Audio = p.Audio.Clone()
	}
}

// TimerState is the ephemeral state of one countdown.
type TimerState struct {
	SecondsRemaining int  `json:"secondsRemaining"`
	TotalSeconds     int  `json:"totalSeconds"`
	IsRunning        bool `json:"isRunning"`
}

// Cue identifies a short sound effect.
type Cue string

const (
	CueWhirr         Cue = "whirr"
	CueTick          Cue = "tick"
	CueTock          Cue = "tock"
	CueThum          Cue = "thum"
	CueAmbientStart  Cue = "ambient_start"
	CueToneShift     Cue = "tone_shift"
	CueCountdownTick Cue = "countdown_tick"
)

// PermissionState reflects the result of the last microphone probe.
type PermissionState string

const (
	PermissionUnknown PermissionState = "unknown"
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
)

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
