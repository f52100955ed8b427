package domain

// View is the presentation snapshot for the current screen.
type View struct {
	Screen         Screen `json:"screen"`
	Mode           Mode   `json:"mode"`
	ModeDescriptor string `json:"modeDescriptor"`
	ManualThink    int    `json:"manualThinkSeconds"`
	ManualSpeak    int    `json:"manualSpeakSeconds"`

	Word         string `json:"word"`
	Revealing    bool   `json:"revealing"`
	ActionsReady bool   `json:"actionsReady"`

	Think TimerState `json:"think"`
	Speak TimerState `json:"speak"`

	RecordingSupported   bool                `json:"recordingSupported"`
	Permission           PermissionState     `json:"permission"`
	RequestingPermission bool                `json:"requestingPermission"`
	Recording            bool                `json:"recording"`
	Finalizing           bool                `json:"finalizing"`
	Audio                *AudioCaptureResult `json:"audio,omitempty"`
	AudioNotice          string              `json:"audioNotice,omitempty"`
	Playing              bool                `json:"playing"`

	Ratings     RatingDraft `json:"ratings"`
	Notes       string      `json:"notes"`
	CanComplete bool        `json:"canComplete"`

	SessionID    string   `json:"sessionId,omitempty"`
	OverallScore *float64 `json:"overallScore,omitempty"`
}

// AudioErrorMessage returns the short human readable reason shown when a
// recording is unavailable.
func AudioErrorMessage(code AudioErrorCode) string {
	switch code {
	case AudioErrorMicPermission:
		return "Microphone permission denied"
	case AudioErrorRecStartFail:
		return "Failed to start recording"
	case AudioErrorRecStopFail:
		return "Failed to save recording"
	case AudioErrorNoAudio:
		return "No audio captured"
	case AudioErrorInterrupted:
		return "Recording interrupted"
	default:
		return "Recording unavailable"
	}
}
