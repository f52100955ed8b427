package ports

import (
	"context"
	"errors"
	"time"

	"impromptu/internal/domain"
)

var (
	// ErrMicPermissionDenied is returned when the user or OS refuses microphone access.
	ErrMicPermissionDenied = errors.New("microphone permission denied")
	// ErrNoInputDevice is returned when no capture device exists.
	ErrNoInputDevice = errors.New("no audio input device found")
)

// Capabilities reports which platform APIs are present before capture is attempted.
type Capabilities struct {
	SecureContext bool
	Recorder      bool
	MediaDevices  bool
}

// MediaStream is an acquired microphone handle.
type MediaStream interface {
	StopTracks() error
}

// RecorderState mirrors the recorder lifecycle.
type RecorderState string

const (
	RecorderInactive  RecorderState = "inactive"
	RecorderRecording RecorderState = "recording"
)

// RecorderHooks are invoked asynchronously by a recorder.
type RecorderHooks struct {
	OnData  func(chunk []byte)
	OnError func(err error)
	OnStop  func()
}

// Recorder buffers encoded audio from a stream.
type Recorder interface {
	Start(slice time.Duration) error
	RequestData() error
	Stop() error
	State() RecorderState
	MimeType() string
}

// MediaPlatform is the microphone permission and capture surface.
type MediaPlatform interface {
	Capabilities() Capabilities
	RequestMicrophone(ctx context.Context) (MediaStream, error)
	SupportsFormat(mimeType string) bool
	NewRecorder(stream MediaStream, mimeType string, hooks RecorderHooks) (Recorder, error)
}

// Clip is one assembled recording.
type Clip struct {
	URI  string
	Size int64
}

// ClipStore assembles buffered chunks into one playable object.
type ClipStore interface {
	Save(ctx context.Context, mimeType string, chunks [][]byte) (Clip, error)
	Release(uri string) error
}

// Handle cancels a scheduled callback.
type Handle interface {
	Cancel()
}

// Scheduler serializes all callbacks onto one logical thread.
type Scheduler interface {
	Every(interval time.Duration, fn func()) Handle
	After(delay time.Duration, fn func()) Handle
	Post(fn func())
	// Go runs work off the logical thread and then runs then on it.
	Go(work func(), then func())
}

// KeyValueStore is the persistent string store.
type KeyValueStore interface {
	Read(ctx context.Context, key string) (string, bool, error)
	Write(ctx context.Context, key string, value string) error
}

// Player is a playable audio surface.
type Player interface {
	Play() error
	Pause() error
	Rewind() error
	Close() error
}

// PlayerFactory opens playback for a clip URI; onEnded fires off the logical thread.
type PlayerFactory interface {
	Open(uri string, onEnded func()) (Player, error)
}

// CuePlayer plays short sound effects.
type CuePlayer interface {
	Play(cue domain.Cue)
}

// WordSource picks topic words.
type WordSource interface {
	PickWord(excluding map[string]struct{}) string
	Size() int
}

// ModeConfig holds the defaults of one mode.
type ModeConfig struct {
	Name         domain.Mode
	ThinkSeconds int
	SpeakSeconds int
	Descriptor   string
}

// ModeTable resolves mode defaults.
type ModeTable interface {
	ConfigFor(mode domain.Mode) ModeConfig
	Next(mode domain.Mode) domain.Mode
}

// EventSink receives presentation updates.
type EventSink interface {
	ViewChanged(view domain.View)
	SessionRecorded(session domain.Session)
}

// Clock abstracts wall time.
type Clock interface {
	Now() time.Time
}

// IDGenerator creates opaque session identifiers.
type IDGenerator interface {
	New() string
}
