package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"impromptu/internal/domain"
	"impromptu/internal/ports"
)

const DefaultSlice = 100 * time.Millisecond

// DefaultFormats is the encoding preference order; the platform default is
// used when none is supported.
var DefaultFormats = []string{"audio/webm", "audio/mp4", "audio/ogg"}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Controller owns the microphone for one capture attempt at a time. Every
// failure degrades to a structured AudioCaptureResult; no method returns an
// error. It is safe for concurrent use: recorder hooks arrive on platform
// goroutines while Start and Stop run off the event loop.
type Controller struct {
	platform ports.MediaPlatform
	clips    ports.ClipStore
	clock    ports.Clock
	logger   *slog.Logger
	slice    time.Duration
	formats  []string

	mu         sync.Mutex
	caps       *ports.Capabilities
	generation uint64
	stream     ports.MediaStream
	recorder   ports.Recorder
	mimeType   string
	chunks     [][]byte
	recording  bool
	stopping   bool
	stopErr    error
	stopDone   chan struct{}
	startedAt  time.Time
	clipURI    string
	result     *domain.AudioCaptureResult
}

type Option func(*Controller)

func WithClock(clock ports.Clock) Option {
	return func(c *Controller) {
		if clock != nil {
			c.clock = clock
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithSlice(slice time.Duration) Option {
	return func(c *Controller) {
		if slice > 0 {
			c.slice = slice
		}
	}
}

func WithFormats(formats ...string) Option {
	return func(c *Controller) { c.formats = formats }
}

func New(platform ports.MediaPlatform, clips ports.ClipStore, opts ...Option) *Controller {
	c := &Controller{
		platform: platform,
		clips:    clips,
		clock:    systemClock{},
		logger:   slog.Default(),
		slice:    DefaultSlice,
		formats:  DefaultFormats,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Supported reports whether every capture precondition holds. Capabilities
// are looked up once and refreshed by ProbePermission.
func (c *Controller) Supported() bool {
	caps := c.capabilities(false)
	return caps.SecureContext && caps.Recorder && caps.MediaDevices
}

func (c *Controller) capabilities(refresh bool) ports.Capabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.caps == nil || refresh {
		caps := c.platform.Capabilities()
		c.caps = &caps
	}
	return *c.caps
}

func (c *Controller) IsRecording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

// Result returns a copy of the current result, or nil.
func (c *Controller) Result() *domain.AudioCaptureResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result.Clone()
}

// ProbePermission acquires and immediately releases the microphone.
func (c *Controller) ProbePermission(ctx context.Context) domain.PermissionState {
	c.capabilities(true)
	if !c.Supported() {
		return domain.PermissionUnknown
	}
	stream, err := c.platform.RequestMicrophone(ctx)
	if err != nil {
		c.logger.Info("microphone permission probe failed", "error", err)
		return domain.PermissionDenied
	}
	if err := stream.StopTracks(); err != nil {
		c.logger.Warn("failed to release probe stream", "error", err)
	}
	return domain.PermissionGranted
}

// Start attempts to begin recording. Any leftover capture state is released first.
func (c *Controller) Start(ctx context.Context) *domain.AudioCaptureResult {
	c.mu.Lock()
	release := c.detachLocked()
	gen := c.generation
	c.mu.Unlock()
	release()

	if !c.Supported() {
		c.logger.Warn("recording preconditions not met", "capabilities", c.capabilities(false))
		return c.fail(gen, domain.AudioErrorRecStartFail)
	}

	stream, err := c.platform.RequestMicrophone(ctx)
	if err != nil {
		code := classifyAccessError(err)
		c.logger.Warn("microphone access failed", "code", code, "error", err)
		return c.fail(gen, code)
	}

	mimeType := c.pickFormat()
	recorder, err := c.platform.NewRecorder(stream, mimeType, c.hooks(gen))
	if err != nil {
		_ = stream.StopTracks()
		c.logger.Warn("failed to create recorder", "mime_type", mimeType, "error", err)
		return c.fail(gen, domain.AudioErrorRecStartFail)
	}

	now := c.clock.Now()
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		_ = stream.StopTracks()
		return nil
	}
	c.stream = stream
	c.recorder = recorder
	c.mimeType = recorder.MimeType()
	if c.mimeType == "" {
		c.mimeType = mimeType
	}
	c.chunks = nil
	c.recording = true
	c.startedAt = now
	c.result = &domain.AudioCaptureResult{Available: true, RecordingStartedAt: &now}
	c.mu.Unlock()

	if err := recorder.Start(c.slice); err != nil {
		c.logger.Warn("recorder failed to start", "error", err)
		c.mu.Lock()
		if gen == c.generation {
			c.stream = nil
			c.recorder = nil
			c.recording = false
			c.result = &domain.AudioCaptureResult{ErrorCode: domain.AudioErrorRecStartFail}
		}
		out := c.result.Clone()
		c.mu.Unlock()
		_ = stream.StopTracks()
		return out
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		c.logger.Info("capture released while recorder was starting")
		_ = recorder.Stop()
		_ = stream.StopTracks()
		return nil
	}
	mime := c.mimeType
	out := c.result.Clone()
	c.mu.Unlock()

	c.logger.Info("recording started", "mime_type", mime)
	return out
}

// Stop finalizes the active recording and returns once the result is settled
// or ctx expires. Expiry degrades to REC_STOP_FAIL.
func (c *Controller) Stop(ctx context.Context) *domain.AudioCaptureResult {
	result, _ := c.stop(ctx)
	return result
}

// Abandon stops any active recording, then releases all capture state. The
// settled result is returned unless another capture replaced this one meanwhile.
func (c *Controller) Abandon(ctx context.Context) *domain.AudioCaptureResult {
	result, gen := c.stop(ctx)
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return nil
	}
	release := c.detachLocked()
	c.mu.Unlock()
	release()
	return result
}

// Reset forcibly halts and releases everything and clears the result.
func (c *Controller) Reset() {
	c.Detach()()
}

// Detach clears all capture state immediately and returns the slow cleanup
// (recorder stop, track release, clip release) for the caller to run. Cleanup
// errors are ignored.
func (c *Controller) Detach() func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.detachLocked()
}

func (c *Controller) stop(ctx context.Context) (*domain.AudioCaptureResult, uint64) {
	c.mu.Lock()
	gen := c.generation
	recorder := c.recorder
	if recorder == nil || recorder.State() == ports.RecorderInactive {
		c.recording = false
		out := c.result.Clone()
		c.mu.Unlock()
		return out, gen
	}
	done := c.stopDone
	if !c.stopping {
		c.stopping = true
		c.stopErr = nil
		done = make(chan struct{})
		c.stopDone = done

		c.mu.Unlock()
		if err := recorder.RequestData(); err != nil {
			c.logger.Warn("recorder flush failed", "error", err)
		}
		if err := recorder.Stop(); err != nil {
			c.logger.Warn("recorder stop failed", "error", err)
			c.abortStop(gen, done)
		}
	} else {
		c.mu.Unlock()
	}

	select {
	case <-done:
	case <-ctx.Done():
		c.logger.Warn("recording finalization timed out", "error", ctx.Err())
		c.abortStop(gen, done)
	}
	return c.Result(), gen
}

// abortStop settles a stop that will not complete normally.
func (c *Controller) abortStop(gen uint64, done chan struct{}) {
	c.mu.Lock()
	if gen != c.generation || !c.stopping || c.stopDone != done {
		c.mu.Unlock()
		return
	}
	stream := c.stream
	c.stream = nil
	c.recorder = nil
	c.chunks = nil
	c.stopping = false
	c.recording = false
	c.result = merge(c.result, domain.AudioCaptureResult{ErrorCode: domain.AudioErrorRecStopFail})
	close(done)
	c.mu.Unlock()

	if stream != nil {
		_ = stream.StopTracks()
	}
}

func (c *Controller) hooks(gen uint64) ports.RecorderHooks {
	return ports.RecorderHooks{
		OnData:  func(chunk []byte) { c.onData(gen, chunk) },
		OnError: func(err error) { c.onError(gen, err) },
		OnStop:  func() { c.onStop(gen) },
	}
}

func (c *Controller) onData(gen uint64, chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	buf := make([]byte, len(chunk))
	copy(buf, chunk)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation || c.recorder == nil {
		return
	}
	c.chunks = append(c.chunks, buf)
}

func (c *Controller) onError(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	if c.stopping {
		c.stopErr = err
		c.mu.Unlock()
		return
	}
	if !c.recording {
		c.mu.Unlock()
		return
	}
	stream := c.stream
	c.stream = nil
	c.recorder = nil
	c.chunks = nil
	c.recording = false
	c.result = &domain.AudioCaptureResult{ErrorCode: domain.AudioErrorRecStartFail}
	c.mu.Unlock()

	c.logger.Warn("recorder error during capture", "error", err)
	if stream != nil {
		_ = stream.StopTracks()
	}
}

func (c *Controller) onStop(gen uint64) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	if !c.stopping {
		c.interruptedLocked()
		return
	}
	stream := c.stream
	chunks := c.chunks
	mimeType := c.mimeType
	startedAt := c.startedAt
	stopErr := c.stopErr
	done := c.stopDone
	c.mu.Unlock()

	if stream != nil {
		if err := stream.StopTracks(); err != nil {
			c.logger.Warn("failed to release microphone", "error", err)
		}
	}

	endedAt := c.clock.Now()
	patch, clip := c.finalize(mimeType, chunks, startedAt, endedAt, stopErr)

	c.mu.Lock()
	if gen != c.generation || c.stopDone != done || !c.stopping {
		c.mu.Unlock()
		if clip != "" {
			_ = c.clips.Release(clip)
		}
		return
	}
	c.stream = nil
	c.recorder = nil
	c.chunks = nil
	c.clipURI = clip
	c.result = merge(c.result, patch)
	c.stopping = false
	c.recording = false
	close(done)
	c.mu.Unlock()
}

// interruptedLocked handles a recorder that stopped without being asked to.
// It unlocks c.mu.
func (c *Controller) interruptedLocked() {
	if !c.recording {
		c.mu.Unlock()
		return
	}
	stream := c.stream
	c.stream = nil
	c.recorder = nil
	c.chunks = nil
	c.recording = false
	c.result = merge(c.result, domain.AudioCaptureResult{ErrorCode: domain.AudioErrorInterrupted})
	c.mu.Unlock()

	c.logger.Warn("recording interrupted")
	if stream != nil {
		_ = stream.StopTracks()
	}
}

func (c *Controller) finalize(mimeType string, chunks [][]byte, startedAt, endedAt time.Time, stopErr error) (domain.AudioCaptureResult, string) {
	if stopErr != nil {
		c.logger.Warn("recorder failed while stopping", "error", stopErr)
		return domain.AudioCaptureResult{ErrorCode: domain.AudioErrorRecStopFail}, ""
	}

	total := 0
	for _, chunk := range chunks {
		total += len(chunk)
	}
	if total == 0 {
		c.logger.Info("recording produced no audio")
		return domain.AudioCaptureResult{ErrorCode: domain.AudioErrorNoAudio}, ""
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	clip, err := c.clips.Save(ctx, mimeType, chunks)
	if err != nil {
		c.logger.Error("failed to assemble recording", "error", err)
		return domain.AudioCaptureResult{ErrorCode: domain.AudioErrorRecStopFail}, ""
	}
	if clip.Size == 0 {
		_ = c.clips.Release(clip.URI)
		return domain.AudioCaptureResult{ErrorCode: domain.AudioErrorNoAudio}, ""
	}

	durationMs := endedAt.Sub(startedAt).Milliseconds()
	if durationMs < 0 {
		durationMs = 0
	}
	c.logger.Info("recording saved", "uri", clip.URI, "bytes", clip.Size, "duration_ms", durationMs)
	return domain.AudioCaptureResult{
		Available:        true,
		FileURI:          clip.URI,
		DurationMs:       &durationMs,
		RecordingEndedAt: &endedAt,
	}, clip.URI
}

func (c *Controller) detachLocked() func() {
	c.generation++
	recorder := c.recorder
	stream := c.stream
	clip := c.clipURI
	if c.stopping && c.stopDone != nil {
		close(c.stopDone)
	}

	c.recorder = nil
	c.stream = nil
	c.chunks = nil
	c.mimeType = ""
	c.recording = false
	c.stopping = false
	c.stopErr = nil
	c.stopDone = nil
	c.clipURI = ""
	c.result = nil

	return func() {
		if recorder != nil && recorder.State() != ports.RecorderInactive {
			_ = recorder.Stop()
		}
		if stream != nil {
			_ = stream.StopTracks()
		}
		if clip != "" {
			_ = c.clips.Release(clip)
		}
	}
}

func (c *Controller) fail(gen uint64, code domain.AudioErrorCode) *domain.AudioCaptureResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return nil
	}
	c.recording = false
	c.result = &domain.AudioCaptureResult{ErrorCode: code}
	return c.result.Clone()
}

func (c *Controller) pickFormat() string {
	for _, format := range c.formats {
		if c.platform.SupportsFormat(format) {
			return format
		}
	}
	return ""
}

func classifyAccessError(err error) domain.AudioErrorCode {
	switch {
	case errors.Is(err, ports.ErrMicPermissionDenied):
		return domain.AudioErrorMicPermission
	case errors.Is(err, ports.ErrNoInputDevice):
		return domain.AudioErrorNoAudio
	default:
		return domain.AudioErrorRecStartFail
	}
}

// merge overlays the populated fields of patch onto base.
func merge(base *domain.AudioCaptureResult, patch domain.AudioCaptureResult) *domain.AudioCaptureResult {
	out := base.Clone()
	if out == nil {
		out = &domain.AudioCaptureResult{}
	}
	out.Available = patch.Available
	out.ErrorCode = patch.ErrorCode
	if patch.FileURI != "" {
		out.FileURI = patch.FileURI
	}
	if patch.DurationMs != nil {
		d := *patch.DurationMs
		out.DurationMs = &d
	}
	if patch.RecordingEndedAt != nil {
		t := *patch.RecordingEndedAt
		out.RecordingEndedAt = &t
	}
	return out
}
