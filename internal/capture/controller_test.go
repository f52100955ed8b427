package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"impromptu/internal/domain"
	"impromptu/internal/ports"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeStream struct {
	mu    sync.Mutex
	stops int
}

func (s *fakeStream) StopTracks() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	return nil
}

func (s *fakeStream) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

type fakeRecorder struct {
	mu       sync.Mutex
	hooks    ports.RecorderHooks
	state    ports.RecorderState
	mime     string
	slice    time.Duration
	buffered [][]byte
	startErr error
	stopErr  error
	// silent recorders never acknowledge Stop.
	silent bool
	// entered is closed when Start begins; Start then waits for gate.
	entered chan struct{}
	gate    chan struct{}
	stops   int
}

func (r *fakeRecorder) Start(slice time.Duration) error {
	if r.gate != nil {
		close(r.entered)
		<-r.gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return r.startErr
	}
	r.slice = slice
	r.state = ports.RecorderRecording
	return nil
}

func (r *fakeRecorder) RequestData() error {
	r.mu.Lock()
	pending := r.buffered
	r.buffered = nil
	r.mu.Unlock()
	for _, chunk := range pending {
		r.hooks.OnData(chunk)
	}
	return nil
}

func (r *fakeRecorder) Stop() error {
	r.mu.Lock()
	if r.stopErr != nil {
		r.mu.Unlock()
		return r.stopErr
	}
	r.state = ports.RecorderInactive
	r.stops++
	silent := r.silent
	r.mu.Unlock()
	if !silent {
		r.hooks.OnStop()
	}
	return nil
}

func (r *fakeRecorder) State() ports.RecorderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *fakeRecorder) MimeType() string { return r.mime }

// stopUnprompted mimics the platform ending capture on its own.
func (r *fakeRecorder) stopUnprompted() {
	r.mu.Lock()
	r.state = ports.RecorderInactive
	r.mu.Unlock()
	r.hooks.OnStop()
}

type fakePlatform struct {
	caps       ports.Capabilities
	micErr     error
	newErr     error
	supported  map[string]bool
	stream     *fakeStream
	recorder   *fakeRecorder
	micCalls   int
	capsCalls  int
	chosenMime string
}

func newPlatform() *fakePlatform {
	return &fakePlatform{
		caps:      ports.Capabilities{SecureContext: true, Recorder: true, MediaDevices: true},
		supported: map[string]bool{"audio/webm": true},
		stream:    &fakeStream{},
		recorder:  &fakeRecorder{state: ports.RecorderInactive},
	}
}

func (p *fakePlatform) Capabilities() ports.Capabilities {
	p.capsCalls++
	return p.caps
}

func (p *fakePlatform) RequestMicrophone(context.Context) (ports.MediaStream, error) {
	p.micCalls++
	if p.micErr != nil {
		return nil, p.micErr
	}
	return p.stream, nil
}

func (p *fakePlatform) SupportsFormat(mime string) bool { return p.supported[mime] }

func (p *fakePlatform) NewRecorder(_ ports.MediaStream, mime string, hooks ports.RecorderHooks) (ports.Recorder, error) {
	if p.newErr != nil {
		return nil, p.newErr
	}
	p.chosenMime = mime
	p.recorder.hooks = hooks
	p.recorder.mime = mime
	return p.recorder, nil
}

type fakeClips struct {
	mu       sync.Mutex
	saveErr  error
	saved    int
	released []string
}

func (f *fakeClips) Save(_ context.Context, _ string, chunks [][]byte) (ports.Clip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return ports.Clip{}, f.saveErr
	}
	f.saved++
	var size int64
	for _, chunk := range chunks {
		size += int64(len(chunk))
	}
	return ports.Clip{URI: fmt.Sprintf("mem://clip-%d", f.saved), Size: size}, nil
}

func (f *fakeClips) Release(uri string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, uri)
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newController(p *fakePlatform, clips *fakeClips, clock *fakeClock) *Controller {
	return New(p, clips, WithClock(clock), WithLogger(quiet))
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func TestStartFailsPreflightInOrder(t *testing.T) {
	t.Parallel()

	cases := []ports.Capabilities{
		{SecureContext: false, Recorder: true, MediaDevices: true},
		{SecureContext: true, Recorder: false, MediaDevices: true},
		{SecureContext: true, Recorder: true, MediaDevices: false},
	}
	for _, caps := range cases {
		p := newPlatform()
		p.caps = caps
		c := newController(p, &fakeClips{}, newClock())

		result := c.Start(context.Background())
		if result == nil || result.Available || result.ErrorCode != domain.AudioErrorRecStartFail {
			t.Fatalf("caps %+v: unexpected result %+v", caps, result)
		}
		if p.micCalls != 0 {
			t.Fatalf("caps %+v: microphone must not be requested", caps)
		}
		if c.IsRecording() {
			t.Fatalf("caps %+v: must not be recording", caps)
		}
	}
}

func TestStartClassifiesAccessErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want domain.AudioErrorCode
	}{
		{err: ports.ErrMicPermissionDenied, want: domain.AudioErrorMicPermission},
		{err: fmt.Errorf("open device: %w", ports.ErrNoInputDevice), want: domain.AudioErrorNoAudio},
		{err: errors.New("device busy"), want: domain.AudioErrorRecStartFail},
	}
	for _, tc := range cases {
		p := newPlatform()
		p.micErr = tc.err
		c := newController(p, &fakeClips{}, newClock())

		result := c.Start(context.Background())
		if result.Available || result.ErrorCode != tc.want {
			t.Fatalf("%v: got %+v want %s", tc.err, result, tc.want)
		}
	}
}

func TestStartPicksPreferredFormat(t *testing.T) {
	t.Parallel()

	p := newPlatform()
	p.supported = map[string]bool{"audio/mp4": true, "audio/ogg": true}
	newController(p, &fakeClips{}, newClock()).Start(context.Background())
	if p.chosenMime != "audio/mp4" {
		t.Fatalf("expected audio/mp4, got %q", p.chosenMime)
	}

	p = newPlatform()
	p.supported = nil
	newController(p, &fakeClips{}, newClock()).Start(context.Background())
	if p.chosenMime != "" {
		t.Fatalf("expected platform default, got %q", p.chosenMime)
	}
}

func TestStartAndStopProducesClip(t *testing.T) {
	t.Parallel()

	p := newPlatform()
	clips := &fakeClips{}
	clock := newClock()
	c := newController(p, clips, clock)

	started := c.Start(context.Background())
	if !started.Available || started.RecordingStartedAt == nil || !started.RecordingStartedAt.Equal(clock.Now()) {
		t.Fatalf("unexpected start result: %+v", started)
	}
	if !c.IsRecording() || p.recorder.slice != DefaultSlice {
		t.Fatalf("expected recording with 100ms slices, recording=%v slice=%s", c.IsRecording(), p.recorder.slice)
	}

	p.recorder.hooks.OnData([]byte("abc"))
	p.recorder.buffered = [][]byte{[]byte("def")}
	clock.advance(60 * time.Second)

	result := c.Stop(context.Background())
	if !result.Available || result.FileURI != "mem://clip-1" || result.ErrorCode != "" {
		t.Fatalf("unexpected stop result: %+v", result)
	}
	if result.DurationMs == nil || *result.DurationMs != 60000 {
		t.Fatalf("unexpected duration: %v", result.DurationMs)
	}
	if result.RecordingEndedAt == nil || result.RecordingStartedAt == nil {
		t.Fatalf("expected both timestamps: %+v", result)
	}
	if c.IsRecording() {
		t.Fatalf("recording flag must clear")
	}
	if p.stream.Stops() != 1 {
		t.Fatalf("expected tracks stopped once, got %d", p.stream.Stops())
	}
}

func TestStopWithNoDataReportsNoAudio(t *testing.T) {
	t.Parallel()

	p := newPlatform()
	clips := &fakeClips{}
	c := newController(p, clips, newClock())
	c.Start(context.Background())

	result := c.Stop(context.Background())
	if result.Available || result.ErrorCode != domain.AudioErrorNoAudio {
		t.Fatalf("unexpected result: %+v", result)
	}
	if clips.saved != 0 {
		t.Fatalf("empty recordings must not be assembled")
	}
}

func TestStopFinalizationFailure(t *testing.T) {
	t.Parallel()

	p := newPlatform()
	c := newController(p, &fakeClips{saveErr: errors.New("disk full")}, newClock())
	c.Start(context.Background())
	p.recorder.hooks.OnData([]byte("abc"))

	result := c.Stop(context.Background())
	if result.Available || result.ErrorCode != domain.AudioErrorRecStopFail {
		t.Fatalf("unexpected result: %+v", result)
	}
	if c.IsRecording() {
		t.Fatalf("recording flag must clear")
	}
}

func TestStopTimesOutWithoutAcknowledgement(t *testing.T) {
	t.Parallel()

	p := newPlatform()
	p.recorder.silent = true
	c := newController(p, &fakeClips{}, newClock())
	c.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	result := c.Stop(ctx)
	if result.Available || result.ErrorCode != domain.AudioErrorRecStopFail {
		t.Fatalf("unexpected result: %+v", result)
	}
	if c.IsRecording() || p.stream.Stops() != 1 {
		t.Fatalf("timeout must release the device, recording=%v stops=%d", c.IsRecording(), p.stream.Stops())
	}
}

func TestStopWithoutRecorderResolvesImmediately(t *testing.T) {
	t.Parallel()

	c := newController(newPlatform(), &fakeClips{}, newClock())
	if result := c.Stop(context.Background()); result != nil {
		t.Fatalf("expected nil result, got %+v", result)
	}
	if c.IsRecording() {
		t.Fatalf("must not be recording")
	}
}

func TestAsyncRecorderErrorDegrades(t *testing.T) {
	t.Parallel()

	p := newPlatform()
	c := newController(p, &fakeClips{}, newClock())
	c.Start(context.Background())

	p.recorder.hooks.OnError(errors.New("encoder crashed"))

	result := c.Result()
	if result.Available || result.ErrorCode != domain.AudioErrorRecStartFail {
		t.Fatalf("unexpected result: %+v", result)
	}
	if c.IsRecording() || p.stream.Stops() != 1 {
		t.Fatalf("expected tracks stopped and flag cleared")
	}
}

func TestUnpromptedStopIsInterruption(t *testing.T) {
	t.Parallel()

	p := newPlatform()
	c := newController(p, &fakeClips{}, newClock())
	c.Start(context.Background())

	p.recorder.stopUnprompted()

	result := c.Result()
	if result.Available || result.ErrorCode != domain.AudioErrorInterrupted {
		t.Fatalf("unexpected result: %+v", result)
	}
	if c.IsRecording() {
		t.Fatalf("recording flag must clear")
	}
}

func TestRecorderStartFailure(t *testing.T) {
	t.Parallel()

	p := newPlatform()
	p.recorder.startErr = errors.New("no encoder")
	c := newController(p, &fakeClips{}, newClock())

	result := c.Start(context.Background())
	if result.Available || result.ErrorCode != domain.AudioErrorRecStartFail {
		t.Fatalf("unexpected result: %+v", result)
	}
	if c.IsRecording() || p.stream.Stops() != 1 {
		t.Fatalf("failed start must release the device")
	}
}

func TestResetReleasesEverythingAndIgnoresStaleHooks(t *testing.T) {
	t.Parallel()

	p := newPlatform()
	clips := &fakeClips{}
	c := newController(p, clips, newClock())
	c.Start(context.Background())
	p.recorder.hooks.OnData([]byte("abc"))
	c.Stop(context.Background())

	hooks := p.recorder.hooks
	c.Reset()

	if c.Result() != nil || c.IsRecording() {
		t.Fatalf("reset must clear state")
	}
	if len(clips.released) != 1 || clips.released[0] != "mem://clip-1" {
		t.Fatalf("expected clip released, got %v", clips.released)
	}

	hooks.OnError(errors.New("late"))
	hooks.OnStop()
	if c.Result() != nil {
		t.Fatalf("stale hooks must be ignored")
	}
}

func TestResetDuringRecordingStopsRecorder(t *testing.T) {
	t.Parallel()

	p := newPlatform()
	c := newController(p, &fakeClips{}, newClock())
	c.Start(context.Background())

	c.Reset()
	if p.recorder.State() != ports.RecorderInactive {
		t.Fatalf("recorder must be halted")
	}
	if p.stream.Stops() != 1 {
		t.Fatalf("tracks must be released")
	}
	if c.Result() != nil {
		t.Fatalf("stop acknowledgement after reset must not resurrect a result")
	}
}

func TestAbandonReturnsSettledResult(t *testing.T) {
	t.Parallel()

	p := newPlatform()
	clips := &fakeClips{}
	c := newController(p, clips, newClock())
	c.Start(context.Background())
	p.recorder.hooks.OnData([]byte("abc"))

	result := c.Abandon(context.Background())
	if result == nil || !result.Available || result.FileURI == "" {
		t.Fatalf("unexpected abandon result: %+v", result)
	}
	if c.Result() != nil || c.IsRecording() {
		t.Fatalf("abandon must clear state")
	}
}

func TestProbePermission(t *testing.T) {
	t.Parallel()

	p := newPlatform()
	c := newController(p, &fakeClips{}, newClock())
	if got := c.ProbePermission(context.Background()); got != domain.PermissionGranted {
		t.Fatalf("expected granted, got %s", got)
	}
	if p.stream.Stops() != 1 {
		t.Fatalf("probe must release the stream")
	}

	p.micErr = ports.ErrMicPermissionDenied
	if got := c.ProbePermission(context.Background()); got != domain.PermissionDenied {
		t.Fatalf("expected denied, got %s", got)
	}

	p.caps.SecureContext = false
	if got := c.ProbePermission(context.Background()); got != domain.PermissionUnknown {
		t.Fatalf("expected unknown when unsupported, got %s", got)
	}
}

func TestAbandonWhileRecorderStartsStopsIt(t *testing.T) {
	t.Parallel()

	p := newPlatform()
	p.recorder.entered = make(chan struct{})
	p.recorder.gate = make(chan struct{})
	c := newController(p, &fakeClips{}, newClock())

	done := make(chan *domain.AudioCaptureResult, 1)
	go func() { done <- c.Start(context.Background()) }()
	<-p.recorder.entered

	c.Abandon(context.Background())
	close(p.recorder.gate)

	select {
	case result := <-done:
		if result != nil {
			t.Fatalf("abandoned start must not report a result, got %+v", result)
		}
	case <-time.After(time.Second):
		t.Fatalf("start did not return")
	}
	if p.recorder.State() != ports.RecorderInactive {
		t.Fatalf("recorder left running after abandon")
	}
	if p.stream.Stops() == 0 {
		t.Fatalf("stream must be released")
	}
	if c.IsRecording() {
		t.Fatalf("controller must not report recording")
	}
}

func TestCapabilitiesRefreshOnPermissionRequest(t *testing.T) {
	t.Parallel()

	p := newPlatform()
	c := newController(p, &fakeClips{}, newClock())
	for i := 0; i < 5; i++ {
		if !c.Supported() {
			t.Fatalf("expected support")
		}
	}
	if p.capsCalls != 1 {
		t.Fatalf("expected one capability lookup, got %d", p.capsCalls)
	}

	p.caps.Recorder = false
	c.ProbePermission(context.Background())
	if c.Supported() {
		t.Fatalf("permission request must refresh capabilities")
	}
}
