package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"impromptu/internal/ports"
)

const (
	probeDuration = "0.2"
	killAfter     = 1200 * time.Millisecond
)

// FFmpegConfig selects the capture device and raw input shape.
type FFmpegConfig struct {
	Command     string
	InputFormat string
	InputDevice string
	SampleRate  int
	Channels    int
}

func (c FFmpegConfig) withDefaults() FFmpegConfig {
	if c.Command == "" {
		c.Command = "ffmpeg"
	}
	if c.InputFormat == "" {
		c.InputFormat = "pulse"
	}
	if c.InputDevice == "" {
		c.InputDevice = "default"
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	return c
}

// encodings maps supported container types to ffmpeg output arguments.
var encodings = map[string][]string{
	"audio/webm": {"-c:a", "libopus", "-f", "webm"},
	"audio/ogg":  {"-c:a", "libopus", "-f", "ogg"},
}

// FFmpegPlatform records the microphone by running ffmpeg as a child process.
type FFmpegPlatform struct {
	cfg      FFmpegConfig
	lookPath func(string) (string, error)
}

func NewFFmpegPlatform(cfg FFmpegConfig) *FFmpegPlatform {
	return &FFmpegPlatform{cfg: cfg.withDefaults(), lookPath: exec.LookPath}
}

func (p *FFmpegPlatform) Capabilities() ports.Capabilities {
	_, err := p.lookPath(p.cfg.Command)
	return ports.Capabilities{
		SecureContext: true,
		Recorder:      err == nil,
		MediaDevices:  err == nil,
	}
}

// RequestMicrophone opens the input device briefly to confirm it is usable.
func (p *FFmpegPlatform) RequestMicrophone(ctx context.Context) (ports.MediaStream, error) {
	args := append(p.inputArgs(), "-t", probeDuration, "-f", "null", "-")
	cmd := exec.CommandContext(ctx, p.cfg.Command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, classifyStderr(err, stderr.String())
	}
	return deviceStream{}, nil
}

func (p *FFmpegPlatform) SupportsFormat(mimeType string) bool {
	_, ok := encodings[baseType(mimeType)]
	return ok
}

func (p *FFmpegPlatform) NewRecorder(_ ports.MediaStream, mimeType string, hooks ports.RecorderHooks) (ports.Recorder, error) {
	mimeType = baseType(mimeType)
	if mimeType == "" {
		mimeType = "audio/webm"
	}
	output, ok := encodings[mimeType]
	if !ok {
		return nil, fmt.Errorf("unsupported recording format %q", mimeType)
	}
	args := append(p.inputArgs(), output...)
	args = append(args, "-")
	return &ffmpegRecorder{
		command:  p.cfg.Command,
		args:     args,
		mimeType: mimeType,
		hooks:    hooks,
		state:    ports.RecorderInactive,
	}, nil
}

func (p *FFmpegPlatform) inputArgs() []string {
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", p.cfg.InputFormat,
		"-i", p.cfg.InputDevice,
		"-ac", strconv.Itoa(p.cfg.Channels),
		"-ar", strconv.Itoa(p.cfg.SampleRate),
	}
}

// deviceStream is the probe handle; the device itself is held by the recorder.
type deviceStream struct{}

func (deviceStream) StopTracks() error { return nil }

type ffmpegRecorder struct {
	command  string
	args     []string
	mimeType string
	hooks    ports.RecorderHooks

	mu       sync.Mutex
	state    ports.RecorderState
	stopping bool
	process  *os.Process
	done     chan struct{}

	buf    sliceBuffer
	stderr lockedBuffer
}

func (r *ffmpegRecorder) Start(slice time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == ports.RecorderRecording || r.done != nil {
		return errors.New("recorder already started")
	}
	if slice <= 0 {
		slice = 100 * time.Millisecond
	}

	cmd := exec.Command(r.command, r.args...)
	cmd.Stderr = &r.stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	r.process = cmd.Process
	r.state = ports.RecorderRecording
	r.done = make(chan struct{})

	readDone := make(chan error, 1)
	go func() {
		readDone <- pumpChunks(stdout, 4096, r.buf.append)
	}()
	go r.run(cmd, slice, readDone)
	return nil
}

func (r *ffmpegRecorder) run(cmd *exec.Cmd, slice time.Duration, readDone <-chan error) {
	ticker := time.NewTicker(slice)
	defer ticker.Stop()

	var readErr error
loop:
	for {
		select {
		case <-ticker.C:
			r.buf.flush(r.hooks.OnData)
		case readErr = <-readDone:
			break loop
		}
	}
	r.buf.flush(r.hooks.OnData)

	waitErr := cmd.Wait()

	r.mu.Lock()
	stopping := r.stopping
	r.state = ports.RecorderInactive
	done := r.done
	r.mu.Unlock()
	close(done)

	if stopping {
		if err := firstErr(readErr, normalizeStopErr(waitErr)); err != nil && r.hooks.OnError != nil {
			r.hooks.OnError(withStderr(err, r.stderr.String()))
		}
	}
	if r.hooks.OnStop != nil {
		r.hooks.OnStop()
	}
}

// RequestData delivers whatever has been captured since the last slice.
func (r *ffmpegRecorder) RequestData() error {
	r.mu.Lock()
	recording := r.state == ports.RecorderRecording
	r.mu.Unlock()
	if !recording {
		return errors.New("recorder is not recording")
	}
	r.buf.flush(r.hooks.OnData)
	return nil
}

// Stop asks ffmpeg to finalize the container. OnStop fires once it exits.
func (r *ffmpegRecorder) Stop() error {
	r.mu.Lock()
	if r.state != ports.RecorderRecording || r.stopping {
		r.mu.Unlock()
		return nil
	}
	r.stopping = true
	process := r.process
	done := r.done
	r.mu.Unlock()

	if err := process.Signal(os.Interrupt); err != nil {
		_ = process.Kill()
	}
	go func() {
		select {
		case <-done:
		case <-time.After(killAfter):
			_ = process.Kill()
		}
	}()
	return nil
}

func (r *ffmpegRecorder) State() ports.RecorderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *ffmpegRecorder) MimeType() string { return r.mimeType }

func classifyStderr(err error, stderr string) error {
	msg := strings.ToLower(stderr)
	switch {
	case strings.Contains(msg, "permission denied"),
		strings.Contains(msg, "operation not permitted"),
		strings.Contains(msg, "access denied"):
		return fmt.Errorf("%w: %s", ports.ErrMicPermissionDenied, stringsTrimSpaceSafe(stderr))
	case strings.Contains(msg, "no such device"),
		strings.Contains(msg, "no such file or directory"),
		strings.Contains(msg, "no such entity"),
		strings.Contains(msg, "cannot open audio device"),
		strings.Contains(msg, "input/output error"):
		return fmt.Errorf("%w: %s", ports.ErrNoInputDevice, stringsTrimSpaceSafe(stderr))
	}
	return withStderr(err, stderr)
}

func withStderr(err error, stderr string) error {
	if stderr = stringsTrimSpaceSafe(stderr); stderr != "" {
		return fmt.Errorf("%w: %s", err, stderr)
	}
	return err
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func baseType(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

func stringsTrimSpaceSafe(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
