package audio

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strconv"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"impromptu/internal/ports"
)

// MalgoConfig shapes the PCM captured from the default input device.
type MalgoConfig struct {
	SampleRate int
	Channels   int
}

// MalgoPlatform captures raw PCM through the native audio backend.
type MalgoPlatform struct {
	cfg     MalgoConfig
	initCtx func() (*malgo.AllocatedContext, error)

	mu     sync.Mutex
	inited bool
	closed bool
	ctx    *malgo.AllocatedContext
	ctxErr error
}

var errPlatformClosed = errors.New("audio platform closed")

func NewMalgoPlatform(cfg MalgoConfig) *MalgoPlatform {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	return &MalgoPlatform{
		cfg: cfg,
		initCtx: func() (*malgo.AllocatedContext, error) {
			ctxCfg := malgo.ContextConfig{}
			ctxCfg.ThreadPriority = malgo.ThreadPriorityRealtime
			return malgo.InitContext(nil, ctxCfg, nil)
		},
	}
}

// use runs fn with the backend context held, so Close cannot free it
// underneath a device being opened.
func (p *MalgoPlatform) use(fn func(*malgo.AllocatedContext) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errPlatformClosed
	}
	if !p.inited {
		p.inited = true
		p.ctx, p.ctxErr = p.initCtx()
		if p.ctxErr != nil {
			p.ctxErr = fmt.Errorf("failed to init audio context: %w", p.ctxErr)
		}
	}
	if p.ctxErr != nil {
		return p.ctxErr
	}
	if fn == nil {
		return nil
	}
	return fn(p.ctx)
}

func (p *MalgoPlatform) Capabilities() ports.Capabilities {
	err := p.use(nil)
	return ports.Capabilities{SecureContext: true, Recorder: err == nil, MediaDevices: err == nil}
}

// RequestMicrophone checks that a capture device exists and can be opened.
func (p *MalgoPlatform) RequestMicrophone(ctx context.Context) (ports.MediaStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	err := p.use(func(actx *malgo.AllocatedContext) error {
		devices, err := actx.Devices(malgo.Capture)
		if err != nil {
			return classifyStderr(err, err.Error())
		}
		if len(devices) == 0 {
			return ports.ErrNoInputDevice
		}
		device, err := malgo.InitDevice(actx.Context, p.deviceConfig(), malgo.DeviceCallbacks{
			Data: func(_, _ []byte, _ uint32) {},
		})
		if err != nil {
			return classifyStderr(err, err.Error())
		}
		device.Uninit()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deviceStream{}, nil
}

// SupportsFormat only accepts raw PCM; encoded containers are not produced.
func (p *MalgoPlatform) SupportsFormat(mimeType string) bool {
	return baseType(mimeType) == PCMMimeType
}

func (p *MalgoPlatform) NewRecorder(_ ports.MediaStream, mimeType string, hooks ports.RecorderHooks) (ports.Recorder, error) {
	if mimeType != "" && !p.SupportsFormat(mimeType) {
		return nil, fmt.Errorf("unsupported recording format %q", mimeType)
	}
	if err := p.use(nil); err != nil {
		return nil, err
	}
	return &malgoRecorder{
		platform: p,
		devCfg:   p.deviceConfig(),
		mimeType: pcmMimeType(p.cfg.SampleRate, p.cfg.Channels),
		hooks:    hooks,
		state:    ports.RecorderInactive,
	}, nil
}

// Close releases the backend context. Later calls fail with
// errPlatformClosed.
func (p *MalgoPlatform) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.ctx == nil {
		return nil
	}
	err := p.ctx.Uninit()
	p.ctx.Free()
	p.ctx = nil
	return err
}

func (p *MalgoPlatform) deviceConfig() malgo.DeviceConfig {
	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(p.cfg.Channels)
	cfg.SampleRate = uint32(p.cfg.SampleRate)
	cfg.PeriodSizeInMilliseconds = 20
	return cfg
}

func pcmMimeType(rate, channels int) string {
	return mime.FormatMediaType(PCMMimeType, map[string]string{
		"rate":     strconv.Itoa(rate),
		"channels": strconv.Itoa(channels),
	})
}

type malgoRecorder struct {
	platform *MalgoPlatform
	devCfg   malgo.DeviceConfig
	mimeType string
	hooks    ports.RecorderHooks

	mu       sync.Mutex
	state    ports.RecorderState
	stopping bool
	device   *malgo.Device
	quit     chan struct{}
	stopOnce sync.Once

	buf sliceBuffer
}

func (r *malgoRecorder) Start(slice time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.device != nil {
		return errors.New("recorder already started")
	}
	if slice <= 0 {
		slice = 100 * time.Millisecond
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) { r.buf.append(input) },
		Stop: func() { go r.finish() },
	}
	var device *malgo.Device
	err := r.platform.use(func(actx *malgo.AllocatedContext) error {
		var err error
		device, err = malgo.InitDevice(actx.Context, r.devCfg, callbacks)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to init microphone: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("failed to start microphone: %w", err)
	}

	r.device = device
	r.state = ports.RecorderRecording
	r.quit = make(chan struct{})
	go r.flushEvery(slice, r.quit)
	return nil
}

func (r *malgoRecorder) flushEvery(slice time.Duration, quit <-chan struct{}) {
	ticker := time.NewTicker(slice)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.buf.flush(r.hooks.OnData)
		case <-quit:
			return
		}
	}
}

func (r *malgoRecorder) RequestData() error {
	if r.State() != ports.RecorderRecording {
		return errors.New("recorder is not recording")
	}
	r.buf.flush(r.hooks.OnData)
	return nil
}

// Stop halts the device; OnStop follows asynchronously.
func (r *malgoRecorder) Stop() error {
	r.mu.Lock()
	if r.state != ports.RecorderRecording || r.stopping {
		r.mu.Unlock()
		return nil
	}
	r.stopping = true
	r.mu.Unlock()

	go r.finish()
	return nil
}

// finish runs once whether the device stopped on request or on its own.
func (r *malgoRecorder) finish() {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		device := r.device
		quit := r.quit
		r.mu.Unlock()

		var stopErr error
		if device != nil {
			stopErr = device.Stop()
		}
		close(quit)
		r.buf.flush(r.hooks.OnData)
		if device != nil {
			device.Uninit()
		}

		r.mu.Lock()
		stopping := r.stopping
		r.state = ports.RecorderInactive
		r.mu.Unlock()

		if stopping && stopErr != nil && r.hooks.OnError != nil {
			r.hooks.OnError(stopErr)
		}
		if r.hooks.OnStop != nil {
			r.hooks.OnStop()
		}
	})
}

func (r *malgoRecorder) State() ports.RecorderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *malgoRecorder) MimeType() string { return r.mimeType }
