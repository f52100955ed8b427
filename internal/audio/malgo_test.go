package audio

import (
	"context"
	"errors"
	"mime"
	"sync"
	"testing"

	"github.com/gen2brain/malgo"

	"impromptu/internal/ports"
)

func TestMalgoPlatformWithoutBackend(t *testing.T) {
	t.Parallel()

	p := NewMalgoPlatform(MalgoConfig{})
	calls := 0
	p.initCtx = func() (*malgo.AllocatedContext, error) {
		calls++
		return nil, errors.New("no backend")
	}

	if caps := p.Capabilities(); caps.Recorder || caps.MediaDevices {
		t.Fatalf("expected no capture capability, got %+v", caps)
	}
	if _, err := p.RequestMicrophone(context.Background()); err == nil {
		t.Fatalf("expected microphone request to fail")
	}
	if _, err := p.NewRecorder(deviceStream{}, "", ports.RecorderHooks{}); err == nil {
		t.Fatalf("expected recorder creation to fail")
	}
	if calls != 1 {
		t.Fatalf("backend init must be attempted once, got %d", calls)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close without context failed: %v", err)
	}
}

func TestMalgoPlatformRefusesUseAfterClose(t *testing.T) {
	t.Parallel()

	p := NewMalgoPlatform(MalgoConfig{})
	calls := 0
	p.initCtx = func() (*malgo.AllocatedContext, error) {
		calls++
		return nil, errors.New("no backend")
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
	if _, err := p.RequestMicrophone(context.Background()); !errors.Is(err, errPlatformClosed) {
		t.Fatalf("expected closed error, got %v", err)
	}
	if _, err := p.NewRecorder(deviceStream{}, "", ports.RecorderHooks{}); !errors.Is(err, errPlatformClosed) {
		t.Fatalf("expected closed error, got %v", err)
	}
	if caps := p.Capabilities(); caps.Recorder || caps.MediaDevices {
		t.Fatalf("closed platform must report no capture, got %+v", caps)
	}
	if calls != 0 {
		t.Fatalf("closed platform must not init the backend, got %d", calls)
	}
}

func TestMalgoPlatformCloseRacesWithUse(t *testing.T) {
	t.Parallel()

	p := NewMalgoPlatform(MalgoConfig{})
	p.initCtx = func() (*malgo.AllocatedContext, error) {
		return nil, errors.New("no backend")
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Capabilities()
			_, _ = p.RequestMicrophone(context.Background())
		}()
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	wg.Wait()
	if _, err := p.RequestMicrophone(context.Background()); !errors.Is(err, errPlatformClosed) {
		t.Fatalf("expected closed error, got %v", err)
	}
}

func TestMalgoPlatformFormats(t *testing.T) {
	t.Parallel()

	p := NewMalgoPlatform(MalgoConfig{SampleRate: 48000, Channels: 2})
	if !p.SupportsFormat(pcmMimeType(48000, 2)) || !p.SupportsFormat(PCMMimeType) {
		t.Fatalf("expected pcm support")
	}
	for _, format := range []string{"audio/webm", "audio/ogg", "audio/mp4"} {
		if p.SupportsFormat(format) {
			t.Fatalf("unexpected support for %s", format)
		}
	}
	if _, err := p.NewRecorder(deviceStream{}, "audio/webm", ports.RecorderHooks{}); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}

func TestPCMMimeTypeCarriesShape(t *testing.T) {
	t.Parallel()

	base, params, err := mime.ParseMediaType(pcmMimeType(16000, 1))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if base != PCMMimeType || params["rate"] != "16000" || params["channels"] != "1" {
		t.Fatalf("unexpected mime type: %s %v", base, params)
	}
}

func TestDisabledPlatformReportsNothing(t *testing.T) {
	t.Parallel()

	var p ports.MediaPlatform = Disabled{}
	if caps := p.Capabilities(); caps.SecureContext || caps.Recorder || caps.MediaDevices {
		t.Fatalf("expected empty capabilities, got %+v", caps)
	}
	if _, err := p.RequestMicrophone(context.Background()); err == nil {
		t.Fatalf("expected request to fail")
	}
}
