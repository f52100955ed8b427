package audio

import (
	"context"
	"errors"

	"impromptu/internal/ports"
)

var errCaptureDisabled = errors.New("audio capture is disabled")

// Disabled reports no capture capability so sessions run without audio.
type Disabled struct{}

func (Disabled) Capabilities() ports.Capabilities { return ports.Capabilities{} }

func (Disabled) RequestMicrophone(context.Context) (ports.MediaStream, error) {
	return nil, errCaptureDisabled
}

func (Disabled) SupportsFormat(string) bool { return false }

func (Disabled) NewRecorder(ports.MediaStream, string, ports.RecorderHooks) (ports.Recorder, error) {
	return nil, errCaptureDisabled
}
