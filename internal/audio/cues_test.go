package audio

import (
	"encoding/binary"
	"math"
	"testing"

	"impromptu/internal/domain"
)

func TestEveryCueHasATone(t *testing.T) {
	t.Parallel()

	cues := []domain.Cue{
		domain.CueWhirr, domain.CueTick, domain.CueTock, domain.CueThum,
		domain.CueAmbientStart, domain.CueToneShift, domain.CueCountdownTick,
	}
	for _, cue := range cues {
		if _, ok := cueTones[cue]; !ok {
			t.Fatalf("cue %q has no tone", cue)
		}
	}
}

func TestRenderToneLengthAndEnvelope(t *testing.T) {
	t.Parallel()

	tone := cueTones[domain.CueCountdownTick]
	pcm := renderTone(tone, 16000)
	if len(pcm) != 1600*2 {
		t.Fatalf("expected 1600 samples, got %d bytes", len(pcm))
	}
	if first := int16(binary.LittleEndian.Uint16(pcm)); first != 0 {
		t.Fatalf("attack must start silent, got %d", first)
	}
	limit := int16(tone.gain*math.MaxInt16) + 1
	for i := 0; i < len(pcm); i += 2 {
		v := int16(binary.LittleEndian.Uint16(pcm[i:]))
		if v > limit || v < -limit {
			t.Fatalf("sample %d exceeds gain: %d", i/2, v)
		}
	}
}

func TestRenderToneNoiseIsBounded(t *testing.T) {
	t.Parallel()

	tone := cueTones[domain.CueWhirr]
	pcm := renderTone(tone, 8000)
	if len(pcm) != 2400*2 {
		t.Fatalf("unexpected length %d", len(pcm))
	}
	limit := int16(tone.gain*math.MaxInt16) + 1
	for i := 0; i < len(pcm); i += 2 {
		v := int16(binary.LittleEndian.Uint16(pcm[i:]))
		if v > limit || v < -limit {
			t.Fatalf("noise sample out of range: %d", v)
		}
	}
	if renderTone(tone, 0) != nil {
		t.Fatalf("zero rate must render nothing")
	}
}

func TestNoCuesIsSilent(t *testing.T) {
	t.Parallel()

	NoCues{}.Play(domain.CueThum)
}
