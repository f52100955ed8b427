package audio

import (
	"bytes"
	"encoding/binary"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"impromptu/internal/domain"
)

type tone struct {
	freq     float64
	duration time.Duration
	gain     float64
	noise    bool
}

var cueTones = map[domain.Cue]tone{
	domain.CueWhirr:         {duration: 300 * time.Millisecond, gain: 0.15, noise: true},
	domain.CueTick:          {freq: 180, duration: 30 * time.Millisecond, gain: 0.2},
	domain.CueTock:          {freq: 220, duration: 80 * time.Millisecond, gain: 0.3},
	domain.CueThum:          {freq: 80, duration: 500 * time.Millisecond, gain: 0.4},
	domain.CueAmbientStart:  {freq: 120, duration: 2 * time.Second, gain: 0.05},
	domain.CueToneShift:     {freq: 200, duration: 600 * time.Millisecond, gain: 0.2},
	domain.CueCountdownTick: {freq: 440, duration: 100 * time.Millisecond, gain: 0.15},
}

// CueSynth renders sound effects on the shared output. Failures are logged
// once and the synth goes quiet.
type CueSynth struct {
	out    *Output
	logger *slog.Logger

	mu      sync.Mutex
	pcm     map[domain.Cue][]byte
	failed  bool
	playing map[*oto.Player]struct{}
}

func NewCueSynth(out *Output, logger *slog.Logger) *CueSynth {
	if logger == nil {
		logger = slog.Default()
	}
	return &CueSynth{
		out:     out,
		logger:  logger,
		pcm:     make(map[domain.Cue][]byte),
		playing: make(map[*oto.Player]struct{}),
	}
}

// Play starts the cue and returns immediately.
func (s *CueSynth) Play(cue domain.Cue) {
	t, ok := cueTones[cue]
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed {
		return
	}
	ctx, err := s.out.context()
	if err != nil {
		s.failed = true
		s.logger.Warn("sound cues disabled", "error", err)
		return
	}
	pcm, ok := s.pcm[cue]
	if !ok {
		pcm = renderTone(t, s.out.sampleRate)
		s.pcm[cue] = pcm
	}

	player := ctx.NewPlayer(bytes.NewReader(pcm))
	s.playing[player] = struct{}{}
	player.Play()
	time.AfterFunc(t.duration+200*time.Millisecond, func() {
		s.mu.Lock()
		delete(s.playing, player)
		s.mu.Unlock()
		_ = player.Close()
	})
}

// renderTone produces mono s16le samples with a short attack and an
// exponential release.
func renderTone(t tone, sampleRate int) []byte {
	n := int(math.Round(t.duration.Seconds() * float64(sampleRate)))
	if n <= 0 {
		return nil
	}
	attack := sampleRate / 100
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		var v float64
		if t.noise {
			v = rand.Float64()*2 - 1
		} else {
			v = math.Sin(2 * math.Pi * t.freq * float64(i) / float64(sampleRate))
		}
		env := math.Exp(-4 * float64(i) / float64(n))
		if i < attack {
			env *= float64(i) / float64(attack)
		}
		sample := int16(v * env * t.gain * math.MaxInt16)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(sample))
	}
	return out
}

// NoCues discards every cue.
type NoCues struct{}

func (NoCues) Play(domain.Cue) {}
