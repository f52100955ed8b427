package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"impromptu/internal/ports"
)

const endPoll = 50 * time.Millisecond

// Output owns the process-wide speaker context. oto allows a single context
// per process, so recordings and cues share it.
type Output struct {
	sampleRate int
	ffmpeg     string

	once sync.Once
	ctx  *oto.Context
	err  error
}

// NewOutput plays mono 16-bit audio at sampleRate. ffmpeg decodes encoded clips.
func NewOutput(sampleRate int, ffmpegCommand string) *Output {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if ffmpegCommand == "" {
		ffmpegCommand = "ffmpeg"
	}
	return &Output{sampleRate: sampleRate, ffmpeg: ffmpegCommand}
}

func (o *Output) context() (*oto.Context, error) {
	o.once.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   o.sampleRate,
			ChannelCount: 1,
			Format:       oto.FormatSignedInt16LE,
		})
		if err != nil {
			o.err = fmt.Errorf("failed to init speaker: %w", err)
			return
		}
		<-ready
		o.ctx = ctx
	})
	return o.ctx, o.err
}

// Open decodes the clip at uri and prepares it for playback.
func (o *Output) Open(uri string, onEnded func()) (ports.Player, error) {
	path, err := PathFromURI(uri)
	if err != nil {
		return nil, err
	}
	pcm, err := o.decode(path)
	if err != nil {
		return nil, err
	}
	ctx, err := o.context()
	if err != nil {
		return nil, err
	}
	return &otoPlayer{player: ctx.NewPlayer(bytes.NewReader(pcm)), onEnded: onEnded}, nil
}

// decode returns mono PCM at the output rate. Matching WAV files are read
// directly and everything else goes through ffmpeg.
func (o *Output) decode(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read clip: %w", err)
	}
	if h, pcm, err := readWAV(data); err == nil && h.SampleRate == o.sampleRate && h.Channels == 1 {
		return pcm, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, o.ffmpeg,
		"-nostdin", "-hide_banner", "-loglevel", "error",
		"-i", path,
		"-ac", "1",
		"-ar", strconv.Itoa(o.sampleRate),
		"-f", "s16le", "-",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, withStderr(fmt.Errorf("failed to decode clip: %w", err), stderr.String())
	}
	if stdout.Len() == 0 {
		return nil, errors.New("decoded clip is empty")
	}
	return stdout.Bytes(), nil
}

type otoPlayer struct {
	player  *oto.Player
	onEnded func()

	mu      sync.Mutex
	playing bool
	drained bool
	closed  bool
	watch   chan struct{}
}

func (p *otoPlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("player closed")
	}
	if p.playing {
		return nil
	}
	if p.drained {
		if _, err := p.player.Seek(0, io.SeekStart); err != nil {
			return err
		}
		p.drained = false
	}
	p.player.Play()
	p.playing = true
	p.watch = make(chan struct{})
	go p.watchEnd(p.watch)
	return nil
}

// watchEnd reports the end of playback once the player drains on its own.
func (p *otoPlayer) watchEnd(stop <-chan struct{}) {
	ticker := time.NewTicker(endPoll)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		p.mu.Lock()
		if p.closed || !p.playing {
			p.mu.Unlock()
			return
		}
		if p.player.IsPlaying() {
			p.mu.Unlock()
			continue
		}
		p.playing = false
		p.drained = true
		p.stopWatchLocked()
		p.mu.Unlock()
		if p.onEnded != nil {
			p.onEnded()
		}
		return
	}
}

func (p *otoPlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.player.Pause()
	p.playing = false
	p.stopWatchLocked()
	return nil
}

func (p *otoPlayer) Rewind() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("player closed")
	}
	_, err := p.player.Seek(0, io.SeekStart)
	if err == nil {
		p.drained = false
	}
	return err
}

func (p *otoPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.playing = false
	p.stopWatchLocked()
	return p.player.Close()
}

func (p *otoPlayer) stopWatchLocked() {
	if p.watch != nil {
		close(p.watch)
		p.watch = nil
	}
}
