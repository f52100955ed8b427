package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/do/v2"

	"impromptu/internal/audio"
	"impromptu/internal/capture"
	"impromptu/internal/config"
	"impromptu/internal/modes"
	"impromptu/internal/ports"
	"impromptu/internal/record"
	"impromptu/internal/schedule"
	"impromptu/internal/storage"
	"impromptu/internal/usecase"
	"impromptu/internal/words"
)

const storeOpenTimeout = 5 * time.Second

// Services is the assembled runtime graph.
type Services struct {
	Config     config.Config
	Loop       *schedule.Loop
	Controller *usecase.SessionController
	Driver     *usecase.Driver
	Records    *record.Store

	closers *closers
}

// Build loads configuration and wires the practice runtime.
func Build(sink ports.EventSink) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}
	return BuildWith(cfg, sink, slog.Default())
}

// BuildWith wires the practice runtime for cfg.
func BuildWith(cfg config.Config, sink ports.EventSink, logger *slog.Logger) (Services, error) {
	injector, c := newInjector(cfg, sink, logger)
	driver, err := do.Invoke[*usecase.Driver](injector)
	if err != nil {
		_ = c.close()
		return Services{}, err
	}
	return Services{
		Config:     cfg,
		Loop:       do.MustInvoke[*schedule.Loop](injector),
		Controller: do.MustInvoke[*usecase.SessionController](injector),
		Driver:     driver,
		Records:    do.MustInvoke[*record.Store](injector),
		closers:    c,
	}, nil
}

// OpenRecords wires only the session history for read-side commands.
func OpenRecords(cfg config.Config, logger *slog.Logger) (*record.Store, func() error, error) {
	injector, c := newInjector(cfg, nil, logger)
	store, err := do.Invoke[*record.Store](injector)
	if err != nil {
		_ = c.close()
		return nil, nil, err
	}
	return store, c.close, nil
}

// Run drives the event loop until ctx ends.
func (s Services) Run(ctx context.Context) error {
	return s.Loop.Run(ctx)
}

// Close releases storage and audio resources.
func (s Services) Close() error {
	if s.closers == nil {
		return nil
	}
	return s.closers.close()
}

// newInjector registers every provider. Services are built lazily on first
// invoke; the returned closers release whatever was built.
func newInjector(cfg config.Config, sink ports.EventSink, logger *slog.Logger) (do.Injector, *closers) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &closers{}
	injector := do.New()

	do.ProvideValue(injector, cfg)
	do.ProvideValue(injector, logger)
	do.ProvideValue(injector, c)
	if sink != nil {
		do.ProvideValue[ports.EventSink](injector, sink)
	}

	do.Provide(injector, provideKV)
	do.Provide(injector, provideRecords)
	do.Provide(injector, provideModes)
	do.Provide(injector, provideWords)
	do.Provide(injector, providePlatform)
	do.Provide(injector, provideClips)
	do.Provide(injector, provideCapture)
	do.Provide(injector, provideOutput)
	do.Provide(injector, provideLoop)
	do.Provide(injector, provideController)
	do.Provide(injector, provideDriver)

	return injector, c
}

func provideKV(i do.Injector) (ports.KeyValueStore, error) {
	cfg := do.MustInvoke[config.Config](i)
	kv, err := storage.OpenSQLite(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	do.MustInvoke[*closers](i).add(kv.Close)
	return kv, nil
}

func provideRecords(i do.Injector) (*record.Store, error) {
	cfg := do.MustInvoke[config.Config](i)
	kv := do.MustInvoke[ports.KeyValueStore](i)
	ctx, cancel := context.WithTimeout(context.Background(), storeOpenTimeout)
	defer cancel()
	return record.Open(ctx, kv,
		record.WithKey(cfg.Storage.HistoryKey),
		record.WithLimit(cfg.Storage.HistoryLimit),
		record.WithLogger(do.MustInvoke[*slog.Logger](i)),
	), nil
}

func provideModes(i do.Injector) (*modes.Table, error) {
	cfg := do.MustInvoke[config.Config](i)
	table, err := modes.Load(cfg.Practice.ModesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load modes: %w", err)
	}
	return table, nil
}

func provideWords(i do.Injector) (*words.Pool, error) {
	cfg := do.MustInvoke[config.Config](i)
	pool, err := words.Load(cfg.Practice.WordsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load words: %w", err)
	}
	return pool, nil
}

func providePlatform(i do.Injector) (ports.MediaPlatform, error) {
	cfg := do.MustInvoke[config.Config](i)
	switch cfg.Audio.Backend {
	case config.BackendMalgo:
		p := audio.NewMalgoPlatform(audio.MalgoConfig{
			SampleRate: cfg.Audio.SampleRate,
			Channels:   cfg.Audio.Channels,
		})
		do.MustInvoke[*closers](i).add(p.Close)
		return p, nil
	case config.BackendNone:
		return audio.Disabled{}, nil
	default:
		return audio.NewFFmpegPlatform(audio.FFmpegConfig{
			Command:     cfg.Audio.RecorderCommand,
			InputFormat: cfg.Audio.InputFormat,
			InputDevice: cfg.Audio.InputDevice,
			SampleRate:  cfg.Audio.SampleRate,
			Channels:    cfg.Audio.Channels,
		}), nil
	}
}

func provideClips(i do.Injector) (ports.ClipStore, error) {
	cfg := do.MustInvoke[config.Config](i)
	return audio.NewFileClipStore(cfg.Audio.RecordingsDir, cfg.Audio.KeepRecordings)
}

func provideCapture(i do.Injector) (*capture.Controller, error) {
	cfg := do.MustInvoke[config.Config](i)
	opts := []capture.Option{
		capture.WithLogger(do.MustInvoke[*slog.Logger](i)),
		capture.WithSlice(cfg.Audio.Slice),
	}
	if cfg.Audio.Backend == config.BackendMalgo {
		opts = append(opts, capture.WithFormats(audio.PCMMimeType))
	}
	return capture.New(
		do.MustInvoke[ports.MediaPlatform](i),
		do.MustInvoke[ports.ClipStore](i),
		opts...,
	), nil
}

func provideOutput(i do.Injector) (*audio.Output, error) {
	cfg := do.MustInvoke[config.Config](i)
	return audio.NewOutput(cfg.Audio.SampleRate, cfg.Audio.RecorderCommand), nil
}

func provideLoop(i do.Injector) (*schedule.Loop, error) {
	return schedule.NewLoop(do.MustInvoke[*slog.Logger](i)), nil
}

func provideController(i do.Injector) (*usecase.SessionController, error) {
	cfg := do.MustInvoke[config.Config](i)
	logger := do.MustInvoke[*slog.Logger](i)

	deps := usecase.Deps{
		Scheduler: do.MustInvoke[*schedule.Loop](i),
		Capture:   do.MustInvoke[*capture.Controller](i),
		Store:     do.MustInvoke[*record.Store](i),
		Words:     do.MustInvoke[*words.Pool](i),
		Modes:     do.MustInvoke[*modes.Table](i),
		Cues:      audio.NoCues{},
		Clock:     systemClock{},
		IDs:       uuidGenerator{},
		Logger:    logger,
	}
	if sink, err := do.Invoke[ports.EventSink](i); err == nil {
		deps.Events = sink
	}
	if cfg.Audio.Sound {
		output := do.MustInvoke[*audio.Output](i)
		deps.Cues = audio.NewCueSynth(output, logger)
		deps.Players = output
	}

	return usecase.NewSessionController(deps, usecase.Config{
		DefaultMode: cfg.Practice.DefaultMode,
		StopTimeout: cfg.Audio.StopTimeout,
	}), nil
}

func provideDriver(i do.Injector) (*usecase.Driver, error) {
	return usecase.NewDriver(
		do.MustInvoke[*schedule.Loop](i),
		do.MustInvoke[*usecase.SessionController](i),
	), nil
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type uuidGenerator struct{}

func (uuidGenerator) New() string { return uuid.NewString() }

// closers collects release functions in creation order and runs them in reverse.
type closers struct {
	mu  sync.Mutex
	fns []func() error
}

func (c *closers) add(fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fns = append(c.fns, fn)
}

func (c *closers) close() error {
	c.mu.Lock()
	fns := c.fns
	c.fns = nil
	c.mu.Unlock()

	var errs []error
	for i := len(fns) - 1; i >= 0; i-- {
		if err := fns[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
