package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"impromptu/internal/domain"
	"impromptu/internal/modes"
)

const envPrefix = "IMPROMPTU_"

// Capture backends.
const (
	BackendFFmpeg = "ffmpeg"
	BackendMalgo  = "malgo"
	BackendNone   = "none"
)

var (
	ErrUnknownBackend = errors.New("unknown capture backend")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// Config stores runtime configuration for the practice tool.
type Config struct {
	Env      string
	Storage  StorageConfig
	Audio    AudioConfig
	Practice PracticeConfig
}

type StorageConfig struct {
	DataDir      string
	DBPath       string
	HistoryKey   string
	HistoryLimit int
}

type AudioConfig struct {
	Backend         string
	RecordingsDir   string
	KeepRecordings  bool
	RecorderCommand string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
	Slice           time.Duration
	StopTimeout     time.Duration
	Sound           bool
}

type PracticeConfig struct {
	WordsFile   string
	ModesFile   string
	DefaultMode domain.Mode
}

type envConfig struct {
	Env             string        `env:"ENV" envDefault:"production"`
	DataDir         string        `env:"DATA_DIR"`
	DBPath          string        `env:"DB_PATH"`
	HistoryKey      string        `env:"HISTORY_KEY" envDefault:"impromptu_sessions"`
	HistoryLimit    int           `env:"HISTORY_LIMIT" envDefault:"50"`
	RecordingsDir   string        `env:"RECORDINGS_DIR"`
	KeepRecordings  bool          `env:"KEEP_RECORDINGS" envDefault:"false"`
	Backend         string        `env:"CAPTURE_BACKEND" envDefault:"ffmpeg"`
	RecorderCommand string        `env:"FFMPEG_COMMAND" envDefault:"ffmpeg"`
	InputFormat     string        `env:"AUDIO_INPUT_FORMAT" envDefault:"pulse"`
	InputDevice     string        `env:"AUDIO_INPUT_DEVICE" envDefault:"default"`
	SampleRate      int           `env:"SAMPLE_RATE" envDefault:"16000"`
	Channels        int           `env:"CHANNELS" envDefault:"1"`
	SliceMs         int           `env:"SLICE_MS" envDefault:"100"`
	StopTimeout     time.Duration `env:"STOP_TIMEOUT" envDefault:"5s"`
	Sound           bool          `env:"SOUND" envDefault:"true"`
	WordsFile       string        `env:"WORDS_FILE"`
	ModesFile       string        `env:"MODES_FILE"`
	DefaultMode     string        `env:"DEFAULT_MODE" envDefault:"EXPLANATION"`
}

// Load resolves configuration from an optional .env file in the working
// directory, the environment, and defaults.
func Load() (Config, error) {
	return LoadFiles(".env")
}

// LoadFiles pre-loads the given dotenv files that exist, without overriding
// variables already set, then parses the environment.
func LoadFiles(paths ...string) (Config, error) {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return Config{}, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}

	var raw envConfig
	if err := env.ParseWithOptions(&raw, env.Options{Prefix: envPrefix}); err != nil {
		return Config{}, fmt.Errorf("environment variables are invalid: %w", err)
	}

	dataDir := strings.TrimSpace(raw.DataDir)
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, errors.New("could not determine home directory")
		}
		dataDir = filepath.Join(home, ".local", "share", "impromptu")
	}

	cfg := Config{
		Env: strings.ToLower(strings.TrimSpace(raw.Env)),
		Storage: StorageConfig{
			DataDir:      dataDir,
			DBPath:       firstNonEmpty(raw.DBPath, filepath.Join(dataDir, "impromptu.db")),
			HistoryKey:   firstNonEmpty(raw.HistoryKey, "impromptu_sessions"),
			HistoryLimit: raw.HistoryLimit,
		},
		Audio: AudioConfig{
			Backend:         strings.ToLower(strings.TrimSpace(raw.Backend)),
			RecordingsDir:   firstNonEmpty(raw.RecordingsDir, filepath.Join(dataDir, "recordings")),
			KeepRecordings:  raw.KeepRecordings,
			RecorderCommand: firstNonEmpty(raw.RecorderCommand, "ffmpeg"),
			InputFormat:     firstNonEmpty(raw.InputFormat, "pulse"),
			InputDevice:     firstNonEmpty(raw.InputDevice, "default"),
			SampleRate:      raw.SampleRate,
			Channels:        raw.Channels,
			Slice:           time.Duration(raw.SliceMs) * time.Millisecond,
			StopTimeout:     raw.StopTimeout,
			Sound:           raw.Sound,
		},
		Practice: PracticeConfig{
			WordsFile:   strings.TrimSpace(raw.WordsFile),
			ModesFile:   strings.TrimSpace(raw.ModesFile),
			DefaultMode: domain.Mode(strings.ToUpper(strings.TrimSpace(raw.DefaultMode))),
		},
	}

	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.StopTimeout <= 0 {
		cfg.Audio.StopTimeout = 5 * time.Second
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings no component can run with.
func (c Config) Validate() error {
	switch c.Audio.Backend {
	case BackendFFmpeg, BackendMalgo, BackendNone:
	default:
		return fmt.Errorf("%w %q", ErrUnknownBackend, c.Audio.Backend)
	}
	if !modes.Default().Known(c.Practice.DefaultMode) {
		return fmt.Errorf("%w: default mode %q: %w", ErrInvalidConfig, c.Practice.DefaultMode, modes.ErrUnknownMode)
	}
	if c.Storage.HistoryLimit <= 0 {
		return fmt.Errorf("%w: history limit must be positive", ErrInvalidConfig)
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be positive", ErrInvalidConfig)
	}
	if c.Audio.Slice <= 0 {
		return fmt.Errorf("%w: slice must be positive", ErrInvalidConfig)
	}
	return nil
}

// Development reports whether debug logging is enabled.
func (c Config) Development() bool {
	return c.Env == "development"
}

// LogPath is where the terminal UI writes its log.
func (c Config) LogPath() string {
	return filepath.Join(c.Storage.DataDir, "impromptu.log")
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}
