package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"impromptu/internal/domain"
)

var keys = []string{
	"ENV", "DATA_DIR", "DB_PATH", "HISTORY_KEY", "HISTORY_LIMIT", "RECORDINGS_DIR",
	"KEEP_RECORDINGS", "CAPTURE_BACKEND", "FFMPEG_COMMAND", "AUDIO_INPUT_FORMAT",
	"AUDIO_INPUT_DEVICE", "SAMPLE_RATE", "CHANNELS", "SLICE_MS", "STOP_TIMEOUT",
	"SOUND", "WORDS_FILE", "MODES_FILE", "DEFAULT_MODE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(envPrefix+key, "")
		_ = os.Unsetenv(envPrefix + key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := LoadFiles()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	dataDir := filepath.Join(home, ".local", "share", "impromptu")
	if cfg.Storage.DataDir != dataDir {
		t.Fatalf("unexpected data dir %q", cfg.Storage.DataDir)
	}
	if cfg.Storage.DBPath != filepath.Join(dataDir, "impromptu.db") {
		t.Fatalf("unexpected db path %q", cfg.Storage.DBPath)
	}
	if cfg.Storage.HistoryKey != "impromptu_sessions" || cfg.Storage.HistoryLimit != 50 {
		t.Fatalf("unexpected storage config: %+v", cfg.Storage)
	}
	if cfg.Audio.Backend != BackendFFmpeg || cfg.Audio.RecorderCommand != "ffmpeg" {
		t.Fatalf("unexpected backend config: %+v", cfg.Audio)
	}
	if cfg.Audio.InputFormat != "pulse" || cfg.Audio.InputDevice != "default" {
		t.Fatalf("unexpected input config: %+v", cfg.Audio)
	}
	if cfg.Audio.SampleRate != 16000 || cfg.Audio.Channels != 1 {
		t.Fatalf("unexpected shape: %+v", cfg.Audio)
	}
	if cfg.Audio.Slice != 100*time.Millisecond || cfg.Audio.StopTimeout != 5*time.Second {
		t.Fatalf("unexpected timings: %+v", cfg.Audio)
	}
	if !cfg.Audio.Sound || cfg.Audio.KeepRecordings {
		t.Fatalf("unexpected flags: %+v", cfg.Audio)
	}
	if cfg.Audio.RecordingsDir != filepath.Join(dataDir, "recordings") {
		t.Fatalf("unexpected recordings dir %q", cfg.Audio.RecordingsDir)
	}
	if cfg.Practice.DefaultMode != domain.ModeExplanation || cfg.Practice.WordsFile != "" {
		t.Fatalf("unexpected practice config: %+v", cfg.Practice)
	}
	if cfg.Development() {
		t.Fatalf("production is the default environment")
	}
	if cfg.LogPath() != filepath.Join(dataDir, "impromptu.log") {
		t.Fatalf("unexpected log path %q", cfg.LogPath())
	}
}

func TestLoadRespectsOverrides(t *testing.T) {
	clearEnv(t)
	data := t.TempDir()
	t.Setenv("IMPROMPTU_ENV", "Development")
	t.Setenv("IMPROMPTU_DATA_DIR", data)
	t.Setenv("IMPROMPTU_DB_PATH", filepath.Join(data, "other.db"))
	t.Setenv("IMPROMPTU_HISTORY_KEY", "k")
	t.Setenv("IMPROMPTU_HISTORY_LIMIT", "7")
	t.Setenv("IMPROMPTU_KEEP_RECORDINGS", "true")
	t.Setenv("IMPROMPTU_CAPTURE_BACKEND", "MALGO")
	t.Setenv("IMPROMPTU_FFMPEG_COMMAND", "my-ffmpeg")
	t.Setenv("IMPROMPTU_AUDIO_INPUT_FORMAT", "alsa")
	t.Setenv("IMPROMPTU_AUDIO_INPUT_DEVICE", "mic0")
	t.Setenv("IMPROMPTU_SAMPLE_RATE", "48000")
	t.Setenv("IMPROMPTU_CHANNELS", "2")
	t.Setenv("IMPROMPTU_SLICE_MS", "250")
	t.Setenv("IMPROMPTU_STOP_TIMEOUT", "1500ms")
	t.Setenv("IMPROMPTU_SOUND", "false")
	t.Setenv("IMPROMPTU_WORDS_FILE", " words.txt ")
	t.Setenv("IMPROMPTU_MODES_FILE", "modes.yaml")
	t.Setenv("IMPROMPTU_DEFAULT_MODE", "debate")

	cfg, err := LoadFiles()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !cfg.Development() {
		t.Fatalf("expected development environment")
	}
	if cfg.Storage.DBPath != filepath.Join(data, "other.db") || cfg.Storage.HistoryKey != "k" || cfg.Storage.HistoryLimit != 7 {
		t.Fatalf("unexpected storage config: %+v", cfg.Storage)
	}
	if cfg.Audio.Backend != BackendMalgo || !cfg.Audio.KeepRecordings || cfg.Audio.Sound {
		t.Fatalf("unexpected audio flags: %+v", cfg.Audio)
	}
	if cfg.Audio.RecorderCommand != "my-ffmpeg" || cfg.Audio.InputFormat != "alsa" || cfg.Audio.InputDevice != "mic0" {
		t.Fatalf("unexpected recorder config: %+v", cfg.Audio)
	}
	if cfg.Audio.SampleRate != 48000 || cfg.Audio.Channels != 2 {
		t.Fatalf("unexpected shape: %+v", cfg.Audio)
	}
	if cfg.Audio.Slice != 250*time.Millisecond || cfg.Audio.StopTimeout != 1500*time.Millisecond {
		t.Fatalf("unexpected timings: %+v", cfg.Audio)
	}
	if cfg.Practice.WordsFile != "words.txt" || cfg.Practice.ModesFile != "modes.yaml" || cfg.Practice.DefaultMode != domain.ModeDebate {
		t.Fatalf("unexpected practice config: %+v", cfg.Practice)
	}
}

func TestLoadReadsDotEnvWithoutOverriding(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("IMPROMPTU_DATA_DIR", dir)
	path := filepath.Join(dir, ".env")
	contents := "IMPROMPTU_HISTORY_LIMIT=12\nIMPROMPTU_DATA_DIR=/ignored\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	cfg, err := LoadFiles(path, filepath.Join(dir, "missing.env"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Storage.HistoryLimit != 12 {
		t.Fatalf("expected limit from .env, got %d", cfg.Storage.HistoryLimit)
	}
	if cfg.Storage.DataDir != dir {
		t.Fatalf("environment must win over .env, got %q", cfg.Storage.DataDir)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		key, value string
		want       error
	}{
		{key: "CAPTURE_BACKEND", value: "pipewire", want: ErrUnknownBackend},
		{key: "DEFAULT_MODE", value: "RANT", want: ErrInvalidConfig},
		{key: "HISTORY_LIMIT", value: "0", want: ErrInvalidConfig},
		{key: "SAMPLE_RATE", value: "-1", want: ErrInvalidConfig},
		{key: "SLICE_MS", value: "0", want: ErrInvalidConfig},
		{key: "HISTORY_LIMIT", value: "many", want: nil},
	}
	for _, tc := range cases {
		clearEnv(t)
		t.Setenv("IMPROMPTU_DATA_DIR", t.TempDir())
		t.Setenv(envPrefix+tc.key, tc.value)

		_, err := LoadFiles()
		if err == nil {
			t.Fatalf("%s=%s: expected error", tc.key, tc.value)
		}
		if tc.want != nil && !errors.Is(err, tc.want) {
			t.Fatalf("%s=%s: expected %v, got %v", tc.key, tc.value, tc.want, err)
		}
	}
}
