package modes

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"impromptu/internal/domain"
	"impromptu/internal/ports"
)

const (
	MinManualSeconds = 5
	MaxManualSeconds = 300
)

var (
	ErrUnknownMode     = errors.New("unknown mode")
	ErrInvalidDuration = errors.New("mode durations must be positive")
)

var defaults = []ports.ModeConfig{
	{Name: domain.ModeExplanation, ThinkSeconds: 30, SpeakSeconds: 60, Descriptor: "Clarity and structure"},
	{Name: domain.ModeStory, ThinkSeconds: 30, SpeakSeconds: 60, Descriptor: "Narrative arc"},
	{Name: domain.ModeDebate, ThinkSeconds: 20, SpeakSeconds: 60, Descriptor: "Argumentation"},
	{Name: domain.ModeElevator, ThinkSeconds: 15, SpeakSeconds: 45, Descriptor: "Concise persuasion"},
	{Name: domain.ModeSpeed, ThinkSeconds: 10, SpeakSeconds: 45, Descriptor: "Quick thinking"},
	{Name: domain.ModeManual, ThinkSeconds: 30, SpeakSeconds: 60, Descriptor: "Custom timing"},
}

// Table is the ordered mode preset list. Unknown modes resolve to the first entry.
type Table struct {
	configs []ports.ModeConfig
}

func Default() *Table {
	configs := make([]ports.ModeConfig, len(defaults))
	copy(configs, defaults)
	return &Table{configs: configs}
}

// Load returns the default table with overrides from a YAML file applied.
// An empty path returns the defaults.
func Load(path string) (*Table, error) {
	table := Default()
	if strings.TrimSpace(path) == "" {
		return table, nil
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read modes file %q: %w", path, err)
	}
	if err := table.ApplyOverrides(contents); err != nil {
		return nil, fmt.Errorf("failed to parse modes file %q: %w", path, err)
	}
	return table, nil
}

type overrideFile struct {
	Modes []struct {
		Name       string `yaml:"name"`
		Think      *int   `yaml:"think"`
		Speak      *int   `yaml:"speak"`
		Descriptor string `yaml:"descriptor"`
	} `yaml:"modes"`
}

// ApplyOverrides merges YAML mode overrides into the table. Only existing
// modes can be overridden; ordering is unchanged.
func (t *Table) ApplyOverrides(raw []byte) error {
	var decoded overrideFile
	if err := yaml.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("decode modes yaml: %w", err)
	}
	for _, override := range decoded.Modes {
		index := t.indexOf(domain.Mode(strings.ToUpper(strings.TrimSpace(override.Name))))
		if index < 0 {
			return fmt.Errorf("%w: %q", ErrUnknownMode, override.Name)
		}
		cfg := t.configs[index]
		if override.Think != nil {
			cfg.ThinkSeconds = *override.Think
		}
		if override.Speak != nil {
			cfg.SpeakSeconds = *override.Speak
		}
		if cfg.ThinkSeconds <= 0 || cfg.SpeakSeconds <= 0 {
			return fmt.Errorf("%w: %s", ErrInvalidDuration, cfg.Name)
		}
		if d := strings.TrimSpace(override.Descriptor); d != "" {
			cfg.Descriptor = d
		}
		t.configs[index] = cfg
	}
	return nil
}

func (t *Table) ConfigFor(mode domain.Mode) ports.ModeConfig {
	if index := t.indexOf(mode); index >= 0 {
		return t.configs[index]
	}
	return t.configs[0]
}

// Next returns the mode after mode, wrapping around.
func (t *Table) Next(mode domain.Mode) domain.Mode {
	index := t.indexOf(mode)
	return t.configs[(index+1)%len(t.configs)].Name
}

// Known reports whether mode is in the table.
func (t *Table) Known(mode domain.Mode) bool {
	return t.indexOf(mode) >= 0
}

// All returns the table in display order.
func (t *Table) All() []ports.ModeConfig {
	out := make([]ports.ModeConfig, len(t.configs))
	copy(out, t.configs)
	return out
}

func (t *Table) indexOf(mode domain.Mode) int {
	for i, cfg := range t.configs {
		if cfg.Name == mode {
			return i
		}
	}
	return -1
}

// ClampManual bounds a manual think or speak duration.
func ClampManual(seconds int) int {
	if seconds < MinManualSeconds {
		return MinManualSeconds
	}
	if seconds > MaxManualSeconds {
		return MaxManualSeconds
	}
	return seconds
}
