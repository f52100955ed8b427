package words

import (
	_ "embed"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
)

//go:embed words.txt
var builtin string

// ErrEmptyPool is returned when a word file yields no words.
var ErrEmptyPool = errors.New("word pool is empty")

// Pool is an immutable, de-duplicated topic list.
type Pool struct {
	entries []Entry
	rng     *rand.Rand
}

// Option configures a Pool.
type Option func(*Pool)

// WithRand makes picks reproducible.
func WithRand(rng *rand.Rand) Option {
	return func(p *Pool) { p.rng = rng }
}

// Builtin returns the embedded topic list.
func Builtin(opts ...Option) (*Pool, error) {
	return Parse(builtin, opts...)
}

// Load reads a word file; an empty path selects the built-in list.
func Load(path string, opts ...Option) (*Pool, error) {
	if strings.TrimSpace(path) == "" {
		return Builtin(opts...)
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read words file %q: %w", path, err)
	}
	pool, err := Parse(string(contents), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse words file %q: %w", path, err)
	}
	return pool, nil
}

// Parse builds a pool from word-file contents. Duplicates are dropped
// case-insensitively, keeping the first spelling.
func Parse(contents string, opts ...Option) (*Pool, error) {
	return ParseWithParsers(contents, defaultLineParsers(), opts...)
}

// ParseWithParsers allows line-format extension without pool changes.
func ParseWithParsers(contents string, parsers []LineParser, opts ...Option) (*Pool, error) {
	if len(parsers) == 0 {
		parsers = defaultLineParsers()
	}
	parsed, err := parseWords(contents, parsers)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(parsed))
	entries := make([]Entry, 0, len(parsed))
	for _, entry := range parsed {
		key := strings.ToLower(entry.Word)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return nil, ErrEmptyPool
	}

	p := &Pool{entries: entries}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// PickWord returns a random word not in excluding. When every word is
// excluded the whole pool is eligible again.
func (p *Pool) PickWord(excluding map[string]struct{}) string {
	available := make([]string, 0, len(p.entries))
	for _, entry := range p.entries {
		if _, used := excluding[entry.Word]; used {
			continue
		}
		available = append(available, entry.Word)
	}
	if len(available) == 0 {
		for _, entry := range p.entries {
			available = append(available, entry.Word)
		}
	}
	return available[p.intN(len(available))]
}

func (p *Pool) Size() int { return len(p.entries) }

// Entries returns the words in file order.
func (p *Pool) Entries() []Entry {
	out := make([]Entry, len(p.entries))
	copy(out, p.entries)
	return out
}

func (p *Pool) intN(n int) int {
	if p.rng != nil {
		return p.rng.IntN(n)
	}
	return rand.IntN(n)
}
