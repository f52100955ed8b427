package words

import (
	"errors"
	"fmt"
	"strings"
)

// Entry is one topic word and the category it was listed under.
type Entry struct {
	Word     string
	Category string
}

// LineParser parses one non-comment line of a word file.
type LineParser interface {
	CanParse(line string) bool
	Parse(line string, state *parseState) ([]Entry, error)
}

type parseState struct {
	category string
}

func parseWords(contents string, parsers []LineParser) ([]Entry, error) {
	lines := strings.Split(contents, "\n")
	entries := make([]Entry, 0, len(lines))
	state := &parseState{}

	for index, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parsed := false
		for _, parser := range parsers {
			if !parser.CanParse(line) {
				continue
			}
			found, err := parser.Parse(line, state)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", index+1, err)
			}
			entries = append(entries, found...)
			parsed = true
			break
		}

		if !parsed {
			return nil, fmt.Errorf("line %d: unsupported word format", index+1)
		}
	}

	return entries, nil
}

func defaultLineParsers() []LineParser {
	return []LineParser{categoryParser{}, listParser{}}
}

type categoryParser struct{}

func (categoryParser) CanParse(line string) bool {
	return strings.HasPrefix(line, "[")
}

func (categoryParser) Parse(line string, state *parseState) ([]Entry, error) {
	if !strings.HasSuffix(line, "]") {
		return nil, errors.New("unterminated category header")
	}
	name := strings.TrimSpace(line[1 : len(line)-1])
	if name == "" {
		return nil, errors.New("category name cannot be empty")
	}
	state.category = name
	return nil, nil
}

// listParser accepts a single word or a comma-separated list.
type listParser struct{}

func (listParser) CanParse(line string) bool {
	return !strings.HasPrefix(line, "[")
}

func (listParser) Parse(line string, state *parseState) ([]Entry, error) {
	parts := strings.Split(line, ",")
	entries := make([]Entry, 0, len(parts))
	for _, part := range parts {
		word := strings.Join(strings.Fields(part), " ")
		if word == "" {
			if len(parts) == 1 {
				return nil, errors.New("word cannot be empty")
			}
			continue
		}
		entries = append(entries, Entry{Word: word, Category: state.category})
	}
	return entries, nil
}
