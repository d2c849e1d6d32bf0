package model

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// ScriptLine is a single line of a loaded script. Index is 1-based.
type ScriptLine struct {
	Index int
	Text  string
}

// Script is an ordered, immutable sequence of lines created by one load.
type Script struct {
	Lines    []ScriptLine
	LoadedAt time.Time
}

// ParseScript splits text on newline boundaries. Every line becomes one
// ScriptLine, blank lines included. A final newline terminates the last
// line rather than starting an empty one. A carriage return before the
// newline is dropped from the line text.
func ParseScript(text string, loadedAt time.Time) (Script, error) {
	if !utf8.ValidString(text) {
		return Script{}, fmt.Errorf("parse script: %w: not valid UTF-8", ErrInvalidInput)
	}

	if text == "" {
		return Script{Lines: []ScriptLine{}, LoadedAt: loadedAt}, nil
	}

	raw := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	lines := make([]ScriptLine, len(raw))
	for i, line := range raw {
		lines[i] = ScriptLine{Index: i + 1, Text: strings.TrimSuffix(line, "\r")}
	}

	return Script{Lines: lines, LoadedAt: loadedAt}, nil
}

// Line returns the line with the given 1-based index.
func (s Script) Line(index int) (ScriptLine, bool) {
	if index < 1 || index > len(s.Lines) {
		return ScriptLine{}, false
	}
	return s.Lines[index-1], true
}

// Text reassembles the script source.
func (s Script) Text() string {
	parts := make([]string, len(s.Lines))
	for i, l := range s.Lines {
		parts[i] = l.Text
	}
	return strings.Join(parts, "\n")
}

// ExecutionCursor marks the line currently executing. Active is 0 when no
// line is active.
type ExecutionCursor struct {
	Active int
}

// HasActive reports whether a line is marked active.
func (c ExecutionCursor) HasActive() bool { return c.Active > 0 }

// CursorChange describes one cursor transition. Rendered is true when
// Current names a line of the loaded script. Sequence increases with every
// transition of the same tracker.
type CursorChange struct {
	Previous ExecutionCursor
	Current  ExecutionCursor
	Rendered bool
	Sequence uint64
}
