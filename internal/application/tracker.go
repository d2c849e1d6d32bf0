// Package application contains use-case orchestration services.
package application

import (
	"fmt"
	"sync"
	"time"

	"github.com/ericfisherdev/opconsole/internal/domain/model"
	"github.com/ericfisherdev/opconsole/internal/domain/port/driven"
)

// TrackerSnapshot is a consistent view of the tracker for rendering.
type TrackerSnapshot struct {
	Script   model.Script
	Cursor   model.ExecutionCursor
	Sequence uint64
}

// ActiveLine returns the active line if it names a loaded line.
func (s TrackerSnapshot) ActiveLine() (model.ScriptLine, bool) {
	if !s.Cursor.HasActive() {
		return model.ScriptLine{}, false
	}
	return s.Script.Line(s.Cursor.Active)
}

// ScriptProgressTracker owns the loaded script and the execution cursor.
// At most one line is active at any time; the most recent AdvanceTo wins.
type ScriptProgressTracker struct {
	mu        sync.Mutex
	script    model.Script
	cursor    model.ExecutionCursor
	seq       uint64
	listeners map[int]driven.ProgressListener
	nextID    int
	now       func() time.Time
}

// NewScriptProgressTracker creates a tracker with no script loaded.
func NewScriptProgressTracker() *ScriptProgressTracker {
	return &ScriptProgressTracker{
		listeners: make(map[int]driven.ProgressListener),
		now:       time.Now,
	}
}

// Subscribe registers l for future transitions and returns a function that
// removes it.
func (t *ScriptProgressTracker) Subscribe(l driven.ProgressListener) func() {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.listeners[id] = l
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.listeners, id)
		t.mu.Unlock()
	}
}

// Load replaces the script with the lines of text and resets the cursor.
// The previous script is discarded, not mutated.
func (t *ScriptProgressTracker) Load(text string) (model.Script, error) {
	script, err := model.ParseScript(text, t.now().UTC())
	if err != nil {
		return model.Script{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.script = script
	t.cursor = model.ExecutionCursor{}
	t.seq++

	for _, l := range t.orderedListeners() {
		l.ScriptLoaded(script, t.seq)
	}
	return script, nil
}

// AdvanceTo marks line as the executing line. The cursor moves even when
// line is outside the loaded script, so it stays consistent with upstream
// telemetry; Rendered is false in that case.
func (t *ScriptProgressTracker) AdvanceTo(line int) (model.CursorChange, error) {
	if line < 1 {
		return model.CursorChange{}, fmt.Errorf("advance to line %d: %w", line, model.ErrInvalidInput)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	return t.moveLocked(model.ExecutionCursor{Active: line}), nil
}

// Clear deactivates the active line, e.g. when the script finishes.
func (t *ScriptProgressTracker) Clear() model.CursorChange {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.moveLocked(model.ExecutionCursor{})
}

// Snapshot returns the current script and cursor.
func (t *ScriptProgressTracker) Snapshot() TrackerSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	return TrackerSnapshot{Script: t.script, Cursor: t.cursor, Sequence: t.seq}
}

func (t *ScriptProgressTracker) moveLocked(next model.ExecutionCursor) model.CursorChange {
	t.seq++
	_, rendered := t.script.Line(next.Active)
	change := model.CursorChange{
		Previous: t.cursor,
		Current:  next,
		Rendered: rendered,
		Sequence: t.seq,
	}
	t.cursor = next

	for _, l := range t.orderedListeners() {
		l.CursorMoved(change)
	}
	return change
}

// orderedListeners returns listeners in subscription order.
func (t *ScriptProgressTracker) orderedListeners() []driven.ProgressListener {
	out := make([]driven.ProgressListener, 0, len(t.listeners))
	for id := 0; id < t.nextID; id++ {
		if l, ok := t.listeners[id]; ok {
			out = append(out, l)
		}
	}
	return out
}
