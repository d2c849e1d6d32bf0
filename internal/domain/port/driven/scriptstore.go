package driven

import (
	"context"
	"time"
)

// StoredScript is a persisted script load.
type StoredScript struct {
	ID       int64
	Text     string
	LoadedAt time.Time
}

// ScriptStore defines the driven port for script load history.
type ScriptStore interface {
	// Save records a script load.
	Save(ctx context.Context, text string, loadedAt time.Time) error

	// Latest returns the most recent load, or nil if none exists.
	Latest(ctx context.Context) (*StoredScript, error)
}
