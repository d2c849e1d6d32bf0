package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/opconsole/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ScriptStore = (*ScriptRepo)(nil)

// ScriptRepo is the SQLite implementation of the ScriptStore port interface.
type ScriptRepo struct {
	db *DB
}

// NewScriptRepo creates a new ScriptRepo backed by the given DB.
func NewScriptRepo(db *DB) *ScriptRepo {
	return &ScriptRepo{db: db}
}

// Save records a script load.
func (r *ScriptRepo) Save(ctx context.Context, text string, loadedAt time.Time) error {
	const query = `INSERT INTO scripts (body, loaded_at) VALUES (?, ?)`

	if loadedAt.IsZero() {
		loadedAt = time.Now().UTC()
	}

	if _, err := r.db.Writer.ExecContext(ctx, query, text, formatTime(loadedAt)); err != nil {
		return fmt.Errorf("save script: %w", err)
	}

	return nil
}

// Latest returns the most recently saved script. Returns nil, nil if no
// script has been saved.
func (r *ScriptRepo) Latest(ctx context.Context) (*driven.StoredScript, error) {
	const query = `SELECT id, body, loaded_at FROM scripts ORDER BY id DESC LIMIT 1`

	var (
		s        driven.StoredScript
		loadedAt string
	)
	err := r.db.Reader.QueryRowContext(ctx, query).Scan(&s.ID, &s.Text, &loadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest script: %w", err)
	}

	if s.LoadedAt, err = parseTime(loadedAt); err != nil {
		return nil, fmt.Errorf("parse loaded_at: %w", err)
	}

	return &s, nil
}
