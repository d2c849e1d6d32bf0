package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDB_FileUsesWAL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.db")

	db, err := NewDB(context.Background(), path)
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, path, db.Path())

	var mode string
	require.NoError(t, db.Writer.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	version, err := RunMigrations(db.Writer)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version)

	// Running migrations twice is a no-op.
	version, err = RunMigrations(db.Writer)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version)

	var applied uint
	require.NoError(t, db.Writer.QueryRow("SELECT version FROM "+schemaTable).Scan(&applied))
	assert.Equal(t, SchemaVersion, applied)
}

func TestRunMigrations_DirtySchema(t *testing.T) {
	db, err := NewMemoryDB(context.Background(), t.Name())
	require.NoError(t, err)
	defer db.Close()

	_, err = RunMigrations(db.Writer)
	require.NoError(t, err)
	_, err = db.Writer.Exec("UPDATE " + schemaTable + " SET dirty = 1")
	require.NoError(t, err)

	_, err = RunMigrations(db.Writer)
	var dirty migrate.ErrDirty
	require.ErrorAs(t, err, &dirty)
	assert.Equal(t, int(SchemaVersion), dirty.Version)
}

func TestNewDB_ReopenKeepsCaptures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.db")
	ctx := context.Background()

	db, err := NewDB(ctx, path)
	require.NoError(t, err)
	_, err = RunMigrations(db.Writer)
	require.NoError(t, err)
	require.NoError(t, NewCaptureRepo(db).Append(ctx, makeRecord(1, "rec-1", "p", []byte{1, 2})))
	require.NoError(t, db.Close())

	db, err = NewDB(ctx, path)
	require.NoError(t, err)
	defer db.Close()
	_, err = RunMigrations(db.Writer)
	require.NoError(t, err)

	got, err := NewCaptureRepo(db).ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "rec-1", got[0].ID)
}

func TestNewMemoryDB_NamesAreIsolated(t *testing.T) {
	ctx := context.Background()

	a, err := NewMemoryDB(ctx, t.Name()+"/a")
	require.NoError(t, err)
	defer a.Close()
	b, err := NewMemoryDB(ctx, t.Name()+"/b")
	require.NoError(t, err)
	defer b.Close()

	_, err = RunMigrations(a.Writer)
	require.NoError(t, err)
	_, err = RunMigrations(b.Writer)
	require.NoError(t, err)
	require.NoError(t, NewCaptureRepo(a).Append(ctx, makeRecord(1, "only-a", "p", []byte{1})))

	got, err := NewCaptureRepo(b).ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, ":memory:", a.Path())
}
