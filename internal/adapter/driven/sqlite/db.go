package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "modernc.org/sqlite"
)

const (
	// Pragmas shared by file and in-memory databases.
	basePragmas = "_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	maxReaders = 4
)

// DB holds a single-connection writer and a small reader pool over the same
// database. Captures are written one at a time while the console reads.
type DB struct {
	Writer *sql.DB
	Reader *sql.DB
	path   string
}

// NewDB opens the database file at dbPath in WAL mode.
func NewDB(ctx context.Context, dbPath string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&%s", dbPath, basePragmas)
	return openDB(ctx, dsn, dbPath)
}

// NewMemoryDB opens a named in-memory database shared between the writer
// and the readers. Databases with different names are independent.
func NewMemoryDB(ctx context.Context, name string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&%s", url.PathEscape(name), basePragmas)
	return openDB(ctx, dsn, ":memory:")
}

func openDB(ctx context.Context, dsn, path string) (*DB, error) {
	writer, err := openPool(ctx, dsn, 1)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}

	reader, err := openPool(ctx, dsn, maxReaders)
	if err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("open reader: %w", err)
	}

	return &DB{Writer: writer, Reader: reader, path: path}, nil
}

func openPool(ctx context.Context, dsn string, maxConns int) (*sql.DB, error) {
	pool, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	pool.SetMaxOpenConns(maxConns)

	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// Path returns the database file path, or ":memory:" for an in-memory DB.
func (db *DB) Path() string {
	return db.path
}

// Close closes both pools and returns the first error.
func (db *DB) Close() error {
	var firstErr error

	if err := db.Reader.Close(); err != nil {
		firstErr = fmt.Errorf("close reader: %w", err)
	}

	if err := db.Writer.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close writer: %w", err)
	}

	return firstErr
}
