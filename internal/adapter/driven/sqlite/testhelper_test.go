package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/opconsole/internal/domain/model"
)

// setupTestDB opens a migrated in-memory database private to the test.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewMemoryDB(context.Background(), t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = RunMigrations(db.Writer)
	require.NoError(t, err)
	return db
}

// makeRecord builds a journal-ready record whose times differ per seq.
func makeRecord(seq int64, id, principal string, payload []byte) model.CredentialRecord {
	at := time.Date(2026, 3, 1, 9, 30, 0, int(seq)*1000, time.UTC)
	return model.CredentialRecord{
		ID:            id,
		Seq:           seq,
		CapturedAt:    at,
		Principal:     principal,
		CipherPayload: payload,
		State:         model.DecryptionEncrypted,
		UpdatedAt:     at.Add(time.Second),
	}
}
