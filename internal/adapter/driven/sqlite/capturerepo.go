package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/ericfisherdev/opconsole/internal/domain/model"
	"github.com/ericfisherdev/opconsole/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CaptureStore = (*CaptureRepo)(nil)

// CaptureRepo is the SQLite implementation of the CaptureStore port interface.
// It journals the immutable part of each credential record.
type CaptureRepo struct {
	db *DB
}

// NewCaptureRepo creates a new CaptureRepo backed by the given DB.
func NewCaptureRepo(db *DB) *CaptureRepo {
	return &CaptureRepo{db: db}
}

// Append inserts a record. Records are never updated; a second append of
// the same id or sequence number fails.
func (r *CaptureRepo) Append(ctx context.Context, record model.CredentialRecord) error {
	const query = `
		INSERT INTO captures (seq, id, captured_at, principal, cipher_payload, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	payload := record.CipherPayload
	if payload == nil {
		payload = []byte{}
	}

	_, err := r.db.Writer.ExecContext(ctx, query,
		record.Seq,
		record.ID,
		formatTime(record.CapturedAt),
		record.Principal,
		payload,
		formatTime(record.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("append capture %s: %w: duplicate record", record.ID, model.ErrInvalidInput)
		}
		return fmt.Errorf("append capture %s: %w", record.ID, err)
	}

	return nil
}

// ListAll returns all journaled records in capture order. Every record is
// returned in the encrypted state.
func (r *CaptureRepo) ListAll(ctx context.Context) ([]model.CredentialRecord, error) {
	const query = `
		SELECT seq, id, captured_at, principal, cipher_payload, recorded_at
		FROM captures
		ORDER BY seq`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list captures: %w", err)
	}
	defer rows.Close()

	var records []model.CredentialRecord
	for rows.Next() {
		var (
			rec                    model.CredentialRecord
			capturedAt, recordedAt string
		)
		if err := rows.Scan(&rec.Seq, &rec.ID, &capturedAt, &rec.Principal, &rec.CipherPayload, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan capture: %w", err)
		}

		if rec.CapturedAt, err = parseTime(capturedAt); err != nil {
			return nil, fmt.Errorf("parse captured_at for %s: %w", rec.ID, err)
		}
		if rec.UpdatedAt, err = parseTime(recordedAt); err != nil {
			return nil, fmt.Errorf("parse recorded_at for %s: %w", rec.ID, err)
		}
		rec.State = model.DecryptionEncrypted

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate captures: %w", err)
	}

	return records, nil
}
