package driven

import (
	"context"

	"github.com/ericfisherdev/opconsole/internal/domain/model"
)

// CaptureStore defines the driven port for the append-only capture journal.
// Only the immutable capture fields are persisted; decryption state and
// plaintext live in memory for the session.
type CaptureStore interface {
	// Append journals a newly created record.
	Append(ctx context.Context, record model.CredentialRecord) error

	// ListAll returns every journaled record in capture order, each in the
	// encrypted state.
	ListAll(ctx context.Context) ([]model.CredentialRecord, error)
}
