package model

import (
	"encoding/hex"
	"time"
)

// DefaultPreviewLength is the number of hex characters shown for an
// encrypted payload.
const DefaultPreviewLength = 16

// Capture is a credential capture reported by the external agent. Payload
// is the ciphertext exactly as the agent produced it.
type Capture struct {
	CapturedAt time.Time
	Principal  string
	Payload    []byte
}

// CredentialRecord is one entry of the credential log. CipherPayload is
// never changed after the record is created; decryption fills Plaintext
// alongside it.
type CredentialRecord struct {
	ID            string
	Seq           int64
	CapturedAt    time.Time
	Principal     string
	CipherPayload []byte
	State         DecryptionState
	Plaintext     string // set only when State is DecryptionDecrypted
	FailureReason string // set only when State is DecryptionFailed
	UpdatedAt     time.Time
}

// Clone returns a copy that shares no memory with r.
func (r CredentialRecord) Clone() CredentialRecord {
	c := r
	if r.CipherPayload != nil {
		c.CipherPayload = append([]byte(nil), r.CipherPayload...)
	}
	return c
}

// Preview returns a truncated hex prefix of the payload for display. The
// prefix is at most n characters and never the whole payload.
func (r CredentialRecord) Preview(n int) string {
	if n <= 0 {
		n = DefaultPreviewLength
	}

	encoded := hex.EncodeToString(r.CipherPayload)
	if len(encoded) <= n {
		n = len(encoded) / 2
	}
	return encoded[:n] + "..."
}
