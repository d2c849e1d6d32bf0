package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCredentialRecord_Preview(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		n       int
		want    string
	}{
		{
			name:    "long payload uses the prefix",
			payload: []byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
			n:       16,
			want:    "deadbeef00112233...",
		},
		{
			name:    "default length",
			payload: []byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef, 0xff},
			n:       0,
			want:    "0123456789abcdef...",
		},
		{
			name:    "short payload never shown whole",
			payload: []byte{0xab, 0xcd},
			n:       16,
			want:    "ab...",
		},
		{
			name:    "empty payload",
			payload: nil,
			n:       16,
			want:    "...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := CredentialRecord{CipherPayload: tt.payload}
			assert.Equal(t, tt.want, r.Preview(tt.n))
		})
	}
}

func TestCredentialRecord_CloneSharesNoMemory(t *testing.T) {
	r := CredentialRecord{ID: "a", CipherPayload: []byte{1, 2, 3}}

	c := r.Clone()
	c.CipherPayload[0] = 9

	assert.Equal(t, []byte{1, 2, 3}, r.CipherPayload)
}

func TestDecryptionState_CanRequestDecrypt(t *testing.T) {
	assert.True(t, DecryptionEncrypted.CanRequestDecrypt())
	assert.True(t, DecryptionFailed.CanRequestDecrypt())
	assert.True(t, DecryptionRequested.CanRequestDecrypt())
	assert.False(t, DecryptionDecrypted.CanRequestDecrypt())
}

func TestDecryptError(t *testing.T) {
	cause := errors.New("bad key")
	err := fmt.Errorf("handler: %w", &DecryptError{RecordID: "r1", Cause: cause})

	assert.ErrorIs(t, err, ErrDecryptionFailure)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrUnknownTarget)
	assert.Contains(t, err.Error(), "r1")
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, LogLevelWarn, ParseLogLevel("warning"))
	assert.Equal(t, LogLevelError, ParseLogLevel("error"))
	assert.Equal(t, LogLevelInfo, ParseLogLevel(""))
	assert.Equal(t, LogLevelInfo, ParseLogLevel("verbose"))
}
