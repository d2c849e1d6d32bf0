package driven

import (
	"context"
	"errors"
)

var (
	// ErrWrongKey is returned by a Decrypter when the key material does not
	// open the ciphertext.
	ErrWrongKey = errors.New("wrong key material")

	// ErrCapabilityUnavailable is returned when the decryption capability
	// cannot be reached or is not configured.
	ErrCapabilityUnavailable = errors.New("decryption capability unavailable")
)

// Decrypter defines the driven port for the external decryption capability.
// The console never implements a cipher in its core; it only hands the
// ciphertext and operator-supplied key material to this port.
type Decrypter interface {
	// Decrypt returns the plaintext for ciphertext. Implementations return
	// an error wrapping ErrWrongKey or ErrCapabilityUnavailable, or the
	// context error on cancellation.
	Decrypt(ctx context.Context, ciphertext []byte, keyMaterial string) (string, error)
}
