package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned for malformed script text, non-positive
	// line numbers, and empty key material.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownTarget is returned when an operation names a record that
	// does not exist.
	ErrUnknownTarget = errors.New("unknown target")

	// ErrDecryptionFailure marks a failed decrypt attempt. The record keeps
	// its ciphertext and may be retried.
	ErrDecryptionFailure = errors.New("decryption failed")

	// ErrNoPendingRequest is returned when dismissing a record that has no
	// decrypt request in flight.
	ErrNoPendingRequest = errors.New("no pending decrypt request")

	// ErrRequestSuperseded is returned to the caller whose decrypt result
	// arrived after the request was dismissed or replaced.
	ErrRequestSuperseded = errors.New("decrypt request superseded")
)

// DecryptError reports a failed decrypt attempt on a single record.
type DecryptError struct {
	RecordID string
	Cause    error
}

func (e *DecryptError) Error() string {
	return fmt.Sprintf("decrypt record %s: %v", e.RecordID, e.Cause)
}

// Unwrap exposes the capability error so callers can match driven sentinels.
func (e *DecryptError) Unwrap() error { return e.Cause }

// Is matches ErrDecryptionFailure in addition to the wrapped cause.
func (e *DecryptError) Is(target error) bool { return target == ErrDecryptionFailure }
