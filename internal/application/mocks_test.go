package application_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ericfisherdev/opconsole/internal/domain/model"
	"github.com/ericfisherdev/opconsole/internal/domain/port/driven"
)

// --- Mock implementations ---

type progressEvent struct {
	loaded   *model.Script
	change   model.CursorChange
	sequence uint64
}

type recordingProgressListener struct {
	mu     sync.Mutex
	events []progressEvent
}

func (l *recordingProgressListener) ScriptLoaded(script model.Script, sequence uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, progressEvent{loaded: &script, sequence: sequence})
}

func (l *recordingProgressListener) CursorMoved(change model.CursorChange) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, progressEvent{change: change, sequence: change.Sequence})
}

func (l *recordingProgressListener) snapshot() []progressEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]progressEvent(nil), l.events...)
}

type recordingRecordListener struct {
	mu       sync.Mutex
	appended []model.CredentialRecord
	updated  []model.CredentialRecord
}

func (l *recordingRecordListener) RecordAppended(r model.CredentialRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appended = append(l.appended, r)
}

func (l *recordingRecordListener) RecordUpdated(r model.CredentialRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.updated = append(l.updated, r)
}

func (l *recordingRecordListener) states() []model.DecryptionState {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.DecryptionState, 0, len(l.updated))
	for _, r := range l.updated {
		out = append(out, r.State)
	}
	return out
}

// funcDecrypter adapts a function to driven.Decrypter.
type recordingDeviceLogListener struct {
	mu      sync.Mutex
	entries []model.DeviceLogEntry
}

func (l *recordingDeviceLogListener) DeviceLogAppended(e model.DeviceLogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
}

func (l *recordingDeviceLogListener) snapshot() []model.DeviceLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.DeviceLogEntry(nil), l.entries...)
}

type funcDecrypter func(ctx context.Context, ciphertext []byte, key string) (string, error)

func (f funcDecrypter) Decrypt(ctx context.Context, ciphertext []byte, key string) (string, error) {
	return f(ctx, ciphertext, key)
}

// keyDecrypter accepts only the given key and returns plaintext.
func keyDecrypter(key, plaintext string) funcDecrypter {
	return func(_ context.Context, _ []byte, got string) (string, error) {
		if got != key {
			return "", driven.ErrWrongKey
		}
		return plaintext, nil
	}
}

// blockingDecrypter waits for release or context cancellation.
type blockingDecrypter struct {
	started chan struct{}
	release chan string
}

func newBlockingDecrypter() *blockingDecrypter {
	return &blockingDecrypter{
		started: make(chan struct{}, 8),
		release: make(chan string, 8),
	}
}

func (b *blockingDecrypter) Decrypt(ctx context.Context, _ []byte, _ string) (string, error) {
	b.started <- struct{}{}
	select {
	case p := <-b.release:
		return p, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// lateDecrypter ignores cancellation and always answers after release.
type lateDecrypter struct {
	started chan struct{}
	release chan struct{}
}

func (l *lateDecrypter) Decrypt(_ context.Context, _ []byte, _ string) (string, error) {
	l.started <- struct{}{}
	<-l.release
	return "late plaintext", nil
}

type memCaptureStore struct {
	mu        sync.Mutex
	records   []model.CredentialRecord
	appendErr error
	listErr   error
}

func (m *memCaptureStore) Append(_ context.Context, r model.CredentialRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.records = append(m.records, r.Clone())
	return nil
}

func (m *memCaptureStore) ListAll(_ context.Context) ([]model.CredentialRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]model.CredentialRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r.Clone())
	}
	return out, nil
}

type memScriptStore struct {
	saved   []driven.StoredScript
	saveErr error
}

func (m *memScriptStore) Save(_ context.Context, text string, loadedAt time.Time) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, driven.StoredScript{ID: int64(len(m.saved) + 1), Text: text, LoadedAt: loadedAt})
	return nil
}

func (m *memScriptStore) Latest(_ context.Context) (*driven.StoredScript, error) {
	if len(m.saved) == 0 {
		return nil, nil
	}
	s := m.saved[len(m.saved)-1]
	return &s, nil
}

var errJournal = errors.New("journal unavailable")
