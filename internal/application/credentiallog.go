package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/opconsole/internal/domain/model"
	"github.com/ericfisherdev/opconsole/internal/domain/port/driven"
)

// Failure reasons attached to records in the decrypt_failed state.
const (
	ReasonWrongKey    = "wrong key material"
	ReasonUnavailable = "decryption capability unavailable"
	ReasonTimedOut    = "decryption timed out"
	ReasonCancelled   = "decryption cancelled"
	ReasonDismissed   = "dismissed"
	ReasonError       = "decryption error"
)

// pendingRequest identifies the decrypt request currently allowed to
// resolve a record.
type pendingRequest struct {
	token  string
	cancel context.CancelFunc
}

// CredentialLogStore owns the append-only log of captured credential
// records. Records are never edited or removed; only their decryption
// state moves. Decryption is delegated to the capability held by the
// DecrypterProvider.
type CredentialLogStore struct {
	mu        sync.Mutex
	records   []model.CredentialRecord // capture order
	index     map[string]int
	pending   map[string]pendingRequest
	lastSeq   int64
	listeners map[int]driven.RecordListener
	nextID    int
	inflight  sync.WaitGroup

	provider *DecrypterProvider
	journal  driven.CaptureStore
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewCredentialLogStore creates an empty log. journal may be nil to keep
// the log in memory only. timeout bounds each capability call; zero means
// no bound beyond the caller's context.
func NewCredentialLogStore(
	provider *DecrypterProvider,
	journal driven.CaptureStore,
	timeout time.Duration,
	logger *slog.Logger,
) *CredentialLogStore {
	if provider == nil {
		provider = NewDecrypterProvider(nil, "")
	}
	return &CredentialLogStore{
		index:     make(map[string]int),
		pending:   make(map[string]pendingRequest),
		listeners: make(map[int]driven.RecordListener),
		provider:  provider,
		journal:   journal,
		timeout:   timeout,
		logger:    logger,
		now:       time.Now,
	}
}

// Subscribe registers l for future record changes and returns a function
// that removes it.
func (s *CredentialLogStore) Subscribe(l driven.RecordListener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Append adds a new encrypted record at the head of the presentation order.
// It always succeeds; a journal write failure is logged and the record
// stays in memory.
func (s *CredentialLogStore) Append(ctx context.Context, capture model.Capture) model.CredentialRecord {
	now := s.now().UTC()
	capturedAt := capture.CapturedAt.UTC()
	if capture.CapturedAt.IsZero() {
		capturedAt = now
	}

	s.mu.Lock()
	s.lastSeq++
	rec := model.CredentialRecord{
		ID:            uuid.NewString(),
		Seq:           s.lastSeq,
		CapturedAt:    capturedAt,
		Principal:     capture.Principal,
		CipherPayload: append([]byte(nil), capture.Payload...),
		State:         model.DecryptionEncrypted,
		UpdatedAt:     now,
	}
	s.insertLocked(rec)
	out := rec.Clone()
	for _, l := range s.orderedListeners() {
		l.RecordAppended(rec.Clone())
	}
	s.mu.Unlock()

	if s.journal != nil {
		if err := s.journal.Append(ctx, out); err != nil {
			s.logger.Error("capture not journaled", "record", out.ID, "seq", out.Seq, "error", err)
		}
	}

	s.logger.Info("credential captured", "record", out.ID, "seq", out.Seq, "payload_bytes", len(out.CipherPayload))
	return out
}

// Restore replays the journal into the log. Records already present are
// skipped. It returns the number of records added.
func (s *CredentialLogStore) Restore(ctx context.Context) (int, error) {
	if s.journal == nil {
		return 0, nil
	}

	stored, err := s.journal.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("restore credential log: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var added int
	for _, rec := range stored {
		if _, ok := s.index[rec.ID]; ok {
			continue
		}
		rec.State = model.DecryptionEncrypted
		rec.Plaintext = ""
		rec.FailureReason = ""
		s.insertLocked(rec.Clone())
		if rec.Seq > s.lastSeq {
			s.lastSeq = rec.Seq
		}
		added++
	}
	return added, nil
}

// RequestDecrypt asks the decryption capability to open the record's
// payload with keyMaterial and blocks until it answers. A newer request or
// a Dismiss for the same record wins over this one; in that case the late
// result is discarded and ErrRequestSuperseded is returned. A failed
// attempt leaves the record in decrypt_failed with its payload intact and
// returns an error matching model.ErrDecryptionFailure.
func (s *CredentialLogStore) RequestDecrypt(ctx context.Context, id, keyMaterial string) (model.CredentialRecord, error) {
	attempt, rec, err := s.begin(ctx, id, keyMaterial)
	if err != nil || attempt == nil {
		return rec, err
	}
	defer attempt.cancel()

	return s.run(attempt)
}

// StartDecrypt is RequestDecrypt without the wait: it moves the record to
// decrypt_requested, returns it, and resolves the request in the
// background. The outcome reaches subscribers as a record update. ctx
// bounds the capability call, not this method; callers handing over a
// request context should detach it first.
func (s *CredentialLogStore) StartDecrypt(ctx context.Context, id, keyMaterial string) (model.CredentialRecord, error) {
	attempt, rec, err := s.begin(ctx, id, keyMaterial)
	if err != nil || attempt == nil {
		return rec, err
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer attempt.cancel()
		_, _ = s.run(attempt)
	}()

	return rec, nil
}

// Wait blocks until every decrypt started with StartDecrypt has resolved.
func (s *CredentialLogStore) Wait() {
	s.inflight.Wait()
}

// decryptAttempt is a request registered by begin and not yet resolved.
type decryptAttempt struct {
	id      string
	token   string
	key     string
	payload []byte
	ctx     context.Context
	cancel  context.CancelFunc
}

// begin validates a decrypt request and, if the record can be decrypted,
// supersedes any pending request and moves the record to
// decrypt_requested. A nil attempt with a nil error means the record is
// not in a requestable state; the returned record is its current value.
func (s *CredentialLogStore) begin(ctx context.Context, id, keyMaterial string) (*decryptAttempt, model.CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return nil, model.CredentialRecord{}, fmt.Errorf("decrypt record %s: %w", id, model.ErrUnknownTarget)
	}

	rec := &s.records[i]
	if strings.TrimSpace(keyMaterial) == "" {
		return nil, rec.Clone(), fmt.Errorf("decrypt record %s: %w: empty key material", id, model.ErrInvalidInput)
	}
	if !rec.State.CanRequestDecrypt() {
		return nil, rec.Clone(), nil
	}

	if prev, ok := s.pending[id]; ok {
		prev.cancel()
	}

	var reqCtx context.Context
	var cancel context.CancelFunc
	if s.timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, s.timeout)
	} else {
		reqCtx, cancel = context.WithCancel(ctx)
	}

	attempt := &decryptAttempt{
		id:      id,
		token:   uuid.NewString(),
		key:     keyMaterial,
		payload: append([]byte(nil), rec.CipherPayload...),
		ctx:     reqCtx,
		cancel:  cancel,
	}
	s.pending[id] = pendingRequest{token: attempt.token, cancel: cancel}

	rec.State = model.DecryptionRequested
	rec.FailureReason = ""
	rec.UpdatedAt = s.now().UTC()
	s.notifyUpdatedLocked(*rec)

	s.logger.Info("decrypt requested", "record", id, "decrypter", s.provider.Name())
	return attempt, rec.Clone(), nil
}

// run calls the capability outside the lock and applies its answer.
func (s *CredentialLogStore) run(a *decryptAttempt) (model.CredentialRecord, error) {
	var plaintext string
	var err error
	decrypter := s.provider.Get()
	if decrypter == nil {
		err = driven.ErrCapabilityUnavailable
	} else {
		plaintext, err = decrypter.Decrypt(a.ctx, a.payload, a.key)
	}

	return s.resolve(a.id, a.token, plaintext, err)
}

// Dismiss abandons the pending decrypt request for a record. The record
// moves to decrypt_failed and a result that arrives later is discarded.
func (s *CredentialLogStore) Dismiss(id string) (model.CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return model.CredentialRecord{}, fmt.Errorf("dismiss record %s: %w", id, model.ErrUnknownTarget)
	}

	p, ok := s.pending[id]
	if !ok {
		return s.records[i].Clone(), fmt.Errorf("dismiss record %s: %w", id, model.ErrNoPendingRequest)
	}
	delete(s.pending, id)
	p.cancel()

	rec := &s.records[i]
	rec.State = model.DecryptionFailed
	rec.FailureReason = ReasonDismissed
	rec.UpdatedAt = s.now().UTC()
	s.notifyUpdatedLocked(*rec)

	s.logger.Info("decrypt request dismissed", "record", id)
	return rec.Clone(), nil
}

// Get returns a copy of the record with the given id.
func (s *CredentialLogStore) Get(id string) (model.CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return model.CredentialRecord{}, fmt.Errorf("get record %s: %w", id, model.ErrUnknownTarget)
	}
	return s.records[i].Clone(), nil
}

// List returns copies of all records, newest first.
func (s *CredentialLogStore) List() []model.CredentialRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.CredentialRecord, 0, len(s.records))
	for i := len(s.records) - 1; i >= 0; i-- {
		out = append(out, s.records[i].Clone())
	}
	return out
}

// Len returns the number of records in the log.
func (s *CredentialLogStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// resolve applies a capability answer if token is still the current
// request for the record.
func (s *CredentialLogStore) resolve(id, token, plaintext string, decryptErr error) (model.CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := &s.records[s.index[id]]

	p, ok := s.pending[id]
	if !ok || p.token != token {
		s.logger.Debug("discarding stale decrypt result", "record", id)
		return rec.Clone(), fmt.Errorf("decrypt record %s: %w", id, model.ErrRequestSuperseded)
	}
	delete(s.pending, id)

	rec.UpdatedAt = s.now().UTC()
	if decryptErr != nil {
		rec.State = model.DecryptionFailed
		rec.Plaintext = ""
		rec.FailureReason = failureReason(decryptErr)
		s.notifyUpdatedLocked(*rec)

		s.logger.Warn("decrypt failed", "record", id, "reason", rec.FailureReason, "error", decryptErr)
		return rec.Clone(), &model.DecryptError{RecordID: id, Cause: decryptErr}
	}

	rec.State = model.DecryptionDecrypted
	rec.Plaintext = plaintext
	rec.FailureReason = ""
	s.notifyUpdatedLocked(*rec)

	s.logger.Info("record decrypted", "record", id)
	return rec.Clone(), nil
}

func (s *CredentialLogStore) insertLocked(rec model.CredentialRecord) {
	s.index[rec.ID] = len(s.records)
	s.records = append(s.records, rec)
}

func (s *CredentialLogStore) notifyUpdatedLocked(rec model.CredentialRecord) {
	for _, l := range s.orderedListeners() {
		l.RecordUpdated(rec.Clone())
	}
}

// orderedListeners returns listeners in subscription order.
func (s *CredentialLogStore) orderedListeners() []driven.RecordListener {
	out := make([]driven.RecordListener, 0, len(s.listeners))
	for id := 0; id < s.nextID; id++ {
		if l, ok := s.listeners[id]; ok {
			out = append(out, l)
		}
	}
	return out
}

// failureReason maps a capability error to the operator-facing reason.
func failureReason(err error) string {
	switch {
	case errors.Is(err, driven.ErrWrongKey):
		return ReasonWrongKey
	case errors.Is(err, driven.ErrCapabilityUnavailable):
		return ReasonUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimedOut
	case errors.Is(err, context.Canceled):
		return ReasonCancelled
	default:
		return ReasonError
	}
}
