package httphandler_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httphandler "github.com/ericfisherdev/opconsole/internal/adapter/driving/http"
	"github.com/ericfisherdev/opconsole/internal/application"
	"github.com/ericfisherdev/opconsole/internal/domain/model"
	"github.com/ericfisherdev/opconsole/internal/domain/port/driven"
)

// --- Test doubles ---

// keyDecrypter accepts only key and answers with plaintext.
type keyDecrypter struct {
	key       string
	plaintext string
}

func (d keyDecrypter) Decrypt(_ context.Context, _ []byte, key string) (string, error) {
	if key != d.key {
		return "", driven.ErrWrongKey
	}
	return d.plaintext, nil
}

type testAPI struct {
	mux         http.Handler
	tracker     *application.ScriptProgressTracker
	credentials *application.CredentialLogStore
	deviceLog   *application.DeviceLog
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupAPI wires real application services around decrypter. A nil
// decrypter leaves the provider empty.
func setupAPI(t *testing.T, decrypter driven.Decrypter) testAPI {
	t.Helper()

	logger := discardLogger()
	var provider *application.DecrypterProvider
	if decrypter != nil {
		provider = application.NewDecrypterProvider(decrypter, "test")
	} else {
		provider = application.NewDecrypterProvider(nil, "")
	}

	tracker := application.NewScriptProgressTracker()
	credentials := application.NewCredentialLogStore(provider, nil, time.Second, logger)
	deviceLog := application.NewDeviceLog(5)
	telemetry := application.NewTelemetryService(tracker, credentials, deviceLog, nil, logger)

	h := httphandler.NewHandler(telemetry, tracker, credentials, deviceLog, provider, 8, logger)
	return testAPI{
		mux:         httphandler.NewServeMux(h, logger),
		tracker:     tracker,
		credentials: credentials,
		deviceLog:   deviceLog,
	}
}

func do(t *testing.T, mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	err := json.NewDecoder(rec.Body).Decode(v)
	require.NoError(t, err)
}

func (a testAPI) appendCapture(principal string, payload []byte) model.CredentialRecord {
	return a.credentials.Append(context.Background(), model.Capture{Principal: principal, Payload: payload})
}

// --- Tests ---

func TestLoadScript(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantLines  int
		wantError  string
	}{
		{
			name:       "three lines",
			body:       `{"script": "GUI 500\nDELAY 1000\nSTRING whoami\n"}`,
			wantStatus: http.StatusCreated,
			wantLines:  3,
		},
		{
			name:       "empty script",
			body:       `{"script": ""}`,
			wantStatus: http.StatusCreated,
			wantLines:  0,
		},
		{
			name:       "invalid JSON",
			body:       `not json`,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid request body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := setupAPI(t, nil)
			rec := do(t, api.mux, http.MethodPost, "/api/v1/telemetry/script", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantStatus == http.StatusCreated {
				var resp httphandler.ScriptResponse
				decodeJSON(t, rec, &resp)
				assert.Len(t, resp.Lines, tt.wantLines)
				assert.Zero(t, resp.ActiveLine)
			}

			if tt.wantError != "" {
				var resp map[string]any
				decodeJSON(t, rec, &resp)
				assert.Equal(t, tt.wantError, resp["error"])
			}
		})
	}
}

func TestProgressScenario(t *testing.T) {
	api := setupAPI(t, nil)

	rec := do(t, api.mux, http.MethodPost, "/api/v1/telemetry/script", `{"script": "GUI 500\nDELAY 1000\nSTRING whoami\n"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, api.mux, http.MethodPost, "/api/v1/telemetry/progress", `{"line": 2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var cursor httphandler.CursorResponse
	decodeJSON(t, rec, &cursor)
	assert.Equal(t, 0, cursor.Previous)
	assert.Equal(t, 2, cursor.Current)
	assert.True(t, cursor.Rendered)

	rec = do(t, api.mux, http.MethodGet, "/api/v1/script", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var script httphandler.ScriptResponse
	decodeJSON(t, rec, &script)
	assert.Equal(t, 2, script.ActiveLine)
	require.Len(t, script.Lines, 3)
	assert.False(t, script.Lines[0].Active)
	assert.True(t, script.Lines[1].Active)
	assert.Equal(t, "DELAY 1000", script.Lines[1].Text)
	assert.False(t, script.Lines[2].Active)

	rec = do(t, api.mux, http.MethodPost, "/api/v1/telemetry/progress", `{"line": 3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeJSON(t, rec, &cursor)
	assert.Equal(t, 2, cursor.Previous)
	assert.Equal(t, 3, cursor.Current)

	rec = do(t, api.mux, http.MethodPost, "/api/v1/telemetry/finished", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decodeJSON(t, rec, &cursor)
	assert.Equal(t, 3, cursor.Previous)
	assert.Equal(t, 0, cursor.Current)

	assert.False(t, api.tracker.Snapshot().Cursor.HasActive())
}

func TestReportProgress(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		wantStatus   int
		wantRendered bool
	}{
		{"loaded line", `{"line": 1}`, http.StatusOK, true},
		{"beyond script", `{"line": 99}`, http.StatusOK, false},
		{"zero line", `{"line": 0}`, http.StatusBadRequest, false},
		{"negative line", `{"line": -4}`, http.StatusBadRequest, false},
		{"wrong type", `{"line": "two"}`, http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := setupAPI(t, nil)
			_, err := api.tracker.Load("STRING a\nSTRING b")
			require.NoError(t, err)

			rec := do(t, api.mux, http.MethodPost, "/api/v1/telemetry/progress", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantStatus == http.StatusOK {
				var resp httphandler.CursorResponse
				decodeJSON(t, rec, &resp)
				assert.Equal(t, tt.wantRendered, resp.Rendered)
			}
		})
	}
}

func TestRecordCapture(t *testing.T) {
	payload := []byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x11, 0x22, 0x33, 0x44}

	tests := []struct {
		name        string
		body        string
		wantStatus  int
		wantError   string
		wantPreview string
	}{
		{
			name:        "base64 payload",
			body:        `{"principal": "CORP\\alice", "payload": "` + base64.StdEncoding.EncodeToString(payload) + `"}`,
			wantStatus:  http.StatusCreated,
			wantPreview: "deadbeef...",
		},
		{
			name:        "hex payload",
			body:        `{"principal": "CORP\\alice", "payload_hex": "deadbeef0011223344", "captured_at": "2026-03-01T10:00:00Z"}`,
			wantStatus:  http.StatusCreated,
			wantPreview: "deadbeef...",
		},
		{
			name:       "missing payload",
			body:       `{"principal": "alice"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "payload is required",
		},
		{
			name:       "both encodings",
			body:       `{"principal": "alice", "payload": "AA==", "payload_hex": "00"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "payload and payload_hex are mutually exclusive",
		},
		{
			name:       "bad base64",
			body:       `{"principal": "alice", "payload": "%%%"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "payload is not valid base64",
		},
		{
			name:       "bad hex",
			body:       `{"principal": "alice", "payload_hex": "zz"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "payload_hex is not valid hex",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := setupAPI(t, nil)
			rec := do(t, api.mux, http.MethodPost, "/api/v1/telemetry/captures", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantStatus == http.StatusCreated {
				var resp httphandler.RecordResponse
				decodeJSON(t, rec, &resp)
				assert.NotEmpty(t, resp.ID)
				assert.Equal(t, `CORP\alice`, resp.Principal)
				assert.Equal(t, "encrypted", resp.State)
				assert.Equal(t, tt.wantPreview, resp.Preview)
				assert.Equal(t, len(payload), resp.PayloadBytes)
				assert.Empty(t, resp.Plaintext)

				stored, err := api.credentials.Get(resp.ID)
				require.NoError(t, err)
				assert.Equal(t, payload, stored.CipherPayload)
			}

			if tt.wantError != "" {
				var resp map[string]any
				decodeJSON(t, rec, &resp)
				assert.Equal(t, tt.wantError, resp["error"])
				assert.Zero(t, api.credentials.Len())
			}
		})
	}
}

func TestRecordCapture_KeepsCapturedAt(t *testing.T) {
	api := setupAPI(t, nil)

	rec := do(t, api.mux, http.MethodPost, "/api/v1/telemetry/captures",
		`{"principal": "bob", "payload_hex": "0102", "captured_at": "2026-03-01T10:00:00Z"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp httphandler.RecordResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "2026-03-01T10:00:00Z", resp.CapturedAt)
}

func TestListCaptures_NewestFirst(t *testing.T) {
	api := setupAPI(t, nil)
	api.appendCapture("first", []byte{1})
	api.appendCapture("second", []byte{2})
	api.appendCapture("third", []byte{3})

	rec := do(t, api.mux, http.MethodGet, "/api/v1/captures", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []httphandler.RecordResponse
	decodeJSON(t, rec, &resp)
	require.Len(t, resp, 3)
	assert.Equal(t, "third", resp[0].Principal)
	assert.Equal(t, "second", resp[1].Principal)
	assert.Equal(t, "first", resp[2].Principal)
}

func TestListCaptures_Empty(t *testing.T) {
	api := setupAPI(t, nil)

	rec := do(t, api.mux, http.MethodGet, "/api/v1/captures", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestListCaptures_NeverExposesFullPayload(t *testing.T) {
	api := setupAPI(t, nil)
	payload := bytes.Repeat([]byte{0xab}, 64)
	api.appendCapture("alice", payload)

	rec := do(t, api.mux, http.MethodGet, "/api/v1/captures", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.NotContains(t, body, strings.Repeat("ab", 64))
	assert.NotContains(t, body, base64.StdEncoding.EncodeToString(payload))
}

func TestGetCapture(t *testing.T) {
	api := setupAPI(t, nil)
	stored := api.appendCapture("alice", []byte{1, 2, 3})

	rec := do(t, api.mux, http.MethodGet, "/api/v1/captures/"+stored.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp httphandler.RecordResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, stored.ID, resp.ID)

	rec = do(t, api.mux, http.MethodGet, "/api/v1/captures/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var errResp map[string]any
	decodeJSON(t, rec, &errResp)
	assert.Equal(t, "record not found", errResp["error"])
}

func TestRequestDecrypt(t *testing.T) {
	tests := []struct {
		name          string
		decrypter     driven.Decrypter
		id            string
		body          string
		wantStatus    int
		wantState     string
		wantPlaintext string
		wantReason    string
	}{
		{
			name:          "correct key",
			decrypter:     keyDecrypter{key: "k3y", plaintext: "Winter2026!"},
			body:          `{"key": "k3y"}`,
			wantStatus:    http.StatusOK,
			wantState:     "decrypted",
			wantPlaintext: "Winter2026!",
		},
		{
			name:       "wrong key",
			decrypter:  keyDecrypter{key: "k3y", plaintext: "Winter2026!"},
			body:       `{"key": "nope"}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantState:  "decrypt_failed",
			wantReason: application.ReasonWrongKey,
		},
		{
			name:       "no capability",
			body:       `{"key": "k3y"}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantState:  "decrypt_failed",
			wantReason: application.ReasonUnavailable,
		},
		{
			name:       "empty key",
			decrypter:  keyDecrypter{key: "k3y"},
			body:       `{"key": "  "}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown record",
			decrypter:  keyDecrypter{key: "k3y"},
			id:         "missing",
			body:       `{"key": "k3y"}`,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "unknown record with empty key",
			decrypter:  keyDecrypter{key: "k3y"},
			id:         "missing",
			body:       `{"key": ""}`,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "invalid JSON",
			decrypter:  keyDecrypter{key: "k3y"},
			body:       `{`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := setupAPI(t, tt.decrypter)
			payload := []byte{9, 8, 7, 6}
			stored := api.appendCapture("alice", payload)

			id := tt.id
			if id == "" {
				id = stored.ID
			}

			rec := do(t, api.mux, http.MethodPost, "/api/v1/captures/"+id+"/decrypt", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)

			switch tt.wantStatus {
			case http.StatusOK:
				var resp httphandler.RecordResponse
				decodeJSON(t, rec, &resp)
				assert.Equal(t, tt.wantState, resp.State)
				assert.Equal(t, tt.wantPlaintext, resp.Plaintext)
			case http.StatusUnprocessableEntity:
				var resp httphandler.DecryptFailureResponse
				decodeJSON(t, rec, &resp)
				assert.Equal(t, tt.wantReason, resp.Error)
				assert.Equal(t, tt.wantState, resp.Record.State)
				assert.Empty(t, resp.Record.Plaintext)
			}

			// The ciphertext survives every outcome.
			after, err := api.credentials.Get(stored.ID)
			require.NoError(t, err)
			assert.Equal(t, payload, after.CipherPayload)
		})
	}
}

func TestRequestDecrypt_RetryAfterFailure(t *testing.T) {
	api := setupAPI(t, keyDecrypter{key: "right", plaintext: "secret"})
	stored := api.appendCapture("alice", []byte{1})

	rec := do(t, api.mux, http.MethodPost, "/api/v1/captures/"+stored.ID+"/decrypt", `{"key": "wrong"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, api.mux, http.MethodPost, "/api/v1/captures/"+stored.ID+"/decrypt", `{"key": "right"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp httphandler.RecordResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "decrypted", resp.State)
	assert.Equal(t, "secret", resp.Plaintext)
}

func TestDismissDecrypt_NothingPending(t *testing.T) {
	api := setupAPI(t, nil)
	stored := api.appendCapture("alice", []byte{1})

	rec := do(t, api.mux, http.MethodDelete, "/api/v1/captures/"+stored.ID+"/decrypt", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, api.mux, http.MethodDelete, "/api/v1/captures/missing/decrypt", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeviceLog(t *testing.T) {
	api := setupAPI(t, nil)

	rec := do(t, api.mux, http.MethodPost, "/api/v1/telemetry/devicelog",
		`{"component": "usb", "level": "warn", "message": "enumeration slow"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var entry httphandler.DeviceLogEntryResponse
	decodeJSON(t, rec, &entry)
	assert.Equal(t, "usb", entry.Component)
	assert.Equal(t, "warn", entry.Level)
	assert.Equal(t, "enumeration slow", entry.Message)

	rec = do(t, api.mux, http.MethodPost, "/api/v1/telemetry/devicelog", `{"component": "usb", "level": "info"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, api.mux, http.MethodGet, "/api/v1/devicelog", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []httphandler.DeviceLogEntryResponse
	decodeJSON(t, rec, &entries)
	require.Len(t, entries, 1)

	rec = do(t, api.mux, http.MethodDelete, "/api/v1/devicelog", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, api.deviceLog.Snapshot())
}

func TestDeviceLog_UnknownLevelIsInfo(t *testing.T) {
	api := setupAPI(t, nil)

	rec := do(t, api.mux, http.MethodPost, "/api/v1/telemetry/devicelog",
		`{"component": "wifi", "level": "chatty", "message": "hello"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var entry httphandler.DeviceLogEntryResponse
	decodeJSON(t, rec, &entry)
	assert.Equal(t, "info", entry.Level)
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name          string
		decrypter     driven.Decrypter
		wantDecrypter string
	}{
		{"with decrypter", keyDecrypter{}, "test"},
		{"without decrypter", nil, "none"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := setupAPI(t, tt.decrypter)
			api.appendCapture("alice", []byte{1})

			rec := do(t, api.mux, http.MethodGet, "/api/v1/health", "")
			assert.Equal(t, http.StatusOK, rec.Code)

			var resp map[string]any
			decodeJSON(t, rec, &resp)
			assert.Equal(t, "ok", resp["status"])
			assert.NotEmpty(t, resp["time"])
			assert.Equal(t, tt.wantDecrypter, resp["decrypter"])
			assert.EqualValues(t, 1, resp["captures"])
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	api := setupAPI(t, nil)

	rec := do(t, api.mux, http.MethodGet, "/api/v1/telemetry/progress", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
