package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/opconsole/internal/application"
	"github.com/ericfisherdev/opconsole/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// LoadScriptRequest is the JSON body for the script telemetry endpoint.
type LoadScriptRequest struct {
	Script string `json:"script"`
}

// ProgressRequest is the JSON body for the progress telemetry endpoint.
type ProgressRequest struct {
	Line int `json:"line"`
}

// CaptureRequest is the JSON body for the capture telemetry endpoint.
// Exactly one of Payload (standard base64) or PayloadHex must be set.
type CaptureRequest struct {
	CapturedAt *time.Time `json:"captured_at,omitempty"`
	Principal  string     `json:"principal"`
	Payload    string     `json:"payload,omitempty"`
	PayloadHex string     `json:"payload_hex,omitempty"`
}

// DeviceLogRequest is the JSON body for the device log telemetry endpoint.
type DeviceLogRequest struct {
	Component string `json:"component"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// DecryptRequest is the JSON body for the decrypt endpoint.
type DecryptRequest struct {
	Key string `json:"key"`
}

// ScriptLineResponse is one line of the loaded script.
type ScriptLineResponse struct {
	Index  int    `json:"index"`
	Text   string `json:"text"`
	Active bool   `json:"active"`
}

// ScriptResponse is the JSON representation of the tracker state.
// ActiveLine is zero when no line is executing.
type ScriptResponse struct {
	Lines      []ScriptLineResponse `json:"lines"`
	ActiveLine int                  `json:"active_line"`
	Rendered   bool                 `json:"rendered"`
	Sequence   uint64               `json:"sequence"`
	LoadedAt   string               `json:"loaded_at,omitempty"`
}

// CursorResponse is the JSON representation of a cursor transition.
type CursorResponse struct {
	Previous int    `json:"previous"`
	Current  int    `json:"current"`
	Rendered bool   `json:"rendered"`
	Sequence uint64 `json:"sequence"`
}

// RecordResponse is the JSON representation of a credential record. The
// payload is only exposed as a preview; Plaintext is set only once the
// record is decrypted.
type RecordResponse struct {
	ID            string `json:"id"`
	Seq           int64  `json:"seq"`
	CapturedAt    string `json:"captured_at"`
	Principal     string `json:"principal"`
	Preview       string `json:"preview"`
	PayloadBytes  int    `json:"payload_bytes"`
	State         string `json:"state"`
	Plaintext     string `json:"plaintext,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
	UpdatedAt     string `json:"updated_at"`
}

// DecryptFailureResponse is returned with 422 when a decrypt attempt fails.
type DecryptFailureResponse struct {
	Error  string         `json:"error"`
	Record RecordResponse `json:"record"`
}

// DeviceLogEntryResponse is the JSON representation of a device log line.
type DeviceLogEntryResponse struct {
	Seq       int64  `json:"seq"`
	Time      string `json:"time"`
	Component string `json:"component"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Time      string `json:"time"`
	Decrypter string `json:"decrypter"`
	Captures  int    `json:"captures"`
}

// toScriptResponse converts a tracker snapshot to its JSON representation.
func toScriptResponse(s application.TrackerSnapshot) ScriptResponse {
	lines := make([]ScriptLineResponse, 0, len(s.Script.Lines))
	for _, l := range s.Script.Lines {
		lines = append(lines, ScriptLineResponse{
			Index:  l.Index,
			Text:   l.Text,
			Active: l.Index == s.Cursor.Active,
		})
	}

	_, rendered := s.ActiveLine()
	resp := ScriptResponse{
		Lines:      lines,
		ActiveLine: s.Cursor.Active,
		Rendered:   rendered,
		Sequence:   s.Sequence,
	}
	if !s.Script.LoadedAt.IsZero() {
		resp.LoadedAt = s.Script.LoadedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// toCursorResponse converts a domain CursorChange to its JSON representation.
func toCursorResponse(c model.CursorChange) CursorResponse {
	return CursorResponse{
		Previous: c.Previous.Active,
		Current:  c.Current.Active,
		Rendered: c.Rendered,
		Sequence: c.Sequence,
	}
}

// toRecordResponse converts a domain CredentialRecord to its JSON representation.
func toRecordResponse(r model.CredentialRecord, previewLength int) RecordResponse {
	resp := RecordResponse{
		ID:            r.ID,
		Seq:           r.Seq,
		CapturedAt:    r.CapturedAt.UTC().Format(time.RFC3339),
		Principal:     r.Principal,
		Preview:       r.Preview(previewLength),
		PayloadBytes:  len(r.CipherPayload),
		State:         string(r.State),
		FailureReason: r.FailureReason,
		UpdatedAt:     r.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if r.State == model.DecryptionDecrypted {
		resp.Plaintext = r.Plaintext
	}
	return resp
}

// toDeviceLogEntryResponse converts a domain DeviceLogEntry to its JSON representation.
func toDeviceLogEntryResponse(e model.DeviceLogEntry) DeviceLogEntryResponse {
	return DeviceLogEntryResponse{
		Seq:       e.Seq,
		Time:      e.Time.UTC().Format(time.RFC3339),
		Component: e.Component,
		Level:     string(e.Level),
		Message:   e.Message,
	}
}
