package httphandler

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ericfisherdev/opconsole/internal/application"
	"github.com/ericfisherdev/opconsole/internal/domain/model"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// Handler is the HTTP driving adapter that serves the REST API: telemetry
// ingest from the agent and queries and decrypt requests from operators.
type Handler struct {
	telemetry     *application.TelemetryService
	tracker       *application.ScriptProgressTracker
	credentials   *application.CredentialLogStore
	deviceLog     *application.DeviceLog
	provider      *application.DecrypterProvider
	previewLength int
	logger        *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. provider may
// be nil, in which case the health endpoint reports no decrypter.
func NewHandler(
	telemetry *application.TelemetryService,
	tracker *application.ScriptProgressTracker,
	credentials *application.CredentialLogStore,
	deviceLog *application.DeviceLog,
	provider *application.DecrypterProvider,
	previewLength int,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		telemetry:     telemetry,
		tracker:       tracker,
		credentials:   credentials,
		deviceLog:     deviceLog,
		provider:      provider,
		previewLength: previewLength,
		logger:        logger,
	}
}

// RegisterAPIRoutes registers all REST API routes on the provided mux.
func RegisterAPIRoutes(mux *http.ServeMux, h *Handler) {
	mux.HandleFunc("POST /api/v1/telemetry/script", h.LoadScript)
	mux.HandleFunc("POST /api/v1/telemetry/progress", h.ReportProgress)
	mux.HandleFunc("POST /api/v1/telemetry/finished", h.FinishScript)
	mux.HandleFunc("POST /api/v1/telemetry/captures", h.RecordCapture)
	mux.HandleFunc("POST /api/v1/telemetry/devicelog", h.RecordDeviceLog)

	mux.HandleFunc("GET /api/v1/script", h.GetScript)
	mux.HandleFunc("GET /api/v1/captures", h.ListCaptures)
	mux.HandleFunc("GET /api/v1/captures/{id}", h.GetCapture)
	mux.HandleFunc("POST /api/v1/captures/{id}/decrypt", h.RequestDecrypt)
	mux.HandleFunc("DELETE /api/v1/captures/{id}/decrypt", h.DismissDecrypt)
	mux.HandleFunc("GET /api/v1/devicelog", h.ListDeviceLog)
	mux.HandleFunc("DELETE /api/v1/devicelog", h.ClearDeviceLog)
	mux.HandleFunc("GET /api/v1/health", h.Health)
}

// NewServeMux creates an http.Handler with the API routes registered and
// wrapped with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	RegisterAPIRoutes(mux, h)
	return ApplyMiddleware(mux, logger)
}

// LoadScript replaces the visualized script.
func (h *Handler) LoadScript(w http.ResponseWriter, r *http.Request) {
	var req LoadScriptRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if _, err := h.telemetry.LoadScript(r.Context(), req.Script); err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toScriptResponse(h.tracker.Snapshot()))
}

// ReportProgress moves the execution cursor to the reported line.
func (h *Handler) ReportProgress(w http.ResponseWriter, r *http.Request) {
	var req ProgressRequest
	if !decodeBody(w, r, &req) {
		return
	}

	change, err := h.telemetry.ReportProgress(req.Line)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toCursorResponse(change))
}

// FinishScript clears the active line.
func (h *Handler) FinishScript(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toCursorResponse(h.telemetry.FinishScript()))
}

// RecordCapture appends a captured credential to the log.
func (h *Handler) RecordCapture(w http.ResponseWriter, r *http.Request) {
	var req CaptureRequest
	if !decodeBody(w, r, &req) {
		return
	}

	payload, err := decodePayload(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	capture := model.Capture{
		Principal: req.Principal,
		Payload:   payload,
	}
	if req.CapturedAt != nil {
		capture.CapturedAt = *req.CapturedAt
	}

	rec := h.telemetry.RecordCapture(r.Context(), capture)
	writeJSON(w, http.StatusCreated, toRecordResponse(rec, h.previewLength))
}

// RecordDeviceLog stores a debug line forwarded by the agent.
func (h *Handler) RecordDeviceLog(w http.ResponseWriter, r *http.Request) {
	var req DeviceLogRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	entry := h.telemetry.RecordDeviceLog(req.Component, model.ParseLogLevel(req.Level), req.Message)
	writeJSON(w, http.StatusCreated, toDeviceLogEntryResponse(entry))
}

// GetScript returns the loaded script and the active line.
func (h *Handler) GetScript(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toScriptResponse(h.tracker.Snapshot()))
}

// ListCaptures returns all credential records, newest first.
func (h *Handler) ListCaptures(w http.ResponseWriter, _ *http.Request) {
	records := h.credentials.List()

	resp := make([]RecordResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, toRecordResponse(rec, h.previewLength))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetCapture returns a single credential record.
func (h *Handler) GetCapture(w http.ResponseWriter, r *http.Request) {
	rec, err := h.credentials.Get(r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toRecordResponse(rec, h.previewLength))
}

// RequestDecrypt decrypts a record with the supplied key material and
// blocks until the decryption capability answers.
func (h *Handler) RequestDecrypt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req DecryptRequest
	if !decodeBody(w, r, &req) {
		return
	}

	rec, err := h.credentials.RequestDecrypt(r.Context(), id, req.Key)
	if err != nil {
		if errors.Is(err, model.ErrDecryptionFailure) {
			writeJSON(w, http.StatusUnprocessableEntity, DecryptFailureResponse{
				Error:  rec.FailureReason,
				Record: toRecordResponse(rec, h.previewLength),
			})
			return
		}
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toRecordResponse(rec, h.previewLength))
}

// DismissDecrypt abandons the pending decrypt request for a record.
func (h *Handler) DismissDecrypt(w http.ResponseWriter, r *http.Request) {
	rec, err := h.credentials.Dismiss(r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toRecordResponse(rec, h.previewLength))
}

// ListDeviceLog returns the retained device log lines, oldest first.
func (h *Handler) ListDeviceLog(w http.ResponseWriter, _ *http.Request) {
	entries := h.deviceLog.Snapshot()

	resp := make([]DeviceLogEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, toDeviceLogEntryResponse(e))
	}

	writeJSON(w, http.StatusOK, resp)
}

// ClearDeviceLog drops all retained device log lines.
func (h *Handler) ClearDeviceLog(w http.ResponseWriter, _ *http.Request) {
	h.deviceLog.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	decrypter := "none"
	if h.provider != nil && h.provider.HasDecrypter() {
		decrypter = h.provider.Name()
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Time:      time.Now().UTC().Format(time.RFC3339),
		Decrypter: decrypter,
		Captures:  h.credentials.Len(),
	})
}

// writeDomainError maps domain errors to HTTP status codes. Anything
// unrecognised is logged and reported as a 500.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrUnknownTarget):
		writeError(w, http.StatusNotFound, "record not found")
	case errors.Is(err, model.ErrNoPendingRequest):
		writeError(w, http.StatusConflict, "no decrypt request pending")
	case errors.Is(err, model.ErrRequestSuperseded):
		writeError(w, http.StatusConflict, "decrypt request superseded")
	default:
		h.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeBody decodes a size-limited JSON body into v. On failure it writes
// a 400 and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// decodePayload returns the ciphertext from whichever encoding the agent used.
func decodePayload(req CaptureRequest) ([]byte, error) {
	b64 := strings.TrimSpace(req.Payload)
	hx := strings.TrimSpace(req.PayloadHex)

	switch {
	case b64 != "" && hx != "":
		return nil, errors.New("payload and payload_hex are mutually exclusive")
	case b64 != "":
		payload, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, errors.New("payload is not valid base64")
		}
		return payload, nil
	case hx != "":
		payload, err := hex.DecodeString(hx)
		if err != nil {
			return nil, errors.New("payload_hex is not valid hex")
		}
		return payload, nil
	default:
		return nil, errors.New("payload is required")
	}
}
