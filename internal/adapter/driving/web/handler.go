// Package web implements the HTML console driving adapter using templ components.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/a-h/templ"

	"github.com/ericfisherdev/opconsole/internal/adapter/driving/web/templates"
	"github.com/ericfisherdev/opconsole/internal/adapter/driving/web/templates/components"
	"github.com/ericfisherdev/opconsole/internal/adapter/driving/web/templates/pages"
	vm "github.com/ericfisherdev/opconsole/internal/adapter/driving/web/viewmodel"
	"github.com/ericfisherdev/opconsole/internal/application"
	"github.com/ericfisherdev/opconsole/internal/domain/model"
)

const (
	pageTitle = "Operator Console"

	// partialHeader marks requests from console.js that want a fragment
	// back instead of a redirect to the page.
	partialHeader = "X-Console-Partial"
)

// Handler is the web console driving adapter that serves HTML via templ components.
type Handler struct {
	tracker       *application.ScriptProgressTracker
	credentials   *application.CredentialLogStore
	deviceLog     *application.DeviceLog
	provider      *application.DecrypterProvider
	liveFeed      http.Handler
	previewLength int
	logger        *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. liveFeed
// serves the websocket endpoint; provider may be nil.
func NewHandler(
	tracker *application.ScriptProgressTracker,
	credentials *application.CredentialLogStore,
	deviceLog *application.DeviceLog,
	provider *application.DecrypterProvider,
	liveFeed http.Handler,
	previewLength int,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		tracker:       tracker,
		credentials:   credentials,
		deviceLog:     deviceLog,
		provider:      provider,
		liveFeed:      liveFeed,
		previewLength: previewLength,
		logger:        logger,
	}
}

// Console renders the operator console page with the full HTML layout.
func (h *Handler) Console(w http.ResponseWriter, r *http.Request) {
	page := vm.ConsoleViewModel{
		Title:     pageTitle,
		CSRFToken: csrfToken(w, r),
		Decrypter: h.decrypterName(),
		Script:    toScriptViewModel(h.tracker.Snapshot()),
		Records:   toRecordViewModels(h.credentials.List(), h.previewLength),
		DeviceLog: toDeviceLogViewModels(h.deviceLog.Snapshot()),
	}

	h.render(w, r, "console", templates.Layout(pageTitle, pages.Console(page)))
}

// ScriptPartial renders the script panel alone.
func (h *Handler) ScriptPartial(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "script panel", components.ScriptPanel(toScriptViewModel(h.tracker.Snapshot())))
}

// CapturesPartial renders the credential table body alone.
func (h *Handler) CapturesPartial(w http.ResponseWriter, r *http.Request) {
	records := toRecordViewModels(h.credentials.List(), h.previewLength)
	h.render(w, r, "captures", components.CaptureRows(records, csrfToken(w, r)))
}

// CaptureRowPartial renders a single credential row.
func (h *Handler) CaptureRowPartial(w http.ResponseWriter, r *http.Request) {
	rec, err := h.credentials.Get(r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.renderRow(w, r, rec)
}

// DeviceLogPartial renders the device log panel alone.
func (h *Handler) DeviceLogPartial(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "device log", components.DeviceLogPanel(toDeviceLogViewModels(h.deviceLog.Snapshot())))
}

// Decrypt starts decrypting a record with the key material from the form.
// The capability call runs in the background; the response shows the
// record in decrypt_requested and the outcome arrives over the live feed.
func (h *Handler) Decrypt(w http.ResponseWriter, r *http.Request) {
	if !validateCSRF(r) {
		http.Error(w, "invalid CSRF token", http.StatusForbidden)
		return
	}

	id := r.PathValue("id")
	// Detach from the request: the decrypt outlives this response and is
	// bounded by the store's timeout instead.
	rec, err := h.credentials.StartDecrypt(context.WithoutCancel(r.Context()), id, r.FormValue("key"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.respondWithRow(w, r, rec)
}

// Dismiss abandons a pending decrypt request.
func (h *Handler) Dismiss(w http.ResponseWriter, r *http.Request) {
	if !validateCSRF(r) {
		http.Error(w, "invalid CSRF token", http.StatusForbidden)
		return
	}

	rec, err := h.credentials.Dismiss(r.PathValue("id"))
	if err != nil && !errors.Is(err, model.ErrNoPendingRequest) {
		h.writeDomainError(w, err)
		return
	}

	// Nothing pending means the request already resolved; show the result.
	h.respondWithRow(w, r, rec)
}

// LiveFeed upgrades the request to the websocket live feed.
func (h *Handler) LiveFeed(w http.ResponseWriter, r *http.Request) {
	if h.liveFeed == nil {
		http.NotFound(w, r)
		return
	}
	h.liveFeed.ServeHTTP(w, r)
}

// respondWithRow answers a form post: a row fragment for console.js, or a
// redirect back to the page for a plain form submission.
func (h *Handler) respondWithRow(w http.ResponseWriter, r *http.Request, rec model.CredentialRecord) {
	if r.Header.Get(partialHeader) == "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.renderRow(w, r, rec)
}

func (h *Handler) renderRow(w http.ResponseWriter, r *http.Request, rec model.CredentialRecord) {
	h.render(w, r, "capture row", components.CaptureRow(toRecordViewModel(rec, h.previewLength), csrfToken(w, r)))
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, name string, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := c.Render(r.Context(), w); err != nil {
		h.logger.Error("failed to render "+name, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidInput):
		http.Error(w, "key material is required", http.StatusBadRequest)
	case errors.Is(err, model.ErrUnknownTarget):
		http.Error(w, "record not found", http.StatusNotFound)
	default:
		h.logger.Error("console request failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) decrypterName() string {
	if h.provider == nil || !h.provider.HasDecrypter() {
		return "none"
	}
	return h.provider.Name()
}
