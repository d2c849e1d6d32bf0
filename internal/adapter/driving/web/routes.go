package web

import (
	"io/fs"
	"net/http"
)

// RegisterRoutes registers all web console routes on the provided mux.
// Web routes serve HTML at / and /app/* paths, and the live feed at /ws.
// Static assets are served from the embedded filesystem at /static/*.
func RegisterRoutes(mux *http.ServeMux, h *Handler) {
	// Static assets (embedded via go:embed).
	staticFS, _ := fs.Sub(StaticFS, "static")
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticFS)))

	// Page routes.
	mux.HandleFunc("GET /{$}", h.Console)

	// Partials for live refreshes.
	mux.HandleFunc("GET /app/script", h.ScriptPartial)
	mux.HandleFunc("GET /app/captures", h.CapturesPartial)
	mux.HandleFunc("GET /app/captures/{id}", h.CaptureRowPartial)
	mux.HandleFunc("GET /app/devicelog", h.DeviceLogPartial)

	// Operator actions (CSRF-checked).
	mux.HandleFunc("POST /app/captures/{id}/decrypt", h.Decrypt)
	mux.HandleFunc("POST /app/captures/{id}/dismiss", h.Dismiss)

	// Live feed.
	mux.HandleFunc("GET /ws", h.LiveFeed)
}
