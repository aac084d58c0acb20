// Package http exposes the websocket endpoints: one for callers streaming
// audio, one for monitors following a call's transcripts.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"stt-relay-service/internal/app"
)

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application) http.Handler {
	h := &handlers{app: application}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api/stt", func(r chi.Router) {
		r.Get("/healthcheck", h.handleHealthcheck)
		r.Get("/transcribe", h.handleTranscribe)
		r.Get("/connect", h.handleMonitor)
	})

	return r
}

type handlers struct {
	app *app.Application
}

func (h *handlers) handleHealthcheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
