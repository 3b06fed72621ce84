package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Get("/", s.handleIndex)
	r.Get("/ping", s.handlePing)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/debug/config", s.handleDebugConfig)

	if s.cfg.Metrics.Enabled {
		r.Handle(s.cfg.Metrics.Path, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/oauth", func(r chi.Router) {
		r.Get("/authorize", s.handleAuthorize)
		r.Post("/token", s.handleToken)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.ownerMiddleware(false))
		r.Post("/smarthome", s.handleSmartHome)
		r.Get("/api/v1/audit", s.handleListAudit)
	})

	// Browsers cannot set headers on a WebSocket handshake.
	r.With(s.ownerMiddleware(true)).Get(s.cfg.WebSocket.Path, s.handleWebSocket)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "route not found")
	})

	return r
}
