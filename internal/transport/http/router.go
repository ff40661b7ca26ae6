package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"attest/internal/platform/middleware"
)

// NewRouter wires all public endpoints with the middleware stack.
func NewRouter(h *Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.ContentTypeJSON)

	// Credential lifecycle
	r.Post("/credentials", h.handleIssue)
	r.Get("/credentials", h.handleListByStudent)
	r.Get("/credentials/{tokenID}", h.handleVerify)
	r.Post("/credentials/{tokenID}/revoke", h.handleRevoke)
	r.Get("/credentials/{tokenID}/history", h.handleHistory)

	// Sharing
	r.Post("/credentials/{tokenID}/share", h.handleShare)
	r.Get("/share/{token}", h.handleResolveShare)

	// Introspection
	r.Get("/quota/{identity}", h.handleQuota)
	r.Get("/healthz", h.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
