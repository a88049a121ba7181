package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Health и metrics
	mux.HandleFunc("GET /healthz", h.Health)
	mux.Handle("GET /metrics", h.metrics)

	// Workers
	mux.Handle("GET /api/v1/workers", chain(http.HandlerFunc(h.ListWorkers)))
	mux.Handle("GET /api/v1/plan", chain(http.HandlerFunc(h.GetPlan)))

	// Stats
	mux.Handle("GET /api/v1/stats", chain(http.HandlerFunc(h.GetStats)))
	mux.Handle("GET /api/v1/stats/history", chain(http.HandlerFunc(h.ListStatsHistory)))
	mux.Handle("POST /api/v1/stats/collect", chain(http.HandlerFunc(h.CollectStats)))

	// Messaging
	mux.Handle("POST /api/v1/broadcast", chain(http.HandlerFunc(h.Broadcast)))
}
