package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// Health сообщает, что цикл оркестратора отвечает.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	workers, err := h.cluster.Snapshot(r.Context())
	if err != nil {
		JSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status: "unavailable",
			Uptime: time.Since(h.startedAt).Round(time.Second).String(),
		})
		return
	}
	JSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Uptime:  time.Since(h.startedAt).Round(time.Second).String(),
		Workers: len(workers),
		Shards:  h.cluster.Plan().TotalShards,
	})
}

// ListWorkers возвращает воркеров по возрастанию id.
// GET /api/v1/workers
func (h *Handler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := h.cluster.Snapshot(r.Context())
	if HandleError(w, h.logger, err, "") {
		return
	}

	result := make([]WorkerResponse, len(workers))
	for i, info := range workers {
		result[i] = WorkerFromDomain(info)
	}

	List(w, result, len(result))
}

// GetPlan возвращает рассчитанный план шардов.
// GET /api/v1/plan
func (h *Handler) GetPlan(w http.ResponseWriter, _ *http.Request) {
	Success(w, h.cluster.Plan())
}

// GetStats возвращает последний агрегат статистики.
// GET /api/v1/stats
func (h *Handler) GetStats(w http.ResponseWriter, _ *http.Request) {
	stats, ok := h.cluster.LatestStats()
	if !ok {
		NotFound(w, "stats have not been collected yet")
		return
	}
	Success(w, stats)
}

// ListStatsHistory возвращает последние агрегаты из архива.
// GET /api/v1/stats/history?limit=...
func (h *Handler) ListStatsHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		NotFound(w, "stats archive is not configured")
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			BadRequest(w, "invalid limit")
			return
		}
		limit = min(n, 500)
	}

	history, err := h.history.ListRecent(r.Context(), limit)
	if HandleError(w, h.logger, err, "") {
		return
	}

	List(w, history, len(history))
}

// CollectStats запускает внеочередной раунд сбора статистики.
// POST /api/v1/stats/collect
func (h *Handler) CollectStats(w http.ResponseWriter, r *http.Request) {
	if HandleError(w, h.logger, h.cluster.RequestStats(r.Context()), "") {
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Broadcast рассылает сообщение всем воркерам.
// POST /api/v1/broadcast
func (h *Handler) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req BroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON body")
		return
	}
	if len(req.Message) == 0 {
		BadRequest(w, "message is required")
		return
	}

	n, err := h.cluster.Broadcast(r.Context(), req.Message)
	if HandleError(w, h.logger, err, "") {
		return
	}

	Success(w, BroadcastResponse{Recipients: n})
}
