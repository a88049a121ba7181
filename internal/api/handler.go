package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Sharder/internal/domain"
)

// Cluster — операции оркестратора, доступные через API.
type Cluster interface {
	Snapshot(ctx context.Context) ([]domain.WorkerInfo, error)
	Plan() domain.ShardPlan
	LatestStats() (domain.ClusterStats, bool)
	RequestStats(ctx context.Context) error
	Broadcast(ctx context.Context, msg json.RawMessage) (int, error)
}

// StatsHistory — архив агрегатов статистики.
type StatsHistory interface {
	ListRecent(ctx context.Context, limit int) ([]domain.ClusterStats, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	cluster   Cluster
	history   StatsHistory
	metrics   http.Handler
	startedAt time.Time
	logger    *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Cluster Cluster

	// History (опционально; без него /stats/history отвечает 404).
	History StatsHistory

	// Metrics (опционально; если nil — promhttp.Handler()).
	Metrics http.Handler

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	return &Handler{
		cluster:   cfg.Cluster,
		history:   cfg.History,
		metrics:   metrics,
		startedAt: time.Now(),
		logger:    logger,
	}
}
