package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shaiso/Sharder/internal/domain"
	"github.com/shaiso/Sharder/internal/orchestrator"
)

type fakeCluster struct {
	workers     []domain.WorkerInfo
	snapshotErr error
	plan        domain.ShardPlan
	stats       *domain.ClusterStats
	collectErr  error
	collected   int
	broadcasts  []json.RawMessage
}

func (f *fakeCluster) Snapshot(context.Context) ([]domain.WorkerInfo, error) {
	return f.workers, f.snapshotErr
}

func (f *fakeCluster) Plan() domain.ShardPlan { return f.plan }

func (f *fakeCluster) LatestStats() (domain.ClusterStats, bool) {
	if f.stats == nil {
		return domain.ClusterStats{}, false
	}
	return *f.stats, true
}

func (f *fakeCluster) RequestStats(context.Context) error {
	if f.collectErr != nil {
		return f.collectErr
	}
	f.collected++
	return nil
}

func (f *fakeCluster) Broadcast(_ context.Context, msg json.RawMessage) (int, error) {
	f.broadcasts = append(f.broadcasts, msg)
	return len(f.workers), nil
}

type fakeHistory struct {
	limit int
	rows  []domain.ClusterStats
	err   error
}

func (f *fakeHistory) ListRecent(_ context.Context, limit int) ([]domain.ClusterStats, error) {
	f.limit = limit
	return f.rows, f.err
}

func newTestServer(t *testing.T, cluster Cluster, history StatsHistory) *httptest.Server {
	t.Helper()
	h := NewHandler(Config{
		Cluster: cluster,
		History: history,
		Metrics: http.NotFoundHandler(),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestListWorkers(t *testing.T) {
	cluster := &fakeCluster{workers: []domain.WorkerInfo{
		{ID: 1, PID: 100, Status: domain.WorkerStatusConnected, Range: domain.NewShardRange(0, 2), ShardCount: 2, SpawnedAt: time.Now()},
		{ID: 2, PID: 101, Status: domain.WorkerStatusRegistered, Range: domain.EmptyRange()},
	}}
	srv := newTestServer(t, cluster, nil)

	resp, err := http.Get(srv.URL + "/api/v1/workers")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[struct {
		Data  []WorkerResponse `json:"data"`
		Total int              `json:"total"`
	}](t, resp)
	require.Equal(t, 2, body.Total)
	require.Equal(t, "0 - 1", body.Data[0].Shards)
	require.NotNil(t, body.Data[0].FirstShard)
	require.Equal(t, 1, *body.Data[0].LastShard)
	require.Nil(t, body.Data[1].FirstShard)
	require.Equal(t, string(domain.WorkerStatusRegistered), body.Data[1].Status)
}

func TestListWorkersNotRunning(t *testing.T) {
	srv := newTestServer(t, &fakeCluster{snapshotErr: orchestrator.ErrNotRunning}, nil)

	resp, err := http.Get(srv.URL + "/api/v1/workers")
	require.NoError(t, err)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	body := decode[ErrorResponse](t, resp)
	require.Equal(t, ErrCodeUnavailable, body.Error.Code)
}

func TestWrongMethodRejectedByRouter(t *testing.T) {
	srv := newTestServer(t, &fakeCluster{}, nil)

	resp, err := http.Post(srv.URL+"/api/v1/workers", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Allow"), http.MethodGet)
}

func TestHealth(t *testing.T) {
	cluster := &fakeCluster{
		workers: []domain.WorkerInfo{{ID: 1}},
		plan:    domain.ShardPlan{TotalShards: 4},
	}
	srv := newTestServer(t, cluster, nil)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[HealthResponse](t, resp)
	require.Equal(t, "ok", body.Status)
	require.Equal(t, 1, body.Workers)
	require.Equal(t, 4, body.Shards)

	cluster.snapshotErr = orchestrator.ErrNotRunning
	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestGetStats(t *testing.T) {
	cluster := &fakeCluster{}
	srv := newTestServer(t, cluster, nil)

	resp, err := http.Get(srv.URL + "/api/v1/stats")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	cluster.stats = &domain.ClusterStats{Round: "r1", Guilds: 300, Complete: true}
	resp, err = http.Get(srv.URL + "/api/v1/stats")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[struct {
		Data domain.ClusterStats `json:"data"`
	}](t, resp)
	require.Equal(t, "r1", body.Data.Round)
	require.Equal(t, 300, body.Data.Guilds)
}

func TestStatsHistory(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		srv := newTestServer(t, &fakeCluster{}, nil)
		resp, err := http.Get(srv.URL + "/api/v1/stats/history")
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("limit", func(t *testing.T) {
		history := &fakeHistory{rows: []domain.ClusterStats{{Round: "a"}, {Round: "b"}}}
		srv := newTestServer(t, &fakeCluster{}, history)

		resp, err := http.Get(srv.URL + "/api/v1/stats/history?limit=5")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decode[ListResponse](t, resp)
		require.Equal(t, 2, body.Total)
		require.Equal(t, 5, history.limit)

		resp, err = http.Get(srv.URL + "/api/v1/stats/history?limit=nope")
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("storage error", func(t *testing.T) {
		history := &fakeHistory{err: errors.New("connection reset")}
		srv := newTestServer(t, &fakeCluster{}, history)

		resp, err := http.Get(srv.URL + "/api/v1/stats/history")
		require.NoError(t, err)
		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		body := decode[ErrorResponse](t, resp)
		require.Equal(t, ErrCodeInternalError, body.Error.Code)
		require.Equal(t, 20, history.limit)
	})
}

func TestCollectStats(t *testing.T) {
	cluster := &fakeCluster{}
	srv := newTestServer(t, cluster, nil)

	resp, err := http.Post(srv.URL+"/api/v1/stats/collect", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Equal(t, 1, cluster.collected)

	cluster.collectErr = orchestrator.ErrNotRunning
	resp, err = http.Post(srv.URL+"/api/v1/stats/collect", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestBroadcast(t *testing.T) {
	cluster := &fakeCluster{workers: []domain.WorkerInfo{{ID: 1}, {ID: 2}}}
	srv := newTestServer(t, cluster, nil)

	resp, err := http.Post(srv.URL+"/api/v1/broadcast", "application/json",
		strings.NewReader(`{"message":{"op":"reload"}}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[struct {
		Data BroadcastResponse `json:"data"`
	}](t, resp)
	require.Equal(t, 2, body.Data.Recipients)
	require.Len(t, cluster.broadcasts, 1)
	require.JSONEq(t, `{"op":"reload"}`, string(cluster.broadcasts[0]))

	for _, payload := range []string{`{`, `{}`} {
		resp, err := http.Post(srv.URL+"/api/v1/broadcast", "application/json", strings.NewReader(payload))
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, payload)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := Recovery(slog.New(slog.NewTextHandler(io.Discard, nil)))(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }),
	)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
