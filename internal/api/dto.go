package api

import (
	"encoding/json"
	"time"

	"github.com/shaiso/Sharder/internal/domain"
)

// --- Workers ---

// WorkerResponse — ответ с информацией о воркере.
type WorkerResponse struct {
	ID         int       `json:"id"`
	PID        int       `json:"pid"`
	Status     string    `json:"status"`
	Shards     string    `json:"shards"`
	FirstShard *int      `json:"first_shard,omitempty"`
	LastShard  *int      `json:"last_shard,omitempty"`
	ShardCount int       `json:"shard_count"`
	Restarts   int       `json:"restarts"`
	SpawnedAt  time.Time `json:"spawned_at"`
}

// WorkerFromDomain конвертирует domain.WorkerInfo в WorkerResponse.
func WorkerFromDomain(info domain.WorkerInfo) WorkerResponse {
	resp := WorkerResponse{
		ID:         info.ID,
		PID:        info.PID,
		Status:     string(info.Status),
		Shards:     info.Range.String(),
		ShardCount: info.ShardCount,
		Restarts:   info.Restarts,
		SpawnedAt:  info.SpawnedAt,
	}
	if !info.Range.IsEmpty() {
		first, last := info.Range.First, info.Range.Last
		resp.FirstShard = &first
		resp.LastShard = &last
	}
	return resp
}

// --- Broadcast ---

// BroadcastRequest — запрос на рассылку сообщения всем воркерам.
type BroadcastRequest struct {
	Message json.RawMessage `json:"message"`
}

// BroadcastResponse — число воркеров, получивших сообщение.
type BroadcastResponse struct {
	Recipients int `json:"recipients"`
}

// --- Health ---

// HealthResponse — ответ /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Workers int    `json:"workers"`
	Shards  int    `json:"shards"`
}
