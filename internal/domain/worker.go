package domain

import "time"

// WorkerInfo — снимок состояния воркера для API и CLI.
type WorkerInfo struct {
	ID         int          `json:"id"`
	PID        int          `json:"pid"`
	Status     WorkerStatus `json:"status"`
	Range      ShardRange   `json:"range"`
	ShardCount int          `json:"shard_count"`
	Restarts   int          `json:"restarts"`
	SpawnedAt  time.Time    `json:"spawned_at"`
}
