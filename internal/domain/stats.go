package domain

import "time"

// WorkerStats — статистика одного воркера за интервал.
type WorkerStats struct {
	Cluster         int     `json:"cluster"`
	Shards          int     `json:"shards"`
	Guilds          int     `json:"guilds"`
	Users           int     `json:"users"`
	RAM             float64 `json:"ram"` // MB
	Uptime          int64   `json:"uptime"`
	ExclusiveGuilds int     `json:"exclusive_guilds"`
	LargeGuilds     int     `json:"large_guilds"`
}

// ClusterStats — агрегированная статистика всех воркеров за интервал.
type ClusterStats struct {
	Round           string        `json:"round"`
	Guilds          int           `json:"guilds"`
	Users           int           `json:"users"`
	Shards          int           `json:"shards"`
	TotalRAM        float64       `json:"total_ram"` // MB
	ExclusiveGuilds int           `json:"exclusive_guilds"`
	LargeGuilds     int           `json:"large_guilds"`
	Clusters        []WorkerStats `json:"clusters"`

	// Complete — false, если интервал закрыт по таймауту до ответа всех воркеров.
	Complete bool  `json:"complete"`
	Missing  []int `json:"missing,omitempty"`

	CollectedAt time.Time `json:"collected_at"`
}
