package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Sharder/internal/domain"
)

const schema = `
	CREATE TABLE IF NOT EXISTS cluster_stats (
		round            TEXT PRIMARY KEY,
		guilds           INTEGER NOT NULL,
		users            INTEGER NOT NULL,
		shards           INTEGER NOT NULL,
		total_ram        DOUBLE PRECISION NOT NULL,
		exclusive_guilds INTEGER NOT NULL,
		large_guilds     INTEGER NOT NULL,
		complete         BOOLEAN NOT NULL,
		missing          INTEGER[] NOT NULL DEFAULT '{}',
		clusters         JSONB NOT NULL,
		collected_at     TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS cluster_stats_collected_at_idx ON cluster_stats (collected_at DESC);
`

// StatsRepo — архив агрегатов статистики.
type StatsRepo struct {
	pool *pgxpool.Pool
}

// NewStatsRepo создаёт новый StatsRepo.
func NewStatsRepo(pool *pgxpool.Pool) *StatsRepo {
	return &StatsRepo{pool: pool}
}

// EnsureSchema создаёт таблицу архива, если её нет.
func (r *StatsRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// RecordStats сохраняет агрегат. Повторная запись того же раунда игнорируется.
func (r *StatsRepo) RecordStats(ctx context.Context, s domain.ClusterStats) error {
	clustersJSON, err := json.Marshal(s.Clusters)
	if err != nil {
		return fmt.Errorf("marshal clusters: %w", err)
	}

	missing := s.Missing
	if missing == nil {
		missing = []int{}
	}

	query := `
		INSERT INTO cluster_stats (round, guilds, users, shards, total_ram,
		                           exclusive_guilds, large_guilds, complete, missing,
		                           clusters, collected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (round) DO NOTHING
	`
	_, err = r.pool.Exec(ctx, query,
		s.Round,
		s.Guilds,
		s.Users,
		s.Shards,
		s.TotalRAM,
		s.ExclusiveGuilds,
		s.LargeGuilds,
		s.Complete,
		missing,
		clustersJSON,
		s.CollectedAt,
	)
	if err != nil {
		return fmt.Errorf("insert cluster stats: %w", err)
	}
	return nil
}

// ListRecent возвращает последние limit агрегатов, новые первыми.
func (r *StatsRepo) ListRecent(ctx context.Context, limit int) ([]domain.ClusterStats, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT round, guilds, users, shards, total_ram, exclusive_guilds,
		       large_guilds, complete, missing, clusters, collected_at
		FROM cluster_stats
		ORDER BY collected_at DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query cluster stats: %w", err)
	}
	defer rows.Close()

	var out []domain.ClusterStats
	for rows.Next() {
		s, err := scanStats(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cluster stats: %w", err)
	}
	return out, nil
}

// GetByRound возвращает агрегат раунда.
func (r *StatsRepo) GetByRound(ctx context.Context, round string) (*domain.ClusterStats, error) {
	query := `
		SELECT round, guilds, users, shards, total_ram, exclusive_guilds,
		       large_guilds, complete, missing, clusters, collected_at
		FROM cluster_stats
		WHERE round = $1
	`
	return scanStats(r.pool.QueryRow(ctx, query, round))
}

func scanStats(row pgx.Row) (*domain.ClusterStats, error) {
	var (
		s            domain.ClusterStats
		clustersJSON []byte
	)
	err := row.Scan(
		&s.Round,
		&s.Guilds,
		&s.Users,
		&s.Shards,
		&s.TotalRAM,
		&s.ExclusiveGuilds,
		&s.LargeGuilds,
		&s.Complete,
		&s.Missing,
		&clustersJSON,
		&s.CollectedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan cluster stats: %w", err)
	}
	if err := json.Unmarshal(clustersJSON, &s.Clusters); err != nil {
		return nil, fmt.Errorf("unmarshal clusters: %w", err)
	}
	if len(s.Missing) == 0 {
		s.Missing = nil
	}
	return &s, nil
}
