package allocation

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/time/rate"

	"github.com/shaiso/Sharder/internal/domain"
)

// guildsPerRecommendedShard — сколько гильдий gateway закладывает в один рекомендованный шард.
const guildsPerRecommendedShard = 1000

// ComputeShardCount возвращает итоговое количество шардов.
//
//   - explicit > 0 — возвращается как есть
//   - recommended == 1 — 1
//   - иначе ceil(recommended * 1000 / guildsPerShard)
func ComputeShardCount(explicit, recommended, guildsPerShard int) (int, error) {
	if explicit < 0 || recommended < 0 {
		return 0, ErrNegativeCount
	}
	if explicit > 0 {
		return explicit, nil
	}
	if guildsPerShard <= 0 {
		return 0, ErrInvalidDivisor
	}
	if recommended == 1 {
		return 1, nil
	}

	guilds := recommended * guildsPerRecommendedShard
	return (guilds + guildsPerShard - 1) / guildsPerShard, nil
}

// DistributeRoundRobin раздаёт total шардов воркерам по кругу в порядке возрастания id.
//
// Если limiter != nil, перед каждым шагом вызывается limiter.Wait — это
// ограничение темпа, а не условие корректности. Результат — id → количество шардов;
// каждый воркер присутствует в результате (возможно, с нулём).
func DistributeRoundRobin(ctx context.Context, total int, workerIDs []int, limiter *rate.Limiter) (map[int]int, error) {
	if total < 0 {
		return nil, ErrNegativeCount
	}
	if total > 0 && len(workerIDs) == 0 {
		return nil, ErrNoWorkers
	}

	ids := slices.Clone(workerIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	counts := make(map[int]int, len(ids))
	for _, id := range ids {
		counts[id] = 0
	}

	remaining := total
	for i := 0; remaining > 0; i++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("round robin pacing: %w", err)
			}
		}
		counts[ids[i%len(ids)]]++
		remaining--
	}

	return counts, nil
}

// MaterializeRanges превращает счётчики в непрерывные диапазоны.
//
// Воркеры обходятся по возрастанию id; воркер i получает [cursor, cursor+count_i-1].
// Воркеры с нулевым счётчиком получают пустой диапазон.
func MaterializeRanges(counts map[int]int) []domain.Assignment {
	ids := make([]int, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	assignments := make([]domain.Assignment, 0, len(ids))
	cursor := 0
	for _, id := range ids {
		count := counts[id]
		assignments = append(assignments, domain.Assignment{
			WorkerID: id,
			Range:    domain.NewShardRange(cursor, count),
		})
		if count > 0 {
			cursor += count
		}
	}
	return assignments
}

// Planner объединяет настройки расчёта и распределения.
type Planner struct {
	explicit       int
	guildsPerShard int
	limiter        *rate.Limiter
}

// PlannerConfig — конфигурация Planner.
type PlannerConfig struct {
	// ExplicitShards — явно заданное количество шардов (0 — авто).
	ExplicitShards int

	// GuildsPerShard — делитель для авто-расчёта.
	GuildsPerShard int

	// StepsPerSecond — темп round-robin (0 — без ограничения).
	StepsPerSecond float64
}

// NewPlanner создаёт Planner.
func NewPlanner(cfg PlannerConfig) *Planner {
	var limiter *rate.Limiter
	if cfg.StepsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.StepsPerSecond), 1)
	}
	return &Planner{
		explicit:       cfg.ExplicitShards,
		guildsPerShard: cfg.GuildsPerShard,
		limiter:        limiter,
	}
}

// NeedsRecommendation возвращает true, если для плана нужен ответ gateway.
func (p *Planner) NeedsRecommendation() bool {
	return p.explicit == 0
}

// Plan рассчитывает ShardPlan.
func (p *Planner) Plan(recommended int) (domain.ShardPlan, error) {
	total, err := ComputeShardCount(p.explicit, recommended, p.guildsPerShard)
	if err != nil {
		return domain.ShardPlan{}, err
	}
	return domain.ShardPlan{
		TotalShards:    total,
		Recommended:    recommended,
		GuildsPerShard: p.guildsPerShard,
		Explicit:       p.explicit > 0,
	}, nil
}

// Allocate распределяет шарды плана и возвращает назначения.
func (p *Planner) Allocate(ctx context.Context, plan domain.ShardPlan, workerIDs []int) ([]domain.Assignment, error) {
	counts, err := DistributeRoundRobin(ctx, plan.TotalShards, workerIDs, p.limiter)
	if err != nil {
		return nil, err
	}
	return MaterializeRanges(counts), nil
}
