package domain

import "fmt"

// ShardRange — непрерывный диапазон шардов [First, Last] включительно.
// Пустой диапазон (воркер без шардов) имеет Last < First.
type ShardRange struct {
	First int `json:"first"`
	Last  int `json:"last"`
}

// EmptyRange возвращает пустой диапазон.
func EmptyRange() ShardRange {
	return ShardRange{First: 0, Last: -1}
}

// NewShardRange строит диапазон длины count, начиная с first.
func NewShardRange(first, count int) ShardRange {
	if count <= 0 {
		return EmptyRange()
	}
	return ShardRange{First: first, Last: first + count - 1}
}

// IsEmpty возвращает true, если диапазон не содержит шардов.
func (r ShardRange) IsEmpty() bool {
	return r.Last < r.First
}

// Count возвращает количество шардов в диапазоне.
func (r ShardRange) Count() int {
	if r.IsEmpty() {
		return 0
	}
	return r.Last - r.First + 1
}

// Contains проверяет, входит ли шард в диапазон.
func (r ShardRange) Contains(shard int) bool {
	return !r.IsEmpty() && shard >= r.First && shard <= r.Last
}

// Overlaps проверяет пересечение двух диапазонов.
func (r ShardRange) Overlaps(other ShardRange) bool {
	if r.IsEmpty() || other.IsEmpty() {
		return false
	}
	return r.First <= other.Last && other.First <= r.Last
}

func (r ShardRange) String() string {
	if r.IsEmpty() {
		return "none"
	}
	return fmt.Sprintf("%d - %d", r.First, r.Last)
}

// ShardPlan — результат расчёта количества шардов при старте.
type ShardPlan struct {
	// TotalShards — итоговое количество шардов.
	TotalShards int `json:"total_shards"`

	// Recommended — рекомендованное gateway количество (0, если не запрашивалось).
	Recommended int `json:"recommended"`

	// GuildsPerShard — делитель для авто-расчёта.
	GuildsPerShard int `json:"guilds_per_shard"`

	// Explicit — количество задано в конфигурации явно.
	Explicit bool `json:"explicit"`
}

// Assignment — назначение диапазона шардов конкретному воркеру.
type Assignment struct {
	WorkerID int        `json:"worker_id"`
	Range    ShardRange `json:"range"`
}

// ShardCount возвращает количество шардов в назначении.
func (a Assignment) ShardCount() int {
	return a.Range.Count()
}
