package orchestrator

import (
	"maps"
	"slices"
	"time"

	"github.com/shaiso/Sharder/internal/domain"
	"github.com/shaiso/Sharder/internal/process"
)

// WorkerHandle — состояние одного слота воркера в памяти.
//
// Слот (ID) стабилен: рестарт заменяет Process (новый pid), но сохраняет
// назначенный диапазон. Доступ только из цикла событий.
type WorkerHandle struct {
	ID         int
	Process    process.Process
	Range      domain.ShardRange
	ShardCount int
	Status     domain.WorkerStatus
	Restarts   int
	SpawnedAt  time.Time

	// launched — слот хотя бы раз подтвердил запуск (ready).
	launched bool

	// parked — события замены, пришедшие до её установки в слот.
	parked []loopEvent
}

// PID возвращает pid текущего процесса слота (0, если процесса нет).
func (h *WorkerHandle) PID() int {
	if h.Process == nil {
		return 0
	}
	return h.Process.PID()
}

// Info возвращает снимок для API.
func (h *WorkerHandle) Info() domain.WorkerInfo {
	return domain.WorkerInfo{
		ID:         h.ID,
		PID:        h.PID(),
		Status:     h.Status,
		Range:      h.Range,
		ShardCount: h.ShardCount,
		Restarts:   h.Restarts,
		SpawnedAt:  h.SpawnedAt,
	}
}

// Registry — воркеры по id слота. Не потокобезопасен.
type Registry struct {
	workers map[int]*WorkerHandle
}

// NewRegistry создаёт пустой Registry.
func NewRegistry() *Registry {
	return &Registry{workers: make(map[int]*WorkerHandle)}
}

// Put добавляет или заменяет воркера.
func (r *Registry) Put(h *WorkerHandle) {
	r.workers[h.ID] = h
}

// Get возвращает воркера по id.
func (r *Registry) Get(id int) (*WorkerHandle, bool) {
	h, ok := r.workers[id]
	return h, ok
}

// Owns проверяет, что pid — текущий процесс слота id.
func (r *Registry) Owns(id, pid int) (*WorkerHandle, bool) {
	h, ok := r.workers[id]
	if !ok || h.Process == nil || h.PID() != pid {
		return nil, false
	}
	return h, true
}

// Delete удаляет воркера.
func (r *Registry) Delete(id int) {
	delete(r.workers, id)
}

// Len возвращает число воркеров.
func (r *Registry) Len() int {
	return len(r.workers)
}

// IDs возвращает id воркеров по возрастанию.
func (r *Registry) IDs() []int {
	return slices.Sorted(maps.Keys(r.workers))
}

// Handles возвращает воркеров по возрастанию id.
func (r *Registry) Handles() []*WorkerHandle {
	out := make([]*WorkerHandle, 0, len(r.workers))
	for _, id := range r.IDs() {
		out = append(out, r.workers[id])
	}
	return out
}

// TotalShards возвращает сумму назначенных шардов.
func (r *Registry) TotalShards() int {
	total := 0
	for _, h := range r.workers {
		total += h.ShardCount
	}
	return total
}
