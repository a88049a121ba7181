package orchestrator

import (
	"time"

	"github.com/shaiso/Sharder/internal/domain"
)

// EventType — тип события жизненного цикла.
type EventType string

const (
	EventWorkerSpawned   EventType = "worker.spawned"
	EventWorkerReady     EventType = "worker.ready"
	EventWorkerDied      EventType = "worker.died"
	EventWorkerRestarted EventType = "worker.restarted"
	EventWorkerRetired   EventType = "worker.retired"
	EventShardsSpread    EventType = "shards.spread"
	EventStats           EventType = "stats"
)

// Event — событие жизненного цикла оркестратора.
type Event struct {
	Type     EventType
	WorkerID int
	PID      int
	Range    domain.ShardRange

	// ExitCode и Signal заполняются для EventWorkerDied.
	ExitCode int
	Signal   string

	// Assignments заполняется для EventShardsSpread.
	Assignments []domain.Assignment

	// Stats заполняется для EventStats.
	Stats *domain.ClusterStats

	At time.Time
}

// OnEvent регистрирует обработчик событий.
// Обработчики вызываются из цикла событий и не должны блокировать.
func (o *Orchestrator) OnEvent(fn func(Event)) {
	o.listenersMu.Lock()
	defer o.listenersMu.Unlock()
	o.listeners = append(o.listeners, fn)
}

// emit передаёт событие обработчикам.
func (o *Orchestrator) emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = o.now()
	}

	o.listenersMu.RLock()
	listeners := o.listeners
	o.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(ev)
	}
}
