package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Sharder/internal/domain"
	"github.com/shaiso/Sharder/internal/notify"
	"github.com/shaiso/Sharder/internal/process"
	"github.com/shaiso/Sharder/internal/protocol"
)

// spawnAll запускает по процессу на каждый слот 1..workers.
// Вызывается до старта цикла; любой неудачный слот отменяет запуск.
func (o *Orchestrator) spawnAll(ctx context.Context) error {
	var (
		mu      sync.Mutex
		handles = make([]*WorkerHandle, 0, o.workers)
	)

	g, gctx := errgroup.WithContext(ctx)
	for id := 1; id <= o.workers; id++ {
		g.Go(func() error {
			proc, err := process.SpawnWithRetry(gctx, o.spawner, id, o, o.spawnRetries, o.spawnBackoff)
			if err != nil {
				return err
			}
			mu.Lock()
			handles = append(handles, &WorkerHandle{
				ID:        id,
				Process:   proc,
				Range:     domain.EmptyRange(),
				Status:    domain.WorkerStatusRegistered,
				SpawnedAt: o.now(),
			})
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		for _, h := range handles {
			h.Process.Terminate(o.stopGrace)
		}
		return fmt.Errorf("spawn workers: %w", err)
	}

	for _, h := range handles {
		o.registry.Put(h)
		o.logger.Info("worker registered", "worker", h.ID, "pid", h.PID())
		o.emit(Event{Type: EventWorkerSpawned, WorkerID: h.ID, PID: h.PID(), Range: h.Range})
	}
	o.metrics.WorkersRegistered.Set(float64(o.registry.Len()))
	return nil
}

// maxParked — сколько событий ещё не установленного процесса держит слот.
const maxParked = 64

// handleExit фиксирует падение процесса и запускает замену с прежним диапазоном.
func (o *Orchestrator) handleExit(ctx context.Context, ev exitEvent) {
	h, ok := o.registry.Owns(ev.workerID, ev.pid)
	if !ok {
		if o.park(ev.workerID, ev) {
			return
		}
		o.logger.Debug("ignoring exit of stale process", "worker", ev.workerID, "pid", ev.pid)
		return
	}

	captured := h.Range

	o.launch.CancelHead(h.ID)
	o.launch.Purge(h.ID)
	h.Status = domain.WorkerStatusDisconnected

	o.logger.Warn("worker exited",
		"worker", h.ID,
		"pid", ev.pid,
		"code", ev.exit.Code,
		"signal", ev.exit.Signal,
		"shards", captured.String(),
	)
	o.emit(Event{
		Type:     EventWorkerDied,
		WorkerID: h.ID,
		PID:      ev.pid,
		Range:    captured,
		ExitCode: ev.exit.Code,
		Signal:   ev.exit.Signal,
	})
	o.notifier.Notify(notify.ScopeCluster, notify.Embed{
		Title:       fmt.Sprintf("Cluster %d died with code %d. Restarting...", h.ID, ev.exit.Code),
		Description: "Shards " + captured.String(),
	}.Raw())

	if !o.restarts.Allow(h.ID, o.now()) {
		o.retire(h, fmt.Sprintf("restart limit of %d reached", o.restarts.MaxRestarts))
		return
	}

	h.Status = domain.WorkerStatusRestarting
	h.Process = nil
	o.respawn(ctx, h.ID)
}

// respawn запускает замену в фоне, результат приходит в цикл как respawnEvent.
func (o *Orchestrator) respawn(ctx context.Context, workerID int) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		proc, err := process.SpawnWithRetry(ctx, o.spawner, workerID, o, o.spawnRetries, o.spawnBackoff)
		select {
		case o.events <- respawnEvent{workerID: workerID, proc: proc, err: err}:
		case <-ctx.Done():
			if proc != nil {
				proc.Terminate(o.stopGrace)
			}
		}
	}()
}

// handleRespawn устанавливает новый процесс в слот и возобновляет его диапазон.
func (o *Orchestrator) handleRespawn(ctx context.Context, ev respawnEvent) {
	h, ok := o.registry.Get(ev.workerID)
	if !ok || h.Status != domain.WorkerStatusRestarting {
		if ev.proc != nil {
			ev.proc.Terminate(o.stopGrace)
		}
		return
	}

	if ev.err != nil {
		o.logger.Error("failed to respawn worker", "worker", h.ID, "error", ev.err)
		h.parked = nil
		o.retire(h, ev.err.Error())
		return
	}

	h.Process = ev.proc
	h.Restarts++
	h.SpawnedAt = o.now()
	h.Status = domain.WorkerStatusRegistered
	o.metrics.WorkerRestarts.WithLabelValues(strconv.Itoa(h.ID)).Inc()

	// Диапазон, не подтверждённый ни разу, запускается заново, а не возобновляется.
	mode := domain.StartModeStart
	if h.launched {
		mode = domain.StartModeResume
	}
	assigned := h.ShardCount > 0
	if assigned {
		o.launch.Purge(h.ID)
		h.Status = domain.WorkerStatusAssigned
		o.enqueueStart(h, mode, o.Plan().TotalShards)
	}

	o.logger.Info("worker restarted",
		"worker", h.ID,
		"pid", h.PID(),
		"restarts", h.Restarts,
		"assigned", assigned,
		"mode", mode,
	)
	o.emit(Event{Type: EventWorkerRestarted, WorkerID: h.ID, PID: h.PID(), Range: h.Range})

	o.replayParked(ctx, h)
}

// park откладывает событие процесса, который ещё не установлен в слот.
func (o *Orchestrator) park(workerID int, ev loopEvent) bool {
	h, ok := o.registry.Get(workerID)
	if !ok || h.Status != domain.WorkerStatusRestarting {
		return false
	}
	if len(h.parked) >= maxParked {
		o.logger.Warn("dropping event of restarting worker", "worker", workerID, "event", ev.name())
		return true
	}
	h.parked = append(h.parked, ev)
	return true
}

// replayParked обрабатывает отложенные события установленного процесса
// в порядке поступления. События других pid отбрасываются.
func (o *Orchestrator) replayParked(ctx context.Context, h *WorkerHandle) {
	parked := h.parked
	h.parked = nil
	pid := h.PID()

	for _, ev := range parked {
		switch ev := ev.(type) {
		case messageEvent:
			if ev.pid == pid {
				o.handleMessage(ev)
			}
		case exitEvent:
			if ev.pid == pid {
				o.handleExit(ctx, ev)
			}
		}
	}
}

// retire окончательно выводит слот из работы.
func (o *Orchestrator) retire(h *WorkerHandle, reason string) {
	h.Status = domain.WorkerStatusTerminated
	o.registry.Delete(h.ID)
	o.metrics.WorkersRetired.Inc()
	o.metrics.WorkersRegistered.Set(float64(o.registry.Len()))

	o.logger.Error("worker retired",
		"worker", h.ID,
		"reason", reason,
		"shards", h.Range.String(),
	)
	o.notifier.Notify(notify.ScopeCluster, notify.Embed{
		Title:       fmt.Sprintf("Cluster %d retired: %s", h.ID, reason),
		Description: "Shards " + h.Range.String() + " are offline",
	}.Raw())
	o.emit(Event{Type: EventWorkerRetired, WorkerID: h.ID, Range: h.Range})
}

// shutdownEnvelope — просьба воркеру завершиться.
func shutdownEnvelope() protocol.Envelope {
	return protocol.MustNew(protocol.KindShutdown, 0, nil)
}
