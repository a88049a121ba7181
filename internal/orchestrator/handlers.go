package orchestrator

import (
	"fmt"
	"log/slog"

	"github.com/shaiso/Sharder/internal/domain"
	"github.com/shaiso/Sharder/internal/notify"
	"github.com/shaiso/Sharder/internal/protocol"
)

// handleMessage маршрутизирует сообщение воркера по kind.
func (o *Orchestrator) handleMessage(ev messageEvent) {
	h, ok := o.registry.Owns(ev.workerID, ev.pid)
	if !ok {
		if o.park(ev.workerID, ev) {
			return
		}
		o.logger.Debug("dropping message from stale process",
			"worker", ev.workerID,
			"pid", ev.pid,
			"kind", ev.env.Kind,
		)
		return
	}

	env := ev.env
	if err := env.Validate(); err != nil {
		o.protocolViolation(h.ID, env.Kind, err)
		return
	}
	env.Origin = h.ID
	o.metrics.MessagesReceived.WithLabelValues(string(env.Kind)).Inc()

	var err error
	switch env.Kind {
	case protocol.KindLog, protocol.KindDebug, protocol.KindInfo, protocol.KindWarn, protocol.KindError:
		err = o.handleLog(h, env)
	case protocol.KindReady:
		o.handleReady(h)
	case protocol.KindNotify:
		err = o.handleNotify(env)
	case protocol.KindStatsReport:
		err = o.handleStatsReport(h, env)
	case protocol.KindFetchRequest:
		err = o.handleFetchRequest(h, env)
	case protocol.KindFetchResponse:
		err = o.handleFetchResponse(env)
	case protocol.KindBroadcast:
		err = o.handleBroadcast(env)
	case protocol.KindSend:
		err = o.handleSend(h, env)
	default:
		err = fmt.Errorf("%w: %s is not accepted from workers", ErrProtocolViolation, env.Kind)
	}

	if err != nil {
		o.protocolViolation(h.ID, env.Kind, err)
	}
}

// protocolViolation логирует и считает некорректное сообщение.
func (o *Orchestrator) protocolViolation(workerID int, kind protocol.Kind, err error) {
	o.metrics.ProtocolViolations.WithLabelValues(string(kind)).Inc()
	o.logger.Warn("protocol violation",
		"worker", workerID,
		"kind", kind,
		"error", err,
	)
}

// handleLog пересылает строку лога воркера в logger оркестратора.
func (o *Orchestrator) handleLog(h *WorkerHandle, env protocol.Envelope) error {
	p, err := protocol.ParsePayload[protocol.LogPayload](env)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	switch env.Kind {
	case protocol.KindDebug:
		if !o.debug {
			return nil
		}
		level = slog.LevelDebug
	case protocol.KindWarn:
		level = slog.LevelWarn
	case protocol.KindError:
		level = slog.LevelError
	}

	o.logger.Log(o.ctx, level, p.Message, "worker", h.ID)
	return nil
}

// handleReady подтверждает запуск головной команды очереди.
func (o *Orchestrator) handleReady(h *WorkerHandle) {
	item, ok := o.launch.Acknowledge(h.ID)
	if !ok {
		return
	}

	h.Status = domain.WorkerStatusConnected
	h.launched = true
	o.restarts.Reset(h.ID)
	o.metrics.LaunchQueueDepth.Set(float64(o.launch.Len()))

	o.logger.Info("worker ready",
		"worker", h.ID,
		"mode", item.Mode,
		"shards", h.Range.String(),
	)
	o.emit(Event{Type: EventWorkerReady, WorkerID: h.ID, PID: h.PID(), Range: h.Range})
}

// handleNotify передаёт уведомление воркера во внешний канал.
func (o *Orchestrator) handleNotify(env protocol.Envelope) error {
	p, err := protocol.ParsePayload[protocol.NotifyPayload](env)
	if err != nil {
		return err
	}
	o.notifier.Notify(notify.Scope(p.Scope), p.Embed)
	return nil
}

func (o *Orchestrator) handleStatsReport(h *WorkerHandle, env protocol.Envelope) error {
	report, err := protocol.ParsePayload[protocol.StatsReport](env)
	if err != nil {
		return err
	}
	o.aggregator.Report(h.ID, env.CorrelationID, report, o.now())
	return nil
}

func (o *Orchestrator) handleFetchRequest(h *WorkerHandle, env protocol.Envelope) error {
	req, err := protocol.ParsePayload[protocol.FetchRequest](env)
	if err != nil {
		return err
	}
	if _, err := o.fetch.Request(h.ID, req); err != nil {
		return err
	}
	o.metrics.FetchPending.Set(float64(o.fetch.Pending()))
	return nil
}

func (o *Orchestrator) handleFetchResponse(env protocol.Envelope) error {
	resp, err := protocol.ParsePayload[protocol.FetchResponse](env)
	if err != nil {
		return err
	}
	o.fetch.Resolve(env.CorrelationID, resp)
	o.metrics.FetchPending.Set(float64(o.fetch.Pending()))
	return nil
}

// handleBroadcast пересылает сообщение всем воркерам, включая отправителя.
func (o *Orchestrator) handleBroadcast(env protocol.Envelope) error {
	if _, err := protocol.ParsePayload[protocol.BroadcastPayload](env); err != nil {
		return err
	}
	o.broadcast(env)
	return nil
}

// handleSend пересылает сообщение одному воркеру.
// Неизвестный получатель — не ошибка протокола, сообщение отбрасывается.
func (o *Orchestrator) handleSend(h *WorkerHandle, env protocol.Envelope) error {
	p, err := protocol.ParsePayload[protocol.SendPayload](env)
	if err != nil {
		return err
	}
	if err := o.sendTo(p.Target, env); err != nil {
		o.logger.Info("send to unknown or unreachable worker dropped",
			"from", h.ID,
			"target", p.Target,
			"error", err,
		)
	}
	return nil
}

// sendTo отправляет конверт текущему процессу воркера.
func (o *Orchestrator) sendTo(workerID int, env protocol.Envelope) error {
	h, ok := o.registry.Get(workerID)
	if !ok || h.Process == nil {
		return fmt.Errorf("%w: %d", ErrUnknownWorker, workerID)
	}
	return h.Process.Send(env)
}

// broadcast отправляет конверт всем воркерам и возвращает число успешных отправок.
func (o *Orchestrator) broadcast(env protocol.Envelope) int {
	sent := 0
	for _, id := range o.registry.IDs() {
		if err := o.sendTo(id, env); err != nil {
			o.logger.Debug("broadcast delivery failed", "worker", id, "kind", env.Kind, "error", err)
			continue
		}
		sent++
	}
	return sent
}

// transport адаптирует Orchestrator к launch.Sender и fetch.Transport.
// Методы вызываются только из цикла событий.
type transport struct {
	o *Orchestrator
}

func (t transport) Send(workerID int, env protocol.Envelope) error {
	return t.o.sendTo(workerID, env)
}

func (t transport) SendTo(workerID int, env protocol.Envelope) error {
	return t.o.sendTo(workerID, env)
}

func (t transport) Broadcast(env protocol.Envelope) int {
	return t.o.broadcast(env)
}
