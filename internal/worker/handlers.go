package worker

import (
	"context"
	"fmt"

	"github.com/shaiso/Sharder/internal/protocol"
)

// dispatch направляет входящий конверт обработчику по kind.
//
// Долгие обработчики выполняются в отдельных горутинах, чтобы
// stats и fetch обслуживались во время запуска шардов.
func (w *Worker) dispatch(ctx context.Context, env protocol.Envelope) {
	switch env.Kind {
	case protocol.KindStart:
		w.handleStart(ctx, env)

	case protocol.KindStatsRequest:
		w.goHandle(func() { w.handleStatsRequest(ctx, env) })

	case protocol.KindFetchRequest:
		w.goHandle(func() { w.handleFetchRequest(ctx, env) })

	case protocol.KindFetchResult:
		w.handleFetchResult(env)

	case protocol.KindBroadcast, protocol.KindSend:
		w.goHandle(func() { w.handleMessage(ctx, env) })

	default:
		w.logger.Debug("ignoring message", "kind", env.Kind)
	}
}

func (w *Worker) goHandle(fn func()) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		fn()
	}()
}

// handleStart запускает шарды и сообщает ready.
func (w *Worker) handleStart(ctx context.Context, env protocol.Envelope) {
	cmd, err := protocol.ParsePayload[protocol.StartPayload](env)
	if err != nil {
		w.logger.Error("invalid start command", "error", err)
		return
	}

	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		w.logger.Warn("duplicate start command ignored", "mode", cmd.Mode)
		return
	}
	w.started = true
	w.assigned = cmd
	w.mu.Unlock()

	w.logger.Info("starting shards",
		"mode", cmd.Mode,
		"shards", cmd.Range().String(),
		"max_shards", cmd.MaxShards,
	)

	w.goHandle(func() {
		if err := w.handler.Start(ctx, cmd); err != nil {
			w.logger.Error("failed to start shards", "error", err)
			select {
			case w.fatal <- fmt.Errorf("%w: %v", ErrStartFailed, err):
			default:
			}
			return
		}
		if err := w.Send(protocol.KindReady, nil); err != nil {
			w.logger.Error("failed to send ready", "error", err)
			return
		}
		w.logger.Info("shards ready", "shards", cmd.Range().String())
	})
}

// handleStatsRequest отвечает statsReport с тем же correlation id.
func (w *Worker) handleStatsRequest(ctx context.Context, env protocol.Envelope) {
	report, err := w.handler.Stats(ctx)
	if err != nil {
		w.logger.Warn("failed to collect stats", "error", err)
		return
	}
	if err := w.reply(protocol.KindStatsReport, env.CorrelationID, report); err != nil {
		w.logger.Error("failed to send stats report", "error", err)
	}
}

// handleFetchRequest ищет сущность через Registry и отвечает fetchResponse.
// Любая ошибка поиска превращается в промах.
func (w *Worker) handleFetchRequest(ctx context.Context, env protocol.Envelope) {
	resp := protocol.FetchResponse{}

	req, err := protocol.ParsePayload[protocol.FetchRequest](env)
	if err != nil {
		w.logger.Warn("invalid fetch request", "error", err)
	} else if resolver, err := w.registry.Get(req.EntityKind); err != nil {
		w.logger.Debug("fetch for unknown entity kind", "entity_kind", req.EntityKind)
	} else {
		value, found, err := resolver.Resolve(ctx, req.EntityID)
		if err != nil {
			w.logger.Warn("resolver failed",
				"entity_kind", req.EntityKind,
				"entity_id", req.EntityID,
				"error", err,
			)
		} else if found {
			resp = protocol.FetchResponse{Found: true, Value: value}
		}
	}

	if err := w.reply(protocol.KindFetchResponse, env.CorrelationID, resp); err != nil {
		w.logger.Error("failed to send fetch response", "error", err)
	}
}

// handleFetchResult передаёт итог ожидающему Fetch.
func (w *Worker) handleFetchResult(env protocol.Envelope) {
	result, err := protocol.ParsePayload[protocol.FetchResult](env)
	if err != nil {
		w.logger.Warn("invalid fetch result", "error", err)
		return
	}

	w.mu.Lock()
	ch, ok := w.waiters[result.RequestID]
	if ok {
		delete(w.waiters, result.RequestID)
	}
	w.mu.Unlock()

	if !ok {
		w.logger.Debug("fetch result without waiter", "request_id", result.RequestID)
		return
	}
	ch <- result
}

// handleMessage передаёт broadcast/send в Handler.
func (w *Worker) handleMessage(ctx context.Context, env protocol.Envelope) {
	var msg []byte
	switch env.Kind {
	case protocol.KindBroadcast:
		p, err := protocol.ParsePayload[protocol.BroadcastPayload](env)
		if err != nil {
			w.logger.Warn("invalid broadcast", "error", err)
			return
		}
		msg = p.Message
	case protocol.KindSend:
		p, err := protocol.ParsePayload[protocol.SendPayload](env)
		if err != nil {
			w.logger.Warn("invalid send", "error", err)
			return
		}
		msg = p.Message
	}
	w.handler.Message(ctx, env.Origin, msg)
}
