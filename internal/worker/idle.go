package worker

import (
	"context"
	"encoding/json"
	"runtime"
	"sync"
	"time"

	"github.com/shaiso/Sharder/internal/protocol"
	"github.com/shaiso/Sharder/internal/telemetry"
)

// IdleHandler — Handler без подключения к gateway.
//
// Запоминает назначенный диапазон и отчитывается числом шардов
// и памятью процесса. Используется по умолчанию и в тестах.
type IdleHandler struct {
	mu        sync.Mutex
	cmd       protocol.StartPayload
	startedAt time.Time
	messages  []json.RawMessage
}

// NewIdleHandler создаёт IdleHandler.
func NewIdleHandler() *IdleHandler {
	return &IdleHandler{}
}

// Start запоминает команду.
func (h *IdleHandler) Start(ctx context.Context, cmd protocol.StartPayload) error {
	h.mu.Lock()
	h.cmd = cmd
	h.startedAt = time.Now()
	h.mu.Unlock()

	telemetry.FromContext(ctx).Info("shards assigned",
		"mode", cmd.Mode,
		"shards", cmd.Range().String(),
		"total", cmd.MaxShards,
	)
	return nil
}

// Stats возвращает число шардов, память (байты) и uptime (мс).
func (h *IdleHandler) Stats(_ context.Context) (protocol.StatsReport, error) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	h.mu.Lock()
	defer h.mu.Unlock()

	report := protocol.StatsReport{
		Shards: h.cmd.Range().Count(),
		RAM:    int64(m.Sys),
	}
	if !h.startedAt.IsZero() {
		report.Uptime = time.Since(h.startedAt).Milliseconds()
	}
	return report, nil
}

// Message сохраняет сообщение.
func (h *IdleHandler) Message(ctx context.Context, from int, msg json.RawMessage) {
	h.mu.Lock()
	h.messages = append(h.messages, msg)
	h.mu.Unlock()

	telemetry.FromContext(ctx).Debug("message received", "from", from, "size", len(msg))
}

// Messages возвращает полученные сообщения.
func (h *IdleHandler) Messages() []json.RawMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]json.RawMessage, len(h.messages))
	copy(out, h.messages)
	return out
}
