package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Sharder/internal/domain"
	"github.com/shaiso/Sharder/internal/protocol"
	"github.com/shaiso/Sharder/internal/telemetry"
)

// Default configuration values.
const (
	defaultFetchTimeout = 5 * time.Second

	// EntityCluster — встроенный тип сущности: сам воркер.
	EntityCluster = "cluster"
)

// Handler — прикладная часть воркера.
type Handler interface {
	// Start поднимает шарды из cmd. Возврат без ошибки означает готовность.
	Start(ctx context.Context, cmd protocol.StartPayload) error

	// Stats возвращает текущую статистику воркера.
	Stats(ctx context.Context) (protocol.StatsReport, error)

	// Message получает broadcast или адресное сообщение от воркера from.
	Message(ctx context.Context, from int, msg json.RawMessage)
}

// Worker обслуживает канал связи с оркестратором.
type Worker struct {
	id       int
	handler  Handler
	registry *Registry

	enc *protocol.Encoder
	dec *protocol.Decoder

	fetchTimeout time.Duration
	newID        func() string

	mu       sync.Mutex
	waiters  map[string]chan protocol.FetchResult
	assigned protocol.StartPayload
	started  bool
	stopped  bool

	fatal  chan error
	logger *slog.Logger
	wg     sync.WaitGroup
}

// Config — конфигурация Worker.
type Config struct {
	// ID — номер слота воркера, выданный оркестратором.
	ID int

	// In и Out — каналы связи с оркестратором (stdin/stdout процесса).
	In  io.Reader
	Out io.Writer

	// Handler (опционально; если nil — используется NewIdleHandler()).
	Handler Handler

	// Registry (опционально; если nil — используется NewRegistry()).
	Registry *Registry

	// FetchTimeout — ожидание fetchResult (default: 5s).
	FetchTimeout time.Duration

	Logger *slog.Logger
}

// New создаёт Worker.
func New(cfg Config) *Worker {
	fetchTimeout := cfg.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = defaultFetchTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	handler := cfg.Handler
	if handler == nil {
		handler = NewIdleHandler()
	}

	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}

	w := &Worker{
		id:           cfg.ID,
		handler:      handler,
		registry:     registry,
		enc:          protocol.NewEncoder(cfg.Out),
		dec:          protocol.NewDecoder(cfg.In),
		fetchTimeout: fetchTimeout,
		newID:        uuid.NewString,
		waiters:      make(map[string]chan protocol.FetchResult),
		fatal:        make(chan error, 1),
		logger:       telemetry.WithWorker(logger, cfg.ID),
	}
	if !registry.Has(EntityCluster) {
		registry.Register(EntityCluster, ResolverFunc(w.resolveSelf))
	}
	return w
}

// ID возвращает номер воркера.
func (w *Worker) ID() int {
	return w.id
}

// Run читает команды оркестратора до shutdown, закрытия входа или отмены ctx.
//
// Возвращает nil при штатном завершении (shutdown или закрытие входа),
// ErrStartFailed, если не удалось поднять шарды.
func (w *Worker) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(telemetry.WithLogger(ctx, w.logger))
	defer func() {
		cancel()
		w.wg.Wait()
		w.stop()
	}()

	msgs := make(chan protocol.Envelope)
	readErr := make(chan error, 1)
	go w.readLoop(ctx, msgs, readErr)

	w.logger.Info("worker running")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-w.fatal:
			return err

		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				w.logger.Info("orchestrator closed the channel")
				return nil
			}
			return err

		case env := <-msgs:
			if env.Kind == protocol.KindShutdown {
				w.logger.Info("shutdown requested")
				return nil
			}
			w.dispatch(ctx, env)
		}
	}
}

// readLoop декодирует входящие конверты. Битые строки пропускаются.
func (w *Worker) readLoop(ctx context.Context, out chan<- protocol.Envelope, errc chan<- error) {
	for {
		env, err := w.dec.Decode()
		if errors.Is(err, protocol.ErrMalformed) {
			w.logger.Warn("malformed message from orchestrator", "error", err)
			continue
		}
		if err != nil {
			errc <- err
			return
		}
		select {
		case out <- env:
		case <-ctx.Done():
			return
		}
	}
}

// stop отменяет ожидающие Fetch.
func (w *Worker) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	for id, ch := range w.waiters {
		close(ch)
		delete(w.waiters, id)
	}
}

// Send отправляет оркестратору конверт указанного типа.
func (w *Worker) Send(kind protocol.Kind, payload any) error {
	env, err := protocol.New(kind, w.id, payload)
	if err != nil {
		return err
	}
	return w.enc.Encode(env)
}

// reply отправляет ответ с correlation id запроса.
func (w *Worker) reply(kind protocol.Kind, correlationID string, payload any) error {
	env, err := protocol.New(kind, w.id, payload)
	if err != nil {
		return err
	}
	return w.enc.Encode(env.WithCorrelation(correlationID))
}

// Log пересылает строку в лог оркестратора. kind — один из log/debug/info/warn/error.
func (w *Worker) Log(kind protocol.Kind, msg string) error {
	if !kind.IsLog() {
		return fmt.Errorf("%w: %s is not a log kind", protocol.ErrUnknownKind, kind)
	}
	return w.Send(kind, protocol.LogPayload{Message: msg})
}

// Notify просит оркестратор отправить embed во внешний канал scope.
func (w *Worker) Notify(scope string, embed json.RawMessage) error {
	return w.Send(protocol.KindNotify, protocol.NotifyPayload{Scope: scope, Embed: embed})
}

// Broadcast рассылает сообщение всем воркерам (включая этот).
func (w *Worker) Broadcast(msg any) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal broadcast: %w", err)
	}
	return w.Send(protocol.KindBroadcast, protocol.BroadcastPayload{Message: raw})
}

// SendTo отправляет сообщение воркеру target.
func (w *Worker) SendTo(target int, msg any) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal send: %w", err)
	}
	return w.Send(protocol.KindSend, protocol.SendPayload{Target: target, Message: raw})
}

// Fetch ищет сущность на всех воркерах и ждёт итог от оркестратора.
func (w *Worker) Fetch(ctx context.Context, entityKind, entityID string) (protocol.FetchResult, error) {
	requestID := w.newID()
	ch := make(chan protocol.FetchResult, 1)

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return protocol.FetchResult{}, ErrWorkerStopped
	}
	w.waiters[requestID] = ch
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		delete(w.waiters, requestID)
		w.mu.Unlock()
	}()

	err := w.Send(protocol.KindFetchRequest, protocol.FetchRequest{
		EntityKind: entityKind,
		EntityID:   entityID,
		RequestID:  requestID,
	})
	if err != nil {
		return protocol.FetchResult{}, err
	}

	timer := time.NewTimer(w.fetchTimeout)
	defer timer.Stop()

	select {
	case result, ok := <-ch:
		if !ok {
			return protocol.FetchResult{}, ErrWorkerStopped
		}
		return result, nil
	case <-timer.C:
		return protocol.FetchResult{}, fmt.Errorf("%w: %s %s", ErrFetchTimeout, entityKind, entityID)
	case <-ctx.Done():
		return protocol.FetchResult{}, ctx.Err()
	}
}

// Assigned возвращает последнюю команду start и признак её выполнения.
func (w *Worker) Assigned() (protocol.StartPayload, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.assigned, w.started
}

// resolveSelf отвечает на fetch сущности "cluster" с id этого воркера.
func (w *Worker) resolveSelf(_ context.Context, id string) (json.RawMessage, bool, error) {
	n, err := strconv.Atoi(id)
	if err != nil || n != w.id {
		return nil, false, nil
	}

	cmd, started := w.Assigned()
	info := struct {
		ID      int    `json:"id"`
		Started bool   `json:"started"`
		Shards  string `json:"shards"`
	}{
		ID:      w.id,
		Started: started,
		Shards:  domain.EmptyRange().String(),
	}
	if started {
		info.Shards = cmd.Range().String()
	}

	raw, err := json.Marshal(info)
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}
