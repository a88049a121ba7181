package fetch

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Sharder/internal/protocol"
)

// defaultTimeout — время ожидания ответа по умолчанию.
const defaultTimeout = 5 * time.Second

// Transport — доставка сообщений воркерам.
type Transport interface {
	// Broadcast отправляет сообщение всем воркерам и возвращает число получателей.
	Broadcast(env protocol.Envelope) int

	// SendTo отправляет сообщение одному воркеру.
	SendTo(workerID int, env protocol.Envelope) error
}

// pending — ожидающий ответа запрос.
type pending struct {
	origin   int
	request  protocol.FetchRequest
	expected int
	misses   int
	deadline time.Time
}

// Router сопоставляет широковещательные запросы с первым ответом.
type Router struct {
	pending map[string]*pending

	transport Transport
	timeout   time.Duration
	newID     func() string
	now       func() time.Time
	logger    *slog.Logger
}

// Config — конфигурация Router.
type Config struct {
	Transport Transport
	Timeout   time.Duration
	Logger    *slog.Logger

	// NewID и Now переопределяются в тестах.
	NewID func() string
	Now   func() time.Time
}

// New создаёт Router.
func New(cfg Config) *Router {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Router{
		pending:   make(map[string]*pending),
		transport: cfg.Transport,
		timeout:   timeout,
		newID:     newID,
		now:       now,
		logger:    logger,
	}
}

// Request регистрирует запрос от origin и рассылает его всем воркерам.
// Возвращает сгенерированный correlation id.
func (r *Router) Request(origin int, req protocol.FetchRequest) (string, error) {
	if req.EntityKind == "" || req.EntityID == "" {
		return "", fmt.Errorf("%w: entity kind and id are required", ErrInvalidRequest)
	}

	id := r.newID()
	env, err := protocol.New(protocol.KindFetchRequest, 0, protocol.FetchRequest{
		EntityKind: req.EntityKind,
		EntityID:   req.EntityID,
	})
	if err != nil {
		return "", err
	}

	p := &pending{
		origin:   origin,
		request:  req,
		deadline: r.now().Add(r.timeout),
	}
	r.pending[id] = p

	p.expected = r.transport.Broadcast(env.WithCorrelation(id))
	if p.expected == 0 {
		r.finish(id, protocol.FetchResponse{Found: false})
		return id, nil
	}

	r.logger.Debug("fetch broadcast",
		"correlation_id", id,
		"origin", origin,
		"entity_kind", req.EntityKind,
		"entity_id", req.EntityID,
		"recipients", p.expected,
	)
	return id, nil
}

// Resolve обрабатывает fetchResponse.
// Возвращает true, если ответ разрешил запрос.
func (r *Router) Resolve(correlationID string, resp protocol.FetchResponse) bool {
	p, ok := r.pending[correlationID]
	if !ok {
		r.logger.Debug("fetch response for unknown or resolved request", "correlation_id", correlationID)
		return false
	}

	if !resp.Found {
		p.misses++
		if p.misses < p.expected {
			return false
		}
	}

	r.finish(correlationID, resp)
	return true
}

// Expire разрешает просроченные запросы как «не найдено».
// Возвращает correlation id просроченных запросов.
func (r *Router) Expire(now time.Time) []string {
	var expired []string
	for id, p := range r.pending {
		if now.Before(p.deadline) {
			continue
		}
		expired = append(expired, id)
	}
	for _, id := range expired {
		r.logger.Warn("fetch timed out", "correlation_id", id, "timeout", r.timeout)
		r.finish(id, protocol.FetchResponse{Found: false})
	}
	return expired
}

// Pending возвращает число ожидающих запросов.
func (r *Router) Pending() int {
	return len(r.pending)
}

// finish удаляет запрос и доставляет результат инициатору.
func (r *Router) finish(id string, resp protocol.FetchResponse) {
	p, ok := r.pending[id]
	if !ok {
		return
	}
	delete(r.pending, id)

	result := protocol.FetchResult{
		RequestID:  p.request.RequestID,
		EntityKind: p.request.EntityKind,
		EntityID:   p.request.EntityID,
		Found:      resp.Found,
		Value:      resp.Value,
	}
	env, err := protocol.New(protocol.KindFetchResult, 0, result)
	if err != nil {
		r.logger.Error("failed to build fetch result", "correlation_id", id, "error", err)
		return
	}
	if err := r.transport.SendTo(p.origin, env.WithCorrelation(id)); err != nil {
		r.logger.Warn("failed to deliver fetch result",
			"correlation_id", id,
			"origin", p.origin,
			"error", err,
		)
	}
}
