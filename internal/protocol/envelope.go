package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shaiso/Sharder/internal/domain"
)

// Kind — тип сообщения.
type Kind string

// Сообщения логирования от воркера.
const (
	KindLog   Kind = "log"
	KindDebug Kind = "debug"
	KindInfo  Kind = "info"
	KindWarn  Kind = "warn"
	KindError Kind = "error"
)

// Управляющие сообщения.
const (
	KindStart         Kind = "start"
	KindReady         Kind = "ready"
	KindShutdown      Kind = "shutdown"
	KindNotify        Kind = "notify"
	KindStatsRequest  Kind = "statsRequest"
	KindStatsReport   Kind = "statsReport"
	KindFetchRequest  Kind = "fetchRequest"
	KindFetchResponse Kind = "fetchResponse"
	KindFetchResult   Kind = "fetchResult"
	KindBroadcast     Kind = "broadcast"
	KindSend          Kind = "send"
)

var knownKinds = map[Kind]struct{}{
	KindLog: {}, KindDebug: {}, KindInfo: {}, KindWarn: {}, KindError: {},
	KindStart: {}, KindReady: {}, KindShutdown: {}, KindNotify: {},
	KindStatsRequest: {}, KindStatsReport: {},
	KindFetchRequest: {}, KindFetchResponse: {}, KindFetchResult: {},
	KindBroadcast: {}, KindSend: {},
}

// IsKnown проверяет, входит ли kind в словарь протокола.
func (k Kind) IsKnown() bool {
	_, ok := knownKinds[k]
	return ok
}

// IsLog возвращает true для сообщений логирования.
func (k Kind) IsLog() bool {
	switch k {
	case KindLog, KindDebug, KindInfo, KindWarn, KindError:
		return true
	default:
		return false
	}
}

// Envelope — конверт сообщения.
type Envelope struct {
	// Kind — дискриминант сообщения.
	Kind Kind `json:"kind"`

	// Origin — id воркера-отправителя (0 — оркестратор).
	Origin int `json:"origin,omitempty"`

	// CorrelationID связывает запрос с ответом (fetch, stats).
	CorrelationID string `json:"correlation_id,omitempty"`

	// Payload — полезная нагрузка, разбирается через ParsePayload.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// New создаёт конверт, сериализуя payload в JSON.
// payload == nil даёт конверт без полезной нагрузки.
func New(kind Kind, origin int, payload any) (Envelope, error) {
	env := Envelope{
		Kind:      kind,
		Origin:    origin,
		Timestamp: time.Now(),
	}
	if payload == nil {
		return env, nil
	}
	if raw, ok := payload.(json.RawMessage); ok {
		env.Payload = raw
		return env, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	env.Payload = b
	return env, nil
}

// MustNew — как New, но паникует при ошибке сериализации.
// Используется только для payload-типов этого пакета.
func MustNew(kind Kind, origin int, payload any) Envelope {
	env, err := New(kind, origin, payload)
	if err != nil {
		panic(err)
	}
	return env
}

// WithCorrelation возвращает копию конверта с correlation id.
func (e Envelope) WithCorrelation(id string) Envelope {
	e.CorrelationID = id
	return e
}

// Validate проверяет, что kind известен.
func (e Envelope) Validate() error {
	if e.Kind == "" {
		return fmt.Errorf("%w: missing kind", ErrMalformed)
	}
	if !e.Kind.IsKnown() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, e.Kind)
	}
	return nil
}

// ParsePayload разбирает payload конверта в указанный тип.
func ParsePayload[T any](env Envelope) (T, error) {
	var result T
	if len(env.Payload) == 0 {
		return result, fmt.Errorf("%w: %s", ErrEmptyPayload, env.Kind)
	}
	if err := json.Unmarshal(env.Payload, &result); err != nil {
		return result, fmt.Errorf("%w: %s payload: %v", ErrMalformed, env.Kind, err)
	}
	return result, nil
}

// LogPayload — строка лога воркера.
type LogPayload struct {
	Message string `json:"msg"`
}

// StartPayload — команда запуска (или восстановления) диапазона шардов.
type StartPayload struct {
	Mode          domain.StartMode `json:"mode"`
	WorkerID      int              `json:"id"`
	FirstShardID  int              `json:"first_shard_id"`
	LastShardID   int              `json:"last_shard_id"`
	ShardCount    int              `json:"shards"`
	MaxShards     int              `json:"max_shards"`
	ClientOptions json.RawMessage  `json:"client_options,omitempty"`
}

// Range возвращает диапазон шардов команды.
func (p StartPayload) Range() domain.ShardRange {
	return domain.NewShardRange(p.FirstShardID, p.ShardCount)
}

// NotifyPayload — уведомление во внешний канал (webhook) с указанным scope.
type NotifyPayload struct {
	Scope string          `json:"scope"`
	Embed json.RawMessage `json:"embed"`
}

// StatsReport — ответ воркера на statsRequest.
type StatsReport struct {
	Shards          int   `json:"shards"`
	Guilds          int   `json:"guilds"`
	Users           int   `json:"users"`
	RAM             int64 `json:"ram"` // bytes
	Uptime          int64 `json:"uptime"`
	ExclusiveGuilds int   `json:"exclusive_guilds"`
	LargeGuilds     int   `json:"large_guilds"`
}

// FetchRequest — запрос сущности у всех воркеров.
// RequestID задаётся воркером-инициатором и возвращается в FetchResult.
type FetchRequest struct {
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	RequestID  string `json:"request_id,omitempty"`
}

// FetchResponse — ответ воркера на широковещательный fetchRequest.
type FetchResponse struct {
	Found bool            `json:"found"`
	Value json.RawMessage `json:"value,omitempty"`
}

// FetchResult — итог fetch, доставляемый воркеру-инициатору.
type FetchResult struct {
	RequestID  string          `json:"request_id,omitempty"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id"`
	Found      bool            `json:"found"`
	Value      json.RawMessage `json:"value,omitempty"`
}

// BroadcastPayload — сообщение для всех воркеров.
type BroadcastPayload struct {
	Message json.RawMessage `json:"msg"`
}

// SendPayload — сообщение для одного воркера.
type SendPayload struct {
	Target  int             `json:"cluster"`
	Message json.RawMessage `json:"msg"`
}
