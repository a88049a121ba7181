package fetch

import (
	"encoding/json"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shaiso/Sharder/internal/protocol"
)

type delivery struct {
	worker int
	env    protocol.Envelope
}

// fakeTransport — набор воркеров в памяти.
type fakeTransport struct {
	workers    []int
	broadcasts []protocol.Envelope
	direct     []delivery
}

func (f *fakeTransport) Broadcast(env protocol.Envelope) int {
	f.broadcasts = append(f.broadcasts, env)
	return len(f.workers)
}

func (f *fakeTransport) SendTo(workerID int, env protocol.Envelope) error {
	f.direct = append(f.direct, delivery{worker: workerID, env: env})
	return nil
}

func newTestRouter(tr Transport, now func() time.Time) *Router {
	seq := 0
	return New(Config{
		Transport: tr,
		Timeout:   5 * time.Second,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		NewID: func() string {
			seq++
			return "corr-" + strconv.Itoa(seq)
		},
		Now: now,
	})
}

func TestRouter_FirstResponseWins(t *testing.T) {
	tr := &fakeTransport{workers: []int{1, 2, 3}}
	r := newTestRouter(tr, time.Now)

	id, err := r.Request(1, protocol.FetchRequest{EntityKind: "guild", EntityID: "123", RequestID: "req-7"})
	require.NoError(t, err)
	require.Equal(t, 1, r.Pending())

	// Запрос разослан всем с новым correlation id.
	require.Len(t, tr.broadcasts, 1)
	require.Equal(t, protocol.KindFetchRequest, tr.broadcasts[0].Kind)
	require.Equal(t, id, tr.broadcasts[0].CorrelationID)

	value := json.RawMessage(`{"name":"V"}`)
	require.True(t, r.Resolve(id, protocol.FetchResponse{Found: true, Value: value}))
	require.Zero(t, r.Pending())

	// Второй ответ (от воркера 3) — no-op.
	require.False(t, r.Resolve(id, protocol.FetchResponse{Found: true, Value: json.RawMessage(`{"name":"W"}`)}))

	require.Len(t, tr.direct, 1)
	require.Equal(t, 1, tr.direct[0].worker)

	result, err := protocol.ParsePayload[protocol.FetchResult](tr.direct[0].env)
	require.NoError(t, err)
	require.True(t, result.Found)
	require.JSONEq(t, `{"name":"V"}`, string(result.Value))
	require.Equal(t, "req-7", result.RequestID)
	require.Equal(t, "123", result.EntityID)
}

func TestRouter_FreshIDPerRequest(t *testing.T) {
	tr := &fakeTransport{workers: []int{1, 2}}
	r := New(Config{Transport: tr, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	a, err := r.Request(1, protocol.FetchRequest{EntityKind: "user", EntityID: "1"})
	require.NoError(t, err)
	b, err := r.Request(1, protocol.FetchRequest{EntityKind: "user", EntityID: "1"})
	require.NoError(t, err)

	require.NotEqual(t, a, b)
	require.Equal(t, 2, r.Pending())
}

func TestRouter_AllMissesResolveNotFound(t *testing.T) {
	tr := &fakeTransport{workers: []int{1, 2}}
	r := newTestRouter(tr, time.Now)

	id, err := r.Request(2, protocol.FetchRequest{EntityKind: "channel", EntityID: "9"})
	require.NoError(t, err)

	require.False(t, r.Resolve(id, protocol.FetchResponse{Found: false}))
	require.Equal(t, 1, r.Pending())
	require.True(t, r.Resolve(id, protocol.FetchResponse{Found: false}))
	require.Zero(t, r.Pending())

	result, err := protocol.ParsePayload[protocol.FetchResult](tr.direct[0].env)
	require.NoError(t, err)
	require.False(t, result.Found)
}

func TestRouter_ExpireResolvesNotFound(t *testing.T) {
	start := time.Unix(1000, 0)
	tr := &fakeTransport{workers: []int{1, 2, 3}}
	r := newTestRouter(tr, func() time.Time { return start })

	id, err := r.Request(3, protocol.FetchRequest{EntityKind: "guild", EntityID: "42"})
	require.NoError(t, err)

	require.Empty(t, r.Expire(start.Add(4*time.Second)))
	require.Equal(t, []string{id}, r.Expire(start.Add(5*time.Second)))
	require.Zero(t, r.Pending())

	require.Len(t, tr.direct, 1)
	require.Equal(t, 3, tr.direct[0].worker)
	result, err := protocol.ParsePayload[protocol.FetchResult](tr.direct[0].env)
	require.NoError(t, err)
	require.False(t, result.Found)

	// Поздний ответ после таймаута игнорируется.
	require.False(t, r.Resolve(id, protocol.FetchResponse{Found: true}))
	require.Len(t, tr.direct, 1)
}

func TestRouter_InvalidRequest(t *testing.T) {
	r := newTestRouter(&fakeTransport{workers: []int{1}}, time.Now)

	_, err := r.Request(1, protocol.FetchRequest{EntityKind: "guild"})
	require.ErrorIs(t, err, ErrInvalidRequest)
	require.Zero(t, r.Pending())
}

func TestRouter_NoRecipients(t *testing.T) {
	tr := &fakeTransport{}
	r := newTestRouter(tr, time.Now)

	_, err := r.Request(1, protocol.FetchRequest{EntityKind: "guild", EntityID: "1"})
	require.NoError(t, err)
	require.Zero(t, r.Pending())
	require.Len(t, tr.direct, 1)
}
