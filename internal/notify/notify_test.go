package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type webhookCall struct {
	id, token string
	embeds    []json.RawMessage
}

type fakeExecutor struct {
	mu    sync.Mutex
	calls []webhookCall
	err   error
}

func (f *fakeExecutor) ExecuteWebhook(_ context.Context, id, token string, embeds []json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, webhookCall{id: id, token: token, embeds: embeds})
	return f.err
}

func TestWebhook_RoutesByScope(t *testing.T) {
	exec := &fakeExecutor{}
	w := NewWebhook(exec, map[Scope]WebhookTarget{
		ScopeCluster: {ID: "1", Token: "c"},
	}, discard)

	w.Notify(ScopeCluster, Embed{Title: "Cluster 1 died"}.Raw())
	w.Notify(ScopeShard, Embed{Title: "Shard 4 ready"}.Raw())
	w.Wait()

	require.Len(t, exec.calls, 1)
	require.Equal(t, "1", exec.calls[0].id)
	require.Equal(t, "c", exec.calls[0].token)
	require.JSONEq(t, `{"title":"Cluster 1 died"}`, string(exec.calls[0].embeds[0]))
}

func TestWebhook_ErrorsAreSwallowed(t *testing.T) {
	exec := &fakeExecutor{err: errors.New("429 too many requests")}
	w := NewWebhook(exec, map[Scope]WebhookTarget{ScopeShard: {ID: "2", Token: "s"}}, discard)

	w.Notify(ScopeShard, Embed{Title: "x"}.Raw())
	w.Wait()

	require.Len(t, exec.calls, 1)
}

type fakePublisher struct {
	mu     sync.Mutex
	scopes []string
}

func (f *fakePublisher) PublishNotification(_ context.Context, scope string, _ json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scopes = append(f.scopes, scope)
	return nil
}

func TestMulti_FansOut(t *testing.T) {
	exec := &fakeExecutor{}
	pub := &fakePublisher{}
	w := NewWebhook(exec, map[Scope]WebhookTarget{ScopeCluster: {ID: "1", Token: "c"}}, discard)
	b := NewBroker(pub, discard)

	Multi{w, b, Nop{}}.Notify(ScopeCluster, Embed{Title: "Starting 2 shards in 2 clusters"}.Raw())
	w.Wait()
	b.Wait()

	require.Len(t, exec.calls, 1)
	require.Equal(t, []string{"cluster"}, pub.scopes)
}
