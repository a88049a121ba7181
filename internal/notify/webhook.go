package notify

import (
	"context"
	"encoding/json"
	"log/slog"
)

// WebhookExecutor — upstream-клиент, умеющий исполнять webhook.
type WebhookExecutor interface {
	ExecuteWebhook(ctx context.Context, id, token string, embeds []json.RawMessage) error
}

// WebhookTarget — webhook для одного scope.
type WebhookTarget struct {
	ID    string `mapstructure:"id"`
	Token string `mapstructure:"token"`
}

// IsSet возвращает true, если webhook настроен.
func (t WebhookTarget) IsSet() bool {
	return t.ID != "" && t.Token != ""
}

// Webhook отправляет уведомления в webhooks по scope.
// Уведомления для scope без настроенного webhook отбрасываются.
type Webhook struct {
	*async
	targets map[Scope]WebhookTarget
}

// NewWebhook создаёт Webhook notifier.
func NewWebhook(client WebhookExecutor, targets map[Scope]WebhookTarget, logger *slog.Logger) *Webhook {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Webhook{targets: targets}
	w.async = &async{
		name:   "webhook",
		logger: logger,
		deliver: func(ctx context.Context, scope Scope, embed json.RawMessage) error {
			target := w.targets[scope]
			return client.ExecuteWebhook(ctx, target.ID, target.Token, []json.RawMessage{embed})
		},
	}
	return w
}

// Notify отправляет уведомление, если для scope настроен webhook.
func (w *Webhook) Notify(scope Scope, embed json.RawMessage) {
	if !w.targets[scope].IsSet() {
		return
	}
	w.async.Notify(scope, embed)
}
