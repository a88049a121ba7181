package notify

import (
	"context"
	"encoding/json"
	"log/slog"
)

// NotificationPublisher публикует уведомления в брокер (mq.Publisher).
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, scope string, embed json.RawMessage) error
}

// Broker публикует все уведомления в RabbitMQ.
type Broker struct {
	*async
}

// NewBroker создаёт Broker notifier.
func NewBroker(publisher NotificationPublisher, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		async: &async{
			name:   "amqp",
			logger: logger,
			deliver: func(ctx context.Context, scope Scope, embed json.RawMessage) error {
				return publisher.PublishNotification(ctx, string(scope), embed)
			},
		},
	}
}
