package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип сообщения в брокере.
type MessageType string

// Типы сообщений.
const (
	MessageTypeNotification MessageType = "notification"
	MessageTypeStats        MessageType = "stats"
	MessageTypeBroadcast    MessageType = "broadcast"
)

// Message — сообщение в брокере.
type Message struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NotificationPayload — уведомление оркестратора или воркера.
type NotificationPayload struct {
	Scope string          `json:"scope"`
	Embed json.RawMessage `json:"embed"`
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish публикует payload с указанным типом в exchange.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msgType MessageType, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	msg := Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   raw,
		Timestamp: time.Now(),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),
			string(routingKey),
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Transient, // уведомления не переживают рестарт брокера
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msgType,
		)
		return nil
	})
}

// PublishNotification публикует уведомление в sharder.events с ключом notify.<scope>.
func (p *Publisher) PublishNotification(ctx context.Context, scope string, embed json.RawMessage) error {
	return p.Publish(ctx, ExchangeEvents, NotifyRoutingKey(scope), MessageTypeNotification,
		NotificationPayload{Scope: scope, Embed: embed})
}

// PublishStats публикует агрегат статистики в sharder.events.
func (p *Publisher) PublishStats(ctx context.Context, stats any) error {
	return p.Publish(ctx, ExchangeEvents, RoutingKeyStats, MessageTypeStats, stats)
}

// BroadcastCommand — внешняя команда разослать сообщение всем воркерам.
type BroadcastCommand struct {
	Message json.RawMessage `json:"msg"`
}
