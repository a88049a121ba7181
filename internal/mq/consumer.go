package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler обрабатывает сообщение из очереди.
// Сообщение с ошибкой отклоняется без возврата в очередь: команда
// к повторной доставке могла устареть.
type Handler func(ctx context.Context, msg Message) error

// Consumer читает одну очередь и передаёт сообщения Handler по одному.
// Оркестратор использует его для внешних broadcast-команд (sharder.control).
type Consumer struct {
	conn    *Connection
	queue   Queue
	handler Handler
	logger  *slog.Logger

	stop     chan struct{}
	stopOnce sync.Once
}

// NewConsumer создаёт Consumer для очереди queue.
func NewConsumer(conn *Connection, logger *slog.Logger, queue Queue, handler Handler) *Consumer {
	return &Consumer{
		conn:    conn,
		queue:   queue,
		handler: handler,
		logger:  logger.With("queue", string(queue)),
		stop:    make(chan struct{}),
	}
}

// Start потребляет сообщения до отмены ctx или Stop.
// После разрыва соединения подписка восстанавливается по сигналу Reconnected.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		deliveries, err := c.subscribe()
		if err != nil {
			c.logger.Error("failed to subscribe", "error", err)
		} else {
			c.logger.Info("consumer started")
			c.drain(ctx, deliveries)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("consumer waiting for reconnect")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.conn.Reconnected():
		}
	}
}

// Stop останавливает Start.
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Consumer) subscribe() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, ErrNoChannel
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	// Ручной ack: сообщение подтверждается после обработки.
	deliveries, err := ch.Consume(string(c.queue), "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	return deliveries, nil
}

// drain обрабатывает доставки, пока канал открыт.
func (c *Consumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			if err := c.handle(ctx, d.Body); err != nil {
				c.logger.Error("message rejected", "error", err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// handle разбирает тело сообщения и вызывает Handler.
func (c *Consumer) handle(ctx context.Context, body []byte) error {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("unmarshal message: %w", err)
	}
	c.logger.Debug("received message", "message_id", msg.ID, "type", msg.Type)

	if err := c.handler(ctx, msg); err != nil {
		return fmt.Errorf("handle %s %s: %w", msg.Type, msg.ID, err)
	}
	return nil
}

// ParsePayload разбирает payload сообщения в указанный тип.
func ParsePayload[T any](msg Message) (T, error) {
	var result T
	if len(msg.Payload) == 0 {
		return result, fmt.Errorf("empty %s payload", msg.Type)
	}
	if err := json.Unmarshal(msg.Payload, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}
	return result, nil
}
