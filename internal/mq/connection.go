package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	initialReconnectDelay = time.Second
	maxReconnectDelay     = 30 * time.Second
)

// Connection — AMQP соединение с одним каналом и автоматическим reconnect.
//
// Оркестратор не зависит от брокера: при разрыве публикации возвращают
// ошибку, которую вызывающий логирует и игнорирует, а consumer ждёт
// переподключения.
type Connection struct {
	url    string
	logger *slog.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
	closed  bool

	done        chan struct{}
	reconnected chan struct{}
}

// NewConnection подключается к RabbitMQ и следит за соединением в фоне.
func NewConnection(url string, logger *slog.Logger) (*Connection, error) {
	c := &Connection{
		url:         url,
		logger:      logger.With("component", "mq"),
		done:        make(chan struct{}),
		reconnected: make(chan struct{}, 1),
	}

	conn, err := c.dial()
	if err != nil {
		return nil, err
	}
	c.logger.Info("connected to RabbitMQ")

	go c.supervise(conn)
	return c, nil
}

// dial открывает соединение и канал и делает их текущими.
func (c *Connection) dial() (*amqp.Connection, error) {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		_ = conn.Close()
		return nil, ErrClosed
	}
	c.conn = conn
	c.channel = ch
	return conn, nil
}

// supervise ждёт разрыва соединения и переподключается.
// nil из NotifyClose означает штатное закрытие через Close.
func (c *Connection) supervise(conn *amqp.Connection) {
	for {
		lost := conn.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-c.done:
			return
		case err := <-lost:
			if err == nil {
				return
			}
			c.logger.Warn("connection lost", "error", err)
		}

		next, ok := c.redial()
		if !ok {
			return
		}
		conn = next
		c.logger.Info("reconnected to RabbitMQ")

		select {
		case c.reconnected <- struct{}{}:
		default:
		}
	}
}

// redial повторяет dial с удвоением задержки до maxReconnectDelay.
func (c *Connection) redial() (*amqp.Connection, bool) {
	delay := initialReconnectDelay
	for {
		select {
		case <-c.done:
			return nil, false
		case <-time.After(delay):
		}

		conn, err := c.dial()
		switch {
		case err == nil:
			return conn, true
		case errors.Is(err, ErrClosed):
			return nil, false
		}

		c.logger.Warn("reconnect failed", "error", err, "retry_in", delay)
		delay = min(delay*2, maxReconnectDelay)
	}
}

// Channel возвращает текущий канал (nil до первого соединения).
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// Reconnected сигналит после каждого успешного переподключения.
func (c *Connection) Reconnected() <-chan struct{} {
	return c.reconnected
}

// WithChannel выполняет fn с текущим каналом.
func (c *Connection) WithChannel(ctx context.Context, fn func(ch *amqp.Channel) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.RLock()
	ch, closed := c.channel, c.closed
	c.mu.RUnlock()

	if closed {
		return ErrClosed
	}
	if ch == nil || ch.IsClosed() {
		return ErrNoChannel
	}
	return fn(ch)
}

// Close закрывает канал и соединение. Повторный вызов ничего не делает.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)

	var errs []error
	if c.channel != nil && !c.channel.IsClosed() {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}
	if c.conn != nil && !c.conn.IsClosed() {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	c.logger.Info("connection closed")
	return nil
}
