package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeEvents  Exchange = "sharder.events"
	ExchangeControl Exchange = "sharder.control"
)

// Queues — имена очередей.
const (
	QueueControlBroadcast Queue = "sharder.control.broadcast"
)

// Routing keys.
const (
	RoutingKeyStats     RoutingKey = "stats"
	RoutingKeyBroadcast RoutingKey = "broadcast"
)

// NotifyRoutingKey возвращает ключ для уведомлений указанного scope.
func NotifyRoutingKey(scope string) RoutingKey {
	return RoutingKey("notify." + scope)
}

// SetupTopology объявляет exchanges, queues и bindings.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		exchanges := []struct {
			name Exchange
			kind string
		}{
			{ExchangeEvents, "topic"},
			{ExchangeControl, "direct"},
		}
		for _, ex := range exchanges {
			err := ch.ExchangeDeclare(
				string(ex.name), // name
				ex.kind,         // type
				true,            // durable
				false,           // auto-deleted
				false,           // internal
				false,           // no-wait
				nil,             // arguments
			)
			if err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex.name, err)
			}
		}

		_, err := ch.QueueDeclare(
			string(QueueControlBroadcast), // name
			true,                          // durable
			false,                         // delete when unused
			false,                         // exclusive
			false,                         // no-wait
			nil,                           // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", QueueControlBroadcast, err)
		}

		err = ch.QueueBind(
			string(QueueControlBroadcast),
			string(RoutingKeyBroadcast),
			string(ExchangeControl),
			false,
			nil,
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", QueueControlBroadcast, ExchangeControl, err)
		}

		return nil
	})
}
