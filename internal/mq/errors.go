package mq

import "errors"

// Ошибки интеграции с RabbitMQ.
var (
	// ErrClosed — соединение закрыто через Close.
	ErrClosed = errors.New("mq: connection closed")

	// ErrNoChannel — канал недоступен (идёт переподключение).
	ErrNoChannel = errors.New("mq: no channel available")
)
