// Package mq — опциональная интеграция с RabbitMQ.
//
// Структура:
//   - connection.go — соединение с reconnect и graceful shutdown
//   - topology.go   — exchanges, queues, bindings
//   - publisher.go  — публикация уведомлений и агрегатов статистики
//   - consumer.go   — приём внешних broadcast-команд для воркеров
//
// Exchanges:
//   - sharder.events   (topic)  — уведомления (notify.<scope>) и статистика (stats)
//   - sharder.control  (direct) — команды извне: broadcast всем воркерам
//
// Без RabbitMQ оркестратор работает полностью: уведомления уходят только
// в webhooks, а broadcast доступен через HTTP API.
package mq
