// Package telemetry обеспечивает наблюдаемость оркестратора.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики
//
// Логи воркеров, пришедшие по протоколу, пишутся тем же логгером
// с атрибутом worker=<id>. Метрики экспортируются на /metrics.
package telemetry
