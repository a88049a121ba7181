// Package api содержит HTTP-поверхность оркестратора.
//
// Структура:
//   - handler.go         — Handler с DI (оркестратор, архив статистики, metrics, logger)
//   - routes.go          — регистрация маршрутов
//   - middleware.go      — middleware (logging, recovery)
//   - response.go        — унифицированные JSON-ответы и обработка ошибок
//   - dto.go             — Data Transfer Objects (request/response)
//   - cluster_handler.go — обработчики для /workers, /plan, /stats, /broadcast
//
// API только читает состояние через цикл событий оркестратора
// и не изменяет распределение шардов.
package api
