// Package cli реализует клиентские команды sharder.
//
// # Обзор
//
// Команды работают через HTTP API запущенного оркестратора
// и не импортируют внутренние пакеты системы.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для API оркестратора. Инкапсулирует HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8083")
//	workers, err := client.ListWorkers()
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: sharder workers list --json | jq .
//
// ## Commands
//
//   - workers: list, plan
//   - stats: show, history, collect
//   - broadcast JSON
//
// Каждая группа создаётся через фабричную функцию (NewWorkersCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
