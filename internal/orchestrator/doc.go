// Package orchestrator распределяет шарды по процессам-воркерам и управляет ими.
//
// Orchestrator отвечает за:
//   - Расчёт количества шардов (явно или по рекомендации gateway)
//   - Запуск процессов-воркеров и их регистрацию по номеру слота
//   - Распределение шардов и последовательный запуск (один start в полёте)
//   - Маршрутизацию сообщений воркеров (логи, ready, notify, fetch, stats, broadcast, send)
//   - Перезапуск упавших воркеров с восстановлением их диапазона
//   - Периодический сбор статистики
//
// Всё изменяемое состояние (Registry, launch.Sequencer, fetch.Router,
// stats.Aggregator) принадлежит одной горутине цикла событий. Процессы,
// cron и внешние вызовы (Snapshot, Broadcast, RequestStats) только
// отправляют события в цикл.
//
// Замена упавшего процесса запускается в фоне и устанавливается в слот
// событием respawnEvent. События нового процесса, пришедшие раньше,
// откладываются в слоте и обрабатываются сразу после установки.
package orchestrator
