// Package process запускает процессы воркеров и следит за их жизненным циклом.
//
// Воркер — дочерний процесс (обычно тот же бинарник с подкомандой worker),
// связанный с оркестратором двумя каналами:
//   - stdin  — сообщения оркестратор → воркер (JSON lines)
//   - stdout — сообщения воркер → оркестратор (JSON lines)
//
// stderr воркера пересылается в лог построчно. Для каждого процесса
// запускаются горутина чтения (сохраняет порядок сообщений одного воркера)
// и горутина ожидания завершения. Обе сообщают о событиях через Events.
//
// RestartPolicy ограничивает число подряд идущих рестартов одного слота.
package process
