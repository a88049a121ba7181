// Package protocol описывает словарь сообщений между оркестратором и воркерами.
//
// Каждое сообщение — Envelope с дискриминантом Kind и нетипизированным
// payload (raw JSON). Сообщения передаются в формате JSON lines через
// stdin/stdout дочернего процесса (см. codec.go).
//
// Направления:
//   - воркер → оркестратор: log/debug/info/warn/error, ready, notify,
//     statsReport, fetchRequest, fetchResponse, broadcast, send
//   - оркестратор → воркер: start, statsRequest, fetchRequest, fetchResult,
//     shutdown, а также произвольные сообщения broadcast/send
package protocol
