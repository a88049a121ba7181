// Package launch реализует очередь запуска шардов (Launch Sequencer).
//
// Очередь — глобальный FIFO команд start/resume. В каждый момент «в полёте»
// не более одной команды: следующая отправляется только после подтверждения
// готовности (ready) от воркера-получателя текущей, его падения (CancelHead)
// или истечения таймаута подтверждения (Expire).
//
// Очередь не потокобезопасна: её использует только цикл событий оркестратора.
package launch
