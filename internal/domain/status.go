package domain

// WorkerStatus — статус воркера (процесса), владеющего диапазоном шардов.
//
// Жизненный цикл:
//
//	SPAWNING → REGISTERED → ASSIGNED → CONNECTED
//	                                  ↘ DISCONNECTED → RESTARTING → REGISTERED
//	          (или) → TERMINATED (лимит рестартов исчерпан или остановка)
type WorkerStatus string

const (
	// WorkerStatusSpawning — процесс создаётся.
	WorkerStatusSpawning WorkerStatus = "SPAWNING"

	// WorkerStatusRegistered — процесс запущен и зарегистрирован, шарды не назначены.
	WorkerStatusRegistered WorkerStatus = "REGISTERED"

	// WorkerStatusAssigned — воркеру назначен диапазон шардов, команда start в очереди.
	WorkerStatusAssigned WorkerStatus = "ASSIGNED"

	// WorkerStatusConnected — воркер подтвердил подключение своих шардов (ready).
	WorkerStatusConnected WorkerStatus = "CONNECTED"

	// WorkerStatusDisconnected — процесс завершился.
	WorkerStatusDisconnected WorkerStatus = "DISCONNECTED"

	// WorkerStatusRestarting — запускается замена упавшего процесса.
	WorkerStatusRestarting WorkerStatus = "RESTARTING"

	// WorkerStatusTerminated — воркер окончательно выведен из работы.
	WorkerStatusTerminated WorkerStatus = "TERMINATED"
)

// IsTerminal возвращает true, если статус финальный.
func (s WorkerStatus) IsTerminal() bool {
	return s == WorkerStatusTerminated
}

// IsAlive возвращает true, если у воркера есть живой процесс.
func (s WorkerStatus) IsAlive() bool {
	switch s {
	case WorkerStatusRegistered, WorkerStatusAssigned, WorkerStatusConnected:
		return true
	default:
		return false
	}
}

// StartMode различает первый запуск шардов и восстановление после падения.
type StartMode string

const (
	// StartModeStart — первичный запуск после распределения.
	StartModeStart StartMode = "start"

	// StartModeResume — повторный запуск диапазона упавшего воркера.
	StartModeResume StartMode = "resume"
)
