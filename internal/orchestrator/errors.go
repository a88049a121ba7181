package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrAlreadyStarted — Start вызван повторно.
	ErrAlreadyStarted = errors.New("orchestrator already started")

	// ErrNotRunning — оркестратор не запущен или уже остановлен.
	ErrNotRunning = errors.New("orchestrator is not running")

	// ErrNoGateway — количество шардов не задано, а gateway не настроен.
	ErrNoGateway = errors.New("shard count is auto but no gateway is configured")

	// ErrUnknownWorker — воркер с таким id не зарегистрирован.
	ErrUnknownWorker = errors.New("unknown worker")

	// ErrProtocolViolation — сообщение воркера нарушает протокол.
	ErrProtocolViolation = errors.New("protocol violation")
)
