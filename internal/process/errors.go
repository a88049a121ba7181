package process

import "errors"

// Ошибки управления процессами.
var (
	// ErrSpawnFailed — не удалось запустить процесс после всех попыток.
	ErrSpawnFailed = errors.New("spawn failed")

	// ErrProcessExited — процесс уже завершён, отправка невозможна.
	ErrProcessExited = errors.New("process exited")

	// ErrRestartLimit — превышен лимит рестартов слота.
	ErrRestartLimit = errors.New("restart limit exceeded")
)
