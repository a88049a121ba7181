package worker

import "errors"

// Ошибки воркера.
var (
	// ErrUnknownEntityKind — нет резолвера для типа сущности.
	ErrUnknownEntityKind = errors.New("unknown entity kind")

	// ErrStartFailed — Handler.Start завершился ошибкой.
	ErrStartFailed = errors.New("start failed")

	// ErrFetchTimeout — fetchResult не пришёл вовремя.
	ErrFetchTimeout = errors.New("fetch timeout")

	// ErrWorkerStopped — воркер остановлен.
	ErrWorkerStopped = errors.New("worker stopped")
)
