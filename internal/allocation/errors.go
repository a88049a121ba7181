package allocation

import "errors"

// Ошибки распределения.
var (
	// ErrInvalidDivisor — guildsPerShard должен быть положительным.
	ErrInvalidDivisor = errors.New("guilds per shard must be positive")

	// ErrNegativeCount — отрицательное количество шардов.
	ErrNegativeCount = errors.New("shard count must not be negative")

	// ErrNoWorkers — нет воркеров для распределения ненулевого числа шардов.
	ErrNoWorkers = errors.New("no workers to distribute shards to")
)
