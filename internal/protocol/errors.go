package protocol

import "errors"

// Ошибки протокола.
var (
	// ErrUnknownKind — сообщение с неизвестным kind.
	ErrUnknownKind = errors.New("unknown message kind")

	// ErrMalformed — сообщение не удалось разобрать.
	ErrMalformed = errors.New("malformed message")

	// ErrLineTooLong — строка длиннее лимита, она пропущена до перевода строки.
	ErrLineTooLong = errors.New("line too long")

	// ErrEmptyPayload — payload отсутствует, хотя обязателен для kind.
	ErrEmptyPayload = errors.New("empty payload")
)
