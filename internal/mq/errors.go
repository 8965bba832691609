package mq

import "errors"

// Ошибки брокера.
var (
	// ErrNoChannel — AMQP-канал недоступен (соединение потеряно).
	ErrNoChannel = errors.New("no channel available")
)
