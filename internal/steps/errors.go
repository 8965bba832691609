package steps

import "errors"

// Ошибки шагов.
var (
	// ErrHandlerNotRegistered — для вида шага нет handler'а.
	ErrHandlerNotRegistered = errors.New("step handler not registered")
)
