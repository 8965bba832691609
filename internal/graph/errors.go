package graph

import "errors"

// Ошибки графов.
var (
	// ErrInvalidGraph — граф структурно некорректен.
	ErrInvalidGraph = errors.New("invalid step graph")

	// ErrUnknownStep — ребро ссылается на незарегистрированный шаг.
	ErrUnknownStep = errors.New("unknown step referenced")

	// ErrUnreachableSentinel — из стартового узла не достижим sentinel.
	ErrUnreachableSentinel = errors.New("no sentinel reachable from init")

	// ErrUnknownKind — для вида workflow нет графа.
	ErrUnknownKind = errors.New("unknown workflow kind")
)
