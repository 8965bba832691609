package router

import "errors"

// Ошибки роутера.
var (
	// ErrUnknownWorkflowKind — для вида workflow нет графа.
	ErrUnknownWorkflowKind = errors.New("unknown workflow kind")

	// ErrUnknownStepKind — вид шага не является узлом графа.
	ErrUnknownStepKind = errors.New("step kind is not a graph node")
)
