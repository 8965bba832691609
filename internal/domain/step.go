package domain

import (
	"fmt"
	"time"
)

// StepKind — идентификатор узла внутри step-графа.
type StepKind string

// Терминальные sentinel-шаги. Есть в каждом графе, исходящих рёбер
// не имеют: markSuccess переводит workflow в completed, markFailure —
// в failed (или completelyFailed после неудавшегося отката).
const (
	StepMarkSuccess StepKind = "markSuccess"
	StepMarkFailure StepKind = "markFailure"
)

// IsSentinel возвращает true для терминальных sentinel-шагов.
func (k StepKind) IsSentinel() bool {
	return k == StepMarkSuccess || k == StepMarkFailure
}

// WorkflowStep — одна попытка выполнения шага внутри workflow.
//
// Строка создаётся роутером непосредственно перед вызовом handler'а
// (optimistic insert под UniqueToken) и мутируется только роутером.
// Строка со статусом success — единственное долговременное свидетельство
// того, что шаг нельзя выполнять повторно.
type WorkflowStep struct {
	// ID — уникальный идентификатор попытки.
	ID int64 `json:"id"`

	// WorkflowID — владеющий workflow.
	WorkflowID int64 `json:"workflow_id"`

	// Kind — вид шага.
	Kind StepKind `json:"kind"`

	// Status — текущий статус попытки.
	Status StepStatus `json:"status"`

	// UniqueToken — токен уникальности, выведенный из (WorkflowID, Kind).
	// UNIQUE-колонка в БД, работает как compare-and-set lock против
	// дублирующего выполнения при at-least-once доставке.
	UniqueToken string `json:"unique_token"`

	// RequestParams — сериализованные входные параметры handler'а.
	RequestParams map[string]any `json:"request_params,omitempty"`

	// ResponseData — сериализованный результат handler'а.
	ResponseData map[string]any `json:"response_data,omitempty"`

	// Error — контекст ошибки при Status == failed.
	Error string `json:"error,omitempty"`

	// CreatedAt — время создания (захвата).
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего изменения.
	UpdatedAt time.Time `json:"updated_at"`
}

// StepUniqueToken строит токен уникальности для пары (workflowID, kind).
func StepUniqueToken(workflowID int64, kind StepKind) string {
	return fmt.Sprintf("%d:%s", workflowID, kind)
}

// MarkSuccess переводит шаг в success с данными результата.
func (s *WorkflowStep) MarkSuccess(responseData map[string]any) {
	s.Status = StepStatusSuccess
	s.ResponseData = responseData
	s.UpdatedAt = time.Now()
}

// MarkFailed переводит шаг в failed с контекстом ошибки.
func (s *WorkflowStep) MarkFailed(errMsg string, responseData map[string]any) {
	s.Status = StepStatusFailed
	s.Error = errMsg
	s.ResponseData = responseData
	s.UpdatedAt = time.Now()
}
