package steps

import (
	"context"

	"github.com/shaiso/Chainflow/internal/domain"
)

// Handler — исполняемая единица одного вида шага.
//
// Контракт: ожидаемые неудачи возвращаются как TaskStatus failed,
// error зарезервирован под инфраструктурные сбои (роутер трактует их
// как failed без компенсирующих данных). Паники перехватывает роутер.
type Handler interface {
	// Execute выполняет шаг и возвращает результат.
	Execute(ctx context.Context, req *Request) (*Result, error)
}

// HandlerFunc — адаптер функции к интерфейсу Handler.
type HandlerFunc func(ctx context.Context, req *Request) (*Result, error)

// Execute вызывает f.
func (f HandlerFunc) Execute(ctx context.Context, req *Request) (*Result, error) {
	return f(ctx, req)
}

// Request — входные данные handler'а.
type Request struct {
	// WorkflowID — владеющий workflow.
	WorkflowID int64

	// WorkflowKind — вид workflow.
	WorkflowKind domain.Kind

	// StepKind — вид выполняемого шага.
	StepKind domain.StepKind

	// ChainID — идентификатор чейна, подставленный роутером
	// (origin или auxiliary в зависимости от варианта воркера).
	ChainID int64

	// Params — накопленные параметры: requestParams сообщения плюс
	// response data шагов из readDataFrom.
	Params map[string]any

	// Payload — исходный payload триггера, если был.
	Payload map[string]any
}

// Result — результат выполнения шага.
type Result struct {
	// TaskStatus — done, pending или failed.
	TaskStatus domain.TaskStatus

	// TaskResponseData — данные результата, персистятся в WorkflowStep
	// и доступны последующим шагам через readDataFrom.
	TaskResponseData map[string]any
}

// Done возвращает успешный результат с данными.
func Done(data map[string]any) *Result {
	return &Result{TaskStatus: domain.TaskStatusDone, TaskResponseData: data}
}

// Pending возвращает результат «ещё не разрешился»: состояние шага не
// меняется, сообщение переигрывается с задержкой.
func Pending(data map[string]any) *Result {
	return &Result{TaskStatus: domain.TaskStatusPending, TaskResponseData: data}
}

// Failed возвращает ожидаемую неудачу с контекстом ошибки.
func Failed(reason string) *Result {
	return &Result{
		TaskStatus:       domain.TaskStatusFailed,
		TaskResponseData: map[string]any{"error": reason},
	}
}

// ParamString извлекает строковый параметр.
func ParamString(params map[string]any, key string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// ParamInt64 извлекает числовой параметр. JSON-декодер отдаёт числа
// как float64, поэтому поддерживаются оба представления.
func ParamInt64(params map[string]any, key string) int64 {
	switch n := params[key].(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}
