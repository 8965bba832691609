package mq

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Chainflow/internal/domain"
)

// TaskMessage — конверт task-сообщения.
//
// Ровно одно сообщение на запуск одного шага. Доставка at-least-once:
// корректность обеспечивает идемпотентность роутера (unique token на
// WorkflowStep), а не свойства брокера.
type TaskMessage struct {
	// ID — уникальный идентификатор конверта.
	ID string `json:"id"`

	// WorkflowID — владеющий workflow.
	WorkflowID int64 `json:"workflow_id"`

	// CurrentStepID — id только что завершённой строки WorkflowStep,
	// если есть.
	CurrentStepID int64 `json:"current_step_id,omitempty"`

	// StepKind — следующий шаг к выполнению.
	StepKind domain.StepKind `json:"step_kind"`

	// WorkflowKind — вид workflow, выбирает step-граф.
	WorkflowKind domain.Kind `json:"workflow_kind"`

	// Topic — топик брокера, в который сообщение опубликовано.
	Topic string `json:"topic"`

	// TaskStatus — статус задачи (taskReadyToStart / taskPending / ...).
	TaskStatus domain.TaskStatus `json:"task_status"`

	// TaskResponseData — данные результата предыдущего шага.
	TaskResponseData map[string]any `json:"task_response_data,omitempty"`

	// ClientID — идентификатор клиента (tenant).
	ClientID int64 `json:"client_id,omitempty"`

	// GroupID — идентификатор группы чейнов.
	GroupID int64 `json:"group_id,omitempty"`

	// RequestParams — накопленные параметры следующего handler'а.
	RequestParams map[string]any `json:"request_params"`

	// Payload — исходный payload триггера.
	Payload map[string]any `json:"payload,omitempty"`

	// PublishedAt — время публикации.
	PublishedAt time.Time `json:"published_at"`
}

// NewTaskMessage создаёт конверт с заполненными ID и временем.
func NewTaskMessage(workflowID int64, workflowKind domain.Kind, stepKind domain.StepKind, topic string) *TaskMessage {
	return &TaskMessage{
		ID:           uuid.New().String(),
		WorkflowID:   workflowID,
		WorkflowKind: workflowKind,
		StepKind:     stepKind,
		Topic:        topic,
		TaskStatus:   domain.TaskStatusReadyToStart,
		PublishedAt:  time.Now(),
	}
}

// CommandKind — вид внеполосной команды consumer-процессу.
type CommandKind string

const (
	// CommandPause — приостановить потребление.
	CommandPause CommandKind = "pause"

	// CommandResume — возобновить потребление.
	CommandResume CommandKind = "resume"

	// CommandShutdown — начать graceful shutdown.
	CommandShutdown CommandKind = "shutdown"
)

// CommandMessage — внеполосное командное сообщение. Идёт отдельным
// низкообъёмным каналом (fanout exchange), не смешивается с task-потоком.
type CommandMessage struct {
	// ID — уникальный идентификатор конверта.
	ID string `json:"id"`

	// Kind — вид команды.
	Kind CommandKind `json:"kind"`

	// ConsumerTag — адресат; пустой — всем consumer'ам.
	ConsumerTag string `json:"consumer_tag,omitempty"`

	// PublishedAt — время публикации.
	PublishedAt time.Time `json:"published_at"`
}
