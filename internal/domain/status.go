package domain

// WorkflowStatus — статус выполнения workflow.
//
// Жизненный цикл:
//
//	inProgress → completed
//	           ↘ failed
//	           ↘ completelyFailed (откат тоже не удался)
type WorkflowStatus string

const (
	// WorkflowStatusInProgress — workflow выполняется.
	WorkflowStatusInProgress WorkflowStatus = "inProgress"

	// WorkflowStatusCompleted — workflow успешно завершён (markSuccess).
	WorkflowStatusCompleted WorkflowStatus = "completed"

	// WorkflowStatusFailed — workflow завершился с ошибкой (markFailure).
	WorkflowStatusFailed WorkflowStatus = "failed"

	// WorkflowStatusCompletelyFailed — компенсирующий шаг сам упал,
	// частично выполненная работа не откачена.
	WorkflowStatusCompletelyFailed WorkflowStatus = "completelyFailed"
)

// IsTerminal возвращает true, если статус финальный.
func (s WorkflowStatus) IsTerminal() bool {
	switch s {
	case WorkflowStatusCompleted, WorkflowStatusFailed, WorkflowStatusCompletelyFailed:
		return true
	default:
		return false
	}
}

// StepStatus — статус одной попытки шага.
//
// Жизненный цикл:
//
//	queued → processing → success
//	                    ↘ failed
//
// processing может длиться долго: pending-шаги ждут подтверждения
// в блокчейне и переигрываются с задержкой без смены статуса.
type StepStatus string

const (
	// StepStatusQueued — шаг поставлен в очередь.
	StepStatusQueued StepStatus = "queued"

	// StepStatusProcessing — шаг захвачен роутером (compare-and-set lock).
	StepStatusProcessing StepStatus = "processing"

	// StepStatusSuccess — шаг выполнен. Единственное долговременное
	// свидетельство того, что шаг нельзя выполнять повторно.
	StepStatusSuccess StepStatus = "success"

	// StepStatusFailed — шаг завершился с ошибкой.
	StepStatusFailed StepStatus = "failed"
)

// IsTerminal возвращает true, если статус финальный.
func (s StepStatus) IsTerminal() bool {
	return s == StepStatusSuccess || s == StepStatusFailed
}

// TaskStatus — статус task-сообщения в очереди.
//
// Это статус СООБЩЕНИЯ, а не шага: taskReadyToStart несёт новый шаг,
// taskPending — переигровку pending-шага, taskDone/taskFailed — результат.
type TaskStatus string

const (
	// TaskStatusReadyToStart — шаг готов к выполнению.
	TaskStatusReadyToStart TaskStatus = "taskReadyToStart"

	// TaskStatusDone — шаг выполнен (результат handler'а).
	TaskStatusDone TaskStatus = "taskDone"

	// TaskStatusFailed — шаг завершился с ошибкой.
	TaskStatusFailed TaskStatus = "taskFailed"

	// TaskStatusPending — шаг не разрешился (ждёт подтверждения в чейне),
	// сообщение переигрывается с задержкой.
	TaskStatusPending TaskStatus = "taskPending"
)

// CronProcessStatus — статус долгоживущего consumer-процесса.
type CronProcessStatus string

const (
	// CronProcessRunning — процесс работает и потребляет сообщения.
	CronProcessRunning CronProcessStatus = "running"

	// CronProcessStopped — процесс корректно остановлен (drain завершён).
	CronProcessStopped CronProcessStatus = "stopped"

	// CronProcessInactive — процесс выведен из эксплуатации.
	CronProcessInactive CronProcessStatus = "inactive"
)
