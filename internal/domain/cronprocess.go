package domain

import "time"

// CronProcessKind — вид долгоживущего consumer-процесса.
type CronProcessKind string

const (
	// CronOriginWorkflowWorker — consumer task-сообщений origin-чейна.
	CronOriginWorkflowWorker CronProcessKind = "originWorkflowWorker"

	// CronAuxWorkflowWorker — consumer task-сообщений auxiliary-чейна.
	CronAuxWorkflowWorker CronProcessKind = "auxWorkflowWorker"

	// CronStateRootSyncScheduler — периодический триггер stateRootSync.
	CronStateRootSyncScheduler CronProcessKind = "stateRootSyncScheduler"
)

// CronProcess — учётная запись долгоживущего consumer-процесса.
//
// Одна строка на процесс, ключ — (Kind, ChainID). Используется, чтобы
// не запустить дубликат consumer'а для той же пары и чтобы кормить
// операционный мониторинг. Контроллер жизненного цикла пишет сюда
// stopped только после полного drain'а (см. internal/lifecycle).
type CronProcess struct {
	// ID — уникальный идентификатор записи.
	ID int64 `json:"id"`

	// Kind — вид процесса.
	Kind CronProcessKind `json:"kind"`

	// ChainID — чейн, к которому привязан процесс.
	ChainID int64 `json:"chain_id"`

	// IP — адрес хоста, на котором работает процесс.
	IP string `json:"ip"`

	// Status — текущий статус процесса.
	Status CronProcessStatus `json:"status"`

	// LastStartedAt — время последнего запуска.
	LastStartedAt *time.Time `json:"last_started_at,omitempty"`

	// LastEndedAt — время последней корректной остановки.
	LastEndedAt *time.Time `json:"last_ended_at,omitempty"`
}

// IsLive возвращает true, если процесс числится работающим.
func (p *CronProcess) IsLive() bool {
	return p.Status == CronProcessRunning
}
