package domain

import (
	"time"
)

// Kind — идентификатор вида workflow. Каждый Kind владеет ровно одним
// step-графом (см. internal/graph).
type Kind string

// Виды workflow. Канонический набор: ровно одно определение графа на вид.
const (
	KindAuthorizeDevice      Kind = "authorizeDevice"
	KindRevokeDevice         Kind = "revokeDevice"
	KindAuthorizeSession     Kind = "authorizeSession"
	KindRevokeSession        Kind = "revokeSession"
	KindLogoutSessions       Kind = "logoutSessions"
	KindInitiateRecovery     Kind = "initiateRecovery"
	KindAbortRecoveryByOwner Kind = "abortRecoveryByOwner"
	KindUserSetup            Kind = "userSetup"
	KindStPrimeStakeAndMint  Kind = "stPrimeStakeAndMint"
	KindBTStakeAndMint       Kind = "btStakeAndMint"
	KindGrantEthStakeCurrency Kind = "grantEthStakeCurrency"
	KindTokenDeployment      Kind = "tokenDeployment"
	KindStateRootSync        Kind = "stateRootSync"
	KindTestWorkflow         Kind = "testWorkflow"
)

// Workflow — экземпляр долгоживущей многошаговой операции.
//
// Workflow создаётся, когда триггер (API, cron, шаг другого workflow)
// начинает новую операцию. Статус меняют только терминальные шаги
// markSuccess/markFailure. Записи не удаляются — хранятся для аудита
// и отчётов о прогрессе.
type Workflow struct {
	// ID — уникальный идентификатор workflow.
	ID int64 `json:"id"`

	// Kind — вид workflow, выбирает step-граф.
	Kind Kind `json:"kind"`

	// Status — общий статус выполнения.
	Status WorkflowStatus `json:"status"`

	// ClientID — идентификатор клиента (tenant). 0 для системных workflow
	// (например, stateRootSync).
	ClientID int64 `json:"client_id,omitempty"`

	// RequestParams — исходные параметры запуска.
	RequestParams map[string]any `json:"request_params,omitempty"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего изменения.
	UpdatedAt time.Time `json:"updated_at"`
}

// IsFinished возвращает true, если workflow завершён (в любом статусе).
func (w *Workflow) IsFinished() bool {
	return w.Status.IsTerminal()
}

// MarkCompleted переводит workflow в статус completed.
func (w *Workflow) MarkCompleted() {
	w.Status = WorkflowStatusCompleted
	w.UpdatedAt = time.Now()
}

// MarkFailed переводит workflow в статус failed.
func (w *Workflow) MarkFailed() {
	w.Status = WorkflowStatusFailed
	w.UpdatedAt = time.Now()
}

// MarkCompletelyFailed переводит workflow в статус completelyFailed.
// Используется, когда компенсирующий шаг сам завершился с ошибкой.
func (w *Workflow) MarkCompletelyFailed() {
	w.Status = WorkflowStatusCompletelyFailed
	w.UpdatedAt = time.Now()
}
