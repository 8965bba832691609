package graph

import "github.com/shaiso/Chainflow/internal/domain"

// Шаги графов восстановления доступа.
const (
	StepInitiateRecoveryInit      domain.StepKind = "initiateRecoveryInit"
	StepInitiateRecoveryPerformTx domain.StepKind = "initiateRecoveryPerformTransaction"
	StepVerifyInitiateRecoveryTx  domain.StepKind = "verifyInitiateRecoveryTransaction"

	StepAbortRecoveryInit      domain.StepKind = "abortRecoveryByOwnerInit"
	StepAbortRecoveryPerformTx domain.StepKind = "abortRecoveryByOwnerPerformTransaction"
	StepVerifyAbortRecoveryTx  domain.StepKind = "verifyAbortRecoveryByOwnerTransaction"
)

// recoveryGraph строит граф восстановления без компенсации: откатывать
// нечего, неудавшаяся recovery-транзакция просто фиксируется как failed.
func recoveryGraph(kind domain.Kind, init, perform, verify domain.StepKind) *Graph {
	return &Graph{
		Kind:  kind,
		Init:  init,
		Chain: ChainAuxiliary,
		Nodes: map[domain.StepKind]Node{
			init: {
				Kind:      init,
				OnSuccess: []domain.StepKind{perform},
				OnFailure: domain.StepMarkFailure,
			},
			perform: {
				Kind:      perform,
				OnSuccess: []domain.StepKind{verify},
				OnFailure: domain.StepMarkFailure,
			},
			verify: {
				Kind:         verify,
				OnSuccess:    []domain.StepKind{domain.StepMarkSuccess},
				OnFailure:    "",
				ReadDataFrom: []domain.StepKind{perform},
			},
		},
	}
}

// initiateRecoveryGraph — инициация восстановления ключа устройства.
func initiateRecoveryGraph() *Graph {
	return recoveryGraph(domain.KindInitiateRecovery,
		StepInitiateRecoveryInit, StepInitiateRecoveryPerformTx, StepVerifyInitiateRecoveryTx)
}

// abortRecoveryByOwnerGraph — отмена восстановления владельцем.
func abortRecoveryByOwnerGraph() *Graph {
	return recoveryGraph(domain.KindAbortRecoveryByOwner,
		StepAbortRecoveryInit, StepAbortRecoveryPerformTx, StepVerifyAbortRecoveryTx)
}
