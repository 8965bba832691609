package graph

import "github.com/shaiso/Chainflow/internal/domain"

// Шаги графов управления сессиями.
const (
	StepAuthorizeSessionInit       domain.StepKind = "authorizeSessionInit"
	StepAuthorizeSessionPerformTx  domain.StepKind = "authorizeSessionPerformTransaction"
	StepVerifyAuthorizeSessionTx   domain.StepKind = "verifyAuthorizeSessionTransaction"
	StepRollbackAuthorizeSessionTx domain.StepKind = "rollbackAuthorizeSessionTransaction"

	StepRevokeSessionInit       domain.StepKind = "revokeSessionInit"
	StepRevokeSessionPerformTx  domain.StepKind = "revokeSessionPerformTransaction"
	StepVerifyRevokeSessionTx   domain.StepKind = "verifyRevokeSessionTransaction"
	StepRollbackRevokeSessionTx domain.StepKind = "rollbackRevokeSessionTransaction"

	StepLogoutSessionsInit      domain.StepKind = "logoutSessionsInit"
	StepLogoutSessionsPerformTx domain.StepKind = "logoutSessionsPerformTransaction"
	StepVerifyLogoutSessionsTx  domain.StepKind = "verifyLogoutSessionsTransaction"
)

// threeStepWithRollback строит типовой граф init → perform → verify с
// компенсирующим шагом на ошибках транзакции. Самая частая форма
// auxiliary-графов.
func threeStepWithRollback(kind domain.Kind, init, perform, verify, rollback domain.StepKind) *Graph {
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
				OnFailure: rollback,
			},
			verify: {
				Kind:         verify,
				OnSuccess:    []domain.StepKind{domain.StepMarkSuccess},
				OnFailure:    rollback,
				ReadDataFrom: []domain.StepKind{perform},
			},
			rollback: {
				Kind:      rollback,
				OnSuccess: []domain.StepKind{domain.StepMarkFailure},
				OnFailure: domain.StepMarkFailure,
			},
		},
	}
}

// authorizeSessionGraph — авторизация сессионного ключа.
func authorizeSessionGraph() *Graph {
	return threeStepWithRollback(domain.KindAuthorizeSession,
		StepAuthorizeSessionInit, StepAuthorizeSessionPerformTx,
		StepVerifyAuthorizeSessionTx, StepRollbackAuthorizeSessionTx)
}

// revokeSessionGraph — отзыв сессионного ключа.
func revokeSessionGraph() *Graph {
	return threeStepWithRollback(domain.KindRevokeSession,
		StepRevokeSessionInit, StepRevokeSessionPerformTx,
		StepVerifyRevokeSessionTx, StepRollbackRevokeSessionTx)
}

// logoutSessionsGraph — выход из всех сессий. Компенсации нет:
// onFailure у verify пустой, ошибка сразу уходит в markFailure.
func logoutSessionsGraph() *Graph {
	return &Graph{
		Kind:  domain.KindLogoutSessions,
		Init:  StepLogoutSessionsInit,
		Chain: ChainAuxiliary,
		Nodes: map[domain.StepKind]Node{
			StepLogoutSessionsInit: {
				Kind:      StepLogoutSessionsInit,
				OnSuccess: []domain.StepKind{StepLogoutSessionsPerformTx},
				OnFailure: domain.StepMarkFailure,
			},
			StepLogoutSessionsPerformTx: {
				Kind:      StepLogoutSessionsPerformTx,
				OnSuccess: []domain.StepKind{StepVerifyLogoutSessionsTx},
				OnFailure: domain.StepMarkFailure,
			},
			StepVerifyLogoutSessionsTx: {
				Kind:         StepVerifyLogoutSessionsTx,
				OnSuccess:    []domain.StepKind{domain.StepMarkSuccess},
				OnFailure:    "",
				ReadDataFrom: []domain.StepKind{StepLogoutSessionsPerformTx},
			},
		},
	}
}
