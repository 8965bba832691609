package graph

import "github.com/shaiso/Chainflow/internal/domain"

// Шаги графов авторизации и отзыва устройств.
const (
	StepAuthorizeDeviceInit         domain.StepKind = "authorizeDeviceInit"
	StepAuthorizeDevicePerformTx    domain.StepKind = "authorizeDevicePerformTransaction"
	StepVerifyAuthorizeDeviceTx     domain.StepKind = "verifyAuthorizeDeviceTransaction"
	StepRollbackAuthorizeDeviceTx   domain.StepKind = "rollbackAuthorizeDeviceTransaction"

	StepRevokeDeviceInit       domain.StepKind = "revokeDeviceInit"
	StepRevokeDevicePerformTx  domain.StepKind = "revokeDevicePerformTransaction"
	StepVerifyRevokeDeviceTx   domain.StepKind = "verifyRevokeDeviceTransaction"
	StepRollbackRevokeDeviceTx domain.StepKind = "rollbackRevokeDeviceTransaction"
)

// authorizeDeviceGraph — авторизация устройства на auxiliary-чейне.
//
// Rollback-паттерн: onSuccess компенсирующего шага указывает на
// markFailure — даже успешный откат оставляет workflow проваленным.
func authorizeDeviceGraph() *Graph {
	return &Graph{
		Kind:  domain.KindAuthorizeDevice,
		Init:  StepAuthorizeDeviceInit,
		Chain: ChainAuxiliary,
		Nodes: map[domain.StepKind]Node{
			StepAuthorizeDeviceInit: {
				Kind:      StepAuthorizeDeviceInit,
				OnSuccess: []domain.StepKind{StepAuthorizeDevicePerformTx},
				OnFailure: domain.StepMarkFailure,
			},
			StepAuthorizeDevicePerformTx: {
				Kind:      StepAuthorizeDevicePerformTx,
				OnSuccess: []domain.StepKind{StepVerifyAuthorizeDeviceTx},
				OnFailure: StepRollbackAuthorizeDeviceTx,
			},
			StepVerifyAuthorizeDeviceTx: {
				Kind:         StepVerifyAuthorizeDeviceTx,
				OnSuccess:    []domain.StepKind{domain.StepMarkSuccess},
				OnFailure:    StepRollbackAuthorizeDeviceTx,
				ReadDataFrom: []domain.StepKind{StepAuthorizeDevicePerformTx},
			},
			StepRollbackAuthorizeDeviceTx: {
				Kind:      StepRollbackAuthorizeDeviceTx,
				OnSuccess: []domain.StepKind{domain.StepMarkFailure},
				OnFailure: domain.StepMarkFailure,
			},
		},
	}
}

// revokeDeviceGraph — отзыв устройства, зеркален authorizeDevice.
func revokeDeviceGraph() *Graph {
	return &Graph{
		Kind:  domain.KindRevokeDevice,
		Init:  StepRevokeDeviceInit,
		Chain: ChainAuxiliary,
		Nodes: map[domain.StepKind]Node{
			StepRevokeDeviceInit: {
				Kind:      StepRevokeDeviceInit,
				OnSuccess: []domain.StepKind{StepRevokeDevicePerformTx},
				OnFailure: domain.StepMarkFailure,
			},
			StepRevokeDevicePerformTx: {
				Kind:      StepRevokeDevicePerformTx,
				OnSuccess: []domain.StepKind{StepVerifyRevokeDeviceTx},
				OnFailure: StepRollbackRevokeDeviceTx,
			},
			StepVerifyRevokeDeviceTx: {
				Kind:         StepVerifyRevokeDeviceTx,
				OnSuccess:    []domain.StepKind{domain.StepMarkSuccess},
				OnFailure:    StepRollbackRevokeDeviceTx,
				ReadDataFrom: []domain.StepKind{StepRevokeDevicePerformTx},
			},
			StepRollbackRevokeDeviceTx: {
				Kind:      StepRollbackRevokeDeviceTx,
				OnSuccess: []domain.StepKind{domain.StepMarkFailure},
				OnFailure: domain.StepMarkFailure,
			},
		},
	}
}
