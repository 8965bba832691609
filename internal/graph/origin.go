package graph

import "github.com/shaiso/Chainflow/internal/domain"

// Шаги origin-графов: деплой токена и синхронизация state root.
const (
	StepTokenDeploymentInit     domain.StepKind = "tokenDeploymentInit"
	StepDeployTokenOrganization domain.StepKind = "deployTokenOrganization"
	StepDeployTokenContract     domain.StepKind = "deployTokenContract"
	StepSetTokenAdmin           domain.StepKind = "setTokenAdmin"
	StepVerifyTokenSetup        domain.StepKind = "verifyTokenSetup"
	StepRollbackTokenDeployment domain.StepKind = "rollbackTokenDeployment"

	StepCommitStateRoot       domain.StepKind = "commitStateRoot"
	StepVerifyCommitStateRoot domain.StepKind = "verifyCommitStateRoot"
)

// tokenDeploymentGraph — деплой контрактов токена на origin-чейне.
//
// Organization и сам контракт деплоятся параллельно, setTokenAdmin —
// join по обеим веткам. Любая ошибка после init уходит в компенсацию,
// которая и при успехе оставляет workflow проваленным.
func tokenDeploymentGraph() *Graph {
	return &Graph{
		Kind:  domain.KindTokenDeployment,
		Init:  StepTokenDeploymentInit,
		Chain: ChainOrigin,
		Nodes: map[domain.StepKind]Node{
			StepTokenDeploymentInit: {
				Kind:      StepTokenDeploymentInit,
				OnSuccess: []domain.StepKind{StepDeployTokenOrganization, StepDeployTokenContract},
				OnFailure: domain.StepMarkFailure,
			},
			StepDeployTokenOrganization: {
				Kind:      StepDeployTokenOrganization,
				OnSuccess: []domain.StepKind{StepSetTokenAdmin},
				OnFailure: StepRollbackTokenDeployment,
			},
			StepDeployTokenContract: {
				Kind:      StepDeployTokenContract,
				OnSuccess: []domain.StepKind{StepSetTokenAdmin},
				OnFailure: StepRollbackTokenDeployment,
			},
			StepSetTokenAdmin: {
				Kind:          StepSetTokenAdmin,
				OnSuccess:     []domain.StepKind{StepVerifyTokenSetup},
				OnFailure:     StepRollbackTokenDeployment,
				Prerequisites: []domain.StepKind{StepDeployTokenOrganization, StepDeployTokenContract},
				ReadDataFrom:  []domain.StepKind{StepDeployTokenContract},
			},
			StepVerifyTokenSetup: {
				Kind:         StepVerifyTokenSetup,
				OnSuccess:    []domain.StepKind{domain.StepMarkSuccess},
				OnFailure:    StepRollbackTokenDeployment,
				ReadDataFrom: []domain.StepKind{StepSetTokenAdmin},
			},
			StepRollbackTokenDeployment: {
				Kind:      StepRollbackTokenDeployment,
				OnSuccess: []domain.StepKind{domain.StepMarkFailure},
				OnFailure: domain.StepMarkFailure,
			},
		},
	}
}

// stateRootSyncGraph — фиксация origin state root на auxiliary-чейне.
// Запускается периодически планировщиком (internal/scheduler).
func stateRootSyncGraph() *Graph {
	return &Graph{
		Kind:  domain.KindStateRootSync,
		Init:  StepCommitStateRoot,
		Chain: ChainOrigin,
		Nodes: map[domain.StepKind]Node{
			StepCommitStateRoot: {
				Kind:      StepCommitStateRoot,
				OnSuccess: []domain.StepKind{StepVerifyCommitStateRoot},
				OnFailure: domain.StepMarkFailure,
			},
			StepVerifyCommitStateRoot: {
				Kind:         StepVerifyCommitStateRoot,
				OnSuccess:    []domain.StepKind{domain.StepMarkSuccess},
				OnFailure:    "",
				ReadDataFrom: []domain.StepKind{StepCommitStateRoot},
			},
		},
	}
}
