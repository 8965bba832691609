package graph

import "github.com/shaiso/Chainflow/internal/domain"

// Шаги графа создания пользователя.
const (
	StepUserSetupInit          domain.StepKind = "userSetupInit"
	StepAddSessionAddresses    domain.StepKind = "addSessionAddresses"
	StepAddUserInWalletFactory domain.StepKind = "addUserInWalletFactory"
	StepActivateUser           domain.StepKind = "activateUser"
	StepVerifyActivateUser     domain.StepKind = "verifyActivateUser"
)

// userSetupGraph — создание пользователя на auxiliary-чейне.
//
// Fan-out после init: адреса сессий и регистрация в wallet factory идут
// независимыми ветками, activateUser — join по обеим.
func userSetupGraph() *Graph {
	return &Graph{
		Kind:  domain.KindUserSetup,
		Init:  StepUserSetupInit,
		Chain: ChainAuxiliary,
		Nodes: map[domain.StepKind]Node{
			StepUserSetupInit: {
				Kind:      StepUserSetupInit,
				OnSuccess: []domain.StepKind{StepAddSessionAddresses, StepAddUserInWalletFactory},
				OnFailure: domain.StepMarkFailure,
			},
			StepAddSessionAddresses: {
				Kind:      StepAddSessionAddresses,
				OnSuccess: []domain.StepKind{StepActivateUser},
				OnFailure: domain.StepMarkFailure,
			},
			StepAddUserInWalletFactory: {
				Kind:      StepAddUserInWalletFactory,
				OnSuccess: []domain.StepKind{StepActivateUser},
				OnFailure: domain.StepMarkFailure,
			},
			StepActivateUser: {
				Kind:          StepActivateUser,
				OnSuccess:     []domain.StepKind{StepVerifyActivateUser},
				OnFailure:     domain.StepMarkFailure,
				Prerequisites: []domain.StepKind{StepAddSessionAddresses, StepAddUserInWalletFactory},
			},
			StepVerifyActivateUser: {
				Kind:         StepVerifyActivateUser,
				OnSuccess:    []domain.StepKind{domain.StepMarkSuccess},
				OnFailure:    domain.StepMarkFailure,
				ReadDataFrom: []domain.StepKind{StepActivateUser},
			},
		},
	}
}
