package graph

import "github.com/shaiso/Chainflow/internal/domain"

// Шаги графа выдачи грантов (eth + stake currency для sandbox-клиентов).
const (
	StepGrantInit               domain.StepKind = "grantEthStakeCurrencyInit"
	StepGrantEth                domain.StepKind = "grantEth"
	StepGrantStakeCurrency      domain.StepKind = "grantStakeCurrency"
	StepVerifyGrantEth          domain.StepKind = "verifyGrantEth"
	StepVerifyGrantStakeCurrency domain.StepKind = "verifyGrantStakeCurrency"
)

// grantEthStakeCurrencyGraph — параллельная выдача eth и stake currency.
//
// markSuccess объявлен узлом только ради join-гейта: он выполняется,
// когда обе verify-ветки success. Исходящих рёбер у sentinel'а нет.
func grantEthStakeCurrencyGraph() *Graph {
	return &Graph{
		Kind:  domain.KindGrantEthStakeCurrency,
		Init:  StepGrantInit,
		Chain: ChainAuxiliary,
		Nodes: map[domain.StepKind]Node{
			StepGrantInit: {
				Kind:      StepGrantInit,
				OnSuccess: []domain.StepKind{StepGrantEth, StepGrantStakeCurrency},
				OnFailure: domain.StepMarkFailure,
			},
			StepGrantEth: {
				Kind:      StepGrantEth,
				OnSuccess: []domain.StepKind{StepVerifyGrantEth},
				OnFailure: domain.StepMarkFailure,
			},
			StepGrantStakeCurrency: {
				Kind:      StepGrantStakeCurrency,
				OnSuccess: []domain.StepKind{StepVerifyGrantStakeCurrency},
				OnFailure: domain.StepMarkFailure,
			},
			StepVerifyGrantEth: {
				Kind:         StepVerifyGrantEth,
				OnSuccess:    []domain.StepKind{domain.StepMarkSuccess},
				OnFailure:    domain.StepMarkFailure,
				ReadDataFrom: []domain.StepKind{StepGrantEth},
			},
			StepVerifyGrantStakeCurrency: {
				Kind:         StepVerifyGrantStakeCurrency,
				OnSuccess:    []domain.StepKind{domain.StepMarkSuccess},
				OnFailure:    domain.StepMarkFailure,
				ReadDataFrom: []domain.StepKind{StepGrantStakeCurrency},
			},
			domain.StepMarkSuccess: {
				Kind:          domain.StepMarkSuccess,
				Prerequisites: []domain.StepKind{StepVerifyGrantEth, StepVerifyGrantStakeCurrency},
			},
		},
	}
}
