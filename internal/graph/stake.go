package graph

import "github.com/shaiso/Chainflow/internal/domain"

// Шаги stake-and-mint графов. Кроме init-шагов виды общие для
// stPrimeStakeAndMint и btStakeAndMint: уникальность попытки задаёт
// пара (workflowID, kind), а не граф.
const (
	StepStPrimeStakeAndMintInit domain.StepKind = "stPrimeStakeAndMintInit"
	StepBTStakeAndMintInit      domain.StepKind = "btStakeAndMintInit"

	StepApproveStake     domain.StepKind = "approveStake"
	StepExecuteStake     domain.StepKind = "executeStake"
	StepCheckStakeStatus domain.StepKind = "checkStakeStatus"
	StepProgressMint     domain.StepKind = "progressMint"
	StepVerifyMint       domain.StepKind = "verifyMint"
)

// stakeAndMintGraph строит цепочку stake-and-mint с общими шагами.
// Компенсации нет: застейканные средства не откатываются, неудача
// фиксируется терминально.
func stakeAndMintGraph(kind domain.Kind, init domain.StepKind) *Graph {
	return &Graph{
		Kind:  kind,
		Init:  init,
		Chain: ChainAuxiliary,
		Nodes: map[domain.StepKind]Node{
			init: {
				Kind:      init,
				OnSuccess: []domain.StepKind{StepApproveStake},
				OnFailure: domain.StepMarkFailure,
			},
			StepApproveStake: {
				Kind:      StepApproveStake,
				OnSuccess: []domain.StepKind{StepExecuteStake},
				OnFailure: domain.StepMarkFailure,
			},
			StepExecuteStake: {
				Kind:      StepExecuteStake,
				OnSuccess: []domain.StepKind{StepCheckStakeStatus},
				OnFailure: domain.StepMarkFailure,
			},
			StepCheckStakeStatus: {
				Kind:         StepCheckStakeStatus,
				OnSuccess:    []domain.StepKind{StepProgressMint},
				OnFailure:    domain.StepMarkFailure,
				ReadDataFrom: []domain.StepKind{StepExecuteStake},
			},
			StepProgressMint: {
				Kind:      StepProgressMint,
				OnSuccess: []domain.StepKind{StepVerifyMint},
				OnFailure: domain.StepMarkFailure,
			},
			StepVerifyMint: {
				Kind:         StepVerifyMint,
				OnSuccess:    []domain.StepKind{domain.StepMarkSuccess},
				OnFailure:    "",
				ReadDataFrom: []domain.StepKind{StepProgressMint},
			},
		},
	}
}

// stPrimeStakeAndMintGraph — stake-and-mint базовой валюты (ST Prime).
func stPrimeStakeAndMintGraph() *Graph {
	return stakeAndMintGraph(domain.KindStPrimeStakeAndMint, StepStPrimeStakeAndMintInit)
}

// btStakeAndMintGraph — stake-and-mint брендированного токена.
func btStakeAndMintGraph() *Graph {
	return stakeAndMintGraph(domain.KindBTStakeAndMint, StepBTStakeAndMintInit)
}
