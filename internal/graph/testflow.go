package graph

import "github.com/shaiso/Chainflow/internal/domain"

// Шаги тестового графа. Граф зарегистрирован наравне с боевыми:
// он прогоняет все механики роутера (fan-out, join, readDataFrom,
// пустой onFailure, rollback-паттерн) на предсказуемых handler'ах.
const (
	StepTestInit     domain.StepKind = "testWorkflowInit"
	StepTestBranchA  domain.StepKind = "testBranchA"
	StepTestBranchB  domain.StepKind = "testBranchB"
	StepTestJoin     domain.StepKind = "testJoin"
	StepTestRollback domain.StepKind = "testRollback"
)

// testWorkflowGraph — синтетический граф для интеграционных прогонов.
func testWorkflowGraph() *Graph {
	return &Graph{
		Kind:  domain.KindTestWorkflow,
		Init:  StepTestInit,
		Chain: ChainAuxiliary,
		Nodes: map[domain.StepKind]Node{
			StepTestInit: {
				Kind:      StepTestInit,
				OnSuccess: []domain.StepKind{StepTestBranchA, StepTestBranchB},
				OnFailure: domain.StepMarkFailure,
			},
			StepTestBranchA: {
				Kind:      StepTestBranchA,
				OnSuccess: []domain.StepKind{StepTestJoin},
				OnFailure: StepTestRollback,
			},
			StepTestBranchB: {
				Kind:      StepTestBranchB,
				OnSuccess: []domain.StepKind{StepTestJoin},
				OnFailure: StepTestRollback,
			},
			StepTestJoin: {
				Kind:          StepTestJoin,
				OnSuccess:     []domain.StepKind{domain.StepMarkSuccess},
				OnFailure:     "",
				Prerequisites: []domain.StepKind{StepTestBranchA, StepTestBranchB},
				ReadDataFrom:  []domain.StepKind{StepTestBranchA, StepTestBranchB},
			},
			StepTestRollback: {
				Kind:      StepTestRollback,
				OnSuccess: []domain.StepKind{domain.StepMarkFailure},
				OnFailure: domain.StepMarkFailure,
			},
		},
	}
}
