package graph

import (
	"fmt"

	"github.com/shaiso/Chainflow/internal/domain"
)

// ChainBinding — к какому чейну привязаны операции графа.
type ChainBinding string

const (
	// ChainOrigin — граф выполняется на origin-чейне.
	ChainOrigin ChainBinding = "origin"

	// ChainAuxiliary — граф выполняется на auxiliary-чейне.
	ChainAuxiliary ChainBinding = "auxiliary"
)

// Node — узел step-графа. Чистые данные, не персистятся.
type Node struct {
	// Kind — вид шага, идентичность узла.
	Kind domain.StepKind

	// OnSuccess — шаги, запускаемые после успеха. Больше одного вида —
	// fan-out: каждый публикуется независимо, без гарантий порядка.
	OnSuccess []domain.StepKind

	// OnFailure — единственное компенсирующее ребро. Пустое значение —
	// компенсации нет, ошибка сразу уходит в markFailure.
	OnFailure domain.StepKind

	// Prerequisites — join: узел выполняется только когда все
	// перечисленные шаги имеют статус success для того же workflow.
	Prerequisites []domain.StepKind

	// ReadDataFrom — шаги, чьи response data подмешиваются во входные
	// параметры handler'а перед выполнением.
	ReadDataFrom []domain.StepKind
}

// Graph — декларативное описание одного вида workflow:
// отображение вид-шага → узел плюс точка входа и привязка к чейну.
//
// Разрешён rollback-паттерн: OnSuccess компенсирующего шага намеренно
// указывает на markFailure — «компенсация удалась, но workflow всё равно
// провален, потому что исходное действие не завершилось». Это не баг.
type Graph struct {
	// Kind — вид workflow, владеющий графом.
	Kind domain.Kind

	// Init — стартовый узел.
	Init domain.StepKind

	// Chain — чейн, к которому привязаны операции графа.
	Chain ChainBinding

	// Nodes — все узлы графа.
	Nodes map[domain.StepKind]Node
}

// Topic возвращает имя топика брокера для этого графа.
// Auxiliary-графы живут в auxWorkflow.*, origin-графы — в workflow.*.
func (g *Graph) Topic() string {
	if g.Chain == ChainAuxiliary {
		return "auxWorkflow." + string(g.Kind)
	}
	return "workflow." + string(g.Kind)
}

// Node возвращает узел по виду шага.
func (g *Graph) Node(kind domain.StepKind) (Node, bool) {
	n, ok := g.Nodes[kind]
	return n, ok
}

// StepKinds возвращает все виды шагов графа (без sentinel'ов).
func (g *Graph) StepKinds() []domain.StepKind {
	kinds := make([]domain.StepKind, 0, len(g.Nodes))
	for k := range g.Nodes {
		kinds = append(kinds, k)
	}
	return kinds
}

// CompensationKinds возвращает виды шагов, на которые ссылается чьё-либо
// ребро OnFailure. Если такой шаг упал, markFailure переводит workflow
// в completelyFailed, а не в failed.
func (g *Graph) CompensationKinds() map[domain.StepKind]bool {
	set := make(map[domain.StepKind]bool)
	for _, node := range g.Nodes {
		if node.OnFailure != "" && !node.OnFailure.IsSentinel() {
			set[node.OnFailure] = true
		}
	}
	return set
}

// Dependents возвращает узлы, перечисляющие kind в Prerequisites.
// Используется для повторной проверки join'ов после завершения шага.
func (g *Graph) Dependents(kind domain.StepKind) []Node {
	var out []Node
	for _, node := range g.Nodes {
		for _, p := range node.Prerequisites {
			if p == kind {
				out = append(out, node)
				break
			}
		}
	}
	return out
}

// Validate проверяет корректность графа.
//
// Проверки:
//   - стартовый узел существует
//   - каждое ребро (OnSuccess, OnFailure, Prerequisites, ReadDataFrom)
//     ссылается на узел графа или sentinel
//   - из стартового узла достижим markSuccess или markFailure
//
// Некорректный граф — фатальная ошибка: процесс обязан отказаться
// стартовать, а не работать с битым графом.
func (g *Graph) Validate() error {
	if g.Init == "" {
		return fmt.Errorf("%w: graph %s has no init step", ErrInvalidGraph, g.Kind)
	}
	if _, ok := g.Nodes[g.Init]; !ok {
		return fmt.Errorf("%w: graph %s: init step %s is not a node", ErrInvalidGraph, g.Kind, g.Init)
	}

	resolves := func(kind domain.StepKind) bool {
		if kind.IsSentinel() {
			return true
		}
		_, ok := g.Nodes[kind]
		return ok
	}

	for kind, node := range g.Nodes {
		if node.Kind != kind {
			return fmt.Errorf("%w: graph %s: node keyed %s declares kind %s", ErrInvalidGraph, g.Kind, kind, node.Kind)
		}
		// Sentinel может присутствовать как узел только ради join-гейта:
		// исходящих рёбер у него быть не должно.
		if kind.IsSentinel() {
			if len(node.OnSuccess) > 0 || node.OnFailure != "" || len(node.ReadDataFrom) > 0 {
				return fmt.Errorf("%w: graph %s: sentinel %s must not have outgoing edges", ErrInvalidGraph, g.Kind, kind)
			}
		}
		for _, next := range node.OnSuccess {
			if !resolves(next) {
				return fmt.Errorf("%w: graph %s: %s.onSuccess references unknown step %s", ErrUnknownStep, g.Kind, kind, next)
			}
		}
		if node.OnFailure != "" && !resolves(node.OnFailure) {
			return fmt.Errorf("%w: graph %s: %s.onFailure references unknown step %s", ErrUnknownStep, g.Kind, kind, node.OnFailure)
		}
		for _, p := range node.Prerequisites {
			if !resolves(p) {
				return fmt.Errorf("%w: graph %s: %s.prerequisites references unknown step %s", ErrUnknownStep, g.Kind, kind, p)
			}
		}
		for _, r := range node.ReadDataFrom {
			if !resolves(r) {
				return fmt.Errorf("%w: graph %s: %s.readDataFrom references unknown step %s", ErrUnknownStep, g.Kind, kind, r)
			}
		}
	}

	if !g.reachesSentinel() {
		return fmt.Errorf("%w: graph %s: no path from %s to a sentinel", ErrUnreachableSentinel, g.Kind, g.Init)
	}

	return nil
}

// reachesSentinel проверяет достижимость sentinel'а из стартового узла
// по рёбрам OnSuccess/OnFailure.
func (g *Graph) reachesSentinel() bool {
	visited := make(map[domain.StepKind]bool)
	queue := []domain.StepKind{g.Init}

	for len(queue) > 0 {
		kind := queue[0]
		queue = queue[1:]

		if kind.IsSentinel() {
			return true
		}
		if visited[kind] {
			continue
		}
		visited[kind] = true

		node, ok := g.Nodes[kind]
		if !ok {
			continue
		}
		queue = append(queue, node.OnSuccess...)
		if node.OnFailure != "" {
			queue = append(queue, node.OnFailure)
		}
	}

	return false
}
