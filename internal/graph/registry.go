package graph

import (
	"fmt"
	"sort"

	"github.com/shaiso/Chainflow/internal/domain"
)

// Registry — таблица графов по виду workflow.
//
// Заполняется при старте процесса из статического набора конструкторов.
// Потокобезопасность не нужна: после DefaultRegistry() таблица только
// читается.
type Registry struct {
	graphs map[domain.Kind]*Graph
}

// NewRegistry создаёт реестр из произвольного набора графов.
func NewRegistry(graphs ...*Graph) *Registry {
	r := &Registry{graphs: make(map[domain.Kind]*Graph, len(graphs))}
	for _, g := range graphs {
		r.graphs[g.Kind] = g
	}
	return r
}

// DefaultRegistry создаёт реестр со всеми каноническими графами.
func DefaultRegistry() *Registry {
	return NewRegistry(
		authorizeDeviceGraph(),
		revokeDeviceGraph(),
		authorizeSessionGraph(),
		revokeSessionGraph(),
		logoutSessionsGraph(),
		initiateRecoveryGraph(),
		abortRecoveryByOwnerGraph(),
		userSetupGraph(),
		stPrimeStakeAndMintGraph(),
		btStakeAndMintGraph(),
		grantEthStakeCurrencyGraph(),
		tokenDeploymentGraph(),
		stateRootSyncGraph(),
		testWorkflowGraph(),
	)
}

// ForKind возвращает граф для вида workflow.
func (r *Registry) ForKind(kind domain.Kind) (*Graph, error) {
	g, ok := r.graphs[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return g, nil
}

// ForChain возвращает графы, привязанные к чейну, в стабильном порядке.
func (r *Registry) ForChain(chain ChainBinding) []*Graph {
	var out []*Graph
	for _, g := range r.graphs {
		if g.Chain == chain {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// All возвращает все графы в стабильном порядке.
func (r *Registry) All() []*Graph {
	out := make([]*Graph, 0, len(r.graphs))
	for _, g := range r.graphs {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// Count возвращает количество зарегистрированных графов.
func (r *Registry) Count() int {
	return len(r.graphs)
}

// Validate валидирует все графы реестра. Первая же ошибка фатальна.
func (r *Registry) Validate() error {
	for _, g := range r.All() {
		if err := g.Validate(); err != nil {
			return err
		}
	}
	return nil
}
