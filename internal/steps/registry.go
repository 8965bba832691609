package steps

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/Chainflow/internal/domain"
	"github.com/shaiso/Chainflow/internal/graph"
)

// Registry — реестр handler'ов по виду шага.
//
// Заполняется при старте процесса из статической таблицы. Граф,
// ссылающийся на незарегистрированный вид, — фатальная ошибка старта
// (см. Verify), а не ошибка времени выполнения.
type Registry struct {
	mu       sync.RWMutex
	handlers map[domain.StepKind]Handler
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[domain.StepKind]Handler)}
}

// DefaultRegistry создаёт реестр со всеми handler'ами канонических
// графов. client — граница взаимодействия с чейнами.
func DefaultRegistry(client ChainClient) *Registry {
	r := NewRegistry()

	// Терминальные sentinel'ы.
	r.Register(domain.StepMarkSuccess, sentinelHandler{})
	r.Register(domain.StepMarkFailure, sentinelHandler{})

	// Init-шаги: фиксация параметров, без работы в чейне.
	for _, kind := range []domain.StepKind{
		graph.StepAuthorizeDeviceInit,
		graph.StepRevokeDeviceInit,
		graph.StepAuthorizeSessionInit,
		graph.StepRevokeSessionInit,
		graph.StepLogoutSessionsInit,
		graph.StepInitiateRecoveryInit,
		graph.StepAbortRecoveryInit,
		graph.StepUserSetupInit,
		graph.StepStPrimeStakeAndMintInit,
		graph.StepBTStakeAndMintInit,
		graph.StepGrantInit,
		graph.StepTokenDeploymentInit,
		graph.StepTestInit,
		graph.StepTestBranchA,
		graph.StepTestBranchB,
		graph.StepTestJoin,
		graph.StepTestRollback,
	} {
		r.Register(kind, initHandler{})
	}

	// Шаги, отправляющие транзакцию. Операция совпадает с видом шага.
	for _, kind := range []domain.StepKind{
		graph.StepAuthorizeDevicePerformTx,
		graph.StepRollbackAuthorizeDeviceTx,
		graph.StepRevokeDevicePerformTx,
		graph.StepRollbackRevokeDeviceTx,
		graph.StepAuthorizeSessionPerformTx,
		graph.StepRollbackAuthorizeSessionTx,
		graph.StepRevokeSessionPerformTx,
		graph.StepRollbackRevokeSessionTx,
		graph.StepLogoutSessionsPerformTx,
		graph.StepInitiateRecoveryPerformTx,
		graph.StepAbortRecoveryPerformTx,
		graph.StepAddSessionAddresses,
		graph.StepAddUserInWalletFactory,
		graph.StepActivateUser,
		graph.StepApproveStake,
		graph.StepExecuteStake,
		graph.StepProgressMint,
		graph.StepGrantEth,
		graph.StepGrantStakeCurrency,
		graph.StepDeployTokenOrganization,
		graph.StepDeployTokenContract,
		graph.StepSetTokenAdmin,
		graph.StepRollbackTokenDeployment,
	} {
		r.Register(kind, performTransactionHandler{client: client, op: string(kind)})
	}

	// Verify-шаги: проверка статуса транзакции предыдущего шага.
	for _, kind := range []domain.StepKind{
		graph.StepVerifyAuthorizeDeviceTx,
		graph.StepVerifyRevokeDeviceTx,
		graph.StepVerifyAuthorizeSessionTx,
		graph.StepVerifyRevokeSessionTx,
		graph.StepVerifyLogoutSessionsTx,
		graph.StepVerifyInitiateRecoveryTx,
		graph.StepVerifyAbortRecoveryTx,
		graph.StepVerifyActivateUser,
		graph.StepCheckStakeStatus,
		graph.StepVerifyMint,
		graph.StepVerifyGrantEth,
		graph.StepVerifyGrantStakeCurrency,
		graph.StepVerifyTokenSetup,
		graph.StepVerifyCommitStateRoot,
	} {
		r.Register(kind, verifyTransactionHandler{client: client})
	}

	r.Register(graph.StepCommitStateRoot, commitStateRootHandler{client: client})

	return r
}

// Register регистрирует handler для вида шага.
func (r *Registry) Register(kind domain.StepKind, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = h
}

// Resolve возвращает handler по виду шага.
func (r *Registry) Resolve(kind domain.StepKind) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHandlerNotRegistered, kind)
	}
	return h, nil
}

// Has проверяет, зарегистрирован ли handler.
func (r *Registry) Has(kind domain.StepKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[kind]
	return ok
}

// Kinds возвращает список зарегистрированных видов шагов.
func (r *Registry) Kinds() []domain.StepKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]domain.StepKind, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Verify проверяет, что каждый шаг каждого графа имеет handler.
// Вызывается при старте процесса; ошибка означает отказ стартовать.
func (r *Registry) Verify(graphs *graph.Registry) error {
	for _, g := range graphs.All() {
		for _, kind := range g.StepKinds() {
			if !r.Has(kind) {
				return fmt.Errorf("%w: graph %s references %s", ErrHandlerNotRegistered, g.Kind, kind)
			}
		}
	}
	if !r.Has(domain.StepMarkSuccess) || !r.Has(domain.StepMarkFailure) {
		return fmt.Errorf("%w: sentinel handlers missing", ErrHandlerNotRegistered)
	}
	return nil
}
