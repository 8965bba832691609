package router

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/Chainflow/internal/domain"
	"github.com/shaiso/Chainflow/internal/graph"
	"github.com/shaiso/Chainflow/internal/mq"
	"github.com/shaiso/Chainflow/internal/repo"
	"github.com/shaiso/Chainflow/internal/steps"
)

// --- Fakes ---

type fakeWorkflowStore struct {
	mu        sync.Mutex
	workflows map[int64]*domain.Workflow
}

func newFakeWorkflowStore() *fakeWorkflowStore {
	return &fakeWorkflowStore{workflows: make(map[int64]*domain.Workflow)}
}

func (s *fakeWorkflowStore) GetByID(_ context.Context, id int64) (*domain.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.workflows[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	copied := *wf
	return &copied, nil
}

func (s *fakeWorkflowStore) SetStatus(_ context.Context, id int64, status domain.WorkflowStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.workflows[id]
	if !ok {
		return repo.ErrNotFound
	}
	if wf.Status != domain.WorkflowStatusInProgress {
		return repo.ErrInvalidState
	}
	wf.Status = status
	return nil
}

type fakeStepStore struct {
	mu     sync.Mutex
	byID   map[int64]*domain.WorkflowStep
	tokens map[string]int64
	nextID int64
}

func newFakeStepStore() *fakeStepStore {
	return &fakeStepStore{
		byID:   make(map[int64]*domain.WorkflowStep),
		tokens: make(map[string]int64),
	}
}

func (s *fakeStepStore) TryAcquire(_ context.Context, step *domain.WorkflowStep) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tokens[step.UniqueToken]; exists {
		return false, nil
	}
	s.nextID++
	step.ID = s.nextID
	copied := *step
	s.byID[step.ID] = &copied
	s.tokens[step.UniqueToken] = step.ID
	return true, nil
}

func (s *fakeStepStore) Complete(_ context.Context, step *domain.WorkflowStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.byID[step.ID]
	if !ok {
		return repo.ErrNotFound
	}
	stored.Status = step.Status
	stored.ResponseData = step.ResponseData
	stored.Error = step.Error
	stored.UpdatedAt = time.Now()
	return nil
}

func (s *fakeStepStore) Touch(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.byID[id]
	if !ok {
		return repo.ErrNotFound
	}
	stored.UpdatedAt = time.Now()
	return nil
}

func (s *fakeStepStore) find(workflowID int64, kind domain.StepKind) *domain.WorkflowStep {
	id, ok := s.tokens[domain.StepUniqueToken(workflowID, kind)]
	if !ok {
		return nil
	}
	return s.byID[id]
}

func (s *fakeStepStore) FetchStatus(_ context.Context, workflowID int64, kind domain.StepKind) (domain.StepStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	step := s.find(workflowID, kind)
	if step == nil {
		return "", repo.ErrNotFound
	}
	return step.Status, nil
}

func (s *fakeStepStore) FetchResponseData(_ context.Context, workflowID int64, kind domain.StepKind) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	step := s.find(workflowID, kind)
	if step == nil {
		return nil, repo.ErrNotFound
	}
	return step.ResponseData, nil
}

func (s *fakeStepStore) GetByWorkflowAndKind(_ context.Context, workflowID int64, kind domain.StepKind) (*domain.WorkflowStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	step := s.find(workflowID, kind)
	if step == nil {
		return nil, repo.ErrNotFound
	}
	copied := *step
	return &copied, nil
}

// seed inserts a resolved step row directly, bypassing the router.
func (s *fakeStepStore) seed(workflowID int64, kind domain.StepKind, status domain.StepStatus, data map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	step := &domain.WorkflowStep{
		ID:           s.nextID,
		WorkflowID:   workflowID,
		Kind:         kind,
		Status:       status,
		UniqueToken:  domain.StepUniqueToken(workflowID, kind),
		ResponseData: data,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	s.byID[step.ID] = step
	s.tokens[step.UniqueToken] = step.ID
}

type delayedMessage struct {
	msg   *mq.TaskMessage
	delay time.Duration
}

type fakePublisher struct {
	mu        sync.Mutex
	published []*mq.TaskMessage
	delayed   []delayedMessage
}

func (p *fakePublisher) PublishTask(_ context.Context, msg *mq.TaskMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, msg)
	return nil
}

func (p *fakePublisher) PublishTaskDelayed(_ context.Context, msg *mq.TaskMessage, delay time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delayed = append(p.delayed, delayedMessage{msg: msg, delay: delay})
	return nil
}

func (p *fakePublisher) publishedKinds() []domain.StepKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	kinds := make([]domain.StepKind, 0, len(p.published))
	for _, m := range p.published {
		kinds = append(kinds, m.StepKind)
	}
	return kinds
}

// --- Harness ---

type routerEnv struct {
	workflows *fakeWorkflowStore
	steps     *fakeStepStore
	pub       *fakePublisher
	handlers  *steps.Registry
	router    *Router
}

func newRouterEnv() *routerEnv {
	return newRouterEnvWith(graph.DefaultRegistry())
}

func newRouterEnvWith(graphs *graph.Registry) *routerEnv {
	env := &routerEnv{
		workflows: newFakeWorkflowStore(),
		steps:     newFakeStepStore(),
		pub:       &fakePublisher{},
		handlers:  steps.NewRegistry(),
	}
	env.router = New(Config{
		Graphs:    graphs,
		Handlers:  env.handlers,
		Workflows: env.workflows,
		Steps:     env.steps,
		Publisher: env.pub,
		Resolver:  AuxiliaryChainResolver(200),
	})
	return env
}

// drain pumps published follow-up messages back through Route in
// publication order until the queue is empty.
func (env *routerEnv) drain(t *testing.T) {
	t.Helper()
	for {
		env.pub.mu.Lock()
		if len(env.pub.published) == 0 {
			env.pub.mu.Unlock()
			return
		}
		msg := env.pub.published[0]
		env.pub.published = env.pub.published[1:]
		env.pub.mu.Unlock()

		if err := env.router.Route(context.Background(), msg); err != nil {
			t.Fatalf("route %s: %v", msg.StepKind, err)
		}
	}
}

func (env *routerEnv) createWorkflow(kind domain.Kind) int64 {
	env.workflows.mu.Lock()
	defer env.workflows.mu.Unlock()
	id := int64(len(env.workflows.workflows) + 1)
	env.workflows.workflows[id] = &domain.Workflow{
		ID:            id,
		Kind:          kind,
		Status:        domain.WorkflowStatusInProgress,
		RequestParams: map[string]any{"userId": "u-1"},
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	return id
}

func (env *routerEnv) handle(kind domain.StepKind, fn steps.HandlerFunc) {
	env.handlers.Register(kind, fn)
}

func (env *routerEnv) handleDone(kind domain.StepKind, data map[string]any) {
	env.handle(kind, func(_ context.Context, _ *steps.Request) (*steps.Result, error) {
		return steps.Done(data), nil
	})
}

func taskMsg(wfID int64, wfKind domain.Kind, step domain.StepKind) *mq.TaskMessage {
	msg := mq.NewTaskMessage(wfID, wfKind, step, "auxWorkflow."+string(wfKind))
	msg.RequestParams = map[string]any{"userId": "u-1"}
	return msg
}

// --- Tests ---

func TestRoute_InitFanOut(t *testing.T) {
	env := newRouterEnv()
	wfID := env.createWorkflow(domain.KindTestWorkflow)
	env.handleDone(graph.StepTestInit, map[string]any{"ok": true})

	err := env.router.Route(context.Background(), taskMsg(wfID, domain.KindTestWorkflow, graph.StepTestInit))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	status, err := env.steps.FetchStatus(context.Background(), wfID, graph.StepTestInit)
	if err != nil {
		t.Fatalf("step row missing: %v", err)
	}
	if status != domain.StepStatusSuccess {
		t.Errorf("expected success, got %s", status)
	}

	kinds := env.pub.publishedKinds()
	if len(kinds) != 2 {
		t.Fatalf("expected 2 fan-out messages, got %d (%v)", len(kinds), kinds)
	}
	seen := map[domain.StepKind]bool{}
	for _, k := range kinds {
		seen[k] = true
	}
	if !seen[graph.StepTestBranchA] || !seen[graph.StepTestBranchB] {
		t.Errorf("expected branchA and branchB, got %v", kinds)
	}
}

func TestRoute_DuplicateDelivery_Discarded(t *testing.T) {
	env := newRouterEnv()
	wfID := env.createWorkflow(domain.KindTestWorkflow)

	executions := 0
	env.handle(graph.StepTestInit, func(_ context.Context, _ *steps.Request) (*steps.Result, error) {
		executions++
		return steps.Done(nil), nil
	})

	msg := taskMsg(wfID, domain.KindTestWorkflow, graph.StepTestInit)
	if err := env.router.Route(context.Background(), msg); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := env.router.Route(context.Background(), msg); err != nil {
		t.Fatalf("second delivery: %v", err)
	}

	if executions != 1 {
		t.Errorf("handler executed %d times, want 1", executions)
	}
	if got := len(env.pub.publishedKinds()); got != 2 {
		t.Errorf("duplicate delivery published extra messages: %d total", got)
	}
}

func TestRoute_JoinWaitsForAllPrerequisites(t *testing.T) {
	env := newRouterEnv()
	wfID := env.createWorkflow(domain.KindTestWorkflow)
	env.handleDone(graph.StepTestBranchA, map[string]any{"a": 1})
	env.handleDone(graph.StepTestJoin, nil)

	// Only branchA has completed; its follow-up for the join is deferred
	// at publish time.
	if err := env.router.Route(context.Background(), taskMsg(wfID, domain.KindTestWorkflow, graph.StepTestBranchA)); err != nil {
		t.Fatalf("branchA: %v", err)
	}
	for _, k := range env.pub.publishedKinds() {
		if k == graph.StepTestJoin {
			t.Fatal("join published before all prerequisites completed")
		}
	}

	// A direct delivery for the join must also be deferred at the gate.
	if err := env.router.Route(context.Background(), taskMsg(wfID, domain.KindTestWorkflow, graph.StepTestJoin)); err != nil {
		t.Fatalf("join delivery: %v", err)
	}
	if _, err := env.steps.FetchStatus(context.Background(), wfID, graph.StepTestJoin); err == nil {
		t.Error("deferred join must not acquire a step row")
	}

	// Second branch completes: the join becomes eligible.
	env.handleDone(graph.StepTestBranchB, map[string]any{"b": 2})
	if err := env.router.Route(context.Background(), taskMsg(wfID, domain.KindTestWorkflow, graph.StepTestBranchB)); err != nil {
		t.Fatalf("branchB: %v", err)
	}

	joinPublished := false
	for _, k := range env.pub.publishedKinds() {
		if k == graph.StepTestJoin {
			joinPublished = true
		}
	}
	if !joinPublished {
		t.Fatal("join not published after last prerequisite completed")
	}

	if err := env.router.Route(context.Background(), taskMsg(wfID, domain.KindTestWorkflow, graph.StepTestJoin)); err != nil {
		t.Fatalf("join execution: %v", err)
	}
	status, err := env.steps.FetchStatus(context.Background(), wfID, graph.StepTestJoin)
	if err != nil {
		t.Fatalf("join row missing: %v", err)
	}
	if status != domain.StepStatusSuccess {
		t.Errorf("expected join success, got %s", status)
	}
}

func TestRoute_ReadDataFrom_MergesPriorResponses(t *testing.T) {
	env := newRouterEnv()
	wfID := env.createWorkflow(domain.KindTestWorkflow)
	env.steps.seed(wfID, graph.StepTestBranchA, domain.StepStatusSuccess, map[string]any{"txHashA": "0xa"})
	env.steps.seed(wfID, graph.StepTestBranchB, domain.StepStatusSuccess, map[string]any{"txHashB": "0xb"})

	var gotParams map[string]any
	env.handle(graph.StepTestJoin, func(_ context.Context, req *steps.Request) (*steps.Result, error) {
		gotParams = req.Params
		return steps.Done(nil), nil
	})

	if err := env.router.Route(context.Background(), taskMsg(wfID, domain.KindTestWorkflow, graph.StepTestJoin)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotParams["txHashA"] != "0xa" || gotParams["txHashB"] != "0xb" {
		t.Errorf("readDataFrom results not merged into params: %v", gotParams)
	}
	if gotParams["userId"] != "u-1" {
		t.Errorf("workflow request params lost: %v", gotParams)
	}
}

func TestRoute_FailureEdgePublishesCompensation(t *testing.T) {
	env := newRouterEnv()
	wfID := env.createWorkflow(domain.KindTestWorkflow)
	env.handle(graph.StepTestBranchA, func(_ context.Context, _ *steps.Request) (*steps.Result, error) {
		return steps.Failed("tx reverted"), nil
	})

	if err := env.router.Route(context.Background(), taskMsg(wfID, domain.KindTestWorkflow, graph.StepTestBranchA)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	step, err := env.steps.GetByWorkflowAndKind(context.Background(), wfID, graph.StepTestBranchA)
	if err != nil {
		t.Fatalf("step row missing: %v", err)
	}
	if step.Status != domain.StepStatusFailed {
		t.Errorf("expected failed, got %s", step.Status)
	}
	if step.Error != "tx reverted" {
		t.Errorf("error context not persisted: %q", step.Error)
	}

	kinds := env.pub.publishedKinds()
	if len(kinds) != 1 || kinds[0] != graph.StepTestRollback {
		t.Errorf("expected rollback follow-up, got %v", kinds)
	}
	if env.pub.published[0].TaskStatus != domain.TaskStatusFailed {
		t.Errorf("failure follow-up should carry taskFailed, got %s", env.pub.published[0].TaskStatus)
	}
}

func TestRoute_EmptyFailureEdgeGoesToMarkFailure(t *testing.T) {
	env := newRouterEnv()
	wfID := env.createWorkflow(domain.KindTestWorkflow)
	env.steps.seed(wfID, graph.StepTestBranchA, domain.StepStatusSuccess, nil)
	env.steps.seed(wfID, graph.StepTestBranchB, domain.StepStatusSuccess, nil)
	env.handle(graph.StepTestJoin, func(_ context.Context, _ *steps.Request) (*steps.Result, error) {
		return steps.Failed("join broke"), nil
	})

	if err := env.router.Route(context.Background(), taskMsg(wfID, domain.KindTestWorkflow, graph.StepTestJoin)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	kinds := env.pub.publishedKinds()
	if len(kinds) != 1 || kinds[0] != domain.StepMarkFailure {
		t.Errorf("empty onFailure must route to markFailure, got %v", kinds)
	}
}

func TestRoute_RollbackSucceeded_WorkflowFailed(t *testing.T) {
	env := newRouterEnv()
	wfID := env.createWorkflow(domain.KindTestWorkflow)
	env.steps.seed(wfID, graph.StepTestBranchA, domain.StepStatusFailed, nil)
	env.steps.seed(wfID, graph.StepTestRollback, domain.StepStatusSuccess, nil)

	if err := env.router.Route(context.Background(), taskMsg(wfID, domain.KindTestWorkflow, domain.StepMarkFailure)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wf, _ := env.workflows.GetByID(context.Background(), wfID)
	if wf.Status != domain.WorkflowStatusFailed {
		t.Errorf("expected failed, got %s", wf.Status)
	}
}

func TestRoute_RollbackFailed_WorkflowCompletelyFailed(t *testing.T) {
	env := newRouterEnv()
	wfID := env.createWorkflow(domain.KindTestWorkflow)
	env.steps.seed(wfID, graph.StepTestBranchA, domain.StepStatusFailed, nil)
	env.steps.seed(wfID, graph.StepTestRollback, domain.StepStatusFailed, nil)

	if err := env.router.Route(context.Background(), taskMsg(wfID, domain.KindTestWorkflow, domain.StepMarkFailure)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wf, _ := env.workflows.GetByID(context.Background(), wfID)
	if wf.Status != domain.WorkflowStatusCompletelyFailed {
		t.Errorf("expected completelyFailed, got %s", wf.Status)
	}
}

func TestRoute_MarkSuccessCompletesWorkflow(t *testing.T) {
	env := newRouterEnv()
	wfID := env.createWorkflow(domain.KindTestWorkflow)

	if err := env.router.Route(context.Background(), taskMsg(wfID, domain.KindTestWorkflow, domain.StepMarkSuccess)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wf, _ := env.workflows.GetByID(context.Background(), wfID)
	if wf.Status != domain.WorkflowStatusCompleted {
		t.Errorf("expected completed, got %s", wf.Status)
	}
}

// Grant-currency scenario: markSuccess is a graph node carrying a join
// gate over both verify branches. Completing one branch must leave the
// workflow inProgress; completing the second finishes it.
func TestRoute_SentinelJoinGate(t *testing.T) {
	env := newRouterEnv()
	wfID := env.createWorkflow(domain.KindGrantEthStakeCurrency)
	env.steps.seed(wfID, graph.StepVerifyGrantEth, domain.StepStatusSuccess, nil)

	msg := taskMsg(wfID, domain.KindGrantEthStakeCurrency, domain.StepMarkSuccess)
	if err := env.router.Route(context.Background(), msg); err != nil {
		t.Fatalf("first markSuccess delivery: %v", err)
	}

	wf, _ := env.workflows.GetByID(context.Background(), wfID)
	if wf.Status != domain.WorkflowStatusInProgress {
		t.Fatalf("workflow finished with one verify branch outstanding: %s", wf.Status)
	}

	env.steps.seed(wfID, graph.StepVerifyGrantStakeCurrency, domain.StepStatusSuccess, nil)
	if err := env.router.Route(context.Background(), msg); err != nil {
		t.Fatalf("second markSuccess delivery: %v", err)
	}

	wf, _ = env.workflows.GetByID(context.Background(), wfID)
	if wf.Status != domain.WorkflowStatusCompleted {
		t.Errorf("expected completed, got %s", wf.Status)
	}
}

func TestRoute_PendingSchedulesDelayedReplay(t *testing.T) {
	env := newRouterEnv()
	wfID := env.createWorkflow(domain.KindTestWorkflow)

	resolved := false
	env.handle(graph.StepTestInit, func(_ context.Context, _ *steps.Request) (*steps.Result, error) {
		if !resolved {
			return steps.Pending(nil), nil
		}
		return steps.Done(nil), nil
	})

	msg := taskMsg(wfID, domain.KindTestWorkflow, graph.StepTestInit)
	if err := env.router.Route(context.Background(), msg); err != nil {
		t.Fatalf("pending delivery: %v", err)
	}

	status, err := env.steps.FetchStatus(context.Background(), wfID, graph.StepTestInit)
	if err != nil {
		t.Fatalf("step row missing: %v", err)
	}
	if status != domain.StepStatusProcessing {
		t.Errorf("pending step must stay processing, got %s", status)
	}
	if len(env.pub.published) != 0 {
		t.Error("pending step must not advance the graph")
	}
	if len(env.pub.delayed) != 1 {
		t.Fatalf("expected 1 delayed replay, got %d", len(env.pub.delayed))
	}
	replay := env.pub.delayed[0]
	if replay.msg.TaskStatus != domain.TaskStatusPending {
		t.Errorf("replay must carry taskPending, got %s", replay.msg.TaskStatus)
	}
	if replay.delay != defaultPendingDelay {
		t.Errorf("expected default delay %v, got %v", defaultPendingDelay, replay.delay)
	}

	// The replay passes the duplicate filter and re-executes against the
	// existing row.
	resolved = true
	if err := env.router.Route(context.Background(), replay.msg); err != nil {
		t.Fatalf("replay delivery: %v", err)
	}
	status, _ = env.steps.FetchStatus(context.Background(), wfID, graph.StepTestInit)
	if status != domain.StepStatusSuccess {
		t.Errorf("replay did not resolve step, got %s", status)
	}
	if len(env.pub.publishedKinds()) != 2 {
		t.Errorf("resolved step must fan out, got %v", env.pub.publishedKinds())
	}
}

func TestRoute_HandlerPanicPersistedAsFailure(t *testing.T) {
	env := newRouterEnv()
	wfID := env.createWorkflow(domain.KindTestWorkflow)
	env.handle(graph.StepTestBranchA, func(_ context.Context, _ *steps.Request) (*steps.Result, error) {
		panic("boom")
	})

	if err := env.router.Route(context.Background(), taskMsg(wfID, domain.KindTestWorkflow, graph.StepTestBranchA)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	step, err := env.steps.GetByWorkflowAndKind(context.Background(), wfID, graph.StepTestBranchA)
	if err != nil {
		t.Fatalf("step row missing: %v", err)
	}
	if step.Status != domain.StepStatusFailed {
		t.Errorf("panic must persist as failed, got %s", step.Status)
	}

	kinds := env.pub.publishedKinds()
	if len(kinds) != 1 || kinds[0] != graph.StepTestRollback {
		t.Errorf("panic must follow the failure edge, got %v", kinds)
	}
}

func TestRoute_HandlerErrorPersistedAsFailure(t *testing.T) {
	env := newRouterEnv()
	wfID := env.createWorkflow(domain.KindTestWorkflow)
	env.handle(graph.StepTestBranchA, func(_ context.Context, _ *steps.Request) (*steps.Result, error) {
		return nil, fmt.Errorf("rpc connection refused")
	})

	if err := env.router.Route(context.Background(), taskMsg(wfID, domain.KindTestWorkflow, graph.StepTestBranchA)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	step, _ := env.steps.GetByWorkflowAndKind(context.Background(), wfID, graph.StepTestBranchA)
	if step == nil || step.Status != domain.StepStatusFailed {
		t.Fatal("handler error must persist as failed step")
	}
}

func TestRoute_FinishedWorkflowDiscardsMessages(t *testing.T) {
	env := newRouterEnv()
	wfID := env.createWorkflow(domain.KindTestWorkflow)
	env.workflows.workflows[wfID].Status = domain.WorkflowStatusCompleted

	if err := env.router.Route(context.Background(), taskMsg(wfID, domain.KindTestWorkflow, graph.StepTestInit)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := env.steps.FetchStatus(context.Background(), wfID, graph.StepTestInit); err == nil {
		t.Error("message against finished workflow must not acquire a step")
	}
	if len(env.pub.published) != 0 {
		t.Error("message against finished workflow must not publish")
	}
}

func TestRoute_ChainResolverBindsChainID(t *testing.T) {
	env := newRouterEnv()
	wfID := env.createWorkflow(domain.KindTestWorkflow)

	var gotChainID int64
	env.handle(graph.StepTestInit, func(_ context.Context, req *steps.Request) (*steps.Result, error) {
		gotChainID = req.ChainID
		return steps.Done(nil), nil
	})

	if err := env.router.Route(context.Background(), taskMsg(wfID, domain.KindTestWorkflow, graph.StepTestInit)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotChainID != 200 {
		t.Errorf("expected auxiliary chain 200, got %d", gotChainID)
	}
}

func TestChainResolvers(t *testing.T) {
	msg := &mq.TaskMessage{}

	if got := OriginChainResolver(3)(msg); got != 3 {
		t.Errorf("origin resolver: got %d, want 3", got)
	}
	if got := AuxiliaryChainResolver(200)(msg); got != 200 {
		t.Errorf("aux resolver: got %d, want 200", got)
	}

	msg.GroupID = 201
	if got := AuxiliaryChainResolver(200)(msg); got != 201 {
		t.Errorf("aux resolver with group: got %d, want 201", got)
	}
	if got := OriginChainResolver(3)(msg); got != 3 {
		t.Errorf("origin resolver must ignore group, got %d", got)
	}
}

// A join may list prerequisites that do not point back at it via an
// OnSuccess edge. Completing a prerequisite must still re-check every
// node that lists it, or a satisfied gate would never fire.
func TestRoute_JoinRetriggeredWithoutIncomingEdge(t *testing.T) {
	const kindDetached = domain.Kind("detachedJoinFlow")
	const (
		stepInit    = domain.StepKind("detachedInit")
		stepBranchA = domain.StepKind("detachedBranchA")
		stepBranchB = domain.StepKind("detachedBranchB")
		stepJoin    = domain.StepKind("detachedJoin")
	)

	g := &graph.Graph{
		Kind:  kindDetached,
		Init:  stepInit,
		Chain: graph.ChainAuxiliary,
		Nodes: map[domain.StepKind]graph.Node{
			stepInit: {
				Kind:      stepInit,
				OnSuccess: []domain.StepKind{stepBranchA, stepBranchB},
				OnFailure: domain.StepMarkFailure,
			},
			stepBranchA: {
				Kind:      stepBranchA,
				OnFailure: domain.StepMarkFailure,
			},
			stepBranchB: {
				Kind:      stepBranchB,
				OnFailure: domain.StepMarkFailure,
			},
			stepJoin: {
				Kind:          stepJoin,
				OnSuccess:     []domain.StepKind{domain.StepMarkSuccess},
				Prerequisites: []domain.StepKind{stepBranchA, stepBranchB},
			},
		},
	}
	if err := g.Validate(); err != nil {
		t.Fatalf("graph invalid: %v", err)
	}

	env := newRouterEnvWith(graph.NewRegistry(g))
	wfID := env.createWorkflow(kindDetached)
	for _, kind := range []domain.StepKind{stepInit, stepBranchA, stepBranchB, stepJoin} {
		env.handleDone(kind, nil)
	}

	if err := env.router.Route(context.Background(), taskMsg(wfID, kindDetached, stepInit)); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := env.router.Route(context.Background(), taskMsg(wfID, kindDetached, stepBranchA)); err != nil {
		t.Fatalf("branchA: %v", err)
	}
	for _, k := range env.pub.publishedKinds() {
		if k == stepJoin {
			t.Fatal("join published before all prerequisites completed")
		}
	}

	// The second branch completes; nothing in the graph points at the
	// join, so only the dependent re-check can publish it.
	if err := env.router.Route(context.Background(), taskMsg(wfID, kindDetached, stepBranchB)); err != nil {
		t.Fatalf("branchB: %v", err)
	}
	joinPublished := false
	for _, k := range env.pub.publishedKinds() {
		if k == stepJoin {
			joinPublished = true
		}
	}
	if !joinPublished {
		t.Fatal("completing the last prerequisite did not re-trigger the join")
	}

	env.drain(t)

	wf, _ := env.workflows.GetByID(context.Background(), wfID)
	if wf.Status != domain.WorkflowStatusCompleted {
		t.Errorf("expected completed, got %s", wf.Status)
	}
}

// Authorize-device scenario: the verify step fails, the compensation
// runs exactly once and succeeds, and the workflow ends failed (not
// completelyFailed).
func TestRoute_AuthorizeDeviceVerifyFailureRollsBack(t *testing.T) {
	env := newRouterEnv()
	wfID := env.createWorkflow(domain.KindAuthorizeDevice)

	env.handleDone(graph.StepAuthorizeDeviceInit, nil)
	env.handleDone(graph.StepAuthorizeDevicePerformTx, map[string]any{"transactionHash": "0xabc"})
	env.handle(graph.StepVerifyAuthorizeDeviceTx, func(_ context.Context, req *steps.Request) (*steps.Result, error) {
		if req.Params["transactionHash"] != "0xabc" {
			t.Errorf("verify did not receive the perform tx hash: %v", req.Params)
		}
		return steps.Failed("transaction 0xabc reverted"), nil
	})
	rollbacks := 0
	env.handle(graph.StepRollbackAuthorizeDeviceTx, func(_ context.Context, _ *steps.Request) (*steps.Result, error) {
		rollbacks++
		return steps.Done(nil), nil
	})

	if err := env.router.Route(context.Background(), taskMsg(wfID, domain.KindAuthorizeDevice, graph.StepAuthorizeDeviceInit)); err != nil {
		t.Fatalf("init: %v", err)
	}
	env.drain(t)

	wf, _ := env.workflows.GetByID(context.Background(), wfID)
	if wf.Status != domain.WorkflowStatusFailed {
		t.Errorf("expected failed, got %s", wf.Status)
	}
	if rollbacks != 1 {
		t.Errorf("rollback handler executed %d times, want 1", rollbacks)
	}

	rollback, err := env.steps.GetByWorkflowAndKind(context.Background(), wfID, graph.StepRollbackAuthorizeDeviceTx)
	if err != nil {
		t.Fatalf("rollback row missing: %v", err)
	}
	if rollback.Status != domain.StepStatusSuccess {
		t.Errorf("rollback row status = %s, want success", rollback.Status)
	}
	verify, _ := env.steps.GetByWorkflowAndKind(context.Background(), wfID, graph.StepVerifyAuthorizeDeviceTx)
	if verify == nil || verify.Status != domain.StepStatusFailed {
		t.Error("verify row must persist as failed")
	}
}

// A failure on a node with an empty onFailure edge terminates through
// markFailure alone: no other step row may appear afterwards.
func TestRoute_EmptyFailureEdgeCreatesNoFurtherSteps(t *testing.T) {
	env := newRouterEnv()
	wfID := env.createWorkflow(domain.KindTestWorkflow)
	env.steps.seed(wfID, graph.StepTestBranchA, domain.StepStatusSuccess, nil)
	env.steps.seed(wfID, graph.StepTestBranchB, domain.StepStatusSuccess, nil)
	env.handle(graph.StepTestJoin, func(_ context.Context, _ *steps.Request) (*steps.Result, error) {
		return steps.Failed("join broke"), nil
	})

	if err := env.router.Route(context.Background(), taskMsg(wfID, domain.KindTestWorkflow, graph.StepTestJoin)); err != nil {
		t.Fatalf("join delivery: %v", err)
	}
	env.drain(t)

	wf, _ := env.workflows.GetByID(context.Background(), wfID)
	if wf.Status != domain.WorkflowStatusFailed {
		t.Errorf("expected failed, got %s", wf.Status)
	}

	env.steps.mu.Lock()
	defer env.steps.mu.Unlock()
	for _, step := range env.steps.byID {
		switch step.Kind {
		case graph.StepTestBranchA, graph.StepTestBranchB, graph.StepTestJoin, domain.StepMarkFailure:
		default:
			t.Errorf("unexpected step row created after terminal failure: %s", step.Kind)
		}
	}
}
