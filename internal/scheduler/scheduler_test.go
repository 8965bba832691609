package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/Chainflow/internal/domain"
	"github.com/shaiso/Chainflow/internal/graph"
	"github.com/shaiso/Chainflow/internal/mq"
	"github.com/shaiso/Chainflow/internal/repo"
)

type fakeWorkflowStore struct {
	mu        sync.Mutex
	workflows map[int64]*domain.Workflow
	nextID    int64
}

func newFakeWorkflowStore() *fakeWorkflowStore {
	return &fakeWorkflowStore{workflows: make(map[int64]*domain.Workflow)}
}

func (s *fakeWorkflowStore) Create(_ context.Context, wf *domain.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	wf.ID = s.nextID
	copied := *wf
	s.workflows[wf.ID] = &copied
	return nil
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

type fakeStepStore struct {
	mu            sync.Mutex
	stale         []domain.WorkflowStep
	touched       []int64
	lastThreshold time.Duration
}

func (s *fakeStepStore) ListStale(_ context.Context, threshold time.Duration, _ int) ([]domain.WorkflowStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastThreshold = threshold
	return s.stale, nil
}

func (s *fakeStepStore) Touch(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = append(s.touched, id)
	return nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []*mq.TaskMessage
}

func (p *fakePublisher) PublishTask(_ context.Context, msg *mq.TaskMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, msg)
	return nil
}

func (p *fakePublisher) PublishTaskDelayed(_ context.Context, msg *mq.TaskMessage, _ time.Duration) error {
	return p.PublishTask(context.Background(), msg)
}

func newTestScheduler(t *testing.T, workflows *fakeWorkflowStore, steps *fakeStepStore, pub *fakePublisher) *Scheduler {
	t.Helper()
	s, err := New(Config{
		Workflows: workflows,
		Steps:     steps,
		Graphs:    graph.DefaultRegistry(),
		Publisher: pub,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return s
}

func TestTriggerStateRootSync(t *testing.T) {
	workflows := newFakeWorkflowStore()
	pub := &fakePublisher{}
	s := newTestScheduler(t, workflows, &fakeStepStore{}, pub)

	if err := s.TriggerStateRootSync(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(workflows.workflows) != 1 {
		t.Fatalf("expected 1 workflow, got %d", len(workflows.workflows))
	}
	wf := workflows.workflows[1]
	if wf.Kind != domain.KindStateRootSync {
		t.Errorf("expected stateRootSync, got %s", wf.Kind)
	}
	if wf.Status != domain.WorkflowStatusInProgress {
		t.Errorf("expected inProgress, got %s", wf.Status)
	}

	if len(pub.published) != 1 {
		t.Fatalf("expected 1 message, got %d", len(pub.published))
	}
	msg := pub.published[0]
	if msg.StepKind != graph.StepCommitStateRoot {
		t.Errorf("init message for wrong step: %s", msg.StepKind)
	}
	if msg.Topic != "workflow.stateRootSync" {
		t.Errorf("origin workflow must use workflow.* topic, got %s", msg.Topic)
	}
	if msg.WorkflowID != wf.ID {
		t.Errorf("message bound to wrong workflow: %d", msg.WorkflowID)
	}
}

func TestSweepStaleSteps_RepublishesAsPending(t *testing.T) {
	workflows := newFakeWorkflowStore()
	wf := &domain.Workflow{
		Kind:   domain.KindTestWorkflow,
		Status: domain.WorkflowStatusInProgress,
	}
	_ = workflows.Create(context.Background(), wf)

	steps := &fakeStepStore{stale: []domain.WorkflowStep{{
		ID:         11,
		WorkflowID: wf.ID,
		Kind:       graph.StepTestBranchA,
		Status:     domain.StepStatusProcessing,
	}}}
	pub := &fakePublisher{}
	s := newTestScheduler(t, workflows, steps, pub)

	if err := s.SweepStaleSteps(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(pub.published) != 1 {
		t.Fatalf("expected 1 replay, got %d", len(pub.published))
	}
	msg := pub.published[0]
	if msg.TaskStatus != domain.TaskStatusPending {
		t.Errorf("replay must carry taskPending, got %s", msg.TaskStatus)
	}
	if msg.StepKind != graph.StepTestBranchA {
		t.Errorf("replay for wrong step: %s", msg.StepKind)
	}
	if msg.CurrentStepID != 11 {
		t.Errorf("replay must reference the stale row, got %d", msg.CurrentStepID)
	}

	if len(steps.touched) != 1 || steps.touched[0] != 11 {
		t.Errorf("stale row not touched after republish: %v", steps.touched)
	}
}

func TestSweepStaleSteps_SkipsFinishedWorkflow(t *testing.T) {
	workflows := newFakeWorkflowStore()
	wf := &domain.Workflow{
		Kind:   domain.KindTestWorkflow,
		Status: domain.WorkflowStatusFailed,
	}
	_ = workflows.Create(context.Background(), wf)

	steps := &fakeStepStore{stale: []domain.WorkflowStep{{
		ID:         5,
		WorkflowID: wf.ID,
		Kind:       graph.StepTestBranchA,
		Status:     domain.StepStatusProcessing,
	}}}
	pub := &fakePublisher{}
	s := newTestScheduler(t, workflows, steps, pub)

	if err := s.SweepStaleSteps(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.published) != 0 {
		t.Error("steps of finished workflows must not be replayed")
	}
}

func TestSweepStaleSteps_UsesConfiguredThreshold(t *testing.T) {
	steps := &fakeStepStore{}
	s, err := New(Config{
		Workflows:      newFakeWorkflowStore(),
		Steps:          steps,
		Graphs:         graph.DefaultRegistry(),
		Publisher:      &fakePublisher{},
		StaleThreshold: 5 * time.Minute,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	if err := s.SweepStaleSteps(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if steps.lastThreshold != 5*time.Minute {
		t.Errorf("sweep threshold: got %v, want 5m", steps.lastThreshold)
	}

	// Zero config falls back to the default.
	steps2 := &fakeStepStore{}
	s2 := newTestScheduler(t, newFakeWorkflowStore(), steps2, &fakePublisher{})
	if err := s2.SweepStaleSteps(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if steps2.lastThreshold != 30*time.Minute {
		t.Errorf("default threshold: got %v, want 30m", steps2.lastThreshold)
	}
}

func TestValidateCronExpr(t *testing.T) {
	if err := ValidateCronExpr("*/5 * * * *"); err != nil {
		t.Errorf("valid expression rejected: %v", err)
	}
	if err := ValidateCronExpr("not a cron"); err == nil {
		t.Error("invalid expression accepted")
	}
}

func TestNextRun(t *testing.T) {
	schedule, err := ParseSchedule("0 * * * *")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	from := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	next := NextRun(schedule, from)
	want := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next run: got %v, want %v", next, want)
	}
}
