package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/Chainflow/internal/domain"
	"github.com/shaiso/Chainflow/internal/graph"
	"github.com/shaiso/Chainflow/internal/mq"
)

// Default configuration values.
const (
	defaultSyncCronExpr   = "*/5 * * * *"
	defaultStaleThreshold = 30 * time.Minute
	defaultBatchSize      = 100
)

// WorkflowStore — срез WorkflowRepo, нужный планировщику.
type WorkflowStore interface {
	Create(ctx context.Context, wf *domain.Workflow) error
	GetByID(ctx context.Context, id int64) (*domain.Workflow, error)
}

// StepStore — срез StepRepo, нужный планировщику.
type StepStore interface {
	ListStale(ctx context.Context, threshold time.Duration, limit int) ([]domain.WorkflowStep, error)
	Touch(ctx context.Context, id int64) error
}

// Scheduler — периодические обязанности системы: запуск stateRootSync
// по расписанию и переигровка шагов, брошенных упавшими процессами.
//
// Tick вызывается только лидером; leader election делается в main.go
// через pg_try_advisory_lock.
type Scheduler struct {
	workflows WorkflowStore
	steps     StepStore
	graphs    *graph.Registry
	publisher mq.TaskPublisher

	syncSchedule   cron.Schedule
	nextSync       time.Time
	staleThreshold time.Duration
	batchSize      int

	logger *slog.Logger
}

// Config — конфигурация Scheduler.
type Config struct {
	Workflows WorkflowStore
	Steps     StepStore
	Graphs    *graph.Registry
	Publisher mq.TaskPublisher

	// SyncCronExpr — расписание запуска stateRootSync
	// (default: каждые 5 минут).
	SyncCronExpr string

	// StaleThreshold — сколько шаг может висеть в processing, прежде чем
	// sweeper сочтёт его брошенным (default: 30m).
	StaleThreshold time.Duration

	// BatchSize — максимум stale-шагов за один тик (default: 100).
	BatchSize int

	Logger *slog.Logger
}

// New создаёт новый Scheduler.
func New(cfg Config) (*Scheduler, error) {
	expr := cfg.SyncCronExpr
	if expr == "" {
		expr = defaultSyncCronExpr
	}
	syncSchedule, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}

	staleThreshold := cfg.StaleThreshold
	if staleThreshold <= 0 {
		staleThreshold = defaultStaleThreshold
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		workflows:      cfg.Workflows,
		steps:          cfg.Steps,
		graphs:         cfg.Graphs,
		publisher:      cfg.Publisher,
		syncSchedule:   syncSchedule,
		nextSync:       NextRun(syncSchedule, time.Now()),
		staleThreshold: staleThreshold,
		batchSize:      batchSize,
		logger:         logger,
	}, nil
}

// Tick выполняет один тик планировщика: запускает stateRootSync, если
// пришло его время, и переигрывает stale-шаги.
//
// Ошибка одной обязанности не блокирует другую.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := time.Now()

	var firstErr error
	if !now.Before(s.nextSync) {
		if err := s.TriggerStateRootSync(ctx); err != nil {
			s.logger.Error("failed to trigger state root sync", "error", err)
			firstErr = err
		}
		s.nextSync = NextRun(s.syncSchedule, now)
	}

	if err := s.SweepStaleSteps(ctx); err != nil {
		s.logger.Error("failed to sweep stale steps", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// TriggerStateRootSync создаёт новый stateRootSync workflow и публикует
// его стартовое сообщение.
func (s *Scheduler) TriggerStateRootSync(ctx context.Context) error {
	g, err := s.graphs.ForKind(domain.KindStateRootSync)
	if err != nil {
		return err
	}

	now := time.Now()
	wf := &domain.Workflow{
		Kind:      domain.KindStateRootSync,
		Status:    domain.WorkflowStatusInProgress,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.workflows.Create(ctx, wf); err != nil {
		return fmt.Errorf("create state root sync workflow: %w", err)
	}

	msg := mq.NewTaskMessage(wf.ID, wf.Kind, g.Init, g.Topic())
	if err := s.publisher.PublishTask(ctx, msg); err != nil {
		return fmt.Errorf("publish state root sync init: %w", err)
	}

	s.logger.Info("state root sync triggered", "workflow_id", wf.ID)
	return nil
}

// SweepStaleSteps переигрывает шаги, висящие в processing дольше
// порога. Такой шаг — след процесса, упавшего между захватом строки и
// фиксацией итога: штатный drain никогда его не оставляет.
//
// Переигровка идёт сообщением taskPending: роутер пропускает его сквозь
// дубликат-фильтр и выполняет handler против существующей строки.
// Идемпотентность handler'а — ответственность его автора; шаги с
// внешним эффектом проверяют чейн перед повторной отправкой.
func (s *Scheduler) SweepStaleSteps(ctx context.Context) error {
	stale, err := s.steps.ListStale(ctx, s.staleThreshold, s.batchSize)
	if err != nil {
		return fmt.Errorf("list stale steps: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}

	s.logger.Info("found stale steps", "count", len(stale))

	var republished int
	for i := range stale {
		step := &stale[i]
		if err := s.republish(ctx, step); err != nil {
			s.logger.Error("failed to republish stale step",
				"workflow_id", step.WorkflowID,
				"step_kind", step.Kind,
				"error", err,
			)
			continue
		}
		republished++
	}

	s.logger.Info("stale sweep completed", "stale", len(stale), "republished", republished)
	return nil
}

// republish публикует taskPending-переигровку одного stale-шага.
func (s *Scheduler) republish(ctx context.Context, step *domain.WorkflowStep) error {
	wf, err := s.workflows.GetByID(ctx, step.WorkflowID)
	if err != nil {
		return fmt.Errorf("load workflow %d: %w", step.WorkflowID, err)
	}
	if wf.IsFinished() {
		// Workflow уже закрыт — шаг оставляем как есть.
		return nil
	}

	g, err := s.graphs.ForKind(wf.Kind)
	if err != nil {
		return err
	}

	msg := mq.NewTaskMessage(wf.ID, wf.Kind, step.Kind, g.Topic())
	msg.TaskStatus = domain.TaskStatusPending
	msg.CurrentStepID = step.ID
	msg.ClientID = wf.ClientID
	msg.RequestParams = step.RequestParams

	if err := s.publisher.PublishTask(ctx, msg); err != nil {
		return fmt.Errorf("publish replay: %w", err)
	}

	// Сдвигаем updated_at, чтобы следующий тик не переиграл шаг снова
	// до того, как воркер его обработает.
	if err := s.steps.Touch(ctx, step.ID); err != nil {
		return fmt.Errorf("touch stale step: %w", err)
	}

	return nil
}
