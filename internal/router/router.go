package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/shaiso/Chainflow/internal/domain"
	"github.com/shaiso/Chainflow/internal/graph"
	"github.com/shaiso/Chainflow/internal/mq"
	"github.com/shaiso/Chainflow/internal/repo"
	"github.com/shaiso/Chainflow/internal/steps"
)

// Default configuration values.
const (
	defaultPendingDelay = 30 * time.Second
)

// WorkflowStore — срез WorkflowRepo, нужный роутеру.
type WorkflowStore interface {
	GetByID(ctx context.Context, id int64) (*domain.Workflow, error)
	SetStatus(ctx context.Context, id int64, status domain.WorkflowStatus) error
}

// StepStore — срез StepRepo, нужный роутеру.
type StepStore interface {
	TryAcquire(ctx context.Context, step *domain.WorkflowStep) (bool, error)
	Complete(ctx context.Context, step *domain.WorkflowStep) error
	Touch(ctx context.Context, id int64) error
	FetchStatus(ctx context.Context, workflowID int64, kind domain.StepKind) (domain.StepStatus, error)
	FetchResponseData(ctx context.Context, workflowID int64, kind domain.StepKind) (map[string]any, error)
	GetByWorkflowAndKind(ctx context.Context, workflowID int64, kind domain.StepKind) (*domain.WorkflowStep, error)
}

// Router выполняет шаги workflow по task-сообщениям.
//
// Один вызов Route — одна попытка одного шага: идемпотентный захват
// строки WorkflowStep, проверка join-гейта, сборка входных данных,
// вызов handler'а, фиксация итога и публикация follow-up сообщений
// по рёбрам графа. Доставка at-least-once, поэтому каждый пункт обязан
// переживать повтор без двойного эффекта.
type Router struct {
	graphs    *graph.Registry
	handlers  *steps.Registry
	workflows WorkflowStore
	steps     StepStore
	publisher mq.TaskPublisher
	resolver  ChainResolver

	pendingDelay time.Duration
	logger       *slog.Logger
}

// Config — конфигурация Router.
type Config struct {
	Graphs    *graph.Registry
	Handlers  *steps.Registry
	Workflows WorkflowStore
	Steps     StepStore
	Publisher mq.TaskPublisher

	// Resolver подставляет chainId в параметры handler'а
	// (origin- или auxiliary-вариант воркера).
	Resolver ChainResolver

	// PendingDelay — задержка переигровки pending-шага (default: 30s).
	PendingDelay time.Duration

	Logger *slog.Logger
}

// New создаёт новый Router.
func New(cfg Config) *Router {
	pendingDelay := cfg.PendingDelay
	if pendingDelay <= 0 {
		pendingDelay = defaultPendingDelay
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Router{
		graphs:       cfg.Graphs,
		handlers:     cfg.Handlers,
		workflows:    cfg.Workflows,
		steps:        cfg.Steps,
		publisher:    cfg.Publisher,
		resolver:     cfg.Resolver,
		pendingDelay: pendingDelay,
		logger:       logger,
	}
}

// Route обрабатывает одно task-сообщение.
//
// Возвращает ошибку только при инфраструктурных сбоях (БД, брокер) —
// такие сообщения уходят в requeue. Постоянные проблемы (неизвестный
// граф, неготовый join, дубликат) гасятся здесь: повтор не поможет.
func (r *Router) Route(ctx context.Context, msg *mq.TaskMessage) error {
	log := r.logger.With(
		"workflow_id", msg.WorkflowID,
		"workflow_kind", msg.WorkflowKind,
		"step_kind", msg.StepKind,
	)

	g, err := r.graphs.ForKind(msg.WorkflowKind)
	if err != nil {
		log.Error("no graph for workflow kind, discarding message")
		messagesDiscarded.WithLabelValues("unknown_kind").Inc()
		return nil
	}

	node, ok := g.Node(msg.StepKind)
	if !ok {
		if !msg.StepKind.IsSentinel() {
			log.Error("step kind is not a graph node, discarding message")
			messagesDiscarded.WithLabelValues("unknown_step").Inc()
			return nil
		}
		// Sentinel без узла в графе: нет ни рёбер, ни prerequisites.
		node = graph.Node{Kind: msg.StepKind}
	}

	wf, err := r.workflows.GetByID(ctx, msg.WorkflowID)
	if err != nil {
		return fmt.Errorf("load workflow %d: %w", msg.WorkflowID, err)
	}
	if wf.IsFinished() {
		log.Info("workflow already finished, discarding message", "status", wf.Status)
		messagesDiscarded.WithLabelValues("workflow_finished").Inc()
		return nil
	}

	// Join-гейт проверяется до захвата строки: захваченная, но не
	// выполненная строка в processing выглядела бы как дубликат при
	// повторном триггере от последнего prerequisite.
	satisfied, err := r.gateSatisfied(ctx, msg.WorkflowID, node)
	if err != nil {
		return fmt.Errorf("check prerequisites of %s: %w", msg.StepKind, err)
	}
	if !satisfied {
		log.Info("prerequisites not yet satisfied, deferring step")
		messagesDiscarded.WithLabelValues("gate_deferred").Inc()
		return nil
	}

	step, proceed, err := r.acquire(ctx, msg, log)
	if err != nil {
		return err
	}
	if !proceed {
		return nil
	}

	// Sentinel'ы не зовут внешних handler'ов: их эффект — смена статуса
	// workflow, и она должна сработать даже при пустом реестре.
	if msg.StepKind.IsSentinel() {
		return r.finishSentinel(ctx, g, wf, step, log)
	}

	result := r.execute(ctx, msg, wf, node, step, log)

	return r.persistAndAdvance(ctx, g, msg, node, step, result, log)
}

// acquire реализует идемпотентный захват строки WorkflowStep.
//
// Возвращает proceed=false, когда сообщение — дубликат и выполнять
// нечего. Переигровка pending-шага (TaskStatus == taskPending) проходит
// сквозь дубликат-фильтр: её строка легитимно висит в processing.
func (r *Router) acquire(ctx context.Context, msg *mq.TaskMessage, log *slog.Logger) (*domain.WorkflowStep, bool, error) {
	status, err := r.steps.FetchStatus(ctx, msg.WorkflowID, msg.StepKind)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, false, fmt.Errorf("fetch step status: %w", err)
	}

	if err == nil {
		switch status {
		case domain.StepStatusSuccess, domain.StepStatusFailed:
			log.Info("step already resolved, discarding message", "status", status)
			messagesDiscarded.WithLabelValues("already_resolved").Inc()
			return nil, false, nil

		case domain.StepStatusProcessing, domain.StepStatusQueued:
			if msg.TaskStatus != domain.TaskStatusPending {
				log.Info("step already in flight, discarding duplicate")
				messagesDiscarded.WithLabelValues("duplicate").Inc()
				return nil, false, nil
			}
			// Переигровка pending: выполняем против существующей строки.
			step, err := r.steps.GetByWorkflowAndKind(ctx, msg.WorkflowID, msg.StepKind)
			if err != nil {
				return nil, false, fmt.Errorf("load pending step: %w", err)
			}
			return step, true, nil
		}
	}

	now := time.Now()
	step := &domain.WorkflowStep{
		WorkflowID:    msg.WorkflowID,
		Kind:          msg.StepKind,
		Status:        domain.StepStatusProcessing,
		UniqueToken:   domain.StepUniqueToken(msg.WorkflowID, msg.StepKind),
		RequestParams: msg.RequestParams,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	acquired, err := r.steps.TryAcquire(ctx, step)
	if err != nil {
		return nil, false, fmt.Errorf("acquire step %s: %w", msg.StepKind, err)
	}
	if !acquired {
		log.Info("lost acquire race, discarding message")
		messagesDiscarded.WithLabelValues("lost_race").Inc()
		return nil, false, nil
	}

	return step, true, nil
}

// gateSatisfied проверяет join-гейт узла: все prerequisites в success.
func (r *Router) gateSatisfied(ctx context.Context, workflowID int64, node graph.Node) (bool, error) {
	for _, p := range node.Prerequisites {
		status, err := r.steps.FetchStatus(ctx, workflowID, p)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return false, nil
			}
			return false, err
		}
		if status != domain.StepStatusSuccess {
			return false, nil
		}
	}
	return true, nil
}

// execute вызывает handler шага, конвертируя паники и инфраструктурные
// ошибки в failed-результат.
func (r *Router) execute(ctx context.Context, msg *mq.TaskMessage, wf *domain.Workflow, node graph.Node, step *domain.WorkflowStep, log *slog.Logger) (result *steps.Result) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("step handler panicked",
				"panic", p,
				"stack", string(debug.Stack()),
			)
			result = steps.Failed(fmt.Sprintf("handler panic: %v", p))
		}
	}()

	handler, err := r.handlers.Resolve(msg.StepKind)
	if err != nil {
		// Verify при старте делает это недостижимым; страховка на случай
		// рассинхронизации реестров между процессами.
		log.Error("no handler for step kind", "error", err)
		return steps.Failed(err.Error())
	}

	params, err := r.assembleParams(ctx, msg, wf, node)
	if err != nil {
		log.Error("failed to assemble step params", "error", err)
		return steps.Failed(err.Error())
	}

	started := time.Now()
	res, err := handler.Execute(ctx, &steps.Request{
		WorkflowID:   msg.WorkflowID,
		WorkflowKind: msg.WorkflowKind,
		StepKind:     msg.StepKind,
		ChainID:      r.resolver(msg),
		Params:       params,
		Payload:      msg.Payload,
	})
	stepDuration.WithLabelValues(string(msg.StepKind)).Observe(time.Since(started).Seconds())

	if err != nil {
		log.Error("step handler failed", "error", err)
		return steps.Failed(err.Error())
	}
	return res
}

// assembleParams собирает входные параметры handler'а: requestParams
// workflow, накопленные параметры сообщения и response data шагов из
// readDataFrom. Поздние источники перекрывают ранние по ключам.
func (r *Router) assembleParams(ctx context.Context, msg *mq.TaskMessage, wf *domain.Workflow, node graph.Node) (map[string]any, error) {
	params := make(map[string]any)
	for k, v := range wf.RequestParams {
		params[k] = v
	}
	for k, v := range msg.RequestParams {
		params[k] = v
	}

	for _, src := range node.ReadDataFrom {
		data, err := r.steps.FetchResponseData(ctx, msg.WorkflowID, src)
		if err != nil {
			return nil, fmt.Errorf("read data from %s: %w", src, err)
		}
		for k, v := range data {
			params[k] = v
		}
	}

	return params, nil
}

// persistAndAdvance фиксирует итог шага и публикует follow-up
// сообщения по рёбрам графа.
func (r *Router) persistAndAdvance(ctx context.Context, g *graph.Graph, msg *mq.TaskMessage, node graph.Node, step *domain.WorkflowStep, result *steps.Result, log *slog.Logger) error {
	switch result.TaskStatus {
	case domain.TaskStatusPending:
		// Статус не меняется: шаг ждёт внешнего события. Touch сдвигает
		// updated_at, чтобы sweeper не счёл ожидание упавшим процессом.
		if err := r.steps.Touch(ctx, step.ID); err != nil {
			return fmt.Errorf("touch pending step: %w", err)
		}

		replay := *msg
		replay.TaskStatus = domain.TaskStatusPending
		replay.CurrentStepID = step.ID
		if err := r.publisher.PublishTaskDelayed(ctx, &replay, r.pendingDelay); err != nil {
			return fmt.Errorf("schedule pending replay: %w", err)
		}

		stepsExecuted.WithLabelValues(string(msg.StepKind), "pending").Inc()
		log.Info("step pending, replay scheduled", "delay", r.pendingDelay)
		return nil

	case domain.TaskStatusDone:
		step.MarkSuccess(result.TaskResponseData)
		if err := r.steps.Complete(ctx, step); err != nil {
			return fmt.Errorf("persist step success: %w", err)
		}

		stepsExecuted.WithLabelValues(string(msg.StepKind), "success").Inc()
		log.Info("step succeeded")
		return r.advanceOnSuccess(ctx, g, msg, node, step, result)

	default:
		errMsg := steps.ParamString(result.TaskResponseData, "error")
		step.MarkFailed(errMsg, result.TaskResponseData)
		if err := r.steps.Complete(ctx, step); err != nil {
			return fmt.Errorf("persist step failure: %w", err)
		}

		stepsExecuted.WithLabelValues(string(msg.StepKind), "failed").Inc()
		log.Warn("step failed", "error", errMsg)
		return r.advanceOnFailure(ctx, g, msg, node, step)
	}
}

// advanceOnSuccess публикует сообщения для всех OnSuccess-рёбер,
// чей join-гейт удовлетворён.
//
// Гейт проверяется и здесь, и при получении: здесь — чтобы не слать
// заведомо мёртвые сообщения, при получении — как источник истины
// (между публикацией и доставкой состояние могло измениться).
//
// Помимо рёбер OnSuccess перепроверяются все узлы, перечисляющие
// завершённый шаг в prerequisites: join без входящего ребра от одного
// из своих prerequisites иначе никогда не получил бы повторный триггер.
func (r *Router) advanceOnSuccess(ctx context.Context, g *graph.Graph, msg *mq.TaskMessage, node graph.Node, step *domain.WorkflowStep, result *steps.Result) error {
	targets := make([]domain.StepKind, 0, len(node.OnSuccess))
	seen := make(map[domain.StepKind]bool, len(node.OnSuccess))
	for _, next := range node.OnSuccess {
		if seen[next] {
			continue
		}
		seen[next] = true
		targets = append(targets, next)
	}
	for _, dep := range g.Dependents(step.Kind) {
		if seen[dep.Kind] {
			continue
		}
		seen[dep.Kind] = true
		targets = append(targets, dep.Kind)
	}

	for _, next := range targets {
		nextNode, ok := g.Node(next)
		if ok && len(nextNode.Prerequisites) > 0 {
			satisfied, err := r.gateSatisfied(ctx, msg.WorkflowID, nextNode)
			if err != nil {
				return fmt.Errorf("check gate of %s: %w", next, err)
			}
			if !satisfied {
				r.logger.Info("join not yet satisfied, follow-up deferred",
					"workflow_id", msg.WorkflowID,
					"step_kind", next,
				)
				continue
			}
		}

		follow := r.followUp(g, msg, next, step)
		follow.TaskStatus = domain.TaskStatusReadyToStart
		follow.TaskResponseData = result.TaskResponseData
		if err := r.publisher.PublishTask(ctx, follow); err != nil {
			return fmt.Errorf("publish follow-up %s: %w", next, err)
		}
	}
	return nil
}

// advanceOnFailure публикует компенсирующий шаг или markFailure.
func (r *Router) advanceOnFailure(ctx context.Context, g *graph.Graph, msg *mq.TaskMessage, node graph.Node, step *domain.WorkflowStep) error {
	target := node.OnFailure
	if target == "" {
		target = domain.StepMarkFailure
	}

	follow := r.followUp(g, msg, target, step)
	follow.TaskStatus = domain.TaskStatusFailed
	if err := r.publisher.PublishTask(ctx, follow); err != nil {
		return fmt.Errorf("publish failure follow-up %s: %w", target, err)
	}
	return nil
}

// followUp строит конверт follow-up сообщения, наследуя контекст
// workflow из входящего.
func (r *Router) followUp(g *graph.Graph, msg *mq.TaskMessage, next domain.StepKind, step *domain.WorkflowStep) *mq.TaskMessage {
	follow := mq.NewTaskMessage(msg.WorkflowID, msg.WorkflowKind, next, g.Topic())
	follow.CurrentStepID = step.ID
	follow.ClientID = msg.ClientID
	follow.GroupID = msg.GroupID
	follow.RequestParams = msg.RequestParams
	follow.Payload = msg.Payload
	return follow
}

// finishSentinel закрывает workflow терминальным sentinel-шагом.
func (r *Router) finishSentinel(ctx context.Context, g *graph.Graph, wf *domain.Workflow, step *domain.WorkflowStep, log *slog.Logger) error {
	step.MarkSuccess(nil)
	if err := r.steps.Complete(ctx, step); err != nil {
		return fmt.Errorf("persist sentinel step: %w", err)
	}

	target := domain.WorkflowStatusCompleted
	if step.Kind == domain.StepMarkFailure {
		target = domain.WorkflowStatusFailed
		rolledBack, err := r.compensationFailed(ctx, g, wf.ID)
		if err != nil {
			return fmt.Errorf("inspect compensation steps: %w", err)
		}
		if rolledBack {
			target = domain.WorkflowStatusCompletelyFailed
		}
	}

	if err := r.workflows.SetStatus(ctx, wf.ID, target); err != nil {
		// Терминальный статус уже записан другой доставкой — не ошибка.
		if errors.Is(err, repo.ErrInvalidState) {
			log.Info("workflow already finished", "status", target)
			return nil
		}
		return fmt.Errorf("finish workflow: %w", err)
	}

	workflowsFinished.WithLabelValues(string(target)).Inc()
	log.Info("workflow finished", "status", target)
	return nil
}

// compensationFailed проверяет, провалился ли какой-нибудь
// компенсирующий шаг графа. Если да, частично выполненная работа не
// откачена и workflow уходит в completelyFailed.
func (r *Router) compensationFailed(ctx context.Context, g *graph.Graph, workflowID int64) (bool, error) {
	for kind := range g.CompensationKinds() {
		status, err := r.steps.FetchStatus(ctx, workflowID, kind)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				continue
			}
			return false, err
		}
		if status == domain.StepStatusFailed {
			return true, nil
		}
	}
	return false, nil
}
