package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Chainflow/internal/domain"
	"github.com/shaiso/Chainflow/internal/graph"
	"github.com/shaiso/Chainflow/internal/lifecycle"
	"github.com/shaiso/Chainflow/internal/mq"
	"github.com/shaiso/Chainflow/internal/repo"
	"github.com/shaiso/Chainflow/internal/router"
	"github.com/shaiso/Chainflow/internal/steps"
)

// Worker — consumer-процесс одного чейна.
//
// Собирает весь стек: графы и реестр handler'ов (с fail-fast проверкой
// при старте), роутер нужного варианта, по consumer'у на каждый топик
// чейна и контроллер жизненного цикла. Origin- и aux-воркер отличаются
// только привязкой к чейну.
type Worker struct {
	chain     graph.ChainBinding
	conn      *mq.Connection
	consumers []*mq.Consumer

	controller *lifecycle.Controller
	processID  int64

	logger     *slog.Logger
	cancelFunc context.CancelFunc
}

// Config — конфигурация Worker.
type Config struct {
	// Chain — привязка процесса: origin или auxiliary.
	Chain graph.ChainBinding

	// ChainID — идентификатор чейна процесса.
	ChainID int64

	// Pool — пул соединений Postgres.
	Pool *pgxpool.Pool

	// Conn — соединение с брокером.
	Conn *mq.Connection

	// Client — граница взаимодействия с чейнами.
	Client steps.ChainClient

	// PendingDelay — задержка переигровки pending-шагов (опционально).
	PendingDelay time.Duration

	Logger *slog.Logger
}

// New собирает Worker. Невалидный граф или шаг без handler'а — ошибка:
// процесс обязан отказаться стартовать.
func New(cfg Config) (*Worker, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	graphs := graph.DefaultRegistry()
	if err := graphs.Validate(); err != nil {
		return nil, fmt.Errorf("validate graphs: %w", err)
	}

	handlers := steps.DefaultRegistry(cfg.Client)
	if err := handlers.Verify(graphs); err != nil {
		return nil, fmt.Errorf("verify handler registry: %w", err)
	}

	var resolver router.ChainResolver
	var processKind domain.CronProcessKind
	if cfg.Chain == graph.ChainOrigin {
		resolver = router.OriginChainResolver(cfg.ChainID)
		processKind = domain.CronOriginWorkflowWorker
	} else {
		resolver = router.AuxiliaryChainResolver(cfg.ChainID)
		processKind = domain.CronAuxWorkflowWorker
	}

	workflowRepo := repo.NewWorkflowRepo(cfg.Pool)
	stepRepo := repo.NewStepRepo(cfg.Pool)
	publisher := mq.NewPublisher(cfg.Conn, logger)

	rt := router.New(router.Config{
		Graphs:       graphs,
		Handlers:     handlers,
		Workflows:    workflowRepo,
		Steps:        stepRepo,
		Publisher:    publisher,
		Resolver:     resolver,
		PendingDelay: cfg.PendingDelay,
		Logger:       logger,
	})

	chainGraphs := graphs.ForChain(cfg.Chain)
	topics := make([]string, 0, len(chainGraphs))
	for _, g := range chainGraphs {
		topics = append(topics, g.Topic())
	}

	if err := mq.SetupTopology(context.Background(), cfg.Conn, topics); err != nil {
		return nil, fmt.Errorf("setup topology: %w", err)
	}

	// Учётная запись процесса: дубликат consumer'а на ту же пару
	// (kind, chain) не запускается.
	proc := &domain.CronProcess{
		Kind:    processKind,
		ChainID: cfg.ChainID,
		IP:      hostIP(),
	}
	cronRepo := repo.NewCronProcessRepo(cfg.Pool)
	if err := cronRepo.Register(context.Background(), proc); err != nil {
		return nil, fmt.Errorf("register cron process: %w", err)
	}

	consumers := make([]*mq.Consumer, 0, len(topics))
	drainables := make([]lifecycle.Drainable, 0, len(topics))
	for _, topic := range topics {
		consumer := mq.NewConsumer(cfg.Conn, logger, topic, rt.Route)
		consumers = append(consumers, consumer)
		drainables = append(drainables, consumer)
	}

	controller := lifecycle.New(lifecycle.Config{
		Consumers: drainables,
		Registry:  cronRepo,
		ProcessID: proc.ID,
		Logger:    logger,
	})

	return &Worker{
		chain:      cfg.Chain,
		conn:       cfg.Conn,
		consumers:  consumers,
		controller: controller,
		processID:  proc.ID,
		logger:     logger,
	}, nil
}

// Start запускает consumer'ы и подписку на командный канал.
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	for _, consumer := range w.consumers {
		go func(c *mq.Consumer) {
			if err := c.Start(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error("consumer stopped unexpectedly", "error", err)
			}
		}(consumer)
	}

	go func() {
		err := mq.ConsumeCommands(ctx, w.conn, w.logger, w.handleCommand)
		if err != nil && ctx.Err() == nil {
			w.logger.Error("command consumer stopped unexpectedly", "error", err)
		}
	}()

	w.logger.Info("worker started",
		"chain", w.chain,
		"consumers", len(w.consumers),
		"process_id", w.processID,
	)
	return nil
}

// handleCommand реагирует на внеполосные команды.
func (w *Worker) handleCommand(ctx context.Context, cmd *mq.CommandMessage) error {
	if cmd.ConsumerTag != "" && !w.ownsTag(cmd.ConsumerTag) {
		return nil
	}

	switch cmd.Kind {
	case mq.CommandShutdown:
		w.logger.Info("shutdown command received")
		return w.Shutdown(ctx)
	case mq.CommandPause:
		w.logger.Info("pause command received")
		for _, consumer := range w.consumers {
			if cmd.ConsumerTag != "" && consumer.Tag() != cmd.ConsumerTag {
				continue
			}
			if err := consumer.Pause(); err != nil {
				w.logger.Error("failed to pause consumer", "consumer_tag", consumer.Tag(), "error", err)
			}
		}
		return nil
	case mq.CommandResume:
		w.logger.Info("resume command received")
		for _, consumer := range w.consumers {
			if cmd.ConsumerTag != "" && consumer.Tag() != cmd.ConsumerTag {
				continue
			}
			consumer.Resume()
		}
		return nil
	default:
		w.logger.Warn("unknown command ignored", "command", cmd.Kind)
		return nil
	}
}

// ownsTag проверяет, адресована ли команда этому процессу.
func (w *Worker) ownsTag(tag string) bool {
	for _, consumer := range w.consumers {
		if consumer.Tag() == tag {
			return true
		}
	}
	return false
}

// Shutdown выполняет graceful shutdown: drain и закрытие учётной записи.
func (w *Worker) Shutdown(ctx context.Context) error {
	if err := w.controller.Shutdown(ctx); err != nil {
		return err
	}
	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	return nil
}

// State возвращает состояние жизненного цикла процесса.
func (w *Worker) State() lifecycle.State {
	return w.controller.State()
}

// hostIP возвращает адрес хоста для учётной записи процесса.
func hostIP() string {
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return "unknown"
}
