package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Default configuration values.
const (
	defaultPollInterval = 250 * time.Millisecond
	defaultDrainTimeout = 2 * time.Minute
)

// ErrDrainTimeout — шаг не завершился за отведённое на drain время.
var ErrDrainTimeout = errors.New("drain timed out")

// State — состояние consumer-процесса.
type State string

const (
	// StateRunning — процесс принимает и обрабатывает сообщения.
	StateRunning State = "running"

	// StateDraining — подписки отменены, дорабатывается текущий шаг.
	StateDraining State = "draining"

	// StateStopped — drain завершён, запись процесса закрыта.
	StateStopped State = "stopped"
)

// Drainable — consumer, умеющий останавливаться в два приёма:
// Cancel прекращает новые доставки, InFlight показывает, осталась ли
// обработка. Реализуется mq.Consumer.
type Drainable interface {
	Cancel() error
	InFlight() int64
}

// ProcessRegistry — срез CronProcessRepo, нужный контроллеру.
type ProcessRegistry interface {
	StopProcess(ctx context.Context, id int64) error
}

// Controller проводит процесс через Running → Draining → Stopped.
//
// Гарантия: ни одна строка WorkflowStep не бросается на середине записи
// при штатной остановке. Текущий шаг всегда дорабатывает до фиксации
// итога; отменяется только приём новых сообщений. От незапланированного
// падения это не защищает — там работает sweeper (internal/scheduler).
type Controller struct {
	consumers []Drainable
	registry  ProcessRegistry
	processID int64

	pollInterval time.Duration
	drainTimeout time.Duration

	mu    sync.RWMutex
	state State

	logger *slog.Logger
}

// Config — конфигурация Controller.
type Config struct {
	// Consumers — подписки, которые нужно погасить при остановке.
	Consumers []Drainable

	// Registry — репозиторий cron_processes.
	Registry ProcessRegistry

	// ProcessID — id строки cron_processes этого процесса.
	ProcessID int64

	// PollInterval — период опроса предиката «всё дообработано»
	// (default: 250ms).
	PollInterval time.Duration

	// DrainTimeout — максимум ожидания текущего шага (default: 2m).
	DrainTimeout time.Duration

	Logger *slog.Logger
}

// New создаёт новый Controller в состоянии Running.
func New(cfg Config) *Controller {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	drainTimeout := cfg.DrainTimeout
	if drainTimeout <= 0 {
		drainTimeout = defaultDrainTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Controller{
		consumers:    cfg.Consumers,
		registry:     cfg.Registry,
		processID:    cfg.ProcessID,
		pollInterval: pollInterval,
		drainTimeout: drainTimeout,
		state:        StateRunning,
		logger:       logger,
	}
}

// State возвращает текущее состояние процесса.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Shutdown выполняет graceful shutdown: отменяет подписки, ждёт
// завершения текущего шага и закрывает запись процесса.
//
// Повторный вызов безопасен и возвращается сразу.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return nil
	}
	c.state = StateDraining
	c.mu.Unlock()

	c.logger.Info("draining: cancelling consumer subscriptions")

	var g errgroup.Group
	for _, consumer := range c.consumers {
		g.Go(consumer.Cancel)
	}
	if err := g.Wait(); err != nil {
		// Потерянный канал не мешает drain'у: доставок всё равно нет.
		c.logger.Warn("failed to cancel a subscription", "error", err)
	}

	if err := c.awaitIdle(ctx); err != nil {
		return err
	}

	if err := c.registry.StopProcess(ctx, c.processID); err != nil {
		return fmt.Errorf("mark cron process stopped: %w", err)
	}

	c.mu.Lock()
	c.state = StateStopped
	c.mu.Unlock()

	c.logger.Info("drain complete, process stopped")
	return nil
}

// awaitIdle опрашивает предикат «все сообщения дообработаны» до
// истечения drainTimeout.
func (c *Controller) awaitIdle(ctx context.Context) error {
	if c.idle() {
		return nil
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	deadline := time.NewTimer(c.drainTimeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return ErrDrainTimeout
		case <-ticker.C:
			if c.idle() {
				return nil
			}
		}
	}
}

// idle возвращает true, когда ни один consumer не держит сообщение.
func (c *Controller) idle() bool {
	for _, consumer := range c.consumers {
		if consumer.InFlight() > 0 {
			return false
		}
	}
	return true
}
