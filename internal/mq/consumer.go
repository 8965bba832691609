package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// TaskHandler — обработчик task-сообщения. Ошибка — nack с requeue.
type TaskHandler func(ctx context.Context, msg *TaskMessage) error

// CommandHandler — обработчик командного сообщения.
type CommandHandler func(ctx context.Context, cmd *CommandMessage) error

// Consumer потребляет task-сообщения одной очереди.
//
// Внутри процесса сообщения обрабатываются строго по одному
// (prefetch 1, один цикл): параллелизм достигается количеством
// процессов, а не горутинами внутри одного.
type Consumer struct {
	conn    *Connection
	logger  *slog.Logger
	queue   string
	tag     string
	handler TaskHandler

	inFlight atomic.Int64

	paused   atomic.Bool
	resumeCh chan struct{}

	cancelFunc context.CancelFunc
}

// NewConsumer создаёт consumer очереди queue с явным consumer tag.
// Tag нужен для отмены подписки при drain'е (см. internal/lifecycle).
func NewConsumer(conn *Connection, logger *slog.Logger, queue string, handler TaskHandler) *Consumer {
	return &Consumer{
		conn:     conn,
		logger:   logger,
		queue:    queue,
		tag:      queue + "." + uuid.New().String(),
		handler:  handler,
		resumeCh: make(chan struct{}, 1),
	}
}

// Tag возвращает consumer tag подписки.
func (c *Consumer) Tag() string {
	return c.tag
}

// InFlight возвращает количество сообщений в обработке (0 или 1).
func (c *Consumer) InFlight() int64 {
	return c.inFlight.Load()
}

// Start запускает цикл потребления. Блокирует до отмены контекста.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		deliveries, err := c.subscribe()
		if err != nil {
			c.logger.Error("failed to subscribe", "queue", c.queue, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.conn.ReconnectNotify():
				c.logger.Info("reconnected, resubscribing", "queue", c.queue)
				continue
			}
		}

		c.logger.Info("consumer started", "queue", c.queue, "consumer_tag", c.tag)

		if err := c.drainDeliveries(ctx, deliveries); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("deliveries channel closed, waiting for reconnect", "queue", c.queue)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.conn.ReconnectNotify():
				continue
			}
		}

		// Подписка отменена по tag. Пауза — ждём resume и подписываемся
		// заново; drain — новых доставок не будет, выходим.
		if c.paused.Load() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.resumeCh:
				c.logger.Info("consumer resumed", "queue", c.queue)
				continue
			}
		}
		return nil
	}
}

// subscribe настраивает канал и начинает потребление.
func (c *Consumer) subscribe() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, ErrNoChannel
	}

	// Строго одно неподтверждённое сообщение на процесс.
	if err := ch.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		c.queue, // queue
		c.tag,   // consumer tag
		false,   // auto-ack (ack вручную после persist'а результата)
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", c.queue, err)
	}

	return deliveries, nil
}

// drainDeliveries обрабатывает сообщения до закрытия канала доставки.
// Возвращает nil, если канал закрылся после Cancel (штатный drain).
func (c *Consumer) drainDeliveries(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.handleDelivery(ctx, raw)
		}
	}
}

// handleDelivery обрабатывает одно сообщение.
func (c *Consumer) handleDelivery(ctx context.Context, raw amqp.Delivery) {
	c.inFlight.Add(1)
	defer c.inFlight.Add(-1)

	var msg TaskMessage
	if err := json.Unmarshal(raw.Body, &msg); err != nil {
		c.logger.Error("failed to unmarshal task message",
			"queue", c.queue,
			"error", err,
		)
		// Некорректное сообщение переигрывать бессмысленно.
		raw.Nack(false, false)
		return
	}

	c.logger.Debug("received task message",
		"queue", c.queue,
		"message_id", msg.ID,
		"workflow_id", msg.WorkflowID,
		"step_kind", msg.StepKind,
		"task_status", msg.TaskStatus,
	)

	if err := c.handler(ctx, &msg); err != nil {
		c.logger.Error("task handler failed",
			"queue", c.queue,
			"message_id", msg.ID,
			"workflow_id", msg.WorkflowID,
			"step_kind", msg.StepKind,
			"error", err,
		)
		// Инфраструктурная ошибка — вернуть в очередь, redelivery
		// разрулит идемпотентность роутера.
		raw.Nack(false, true)
		return
	}

	raw.Ack(false)
}

// Cancel отменяет подписку по consumer tag: новые доставки прекращаются,
// текущее сообщение дообрабатывается. Первый шаг drain'а.
func (c *Consumer) Cancel() error {
	ch := c.conn.Channel()
	if ch == nil {
		return ErrNoChannel
	}
	if err := ch.Cancel(c.tag, false); err != nil {
		return fmt.Errorf("cancel consumer %s: %w", c.tag, err)
	}
	c.logger.Info("consumer subscription cancelled", "consumer_tag", c.tag)
	return nil
}

// Pause приостанавливает потребление: подписка отменяется, текущее
// сообщение дообрабатывается, цикл ждёт Resume.
func (c *Consumer) Pause() error {
	if c.paused.Swap(true) {
		return nil
	}
	return c.Cancel()
}

// Resume возобновляет потребление после Pause.
func (c *Consumer) Resume() {
	if !c.paused.Swap(false) {
		return
	}
	select {
	case c.resumeCh <- struct{}{}:
	default:
	}
}

// Stop жёстко останавливает цикл потребления.
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
}

// ConsumeCommands подписывает процесс на командный fanout-обменник.
//
// Очередь эксклюзивная и авто-удаляемая: команды нужны только живым
// процессам, копиться им незачем.
func ConsumeCommands(ctx context.Context, conn *Connection, logger *slog.Logger, handler CommandHandler) error {
	ch := conn.Channel()
	if ch == nil {
		return ErrNoChannel
	}

	q, err := ch.QueueDeclare(
		"",    // auto-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("declare command queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, "", string(ExchangeCommand), false, nil); err != nil {
		return fmt.Errorf("bind command queue: %w", err)
	}

	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume commands: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-deliveries:
			if !ok {
				return nil
			}

			var cmd CommandMessage
			if err := json.Unmarshal(raw.Body, &cmd); err != nil {
				logger.Error("failed to unmarshal command message", "error", err)
				continue
			}

			if err := handler(ctx, &cmd); err != nil {
				logger.Error("command handler failed", "command", cmd.Kind, "error", err)
			}
		}
	}
}
