package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// TaskPublisher — контракт публикации task-сообщений, потребляемый
// роутером. Узкий интерфейс, чтобы тесты подставляли fake.
type TaskPublisher interface {
	// PublishTask публикует task-сообщение в его топик.
	PublishTask(ctx context.Context, msg *TaskMessage) error

	// PublishTaskDelayed публикует task-сообщение с задержкой доставки.
	// Используется для переигровки pending-шагов.
	PublishTaskDelayed(ctx context.Context, msg *TaskMessage, delay time.Duration) error
}

// Publisher публикует сообщения в брокер.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{conn: conn, logger: logger}
}

// PublishTask публикует task-сообщение в ExchangeWorkflow.
func (p *Publisher) PublishTask(ctx context.Context, msg *TaskMessage) error {
	return p.publish(ctx, ExchangeWorkflow, msg.Topic, msg, 0)
}

// PublishTaskDelayed публикует task-сообщение в wait-очередь с TTL.
// По истечении delay брокер вернёт его в рабочую очередь топика.
func (p *Publisher) PublishTaskDelayed(ctx context.Context, msg *TaskMessage, delay time.Duration) error {
	return p.publish(ctx, ExchangeWait, msg.Topic, msg, delay)
}

// PublishCommand публикует командное сообщение в fanout-обменник.
func (p *Publisher) PublishCommand(ctx context.Context, cmd *CommandMessage) error {
	if cmd.ID == "" {
		cmd.ID = uuid.New().String()
	}
	if cmd.PublishedAt.IsZero() {
		cmd.PublishedAt = time.Now()
	}
	return p.publish(ctx, ExchangeCommand, "", cmd, 0)
}

// publish сериализует и публикует конверт.
func (p *Publisher) publish(ctx context.Context, exchange Exchange, routingKey string, envelope any, ttl time.Duration) error {
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		pub := amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent, // переживает рестарт брокера
			Timestamp:    time.Now(),
			Body:         body,
		}
		if ttl > 0 {
			pub.Expiration = strconv.FormatInt(ttl.Milliseconds(), 10)
		}

		if err := ch.PublishWithContext(ctx, string(exchange), routingKey, false, false, pub); err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"ttl", ttl,
		)

		return nil
	})
}
