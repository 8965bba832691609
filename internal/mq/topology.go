package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Обменники.
const (
	// ExchangeWorkflow — task-сообщения; routing key = топик workflow.
	ExchangeWorkflow Exchange = "chainflow.workflow"

	// ExchangeCommand — внеполосные команды consumer-процессам (fanout).
	ExchangeCommand Exchange = "chainflow.command"

	// ExchangeWait — отложенные переигровки pending-шагов. Очереди wait
	// не имеют consumer'ов: сообщение лежит до истечения TTL и через
	// dead-letter возвращается в ExchangeWorkflow с тем же routing key.
	ExchangeWait Exchange = "chainflow.wait"
)

// WaitQueueName возвращает имя wait-очереди топика.
func WaitQueueName(topic string) string {
	return topic + ".wait"
}

// SetupTopology создаёт обменники и очереди для набора топиков.
// Повторные вызовы безопасны: declare идемпотентен.
//
// На каждый топик — рабочая очередь (bind к ExchangeWorkflow) и
// wait-очередь (bind к ExchangeWait, DLX обратно в ExchangeWorkflow).
func SetupTopology(ctx context.Context, conn *Connection, topics []string) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}

		for _, topic := range topics {
			if err := declareTopicQueues(ch, topic); err != nil {
				return err
			}
		}

		return nil
	})
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeWorkflow, "direct"},
		{ExchangeWait, "direct"},
		{ExchangeCommand, "fanout"},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	return nil
}

// declareTopicQueues создаёт рабочую и wait-очередь одного топика.
func declareTopicQueues(ch *amqp.Channel, topic string) error {
	// Рабочая очередь.
	if _, err := ch.QueueDeclare(
		topic, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	); err != nil {
		return fmt.Errorf("declare queue %s: %w", topic, err)
	}

	if err := ch.QueueBind(topic, topic, string(ExchangeWorkflow), false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", topic, err)
	}

	// Wait-очередь: TTL задаётся per-message (Expiration при публикации),
	// по истечении сообщение возвращается в рабочую очередь.
	waitArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeWorkflow),
		"x-dead-letter-routing-key": topic,
	}

	waitQueue := WaitQueueName(topic)
	if _, err := ch.QueueDeclare(waitQueue, true, false, false, false, waitArgs); err != nil {
		return fmt.Errorf("declare wait queue %s: %w", waitQueue, err)
	}

	if err := ch.QueueBind(waitQueue, topic, string(ExchangeWait), false, nil); err != nil {
		return fmt.Errorf("bind wait queue %s: %w", waitQueue, err)
	}

	return nil
}
