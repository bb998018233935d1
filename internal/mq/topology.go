package mq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeOperations Exchange = "convoy.operations"
	ExchangeTicks      Exchange = "convoy.ticks"
	ExchangeDLQ        Exchange = "convoy.dlq"
)

// Queues — имена очередей.
const (
	QueueOperationsStarted  Queue = "operations.started"
	QueueOperationsFinished Queue = "operations.finished"

	// QueueTicksStep — рабочая очередь тиков; её потребляет движок.
	QueueTicksStep Queue = "ticks.step"

	// QueueTicksDelay — delay-очередь без потребителей: сообщения
	// лежат в ней до истечения per-message TTL и перекладываются
	// брокером в ticks.step через dead-letter routing.
	QueueTicksDelay Queue = "ticks.delay"

	QueueDLQTicks Queue = "dlq.ticks"
)

// Routing keys.
const (
	RoutingKeyStarted  RoutingKey = "started"
	RoutingKeyFinished RoutingKey = "finished"
	RoutingKeyStep     RoutingKey = "step"
	RoutingKeyDelay    RoutingKey = "delay"
	RoutingKeyDLQTicks RoutingKey = "ticks"
)

func SetupTopology(conn *Connection) error {
	return conn.WithChannel(func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		return bindQueues(ch)
	})
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeOperations, "direct"},
		{ExchangeTicks, "direct"},
		{ExchangeDLQ, "direct"},
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

// declareQueues создаёт очереди.
func declareQueues(ch *amqp.Channel) error {
	// Тики с исчерпанными retry уходят в DLQ.
	tickArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQTicks),
	}

	// Delay-очередь: истёкший TTL перекладывает тик в рабочую очередь.
	delayArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeTicks),
		"x-dead-letter-routing-key": string(RoutingKeyStep),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		{QueueOperationsStarted, nil},
		{QueueOperationsFinished, nil},
		{QueueTicksStep, tickArgs},
		{QueueTicksDelay, delayArgs},
		{QueueDLQTicks, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}

	return nil
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueOperationsStarted, RoutingKeyStarted, ExchangeOperations},
		{QueueOperationsFinished, RoutingKeyFinished, ExchangeOperations},
		{QueueTicksStep, RoutingKeyStep, ExchangeTicks},
		{QueueTicksDelay, RoutingKeyDelay, ExchangeTicks},
		{QueueDLQTicks, RoutingKeyDLQTicks, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}
