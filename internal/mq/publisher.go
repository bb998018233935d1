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

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeOperationStarted  MessageType = "operation.started"
	MessageTypeStepTick          MessageType = "step.tick"
	MessageTypeOperationFinished MessageType = "operation.finished"
)

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// OperationID дублирует операцию из payload для логов
	// и трассировки без распаковки payload.
	OperationID string `json:"operation_id,omitempty"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// OperationStartedPayload — payload события о новой операции.
type OperationStartedPayload struct {
	OperationID uuid.UUID `json:"operation_id"`
}

// StepTickPayload — payload тика процесса.
type StepTickPayload struct {
	OperationID uuid.UUID `json:"operation_id"`
	InstanceID  uuid.UUID `json:"instance_id"`
}

// OperationFinishedPayload — payload события о завершении операции.
type OperationFinishedPayload struct {
	OperationID uuid.UUID `json:"operation_id"`
	State       string    `json:"state"`
	Error       string    `json:"error,omitempty"`
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	return p.publish(ctx, exchange, routingKey, msg, 0)
}

func (p *Publisher) publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message, ttl time.Duration) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
		MessageId:    msg.ID,
		Timestamp:    msg.Timestamp,
		Body:         body,
	}
	if ttl > 0 {
		publishing.Expiration = strconv.FormatInt(ttl.Milliseconds(), 10)
	}

	return p.conn.WithChannel(func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),
			string(routingKey),
			false,
			false,
			publishing,
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}

// PublishOperationStarted публикует событие о новой операции.
// Потребитель: Engine.
func (p *Publisher) PublishOperationStarted(ctx context.Context, operationID uuid.UUID) error {
	msg := &Message{
		ID:          uuid.New().String(),
		Type:        MessageTypeOperationStarted,
		OperationID: operationID.String(),
		Payload:     OperationStartedPayload{OperationID: operationID},
		Timestamp:   time.Now(),
	}

	return p.Publish(ctx, ExchangeOperations, RoutingKeyStarted, msg)
}

// PublishStepTick публикует немедленный тик процесса.
// Потребитель: Engine.
func (p *Publisher) PublishStepTick(ctx context.Context, operationID, instanceID uuid.UUID) error {
	msg := &Message{
		ID:          uuid.New().String(),
		Type:        MessageTypeStepTick,
		OperationID: operationID.String(),
		Payload:     StepTickPayload{OperationID: operationID, InstanceID: instanceID},
		Timestamp:   time.Now(),
	}

	return p.Publish(ctx, ExchangeTicks, RoutingKeyStep, msg)
}

// PublishDelayedStepTick публикует тик, который вернётся движку
// через delay: сообщение уходит в delay-очередь с per-message TTL
// и по его истечении перекладывается брокером в рабочую очередь.
func (p *Publisher) PublishDelayedStepTick(ctx context.Context, operationID, instanceID uuid.UUID, delay time.Duration) error {
	msg := &Message{
		ID:          uuid.New().String(),
		Type:        MessageTypeStepTick,
		OperationID: operationID.String(),
		Payload:     StepTickPayload{OperationID: operationID, InstanceID: instanceID},
		Timestamp:   time.Now(),
	}

	return p.publish(ctx, ExchangeTicks, RoutingKeyDelay, msg, delay)
}

// PublishOperationFinished публикует событие о завершении операции.
func (p *Publisher) PublishOperationFinished(ctx context.Context, payload OperationFinishedPayload) error {
	msg := &Message{
		ID:          uuid.New().String(),
		Type:        MessageTypeOperationFinished,
		OperationID: payload.OperationID.String(),
		Payload:     payload,
		Timestamp:   time.Now(),
	}

	return p.Publish(ctx, ExchangeOperations, RoutingKeyFinished, msg)
}
