package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Dagon/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы событий жизненного цикла workflow.
// Тип совпадает с routing key в обменнике dagon.events.
const (
	MessageTypeWorkflowCreated MessageType = "workflow.created"
	MessageTypeTaskAdded       MessageType = "task.added"
	MessageTypeTaskStatus      MessageType = "task.status"
	MessageTypeTaskUpdated     MessageType = "task.updated"
	MessageTypeTaskDependency  MessageType = "task.dependency"
)

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage создаёт сообщение с новым ID.
func NewMessage(typ MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Type:      typ,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// WorkflowCreatedPayload — регистрация workflow (ID заполнен).
type WorkflowCreatedPayload struct {
	Workflow domain.WorkflowInfo `json:"workflow"`
}

// TaskAddedPayload — описание задачи.
type TaskAddedPayload struct {
	WorkflowID string          `json:"workflow_id"`
	Task       domain.TaskInfo `json:"task"`
}

// TaskStatusPayload — переход статуса задачи.
type TaskStatusPayload struct {
	WorkflowID string            `json:"workflow_id"`
	Task       string            `json:"task"`
	Status     domain.TaskStatus `json:"status"`
}

// TaskUpdatedPayload — изменение атрибута задачи.
type TaskUpdatedPayload struct {
	WorkflowID string `json:"workflow_id"`
	Task       string `json:"task"`
	Attribute  string `json:"attribute"`
	Value      string `json:"value"`
}

// TaskDependencyPayload — ребро task → dependency.
type TaskDependencyPayload struct {
	WorkflowID string `json:"workflow_id"`
	Task       string `json:"task"`
	Dependency string `json:"dependency"`
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,              // mandatory
			false,              // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Type:         string(msg.Type),
				Body:         body,
			},
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

// PublishEvent публикует событие в dagon.events с routing key, равным типу.
func (p *Publisher) PublishEvent(ctx context.Context, typ MessageType, payload any) error {
	return p.Publish(ctx, ExchangeEvents, RoutingKey(typ), NewMessage(typ, payload))
}
