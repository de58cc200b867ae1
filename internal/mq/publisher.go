package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeTaskReady     MessageType = "task.ready"
	MessageTypeTaskCompleted MessageType = "task.completed"
)

// Publisher публикует сообщения в RabbitMQ.
//
// AMQP канал не допускает конкурентную публикацию, поэтому Publish
// сериализуется мьютексом.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger

	mu sync.Mutex
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

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// TaskReadyPayload — payload для сообщения о готовой задаче.
type TaskReadyPayload struct {
	TaskID uuid.UUID `json:"task_id"`
	JobID  uuid.UUID `json:"job_id"`
	Kind   string    `json:"kind"`
}

// TaskCompletedPayload — payload для сообщения о завершённой задаче.
type TaskCompletedPayload struct {
	TaskID  uuid.UUID `json:"task_id"`
	JobID   uuid.UUID `json:"job_id"`
	Kind    string    `json:"kind"`
	State   string    `json:"state"` // SUCCESS или FAILURE
	Error   string    `json:"error,omitempty"`
	Attempt int       `json:"attempt"`
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
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

// PublishTaskReady публикует событие о задаче, готовой к выполнению.
// Потребитель: Worker.
func (p *Publisher) PublishTaskReady(ctx context.Context, payload TaskReadyPayload) error {
	return p.PublishJSON(ctx, ExchangeTasks, RoutingKeyReady, MessageTypeTaskReady, payload)
}

// PublishTaskCompleted публикует событие о завершённой задаче.
// Потребители: listener'ы QueueBackend (будят ожидающих Await).
func (p *Publisher) PublishTaskCompleted(ctx context.Context, payload TaskCompletedPayload) error {
	return p.PublishJSON(ctx, ExchangeTasks, RoutingKeyCompleted, MessageTypeTaskCompleted, payload)
}

// PublishJSON публикует произвольный JSON payload.
func (p *Publisher) PublishJSON(ctx context.Context, exchange Exchange, routingKey RoutingKey, msgType MessageType, payload any) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, exchange, routingKey, msg)
}
