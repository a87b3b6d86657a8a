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
	"github.com/shaiso/Orderflow/internal/domain"
	"github.com/shaiso/Orderflow/internal/notify"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeTaskReady     MessageType = "task.ready"
	MessageTypeTaskCompleted MessageType = "task.completed"
	MessageTypeEvent         MessageType = "event"
)

// Publisher публикует сообщения в RabbitMQ.
//
// Publisher реализует orchestrator.Dispatcher (Enqueue, EnqueueDelayed)
// и notify.Notifier (события в orderflow.events).
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
	TaskID string `json:"task_id"`
}

// TaskCompletedPayload — payload для сообщения о результате выполнения.
type TaskCompletedPayload struct {
	TaskID   string            `json:"task_id"`
	OrderID  string            `json:"order_id"`
	TaskType domain.TaskType   `json:"task_type"`
	Status   domain.TaskStatus `json:"status"` // COMPLETED или FAILED
	Error    string            `json:"error,omitempty"`
	Attempt  int               `json:"attempt"`
}

// newMessage создаёт сообщение с новым ID.
func newMessage(msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	return p.publish(ctx, exchange, routingKey, msg, "")
}

// publish публикует сообщение; expiration — per-message TTL в миллисекундах.
func (p *Publisher) publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message, expiration string) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

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
				Type:         string(msg.Type),
				Expiration:   expiration,
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

// Enqueue ставит task в очередь на выполнение.
// Потребитель: Worker.
func (p *Publisher) Enqueue(ctx context.Context, taskID string) error {
	msg := newMessage(MessageTypeTaskReady, TaskReadyPayload{TaskID: taskID})
	return p.Publish(ctx, ExchangeTasks, RoutingKeyReady, msg)
}

// EnqueueDelayed ставит task в tasks.delayed; по истечении delay
// RabbitMQ перекладывает сообщение в tasks.ready.
func (p *Publisher) EnqueueDelayed(ctx context.Context, taskID string, delay time.Duration) error {
	if delay <= 0 {
		return p.Enqueue(ctx, taskID)
	}

	msg := newMessage(MessageTypeTaskReady, TaskReadyPayload{TaskID: taskID})
	expiration := strconv.FormatInt(delay.Milliseconds(), 10)
	return p.publish(ctx, ExchangeTasks, RoutingKeyDelayed, msg, expiration)
}

// PublishTaskCompleted публикует результат выполнения task.
// Потребитель: Orchestrator.
func (p *Publisher) PublishTaskCompleted(ctx context.Context, payload TaskCompletedPayload) error {
	return p.Publish(ctx, ExchangeTasks, RoutingKeyCompleted, newMessage(MessageTypeTaskCompleted, payload))
}

// PublishEvent публикует событие в fanout exchange orderflow.events.
// Потребитель: API (WebSocket hub).
func (p *Publisher) PublishEvent(ctx context.Context, e notify.Event) error {
	return p.Publish(ctx, ExchangeEvents, "", newMessage(MessageTypeEvent, e))
}

// OrderUpdated реализует notify.Notifier.
func (p *Publisher) OrderUpdated(ctx context.Context, orderID string) {
	p.notify(ctx, notify.OrderEvent(orderID))
}

// TaskUpdated реализует notify.Notifier.
func (p *Publisher) TaskUpdated(ctx context.Context, taskID, orderID string, status domain.TaskStatus) {
	p.notify(ctx, notify.TaskEvent(taskID, orderID, status))
}

// notify публикует событие; ошибки только логируются.
func (p *Publisher) notify(ctx context.Context, e notify.Event) {
	if err := p.PublishEvent(context.WithoutCancel(ctx), e); err != nil {
		p.logger.Warn("failed to publish event",
			"event", e.Event,
			"order_id", e.Data.OrderID,
			"error", err,
		)
	}
}
