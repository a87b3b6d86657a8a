package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"
)

// errDeliveriesClosed — канал доставки закрыт брокером.
var errDeliveriesClosed = errors.New("deliveries channel closed")

// Handler — функция обработки сообщения.
// Возвращает error, если обработка не удалась (сообщение будет nack).
// Ошибка, обёрнутая в Permanent, отправляет сообщение в DLQ без повтора.
type Handler func(ctx context.Context, msg *Delivery) error

// permanentError помечает ошибку как неисправимую.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent оборачивает err: сообщение не будет возвращено в очередь.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent проверяет, помечена ли ошибка как Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Delivery — доставленное сообщение.
type Delivery struct {
	// Message — распарсенное сообщение.
	Message Message

	// Raw — сырое AMQP сообщение.
	Raw amqp.Delivery
}

// Consumer потребляет сообщения из очереди RabbitMQ.
type Consumer struct {
	conn        *Connection
	logger      *slog.Logger
	queue       string
	setup       func(ch *amqp.Channel) (string, error)
	handler     Handler
	prefetch    int
	concurrency int

	cancelFunc context.CancelFunc
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	// Queue — имя очереди. Игнорируется, если задан Setup.
	Queue string

	// Setup объявляет очередь на новом канале и возвращает её имя.
	// Вызывается перед каждым подключением consumer.
	Setup func(ch *amqp.Channel) (string, error)

	// Handler — обработчик сообщений.
	Handler Handler

	// Prefetch — количество сообщений для предварительной загрузки.
	Prefetch int

	// Concurrency — число горутин-обработчиков.
	Concurrency int
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}

	concurrency := max(cfg.Concurrency, 1)
	prefetch := max(cfg.Prefetch, concurrency)

	return &Consumer{
		conn:        conn,
		logger:      logger,
		queue:       cfg.Queue,
		setup:       cfg.Setup,
		handler:     cfg.Handler,
		prefetch:    prefetch,
		concurrency: concurrency,
	}
}

// Start запускает потребление сообщений. Блокируется до отмены ctx или Stop.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel

	return c.consume(ctx)
}

// consume — основной цикл потребления.
func (c *Consumer) consume(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Подписываемся заранее, чтобы не пропустить переподключение
		reconnected := c.conn.ReconnectNotify()

		deliveries, queue, err := c.setupConsume()
		if err != nil {
			c.logger.Error("failed to setup consume", "queue", c.queue, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-reconnected:
				c.logger.Info("reconnected, restarting consumer", "queue", c.queue)
				continue
			}
		}

		c.logger.Info("consumer started", "queue", queue, "concurrency", c.concurrency)

		if err := c.processDeliveries(ctx, queue, deliveries); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("deliveries channel closed, reconnecting", "queue", queue)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-reconnected:
				continue
			}
		}
	}
}

// setupConsume настраивает канал и начинает потребление.
func (c *Consumer) setupConsume() (<-chan amqp.Delivery, string, error) {
	ch := c.conn.Channel()
	if ch == nil || ch.IsClosed() {
		return nil, "", ErrNoChannel
	}

	queue := c.queue
	if c.setup != nil {
		name, err := c.setup(ch)
		if err != nil {
			return nil, "", fmt.Errorf("setup queue: %w", err)
		}
		queue = name
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, "", fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		queue, // queue
		"",    // consumer tag (auto-generated)
		false, // auto-ack (мы ack вручную)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return nil, "", fmt.Errorf("consume %s: %w", queue, err)
	}

	return deliveries, queue, nil
}

// processDeliveries раздаёт сообщения concurrency горутинам.
func (c *Consumer) processDeliveries(ctx context.Context, queue string, deliveries <-chan amqp.Delivery) error {
	g, ctx := errgroup.WithContext(ctx)

	for range c.concurrency {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()

				case raw, ok := <-deliveries:
					if !ok {
						return errDeliveriesClosed
					}
					c.handleDelivery(ctx, queue, raw)
				}
			}
		})
	}

	return g.Wait()
}

// handleDelivery обрабатывает одно сообщение.
func (c *Consumer) handleDelivery(ctx context.Context, queue string, raw amqp.Delivery) {
	var msg Message
	if err := json.Unmarshal(raw.Body, &msg); err != nil {
		c.logger.Error("failed to unmarshal message",
			"queue", queue,
			"error", err,
			"body", string(raw.Body),
		)
		// Некорректное сообщение — отправляем в DLQ
		_ = raw.Nack(false, false)
		return
	}

	c.logger.Debug("received message",
		"queue", queue,
		"message_id", msg.ID,
		"type", msg.Type,
	)

	err := c.handler(ctx, &Delivery{Message: msg, Raw: raw})
	switch {
	case err == nil:
		_ = raw.Ack(false)

	case IsPermanent(err):
		c.logger.Error("handler failed permanently",
			"queue", queue,
			"message_id", msg.ID,
			"type", msg.Type,
			"error", err,
		)
		_ = raw.Nack(false, false)

	default:
		c.logger.Warn("handler failed, requeueing",
			"queue", queue,
			"message_id", msg.ID,
			"type", msg.Type,
			"error", err,
		)
		_ = raw.Nack(false, true)
	}
}

// Stop останавливает consumer.
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
}

// ParsePayload парсит payload сообщения в указанный тип.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T

	// После json.Unmarshal в Message payload — map[string]any
	payloadBytes, err := json.Marshal(msg.Payload)
	if err != nil {
		return result, fmt.Errorf("marshal payload: %w", err)
	}

	if err := json.Unmarshal(payloadBytes, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}

	return result, nil
}
