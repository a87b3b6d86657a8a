package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shaiso/Orderflow/internal/domain"
)

// DefaultKafkaTopic — топик событий по умолчанию.
const DefaultKafkaTopic = "orderflow.events"

// messageWriter — часть kafka.Writer, которая нужна KafkaNotifier.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// defaultKafkaBuffer — событий в очереди на отправку; при переполнении новые отбрасываются.
const defaultKafkaBuffer = 1024

// KafkaNotifier публикует события в Kafka. Ключ сообщения — order_id,
// поэтому события одного заказа попадают в одну партицию по порядку.
//
// OrderUpdated и TaskUpdated не ждут брокер: событие кладётся в буфер,
// отправляет его фоновая горутина.
type KafkaNotifier struct {
	writer  messageWriter
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan kafka.Message
	done   chan struct{}
}

// NewKafkaWriter создаёт kafka.Writer для списка брокеров через запятую.
func NewKafkaWriter(brokers, topic string) *kafka.Writer {
	if topic == "" {
		topic = DefaultKafkaTopic
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(splitBrokers(brokers)...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
}

// NewKafkaNotifier создаёт KafkaNotifier поверх writer и запускает отправку.
// Close останавливает её.
func NewKafkaNotifier(writer messageWriter, logger *slog.Logger) *KafkaNotifier {
	return newKafkaNotifier(writer, defaultKafkaBuffer, logger)
}

func newKafkaNotifier(writer messageWriter, buffer int, logger *slog.Logger) *KafkaNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	k := &KafkaNotifier{
		writer:  writer,
		timeout: 5 * time.Second,
		logger:  logger.With("component", "kafka-notifier"),
		queue:   make(chan kafka.Message, buffer),
		done:    make(chan struct{}),
	}
	go k.run()
	return k
}

// OrderUpdated реализует Notifier.
func (k *KafkaNotifier) OrderUpdated(_ context.Context, orderID string) {
	k.publish(OrderEvent(orderID))
}

// TaskUpdated реализует Notifier.
func (k *KafkaNotifier) TaskUpdated(_ context.Context, taskID, orderID string, status domain.TaskStatus) {
	k.publish(TaskEvent(taskID, orderID, status))
}

// Close отправляет накопленные события и закрывает writer.
func (k *KafkaNotifier) Close() error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil
	}
	k.closed = true
	close(k.queue)
	k.mu.Unlock()

	<-k.done
	return k.writer.Close()
}

func (k *KafkaNotifier) publish(e Event) {
	value, err := json.Marshal(e)
	if err != nil {
		k.logger.Error("failed to marshal event", "event", e.Event, "error", err)
		return
	}

	msg := kafka.Message{
		Key:   []byte(e.Data.OrderID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(e.Event)},
		},
	}

	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.closed {
		return
	}

	select {
	case k.queue <- msg:
	default:
		k.logger.Warn("kafka buffer full, dropping event",
			"event", e.Event,
			"order_id", e.Data.OrderID,
		)
	}
}

// run отправляет события по одному, сохраняя порядок.
func (k *KafkaNotifier) run() {
	defer close(k.done)

	for msg := range k.queue {
		ctx, cancel := context.WithTimeout(context.Background(), k.timeout)
		err := k.writer.WriteMessages(ctx, msg)
		cancel()
		if err != nil {
			k.logger.Warn("failed to publish event to kafka",
				"order_id", string(msg.Key),
				"error", err,
			)
		}
	}
}

func splitBrokers(brokers string) []string {
	parts := strings.Split(brokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
