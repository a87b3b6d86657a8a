// Package notify доставляет наблюдателям события об изменениях заказов и tasks.
//
// Доставка fire-and-forget: ошибки транспорта логируются и не
// возвращаются в оркестрацию. Реализации:
//   - Hub           — WebSocket клиенты API
//   - KafkaNotifier — топик Kafka для внешних потребителей
//   - Multi         — рассылка в несколько Notifier
//   - Nop           — ничего не делает
//
// mq.Publisher тоже реализует Notifier (fanout exchange orderflow.events).
package notify

import (
	"context"

	"github.com/shaiso/Orderflow/internal/domain"
)

// Имена событий.
const (
	EventOrderUpdated = "order:updated"
	EventTaskUpdated  = "task:updated"
)

// Notifier получает уведомления об изменениях.
type Notifier interface {
	OrderUpdated(ctx context.Context, orderID string)
	TaskUpdated(ctx context.Context, taskID, orderID string, status domain.TaskStatus)
}

// EventData — полезная нагрузка события.
type EventData struct {
	OrderID string            `json:"orderId"`
	TaskID  string            `json:"taskId,omitempty"`
	Status  domain.TaskStatus `json:"status,omitempty"`
}

// Event — событие в том виде, в каком оно уходит наружу.
type Event struct {
	Event string    `json:"event"`
	Data  EventData `json:"data"`
}

// OrderEvent создаёт событие order:updated.
func OrderEvent(orderID string) Event {
	return Event{Event: EventOrderUpdated, Data: EventData{OrderID: orderID}}
}

// TaskEvent создаёт событие task:updated.
func TaskEvent(taskID, orderID string, status domain.TaskStatus) Event {
	return Event{Event: EventTaskUpdated, Data: EventData{OrderID: orderID, TaskID: taskID, Status: status}}
}

// Dispatch передаёт событие в Notifier.
func Dispatch(ctx context.Context, n Notifier, e Event) {
	switch e.Event {
	case EventOrderUpdated:
		n.OrderUpdated(ctx, e.Data.OrderID)
	case EventTaskUpdated:
		n.TaskUpdated(ctx, e.Data.TaskID, e.Data.OrderID, e.Data.Status)
	}
}

// Nop — Notifier, который ничего не делает.
type Nop struct{}

func (Nop) OrderUpdated(context.Context, string)                            {}
func (Nop) TaskUpdated(context.Context, string, string, domain.TaskStatus) {}

// Multi рассылает уведомления всем Notifier по порядку.
type Multi []Notifier

// OrderUpdated реализует Notifier.
func (m Multi) OrderUpdated(ctx context.Context, orderID string) {
	for _, n := range m {
		if n != nil {
			n.OrderUpdated(ctx, orderID)
		}
	}
}

// TaskUpdated реализует Notifier.
func (m Multi) TaskUpdated(ctx context.Context, taskID, orderID string, status domain.TaskStatus) {
	for _, n := range m {
		if n != nil {
			n.TaskUpdated(ctx, taskID, orderID, status)
		}
	}
}

// Recorder запоминает события. Используется в тестах.
type Recorder struct {
	events chan Event
}

// NewRecorder создаёт Recorder с буфером на size событий.
func NewRecorder(size int) *Recorder {
	return &Recorder{events: make(chan Event, size)}
}

// OrderUpdated реализует Notifier.
func (r *Recorder) OrderUpdated(_ context.Context, orderID string) {
	r.push(OrderEvent(orderID))
}

// TaskUpdated реализует Notifier.
func (r *Recorder) TaskUpdated(_ context.Context, taskID, orderID string, status domain.TaskStatus) {
	r.push(TaskEvent(taskID, orderID, status))
}

func (r *Recorder) push(e Event) {
	select {
	case r.events <- e:
	default:
	}
}

// Events возвращает накопленные события и очищает буфер.
func (r *Recorder) Events() []Event {
	var out []Event
	for {
		select {
		case e := <-r.events:
			out = append(out, e)
		default:
			return out
		}
	}
}
