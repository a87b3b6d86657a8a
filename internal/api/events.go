package api

import (
	"context"
	"log/slog"

	"github.com/shaiso/Orderflow/internal/mq"
	"github.com/shaiso/Orderflow/internal/notify"
)

// EventRelay пересылает события из exchange orderflow.events в Notifier
// (обычно notify.Hub): так клиенты /ws видят изменения, сделанные
// оркестратором и воркерами в других процессах.
type EventRelay struct {
	consumer *mq.Consumer
	sink     notify.Notifier
	logger   *slog.Logger
}

// NewEventRelay создаёт EventRelay. Каждый экземпляр получает
// собственную эксклюзивную очередь.
func NewEventRelay(conn *mq.Connection, sink notify.Notifier, logger *slog.Logger) *EventRelay {
	if logger == nil {
		logger = slog.Default()
	}
	r := &EventRelay{sink: sink, logger: logger.With("component", "event-relay")}
	r.consumer = mq.NewConsumer(conn, r.logger, mq.ConsumerConfig{
		Setup:   mq.DeclareEventsQueue,
		Handler: r.handle,
	})
	return r
}

// Start блокируется до отмены ctx или Stop.
func (r *EventRelay) Start(ctx context.Context) error {
	return r.consumer.Start(ctx)
}

// Stop останавливает relay.
func (r *EventRelay) Stop() {
	r.consumer.Stop()
}

func (r *EventRelay) handle(ctx context.Context, delivery *mq.Delivery) error {
	event, err := mq.ParsePayload[notify.Event](&delivery.Message)
	if err != nil {
		r.logger.Warn("dropping malformed event", "error", err)
		return mq.Permanent(err)
	}

	notify.Dispatch(ctx, r.sink, event)
	return nil
}
