package orchestrator

import (
	"context"

	"github.com/shaiso/Orderflow/internal/domain"
	"github.com/shaiso/Orderflow/internal/mq"
)

// handleTaskCompleted обрабатывает сообщение из tasks.completed.
//
// Битый payload и неизвестные task/заказ уходят в DLQ: повтор их не исправит.
// Остальные ошибки возвращают сообщение в очередь.
func (o *Orchestrator) handleTaskCompleted(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.TaskCompletedPayload](&delivery.Message)
	if err != nil {
		o.logger.Error("failed to parse task.completed payload", "error", err)
		return mq.Permanent(err)
	}

	o.logger.Debug("received task.completed event",
		"task_id", payload.TaskID,
		"order_id", payload.OrderID,
		"task_type", payload.TaskType,
		"status", payload.Status,
	)

	if err := o.HandleTaskOutcome(ctx, payload.TaskID, payload.Status); err != nil {
		switch domain.KindOf(err) {
		case domain.KindNotFound, domain.KindValidation:
			return mq.Permanent(err)
		}
		return err
	}

	return nil
}
