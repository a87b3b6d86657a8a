package orchestrator

import (
	"context"
	"fmt"

	"github.com/shaiso/Orderflow/internal/domain"
	"github.com/shaiso/Orderflow/internal/telemetry"
)

// TransitionOrder переводит заказ в статус to под блокировкой заказа.
//
// Недопустимый переход возвращает ошибку KindConflict, заказ не меняется.
// После сохранения отправляется order:updated.
func (o *Orchestrator) TransitionOrder(ctx context.Context, orderID string, to domain.OrderStatus, reason string) (*domain.Order, error) {
	unlock, err := o.lockOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	order, err := o.getOrder(ctx, orderID)
	if err != nil {
		unlock()
		return nil, err
	}

	if err := o.transitionLocked(ctx, order, to, reason); err != nil {
		unlock()
		return nil, err
	}
	unlock()

	o.notifier.OrderUpdated(ctx, orderID)

	return order, nil
}

// transitionLocked меняет статус заказа и сохраняет его.
// Вызывается под блокировкой заказа.
func (o *Orchestrator) transitionLocked(ctx context.Context, order *domain.Order, to domain.OrderStatus, reason string) error {
	from := order.Status

	if err := order.TransitionTo(to, reason, o.now()); err != nil {
		return err
	}

	if err := o.orders.Update(ctx, order); err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	if to.IsTerminal() {
		telemetry.OrdersFinished.WithLabelValues(string(to)).Inc()
	}

	telemetry.WithOrderID(o.logger, order.OrderID).Info("order status changed",
		"from", from,
		"to", to,
		"reason", order.FailureReason,
	)

	return nil
}
