package domain

import (
	"fmt"
	"strings"
	"time"
)

// MaxStateHistory — сколько последних переходов хранит заказ.
const MaxStateHistory = 5

// DefaultFailureReason — причина по умолчанию при ручном переводе в FAILED.
const DefaultFailureReason = "No reason provided"

// OrderType — тип заказа. Определяет blueprint tasks.
type OrderType string

const (
	OrderTypeInstall    OrderType = "INSTALL"
	OrderTypeChange     OrderType = "CHANGE"
	OrderTypeDisconnect OrderType = "DISCONNECT"
)

// IsValid проверяет, что тип входит в закрытый набор.
func (t OrderType) IsValid() bool {
	switch t {
	case OrderTypeInstall, OrderTypeChange, OrderTypeDisconnect:
		return true
	default:
		return false
	}
}

// Service — запрошенная услуга (например, "internet" со скоростью "100M").
type Service struct {
	Type  string `json:"type"`
	Speed string `json:"speed,omitempty"`
}

// StateTransition — запись в истории статусов заказа.
type StateTransition struct {
	From      OrderStatus `json:"from"`
	To        OrderStatus `json:"to"`
	Timestamp time.Time   `json:"timestamp"`
}

// Order — заказ клиента на подключение/изменение/отключение услуг.
//
// Order создаётся в статусе CREATED и дальше меняется только через TransitionTo,
// который сверяется с таблицей переходов (см. CanTransition).
type Order struct {
	// OrderID — стабильный человекочитаемый идентификатор (ORD-...).
	OrderID string `json:"order_id"`

	// OrderType — INSTALL, CHANGE или DISCONNECT.
	OrderType OrderType `json:"order_type"`

	// CustomerID — идентификатор клиента.
	CustomerID string `json:"customer_id"`

	// CustomerName — имя клиента (опционально).
	CustomerName string `json:"customer_name,omitempty"`

	// Services — запрошенные услуги, в порядке запроса.
	Services []Service `json:"services"`

	// Status — текущий статус.
	Status OrderStatus `json:"status"`

	// StateHistory — последние MaxStateHistory переходов, старые в начале.
	StateHistory []StateTransition `json:"state_history"`

	// CompletedAt — заполнено только в статусе COMPLETED.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// FailedAt — заполнено только в статусе FAILED.
	FailedAt *time.Time `json:"failed_at,omitempty"`

	// FailureReason — заполнено только в статусе FAILED.
	FailureReason string `json:"failure_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewOrder создаёт заказ в статусе CREATED.
func NewOrder(orderID string, orderType OrderType, customerID, customerName string, services []Service, now time.Time) *Order {
	svc := make([]Service, len(services))
	copy(svc, services)

	return &Order{
		OrderID:      orderID,
		OrderType:    orderType,
		CustomerID:   customerID,
		CustomerName: customerName,
		Services:     svc,
		Status:       OrderStatusCreated,
		StateHistory: []StateTransition{{From: "", To: OrderStatusCreated, Timestamp: now}},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Validate проверяет обязательные поля заказа.
func (o *Order) Validate() error {
	if !o.OrderType.IsValid() {
		return Errorf(KindValidation, ErrInvalidOrderType, "invalid order type: %q", o.OrderType)
	}
	if strings.TrimSpace(o.CustomerID) == "" {
		return NewError(KindValidation, "customer_id is required", ErrMissingField)
	}
	if len(o.Services) == 0 {
		return NewError(KindValidation, "at least one service is required", ErrMissingField)
	}
	for i, s := range o.Services {
		if strings.TrimSpace(s.Type) == "" {
			return Errorf(KindValidation, ErrMissingField, "services[%d].type is required", i)
		}
	}
	return nil
}

// IsFinished возвращает true, если заказ в финальном статусе.
func (o *Order) IsFinished() bool {
	return o.Status.IsTerminal()
}

// TransitionTo переводит заказ в статус to.
//
// Запрещённый переход возвращает ошибку KindConflict и не трогает заказ.
// reason используется только для FAILED; пустая причина заменяется на DefaultFailureReason.
func (o *Order) TransitionTo(to OrderStatus, reason string, now time.Time) error {
	if !CanTransition(o.Status, to) {
		return Errorf(KindConflict, ErrInvalidTransition, "Invalid transition: %s → %s", o.Status, to)
	}

	from := o.Status
	o.Status = to
	o.recordTransition(from, to, now)

	switch to {
	case OrderStatusCompleted:
		o.CompletedAt = &now
		o.FailedAt = nil
		o.FailureReason = ""
	case OrderStatusFailed:
		if reason == "" {
			reason = DefaultFailureReason
		}
		o.FailedAt = &now
		o.FailureReason = reason
		o.CompletedAt = nil
	}

	o.UpdatedAt = now
	return nil
}

// recordTransition добавляет запись в историю, отбрасывая самые старые.
func (o *Order) recordTransition(from, to OrderStatus, now time.Time) {
	// Время в истории не убывает, даже если часы сдвинулись назад
	if n := len(o.StateHistory); n > 0 && now.Before(o.StateHistory[n-1].Timestamp) {
		now = o.StateHistory[n-1].Timestamp
	}

	history := append(o.StateHistory, StateTransition{From: from, To: to, Timestamp: now})
	if len(history) > MaxStateHistory {
		history = history[len(history)-MaxStateHistory:]
	}
	o.StateHistory = append([]StateTransition(nil), history...)
}

// String возвращает краткое описание заказа для логов.
func (o *Order) String() string {
	return fmt.Sprintf("%s(%s, %s)", o.OrderID, o.OrderType, o.Status)
}
