package domain

import "fmt"

// OrderStatus — статус заказа.
//
// Жизненный цикл:
//
//	CREATED → IN_PROGRESS → COMPLETED
//	                      ↘ FAILED
type OrderStatus string

const (
	// OrderStatusCreated — заказ принят, tasks ещё не созданы.
	OrderStatusCreated OrderStatus = "CREATED"

	// OrderStatusInProgress — заказ в работе, tasks материализованы.
	OrderStatusInProgress OrderStatus = "IN_PROGRESS"

	// OrderStatusCompleted — все tasks заказа завершены.
	OrderStatusCompleted OrderStatus = "COMPLETED"

	// OrderStatusFailed — один из tasks исчерпал попытки.
	OrderStatusFailed OrderStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный.
func (s OrderStatus) IsTerminal() bool {
	return IsTerminal(s)
}

// IsValid проверяет, что статус входит в закрытый набор.
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusCreated, OrderStatusInProgress, OrderStatusCompleted, OrderStatusFailed:
		return true
	default:
		return false
	}
}

// ParseOrderStatus парсит строку в OrderStatus.
// Для неизвестного значения возвращает ошибку валидации.
func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(s)
	if !status.IsValid() {
		return "", NewError(KindValidation, fmt.Sprintf("invalid order status: %q", s), ErrInvalidStatus)
	}
	return status, nil
}

// TaskStatus — статус task.
//
// Жизненный цикл:
//
//	PENDING → READY → RUNNING → COMPLETED
//	                          ↘ FAILED (пока RetryCount < MaxRetries — обратно в READY)
type TaskStatus string

const (
	// TaskStatusPending — ждёт завершения зависимостей.
	TaskStatusPending TaskStatus = "PENDING"

	// TaskStatusReady — зависимости выполнены, можно отдавать в очередь.
	TaskStatusReady TaskStatus = "READY"

	// TaskStatusRunning — выполняется executor'ом.
	TaskStatusRunning TaskStatus = "RUNNING"

	// TaskStatusCompleted — успешно завершён.
	TaskStatusCompleted TaskStatus = "COMPLETED"

	// TaskStatusFailed — завершился с ошибкой.
	TaskStatusFailed TaskStatus = "FAILED"
)

// IsRunnable возвращает true, если task можно передать executor'у.
// RUNNING допускается для повторной доставки после падения воркера.
func (s TaskStatus) IsRunnable() bool {
	return s == TaskStatusReady || s == TaskStatusRunning
}

// IsValid проверяет, что статус входит в закрытый набор.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusReady, TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}
