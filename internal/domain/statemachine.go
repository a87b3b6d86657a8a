package domain

// orderTransitions — допустимые переходы статуса заказа.
// Таблица полная: чего здесь нет, то запрещено (включая переходы в себя).
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusCreated:    {OrderStatusInProgress},
	OrderStatusInProgress: {OrderStatusCompleted, OrderStatusFailed},
	OrderStatusCompleted:  {},
	OrderStatusFailed:     {},
}

// CanTransition проверяет, разрешён ли переход from → to.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStates возвращает статусы, в которые можно перейти из current.
func NextStates(current OrderStatus) []OrderStatus {
	next := orderTransitions[current]
	out := make([]OrderStatus, len(next))
	copy(out, next)
	return out
}

// IsTerminal возвращает true для COMPLETED и FAILED.
func IsTerminal(status OrderStatus) bool {
	return status == OrderStatusCompleted || status == OrderStatusFailed
}
