package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrCircularDependency — blueprint заказа содержит цикл или ссылку
	// на task чужого заказа. Ничего не записано.
	ErrCircularDependency = errors.New("circular dependency")

	// ErrOrderNotFound — заказ не найден.
	ErrOrderNotFound = errors.New("order not found")

	// ErrTaskNotFound — task не найден.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskNotFailed — повтор запрошен для task не в статусе FAILED.
	ErrTaskNotFailed = errors.New("task is not failed")

	// ErrUnknownOutcome — результат выполнения не COMPLETED и не FAILED.
	ErrUnknownOutcome = errors.New("unknown task outcome")
)
