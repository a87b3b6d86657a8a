package engine

import (
	"errors"
	"fmt"
)

// Ошибки валидации blueprint.
var (
	// ErrEmptySteps — blueprint не содержит шагов.
	ErrEmptySteps = errors.New("blueprint has no steps")

	// ErrEmptyStepID — шаг не имеет ID.
	ErrEmptyStepID = errors.New("step has empty ID")

	// ErrDuplicateStepID — несколько шагов с одинаковым ID.
	ErrDuplicateStepID = errors.New("duplicate step ID")

	// ErrUnknownTaskType — тип task вне закрытого набора.
	ErrUnknownTaskType = errors.New("unknown task type")

	// ErrMissingDependency — шаг зависит от несуществующего шага.
	ErrMissingDependency = errors.New("step depends on unknown step")

	// ErrCyclicDependency — обнаружен цикл в зависимостях.
	ErrCyclicDependency = errors.New("circular dependency detected")

	// ErrSelfDependency — шаг зависит от самого себя. Частный случай цикла.
	ErrSelfDependency = fmt.Errorf("step depends on itself: %w", ErrCyclicDependency)
)

// ErrUnknownOrderType — для типа заказа нет blueprint (только в строгом режиме).
var ErrUnknownOrderType = errors.New("no blueprint for order type")

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	StepID  string // ID шага, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.StepID != "" {
		return "step " + e.StepID + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(stepID, field, message string, err error) *ValidationError {
	return &ValidationError{
		StepID:  stepID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
