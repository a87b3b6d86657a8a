package engine

import (
	"fmt"

	"github.com/shaiso/Orderflow/internal/domain"
)

// Допустимые типы tasks.
var validTaskTypes = map[domain.TaskType]bool{
	domain.TaskTypeValidate:  true,
	domain.TaskTypeProvision: true,
	domain.TaskTypeBilling:   true,
}

// ValidateSteps выполняет полную валидацию шагов blueprint.
//
// Проверяет:
// - Наличие шагов
// - Уникальность ID шагов
// - Корректность типов
// - Отсутствие self-dependency
// - Валидность зависимостей и отсутствие циклов (делегируется Graph)
func ValidateSteps(steps []Step) error {
	if len(steps) == 0 {
		return ErrEmptySteps
	}

	stepIDs := make(map[string]bool, len(steps))

	for i := range steps {
		if err := validateStep(&steps[i], stepIDs); err != nil {
			return err
		}
	}

	return BuildGraph(NodesFromSteps(steps)).Validate()
}

// validateStep валидирует один шаг.
// stepIDs — уже встреченные ID шагов (для проверки уникальности).
func validateStep(step *Step, stepIDs map[string]bool) error {
	if step.TaskID == "" {
		return NewValidationError("", "task_id", "step has empty ID", ErrEmptyStepID)
	}

	if stepIDs[step.TaskID] {
		return NewValidationError(step.TaskID, "task_id",
			fmt.Sprintf("duplicate step ID: %s", step.TaskID), ErrDuplicateStepID)
	}
	stepIDs[step.TaskID] = true

	if !IsValidTaskType(step.TaskType) {
		return NewValidationError(step.TaskID, "task_type",
			fmt.Sprintf("unknown task type: %s", step.TaskType), ErrUnknownTaskType)
	}

	for _, dep := range step.DependsOn {
		if dep == step.TaskID {
			return NewValidationError(step.TaskID, "depends_on",
				"step depends on itself", ErrSelfDependency)
		}
	}

	return nil
}

// IsValidTaskType проверяет, является ли тип task допустимым.
func IsValidTaskType(taskType domain.TaskType) bool {
	return validTaskTypes[taskType]
}
