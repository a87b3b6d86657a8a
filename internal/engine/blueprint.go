package engine

import (
	"fmt"

	"github.com/shaiso/Orderflow/internal/domain"
)

// Step — шаг blueprint с уже вычисленными ID.
type Step struct {
	// TaskID — {orderId}-TASK-{n}.
	TaskID string

	// TaskType — тип работы.
	TaskType domain.TaskType

	// DependsOn — TaskID шагов того же blueprint.
	DependsOn []string
}

// template — шаблон шага: тип и типы, от которых он зависит.
type template struct {
	taskType  domain.TaskType
	dependsOn []domain.TaskType
}

var (
	installTemplate = []template{
		{taskType: domain.TaskTypeValidate},
		{taskType: domain.TaskTypeProvision, dependsOn: []domain.TaskType{domain.TaskTypeValidate}},
		{taskType: domain.TaskTypeBilling, dependsOn: []domain.TaskType{domain.TaskTypeProvision}},
	}

	twoStepTemplate = []template{
		{taskType: domain.TaskTypeValidate},
		{taskType: domain.TaskTypeBilling, dependsOn: []domain.TaskType{domain.TaskTypeValidate}},
	}

	templates = map[domain.OrderType][]template{
		domain.OrderTypeInstall:    installTemplate,
		domain.OrderTypeChange:     twoStepTemplate,
		domain.OrderTypeDisconnect: twoStepTemplate,
	}
)

// Blueprints генерирует шаги по типу заказа.
type Blueprints struct {
	// Strict — неизвестный тип заказа возвращает ErrUnknownOrderType.
	// Иначе используется двухшаговый шаблон VALIDATE → BILLING.
	Strict bool
}

// TaskID возвращает ID task по ID заказа и позиции (с 1).
func TaskID(orderID string, position int) string {
	return fmt.Sprintf("%s-TASK-%d", orderID, position)
}

// HasTemplate сообщает, есть ли собственный шаблон у типа заказа.
func HasTemplate(orderType domain.OrderType) bool {
	_, ok := templates[orderType]
	return ok
}

// Generate возвращает шаги blueprint в порядке шаблона.
//
// Результат детерминирован: одинаковые orderID и orderType дают
// одинаковые ID и зависимости.
func (b Blueprints) Generate(orderID string, orderType domain.OrderType) ([]Step, error) {
	tmpl, ok := templates[orderType]
	if !ok {
		if b.Strict {
			return nil, fmt.Errorf("%w: %q", ErrUnknownOrderType, orderType)
		}
		tmpl = twoStepTemplate
	}
	return expand(orderID, tmpl)
}

// expand превращает шаблон в шаги, разрешая зависимости по позиции типа в шаблоне.
func expand(orderID string, tmpl []template) ([]Step, error) {
	positions := make(map[domain.TaskType]int, len(tmpl))
	for i, t := range tmpl {
		positions[t.taskType] = i + 1
	}

	steps := make([]Step, 0, len(tmpl))
	for i, t := range tmpl {
		deps := make([]string, 0, len(t.dependsOn))
		for _, depType := range t.dependsOn {
			pos, ok := positions[depType]
			if !ok {
				return nil, NewValidationError(TaskID(orderID, i+1), "depends_on",
					fmt.Sprintf("depends on task type not in blueprint: %s", depType), ErrMissingDependency)
			}
			deps = append(deps, TaskID(orderID, pos))
		}

		steps = append(steps, Step{
			TaskID:    TaskID(orderID, i+1),
			TaskType:  t.taskType,
			DependsOn: deps,
		})
	}

	return steps, nil
}
