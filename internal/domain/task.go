package domain

import (
	"time"
)

// DefaultMaxRetries — сколько повторов разрешено task по умолчанию.
const DefaultMaxRetries = 3

// Коды ошибок task.
const (
	// FailureCodeExecution — executor вернул ошибку.
	FailureCodeExecution = "EXECUTION_FAILURE"

	// FailureCodeVisibilityTimeout — task завис в RUNNING дольше visibility timeout.
	FailureCodeVisibilityTimeout = "VISIBILITY_TIMEOUT"
)

// TaskType — вид работы, выполняемой внешним backend'ом.
type TaskType string

const (
	TaskTypeValidate  TaskType = "VALIDATE"
	TaskTypeProvision TaskType = "PROVISION"
	TaskTypeBilling   TaskType = "BILLING"
)

// TaskError — ошибка последней попытки.
type TaskError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// TaskResult — результат успешного выполнения.
type TaskResult struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
}

// Task — отдельная единица работы внутри заказа.
//
// Tasks создаются одной пачкой при переводе заказа в IN_PROGRESS
// и никогда не удаляются.
type Task struct {
	// TaskID — {orderId}-TASK-{n}, n — позиция в blueprint (с 1).
	TaskID string `json:"task_id"`

	// OrderID — заказ-владелец.
	OrderID string `json:"order_id"`

	// TaskType — VALIDATE, PROVISION или BILLING.
	TaskType TaskType `json:"task_type"`

	// Status — текущий статус.
	Status TaskStatus `json:"status"`

	// DependsOn — TaskID задач того же заказа, которые должны быть COMPLETED.
	DependsOn []string `json:"depends_on"`

	// Position — порядок создания внутри заказа (с 1).
	Position int `json:"position"`

	// RetryCount — сколько повторов уже сделано. Не превышает MaxRetries.
	RetryCount int `json:"retry_count"`

	// MaxRetries — лимит повторов.
	MaxRetries int `json:"max_retries"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`

	// Error — ошибка последней попытки. Сбрасывается при retry.
	Error *TaskError `json:"error,omitempty"`

	// Result — результат executor'а.
	Result *TaskResult `json:"result,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewTask создаёт task. Без зависимостей — сразу READY, иначе PENDING.
func NewTask(taskID, orderID string, taskType TaskType, dependsOn []string, position int, now time.Time) Task {
	deps := make([]string, len(dependsOn))
	copy(deps, dependsOn)

	status := TaskStatusPending
	if len(deps) == 0 {
		status = TaskStatusReady
	}

	return Task{
		TaskID:     taskID,
		OrderID:    orderID,
		TaskType:   taskType,
		Status:     status,
		DependsOn:  deps,
		Position:   position,
		MaxRetries: DefaultMaxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Duration возвращает продолжительность последней попытки.
func (t *Task) Duration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	switch {
	case t.CompletedAt != nil:
		return t.CompletedAt.Sub(*t.StartedAt)
	case t.FailedAt != nil:
		return t.FailedAt.Sub(*t.StartedAt)
	default:
		return 0
	}
}

// DependenciesSatisfied проверяет, что все зависимости входят в completed.
func (t *Task) DependenciesSatisfied(completed map[string]bool) bool {
	for _, dep := range t.DependsOn {
		if !completed[dep] {
			return false
		}
	}
	return true
}

// MarkReady переводит task из PENDING в READY.
func (t *Task) MarkReady(now time.Time) {
	t.Status = TaskStatusReady
	t.UpdatedAt = now
}

// MarkRunning переводит task в статус RUNNING.
func (t *Task) MarkRunning(now time.Time) {
	t.Status = TaskStatusRunning
	t.StartedAt = &now
	t.UpdatedAt = now
}

// MarkCompleted переводит task в статус COMPLETED с результатом.
func (t *Task) MarkCompleted(data map[string]any, now time.Time) {
	t.Status = TaskStatusCompleted
	t.CompletedAt = &now
	t.Error = nil
	t.Result = &TaskResult{Success: true, Data: data}
	t.UpdatedAt = now
}

// MarkFailed переводит task в статус FAILED с ошибкой.
func (t *Task) MarkFailed(message, code string, now time.Time) {
	t.Status = TaskStatusFailed
	t.FailedAt = &now
	t.Error = &TaskError{Message: message, Code: code}
	t.UpdatedAt = now
}

// CanRetry проверяет, можно ли сделать ещё одну попытку.
func (t *Task) CanRetry() bool {
	return t.RetryCount < t.MaxRetries
}

// ResetForRetry возвращает task в READY для повторной попытки.
// Увеличивает RetryCount, очищает ошибку и FailedAt.
func (t *Task) ResetForRetry(now time.Time) {
	t.RetryCount++
	t.Status = TaskStatusReady
	t.Error = nil
	t.FailedAt = nil
	t.UpdatedAt = now
}

// ErrorMessage возвращает текст ошибки или пустую строку.
func (t *Task) ErrorMessage() string {
	if t.Error == nil {
		return ""
	}
	return t.Error.Message
}

// Clone возвращает глубокую копию task.
func (t Task) Clone() Task {
	c := t
	c.DependsOn = append([]string(nil), t.DependsOn...)
	if t.Error != nil {
		e := *t.Error
		c.Error = &e
	}
	if t.Result != nil {
		r := *t.Result
		if t.Result.Data != nil {
			r.Data = make(map[string]any, len(t.Result.Data))
			for k, v := range t.Result.Data {
				r.Data[k] = v
			}
		}
		c.Result = &r
	}
	return c
}
