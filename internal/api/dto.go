package api

import (
	"time"

	"github.com/shaiso/Orderflow/internal/domain"
	"github.com/shaiso/Orderflow/internal/orchestrator"
)

// Order DTOs

// CreateOrderRequest — запрос на создание заказа.
type CreateOrderRequest struct {
	OrderType    domain.OrderType `json:"order_type"`
	CustomerID   string           `json:"customer_id"`
	CustomerName string           `json:"customer_name,omitempty"`
	Services     []domain.Service `json:"services"`
}

// TransitionRequest — запрос на смену статуса заказа.
type TransitionRequest struct {
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// OrderResponse — ответ с заказом.
type OrderResponse struct {
	OrderID       string                   `json:"order_id"`
	OrderType     domain.OrderType         `json:"order_type"`
	CustomerID    string                   `json:"customer_id"`
	CustomerName  string                   `json:"customer_name,omitempty"`
	Services      []domain.Service         `json:"services"`
	Status        domain.OrderStatus       `json:"status"`
	StateHistory  []domain.StateTransition `json:"state_history"`
	CompletedAt   *time.Time               `json:"completed_at,omitempty"`
	FailedAt      *time.Time               `json:"failed_at,omitempty"`
	FailureReason string                   `json:"failure_reason,omitempty"`
	CreatedAt     time.Time                `json:"created_at"`
	UpdatedAt     time.Time                `json:"updated_at"`

	// Progress — только в детальном ответе.
	Progress *ProgressResponse `json:"progress,omitempty"`
}

// ProgressResponse — статистика tasks заказа.
type ProgressResponse struct {
	orchestrator.Progress
	Percent int `json:"percent"`
}

// OrderFromDomain конвертирует domain.Order в OrderResponse.
func OrderFromDomain(o domain.Order) OrderResponse {
	return OrderResponse{
		OrderID:       o.OrderID,
		OrderType:     o.OrderType,
		CustomerID:    o.CustomerID,
		CustomerName:  o.CustomerName,
		Services:      o.Services,
		Status:        o.Status,
		StateHistory:  o.StateHistory,
		CompletedAt:   o.CompletedAt,
		FailedAt:      o.FailedAt,
		FailureReason: o.FailureReason,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

// ProgressFromTasks считает прогресс по tasks заказа.
func ProgressFromTasks(tasks []domain.Task) *ProgressResponse {
	p := orchestrator.Summarize(tasks)
	return &ProgressResponse{Progress: p, Percent: p.Percent()}
}

// Task DTOs

// TaskResponse — ответ с task.
type TaskResponse struct {
	TaskID      string             `json:"task_id"`
	OrderID     string             `json:"order_id"`
	TaskType    domain.TaskType    `json:"task_type"`
	Status      domain.TaskStatus  `json:"status"`
	DependsOn   []string           `json:"depends_on"`
	RetryCount  int                `json:"retry_count"`
	MaxRetries  int                `json:"max_retries"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
	FailedAt    *time.Time         `json:"failed_at,omitempty"`
	Error       *domain.TaskError  `json:"error,omitempty"`
	Result      *domain.TaskResult `json:"result,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// TaskFromDomain конвертирует domain.Task в TaskResponse.
func TaskFromDomain(t domain.Task) TaskResponse {
	deps := t.DependsOn
	if deps == nil {
		deps = []string{}
	}
	return TaskResponse{
		TaskID:      t.TaskID,
		OrderID:     t.OrderID,
		TaskType:    t.TaskType,
		Status:      t.Status,
		DependsOn:   deps,
		RetryCount:  t.RetryCount,
		MaxRetries:  t.MaxRetries,
		StartedAt:   t.StartedAt,
		CompletedAt: t.CompletedAt,
		FailedAt:    t.FailedAt,
		Error:       t.Error,
		Result:      t.Result,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// TasksFromDomain конвертирует список tasks.
func TasksFromDomain(tasks []domain.Task) []TaskResponse {
	result := make([]TaskResponse, len(tasks))
	for i, t := range tasks {
		result[i] = TaskFromDomain(t)
	}
	return result
}
