package orchestrator

import (
	"context"
	"time"

	"github.com/shaiso/Orderflow/internal/domain"
	"github.com/shaiso/Orderflow/internal/engine"
)

// OrderStore — хранилище заказов.
type OrderStore interface {
	GetByID(ctx context.Context, orderID string) (*domain.Order, error)
	Update(ctx context.Context, order *domain.Order) error
}

// TaskStore — хранилище tasks.
type TaskStore interface {
	// CreateBatch сохраняет все tasks атомарно: либо все, либо ни одного.
	CreateBatch(ctx context.Context, tasks []domain.Task) error
	GetByID(ctx context.Context, taskID string) (*domain.Task, error)
	// ListByOrderID возвращает tasks заказа в порядке создания.
	ListByOrderID(ctx context.Context, orderID string) ([]domain.Task, error)
	// ListStale возвращает tasks в статусе status, не обновлявшиеся с before.
	ListStale(ctx context.Context, status domain.TaskStatus, before time.Time, limit int) ([]domain.Task, error)
	Update(ctx context.Context, task *domain.Task) error
}

// Dispatcher отдаёт tasks на выполнение.
type Dispatcher interface {
	Enqueue(ctx context.Context, taskID string) error
	EnqueueDelayed(ctx context.Context, taskID string, delay time.Duration) error
}

// Blueprinter строит шаги заказа по его типу.
type Blueprinter interface {
	Generate(orderID string, orderType domain.OrderType) ([]engine.Step, error)
}

// Clock возвращает текущее время.
type Clock func() time.Time
