package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/shaiso/Orderflow/internal/domain"
)

// Executor выполняет работу task во внешнем backend'е.
//
// Успех — Result с данными. Любая ошибка означает неудачную попытку;
// её текст сохраняется в task.
type Executor interface {
	Execute(ctx context.Context, task *domain.Task) (*Result, error)
}

// ExecutorFunc — функция, реализующая Executor.
type ExecutorFunc func(ctx context.Context, task *domain.Task) (*Result, error)

// Execute реализует Executor.
func (f ExecutorFunc) Execute(ctx context.Context, task *domain.Task) (*Result, error) {
	return f(ctx, task)
}

// Result — результат успешного выполнения.
type Result struct {
	// Data — данные от backend'а, сохраняются в task.Result.
	Data map[string]any
}

// Registry — реестр executor'ов по типу task.
type Registry struct {
	mu        sync.RWMutex
	executors map[domain.TaskType]Executor
	fallback  Executor
}

// NewRegistry создаёт реестр. fallback используется для типов без
// собственного executor'а; nil — такие tasks падают с ErrNoExecutor.
func NewRegistry(fallback Executor) *Registry {
	return &Registry{
		executors: make(map[domain.TaskType]Executor),
		fallback:  fallback,
	}
}

// Register добавляет executor для типа task.
func (r *Registry) Register(taskType domain.TaskType, executor Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[taskType] = executor
}

// Get возвращает executor для типа task.
func (r *Registry) Get(taskType domain.TaskType) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if executor, ok := r.executors[taskType]; ok {
		return executor, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoExecutor, taskType)
}
