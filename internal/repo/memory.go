package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shaiso/Orderflow/internal/domain"
)

// MemoryOrderRepo — хранилище заказов в памяти.
//
// Используется standalone-режимом и тестами. Возвращает копии,
// чтобы вызывающий не мутировал сохранённое состояние.
type MemoryOrderRepo struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
	seq    map[string]int // порядок вставки
}

// NewMemoryOrderRepo создаёт пустой MemoryOrderRepo.
func NewMemoryOrderRepo() *MemoryOrderRepo {
	return &MemoryOrderRepo{
		orders: make(map[string]domain.Order),
		seq:    make(map[string]int),
	}
}

// Create создаёт новый заказ.
func (r *MemoryOrderRepo) Create(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.OrderID]; exists {
		return ErrAlreadyExists
	}
	r.orders[order.OrderID] = order.Clone()
	r.seq[order.OrderID] = len(r.seq)
	return nil
}

// GetByID возвращает заказ по order_id.
func (r *MemoryOrderRepo) GetByID(_ context.Context, orderID string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	c := order.Clone()
	return &c, nil
}

// List возвращает список заказов с фильтрацией, новые первыми.
func (r *MemoryOrderRepo) List(_ context.Context, filter OrderFilter) ([]domain.Order, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]domain.Order, 0, len(r.orders))
	for _, o := range r.orders {
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if filter.CustomerID != "" && o.CustomerID != filter.CustomerID {
			continue
		}
		matched = append(matched, o.Clone())
	}

	sort.Slice(matched, func(i, j int) bool {
		return r.seq[matched[i].OrderID] > r.seq[matched[j].OrderID]
	})

	return paginate(matched, filter.Limit, filter.Offset), nil
}

// Update сохраняет заказ.
func (r *MemoryOrderRepo) Update(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[order.OrderID]; !ok {
		return ErrNotFound
	}
	r.orders[order.OrderID] = order.Clone()
	return nil
}

// MemoryTaskRepo — хранилище tasks в памяти.
type MemoryTaskRepo struct {
	mu      sync.RWMutex
	tasks   map[string]domain.Task
	byOrder map[string][]string // orderID → taskID в порядке создания

	// writes — количество операций записи (для проверок идемпотентности в тестах).
	writes int
}

// NewMemoryTaskRepo создаёт пустой MemoryTaskRepo.
func NewMemoryTaskRepo() *MemoryTaskRepo {
	return &MemoryTaskRepo{
		tasks:   make(map[string]domain.Task),
		byOrder: make(map[string][]string),
	}
}

// CreateBatch создаёт все tasks атомарно: при конфликте не сохраняется ни одна.
func (r *MemoryTaskRepo) CreateBatch(_ context.Context, tasks []domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if _, exists := r.tasks[t.TaskID]; exists || seen[t.TaskID] {
			return ErrAlreadyExists
		}
		seen[t.TaskID] = true
	}

	for _, t := range tasks {
		r.tasks[t.TaskID] = t.Clone()
		r.byOrder[t.OrderID] = append(r.byOrder[t.OrderID], t.TaskID)
	}
	r.writes++
	return nil
}

// GetByID возвращает task по task_id.
func (r *MemoryTaskRepo) GetByID(_ context.Context, taskID string) (*domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, ok := r.tasks[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	c := task.Clone()
	return &c, nil
}

// ListByOrderID возвращает все tasks заказа в порядке создания.
func (r *MemoryTaskRepo) ListByOrderID(_ context.Context, orderID string) ([]domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byOrder[orderID]
	tasks := make([]domain.Task, 0, len(ids))
	for _, id := range ids {
		tasks = append(tasks, r.tasks[id].Clone())
	}
	return tasks, nil
}

// List возвращает tasks с фильтрацией.
func (r *MemoryTaskRepo) List(_ context.Context, filter TaskFilter) ([]domain.Task, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]domain.Task, 0)
	for _, t := range r.tasks {
		if filter.OrderID != "" && t.OrderID != filter.OrderID {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		matched = append(matched, t.Clone())
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		if matched[i].OrderID != matched[j].OrderID {
			return matched[i].OrderID < matched[j].OrderID
		}
		return matched[i].Position < matched[j].Position
	})

	return paginate(matched, filter.Limit, filter.Offset), nil
}

// ListStale возвращает tasks в статусе status, не обновлявшиеся с before.
func (r *MemoryTaskRepo) ListStale(_ context.Context, status domain.TaskStatus, before time.Time, limit int) ([]domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stale := make([]domain.Task, 0)
	for _, t := range r.tasks {
		if t.Status == status && t.UpdatedAt.Before(before) {
			stale = append(stale, t.Clone())
		}
	}

	sort.Slice(stale, func(i, j int) bool {
		return stale[i].UpdatedAt.Before(stale[j].UpdatedAt)
	})

	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

// Update обновляет task.
func (r *MemoryTaskRepo) Update(_ context.Context, task *domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[task.TaskID]; !ok {
		return ErrNotFound
	}
	r.tasks[task.TaskID] = task.Clone()
	r.writes++
	return nil
}

// Writes возвращает количество выполненных записей.
func (r *MemoryTaskRepo) Writes() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.writes
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return items[:0]
	}
	items = items[offset:]
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}
