package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Orderflow/internal/domain"
	"github.com/shaiso/Orderflow/internal/notify"
	"github.com/shaiso/Orderflow/internal/repo"
	"github.com/shaiso/Orderflow/internal/telemetry"
)

// OrderStore — хранилище заказов.
type OrderStore interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, orderID string) (*domain.Order, error)
	List(ctx context.Context, filter repo.OrderFilter) ([]domain.Order, error)
}

// TaskStore — чтение tasks.
type TaskStore interface {
	ListByOrderID(ctx context.Context, orderID string) ([]domain.Task, error)
	List(ctx context.Context, filter repo.TaskFilter) ([]domain.Task, error)
}

// Engine — операции оркестратора, нужные сервису.
// Реализуется orchestrator.Orchestrator.
type Engine interface {
	TransitionOrder(ctx context.Context, orderID string, to domain.OrderStatus, reason string) (*domain.Order, error)
	MaterializeTasks(ctx context.Context, orderID string, orderType domain.OrderType) ([]domain.Task, error)
	DispatchReady(ctx context.Context, orderID string) (int, error)
}

// CreateInput — входные данные для создания заказа.
type CreateInput struct {
	OrderType    domain.OrderType
	CustomerID   string
	CustomerName string
	Services     []domain.Service
}

// Service — прикладной слой над заказами: создание, переходы, чтение.
type Service struct {
	orders   OrderStore
	tasks    TaskStore
	engine   Engine
	ids      IDGenerator
	notifier notify.Notifier
	now      func() time.Time
	logger   *slog.Logger
}

// Config — конфигурация Service.
type Config struct {
	Orders OrderStore
	Tasks  TaskStore
	Engine Engine

	// IDs — генератор ID заказов (default: NewULIDGenerator()).
	IDs IDGenerator

	// Notifier — получатель order:updated при создании (default: notify.Nop).
	Notifier notify.Notifier

	// Clock — источник времени (default: time.Now).
	Clock func() time.Time

	Logger *slog.Logger
}

// NewService создаёт Service.
func NewService(cfg Config) *Service {
	s := &Service{
		orders:   cfg.Orders,
		tasks:    cfg.Tasks,
		engine:   cfg.Engine,
		ids:      cfg.IDs,
		notifier: cfg.Notifier,
		now:      cfg.Clock,
		logger:   cfg.Logger,
	}
	if s.ids == nil {
		s.ids = NewULIDGenerator()
	}
	if s.notifier == nil {
		s.notifier = notify.Nop{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "orders")
	return s
}

// Create создаёт заказ в статусе CREATED. Tasks не создаются.
//
// Некорректный ввод возвращает ошибку KindValidation до любой записи.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Order, error) {
	order := domain.NewOrder(s.ids.NewOrderID(), in.OrderType, in.CustomerID, in.CustomerName, in.Services, s.now())
	if err := order.Validate(); err != nil {
		return nil, err
	}

	if err := s.orders.Create(ctx, order); err != nil {
		if errors.Is(err, repo.ErrAlreadyExists) {
			return nil, domain.Errorf(domain.KindConflict, ErrOrderExists, "Order already exists: %s", order.OrderID)
		}
		return nil, fmt.Errorf("create order: %w", err)
	}

	telemetry.WithOrderID(s.logger, order.OrderID).Info("order created",
		"order_type", order.OrderType,
		"customer_id", order.CustomerID,
	)
	s.notifier.OrderUpdated(ctx, order.OrderID)

	return order, nil
}

// Transition переводит заказ в статус to.
//
// Переход в IN_PROGRESS материализует tasks по blueprint и отдаёт
// готовые на выполнение. Ошибка материализации возвращается, но
// заказ остаётся в IN_PROGRESS.
func (s *Service) Transition(ctx context.Context, orderID string, to domain.OrderStatus, reason string) (*domain.Order, error) {
	if !to.IsValid() {
		return nil, domain.Errorf(domain.KindValidation, domain.ErrInvalidStatus, "invalid order status: %q", to)
	}

	order, err := s.engine.TransitionOrder(ctx, orderID, to, reason)
	if err != nil {
		return nil, err
	}

	if to != domain.OrderStatusInProgress {
		return order, nil
	}

	logger := telemetry.WithOrderID(s.logger, orderID)

	if _, err := s.engine.MaterializeTasks(ctx, orderID, order.OrderType); err != nil {
		logger.Error("failed to materialize tasks", "error", err)
		return order, err
	}

	n, err := s.engine.DispatchReady(ctx, orderID)
	if err != nil {
		logger.Error("failed to dispatch ready tasks", "error", err)
		return order, err
	}
	logger.Debug("dispatched ready tasks", "count", n)

	return order, nil
}

// TransitionString — Transition со статусом в виде строки.
func (s *Service) TransitionString(ctx context.Context, orderID, status, reason string) (*domain.Order, error) {
	to, err := domain.ParseOrderStatus(status)
	if err != nil {
		return nil, err
	}
	return s.Transition(ctx, orderID, to, reason)
}

// Get возвращает заказ по ID.
func (s *Service) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, domain.Errorf(domain.KindNotFound, ErrOrderNotFound, "Order not found: %s", orderID)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

// List возвращает заказы с фильтрацией.
func (s *Service) List(ctx context.Context, filter repo.OrderFilter) ([]domain.Order, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, domain.Errorf(domain.KindValidation, domain.ErrInvalidStatus, "invalid order status: %q", filter.Status)
	}
	orders, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// ListTasks возвращает tasks заказа в порядке создания.
// Для неизвестного заказа — KindNotFound.
func (s *Service) ListTasks(ctx context.Context, orderID string) ([]domain.Task, error) {
	if _, err := s.Get(ctx, orderID); err != nil {
		return nil, err
	}

	tasks, err := s.tasks.ListByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// SearchTasks возвращает tasks по фильтру (все заказы, если OrderID пуст).
func (s *Service) SearchTasks(ctx context.Context, filter repo.TaskFilter) ([]domain.Task, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, domain.Errorf(domain.KindValidation, domain.ErrInvalidStatus, "invalid task status: %q", filter.Status)
	}
	tasks, err := s.tasks.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}
