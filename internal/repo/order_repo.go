package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Orderflow/internal/domain"
)

// OrderFilter — параметры фильтрации заказов.
type OrderFilter struct {
	Status     domain.OrderStatus
	CustomerID string
	Limit      int
	Offset     int
}

// OrderRepo — репозиторий для работы с заказами.
type OrderRepo struct {
	pool *pgxpool.Pool
}

// NewOrderRepo создаёт новый OrderRepo.
func NewOrderRepo(pool *pgxpool.Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

const orderColumns = `
	order_id, order_type, customer_id, customer_name, services, status, state_history,
	completed_at, failed_at, failure_reason, created_at, updated_at
`

// Create создаёт новый заказ.
func (r *OrderRepo) Create(ctx context.Context, order *domain.Order) error {
	servicesJSON, historyJSON, err := marshalOrderJSON(order)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO orders (order_id, order_type, customer_id, customer_name, services, status,
		                    state_history, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.pool.Exec(ctx, query,
		order.OrderID,
		order.OrderType,
		order.CustomerID,
		nullString(order.CustomerName),
		servicesJSON,
		order.Status,
		historyJSON,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// GetByID возвращает заказ по order_id.
func (r *OrderRepo) GetByID(ctx context.Context, orderID string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_id = $1`
	return scanOrder(r.pool.QueryRow(ctx, query, orderID))
}

// List возвращает список заказов с фильтрацией, новые первыми.
func (r *OrderRepo) List(ctx context.Context, filter OrderFilter) ([]domain.Order, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}

	query := `SELECT ` + orderColumns + `
		FROM orders
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::text IS NULL OR customer_id = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(string(filter.Status)),
		nullString(filter.CustomerID),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

// Update сохраняет статус, историю и поля завершения заказа.
func (r *OrderRepo) Update(ctx context.Context, order *domain.Order) error {
	_, historyJSON, err := marshalOrderJSON(order)
	if err != nil {
		return err
	}

	query := `
		UPDATE orders
		SET status = $2, state_history = $3, completed_at = $4, failed_at = $5,
		    failure_reason = $6, updated_at = $7
		WHERE order_id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		order.OrderID,
		order.Status,
		historyJSON,
		order.CompletedAt,
		order.FailedAt,
		nullString(order.FailureReason),
		order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Helpers ---

func marshalOrderJSON(order *domain.Order) (services, history []byte, err error) {
	services, err = json.Marshal(order.Services)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal services: %w", err)
	}
	history, err = json.Marshal(order.StateHistory)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal state history: %w", err)
	}
	return services, history, nil
}

// scanOrder сканирует одну строку в Order. pgx.Rows тоже реализует pgx.Row.
func scanOrder(row pgx.Row) (*domain.Order, error) {
	var order domain.Order
	var servicesJSON, historyJSON []byte
	var customerName, failureReason *string

	err := row.Scan(
		&order.OrderID,
		&order.OrderType,
		&order.CustomerID,
		&customerName,
		&servicesJSON,
		&order.Status,
		&historyJSON,
		&order.CompletedAt,
		&order.FailedAt,
		&failureReason,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}

	if err := json.Unmarshal(servicesJSON, &order.Services); err != nil {
		return nil, fmt.Errorf("unmarshal services: %w", err)
	}
	if err := json.Unmarshal(historyJSON, &order.StateHistory); err != nil {
		return nil, fmt.Errorf("unmarshal state history: %w", err)
	}
	if customerName != nil {
		order.CustomerName = *customerName
	}
	if failureReason != nil {
		order.FailureReason = *failureReason
	}

	return &order, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
