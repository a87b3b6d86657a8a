package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Orderflow/internal/domain"
)

// TaskFilter — параметры фильтрации tasks.
type TaskFilter struct {
	OrderID string
	Status  domain.TaskStatus
	Limit   int
	Offset  int
}

// TaskRepo — репозиторий для работы с tasks.
type TaskRepo struct {
	pool *pgxpool.Pool
}

// NewTaskRepo создаёт новый TaskRepo.
func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

const taskColumns = `
	task_id, order_id, task_type, status, depends_on, position, retry_count, max_retries,
	started_at, completed_at, failed_at, error, result, created_at, updated_at
`

// CreateBatch создаёт все tasks заказа в одной транзакции.
// Либо сохраняются все, либо ни одной.
func (r *TaskRepo) CreateBatch(ctx context.Context, tasks []domain.Task) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO tasks (task_id, order_id, task_type, status, depends_on, position,
		                   retry_count, max_retries, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	batch := &pgx.Batch{}
	for i := range tasks {
		t := &tasks[i]
		batch.Queue(query,
			t.TaskID,
			t.OrderID,
			t.TaskType,
			t.Status,
			dependsOnArray(t.DependsOn),
			t.Position,
			t.RetryCount,
			t.MaxRetries,
			t.CreatedAt,
			t.UpdatedAt,
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert tasks: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByID возвращает task по task_id.
func (r *TaskRepo) GetByID(ctx context.Context, taskID string) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE task_id = $1`
	return scanTask(r.pool.QueryRow(ctx, query, taskID))
}

// ListByOrderID возвращает все tasks заказа в порядке создания.
func (r *TaskRepo) ListByOrderID(ctx context.Context, orderID string) ([]domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE order_id = $1 ORDER BY position ASC`
	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("list tasks by order_id: %w", err)
	}
	return collectTasks(rows)
}

// List возвращает tasks с фильтрацией.
func (r *TaskRepo) List(ctx context.Context, filter TaskFilter) ([]domain.Task, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100
	}

	query := `SELECT ` + taskColumns + `
		FROM tasks
		WHERE ($1::text IS NULL OR order_id = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at ASC, position ASC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(filter.OrderID),
		nullString(string(filter.Status)),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return collectTasks(rows)
}

// ListStale возвращает tasks в статусе status, не обновлявшиеся с before.
func (r *TaskRepo) ListStale(ctx context.Context, status domain.TaskStatus, before time.Time, limit int) ([]domain.Task, error) {
	query := `SELECT ` + taskColumns + `
		FROM tasks
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at ASC
		LIMIT $3
	`
	rows, err := r.pool.Query(ctx, query, status, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale tasks: %w", err)
	}
	return collectTasks(rows)
}

// Update обновляет task.
func (r *TaskRepo) Update(ctx context.Context, task *domain.Task) error {
	errorJSON, err := marshalNullable(task.Error)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}
	resultJSON, err := marshalNullable(task.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	query := `
		UPDATE tasks
		SET status = $2, retry_count = $3, started_at = $4, completed_at = $5,
		    failed_at = $6, error = $7, result = $8, updated_at = $9
		WHERE task_id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		task.TaskID,
		task.Status,
		task.RetryCount,
		task.StartedAt,
		task.CompletedAt,
		task.FailedAt,
		errorJSON,
		resultJSON,
		task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Helpers ---

func collectTasks(rows pgx.Rows) ([]domain.Task, error) {
	defer rows.Close()

	tasks := make([]domain.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

func scanTask(row pgx.Row) (*domain.Task, error) {
	var task domain.Task
	var errorJSON, resultJSON []byte

	err := row.Scan(
		&task.TaskID,
		&task.OrderID,
		&task.TaskType,
		&task.Status,
		&task.DependsOn,
		&task.Position,
		&task.RetryCount,
		&task.MaxRetries,
		&task.StartedAt,
		&task.CompletedAt,
		&task.FailedAt,
		&errorJSON,
		&resultJSON,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}

	if errorJSON != nil {
		if err := json.Unmarshal(errorJSON, &task.Error); err != nil {
			return nil, fmt.Errorf("unmarshal error: %w", err)
		}
	}
	if resultJSON != nil {
		if err := json.Unmarshal(resultJSON, &task.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
	}

	return &task, nil
}

// marshalNullable возвращает nil для nil-указателя (NULL в БД).
func marshalNullable[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// dependsOnArray гарантирует пустой массив вместо NULL.
func dependsOnArray(deps []string) []string {
	if deps == nil {
		return []string{}
	}
	return deps
}
