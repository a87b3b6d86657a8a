package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Orderflow/internal/domain"
	"github.com/shaiso/Orderflow/internal/lock"
	"github.com/shaiso/Orderflow/internal/notify"
	"github.com/shaiso/Orderflow/internal/repo"
	"github.com/shaiso/Orderflow/internal/telemetry"
)

// TaskStore — часть хранилища tasks, нужная Runner.
type TaskStore interface {
	GetByID(ctx context.Context, taskID string) (*domain.Task, error)
	Update(ctx context.Context, task *domain.Task) error
}

// Runner — обёртка выполнения одной task.
//
// Под блокировкой заказа task переводится в RUNNING, затем без
// блокировки вызывается executor, и снова под блокировкой
// сохраняется COMPLETED или FAILED.
type Runner struct {
	tasks    TaskStore
	registry *Registry
	locker   lock.Locker
	notifier notify.Notifier
	now      func() time.Time
	timeout  time.Duration
	logger   *slog.Logger
}

// RunnerConfig — конфигурация Runner.
type RunnerConfig struct {
	Tasks    TaskStore
	Registry *Registry

	// Locker — блокировка по заказу (default: lock.NewKeyedMutex()).
	Locker lock.Locker

	// Notifier — получатель task:updated (default: notify.Nop).
	Notifier notify.Notifier

	// Clock — источник времени (default: time.Now).
	Clock func() time.Time

	// Timeout — ограничение на вызов executor'а (0 — без ограничения).
	Timeout time.Duration

	Logger *slog.Logger
}

// NewRunner создаёт Runner.
func NewRunner(cfg RunnerConfig) *Runner {
	r := &Runner{
		tasks:    cfg.Tasks,
		registry: cfg.Registry,
		locker:   cfg.Locker,
		notifier: cfg.Notifier,
		now:      cfg.Clock,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
	}
	if r.registry == nil {
		r.registry = NewRegistry(NewSimulatedExecutor())
	}
	if r.locker == nil {
		r.locker = lock.NewKeyedMutex()
	}
	if r.notifier == nil {
		r.notifier = notify.Nop{}
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// RunTask выполняет task и возвращает её итоговый статус
// (COMPLETED или FAILED).
//
// Task не в READY/RUNNING отклоняется с ErrTaskNotRunnable (Kind=conflict)
// без изменений; возвращается её текущий статус. RUNNING допускается,
// чтобы повторная доставка после падения воркера довела task до конца.
func (r *Runner) RunTask(ctx context.Context, taskID string) (domain.TaskStatus, error) {
	task, err := r.start(ctx, taskID)
	if err != nil {
		return r.statusOf(task), err
	}

	logger := telemetry.WithTaskID(r.logger, task.TaskID, task.OrderID)
	logger.Info("task started", "task_type", task.TaskType, "attempt", task.RetryCount)
	r.notifier.TaskUpdated(ctx, task.TaskID, task.OrderID, task.Status)

	startedAt := task.StartedAt
	result, execErr := r.execute(ctx, task)

	task, err = r.finish(ctx, taskID, startedAt, result, execErr)
	if err != nil {
		return r.statusOf(task), err
	}

	telemetry.TasksFinished.WithLabelValues(string(task.TaskType), string(task.Status)).Inc()
	telemetry.TaskExecution.WithLabelValues(string(task.TaskType)).Observe(task.Duration().Seconds())

	if task.Status == domain.TaskStatusCompleted {
		logger.Info("task completed", "task_type", task.TaskType, "duration", task.Duration())
	} else {
		logger.Warn("task failed",
			"task_type", task.TaskType,
			"attempt", task.RetryCount,
			"error", task.ErrorMessage(),
		)
	}
	r.notifier.TaskUpdated(ctx, task.TaskID, task.OrderID, task.Status)

	return task.Status, nil
}

// start переводит task в RUNNING под блокировкой заказа.
func (r *Runner) start(ctx context.Context, taskID string) (*domain.Task, error) {
	task, err := r.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	unlock, err := r.locker.Lock(ctx, lock.OrderKey(task.OrderID))
	if err != nil {
		return task, fmt.Errorf("lock order %s: %w", task.OrderID, err)
	}
	defer unlock()

	task, err = r.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if !task.Status.IsRunnable() {
		return task, domain.Errorf(domain.KindConflict, ErrTaskNotRunnable,
			"Task not runnable: %s", task.Status)
	}

	task.MarkRunning(r.now())
	if err := r.tasks.Update(ctx, task); err != nil {
		return task, fmt.Errorf("update task to running: %w", err)
	}

	return task, nil
}

// execute вызывает executor. Паника executor'а превращается в ошибку.
func (r *Runner) execute(ctx context.Context, task *domain.Task) (result *Result, err error) {
	executor, err := r.registry.Get(task.TaskType)
	if err != nil {
		return nil, err
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			result, err = nil, fmt.Errorf("executor panic: %v", p)
		}
	}()

	snapshot := task.Clone()
	return executor.Execute(ctx, &snapshot)
}

// finish сохраняет результат под блокировкой заказа.
func (r *Runner) finish(ctx context.Context, taskID string, startedAt *time.Time, result *Result, execErr error) (*domain.Task, error) {
	task, err := r.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	unlock, err := r.locker.Lock(ctx, lock.OrderKey(task.OrderID))
	if err != nil {
		return task, fmt.Errorf("lock order %s: %w", task.OrderID, err)
	}
	defer unlock()

	task, err = r.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	// Пока executor работал, task могли признать зависшей
	if task.Status != domain.TaskStatusRunning || !sameTime(task.StartedAt, startedAt) {
		return task, domain.Errorf(domain.KindConflict, ErrStaleExecution,
			"Task %s changed to %s during execution", task.TaskID, task.Status)
	}

	now := r.now()
	if execErr != nil {
		message := execErr.Error()
		if message == "" {
			message = "Unknown error"
		}
		task.MarkFailed(message, domain.FailureCodeExecution, now)
	} else {
		var data map[string]any
		if result != nil {
			data = result.Data
		}
		task.MarkCompleted(data, now)
	}

	if err := r.tasks.Update(ctx, task); err != nil {
		return task, fmt.Errorf("update task result: %w", err)
	}

	return task, nil
}

// getTask загружает task, переводя repo.ErrNotFound в KindNotFound.
func (r *Runner) getTask(ctx context.Context, taskID string) (*domain.Task, error) {
	task, err := r.tasks.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, domain.Errorf(domain.KindNotFound, ErrTaskNotFound, "Task not found: %s", taskID)
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

func (r *Runner) statusOf(task *domain.Task) domain.TaskStatus {
	if task == nil {
		return ""
	}
	return task.Status
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
