package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shaiso/Orderflow/internal/domain"
	"github.com/shaiso/Orderflow/internal/engine"
	"github.com/shaiso/Orderflow/internal/lock"
	"github.com/shaiso/Orderflow/internal/repo"
	"github.com/shaiso/Orderflow/internal/telemetry"
)

// defaultTaskFailureReason — причина отказа заказа, если у task нет ошибки.
const defaultTaskFailureReason = "Task failed"

// MaterializeTasks создаёт tasks заказа по blueprint.
//
// Идемпотентна: если tasks уже есть, возвращает их без изменений.
// Все tasks сохраняются одной пачкой; при цикле в blueprint
// возвращается ErrCircularDependency (Kind=graph) и ничего не пишется.
func (o *Orchestrator) MaterializeTasks(ctx context.Context, orderID string, orderType domain.OrderType) ([]domain.Task, error) {
	logger := telemetry.WithOrderID(o.logger, orderID)

	unlock, err := o.lockOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	existing, err := o.tasks.ListByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	if len(existing) > 0 {
		logger.Debug("tasks already materialized", "count", len(existing))
		return existing, nil
	}

	if !engine.HasTemplate(orderType) {
		logger.Warn("no blueprint for order type, using default", "order_type", orderType)
	}

	steps, err := o.blueprints.Generate(orderID, orderType)
	if err != nil {
		return nil, domain.NewError(domain.KindValidation, err.Error(), err)
	}

	if err := engine.ValidateSteps(steps); err != nil {
		if errors.Is(err, engine.ErrCyclicDependency) || errors.Is(err, engine.ErrMissingDependency) {
			return nil, domain.NewError(domain.KindGraph,
				"Circular dependency detected in task blueprint",
				fmt.Errorf("%w: %w", ErrCircularDependency, err))
		}
		return nil, domain.NewError(domain.KindValidation, err.Error(), err)
	}

	now := o.now()
	tasks := make([]domain.Task, 0, len(steps))
	for i, step := range steps {
		task := domain.NewTask(step.TaskID, orderID, step.TaskType, step.DependsOn, i+1, now)
		task.MaxRetries = o.maxRetries
		tasks = append(tasks, task)
	}

	if err := o.tasks.CreateBatch(ctx, tasks); err != nil {
		return nil, fmt.Errorf("create tasks: %w", err)
	}

	logger.Info("tasks materialized", "order_type", orderType, "count", len(tasks))

	return tasks, nil
}

// DispatchReady отдаёт в очередь все READY tasks заказа в порядке создания.
// Возвращает количество отданных tasks.
func (o *Orchestrator) DispatchReady(ctx context.Context, orderID string) (int, error) {
	tasks, err := o.tasks.ListByOrderID(ctx, orderID)
	if err != nil {
		return 0, fmt.Errorf("list tasks: %w", err)
	}

	var (
		dispatched int
		errs       []error
	)
	for i := range tasks {
		if tasks[i].Status != domain.TaskStatusReady {
			continue
		}
		if err := o.dispatch(ctx, &tasks[i]); err != nil {
			errs = append(errs, err)
			continue
		}
		dispatched++
	}

	return dispatched, errors.Join(errs...)
}

// OnTaskCompleted пересчитывает готовые tasks после завершения taskID.
//
// Каждая PENDING task заказа, все зависимости которой COMPLETED,
// переводится в READY и отдаётся в очередь. Если после этого все tasks
// COMPLETED, заказ переводится в COMPLETED. Уведомления task:updated и
// order:updated отправляются в любом случае.
func (o *Orchestrator) OnTaskCompleted(ctx context.Context, taskID string) error {
	start := time.Now()
	defer func() { telemetry.CascadeDuration.Observe(time.Since(start).Seconds()) }()

	task, err := o.getTask(ctx, taskID)
	if err != nil {
		return err
	}
	logger := telemetry.WithTaskID(o.logger, task.TaskID, task.OrderID)

	unlock, err := o.lockOrder(ctx, task.OrderID)
	if err != nil {
		return err
	}

	toDispatch, err := o.cascadeLocked(ctx, task.OrderID)
	unlock()
	if err != nil {
		return err
	}

	for i := range toDispatch {
		if err := o.dispatch(ctx, &toDispatch[i]); err != nil {
			logger.Error("failed to dispatch ready task", "ready_task_id", toDispatch[i].TaskID, "error", err)
		}
	}

	o.notifier.TaskUpdated(ctx, task.TaskID, task.OrderID, task.Status)
	o.notifier.OrderUpdated(ctx, task.OrderID)

	return nil
}

// cascadeLocked переводит в READY tasks с выполненными зависимостями
// и завершает заказ, если всё выполнено. Вызывается под блокировкой.
func (o *Orchestrator) cascadeLocked(ctx context.Context, orderID string) ([]domain.Task, error) {
	logger := telemetry.WithOrderID(o.logger, orderID)

	siblings, err := o.tasks.ListByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	byID := make(map[string]*domain.Task, len(siblings))
	completed := make(map[string]bool, len(siblings))
	notPending := make(map[string]bool, len(siblings))
	for i := range siblings {
		t := &siblings[i]
		byID[t.TaskID] = t
		if t.Status == domain.TaskStatusCompleted {
			completed[t.TaskID] = true
		}
		if t.Status != domain.TaskStatusPending {
			notPending[t.TaskID] = true
		}
	}

	graph := engine.BuildGraph(engine.NodesFromTasks(siblings))
	now := o.now()

	var ready []domain.Task
	for _, id := range graph.ReadyNodes(completed, notPending) {
		t := byID[id]
		t.MarkReady(now)
		if err := o.tasks.Update(ctx, t); err != nil {
			// Остальные tasks заказа всё равно обрабатываем
			logger.Error("failed to mark task ready", "task_id", id, "error", err)
			continue
		}
		logger.Debug("task ready", "task_id", id, "task_type", t.TaskType)
		ready = append(ready, *t)
	}

	if len(siblings) > 0 && graph.IsComplete(completed) {
		order, err := o.getOrder(ctx, orderID)
		if err != nil {
			return ready, err
		}
		if order.Status != domain.OrderStatusCompleted {
			if err := o.transitionLocked(ctx, order, domain.OrderStatusCompleted, ""); err != nil {
				logger.Warn("all tasks completed but order cannot complete",
					"status", order.Status,
					"error", err,
				)
			}
		}
	}

	return ready, nil
}

// OnTaskFailed переводит заказ task в FAILED.
//
// Причина отказа — сообщение ошибки task или "Task failed".
// Заказ, уже находящийся в финальном статусе, не меняется.
func (o *Orchestrator) OnTaskFailed(ctx context.Context, taskID string) error {
	task, err := o.getTask(ctx, taskID)
	if err != nil {
		return err
	}
	logger := telemetry.WithTaskID(o.logger, task.TaskID, task.OrderID)

	unlock, err := o.lockOrder(ctx, task.OrderID)
	if err != nil {
		return err
	}

	// Перечитываем под блокировкой: ошибка могла измениться
	task, err = o.getTask(ctx, taskID)
	if err != nil {
		unlock()
		return err
	}

	order, err := o.getOrder(ctx, task.OrderID)
	if err != nil {
		unlock()
		return err
	}

	changed := false
	if order.IsFinished() {
		logger.Info("order already finished, ignoring task failure", "status", order.Status)
	} else {
		reason := task.ErrorMessage()
		if reason == "" {
			reason = defaultTaskFailureReason
		}
		if err := o.transitionLocked(ctx, order, domain.OrderStatusFailed, reason); err != nil {
			unlock()
			return err
		}
		changed = true
		logger.Warn("order failed by task", "task_type", task.TaskType, "reason", reason)
	}
	unlock()

	o.notifier.TaskUpdated(ctx, task.TaskID, task.OrderID, task.Status)
	if changed {
		o.notifier.OrderUpdated(ctx, task.OrderID)
	}

	return nil
}

// TryRetryOrFail повторяет упавшую task, пока RetryCount < MaxRetries.
//
// При повторе task возвращается в READY и отдаётся в очередь с задержкой
// retryDelay; результат true. false означает, что попытки исчерпаны и
// вызывающий должен вызвать OnTaskFailed.
func (o *Orchestrator) TryRetryOrFail(ctx context.Context, taskID string) (bool, error) {
	task, err := o.getTask(ctx, taskID)
	if err != nil {
		return false, err
	}
	logger := telemetry.WithTaskID(o.logger, task.TaskID, task.OrderID)

	unlock, err := o.lockOrder(ctx, task.OrderID)
	if err != nil {
		return false, err
	}

	task, err = o.getTask(ctx, taskID)
	if err != nil {
		unlock()
		return false, err
	}

	if task.Status != domain.TaskStatusFailed {
		unlock()
		return false, domain.Errorf(domain.KindConflict, ErrTaskNotFailed,
			"Task %s is %s, not FAILED", task.TaskID, task.Status)
	}

	if !task.CanRetry() {
		unlock()
		logger.Warn("task retries exhausted",
			"retry_count", task.RetryCount,
			"max_retries", task.MaxRetries,
			"error", task.ErrorMessage(),
		)
		return false, nil
	}

	lastError := task.ErrorMessage()
	task.ResetForRetry(o.now())
	if err := o.tasks.Update(ctx, task); err != nil {
		unlock()
		return false, fmt.Errorf("update task: %w", err)
	}
	unlock()

	telemetry.TaskRetries.WithLabelValues(string(task.TaskType)).Inc()
	logger.Info("retrying task",
		"attempt", task.RetryCount,
		"max_retries", task.MaxRetries,
		"delay", o.retryDelay,
		"last_error", lastError,
	)

	if err := o.dispatcher.EnqueueDelayed(ctx, task.TaskID, o.retryDelay); err != nil {
		// Task уже READY; reconcile подберёт её позже
		logger.Error("failed to schedule retry", "error", err)
	} else {
		telemetry.TasksDispatched.WithLabelValues(string(task.TaskType)).Inc()
	}

	o.notifier.TaskUpdated(ctx, task.TaskID, task.OrderID, task.Status)

	return true, nil
}

// HandleTaskOutcome обрабатывает результат выполнения task.
//
// COMPLETED → OnTaskCompleted; FAILED → TryRetryOrFail, затем
// OnTaskFailed, если повтора не будет.
func (o *Orchestrator) HandleTaskOutcome(ctx context.Context, taskID string, status domain.TaskStatus) error {
	switch status {
	case domain.TaskStatusCompleted:
		return o.OnTaskCompleted(ctx, taskID)

	case domain.TaskStatusFailed:
		retried, err := o.TryRetryOrFail(ctx, taskID)
		if err != nil {
			if errors.Is(err, ErrTaskNotFailed) {
				// Повторная доставка того же результата
				o.logger.Debug("duplicate failure outcome ignored", "task_id", taskID)
				return nil
			}
			return err
		}
		if retried {
			return nil
		}
		return o.OnTaskFailed(ctx, taskID)

	default:
		return domain.Errorf(domain.KindValidation, ErrUnknownOutcome, "unknown task outcome %q", status)
	}
}

// dispatch отдаёт task в очередь.
func (o *Orchestrator) dispatch(ctx context.Context, task *domain.Task) error {
	if err := o.dispatcher.Enqueue(ctx, task.TaskID); err != nil {
		return fmt.Errorf("enqueue %s: %w", task.TaskID, err)
	}
	telemetry.TasksDispatched.WithLabelValues(string(task.TaskType)).Inc()
	o.notifier.TaskUpdated(ctx, task.TaskID, task.OrderID, task.Status)
	return nil
}

// lockOrder берёт блокировку заказа.
func (o *Orchestrator) lockOrder(ctx context.Context, orderID string) (func(), error) {
	unlock, err := o.locker.Lock(ctx, lock.OrderKey(orderID))
	if err != nil {
		return nil, fmt.Errorf("lock order %s: %w", orderID, err)
	}
	return unlock, nil
}

// getTask загружает task, переводя repo.ErrNotFound в KindNotFound.
func (o *Orchestrator) getTask(ctx context.Context, taskID string) (*domain.Task, error) {
	task, err := o.tasks.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, domain.Errorf(domain.KindNotFound, ErrTaskNotFound, "Task not found: %s", taskID)
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// getOrder загружает заказ, переводя repo.ErrNotFound в KindNotFound.
func (o *Orchestrator) getOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := o.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, domain.Errorf(domain.KindNotFound, ErrOrderNotFound, "Order not found: %s", orderID)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}
