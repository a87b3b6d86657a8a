package orchestrator

import (
	"context"
	"fmt"

	"github.com/shaiso/Orderflow/internal/domain"
	"github.com/shaiso/Orderflow/internal/telemetry"
)

// visibilityTimeoutMessage — ошибка task, зависшей в RUNNING.
const visibilityTimeoutMessage = "Task exceeded visibility timeout"

// ReconcileStats — итог одного прохода reconcile.
type ReconcileStats struct {
	// Expired — RUNNING tasks, признанные упавшими.
	Expired int

	// Requeued — READY tasks, заново отданные в очередь.
	Requeued int
}

// Tick выполняет один проход reconcile. Вызывается планировщиком.
func (o *Orchestrator) Tick(ctx context.Context) error {
	stats, err := o.Reconcile(ctx)
	if err != nil {
		return err
	}
	if stats.Expired > 0 || stats.Requeued > 0 {
		o.logger.Info("reconcile completed",
			"expired", stats.Expired,
			"requeued", stats.Requeued,
		)
	}
	return nil
}

// Reconcile подбирает tasks, потерявшиеся между процессами.
//
//  1. RUNNING дольше visibility timeout — воркер умер посреди выполнения.
//     Task помечается FAILED с кодом VISIBILITY_TIMEOUT и проходит
//     обычный путь повтора или отказа заказа.
//  2. READY без изменений дольше visibility timeout — сообщение потеряно.
//     Task заново отдаётся в очередь.
//
// Ошибки отдельных tasks логируются и не прерывают проход.
func (o *Orchestrator) Reconcile(ctx context.Context) (ReconcileStats, error) {
	var stats ReconcileStats
	cutoff := o.now().Add(-o.visibilityTimeout)

	running, err := o.tasks.ListStale(ctx, domain.TaskStatusRunning, cutoff, o.batchSize)
	if err != nil {
		return stats, fmt.Errorf("list stale running tasks: %w", err)
	}

	for i := range running {
		expired, err := o.expireTask(ctx, running[i].TaskID)
		if err != nil {
			o.logger.Error("failed to expire task", "task_id", running[i].TaskID, "error", err)
			continue
		}
		if !expired {
			continue
		}
		stats.Expired++

		if err := o.HandleTaskOutcome(ctx, running[i].TaskID, domain.TaskStatusFailed); err != nil {
			o.logger.Error("failed to handle expired task", "task_id", running[i].TaskID, "error", err)
		}
	}

	ready, err := o.tasks.ListStale(ctx, domain.TaskStatusReady, cutoff, o.batchSize)
	if err != nil {
		return stats, fmt.Errorf("list stale ready tasks: %w", err)
	}

	for i := range ready {
		requeued, err := o.requeueTask(ctx, ready[i].TaskID)
		if err != nil {
			o.logger.Error("failed to requeue task", "task_id", ready[i].TaskID, "error", err)
			continue
		}
		if requeued {
			stats.Requeued++
		}
	}

	return stats, nil
}

// expireTask помечает зависшую RUNNING task как FAILED.
// false — task успела измениться, пока мы ждали блокировку.
func (o *Orchestrator) expireTask(ctx context.Context, taskID string) (bool, error) {
	task, err := o.getTask(ctx, taskID)
	if err != nil {
		return false, err
	}

	unlock, err := o.lockOrder(ctx, task.OrderID)
	if err != nil {
		return false, err
	}
	defer unlock()

	task, err = o.getTask(ctx, taskID)
	if err != nil {
		return false, err
	}

	now := o.now()
	if task.Status != domain.TaskStatusRunning || !task.UpdatedAt.Before(now.Add(-o.visibilityTimeout)) {
		return false, nil
	}

	task.MarkFailed(visibilityTimeoutMessage, domain.FailureCodeVisibilityTimeout, now)
	if err := o.tasks.Update(ctx, task); err != nil {
		return false, fmt.Errorf("update task: %w", err)
	}

	telemetry.TasksFinished.WithLabelValues(string(task.TaskType), string(domain.TaskStatusFailed)).Inc()
	telemetry.WithTaskID(o.logger, task.TaskID, task.OrderID).Warn("task exceeded visibility timeout",
		"task_type", task.TaskType,
		"started_at", task.StartedAt,
	)

	return true, nil
}

// requeueTask заново отдаёт READY task в очередь и обновляет UpdatedAt,
// чтобы следующий проход не отдал её повторно.
func (o *Orchestrator) requeueTask(ctx context.Context, taskID string) (bool, error) {
	task, err := o.getTask(ctx, taskID)
	if err != nil {
		return false, err
	}

	unlock, err := o.lockOrder(ctx, task.OrderID)
	if err != nil {
		return false, err
	}

	task, err = o.getTask(ctx, taskID)
	if err != nil {
		unlock()
		return false, err
	}
	if task.Status != domain.TaskStatusReady {
		unlock()
		return false, nil
	}

	task.UpdatedAt = o.now()
	if err := o.tasks.Update(ctx, task); err != nil {
		unlock()
		return false, fmt.Errorf("update task: %w", err)
	}
	unlock()

	if err := o.dispatch(ctx, task); err != nil {
		return false, err
	}

	telemetry.WithTaskID(o.logger, task.TaskID, task.OrderID).Info("stale ready task requeued")
	return true, nil
}
