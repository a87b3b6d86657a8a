package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shaiso/Orderflow/internal/domain"
	"github.com/shaiso/Orderflow/internal/mq"
)

// Default configuration values.
const (
	defaultConcurrency = 4
	defaultPrefetch    = 5
)

// OutcomePublisher отправляет результат выполнения оркестратору.
type OutcomePublisher interface {
	PublishTaskCompleted(ctx context.Context, payload mq.TaskCompletedPayload) error
}

// Worker выполняет отдельные tasks.
//
// Worker — stateless компонент системы, который:
//   - Получает tasks из очереди tasks.ready
//   - Выполняет task через executor её типа
//   - Отправляет результат в очередь tasks.completed
//
// Workers масштабируются горизонтально — несколько экземпляров
// могут потреблять из одной очереди.
type Worker struct {
	runner    *Runner
	tasks     TaskStore
	publisher OutcomePublisher
	conn      *mq.Connection

	consumer    *mq.Consumer
	concurrency int

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Worker.
type Config struct {
	Runner *Runner
	Tasks  TaskStore

	// MQ
	Publisher OutcomePublisher
	Conn      *mq.Connection

	// Concurrency — параллельно выполняемых tasks (default: 4).
	Concurrency int

	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		runner:      cfg.Runner,
		tasks:       cfg.Tasks,
		publisher:   cfg.Publisher,
		conn:        cfg.Conn,
		concurrency: concurrency,
		logger:      logger.With("component", "worker"),
	}
}

// Start запускает consumer для tasks.ready.
func (w *Worker) Start(ctx context.Context) error {
	if w.conn == nil {
		return errors.New("worker: rabbitmq connection is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker", "concurrency", w.concurrency)

	w.consumer = mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
		Queue:       string(mq.QueueTasksReady),
		Handler:     w.handleTaskReady,
		Prefetch:    defaultPrefetch,
		Concurrency: w.concurrency,
	})

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("task consumer error", "error", err)
		}
	}()

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает Worker.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	if w.consumer != nil {
		w.consumer.Stop()
	}

	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}

// handleTaskReady обрабатывает сообщение из tasks.ready.
func (w *Worker) handleTaskReady(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.TaskReadyPayload](&delivery.Message)
	if err != nil {
		w.logger.Error("failed to parse task.ready payload", "error", err)
		return mq.Permanent(err)
	}

	return w.processTask(ctx, payload.TaskID)
}

// processTask выполняет task и публикует результат.
//
// Повторная доставка уже завершённой task не запускает executor,
// а заново публикует её результат: первая публикация могла потеряться.
func (w *Worker) processTask(ctx context.Context, taskID string) error {
	status, err := w.runner.RunTask(ctx, taskID)
	if err != nil {
		switch {
		case domain.KindOf(err) == domain.KindNotFound:
			return mq.Permanent(err)
		case errors.Is(err, ErrTaskNotRunnable):
			if status != domain.TaskStatusCompleted && status != domain.TaskStatusFailed {
				w.logger.Debug("skipping task", "task_id", taskID, "status", status)
				return nil
			}
		case errors.Is(err, ErrStaleExecution):
			w.logger.Warn("discarding stale execution result", "task_id", taskID, "error", err)
			return nil
		default:
			return err
		}
	}

	return w.publishOutcome(ctx, taskID)
}

// publishOutcome отправляет текущий итог task в tasks.completed.
func (w *Worker) publishOutcome(ctx context.Context, taskID string) error {
	task, err := w.tasks.GetByID(ctx, taskID)
	if err != nil {
		return fmt.Errorf("get task %s: %w", taskID, err)
	}

	payload := mq.TaskCompletedPayload{
		TaskID:   task.TaskID,
		OrderID:  task.OrderID,
		TaskType: task.TaskType,
		Status:   task.Status,
		Error:    task.ErrorMessage(),
		Attempt:  task.RetryCount,
	}
	if err := w.publisher.PublishTaskCompleted(ctx, payload); err != nil {
		return fmt.Errorf("publish task.completed: %w", err)
	}

	w.logger.Debug("published task outcome", "task_id", task.TaskID, "status", task.Status)
	return nil
}
