package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Orderflow/internal/domain"
	"github.com/shaiso/Orderflow/internal/engine"
	"github.com/shaiso/Orderflow/internal/lock"
	"github.com/shaiso/Orderflow/internal/mq"
	"github.com/shaiso/Orderflow/internal/notify"
	"github.com/shaiso/Orderflow/internal/scheduler"
)

// Default configuration values.
const (
	DefaultRetryDelay        = 2000 * time.Millisecond
	DefaultVisibilityTimeout = 5 * time.Minute
	DefaultReconcileSpec     = "@every 1m"
	defaultBatchSize         = 100
	defaultConcurrency       = 4
)

// Orchestrator управляет выполнением заказов.
//
// Orchestrator:
//   - Материализует tasks заказа по blueprint
//   - Отдаёт готовые tasks в Dispatcher
//   - Получает результаты выполнения (RabbitMQ или LocalPool)
//   - Пересчитывает готовые tasks и повторяет упавшие
//   - Финализирует заказы (COMPLETED/FAILED)
//   - Периодически подбирает зависшие tasks (reconcile)
type Orchestrator struct {
	orders     OrderStore
	tasks      TaskStore
	dispatcher Dispatcher
	notifier   notify.Notifier
	locker     lock.Locker
	blueprints Blueprinter
	now        Clock

	retryDelay        time.Duration
	maxRetries        int
	visibilityTimeout time.Duration
	reconcileSpec     string
	batchSize         int
	concurrency       int

	// MQ — nil в standalone-режиме
	conn     *mq.Connection
	consumer *mq.Consumer

	sched *scheduler.Scheduler

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Хранилища
	Orders OrderStore
	Tasks  TaskStore

	// Dispatcher — очередь tasks (mq.Publisher или worker.LocalPool).
	Dispatcher Dispatcher

	// Notifier — получатель уведомлений (default: notify.Nop).
	Notifier notify.Notifier

	// Locker — блокировка по заказу (default: lock.NewKeyedMutex()).
	Locker lock.Locker

	// Blueprints — генератор шагов (default: engine.Blueprints{}).
	Blueprints Blueprinter

	// Clock — источник времени (default: time.Now).
	Clock Clock

	// RetryDelay — задержка перед повтором упавшей task (default: 2s).
	RetryDelay time.Duration

	// MaxRetries — лимит повторов новых tasks (default: domain.DefaultMaxRetries).
	MaxRetries int

	// VisibilityTimeout — сколько task может быть RUNNING (default: 5m).
	VisibilityTimeout time.Duration

	// ReconcileSpec — расписание reconcile в формате cron
	// (default: "@every 1m", "-" — отключить).
	ReconcileSpec string

	// BatchSize — tasks за один проход reconcile (default: 100).
	BatchSize int

	// Conn — соединение RabbitMQ для consumer tasks.completed.
	// nil — результаты приходят напрямую через HandleTaskOutcome.
	Conn *mq.Connection

	// Concurrency — обработчиков tasks.completed (default: 4).
	Concurrency int

	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	o := &Orchestrator{
		orders:            cfg.Orders,
		tasks:             cfg.Tasks,
		dispatcher:        cfg.Dispatcher,
		notifier:          cfg.Notifier,
		locker:            cfg.Locker,
		blueprints:        cfg.Blueprints,
		now:               cfg.Clock,
		retryDelay:        cfg.RetryDelay,
		maxRetries:        cfg.MaxRetries,
		visibilityTimeout: cfg.VisibilityTimeout,
		reconcileSpec:     cfg.ReconcileSpec,
		batchSize:         cfg.BatchSize,
		concurrency:       cfg.Concurrency,
		conn:              cfg.Conn,
		logger:            logger.With("component", "orchestrator"),
	}

	if o.notifier == nil {
		o.notifier = notify.Nop{}
	}
	if o.locker == nil {
		o.locker = lock.NewKeyedMutex()
	}
	if o.blueprints == nil {
		o.blueprints = engine.Blueprints{}
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.retryDelay <= 0 {
		o.retryDelay = DefaultRetryDelay
	}
	if o.maxRetries <= 0 {
		o.maxRetries = domain.DefaultMaxRetries
	}
	if o.visibilityTimeout <= 0 {
		o.visibilityTimeout = DefaultVisibilityTimeout
	}
	if o.reconcileSpec == "" {
		o.reconcileSpec = DefaultReconcileSpec
	}
	if o.batchSize <= 0 {
		o.batchSize = defaultBatchSize
	}
	if o.concurrency <= 0 {
		o.concurrency = defaultConcurrency
	}

	return o
}

// SetDispatcher подменяет Dispatcher. Нужен, когда Dispatcher сам
// зависит от Orchestrator (worker.LocalPool). Вызывать до Start.
func (o *Orchestrator) SetDispatcher(d Dispatcher) {
	o.dispatcher = d
}

// Start запускает Orchestrator.
//
// Запускает:
//   - Consumer для tasks.completed (если задан Conn)
//   - Reconcile по расписанию
func (o *Orchestrator) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	o.cancelFunc = cancel

	o.logger.Info("starting orchestrator",
		"retry_delay", o.retryDelay,
		"visibility_timeout", o.visibilityTimeout,
		"reconcile_spec", o.reconcileSpec,
	)

	if o.reconcileSpec != "-" {
		o.sched = scheduler.New(scheduler.Config{Locker: o.locker, Logger: o.logger})
		if err := o.sched.Add("reconcile", o.reconcileSpec, o.Tick); err != nil {
			cancel()
			return err
		}
		o.sched.Start(ctx)

		// Первый проход сразу: tasks, брошенные до перезапуска, не ждут тика
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.sched.RunNow(ctx, "reconcile", o.Tick)
		}()

		if next, err := scheduler.NextRun(o.reconcileSpec, o.now()); err == nil {
			o.logger.Debug("reconcile scheduled", "next_run", next)
		}
	}

	if o.conn != nil {
		o.consumer = mq.NewConsumer(o.conn, o.logger, mq.ConsumerConfig{
			Queue:       string(mq.QueueTasksCompleted),
			Handler:     o.handleTaskCompleted,
			Concurrency: o.concurrency,
		})

		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			if err := o.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				o.logger.Error("task consumer error", "error", err)
			}
		}()
	}

	o.logger.Info("orchestrator started")
	return nil
}

// Stop останавливает Orchestrator и ждёт завершения обработчиков.
func (o *Orchestrator) Stop() {
	o.logger.Info("stopping orchestrator...")

	if o.cancelFunc != nil {
		o.cancelFunc()
	}
	if o.consumer != nil {
		o.consumer.Stop()
	}
	if o.sched != nil {
		o.sched.Stop()
	}

	o.wg.Wait()

	o.logger.Info("orchestrator stopped")
}
