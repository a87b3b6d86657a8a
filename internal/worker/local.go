package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Orderflow/internal/domain"
)

// OutcomeHandler принимает результат выполнения task.
// Реализуется orchestrator.Orchestrator.
type OutcomeHandler interface {
	HandleTaskOutcome(ctx context.Context, taskID string, status domain.TaskStatus) error
}

// LocalPool — Dispatcher, выполняющий tasks в том же процессе.
//
// Используется в standalone-режиме вместо RabbitMQ: Enqueue кладёт task
// в очередь в памяти, пул горутин выполняет её через Runner и сразу
// сообщает результат в OutcomeHandler.
type LocalPool struct {
	runner      *Runner
	outcomes    OutcomeHandler
	concurrency int
	logger      *slog.Logger

	mu      sync.Mutex
	queue   []string
	timers  map[*time.Timer]struct{}
	stopped bool
	signal  chan struct{}

	cancelFunc context.CancelFunc
	group      *errgroup.Group
}

// LocalConfig — конфигурация LocalPool.
type LocalConfig struct {
	Runner *Runner

	// Outcomes — получатель результатов. Можно задать позже через
	// SetOutcomeHandler, но до Start.
	Outcomes OutcomeHandler

	// Concurrency — количество горутин (default: 4).
	Concurrency int

	Logger *slog.Logger
}

// NewLocalPool создаёт LocalPool.
func NewLocalPool(cfg LocalConfig) *LocalPool {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &LocalPool{
		runner:      cfg.Runner,
		outcomes:    cfg.Outcomes,
		concurrency: concurrency,
		logger:      logger.With("component", "local-pool"),
		timers:      make(map[*time.Timer]struct{}),
		signal:      make(chan struct{}, 1),
	}
}

// SetOutcomeHandler задаёт получателя результатов.
func (p *LocalPool) SetOutcomeHandler(h OutcomeHandler) {
	p.outcomes = h
}

// Enqueue ставит task в очередь.
func (p *LocalPool) Enqueue(_ context.Context, taskID string) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return ErrWorkerStopped
	}
	p.queue = append(p.queue, taskID)
	p.mu.Unlock()

	p.wake()
	return nil
}

// EnqueueDelayed ставит task в очередь через delay.
func (p *LocalPool) EnqueueDelayed(ctx context.Context, taskID string, delay time.Duration) error {
	if delay <= 0 {
		return p.Enqueue(ctx, taskID)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return ErrWorkerStopped
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		p.mu.Lock()
		delete(p.timers, timer)
		p.mu.Unlock()

		if err := p.Enqueue(context.Background(), taskID); err != nil {
			p.logger.Debug("delayed task dropped", "task_id", taskID, "error", err)
		}
	})
	p.timers[timer] = struct{}{}

	return nil
}

// Pending возвращает количество tasks, ожидающих выполнения,
// включая отложенные.
func (p *LocalPool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue) + len(p.timers)
}

// Start запускает горутины пула.
func (p *LocalPool) Start(ctx context.Context) error {
	if p.runner == nil || p.outcomes == nil {
		return errors.New("local pool: runner and outcome handler are required")
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancelFunc = cancel

	g, ctx := errgroup.WithContext(ctx)
	for range p.concurrency {
		g.Go(func() error {
			p.loop(ctx)
			return nil
		})
	}
	p.group = g

	p.logger.Info("local pool started", "concurrency", p.concurrency)
	return nil
}

// Stop останавливает пул. Отложенные tasks отбрасываются;
// их подберёт reconcile после перезапуска.
func (p *LocalPool) Stop() {
	p.mu.Lock()
	p.stopped = true
	for timer := range p.timers {
		timer.Stop()
	}
	clear(p.timers)
	p.mu.Unlock()

	if p.cancelFunc != nil {
		p.cancelFunc()
	}
	if p.group != nil {
		_ = p.group.Wait()
	}

	p.logger.Info("local pool stopped")
}

func (p *LocalPool) loop(ctx context.Context) {
	for {
		taskID, ok := p.next()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-p.signal:
				continue
			}
		}

		if ctx.Err() != nil {
			return
		}
		p.process(ctx, taskID)
	}
}

// next забирает task из очереди и будит следующую горутину,
// если в очереди ещё что-то есть.
func (p *LocalPool) next() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.queue) == 0 {
		return "", false
	}
	taskID := p.queue[0]
	p.queue = p.queue[1:]
	if len(p.queue) > 0 {
		p.wake()
	}
	return taskID, true
}

func (p *LocalPool) wake() {
	select {
	case p.signal <- struct{}{}:
	default:
	}
}

func (p *LocalPool) process(ctx context.Context, taskID string) {
	status, err := p.runner.RunTask(ctx, taskID)
	if err != nil {
		switch {
		case errors.Is(err, ErrTaskNotRunnable):
			if status != domain.TaskStatusCompleted && status != domain.TaskStatusFailed {
				p.logger.Debug("skipping task", "task_id", taskID, "status", status)
				return
			}
		case errors.Is(err, ErrStaleExecution):
			p.logger.Warn("discarding stale execution result", "task_id", taskID, "error", err)
			return
		default:
			p.logger.Error("task execution error", "task_id", taskID, "error", err)
			return
		}
	}

	if err := p.outcomes.HandleTaskOutcome(ctx, taskID, status); err != nil {
		p.logger.Error("failed to handle task outcome",
			"task_id", taskID,
			"status", status,
			"error", err,
		)
	}
}
