package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shaiso/Orderflow/internal/lock"
)

// defaultLockWait — сколько ждать блокировку задания перед пропуском тика.
const defaultLockWait = time.Second

// JobFunc — периодическое задание.
type JobFunc func(ctx context.Context) error

// Scheduler запускает задания по расписанию.
//
// Тик пропускается, если предыдущий запуск того же задания ещё идёт.
// Если задан Locker, задание выполняется только тем процессом, который
// получил блокировку "job:{name}" (один лидер на тик).
type Scheduler struct {
	cron     *cron.Cron
	locker   lock.Locker
	lockWait time.Duration
	logger   *slog.Logger

	ctx atomic.Pointer[context.Context]
}

// Config — конфигурация Scheduler.
type Config struct {
	// Locker — межпроцессная блокировка заданий (опционально).
	Locker lock.Locker

	// LockWait — ожидание блокировки для Locker без TryLock (default: 1s).
	LockWait time.Duration

	Logger *slog.Logger
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	lockWait := cfg.LockWait
	if lockWait <= 0 {
		lockWait = defaultLockWait
	}

	return &Scheduler{
		cron:     cron.New(cron.WithParser(cronParser)),
		locker:   cfg.Locker,
		lockWait: lockWait,
		logger:   logger,
	}
}

// Add регистрирует задание name с расписанием spec.
func (s *Scheduler) Add(name, spec string, job JobFunc) error {
	var running atomic.Bool

	_, err := s.cron.AddFunc(spec, func() {
		if !running.CompareAndSwap(false, true) {
			s.logger.Debug("job still running, skipping tick", "job", name)
			return
		}
		defer running.Store(false)

		s.run(name, job)
	})
	if err != nil {
		return fmt.Errorf("add job %s: %w", name, err)
	}
	return nil
}

// Start запускает планировщик. Задания получают ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx.Store(&ctx)
	s.cron.Start()
}

// Stop останавливает планировщик и ждёт текущие задания.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunNow выполняет задание немедленно, с учётом блокировки.
func (s *Scheduler) RunNow(ctx context.Context, name string, job JobFunc) {
	s.ctx.CompareAndSwap(nil, &ctx)
	s.run(name, job)
}

// run выполняет один тик задания.
func (s *Scheduler) run(name string, job JobFunc) {
	ctx := context.Background()
	if p := s.ctx.Load(); p != nil {
		ctx = *p
	}
	if ctx.Err() != nil {
		return
	}

	if s.locker != nil {
		unlock, ok := s.acquire(ctx, name)
		if !ok {
			// Тик уже выполняет другой процесс
			s.logger.Debug("job lock held elsewhere, skipping tick", "job", name)
			return
		}
		defer unlock()
	}

	start := time.Now()
	if err := job(ctx); err != nil {
		s.logger.Error("job failed", "job", name, "error", err)
		return
	}

	s.logger.Debug("job completed", "job", name, "duration", time.Since(start))
}

// acquire берёт блокировку задания. TryLocker пробуется один раз:
// процесс, опоздавший к тику, не повторяет его после освобождения.
// Обычный Locker ждёт не дольше lockWait.
func (s *Scheduler) acquire(ctx context.Context, name string) (func(), bool) {
	key := "job:" + name

	if tl, ok := s.locker.(lock.TryLocker); ok {
		unlock, acquired, err := tl.TryLock(ctx, key)
		if err != nil {
			s.logger.Warn("job lock failed", "job", name, "error", err)
			return nil, false
		}
		return unlock, acquired
	}

	lockCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()
	unlock, err := s.locker.Lock(lockCtx, key)
	if err != nil {
		return nil, false
	}
	return unlock, true
}
