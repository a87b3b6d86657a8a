// Package scheduler запускает периодические задания по cron-расписанию.
//
// Используется оркестратором для reconcile: поиска tasks, зависших
// в RUNNING или потерявших сообщение в очереди.
//
// Структура:
//   - scheduler.go — Scheduler (Add, Start, Stop, RunNow)
//   - cron.go      — парсинг расписаний и вычисление следующего запуска
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{
//	    Locker: redisLocker, // опционально: один исполнитель на тик
//	    Logger: logger,
//	})
//	if err := sched.Add("reconcile", "@every 1m", orch.Tick); err != nil {
//	    return err
//	}
//	sched.Start(ctx)
//	defer sched.Stop()
//
// Leader Election:
//
// При нескольких инстансах оркестратора задание выполняет тот,
// кто получил блокировку "job:{name}" через lock.Locker.
package scheduler
