// Package worker выполняет отдельные tasks.
//
// # Обзор
//
// Worker — stateless компонент системы Orderflow, который выполняет
// tasks, созданные Orchestrator'ом. Worker отвечает за:
//
//   - Получение tasks из очереди tasks.ready
//   - Вызов executor'а по типу task (VALIDATE, PROVISION, BILLING)
//   - Сохранение результата (COMPLETED или FAILED)
//   - Отправку результата в очередь tasks.completed
//
// Повторы делает Orchestrator: воркер выполняет ровно одну попытку.
//
// # Ключевые компоненты
//
// ## Runner
//
// Выполняет одну task. Под блокировкой заказа переводит её в RUNNING,
// вызывает executor без блокировки и снова под блокировкой сохраняет
// результат. Если за это время task перестала быть RUNNING (reconcile
// признал её зависшей), результат отбрасывается с ErrStaleExecution.
//
// ## Worker
//
// Consumer очереди tasks.ready:
//
//	w := worker.New(worker.Config{
//	    Runner:    runner,
//	    Tasks:     taskRepo,
//	    Publisher: publisher,
//	    Conn:      mqConn,
//	    Logger:    logger,
//	})
//
//	if err := w.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
//
// ## LocalPool
//
// Dispatcher для standalone-режима: выполняет tasks в том же процессе
// и передаёт результат напрямую в Orchestrator.HandleTaskOutcome.
//
// ## Executor
//
//	type Executor interface {
//	    Execute(ctx context.Context, task *domain.Task) (*Result, error)
//	}
//
// Реализации:
//   - SimulatedExecutor — случайная задержка и доля отказов
//   - HTTPExecutor — POST во внешний backend
//
// Registry выбирает executor по типу task, с fallback для остальных типов.
package worker
