package worker

import "errors"

// Ошибки воркера.
var (
	// ErrTaskNotFound — task не найден в хранилище.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskNotRunnable — task не в статусе READY или RUNNING.
	ErrTaskNotRunnable = errors.New("task not runnable")

	// ErrStaleExecution — пока executor работал, task перевели в другой статус
	// (например, reconcile признал её зависшей). Результат отброшен.
	ErrStaleExecution = errors.New("stale execution")

	// ErrNoExecutor — нет executor'а для типа task.
	ErrNoExecutor = errors.New("no executor for task type")

	// ErrWorkerStopped — воркер остановлен.
	ErrWorkerStopped = errors.New("worker stopped")

	// ErrHTTPRequest — HTTP-запрос к backend'у завершился ошибкой.
	ErrHTTPRequest = errors.New("http request failed")

	// ErrSimulatedFailure — имитированный отказ backend'а.
	ErrSimulatedFailure = errors.New("simulated failure")
)
