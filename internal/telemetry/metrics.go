package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TasksDispatched — tasks, отправленные на выполнение (включая повторы).
	TasksDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orderflow_tasks_dispatched_total",
		Help: "Tasks handed to the work queue",
	}, []string{"type"})

	// TasksFinished — завершённые попытки выполнения task.
	TasksFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orderflow_tasks_finished_total",
		Help: "Task execution attempts by outcome",
	}, []string{"type", "status"})

	// TaskRetries — повторы после ошибки.
	TaskRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orderflow_task_retries_total",
		Help: "Failed tasks scheduled for another attempt",
	}, []string{"type"})

	// OrdersFinished — заказы, перешедшие в COMPLETED или FAILED.
	OrdersFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orderflow_orders_finished_total",
		Help: "Orders that reached a terminal status",
	}, []string{"status"})

	// CascadeDuration — длительность обработки завершения task.
	CascadeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "orderflow_cascade_duration_seconds",
		Help:    "Time spent recomputing ready tasks after a completion",
		Buckets: prometheus.DefBuckets,
	})

	// TaskExecution — длительность вызова executor.
	TaskExecution = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "orderflow_task_execution_seconds",
		Help:    "Executor call duration",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 10, 30},
	}, []string{"type"})

	// HTTPRequests — запросы к API.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orderflow_api_http_requests_total",
		Help: "Total HTTP requests handled by orderflow-api",
	}, []string{"method", "status"})
)
