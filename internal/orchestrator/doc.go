// Package orchestrator ведёт заказ от IN_PROGRESS до COMPLETED или FAILED.
//
// Orchestrator материализует tasks по blueprint, отдаёт готовые tasks
// в Dispatcher и после каждого результата выполнения пересчитывает,
// какие tasks стали готовы (cascade). Ошибка task сначала превращается
// в повтор с фиксированной задержкой и только после исчерпания попыток
// переводит заказ в FAILED.
//
// Все изменения заказа и его tasks выполняются под блокировкой
// lock.OrderKey(orderID). Вызовы Dispatcher и Notifier делаются
// после снятия блокировки.
//
// Файлы:
//   - orchestrator.go — Config, New, Start/Stop
//   - ports.go        — интерфейсы хранилищ и очереди
//   - cascade.go      — MaterializeTasks, OnTaskCompleted, OnTaskFailed, TryRetryOrFail
//   - transition.go   — изменение статуса заказа
//   - reconcile.go    — поиск зависших tasks
//   - consumer.go     — обработка tasks.completed из RabbitMQ
//   - progress.go     — статистика tasks заказа
package orchestrator
