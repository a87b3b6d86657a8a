// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением (reconnect, хуки, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация задач, результатов и событий
//   - consumer.go   — потребление сообщений, Permanent-ошибки, concurrency
//
// Типы сообщений:
//   - task.ready       — задача готова к выполнению
//   - task.completed   — задача завершена (успешно или с ошибкой)
//   - event            — order:updated / task:updated для подписчиков
//
// Exchanges:
//   - orderflow.tasks  — задачи и их результаты
//   - orderflow.events — fanout событий для API инстансов
//   - orderflow.dlq    — dead letter queue
package mq
