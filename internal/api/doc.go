// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go       — Handler с DI (сервис заказов, WebSocket hub, logger)
//   - routes.go        — регистрация маршрутов
//   - middleware.go    — middleware (logging, metrics, recovery)
//   - response.go      — унифицированные JSON-ответы, Kind ошибки → HTTP статус
//   - dto.go           — Data Transfer Objects (request/response)
//   - order_handler.go — обработчики для /orders
//   - task_handler.go  — обработчики для /tasks
//   - events.go        — пересылка событий из RabbitMQ в WebSocket hub
//
// API предоставляет REST endpoints для создания заказов, смены их статуса
// и просмотра tasks, а также поток уведомлений на /ws.
package api
