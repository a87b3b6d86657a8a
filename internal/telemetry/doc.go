// Package telemetry — логирование и метрики сервисов Orderflow.
//
// logging.go: slog-логгер с атрибутом service, уровень и формат из
// LOG_LEVEL и LOG_FORMAT, логгер запроса в context.
//
// metrics.go: Prometheus-метрики отправки, выполнения и повторов tasks,
// финализации заказов и HTTP-запросов API. Отдаются на /metrics.
package telemetry
