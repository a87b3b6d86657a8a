// Package cli реализует инструмент командной строки Orderflow.
//
// # Обзор
//
// CLI — клиентская утилита для работы с Orderflow API.
// Работает через HTTP и WebSocket, не импортирует внутренние пакеты системы.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для API. Разбирает обёртки ответов (data, list, error)
// и превращает ErrorResponse в error вида "CODE: message".
//
//	client := cli.NewClient("http://localhost:8080")
//	order, err := client.GetOrder("ORD-0001")
//
// Watch подписывается на /ws и получает order:updated и task:updated.
//
// ## Output
//
// Форматирование вывода:
//   - Таблицы (text/tabwriter) по умолчанию
//   - JSON с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr:
//
//	orderflow order list --json | jq .
//
// ## Commands
//
//   - order: list, create, show, start, status, tasks, watch
//   - task: list
//
// Группы создаются фабриками NewOrderCmd и NewTaskCmd, которые принимают
// clientFn и outputFn — замыкания, создающие Client и Output после
// парсинга PersistentFlags.
package cli
