package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeTasks  Exchange = "orderflow.tasks"
	ExchangeEvents Exchange = "orderflow.events"
	ExchangeDLQ    Exchange = "orderflow.dlq"
)

// Queues — имена очередей.
const (
	QueueTasksReady     Queue = "tasks.ready"
	QueueTasksDelayed   Queue = "tasks.delayed"
	QueueTasksCompleted Queue = "tasks.completed"
	QueueDLQTasks       Queue = "dlq.tasks"
)

// Routing keys.
const (
	RoutingKeyReady     RoutingKey = "ready"
	RoutingKeyDelayed   RoutingKey = "delayed"
	RoutingKeyCompleted RoutingKey = "completed"
	RoutingKeyDLQTasks  RoutingKey = "tasks"
)

// SetupTopology объявляет exchanges, queues и bindings.
// Операция идемпотентна и повторяется после каждого переподключения.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, DeclareTopology)
}

// DeclareTopology объявляет топологию на канале ch.
func DeclareTopology(ch *amqp.Channel) error {
	// 1. Создаём exchanges
	if err := declareExchanges(ch); err != nil {
		return err
	}

	// 2. Создаём queues
	if err := declareQueues(ch); err != nil {
		return err
	}

	// 3. Привязываем queues к exchanges
	return bindQueues(ch)
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeTasks, amqp.ExchangeDirect},
		{ExchangeEvents, amqp.ExchangeFanout},
		{ExchangeDLQ, amqp.ExchangeDirect},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	return nil
}

// declareQueues создаёт очереди.
func declareQueues(ch *amqp.Channel) error {
	queues := []struct {
		name Queue
		args amqp.Table
	}{
		// tasks.ready — битые сообщения уходят в DLQ
		{QueueTasksReady, amqp.Table{
			"x-dead-letter-exchange":    string(ExchangeDLQ),
			"x-dead-letter-routing-key": string(RoutingKeyDLQTasks),
		}},

		// tasks.delayed — без consumer; по истечении per-message TTL
		// сообщение возвращается в tasks.ready
		{QueueTasksDelayed, amqp.Table{
			"x-dead-letter-exchange":    string(ExchangeTasks),
			"x-dead-letter-routing-key": string(RoutingKeyReady),
		}},

		// tasks.completed — результаты выполнения
		{QueueTasksCompleted, amqp.Table{
			"x-dead-letter-exchange":    string(ExchangeDLQ),
			"x-dead-letter-routing-key": string(RoutingKeyDLQTasks),
		}},

		// dlq.tasks — сама DLQ очередь
		{QueueDLQTasks, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}

	return nil
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueTasksReady, RoutingKeyReady, ExchangeTasks},
		{QueueTasksDelayed, RoutingKeyDelayed, ExchangeTasks},
		{QueueTasksCompleted, RoutingKeyCompleted, ExchangeTasks},
		{QueueDLQTasks, RoutingKeyDLQTasks, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}

// DeclareEventsQueue объявляет эксклюзивную очередь с именем от сервера,
// привязанную к orderflow.events. Очередь живёт, пока живёт канал,
// поэтому её объявляют заново после каждого переподключения.
func DeclareEventsQueue(ch *amqp.Channel) (string, error) {
	q, err := ch.QueueDeclare(
		"",    // name — выдаст сервер
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return "", fmt.Errorf("declare events queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, "", string(ExchangeEvents), false, nil); err != nil {
		return "", fmt.Errorf("bind events queue: %w", err)
	}

	return q.Name, nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Orderflow RabbitMQ Topology:

    orderflow.tasks (direct)
    ├── tasks.ready [routing: ready]
    │       Consumer: Worker
    │       DLQ: dlq.tasks
    ├── tasks.delayed [routing: delayed]
    │       No consumer, per-message TTL → tasks.ready
    └── tasks.completed [routing: completed]
            Consumer: Orchestrator

    orderflow.events (fanout)
    └── amq.gen-* (exclusive, one per API instance)
            Consumer: API → WebSocket hub

    orderflow.dlq (direct)
    └── dlq.tasks [routing: tasks]
            Manual processing
  `
}
