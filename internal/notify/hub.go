package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shaiso/Orderflow/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub держит активные WebSocket соединения и рассылает им события.
//
// Клиент может подписаться на один заказ через ?order_id=...,
// иначе получает все события.
type Hub struct {
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	done       chan struct{} // закрывается при выходе из Run
	lock       sync.RWMutex
	logger     *slog.Logger
}

// client — одно WebSocket соединение.
type client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	orderID string // пусто — все заказы
}

// NewHub создаёт новый Hub. Run нужно запустить отдельно.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		logger:     logger.With("component", "ws-hub"),
	}
}

// Run обрабатывает регистрацию клиентов до отмены ctx.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case c := <-h.register:
			h.lock.Lock()
			h.clients[c] = true
			h.lock.Unlock()
			h.logger.Debug("client registered", "order_id", c.orderID)

		case c := <-h.unregister:
			h.lock.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.lock.Unlock()
			h.logger.Debug("client unregistered", "order_id", c.orderID)

		case <-ctx.Done():
			h.lock.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.lock.Unlock()
			return
		}
	}
}

// Clients возвращает количество подключённых клиентов.
func (h *Hub) Clients() int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.clients)
}

// Broadcast отправляет событие подходящим клиентам.
// Медленные клиенты с переполненным буфером пропускают событие.
func (h *Hub) Broadcast(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		h.logger.Error("failed to marshal event", "event", e.Event, "error", err)
		return
	}

	h.lock.RLock()
	defer h.lock.RUnlock()

	for c := range h.clients {
		if c.orderID != "" && c.orderID != e.Data.OrderID {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Warn("client send buffer full, dropping event", "event", e.Event)
		}
	}
}

// OrderUpdated реализует Notifier.
func (h *Hub) OrderUpdated(_ context.Context, orderID string) {
	h.Broadcast(OrderEvent(orderID))
}

// TaskUpdated реализует Notifier.
func (h *Hub) TaskUpdated(_ context.Context, taskID, orderID string, status domain.TaskStatus) {
	h.Broadcast(TaskEvent(taskID, orderID, status))
}

// ServeWS апгрейдит HTTP соединение до WebSocket и регистрирует клиента.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		orderID: r.URL.Query().Get("order_id"),
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	case <-r.Context().Done():
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump читает входящие кадры, чтобы обрабатывать pong и закрытие.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump пишет события из send и отправляет ping.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
