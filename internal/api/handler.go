package api

import (
	"log/slog"

	"github.com/shaiso/Orderflow/internal/notify"
	"github.com/shaiso/Orderflow/internal/orders"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	orders *orders.Service
	hub    *notify.Hub
	logger *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Orders *orders.Service

	// Hub — WebSocket-уведомления на /ws (nil — маршрут не регистрируется).
	Hub *notify.Hub

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		orders: cfg.Orders,
		hub:    cfg.Hub,
		logger: logger,
	}
}
