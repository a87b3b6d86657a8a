package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Orders
	mux.Handle("GET /api/v1/orders", chain(http.HandlerFunc(h.ListOrders)))
	mux.Handle("POST /api/v1/orders", chain(http.HandlerFunc(h.CreateOrder)))
	mux.Handle("GET /api/v1/orders/{id}", chain(http.HandlerFunc(h.GetOrder)))
	mux.Handle("PATCH /api/v1/orders/{id}/status", chain(http.HandlerFunc(h.TransitionOrder)))
	mux.Handle("GET /api/v1/orders/{id}/tasks", chain(http.HandlerFunc(h.ListOrderTasks)))

	// Tasks
	mux.Handle("GET /api/v1/tasks", chain(http.HandlerFunc(h.ListTasks)))

	// WebSocket: без Logging, соединение живёт долго и требует Hijack
	if h.hub != nil {
		mux.Handle("GET /ws", Recovery(h.logger)(http.HandlerFunc(h.hub.ServeWS)))
	}
}
