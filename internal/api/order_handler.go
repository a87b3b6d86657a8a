package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/shaiso/Orderflow/internal/domain"
	"github.com/shaiso/Orderflow/internal/orders"
	"github.com/shaiso/Orderflow/internal/repo"
	"github.com/shaiso/Orderflow/internal/telemetry"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// ListOrders возвращает список заказов с фильтрацией.
// GET /api/v1/orders?status=...&customer_id=...&limit=...&offset=...
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	filter := repo.OrderFilter{
		CustomerID: r.URL.Query().Get("customer_id"),
	}

	if status := r.URL.Query().Get("status"); status != "" {
		s, err := domain.ParseOrderStatus(status)
		if HandleError(w, h.logger, err) {
			return
		}
		filter.Status = s
	}

	var ok bool
	if filter.Limit, filter.Offset, ok = parsePage(w, r); !ok {
		return
	}

	list, err := h.orders.List(r.Context(), filter)
	if HandleError(w, h.logger, err) {
		return
	}

	result := make([]OrderResponse, len(list))
	for i, o := range list {
		result[i] = OrderFromDomain(o)
	}

	List(w, result, len(result))
}

// CreateOrder создаёт заказ в статусе CREATED.
// POST /api/v1/orders
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	order, err := h.orders.Create(r.Context(), orders.CreateInput{
		OrderType:    req.OrderType,
		CustomerID:   req.CustomerID,
		CustomerName: req.CustomerName,
		Services:     req.Services,
	})
	if HandleError(w, h.logger, err) {
		return
	}

	Created(w, OrderFromDomain(*order))
}

// GetOrder возвращает заказ вместе с прогрессом его tasks.
// GET /api/v1/orders/{id}
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("id")

	order, err := h.orders.Get(r.Context(), orderID)
	if HandleError(w, h.logger, err) {
		return
	}

	tasks, err := h.orders.ListTasks(r.Context(), orderID)
	if HandleError(w, h.logger, err) {
		return
	}

	resp := OrderFromDomain(*order)
	resp.Progress = ProgressFromTasks(tasks)

	Success(w, resp)
}

// TransitionOrder меняет статус заказа.
// PATCH /api/v1/orders/{id}/status
func (h *Handler) TransitionOrder(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("id")

	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.Status == "" {
		BadRequest(w, "status is required")
		return
	}

	order, err := h.orders.TransitionString(r.Context(), orderID, req.Status, req.FailureReason)
	if err != nil {
		// Заказ уже перешёл, но tasks не созданы: отдаём ошибку,
		// клиент увидит статус через GET
		if order != nil {
			telemetry.FromContext(r.Context()).Warn("transition applied with errors",
				"order_id", orderID,
				"status", order.Status,
				"error", err,
			)
		}
		HandleError(w, h.logger, err)
		return
	}

	Success(w, OrderFromDomain(*order))
}

// ListOrderTasks возвращает tasks заказа в порядке создания.
// GET /api/v1/orders/{id}/tasks
func (h *Handler) ListOrderTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.orders.ListTasks(r.Context(), r.PathValue("id"))
	if HandleError(w, h.logger, err) {
		return
	}

	List(w, TasksFromDomain(tasks), len(tasks))
}

// parsePage читает limit и offset. При ошибке отвечает 400 и возвращает false.
func parsePage(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	limit, offset = defaultListLimit, 0

	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			BadRequest(w, "invalid limit")
			return 0, 0, false
		}
		limit = min(n, maxListLimit)
	}

	if s := r.URL.Query().Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			BadRequest(w, "invalid offset")
			return 0, 0, false
		}
		offset = n
	}

	return limit, offset, true
}
