package api

import (
	"net/http"

	"github.com/shaiso/Orderflow/internal/domain"
	"github.com/shaiso/Orderflow/internal/repo"
)

// ListTasks возвращает tasks с фильтрацией.
// GET /api/v1/tasks?order_id=...&status=...&limit=...&offset=...
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	filter := repo.TaskFilter{
		OrderID: r.URL.Query().Get("order_id"),
		Status:  domain.TaskStatus(r.URL.Query().Get("status")),
	}

	var ok bool
	if filter.Limit, filter.Offset, ok = parsePage(w, r); !ok {
		return
	}

	tasks, err := h.orders.SearchTasks(r.Context(), filter)
	if HandleError(w, h.logger, err) {
		return
	}

	List(w, TasksFromDomain(tasks), len(tasks))
}
