package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shaiso/Orderflow/internal/domain"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTPExecutor вызывает внешний provisioning backend.
//
// Запрос: POST {BaseURL}/{task_type в нижнем регистре}
//
//	{"task_id": "...", "order_id": "...", "task_type": "PROVISION", "attempt": 0}
//
// Ответ 2xx — успех; JSON-объект из тела становится Result.Data.
// Любой другой код — ошибка с кодом и началом тела ответа.
type HTTPExecutor struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPExecutor создаёт HTTPExecutor с таймаутом по умолчанию.
func NewHTTPExecutor(baseURL string) *HTTPExecutor {
	return &HTTPExecutor{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// httpTaskRequest — тело запроса к backend'у.
type httpTaskRequest struct {
	TaskID   string          `json:"task_id"`
	OrderID  string          `json:"order_id"`
	TaskType domain.TaskType `json:"task_type"`
	Attempt  int             `json:"attempt"`
}

// Execute выполняет HTTP-запрос.
func (e *HTTPExecutor) Execute(ctx context.Context, task *domain.Task) (*Result, error) {
	body, err := json.Marshal(httpTaskRequest{
		TaskID:   task.TaskID,
		OrderID:  task.OrderID,
		TaskType: task.TaskType,
		Attempt:  task.RetryCount,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal body: %v", ErrHTTPRequest, err)
	}

	url := e.BaseURL + "/" + strings.ToLower(string(task.TaskType))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrHTTPRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", fmt.Sprintf("%s-%d", task.TaskID, task.RetryCount))

	client := e.Client
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHTTPRequest, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrHTTPRequest, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrHTTPRequest, resp.StatusCode, truncate(string(respBody), 200))
	}

	return &Result{Data: parseData(respBody, resp.StatusCode)}, nil
}

// parseData превращает тело ответа в данные результата: JSON-объект
// как есть, иначе {"status_code", "body"}.
func parseData(body []byte, statusCode int) map[string]any {
	var data map[string]any
	if err := json.Unmarshal(body, &data); err == nil && data != nil {
		return data
	}

	data = map[string]any{"status_code": statusCode}
	if len(body) > 0 {
		data["body"] = truncate(string(body), 1000)
	}
	return data
}

// truncate обрезает строку до указанной длины.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
