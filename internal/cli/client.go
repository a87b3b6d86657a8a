package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// ServiceItem — услуга в заказе.
type ServiceItem struct {
	Type  string `json:"type"`
	Speed string `json:"speed,omitempty"`
}

// StateTransition — запись истории статусов.
type StateTransition struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Timestamp string `json:"timestamp"`
}

// Progress — статистика tasks заказа.
type Progress struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Ready     int `json:"ready"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Percent   int `json:"percent"`
}

// OrderResponse — заказ из API.
type OrderResponse struct {
	OrderID       string            `json:"order_id"`
	OrderType     string            `json:"order_type"`
	CustomerID    string            `json:"customer_id"`
	CustomerName  string            `json:"customer_name,omitempty"`
	Services      []ServiceItem     `json:"services"`
	Status        string            `json:"status"`
	StateHistory  []StateTransition `json:"state_history"`
	CompletedAt   string            `json:"completed_at,omitempty"`
	FailedAt      string            `json:"failed_at,omitempty"`
	FailureReason string            `json:"failure_reason,omitempty"`
	CreatedAt     string            `json:"created_at"`
	UpdatedAt     string            `json:"updated_at"`
	Progress      *Progress         `json:"progress,omitempty"`
}

// TaskError — ошибка последней попытки.
type TaskError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// TaskResponse — task из API.
type TaskResponse struct {
	TaskID      string         `json:"task_id"`
	OrderID     string         `json:"order_id"`
	TaskType    string         `json:"task_type"`
	Status      string         `json:"status"`
	DependsOn   []string       `json:"depends_on"`
	RetryCount  int            `json:"retry_count"`
	MaxRetries  int            `json:"max_retries"`
	StartedAt   string         `json:"started_at,omitempty"`
	CompletedAt string         `json:"completed_at,omitempty"`
	FailedAt    string         `json:"failed_at,omitempty"`
	Error       *TaskError     `json:"error,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	CreatedAt   string         `json:"created_at"`
}

// ErrorMessage возвращает текст ошибки или пустую строку.
func (t TaskResponse) ErrorMessage() string {
	if t.Error == nil {
		return ""
	}
	return t.Error.Message
}

// Event — уведомление из /ws.
type Event struct {
	Event string `json:"event"`
	Data  struct {
		OrderID string `json:"orderId"`
		TaskID  string `json:"taskId,omitempty"`
		Status  string `json:"status,omitempty"`
	} `json:"data"`
}

// --- Request types ---

// CreateOrderRequest — создание заказа.
type CreateOrderRequest struct {
	OrderType    string        `json:"order_type"`
	CustomerID   string        `json:"customer_id"`
	CustomerName string        `json:"customer_name,omitempty"`
	Services     []ServiceItem `json:"services"`
}

// TransitionRequest — смена статуса заказа.
type TransitionRequest struct {
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// ListOrdersOpts — параметры фильтрации заказов.
type ListOrdersOpts struct {
	Status     string
	CustomerID string
	Limit      int
}

// ListTasksOpts — параметры фильтрации tasks.
type ListTasksOpts struct {
	OrderID string
	Status  string
	Limit   int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Orderflow API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Orders ---

// ListOrders возвращает заказы с фильтрацией.
func (c *Client) ListOrders(opts ListOrdersOpts) ([]OrderResponse, error) {
	params := url.Values{}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.CustomerID != "" {
		params.Set("customer_id", opts.CustomerID)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}

	var orders []OrderResponse
	err := c.list("/api/v1/orders", params, &orders)
	return orders, err
}

// CreateOrder создаёт заказ.
func (c *Client) CreateOrder(req CreateOrderRequest) (*OrderResponse, error) {
	var order OrderResponse
	err := c.post("/api/v1/orders", req, &order)
	return &order, err
}

// GetOrder возвращает заказ с прогрессом tasks.
func (c *Client) GetOrder(id string) (*OrderResponse, error) {
	var order OrderResponse
	err := c.get("/api/v1/orders/"+url.PathEscape(id), &order)
	return &order, err
}

// TransitionOrder меняет статус заказа.
func (c *Client) TransitionOrder(id string, req TransitionRequest) (*OrderResponse, error) {
	var order OrderResponse
	err := c.doData(http.MethodPatch, "/api/v1/orders/"+url.PathEscape(id)+"/status", req, &order)
	return &order, err
}

// ListOrderTasks возвращает tasks заказа.
func (c *Client) ListOrderTasks(orderID string) ([]TaskResponse, error) {
	var tasks []TaskResponse
	err := c.list("/api/v1/orders/"+url.PathEscape(orderID)+"/tasks", nil, &tasks)
	return tasks, err
}

// --- Tasks ---

// ListTasks возвращает tasks с фильтрацией.
func (c *Client) ListTasks(opts ListTasksOpts) ([]TaskResponse, error) {
	params := url.Values{}
	if opts.OrderID != "" {
		params.Set("order_id", opts.OrderID)
	}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}

	var tasks []TaskResponse
	err := c.list("/api/v1/tasks", params, &tasks)
	return tasks, err
}

// --- Events ---

// Watch подключается к /ws и вызывает fn для каждого события,
// пока ctx не отменён или fn не вернёт ошибку.
func (c *Client) Watch(ctx context.Context, fn func(Event) error) error {
	wsURL, err := url.Parse(c.baseURL + "/ws")
	if err != nil {
		return fmt.Errorf("invalid api url: %w", err)
	}
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", wsURL, err)
	}
	defer conn.Close()

	// ReadJSON не принимает ctx: закрываем соединение при отмене
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var e Event
		if err := conn.ReadJSON(&e); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read event: %w", err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
