package worker

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/Orderflow/internal/domain"
	"github.com/shaiso/Orderflow/internal/engine"
	"github.com/shaiso/Orderflow/internal/lock"
	"github.com/shaiso/Orderflow/internal/mq"
	"github.com/shaiso/Orderflow/internal/notify"
	"github.com/shaiso/Orderflow/internal/orchestrator"
	"github.com/shaiso/Orderflow/internal/repo"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func succeed(data map[string]any) ExecutorFunc {
	return func(context.Context, *domain.Task) (*Result, error) {
		return &Result{Data: data}, nil
	}
}

func seedTask(t *testing.T, tasks *repo.MemoryTaskRepo, taskID string, status domain.TaskStatus) {
	t.Helper()

	task := domain.NewTask(taskID, "ORD-1", domain.TaskTypeProvision, nil, 1, testNow)
	task.Status = status
	if err := tasks.CreateBatch(context.Background(), []domain.Task{task}); err != nil {
		t.Fatalf("seed task: %v", err)
	}
}

func getTask(t *testing.T, tasks *repo.MemoryTaskRepo, taskID string) *domain.Task {
	t.Helper()
	task, err := tasks.GetByID(context.Background(), taskID)
	if err != nil {
		t.Fatalf("get task %s: %v", taskID, err)
	}
	return task
}

func newTestRunner(tasks *repo.MemoryTaskRepo, registry *Registry, events notify.Notifier) *Runner {
	return NewRunner(RunnerConfig{
		Tasks:    tasks,
		Registry: registry,
		Notifier: events,
		Clock:    func() time.Time { return testNow },
	})
}

// --- Registry ---

func TestRegistry_Get(t *testing.T) {
	provision := succeed(map[string]any{"kind": "provision"})
	fallback := succeed(map[string]any{"kind": "fallback"})

	r := NewRegistry(fallback)
	r.Register(domain.TaskTypeProvision, provision)

	ex, err := r.Get(domain.TaskTypeProvision)
	if err != nil {
		t.Fatalf("Get(PROVISION): %v", err)
	}
	res, _ := ex.Execute(context.Background(), &domain.Task{})
	if res.Data["kind"] != "provision" {
		t.Errorf("PROVISION executor = %v, want provision", res.Data["kind"])
	}

	ex, err = r.Get(domain.TaskTypeBilling)
	if err != nil {
		t.Fatalf("Get(BILLING): %v", err)
	}
	res, _ = ex.Execute(context.Background(), &domain.Task{})
	if res.Data["kind"] != "fallback" {
		t.Errorf("BILLING executor = %v, want fallback", res.Data["kind"])
	}
}

func TestRegistry_NoFallback(t *testing.T) {
	r := NewRegistry(nil)

	_, err := r.Get(domain.TaskTypeValidate)
	if !errors.Is(err, ErrNoExecutor) {
		t.Errorf("error = %v, want ErrNoExecutor", err)
	}
}

// --- SimulatedExecutor ---

func TestSimulatedExecutor(t *testing.T) {
	task := &domain.Task{TaskID: "ORD-1-TASK-1", TaskType: domain.TaskTypeBilling}

	t.Run("success", func(t *testing.T) {
		ex := &SimulatedExecutor{
			FailureRate: 0,
			Rand:        rand.New(rand.NewPCG(1, 2)),
			Now:         func() time.Time { return testNow },
		}

		res, err := ex.Execute(context.Background(), task)
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if res.Data["taskType"] != "BILLING" {
			t.Errorf("taskType = %v, want BILLING", res.Data["taskType"])
		}
		if res.Data["completedAt"] != testNow.Format(time.RFC3339Nano) {
			t.Errorf("completedAt = %v", res.Data["completedAt"])
		}
	})

	t.Run("failure", func(t *testing.T) {
		ex := &SimulatedExecutor{FailureRate: 1, Rand: rand.New(rand.NewPCG(1, 2))}

		_, err := ex.Execute(context.Background(), task)
		if !errors.Is(err, ErrSimulatedFailure) {
			t.Fatalf("error = %v, want ErrSimulatedFailure", err)
		}
		if !strings.Contains(err.Error(), "BILLING") {
			t.Errorf("error %q does not name task type", err)
		}
	})

	t.Run("context cancel", func(t *testing.T) {
		ex := &SimulatedExecutor{MinDelay: time.Hour, MaxDelay: time.Hour}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := ex.Execute(ctx, task)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	})
}

func TestSimulatedExecutor_DelayWithinBounds(t *testing.T) {
	ex := &SimulatedExecutor{
		MinDelay: 10 * time.Millisecond,
		MaxDelay: 20 * time.Millisecond,
		Rand:     rand.New(rand.NewPCG(3, 4)),
	}

	for range 100 {
		d := ex.delay()
		if d < ex.MinDelay || d >= ex.MaxDelay {
			t.Fatalf("delay %v outside [%v, %v)", d, ex.MinDelay, ex.MaxDelay)
		}
	}
}

// --- HTTPExecutor ---

func TestHTTPExecutor_Success(t *testing.T) {
	var got httpTaskRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/provision" {
			t.Errorf("path = %s, want /provision", r.URL.Path)
		}
		if key := r.Header.Get("Idempotency-Key"); key != "ORD-1-TASK-2-1" {
			t.Errorf("Idempotency-Key = %q", key)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"circuit_id":"C-42"}`))
	}))
	defer server.Close()

	ex := NewHTTPExecutor(server.URL + "/")
	task := &domain.Task{TaskID: "ORD-1-TASK-2", OrderID: "ORD-1", TaskType: domain.TaskTypeProvision, RetryCount: 1}

	res, err := ex.Execute(context.Background(), task)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Data["circuit_id"] != "C-42" {
		t.Errorf("data = %v", res.Data)
	}
	if got.TaskID != "ORD-1-TASK-2" || got.OrderID != "ORD-1" || got.Attempt != 1 {
		t.Errorf("request body = %+v", got)
	}
}

func TestHTTPExecutor_NonJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("queued"))
	}))
	defer server.Close()

	res, err := NewHTTPExecutor(server.URL).Execute(context.Background(), &domain.Task{TaskType: domain.TaskTypeBilling})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Data["status_code"] != http.StatusAccepted || res.Data["body"] != "queued" {
		t.Errorf("data = %v", res.Data)
	}
}

func TestHTTPExecutor_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "backend down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewHTTPExecutor(server.URL).Execute(context.Background(), &domain.Task{TaskType: domain.TaskTypeValidate})
	if !errors.Is(err, ErrHTTPRequest) {
		t.Fatalf("error = %v, want ErrHTTPRequest", err)
	}
	if !strings.Contains(err.Error(), "HTTP 503") {
		t.Errorf("error %q does not contain status code", err)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	if got := truncate("0123456789abc", 10); got != "0123456789..." {
		t.Errorf("truncate(long) = %q", got)
	}
}

// --- Runner ---

func TestRunner_Completes(t *testing.T) {
	tasks := repo.NewMemoryTaskRepo()
	seedTask(t, tasks, "ORD-1-TASK-1", domain.TaskStatusReady)
	events := notify.NewRecorder(10)

	r := newTestRunner(tasks, NewRegistry(succeed(map[string]any{"ok": true})), events)

	status, err := r.RunTask(context.Background(), "ORD-1-TASK-1")
	if err != nil {
		t.Fatalf("RunTask: %v", err)
	}
	if status != domain.TaskStatusCompleted {
		t.Errorf("status = %s, want COMPLETED", status)
	}

	task := getTask(t, tasks, "ORD-1-TASK-1")
	if task.Status != domain.TaskStatusCompleted {
		t.Errorf("stored status = %s", task.Status)
	}
	if task.Result == nil || !task.Result.Success || task.Result.Data["ok"] != true {
		t.Errorf("result = %+v", task.Result)
	}
	if task.StartedAt == nil || task.CompletedAt == nil {
		t.Error("timestamps not set")
	}

	got := events.Events()
	want := []notify.Event{
		notify.TaskEvent("ORD-1-TASK-1", "ORD-1", domain.TaskStatusRunning),
		notify.TaskEvent("ORD-1-TASK-1", "ORD-1", domain.TaskStatusCompleted),
	}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRunner_Fails(t *testing.T) {
	tasks := repo.NewMemoryTaskRepo()
	seedTask(t, tasks, "ORD-1-TASK-1", domain.TaskStatusReady)

	failing := ExecutorFunc(func(context.Context, *domain.Task) (*Result, error) {
		return nil, errors.New("circuit unavailable")
	})
	r := newTestRunner(tasks, NewRegistry(failing), nil)

	status, err := r.RunTask(context.Background(), "ORD-1-TASK-1")
	if err != nil {
		t.Fatalf("RunTask: %v", err)
	}
	if status != domain.TaskStatusFailed {
		t.Errorf("status = %s, want FAILED", status)
	}

	task := getTask(t, tasks, "ORD-1-TASK-1")
	if task.Error == nil || task.Error.Message != "circuit unavailable" || task.Error.Code != domain.FailureCodeExecution {
		t.Errorf("error = %+v", task.Error)
	}
	if task.FailedAt == nil {
		t.Error("FailedAt not set")
	}
}

func TestRunner_PanicBecomesFailure(t *testing.T) {
	tasks := repo.NewMemoryTaskRepo()
	seedTask(t, tasks, "ORD-1-TASK-1", domain.TaskStatusReady)

	panicking := ExecutorFunc(func(context.Context, *domain.Task) (*Result, error) {
		panic("boom")
	})
	r := newTestRunner(tasks, NewRegistry(panicking), nil)

	status, err := r.RunTask(context.Background(), "ORD-1-TASK-1")
	if err != nil {
		t.Fatalf("RunTask: %v", err)
	}
	if status != domain.TaskStatusFailed {
		t.Errorf("status = %s, want FAILED", status)
	}
	if msg := getTask(t, tasks, "ORD-1-TASK-1").ErrorMessage(); !strings.Contains(msg, "boom") {
		t.Errorf("error message = %q", msg)
	}
}

func TestRunner_NoExecutorFailsTask(t *testing.T) {
	tasks := repo.NewMemoryTaskRepo()
	seedTask(t, tasks, "ORD-1-TASK-1", domain.TaskStatusReady)

	r := newTestRunner(tasks, NewRegistry(nil), nil)

	status, err := r.RunTask(context.Background(), "ORD-1-TASK-1")
	if err != nil {
		t.Fatalf("RunTask: %v", err)
	}
	if status != domain.TaskStatusFailed {
		t.Errorf("status = %s, want FAILED", status)
	}
}

func TestRunner_NotRunnable(t *testing.T) {
	for _, status := range []domain.TaskStatus{
		domain.TaskStatusPending,
		domain.TaskStatusCompleted,
		domain.TaskStatusFailed,
	} {
		t.Run(string(status), func(t *testing.T) {
			tasks := repo.NewMemoryTaskRepo()
			seedTask(t, tasks, "ORD-1-TASK-1", status)
			writes := tasks.Writes()

			called := false
			ex := ExecutorFunc(func(context.Context, *domain.Task) (*Result, error) {
				called = true
				return &Result{}, nil
			})
			r := newTestRunner(tasks, NewRegistry(ex), nil)

			got, err := r.RunTask(context.Background(), "ORD-1-TASK-1")
			if !errors.Is(err, ErrTaskNotRunnable) {
				t.Fatalf("error = %v, want ErrTaskNotRunnable", err)
			}
			if domain.KindOf(err) != domain.KindConflict {
				t.Errorf("kind = %s, want conflict", domain.KindOf(err))
			}
			if got != status {
				t.Errorf("status = %s, want %s", got, status)
			}
			if called {
				t.Error("executor called for non-runnable task")
			}
			if tasks.Writes() != writes {
				t.Error("task was written")
			}
		})
	}
}

func TestRunner_UnknownTask(t *testing.T) {
	r := newTestRunner(repo.NewMemoryTaskRepo(), NewRegistry(succeed(nil)), nil)

	_, err := r.RunTask(context.Background(), "ORD-404-TASK-1")
	if !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("error = %v, want ErrTaskNotFound", err)
	}
	if domain.KindOf(err) != domain.KindNotFound {
		t.Errorf("kind = %s, want not_found", domain.KindOf(err))
	}
}

func TestRunner_StaleExecutionDiscarded(t *testing.T) {
	tasks := repo.NewMemoryTaskRepo()
	seedTask(t, tasks, "ORD-1-TASK-1", domain.TaskStatusReady)

	// Пока executor работает, task признаётся зависшей.
	ex := ExecutorFunc(func(ctx context.Context, task *domain.Task) (*Result, error) {
		stored, err := tasks.GetByID(ctx, task.TaskID)
		if err != nil {
			return nil, err
		}
		stored.MarkFailed("Task exceeded visibility timeout", domain.FailureCodeVisibilityTimeout, testNow)
		if err := tasks.Update(ctx, stored); err != nil {
			return nil, err
		}
		return &Result{Data: map[string]any{"late": true}}, nil
	})
	r := newTestRunner(tasks, NewRegistry(ex), nil)

	_, err := r.RunTask(context.Background(), "ORD-1-TASK-1")
	if !errors.Is(err, ErrStaleExecution) {
		t.Fatalf("error = %v, want ErrStaleExecution", err)
	}

	task := getTask(t, tasks, "ORD-1-TASK-1")
	if task.Status != domain.TaskStatusFailed || task.Error.Code != domain.FailureCodeVisibilityTimeout {
		t.Errorf("task overwritten: status=%s error=%+v", task.Status, task.Error)
	}
}

// --- Worker ---

type fakePublisher struct {
	mu       sync.Mutex
	payloads []mq.TaskCompletedPayload
}

func (p *fakePublisher) PublishTaskCompleted(_ context.Context, payload mq.TaskCompletedPayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, payload)
	return nil
}

func (p *fakePublisher) Payloads() []mq.TaskCompletedPayload {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]mq.TaskCompletedPayload(nil), p.payloads...)
}

func newTestWorker(tasks *repo.MemoryTaskRepo, ex Executor, pub OutcomePublisher) *Worker {
	return New(Config{
		Runner:    newTestRunner(tasks, NewRegistry(ex), nil),
		Tasks:     tasks,
		Publisher: pub,
	})
}

func TestWorker_PublishesOutcome(t *testing.T) {
	tasks := repo.NewMemoryTaskRepo()
	seedTask(t, tasks, "ORD-1-TASK-1", domain.TaskStatusReady)
	pub := &fakePublisher{}

	w := newTestWorker(tasks, succeed(nil), pub)
	if err := w.processTask(context.Background(), "ORD-1-TASK-1"); err != nil {
		t.Fatalf("processTask: %v", err)
	}

	got := pub.Payloads()
	if len(got) != 1 {
		t.Fatalf("published %d payloads, want 1", len(got))
	}
	want := mq.TaskCompletedPayload{
		TaskID:   "ORD-1-TASK-1",
		OrderID:  "ORD-1",
		TaskType: domain.TaskTypeProvision,
		Status:   domain.TaskStatusCompleted,
	}
	if got[0] != want {
		t.Errorf("payload = %+v, want %+v", got[0], want)
	}
}

func TestWorker_RedeliveryOfFinishedTaskRepublishes(t *testing.T) {
	tasks := repo.NewMemoryTaskRepo()
	seedTask(t, tasks, "ORD-1-TASK-1", domain.TaskStatusCompleted)
	pub := &fakePublisher{}

	w := newTestWorker(tasks, succeed(nil), pub)
	if err := w.processTask(context.Background(), "ORD-1-TASK-1"); err != nil {
		t.Fatalf("processTask: %v", err)
	}

	got := pub.Payloads()
	if len(got) != 1 || got[0].Status != domain.TaskStatusCompleted {
		t.Errorf("payloads = %+v, want one COMPLETED", got)
	}
}

func TestWorker_PendingTaskSkipped(t *testing.T) {
	tasks := repo.NewMemoryTaskRepo()
	seedTask(t, tasks, "ORD-1-TASK-1", domain.TaskStatusPending)
	pub := &fakePublisher{}

	w := newTestWorker(tasks, succeed(nil), pub)
	if err := w.processTask(context.Background(), "ORD-1-TASK-1"); err != nil {
		t.Fatalf("processTask: %v", err)
	}
	if len(pub.Payloads()) != 0 {
		t.Error("outcome published for pending task")
	}
}

func TestWorker_UnknownTaskIsPermanent(t *testing.T) {
	w := newTestWorker(repo.NewMemoryTaskRepo(), succeed(nil), &fakePublisher{})

	err := w.processTask(context.Background(), "ORD-404-TASK-1")
	if !mq.IsPermanent(err) {
		t.Errorf("error = %v, want permanent", err)
	}
}

func TestWorker_StartRequiresConnection(t *testing.T) {
	w := newTestWorker(repo.NewMemoryTaskRepo(), succeed(nil), &fakePublisher{})
	if err := w.Start(context.Background()); err == nil {
		t.Error("expected error without connection")
	}
}

// --- LocalPool ---

type standalone struct {
	orch   *orchestrator.Orchestrator
	pool   *LocalPool
	orders *repo.MemoryOrderRepo
	tasks  *repo.MemoryTaskRepo
}

func newStandalone(t *testing.T, ex Executor) *standalone {
	t.Helper()

	s := &standalone{
		orders: repo.NewMemoryOrderRepo(),
		tasks:  repo.NewMemoryTaskRepo(),
	}
	locker := lock.NewKeyedMutex()

	runner := NewRunner(RunnerConfig{
		Tasks:    s.tasks,
		Registry: NewRegistry(ex),
		Locker:   locker,
	})
	s.pool = NewLocalPool(LocalConfig{Runner: runner, Concurrency: 3})
	s.orch = orchestrator.New(orchestrator.Config{
		Orders:        s.orders,
		Tasks:         s.tasks,
		Dispatcher:    s.pool,
		Locker:        locker,
		Blueprints:    engine.Blueprints{},
		RetryDelay:    time.Millisecond,
		ReconcileSpec: "-",
	})
	s.pool.SetOutcomeHandler(s.orch)

	if err := s.pool.Start(context.Background()); err != nil {
		t.Fatalf("start pool: %v", err)
	}
	t.Cleanup(s.pool.Stop)
	return s
}

func (s *standalone) run(t *testing.T, orderID string, orderType domain.OrderType) {
	t.Helper()
	ctx := context.Background()

	order := domain.NewOrder(orderID, orderType, "CUST-1", "", []domain.Service{{Type: "internet"}}, testNow)
	if err := order.TransitionTo(domain.OrderStatusInProgress, "", testNow); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if err := s.orders.Create(ctx, order); err != nil {
		t.Fatalf("create order: %v", err)
	}
	if _, err := s.orch.MaterializeTasks(ctx, orderID, orderType); err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if _, err := s.orch.DispatchReady(ctx, orderID); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
}

func (s *standalone) waitOrder(t *testing.T, orderID string) *domain.Order {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		order, err := s.orders.GetByID(context.Background(), orderID)
		if err != nil {
			t.Fatalf("get order: %v", err)
		}
		if order.Status.IsTerminal() {
			return order
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("order %s did not finish", orderID)
	return nil
}

func TestLocalPool_RunsOrderToCompletion(t *testing.T) {
	var (
		mu    sync.Mutex
		order []domain.TaskType
	)
	ex := ExecutorFunc(func(_ context.Context, task *domain.Task) (*Result, error) {
		mu.Lock()
		order = append(order, task.TaskType)
		mu.Unlock()
		return &Result{}, nil
	})

	s := newStandalone(t, ex)
	s.run(t, "ORD-1", domain.OrderTypeInstall)

	if got := s.waitOrder(t, "ORD-1"); got.Status != domain.OrderStatusCompleted {
		t.Fatalf("order status = %s, want COMPLETED", got.Status)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []domain.TaskType{domain.TaskTypeValidate, domain.TaskTypeProvision, domain.TaskTypeBilling}
	if len(order) != len(want) {
		t.Fatalf("executed %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("execution[%d] = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestLocalPool_RetriesFailedTask(t *testing.T) {
	var (
		mu       sync.Mutex
		attempts int
	)
	ex := ExecutorFunc(func(_ context.Context, task *domain.Task) (*Result, error) {
		if task.TaskType != domain.TaskTypeProvision {
			return &Result{}, nil
		}
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 1 {
			return nil, errors.New("transient")
		}
		return &Result{}, nil
	})

	s := newStandalone(t, ex)
	s.run(t, "ORD-2", domain.OrderTypeInstall)

	if got := s.waitOrder(t, "ORD-2"); got.Status != domain.OrderStatusCompleted {
		t.Fatalf("order status = %s, want COMPLETED", got.Status)
	}

	provision := getTask(t, s.tasks, engine.TaskID("ORD-2", 2))
	if provision.RetryCount != 1 {
		t.Errorf("retry count = %d, want 1", provision.RetryCount)
	}
}

func TestLocalPool_ExhaustedRetriesFailOrder(t *testing.T) {
	ex := ExecutorFunc(func(_ context.Context, task *domain.Task) (*Result, error) {
		if task.TaskType == domain.TaskTypeValidate {
			return nil, errors.New("invalid address")
		}
		return &Result{}, nil
	})

	s := newStandalone(t, ex)
	s.run(t, "ORD-3", domain.OrderTypeDisconnect)

	got := s.waitOrder(t, "ORD-3")
	if got.Status != domain.OrderStatusFailed {
		t.Fatalf("order status = %s, want FAILED", got.Status)
	}

	validate := getTask(t, s.tasks, engine.TaskID("ORD-3", 1))
	if validate.RetryCount != domain.DefaultMaxRetries {
		t.Errorf("retry count = %d, want %d", validate.RetryCount, domain.DefaultMaxRetries)
	}
	billing := getTask(t, s.tasks, engine.TaskID("ORD-3", 2))
	if billing.Status != domain.TaskStatusPending {
		t.Errorf("dependent task status = %s, want PENDING", billing.Status)
	}
}

func TestLocalPool_EnqueueAfterStop(t *testing.T) {
	pool := NewLocalPool(LocalConfig{Runner: newTestRunner(repo.NewMemoryTaskRepo(), nil, nil)})
	pool.Stop()

	if err := pool.Enqueue(context.Background(), "ORD-1-TASK-1"); !errors.Is(err, ErrWorkerStopped) {
		t.Errorf("Enqueue error = %v, want ErrWorkerStopped", err)
	}
	if err := pool.EnqueueDelayed(context.Background(), "ORD-1-TASK-1", time.Second); !errors.Is(err, ErrWorkerStopped) {
		t.Errorf("EnqueueDelayed error = %v, want ErrWorkerStopped", err)
	}
}

func TestLocalPool_StopDropsDelayedTasks(t *testing.T) {
	pool := NewLocalPool(LocalConfig{Runner: newTestRunner(repo.NewMemoryTaskRepo(), nil, nil)})

	if err := pool.EnqueueDelayed(context.Background(), "ORD-1-TASK-1", time.Hour); err != nil {
		t.Fatalf("EnqueueDelayed: %v", err)
	}
	if pool.Pending() != 1 {
		t.Errorf("Pending = %d, want 1", pool.Pending())
	}

	pool.Stop()
	if pool.Pending() != 0 {
		t.Errorf("Pending after Stop = %d, want 0", pool.Pending())
	}
}

func TestLocalPool_StartRequiresOutcomeHandler(t *testing.T) {
	pool := NewLocalPool(LocalConfig{Runner: newTestRunner(repo.NewMemoryTaskRepo(), nil, nil)})
	if err := pool.Start(context.Background()); err == nil {
		t.Error("expected error without outcome handler")
	}
}
