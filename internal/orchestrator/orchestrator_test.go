package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/Orderflow/internal/domain"
	"github.com/shaiso/Orderflow/internal/engine"
	"github.com/shaiso/Orderflow/internal/notify"
	"github.com/shaiso/Orderflow/internal/repo"
)

// --- fakes ---

type delayedCall struct {
	taskID string
	delay  time.Duration
}

type fakeDispatcher struct {
	mu       sync.Mutex
	enqueued []string
	delayed  []delayedCall
}

func (d *fakeDispatcher) Enqueue(_ context.Context, taskID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enqueued = append(d.enqueued, taskID)
	return nil
}

func (d *fakeDispatcher) EnqueueDelayed(_ context.Context, taskID string, delay time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delayed = append(d.delayed, delayedCall{taskID: taskID, delay: delay})
	return nil
}

func (d *fakeDispatcher) Enqueued() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.enqueued...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// stepsBlueprint возвращает заранее заданные шаги для любого заказа.
type stepsBlueprint []engine.Step

func (b stepsBlueprint) Generate(string, domain.OrderType) ([]engine.Step, error) {
	return b, nil
}

type env struct {
	orch   *Orchestrator
	orders *repo.MemoryOrderRepo
	tasks  *repo.MemoryTaskRepo
	disp   *fakeDispatcher
	events *notify.Recorder
	clock  *fakeClock
}

func newEnv(t *testing.T, blueprints Blueprinter) *env {
	t.Helper()

	e := &env{
		orders: repo.NewMemoryOrderRepo(),
		tasks:  repo.NewMemoryTaskRepo(),
		disp:   &fakeDispatcher{},
		events: notify.NewRecorder(100),
		clock:  &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	e.orch = New(Config{
		Orders:     e.orders,
		Tasks:      e.tasks,
		Dispatcher: e.disp,
		Notifier:   e.events,
		Blueprints: blueprints,
		Clock:      e.clock.Now,
	})
	return e
}

// startOrder создаёт заказ в IN_PROGRESS и материализует его tasks.
func (e *env) startOrder(t *testing.T, orderID string, orderType domain.OrderType) []domain.Task {
	t.Helper()

	order := domain.NewOrder(orderID, orderType, "CUST-1", "", []domain.Service{{Type: "internet"}}, e.clock.Now())
	if err := order.TransitionTo(domain.OrderStatusInProgress, "", e.clock.Now()); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if err := e.orders.Create(context.Background(), order); err != nil {
		t.Fatalf("create order: %v", err)
	}

	tasks, err := e.orch.MaterializeTasks(context.Background(), orderID, orderType)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	return tasks
}

// finish имитирует Runner: RUNNING → COMPLETED или FAILED.
func (e *env) finish(t *testing.T, taskID string, status domain.TaskStatus) {
	t.Helper()

	task := e.task(t, taskID)
	task.MarkRunning(e.clock.Now())
	if status == domain.TaskStatusCompleted {
		task.MarkCompleted(map[string]any{"ok": true}, e.clock.Now())
	} else {
		task.MarkFailed("backend unavailable", domain.FailureCodeExecution, e.clock.Now())
	}
	if err := e.tasks.Update(context.Background(), task); err != nil {
		t.Fatalf("update task: %v", err)
	}
}

func (e *env) task(t *testing.T, taskID string) *domain.Task {
	t.Helper()
	task, err := e.tasks.GetByID(context.Background(), taskID)
	if err != nil {
		t.Fatalf("get task %s: %v", taskID, err)
	}
	return task
}

func (e *env) order(t *testing.T, orderID string) *domain.Order {
	t.Helper()
	order, err := e.orders.GetByID(context.Background(), orderID)
	if err != nil {
		t.Fatalf("get order %s: %v", orderID, err)
	}
	return order
}

// --- MaterializeTasks ---

func TestMaterializeTasks_Install(t *testing.T) {
	e := newEnv(t, nil)
	tasks := e.startOrder(t, "ORD-1", domain.OrderTypeInstall)

	if len(tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(tasks))
	}

	want := []struct {
		id     string
		typ    domain.TaskType
		status domain.TaskStatus
	}{
		{"ORD-1-TASK-1", domain.TaskTypeValidate, domain.TaskStatusReady},
		{"ORD-1-TASK-2", domain.TaskTypeProvision, domain.TaskStatusPending},
		{"ORD-1-TASK-3", domain.TaskTypeBilling, domain.TaskStatusPending},
	}
	for i, w := range want {
		got := tasks[i]
		if got.TaskID != w.id || got.TaskType != w.typ || got.Status != w.status {
			t.Errorf("task %d: expected %s/%s/%s, got %s/%s/%s",
				i, w.id, w.typ, w.status, got.TaskID, got.TaskType, got.Status)
		}
		if got.Position != i+1 || got.MaxRetries != domain.DefaultMaxRetries {
			t.Errorf("task %d: unexpected position=%d max_retries=%d", i, got.Position, got.MaxRetries)
		}
	}
}

func TestMaterializeTasks_Idempotent(t *testing.T) {
	e := newEnv(t, nil)
	first := e.startOrder(t, "ORD-1", domain.OrderTypeChange)
	writes := e.tasks.Writes()

	second, err := e.orch.MaterializeTasks(context.Background(), "ORD-1", domain.OrderTypeChange)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if e.tasks.Writes() != writes {
		t.Errorf("second materialization should not write, writes %d → %d", writes, e.tasks.Writes())
	}
	if len(second) != len(first) || second[0].TaskID != first[0].TaskID {
		t.Errorf("expected the same tasks, got %+v", second)
	}
}

func TestMaterializeTasks_MaxRetries(t *testing.T) {
	e := newEnv(t, nil)
	e.orch.maxRetries = 5

	for _, task := range e.startOrder(t, "ORD-1", domain.OrderTypeInstall) {
		if task.MaxRetries != 5 {
			t.Errorf("%s: MaxRetries = %d, want 5", task.TaskID, task.MaxRetries)
		}
	}
}

func TestMaterializeTasks_CycleWritesNothing(t *testing.T) {
	tests := []struct {
		name  string
		steps stepsBlueprint
	}{
		{
			name: "two-node cycle",
			steps: stepsBlueprint{
				{TaskID: "ORD-C-TASK-1", TaskType: domain.TaskTypeValidate, DependsOn: []string{"ORD-C-TASK-2"}},
				{TaskID: "ORD-C-TASK-2", TaskType: domain.TaskTypeBilling, DependsOn: []string{"ORD-C-TASK-1"}},
			},
		},
		{
			name: "self dependency",
			steps: stepsBlueprint{
				{TaskID: "ORD-C-TASK-1", TaskType: domain.TaskTypeValidate, DependsOn: []string{"ORD-C-TASK-1"}},
			},
		},
		{
			name: "dependency outside the order",
			steps: stepsBlueprint{
				{TaskID: "ORD-C-TASK-1", TaskType: domain.TaskTypeValidate, DependsOn: []string{"ORD-OTHER-TASK-1"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, tt.steps)

			_, err := e.orch.MaterializeTasks(context.Background(), "ORD-C", domain.OrderTypeInstall)
			if !errors.Is(err, ErrCircularDependency) {
				t.Fatalf("expected ErrCircularDependency, got %v", err)
			}
			if domain.KindOf(err) != domain.KindGraph {
				t.Errorf("expected kind graph, got %s", domain.KindOf(err))
			}

			tasks, _ := e.tasks.ListByOrderID(context.Background(), "ORD-C")
			if len(tasks) != 0 || e.tasks.Writes() != 0 {
				t.Errorf("expected no writes, got %d tasks and %d writes", len(tasks), e.tasks.Writes())
			}
		})
	}
}

func TestMaterializeTasks_StrictUnknownType(t *testing.T) {
	e := newEnv(t, engine.Blueprints{Strict: true})

	_, err := e.orch.MaterializeTasks(context.Background(), "ORD-X", domain.OrderType("UPGRADE"))
	if !errors.Is(err, engine.ErrUnknownOrderType) {
		t.Fatalf("expected ErrUnknownOrderType, got %v", err)
	}
	if domain.KindOf(err) != domain.KindValidation {
		t.Errorf("expected kind validation, got %s", domain.KindOf(err))
	}
}

// --- DispatchReady / cascade ---

func TestDispatchReady(t *testing.T) {
	e := newEnv(t, nil)
	e.startOrder(t, "ORD-1", domain.OrderTypeInstall)

	n, err := e.orch.DispatchReady(context.Background(), "ORD-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 dispatched task, got %d", n)
	}
	if got := e.disp.Enqueued(); len(got) != 1 || got[0] != "ORD-1-TASK-1" {
		t.Errorf("unexpected dispatch: %v", got)
	}
}

func TestOnTaskCompleted_Cascade(t *testing.T) {
	e := newEnv(t, nil)
	e.startOrder(t, "ORD-1", domain.OrderTypeInstall)

	e.finish(t, "ORD-1-TASK-1", domain.TaskStatusCompleted)
	if err := e.orch.OnTaskCompleted(context.Background(), "ORD-1-TASK-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s := e.task(t, "ORD-1-TASK-2").Status; s != domain.TaskStatusReady {
		t.Errorf("PROVISION should be READY, got %s", s)
	}
	if s := e.task(t, "ORD-1-TASK-3").Status; s != domain.TaskStatusPending {
		t.Errorf("BILLING should stay PENDING, got %s", s)
	}
	if got := e.disp.Enqueued(); len(got) != 1 || got[0] != "ORD-1-TASK-2" {
		t.Errorf("unexpected dispatch: %v", got)
	}
	if s := e.order(t, "ORD-1").Status; s != domain.OrderStatusInProgress {
		t.Errorf("order should stay IN_PROGRESS, got %s", s)
	}

	// Уведомления отправляются даже без смены статуса заказа
	events := e.events.Events()
	last := events[len(events)-1]
	if last.Event != notify.EventOrderUpdated || last.Data.OrderID != "ORD-1" {
		t.Errorf("expected trailing order:updated, got %+v", last)
	}
}

func TestOnTaskCompleted_PartialFanIn(t *testing.T) {
	// A; B зависит от A; C зависит от A и B.
	e := newEnv(t, stepsBlueprint{
		{TaskID: "ORD-1-TASK-1", TaskType: domain.TaskTypeValidate},
		{TaskID: "ORD-1-TASK-2", TaskType: domain.TaskTypeProvision, DependsOn: []string{"ORD-1-TASK-1"}},
		{TaskID: "ORD-1-TASK-3", TaskType: domain.TaskTypeBilling, DependsOn: []string{"ORD-1-TASK-1", "ORD-1-TASK-2"}},
	})
	e.startOrder(t, "ORD-1", domain.OrderTypeInstall)
	ctx := context.Background()

	e.finish(t, "ORD-1-TASK-1", domain.TaskStatusCompleted)
	if err := e.orch.OnTaskCompleted(ctx, "ORD-1-TASK-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s := e.task(t, "ORD-1-TASK-2").Status; s != domain.TaskStatusReady {
		t.Errorf("B should be READY, got %s", s)
	}
	if s := e.task(t, "ORD-1-TASK-3").Status; s != domain.TaskStatusPending {
		t.Errorf("C should wait for B, got %s", s)
	}

	e.finish(t, "ORD-1-TASK-2", domain.TaskStatusCompleted)
	if err := e.orch.OnTaskCompleted(ctx, "ORD-1-TASK-2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s := e.task(t, "ORD-1-TASK-3").Status; s != domain.TaskStatusReady {
		t.Errorf("C should be READY, got %s", s)
	}

	got := e.disp.Enqueued()
	if len(got) != 2 || got[0] != "ORD-1-TASK-2" || got[1] != "ORD-1-TASK-3" {
		t.Errorf("unexpected dispatch: %v", got)
	}
}

func TestOnTaskCompleted_Idempotent(t *testing.T) {
	e := newEnv(t, nil)
	e.startOrder(t, "ORD-1", domain.OrderTypeInstall)
	e.finish(t, "ORD-1-TASK-1", domain.TaskStatusCompleted)

	if err := e.orch.OnTaskCompleted(context.Background(), "ORD-1-TASK-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	writes := e.tasks.Writes()

	if err := e.orch.OnTaskCompleted(context.Background(), "ORD-1-TASK-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if e.tasks.Writes() != writes {
		t.Errorf("repeated cascade should not write, writes %d → %d", writes, e.tasks.Writes())
	}
	if got := e.disp.Enqueued(); len(got) != 1 {
		t.Errorf("repeated cascade should not dispatch again, got %v", got)
	}
}

func TestOnTaskCompleted_CompletesOrder(t *testing.T) {
	e := newEnv(t, nil)
	e.startOrder(t, "ORD-1", domain.OrderTypeInstall)

	for _, id := range []string{"ORD-1-TASK-1", "ORD-1-TASK-2", "ORD-1-TASK-3"} {
		e.clock.Advance(time.Second)
		e.finish(t, id, domain.TaskStatusCompleted)
		if err := e.orch.OnTaskCompleted(context.Background(), id); err != nil {
			t.Fatalf("complete %s: %v", id, err)
		}
	}

	order := e.order(t, "ORD-1")
	if order.Status != domain.OrderStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", order.Status)
	}
	if order.CompletedAt == nil || !order.CompletedAt.Equal(e.clock.Now()) {
		t.Errorf("CompletedAt should be stamped, got %v", order.CompletedAt)
	}
	if order.FailedAt != nil || order.FailureReason != "" {
		t.Error("failure fields should be empty")
	}

	last := order.StateHistory[len(order.StateHistory)-1]
	if last.From != domain.OrderStatusInProgress || last.To != domain.OrderStatusCompleted {
		t.Errorf("unexpected last history entry: %+v", last)
	}

	want := []string{"ORD-1-TASK-2", "ORD-1-TASK-3"}
	if got := e.disp.Enqueued(); len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("expected dispatch %v, got %v", want, got)
	}
}

func TestOnTaskCompleted_FanInDispatchesOnce(t *testing.T) {
	diamond := stepsBlueprint{
		{TaskID: "ORD-D-TASK-1", TaskType: domain.TaskTypeValidate},
		{TaskID: "ORD-D-TASK-2", TaskType: domain.TaskTypeProvision, DependsOn: []string{"ORD-D-TASK-1"}},
		{TaskID: "ORD-D-TASK-3", TaskType: domain.TaskTypeProvision, DependsOn: []string{"ORD-D-TASK-1"}},
		{TaskID: "ORD-D-TASK-4", TaskType: domain.TaskTypeBilling, DependsOn: []string{"ORD-D-TASK-2", "ORD-D-TASK-3"}},
	}
	e := newEnv(t, diamond)
	e.startOrder(t, "ORD-D", domain.OrderTypeInstall)

	e.finish(t, "ORD-D-TASK-1", domain.TaskStatusCompleted)
	if err := e.orch.OnTaskCompleted(context.Background(), "ORD-D-TASK-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Обе ветки завершаются одновременно
	e.finish(t, "ORD-D-TASK-2", domain.TaskStatusCompleted)
	e.finish(t, "ORD-D-TASK-3", domain.TaskStatusCompleted)

	var wg sync.WaitGroup
	for _, id := range []string{"ORD-D-TASK-2", "ORD-D-TASK-3"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.orch.OnTaskCompleted(context.Background(), id); err != nil {
				t.Errorf("complete %s: %v", id, err)
			}
		}()
	}
	wg.Wait()

	count := 0
	for _, id := range e.disp.Enqueued() {
		if id == "ORD-D-TASK-4" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("fan-in task should be dispatched exactly once, got %d", count)
	}
}

func TestOnTaskCompleted_UnknownTask(t *testing.T) {
	e := newEnv(t, nil)

	err := e.orch.OnTaskCompleted(context.Background(), "ORD-404-TASK-1")
	if domain.KindOf(err) != domain.KindNotFound || !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected not_found, got %v", err)
	}
}

// --- retries and failure ---

func TestTryRetryOrFail_RetriesUntilExhausted(t *testing.T) {
	e := newEnv(t, nil)
	e.startOrder(t, "ORD-1", domain.OrderTypeChange)

	for attempt := 1; attempt <= domain.DefaultMaxRetries; attempt++ {
		e.finish(t, "ORD-1-TASK-1", domain.TaskStatusFailed)

		retried, err := e.orch.TryRetryOrFail(context.Background(), "ORD-1-TASK-1")
		if err != nil {
			t.Fatalf("attempt %d: %v", attempt, err)
		}
		if !retried {
			t.Fatalf("attempt %d: expected retry", attempt)
		}

		task := e.task(t, "ORD-1-TASK-1")
		if task.Status != domain.TaskStatusReady || task.RetryCount != attempt {
			t.Errorf("attempt %d: expected READY with retry_count=%d, got %s/%d",
				attempt, attempt, task.Status, task.RetryCount)
		}
		if task.Error != nil || task.FailedAt != nil {
			t.Errorf("attempt %d: error fields should be cleared", attempt)
		}
	}

	if len(e.disp.delayed) != domain.DefaultMaxRetries {
		t.Fatalf("expected %d delayed dispatches, got %d", domain.DefaultMaxRetries, len(e.disp.delayed))
	}
	for _, c := range e.disp.delayed {
		if c.taskID != "ORD-1-TASK-1" || c.delay != DefaultRetryDelay {
			t.Errorf("unexpected delayed call: %+v", c)
		}
	}

	e.finish(t, "ORD-1-TASK-1", domain.TaskStatusFailed)
	retried, err := e.orch.TryRetryOrFail(context.Background(), "ORD-1-TASK-1")
	if err != nil || retried {
		t.Fatalf("expected retries exhausted, got retried=%v err=%v", retried, err)
	}

	task := e.task(t, "ORD-1-TASK-1")
	if task.Status != domain.TaskStatusFailed || task.RetryCount != task.MaxRetries {
		t.Errorf("expected FAILED with retry_count=max, got %s/%d", task.Status, task.RetryCount)
	}
}

func TestTryRetryOrFail_NotFailed(t *testing.T) {
	e := newEnv(t, nil)
	e.startOrder(t, "ORD-1", domain.OrderTypeChange)

	_, err := e.orch.TryRetryOrFail(context.Background(), "ORD-1-TASK-1")
	if !errors.Is(err, ErrTaskNotFailed) || domain.KindOf(err) != domain.KindConflict {
		t.Errorf("expected ErrTaskNotFailed conflict, got %v", err)
	}
}

func TestOnTaskFailed_FailsOrder(t *testing.T) {
	e := newEnv(t, nil)
	e.startOrder(t, "ORD-1", domain.OrderTypeInstall)
	e.finish(t, "ORD-1-TASK-1", domain.TaskStatusFailed)

	if err := e.orch.OnTaskFailed(context.Background(), "ORD-1-TASK-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	order := e.order(t, "ORD-1")
	if order.Status != domain.OrderStatusFailed {
		t.Fatalf("expected FAILED, got %s", order.Status)
	}
	if order.FailureReason != "backend unavailable" || order.FailedAt == nil || order.CompletedAt != nil {
		t.Errorf("unexpected failure fields: reason=%q failed_at=%v completed_at=%v",
			order.FailureReason, order.FailedAt, order.CompletedAt)
	}
}

func TestOnTaskFailed_DefaultReason(t *testing.T) {
	e := newEnv(t, nil)
	e.startOrder(t, "ORD-1", domain.OrderTypeChange)

	task := e.task(t, "ORD-1-TASK-1")
	task.Status = domain.TaskStatusFailed
	if err := e.tasks.Update(context.Background(), task); err != nil {
		t.Fatalf("update: %v", err)
	}

	if err := e.orch.OnTaskFailed(context.Background(), "ORD-1-TASK-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reason := e.order(t, "ORD-1").FailureReason; reason != "Task failed" {
		t.Errorf("expected default reason, got %q", reason)
	}
}

func TestHandleTaskOutcome_SingleOrderFailure(t *testing.T) {
	parallel := stepsBlueprint{
		{TaskID: "ORD-F-TASK-1", TaskType: domain.TaskTypeValidate},
		{TaskID: "ORD-F-TASK-2", TaskType: domain.TaskTypeProvision},
	}
	e := newEnv(t, parallel)
	e.startOrder(t, "ORD-F", domain.OrderTypeInstall)

	// Обе независимые tasks исчерпали попытки
	for _, id := range []string{"ORD-F-TASK-1", "ORD-F-TASK-2"} {
		task := e.task(t, id)
		task.RetryCount = task.MaxRetries
		if err := e.tasks.Update(context.Background(), task); err != nil {
			t.Fatalf("update: %v", err)
		}
	}

	e.finish(t, "ORD-F-TASK-1", domain.TaskStatusFailed)
	if err := e.orch.HandleTaskOutcome(context.Background(), "ORD-F-TASK-1", domain.TaskStatusFailed); err != nil {
		t.Fatalf("first failure: %v", err)
	}
	failedAt := *e.order(t, "ORD-F").FailedAt

	e.clock.Advance(time.Minute)
	e.finish(t, "ORD-F-TASK-2", domain.TaskStatusFailed)
	if err := e.orch.HandleTaskOutcome(context.Background(), "ORD-F-TASK-2", domain.TaskStatusFailed); err != nil {
		t.Fatalf("second failure: %v", err)
	}

	order := e.order(t, "ORD-F")
	if order.Status != domain.OrderStatusFailed || !order.FailedAt.Equal(failedAt) {
		t.Errorf("order should be failed once, got %s at %v", order.Status, order.FailedAt)
	}

	failures := 0
	for _, h := range order.StateHistory {
		if h.To == domain.OrderStatusFailed {
			failures++
		}
	}
	if failures != 1 {
		t.Errorf("expected exactly one FAILED transition, got %d", failures)
	}
}

func TestHandleTaskOutcome_DuplicateFailureIgnored(t *testing.T) {
	e := newEnv(t, nil)
	e.startOrder(t, "ORD-1", domain.OrderTypeChange)
	e.finish(t, "ORD-1-TASK-1", domain.TaskStatusFailed)

	if err := e.orch.HandleTaskOutcome(context.Background(), "ORD-1-TASK-1", domain.TaskStatusFailed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Та же доставка ещё раз: task уже READY
	if err := e.orch.HandleTaskOutcome(context.Background(), "ORD-1-TASK-1", domain.TaskStatusFailed); err != nil {
		t.Fatalf("duplicate should be ignored, got %v", err)
	}

	if rc := e.task(t, "ORD-1-TASK-1").RetryCount; rc != 1 {
		t.Errorf("expected retry_count=1, got %d", rc)
	}
}

func TestHandleTaskOutcome_UnknownStatus(t *testing.T) {
	e := newEnv(t, nil)

	err := e.orch.HandleTaskOutcome(context.Background(), "ORD-1-TASK-1", domain.TaskStatusRunning)
	if !errors.Is(err, ErrUnknownOutcome) {
		t.Errorf("expected ErrUnknownOutcome, got %v", err)
	}
}

// --- TransitionOrder ---

func TestTransitionOrder_InvalidLeavesOrderUntouched(t *testing.T) {
	e := newEnv(t, nil)
	order := domain.NewOrder("ORD-1", domain.OrderTypeInstall, "CUST-1", "", []domain.Service{{Type: "tv"}}, e.clock.Now())
	if err := e.orders.Create(context.Background(), order); err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err := e.orch.TransitionOrder(context.Background(), "ORD-1", domain.OrderStatusCompleted, "")
	if domain.KindOf(err) != domain.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err.Error() != "Invalid transition: CREATED → COMPLETED" {
		t.Errorf("unexpected message: %q", err.Error())
	}

	stored := e.order(t, "ORD-1")
	if stored.Status != domain.OrderStatusCreated || len(stored.StateHistory) != 1 {
		t.Errorf("order should be untouched, got %s with %d history entries", stored.Status, len(stored.StateHistory))
	}
	if len(e.events.Events()) != 0 {
		t.Error("rejected transition should not notify")
	}
}

func TestTransitionOrder_Notifies(t *testing.T) {
	e := newEnv(t, nil)
	order := domain.NewOrder("ORD-1", domain.OrderTypeInstall, "CUST-1", "", []domain.Service{{Type: "tv"}}, e.clock.Now())
	if err := e.orders.Create(context.Background(), order); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := e.orch.TransitionOrder(context.Background(), "ORD-1", domain.OrderStatusInProgress, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != domain.OrderStatusInProgress {
		t.Errorf("expected IN_PROGRESS, got %s", got.Status)
	}

	events := e.events.Events()
	if len(events) != 1 || events[0].Event != notify.EventOrderUpdated {
		t.Errorf("expected one order:updated, got %+v", events)
	}
}

// --- Reconcile ---

func TestReconcile_ExpiresStuckRunningTask(t *testing.T) {
	e := newEnv(t, nil)
	e.startOrder(t, "ORD-1", domain.OrderTypeChange)

	task := e.task(t, "ORD-1-TASK-1")
	task.MarkRunning(e.clock.Now())
	if err := e.tasks.Update(context.Background(), task); err != nil {
		t.Fatalf("update: %v", err)
	}

	e.clock.Advance(DefaultVisibilityTimeout + time.Second)

	stats, err := e.orch.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Expired != 1 {
		t.Errorf("expected 1 expired task, got %d", stats.Expired)
	}

	// Зависшая task уходит на повтор
	got := e.task(t, "ORD-1-TASK-1")
	if got.Status != domain.TaskStatusReady || got.RetryCount != 1 {
		t.Errorf("expected READY with retry_count=1, got %s/%d", got.Status, got.RetryCount)
	}
	if len(e.disp.delayed) != 1 {
		t.Errorf("expected delayed redispatch, got %d", len(e.disp.delayed))
	}
}

func TestReconcile_RequeuesStaleReadyTask(t *testing.T) {
	e := newEnv(t, nil)
	e.startOrder(t, "ORD-1", domain.OrderTypeChange)

	e.clock.Advance(DefaultVisibilityTimeout + time.Second)

	stats, err := e.orch.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Requeued != 1 {
		t.Errorf("expected 1 requeued task, got %d", stats.Requeued)
	}
	if got := e.disp.Enqueued(); len(got) != 1 || got[0] != "ORD-1-TASK-1" {
		t.Errorf("unexpected dispatch: %v", got)
	}

	// Второй проход сразу после первого ничего не делает
	stats, err = e.orch.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Requeued != 0 {
		t.Errorf("expected no requeue on second pass, got %d", stats.Requeued)
	}
}

func TestStart_ReconcilesImmediately(t *testing.T) {
	e := newEnv(t, nil)
	e.orch.reconcileSpec = "@every 1h"
	e.startOrder(t, "ORD-1", domain.OrderTypeChange)

	e.clock.Advance(DefaultVisibilityTimeout + time.Second)

	if err := e.orch.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(e.disp.Enqueued()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	e.orch.Stop()

	if got := e.disp.Enqueued(); len(got) != 1 || got[0] != "ORD-1-TASK-1" {
		t.Errorf("stale task should be requeued on start, got %v", got)
	}
}

func TestReconcile_FreshTasksUntouched(t *testing.T) {
	e := newEnv(t, nil)
	e.startOrder(t, "ORD-1", domain.OrderTypeInstall)

	stats, err := e.orch.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats != (ReconcileStats{}) {
		t.Errorf("expected no work, got %+v", stats)
	}
}

// --- Progress ---

func TestSummarize(t *testing.T) {
	tasks := []domain.Task{
		{Status: domain.TaskStatusCompleted},
		{Status: domain.TaskStatusCompleted},
		{Status: domain.TaskStatusRunning},
		{Status: domain.TaskStatusPending},
	}

	p := Summarize(tasks)
	want := Progress{Total: 4, Pending: 1, Running: 1, Completed: 2}
	if p != want {
		t.Errorf("expected %+v, got %+v", want, p)
	}
	if p.Percent() != 50 || p.IsComplete() {
		t.Errorf("unexpected percent=%d complete=%v", p.Percent(), p.IsComplete())
	}

	if (Progress{}).Percent() != 0 || (Progress{}).IsComplete() {
		t.Error("empty progress should be 0% and incomplete")
	}
}
