package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/kafka-go"
	"github.com/shaiso/Orderflow/internal/domain"
)

func TestMulti_FansOut(t *testing.T) {
	a, b := NewRecorder(10), NewRecorder(10)
	m := Multi{a, nil, b}

	m.TaskUpdated(context.Background(), "O-TASK-1", "O", domain.TaskStatusReady)
	m.OrderUpdated(context.Background(), "O")

	for _, r := range []*Recorder{a, b} {
		events := r.Events()
		if len(events) != 2 {
			t.Fatalf("expected 2 events, got %d", len(events))
		}
		if events[0].Event != EventTaskUpdated || events[1].Event != EventOrderUpdated {
			t.Errorf("unexpected order: %+v", events)
		}
	}
}

func TestDispatch(t *testing.T) {
	r := NewRecorder(10)

	Dispatch(context.Background(), r, TaskEvent("O-TASK-2", "O", domain.TaskStatusFailed))
	Dispatch(context.Background(), r, Event{Event: "unknown"})

	events := r.Events()
	if len(events) != 1 || events[0].Data.TaskID != "O-TASK-2" || events[0].Data.Status != domain.TaskStatusFailed {
		t.Errorf("unexpected events: %+v", events)
	}
}

func TestEvent_JSONShape(t *testing.T) {
	data, err := json.Marshal(TaskEvent("O-TASK-1", "O", domain.TaskStatusCompleted))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := `{"event":"task:updated","data":{"orderId":"O","taskId":"O-TASK-1","status":"COMPLETED"}}`
	if string(data) != want {
		t.Errorf("expected %s, got %s", want, data)
	}
}

func TestHub_BroadcastToSubscribers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(nil)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	all, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer all.Close()

	filtered, _, err := websocket.DefaultDialer.Dial(wsURL+"?order_id=ORD-2", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer filtered.Close()

	waitFor(t, func() bool { return hub.Clients() == 2 })

	hub.OrderUpdated(ctx, "ORD-1")
	hub.TaskUpdated(ctx, "ORD-2-TASK-1", "ORD-2", domain.TaskStatusRunning)

	// Клиент без фильтра получает оба события
	first := readEvent(t, all)
	second := readEvent(t, all)
	if first.Data.OrderID != "ORD-1" || second.Data.TaskID != "ORD-2-TASK-1" {
		t.Errorf("unexpected events: %+v %+v", first, second)
	}

	// Подписчик ORD-2 получает только своё
	got := readEvent(t, filtered)
	if got.Event != EventTaskUpdated || got.Data.OrderID != "ORD-2" {
		t.Errorf("unexpected filtered event: %+v", got)
	}
}

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaNotifier_KeysByOrder(t *testing.T) {
	w := &fakeWriter{}
	k := NewKafkaNotifier(w, nil)

	k.TaskUpdated(context.Background(), "ORD-9-TASK-1", "ORD-9", domain.TaskStatusCompleted)
	k.OrderUpdated(context.Background(), "ORD-9")

	if err := k.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(w.msgs))
	}
	for _, m := range w.msgs {
		if string(m.Key) != "ORD-9" {
			t.Errorf("expected key ORD-9, got %s", m.Key)
		}
	}

	var e Event
	if err := json.Unmarshal(w.msgs[1].Value, &e); err != nil || e.Event != EventOrderUpdated {
		t.Errorf("unexpected payload: %s (%v)", w.msgs[1].Value, err)
	}
}

func TestKafkaNotifier_ErrorsAreSwallowed(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	k := NewKafkaNotifier(w, nil)

	// Не должно паниковать и не должно ничего возвращать
	k.OrderUpdated(context.Background(), "ORD-1")

	if err := k.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

// stuckWriter висит в WriteMessages, пока не закрыт release.
type stuckWriter struct {
	release chan struct{}
	mu      sync.Mutex
	written int
}

func (w *stuckWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	select {
	case <-w.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	w.mu.Lock()
	w.written += len(msgs)
	w.mu.Unlock()
	return nil
}

func (w *stuckWriter) Close() error { return nil }

func TestKafkaNotifier_DoesNotBlockOnSlowBroker(t *testing.T) {
	w := &stuckWriter{release: make(chan struct{})}
	k := newKafkaNotifier(w, 4, nil)

	start := time.Now()
	for i := 0; i < 100; i++ {
		k.OrderUpdated(context.Background(), "ORD-1")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("publishing blocked for %v", elapsed)
	}

	close(w.release)
	if err := k.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Одно событие уже в WriteMessages, ещё до 4 ждут в буфере, остальные отброшены.
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.written < 1 || w.written > 5 {
		t.Errorf("expected 1..5 written messages, got %d", w.written)
	}
}

func TestKafkaNotifier_PublishAfterClose(t *testing.T) {
	w := &fakeWriter{}
	k := NewKafkaNotifier(w, nil)

	if err := k.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	k.OrderUpdated(context.Background(), "ORD-1")
	if err := k.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.msgs) != 0 {
		t.Errorf("expected no messages after close, got %d", len(w.msgs))
	}
}

func TestSplitBrokers(t *testing.T) {
	got := splitBrokers(" a:9092, ,b:9092 ")
	if len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Errorf("unexpected brokers: %v", got)
	}
}

// --- helpers ---

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var e Event
	if err := conn.ReadJSON(&e); err != nil {
		t.Fatalf("read: %v", err)
	}
	return e
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
