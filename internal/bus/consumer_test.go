package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/lumina-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/lumina-bridge/internal/state"
)

// mockSubscriber captures the handler so tests can deliver messages.
type mockSubscriber struct {
	mu      sync.Mutex
	topic   string
	handler mqtt.MessageHandler
	err     error
}

func (m *mockSubscriber) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.topic = topic
	m.handler = handler
	return nil
}

func (m *mockSubscriber) deliver(t *testing.T, topic, payload string) {
	t.Helper()
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	if h == nil {
		t.Fatal("no handler subscribed")
	}
	if err := h(topic, []byte(payload)); err != nil {
		t.Fatalf("handler error = %v", err)
	}
}

type putCall struct {
	deviceID string
	state    state.State
	ts       time.Time
	source   state.Source
}

// recordingWriter records Put calls and signals each one.
type recordingWriter struct {
	mu    sync.Mutex
	calls []putCall
	seen  chan struct{}
	block chan struct{}
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{seen: make(chan struct{}, 64)}
}

func (w *recordingWriter) Put(_ context.Context, id string, s state.State, ts time.Time, src state.Source) (bool, error) {
	if w.block != nil {
		<-w.block
	}
	w.mu.Lock()
	w.calls = append(w.calls, putCall{deviceID: id, state: s, ts: ts, source: src})
	w.mu.Unlock()
	w.seen <- struct{}{}
	return true, nil
}

func (w *recordingWriter) waitFor(t *testing.T, n int) []putCall {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-w.seen:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for write %d of %d", i+1, n)
		}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]putCall(nil), w.calls...)
}

func startConsumer(t *testing.T, sub *mockSubscriber, w StateWriter, cfg ConsumerConfig) *Consumer {
	t.Helper()
	c := NewConsumer(sub, w, mqtt.Topics{Prefix: "lumina/devices"}, cfg)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(c.Stop)
	return c
}

// ============================================================================
// Lifecycle
// ============================================================================

func TestConsumer_SubscribesToStateWildcard(t *testing.T) {
	sub := &mockSubscriber{}
	startConsumer(t, sub, newRecordingWriter(), ConsumerConfig{Workers: 1})

	if sub.topic != "lumina/devices/+/state" {
		t.Errorf("subscribed to %q, want lumina/devices/+/state", sub.topic)
	}
}

func TestConsumer_StartTwice(t *testing.T) {
	c := startConsumer(t, &mockSubscriber{}, newRecordingWriter(), ConsumerConfig{Workers: 1})
	if err := c.Start(context.Background()); !errors.Is(err, ErrConsumerRunning) {
		t.Errorf("second Start() error = %v, want ErrConsumerRunning", err)
	}
}

func TestConsumer_SubscribeFailure(t *testing.T) {
	sub := &mockSubscriber{err: mqtt.ErrNotConnected}
	c := NewConsumer(sub, newRecordingWriter(), mqtt.Topics{Prefix: "p"}, ConsumerConfig{Workers: 2})

	err := c.Start(context.Background())
	if !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("Start() error = %v, want ErrNotConnected", err)
	}
	// A failed start leaves the consumer stoppable and restartable.
	c.Stop()
}

func TestConsumer_StopIdempotent(t *testing.T) {
	c := NewConsumer(&mockSubscriber{}, newRecordingWriter(), mqtt.Topics{Prefix: "p"}, ConsumerConfig{})
	c.Stop()
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	c.Stop()
	c.Stop()
}

// ============================================================================
// Ingest
// ============================================================================

func TestConsumer_AppliesTelemetry(t *testing.T) {
	sub := &mockSubscriber{}
	w := newRecordingWriter()
	c := startConsumer(t, sub, w, ConsumerConfig{Workers: 1})

	arrival := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return arrival }

	sub.deliver(t, "lumina/devices/lamp-1/state", `{"on": true}`)
	calls := w.waitFor(t, 1)

	got := calls[0]
	if got.deviceID != "lamp-1" {
		t.Errorf("deviceID = %q, want lamp-1", got.deviceID)
	}
	if !got.state.On || !got.state.Online {
		t.Errorf("state = %+v, want on and online", got.state)
	}
	if !got.ts.Equal(arrival) {
		t.Errorf("ts = %v, want arrival time %v", got.ts, arrival)
	}
	if got.source != state.SourceTelemetry {
		t.Errorf("source = %q, want telemetry", got.source)
	}
}

func TestConsumer_TextPayload(t *testing.T) {
	sub := &mockSubscriber{}
	w := newRecordingWriter()
	startConsumer(t, sub, w, ConsumerConfig{Workers: 1})

	sub.deliver(t, "lumina/devices/fan/state", "OFF")
	calls := w.waitFor(t, 1)
	if calls[0].state.On {
		t.Errorf("state.On = true, want false")
	}
}

func TestConsumer_IgnoresUnparseableAndForeignTopics(t *testing.T) {
	sub := &mockSubscriber{}
	w := newRecordingWriter()
	startConsumer(t, sub, w, ConsumerConfig{Workers: 1})

	sub.deliver(t, "lumina/devices/lamp/state", "banana")
	sub.deliver(t, "lumina/devices/lamp/set", "on")
	sub.deliver(t, "other/lamp/state", "on")
	// A valid message afterwards proves the worker is alive and the
	// earlier ones produced no writes.
	sub.deliver(t, "lumina/devices/lamp/state", "on")

	calls := w.waitFor(t, 1)
	if len(calls) != 1 {
		t.Fatalf("writes = %d, want 1", len(calls))
	}

	select {
	case <-w.seen:
		t.Error("unexpected extra write")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConsumer_DropsWhenQueueFull(t *testing.T) {
	sub := &mockSubscriber{}
	w := newRecordingWriter()
	w.block = make(chan struct{})
	startConsumer(t, sub, w, ConsumerConfig{Workers: 1, QueueSize: 1})

	// First message is taken by the blocked worker, second fills the
	// queue, the rest are dropped without blocking the callback.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			_ = sub.handler("lumina/devices/d/state", []byte("on"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler blocked on a full queue")
	}

	close(w.block)
	calls := w.waitFor(t, 1)
	if len(calls) > 2 {
		t.Errorf("writes = %d, want at most 2", len(calls))
	}
}
