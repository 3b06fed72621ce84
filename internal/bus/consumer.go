package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/lumina-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/lumina-bridge/internal/metrics"
	"github.com/nerrad567/lumina-bridge/internal/state"
)

// Default pool sizing when ConsumerConfig leaves fields zero.
const (
	defaultWorkers   = 4
	defaultQueueSize = 1024
	defaultStopWait  = 5 * time.Second
)

// ErrConsumerRunning is returned by Start on a consumer that is already running.
var ErrConsumerRunning = errors.New("bus: consumer already running")

// Subscriber is the subset of the MQTT client used to receive telemetry.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// StateWriter applies device-reported state.
type StateWriter interface {
	Put(ctx context.Context, deviceID string, s state.State, ts time.Time, src state.Source) (bool, error)
}

// Logger is the logging interface used by the consumer.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ConsumerConfig sizes the worker pool.
type ConsumerConfig struct {
	Workers   int
	QueueSize int
	QoS       byte
}

// message is one telemetry delivery waiting for a worker.
type message struct {
	deviceID string
	payload  []byte
	arrived  time.Time
}

// Consumer ingests device state reports from {prefix}/+/state.
//
// The MQTT callback only decodes the topic and enqueues; it never blocks.
// When the queue is full the message is dropped and counted. Workers apply
// each report to the state cache stamped with its arrival time, so a report
// that arrives after a newer command has been recorded still loses.
type Consumer struct {
	sub    Subscriber
	writer StateWriter
	topics mqtt.Topics
	cfg    ConsumerConfig
	logger Logger
	now    func() time.Time

	queue chan message

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewConsumer creates a telemetry consumer. Call Start to subscribe.
func NewConsumer(sub Subscriber, writer StateWriter, topics mqtt.Topics, cfg ConsumerConfig) *Consumer {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	return &Consumer{
		sub:    sub,
		writer: writer,
		topics: topics,
		cfg:    cfg,
		logger: noopLogger{},
		now:    time.Now,
		queue:  make(chan message, cfg.QueueSize),
	}
}

// SetLogger sets the logger for the consumer.
func (c *Consumer) SetLogger(logger Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// Start launches the workers and subscribes to the state wildcard. The
// subscription is restored by the MQTT client after reconnects.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return ErrConsumerRunning
	}

	workerCtx, cancel := context.WithCancel(ctx)
	for i := 0; i < c.cfg.Workers; i++ {
		c.wg.Add(1)
		go c.worker(workerCtx)
	}

	if err := c.sub.Subscribe(c.topics.AllStates(), c.cfg.QoS, c.handle); err != nil {
		cancel()
		c.wg.Wait()
		return fmt.Errorf("subscribing to device state: %w", err)
	}

	c.cancel = cancel
	c.running = true
	c.logger.Info("telemetry consumer started",
		"topic", c.topics.AllStates(),
		"workers", c.cfg.Workers,
		"queue_size", c.cfg.QueueSize)
	return nil
}

// Stop cancels the workers and waits for them to exit, up to a bounded
// wait. Messages still queued are discarded.
func (c *Consumer) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	cancel := c.cancel
	c.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		c.logger.Info("telemetry consumer stopped")
	case <-time.After(defaultStopWait):
		c.logger.Warn("telemetry consumer stop timed out")
	}
}

// handle is the MQTT callback. It must return quickly.
func (c *Consumer) handle(topic string, payload []byte) error {
	deviceID, ok := c.topics.DeviceFromState(topic)
	if !ok {
		metrics.IncTelemetry(metrics.TelemetryUnknown)
		return nil
	}

	// The queue owns its copy of the payload.
	buf := make([]byte, len(payload))
	copy(buf, payload)

	select {
	case c.queue <- message{deviceID: deviceID, payload: buf, arrived: c.now()}:
		metrics.SetTelemetryQueueDepth(len(c.queue))
	default:
		metrics.IncTelemetry(metrics.TelemetryDropped)
		c.logger.Warn("telemetry queue full, dropping message", "device_id", deviceID)
	}
	return nil
}

func (c *Consumer) worker(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.queue:
			metrics.SetTelemetryQueueDepth(len(c.queue))
			c.apply(ctx, msg)
		}
	}
}

func (c *Consumer) apply(ctx context.Context, msg message) {
	decoded := Decode(msg.payload)
	switch decoded.Kind {
	case KindStructured:
		metrics.IncTelemetry(metrics.TelemetryStructured)
	case KindText:
		metrics.IncTelemetry(metrics.TelemetryText)
	default:
		metrics.IncTelemetry(metrics.TelemetryUnparseable)
		c.logger.Debug("unparseable telemetry ignored",
			"device_id", msg.deviceID, "bytes", len(msg.payload))
		return
	}

	s := state.State{Online: true, On: decoded.On}
	applied, err := c.writer.Put(ctx, msg.deviceID, s, msg.arrived, state.SourceTelemetry)
	if err != nil {
		c.logger.Error("applying telemetry", "device_id", msg.deviceID, "error", err)
		return
	}
	c.logger.Debug("telemetry applied",
		"device_id", msg.deviceID, "on", decoded.On,
		"format", decoded.Kind.String(), "applied", applied)
}
