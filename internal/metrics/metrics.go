// Package metrics exposes Prometheus collectors for the bridge.
//
// Collectors are registered once by Init. Every helper is safe to call
// before Init (it does nothing), so packages can record unconditionally.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "lumina_"

// Label values shared by callers.
const (
	ResultSuccess = "success"
	ResultError   = "error"

	WriteApplied = "applied"
	WriteStale   = "stale"
	WriteFailed  = "failed"

	TelemetryStructured  = "structured"
	TelemetryText        = "text"
	TelemetryUnparseable = "unparseable"
	TelemetryDropped     = "queue_full"
	TelemetryUnknown     = "unknown_topic"
)

var (
	registerOnce sync.Once

	intentRequests *prometheus.CounterVec
	intentLatency  *prometheus.HistogramVec

	commandResults *prometheus.CounterVec

	telemetryMessages *prometheus.CounterVec
	telemetryQueue    prometheus.Gauge

	stateWrites *prometheus.CounterVec

	busConnected prometheus.Gauge

	authResults *prometheus.CounterVec

	wsClients prometheus.Gauge
)

// Init creates and registers the collectors with reg. Passing nil uses the
// default registerer. Only the first call has any effect.
func Init(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}

		intentRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "intent_requests_total",
				Help: "Fulfilment requests by intent and result",
			},
			[]string{"intent", "result"},
		)
		intentLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "intent_latency_seconds",
				Help:    "Fulfilment latency in seconds by intent",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"intent"},
		)
		commandResults = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "command_results_total",
				Help: "Per-device execute outcomes by status and error code",
			},
			[]string{"status", "error_code"},
		)
		telemetryMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "telemetry_messages_total",
				Help: "Inbound telemetry messages by decode outcome",
			},
			[]string{"outcome"},
		)
		telemetryQueue = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "telemetry_queue_depth",
				Help: "Telemetry messages waiting for a worker",
			},
		)
		stateWrites = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "state_writes_total",
				Help: "State cache writes by source and result",
			},
			[]string{"source", "result"},
		)
		busConnected = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "bus_connected",
				Help: "1 while the MQTT broker link is up",
			},
		)
		authResults = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "auth_results_total",
				Help: "Credential checks and exchanges by operation and result",
			},
			[]string{"operation", "result"},
		)
		wsClients = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "websocket_clients",
				Help: "Connected state stream clients",
			},
		)

		reg.MustRegister(
			intentRequests,
			intentLatency,
			commandResults,
			telemetryMessages,
			telemetryQueue,
			stateWrites,
			busConnected,
			authResults,
			wsClients,
		)
	})
}

// ObserveIntent records one fulfilment request.
func ObserveIntent(intent, result string, duration time.Duration) {
	if intent == "" {
		intent = "unknown"
	}
	if result == "" {
		result = ResultSuccess
	}
	if intentRequests != nil {
		intentRequests.WithLabelValues(intent, result).Inc()
	}
	if intentLatency != nil {
		intentLatency.WithLabelValues(intent).Observe(duration.Seconds())
	}
}

// IncCommandResult records one per-device execute outcome.
func IncCommandResult(status, errorCode string) {
	if commandResults != nil {
		commandResults.WithLabelValues(status, errorCode).Inc()
	}
}

// IncTelemetry records one inbound telemetry message.
func IncTelemetry(outcome string) {
	if telemetryMessages != nil {
		telemetryMessages.WithLabelValues(outcome).Inc()
	}
}

// SetTelemetryQueueDepth reports the consumer backlog.
func SetTelemetryQueueDepth(depth int) {
	if telemetryQueue != nil {
		telemetryQueue.Set(float64(depth))
	}
}

// IncStateWrite records one state cache write.
func IncStateWrite(source, result string) {
	if stateWrites != nil {
		stateWrites.WithLabelValues(source, result).Inc()
	}
}

// SetBusConnected reports the broker link state.
func SetBusConnected(connected bool) {
	if busConnected == nil {
		return
	}
	if connected {
		busConnected.Set(1)
	} else {
		busConnected.Set(0)
	}
}

// IncAuth records a credential check or exchange.
func IncAuth(operation, result string) {
	if authResults != nil {
		authResults.WithLabelValues(operation, result).Inc()
	}
}

// AddWebSocketClients adjusts the connected client gauge by delta.
func AddWebSocketClients(delta int) {
	if wsClients != nil {
		wsClients.Add(float64(delta))
	}
}
