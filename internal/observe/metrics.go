// Package observe provides application-wide observability primitives for
// budbridge: OpenTelemetry metrics, tracing helpers, and HTTP middleware
// that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API with a
// Prometheus exporter bridge (see [InitProvider]) so they can be scraped
// via the standard /metrics endpoint. Bridge counters are exported as
// observable instruments whose callbacks read the session's atomic counters
// at collection time — nothing on the real-time audio or network paths ever
// calls into the metrics SDK.
package observe

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all budbridge metrics.
const meterName = "github.com/budbridge-io/budbridge"

// BridgeStats is a point-in-time view of the bridge used for metric
// collection. The bridge package is not imported here so the dependency
// direction stays core → observe.
type BridgeStats struct {
	PacketsSent       uint64
	PacketsReceived   uint64
	SentWithAudio     uint64
	ReceivedWithAudio uint64
	CaptureCallbacks  uint64
	Connected         bool
}

// Metrics holds the synchronous instruments used outside the audio path.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// HTTPRequestDuration tracks status-server request processing time.
	// Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// NewMetrics creates a fully initialised [Metrics] using the given
// [metric.MeterProvider], or the global provider when mp is nil. Returns an
// error if instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	m := mp.Meter(meterName)
	met := &Metrics{}
	var err error

	if met.HTTPRequestDuration, err = m.Float64Histogram("budbridge.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return met, nil
}

// RegisterBridgeObserver registers observable counters for the bridge's
// session counters plus a connected gauge. The stats function is invoked on
// every collection; it must be cheap and non-blocking (atomic loads only).
// The returned registration can be unregistered on shutdown.
func RegisterBridgeObserver(mp metric.MeterProvider, stats func() BridgeStats) (metric.Registration, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	m := mp.Meter(meterName)

	packetsSent, err := m.Int64ObservableCounter("budbridge.packets.sent",
		metric.WithDescription("UDP datagrams sent to the peer this session."))
	if err != nil {
		return nil, err
	}
	packetsReceived, err := m.Int64ObservableCounter("budbridge.packets.received",
		metric.WithDescription("UDP datagrams received from the peer this session."))
	if err != nil {
		return nil, err
	}
	sentWithAudio, err := m.Int64ObservableCounter("budbridge.packets.sent_with_audio",
		metric.WithDescription("Sent blocks whose amplitude exceeded the audio threshold."))
	if err != nil {
		return nil, err
	}
	receivedWithAudio, err := m.Int64ObservableCounter("budbridge.packets.received_with_audio",
		metric.WithDescription("Received datagrams whose amplitude exceeded the audio threshold."))
	if err != nil {
		return nil, err
	}
	captureCallbacks, err := m.Int64ObservableCounter("budbridge.capture.callbacks",
		metric.WithDescription("Capture callback invocations this session."))
	if err != nil {
		return nil, err
	}
	connected, err := m.Int64ObservableGauge("budbridge.connected",
		metric.WithDescription("1 while a session is live, 0 otherwise."))
	if err != nil {
		return nil, err
	}

	return m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := stats()
		o.ObserveInt64(packetsSent, int64(s.PacketsSent))
		o.ObserveInt64(packetsReceived, int64(s.PacketsReceived))
		o.ObserveInt64(sentWithAudio, int64(s.SentWithAudio))
		o.ObserveInt64(receivedWithAudio, int64(s.ReceivedWithAudio))
		o.ObserveInt64(captureCallbacks, int64(s.CaptureCallbacks))
		var up int64
		if s.Connected {
			up = 1
		}
		o.ObserveInt64(connected, up)
		return nil
	}, packetsSent, packetsReceived, sentWithAudio, receivedWithAudio, captureCallbacks, connected)
}
