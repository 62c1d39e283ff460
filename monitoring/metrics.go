package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "btcpeer"

// Direction labels which way a message or byte count travelled.
type Direction string

const (
	// Inbound is traffic read from the remote peer.
	Inbound Direction = "inbound"

	// Outbound is traffic written to the remote peer.
	Outbound Direction = "outbound"
)

// PeerMetrics holds the prometheus collectors shared by every connection. All
// methods are safe to call on a nil *PeerMetrics, in which case they do
// nothing, so connections can be built without metrics.
type PeerMetrics struct {
	messages    *prometheus.CounterVec
	bytes       *prometheus.CounterVec
	frameErrors *prometheus.CounterVec
	handshakes  *prometheus.CounterVec
	sendDropped prometheus.Counter
	connected   prometheus.Gauge
}

// NewPeerMetrics creates the peer collectors and registers them with reg.
func NewPeerMetrics(reg prometheus.Registerer) (*PeerMetrics, error) {
	m := &PeerMetrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "peer",
			Name:      "messages_total",
			Help:      "Messages exchanged with peers.",
		}, []string{"direction", "command"}),

		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "peer",
			Name:      "bytes_total",
			Help:      "Bytes exchanged with peers, headers included.",
		}, []string{"direction"}),

		frameErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "peer",
			Name:      "frame_errors_total",
			Help:      "Connections torn down by a framing error.",
		}, []string{"kind"}),

		handshakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "peer",
			Name:      "handshakes_total",
			Help:      "Completed handshake attempts by outcome.",
		}, []string{"result"}),

		sendDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "peer",
			Name:      "send_dropped_total",
			Help:      "Outbound messages rejected by a full queue.",
		}),

		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "peer",
			Name:      "connected",
			Help:      "Peers with an established handshake.",
		}),
	}

	collectors := []prometheus.Collector{
		m.messages, m.bytes, m.frameErrors, m.handshakes,
		m.sendDropped, m.connected,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// ObserveMessage records a single message of n bytes.
func (m *PeerMetrics) ObserveMessage(dir Direction, command string, n int) {
	if m == nil {
		return
	}

	m.messages.WithLabelValues(string(dir), command).Inc()
	m.bytes.WithLabelValues(string(dir)).Add(float64(n))
}

// ObserveFrameError records a connection lost to a framing or decoding error
// of the given kind.
func (m *PeerMetrics) ObserveFrameError(kind string) {
	if m == nil {
		return
	}

	m.frameErrors.WithLabelValues(kind).Inc()
}

// ObserveHandshake records the outcome of a handshake.
func (m *PeerMetrics) ObserveHandshake(result string) {
	if m == nil {
		return
	}

	m.handshakes.WithLabelValues(result).Inc()
}

// ObserveSendDropped records an outbound message rejected by a full queue.
func (m *PeerMetrics) ObserveSendDropped() {
	if m == nil {
		return
	}

	m.sendDropped.Inc()
}

// PeerConnected increments the connected peer gauge.
func (m *PeerMetrics) PeerConnected() {
	if m == nil {
		return
	}

	m.connected.Inc()
}

// PeerDisconnected decrements the connected peer gauge.
func (m *PeerMetrics) PeerDisconnected() {
	if m == nil {
		return
	}

	m.connected.Dec()
}
