package stream

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/chronowave/hackrf-bridge/bridge"
)

const (
	reasonStopped      = "stopped"
	reasonError        = "error"
	reasonPanic        = "panic"
	reasonClosed       = "closed"
	reasonDirection    = "direction"
	reasonUnregistered = "unregistered"
)

// Metrics counts dispatched transfers. It is a prometheus.Collector and is not
// registered anywhere by default.
type Metrics struct {
	transfers *prometheus.CounterVec
	bytes     *prometheus.CounterVec
	stops     *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hackrf",
			Name:      "transfers_total",
			Help:      "Sample transfers handed to a stream callback.",
		}, []string{"direction"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hackrf",
			Name:      "transfer_bytes_total",
			Help:      "Sample bytes handed to a stream callback.",
		}, []string{"direction"}),
		stops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hackrf",
			Name:      "stream_stops_total",
			Help:      "Transfers answered with a stop status, by reason.",
		}, []string{"direction", "reason"}),
	}
}

func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.transfers.Describe(ch)
	m.bytes.Describe(ch)
	m.stops.Describe(ch)
}

func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.transfers.Collect(ch)
	m.bytes.Collect(ch)
	m.stops.Collect(ch)
}

// Transfers returns the transfer counter for dir.
func (m *Metrics) Transfers(dir bridge.Direction) prometheus.Counter {
	return m.transfers.WithLabelValues(dir.String())
}

// Bytes returns the byte counter for dir.
func (m *Metrics) Bytes(dir bridge.Direction) prometheus.Counter {
	return m.bytes.WithLabelValues(dir.String())
}

// Stops returns the stop counter for dir and reason.
func (m *Metrics) Stops(dir bridge.Direction, reason string) prometheus.Counter {
	return m.stops.WithLabelValues(dir.String(), reason)
}

func (m *Metrics) transferred(dir bridge.Direction, n int) {
	m.transfers.WithLabelValues(dir.String()).Inc()
	m.bytes.WithLabelValues(dir.String()).Add(float64(n))
}

func (m *Metrics) stopped(dir bridge.Direction, reason string) {
	m.stops.WithLabelValues(dir.String(), reason).Inc()
}
