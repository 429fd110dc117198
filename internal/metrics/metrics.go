// Package metrics defines the relay's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Session failure stages.
const (
	StageResolve = "resolve"
	StageDial    = "dial"
	StageRelay   = "relay"
)

// Telemetry error kinds.
const (
	KindPacket = "packet"
	KindStats  = "stats"
	KindEgress = "egress"
)

type Metrics struct {
	SessionsActive   prometheus.Gauge
	SessionsAccepted prometheus.Counter
	SessionFailures  *prometheus.CounterVec
	Packets          *prometheus.CounterVec
	Bytes            *prometheus.CounterVec
	MalformedFrames  *prometheus.CounterVec
	TelemetryErrors  *prometheus.CounterVec
	TelemetryDropped prometheus.Counter
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsActive:   f.NewGauge(prometheus.GaugeOpts{Name: "poolsocks_sessions_active", Help: "Sessions in the registry as of the last add or sweep"}),
		SessionsAccepted: f.NewCounter(prometheus.CounterOpts{Name: "poolsocks_sessions_accepted_total", Help: "Miner connections accepted"}),
		SessionFailures:  f.NewCounterVec(prometheus.CounterOpts{Name: "poolsocks_session_failures_total", Help: "Sessions ended by an error, by stage"}, []string{"stage"}),
		Packets:          f.NewCounterVec(prometheus.CounterOpts{Name: "poolsocks_packets_total", Help: "Frames relayed, by source"}, []string{"context"}),
		Bytes:            f.NewCounterVec(prometheus.CounterOpts{Name: "poolsocks_bytes_total", Help: "Bytes relayed, by source"}, []string{"context"}),
		MalformedFrames:  f.NewCounterVec(prometheus.CounterOpts{Name: "poolsocks_malformed_frames_total", Help: "Relayed frames that did not decode as JSON, by source"}, []string{"context"}),
		TelemetryErrors:  f.NewCounterVec(prometheus.CounterOpts{Name: "poolsocks_telemetry_errors_total", Help: "Failed backend submissions and egress lookups, by kind"}, []string{"kind"}),
		TelemetryDropped: f.NewCounter(prometheus.CounterOpts{Name: "poolsocks_telemetry_dropped_total", Help: "Packet events dropped because a session's queue was full"}),
	}
}

// Handler serves reg in the Prometheus exposition format.
func Handler(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
