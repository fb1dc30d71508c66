// Package metrics exposes Prometheus collectors over the reliability
// engine's internal state: ack bitfield window size, residual ack count,
// saved/resent message counts, smoothed RTT, and connection status
// transitions. Grounded in the pack's TCPInfoCollector exporters
// (runZeroInc-sockstats, runZeroInc-conniver), which wrap
// prometheus/client_golang around a live connection's kernel statistics;
// this package observes the engine's own connection state the same way.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles every carrierpigeon collector. Callers register it
// against their own prometheus.Registerer (or prometheus.DefaultRegisterer)
// once per process.
type Registry struct {
	mu sync.Mutex

	AckBitfieldWindowSize prometheus.Gauge
	AckResidualCount      prometheus.Gauge
	ReliableSavedMessages prometheus.Gauge
	ReliableResendsTotal  prometheus.Counter
	PingRTTMillis         prometheus.Gauge
	ConnStatus            *prometheus.CounterVec
}

// NewRegistry constructs the collectors with a "carrierpigeon" metric
// name prefix.
func NewRegistry() *Registry {
	return &Registry{
		AckBitfieldWindowSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "carrierpigeon_ack_bitfield_window_size",
			Help: "Number of 32-bit bitfields currently held in the ack sliding window.",
		}),
		AckResidualCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "carrierpigeon_ack_residual_count",
			Help: "Number of AckNums in the residual set awaiting advertisement.",
		}),
		ReliableSavedMessages: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "carrierpigeon_reliable_saved_messages",
			Help: "Number of reliable sends awaiting acknowledgement.",
		}),
		ReliableResendsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "carrierpigeon_reliable_resends_total",
			Help: "Total number of saved message retransmissions.",
		}),
		PingRTTMillis: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "carrierpigeon_ping_rtt_ms",
			Help: "Current smoothed round-trip-time estimate, in milliseconds.",
		}),
		ConnStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carrierpigeon_conn_status_total",
			Help: "Count of connection status transitions, by resulting status.",
		}, []string{"status"}),
	}
}

// MustRegister registers every collector against reg.
func (r *Registry) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		r.AckBitfieldWindowSize,
		r.AckResidualCount,
		r.ReliableSavedMessages,
		r.ReliableResendsTotal,
		r.PingRTTMillis,
		r.ConnStatus,
	)
}

// ObserveAck records the current ack subsystem window/residual sizes.
func (r *Registry) ObserveAck(windowSize, residualCount int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.AckBitfieldWindowSize.Set(float64(windowSize))
	r.AckResidualCount.Set(float64(residualCount))
}

// ObserveReliable records the current saved-message count and the number
// of retransmissions just issued this tick.
func (r *Registry) ObserveReliable(savedCount, resendsThisTick int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ReliableSavedMessages.Set(float64(savedCount))
	r.ReliableResendsTotal.Add(float64(resendsThisTick))
}

// ObserveRTT records the current smoothed RTT, in milliseconds.
func (r *Registry) ObserveRTT(rttMillis float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.PingRTTMillis.Set(rttMillis)
}

// ObserveStatus increments the counter for a connection reaching status.
func (r *Registry) ObserveStatus(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ConnStatus.WithLabelValues(status).Inc()
}
