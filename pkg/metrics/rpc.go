package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RPCMetrics observes peer RPC client calls.
type RPCMetrics struct {
	callsTotal   *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	capCacheHits *prometheus.CounterVec
}

// NewRPCMetrics returns nil if metrics are not enabled.
func NewRPCMetrics() *RPCMetrics {
	if !IsEnabled() {
		return nil
	}
	reg := GetRegistry()
	return &RPCMetrics{
		callsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "blockd_rpc_calls_total",
				Help: "Peer RPC calls by procedure and result.",
			},
			[]string{"op", "result"}, // result: ok, remote_error, proc_unavail, transport_error
		),
		callDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "blockd_rpc_call_duration_seconds",
				Help:    "Peer RPC call duration including connect.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		capCacheHits: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "blockd_capability_cache_result_total",
				Help: "Capability cache lookups by hit/miss.",
			},
			[]string{"result"},
		),
	}
}

func (m *RPCMetrics) RecordCall(op, result string) {
	if m == nil {
		return
	}
	m.callsTotal.WithLabelValues(op, result).Inc()
}

func (m *RPCMetrics) ObserveCallDuration(op string, seconds float64) {
	if m == nil {
		return
	}
	m.callDuration.WithLabelValues(op).Observe(seconds)
}

func (m *RPCMetrics) RecordCapabilityCacheResult(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.capCacheHits.WithLabelValues(result).Inc()
}
