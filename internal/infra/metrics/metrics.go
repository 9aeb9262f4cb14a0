// Package metrics provides Prometheus metrics for a general.
// Every peer process registers these on the default registry and serves
// them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Rounds ─────────────────────────────────────────────────────────────────

// RoundsTotal counts order rounds driven by this general, by outcome
// (decided, indeterminate, failed).
var RoundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "generals",
	Name:      "rounds_total",
	Help:      "Total order rounds by outcome.",
}, []string{"outcome"})

// RoundDuration tracks how long a full round takes on the primary.
var RoundDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "generals",
	Name:      "round_duration_seconds",
	Help:      "Order round duration in seconds.",
	Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
})

// ─── Membership ─────────────────────────────────────────────────────────────

// QuorumSize tracks the size of the membership view (self included).
var QuorumSize = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "generals",
	Name:      "quorum_size",
	Help:      "Number of generals in this peer's membership view.",
})

// FaultStateChanges counts fault state changes applied to this general.
var FaultStateChanges = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "generals",
	Name:      "fault_state_changes_total",
	Help:      "Fault state changes applied, by new state.",
}, []string{"state"})

// ─── RPC ────────────────────────────────────────────────────────────────────

// RPCServed counts inbound remote calls by method and result code.
var RPCServed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "generals",
	Name:      "rpc_served_total",
	Help:      "Inbound remote calls by method and outcome.",
}, []string{"method", "outcome"})

// RPCLatency tracks outbound remote call latency by method.
var RPCLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "generals",
	Name:      "rpc_call_latency_seconds",
	Help:      "Outbound remote call latency in seconds.",
	Buckets:   prometheus.DefBuckets,
}, []string{"method"})

// PeersUnreachable counts outbound calls that never reached their peer.
var PeersUnreachable = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "generals",
	Name:      "peers_unreachable_total",
	Help:      "Outbound remote calls that failed to reach the peer.",
})
