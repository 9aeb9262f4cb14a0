package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func gatheredNames(t *testing.T) map[string]bool {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

func TestRoundMetrics(t *testing.T) {
	RoundsTotal.WithLabelValues("decided").Inc()
	RoundDuration.Observe(0.02)

	names := gatheredNames(t)
	for _, name := range []string{
		"generals_rounds_total",
		"generals_round_duration_seconds",
	} {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}

func TestMembershipMetrics(t *testing.T) {
	QuorumSize.Set(4)
	FaultStateChanges.WithLabelValues("faulty").Inc()

	names := gatheredNames(t)
	if !names["generals_quorum_size"] {
		t.Error("generals_quorum_size not found")
	}
	if !names["generals_fault_state_changes_total"] {
		t.Error("generals_fault_state_changes_total not found")
	}
}

func TestRPCMetrics(t *testing.T) {
	RPCServed.WithLabelValues("getOrder", "ok").Inc()
	RPCLatency.WithLabelValues("getOrder").Observe(0.001)
	PeersUnreachable.Inc()

	names := gatheredNames(t)
	for _, name := range []string{
		"generals_rpc_served_total",
		"generals_rpc_call_latency_seconds",
		"generals_peers_unreachable_total",
	} {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}
