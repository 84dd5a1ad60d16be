package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestGatewayMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewGatewayMetrics(reg)

	m.ObserveInbound("message", "stored")
	m.ObserveInbound("message", "stored")
	m.ObserveInbound("status", "applied")
	m.ObserveOutbound("SENT")
	m.ObserveWebhookLatency("message", 0.05)

	if got := testutil.ToFloat64(m.inboundTotal.WithLabelValues("message", "stored")); got != 2 {
		t.Errorf("expected 2 stored messages, got %v", got)
	}
	if got := testutil.ToFloat64(m.outboundTotal.WithLabelValues("SENT")); got != 1 {
		t.Errorf("expected 1 sent, got %v", got)
	}
}

func TestNilReceiverIsSafe(t *testing.T) {
	var m *GatewayMetrics
	m.ObserveInbound("message", "stored")
	m.ObserveOutbound("SENT")
	m.ObserveWebhookLatency("message", 0.1)
}
