package rbrbmetrics_test

import (
	"net/netip"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	rbrbmetrics "github.com/lockstepnet/rbrb/internal/metrics"
)

func testPeer() netip.AddrPort {
	return netip.MustParseAddrPort("10.0.0.2:7001")
}

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := rbrbmetrics.NewCollector(reg)

	if c.RTTSeconds == nil {
		t.Error("RTTSeconds is nil")
	}
	if c.RollbackFrames == nil {
		t.Error("RollbackFrames is nil")
	}
	if c.ConfirmationLagFrames == nil {
		t.Error("ConfirmationLagFrames is nil")
	}
	if c.ChecksumMismatches == nil {
		t.Error("ChecksumMismatches is nil")
	}

	// Gathering from the registry must succeed once the metrics are registered.
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	_ = families
}

func TestSetRTT(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := rbrbmetrics.NewCollector(reg)
	peer := testPeer()

	c.SetRTT(peer, 0.025)

	val := gaugeValue(t, c.RTTSeconds, peer.String())
	if val != 0.025 {
		t.Errorf("RTTSeconds = %v, want 0.025", val)
	}

	// A later sample must overwrite, not accumulate.
	c.SetRTT(peer, 0.030)
	val = gaugeValue(t, c.RTTSeconds, peer.String())
	if val != 0.030 {
		t.Errorf("RTTSeconds after second sample = %v, want 0.030", val)
	}
}

func TestObserveRollback(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := rbrbmetrics.NewCollector(reg)

	c.ObserveRollback(3)
	c.ObserveRollback(17)

	m := &dto.Metric{}
	if err := c.RollbackFrames.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	if got := m.GetHistogram().GetSampleCount(); got != 2 {
		t.Errorf("RollbackFrames sample count = %v, want 2", got)
	}
	if got := m.GetHistogram().GetSampleSum(); got != 20 {
		t.Errorf("RollbackFrames sample sum = %v, want 20", got)
	}
}

func TestSetConfirmationLag(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := rbrbmetrics.NewCollector(reg)

	c.SetConfirmationLag(5)

	m := &dto.Metric{}
	if err := c.ConfirmationLagFrames.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	if got := m.GetGauge().GetValue(); got != 5 {
		t.Errorf("ConfirmationLagFrames = %v, want 5", got)
	}

	// The horizon catching up must bring the gauge back down, not just up.
	c.SetConfirmationLag(1)
	if err := c.ConfirmationLagFrames.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	if got := m.GetGauge().GetValue(); got != 1 {
		t.Errorf("ConfirmationLagFrames after catch-up = %v, want 1", got)
	}
}

func TestIncChecksumMismatch(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := rbrbmetrics.NewCollector(reg)
	peer := testPeer()

	c.IncChecksumMismatch(peer)
	c.IncChecksumMismatch(peer)

	val := counterValue(t, c.ChecksumMismatches, peer.String())
	if val != 2 {
		t.Errorf("ChecksumMismatches = %v, want 2", val)
	}
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

func gaugeValue(t *testing.T, vec *prometheus.GaugeVec, labels ...string) float64 {
	t.Helper()

	gauge, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := gauge.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()

	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetCounter().GetValue()
}
