// Package rbrbmetrics exposes the session driver's health as Prometheus
// metrics: per-peer RTT, how far the engine has had to roll back, how far
// the confirmation horizon trails realtime, and checksum-plugin mismatches.
package rbrbmetrics

import (
	"net/netip"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "rbrb"
	subsystem = "session"
)

// Label names.
const (
	labelPeerAddr = "peer_addr"
)

// Collector holds every Prometheus metric a running session updates.
//
// Metrics are designed for operating a live rollback session:
//   - RTT gauges track per-peer round-trip estimates the shared clock and
//     drift controller rely on.
//   - RollbackFrames histograms the distance every rollback replays, the
//     single number that best predicts CPU cost per tick.
//   - ConfirmationLag gauges how far the confirmation horizon trails the
//     realtime frame, the leading indicator of an unresponsive peer.
//   - ChecksumMismatches counts determinism violations the checksum plugin
//     has caught, which should never move off zero in a healthy session.
type Collector struct {
	// RTTSeconds is the most recent average round-trip estimate per peer,
	// as produced by the network quality estimator.
	RTTSeconds *prometheus.GaugeVec

	// RollbackFrames records how many frames each rollback replayed.
	RollbackFrames prometheus.Histogram

	// ConfirmationLagFrames is the realtime frame minus the confirmation
	// horizon, set by the caller through SetConfirmationLag.
	ConfirmationLagFrames prometheus.Gauge

	// ChecksumMismatches counts confirmed frames where a peer's checksum
	// disagreed with the local one, labeled by the offending peer.
	ChecksumMismatches *prometheus.CounterVec
}

// NewCollector creates a Collector with every metric registered against
// reg. If reg is nil, prometheus.DefaultRegisterer is used.
//
// All metrics use the "rbrb_session_" prefix (namespace_subsystem) to avoid
// collisions with other exporters sharing a process.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.RTTSeconds,
		c.RollbackFrames,
		c.ConfirmationLagFrames,
		c.ChecksumMismatches,
	)

	return c
}

// newMetrics creates all Prometheus metrics without registering them.
func newMetrics() *Collector {
	peerLabels := []string{labelPeerAddr}

	return &Collector{
		RTTSeconds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rtt_seconds",
			Help:      "Most recent average round-trip estimate to a peer.",
		}, peerLabels),

		RollbackFrames: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rollback_frames",
			Help:      "Number of frames replayed by each rollback.",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128},
		}),

		ConfirmationLagFrames: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "confirmation_lag_frames",
			Help:      "Realtime frame minus the confirmation horizon.",
		}),

		ChecksumMismatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "checksum_mismatches_total",
			Help:      "Confirmed frames where a peer's checksum disagreed with the local one.",
		}, peerLabels),
	}
}

// SetRTT records the latest average RTT estimate for peer.
func (c *Collector) SetRTT(peer netip.AddrPort, rtt float64) {
	c.RTTSeconds.WithLabelValues(peer.String()).Set(rtt)
}

// ObserveRollback records the frame distance a rollback just replayed.
func (c *Collector) ObserveRollback(frames int) {
	c.RollbackFrames.Observe(float64(frames))
}

// SetConfirmationLag records how far the confirmation horizon trails the
// current realtime frame.
func (c *Collector) SetConfirmationLag(frames int) {
	c.ConfirmationLagFrames.Set(float64(frames))
}

// IncChecksumMismatch records a determinism mismatch reported by peer.
func (c *Collector) IncChecksumMismatch(peer netip.AddrPort) {
	c.ChecksumMismatches.WithLabelValues(peer.String()).Inc()
}
