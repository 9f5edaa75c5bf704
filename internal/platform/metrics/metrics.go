package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"screener/internal/domain"
)

// Metrics tracks the active reference snapshot.
type Metrics struct {
	SnapshotVersion  prometheus.Gauge
	SnapshotEntries  prometheus.Gauge
	SnapshotAliases  prometheus.Gauge
	SnapshotLoadedAt prometheus.Gauge
	SnapshotSwaps    prometheus.Counter
}

// New registers the snapshot metrics with the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the snapshot metrics with reg.
func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SnapshotVersion: f.NewGauge(prometheus.GaugeOpts{
			Name: "screener_snapshot_version",
			Help: "Version of the active reference snapshot",
		}),
		SnapshotEntries: f.NewGauge(prometheus.GaugeOpts{
			Name: "screener_snapshot_entries",
			Help: "Reference entries in the active snapshot",
		}),
		SnapshotAliases: f.NewGauge(prometheus.GaugeOpts{
			Name: "screener_snapshot_aliases",
			Help: "Normalized aliases in the active snapshot",
		}),
		SnapshotLoadedAt: f.NewGauge(prometheus.GaugeOpts{
			Name: "screener_snapshot_loaded_timestamp_seconds",
			Help: "Unix time the active snapshot was built",
		}),
		SnapshotSwaps: f.NewCounter(prometheus.CounterOpts{
			Name: "screener_snapshot_swaps_total",
			Help: "Snapshots installed since start",
		}),
	}
}

// ObserveSnapshot records snap as the active snapshot. It has the signature of
// a snapshot store swap hook.
func (m *Metrics) ObserveSnapshot(_, snap *domain.Snapshot) {
	if m == nil || snap == nil {
		return
	}
	m.SnapshotVersion.Set(float64(snap.Version()))
	m.SnapshotEntries.Set(float64(snap.Len()))
	m.SnapshotAliases.Set(float64(snap.AliasCount()))
	loaded := snap.LoadedAt()
	if loaded.IsZero() {
		loaded = time.Now()
	}
	m.SnapshotLoadedAt.Set(float64(loaded.Unix()))
	m.SnapshotSwaps.Inc()
}
