package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"screener/internal/domain"
)

func TestObserveSnapshot(t *testing.T) {
	m := NewWith(prometheus.NewRegistry())
	loaded := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	m.ObserveSnapshot(nil, domain.NewSnapshot(7, nil, loaded))

	assert.Equal(t, 7.0, testutil.ToFloat64(m.SnapshotVersion))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SnapshotEntries))
	assert.Equal(t, float64(loaded.Unix()), testutil.ToFloat64(m.SnapshotLoadedAt))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotSwaps))
}

func TestObserveSnapshot_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() { m.ObserveSnapshot(nil, domain.NewSnapshot(1, nil, time.Now())) })
}
