package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestBookingMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)

	m.ObserveOperation("create", "ok")
	m.ObserveOperation("create", "ok")
	m.ObserveOperation("create", "conflict")
	m.ObserveConflict("storage")
	m.ObserveNotificationFailure("created")
	m.ObserveAvailability(0.01)

	require.Equal(t, 2.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("create", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("create", "conflict")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.conflictsTotal.WithLabelValues("storage")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.notificationFailures.WithLabelValues("created")))
	require.Equal(t, 1, testutil.CollectAndCount(m.availabilityLatency))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObserveOperation("create", "ok")
	m.ObserveConflict("check")
	m.ObserveNotificationFailure("created")
	m.ObserveAvailability(1)
}
