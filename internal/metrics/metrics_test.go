package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNew_NilWhenDisabled(t *testing.T) {
	// A fresh package state (no InitRegistry call) yields a nil Metrics
	// whose methods are all safe no-ops.
	var m *Metrics
	require.NotPanics(t, func() {
		m.MuxRequestStarted("ReadBUID")
		m.MuxRequestFinished("ReadBUID", 0.01)
		m.RecordTLSUpgrade("success")
		m.ObserveHandshakeDuration(0.2)
	})
}

func TestMetrics_RecordTLSUpgrade(t *testing.T) {
	m := newWithRegistry(prometheus.NewRegistry())
	require.NotNil(t, m)

	m.RecordTLSUpgrade("success")
	m.RecordTLSUpgrade("success")
	m.RecordTLSUpgrade("failed")

	require.Equal(t, float64(2), testutil.ToFloat64(m.lockdownTLSUpgrades.WithLabelValues("success")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.lockdownTLSUpgrades.WithLabelValues("failed")))
}

func TestMetrics_MuxRequestsInFlight(t *testing.T) {
	m := newWithRegistry(prometheus.NewRegistry())
	require.NotNil(t, m)

	m.MuxRequestStarted("ListDevices")
	require.Equal(t, float64(1), testutil.ToFloat64(m.muxRequestsInFlight.WithLabelValues("ListDevices")))

	m.MuxRequestFinished("ListDevices", 0.05)
	require.Equal(t, float64(0), testutil.ToFloat64(m.muxRequestsInFlight.WithLabelValues("ListDevices")))
}

func TestInitRegistry_EnablesNew(t *testing.T) {
	InitRegistry()
	require.True(t, IsEnabled())
	require.NotNil(t, New())
}
