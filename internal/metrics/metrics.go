// Package metrics exposes Prometheus collectors for the muxer, lockdown,
// and handshake layers: requests in flight, TLS upgrade outcomes, and
// handshake duration. Collectors are created lazily and are safe to use
// when metrics are never enabled — every Record/Observe call is a no-op
// on a nil *Metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registry *prometheus.Registry
	enabled  bool
	shared   *Metrics
	mu       sync.Mutex
)

// InitRegistry creates the process-wide registry. Must be called before
// New for collectors to be non-nil.
func InitRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	if registry == nil {
		registry = prometheus.NewRegistry()
		enabled = true
	}
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// Registry returns the process-wide registry, or nil if InitRegistry
// hasn't run.
func Registry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	return registry
}

// Metrics bundles every collector this module exposes. A nil *Metrics is
// valid and every method on it is a no-op, so callers can construct one
// unconditionally and only gate on IsEnabled() at startup.
type Metrics struct {
	muxRequestsInFlight *prometheus.GaugeVec
	muxRequestDuration  *prometheus.HistogramVec
	lockdownTLSUpgrades *prometheus.CounterVec
	handshakeDuration   prometheus.Histogram
}

// New returns the collector set registered against the process-wide
// registry, creating it on the first call; later calls return the same set.
// Returns nil if metrics are not enabled (InitRegistry not called). The
// muxclient/lockdown/xpchandshake constructors each call New themselves.
func New() *Metrics {
	mu.Lock()
	defer mu.Unlock()
	if !enabled {
		return nil
	}
	if shared == nil {
		shared = newWithRegistry(registry)
	}
	return shared
}

// newWithRegistry builds the collector set against an arbitrary registry,
// letting tests register independent collector sets rather than sharing
// (and re-registering into) the process-wide one.
func newWithRegistry(reg *prometheus.Registry) *Metrics {
	return &Metrics{
		muxRequestsInFlight: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "remotexpc_mux_requests_in_flight",
				Help: "Number of muxer requests awaiting a response, by message type.",
			},
			[]string{"message_type"},
		),
		muxRequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "remotexpc_mux_request_duration_seconds",
				Help:    "Muxer request round-trip latency, by message type.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"message_type"},
		),
		lockdownTLSUpgrades: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "remotexpc_lockdown_tls_upgrades_total",
				Help: "LockdownClient TLS upgrade attempts, by outcome.",
			},
			[]string{"outcome"}, // success, failed, skipped
		),
		handshakeDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "remotexpc_xpc_handshake_duration_seconds",
				Help:    "XpcHandshake.Perform wall-clock duration.",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

func (m *Metrics) MuxRequestStarted(messageType string) {
	if m == nil {
		return
	}
	m.muxRequestsInFlight.WithLabelValues(messageType).Inc()
}

func (m *Metrics) MuxRequestFinished(messageType string, seconds float64) {
	if m == nil {
		return
	}
	m.muxRequestsInFlight.WithLabelValues(messageType).Dec()
	m.muxRequestDuration.WithLabelValues(messageType).Observe(seconds)
}

func (m *Metrics) RecordTLSUpgrade(outcome string) {
	if m == nil {
		return
	}
	m.lockdownTLSUpgrades.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveHandshakeDuration(seconds float64) {
	if m == nil {
		return
	}
	m.handshakeDuration.Observe(seconds)
}
