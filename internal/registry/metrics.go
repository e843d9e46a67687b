package registry

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

// MetricsSubsystem is a subsystem shared by all metrics exposed by this
// package.
const MetricsSubsystem = "registry"

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Number of registered peers.
	Peers metrics.Gauge
	// Number of REGISTER attempts, labeled by result.
	Registrations metrics.Counter
	// Number of sessions removed by DE_REGISTER.
	Deregistrations metrics.Counter
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
// Optionally, labels can be provided along with their values ("foo",
// "fooValue").
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		Peers: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "peers",
			Help:      "Number of registered peers.",
		}, labels).With(labelsAndValues...),
		Registrations: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "registrations",
			Help:      "Number of registration attempts by result.",
		}, append(labels, "result")).With(labelsAndValues...),
		Deregistrations: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "deregistrations",
			Help:      "Number of sessions removed.",
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Peers:           discard.NewGauge(),
		Registrations:   discard.NewCounter(),
		Deregistrations: discard.NewCounter(),
	}
}
