package auction

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

// MetricsSubsystem is a subsystem shared by all metrics exposed by this
// package.
const MetricsSubsystem = "auction"

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Number of auctions opened.
	Opened metrics.Counter
	// Number of auctions currently collecting offers.
	Active metrics.Gauge
	// Number of offers received, labeled by whether they were accepted into
	// an auction or dropped.
	Offers metrics.Counter
	// Number of finalized auctions and closed negotiations, labeled by the
	// reply that was sent.
	Outcomes metrics.Counter
	// Prices of winning offers.
	WinningPrice metrics.Histogram
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
		Opened: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "opened",
			Help:      "Number of auctions opened.",
		}, labels).With(labelsAndValues...),
		Active: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "active",
			Help:      "Number of auctions collecting offers.",
		}, labels).With(labelsAndValues...),
		Offers: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "offers",
			Help:      "Number of offers received by result.",
		}, append(labels, "result")).With(labelsAndValues...),
		Outcomes: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "outcomes",
			Help:      "Number of auction and negotiation outcomes by reply.",
		}, append(labels, "reply")).With(labelsAndValues...),
		WinningPrice: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "winning_price",
			Help:      "Price of the lowest offer of each auction.",
			Buckets:   stdprometheus.ExponentialBuckets(1, 2, 16),
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Opened:       discard.NewCounter(),
		Active:       discard.NewGauge(),
		Offers:       discard.NewCounter(),
		Outcomes:     discard.NewCounter(),
		WinningPrice: discard.NewHistogram(),
	}
}
