package server

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

// MetricsSubsystem is a subsystem shared by all metrics exposed by this
// package.
const MetricsSubsystem = "server"

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Number of datagrams read from the socket.
	Datagrams metrics.Counter
	// Size of received datagrams in bytes.
	DatagramSizeBytes metrics.Histogram
	// Number of datagrams that failed to decode or validate.
	MalformedDatagrams metrics.Counter
	// Number of datagrams dropped because the worker pool refused them.
	DroppedDatagrams metrics.Counter
	// Number of events processed, labeled by command.
	Events metrics.Counter
	// Number of events waiting for the event processor.
	QueueDepth metrics.Gauge
	// Number of replies sent, labeled by command.
	Replies metrics.Counter
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
		Datagrams: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "datagrams",
			Help:      "Number of datagrams received.",
		}, labels).With(labelsAndValues...),
		DatagramSizeBytes: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "datagram_size_bytes",
			Help:      "Size of received datagrams in bytes.",
			Buckets:   stdprometheus.ExponentialBuckets(16, 2, 8),
		}, labels).With(labelsAndValues...),
		MalformedDatagrams: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "malformed_datagrams",
			Help:      "Number of datagrams that failed to decode.",
		}, labels).With(labelsAndValues...),
		DroppedDatagrams: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "dropped_datagrams",
			Help:      "Number of datagrams dropped before handling.",
		}, labels).With(labelsAndValues...),
		Events: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "events",
			Help:      "Number of events processed by command.",
		}, append(labels, "command")).With(labelsAndValues...),
		QueueDepth: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "queue_depth",
			Help:      "Number of events waiting to be processed.",
		}, labels).With(labelsAndValues...),
		Replies: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "replies",
			Help:      "Number of datagrams sent by command.",
		}, append(labels, "command")).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Datagrams:          discard.NewCounter(),
		DatagramSizeBytes:  discard.NewHistogram(),
		MalformedDatagrams: discard.NewCounter(),
		DroppedDatagrams:   discard.NewCounter(),
		Events:             discard.NewCounter(),
		QueueDepth:         discard.NewGauge(),
		Replies:            discard.NewCounter(),
	}
}
