// Package node assembles the rendezvous server and its optional inspect
// endpoint into a single service.
package node

import (
	"context"
	"net"

	"github.com/bazaarnet/bazaar/config"
	"github.com/bazaarnet/bazaar/internal/auction"
	"github.com/bazaarnet/bazaar/internal/inspect"
	"github.com/bazaarnet/bazaar/internal/registry"
	"github.com/bazaarnet/bazaar/internal/server"
	"github.com/bazaarnet/bazaar/libs/events"
	"github.com/bazaarnet/bazaar/libs/log"
	"github.com/bazaarnet/bazaar/libs/service"
	"github.com/bazaarnet/bazaar/version"
)

// MetricsProvider returns the metrics of every component.
type MetricsProvider func() (*server.Metrics, *registry.Metrics, *auction.Metrics)

// DefaultMetricsProvider returns Prometheus metrics when instrumentation is
// enabled and no-op metrics otherwise. The Prometheus collectors register
// with the default registry, so it must be called at most once per process
// with instrumentation enabled.
func DefaultMetricsProvider(cfg *config.InstrumentationConfig, moniker string) MetricsProvider {
	return func() (*server.Metrics, *registry.Metrics, *auction.Metrics) {
		if cfg.Prometheus {
			return server.PrometheusMetrics(cfg.Namespace, "moniker", moniker),
				registry.PrometheusMetrics(cfg.Namespace, "moniker", moniker),
				auction.PrometheusMetrics(cfg.Namespace, "moniker", moniker)
		}
		return server.NopMetrics(), registry.NopMetrics(), auction.NopMetrics()
	}
}

// Node is the top level service started by the start command.
type Node struct {
	service.BaseService

	config *config.Config
	logger log.Logger

	evsw      events.EventSwitch
	server    *server.Server
	inspector *inspect.Inspector

	inspectListener net.Listener
	cancel          context.CancelFunc
	done            chan struct{}
}

// NewDefault returns a Node with metrics chosen by the instrumentation
// config.
func NewDefault(cfg *config.Config, logger log.Logger) (*Node, error) {
	return New(cfg, logger, DefaultMetricsProvider(cfg.Instrumentation, cfg.Moniker))
}

// New validates cfg and wires the components of a Node.
func New(cfg *config.Config, logger log.Logger, metricsProvider MetricsProvider) (*Node, error) {
	if err := cfg.ValidateBasic(); err != nil {
		return nil, err
	}

	evsw := events.NewEventSwitch()
	serverMetrics, registryMetrics, auctionMetrics := metricsProvider()
	srv := server.New(cfg, logger.With("module", "server"),
		server.WithMetrics(serverMetrics, registryMetrics, auctionMetrics),
		server.WithEventSwitch(evsw),
	)

	n := &Node{
		config: cfg,
		logger: logger,
		evsw:   evsw,
		server: srv,
	}
	if cfg.Inspect.Enabled() {
		n.inspector = inspect.New(cfg, logger.With("module", "inspect"), srv)
	}
	n.BaseService = *service.NewBaseService(logger, "Node", n)
	return n, nil
}

// OnStart implements service.Service.
func (n *Node) OnStart(ctx context.Context) error {
	n.logger.Info("starting node",
		"moniker", n.config.Moniker, "version", version.BazaarVersion,
		"listen_address", n.config.Server.ListenAddress, "window", n.config.Auction.Window)

	if err := n.server.Start(ctx); err != nil {
		return err
	}

	if n.inspector == nil {
		return nil
	}

	listener, err := n.inspector.Listen()
	if err != nil {
		n.server.Stop()
		return err
	}
	n.inspectListener = listener

	ctx, n.cancel = context.WithCancel(ctx)
	n.done = make(chan struct{})
	go func() {
		defer close(n.done)
		if err := n.inspector.Serve(ctx, listener); err != nil {
			n.logger.Error("inspect server failed", "err", err)
		}
	}()
	return nil
}

// OnStop implements service.Service.
func (n *Node) OnStop() {
	n.logger.Info("stopping node")
	if n.cancel != nil {
		n.cancel()
		<-n.done
	}
	n.server.Stop()
}

// Server returns the rendezvous server.
func (n *Node) Server() *server.Server { return n.server }

// EventSwitch returns the switch processed events are fired on.
func (n *Node) EventSwitch() events.EventSwitch { return n.evsw }

// InspectAddr returns the address of the inspect endpoint, or nil if it is
// disabled or not started.
func (n *Node) InspectAddr() net.Addr {
	if n.inspectListener == nil {
		return nil
	}
	return n.inspectListener.Addr()
}
