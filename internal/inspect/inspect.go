// Package inspect serves a read-only HTTP view of a running server: a
// status snapshot, Prometheus metrics and a websocket feed of processed
// events.
package inspect

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/bazaarnet/bazaar/config"
	"github.com/bazaarnet/bazaar/internal/server"
	"github.com/bazaarnet/bazaar/libs/events"
	"github.com/bazaarnet/bazaar/libs/log"
)

const (
	// events buffered per websocket subscriber before new ones are dropped
	subscriberBufferSize = 64

	writeWait         = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Source is what the inspector reports on.
type Source interface {
	Status() server.Status
	EventSwitch() events.EventSwitch
}

// Inspector is the HTTP endpoint. It is disabled unless the inspect listen
// address is configured.
type Inspector struct {
	logger  log.Logger
	config  *config.InspectConfig
	metrics bool
	source  Source

	upgrader websocket.Upgrader
}

// New returns an Inspector reporting on source.
func New(cfg *config.Config, logger log.Logger, source Source) *Inspector {
	return &Inspector{
		logger:  logger,
		config:  cfg.Inspect,
		metrics: cfg.Instrumentation.Prometheus,
		source:  source,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// origins are enforced by the cors middleware
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP handler serving every route.
func (ins *Inspector) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", ins.handleStatus)
	mux.HandleFunc("/events", ins.handleEvents)
	if ins.metrics {
		mux.Handle("/metrics", promhttp.Handler())
	}

	var rootHandler http.Handler = mux
	if ins.config.IsCorsEnabled() {
		corsMiddleware := cors.New(cors.Options{
			AllowedOrigins: ins.config.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodHead, http.MethodGet},
		})
		rootHandler = corsMiddleware.Handler(mux)
	}
	return rootHandler
}

// Listen opens the configured TCP listener, capped at max_open_connections.
func (ins *Inspector) Listen() (net.Listener, error) {
	listener, err := net.Listen("tcp", ins.config.ListenAddress)
	if err != nil {
		return nil, err
	}
	if ins.config.MaxOpenConnections > 0 {
		listener = netutil.LimitListener(listener, ins.config.MaxOpenConnections)
	}
	return listener, nil
}

// Serve serves on listener until ctx is done, then shuts the HTTP server
// down. Open websocket feeds end with ctx.
func (ins *Inspector) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           ins.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ins.logger.Info("inspect server starting", "address", listener.Addr())
		err := srv.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			ins.logger.Info("inspect server stopped", "address", listener.Addr())
			return nil
		}
		ins.logger.Error("inspect server stopped with error", "address", listener.Addr(), "err", err)
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// Run listens and serves until ctx is done.
func (ins *Inspector) Run(ctx context.Context) error {
	listener, err := ins.Listen()
	if err != nil {
		return err
	}
	return ins.Serve(ctx, listener)
}

func (ins *Inspector) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(ins.source.Status()); err != nil {
		ins.logger.Error("failed to write status", "err", err)
	}
}

// handleEvents upgrades to a websocket and streams every processed event
// as a JSON text message. A subscriber that falls behind loses events.
func (ins *Inspector) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := ins.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ins.logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer conn.Close()

	evsw := ins.source.EventSwitch()
	listenerID := uuid.NewString()
	feed := make(chan server.ProcessedEvent, subscriberBufferSize)
	err = evsw.AddListenerForEvent(listenerID, server.EventProcessed, func(data events.EventData) error {
		ev, ok := data.(server.ProcessedEvent)
		if !ok {
			return nil
		}
		select {
		case feed <- ev:
		default:
			ins.logger.Debug("subscriber is full, dropping event", "listener", listenerID)
		}
		return nil
	})
	if err != nil {
		ins.logger.Error("failed to subscribe", "err", err)
		return
	}
	defer evsw.RemoveListener(listenerID)
	ins.logger.Debug("event subscriber connected", "remote", r.RemoteAddr, "listener", listenerID)

	// the client never sends anything; reading surfaces its close
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev := <-feed:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				ins.logger.Debug("event subscriber write failed", "listener", listenerID, "err", err)
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		}
	}
}
