// Package server implements the UDP rendezvous server. Datagrams are read
// by one routine, decoded and handled on a worker pool, and the resulting
// events are applied to the protocol state machines by a single event
// processor.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	bufpool "github.com/libp2p/go-buffer-pool"

	"github.com/bazaarnet/bazaar/config"
	"github.com/bazaarnet/bazaar/internal/auction"
	"github.com/bazaarnet/bazaar/internal/libs/queue"
	"github.com/bazaarnet/bazaar/internal/libs/workerpool"
	"github.com/bazaarnet/bazaar/internal/registry"
	"github.com/bazaarnet/bazaar/libs/events"
	"github.com/bazaarnet/bazaar/libs/log"
	"github.com/bazaarnet/bazaar/libs/service"
	"github.com/bazaarnet/bazaar/types"
)

// EventProcessed is fired on the event switch for every processed event,
// in addition to the event's own command name.
const EventProcessed = "Processed"

var errNotListening = errors.New("server is not listening")

// ProcessedEvent is the data fired on the event switch.
type ProcessedEvent struct {
	Event       *types.Event      `json:"-"`
	Message     *types.Message    `json:"message"`
	From        string            `json:"from"`
	Registered  bool              `json:"registered"`
	PeerState   types.PeerState   `json:"peer_state,omitempty"`
	ServerState types.ServerState `json:"server_state"`
	ProcessedAt time.Time         `json:"processed_at"`
}

// Status is a snapshot of the server for inspection.
type Status struct {
	State         types.ServerState      `json:"state"`
	ListenAddress string                 `json:"listen_address"`
	Peers         []registry.SessionInfo `json:"peers"`
	Auctions      []auction.AuctionInfo  `json:"auctions"`
	Negotiations  int                    `json:"negotiations"`
	QueuedEvents  int                    `json:"queued_events"`
}

type inbound struct {
	event *types.Event
	from  net.Addr
}

// Server is the rendezvous server. Every piece of shared state lives on the
// instance and is torn down with it.
type Server struct {
	service.BaseService

	logger          log.Logger
	config          *config.ServerConfig
	metrics         *Metrics
	registryMetrics *registry.Metrics
	auctionMetrics  *auction.Metrics
	evsw            events.EventSwitch

	registry    *registry.Registry
	coordinator *auction.Coordinator
	machine     *ServerMachine
	eventQueue  *queue.Queue[inbound]
	handlers    map[types.Command]handlerFunc

	conn   net.PacketConn
	pool   *workerpool.Pool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option sets an optional parameter on the Server.
type Option func(*Server)

// WithMetrics sets the metrics of the server and the components it owns.
func WithMetrics(sm *Metrics, rm *registry.Metrics, am *auction.Metrics) Option {
	return func(s *Server) {
		s.metrics = sm
		s.registryMetrics = rm
		s.auctionMetrics = am
	}
}

// WithEventSwitch sets the switch processed events are fired on.
func WithEventSwitch(evsw events.EventSwitch) Option {
	return func(s *Server) { s.evsw = evsw }
}

// New returns a server configured by cfg. It does not bind the socket until
// started.
func New(cfg *config.Config, logger log.Logger, options ...Option) *Server {
	s := &Server{
		logger:          logger,
		config:          cfg.Server,
		metrics:         NopMetrics(),
		registryMetrics: registry.NopMetrics(),
		auctionMetrics:  auction.NopMetrics(),
		machine:         NewServerMachine(),
		eventQueue:      queue.New[inbound](),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.evsw == nil {
		s.evsw = events.NewEventSwitch()
	}

	s.registry = registry.New(
		registry.WithMaxPeers(cfg.Server.MaxPeers),
		registry.WithMetrics(s.registryMetrics),
	)
	s.coordinator = auction.NewCoordinator(
		logger.With("module", "auction"),
		s,
		auction.WithWindow(cfg.Auction.Window),
		auction.WithMetrics(s.auctionMetrics),
	)
	s.handlers = s.commandHandlers()

	s.BaseService = *service.NewBaseService(logger, "Server", s)
	return s
}

// OnStart implements service.Service by binding the socket and starting the
// receive and event processing routines. A bind failure aborts the start.
func (s *Server) OnStart(ctx context.Context) error {
	conn, err := net.ListenPacket("udp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}
	s.conn = conn
	s.pool = workerpool.New(s.logger.With("module", "workerpool"), s.config.Workers)

	if err := s.coordinator.Start(ctx); err != nil {
		_ = conn.Close()
		s.pool.Stop()
		return err
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(2)
	go s.receiveRoutine()
	go s.processRoutine(ctx)

	s.logger.Info("listening for peers",
		"addr", conn.LocalAddr(), "workers", s.pool.Size(), "max_peers", s.config.MaxPeers)
	return nil
}

// OnStop implements service.Service. Queued datagrams still run on the
// worker pool, open auctions are abandoned.
func (s *Server) OnStop() {
	if err := s.conn.Close(); err != nil {
		s.logger.Error("error closing socket", "err", err)
	}
	s.cancel()
	s.wg.Wait()

	s.coordinator.Stop()
	s.pool.Stop()
}

// ListenAddr returns the bound address, or nil before the server started.
func (s *Server) ListenAddr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// EventSwitch returns the switch processed events are fired on.
func (s *Server) EventSwitch() events.EventSwitch { return s.evsw }

// Status returns a snapshot of the server.
func (s *Server) Status() Status {
	st := Status{
		State:        s.machine.Current(),
		Peers:        s.registry.Peers(""),
		Auctions:     s.coordinator.Auctions(),
		Negotiations: s.coordinator.NumNegotiations(),
		QueuedEvents: s.eventQueue.Len(),
	}
	if addr := s.ListenAddr(); addr != nil {
		st.ListenAddress = addr.String()
	}
	return st
}

// Send encodes msg and writes it to addr as one datagram.
func (s *Server) Send(msg *types.Message, addr net.Addr) error {
	if s.conn == nil {
		return errNotListening
	}

	bz, err := msg.Marshal()
	if err != nil {
		return fmt.Errorf("encoding %s: %w", msg.Command, err)
	}
	if _, err := s.conn.WriteTo(bz, addr); err != nil {
		return err
	}

	s.metrics.Replies.With("command", msg.Command.String()).Add(1)
	return nil
}

// reply sends msg and logs delivery failures. Replies are never retried.
func (s *Server) reply(msg *types.Message, addr net.Addr) {
	if err := s.Send(msg, addr); err != nil {
		s.logger.Error("failed to send", "command", msg.Command, "to", addr, "err", err)
	}
}

// receiveRoutine reads datagrams until the socket is closed and hands each
// one to the worker pool.
func (s *Server) receiveRoutine() {
	defer s.wg.Done()

	for {
		buf := bufpool.Get(s.config.MaxDatagramSize)
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			bufpool.Put(buf)
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("failed to read datagram", "err", err)
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])
		bufpool.Put(buf)

		s.metrics.Datagrams.Add(1)
		s.metrics.DatagramSizeBytes.Observe(float64(n))

		if _, err := s.pool.Submit(func() error {
			s.handleDatagram(payload, addr)
			return nil
		}); err != nil {
			s.metrics.DroppedDatagrams.Add(1)
			s.logger.Debug("dropping datagram", "from", addr, "err", err)
		}
	}
}

// handleDatagram decodes one datagram, runs its command handler and queues
// the resulting event. It runs on a pool worker.
func (s *Server) handleDatagram(payload []byte, from net.Addr) {
	ev, err := types.ParseMessage(payload)
	if err != nil {
		s.metrics.MalformedDatagrams.Add(1)
		s.logger.Debug("dropping malformed datagram", "from", from, "err", err)
		return
	}
	if ev.Command == types.CommandUnknown {
		s.logger.Debug("ignoring unknown command", "from", from, "rq", ev.RequestNumber)
		return
	}

	if handler, ok := s.handlers[ev.Command]; ok {
		handler(ev, from)
	}

	s.eventQueue.Push(inbound{event: ev, from: from})
	s.metrics.QueueDepth.Set(float64(s.eventQueue.Len()))
}

// processRoutine is the only consumer of the event queue.
func (s *Server) processRoutine(ctx context.Context) {
	defer s.wg.Done()

	for {
		in, err := s.eventQueue.Pop(ctx)
		if err != nil {
			return
		}
		s.processEvent(in)
	}
}

// processEvent advances the server machine and the sender's peer machine.
// Events from peers without a session advance neither.
func (s *Server) processEvent(in inbound) {
	identity := registry.Identity(in.from)

	var peerState types.PeerState
	registered := s.registry.WithSession(identity, func(sess *registry.Session) {
		s.machine.ProcessEvent(in.event)
		peerState, _ = sess.Machine.ProcessEvent(in.event)
	})

	s.metrics.QueueDepth.Set(float64(s.eventQueue.Len()))
	s.metrics.Events.With("command", in.event.Name()).Add(1)

	data := ProcessedEvent{
		Event:       in.event,
		Message:     in.event.Message(),
		From:        identity,
		Registered:  registered,
		PeerState:   peerState,
		ServerState: s.machine.Current(),
		ProcessedAt: time.Now(),
	}
	s.evsw.FireEvent(in.event.Name(), data)
	s.evsw.FireEvent(EventProcessed, data)
}
