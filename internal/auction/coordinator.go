package auction

import (
	"context"
	"errors"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/bazaarnet/bazaar/libs/log"
	"github.com/bazaarnet/bazaar/libs/service"
	"github.com/bazaarnet/bazaar/types"
)

// DefaultWindow is how long an auction collects offers.
const DefaultWindow = 60 * time.Second

var (
	// ErrDuplicateRequest is returned by Open when the request number already
	// has an active auction.
	ErrDuplicateRequest = errors.New("request number already has an active auction or negotiation")
	// ErrUnknownRequest is returned for offers that match no active auction.
	ErrUnknownRequest = errors.New("no active auction for request number")
	// ErrAuctionClosed is returned for offers that arrive after the auction
	// was finalized.
	ErrAuctionClosed = errors.New("auction already finalized")
	// ErrUnknownNegotiation is returned when ACCEPT or REFUSE matches no open
	// negotiation.
	ErrUnknownNegotiation = errors.New("no open negotiation for request number")
	// ErrNotNegotiationParty is returned when ACCEPT or REFUSE comes from an
	// address other than the seller that was asked to negotiate.
	ErrNotNegotiationParty = errors.New("sender is not the negotiating seller")
)

// Sender delivers a reply to a peer.
type Sender interface {
	Send(msg *types.Message, addr net.Addr) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(msg *types.Message, addr net.Addr) error

func (f SenderFunc) Send(msg *types.Message, addr net.Addr) error { return f(msg, addr) }

// AuctionInfo is a snapshot of an active auction.
type AuctionInfo struct {
	RequestNumber int64       `json:"rq"`
	Searcher      string      `json:"searcher"`
	ItemName      string      `json:"item_name"`
	MaxPrice      types.Price `json:"max_price"`
	Offers        int         `json:"offers"`
	Deadline      time.Time   `json:"deadline"`
}

// Coordinator owns every active auction and negotiation. Deadlines are
// serviced by a single ticker routine while the coordinator is running.
type Coordinator struct {
	service.BaseService

	logger  log.Logger
	sender  Sender
	window  time.Duration
	metrics *Metrics
	now     func() time.Time

	ticker *timeoutTicker
	cancel context.CancelFunc
	done   chan struct{}

	mtx          sync.Mutex
	auctions     map[int64]*Auction
	negotiations map[int64]*Negotiation
}

// CoordinatorOption sets an optional parameter on the Coordinator.
type CoordinatorOption func(*Coordinator)

// WithWindow sets how long auctions and negotiations stay open.
func WithWindow(window time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.window = window }
}

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) CoordinatorOption {
	return func(c *Coordinator) { c.metrics = metrics }
}

// NewCoordinator returns a coordinator that delivers replies through sender.
func NewCoordinator(logger log.Logger, sender Sender, options ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		logger:       logger,
		sender:       sender,
		window:       DefaultWindow,
		metrics:      NopMetrics(),
		now:          time.Now,
		ticker:       newTimeoutTicker(logger),
		auctions:     make(map[int64]*Auction),
		negotiations: make(map[int64]*Negotiation),
	}
	for _, opt := range options {
		opt(c)
	}
	c.BaseService = *service.NewBaseService(logger, "AuctionCoordinator", c)
	return c
}

// OnStart implements service.Service by starting the deadline routine.
func (c *Coordinator) OnStart(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})

	go func() {
		defer close(c.done)
		c.ticker.run(ctx, c.handleTimeout)
	}()
	return nil
}

// OnStop implements service.Service. Auctions still open are abandoned
// without a reply.
func (c *Coordinator) OnStop() {
	c.cancel()
	<-c.done
}

// Open starts collecting offers for req. Exactly one deadline is armed,
// one window from now. The request number must not belong to an open
// auction or negotiation.
func (c *Coordinator) Open(req Request) error {
	now := c.now()

	c.mtx.Lock()
	_, open := c.auctions[req.RequestNumber]
	_, negotiating := c.negotiations[req.RequestNumber]
	if open || negotiating {
		c.mtx.Unlock()
		return ErrDuplicateRequest
	}
	a := &Auction{
		Request:   req,
		CreatedAt: now,
		Deadline:  now.Add(c.window),
	}
	c.auctions[req.RequestNumber] = a
	active := len(c.auctions)
	c.mtx.Unlock()

	c.ticker.ScheduleTimeout(timeoutInfo{
		RequestNumber: req.RequestNumber,
		Kind:          timeoutAuctionClose,
		Deadline:      a.Deadline,
	})

	c.metrics.Opened.Add(1)
	c.metrics.Active.Set(float64(active))
	c.logger.Debug("auction opened",
		"rq", req.RequestNumber, "item", req.ItemName, "max_price", req.MaxPrice, "deadline", a.Deadline)
	return nil
}

// AddOffer records offer against the auction for rq. Offers are appended
// under the same lock Finalize uses, so each one is either ranked or
// rejected.
func (c *Coordinator) AddOffer(rq int64, offer Offer) error {
	if offer.ReceivedAt.IsZero() {
		offer.ReceivedAt = c.now()
	}

	c.mtx.Lock()
	defer c.mtx.Unlock()

	a, ok := c.auctions[rq]
	if !ok {
		c.metrics.Offers.With("result", "dropped").Add(1)
		return ErrUnknownRequest
	}
	if a.finalized {
		c.metrics.Offers.With("result", "dropped").Add(1)
		return ErrAuctionClosed
	}

	a.Offers = append(a.Offers, offer)
	c.metrics.Offers.With("result", "accepted").Add(1)
	return nil
}

// Finalize closes the auction for rq, sends its terminal reply and returns
// the outcome. It reports false if there is no such auction or it was
// already finalized, in which case nothing is sent.
func (c *Coordinator) Finalize(rq int64) (Outcome, bool) {
	return c.finalize(rq, time.Time{})
}

// finalize acts only on an auction whose deadline equals deadline, unless
// deadline is zero.
func (c *Coordinator) finalize(rq int64, deadline time.Time) (Outcome, bool) {
	c.mtx.Lock()
	a, ok := c.auctions[rq]
	if !ok || a.finalized || (!deadline.IsZero() && !a.Deadline.Equal(deadline)) {
		c.mtx.Unlock()
		return Outcome{}, false
	}

	a.finalized = true
	delete(c.auctions, rq)
	active := len(c.auctions)

	out := Decide(a.Request, a.Offers)
	var negotiation *Negotiation
	if out.Kind == OutcomeNegotiate {
		negotiation = &Negotiation{
			RequestNumber: rq,
			Searcher:      a.Searcher,
			SearcherAddr:  a.SearcherAddr,
			Seller:        out.Best.Seller,
			SellerAddr:    out.Best.Addr,
			ItemName:      a.ItemName,
			MaxPrice:      a.MaxPrice,
			Deadline:      c.now().Add(c.window),
		}
		c.negotiations[rq] = negotiation
	}
	c.mtx.Unlock()

	if negotiation != nil {
		c.ticker.ScheduleTimeout(timeoutInfo{
			RequestNumber: rq,
			Kind:          timeoutNegotiationExpiry,
			Deadline:      negotiation.Deadline,
		})
	}

	c.metrics.Active.Set(float64(active))
	c.metrics.Outcomes.With("reply", string(out.Kind)).Add(1)
	if out.Kind == OutcomeFound {
		f, _ := out.Best.Price.Float64()
		c.metrics.WinningPrice.Observe(f)
	}
	c.logger.Info("auction finalized",
		"rq", rq, "item", a.ItemName, "offers", len(a.Offers), "outcome", out.Kind)

	c.send(out.Message, out.Recipient)
	return out, true
}

// Resolve closes the negotiation for rq with the seller's answer. An
// acceptance at or below the searcher's limit yields FOUND to the searcher;
// anything else yields NOT_FOUND.
func (c *Coordinator) Resolve(rq int64, from net.Addr, accepted bool, price types.Price) (Outcome, error) {
	c.mtx.Lock()
	n, ok := c.negotiations[rq]
	if !ok {
		c.mtx.Unlock()
		return Outcome{}, ErrUnknownNegotiation
	}
	if from == nil || n.SellerAddr == nil || from.String() != n.SellerAddr.String() {
		c.mtx.Unlock()
		return Outcome{}, ErrNotNegotiationParty
	}
	delete(c.negotiations, rq)
	c.mtx.Unlock()

	var out Outcome
	if accepted && price.LessThanOrEqual(n.MaxPrice) {
		out = Outcome{
			Kind:      OutcomeFound,
			Message:   types.NewFoundMessage(rq, n.ItemName, price),
			Recipient: n.SearcherAddr,
		}
	} else {
		out = Outcome{
			Kind:      OutcomeNotFound,
			Message:   types.NewNotFoundMessage(rq, n.ItemName, n.MaxPrice),
			Recipient: n.SearcherAddr,
		}
	}

	c.metrics.Outcomes.With("reply", string(out.Kind)).Add(1)
	c.logger.Info("negotiation closed",
		"rq", rq, "seller", n.Seller, "accepted", accepted, "price", price, "outcome", out.Kind)

	c.send(out.Message, out.Recipient)
	return out, nil
}

func (c *Coordinator) expireNegotiation(rq int64, deadline time.Time) {
	c.mtx.Lock()
	n, ok := c.negotiations[rq]
	if !ok || !n.Deadline.Equal(deadline) {
		c.mtx.Unlock()
		return
	}
	delete(c.negotiations, rq)
	c.mtx.Unlock()

	c.metrics.Outcomes.With("reply", string(OutcomeNotFound)).Add(1)
	c.logger.Info("negotiation expired", "rq", rq, "seller", n.Seller)
	c.send(types.NewNotFoundMessage(rq, n.ItemName, n.MaxPrice), n.SearcherAddr)
}

func (c *Coordinator) handleTimeout(ti timeoutInfo) {
	switch ti.Kind {
	case timeoutAuctionClose:
		c.finalize(ti.RequestNumber, ti.Deadline)
	case timeoutNegotiationExpiry:
		c.expireNegotiation(ti.RequestNumber, ti.Deadline)
	}
}

func (c *Coordinator) send(msg *types.Message, addr net.Addr) {
	if addr == nil {
		c.logger.Error("no recipient for reply", "command", msg.Command, "rq", msg.RequestNumber)
		return
	}
	if err := c.sender.Send(msg, addr); err != nil {
		c.logger.Error("failed to send reply", "command", msg.Command, "to", addr, "err", err)
	}
}

// Auctions returns snapshots of the active auctions ordered by request
// number.
func (c *Coordinator) Auctions() []AuctionInfo {
	c.mtx.Lock()
	out := make([]AuctionInfo, 0, len(c.auctions))
	for _, a := range c.auctions {
		out = append(out, AuctionInfo{
			RequestNumber: a.RequestNumber,
			Searcher:      a.Searcher,
			ItemName:      a.ItemName,
			MaxPrice:      a.MaxPrice,
			Offers:        len(a.Offers),
			Deadline:      a.Deadline,
		})
	}
	c.mtx.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].RequestNumber < out[j].RequestNumber })
	return out
}

// NumNegotiations returns the number of open negotiations.
func (c *Coordinator) NumNegotiations() int {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	return len(c.negotiations)
}
