package auction

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/go-kit/kit/metrics"
	"github.com/stretchr/testify/require"

	"github.com/bazaarnet/bazaar/libs/log"
	"github.com/bazaarnet/bazaar/types"
)

type sentMessage struct {
	msg  *types.Message
	addr net.Addr
}

type recordingSender struct {
	ch chan sentMessage
}

func newRecordingSender() *recordingSender {
	return &recordingSender{ch: make(chan sentMessage, 1024)}
}

func (r *recordingSender) Send(msg *types.Message, addr net.Addr) error {
	r.ch <- sentMessage{msg: msg, addr: addr}
	return nil
}

func (r *recordingSender) next(t *testing.T, timeout time.Duration) sentMessage {
	t.Helper()
	select {
	case m := <-r.ch:
		return m
	case <-time.After(timeout):
		t.Fatal("timed out waiting for a reply")
		return sentMessage{}
	}
}

func (r *recordingSender) requireNone(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case m := <-r.ch:
		t.Fatalf("unexpected reply %s to %v", m.msg.Command, m.addr)
	case <-time.After(wait):
	}
}

func startCoordinator(t *testing.T, window time.Duration) (*Coordinator, *recordingSender) {
	t.Helper()

	sender := newRecordingSender()
	c := NewCoordinator(log.NewNopLogger(), sender, WithWindow(window))
	require.NoError(t, c.Start(context.Background()))
	return c, sender
}

func TestOpenRejectsDuplicateRequest(t *testing.T) {
	c := NewCoordinator(log.NewNopLogger(), newRecordingSender(), WithWindow(time.Hour))

	require.NoError(t, c.Open(lampRequest(1, "26")))
	require.ErrorIs(t, c.Open(lampRequest(1, "99")), ErrDuplicateRequest)
	require.NoError(t, c.Open(lampRequest(2, "26")))

	auctions := c.Auctions()
	require.Len(t, auctions, 2)
	require.EqualValues(t, 1, auctions[0].RequestNumber)
	require.True(t, auctions[0].MaxPrice.Equal(types.MustParsePrice("26")))
}

func TestAddOfferUnknownRequest(t *testing.T) {
	c := NewCoordinator(log.NewNopLogger(), newRecordingSender(), WithWindow(time.Hour))

	err := c.AddOffer(42, Offer{Seller: "A", Price: types.NewPrice(1), Addr: sellerA})
	require.ErrorIs(t, err, ErrUnknownRequest)
}

func TestFinalizeSendsSingleReply(t *testing.T) {
	sender := newRecordingSender()
	c := NewCoordinator(log.NewNopLogger(), sender, WithWindow(time.Hour))

	require.NoError(t, c.Open(lampRequest(1, "26")))
	for _, o := range threeOffers() {
		require.NoError(t, c.AddOffer(1, o))
	}
	require.Equal(t, 3, c.Auctions()[0].Offers)

	out, ok := c.Finalize(1)
	require.True(t, ok)
	require.Equal(t, OutcomeFound, out.Kind)

	m := sender.next(t, time.Second)
	require.Equal(t, types.CommandFound, m.msg.Command)
	require.Equal(t, searcherAddr, m.addr)

	// finalized auctions are discarded
	_, ok = c.Finalize(1)
	require.False(t, ok)
	require.ErrorIs(t, c.AddOffer(1, threeOffers()[0]), ErrUnknownRequest)
	require.Empty(t, c.Auctions())
	sender.requireNone(t, 20*time.Millisecond)
}

func TestNoOfferTimeoutSendsNotAvailable(t *testing.T) {
	defer leaktest.Check(t)()

	c, sender := startCoordinator(t, 50*time.Millisecond)
	defer c.Stop()
	require.NoError(t, c.Open(lampRequest(3, "26")))

	m := sender.next(t, 5*time.Second)
	require.Equal(t, types.CommandNotAvailable, m.msg.Command)
	require.EqualValues(t, 3, m.msg.RequestNumber)
	require.Equal(t, "lamp", m.msg.ItemName)
	require.True(t, m.msg.Price.Equal(types.MustParsePrice("26")))
	require.Equal(t, searcherAddr, m.addr)

	require.Empty(t, c.Auctions())
	sender.requireNone(t, 100*time.Millisecond)
}

func TestDeadlineSelectsLowestOffer(t *testing.T) {
	defer leaktest.Check(t)()

	c, sender := startCoordinator(t, 100*time.Millisecond)
	defer c.Stop()
	require.NoError(t, c.Open(lampRequest(1, "26")))
	for _, o := range threeOffers() {
		require.NoError(t, c.AddOffer(1, o))
	}

	m := sender.next(t, 5*time.Second)
	require.Equal(t, types.CommandFound, m.msg.Command)
	require.True(t, m.msg.Price.Equal(types.MustParsePrice("25")))
}

func TestDeadlinesFireIndependently(t *testing.T) {
	defer leaktest.Check(t)()

	c, sender := startCoordinator(t, 50*time.Millisecond)
	defer c.Stop()
	for rq := int64(1); rq <= 5; rq++ {
		require.NoError(t, c.Open(lampRequest(rq, "10")))
	}

	seen := make(map[int64]bool)
	for i := 0; i < 5; i++ {
		m := sender.next(t, 5*time.Second)
		require.Equal(t, types.CommandNotAvailable, m.msg.Command)
		require.False(t, seen[m.msg.RequestNumber], "duplicate reply for rq %d", m.msg.RequestNumber)
		seen[m.msg.RequestNumber] = true
	}
	sender.requireNone(t, 100*time.Millisecond)
}

// Every offer AddOffer accepted is ranked and exactly one reply is sent, no
// matter how offers and finalization interleave.
func TestFinalizeExactlyOnceUnderConcurrentOffers(t *testing.T) {
	for round := 0; round < 20; round++ {
		sender := newRecordingSender()
		c := NewCoordinator(log.NewNopLogger(), sender, WithWindow(time.Hour))
		require.NoError(t, c.Open(lampRequest(1, "0")))

		const sellers = 50
		var (
			wg       sync.WaitGroup
			mtx      sync.Mutex
			accepted []Offer
			wins     int
		)
		start := make(chan struct{})
		for i := 0; i < sellers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				o := Offer{
					Seller: fmt.Sprintf("seller-%d", i),
					Price:  types.NewPrice(float64(1000 - i)),
					Addr:   &net.UDPAddr{IP: net.IPv4(10, 1, 0, byte(i)), Port: 7000},
				}
				if err := c.AddOffer(1, o); err == nil {
					mtx.Lock()
					accepted = append(accepted, o)
					mtx.Unlock()
				}
			}(i)
		}
		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				if _, ok := c.Finalize(1); ok {
					mtx.Lock()
					wins++
					mtx.Unlock()
				}
			}()
		}
		close(start)
		wg.Wait()

		require.Equal(t, 1, wins)
		m := sender.next(t, time.Second)
		sender.requireNone(t, time.Millisecond)

		if len(accepted) == 0 {
			require.Equal(t, types.CommandNotAvailable, m.msg.Command)
			continue
		}

		want, _ := SelectBest(accepted)
		require.Equal(t, types.CommandNegotiate, m.msg.Command)
		require.Equal(t, want.Addr.String(), m.addr.String())
	}
}

func TestStaleTimeoutIsIgnored(t *testing.T) {
	sender := newRecordingSender()
	c := NewCoordinator(log.NewNopLogger(), sender, WithWindow(time.Hour))

	require.NoError(t, c.Open(lampRequest(1, "26")))
	stale := c.Auctions()[0].Deadline
	_, ok := c.Finalize(1)
	require.True(t, ok)
	sender.next(t, time.Second)

	// same request number reused after the first auction closed
	require.NoError(t, c.Open(lampRequest(1, "26")))
	c.handleTimeout(timeoutInfo{RequestNumber: 1, Kind: timeoutAuctionClose, Deadline: stale})
	require.Len(t, c.Auctions(), 1)

	// a timeout for an unknown request is a no-op
	c.handleTimeout(timeoutInfo{RequestNumber: 99, Kind: timeoutAuctionClose, Deadline: stale})
	c.handleTimeout(timeoutInfo{RequestNumber: 99, Kind: timeoutNegotiationExpiry, Deadline: stale})
	sender.requireNone(t, 20*time.Millisecond)
}

func TestStopAbandonsOpenAuctions(t *testing.T) {
	defer leaktest.Check(t)()

	sender := newRecordingSender()
	c := NewCoordinator(log.NewNopLogger(), sender, WithWindow(50*time.Millisecond))
	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Open(lampRequest(1, "26")))
	c.Stop()

	sender.requireNone(t, 150*time.Millisecond)
}

func negotiate(t *testing.T, c *Coordinator, sender *recordingSender) {
	t.Helper()

	require.NoError(t, c.Open(lampRequest(1, "20")))
	for _, o := range threeOffers() {
		require.NoError(t, c.AddOffer(1, o))
	}
	out, ok := c.Finalize(1)
	require.True(t, ok)
	require.Equal(t, OutcomeNegotiate, out.Kind)

	m := sender.next(t, time.Second)
	require.Equal(t, types.CommandNegotiate, m.msg.Command)
	require.Equal(t, sellerB, m.addr)
	require.Equal(t, 1, c.NumNegotiations())
}

func TestNegotiationAccepted(t *testing.T) {
	sender := newRecordingSender()
	c := NewCoordinator(log.NewNopLogger(), sender, WithWindow(time.Hour))
	negotiate(t, c, sender)

	_, err := c.Resolve(1, sellerA, true, types.NewPrice(20))
	require.ErrorIs(t, err, ErrNotNegotiationParty)

	out, err := c.Resolve(1, sellerB, true, types.NewPrice(20))
	require.NoError(t, err)
	require.Equal(t, OutcomeFound, out.Kind)

	m := sender.next(t, time.Second)
	require.Equal(t, types.CommandFound, m.msg.Command)
	require.Equal(t, searcherAddr, m.addr)
	require.True(t, m.msg.Price.Equal(types.NewPrice(20)))

	_, err = c.Resolve(1, sellerB, true, types.NewPrice(20))
	require.ErrorIs(t, err, ErrUnknownNegotiation)
	require.Zero(t, c.NumNegotiations())
}

func TestNegotiationRefusedOrOverLimit(t *testing.T) {
	testCases := []struct {
		name     string
		accepted bool
		price    string
	}{
		{"refused", false, "25"},
		{"accepted above limit", true, "22"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			sender := newRecordingSender()
			c := NewCoordinator(log.NewNopLogger(), sender, WithWindow(time.Hour))
			negotiate(t, c, sender)

			out, err := c.Resolve(1, sellerB, tc.accepted, types.MustParsePrice(tc.price))
			require.NoError(t, err)
			require.Equal(t, OutcomeNotFound, out.Kind)

			m := sender.next(t, time.Second)
			require.Equal(t, types.CommandNotFound, m.msg.Command)
			require.Equal(t, searcherAddr, m.addr)
			require.True(t, m.msg.Price.Equal(types.NewPrice(20)))
		})
	}
}

func TestNegotiationExpires(t *testing.T) {
	defer leaktest.Check(t)()

	c, sender := startCoordinator(t, 50*time.Millisecond)
	defer c.Stop()
	require.NoError(t, c.Open(lampRequest(1, "20")))
	require.NoError(t, c.AddOffer(1, threeOffers()[1]))

	m := sender.next(t, 5*time.Second)
	require.Equal(t, types.CommandNegotiate, m.msg.Command)

	m = sender.next(t, 5*time.Second)
	require.Equal(t, types.CommandNotFound, m.msg.Command)
	require.Equal(t, searcherAddr, m.addr)
	require.Zero(t, c.NumNegotiations())
}

func TestOpenRejectsRequestUnderNegotiation(t *testing.T) {
	sender := newRecordingSender()
	c := NewCoordinator(log.NewNopLogger(), sender, WithWindow(time.Hour))
	negotiate(t, c, sender)

	other := lampRequest(1, "40")
	other.Searcher = "other"
	other.SearcherAddr = &net.UDPAddr{IP: net.IPv4(10, 0, 0, 9), Port: 7000}
	require.ErrorIs(t, c.Open(other), ErrDuplicateRequest)
	require.Empty(t, c.Auctions())

	// the original negotiation still reaches its searcher
	out, err := c.Resolve(1, sellerB, true, types.NewPrice(20))
	require.NoError(t, err)
	require.Equal(t, OutcomeFound, out.Kind)
	m := sender.next(t, time.Second)
	require.Equal(t, types.CommandFound, m.msg.Command)
	require.Equal(t, searcherAddr, m.addr)

	// the request number is free again once the negotiation closes
	require.NoError(t, c.Open(other))
}

type recordingHistogram struct {
	mtx    sync.Mutex
	values []float64
}

func (h *recordingHistogram) With(labelValues ...string) metrics.Histogram { return h }

func (h *recordingHistogram) Observe(value float64) {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	h.values = append(h.values, value)
}

func TestWinningPriceOnlyForFound(t *testing.T) {
	testCases := []struct {
		name     string
		maxPrice string
		kind     OutcomeKind
		observed []float64
	}{
		{"found", "26", OutcomeFound, []float64{25}},
		{"negotiate", "20", OutcomeNegotiate, nil},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			hist := &recordingHistogram{}
			m := NopMetrics()
			m.WinningPrice = hist
			c := NewCoordinator(log.NewNopLogger(), newRecordingSender(), WithWindow(time.Hour), WithMetrics(m))

			require.NoError(t, c.Open(lampRequest(1, tc.maxPrice)))
			for _, o := range threeOffers() {
				require.NoError(t, c.AddOffer(1, o))
			}
			out, ok := c.Finalize(1)
			require.True(t, ok)
			require.Equal(t, tc.kind, out.Kind)
			require.Equal(t, tc.observed, hist.values)
		})
	}
}
