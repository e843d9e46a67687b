package auction

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/bazaarnet/bazaar/libs/log"
)

type timeoutKind uint8

const (
	timeoutAuctionClose timeoutKind = iota + 1
	timeoutNegotiationExpiry
)

func (k timeoutKind) String() string {
	switch k {
	case timeoutAuctionClose:
		return "auction_close"
	case timeoutNegotiationExpiry:
		return "negotiation_expiry"
	default:
		return "unknown"
	}
}

// timeoutInfo identifies what a deadline belongs to. Deadline doubles as a
// generation marker: a timeout only acts on an entry scheduled with the same
// deadline.
type timeoutInfo struct {
	RequestNumber int64
	Kind          timeoutKind
	Deadline      time.Time
}

type timeoutHeap []timeoutInfo

func (h timeoutHeap) Len() int            { return len(h) }
func (h timeoutHeap) Less(i, j int) bool  { return h[i].Deadline.Before(h[j].Deadline) }
func (h timeoutHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timeoutHeap) Push(x interface{}) { *h = append(*h, x.(timeoutInfo)) }
func (h *timeoutHeap) Pop() interface{} {
	old := *h
	n := len(old)
	ti := old[n-1]
	*h = old[:n-1]
	return ti
}

// timeoutTicker services every pending deadline from one goroutine and one
// time.Timer. Due timeouts are handed to the fire callback in deadline
// order.
type timeoutTicker struct {
	logger log.Logger

	mtx     sync.Mutex
	pending timeoutHeap

	// wake holds at most one pending reschedule request.
	wake chan struct{}
}

func newTimeoutTicker(logger log.Logger) *timeoutTicker {
	return &timeoutTicker{
		logger: logger,
		wake:   make(chan struct{}, 1),
	}
}

// ScheduleTimeout adds ti. It never blocks.
func (t *timeoutTicker) ScheduleTimeout(ti timeoutInfo) {
	t.mtx.Lock()
	heap.Push(&t.pending, ti)
	t.mtx.Unlock()

	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of scheduled timeouts.
func (t *timeoutTicker) Len() int {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	return t.pending.Len()
}

// run fires due timeouts until ctx is done. Timeouts still pending at that
// point are discarded.
func (t *timeoutTicker) run(ctx context.Context, fire func(timeoutInfo)) {
	timer := time.NewTimer(0)
	stopTimer(timer)
	defer timer.Stop()

	for {
		if next, ok := t.nextDeadline(); ok {
			stopTimer(timer)
			// NOTE time.Timer allows duration to be non-positive
			timer.Reset(time.Until(next))
		}

		select {
		case <-t.wake:
		case <-timer.C:
			for _, ti := range t.popDue(time.Now()) {
				t.logger.Debug("timed out", "rq", ti.RequestNumber, "kind", ti.Kind)
				fire(ti)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (t *timeoutTicker) nextDeadline() (time.Time, bool) {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	if len(t.pending) == 0 {
		return time.Time{}, false
	}
	return t.pending[0].Deadline, true
}

func (t *timeoutTicker) popDue(now time.Time) []timeoutInfo {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	var due []timeoutInfo
	for len(t.pending) > 0 && !t.pending[0].Deadline.After(now) {
		due = append(due, heap.Pop(&t.pending).(timeoutInfo))
	}
	return due
}

// stop the timer and drain if necessary
func stopTimer(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
}
