// Package auction runs the time boxed reverse auction behind every
// LOOKING_FOR request. Sellers answer with OFFERs until the window closes;
// the auction is then finalized exactly once and the single terminal reply
// (NOT_AVAILABLE, FOUND or NEGOTIATE) is sent.
package auction

import (
	"net"
	"time"

	"github.com/bazaarnet/bazaar/types"
)

// Request is a searcher's LOOKING_FOR.
type Request struct {
	RequestNumber int64
	Searcher      string
	SearcherAddr  net.Addr
	ItemName      string
	Description   string
	MaxPrice      types.Price
}

// Offer is one seller's answer to a SEARCH.
type Offer struct {
	Seller     string
	Price      types.Price
	Addr       net.Addr
	ReceivedAt time.Time
}

// Auction collects offers for one request until it is finalized.
type Auction struct {
	Request
	CreatedAt time.Time
	Deadline  time.Time
	Offers    []Offer

	finalized bool
}

// Negotiation is opened when the best offer is above the searcher's limit
// and the seller has been asked to come down to it.
type Negotiation struct {
	RequestNumber int64
	Searcher      string
	SearcherAddr  net.Addr
	Seller        string
	SellerAddr    net.Addr
	ItemName      string
	MaxPrice      types.Price
	Deadline      time.Time
}

// OutcomeKind names the terminal reply of an auction.
type OutcomeKind string

const (
	OutcomeNotAvailable OutcomeKind = "NOT_AVAILABLE"
	OutcomeFound        OutcomeKind = "FOUND"
	OutcomeNegotiate    OutcomeKind = "NEGOTIATE"
	OutcomeNotFound     OutcomeKind = "NOT_FOUND"
)

// Outcome is the decision reached for a request and the reply that carries
// it.
type Outcome struct {
	Kind      OutcomeKind
	Best      *Offer
	Message   *types.Message
	Recipient net.Addr
}

// SelectBest returns the offer with the strictly lowest price. Ties go to
// the earliest offer in the slice.
func SelectBest(offers []Offer) (Offer, bool) {
	if len(offers) == 0 {
		return Offer{}, false
	}

	best := offers[0]
	for _, o := range offers[1:] {
		if o.Price.LessThan(best.Price) {
			best = o
		}
	}
	return best, true
}

// Decide computes the terminal reply for req given the offers collected
// for it.
func Decide(req Request, offers []Offer) Outcome {
	best, ok := SelectBest(offers)
	if !ok {
		return Outcome{
			Kind:      OutcomeNotAvailable,
			Message:   types.NewNotAvailableMessage(req.RequestNumber, req.ItemName, req.MaxPrice),
			Recipient: req.SearcherAddr,
		}
	}

	if best.Price.LessThanOrEqual(req.MaxPrice) {
		return Outcome{
			Kind:      OutcomeFound,
			Best:      &best,
			Message:   types.NewFoundMessage(req.RequestNumber, req.ItemName, best.Price),
			Recipient: req.SearcherAddr,
		}
	}

	return Outcome{
		Kind:      OutcomeNegotiate,
		Best:      &best,
		Message:   types.NewNegotiateMessage(req.RequestNumber, req.ItemName, req.MaxPrice),
		Recipient: best.Addr,
	}
}
