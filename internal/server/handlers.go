package server

import (
	"errors"
	"net"

	"github.com/bazaarnet/bazaar/internal/auction"
	"github.com/bazaarnet/bazaar/internal/registry"
	"github.com/bazaarnet/bazaar/types"
)

// Reasons carried by REGISTER_DENIED.
const (
	ReasonAlreadyRegistered = "Peer already registered"
	ReasonServerFull        = "Server cannot handle more clients"
)

// handlerFunc performs the registry or auction mutation for one command and
// sends any immediate reply.
type handlerFunc func(ev *types.Event, from net.Addr)

func (s *Server) commandHandlers() map[types.Command]handlerFunc {
	return map[types.Command]handlerFunc{
		types.CommandRegister:   s.handleRegister,
		types.CommandDeregister: s.handleDeregister,
		types.CommandLookingFor: s.handleLookingFor,
		types.CommandOffer:      s.handleOffer,
		types.CommandAccept:     s.handleNegotiationReply,
		types.CommandRefuse:     s.handleNegotiationReply,
	}
}

func (s *Server) handleRegister(ev *types.Event, from net.Addr) {
	identity := registry.Identity(from)
	endpoint := registry.Endpoint{IP: ev.IP, UDPPort: ev.UDPPort, TCPPort: ev.TCPPort}

	info, err := s.registry.Register(identity, from, ev.SenderName, endpoint)
	switch {
	case errors.Is(err, registry.ErrDuplicatePeer):
		s.logger.Info("registration denied", "peer", identity, "name", ev.SenderName, "err", err)
		s.reply(types.NewRegisterDeniedMessage(ev.RequestNumber, ReasonAlreadyRegistered), from)
	case errors.Is(err, registry.ErrRegistryFull):
		s.logger.Info("registration denied", "peer", identity, "name", ev.SenderName, "err", err)
		s.reply(types.NewRegisterDeniedMessage(ev.RequestNumber, ReasonServerFull), from)
	case err != nil:
		s.logger.Error("registration failed", "peer", identity, "err", err)
	default:
		s.logger.Info("peer registered", "peer", identity, "name", ev.SenderName, "session", info.ID)
		s.reply(types.NewRegisteredMessage(ev.RequestNumber), from)
	}
}

// handleDeregister removes the sender's session. There is no reply.
func (s *Server) handleDeregister(ev *types.Event, from net.Addr) {
	identity := registry.Identity(from)
	if s.registry.Deregister(identity) {
		s.logger.Info("peer deregistered", "peer", identity, "name", ev.SenderName)
		return
	}
	s.logger.Debug("deregister from unknown peer", "peer", identity, "name", ev.SenderName)
}

// handleLookingFor opens an auction for the request and broadcasts SEARCH to
// every other registered peer. A request number that is already in use is
// answered at once with NOT_AVAILABLE.
func (s *Server) handleLookingFor(ev *types.Event, from net.Addr) {
	identity := registry.Identity(from)
	req := auction.Request{
		RequestNumber: ev.RequestNumber,
		Searcher:      ev.SenderName,
		SearcherAddr:  from,
		ItemName:      ev.ItemName,
		Description:   ev.Description,
		MaxPrice:      ev.MaxPrice,
	}
	if err := s.coordinator.Open(req); err != nil {
		s.logger.Info("rejecting search", "peer", identity, "rq", ev.RequestNumber, "err", err)
		if errors.Is(err, auction.ErrDuplicateRequest) {
			s.reply(types.NewNotAvailableMessage(ev.RequestNumber, ev.ItemName, ev.MaxPrice), from)
		}
		return
	}

	search := types.NewSearchMessage(ev.RequestNumber, ev.ItemName, ev.Description)
	peers := s.registry.Peers(identity)
	for _, peer := range peers {
		s.reply(search, peer.Addr)
	}
	s.logger.Info("search broadcast",
		"rq", ev.RequestNumber, "item", ev.ItemName, "max_price", ev.MaxPrice, "peers", len(peers))
}

// handleOffer adds the offer to the matching auction. Offers for unknown or
// closed auctions are stale and dropped.
func (s *Server) handleOffer(ev *types.Event, from net.Addr) {
	offer := auction.Offer{
		Seller: ev.SenderName,
		Price:  ev.Price,
		Addr:   from,
	}
	if err := s.coordinator.AddOffer(ev.RequestNumber, offer); err != nil {
		s.logger.Debug("dropping offer", "rq", ev.RequestNumber, "seller", ev.SenderName, "err", err)
		return
	}
	s.logger.Debug("offer received", "rq", ev.RequestNumber, "seller", ev.SenderName, "price", ev.Price)
}

// handleNegotiationReply closes a negotiation with the seller's ACCEPT or
// REFUSE.
func (s *Server) handleNegotiationReply(ev *types.Event, from net.Addr) {
	accepted := ev.Command == types.CommandAccept
	if _, err := s.coordinator.Resolve(ev.RequestNumber, from, accepted, ev.Price); err != nil {
		s.logger.Debug("ignoring negotiation reply",
			"command", ev.Command, "rq", ev.RequestNumber, "from", registry.Identity(from), "err", err)
	}
}
