package registry

import (
	"github.com/bazaarnet/bazaar/internal/fsm"
	"github.com/bazaarnet/bazaar/types"
)

// PeerMachine tracks the protocol state of one peer.
type PeerMachine = fsm.Machine[types.PeerState, *types.Event]

// NewPeerMachine returns a machine in UNREGISTERED with the peer protocol
// transition table installed.
func NewPeerMachine() *PeerMachine {
	m := fsm.New[types.PeerState, *types.Event](types.PeerUnregistered)
	m.AddTransition(types.PeerUnregistered, types.CommandRegister.String(),
		fsm.To[types.PeerState, *types.Event](types.PeerRegistering))
	return m
}
