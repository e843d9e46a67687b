package server

import (
	"github.com/bazaarnet/bazaar/internal/fsm"
	"github.com/bazaarnet/bazaar/types"
)

// ServerMachine tracks the global protocol state of the server.
type ServerMachine = fsm.Machine[types.ServerState, *types.Event]

// NewServerMachine returns a machine in LISTENING with the server protocol
// transition table installed.
func NewServerMachine() *ServerMachine {
	m := fsm.New[types.ServerState, *types.Event](types.ServerListening)
	m.AddTransition(types.ServerListening, types.CommandRegister.String(),
		fsm.To[types.ServerState, *types.Event](types.ServerProcessingRegistration))
	return m
}
