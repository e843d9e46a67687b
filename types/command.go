package types

// Command is the protocol verb carried in the "command" field of every
// datagram.
type Command string

const (
	CommandRegister       Command = "REGISTER"
	CommandRegisterDenied Command = "REGISTER_DENIED"
	CommandRegistered     Command = "REGISTERED"
	CommandDeregister     Command = "DE_REGISTER"
	CommandLookingFor     Command = "LOOKING_FOR"
	CommandSearch         Command = "SEARCH"
	CommandOffer          Command = "OFFER"
	CommandNotAvailable   Command = "NOT_AVAILABLE"
	CommandNegotiate      Command = "NEGOTIATE"
	CommandAccept         Command = "ACCEPT"
	CommandFound          Command = "FOUND"
	CommandRefuse         Command = "REFUSE"
	CommandNotFound       Command = "NOT_FOUND"
	CommandReserve        Command = "RESERVE"
	CommandCancel         Command = "CANCEL"
	CommandBuy            Command = "BUY"
	CommandUnknown        Command = "UNKNOWN"
)

var commands = map[string]Command{
	string(CommandRegister):       CommandRegister,
	string(CommandRegisterDenied): CommandRegisterDenied,
	string(CommandRegistered):     CommandRegistered,
	string(CommandDeregister):     CommandDeregister,
	string(CommandLookingFor):     CommandLookingFor,
	string(CommandSearch):         CommandSearch,
	string(CommandOffer):          CommandOffer,
	string(CommandNotAvailable):   CommandNotAvailable,
	string(CommandNegotiate):      CommandNegotiate,
	string(CommandAccept):         CommandAccept,
	string(CommandFound):          CommandFound,
	string(CommandRefuse):         CommandRefuse,
	string(CommandNotFound):       CommandNotFound,
	string(CommandReserve):        CommandReserve,
	string(CommandCancel):         CommandCancel,
	string(CommandBuy):            CommandBuy,

	// spellings used by older peers
	"REGISTER-DENIED": CommandRegisterDenied,
	"DE-REGISTER":     CommandDeregister,
}

// ParseCommand maps a wire verb to a Command. Anything outside the
// vocabulary yields CommandUnknown.
func ParseCommand(s string) Command {
	if c, ok := commands[s]; ok {
		return c
	}
	return CommandUnknown
}

func (c Command) String() string { return string(c) }
