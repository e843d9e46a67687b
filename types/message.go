package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformed is returned for datagrams that are not a JSON object with
	// a command and an integer rq, or whose fields have the wrong type.
	ErrMalformed = errors.New("malformed message")

	// ErrMissingField is returned when a field required by the command is
	// absent.
	ErrMissingField = errors.New("missing required field")
)

// Wire field names.
const (
	FieldCommand     = "command"
	FieldRQ          = "rq"
	FieldName        = "name"
	FieldIP          = "ip"
	FieldUDPPort     = "udp_port"
	FieldTCPPort     = "tcp_port"
	FieldItemName    = "item_name"
	FieldDescription = "description"
	FieldPrice       = "price"
	FieldMaxPrice    = "max_price"
	FieldReason      = "reason"
)

var requiredFields = map[Command][]string{
	CommandRegister:       {FieldName, FieldIP, FieldUDPPort, FieldTCPPort},
	CommandRegistered:     nil,
	CommandRegisterDenied: nil,
	CommandDeregister:     {FieldName},
	CommandLookingFor:     {FieldName, FieldItemName, FieldDescription, FieldMaxPrice},
	CommandSearch:         {FieldItemName, FieldDescription},
	CommandOffer:          {FieldName, FieldItemName, FieldPrice},
	CommandNegotiate:      {FieldItemName},
	CommandAccept:         {FieldName, FieldItemName, FieldPrice},
	CommandRefuse:         {FieldName, FieldItemName, FieldPrice},
	CommandFound:          {FieldItemName},
	CommandNotFound:       {FieldItemName},
	CommandNotAvailable:   {FieldItemName},
	CommandBuy:            {FieldItemName},
	CommandReserve:        {FieldItemName},
	CommandCancel:         {FieldItemName},
}

// Message is the JSON object carried by one datagram.
type Message struct {
	Command       Command `json:"command"`
	RequestNumber int64   `json:"rq"`
	Name          string  `json:"name,omitempty"`
	IP            string  `json:"ip,omitempty"`
	UDPPort       int     `json:"udp_port,omitempty"`
	TCPPort       int     `json:"tcp_port,omitempty"`
	ItemName      string  `json:"item_name,omitempty"`
	Description   string  `json:"description,omitempty"`
	Price         *Price  `json:"price,omitempty"`
	MaxPrice      *Price  `json:"max_price,omitempty"`
	Reason        string  `json:"reason,omitempty"`
}

// Marshal encodes the message for a single datagram.
func (m *Message) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

func NewRegisteredMessage(rq int64) *Message {
	return &Message{Command: CommandRegistered, RequestNumber: rq}
}

func NewRegisterDeniedMessage(rq int64, reason string) *Message {
	return &Message{Command: CommandRegisterDenied, RequestNumber: rq, Reason: reason}
}

func NewSearchMessage(rq int64, item, description string) *Message {
	return &Message{
		Command:       CommandSearch,
		RequestNumber: rq,
		ItemName:      item,
		Description:   description,
	}
}

func NewNotAvailableMessage(rq int64, item string, maxPrice Price) *Message {
	return &Message{
		Command:       CommandNotAvailable,
		RequestNumber: rq,
		ItemName:      item,
		Price:         pricePtr(maxPrice),
	}
}

func NewFoundMessage(rq int64, item string, price Price) *Message {
	return &Message{
		Command:       CommandFound,
		RequestNumber: rq,
		ItemName:      item,
		Price:         pricePtr(price),
	}
}

func NewNotFoundMessage(rq int64, item string, price Price) *Message {
	return &Message{
		Command:       CommandNotFound,
		RequestNumber: rq,
		ItemName:      item,
		Price:         pricePtr(price),
	}
}

func NewNegotiateMessage(rq int64, item string, maxPrice Price) *Message {
	return &Message{
		Command:       CommandNegotiate,
		RequestNumber: rq,
		ItemName:      item,
		MaxPrice:      pricePtr(maxPrice),
	}
}

func pricePtr(p Price) *Price { return &p }

// ParseMessage decodes and validates one datagram. Unknown commands decode
// to an Event with CommandUnknown and no payload; callers must not dispatch
// those.
func ParseMessage(bz []byte) (*Event, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(bz, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	p := fieldParser{fields: fields}
	if !p.has(FieldCommand) || !p.has(FieldRQ) {
		return nil, fmt.Errorf("%w: command and rq are required", ErrMalformed)
	}

	var verb string
	p.decode(FieldCommand, &verb)

	ev := &Event{Command: ParseCommand(verb)}
	p.decode(FieldRQ, &ev.RequestNumber)
	if p.err != nil {
		return nil, p.err
	}
	if ev.Command == CommandUnknown {
		return ev, nil
	}

	for _, field := range requiredFields[ev.Command] {
		if !p.has(field) {
			return nil, fmt.Errorf("%w: %s requires %q", ErrMissingField, ev.Command, field)
		}
	}
	if ev.Command == CommandNegotiate && !p.has(FieldPrice) && !p.has(FieldMaxPrice) {
		return nil, fmt.Errorf("%w: %s requires %q or %q", ErrMissingField, ev.Command, FieldPrice, FieldMaxPrice)
	}

	p.decode(FieldName, &ev.SenderName)
	p.decode(FieldIP, &ev.IP)
	p.decode(FieldUDPPort, &ev.UDPPort)
	p.decode(FieldTCPPort, &ev.TCPPort)
	p.decode(FieldItemName, &ev.ItemName)
	p.decode(FieldDescription, &ev.Description)
	p.decode(FieldPrice, &ev.Price)
	p.decode(FieldMaxPrice, &ev.MaxPrice)
	p.decode(FieldReason, &ev.Reason)
	ev.HasPrice = p.has(FieldPrice)
	ev.HasMaxPrice = p.has(FieldMaxPrice)
	if p.err != nil {
		return nil, p.err
	}

	// NEGOTIATE from a seller may carry its counter under either key.
	if ev.Command == CommandNegotiate && !ev.HasPrice {
		ev.Price = ev.MaxPrice
		ev.HasPrice = true
	}

	return ev, nil
}

// fieldParser decodes optional fields, remembering the first type error.
type fieldParser struct {
	fields map[string]json.RawMessage
	err    error
}

func (p *fieldParser) has(name string) bool {
	raw, ok := p.fields[name]
	return ok && string(raw) != "null"
}

func (p *fieldParser) decode(name string, v interface{}) {
	if p.err != nil || !p.has(name) {
		return
	}
	if err := json.Unmarshal(p.fields[name], v); err != nil {
		p.err = fmt.Errorf("%w: field %q: %v", ErrMalformed, name, err)
	}
}
