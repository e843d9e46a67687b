package types

import (
	"fmt"
)

// Event is a decoded protocol message. It is built once by ParseMessage and
// shared by pointer between the command handlers, the event queue and both
// state machines; nothing modifies it afterwards.
type Event struct {
	Command       Command
	RequestNumber int64
	SenderName    string

	IP      string
	UDPPort int
	TCPPort int

	ItemName    string
	Description string
	Price       Price
	MaxPrice    Price
	Reason      string

	// HasPrice and HasMaxPrice record whether the datagram carried the
	// field, so a zero amount is not mistaken for an absent one.
	HasPrice    bool
	HasMaxPrice bool
}

// Name returns the event name used as the state machine transition key.
func (e *Event) Name() string { return string(e.Command) }

func (e *Event) String() string {
	return fmt.Sprintf("Event{%s rq=%d name=%q item=%q}", e.Command, e.RequestNumber, e.SenderName, e.ItemName)
}

// Message converts the event back to its wire form.
func (e *Event) Message() *Message {
	msg := &Message{
		Command:       e.Command,
		RequestNumber: e.RequestNumber,
		Name:          e.SenderName,
		IP:            e.IP,
		UDPPort:       e.UDPPort,
		TCPPort:       e.TCPPort,
		ItemName:      e.ItemName,
		Description:   e.Description,
		Reason:        e.Reason,
	}
	if e.HasPrice {
		msg.Price = pricePtr(e.Price)
	}
	if e.HasMaxPrice {
		msg.MaxPrice = pricePtr(e.MaxPrice)
	}
	return msg
}
