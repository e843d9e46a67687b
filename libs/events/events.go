// Package events implements a synchronous listener-callback switch. The
// server fires every processed protocol event on it; observers such as the
// inspect websocket feed subscribe by event name.
package events

import (
	"sync"
)

// EventData is whatever value an event carries.
type EventData interface{}

// Fireable is the interface that wraps the FireEvent method.
//
// FireEvent fires an event with the given name and data.
type Fireable interface {
	FireEvent(eventValue string, data EventData)
}

// EventSwitch is the interface for synchronous pubsub, where listeners
// subscribe to certain events and, when an event is fired (see Fireable),
// notified via a callback function.
//
// Listeners are added by calling AddListenerForEvent function.
// They can be removed by calling RemoveListener (for all events).
type EventSwitch interface {
	Fireable
	AddListenerForEvent(listenerID, eventValue string, cb EventCallback) error
	RemoveListener(listenerID string)
	NumListeners(eventValue string) int
}

type EventCallback func(data EventData) error

type eventSwitch struct {
	mtx        sync.RWMutex
	eventCells map[string]*eventCell
	listeners  map[string][]string // listenerID -> event values
}

func NewEventSwitch() EventSwitch {
	return &eventSwitch{
		eventCells: make(map[string]*eventCell),
		listeners:  make(map[string][]string),
	}
}

func (evsw *eventSwitch) AddListenerForEvent(listenerID, eventValue string, cb EventCallback) error {
	// Get/Create eventCell and listener.
	evsw.mtx.Lock()
	eventCell := evsw.eventCells[eventValue]
	if eventCell == nil {
		eventCell = newEventCell()
		evsw.eventCells[eventValue] = eventCell
	}
	evsw.listeners[listenerID] = append(evsw.listeners[listenerID], eventValue)
	evsw.mtx.Unlock()

	eventCell.addListener(listenerID, cb)
	return nil
}

func (evsw *eventSwitch) RemoveListener(listenerID string) {
	evsw.mtx.Lock()
	defer evsw.mtx.Unlock()

	for _, eventValue := range evsw.listeners[listenerID] {
		cell := evsw.eventCells[eventValue]
		if cell == nil {
			continue
		}
		if cell.removeListener(listenerID) == 0 {
			delete(evsw.eventCells, eventValue)
		}
	}
	delete(evsw.listeners, listenerID)
}

func (evsw *eventSwitch) NumListeners(eventValue string) int {
	evsw.mtx.RLock()
	cell := evsw.eventCells[eventValue]
	evsw.mtx.RUnlock()

	if cell == nil {
		return 0
	}
	cell.mtx.RLock()
	defer cell.mtx.RUnlock()
	return len(cell.listeners)
}

func (evsw *eventSwitch) FireEvent(event string, data EventData) {
	// Get the eventCell
	evsw.mtx.RLock()
	eventCell := evsw.eventCells[event]
	evsw.mtx.RUnlock()

	if eventCell == nil {
		return
	}

	// Fire event for all listeners in eventCell
	eventCell.fireEvent(data)
}

//-----------------------------------------------------------------------------

// eventCell handles keeping track of listener callbacks for a given event.
type eventCell struct {
	mtx       sync.RWMutex
	listeners map[string]EventCallback
}

func newEventCell() *eventCell {
	return &eventCell{
		listeners: make(map[string]EventCallback),
	}
}

func (cell *eventCell) addListener(listenerID string, cb EventCallback) {
	cell.mtx.Lock()
	defer cell.mtx.Unlock()
	cell.listeners[listenerID] = cb
}

func (cell *eventCell) removeListener(listenerID string) int {
	cell.mtx.Lock()
	defer cell.mtx.Unlock()
	delete(cell.listeners, listenerID)
	return len(cell.listeners)
}

func (cell *eventCell) fireEvent(data EventData) {
	cell.mtx.RLock()
	eventCallbacks := make([]EventCallback, 0, len(cell.listeners))
	for _, cb := range cell.listeners {
		eventCallbacks = append(eventCallbacks, cb)
	}
	cell.mtx.RUnlock()

	for _, cb := range eventCallbacks {
		// a failing listener does not stop delivery to the others
		_ = cb(data)
	}
}
