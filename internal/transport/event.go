package transport

import (
	"errors"
	"time"
)

// EventType classifies what the connection reports to its handler.
type EventType uint8

const (
	// EventOpen is emitted after each successful handshake.
	EventOpen EventType = iota + 1
	// EventClose is emitted when an established connection drops.
	EventClose
	// EventError reports a dial failure or other non-fatal transport error.
	EventError
	// EventMessage carries one inbound text or binary frame.
	EventMessage
)

func (t EventType) String() string {
	switch t {
	case EventOpen:
		return "open"
	case EventClose:
		return "close"
	case EventError:
		return "error"
	case EventMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Event is delivered sequentially from the connection goroutine.
type Event struct {
	Type     EventType
	Data     []byte
	Err      error
	Received time.Time
}

// Handler consumes connection events. It runs on the I/O goroutine.
type Handler func(Event)

var (
	// ErrNotConnected is returned by writes while no connection is established.
	ErrNotConnected = errors.New("transport: not connected")
	// ErrAlreadyOpen is returned by Open when the connection loop is running.
	ErrAlreadyOpen = errors.New("transport: already open")
)
