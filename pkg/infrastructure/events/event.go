package events

import (
	"time"
)

// Event is a fact recorded against a stream. Each production run owns one stream.
type Event interface {
	Type() string
	StreamID() string
	Data() interface{}
	Timestamp() time.Time
	Version() int
}

// Handler reacts to an appended event. It runs after the event is stored, so a
// failing handler never undoes the append.
type Handler func(Event) error

// EventStore is an append-only journal of per-run streams
type EventStore interface {
	AppendEvent(streamID string, event Event) error
	ReadEvents(streamID string, fromVersion int) ([]Event, error)
	ReadAllEvents(fromPosition int) ([]Event, error)
	Subscribe(handler Handler, eventTypes ...string) (unsubscribe func())
}

// Record is the stored form of an event. Version is its 1-based position in the
// stream; it is assigned by the store on append.
type Record struct {
	EventType string      `json:"type"`
	Stream    string      `json:"stream"`
	Payload   interface{} `json:"data"`
	At        time.Time   `json:"timestamp"`
	Seq       int         `json:"version"`
}

func (r Record) Type() string         { return r.EventType }
func (r Record) StreamID() string     { return r.Stream }
func (r Record) Data() interface{}    { return r.Payload }
func (r Record) Timestamp() time.Time { return r.At }
func (r Record) Version() int         { return r.Seq }

// NewEventAt creates an unversioned event stamped with the given time
func NewEventAt(eventType, streamID string, data interface{}, at time.Time) Event {
	return Record{
		EventType: eventType,
		Stream:    streamID,
		Payload:   data,
		At:        at,
	}
}
