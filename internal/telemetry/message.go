// Package telemetry is the boundary between station feeds and the tracking
// session. It parses station frames into validated Messages and provides the
// feed sources (WebSocket, serial mount controller, synthetic). Sources only
// ever deliver Messages on a channel; they never touch a trail.
package telemetry

import (
	"errors"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrUnknownFrame is returned for frames that are not a recognised
	// position or event.
	ErrUnknownFrame = errors.New("unknown station frame")
	// ErrNonFinite is returned for positions with NaN or infinite components.
	ErrNonFinite = errors.New("non-finite coordinate")
	// ErrMalformed is returned for frames that are not valid JSON.
	ErrMalformed = errors.New("malformed station frame")
)

// Kind discriminates Message.
type Kind int

const (
	KindPosition Kind = iota + 1
	KindEvent
)

func (k Kind) String() string {
	switch k {
	case KindPosition:
		return "position"
	case KindEvent:
		return "event"
	default:
		return "unknown"
	}
}

// Event is a station status event.
type Event string

const (
	EventOnline        Event = "online"
	EventOffline       Event = "offline"
	EventLocateStart   Event = "locate_start"
	EventLocateStop    Event = "locate_stop"
	EventTrackingStart Event = "tracking_start"
	EventTrackingStop  Event = "tracking_stop"

	// EventDisconnected is synthesised by a source when its transport drops.
	// Stations never send it.
	EventDisconnected Event = "disconnected"
)

var stationEvents = map[Event]bool{
	EventOnline:        true,
	EventOffline:       true,
	EventLocateStart:   true,
	EventLocateStop:    true,
	EventTrackingStart: true,
	EventTrackingStop:  true,
}

// IsStationEvent reports whether e is an event a station may send.
func IsStationEvent(e Event) bool { return stationEvents[e] }

// Message is one validated frame from a station feed.
type Message struct {
	Kind      Kind
	StationID string
	// ObjectID is set for positions and for tracking_start; other events
	// may carry it too.
	ObjectID string
	Event    Event
	Position r3.Vec
	Received time.Time
}

// PositionMessage builds a position Message.
func PositionMessage(station, object string, p r3.Vec, at time.Time) Message {
	return Message{Kind: KindPosition, StationID: station, ObjectID: object, Position: p, Received: at}
}

// EventMessage builds an event Message.
func EventMessage(station string, e Event, object string, at time.Time) Message {
	return Message{Kind: KindEvent, StationID: station, ObjectID: object, Event: e, Received: at}
}
