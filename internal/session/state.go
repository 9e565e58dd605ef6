package session

// State is the station state as driven by its events.
type State int

const (
	StateDisconnected State = iota
	StateOnline
	StateLocating
	StateTracking
	StateOffline
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateOnline:
		return "online"
	case StateLocating:
		return "locating"
	case StateTracking:
		return "tracking"
	case StateOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON status responses.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
