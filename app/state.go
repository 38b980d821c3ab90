package app

// State represents the current application state.
type State int

const (
	StateConnecting State = iota // Waiting for backend health check
	StateIdle                    // Connected, no search yet
	StateLoading                 // First chunk of a search in flight
	StateBrowsing                // Scrolling a result set
	StateError                   // First chunk failed; error panel shown
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateBrowsing:
		return "browsing"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}
