package buddy

import "fmt"

// State is the lifecycle position of the controller.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateActive
	StateClosing
	StateErrored
)

var stateNames = [...]string{
	StateIdle:       "idle",
	StateConnecting: "connecting",
	StateActive:     "active",
	StateClosing:    "closing",
	StateErrored:    "errored",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText encodes the state by name so snapshots read well as JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// User-facing status lines.
const (
	StatusReady         = "Ready to hang out?"
	StatusConnecting    = "Connecting to Buddy..."
	StatusListening     = "Buddy is listening!"
	StatusClosing       = "Saying bye to Buddy..."
	StatusRemoteClosed  = "Buddy had to go."
	StatusDisconnected  = "Oops, Buddy got disconnected."
	StatusCouldNotStart = "Could not start Buddy."
)
