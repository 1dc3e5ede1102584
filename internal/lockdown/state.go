// Package lockdown implements LockdownClient: the session/service broker
// that runs over a device stream MuxClient.Connect opened to port 62078.
// Unlike the muxer, lockdown's wire format is big-endian, length-prefixed,
// and untagged, so it composes internal/transport.Transport directly
// instead of parsing its own envelope.
package lockdown

import "fmt"

// State is a position in LockdownClient's session state machine.
type State int

const (
	StateInit State = iota
	StatePlain
	StateTLSPending
	StateSecure
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StatePlain:
		return "PLAIN"
	case StateTLSPending:
		return "TLS_PENDING"
	case StateSecure:
		return "SECURE"
	case StateFailed:
		return "FAILED"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
