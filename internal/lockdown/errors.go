package lockdown

import (
	"fmt"

	"github.com/gomux/remotexpc/internal/protoerr"
)

var (
	// ErrClosed: the client is no longer usable.
	ErrClosed = fmt.Errorf("lockdown: closed")
	// ErrUnexpectedPayload: a response's payload didn't carry the field an
	// operation required.
	ErrUnexpectedPayload = fmt.Errorf("lockdown: unexpected response payload")
	// ErrTLSUpgradeFailed: try_upgrade_tls's handshake failed; the client
	// moves to FAILED.
	ErrTLSUpgradeFailed = fmt.Errorf("lockdown: TLS upgrade failed")
	// ErrState is the sentinel errors.Is matches for any state-ordering
	// violation (start_service before start_session, and so on).
	ErrState = fmt.Errorf("lockdown: invalid state transition")
)

// stateErrorf reports an operation attempted from a state that forbids it.
func stateErrorf(op string, current State) error {
	return protoerr.New(protoerr.KindState, ErrState,
		fmt.Sprintf("%s: invalid in state %s", op, current))
}
