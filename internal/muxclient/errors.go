package muxclient

import (
	"fmt"

	"github.com/gomux/remotexpc/internal/protoerr"
)

var (
	// ErrSocketUnavailable: no usbmuxd socket or loopback fallback exists.
	ErrSocketUnavailable = fmt.Errorf("muxclient: no usbmuxd socket available")
	// ErrUnexpectedPayload: a response's payload didn't carry the field an
	// operation required.
	ErrUnexpectedPayload = fmt.Errorf("muxclient: unexpected response payload")
	// ErrConnectionRefused: Connect's Result.Number == 3.
	ErrConnectionRefused = fmt.Errorf("muxclient: connection refused")
	// ErrMuxer: Connect's Result.Number was a nonzero code other than 3.
	ErrMuxer = fmt.Errorf("muxclient: muxer error")
	// ErrTimeout: a request's deadline elapsed before a tagged response
	// arrived.
	ErrTimeout = fmt.Errorf("muxclient: request timeout")
	// ErrClosed: the client (or its transport) is no longer usable.
	ErrClosed = fmt.Errorf("muxclient: closed")
)

// MuxError reports a nonzero muxer result code that isn't ConnectionRefused.
type MuxError struct {
	Code int64
}

func (e *MuxError) Error() string {
	return fmt.Sprintf("muxclient: muxer returned error code %d", e.Code)
}

func (e *MuxError) Is(target error) bool { return target == ErrMuxer }

func wrapMuxer(sentinel error, detail string) error {
	return protoerr.New(protoerr.KindMuxer, sentinel, detail)
}

func wrapProtocol(sentinel error, detail string) error {
	return protoerr.New(protoerr.KindProtocol, sentinel, detail)
}
