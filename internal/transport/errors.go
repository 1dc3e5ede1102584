package transport

import (
	"fmt"

	"github.com/gomux/remotexpc/internal/protoerr"
)

var (
	// ErrClosed: the transport was closed and cannot be used further.
	ErrClosed = fmt.Errorf("transport: closed")
	// ErrPoisoned: a codec or framing error invalidated the inbound stream;
	// every waiter is failed and the transport is no longer usable.
	ErrPoisoned = fmt.Errorf("transport: poisoned by a prior decode failure")
	// ErrNonEmptyBufferAtUpgrade: upgrade_tls was called while the splitter
	// still held bytes past the last complete frame.
	ErrNonEmptyBufferAtUpgrade = fmt.Errorf("transport: non-empty buffer at TLS upgrade")
	// ErrTimeout: a Receive or SendAndReceive deadline elapsed.
	ErrTimeout = fmt.Errorf("transport: timeout")
)

func wrapTransport(sentinel error, detail string, cause error) error {
	return protoerr.Wrap(protoerr.KindTransport, sentinel, detail, cause)
}

func wrapFraming(sentinel error, detail string, cause error) error {
	return protoerr.Wrap(protoerr.KindFraming, sentinel, detail, cause)
}

func wrapCodec(sentinel error, detail string, cause error) error {
	return protoerr.Wrap(protoerr.KindCodec, sentinel, detail, cause)
}
