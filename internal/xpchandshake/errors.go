package xpchandshake

import (
	"fmt"

	"github.com/gomux/remotexpc/internal/protoerr"
)

var (
	// ErrClosed: the handshake (or its underlying connection) was closed.
	ErrClosed = fmt.Errorf("xpchandshake: closed")
	// ErrNoServices: WaitForServices' channel produced no usable dictionary.
	ErrNoServices = fmt.Errorf("xpchandshake: no services dictionary received")
)

func wrapProtocol(sentinel error, detail string) error {
	return protoerr.New(protoerr.KindProtocol, sentinel, detail)
}
