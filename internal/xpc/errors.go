package xpc

import (
	"fmt"

	"github.com/gomux/remotexpc/internal/protoerr"
)

var (
	// ErrTruncated: buf ended before a header or object's declared length.
	ErrTruncated = fmt.Errorf("xpc: truncated message")
	// ErrBadMagic: the header's magic field didn't match xpcMagic.
	ErrBadMagic = fmt.Errorf("xpc: bad header magic")
	// ErrUnknownTag: an object's 4-byte type tag matched no known kind.
	ErrUnknownTag = fmt.Errorf("xpc: unknown object tag")
)

func wrapCodec(sentinel error, detail string) error {
	return protoerr.New(protoerr.KindCodec, sentinel, detail)
}
