// Package http2frames is a producer-only HTTP/2 frame writer, just enough
// of the wire format for the CoreDeviceProxy handshake: the client
// preface, SETTINGS, WINDOW_UPDATE, empty-header-block HEADERS, and DATA.
// It never parses inbound frames beyond what XpcHandshake needs to
// recognize a SETTINGS ACK.
package http2frames

import (
	"bytes"
	"io"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"
)

// ClientPreface is the raw byte sequence that must open an HTTP/2
// connection before any framed traffic.
const ClientPreface = http2.ClientPreface

// Writer wraps an io.Writer with an http2.Framer restricted to the frame
// types the handshake emits.
type Writer struct {
	raw    io.Writer
	framer *http2.Framer
}

// New wraps w. The framer's read side is never exercised; this stack only
// produces frames.
func New(w io.Writer) *Writer {
	return &Writer{raw: w, framer: http2.NewFramer(w, bytes.NewReader(nil))}
}

// WritePreface writes the HTTP/2 client connection preface.
func (w *Writer) WritePreface() error {
	_, err := io.WriteString(w.raw, ClientPreface)
	return err
}

// DefaultClientSettings is the SETTINGS payload the handshake's step 2
// sends: MAX_CONCURRENT_STREAMS=100, INITIAL_WINDOW_SIZE=1048576.
func DefaultClientSettings() []http2.Setting {
	return []http2.Setting{
		{ID: http2.SettingMaxConcurrentStreams, Val: 100},
		{ID: http2.SettingInitialWindowSize, Val: 1048576},
	}
}

// WriteSettings writes a SETTINGS frame carrying settings.
func (w *Writer) WriteSettings(settings ...http2.Setting) error {
	return w.framer.WriteSettings(settings...)
}

// WriteSettingsAck writes an empty-payload SETTINGS frame with the ACK
// flag set.
func (w *Writer) WriteSettingsAck() error {
	return w.framer.WriteSettingsAck()
}

// WriteWindowUpdate writes a WINDOW_UPDATE frame on streamID.
func (w *Writer) WriteWindowUpdate(streamID, increment uint32) error {
	return w.framer.WriteWindowUpdate(streamID, increment)
}

// EncodeEmptyHeaderBlock returns an HPACK-encoded header block with no
// fields, via hpack.Encoder so a future caller that needs to add a field
// only has to change this one call site.
func EncodeEmptyHeaderBlock() []byte {
	var buf bytes.Buffer
	_ = hpack.NewEncoder(&buf)
	return buf.Bytes()
}

// WriteHeaders writes a HEADERS frame on streamID with the END_HEADERS
// flag set and headerBlock as its (possibly empty) block fragment.
func (w *Writer) WriteHeaders(streamID uint32, headerBlock []byte) error {
	return w.framer.WriteHeaders(http2.HeadersFrameParam{
		StreamID:      streamID,
		BlockFragment: headerBlock,
		EndHeaders:    true,
	})
}

// WriteData writes a DATA frame on streamID. The handshake never sets
// END_STREAM.
func (w *Writer) WriteData(streamID uint32, data []byte) error {
	return w.framer.WriteData(streamID, false, data)
}
