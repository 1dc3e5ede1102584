// Package transport implements PlistTransport: a stream socket wrapped by
// a LengthSplitter and a plist codec, with strict send/receive sequencing
// and an in-place TLS upgrade.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gomux/remotexpc/internal/bplist"
	"github.com/gomux/remotexpc/internal/bufpool"
	"github.com/gomux/remotexpc/internal/framing"
	"github.com/gomux/remotexpc/internal/logger"
	"github.com/gomux/remotexpc/internal/plistcodec"
	"github.com/gomux/remotexpc/internal/telemetry"
)

const readChunkSize = 32 << 10

// Config parameterizes a Transport's framing and default send dialect.
type Config struct {
	// Framing describes the length-prefix dialect: little-endian,
	// header-inclusive length for the muxer; big-endian, payload-only
	// length for lockdown.
	Framing framing.Config

	// SendDialect is the plist dialect new outbound messages are encoded
	// with. Inbound messages are always dialect-probed regardless of this
	// setting.
	SendDialect plistcodec.Dialect
}

// Transport is a PlistTransport: send/receive/send_and_receive serialized
// behind a single mutex, with TLS upgrade support.
type Transport struct {
	cfg Config

	// seqMu serializes SendAndReceive and the individual Send/Receive
	// calls so bytes written to the peer mirror call order and no two
	// logical callers drive the same connection's request/response
	// machinery concurrently.
	seqMu sync.Mutex

	connMu   sync.RWMutex
	conn     net.Conn
	splitter *framing.Splitter
	pending  [][]byte

	poisoned bool
	closed   bool
}

// New wraps conn as a PlistTransport using cfg's framing dialect.
func New(conn net.Conn, cfg Config) *Transport {
	return &Transport{
		cfg:      cfg,
		conn:     conn,
		splitter: framing.New(cfg.Framing),
	}
}

// Send encodes v with the configured send dialect and writes one
// length-prefixed frame.
func (t *Transport) Send(ctx context.Context, v bplist.Value) error {
	t.seqMu.Lock()
	defer t.seqMu.Unlock()
	return t.sendLocked(ctx, v)
}

func (t *Transport) sendLocked(ctx context.Context, v bplist.Value) error {
	t.connMu.RLock()
	closed := t.closed
	conn := t.conn
	t.connMu.RUnlock()
	if closed {
		return ErrClosed
	}

	payload, err := plistcodec.Encode(v, t.cfg.SendDialect)
	if err != nil {
		return wrapCodec(ErrPoisoned, "encode outbound plist", err)
	}

	frame, err := t.buildFrame(payload)
	if err != nil {
		return wrapFraming(ErrPoisoned, "build outbound frame", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	logger.DebugCtx(ctx, "transport: send", logger.KeyFrameBytes, len(frame))
	_, err = conn.Write(frame)
	if err != nil {
		return wrapTransport(ErrClosed, "write frame", err)
	}
	return nil
}

// buildFrame writes the length-prefixed frame for payload, computing the
// wire length field from the same Endian/LengthWidth/Adjust the receive
// side splitter uses: raw = len(payload) - Adjust.
func (t *Transport) buildFrame(payload []byte) ([]byte, error) {
	cfg := t.cfg.Framing
	headerEnd := cfg.LengthOffset + cfg.LengthWidth
	raw := int64(len(payload)) - int64(cfg.Adjust)
	if raw < 0 {
		return nil, fmt.Errorf("transport: negative wire length")
	}

	frame := make([]byte, headerEnd+len(payload))
	writeLength(frame[cfg.LengthOffset:headerEnd], uint64(raw), cfg.Endian)
	copy(frame[headerEnd:], payload)
	return frame, nil
}

func writeLength(b []byte, v uint64, endian framing.Endian) {
	if endian == framing.BigEndian {
		for i := len(b) - 1; i >= 0; i-- {
			b[i] = byte(v)
			v >>= 8
		}
	} else {
		for i := 0; i < len(b); i++ {
			b[i] = byte(v)
			v >>= 8
		}
	}
}

// Receive awaits the next framed plist message, decoding it with whichever
// dialect its bytes actually use.
func (t *Transport) Receive(ctx context.Context) (bplist.Value, error) {
	t.seqMu.Lock()
	defer t.seqMu.Unlock()
	return t.receiveLocked(ctx)
}

func (t *Transport) receiveLocked(ctx context.Context) (bplist.Value, error) {
	t.connMu.Lock()
	if t.closed {
		t.connMu.Unlock()
		return bplist.Value{}, ErrClosed
	}
	if t.poisoned {
		t.connMu.Unlock()
		return bplist.Value{}, ErrPoisoned
	}
	t.connMu.Unlock()

	for {
		t.connMu.Lock()
		if len(t.pending) > 0 {
			frame := t.pending[0]
			t.pending = t.pending[1:]
			t.connMu.Unlock()

			v, dialect, err := plistcodec.Decode(frame)
			if err != nil {
				t.poison()
				return bplist.Value{}, wrapCodec(ErrPoisoned, "decode inbound plist", err)
			}
			logger.DebugCtx(ctx, "transport: receive", logger.KeyDialect, dialect, logger.KeyFrameBytes, len(frame))
			return v, nil
		}
		conn := t.conn
		splitter := t.splitter
		t.connMu.Unlock()

		if deadline, ok := ctx.Deadline(); ok {
			_ = conn.SetReadDeadline(deadline)
		}

		buf := bufpool.Get(readChunkSize)
		n, err := conn.Read(buf)
		if n > 0 {
			frames, feedErr := splitter.Feed(buf[:n])
			bufpool.Put(buf)
			if feedErr != nil {
				t.poison()
				return bplist.Value{}, wrapFraming(ErrPoisoned, "split inbound stream", feedErr)
			}
			t.connMu.Lock()
			t.pending = append(t.pending, frames...)
			t.connMu.Unlock()
		} else {
			bufpool.Put(buf)
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return bplist.Value{}, ErrTimeout
			}
			t.poison()
			return bplist.Value{}, wrapTransport(ErrClosed, "read frame", err)
		}
	}
}

// SendAndReceive performs a strict request/response exchange: the whole
// sequence is serialized so no other caller's Send/Receive interleaves.
func (t *Transport) SendAndReceive(ctx context.Context, v bplist.Value) (bplist.Value, error) {
	ctx, span := telemetry.StartSpan(ctx, "transport.send_and_receive")
	defer span.End()

	t.seqMu.Lock()
	defer t.seqMu.Unlock()

	if err := t.sendLocked(ctx, v); err != nil {
		telemetry.RecordError(ctx, err)
		return bplist.Value{}, err
	}
	resp, err := t.receiveLocked(ctx)
	if err != nil {
		telemetry.RecordError(ctx, err)
	}
	return resp, err
}

func (t *Transport) poison() {
	t.connMu.Lock()
	t.poisoned = true
	t.connMu.Unlock()
}

// UpgradeTLS pauses I/O, verifies no bytes are buffered past the last
// complete frame, and wraps the underlying socket in a TLS client using
// tlsConfig. A fresh splitter backs the secure stream; SendDialect is kept.
func (t *Transport) UpgradeTLS(ctx context.Context, tlsConfig *tls.Config) error {
	t.seqMu.Lock()
	defer t.seqMu.Unlock()

	t.connMu.Lock()
	leftover := t.splitter.Shutdown()
	conn := t.conn
	t.connMu.Unlock()

	if len(leftover) > 0 {
		return wrapTransport(ErrNonEmptyBufferAtUpgrade, fmt.Sprintf("%d bytes buffered", len(leftover)), nil)
	}

	tlsConn := tls.Client(conn, tlsConfig)
	if deadline, ok := ctx.Deadline(); ok {
		_ = tlsConn.SetDeadline(deadline)
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return wrapTransport(ErrClosed, "tls handshake", err)
	}
	_ = tlsConn.SetDeadline(time.Time{})

	t.connMu.Lock()
	t.conn = tlsConn
	t.splitter = framing.New(t.cfg.Framing)
	t.pending = nil
	t.connMu.Unlock()

	logger.InfoCtx(ctx, "transport: TLS upgrade complete")
	return nil
}

// Detach shuts down the splitter and returns the raw connection plus any
// bytes already read past the last complete frame, handing ownership of
// the stream to the caller. The transport itself becomes unusable.
func (t *Transport) Detach() (net.Conn, []byte) {
	t.seqMu.Lock()
	defer t.seqMu.Unlock()

	t.connMu.Lock()
	defer t.connMu.Unlock()

	leftover := t.splitter.Shutdown()
	t.closed = true
	return t.conn, leftover
}

// Close closes the underlying connection and marks the transport unusable.
func (t *Transport) Close() error {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}
