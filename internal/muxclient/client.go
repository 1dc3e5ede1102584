// Package muxclient implements MuxClient: the usbmuxd-dialect client that
// enumerates devices, retrieves pair records, and opens streams to device
// ports. Unlike internal/transport's generic PlistTransport, the muxer
// wire format carries a {version, type, tag} envelope ahead of the plist
// body, so this package parses that envelope itself rather than composing
// transport.Transport.
package muxclient

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gomux/remotexpc/internal/bplist"
	"github.com/gomux/remotexpc/internal/bufpool"
	"github.com/gomux/remotexpc/internal/framing"
	"github.com/gomux/remotexpc/internal/logger"
	"github.com/gomux/remotexpc/internal/metrics"
	"github.com/gomux/remotexpc/internal/plistcodec"
	"github.com/gomux/remotexpc/internal/telemetry"
)

const (
	protocolVersion = 1
	typePlist       = 8
	envelopeSize    = 12 // version + type + tag, each u32le
	readChunkSize   = 32 << 10

	// pollInterval bounds how long the pump goroutine's Read call blocks
	// before it rechecks for a pending detach/Close request.
	pollInterval = 200 * time.Millisecond
)

func muxFramingConfig(maxFrame uint32) framing.Config {
	return framing.Config{LengthWidth: 4, Endian: framing.LittleEndian, Adjust: -4, MaxFrame: maxFrame}
}

type waiter struct {
	value bplist.Value
	err   error
	done  chan struct{}
}

// Client is a MuxClient connected to the host muxer socket.
type Client struct {
	conn     net.Conn
	splitter *framing.Splitter

	writeMu sync.Mutex

	mu      sync.Mutex
	waiters map[uint32]*waiter
	nextTag atomic.Uint32
	closed  bool
	poisonErr error

	stopCh     chan struct{}
	detachCh   chan detachResult
	pumpExited chan struct{}

	metrics *metrics.Metrics
}

type detachResult struct {
	conn     net.Conn
	leftover []byte
}

// Dial resolves the muxer socket (explicit address, then
// USBMUXD_SOCKET_ADDRESS, then the default Unix path, then the loopback
// fallback) and returns a connected Client.
func Dial(ctx context.Context, explicitAddr string, maxFrame uint32) (*Client, error) {
	conn, err := dialSocket(ctx, explicitAddr)
	if err != nil {
		return nil, err
	}
	return newClient(conn, maxFrame), nil
}

func newClient(conn net.Conn, maxFrame uint32) *Client {
	c := &Client{
		conn:       conn,
		splitter:   framing.New(muxFramingConfig(maxFrame)),
		waiters:    make(map[uint32]*waiter),
		stopCh:     make(chan struct{}),
		detachCh:   make(chan detachResult, 1),
		pumpExited: make(chan struct{}),
		metrics:    metrics.New(),
	}
	go c.pump()
	return c
}

// pump owns all reads off conn, splitting frames and dispatching decoded
// payloads by tag to their waiter.
func (c *Client) pump() {
	defer close(c.pumpExited)
	for {
		select {
		case <-c.stopCh:
			c.mu.Lock()
			leftover := c.splitter.Shutdown()
			c.mu.Unlock()
			c.detachCh <- detachResult{conn: c.conn, leftover: leftover}
			return
		default:
		}

		_ = c.conn.SetReadDeadline(time.Now().Add(pollInterval))
		buf := bufpool.Get(readChunkSize)
		n, err := c.conn.Read(buf)
		var frames [][]byte
		if n > 0 {
			var feedErr error
			frames, feedErr = c.splitter.Feed(buf[:n])
			if feedErr != nil {
				bufpool.Put(buf)
				c.failAll(wrapProtocol(ErrClosed, feedErr.Error()))
				return
			}
		}
		bufpool.Put(buf)

		for _, frame := range frames {
			c.dispatch(frame)
		}

		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			c.failAll(fmt.Errorf("muxclient: connection closed: %w", err))
			return
		}
	}
}

func (c *Client) dispatch(frame []byte) {
	if len(frame) < envelopeSize {
		c.failAll(wrapProtocol(ErrClosed, "envelope truncated"))
		return
	}
	tag := binary.LittleEndian.Uint32(frame[8:12])
	body := frame[envelopeSize:]

	v, _, err := plistcodec.Decode(body)

	c.mu.Lock()
	w, ok := c.waiters[tag]
	if ok {
		delete(c.waiters, tag)
	}
	c.mu.Unlock()

	if !ok {
		logger.Debug("muxclient: response for unknown tag dropped", logger.KeyTag, tag)
		return
	}
	w.value, w.err = v, err
	close(w.done)
}

func (c *Client) failAll(err error) {
	c.mu.Lock()
	c.closed = true
	c.poisonErr = err
	waiters := c.waiters
	c.waiters = make(map[uint32]*waiter)
	c.mu.Unlock()

	for _, w := range waiters {
		w.err = err
		close(w.done)
	}
}

// request sends payload with a fresh tag and blocks for its response or
// ctx's deadline, whichever comes first.
func (c *Client) request(ctx context.Context, payload bplist.Value) (bplist.Value, error) {
	tag := c.nextTag.Add(1)
	messageType := requestMessageType(payload)

	w := &waiter{done: make(chan struct{})}
	c.mu.Lock()
	if c.closed {
		err := c.poisonErr
		c.mu.Unlock()
		if err == nil {
			err = ErrClosed
		}
		return bplist.Value{}, err
	}
	c.waiters[tag] = w
	c.mu.Unlock()

	ctx, span := telemetry.StartSpan(ctx, "muxclient.request")
	defer span.End()

	c.metrics.MuxRequestStarted(messageType)
	started := time.Now()
	defer func() { c.metrics.MuxRequestFinished(messageType, time.Since(started).Seconds()) }()

	if err := c.send(tag, payload); err != nil {
		c.mu.Lock()
		delete(c.waiters, tag)
		c.mu.Unlock()
		telemetry.RecordError(ctx, err)
		return bplist.Value{}, err
	}

	select {
	case <-w.done:
		return w.value, w.err
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.waiters, tag)
		c.mu.Unlock()
		return bplist.Value{}, ErrTimeout
	}
}

// requestMessageType extracts the MessageType field every muxer request
// dict carries, for metrics labeling. Returns "unknown" if payload isn't
// shaped the way request() in operations.go builds it.
func requestMessageType(payload bplist.Value) string {
	d, ok := payload.Dict()
	if !ok {
		return "unknown"
	}
	v, ok := d.Get("MessageType")
	if !ok {
		return "unknown"
	}
	s, ok := v.String()
	if !ok {
		return "unknown"
	}
	return s
}

func (c *Client) send(tag uint32, payload bplist.Value) error {
	body, err := plistcodec.Encode(payload, plistcodec.DialectBinary)
	if err != nil {
		return fmt.Errorf("muxclient: encode request: %w", err)
	}

	frame := make([]byte, 4+envelopeSize+len(body))
	binary.LittleEndian.PutUint32(frame[0:4], uint32(len(frame)))
	binary.LittleEndian.PutUint32(frame[4:8], protocolVersion)
	binary.LittleEndian.PutUint32(frame[8:12], typePlist)
	binary.LittleEndian.PutUint32(frame[12:16], tag)
	copy(frame[16:], body)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.conn.Write(frame)
	return err
}

// Close stops the pump goroutine and closes the underlying socket.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.stopCh)
	<-c.pumpExited
	select {
	case <-c.detachCh:
	default:
	}
	return c.conn.Close()
}

// detach stops the pump goroutine and returns the raw connection plus any
// bytes already read past the last complete muxer frame, for handoff to a
// fresh protocol layer (LockdownClient) on the same stream. The Client is
// marked closed: later requests fail and Close leaves the connection open.
func (c *Client) detach() (net.Conn, []byte) {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	close(c.stopCh)
	<-c.pumpExited
	res := <-c.detachCh
	return res.conn, res.leftover
}
