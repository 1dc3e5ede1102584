// Package xpchandshake drives the CoreDeviceProxy/remote-service-discovery
// handshake: nine fixed HTTP/2 + XPC steps over a TLS-upgraded stream,
// followed by a per-(channel,id) dispatcher for whatever the device sends
// next — typically the RSD services dictionary XpcHandshake.WaitForServices
// decodes.
package xpchandshake

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/net/http2"

	"github.com/gomux/remotexpc/internal/http2frames"
	"github.com/gomux/remotexpc/internal/logger"
	"github.com/gomux/remotexpc/internal/metrics"
	"github.com/gomux/remotexpc/internal/telemetry"
	"github.com/gomux/remotexpc/internal/xpc"
)

// Channel identifies one of the two HTTP/2 streams the handshake uses.
type Channel uint32

const (
	ChannelRoot  Channel = 1
	ChannelReply Channel = 3
)

// RemoteService is one entry of the services dictionary the device sends
// once the handshake completes.
type RemoteService struct {
	Name string
	Port uint16
}

type dispatchKey struct {
	channel Channel
	id      uint64
}

// Handshake drives the nine-step sequence over conn and dispatches
// subsequent DATA frames by (channel, id).
type Handshake struct {
	conn   io.ReadWriteCloser
	writer *http2frames.Writer
	reader *http2.Framer

	mu      sync.Mutex
	nextID  map[Channel]uint64
	waiters map[dispatchKey]chan xpc.Message
	closed  bool

	settingsAcked chan struct{}
	servicesCh    chan servicesResult
	readErr       chan error

	metrics *metrics.Metrics
}

type servicesResult struct {
	services map[string]RemoteService
	err      error
}

// New wraps conn (a TLS-upgraded CoreDeviceProxy stream) as a Handshake.
func New(conn io.ReadWriteCloser) *Handshake {
	return &Handshake{
		conn:          conn,
		writer:        http2frames.New(conn),
		reader:        http2.NewFramer(io.Discard, conn),
		nextID:        map[Channel]uint64{ChannelRoot: 0, ChannelReply: 0},
		waiters:       make(map[dispatchKey]chan xpc.Message),
		settingsAcked: make(chan struct{}),
		servicesCh:    make(chan servicesResult, 1),
		readErr:       make(chan error, 1),
		metrics:       metrics.New(),
	}
}

// Perform drives steps 1-9: the client preface, the initial SETTINGS and
// WINDOW_UPDATE, the ROOT and REPLY stream openings, and the handshake's
// two bare XPC acknowledgement messages, then waits for the device's own
// SETTINGS frame to ack (step 9).
func (h *Handshake) Perform(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, "xpchandshake.perform")
	defer span.End()

	started := time.Now()
	defer func() { h.metrics.ObserveHandshakeDuration(time.Since(started).Seconds()) }()

	go h.readLoop()

	if err := h.writer.WritePreface(); err != nil {
		return fmt.Errorf("xpchandshake: write preface: %w", err)
	}
	if err := h.writer.WriteSettings(http2frames.DefaultClientSettings()...); err != nil {
		return fmt.Errorf("xpchandshake: write settings: %w", err)
	}
	if err := h.writer.WriteWindowUpdate(0, 983041); err != nil {
		return fmt.Errorf("xpchandshake: write window update: %w", err)
	}

	if err := h.writer.WriteHeaders(uint32(ChannelRoot), http2frames.EncodeEmptyHeaderBlock()); err != nil {
		return fmt.Errorf("xpchandshake: write ROOT headers: %w", err)
	}
	if err := h.sendRaw(ChannelRoot, xpc.Message{Flags: xpc.FlagAlwaysSet, ID: 0, Body: xpc.NewDict()}); err != nil {
		return fmt.Errorf("xpchandshake: write ROOT open message: %w", err)
	}
	if err := h.sendRaw(ChannelRoot, xpc.Message{Flags: xpc.FlagAlwaysSet | xpc.FlagDataFlag, ID: 0, Body: xpc.Null()}); err != nil {
		return fmt.Errorf("xpchandshake: write ROOT bare message: %w", err)
	}
	h.advance(ChannelRoot)

	if err := h.writer.WriteHeaders(uint32(ChannelReply), http2frames.EncodeEmptyHeaderBlock()); err != nil {
		return fmt.Errorf("xpchandshake: write REPLY headers: %w", err)
	}
	if err := h.sendRaw(ChannelReply, xpc.Message{Flags: xpc.FlagAlwaysSet | xpc.FlagInitHandshake, ID: 0, Body: xpc.Null()}); err != nil {
		return fmt.Errorf("xpchandshake: write REPLY init message: %w", err)
	}
	h.advance(ChannelReply)

	select {
	case <-h.settingsAcked:
		if err := h.writer.WriteSettingsAck(); err != nil {
			return fmt.Errorf("xpchandshake: write settings ack: %w", err)
		}
		logger.InfoCtx(ctx, "xpchandshake: complete")
		return nil
	case err := <-h.readErr:
		return fmt.Errorf("xpchandshake: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handshake) advance(ch Channel) {
	h.mu.Lock()
	h.nextID[ch]++
	h.mu.Unlock()
}

func (h *Handshake) sendRaw(ch Channel, msg xpc.Message) error {
	body, err := xpc.Encode(msg)
	if err != nil {
		return err
	}
	return h.writer.WriteData(uint32(ch), body)
}

// Send issues an operation-level request on ROOT with a fresh id and
// blocks for the matching REPLY response.
func (h *Handshake) Send(ctx context.Context, body xpc.Object) (xpc.Message, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return xpc.Message{}, wrapProtocol(ErrClosed, "send")
	}
	id := h.nextID[ChannelRoot]
	h.nextID[ChannelRoot]++
	waitCh := make(chan xpc.Message, 1)
	h.waiters[dispatchKey{channel: ChannelReply, id: id}] = waitCh
	h.mu.Unlock()

	if err := h.sendRaw(ChannelRoot, xpc.Message{Flags: xpc.FlagAlwaysSet, ID: id, Body: body}); err != nil {
		h.mu.Lock()
		delete(h.waiters, dispatchKey{channel: ChannelReply, id: id})
		h.mu.Unlock()
		return xpc.Message{}, err
	}

	select {
	case msg, ok := <-waitCh:
		if !ok {
			return xpc.Message{}, wrapProtocol(ErrClosed, "connection failed before the reply arrived")
		}
		return msg, nil
	case err := <-h.readErr:
		return xpc.Message{}, err
	case <-ctx.Done():
		h.mu.Lock()
		delete(h.waiters, dispatchKey{channel: ChannelReply, id: id})
		h.mu.Unlock()
		return xpc.Message{}, ctx.Err()
	}
}

// WaitForServices blocks for the device's RSD services dictionary, sent
// unsolicited on REPLY once the handshake completes.
func (h *Handshake) WaitForServices(ctx context.Context) (map[string]RemoteService, error) {
	select {
	case res := <-h.servicesCh:
		return res.services, res.err
	case err := <-h.readErr:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes the underlying connection.
func (h *Handshake) Close() error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	return h.conn.Close()
}

// readLoop owns all HTTP/2 frame reads: signalling Perform when the
// device's SETTINGS arrives (Perform then writes the step 9 ack),
// decoding DATA frames as XPC messages, and dispatching by (channel, id)
// — or, for the first unsolicited REPLY message, treating it as the RSD
// services dictionary.
func (h *Handshake) readLoop() {
	for {
		frame, err := h.reader.ReadFrame()
		if err != nil {
			h.failAll(err)
			return
		}

		switch f := frame.(type) {
		case *http2.SettingsFrame:
			if !f.IsAck() {
				closeOnce(h.settingsAcked)
			}

		case *http2.DataFrame:
			msg, decErr := xpc.Decode(f.Data())
			if decErr != nil {
				logger.Debug("xpchandshake: dropping undecodable DATA frame", logger.KeyErr, decErr.Error())
				continue
			}
			h.dispatch(Channel(f.StreamID), msg)

		default:
			// HEADERS, WINDOW_UPDATE, PING, and anything else carry no
			// handshake-relevant payload.
		}
	}
}

func (h *Handshake) dispatch(ch Channel, msg xpc.Message) {
	key := dispatchKey{channel: ch, id: msg.ID}

	h.mu.Lock()
	waiter, ok := h.waiters[key]
	if ok {
		delete(h.waiters, key)
	}
	h.mu.Unlock()

	if ok {
		waiter <- msg
		return
	}

	if ch == ChannelReply {
		if services, ok := decodeServices(msg.Body); ok {
			select {
			case h.servicesCh <- servicesResult{services: services}:
			default:
			}
			return
		}
	}

	logger.Debug("xpchandshake: unhandled message", logger.KeyChannelID, uint32(ch), logger.KeyMessageID, msg.ID)
}

func decodeServices(body xpc.Object) (map[string]RemoteService, bool) {
	d, ok := body.Dict()
	if !ok {
		return nil, false
	}
	servicesVal, ok := d.Get("services")
	if !ok {
		return nil, false
	}
	sd, ok := servicesVal.Dict()
	if !ok {
		return nil, false
	}

	out := make(map[string]RemoteService, sd.Len())
	for _, name := range sd.Keys() {
		entryVal, _ := sd.Get(name)
		entry, ok := entryVal.Dict()
		if !ok {
			continue
		}
		portVal, ok := entry.Get("port")
		if !ok {
			continue
		}
		var port uint16
		if i, ok := portVal.Int64(); ok {
			port = uint16(i)
		} else if u, ok := portVal.UInt64(); ok {
			port = uint16(u)
		}
		out[name] = RemoteService{Name: name, Port: port}
	}
	return out, true
}

func (h *Handshake) failAll(err error) {
	h.mu.Lock()
	h.closed = true
	waiters := h.waiters
	h.waiters = make(map[dispatchKey]chan xpc.Message)
	h.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}
	select {
	case h.readErr <- err:
	default:
	}
}

func closeOnce(ch chan struct{}) {
	select {
	case <-ch:
	default:
		close(ch)
	}
}
