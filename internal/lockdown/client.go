package lockdown

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gomux/remotexpc/internal/bplist"
	"github.com/gomux/remotexpc/internal/framing"
	"github.com/gomux/remotexpc/internal/logger"
	"github.com/gomux/remotexpc/internal/metrics"
	"github.com/gomux/remotexpc/internal/muxclient"
	"github.com/gomux/remotexpc/internal/plistcodec"
	"github.com/gomux/remotexpc/internal/telemetry"
	"github.com/gomux/remotexpc/internal/transport"
)

func wireConfig() transport.Config {
	return transport.Config{
		Framing:     framing.Config{LengthWidth: 4, Endian: framing.BigEndian, Adjust: 0, MaxFrame: 1 << 20},
		SendDialect: plistcodec.DialectXML,
	}
}

// Client is a LockdownClient bound to one device stream.
type Client struct {
	mu    sync.Mutex
	state State

	t *transport.Transport

	sessionID        string
	enableSessionSSL bool

	metrics *metrics.Metrics
}

// New wraps conn (a stream MuxClient.Connect opened to port 62078) as a
// LockdownClient already in the PLAIN state.
func New(conn net.Conn) *Client {
	return &Client{
		state:   StatePlain,
		t:       transport.New(conn, wireConfig()),
		metrics: metrics.New(),
	}
}

// State reports the client's current position in the session state machine.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// StartSession negotiates a lockdown session for hostID/systemBUID. On
// success the client moves to TLS_PENDING if the device asked for session
// SSL, else it stays PLAIN.
func (c *Client) StartSession(ctx context.Context, hostID, systemBUID string, timeout time.Duration) (sessionID string, enableSessionSSL bool, err error) {
	ctx, span := telemetry.StartSpan(ctx, "lockdown.start_session")
	defer span.End()

	c.mu.Lock()
	if c.state != StatePlain {
		err := stateErrorf("start_session", c.state)
		c.mu.Unlock()
		return "", false, err
	}
	c.mu.Unlock()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req := bplist.NewDict()
	rd, _ := req.Dict()
	rd.Set("Request", bplist.String("StartSession"))
	rd.Set("HostID", bplist.String(hostID))
	rd.Set("SystemBUID", bplist.String(systemBUID))

	resp, err := c.t.SendAndReceive(ctx, req)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return "", false, err
	}

	d, ok := resp.Dict()
	if !ok {
		return "", false, wrapUnexpected("StartSession response is not a dict")
	}
	if errVal, ok := d.Get("Error"); ok {
		msg, _ := errVal.String()
		return "", false, fmt.Errorf("lockdown: StartSession: %s", msg)
	}

	sid, ok := d.Get("SessionID")
	if !ok {
		return "", false, wrapUnexpected("StartSession response missing SessionID")
	}
	sessionID, ok = sid.String()
	if !ok {
		return "", false, wrapUnexpected("SessionID is not a string")
	}

	enableSessionSSL = false
	if v, ok := d.Get("EnableSessionSSL"); ok {
		enableSessionSSL, _ = v.Bool()
	}

	c.mu.Lock()
	c.sessionID = sessionID
	c.enableSessionSSL = enableSessionSSL
	if enableSessionSSL {
		c.state = StateTLSPending
	}
	c.mu.Unlock()

	logger.InfoCtx(ctx, "lockdown: session started", logger.KeyState, c.State().String())
	return sessionID, enableSessionSSL, nil
}

// TryUpgradeTLS upgrades the underlying stream to TLS using pairRecord's
// host identity. If pairRecord is missing any required field, or the
// client isn't awaiting a TLS upgrade, the connection is left as-is (PLAIN)
// and no error is returned. A handshake failure moves the client to FAILED.
func (c *Client) TryUpgradeTLS(ctx context.Context, pairRecord *muxclient.PairRecord) error {
	ctx, span := telemetry.StartSpan(ctx, "lockdown.try_upgrade_tls")
	defer span.End()

	c.mu.Lock()
	if c.state != StateTLSPending {
		c.mu.Unlock()
		return nil
	}
	if !pairRecord.HasTLSIdentity() {
		c.state = StatePlain
		c.mu.Unlock()
		c.metrics.RecordTLSUpgrade("skipped")
		return nil
	}
	c.mu.Unlock()

	cert, err := tls.X509KeyPair(pairRecord.HostCertificate, pairRecord.HostPrivateKey)
	if err != nil {
		c.mu.Lock()
		c.state = StateFailed
		c.mu.Unlock()
		c.metrics.RecordTLSUpgrade("failed")
		return fmt.Errorf("%w: host certificate/key: %v", ErrTLSUpgradeFailed, err)
	}

	tlsConfig := &tls.Config{
		Certificates:       []tls.Certificate{cert},
		InsecureSkipVerify: true, // device certificate is validated via the pairing trust chain, not the system root store
	}

	if err := c.t.UpgradeTLS(ctx, tlsConfig); err != nil {
		c.mu.Lock()
		c.state = StateFailed
		c.mu.Unlock()
		telemetry.RecordError(ctx, err)
		c.metrics.RecordTLSUpgrade("failed")
		return fmt.Errorf("%w: %v", ErrTLSUpgradeFailed, err)
	}

	c.mu.Lock()
	c.state = StateSecure
	c.mu.Unlock()
	c.metrics.RecordTLSUpgrade("success")
	logger.InfoCtx(ctx, "lockdown: TLS upgrade complete")
	return nil
}

// StartService requests name be started, valid only after StartSession has
// succeeded and while SECURE (or still PLAIN for services that don't require
// pairing). It returns the port the caller should MuxClient.Connect to next.
func (c *Client) StartService(ctx context.Context, name string, escrowBag []byte) (port uint16, enableServiceSSL bool, err error) {
	ctx, span := telemetry.StartSpan(ctx, "lockdown.start_service")
	defer span.End()

	c.mu.Lock()
	state := c.state
	hasSession := c.sessionID != ""
	c.mu.Unlock()
	if state != StateSecure && state != StatePlain {
		return 0, false, stateErrorf("start_service", state)
	}
	if !hasSession {
		return 0, false, stateErrorf("start_service before start_session", state)
	}

	req := bplist.NewDict()
	rd, _ := req.Dict()
	rd.Set("Request", bplist.String("StartService"))
	rd.Set("Service", bplist.String(name))
	if len(escrowBag) > 0 {
		rd.Set("EscrowBag", bplist.Data(escrowBag))
	}

	resp, err := c.t.SendAndReceive(ctx, req)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return 0, false, err
	}

	d, ok := resp.Dict()
	if !ok {
		return 0, false, wrapUnexpected("StartService response is not a dict")
	}
	if errVal, ok := d.Get("Error"); ok {
		msg, _ := errVal.String()
		return 0, false, fmt.Errorf("lockdown: StartService %q: %s", name, msg)
	}

	portVal, ok := d.Get("Port")
	if !ok {
		return 0, false, wrapUnexpected("StartService response missing Port")
	}
	portNum, ok := portVal.Int64()
	if !ok {
		return 0, false, wrapUnexpected("Port is not an integer")
	}
	port = uint16(portNum)

	if v, ok := d.Get("EnableServiceSSL"); ok {
		enableServiceSSL, _ = v.Bool()
	}

	logger.InfoCtx(ctx, "lockdown: service started", "service", name, "port", port)
	return port, enableServiceSSL, nil
}

// SendAndReceive dispatches msg on whichever transport is currently active
// (the TLS transport once SECURE, the plain one otherwise); Transport
// itself swaps conn/splitter in place on TryUpgradeTLS, so this is simply
// a passthrough.
func (c *Client) SendAndReceive(ctx context.Context, msg bplist.Value, timeout time.Duration) (bplist.Value, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return c.t.SendAndReceive(ctx, msg)
}

// Close closes the underlying stream. The lockdown connection is typically
// closed once a service's port has been handed off to a fresh MuxClient
// stream.
func (c *Client) Close() error {
	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()
	return c.t.Close()
}

func wrapUnexpected(detail string) error {
	return fmt.Errorf("%w: %s", ErrUnexpectedPayload, detail)
}
