package lockdown

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomux/remotexpc/internal/bplist"
	"github.com/gomux/remotexpc/internal/muxclient"
	"github.com/gomux/remotexpc/internal/plistcodec"
)

// fakeLockdownd speaks the big-endian, untagged lockdown wire format: a
// single response body of length respond to one incoming request.
type fakeLockdownd struct {
	conn net.Conn
}

func (f *fakeLockdownd) serveOnce(t *testing.T, handle func(req bplist.Value) bplist.Value) {
	t.Helper()
	lenBuf := make([]byte, 4)
	_, err := io.ReadFull(f.conn, lenBuf)
	require.NoError(t, err)
	n := binary.BigEndian.Uint32(lenBuf)

	body := make([]byte, n)
	_, err = io.ReadFull(f.conn, body)
	require.NoError(t, err)

	req, _, err := plistcodec.Decode(body)
	require.NoError(t, err)

	resp := handle(req)
	respBody, err := plistcodec.Encode(resp, plistcodec.DialectXML)
	require.NoError(t, err)

	out := make([]byte, 4+len(respBody))
	binary.BigEndian.PutUint32(out[0:4], uint32(len(respBody)))
	copy(out[4:], respBody)
	_, err = f.conn.Write(out)
	require.NoError(t, err)
}

func newTestPair() (*Client, *fakeLockdownd) {
	clientConn, serverConn := net.Pipe()
	c := New(clientConn)
	return c, &fakeLockdownd{conn: serverConn}
}

func TestClient_StartSession_NoSSL(t *testing.T) {
	c, server := newTestPair()
	defer c.Close()

	go server.serveOnce(t, func(req bplist.Value) bplist.Value {
		d, _ := req.Dict()
		reqName, _ := d.Get("Request")
		s, _ := reqName.String()
		assert.Equal(t, "StartSession", s)

		resp := bplist.NewDict()
		rd, _ := resp.Dict()
		rd.Set("SessionID", bplist.String("session-1"))
		rd.Set("EnableSessionSSL", bplist.Bool(false))
		return resp
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	sessionID, enableSSL, err := c.StartSession(ctx, "host-1", "buid-1", 0)
	require.NoError(t, err)
	assert.Equal(t, "session-1", sessionID)
	assert.False(t, enableSSL)
	assert.Equal(t, StatePlain, c.State())
}

func TestClient_StartSession_SSL_MovesToTLSPending(t *testing.T) {
	c, server := newTestPair()
	defer c.Close()

	go server.serveOnce(t, func(req bplist.Value) bplist.Value {
		resp := bplist.NewDict()
		rd, _ := resp.Dict()
		rd.Set("SessionID", bplist.String("session-2"))
		rd.Set("EnableSessionSSL", bplist.Bool(true))
		return resp
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, enableSSL, err := c.StartSession(ctx, "host-1", "buid-1", 0)
	require.NoError(t, err)
	assert.True(t, enableSSL)
	assert.Equal(t, StateTLSPending, c.State())
}

func TestClient_TryUpgradeTLS_MissingIdentity_StaysPlain(t *testing.T) {
	c, server := newTestPair()
	defer c.Close()

	go server.serveOnce(t, func(req bplist.Value) bplist.Value {
		resp := bplist.NewDict()
		rd, _ := resp.Dict()
		rd.Set("SessionID", bplist.String("session-3"))
		rd.Set("EnableSessionSSL", bplist.Bool(true))
		return resp
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, _, err := c.StartSession(ctx, "host-1", "buid-1", 0)
	require.NoError(t, err)
	require.Equal(t, StateTLSPending, c.State())

	err = c.TryUpgradeTLS(ctx, &muxclient.PairRecord{})
	require.NoError(t, err)
	assert.Equal(t, StatePlain, c.State())
}

func TestClient_StartService_BeforeSession_ReturnsStateError(t *testing.T) {
	c, server := newTestPair()
	defer c.Close()
	_ = server

	c.mu.Lock()
	c.state = StateTLSPending
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, _, err := c.StartService(ctx, "com.apple.mobile.house_arrest", nil)
	assert.ErrorIs(t, err, ErrState)
}

func TestClient_StartService_Success(t *testing.T) {
	c, server := newTestPair()
	defer c.Close()

	go server.serveOnce(t, func(req bplist.Value) bplist.Value {
		d, _ := req.Dict()
		svc, _ := d.Get("Service")
		s, _ := svc.String()
		assert.Equal(t, "com.apple.mobile.house_arrest", s)

		resp := bplist.NewDict()
		rd, _ := resp.Dict()
		rd.Set("Port", bplist.Int(1234))
		rd.Set("EnableServiceSSL", bplist.Bool(true))
		return resp
	})

	c.mu.Lock()
	c.sessionID = "session-1"
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	port, enableSSL, err := c.StartService(ctx, "com.apple.mobile.house_arrest", nil)
	require.NoError(t, err)
	assert.Equal(t, uint16(1234), port)
	assert.True(t, enableSSL)
}
