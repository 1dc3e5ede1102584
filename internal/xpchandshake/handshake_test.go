package xpchandshake

import (
	"context"
	"net"
	"testing"
	"time"

	"golang.org/x/net/http2"

	"github.com/stretchr/testify/require"

	"github.com/gomux/remotexpc/internal/xpc"
)

// fakeDevice plays the device side of the handshake: it reads whatever the
// client writes and, once it has seen a client SETTINGS frame, sends back
// its own SETTINGS frame so the client's step 9 ack fires.
type fakeDevice struct {
	conn   net.Conn
	framer *http2.Framer
}

func newFakeDevice(conn net.Conn) *fakeDevice {
	return &fakeDevice{conn: conn, framer: http2.NewFramer(conn, conn)}
}

// serve drains the client preface, reads frames until it has seen the
// client's SETTINGS, then sends its own SETTINGS frame (prompting the client's ack) and, once that ack
// arrives, a services dictionary DATA frame on REPLY.
func (d *fakeDevice) serve(t *testing.T, errCh chan<- error) {
	t.Helper()
	preface := make([]byte, len(http2.ClientPreface))
	if _, err := ioReadFull(d.conn, preface); err != nil {
		errCh <- err
		return
	}

	sawClientSettings := false
	for !sawClientSettings {
		f, err := d.framer.ReadFrame()
		if err != nil {
			errCh <- err
			return
		}
		if sf, ok := f.(*http2.SettingsFrame); ok && !sf.IsAck() {
			sawClientSettings = true
		}
	}

	if err := d.framer.WriteSettings(); err != nil {
		errCh <- err
		return
	}

	for {
		f, err := d.framer.ReadFrame()
		if err != nil {
			errCh <- err
			return
		}
		if sf, ok := f.(*http2.SettingsFrame); ok && sf.IsAck() {
			break
		}
	}

	services := xpc.NewDict()
	sd, _ := services.Dict()
	inner := xpc.NewDict()
	innerDict, _ := inner.Dict()
	entry := xpc.NewDict()
	entryDict, _ := entry.Dict()
	entryDict.Set("port", xpc.Int64(58783))
	innerDict.Set("com.apple.test.service", entry)
	sd.Set("services", inner)

	body, err := xpc.Encode(xpc.Message{Flags: xpc.FlagAlwaysSet, ID: 0, Body: services})
	if err != nil {
		errCh <- err
		return
	}
	if err := d.framer.WriteData(uint32(ChannelReply), false, body); err != nil {
		errCh <- err
		return
	}
	errCh <- nil
}

func ioReadFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func TestHandshake_Perform_CompletesOnDeviceSettings(t *testing.T) {
	clientConn, deviceConn := net.Pipe()
	defer clientConn.Close()
	defer deviceConn.Close()

	device := newFakeDevice(deviceConn)
	errCh := make(chan error, 1)
	go device.serve(t, errCh)

	h := New(clientConn)
	defer h.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, h.Perform(ctx))
	require.NoError(t, <-errCh)
}

func TestHandshake_WaitForServices_DecodesDictionary(t *testing.T) {
	clientConn, deviceConn := net.Pipe()
	defer clientConn.Close()
	defer deviceConn.Close()

	device := newFakeDevice(deviceConn)
	errCh := make(chan error, 1)
	go device.serve(t, errCh)

	h := New(clientConn)
	defer h.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, h.Perform(ctx))
	require.NoError(t, <-errCh)

	services, err := h.WaitForServices(ctx)
	require.NoError(t, err)
	require.Contains(t, services, "com.apple.test.service")
	require.Equal(t, uint16(58783), services["com.apple.test.service"].Port)
}

func TestHandshake_Perform_TimesOutWithoutDeviceSettings(t *testing.T) {
	clientConn, deviceConn := net.Pipe()
	defer clientConn.Close()
	defer deviceConn.Close()

	// Drain the client's preface/settings/frames without ever responding,
	// so Perform's select falls through to ctx.Done().
	go func() {
		buf := make([]byte, 4096)
		for {
			if _, err := deviceConn.Read(buf); err != nil {
				return
			}
		}
	}()

	h := New(clientConn)
	defer h.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := h.Perform(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
