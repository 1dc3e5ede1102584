package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomux/remotexpc/internal/bplist"
	"github.com/gomux/remotexpc/internal/framing"
	"github.com/gomux/remotexpc/internal/plistcodec"
)

func muxConfig() Config {
	return Config{
		Framing: framing.Config{LengthWidth: 4, Endian: framing.LittleEndian, Adjust: -4, MaxFrame: 1 << 20},
	}
}

func lockdownConfig() Config {
	return Config{
		Framing: framing.Config{LengthWidth: 4, Endian: framing.BigEndian, Adjust: 0, MaxFrame: 1 << 20},
	}
}

func TestTransport_SendThenReceive_RoundTrip(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	client := New(clientConn, muxConfig())
	server := New(serverConn, muxConfig())

	dict := bplist.NewDict()
	d, _ := dict.Dict()
	d.Set("MessageType", bplist.String("ReadBUID"))

	done := make(chan error, 1)
	go func() {
		done <- client.Send(context.Background(), dict)
	}()

	got, err := server.Receive(context.Background())
	require.NoError(t, err)
	require.NoError(t, <-done)

	gd, ok := got.Dict()
	require.True(t, ok)
	mt, _ := gd.Get("MessageType")
	s, _ := mt.String()
	assert.Equal(t, "ReadBUID", s)
}

func TestTransport_SendThenReceive_BigEndianFraming(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	client := New(clientConn, lockdownConfig())
	server := New(serverConn, lockdownConfig())

	msg := bplist.String("hello")
	go func() { _ = client.Send(context.Background(), msg) }()

	got, err := server.Receive(context.Background())
	require.NoError(t, err)
	s, _ := got.String()
	assert.Equal(t, "hello", s)
}

func TestTransport_ReceiveTimeout(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	server := New(serverConn, muxConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := server.Receive(ctx)
	assert.Error(t, err)
}

func TestTransport_PoisonsOnBadFrame(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	server := New(serverConn, lockdownConfig())

	go func() {
		buf := make([]byte, 4)
		buf[0], buf[1], buf[2], buf[3] = 0xFF, 0xFF, 0xFF, 0xFF
		_, _ = clientConn.Write(buf)
	}()

	_, err := server.Receive(context.Background())
	assert.Error(t, err)

	_, err = server.Receive(context.Background())
	assert.ErrorIs(t, err, ErrPoisoned)
}

func TestTransport_Detach_ReturnsLeftoverBytes(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	server := New(serverConn, muxConfig())

	frame, err := plistcodec.Encode(bplist.Int(1), plistcodec.DialectBinary)
	require.NoError(t, err)
	header := make([]byte, 4)
	raw := uint32(len(frame) + 4)
	header[0], header[1], header[2], header[3] = byte(raw), byte(raw>>8), byte(raw>>16), byte(raw>>24)
	extra := []byte{0x01, 0x02}

	go func() {
		_, _ = clientConn.Write(append(append(header, frame...), extra...))
	}()

	_, err = server.Receive(context.Background())
	require.NoError(t, err)

	conn, leftover := server.Detach()
	require.NotNil(t, conn)
	assert.Equal(t, extra, leftover)
}
