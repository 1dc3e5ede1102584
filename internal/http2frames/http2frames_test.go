package http2frames

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/http2"
)

func TestWriter_Preface(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)
	require.NoError(t, w.WritePreface())
	assert.Equal(t, ClientPreface, buf.String())
}

func TestWriter_SettingsFrame_RoundTrips(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)
	require.NoError(t, w.WriteSettings(DefaultClientSettings()...))

	reader := http2.NewFramer(io.Discard, bytes.NewReader(buf.Bytes()))
	frame, err := reader.ReadFrame()
	require.NoError(t, err)

	sf, ok := frame.(*http2.SettingsFrame)
	require.True(t, ok)
	maxStreams, ok := sf.Value(http2.SettingMaxConcurrentStreams)
	require.True(t, ok)
	assert.Equal(t, uint32(100), maxStreams)
	initWindow, ok := sf.Value(http2.SettingInitialWindowSize)
	require.True(t, ok)
	assert.Equal(t, uint32(1048576), initWindow)
}

func TestWriter_WindowUpdate_RoundTrips(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)
	require.NoError(t, w.WriteWindowUpdate(0, 983041))

	reader := http2.NewFramer(io.Discard, bytes.NewReader(buf.Bytes()))
	frame, err := reader.ReadFrame()
	require.NoError(t, err)

	wf, ok := frame.(*http2.WindowUpdateFrame)
	require.True(t, ok)
	assert.Equal(t, uint32(983041), wf.Increment)
}

func TestWriter_Headers_EmptyBlock_EndHeaders(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)
	require.NoError(t, w.WriteHeaders(1, EncodeEmptyHeaderBlock()))

	reader := http2.NewFramer(io.Discard, bytes.NewReader(buf.Bytes()))
	frame, err := reader.ReadFrame()
	require.NoError(t, err)

	hf, ok := frame.(*http2.HeadersFrame)
	require.True(t, ok)
	assert.True(t, hf.HeadersEnded())
	assert.Equal(t, uint32(1), hf.StreamID)
	assert.Empty(t, hf.HeaderBlockFragment())
}

func TestWriter_Data_StreamID(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)
	payload := []byte{0x01, 0x02, 0x03}
	require.NoError(t, w.WriteData(3, payload))

	reader := http2.NewFramer(io.Discard, bytes.NewReader(buf.Bytes()))
	frame, err := reader.ReadFrame()
	require.NoError(t, err)

	df, ok := frame.(*http2.DataFrame)
	require.True(t, ok)
	assert.Equal(t, uint32(3), df.StreamID)
	assert.Equal(t, payload, df.Data())
}

func TestWriter_SettingsAck(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)
	require.NoError(t, w.WriteSettingsAck())

	reader := http2.NewFramer(io.Discard, bytes.NewReader(buf.Bytes()))
	frame, err := reader.ReadFrame()
	require.NoError(t, err)

	sf, ok := frame.(*http2.SettingsFrame)
	require.True(t, ok)
	assert.True(t, sf.IsAck())
}
