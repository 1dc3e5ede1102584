package plistcodec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gomux/remotexpc/internal/bplist"
)

func TestDecode_ProbesBinaryDialect(t *testing.T) {
	dict := bplist.NewDict()
	d, _ := dict.Dict()
	d.Set("MessageType", bplist.String("ReadBUID"))

	raw, err := bplist.Encode(dict)
	require.NoError(t, err)

	v, dialect, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, DialectBinary, dialect)

	got, ok := v.Dict()
	require.True(t, ok)
	mt, ok := got.Get("MessageType")
	require.True(t, ok)
	s, _ := mt.String()
	require.Equal(t, "ReadBUID", s)
}

func TestDecode_FallsThroughToXML(t *testing.T) {
	xml := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0"><string>hello</string></plist>`)

	v, dialect, err := Decode(xml)
	require.NoError(t, err)
	require.Equal(t, DialectXML, dialect)

	s, ok := v.String()
	require.True(t, ok)
	require.Equal(t, "hello", s)
}

func TestEncode_RoundTripsBothDialects(t *testing.T) {
	v := bplist.String("round-trip")

	bin, err := Encode(v, DialectBinary)
	require.NoError(t, err)
	require.True(t, bplist.IsBplist(bin))

	xml, err := Encode(v, DialectXML)
	require.NoError(t, err)
	require.False(t, bplist.IsBplist(xml))
}

func TestEncode_UnknownDialect(t *testing.T) {
	_, err := Encode(bplist.Null(), Dialect(99))
	require.Error(t, err)
}
