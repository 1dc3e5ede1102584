// Package plistcodec composes internal/bplist and internal/xmlplist behind
// a dialect probe: check the bplist magic prefix and fall through to XML
// otherwise. Transport and muxer code that doesn't care which dialect a
// peer used calls this package instead of bplist directly.
package plistcodec

import (
	"fmt"

	"github.com/gomux/remotexpc/internal/bplist"
	"github.com/gomux/remotexpc/internal/xmlplist"
)

// Dialect identifies which wire format a message used.
type Dialect int

const (
	DialectBinary Dialect = iota
	DialectXML
)

// Decode probes buf for the bplist magic and dispatches to the matching
// decoder.
func Decode(buf []byte) (bplist.Value, Dialect, error) {
	if bplist.IsBplist(buf) {
		v, err := bplist.Decode(buf)
		return v, DialectBinary, err
	}
	v, err := xmlplist.Decode(buf)
	return v, DialectXML, err
}

// Encode renders v using the requested dialect.
func Encode(v bplist.Value, dialect Dialect) ([]byte, error) {
	switch dialect {
	case DialectBinary:
		return bplist.Encode(v)
	case DialectXML:
		return xmlplist.Encode(v)
	default:
		return nil, fmt.Errorf("plistcodec: unknown dialect %d", dialect)
	}
}
