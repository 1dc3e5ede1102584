// Package xmlplist adapts howett.net/plist as the XML property list
// external collaborator: this module owns the binary codec
// (internal/bplist) and treats XML plist decoding as someone else's
// problem, delegated to the real ecosystem library rather than reimplemented.
package xmlplist

import (
	"bytes"
	"fmt"

	applist "howett.net/plist"

	"github.com/gomux/remotexpc/internal/bplist"
)

// Decode parses an XML (or, transparently, any howett.net/plist-supported)
// property list into this module's bplist.Value tree, so callers downstream
// of a dialect probe get one uniform value type regardless of which dialect
// the wire actually used.
func Decode(buf []byte) (bplist.Value, error) {
	var raw any
	if _, err := applist.Unmarshal(buf, &raw); err != nil {
		return bplist.Value{}, fmt.Errorf("xmlplist: decode: %w", err)
	}
	return fromNative(raw), nil
}

// Encode renders v as an XML property list.
func Encode(v bplist.Value) ([]byte, error) {
	native := toNative(v)
	var buf bytes.Buffer
	enc := applist.NewEncoder(&buf)
	enc.Indent("\t")
	if err := enc.Encode(native); err != nil {
		return nil, fmt.Errorf("xmlplist: encode: %w", err)
	}
	return buf.Bytes(), nil
}

func fromNative(v any) bplist.Value {
	switch t := v.(type) {
	case nil:
		return bplist.Null()
	case bool:
		return bplist.Bool(t)
	case string:
		return bplist.String(t)
	case []byte:
		return bplist.Data(t)
	case uint64:
		return bplist.Int(int64(t))
	case int64:
		return bplist.Int(t)
	case float64:
		return bplist.Real(t)
	case []any:
		elems := make([]bplist.Value, len(t))
		for i, e := range t {
			elems[i] = fromNative(e)
		}
		return bplist.Array(elems)
	case map[string]any:
		dict := bplist.NewDict()
		d, _ := dict.Dict()
		for k, e := range t {
			d.Set(k, fromNative(e))
		}
		return dict
	default:
		return bplist.String(fmt.Sprintf("%v", t))
	}
}

func toNative(v bplist.Value) any {
	switch v.Kind() {
	case bplist.KindNull:
		return nil
	case bplist.KindBool:
		b, _ := v.Bool()
		return b
	case bplist.KindInt:
		i, ok := v.Int64()
		if ok {
			return i
		}
		bi, _ := v.BigInt()
		return bi.String()
	case bplist.KindReal:
		f, _ := v.Real()
		return f
	case bplist.KindDate:
		t, _ := v.Date()
		return t
	case bplist.KindData:
		d, _ := v.Data()
		return d
	case bplist.KindString:
		s, _ := v.String()
		return s
	case bplist.KindArray:
		elems, _ := v.Array()
		out := make([]any, len(elems))
		for i, e := range elems {
			out[i] = toNative(e)
		}
		return out
	case bplist.KindDict:
		d, _ := v.Dict()
		out := make(map[string]any, d.Len())
		for _, k := range d.Keys() {
			ev, _ := d.Get(k)
			out[k] = toNative(ev)
		}
		return out
	default:
		return nil
	}
}
