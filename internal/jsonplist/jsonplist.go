// Package jsonplist renders a bplist.Value tree as JSON, the third dialect
// plistutil dumps alongside the binary and XML property list forms.
package jsonplist

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/gomux/remotexpc/internal/bplist"
)

// Encode renders v as indented JSON. Data values are base64-encoded and
// Date values render as RFC 3339, matching encoding/json's time.Time
// handling; neither has a native JSON representation.
func Encode(v bplist.Value) ([]byte, error) {
	return json.MarshalIndent(toNative(v), "", "  ")
}

func toNative(v bplist.Value) any {
	switch v.Kind() {
	case bplist.KindNull:
		return nil
	case bplist.KindBool:
		b, _ := v.Bool()
		return b
	case bplist.KindInt:
		if i, ok := v.Int64(); ok {
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
		return base64.StdEncoding.EncodeToString(d)
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
		return fmt.Sprintf("<unknown kind %d>", v.Kind())
	}
}
