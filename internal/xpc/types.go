// Package xpc implements XpcCodec: Apple's wire-XPC object serialization,
// used as the DATA payload of every HTTP/2 frame CoreDeviceProxy and the
// remote service discovery protocol exchange. The header is a fixed
// 24 bytes; the body is a recursive tagged-object encoding.
package xpc

import "github.com/google/uuid"

// Kind discriminates the variant an Object holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt64
	KindUInt64
	KindDouble
	KindString
	KindData
	KindUUID
	KindArray
	KindDict
)

// Object is a recursive tagged sum mirroring the wire-XPC object model.
// The zero Object is Null.
type Object struct {
	kind Kind

	boolVal bool
	i64Val  int64
	u64Val  uint64
	f64Val  float64
	strVal  string
	data    []byte
	uuidVal uuid.UUID
	arrVal  []Object
	dictVal *Dict
}

func Null() Object                { return Object{kind: KindNull} }
func Bool(b bool) Object          { return Object{kind: KindBool, boolVal: b} }
func Int64(i int64) Object        { return Object{kind: KindInt64, i64Val: i} }
func UInt64(u uint64) Object      { return Object{kind: KindUInt64, u64Val: u} }
func Double(f float64) Object     { return Object{kind: KindDouble, f64Val: f} }
func String(s string) Object      { return Object{kind: KindString, strVal: s} }
func UUID(u uuid.UUID) Object     { return Object{kind: KindUUID, uuidVal: u} }

// Data returns an opaque byte-string Object. The slice is copied.
func Data(b []byte) Object {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Object{kind: KindData, data: cp}
}

// Array returns an array Object. The slice is copied.
func Array(vs []Object) Object {
	cp := make([]Object, len(vs))
	copy(cp, vs)
	return Object{kind: KindArray, arrVal: cp}
}

// NewDict returns an empty, ordered dictionary Object.
func NewDict() Object {
	return Object{kind: KindDict, dictVal: newDict()}
}

func (o Object) Kind() Kind   { return o.kind }
func (o Object) IsNull() bool { return o.kind == KindNull }

func (o Object) Bool() (b bool, ok bool) {
	if o.kind != KindBool {
		return false, false
	}
	return o.boolVal, true
}

func (o Object) Int64() (i int64, ok bool) {
	if o.kind != KindInt64 {
		return 0, false
	}
	return o.i64Val, true
}

func (o Object) UInt64() (u uint64, ok bool) {
	if o.kind != KindUInt64 {
		return 0, false
	}
	return o.u64Val, true
}

func (o Object) Double() (f float64, ok bool) {
	if o.kind != KindDouble {
		return 0, false
	}
	return o.f64Val, true
}

func (o Object) String() (s string, ok bool) {
	if o.kind != KindString {
		return "", false
	}
	return o.strVal, true
}

func (o Object) Data() (b []byte, ok bool) {
	if o.kind != KindData {
		return nil, false
	}
	cp := make([]byte, len(o.data))
	copy(cp, o.data)
	return cp, true
}

func (o Object) UUID() (u uuid.UUID, ok bool) {
	if o.kind != KindUUID {
		return uuid.UUID{}, false
	}
	return o.uuidVal, true
}

func (o Object) Array() (vs []Object, ok bool) {
	if o.kind != KindArray {
		return nil, false
	}
	cp := make([]Object, len(o.arrVal))
	copy(cp, o.arrVal)
	return cp, true
}

func (o Object) Dict() (d *Dict, ok bool) {
	if o.kind != KindDict {
		return nil, false
	}
	return o.dictVal, true
}

// Dict is an ordered string-keyed map, mirroring bplist.Dict: insertion
// order is preserved and observable on the wire.
type Dict struct {
	keys   []string
	values map[string]Object
}

func newDict() *Dict {
	return &Dict{values: make(map[string]Object)}
}

func (d *Dict) Set(key string, v Object) *Dict {
	if _, exists := d.values[key]; !exists {
		d.keys = append(d.keys, key)
	}
	d.values[key] = v
	return d
}

func (d *Dict) Get(key string) (Object, bool) {
	v, ok := d.values[key]
	return v, ok
}

func (d *Dict) Keys() []string { return d.keys }
func (d *Dict) Len() int       { return len(d.keys) }

// Message is one XPC message: a 24-byte header plus a recursive Object
// body. Flags carries the handshake's ALWAYS_SET/INIT_HANDSHAKE bits; Body
// is Null for the handshake's bare acknowledgement messages.
type Message struct {
	Flags uint32
	ID    uint64
	Body  Object
}

// Handshake flag bits named by XpcHandshake's step table. Step 6's
// flags=0x0201 is FlagAlwaysSet|FlagDataFlag.
const (
	FlagAlwaysSet     uint32 = 0x00000001
	FlagDataFlag      uint32 = 0x00000200
	FlagInitHandshake uint32 = 0x00400000
)
