// Package bplist implements Apple's binary property list (bplist v0) codec:
// a self-describing, offset-indexed binary serialization used throughout the
// lockdown and usbmuxd wire dialogs.
package bplist

import (
	"math"
	"math/big"
	"time"
)

// secondsToDuration converts a fractional seconds count to a time.Duration,
// saturating instead of overflowing for values far outside any realistic
// date (guards decodeAt's date path against ErrDateOutOfRange candidates
// that are merely large, not NaN/Inf).
func secondsToDuration(seconds float64) time.Duration {
	const maxSeconds = float64(math.MaxInt64) / float64(time.Second)
	if seconds > maxSeconds {
		return time.Duration(math.MaxInt64)
	}
	if seconds < -maxSeconds {
		return time.Duration(math.MinInt64)
	}
	return time.Duration(seconds * float64(time.Second))
}

// Kind discriminates the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindReal
	KindDate
	KindData
	KindString
	KindArray
	KindDict
)

// referenceEpoch is the bplist/CoreFoundation reference date,
// 2001-01-01T00:00:00Z, from which Date values count elapsed seconds.
var referenceEpoch = time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)

// Value is a recursive tagged sum mirroring a binary property list's data model:
// Null, Bool, Int (i64 or big-int), Real, Date, Data, String (ASCII or
// UTF-16), Array, and Dict. The zero Value is Null.
type Value struct {
	kind Kind

	boolVal bool
	intVal  *big.Int
	realVal float64
	dateVal time.Time
	data    []byte
	strVal  string
	arrVal  []Value
	dictVal *Dict
}

// Null returns the canonical null Value.
func Null() Value { return Value{kind: KindNull} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, boolVal: b} }

// Int returns an integer Value from a platform int64.
func Int(i int64) Value { return Value{kind: KindInt, intVal: big.NewInt(i)} }

// BigInt returns an integer Value from an arbitrary-precision integer.
// The encoder writes at most the 8-byte wire form, so values outside the
// int64 range are truncated to their low 64 bits and do not round-trip.
func BigInt(i *big.Int) Value { return Value{kind: KindInt, intVal: new(big.Int).Set(i)} }

// Real returns a floating point Value.
func Real(f float64) Value { return Value{kind: KindReal, realVal: f} }

// Date returns a Value holding seconds since the reference epoch.
func Date(t time.Time) Value { return Value{kind: KindDate, dateVal: t.UTC()} }

// Data returns an opaque byte-string Value. The slice is copied.
func Data(b []byte) Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{kind: KindData, data: cp}
}

// String returns a string Value. The encoder chooses the ASCII or UTF-16BE
// wire form automatically based on content.
func String(s string) Value { return Value{kind: KindString, strVal: s} }

// Array returns an array Value. The slice is copied.
func Array(vs []Value) Value {
	cp := make([]Value, len(vs))
	copy(cp, vs)
	return Value{kind: KindArray, arrVal: cp}
}

// NewDict returns an empty, ordered dictionary Value.
func NewDict() Value {
	return Value{kind: KindDict, dictVal: newDict()}
}

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the Null variant.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Bool returns the boolean payload; ok is false if v is not KindBool.
func (v Value) Bool() (b bool, ok bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.boolVal, true
}

// Int64 returns the integer payload narrowed to int64; ok is false if v is
// not KindInt or the value overflows int64.
func (v Value) Int64() (i int64, ok bool) {
	if v.kind != KindInt || v.intVal == nil {
		return 0, false
	}
	if !v.intVal.IsInt64() {
		return 0, false
	}
	return v.intVal.Int64(), true
}

// BigInt returns the integer payload at full precision; ok is false if v is
// not KindInt.
func (v Value) BigInt() (i *big.Int, ok bool) {
	if v.kind != KindInt || v.intVal == nil {
		return nil, false
	}
	return new(big.Int).Set(v.intVal), true
}

// Real returns the floating point payload; ok is false if v is not KindReal.
func (v Value) Real() (f float64, ok bool) {
	if v.kind != KindReal {
		return 0, false
	}
	return v.realVal, true
}

// Date returns the date payload; ok is false if v is not KindDate.
func (v Value) Date() (t time.Time, ok bool) {
	if v.kind != KindDate {
		return time.Time{}, false
	}
	return v.dateVal, true
}

// Data returns the opaque byte payload; ok is false if v is not KindData.
func (v Value) Data() (b []byte, ok bool) {
	if v.kind != KindData {
		return nil, false
	}
	cp := make([]byte, len(v.data))
	copy(cp, v.data)
	return cp, true
}

// String returns the string payload; ok is false if v is not KindString.
func (v Value) String() (s string, ok bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.strVal, true
}

// Array returns the element slice; ok is false if v is not KindArray.
func (v Value) Array() (vs []Value, ok bool) {
	if v.kind != KindArray {
		return nil, false
	}
	cp := make([]Value, len(v.arrVal))
	copy(cp, v.arrVal)
	return cp, true
}

// Dict returns the dictionary payload; ok is false if v is not KindDict.
func (v Value) Dict() (d *Dict, ok bool) {
	if v.kind != KindDict {
		return nil, false
	}
	return v.dictVal, true
}

// isASCII reports whether every code point in s is representable in 7 bits,
// the condition under which the encoder emits the ASCII string tag (0x5L)
// instead of the UTF-16BE tag (0x6L).
func isASCII(s string) bool {
	for _, r := range s {
		if r > 0x7F {
			return false
		}
	}
	return true
}

// Equal reports structural equality, the round-trip law this codec upholds:
// decode(encode(v)) == v structurally, with integers compared at full
// precision regardless of the narrowest wire width chosen by the encoder.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.boolVal == other.boolVal
	case KindInt:
		if v.intVal == nil || other.intVal == nil {
			return v.intVal == other.intVal
		}
		return v.intVal.Cmp(other.intVal) == 0
	case KindReal:
		return v.realVal == other.realVal
	case KindDate:
		return v.dateVal.Equal(other.dateVal)
	case KindData:
		if len(v.data) != len(other.data) {
			return false
		}
		for i := range v.data {
			if v.data[i] != other.data[i] {
				return false
			}
		}
		return true
	case KindString:
		return v.strVal == other.strVal
	case KindArray:
		if len(v.arrVal) != len(other.arrVal) {
			return false
		}
		for i := range v.arrVal {
			if !v.arrVal[i].Equal(other.arrVal[i]) {
				return false
			}
		}
		return true
	case KindDict:
		return v.dictVal.Equal(other.dictVal)
	default:
		return false
	}
}

// Dict is an ordered string-keyed map. Iteration order is insertion order
// and is observable in the binary encoding: key references precede value
// references in the key/value reference blocks.
type Dict struct {
	keys   []string
	values map[string]Value
}

func newDict() *Dict {
	return &Dict{values: make(map[string]Value)}
}

// Set inserts or updates key. New keys are appended to the iteration order;
// updating an existing key preserves its original position.
func (d *Dict) Set(key string, v Value) *Dict {
	if _, exists := d.values[key]; !exists {
		d.keys = append(d.keys, key)
	}
	d.values[key] = v
	return d
}

// Get returns the value for key; ok is false if key is absent.
func (d *Dict) Get(key string) (Value, bool) {
	v, ok := d.values[key]
	return v, ok
}

// Keys returns the keys in insertion order. The returned slice must not be
// mutated by the caller.
func (d *Dict) Keys() []string { return d.keys }

// Len returns the number of entries.
func (d *Dict) Len() int { return len(d.keys) }

// Equal reports whether d and other hold the same keys, in the same order,
// mapping to structurally equal values.
func (d *Dict) Equal(other *Dict) bool {
	if d == nil || other == nil {
		return d == other
	}
	if len(d.keys) != len(other.keys) {
		return false
	}
	for i, k := range d.keys {
		if other.keys[i] != k {
			return false
		}
		ov, ok := other.values[k]
		if !ok || !d.values[k].Equal(ov) {
			return false
		}
	}
	return true
}
