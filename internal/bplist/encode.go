package bplist

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"unicode/utf16"
)

// magic is the 8-byte header: "bplist" followed by the version "00".
const magic = "bplist00"

// trailerSize is the fixed 32-byte trailer at the end of every encoded file.
const trailerSize = 32

// planner assigns object ids to a value tree in depth-first, pre-order
// traversal order. Null/true/false are canonicalized to a single id each,
// since these primitive atoms may share one canonical id per value; every
// other node gets a fresh id even if semantically equal to one already
// assigned, which is always a valid (if not maximally compact) encoding.
type planner struct {
	order []*objectInfo

	canonNull  int
	canonTrue  int
	canonFalse int
}

type objectInfo struct {
	value Value

	// populated for KindArray
	elementIDs []int

	// populated for KindDict, parallel slices in insertion order
	keyIDs   []int
	valueIDs []int
}

func newPlanner() *planner {
	return &planner{canonNull: -1, canonTrue: -1, canonFalse: -1}
}

func (p *planner) visit(v Value) int {
	switch v.kind {
	case KindNull:
		if p.canonNull == -1 {
			p.canonNull = len(p.order)
			p.order = append(p.order, &objectInfo{value: v})
		}
		return p.canonNull
	case KindBool:
		b, _ := v.Bool()
		if b {
			if p.canonTrue == -1 {
				p.canonTrue = len(p.order)
				p.order = append(p.order, &objectInfo{value: v})
			}
			return p.canonTrue
		}
		if p.canonFalse == -1 {
			p.canonFalse = len(p.order)
			p.order = append(p.order, &objectInfo{value: v})
		}
		return p.canonFalse
	case KindArray:
		id := len(p.order)
		info := &objectInfo{value: v}
		p.order = append(p.order, info)
		elems, _ := v.Array()
		ids := make([]int, len(elems))
		for i, e := range elems {
			ids[i] = p.visit(e)
		}
		info.elementIDs = ids
		return id
	case KindDict:
		id := len(p.order)
		info := &objectInfo{value: v}
		p.order = append(p.order, info)
		d, _ := v.Dict()
		keys := d.Keys()
		keyIDs := make([]int, len(keys))
		for i, k := range keys {
			keyIDs[i] = p.visit(String(k))
		}
		valueIDs := make([]int, len(keys))
		for i, k := range keys {
			val, _ := d.Get(k)
			valueIDs[i] = p.visit(val)
		}
		info.keyIDs = keyIDs
		info.valueIDs = valueIDs
		return id
	default:
		id := len(p.order)
		p.order = append(p.order, &objectInfo{value: v})
		return id
	}
}

// Encode serializes root into a binary property list.
func Encode(root Value) ([]byte, error) {
	p := newPlanner()
	rootID := p.visit(root)
	numObjects := len(p.order)

	refSize := minBytesUnsigned(uint64(numObjects - 1))

	var buf bytes.Buffer
	buf.WriteString(magic)

	offsets := make([]int, numObjects)
	for id, info := range p.order {
		offsets[id] = buf.Len()
		rec, err := encodeRecord(info, refSize)
		if err != nil {
			return nil, err
		}
		buf.Write(rec)
	}

	offsetTableStart := buf.Len()
	offsetSize := minBytesUnsigned(uint64(offsetTableStart))

	for _, off := range offsets {
		writeUint(&buf, uint64(off), offsetSize)
	}

	var trailer [trailerSize]byte
	trailer[6] = byte(offsetSize)
	trailer[7] = byte(refSize)
	binary.BigEndian.PutUint64(trailer[8:16], uint64(numObjects))
	binary.BigEndian.PutUint64(trailer[16:24], uint64(rootID))
	binary.BigEndian.PutUint64(trailer[24:32], uint64(offsetTableStart))
	buf.Write(trailer[:])

	return buf.Bytes(), nil
}

func encodeRecord(info *objectInfo, refSize int) ([]byte, error) {
	v := info.value
	var buf bytes.Buffer

	switch v.kind {
	case KindNull:
		buf.WriteByte(0x00)
	case KindBool:
		b, _ := v.Bool()
		if b {
			buf.WriteByte(0x09)
		} else {
			buf.WriteByte(0x08)
		}
	case KindInt:
		width := intWidth(v.intVal)
		buf.WriteByte(0x10 | widthNibble(width))
		buf.Write(intBytes(v.intVal, width))
	case KindReal:
		buf.WriteByte(0x23)
		var bits [8]byte
		binary.BigEndian.PutUint64(bits[:], math.Float64bits(v.realVal))
		buf.Write(bits[:])
	case KindDate:
		buf.WriteByte(0x33)
		seconds := v.dateVal.Sub(referenceEpoch).Seconds()
		var bits [8]byte
		binary.BigEndian.PutUint64(bits[:], math.Float64bits(seconds))
		buf.Write(bits[:])
	case KindData:
		writeLengthTag(&buf, 0x40, len(v.data))
		buf.Write(v.data)
	case KindString:
		if isASCII(v.strVal) {
			b := []byte(v.strVal)
			writeLengthTag(&buf, 0x50, len(b))
			buf.Write(b)
		} else {
			units := utf16.Encode([]rune(v.strVal))
			writeLengthTag(&buf, 0x60, len(units))
			for _, u := range units {
				var b [2]byte
				binary.BigEndian.PutUint16(b[:], u)
				buf.Write(b[:])
			}
		}
	case KindArray:
		writeLengthTag(&buf, 0xA0, len(info.elementIDs))
		for _, id := range info.elementIDs {
			writeUint(&buf, uint64(id), refSize)
		}
	case KindDict:
		writeLengthTag(&buf, 0xD0, len(info.keyIDs))
		for _, id := range info.keyIDs {
			writeUint(&buf, uint64(id), refSize)
		}
		for _, id := range info.valueIDs {
			writeUint(&buf, uint64(id), refSize)
		}
	default:
		return nil, fmt.Errorf("bplist: encode: unknown kind %d", v.kind)
	}

	return buf.Bytes(), nil
}

// writeLengthTag writes the tag nibble byte for a length-prefixed record
// (data/string/array/dict), spilling the true length into a trailing inline
// integer object when it does not fit in the 4-bit inline form (when the
// length doesn't fit in 4 bits, the nibble is set to 0x0F and an int header
// follows carrying the true length).
func writeLengthTag(buf *bytes.Buffer, base byte, length int) {
	if length < 0x0F {
		buf.WriteByte(base | byte(length))
		return
	}
	buf.WriteByte(base | 0x0F)
	w := intWidth(big.NewInt(int64(length)))
	buf.WriteByte(0x10 | widthNibble(w))
	buf.Write(intBytes(big.NewInt(int64(length)), w))
}

// intWidth chooses the smallest of {1,2,4,8} bytes that holds v with its
// sign preserved. int1 is treated as signed, so positive values 128..255
// are promoted to 2 bytes rather than encoded as a 1-byte unsigned value.
// Arbitrary-precision values outside the int64 range always take width 8,
// truncated to its two's-complement representation by intBytes: the codec
// accepts bignum producers rather than rejecting them, at the cost of
// precision for values that don't actually fit in 8 bytes.
func intWidth(v *big.Int) int {
	if !v.IsInt64() {
		return 8
	}
	i := v.Int64()
	switch {
	case i >= -128 && i <= 127:
		return 1
	case i >= -32768 && i <= 32767:
		return 2
	case i >= -2147483648 && i <= 2147483647:
		return 4
	default:
		return 8
	}
}

func widthNibble(width int) byte {
	switch width {
	case 1:
		return 0
	case 2:
		return 1
	case 4:
		return 2
	case 8:
		return 3
	default:
		return 3
	}
}

// intBytes renders v as big-endian two's complement of the given width.
func intBytes(v *big.Int, width int) []byte {
	out := make([]byte, width)
	if v.Sign() >= 0 {
		b := v.Bytes()
		if len(b) > width {
			b = b[len(b)-width:]
		}
		copy(out[width-len(b):], b)
		return out
	}
	mod := new(big.Int).Lsh(big.NewInt(1), uint(width*8))
	tmp := new(big.Int).Add(v, mod)
	b := tmp.Bytes()
	if len(b) > width {
		b = b[len(b)-width:]
	}
	copy(out[width-len(b):], b)
	return out
}

// minBytesUnsigned returns the smallest of {1,2,4,8} that can hold max as an
// unsigned integer, matching the encoder's offset_size/ref_size sizing rule.
func minBytesUnsigned(max uint64) int {
	switch {
	case max <= 0xFF:
		return 1
	case max <= 0xFFFF:
		return 2
	case max <= 0xFFFFFFFF:
		return 4
	default:
		return 8
	}
}

func writeUint(buf *bytes.Buffer, v uint64, width int) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[8-width:])
}
