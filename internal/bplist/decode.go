package bplist

import (
	"encoding/binary"
	"math"
	"math/big"
	"unicode/utf16"
)

// IsBplist reports whether buf begins with the "bplist" magic prefix, used
// to probe a dialect before falling through to an XML plist decoder.
func IsBplist(buf []byte) bool {
	return len(buf) >= 6 && string(buf[:6]) == "bplist"
}

type decodeState uint8

const (
	stateUnvisited decodeState = iota
	stateVisiting
	stateDone
)

type decoder struct {
	buf        []byte
	refSize    int
	offsets    []int
	numObjects int

	state  []decodeState
	cached []Value
}

// Decode parses a binary property list. It rejects truncated files, trailers
// with out-of-range widths, and dangling or cyclic references.
func Decode(buf []byte) (Value, error) {
	if !IsBplist(buf) || len(buf) < 8 || string(buf[:8]) != magic {
		return Value{}, wrap(ErrInvalidMagic, "")
	}
	if len(buf) < 8+trailerSize {
		return Value{}, wrap(ErrTruncated, "buffer shorter than header+trailer")
	}

	trailer := buf[len(buf)-trailerSize:]
	offsetSize := int(trailer[6])
	refSize := int(trailer[7])
	numObjects := binary.BigEndian.Uint64(trailer[8:16])
	topObjectID := binary.BigEndian.Uint64(trailer[16:24])
	offsetTableOffset := binary.BigEndian.Uint64(trailer[24:32])

	if !validWidth(offsetSize) || !validWidth(refSize) {
		return Value{}, wrap(ErrBadTrailer, "offset_size/ref_size not in {1,2,4,8}")
	}
	if numObjects == 0 || topObjectID >= numObjects {
		return Value{}, wrap(ErrBadTrailer, "top_object_id out of range")
	}

	dataRegionEnd := len(buf) - trailerSize
	tableBytes := int(numObjects) * offsetSize
	if int(offsetTableOffset) < 0 || int(offsetTableOffset)+tableBytes > dataRegionEnd {
		return Value{}, wrap(ErrTruncated, "offset table extends past data region")
	}

	offsets := make([]int, numObjects)
	for i := uint64(0); i < numObjects; i++ {
		pos := int(offsetTableOffset) + int(i)*offsetSize
		offsets[i] = int(readUint(buf[pos:pos+offsetSize], offsetSize))
		if offsets[i] >= dataRegionEnd {
			return Value{}, wrap(ErrBadRef, "object offset extends past data region")
		}
	}

	d := &decoder{
		buf:        buf[:dataRegionEnd],
		refSize:    refSize,
		offsets:    offsets,
		numObjects: int(numObjects),
		state:      make([]decodeState, numObjects),
		cached:     make([]Value, numObjects),
	}

	return d.materialize(int(topObjectID))
}

func validWidth(w int) bool {
	return w == 1 || w == 2 || w == 4 || w == 8
}

func (d *decoder) materialize(id int) (Value, error) {
	if id < 0 || id >= d.numObjects {
		return Value{}, wrap(ErrBadRef, "reference id out of range")
	}
	switch d.state[id] {
	case stateVisiting:
		return Value{}, wrap(ErrCycle, "")
	case stateDone:
		return d.cached[id], nil
	}
	d.state[id] = stateVisiting

	v, err := d.decodeAt(d.offsets[id])
	if err != nil {
		return Value{}, err
	}

	d.state[id] = stateDone
	d.cached[id] = v
	return v, nil
}

func (d *decoder) decodeAt(off int) (Value, error) {
	if off < 0 || off >= len(d.buf) {
		return Value{}, wrap(ErrBadRef, "object offset out of range")
	}
	tag := d.buf[off]
	hi := tag >> 4
	lo := tag & 0x0F

	switch hi {
	case 0x0:
		switch tag {
		case 0x00:
			return Null(), nil
		case 0x08:
			return Bool(false), nil
		case 0x09:
			return Bool(true), nil
		}
		return Value{}, wrap(ErrBadTrailer, "unsupported atom tag")
	case 0x1:
		width := 1 << lo
		if width > 8 {
			return Value{}, wrap(ErrBadTrailer, "int width out of range")
		}
		data, err := d.slice(off+1, width)
		if err != nil {
			return Value{}, err
		}
		return BigInt(decodeIntBytes(data)), nil
	case 0x2:
		if lo != 3 {
			return Value{}, wrap(ErrBadTrailer, "unsupported real tag")
		}
		data, err := d.slice(off+1, 8)
		if err != nil {
			return Value{}, err
		}
		bits := binary.BigEndian.Uint64(data)
		return Real(math.Float64frombits(bits)), nil
	case 0x3:
		if lo != 3 {
			return Value{}, wrap(ErrBadTrailer, "unsupported date tag")
		}
		data, err := d.slice(off+1, 8)
		if err != nil {
			return Value{}, err
		}
		bits := binary.BigEndian.Uint64(data)
		seconds := math.Float64frombits(bits)
		if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
			return Value{}, wrap(ErrDateOutOfRange, "")
		}
		return Date(referenceEpoch.Add(secondsToDuration(seconds))), nil
	case 0x4:
		length, dataStart, err := d.readLength(off, lo)
		if err != nil {
			return Value{}, err
		}
		data, err := d.slice(dataStart, length)
		if err != nil {
			return Value{}, err
		}
		return Data(data), nil
	case 0x5:
		length, dataStart, err := d.readLength(off, lo)
		if err != nil {
			return Value{}, err
		}
		data, err := d.slice(dataStart, length)
		if err != nil {
			return Value{}, err
		}
		return String(string(data)), nil
	case 0x6:
		count, dataStart, err := d.readLength(off, lo)
		if err != nil {
			return Value{}, err
		}
		data, err := d.slice(dataStart, count*2)
		if err != nil {
			return Value{}, err
		}
		if len(data)%2 != 0 {
			return Value{}, wrap(ErrUtf16Decode, "odd byte length")
		}
		units := make([]uint16, count)
		for i := range units {
			units[i] = binary.BigEndian.Uint16(data[i*2:])
		}
		for i := 0; i < len(units); i++ {
			switch u := units[i]; {
			case u >= 0xD800 && u < 0xDC00:
				if i+1 >= len(units) || units[i+1] < 0xDC00 || units[i+1] > 0xDFFF {
					return Value{}, wrap(ErrUtf16Decode, "unpaired high surrogate")
				}
				i++
			case u >= 0xDC00 && u <= 0xDFFF:
				return Value{}, wrap(ErrUtf16Decode, "unpaired low surrogate")
			}
		}
		runes := utf16.Decode(units)
		return String(string(runes)), nil
	case 0xA:
		count, refsStart, err := d.readLength(off, lo)
		if err != nil {
			return Value{}, err
		}
		ids, err := d.readRefs(refsStart, count)
		if err != nil {
			return Value{}, err
		}
		elems := make([]Value, count)
		for i, id := range ids {
			ev, err := d.materialize(id)
			if err != nil {
				return Value{}, err
			}
			elems[i] = ev
		}
		return Array(elems), nil
	case 0xD:
		count, refsStart, err := d.readLength(off, lo)
		if err != nil {
			return Value{}, err
		}
		keyIDs, err := d.readRefs(refsStart, count)
		if err != nil {
			return Value{}, err
		}
		valueIDs, err := d.readRefs(refsStart+count*d.refSize, count)
		if err != nil {
			return Value{}, err
		}
		dict := newDict()
		for i := 0; i < count; i++ {
			kv, err := d.materialize(keyIDs[i])
			if err != nil {
				return Value{}, err
			}
			key, ok := kv.String()
			if !ok {
				return Value{}, wrap(ErrBadTrailer, "dict key is not a string")
			}
			vv, err := d.materialize(valueIDs[i])
			if err != nil {
				return Value{}, err
			}
			dict.Set(key, vv)
		}
		return Value{kind: KindDict, dictVal: dict}, nil
	default:
		return Value{}, wrap(ErrBadTrailer, "unknown object tag")
	}
}

// readLength parses the 4-bit inline length at off's tag byte, following the
// trailing inline integer object when lo==0x0F. It returns the true length
// and the byte position where the payload begins.
func (d *decoder) readLength(off int, lo byte) (length int, payloadStart int, err error) {
	if lo != 0x0F {
		return int(lo), off + 1, nil
	}
	intTag, err := d.byteAt(off + 1)
	if err != nil {
		return 0, 0, err
	}
	if intTag>>4 != 0x1 {
		return 0, 0, wrap(ErrBadTrailer, "inline length header is not an int")
	}
	width := 1 << (intTag & 0x0F)
	data, err := d.slice(off+2, width)
	if err != nil {
		return 0, 0, err
	}
	n := decodeIntBytes(data)
	if !n.IsInt64() || n.Int64() < 0 {
		return 0, 0, wrap(ErrBadTrailer, "negative or oversized inline length")
	}
	return int(n.Int64()), off + 2 + width, nil
}

func (d *decoder) readRefs(start int, count int) ([]int, error) {
	data, err := d.slice(start, count*d.refSize)
	if err != nil {
		return nil, err
	}
	ids := make([]int, count)
	for i := range ids {
		ids[i] = int(readUint(data[i*d.refSize:(i+1)*d.refSize], d.refSize))
	}
	return ids, nil
}

func (d *decoder) slice(start, length int) ([]byte, error) {
	if length < 0 || start < 0 || start+length > len(d.buf) {
		return nil, wrap(ErrTruncated, "")
	}
	return d.buf[start : start+length], nil
}

func (d *decoder) byteAt(pos int) (byte, error) {
	if pos < 0 || pos >= len(d.buf) {
		return 0, wrap(ErrTruncated, "")
	}
	return d.buf[pos], nil
}

func readUint(data []byte, width int) uint64 {
	var v uint64
	for i := 0; i < width; i++ {
		v = v<<8 | uint64(data[i])
	}
	return v
}

// decodeIntBytes interprets data as a big-endian two's complement integer,
// signed for every width, including the single-byte width (int1), which
// this codec treats as signed rather than unsigned.
func decodeIntBytes(data []byte) *big.Int {
	v := new(big.Int).SetBytes(data)
	if len(data) > 0 && data[0]&0x80 != 0 {
		mod := new(big.Int).Lsh(big.NewInt(1), uint(len(data)*8))
		v.Sub(v, mod)
	}
	return v
}
