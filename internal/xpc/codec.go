package xpc

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/google/uuid"
)

const (
	headerSize uint32 = 24
	xpcMagic   uint32 = 0x29b00b92
)

// Object wire tags. Each is a distinct 4-byte little-endian value; the
// specific numbering mirrors the real wire-XPC format rather than being
// this codec's own invention.
const (
	tagNull   uint32 = 0x00001000
	tagBool   uint32 = 0x00002000
	tagInt64  uint32 = 0x00003000
	tagUInt64 uint32 = 0x00004000
	tagDouble uint32 = 0x00005000
	tagData   uint32 = 0x00008000
	tagString uint32 = 0x00009000
	tagUUID   uint32 = 0x0000a000
	tagArray  uint32 = 0x0000e000
	tagDict   uint32 = 0x0000f000
)

// pad4 returns how many zero bytes must follow n bytes to reach the next
// 4-byte boundary.
func pad4(n int) int {
	if rem := n % 4; rem != 0 {
		return 4 - rem
	}
	return 0
}

// Encode renders msg as a 24-byte header followed by its body's tagged
// object encoding.
func Encode(msg Message) ([]byte, error) {
	body, err := encodeObject(msg.Body)
	if err != nil {
		return nil, err
	}

	out := make([]byte, headerSize+uint32(len(body)))
	binary.LittleEndian.PutUint32(out[0:4], xpcMagic)
	binary.LittleEndian.PutUint32(out[4:8], msg.Flags)
	binary.LittleEndian.PutUint64(out[8:16], uint64(len(body)))
	binary.LittleEndian.PutUint64(out[16:24], msg.ID)
	copy(out[24:], body)
	return out, nil
}

// Decode parses buf as one XPC message: a 24-byte header plus a body whose
// length the header's message-length field declares.
func Decode(buf []byte) (Message, error) {
	if uint32(len(buf)) < headerSize {
		return Message{}, wrapCodec(ErrTruncated, "header")
	}
	magic := binary.LittleEndian.Uint32(buf[0:4])
	if magic != xpcMagic {
		return Message{}, wrapCodec(ErrBadMagic, fmt.Sprintf("got 0x%08x", magic))
	}
	flags := binary.LittleEndian.Uint32(buf[4:8])
	bodyLen := binary.LittleEndian.Uint64(buf[8:16])
	id := binary.LittleEndian.Uint64(buf[16:24])

	rest := buf[24:]
	if uint64(len(rest)) < bodyLen {
		return Message{}, wrapCodec(ErrTruncated, "body")
	}
	body, _, err := decodeObject(rest[:bodyLen])
	if err != nil {
		return Message{}, err
	}
	return Message{Flags: flags, ID: id, Body: body}, nil
}

func encodeObject(o Object) ([]byte, error) {
	switch o.kind {
	case KindNull:
		return tagBytes(tagNull), nil

	case KindBool:
		v := tagBytes(tagBool)
		var b uint32
		if o.boolVal {
			b = 1
		}
		v = binary.LittleEndian.AppendUint32(v, b)
		return v, nil

	case KindInt64:
		v := tagBytes(tagInt64)
		v = binary.LittleEndian.AppendUint64(v, uint64(o.i64Val))
		return v, nil

	case KindUInt64:
		v := tagBytes(tagUInt64)
		v = binary.LittleEndian.AppendUint64(v, o.u64Val)
		return v, nil

	case KindDouble:
		v := tagBytes(tagDouble)
		v = binary.LittleEndian.AppendUint64(v, math.Float64bits(o.f64Val))
		return v, nil

	case KindString:
		return encodeString(tagString, o.strVal), nil

	case KindData:
		v := tagBytes(tagData)
		v = binary.LittleEndian.AppendUint32(v, uint32(len(o.data)))
		v = append(v, o.data...)
		v = append(v, make([]byte, pad4(len(o.data)))...)
		return v, nil

	case KindUUID:
		v := tagBytes(tagUUID)
		v = append(v, o.uuidVal[:]...)
		return v, nil

	case KindArray:
		return encodeArray(o.arrVal)

	case KindDict:
		return encodeDict(o.dictVal)

	default:
		return nil, wrapCodec(ErrUnknownTag, fmt.Sprintf("kind %d", o.kind))
	}
}

func tagBytes(tag uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, tag)
	return b
}

// encodeString writes a tag, a u32 length counting the trailing NUL, the
// bytes of s, a NUL terminator, and 4-byte alignment padding.
func encodeString(tag uint32, s string) []byte {
	v := tagBytes(tag)
	v = binary.LittleEndian.AppendUint32(v, uint32(len(s)+1))
	v = append(v, s...)
	v = append(v, 0x00)
	v = append(v, make([]byte, pad4(len(s)+1))...)
	return v
}

// encodeCString writes a NUL-terminated, 4-byte-aligned string with no
// leading tag or length field — the form dictionary keys use.
func encodeCString(s string) []byte {
	v := append([]byte(s), 0x00)
	v = append(v, make([]byte, pad4(len(s)+1))...)
	return v
}

func encodeArray(elems []Object) ([]byte, error) {
	var payload []byte
	payload = binary.LittleEndian.AppendUint32(payload, uint32(len(elems)))
	for _, e := range elems {
		eb, err := encodeObject(e)
		if err != nil {
			return nil, err
		}
		payload = append(payload, eb...)
	}

	v := tagBytes(tagArray)
	v = binary.LittleEndian.AppendUint32(v, uint32(len(payload)))
	v = append(v, payload...)
	return v, nil
}

func encodeDict(d *Dict) ([]byte, error) {
	var payload []byte
	payload = binary.LittleEndian.AppendUint32(payload, uint32(d.Len()))
	for _, key := range d.keys {
		payload = append(payload, encodeCString(key)...)
		vb, err := encodeObject(d.values[key])
		if err != nil {
			return nil, err
		}
		payload = append(payload, vb...)
	}

	v := tagBytes(tagDict)
	v = binary.LittleEndian.AppendUint32(v, uint32(len(payload)))
	v = append(v, payload...)
	return v, nil
}

// decodeObject decodes one object from the front of buf, returning the
// object and the number of bytes it consumed.
func decodeObject(buf []byte) (Object, int, error) {
	if len(buf) < 4 {
		return Object{}, 0, wrapCodec(ErrTruncated, "object tag")
	}
	tag := binary.LittleEndian.Uint32(buf[0:4])
	rest := buf[4:]

	switch tag {
	case tagNull:
		return Null(), 4, nil

	case tagBool:
		if len(rest) < 4 {
			return Object{}, 0, wrapCodec(ErrTruncated, "bool payload")
		}
		return Bool(binary.LittleEndian.Uint32(rest[:4]) != 0), 8, nil

	case tagInt64:
		if len(rest) < 8 {
			return Object{}, 0, wrapCodec(ErrTruncated, "int64 payload")
		}
		return Int64(int64(binary.LittleEndian.Uint64(rest[:8]))), 12, nil

	case tagUInt64:
		if len(rest) < 8 {
			return Object{}, 0, wrapCodec(ErrTruncated, "uint64 payload")
		}
		return UInt64(binary.LittleEndian.Uint64(rest[:8])), 12, nil

	case tagDouble:
		if len(rest) < 8 {
			return Object{}, 0, wrapCodec(ErrTruncated, "double payload")
		}
		return Double(math.Float64frombits(binary.LittleEndian.Uint64(rest[:8]))), 12, nil

	case tagString:
		s, n, err := decodeLengthPrefixedString(rest)
		if err != nil {
			return Object{}, 0, err
		}
		return String(s), 4 + n, nil

	case tagData:
		if len(rest) < 4 {
			return Object{}, 0, wrapCodec(ErrTruncated, "data length")
		}
		n := int(binary.LittleEndian.Uint32(rest[:4]))
		body := rest[4:]
		if len(body) < n {
			return Object{}, 0, wrapCodec(ErrTruncated, "data payload")
		}
		consumed := 4 + n + pad4(n)
		return Data(body[:n]), 4 + consumed, nil

	case tagUUID:
		if len(rest) < 16 {
			return Object{}, 0, wrapCodec(ErrTruncated, "uuid payload")
		}
		var u uuid.UUID
		copy(u[:], rest[:16])
		return UUID(u), 20, nil

	case tagArray:
		return decodeArray(rest)

	case tagDict:
		return decodeDict(rest)

	default:
		return Object{}, 0, wrapCodec(ErrUnknownTag, fmt.Sprintf("0x%08x", tag))
	}
}

// decodeLengthPrefixedString decodes a u32 length (including the trailing
// NUL) followed by the string bytes, the NUL, and alignment padding.
// Returns the string and the number of bytes consumed starting at buf[0].
func decodeLengthPrefixedString(buf []byte) (string, int, error) {
	if len(buf) < 4 {
		return "", 0, wrapCodec(ErrTruncated, "string length")
	}
	n := int(binary.LittleEndian.Uint32(buf[:4]))
	if n < 1 {
		return "", 0, wrapCodec(ErrTruncated, "string length underflow")
	}
	body := buf[4:]
	if len(body) < n {
		return "", 0, wrapCodec(ErrTruncated, "string payload")
	}
	s := string(body[:n-1])
	return s, 4 + n + pad4(n), nil
}

func decodeArray(buf []byte) (Object, int, error) {
	if len(buf) < 4 {
		return Object{}, 0, wrapCodec(ErrTruncated, "array byte length")
	}
	byteLen := int(binary.LittleEndian.Uint32(buf[:4]))
	body := buf[4:]
	if len(body) < byteLen {
		return Object{}, 0, wrapCodec(ErrTruncated, "array payload")
	}
	section := body[:byteLen]
	if len(section) < 4 {
		return Object{}, 0, wrapCodec(ErrTruncated, "array count")
	}
	count := int(binary.LittleEndian.Uint32(section[:4]))
	cursor := section[4:]

	elems := make([]Object, 0, count)
	for i := 0; i < count; i++ {
		e, n, err := decodeObject(cursor)
		if err != nil {
			return Object{}, 0, err
		}
		elems = append(elems, e)
		cursor = cursor[n:]
	}
	return Array(elems), 4 + 4 + byteLen, nil
}

func decodeDict(buf []byte) (Object, int, error) {
	if len(buf) < 4 {
		return Object{}, 0, wrapCodec(ErrTruncated, "dict byte length")
	}
	byteLen := int(binary.LittleEndian.Uint32(buf[:4]))
	body := buf[4:]
	if len(body) < byteLen {
		return Object{}, 0, wrapCodec(ErrTruncated, "dict payload")
	}
	section := body[:byteLen]
	if len(section) < 4 {
		return Object{}, 0, wrapCodec(ErrTruncated, "dict count")
	}
	count := int(binary.LittleEndian.Uint32(section[:4]))
	cursor := section[4:]

	d := newDict()
	for i := 0; i < count; i++ {
		key, keyN, err := decodeCString(cursor)
		if err != nil {
			return Object{}, 0, err
		}
		cursor = cursor[keyN:]

		val, valN, err := decodeObject(cursor)
		if err != nil {
			return Object{}, 0, err
		}
		cursor = cursor[valN:]

		d.Set(key, val)
	}
	return Object{kind: KindDict, dictVal: d}, 4 + 4 + byteLen, nil
}

// decodeCString reads a NUL-terminated, 4-byte-aligned string with no
// length prefix, the form dictionary keys use.
func decodeCString(buf []byte) (string, int, error) {
	idx := -1
	for i, b := range buf {
		if b == 0x00 {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", 0, wrapCodec(ErrTruncated, "unterminated dict key")
	}
	total := idx + 1 + pad4(idx+1)
	if len(buf) < total {
		return "", 0, wrapCodec(ErrTruncated, "dict key padding")
	}
	return string(buf[:idx]), total, nil
}
