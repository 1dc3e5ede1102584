package bplist

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Round-trip tests
// ============================================================================

func TestEncodeDecode_RoundTrip(t *testing.T) {
	cases := map[string]Value{
		"null":   Null(),
		"true":   Bool(true),
		"false":  Bool(false),
		"int0":   Int(0),
		"int1":   Int(1),
		"int-1":  Int(-1),
		"int127": Int(127),
		"int128": Int(128),
		"int max32": Int(1<<31 - 1),
		"int big":  Int(1 << 40),
		"real":     Real(3.14159),
		"date":     Date(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)),
		"data":     Data([]byte{0x01, 0x02, 0x03}),
		"ascii":    String("hello world"),
		"unicode":  String("héllo 世界"),
		"array":    Array([]Value{Bool(true), Null(), Int(5)}),
	}

	for name, v := range cases {
		t.Run(name, func(t *testing.T) {
			buf, err := Encode(v)
			require.NoError(t, err)
			assert.True(t, IsBplist(buf))

			got, err := Decode(buf)
			require.NoError(t, err)
			assert.True(t, v.Equal(got), "round trip mismatch for %s", name)
		})
	}
}

func TestEncodeDecode_NestedDict(t *testing.T) {
	dict := NewDict()
	d, _ := dict.Dict()
	d.Set("a", Int(1))
	d.Set("b", Array([]Value{Bool(true), Null()}))

	buf, err := Encode(dict)
	require.NoError(t, err)
	require.True(t, len(buf) >= 8)
	assert.Equal(t, "bplist00", string(buf[:8]))

	got, err := Decode(buf)
	require.NoError(t, err)
	assert.True(t, dict.Equal(got))

	gd, ok := got.Dict()
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, gd.Keys())
}

func TestEncodeDecode_BigIntPreservesPrecision(t *testing.T) {
	big64 := new(big.Int).SetInt64(1<<62 + 7)
	v := BigInt(big64)

	buf, err := Encode(v)
	require.NoError(t, err)

	got, err := Decode(buf)
	require.NoError(t, err)

	gi, ok := got.BigInt()
	require.True(t, ok)
	assert.Equal(t, 0, big64.Cmp(gi))
}

func TestEncodeDecode_DictKeyOrderIsObservable(t *testing.T) {
	dict := NewDict()
	d, _ := dict.Dict()
	d.Set("z", Int(1))
	d.Set("a", Int(2))
	d.Set("m", Int(3))

	buf, err := Encode(dict)
	require.NoError(t, err)

	got, err := Decode(buf)
	require.NoError(t, err)
	gd, _ := got.Dict()
	assert.Equal(t, []string{"z", "a", "m"}, gd.Keys())
}

// ============================================================================
// Trailer / invariants
// ============================================================================

func TestEncode_ScalarArrayTrailer(t *testing.T) {
	dict := NewDict()
	d, _ := dict.Dict()
	d.Set("a", Int(1))
	d.Set("b", Array([]Value{Bool(true), Null()}))

	buf, err := Encode(dict)
	require.NoError(t, err)

	trailer := buf[len(buf)-trailerSize:]
	offsetSize := int(trailer[6])
	refSize := int(trailer[7])

	assert.Equal(t, 1, offsetSize)
	assert.Equal(t, 1, refSize)
	assert.Equal(t, byte(0), trailer[16+7]) // top_object_id low byte == 0
}

// ============================================================================
// Failure modes
// ============================================================================

func TestDecode_InvalidMagic(t *testing.T) {
	_, err := Decode([]byte("not a plist at all"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidMagic)
}

func TestDecode_Truncated(t *testing.T) {
	buf, err := Encode(Int(1))
	require.NoError(t, err)

	_, err = Decode(buf[:len(buf)-5])
	require.Error(t, err)
}

func TestDecode_BadRef(t *testing.T) {
	buf, err := Encode(Array([]Value{Int(1)}))
	require.NoError(t, err)

	// Layout: "bplist00"(8) + array tag+ref(2, at offsets 8-9) + int
	// tag+payload(2). The ref byte at offset 9 points to object id 1; bump
	// it past num_objects (2).
	require.Equal(t, byte(0xA1), buf[8])
	buf[9] = 99

	_, err = Decode(buf)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadRef)
}

func TestDecode_CyclicReferenceRejected(t *testing.T) {
	// Hand-build a one-object file where object 0 (an array) references
	// itself, which the planner/encoder can never produce but a hostile
	// decoder input might.
	buf := []byte(magic)
	buf = append(buf, 0xA1, 0x00) // array, len=1, ref to object 0 (itself)
	offsetTableStart := len(buf)
	buf = append(buf, byte(8)) // offset table: object 0 at offset 8

	var trailer [trailerSize]byte
	trailer[6] = 1 // offset_size
	trailer[7] = 1 // ref_size
	trailer[15] = 1 // num_objects = 1
	trailer[23] = 0 // top_object_id = 0
	trailer[31] = byte(offsetTableStart)
	buf = append(buf, trailer[:]...)

	_, err := Decode(buf)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCycle)
}

func TestIsBplist(t *testing.T) {
	assert.True(t, IsBplist([]byte("bplist00...")))
	assert.False(t, IsBplist([]byte("<?xml version")))
}
