package xpc

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, msg Message) Message {
	t.Helper()
	buf, err := Encode(msg)
	require.NoError(t, err)
	got, err := Decode(buf)
	require.NoError(t, err)
	return got
}

func TestEncodeDecode_NullBody(t *testing.T) {
	msg := Message{Flags: FlagAlwaysSet | FlagDataFlag, ID: 7, Body: Null()}
	got := roundTrip(t, msg)
	assert.Equal(t, msg.Flags, got.Flags)
	assert.Equal(t, msg.ID, got.ID)
	assert.True(t, got.Body.IsNull())
}

func TestEncodeDecode_ScalarKinds(t *testing.T) {
	d := NewDict()
	dd, _ := d.Dict()
	dd.Set("flag", Bool(true))
	dd.Set("count", Int64(-42))
	dd.Set("size", UInt64(1 << 40))
	dd.Set("ratio", Double(3.5))
	dd.Set("name", String("remotexpc"))
	dd.Set("blob", Data([]byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01}))
	id := uuid.New()
	dd.Set("id", UUID(id))

	msg := Message{Flags: FlagAlwaysSet, ID: 1, Body: d}
	got := roundTrip(t, msg)

	gd, ok := got.Body.Dict()
	require.True(t, ok)

	flag, _ := gd.Get("flag")
	b, _ := flag.Bool()
	assert.True(t, b)

	count, _ := gd.Get("count")
	i, _ := count.Int64()
	assert.Equal(t, int64(-42), i)

	size, _ := gd.Get("size")
	u, _ := size.UInt64()
	assert.Equal(t, uint64(1<<40), u)

	ratio, _ := gd.Get("ratio")
	f, _ := ratio.Double()
	assert.Equal(t, 3.5, f)

	name, _ := gd.Get("name")
	s, _ := name.String()
	assert.Equal(t, "remotexpc", s)

	blob, _ := gd.Get("blob")
	raw, _ := blob.Data()
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01}, raw)

	idVal, _ := gd.Get("id")
	gotID, _ := idVal.UUID()
	assert.Equal(t, id, gotID)
}

func TestEncodeDecode_NestedArrayAndDict(t *testing.T) {
	inner := NewDict()
	id, _ := inner.Dict()
	id.Set("channel", String("root"))

	arr := Array([]Object{Int64(1), Int64(2), inner})

	outer := NewDict()
	od, _ := outer.Dict()
	od.Set("items", arr)

	msg := Message{Body: outer}
	got := roundTrip(t, msg)

	gd, _ := got.Body.Dict()
	itemsVal, ok := gd.Get("items")
	require.True(t, ok)
	items, ok := itemsVal.Array()
	require.True(t, ok)
	require.Len(t, items, 3)

	n0, _ := items[0].Int64()
	assert.Equal(t, int64(1), n0)
	n1, _ := items[1].Int64()
	assert.Equal(t, int64(2), n1)

	innerDict, ok := items[2].Dict()
	require.True(t, ok)
	ch, _ := innerDict.Get("channel")
	s, _ := ch.String()
	assert.Equal(t, "root", s)
}

func TestEncodeDecode_KeyOrderPreserved(t *testing.T) {
	d := NewDict()
	dd, _ := d.Dict()
	dd.Set("z", Int64(1))
	dd.Set("a", Int64(2))
	dd.Set("m", Int64(3))

	msg := Message{Body: d}
	got := roundTrip(t, msg)
	gd, _ := got.Body.Dict()
	assert.Equal(t, []string{"z", "a", "m"}, gd.Keys())
}

func TestDecode_BadMagic(t *testing.T) {
	buf := make([]byte, 24)
	_, err := Decode(buf)
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestDecode_Truncated(t *testing.T) {
	buf, err := Encode(Message{Body: String("hello")})
	require.NoError(t, err)
	_, err = Decode(buf[:len(buf)-2])
	assert.ErrorIs(t, err, ErrTruncated)
}
