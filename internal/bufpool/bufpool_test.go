package bufpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPool_GetReturnsRequestedLength(t *testing.T) {
	p := NewPool(nil)

	buf := p.Get(100)
	assert.Len(t, buf, 100)
	assert.GreaterOrEqual(t, cap(buf), DefaultSmallSize)
}

func TestPool_GetOversizeBypassesPool(t *testing.T) {
	p := NewPool(nil)

	buf := p.Get(DefaultLargeSize + 1)
	assert.Len(t, buf, DefaultLargeSize+1)
}

func TestPool_PutThenGetReusesBuffer(t *testing.T) {
	p := NewPool(&Config{SmallSize: 16, MediumSize: 256, LargeSize: 4096})

	buf := p.Get(10)
	buf[0] = 0x42
	p.Put(buf)

	got := p.Get(10)
	assert.Len(t, got, 10)
}

func TestGetUint32(t *testing.T) {
	buf := GetUint32(32)
	assert.Len(t, buf, 32)
	Put(buf)
}
