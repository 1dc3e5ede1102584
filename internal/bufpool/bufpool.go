// Package bufpool provides a tiered sync.Pool-backed buffer pool, used to
// back frame payload buffers without an allocation per frame.
//
// Three size tiers balance memory efficiency with reuse: small (4KB) for
// control messages, medium (64KB) for directory-listing-sized payloads,
// large (1MB) for bulk tunnel data. Anything bigger is allocated directly
// and never pooled, so one oversized payload doesn't pin memory forever.
package bufpool

import "sync"

const (
	DefaultSmallSize  = 4 << 10
	DefaultMediumSize = 64 << 10
	DefaultLargeSize  = 1 << 20
)

// Pool manages byte slice pools organized by size class.
type Pool struct {
	small      sync.Pool
	medium     sync.Pool
	large      sync.Pool
	smallSize  int
	mediumSize int
	largeSize  int
}

// Config configures a custom Pool's size classes.
type Config struct {
	SmallSize  int
	MediumSize int
	LargeSize  int
}

// DefaultConfig returns the default size classes.
func DefaultConfig() Config {
	return Config{SmallSize: DefaultSmallSize, MediumSize: DefaultMediumSize, LargeSize: DefaultLargeSize}
}

// NewPool creates a Pool from cfg, applying defaults for zero fields. A nil
// cfg uses DefaultConfig entirely.
func NewPool(cfg *Config) *Pool {
	if cfg == nil {
		defaultCfg := DefaultConfig()
		cfg = &defaultCfg
	}
	if cfg.SmallSize <= 0 {
		cfg.SmallSize = DefaultSmallSize
	}
	if cfg.MediumSize <= 0 {
		cfg.MediumSize = DefaultMediumSize
	}
	if cfg.LargeSize <= 0 {
		cfg.LargeSize = DefaultLargeSize
	}

	p := &Pool{smallSize: cfg.SmallSize, mediumSize: cfg.MediumSize, largeSize: cfg.LargeSize}
	p.small = sync.Pool{New: func() any { buf := make([]byte, p.smallSize); return &buf }}
	p.medium = sync.Pool{New: func() any { buf := make([]byte, p.mediumSize); return &buf }}
	p.large = sync.Pool{New: func() any { buf := make([]byte, p.largeSize); return &buf }}
	return p
}

// Get returns a byte slice of exactly size bytes, backed (where possible)
// by a pooled buffer. The caller must Put it back when done.
func (p *Pool) Get(size int) []byte {
	var bufPtr *[]byte
	switch {
	case size <= p.smallSize:
		bufPtr = p.small.Get().(*[]byte)
	case size <= p.mediumSize:
		bufPtr = p.medium.Get().(*[]byte)
	case size <= p.largeSize:
		bufPtr = p.large.Get().(*[]byte)
	default:
		return make([]byte, size)
	}
	buf := *bufPtr
	return buf[:size]
}

// Put returns buf to the pool matching its capacity. Buffers outside the
// three size classes are left for the garbage collector.
func (p *Pool) Put(buf []byte) {
	if buf == nil {
		return
	}
	switch cap(buf) {
	case p.smallSize:
		fullBuf := buf[:cap(buf)]
		p.small.Put(&fullBuf)
	case p.mediumSize:
		fullBuf := buf[:cap(buf)]
		p.medium.Put(&fullBuf)
	case p.largeSize:
		fullBuf := buf[:cap(buf)]
		p.large.Put(&fullBuf)
	}
}

var globalPool = NewPool(nil)

// Get returns a buffer of size bytes from the global pool.
func Get(size int) []byte {
	return globalPool.Get(size)
}

// Put returns buf to the global pool.
func Put(buf []byte) {
	globalPool.Put(buf)
}

// GetUint32 is Get for callers holding a wire-format uint32 length field.
func GetUint32(size uint32) []byte {
	return globalPool.Get(int(size))
}
