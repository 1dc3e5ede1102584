// Package framing implements a pure byte
// transducer that demultiplexes a byte stream into length-prefixed frames.
// It knows nothing about the envelope format riding inside a frame — that
// stays the transport's job, which is what lets
// MuxClient.connect cleanly hand ownership of the raw stream back to a
// caller by disposing the splitter instead of unwinding a combined
// transport/codec object.
package framing

import "fmt"

// Endian selects the byte order of the length field.
type Endian int

const (
	BigEndian Endian = iota
	LittleEndian
)

// Config parameterizes a Splitter.
type Config struct {
	// LengthOffset is the byte position, within each frame, where the
	// length field begins. Both usages in this module (muxer, lockdown)
	// use 0.
	LengthOffset int

	// LengthWidth is the byte width of the length field: 1, 2, or 4.
	LengthWidth int

	// Endian is the byte order of the length field.
	Endian Endian

	// Adjust is added to the wire length value to obtain the number of
	// payload bytes that follow the length field. The muxer's length
	// counts the entire 16-byte envelope including the length field
	// itself, so its Adjust is -LengthWidth; lockdown's length counts only
	// the plist body, so its Adjust is 0.
	Adjust int

	// MaxFrame bounds the wire length value (before Adjust is applied) to
	// guard against memory exhaustion from a corrupt or hostile peer.
	MaxFrame uint32
}

// Splitter accumulates bytes fed to it and yields complete frame payloads in
// arrival order. It is not safe for concurrent use; callers serialize reads
// at the transport.
type Splitter struct {
	cfg        Config
	buf        []byte
	shutdown   bool
}

// New returns a Splitter configured per cfg.
func New(cfg Config) *Splitter {
	return &Splitter{cfg: cfg}
}

// ErrFrameTooLarge is returned when a frame's declared length exceeds
// Config.MaxFrame.
var ErrFrameTooLarge = fmt.Errorf("framing: frame too large")

// Feed appends data to the internal buffer and returns every frame payload
// that became complete as a result, in order. On ErrFrameTooLarge the
// internal buffer is discarded; the Splitter keeps no error state, so a
// later Feed parses its bytes as the start of a new frame.
func (s *Splitter) Feed(data []byte) ([][]byte, error) {
	if s.shutdown {
		return nil, fmt.Errorf("framing: splitter is shut down")
	}
	s.buf = append(s.buf, data...)

	var frames [][]byte
	for {
		frame, ok, err := s.tryExtract()
		if err != nil {
			s.buf = nil
			return frames, err
		}
		if !ok {
			return frames, nil
		}
		frames = append(frames, frame)
	}
}

// tryExtract attempts to pull a single complete frame off the front of the
// buffer.
func (s *Splitter) tryExtract() (frame []byte, ok bool, err error) {
	headerEnd := s.cfg.LengthOffset + s.cfg.LengthWidth
	if len(s.buf) < headerEnd {
		return nil, false, nil
	}

	raw := s.readLength(s.buf[s.cfg.LengthOffset:headerEnd])
	if s.cfg.MaxFrame != 0 && raw > uint64(s.cfg.MaxFrame) {
		return nil, false, ErrFrameTooLarge
	}

	payloadLen := int64(raw) + int64(s.cfg.Adjust)
	if payloadLen < 0 {
		return nil, false, fmt.Errorf("framing: negative payload length")
	}

	frameEnd := headerEnd + int(payloadLen)
	if len(s.buf) < frameEnd {
		return nil, false, nil
	}

	payload := make([]byte, payloadLen)
	copy(payload, s.buf[headerEnd:frameEnd])

	remaining := len(s.buf) - frameEnd
	copy(s.buf, s.buf[frameEnd:])
	s.buf = s.buf[:remaining]

	return payload, true, nil
}

func (s *Splitter) readLength(b []byte) uint64 {
	var v uint64
	if s.cfg.Endian == BigEndian {
		for _, c := range b {
			v = v<<8 | uint64(c)
		}
	} else {
		for i := len(b) - 1; i >= 0; i-- {
			v = v<<8 | uint64(b[i])
		}
	}
	return v
}

// Shutdown stops the splitter from emitting further frames and returns any
// bytes buffered but not yet consumed into a frame, so a caller (typically
// MuxClient.connect) can hand the raw stream back to its owner without
// losing data already read off the wire.
func (s *Splitter) Shutdown() []byte {
	s.shutdown = true
	leftover := s.buf
	s.buf = nil
	return leftover
}
