package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// HeaderLen is the size, in bytes, of every frame's fixed header.
const HeaderLen = 6

// MaxBodyLen bounds a single frame's body so a corrupt or hostile length
// field can't force an unbounded allocation. No documented packet body
// approaches this size; it exists purely as a sanity ceiling.
const MaxBodyLen = 1 << 14

// Frame is one decoded packet: a 6-byte big-endian header (type, protocol
// version, body length) followed by the body itself.
type Frame struct {
	Type    PacketType
	Version uint16
	Body    []byte
}

// ReadFrame blocks until a complete frame has been read from r, or an error
// (including io.EOF on a clean close) occurs. The body length is the value
// carried in the header, exclusive of the header itself.
func ReadFrame(r io.Reader) (Frame, error) {
	var hdr [HeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Frame{}, err
	}

	f := Frame{
		Type:    PacketType(binary.BigEndian.Uint16(hdr[0:2])),
		Version: binary.BigEndian.Uint16(hdr[2:4]),
	}
	length := binary.BigEndian.Uint16(hdr[4:6])
	if length == 0 {
		return f, nil
	}
	if int(length) > MaxBodyLen {
		return Frame{}, fmt.Errorf("wire: frame body length %d exceeds maximum", length)
	}

	f.Body = make([]byte, length)
	if _, err := io.ReadFull(r, f.Body); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// Encode renders f as the bytes that go on the wire: header then body.
func (f Frame) Encode() []byte {
	buf := make([]byte, HeaderLen+len(f.Body))
	binary.BigEndian.PutUint16(buf[0:2], uint16(f.Type))
	binary.BigEndian.PutUint16(buf[2:4], f.Version)
	binary.BigEndian.PutUint16(buf[4:6], uint16(len(f.Body)))
	copy(buf[HeaderLen:], f.Body)
	return buf
}

// WriteFrame encodes and writes a single frame to w. The connection's
// writer goroutine is the frame's sole owner for the duration of the call,
// which is what the source's refcounted iovec queue existed to guarantee
// under non-blocking I/O; a blocking write from a single owner goroutine
// gives the same guarantee for free.
func WriteFrame(w io.Writer, pktType PacketType, version uint16, body []byte) error {
	f := Frame{Type: pktType, Version: version, Body: body}
	_, err := w.Write(f.Encode())
	return err
}

// NewFrame builds a Frame for pktType at the server's own protocol version
// with the given body.
func NewFrame(pktType PacketType, body []byte) Frame {
	return Frame{Type: pktType, Version: ProtocolVersion, Body: body}
}
