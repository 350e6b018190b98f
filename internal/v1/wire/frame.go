package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// HeaderSize is the fixed frame header: u16 type + u16 length.
	HeaderSize = 4

	// MaxPayload is the largest payload a single frame may carry. The u16
	// length field cannot express more.
	MaxPayload = 65535

	// DefaultMaxBuffer caps per-connection read and write buffers.
	DefaultMaxBuffer = 1 << 20 // 1 MiB
)

// ErrPayloadTooLarge is returned when a payload exceeds MaxPayload.
var ErrPayloadTooLarge = errors.New("wire: payload exceeds maximum frame length")

// ErrBufferFull is returned when an append would grow a buffer past its cap.
var ErrBufferFull = errors.New("wire: buffer full")

// Frame is one protocol unit extracted from the stream.
type Frame struct {
	Type    uint16
	Payload []byte
}

// Encode serialises a frame into header + payload.
func Encode(typ uint16, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint16(buf[0:2], typ)
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(payload)))
	copy(buf[HeaderSize:], payload)
	return buf, nil
}

// frameLength reads the declared payload length out of a header.
func frameLength(header []byte) int {
	return int(binary.BigEndian.Uint16(header[2:4]))
}

func frameType(header []byte) uint16 {
	return binary.BigEndian.Uint16(header[0:2])
}
