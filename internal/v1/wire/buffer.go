package wire

// Buffer is a bounded byte buffer backing one direction of a connection.
// It is not safe for concurrent use; the owning Connection serialises
// access with its own mutex.
type Buffer struct {
	data []byte
	max  int
}

// NewBuffer returns a buffer capped at max bytes. A non-positive max falls
// back to DefaultMaxBuffer.
func NewBuffer(max int) *Buffer {
	if max <= 0 {
		max = DefaultMaxBuffer
	}
	return &Buffer{max: max}
}

// Len reports the number of buffered bytes.
func (b *Buffer) Len() int { return len(b.data) }

// Cap reports the buffer's byte limit.
func (b *Buffer) Cap() int { return b.max }

// Append adds p to the buffer, failing with ErrBufferFull when the cap
// would be exceeded. Nothing is written on failure.
func (b *Buffer) Append(p []byte) error {
	if len(b.data)+len(p) > b.max {
		return ErrBufferFull
	}
	b.data = append(b.data, p...)
	return nil
}

// AppendFrame encodes a frame onto the buffer. Oversize payloads and
// appends past the cap are dropped silently; the return value reports
// whether the frame was queued.
func (b *Buffer) AppendFrame(typ uint16, payload []byte) bool {
	encoded, err := Encode(typ, payload)
	if err != nil {
		return false
	}
	return b.Append(encoded) == nil
}

// ExtractFrames pulls every complete frame off the head of the buffer in
// arrival order. A declared length beyond MaxPayload is unrecoverable
// stream corruption: the remainder of the buffer is discarded.
func (b *Buffer) ExtractFrames() []Frame {
	var frames []Frame
	for len(b.data) >= HeaderSize {
		length := frameLength(b.data)
		if length > MaxPayload {
			b.data = b.data[:0]
			break
		}
		if len(b.data) < HeaderSize+length {
			break
		}
		payload := make([]byte, length)
		copy(payload, b.data[HeaderSize:HeaderSize+length])
		frames = append(frames, Frame{Type: frameType(b.data), Payload: payload})
		b.data = b.data[HeaderSize+length:]
	}
	return frames
}

// Next removes and returns up to max bytes from the head of the buffer,
// or nil when empty. Used to drain the write buffer in bounded chunks.
func (b *Buffer) Next(max int) []byte {
	if len(b.data) == 0 {
		return nil
	}
	n := max
	if n > len(b.data) {
		n = len(b.data)
	}
	out := make([]byte, n)
	copy(out, b.data[:n])
	b.data = b.data[n:]
	return out
}

// Peek returns up to max bytes from the head without removing them.
// The slice aliases the buffer and is only valid until the next mutation.
func (b *Buffer) Peek(max int) []byte {
	if len(b.data) == 0 {
		return nil
	}
	n := max
	if n > len(b.data) {
		n = len(b.data)
	}
	return b.data[:n]
}

// Discard drops the first n bytes, for use after a partial write.
func (b *Buffer) Discard(n int) {
	if n >= len(b.data) {
		b.data = b.data[:0]
		return
	}
	b.data = b.data[n:]
}

// Reset discards all buffered bytes.
func (b *Buffer) Reset() { b.data = b.data[:0] }
