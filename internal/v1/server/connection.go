// Package server is the TCP chat server core: the connection and room
// registries, session tokens, the request dispatcher, the broadcast
// engine and the epoll reactor that feeds them.
package server

import (
	"sync"

	"github.com/harborchat/harbor/internal/v1/wire"
)

// Connection owns the buffered state of one client socket. The reactor
// is the only component touching the fd itself; everyone else talks to
// the buffers under the connection mutex.
type Connection struct {
	fd int

	mu       sync.Mutex
	readBuf  *wire.Buffer
	writeBuf *wire.Buffer

	// onWritable asks the event loop to watch the fd for write
	// readiness. Installed at accept time.
	onWritable func(fd int)
}

// NewConnection allocates buffered state for an accepted socket.
func NewConnection(fd, maxRead, maxWrite int, onWritable func(fd int)) *Connection {
	return &Connection{
		fd:         fd,
		readBuf:    wire.NewBuffer(maxRead),
		writeBuf:   wire.NewBuffer(maxWrite),
		onWritable: onWritable,
	}
}

// Fd returns the socket descriptor.
func (c *Connection) Fd() int { return c.fd }

// AppendRead buffers freshly received bytes. ErrBufferFull means the
// peer outran the cap and the connection should be torn down.
func (c *Connection) AppendRead(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readBuf.Append(p)
}

// ExtractFrames drains complete frames from the read buffer in arrival
// order.
func (c *Connection) ExtractFrames() []wire.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readBuf.ExtractFrames()
}

// EnqueueFrame appends an encoded frame to the write buffer and signals
// write interest. Overflow drops the frame silently.
func (c *Connection) EnqueueFrame(typ uint16, payload []byte) bool {
	c.mu.Lock()
	queued := c.writeBuf.AppendFrame(typ, payload)
	c.mu.Unlock()
	if queued && c.onWritable != nil {
		c.onWritable(c.fd)
	}
	return queued
}

// PeekWrite returns up to max pending outbound bytes without consuming
// them. The returned slice is copied so the lock is not held by callers.
func (c *Connection) PeekWrite(max int) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	chunk := c.readOnlyPeek(max)
	if chunk == nil {
		return nil
	}
	out := make([]byte, len(chunk))
	copy(out, chunk)
	return out
}

func (c *Connection) readOnlyPeek(max int) []byte {
	return c.writeBuf.Peek(max)
}

// DiscardWrite drops n written bytes from the head of the write buffer.
func (c *Connection) DiscardWrite(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeBuf.Discard(n)
}

// PendingWrite reports buffered outbound bytes.
func (c *Connection) PendingWrite() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeBuf.Len()
}
