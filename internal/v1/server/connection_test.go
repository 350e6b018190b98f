package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborchat/harbor/internal/v1/wire"
)

func TestConnection_ReadSideExtractsFrames(t *testing.T) {
	conn := NewConnection(1, 1024, 1024, nil)

	encoded, err := wire.Encode(wire.MsgLogin, []byte(`{"email":"a@x"}`))
	require.NoError(t, err)

	// Bytes arrive split mid-header.
	require.NoError(t, conn.AppendRead(encoded[:3]))
	assert.Empty(t, conn.ExtractFrames())

	require.NoError(t, conn.AppendRead(encoded[3:]))
	frames := conn.ExtractFrames()
	require.Len(t, frames, 1)
	assert.Equal(t, wire.MsgLogin, frames[0].Type)
	assert.Equal(t, `{"email":"a@x"}`, string(frames[0].Payload))
}

func TestConnection_ReadBufferCap(t *testing.T) {
	conn := NewConnection(1, 8, 1024, nil)

	err := conn.AppendRead(make([]byte, 9))
	assert.ErrorIs(t, err, wire.ErrBufferFull)
}

func TestConnection_EnqueueSignalsWriteInterest(t *testing.T) {
	var signalled []int
	conn := NewConnection(7, 1024, 1024, func(fd int) { signalled = append(signalled, fd) })

	require.True(t, conn.EnqueueFrame(wire.MsgErrorResponse, []byte(`{}`)))
	assert.Equal(t, []int{7}, signalled)
	assert.Equal(t, wire.HeaderSize+2, conn.PendingWrite())
}

func TestConnection_WriteDrainInChunks(t *testing.T) {
	conn := NewConnection(1, 1024, 1024, nil)
	require.True(t, conn.EnqueueFrame(wire.MsgAccountKicked, nil))
	require.True(t, conn.EnqueueFrame(wire.MsgErrorResponse, []byte(`{"code":500}`)))

	total := conn.PendingWrite()
	drained := 0
	for conn.PendingWrite() > 0 {
		chunk := conn.PeekWrite(3)
		require.NotEmpty(t, chunk)
		conn.DiscardWrite(len(chunk))
		drained += len(chunk)
	}
	assert.Equal(t, total, drained)

	assert.Nil(t, conn.PeekWrite(3))
}

func TestConnection_WriteBufferOverflowDropsFrame(t *testing.T) {
	conn := NewConnection(1, 1024, 8, nil)

	assert.True(t, conn.EnqueueFrame(wire.MsgAccountKicked, nil))
	assert.False(t, conn.EnqueueFrame(wire.MsgErrorResponse, []byte(`{"code":500}`)))
	// The earlier frame survives intact.
	assert.Equal(t, wire.HeaderSize, conn.PendingWrite())
}
