package server

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborchat/harbor/internal/v1/dal"
)

func activeRoom(id int, maxUsers int) dal.Room {
	return dal.Room{ID: id, Name: "room", MaxUsers: maxUsers, IsActive: true}
}

func TestRegistry_ConnectionLifecycle(t *testing.T) {
	reg := NewRegistry()
	conn := NewConnection(5, 1024, 1024, nil)

	reg.AddConnection(conn)
	got, ok := reg.GetConnection(5)
	require.True(t, ok)
	assert.Same(t, conn, got)
	assert.Equal(t, 1, reg.ConnectionCount())

	removed, ok := reg.RemoveConnection(5)
	require.True(t, ok)
	assert.Same(t, conn, removed)

	_, ok = reg.GetConnection(5)
	assert.False(t, ok)

	// Second removal is a no-op.
	_, ok = reg.RemoveConnection(5)
	assert.False(t, ok)
}

func TestRegistry_BindUserReportsSupersededFd(t *testing.T) {
	reg := NewRegistry()

	_, kicked := reg.BindUser(10, 77)
	assert.False(t, kicked)

	oldFd, kicked := reg.BindUser(20, 77)
	require.True(t, kicked)
	assert.Equal(t, 10, oldFd)

	// Old fd lost its identity; new fd holds it.
	_, ok := reg.UserForFd(10)
	assert.False(t, ok)
	uid, ok := reg.UserForFd(20)
	require.True(t, ok)
	assert.Equal(t, 77, uid)
	fd, ok := reg.FdForUser(77)
	require.True(t, ok)
	assert.Equal(t, 20, fd)
}

func TestRegistry_UnbindFdKeepsSuccessorBinding(t *testing.T) {
	reg := NewRegistry()
	reg.BindUser(10, 77)
	reg.BindUser(20, 77)

	// The kicked fd unbinds late, after the user already rebound.
	uid, had := reg.UnbindFd(10)
	assert.True(t, had)
	assert.Equal(t, 77, uid)

	fd, ok := reg.FdForUser(77)
	require.True(t, ok)
	assert.Equal(t, 20, fd)
}

func TestRegistry_JoinRoom(t *testing.T) {
	reg := NewRegistry()
	reg.LoadRoom(activeRoom(1, 2))

	room, status := reg.JoinRoom(100, 1)
	require.Equal(t, JoinOK, status)
	assert.Equal(t, 1, room.CurrentUsers)

	roomID, ok := reg.CurrentRoom(100)
	require.True(t, ok)
	assert.Equal(t, 1, roomID)

	_, status = reg.JoinRoom(101, 1)
	assert.Equal(t, JoinOK, status)
	assert.Equal(t, 2, reg.MemberCount(1))
}

func TestRegistry_JoinRoomRejections(t *testing.T) {
	reg := NewRegistry()
	reg.LoadRoom(activeRoom(1, 1))
	inactive := activeRoom(2, 0)
	inactive.IsActive = false
	reg.LoadRoom(inactive)

	_, status := reg.JoinRoom(100, 9)
	assert.Equal(t, JoinRoomNotFound, status, "unknown room")

	_, status = reg.JoinRoom(100, 2)
	assert.Equal(t, JoinRoomNotFound, status, "inactive room")

	_, status = reg.JoinRoom(100, 1)
	require.Equal(t, JoinOK, status)

	_, status = reg.JoinRoom(100, 1)
	assert.Equal(t, JoinAlreadyInRoom, status, "second join by same user")

	_, status = reg.JoinRoom(101, 1)
	assert.Equal(t, JoinRoomFull, status, "capacity reached")
}

func TestRegistry_JoinRoomUnlimitedCapacity(t *testing.T) {
	reg := NewRegistry()
	reg.LoadRoom(activeRoom(1, 0))

	for uid := 1; uid <= 50; uid++ {
		_, status := reg.JoinRoom(uid, 1)
		require.Equal(t, JoinOK, status)
	}
	assert.Equal(t, 50, reg.MemberCount(1))
}

func TestRegistry_LeaveRoom(t *testing.T) {
	reg := NewRegistry()
	reg.LoadRoom(activeRoom(1, 0))
	reg.JoinRoom(100, 1)

	roomID, ok := reg.LeaveRoom(100)
	require.True(t, ok)
	assert.Equal(t, 1, roomID)
	assert.Equal(t, 0, reg.MemberCount(1))

	_, ok = reg.LeaveRoom(100)
	assert.False(t, ok, "second leave")
}

func TestRegistry_DeactivateRoomEvictsMembers(t *testing.T) {
	reg := NewRegistry()
	reg.LoadRoom(activeRoom(1, 0))
	reg.JoinRoom(100, 1)
	reg.JoinRoom(101, 1)

	evicted, ok := reg.DeactivateRoom(1)
	require.True(t, ok)
	assert.ElementsMatch(t, []int{100, 101}, evicted)

	// Members no longer have a current room and the room moved maps.
	_, inRoom := reg.CurrentRoom(100)
	assert.False(t, inRoom)
	active, exists := reg.IsRoomActive(1)
	require.True(t, exists)
	assert.False(t, active)

	_, status := reg.JoinRoom(100, 1)
	assert.Equal(t, JoinRoomNotFound, status)
}

func TestRegistry_ActivateRoom(t *testing.T) {
	reg := NewRegistry()
	reg.LoadRoom(activeRoom(1, 0))
	reg.DeactivateRoom(1)

	require.True(t, reg.ActivateRoom(1))
	active, exists := reg.IsRoomActive(1)
	require.True(t, exists)
	assert.True(t, active)

	_, status := reg.JoinRoom(100, 1)
	assert.Equal(t, JoinOK, status)

	assert.False(t, reg.ActivateRoom(42), "unknown room")
}

func TestRegistry_DeleteRoom(t *testing.T) {
	reg := NewRegistry()
	reg.LoadRoom(activeRoom(1, 0))
	reg.JoinRoom(100, 1)

	members, existed := reg.DeleteRoom(1)
	require.True(t, existed)
	assert.Equal(t, []int{100}, members)

	_, exists := reg.IsRoomActive(1)
	assert.False(t, exists)
	_, inRoom := reg.CurrentRoom(100)
	assert.False(t, inRoom)
}

func TestRegistry_UpdateRoom(t *testing.T) {
	reg := NewRegistry()
	reg.LoadRoom(activeRoom(1, 5))

	ok := reg.UpdateRoom(1, func(r *dal.Room) { r.Name = "renamed"; r.MaxUsers = 9 })
	require.True(t, ok)

	room, status := reg.JoinRoom(100, 1)
	require.Equal(t, JoinOK, status)
	assert.Equal(t, "renamed", room.Name)
	assert.Equal(t, 9, room.MaxUsers)

	assert.False(t, reg.UpdateRoom(42, func(*dal.Room) {}))
}

func TestRegistry_FdsForUsers(t *testing.T) {
	reg := NewRegistry()
	reg.BindUser(10, 100)
	reg.BindUser(20, 101)

	fds := reg.FdsForUsers([]int{100, 101, 999})
	assert.ElementsMatch(t, []int{10, 20}, fds)
}

func TestRegistry_TokenSweep(t *testing.T) {
	reg := NewRegistry()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	reg.SetToken(1, "n_1_1", now.Add(time.Minute))
	reg.SetToken(2, "n_1_2", now.Add(-time.Minute))
	reg.SetToken(3, "n_1_3", now)

	removed := reg.SweepTokens(now)
	assert.Equal(t, 2, removed, "expired and exactly-at-expiry tokens go")
	assert.Equal(t, 1, reg.TokenCount())

	_, _, ok := reg.TokenFor(1)
	assert.True(t, ok)
	_, _, ok = reg.TokenFor(2)
	assert.False(t, ok)
}

func TestRegistry_ConcurrentJoinsRespectCapacity(t *testing.T) {
	reg := NewRegistry()
	reg.LoadRoom(activeRoom(1, 10))

	var wg sync.WaitGroup
	joined := make(chan int, 64)
	for uid := 1; uid <= 50; uid++ {
		wg.Add(1)
		go func(uid int) {
			defer wg.Done()
			if _, status := reg.JoinRoom(uid, 1); status == JoinOK {
				joined <- uid
			}
		}(uid)
	}
	wg.Wait()
	close(joined)

	count := 0
	for range joined {
		count++
	}
	assert.Equal(t, 10, count)
	assert.Equal(t, 10, reg.MemberCount(1))
}
