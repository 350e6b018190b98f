package server

import (
	"strconv"
	"sync"
	"time"

	"github.com/harborchat/harbor/internal/v1/dal"
	"github.com/harborchat/harbor/internal/v1/metrics"
)

// roomState pairs a room row with its live member set.
type roomState struct {
	room  dal.Room
	users map[int]struct{}
}

// tokenEntry is one user's session token and its expiry instant.
type tokenEntry struct {
	token  string
	expire time.Time
}

// JoinStatus is the outcome of a join attempt.
type JoinStatus int

const (
	JoinOK JoinStatus = iota
	JoinAlreadyInRoom
	JoinRoomNotFound
	JoinRoomFull
)

// Registry holds every piece of shared connection, identity, room and
// session state. Each map has its own mutex; methods acquire them in the
// fixed order
//
//	connections > active rooms > inactive rooms > fd→user > user→fd >
//	user→room > user→token
//
// and release in reverse, so no two code paths can deadlock.
type Registry struct {
	connMu sync.Mutex
	conns  map[int]*Connection

	activeMu sync.Mutex
	active   map[int]*roomState

	inactiveMu sync.Mutex
	inactive   map[int]*roomState

	fdUserMu sync.Mutex
	fdToUser map[int]int

	userFdMu sync.Mutex
	userToFd map[int]int

	userRoomMu sync.Mutex
	userToRoom map[int]int

	tokenMu     sync.Mutex
	userToToken map[int]tokenEntry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:       make(map[int]*Connection),
		active:      make(map[int]*roomState),
		inactive:    make(map[int]*roomState),
		fdToUser:    make(map[int]int),
		userToFd:    make(map[int]int),
		userToRoom:  make(map[int]int),
		userToToken: make(map[int]tokenEntry),
	}
}

// --- connections ---

// AddConnection registers an accepted connection.
func (r *Registry) AddConnection(c *Connection) {
	r.connMu.Lock()
	r.conns[c.Fd()] = c
	n := len(r.conns)
	r.connMu.Unlock()
	metrics.ActiveConnections.Set(float64(n))
}

// GetConnection looks a connection up by fd.
func (r *Registry) GetConnection(fd int) (*Connection, bool) {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	c, ok := r.conns[fd]
	return c, ok
}

// RemoveConnection drops a connection, returning it for the caller to
// close. Safe to call twice.
func (r *Registry) RemoveConnection(fd int) (*Connection, bool) {
	r.connMu.Lock()
	c, ok := r.conns[fd]
	delete(r.conns, fd)
	n := len(r.conns)
	r.connMu.Unlock()
	metrics.ActiveConnections.Set(float64(n))
	return c, ok
}

// ConnectionCount reports live connections.
func (r *Registry) ConnectionCount() int {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	return len(r.conns)
}

// ConnectionFds snapshots every live fd, for shutdown sweeps.
func (r *Registry) ConnectionFds() []int {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	fds := make([]int, 0, len(r.conns))
	for fd := range r.conns {
		fds = append(fds, fd)
	}
	return fds
}

// --- identity bi-map ---

// BindUser points both identity maps at the new fd. When the user was
// already bound to a different live fd, that fd is returned so the
// caller can kick it.
func (r *Registry) BindUser(fd, userID int) (oldFd int, kicked bool) {
	r.fdUserMu.Lock()
	r.userFdMu.Lock()

	if prev, ok := r.userToFd[userID]; ok && prev != fd {
		oldFd = prev
		kicked = true
		delete(r.fdToUser, prev)
	}
	r.fdToUser[fd] = userID
	r.userToFd[userID] = fd

	r.userFdMu.Unlock()
	r.fdUserMu.Unlock()
	return oldFd, kicked
}

// UserForFd resolves the user logged in on a socket.
func (r *Registry) UserForFd(fd int) (int, bool) {
	r.fdUserMu.Lock()
	defer r.fdUserMu.Unlock()
	u, ok := r.fdToUser[fd]
	return u, ok
}

// FdForUser resolves a user's live socket.
func (r *Registry) FdForUser(userID int) (int, bool) {
	r.userFdMu.Lock()
	defer r.userFdMu.Unlock()
	fd, ok := r.userToFd[userID]
	return fd, ok
}

// FdsForUsers resolves a batch of user IDs to live sockets under a
// single lock hold. Users without a connection are skipped.
func (r *Registry) FdsForUsers(userIDs []int) []int {
	r.userFdMu.Lock()
	defer r.userFdMu.Unlock()
	fds := make([]int, 0, len(userIDs))
	for _, id := range userIDs {
		if fd, ok := r.userToFd[id]; ok {
			fds = append(fds, fd)
		}
	}
	return fds
}

// UnbindFd clears both identity directions for a closing socket. The
// reverse entry is only dropped when it still points at this fd, so a
// kicked session cannot erase its successor.
func (r *Registry) UnbindFd(fd int) (userID int, had bool) {
	r.fdUserMu.Lock()
	r.userFdMu.Lock()

	userID, had = r.fdToUser[fd]
	if had {
		delete(r.fdToUser, fd)
		if cur, ok := r.userToFd[userID]; ok && cur == fd {
			delete(r.userToFd, userID)
		}
	}

	r.userFdMu.Unlock()
	r.fdUserMu.Unlock()
	return userID, had
}

// --- rooms ---

// LoadRoom seeds the registry with a persisted room at startup or after
// an admin create.
func (r *Registry) LoadRoom(room dal.Room) {
	state := &roomState{room: room, users: make(map[int]struct{})}
	if room.IsActive {
		r.activeMu.Lock()
		r.active[room.ID] = state
		n := len(r.active)
		r.activeMu.Unlock()
		metrics.ActiveRooms.Set(float64(n))
		return
	}
	r.inactiveMu.Lock()
	r.inactive[room.ID] = state
	r.inactiveMu.Unlock()
}

// ActivateRoom moves a room from the inactive map to the active map.
// The member set is empty by invariant on the inactive side.
func (r *Registry) ActivateRoom(roomID int) bool {
	r.activeMu.Lock()
	r.inactiveMu.Lock()

	state, ok := r.inactive[roomID]
	if ok {
		delete(r.inactive, roomID)
		state.room.IsActive = true
		r.active[roomID] = state
	}
	n := len(r.active)

	r.inactiveMu.Unlock()
	r.activeMu.Unlock()
	metrics.ActiveRooms.Set(float64(n))
	return ok
}

// DeactivateRoom evicts every member and moves the room to the inactive
// map. The evicted user ids are returned for notification.
func (r *Registry) DeactivateRoom(roomID int) (evicted []int, ok bool) {
	r.activeMu.Lock()
	r.inactiveMu.Lock()
	r.userRoomMu.Lock()

	state, found := r.active[roomID]
	if found {
		for uid := range state.users {
			evicted = append(evicted, uid)
			delete(r.userToRoom, uid)
		}
		state.users = make(map[int]struct{})
		delete(r.active, roomID)
		state.room.IsActive = false
		r.inactive[roomID] = state
	}
	n := len(r.active)

	r.userRoomMu.Unlock()
	r.inactiveMu.Unlock()
	r.activeMu.Unlock()

	metrics.ActiveRooms.Set(float64(n))
	metrics.RoomMembers.DeleteLabelValues(strconv.Itoa(roomID))
	return evicted, found
}

// DeleteRoom removes a room from whichever map holds it, clearing the
// memberships of any active members.
func (r *Registry) DeleteRoom(roomID int) (members []int, existed bool) {
	r.activeMu.Lock()
	r.inactiveMu.Lock()
	r.userRoomMu.Lock()

	if state, ok := r.active[roomID]; ok {
		for uid := range state.users {
			members = append(members, uid)
			delete(r.userToRoom, uid)
		}
		delete(r.active, roomID)
		existed = true
	} else if _, ok := r.inactive[roomID]; ok {
		delete(r.inactive, roomID)
		existed = true
	}
	n := len(r.active)

	r.userRoomMu.Unlock()
	r.inactiveMu.Unlock()
	r.activeMu.Unlock()

	metrics.ActiveRooms.Set(float64(n))
	metrics.RoomMembers.DeleteLabelValues(strconv.Itoa(roomID))
	return members, existed
}

// UpdateRoom applies a mutation to the stored room row wherever it
// lives, for keeping the registry copy in step with admin edits.
func (r *Registry) UpdateRoom(roomID int, fn func(*dal.Room)) bool {
	r.activeMu.Lock()
	r.inactiveMu.Lock()

	updated := false
	if state, ok := r.active[roomID]; ok {
		fn(&state.room)
		updated = true
	} else if state, ok := r.inactive[roomID]; ok {
		fn(&state.room)
		updated = true
	}

	r.inactiveMu.Unlock()
	r.activeMu.Unlock()
	return updated
}

// JoinRoom atomically checks membership, existence and capacity, then
// inserts the user into the room and the reverse map. The room snapshot
// carries live occupancy.
func (r *Registry) JoinRoom(userID, roomID int) (dal.Room, JoinStatus) {
	r.activeMu.Lock()
	r.userRoomMu.Lock()
	defer func() {
		r.userRoomMu.Unlock()
		r.activeMu.Unlock()
	}()

	if _, in := r.userToRoom[userID]; in {
		return dal.Room{}, JoinAlreadyInRoom
	}
	state, ok := r.active[roomID]
	if !ok {
		return dal.Room{}, JoinRoomNotFound
	}
	if state.room.MaxUsers > 0 && len(state.users) >= state.room.MaxUsers {
		return dal.Room{}, JoinRoomFull
	}

	state.users[userID] = struct{}{}
	r.userToRoom[userID] = roomID
	metrics.RoomMembers.WithLabelValues(strconv.Itoa(roomID)).Set(float64(len(state.users)))

	snapshot := state.room
	snapshot.CurrentUsers = len(state.users)
	return snapshot, JoinOK
}

// LeaveRoom removes a user from their current room. Returns the room id
// left, or false when the user was in none.
func (r *Registry) LeaveRoom(userID int) (int, bool) {
	r.activeMu.Lock()
	r.userRoomMu.Lock()
	defer func() {
		r.userRoomMu.Unlock()
		r.activeMu.Unlock()
	}()

	roomID, in := r.userToRoom[userID]
	if !in {
		return 0, false
	}
	delete(r.userToRoom, userID)
	if state, ok := r.active[roomID]; ok {
		delete(state.users, userID)
		metrics.RoomMembers.WithLabelValues(strconv.Itoa(roomID)).Set(float64(len(state.users)))
	}
	return roomID, true
}

// CurrentRoom reports the room a user is in.
func (r *Registry) CurrentRoom(userID int) (int, bool) {
	r.userRoomMu.Lock()
	defer r.userRoomMu.Unlock()
	roomID, ok := r.userToRoom[userID]
	return roomID, ok
}

// RoomMembers snapshots the member set of an active room. Inactive and
// unknown rooms report no members.
func (r *Registry) RoomMembers(roomID int) []int {
	r.activeMu.Lock()
	defer r.activeMu.Unlock()
	state, ok := r.active[roomID]
	if !ok {
		return nil
	}
	members := make([]int, 0, len(state.users))
	for uid := range state.users {
		members = append(members, uid)
	}
	return members
}

// MemberCount reports live occupancy of an active room; inactive and
// unknown rooms count zero.
func (r *Registry) MemberCount(roomID int) int {
	r.activeMu.Lock()
	defer r.activeMu.Unlock()
	if state, ok := r.active[roomID]; ok {
		return len(state.users)
	}
	return 0
}

// IsRoomActive reports which map holds the room, if any.
func (r *Registry) IsRoomActive(roomID int) (active, exists bool) {
	r.activeMu.Lock()
	r.inactiveMu.Lock()
	defer func() {
		r.inactiveMu.Unlock()
		r.activeMu.Unlock()
	}()
	if _, ok := r.active[roomID]; ok {
		return true, true
	}
	if _, ok := r.inactive[roomID]; ok {
		return false, true
	}
	return false, false
}

// --- session tokens ---

// SetToken installs a user's session token, replacing any prior entry.
func (r *Registry) SetToken(userID int, token string, expire time.Time) {
	r.tokenMu.Lock()
	r.userToToken[userID] = tokenEntry{token: token, expire: expire}
	n := len(r.userToToken)
	r.tokenMu.Unlock()
	metrics.SessionsActive.Set(float64(n))
}

// TokenFor returns the stored token entry for a user.
func (r *Registry) TokenFor(userID int) (string, time.Time, bool) {
	r.tokenMu.Lock()
	defer r.tokenMu.Unlock()
	e, ok := r.userToToken[userID]
	return e.token, e.expire, ok
}

// RemoveToken drops a user's session entry.
func (r *Registry) RemoveToken(userID int) {
	r.tokenMu.Lock()
	delete(r.userToToken, userID)
	n := len(r.userToToken)
	r.tokenMu.Unlock()
	metrics.SessionsActive.Set(float64(n))
}

// TokenCount reports live sessions.
func (r *Registry) TokenCount() int {
	r.tokenMu.Lock()
	defer r.tokenMu.Unlock()
	return len(r.userToToken)
}

// SweepTokens removes entries expired at now and reports how many.
func (r *Registry) SweepTokens(now time.Time) int {
	r.tokenMu.Lock()
	removed := 0
	for uid, e := range r.userToToken {
		if !e.expire.After(now) {
			delete(r.userToToken, uid)
			removed++
		}
	}
	n := len(r.userToToken)
	r.tokenMu.Unlock()
	metrics.SessionsActive.Set(float64(n))
	return removed
}
