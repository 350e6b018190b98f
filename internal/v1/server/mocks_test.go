package server

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/harborchat/harbor/internal/v1/dal"
	"github.com/harborchat/harbor/internal/v1/service"
	"github.com/harborchat/harbor/internal/v1/wire"
	"github.com/harborchat/harbor/internal/v1/workerpool"
)

const testPassword = "hunter2asdf"

// fakeClock is an adjustable time source shared by a harness.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// harness runs a full server over the in-memory store, with fd hooks
// recorded instead of touching real sockets.
type harness struct {
	t     *testing.T
	srv   *Server
	store *dal.Store
	clock *fakeClock

	mu      sync.Mutex
	closed  []int
	flushed []int
}

func newHarness(t *testing.T, ttl time.Duration) *harness {
	t.Helper()
	store := dal.NewMemory()
	workers := workerpool.New(2)
	t.Cleanup(workers.Stop)

	h := &harness{t: t, store: store, clock: newFakeClock()}
	h.srv = New(Options{
		Service:       service.NewManager(store),
		Workers:       workers,
		Registry:      NewRegistry(),
		TokenTTL:      ttl,
		SweepInterval: time.Hour,
		Clock:         h.clock.Now,
		CloseFd:       h.recordClose,
		FlushKick:     h.recordFlush,
	})
	return h
}

func (h *harness) recordClose(fd int) {
	h.mu.Lock()
	h.closed = append(h.closed, fd)
	h.mu.Unlock()
}

func (h *harness) recordFlush(fd int) {
	h.mu.Lock()
	h.flushed = append(h.flushed, fd)
	h.mu.Unlock()
}

func (h *harness) closedFds() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int(nil), h.closed...)
}

func (h *harness) flushedFds() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int(nil), h.flushed...)
}

// connect simulates an accepted socket.
func (h *harness) connect(fd int) *Connection {
	return h.srv.Accept(fd, func(int) {})
}

// request marshals a body and dispatches it synchronously.
func (h *harness) request(fd int, typ uint16, body any) {
	h.t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(h.t, err)
	h.srv.HandleRequest(fd, wire.Frame{Type: typ, Payload: payload})
}

// frames drains and decodes everything queued on a connection.
func (h *harness) frames(conn *Connection) []wire.Frame {
	h.t.Helper()
	raw := conn.PeekWrite(conn.PendingWrite())
	conn.DiscardWrite(len(raw))
	buf := wire.NewBuffer(wire.DefaultMaxBuffer)
	require.NoError(h.t, buf.Append(raw))
	return buf.ExtractFrames()
}

// lastFrame drains a connection and returns its final queued frame.
func (h *harness) lastFrame(conn *Connection) wire.Frame {
	h.t.Helper()
	frames := h.frames(conn)
	require.NotEmpty(h.t, frames, "no frames queued on fd %d", conn.Fd())
	return frames[len(frames)-1]
}

func decodeBody[T any](t *testing.T, frame wire.Frame) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(frame.Payload, &v))
	return v
}

// envelope is the decoded common response shape.
type envelope struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Token   string `json:"token"`
}

func (h *harness) createUser(email, name string, admin bool) dal.User {
	h.t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(h.t, err)
	res := h.store.Users.CreateUser(context.Background(), name, email, string(hash), admin)
	require.True(h.t, res.IsSuccess(), "create user %s: %v", email, res.Err)
	return res.Data
}

func (h *harness) createRoom(creatorID int, name string, maxUsers int) dal.Room {
	h.t.Helper()
	res := h.store.Rooms.CreateRoom(context.Background(), creatorID, name, "", maxUsers)
	require.True(h.t, res.IsSuccess(), "create room %s", name)
	h.srv.reg.LoadRoom(res.Data)
	return res.Data
}

// login connects fd and authenticates email on it, returning the
// connection and the issued token.
func (h *harness) login(fd int, email string) (*Connection, string) {
	h.t.Helper()
	conn := h.connect(fd)
	h.request(fd, wire.MsgLogin, loginRequest{Email: email, Password: testPassword})
	frame := h.lastFrame(conn)
	require.Equal(h.t, wire.ResponseType(wire.MsgLogin), frame.Type)
	env := decodeBody[envelope](h.t, frame)
	require.True(h.t, env.Success, "login failed: %s", env.Message)
	require.NotEmpty(h.t, env.Token)
	return conn, env.Token
}
