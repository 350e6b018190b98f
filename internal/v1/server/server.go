package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/harborchat/harbor/internal/v1/logging"
	"github.com/harborchat/harbor/internal/v1/service"
	"github.com/harborchat/harbor/internal/v1/wire"
	"github.com/harborchat/harbor/internal/v1/workerpool"
)

// Options configures a Server. Zero values fall back to sane defaults;
// Clock and the fd hooks exist so tests can run without sockets.
type Options struct {
	Service  *service.Manager
	Workers  *workerpool.Pool
	Registry *Registry

	MaxReadBuffer  int
	MaxWriteBuffer int
	TokenTTL       time.Duration
	SweepInterval  time.Duration

	// Clock overrides time.Now.
	Clock func() time.Time

	// CloseFd tears the socket itself down: deregister from the event
	// loop and close. The reactor installs the real one.
	CloseFd func(fd int)

	// FlushKick attempts an immediate best-effort drain of a kicked
	// connection's write buffer.
	FlushKick func(fd int)
}

// Server glues the registry, services, dispatcher and broadcast engine
// together. The reactor feeds it raw frames; it talks back to sockets
// only through connection write buffers and the fd hooks.
type Server struct {
	svc *service.Manager
	reg *Registry

	workers *workerpool.Pool

	maxReadBuffer  int
	maxWriteBuffer int
	tokenTTL       time.Duration
	sweepInterval  time.Duration

	now       func() time.Time
	closeFd   func(fd int)
	flushKick func(fd int)

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New assembles a server from its parts.
func New(opts Options) *Server {
	s := &Server{
		svc:            opts.Service,
		reg:            opts.Registry,
		workers:        opts.Workers,
		maxReadBuffer:  opts.MaxReadBuffer,
		maxWriteBuffer: opts.MaxWriteBuffer,
		tokenTTL:       opts.TokenTTL,
		sweepInterval:  opts.SweepInterval,
		now:            opts.Clock,
		closeFd:        opts.CloseFd,
		flushKick:      opts.FlushKick,
		stopCh:         make(chan struct{}),
	}
	if s.reg == nil {
		s.reg = NewRegistry()
	}
	if s.maxReadBuffer <= 0 {
		s.maxReadBuffer = wire.DefaultMaxBuffer
	}
	if s.maxWriteBuffer <= 0 {
		s.maxWriteBuffer = wire.DefaultMaxBuffer
	}
	if s.tokenTTL < 0 {
		s.tokenTTL = 0
	}
	if s.sweepInterval <= 0 {
		s.sweepInterval = 10 * time.Minute
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.closeFd == nil {
		s.closeFd = func(int) {}
	}
	if s.flushKick == nil {
		s.flushKick = func(int) {}
	}
	return s
}

// Registry exposes shared state for the reactor and tests.
func (s *Server) Registry() *Registry { return s.reg }

// PreloadRooms seeds the registry with every persisted room. Called once
// before the reactor starts accepting.
func (s *Server) PreloadRooms(ctx context.Context) error {
	rooms := s.svc.GetAllRooms(ctx)
	if !rooms.OK {
		return &startupError{stage: "room preload", message: rooms.Message}
	}
	for _, room := range rooms.Data {
		s.reg.LoadRoom(room)
	}
	logging.Info(ctx, "rooms preloaded", zap.Int("count", len(rooms.Data)))
	return nil
}

type startupError struct {
	stage   string
	message string
}

func (e *startupError) Error() string {
	return "server: " + e.stage + " failed: " + e.message
}

// StartSweeper launches the token expiry sweeper. Correctness does not
// depend on it; validation checks expiry itself.
func (s *Server) StartSweeper() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				if removed := s.reg.SweepTokens(s.now()); removed > 0 {
					logging.Info(context.Background(), "expired sessions swept",
						zap.Int("removed", removed))
				}
			}
		}
	}()
}

// Stop halts background work. The reactor and worker pool are owned by
// the caller and stopped separately.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// Accept registers a freshly accepted socket.
func (s *Server) Accept(fd int, onWritable func(fd int)) *Connection {
	conn := NewConnection(fd, s.maxReadBuffer, s.maxWriteBuffer, onWritable)
	s.reg.AddConnection(conn)
	return conn
}

// Submit queues dispatcher work on the pool.
func (s *Server) Submit(task func()) {
	s.workers.Submit(task)
}

// CleanupConnection tears down all shared state for a closing socket:
// connection entry, identity bindings, room membership, session token,
// then the fd itself. Peers in the room are told the user left.
// Idempotent; error paths and kicks may both schedule it.
func (s *Server) CleanupConnection(fd int) {
	_, existed := s.reg.RemoveConnection(fd)

	userID, hadUser := s.reg.UnbindFd(fd)
	if hadUser {
		if roomID, inRoom := s.reg.LeaveRoom(userID); inRoom {
			s.notifyUserLeft(userID, roomID)
		}
		s.reg.RemoveToken(userID)
	}

	if existed {
		s.closeFd(fd)
		logging.Info(context.Background(), "connection closed",
			zap.Int("fd", fd), zap.Int("user_id", userID))
	}
}

func (s *Server) notifyUserLeft(userID, roomID int) {
	displayName := ""
	if info := s.svc.GetUserInfo(context.Background(), userID); info.OK {
		displayName = info.Data.FullName()
	}
	s.notifyRoomUsers(roomID, wire.MsgUserLeavePush, userLeavePush{
		RoomID:      roomID,
		UserID:      userID,
		DisplayName: displayName,
	})
}
