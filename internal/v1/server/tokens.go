package server

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/harborchat/harbor/internal/v1/dal"
	"github.com/harborchat/harbor/internal/v1/logging"
	"github.com/harborchat/harbor/internal/v1/wire"
)

// Token access levels as seen by the dispatcher.
const (
	accessNormal  = 0
	accessAdmin   = 1
	accessInvalid = 2
)

var tokenCounter atomic.Uint64

// generateToken builds a session token: role prefix, issue time in
// epoch milliseconds, and a rolling counter that disambiguates tokens
// minted within the same millisecond.
func generateToken(isAdmin bool, now time.Time) string {
	role := byte('n')
	if isAdmin {
		role = 'a'
	}
	return fmt.Sprintf("%c_%d_%d", role, now.UnixMilli(), tokenCounter.Add(1)%10000)
}

// establishSession binds a logged-in user to its connection and issues
// a fresh token. If the account was already signed in elsewhere, the
// old connection is kicked first: it gets a zero-length account-kicked
// frame, a best-effort flush, and a scheduled teardown. The new token
// is stored only after the old binding is gone, so the stale session
// can never validate again.
func (s *Server) establishSession(fd int, user dal.User) string {
	oldFd, kicked := s.reg.BindUser(fd, user.ID)
	if kicked {
		s.kickConnection(oldFd, user.ID)
	}

	now := s.now()
	token := generateToken(user.IsAdmin, now)
	s.reg.SetToken(user.ID, token, now.Add(s.tokenTTL))
	return token
}

// kickConnection notifies and tears down a superseded session.
func (s *Server) kickConnection(fd int, userID int) {
	logging.Info(context.Background(), "kicking superseded session",
		zap.Int("fd", fd), zap.Int("user_id", userID))

	if conn, ok := s.reg.GetConnection(fd); ok {
		conn.EnqueueFrame(wire.MsgAccountKicked, nil)
		s.flushKick(fd)
	}
	s.workers.Submit(func() { s.CleanupConnection(fd) })
}

// validateToken checks the caller's session. The token must belong to
// the user bound to this fd, match the stored value exactly, and still
// be within its lifetime. A zero TTL therefore expires tokens the
// moment they are issued.
func (s *Server) validateToken(fd int, token string) (userID int, level int) {
	userID, ok := s.reg.UserForFd(fd)
	if !ok {
		return 0, accessInvalid
	}
	stored, expire, ok := s.reg.TokenFor(userID)
	if !ok || token == "" || stored != token {
		return 0, accessInvalid
	}
	if !s.now().Before(expire) {
		s.reg.RemoveToken(userID)
		return 0, accessInvalid
	}
	if token[0] == 'a' {
		return userID, accessAdmin
	}
	return userID, accessNormal
}
