package server

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborchat/harbor/internal/v1/wire"
)

func TestGenerateToken_Format(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	normal := generateToken(false, now)
	assert.Regexp(t, regexp.MustCompile(`^n_\d+_\d{1,4}$`), normal)

	admin := generateToken(true, now)
	assert.Regexp(t, regexp.MustCompile(`^a_\d+_\d{1,4}$`), admin)

	assert.NotEqual(t, normal, admin, "counter advances per token")
}

func TestGenerateToken_DistinctWithinMillisecond(t *testing.T) {
	now := time.Now()
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		tok := generateToken(false, now)
		_, dup := seen[tok]
		require.False(t, dup, "duplicate token %s", tok)
		seen[tok] = struct{}{}
	}
}

func TestEstablishSession_IssuesValidToken(t *testing.T) {
	h := newHarness(t, 30*time.Minute)
	user := h.createUser("alice@example.com", "alice", false)
	h.connect(1)

	token := h.srv.establishSession(1, user)

	uid, level := h.srv.validateToken(1, token)
	assert.Equal(t, user.ID, uid)
	assert.Equal(t, accessNormal, level)
}

func TestEstablishSession_AdminTokenCarriesRole(t *testing.T) {
	h := newHarness(t, 30*time.Minute)
	admin := h.createUser("root@example.com", "root", true)
	h.connect(1)

	token := h.srv.establishSession(1, admin)

	require.Equal(t, byte('a'), token[0])
	_, level := h.srv.validateToken(1, token)
	assert.Equal(t, accessAdmin, level)
}

func TestValidateToken_Rejections(t *testing.T) {
	h := newHarness(t, 30*time.Minute)
	user := h.createUser("alice@example.com", "alice", false)
	h.connect(1)
	token := h.srv.establishSession(1, user)

	tests := []struct {
		name  string
		fd    int
		token string
	}{
		{"wrong fd", 2, token},
		{"empty token", 1, ""},
		{"tampered token", 1, token + "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, level := h.srv.validateToken(tt.fd, tt.token)
			assert.Equal(t, accessInvalid, level)
		})
	}
}

func TestValidateToken_ExpiryHonoursClock(t *testing.T) {
	h := newHarness(t, 30*time.Minute)
	user := h.createUser("alice@example.com", "alice", false)
	h.connect(1)
	token := h.srv.establishSession(1, user)

	h.clock.Advance(29 * time.Minute)
	_, level := h.srv.validateToken(1, token)
	require.Equal(t, accessNormal, level)

	h.clock.Advance(time.Minute)
	_, level = h.srv.validateToken(1, token)
	assert.Equal(t, accessInvalid, level)

	// Expiry removed the entry; a rewound clock cannot revive it.
	h.clock.Advance(-10 * time.Minute)
	_, level = h.srv.validateToken(1, token)
	assert.Equal(t, accessInvalid, level)
}

func TestValidateToken_ZeroTTLExpiresImmediately(t *testing.T) {
	h := newHarness(t, 0)
	user := h.createUser("alice@example.com", "alice", false)
	h.connect(1)
	token := h.srv.establishSession(1, user)

	_, level := h.srv.validateToken(1, token)
	assert.Equal(t, accessInvalid, level)
}

func TestEstablishSession_KicksOldConnection(t *testing.T) {
	h := newHarness(t, 30*time.Minute)
	user := h.createUser("alice@example.com", "alice", false)
	oldConn := h.connect(1)
	oldToken := h.srv.establishSession(1, user)

	h.connect(2)
	newToken := h.srv.establishSession(2, user)

	// The superseded connection got the zero-length kick frame and an
	// immediate flush attempt.
	frames := h.frames(oldConn)
	require.Len(t, frames, 1)
	assert.Equal(t, wire.MsgAccountKicked, frames[0].Type)
	assert.Empty(t, frames[0].Payload)
	assert.Contains(t, h.flushedFds(), 1)

	// Teardown of the old fd is scheduled on the pool.
	require.Eventually(t, func() bool {
		_, ok := h.srv.reg.GetConnection(1)
		return !ok
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, h.closedFds(), 1)

	// Old binding is gone before the new token works; the stale token
	// never validates again.
	_, level := h.srv.validateToken(1, oldToken)
	assert.Equal(t, accessInvalid, level)
	uid, level := h.srv.validateToken(2, newToken)
	assert.Equal(t, user.ID, uid)
	assert.Equal(t, accessNormal, level)
}

func TestSessions_TokenPerUserBijection(t *testing.T) {
	h := newHarness(t, 30*time.Minute)
	alice := h.createUser("alice@example.com", "alice", false)
	bob := h.createUser("bob@example.com", "bob", false)
	h.connect(1)
	h.connect(2)

	first := h.srv.establishSession(1, alice)
	h.srv.establishSession(2, bob)

	// Re-login replaces alice's token rather than stacking a second.
	h.connect(3)
	second := h.srv.establishSession(3, alice)
	assert.NotEqual(t, first, second)
	assert.Equal(t, 2, h.srv.reg.TokenCount())
}

func TestStartSweeper_RemovesExpiredSessions(t *testing.T) {
	store := newHarness(t, time.Minute)
	srv := New(Options{
		Service:       store.srv.svc,
		Workers:       store.srv.workers,
		TokenTTL:      time.Minute,
		SweepInterval: 10 * time.Millisecond,
	})
	srv.reg.SetToken(1, "n_1_1", time.Now().Add(-time.Minute))
	srv.StartSweeper()
	defer srv.Stop()

	require.Eventually(t, func() bool {
		return srv.reg.TokenCount() == 0
	}, time.Second, 5*time.Millisecond)
}
