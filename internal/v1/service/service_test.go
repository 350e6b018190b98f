package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborchat/harbor/internal/v1/dal"
)

func newTestManager() *Manager {
	return NewManager(dal.NewMemory())
}

func TestRegister_ValidatesInput(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	tests := []struct {
		name            string
		email, pw, user string
	}{
		{"empty email", "", "pw", "alice"},
		{"empty password", "a@x.com", "", "alice"},
		{"empty name", "a@x.com", "pw", ""},
		{"no at sign", "ax.com", "pw", "alice"},
		{"too short", "a@b", "pw", "alice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := m.Register(ctx, tt.email, tt.pw, tt.user)
			assert.False(t, r.OK)
			assert.Equal(t, CodeBadRequest, r.Code)
		})
	}
}

func TestRegisterAndLogin(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	reg := m.Register(ctx, "a@x.com", "pw1", "alice")
	require.True(t, reg.OK)
	assert.Equal(t, CodeSuccess, reg.Code)
	assert.Regexp(t, `^[0-9]{4}$`, reg.Data.Discriminator)

	login := m.Login(ctx, "a@x.com", "pw1")
	require.True(t, login.OK)
	assert.Equal(t, reg.Data.ID, login.Data.ID)
	assert.False(t, login.Data.IsAdmin)
}

func TestRegister_DuplicateEmailIsConflict(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	require.True(t, m.Register(ctx, "a@x.com", "pw1", "alice").OK)

	dup := m.Register(ctx, "a@x.com", "pw2", "bob")
	assert.False(t, dup.OK)
	assert.Equal(t, CodeConflict, dup.Code)
	assert.Equal(t, "email already in use", dup.Message)
}

func TestLogin_Failures(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	require.True(t, m.Register(ctx, "a@x.com", "pw1", "alice").OK)

	wrong := m.Login(ctx, "a@x.com", "bad")
	assert.Equal(t, CodeUnauthorized, wrong.Code)

	missing := m.Login(ctx, "ghost@x.com", "pw1")
	assert.Equal(t, CodeNotFound, missing.Code)

	empty := m.Login(ctx, "", "")
	assert.Equal(t, CodeBadRequest, empty.Code)
}

func TestChangePassword(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	require.True(t, m.Register(ctx, "a@x.com", "old", "alice").OK)

	wrong := m.ChangePassword(ctx, "a@x.com", "bad", "new")
	assert.Equal(t, CodeUnauthorized, wrong.Code)

	ok := m.ChangePassword(ctx, "a@x.com", "old", "new")
	require.True(t, ok.OK)

	assert.True(t, m.Login(ctx, "a@x.com", "new").OK)
	assert.Equal(t, CodeUnauthorized, m.Login(ctx, "a@x.com", "old").Code)
}

func TestChangeDisplayName(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	reg := m.Register(ctx, "a@x.com", "pw", "alice")
	require.True(t, reg.OK)

	renamed := m.ChangeDisplayName(ctx, reg.Data.ID, "wonderland")
	require.True(t, renamed.OK)

	info := m.GetUserInfo(ctx, reg.Data.ID)
	require.True(t, info.OK)
	assert.Equal(t, "wonderland", info.Data.Name)

	missing := m.ChangeDisplayName(ctx, 9999, "nobody")
	assert.Equal(t, CodeNotFound, missing.Code)
}

func TestRoomLifecycle(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	created := m.CreateRoom(ctx, 1, "general", "main hall", 100)
	require.True(t, created.OK)
	roomID := created.Data.ID

	require.True(t, m.SetRoomName(ctx, roomID, "lobby").OK)
	require.True(t, m.SetRoomDescription(ctx, roomID, "entry").OK)
	require.True(t, m.SetRoomMaxUsers(ctx, roomID, 10).OK)

	info := m.GetRoomInfo(ctx, roomID)
	require.True(t, info.OK)
	assert.Equal(t, "lobby", info.Data.Name)
	assert.Equal(t, 10, info.Data.MaxUsers)

	require.True(t, m.SetRoomStatus(ctx, roomID, false).OK)
	active := m.GetActiveRooms(ctx)
	require.True(t, active.OK)
	assert.Empty(t, active.Data)

	all := m.GetAllRooms(ctx)
	require.True(t, all.OK)
	assert.Len(t, all.Data, 1)

	require.True(t, m.DeleteRoom(ctx, roomID).OK)
	assert.Equal(t, CodeNotFound, m.GetRoomInfo(ctx, roomID).Code)

	bad := m.CreateRoom(ctx, 1, "", "", 0)
	assert.Equal(t, CodeBadRequest, bad.Code)
}

func TestMessages(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	require.True(t, m.SendMessage(ctx, 1, 7, "hello", "alice#0001", "2026-08-26 10:00:00").OK)
	require.True(t, m.SendMessage(ctx, 2, 7, "hi", "bob#0002", "2026-08-26 10:00:01").OK)

	history := m.GetMessageHistory(ctx, 7, 50)
	require.True(t, history.OK)
	require.Len(t, history.Data, 2)
	assert.Equal(t, "hi", history.Data[0].Content)

	mine := m.GetMessageHistoryByUser(ctx, 1, 7, 50)
	require.True(t, mine.OK)
	require.Len(t, mine.Data, 1)
	assert.Equal(t, "hello", mine.Data[0].Content)
}
