package dal

import (
	"context"

	"github.com/harborchat/harbor/internal/v1/db"
)

// UserStore is the user capability set. Discriminator assignment and
// password verification happen inside the store.
type UserStore interface {
	CreateUser(ctx context.Context, name, email, passwordHash string, isAdmin bool) db.QueryResult[User]
	Authenticate(ctx context.Context, email, password string) db.QueryResult[User]
	ChangePassword(ctx context.Context, email, oldPassword, newPassword string) db.QueryResult[struct{}]
	ChangeDisplayName(ctx context.Context, userID int, newName string) db.QueryResult[struct{}]
	GetUserByID(ctx context.Context, id int) db.QueryResult[User]
	GetUserByEmail(ctx context.Context, email string) db.QueryResult[User]
	GetUserByFullName(ctx context.Context, name, discriminator string) db.QueryResult[User]
}

// RoomStore is the room capability set.
type RoomStore interface {
	CreateRoom(ctx context.Context, creatorID int, name, description string, maxUsers int) db.QueryResult[Room]
	DeleteRoom(ctx context.Context, id int) db.QueryResult[struct{}]
	SetRoomStatus(ctx context.Context, id int, active bool) db.QueryResult[struct{}]
	SetRoomName(ctx context.Context, id int, name string) db.QueryResult[struct{}]
	SetRoomDescription(ctx context.Context, id int, description string) db.QueryResult[struct{}]
	SetRoomMaxUsers(ctx context.Context, id, maxUsers int) db.QueryResult[struct{}]
	GetAllRooms(ctx context.Context) db.QueryResult[[]Room]
	GetActiveRooms(ctx context.Context) db.QueryResult[[]Room]
	GetRoomByID(ctx context.Context, id int) db.QueryResult[Room]
}

// MessageStore is the message capability set.
type MessageStore interface {
	SendMessageToRoom(ctx context.Context, userID, roomID int, content, displayName, sendTime string) db.QueryResult[struct{}]
	GetRecentMessages(ctx context.Context, roomID, maxCount int) db.QueryResult[[]Message]
	GetRecentMessagesByUser(ctx context.Context, userID, roomID, maxCount int) db.QueryResult[[]Message]
}

// Store bundles the three capability sets behind one constructor.
type Store struct {
	Users    UserStore
	Rooms    RoomStore
	Messages MessageStore
}

// New returns a MySQL-backed store over the gateway.
func New(gw *db.Gateway) *Store {
	return &Store{
		Users:    &mysqlUserStore{gw: gw},
		Rooms:    &mysqlRoomStore{gw: gw},
		Messages: &mysqlMessageStore{gw: gw},
	}
}
