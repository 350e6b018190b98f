package dal

import (
	"context"
	"sync"
	"time"

	"github.com/harborchat/harbor/internal/v1/auth"
	"github.com/harborchat/harbor/internal/v1/db"
)

// memoryState is the shared backing for the in-memory stores. It mirrors
// the MySQL semantics closely enough to stand in for them in tests.
type memoryState struct {
	mu sync.Mutex

	users      map[int]User
	hashes     map[int]string
	nextUserID int

	rooms      map[int]Room
	nextRoomID int

	messages      []Message
	nextMessageID int

	intn func(int) int
	now  func() time.Time
}

// NewMemory returns an in-memory store with the same capability surface
// as the MySQL-backed one.
func NewMemory() *Store {
	state := &memoryState{
		users:         make(map[int]User),
		hashes:        make(map[int]string),
		nextUserID:    1,
		rooms:         make(map[int]Room),
		nextRoomID:    1,
		nextMessageID: 1,
		now:           time.Now,
	}
	return &Store{
		Users:    &memoryUserStore{state},
		Rooms:    &memoryRoomStore{state},
		Messages: &memoryMessageStore{state},
	}
}

func (s *memoryState) timestamp() string {
	return s.now().Format(time.DateTime)
}

type memoryUserStore struct{ s *memoryState }

func (m *memoryUserStore) CreateUser(_ context.Context, name, email, passwordHash string, isAdmin bool) db.QueryResult[User] {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	used := make(map[string]struct{})
	for _, u := range m.s.users {
		if u.Email == email {
			return db.NotFoundSub[User](db.SubEmailTaken)
		}
		if u.Name == name {
			used[u.Discriminator] = struct{}{}
		}
	}
	disc, ok := pickDiscriminator(used, m.s.intn)
	if !ok {
		return db.NotFoundSub[User](db.SubNameExhausted)
	}

	user := User{
		ID:            m.s.nextUserID,
		Discriminator: disc,
		Name:          name,
		Email:         email,
		IsAdmin:       isAdmin,
		CreatedTime:   m.s.timestamp(),
	}
	m.s.users[user.ID] = user
	m.s.hashes[user.ID] = passwordHash
	m.s.nextUserID++
	return db.Success(user)
}

func (m *memoryUserStore) Authenticate(_ context.Context, email, password string) db.QueryResult[User] {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	for id, u := range m.s.users {
		if u.Email == email {
			if !auth.VerifyPassword(password, m.s.hashes[id]) {
				return db.NotFoundSub[User](db.SubWrongPassword)
			}
			return db.Success(u)
		}
	}
	return db.NotFound[User]()
}

func (m *memoryUserStore) ChangePassword(_ context.Context, email, oldPassword, newPassword string) db.QueryResult[struct{}] {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	for id, u := range m.s.users {
		if u.Email == email {
			if !auth.VerifyPassword(oldPassword, m.s.hashes[id]) {
				return db.NotFoundSub[struct{}](db.SubWrongPassword)
			}
			hash, err := auth.HashPassword(newPassword)
			if err != nil {
				return db.InternalError[struct{}](err.Error())
			}
			m.s.hashes[id] = hash
			return db.Success(struct{}{})
		}
	}
	return db.NotFound[struct{}]()
}

func (m *memoryUserStore) ChangeDisplayName(_ context.Context, userID int, newName string) db.QueryResult[struct{}] {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	user, ok := m.s.users[userID]
	if !ok {
		return db.NotFound[struct{}]()
	}

	used := make(map[string]struct{})
	for id, u := range m.s.users {
		if id != userID && u.Name == newName {
			used[u.Discriminator] = struct{}{}
		}
	}
	disc, picked := pickDiscriminator(used, m.s.intn)
	if !picked {
		return db.NotFoundSub[struct{}](db.SubNameExhausted)
	}

	user.Name = newName
	user.Discriminator = disc
	m.s.users[userID] = user
	return db.Success(struct{}{})
}

func (m *memoryUserStore) GetUserByID(_ context.Context, id int) db.QueryResult[User] {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if u, ok := m.s.users[id]; ok {
		return db.Success(u)
	}
	return db.NotFound[User]()
}

func (m *memoryUserStore) GetUserByEmail(_ context.Context, email string) db.QueryResult[User] {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, u := range m.s.users {
		if u.Email == email {
			return db.Success(u)
		}
	}
	return db.NotFound[User]()
}

func (m *memoryUserStore) GetUserByFullName(_ context.Context, name, discriminator string) db.QueryResult[User] {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, u := range m.s.users {
		if u.Name == name && u.Discriminator == discriminator {
			return db.Success(u)
		}
	}
	return db.NotFound[User]()
}

type memoryRoomStore struct{ s *memoryState }

func (m *memoryRoomStore) CreateRoom(_ context.Context, creatorID int, name, description string, maxUsers int) db.QueryResult[Room] {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	room := Room{
		ID:          m.s.nextRoomID,
		Name:        name,
		Description: description,
		CreatorID:   creatorID,
		MaxUsers:    maxUsers,
		IsActive:    true,
		CreatedTime: m.s.timestamp(),
	}
	m.s.rooms[room.ID] = room
	m.s.nextRoomID++
	return db.Success(room)
}

func (m *memoryRoomStore) DeleteRoom(_ context.Context, id int) db.QueryResult[struct{}] {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	delete(m.s.rooms, id)
	return db.Success(struct{}{})
}

func (m *memoryRoomStore) SetRoomStatus(_ context.Context, id int, active bool) db.QueryResult[struct{}] {
	return m.update(id, func(r *Room) { r.IsActive = active })
}

func (m *memoryRoomStore) SetRoomName(_ context.Context, id int, name string) db.QueryResult[struct{}] {
	return m.update(id, func(r *Room) { r.Name = name })
}

func (m *memoryRoomStore) SetRoomDescription(_ context.Context, id int, description string) db.QueryResult[struct{}] {
	return m.update(id, func(r *Room) { r.Description = description })
}

func (m *memoryRoomStore) SetRoomMaxUsers(_ context.Context, id, maxUsers int) db.QueryResult[struct{}] {
	return m.update(id, func(r *Room) { r.MaxUsers = maxUsers })
}

func (m *memoryRoomStore) update(id int, fn func(*Room)) db.QueryResult[struct{}] {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	room, ok := m.s.rooms[id]
	if !ok {
		return db.Success(struct{}{})
	}
	fn(&room)
	m.s.rooms[id] = room
	return db.Success(struct{}{})
}

func (m *memoryRoomStore) GetAllRooms(_ context.Context) db.QueryResult[[]Room] {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return db.Success(m.collect(func(Room) bool { return true }))
}

func (m *memoryRoomStore) GetActiveRooms(_ context.Context) db.QueryResult[[]Room] {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return db.Success(m.collect(func(r Room) bool { return r.IsActive }))
}

// collect returns rooms newest first, matching the SQL store's ORDER BY id DESC.
func (m *memoryRoomStore) collect(keep func(Room) bool) []Room {
	out := []Room{}
	for id := m.s.nextRoomID - 1; id >= 1; id-- {
		if r, ok := m.s.rooms[id]; ok && keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func (m *memoryRoomStore) GetRoomByID(_ context.Context, id int) db.QueryResult[Room] {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if r, ok := m.s.rooms[id]; ok {
		return db.Success(r)
	}
	return db.NotFound[Room]()
}

type memoryMessageStore struct{ s *memoryState }

func (m *memoryMessageStore) SendMessageToRoom(_ context.Context, userID, roomID int, content, displayName, sendTime string) db.QueryResult[struct{}] {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	m.s.messages = append(m.s.messages, Message{
		ID:          m.s.nextMessageID,
		UserID:      userID,
		RoomID:      roomID,
		Content:     content,
		DisplayName: displayName,
		SendTime:    sendTime,
	})
	m.s.nextMessageID++
	return db.Success(struct{}{})
}

func (m *memoryMessageStore) GetRecentMessages(_ context.Context, roomID, maxCount int) db.QueryResult[[]Message] {
	return m.recent(maxCount, func(msg Message) bool { return msg.RoomID == roomID })
}

func (m *memoryMessageStore) GetRecentMessagesByUser(_ context.Context, userID, roomID, maxCount int) db.QueryResult[[]Message] {
	return m.recent(maxCount, func(msg Message) bool {
		return msg.RoomID == roomID && msg.UserID == userID
	})
}

// recent walks backwards so results come newest first.
func (m *memoryMessageStore) recent(maxCount int, keep func(Message) bool) db.QueryResult[[]Message] {
	if maxCount <= 0 {
		maxCount = DefaultHistoryLimit
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	out := []Message{}
	for i := len(m.s.messages) - 1; i >= 0 && len(out) < maxCount; i-- {
		if keep(m.s.messages[i]) {
			out = append(out, m.s.messages[i])
		}
	}
	return db.Success(out)
}
