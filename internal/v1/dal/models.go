// Package dal holds the typed data-access layer over the query gateway:
// user, room and message stores backed by MySQL, plus in-memory
// implementations for tests.
package dal

// User is an account row. The password hash never leaves the store.
type User struct {
	ID            int    `json:"id"`
	Discriminator string `json:"discriminator"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	IsAdmin       bool   `json:"is_admin"`
	CreatedTime   string `json:"created_time"`
}

// FullName renders the unique display handle.
func (u User) FullName() string {
	return u.Name + "#" + u.Discriminator
}

// Room is a chat room row. CurrentUsers is live occupancy filled in by
// the registry, not a persisted column.
type Room struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	CreatorID    int    `json:"creator_id"`
	MaxUsers     int    `json:"max_users"`
	CurrentUsers int    `json:"current_users"`
	IsActive     bool   `json:"is_active"`
	CreatedTime  string `json:"created_time"`
}

// Message is a persisted chat message. DisplayName snapshots the
// sender's name#discriminator at send time.
type Message struct {
	ID          int    `json:"message_id"`
	UserID      int    `json:"user_id"`
	RoomID      int    `json:"room_id"`
	Content     string `json:"content"`
	DisplayName string `json:"display_name"`
	SendTime    string `json:"send_time"`
}
