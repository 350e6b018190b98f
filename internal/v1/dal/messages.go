package dal

import (
	"context"

	"github.com/harborchat/harbor/internal/v1/db"
	"github.com/harborchat/harbor/internal/v1/metrics"
)

// DefaultHistoryLimit caps a history fetch when the caller passes no
// explicit bound.
const DefaultHistoryLimit = 50

type mysqlMessageStore struct {
	gw *db.Gateway
}

func (s *mysqlMessageStore) SendMessageToRoom(ctx context.Context, userID, roomID int, content, displayName, sendTime string) db.QueryResult[struct{}] {
	r := s.gw.Execute(ctx,
		"INSERT INTO messages (user_id, room_id, content, display_name, send_time) VALUES (?, ?, ?, ?, ?)",
		db.Int(userID), db.Int(roomID), db.Str(content), db.Str(displayName), db.Str(sendTime))
	if !r.IsSuccess() {
		return db.Fail[struct{}](r)
	}
	metrics.MessagesPersisted.Inc()
	return db.Success(struct{}{})
}

func (s *mysqlMessageStore) GetRecentMessages(ctx context.Context, roomID, maxCount int) db.QueryResult[[]Message] {
	if maxCount <= 0 {
		maxCount = DefaultHistoryLimit
	}
	r := s.gw.Execute(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE room_id = ? ORDER BY send_time DESC LIMIT ?",
		db.Int(roomID), db.Int(maxCount))
	return rowSlice(r, messageFromRow)
}

func (s *mysqlMessageStore) GetRecentMessagesByUser(ctx context.Context, userID, roomID, maxCount int) db.QueryResult[[]Message] {
	if maxCount <= 0 {
		maxCount = DefaultHistoryLimit
	}
	r := s.gw.Execute(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE user_id = ? AND room_id = ? ORDER BY send_time DESC LIMIT ?",
		db.Int(userID), db.Int(roomID), db.Int(maxCount))
	return rowSlice(r, messageFromRow)
}
