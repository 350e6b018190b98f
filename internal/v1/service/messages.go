package service

import (
	"context"

	"github.com/harborchat/harbor/internal/v1/dal"
)

// SendMessage persists a chat message. Content-length validation is the
// dispatcher's job; display_name arrives already rebuilt from the user
// record.
func (m *Manager) SendMessage(ctx context.Context, userID, roomID int, content, displayName, sendTime string) Result[struct{}] {
	r := m.store.Messages.SendMessageToRoom(ctx, userID, roomID, content, displayName, sendTime)
	if !r.IsSuccess() {
		return dbFailure[struct{}](r)
	}
	return Ok(struct{}{}, "message sent")
}

// GetMessageHistory returns up to limit messages, newest first.
func (m *Manager) GetMessageHistory(ctx context.Context, roomID, limit int) Result[[]dal.Message] {
	r := m.store.Messages.GetRecentMessages(ctx, roomID, limit)
	if !r.IsSuccess() {
		return dbFailure[[]dal.Message](r)
	}
	return Ok(r.Data, "ok")
}

// GetMessageHistoryByUser narrows history to one sender in a room.
func (m *Manager) GetMessageHistoryByUser(ctx context.Context, userID, roomID, limit int) Result[[]dal.Message] {
	r := m.store.Messages.GetRecentMessagesByUser(ctx, userID, roomID, limit)
	if !r.IsSuccess() {
		return dbFailure[[]dal.Message](r)
	}
	return Ok(r.Data, "ok")
}
