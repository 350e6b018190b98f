package service

import (
	"context"

	"github.com/harborchat/harbor/internal/v1/dal"
)

// CreateRoom inserts a room and returns the stored row.
func (m *Manager) CreateRoom(ctx context.Context, creatorID int, name, description string, maxUsers int) Result[dal.Room] {
	if name == "" {
		return Fail[dal.Room](CodeBadRequest, "room name is required")
	}
	r := m.store.Rooms.CreateRoom(ctx, creatorID, name, description, maxUsers)
	if !r.IsSuccess() {
		return dbFailure[dal.Room](r)
	}
	return Ok(r.Data, "room created")
}

func (m *Manager) DeleteRoom(ctx context.Context, roomID int) Result[struct{}] {
	r := m.store.Rooms.DeleteRoom(ctx, roomID)
	if !r.IsSuccess() {
		return dbFailure[struct{}](r)
	}
	return Ok(struct{}{}, "room deleted")
}

func (m *Manager) SetRoomStatus(ctx context.Context, roomID int, active bool) Result[struct{}] {
	r := m.store.Rooms.SetRoomStatus(ctx, roomID, active)
	if !r.IsSuccess() {
		return dbFailure[struct{}](r)
	}
	return Ok(struct{}{}, "room status updated")
}

func (m *Manager) SetRoomName(ctx context.Context, roomID int, name string) Result[struct{}] {
	if name == "" {
		return Fail[struct{}](CodeBadRequest, "room name is required")
	}
	r := m.store.Rooms.SetRoomName(ctx, roomID, name)
	if !r.IsSuccess() {
		return dbFailure[struct{}](r)
	}
	return Ok(struct{}{}, "room name updated")
}

func (m *Manager) SetRoomDescription(ctx context.Context, roomID int, description string) Result[struct{}] {
	r := m.store.Rooms.SetRoomDescription(ctx, roomID, description)
	if !r.IsSuccess() {
		return dbFailure[struct{}](r)
	}
	return Ok(struct{}{}, "room description updated")
}

func (m *Manager) SetRoomMaxUsers(ctx context.Context, roomID, maxUsers int) Result[struct{}] {
	if maxUsers < 0 {
		return Fail[struct{}](CodeBadRequest, "max users must not be negative")
	}
	r := m.store.Rooms.SetRoomMaxUsers(ctx, roomID, maxUsers)
	if !r.IsSuccess() {
		return dbFailure[struct{}](r)
	}
	return Ok(struct{}{}, "room capacity updated")
}

func (m *Manager) GetActiveRooms(ctx context.Context) Result[[]dal.Room] {
	r := m.store.Rooms.GetActiveRooms(ctx)
	if !r.IsSuccess() {
		return dbFailure[[]dal.Room](r)
	}
	return Ok(r.Data, "ok")
}

func (m *Manager) GetAllRooms(ctx context.Context) Result[[]dal.Room] {
	r := m.store.Rooms.GetAllRooms(ctx)
	if !r.IsSuccess() {
		return dbFailure[[]dal.Room](r)
	}
	return Ok(r.Data, "ok")
}

func (m *Manager) GetRoomInfo(ctx context.Context, roomID int) Result[dal.Room] {
	r := m.store.Rooms.GetRoomByID(ctx, roomID)
	if r.IsNotFound() {
		return Fail[dal.Room](CodeNotFound, "room not found")
	}
	if !r.IsSuccess() {
		return dbFailure[dal.Room](r)
	}
	return Ok(r.Data, "ok")
}
