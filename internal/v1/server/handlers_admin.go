package server

import (
	"context"

	"go.uber.org/zap"

	"github.com/harborchat/harbor/internal/v1/dal"
	"github.com/harborchat/harbor/internal/v1/logging"
	"github.com/harborchat/harbor/internal/v1/service"
	"github.com/harborchat/harbor/internal/v1/wire"
)

// Admin handlers. Each persists through the service first, then
// mirrors the change into the registry, then pushes the update to the
// affected room's members. Registry state is only touched once the
// database accepted the change, so a failed statement leaves live
// state untouched.

func (s *Server) handleCreateRoom(ctx context.Context, fd int, payload []byte) string {
	var req createRoomRequest
	if !s.decode(fd, wire.MsgCreateRoom, payload, &req) {
		return "malformed"
	}
	adminID, ok := s.authenticateAdmin(fd, wire.MsgCreateRoom, req.Token)
	if !ok {
		return "forbidden"
	}
	res := s.svc.CreateRoom(ctx, adminID, req.Name, req.Description, req.MaxUsers)
	if !res.OK {
		return s.reply(fd, wire.MsgCreateRoom, resultEnvelope(res), false)
	}
	s.reg.LoadRoom(res.Data)
	logging.Info(ctx, "room created",
		zap.Int("room_id", res.Data.ID),
		zap.String("name", res.Data.Name),
		zap.Int("admin_id", adminID))
	return s.reply(fd, wire.MsgCreateRoom, roomResponse{
		response: okResponse(),
		Room:     roomToSummary(res.Data, 0),
	}, true)
}

func (s *Server) handleDeleteRoom(ctx context.Context, fd int, payload []byte) string {
	var req roomIDRequest
	if !s.decode(fd, wire.MsgDeleteRoom, payload, &req) {
		return "malformed"
	}
	adminID, ok := s.authenticateAdmin(fd, wire.MsgDeleteRoom, req.Token)
	if !ok {
		return "forbidden"
	}
	res := s.svc.DeleteRoom(ctx, req.RoomID)
	if !res.OK {
		return s.reply(fd, wire.MsgDeleteRoom, resultEnvelope(res), false)
	}

	// Members hear the room go inactive before membership is wiped.
	s.notifyRoomUsers(req.RoomID, wire.MsgRoomStatusChangePush, roomStatusChangePush{
		RoomID:   req.RoomID,
		IsActive: false,
	})
	evicted, _ := s.reg.DeleteRoom(req.RoomID)
	logging.Info(ctx, "room deleted",
		zap.Int("room_id", req.RoomID),
		zap.Int("evicted", len(evicted)),
		zap.Int("admin_id", adminID))
	return s.reply(fd, wire.MsgDeleteRoom, okResponse(), true)
}

func (s *Server) handleSetRoomName(ctx context.Context, fd int, payload []byte) string {
	var req setRoomNameRequest
	if !s.decode(fd, wire.MsgSetRoomName, payload, &req) {
		return "malformed"
	}
	if _, ok := s.authenticateAdmin(fd, wire.MsgSetRoomName, req.Token); !ok {
		return "forbidden"
	}
	res := s.svc.SetRoomName(ctx, req.RoomID, req.Name)
	if !res.OK {
		return s.reply(fd, wire.MsgSetRoomName, resultEnvelope(res), false)
	}
	s.reg.UpdateRoom(req.RoomID, func(r *dal.Room) { r.Name = req.Name })
	status := s.reply(fd, wire.MsgSetRoomName, okResponse(), true)
	s.notifyRoomUsers(req.RoomID, wire.MsgRoomNameUpdatePush, roomNameUpdatePush{
		RoomID: req.RoomID,
		Name:   req.Name,
	})
	return status
}

func (s *Server) handleSetRoomDescription(ctx context.Context, fd int, payload []byte) string {
	var req setRoomDescriptionRequest
	if !s.decode(fd, wire.MsgSetRoomDescription, payload, &req) {
		return "malformed"
	}
	if _, ok := s.authenticateAdmin(fd, wire.MsgSetRoomDescription, req.Token); !ok {
		return "forbidden"
	}
	res := s.svc.SetRoomDescription(ctx, req.RoomID, req.Description)
	if !res.OK {
		return s.reply(fd, wire.MsgSetRoomDescription, resultEnvelope(res), false)
	}
	s.reg.UpdateRoom(req.RoomID, func(r *dal.Room) { r.Description = req.Description })
	status := s.reply(fd, wire.MsgSetRoomDescription, okResponse(), true)
	s.notifyRoomUsers(req.RoomID, wire.MsgRoomDescriptionUpdatePush, roomDescriptionUpdatePush{
		RoomID:      req.RoomID,
		Description: req.Description,
	})
	return status
}

func (s *Server) handleSetRoomMaxUsers(ctx context.Context, fd int, payload []byte) string {
	var req setRoomMaxUsersRequest
	if !s.decode(fd, wire.MsgSetRoomMaxUsers, payload, &req) {
		return "malformed"
	}
	if _, ok := s.authenticateAdmin(fd, wire.MsgSetRoomMaxUsers, req.Token); !ok {
		return "forbidden"
	}
	res := s.svc.SetRoomMaxUsers(ctx, req.RoomID, req.MaxUsers)
	if !res.OK {
		return s.reply(fd, wire.MsgSetRoomMaxUsers, resultEnvelope(res), false)
	}
	// Lowering max below current occupancy only blocks new joins;
	// existing members stay.
	s.reg.UpdateRoom(req.RoomID, func(r *dal.Room) { r.MaxUsers = req.MaxUsers })
	status := s.reply(fd, wire.MsgSetRoomMaxUsers, okResponse(), true)
	s.notifyRoomUsers(req.RoomID, wire.MsgRoomMaxUsersUpdatePush, roomMaxUsersUpdatePush{
		RoomID:   req.RoomID,
		MaxUsers: req.MaxUsers,
	})
	return status
}

func (s *Server) handleSetRoomStatus(ctx context.Context, fd int, payload []byte) string {
	var req setRoomStatusRequest
	if !s.decode(fd, wire.MsgSetRoomStatus, payload, &req) {
		return "malformed"
	}
	adminID, ok := s.authenticateAdmin(fd, wire.MsgSetRoomStatus, req.Token)
	if !ok {
		return "forbidden"
	}
	// A same-status request is a no-op, not an error. Answer before
	// touching the database so the registry maps stay consistent.
	if active, exists := s.reg.IsRoomActive(req.RoomID); exists && active == req.IsActive {
		return s.reply(fd, wire.MsgSetRoomStatus, okResponse(), true)
	}

	res := s.svc.SetRoomStatus(ctx, req.RoomID, req.IsActive)
	if !res.OK {
		return s.reply(fd, wire.MsgSetRoomStatus, resultEnvelope(res), false)
	}

	if req.IsActive {
		if !s.reg.ActivateRoom(req.RoomID) {
			return s.reply(fd, wire.MsgSetRoomStatus,
				failResponse(service.CodeNotFound, "room not found"), false)
		}
		return s.reply(fd, wire.MsgSetRoomStatus, okResponse(), true)
	}

	// Deactivation evicts: members hear the status change, then lose
	// their membership.
	s.notifyRoomUsers(req.RoomID, wire.MsgRoomStatusChangePush, roomStatusChangePush{
		RoomID:   req.RoomID,
		IsActive: false,
	})
	evicted, found := s.reg.DeactivateRoom(req.RoomID)
	if !found {
		return s.reply(fd, wire.MsgSetRoomStatus,
			failResponse(service.CodeNotFound, "room not found"), false)
	}
	logging.Info(ctx, "room deactivated",
		zap.Int("room_id", req.RoomID),
		zap.Int("evicted", len(evicted)),
		zap.Int("admin_id", adminID))
	return s.reply(fd, wire.MsgSetRoomStatus, okResponse(), true)
}
