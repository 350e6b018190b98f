package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harborchat/harbor/internal/v1/dal"
	"github.com/harborchat/harbor/internal/v1/logging"
	"github.com/harborchat/harbor/internal/v1/metrics"
	"github.com/harborchat/harbor/internal/v1/service"
	"github.com/harborchat/harbor/internal/v1/wire"
)

// MaxMessageLength caps chat message content. Frames can physically
// carry more; the dispatcher is the semantic boundary.
const MaxMessageLength = 1000

const (
	msgTokenInvalid  = "Token invalid or expired"
	msgAdminRequired = "admin required"
	msgMalformed     = "malformed request payload"
)

// HandleRequest dispatches one extracted frame. It runs on a worker
// goroutine; everything it touches is either service-layer (blocking
// is fine) or registry state under short lock holds. A panicking
// handler answers with a generic 500 instead of taking the process
// down.
func (s *Server) HandleRequest(fd int, frame wire.Frame) {
	ctx := context.WithValue(context.Background(), logging.CorrelationIDKey, uuid.New().String())
	start := s.now()
	typeName := wire.TypeName(frame.Type)

	defer func() {
		if r := recover(); r != nil {
			logging.Error(ctx, "handler panicked",
				zap.String("type", typeName), zap.Int("fd", fd), zap.Any("panic", r))
			metrics.HandlerRequests.WithLabelValues(typeName, "panic").Inc()
			s.sendFrame(fd, wire.MsgErrorResponse,
				failResponse(service.CodeInternalError, "internal server error"))
		}
		metrics.HandlerDuration.WithLabelValues(typeName).Observe(time.Since(start).Seconds())
	}()

	status := "ok"
	switch frame.Type {
	case wire.MsgRegister:
		status = s.handleRegister(ctx, fd, frame.Payload)
	case wire.MsgChangePassword:
		status = s.handleChangePassword(ctx, fd, frame.Payload)
	case wire.MsgChangeDisplayName:
		status = s.handleChangeDisplayName(ctx, fd, frame.Payload)
	case wire.MsgLogin:
		status = s.handleLogin(ctx, fd, frame.Payload)
	case wire.MsgLogout:
		status = s.handleLogout(ctx, fd, frame.Payload)
	case wire.MsgFetchActiveRooms:
		status = s.handleFetchActiveRooms(ctx, fd, frame.Payload)
	case wire.MsgFetchInactiveRooms:
		status = s.handleFetchInactiveRooms(ctx, fd, frame.Payload)
	case wire.MsgGetRoomInfo:
		status = s.handleGetRoomInfo(ctx, fd, frame.Payload)
	case wire.MsgCreateRoom:
		status = s.handleCreateRoom(ctx, fd, frame.Payload)
	case wire.MsgDeleteRoom:
		status = s.handleDeleteRoom(ctx, fd, frame.Payload)
	case wire.MsgSetRoomName:
		status = s.handleSetRoomName(ctx, fd, frame.Payload)
	case wire.MsgSetRoomDescription:
		status = s.handleSetRoomDescription(ctx, fd, frame.Payload)
	case wire.MsgSetRoomMaxUsers:
		status = s.handleSetRoomMaxUsers(ctx, fd, frame.Payload)
	case wire.MsgSetRoomStatus:
		status = s.handleSetRoomStatus(ctx, fd, frame.Payload)
	case wire.MsgSendMessage:
		status = s.handleSendMessage(ctx, fd, frame.Payload)
	case wire.MsgGetMessageHistory:
		status = s.handleGetMessageHistory(ctx, fd, frame.Payload)
	case wire.MsgJoinRoom:
		status = s.handleJoinRoom(ctx, fd, frame.Payload)
	case wire.MsgLeaveRoom:
		status = s.handleLeaveRoom(ctx, fd, frame.Payload)
	case wire.MsgGetRoomMembers:
		status = s.handleGetRoomMembers(ctx, fd, frame.Payload)
	case wire.MsgGetUserInfo:
		status = s.handleGetUserInfo(ctx, fd, frame.Payload)
	default:
		logging.Warn(ctx, "unknown message type",
			zap.Uint16("type", frame.Type), zap.Int("fd", fd))
		s.sendFrame(fd, wire.MsgErrorResponse,
			failResponse(service.CodeBadRequest, "unknown message type"))
		status = "unknown_type"
	}
	metrics.HandlerRequests.WithLabelValues(typeName, status).Inc()
}

// decode unmarshals a request body. On failure the caller gets its
// matching response type with a 400 body.
func (s *Server) decode(fd int, requestType uint16, payload []byte, v any) bool {
	if err := json.Unmarshal(payload, v); err != nil {
		s.sendFrame(fd, wire.ResponseType(requestType),
			failResponse(service.CodeBadRequest, msgMalformed))
		return false
	}
	return true
}

// authenticate resolves and checks the caller's session for a request
// that needs at least a normal token.
func (s *Server) authenticate(fd int, requestType uint16, token string) (int, bool) {
	userID, level := s.validateToken(fd, token)
	if level == accessInvalid {
		s.sendFrame(fd, wire.ResponseType(requestType),
			failResponse(service.CodeUnauthorized, msgTokenInvalid))
		return 0, false
	}
	return userID, true
}

// authenticateAdmin additionally requires an admin session.
func (s *Server) authenticateAdmin(fd int, requestType uint16, token string) (int, bool) {
	userID, level := s.validateToken(fd, token)
	switch level {
	case accessInvalid:
		s.sendFrame(fd, wire.ResponseType(requestType),
			failResponse(service.CodeUnauthorized, msgTokenInvalid))
		return 0, false
	case accessNormal:
		s.sendFrame(fd, wire.ResponseType(requestType),
			failResponse(service.CodeForbidden, msgAdminRequired))
		return 0, false
	}
	return userID, true
}

// reply sends the request's matching response frame and maps the
// outcome to a metrics status.
func (s *Server) reply(fd int, requestType uint16, body any, ok bool) string {
	s.sendFrame(fd, wire.ResponseType(requestType), body)
	if ok {
		return "ok"
	}
	return "rejected"
}

func resultEnvelope[T any](res service.Result[T]) response {
	if res.OK {
		return okResponse()
	}
	return failResponse(res.Code, res.Message)
}

func (s *Server) handleRegister(ctx context.Context, fd int, payload []byte) string {
	var req registerRequest
	if !s.decode(fd, wire.MsgRegister, payload, &req) {
		return "malformed"
	}
	res := s.svc.Register(ctx, req.Email, req.Password, req.Name)
	if !res.OK {
		return s.reply(fd, wire.MsgRegister, resultEnvelope(res), false)
	}
	return s.reply(fd, wire.MsgRegister, registerResponse{
		response: okResponse(),
		User:     userToPayload(res.Data),
	}, true)
}

func (s *Server) handleChangePassword(ctx context.Context, fd int, payload []byte) string {
	var req changePasswordRequest
	if !s.decode(fd, wire.MsgChangePassword, payload, &req) {
		return "malformed"
	}
	res := s.svc.ChangePassword(ctx, req.Email, req.OldPassword, req.NewPassword)
	return s.reply(fd, wire.MsgChangePassword, resultEnvelope(res), res.OK)
}

func (s *Server) handleChangeDisplayName(ctx context.Context, fd int, payload []byte) string {
	var req changeDisplayNameRequest
	if !s.decode(fd, wire.MsgChangeDisplayName, payload, &req) {
		return "malformed"
	}
	userID, ok := s.authenticate(fd, wire.MsgChangeDisplayName, req.Token)
	if !ok {
		return "unauthorized"
	}
	res := s.svc.ChangeDisplayName(ctx, userID, req.DisplayName)
	return s.reply(fd, wire.MsgChangeDisplayName, resultEnvelope(res), res.OK)
}

func (s *Server) handleLogin(ctx context.Context, fd int, payload []byte) string {
	var req loginRequest
	if !s.decode(fd, wire.MsgLogin, payload, &req) {
		return "malformed"
	}
	res := s.svc.Login(ctx, req.Email, req.Password)
	if !res.OK {
		return s.reply(fd, wire.MsgLogin, resultEnvelope(res), false)
	}
	user := res.Data

	token := s.establishSession(fd, user)

	resp := loginResponse{
		response:    okResponse(),
		Token:       token,
		User:        userToPayload(user),
		ActiveRooms: s.roomSummaries(ctx, false),
	}
	if user.IsAdmin {
		resp.InactiveRooms = s.inactiveRoomSummaries(ctx)
	}
	logging.Info(ctx, "user logged in",
		zap.Int("user_id", user.ID),
		zap.String("email", logging.RedactEmail(user.Email)),
		zap.Bool("is_admin", user.IsAdmin))
	return s.reply(fd, wire.MsgLogin, resp, true)
}

func (s *Server) handleLogout(ctx context.Context, fd int, payload []byte) string {
	var req tokenRequest
	if !s.decode(fd, wire.MsgLogout, payload, &req) {
		return "malformed"
	}
	userID, ok := s.authenticate(fd, wire.MsgLogout, req.Token)
	if !ok {
		return "unauthorized"
	}
	s.reg.RemoveToken(userID)
	status := s.reply(fd, wire.MsgLogout, okResponse(), true)
	// Flush the reply before teardown; a scheduled cleanup can close
	// the fd before the loop drains the buffer.
	s.flushKick(fd)
	s.workers.Submit(func() { s.CleanupConnection(fd) })
	logging.Info(ctx, "user logged out", zap.Int("user_id", userID))
	return status
}

func (s *Server) handleFetchActiveRooms(ctx context.Context, fd int, payload []byte) string {
	var req tokenRequest
	if !s.decode(fd, wire.MsgFetchActiveRooms, payload, &req) {
		return "malformed"
	}
	if _, ok := s.authenticate(fd, wire.MsgFetchActiveRooms, req.Token); !ok {
		return "unauthorized"
	}
	return s.reply(fd, wire.MsgFetchActiveRooms, roomListResponse{
		response: okResponse(),
		Rooms:    s.roomSummaries(ctx, false),
	}, true)
}

func (s *Server) handleFetchInactiveRooms(ctx context.Context, fd int, payload []byte) string {
	var req tokenRequest
	if !s.decode(fd, wire.MsgFetchInactiveRooms, payload, &req) {
		return "malformed"
	}
	if _, ok := s.authenticateAdmin(fd, wire.MsgFetchInactiveRooms, req.Token); !ok {
		return "forbidden"
	}
	return s.reply(fd, wire.MsgFetchInactiveRooms, roomListResponse{
		response: okResponse(),
		Rooms:    s.inactiveRoomSummaries(ctx),
	}, true)
}

func (s *Server) handleGetRoomInfo(ctx context.Context, fd int, payload []byte) string {
	var req roomIDRequest
	if !s.decode(fd, wire.MsgGetRoomInfo, payload, &req) {
		return "malformed"
	}
	if _, ok := s.authenticate(fd, wire.MsgGetRoomInfo, req.Token); !ok {
		return "unauthorized"
	}
	res := s.svc.GetRoomInfo(ctx, req.RoomID)
	if !res.OK {
		return s.reply(fd, wire.MsgGetRoomInfo, resultEnvelope(res), false)
	}
	return s.reply(fd, wire.MsgGetRoomInfo, roomResponse{
		response: okResponse(),
		Room:     roomToSummary(res.Data, s.reg.MemberCount(res.Data.ID)),
	}, true)
}

func (s *Server) handleSendMessage(ctx context.Context, fd int, payload []byte) string {
	var req sendMessageRequest
	if !s.decode(fd, wire.MsgSendMessage, payload, &req) {
		return "malformed"
	}
	userID, ok := s.authenticate(fd, wire.MsgSendMessage, req.Token)
	if !ok {
		return "unauthorized"
	}
	if req.Message == "" {
		return s.reply(fd, wire.MsgSendMessage,
			failResponse(service.CodeBadRequest, "message is empty"), false)
	}
	if len(req.Message) > MaxMessageLength {
		return s.reply(fd, wire.MsgSendMessage,
			failResponse(service.CodeBadRequest, "message too long"), false)
	}
	roomID, inRoom := s.reg.CurrentRoom(userID)
	if !inRoom {
		return s.reply(fd, wire.MsgSendMessage,
			failResponse(service.CodeBadRequest, "not in a room"), false)
	}
	info := s.svc.GetUserInfo(ctx, userID)
	if !info.OK {
		return s.reply(fd, wire.MsgSendMessage, resultEnvelope(info), false)
	}
	displayName := info.Data.FullName()

	now := s.now()
	res := s.svc.SendMessage(ctx, userID, roomID, req.Message, displayName,
		now.Format(time.DateTime))
	if !res.OK {
		return s.reply(fd, wire.MsgSendMessage, resultEnvelope(res), false)
	}

	status := s.reply(fd, wire.MsgSendMessage, okResponse(), true)
	s.notifyRoomUsers(roomID, wire.MsgChatMessagePush, chatMessagePush{
		DisplayName: displayName,
		Message:     req.Message,
		Timestamp:   now.Unix(),
	})
	return status
}

func (s *Server) handleGetMessageHistory(ctx context.Context, fd int, payload []byte) string {
	var req tokenRequest
	if !s.decode(fd, wire.MsgGetMessageHistory, payload, &req) {
		return "malformed"
	}
	userID, ok := s.authenticate(fd, wire.MsgGetMessageHistory, req.Token)
	if !ok {
		return "unauthorized"
	}
	roomID, inRoom := s.reg.CurrentRoom(userID)
	if !inRoom {
		return s.reply(fd, wire.MsgGetMessageHistory,
			failResponse(service.CodeBadRequest, "not in a room"), false)
	}
	res := s.svc.GetMessageHistory(ctx, roomID, dal.DefaultHistoryLimit)
	if !res.OK {
		return s.reply(fd, wire.MsgGetMessageHistory, resultEnvelope(res), false)
	}
	return s.reply(fd, wire.MsgGetMessageHistory, messageHistoryResponse{
		response: okResponse(),
		Messages: res.Data,
	}, true)
}

func (s *Server) handleJoinRoom(ctx context.Context, fd int, payload []byte) string {
	var req roomIDRequest
	if !s.decode(fd, wire.MsgJoinRoom, payload, &req) {
		return "malformed"
	}
	userID, ok := s.authenticate(fd, wire.MsgJoinRoom, req.Token)
	if !ok {
		return "unauthorized"
	}

	room, status := s.reg.JoinRoom(userID, req.RoomID)
	switch status {
	case JoinAlreadyInRoom:
		return s.reply(fd, wire.MsgJoinRoom,
			failResponse(service.CodeBadRequest, "already in a room"), false)
	case JoinRoomNotFound:
		return s.reply(fd, wire.MsgJoinRoom,
			failResponse(service.CodeNotFound, "room not found"), false)
	case JoinRoomFull:
		return s.reply(fd, wire.MsgJoinRoom,
			failResponse(service.CodeBadRequest, "room full"), false)
	}

	displayName := ""
	if info := s.svc.GetUserInfo(ctx, userID); info.OK {
		displayName = info.Data.FullName()
	}

	result := s.reply(fd, wire.MsgJoinRoom, roomResponse{
		response: okResponse(),
		Room:     roomToSummary(room, room.CurrentUsers),
	}, true)

	s.notifyRoomUsers(req.RoomID, wire.MsgUserJoinPush, userJoinPush{
		RoomID:      req.RoomID,
		UserID:      userID,
		DisplayName: displayName,
	})
	logging.Info(ctx, "user joined room",
		zap.Int("user_id", userID), zap.Int("room_id", req.RoomID))
	return result
}

func (s *Server) handleLeaveRoom(ctx context.Context, fd int, payload []byte) string {
	var req tokenRequest
	if !s.decode(fd, wire.MsgLeaveRoom, payload, &req) {
		return "malformed"
	}
	userID, ok := s.authenticate(fd, wire.MsgLeaveRoom, req.Token)
	if !ok {
		return "unauthorized"
	}
	roomID, inRoom := s.reg.LeaveRoom(userID)
	if !inRoom {
		return s.reply(fd, wire.MsgLeaveRoom,
			failResponse(service.CodeBadRequest, "not in a room"), false)
	}
	status := s.reply(fd, wire.MsgLeaveRoom, okResponse(), true)
	s.notifyUserLeft(userID, roomID)
	logging.Info(ctx, "user left room",
		zap.Int("user_id", userID), zap.Int("room_id", roomID))
	return status
}

func (s *Server) handleGetRoomMembers(ctx context.Context, fd int, payload []byte) string {
	var req roomIDRequest
	if !s.decode(fd, wire.MsgGetRoomMembers, payload, &req) {
		return "malformed"
	}
	if _, ok := s.authenticate(fd, wire.MsgGetRoomMembers, req.Token); !ok {
		return "unauthorized"
	}
	if active, exists := s.reg.IsRoomActive(req.RoomID); !exists || !active {
		return s.reply(fd, wire.MsgGetRoomMembers,
			failResponse(service.CodeNotFound, "room not found"), false)
	}
	members := make([]userPayload, 0)
	for _, id := range s.reg.RoomMembers(req.RoomID) {
		if info := s.svc.GetUserInfo(ctx, id); info.OK {
			members = append(members, userToPayload(info.Data))
		}
	}
	return s.reply(fd, wire.MsgGetRoomMembers, roomMembersResponse{
		response: okResponse(),
		RoomID:   req.RoomID,
		Members:  members,
	}, true)
}

func (s *Server) handleGetUserInfo(ctx context.Context, fd int, payload []byte) string {
	var req userInfoRequest
	if !s.decode(fd, wire.MsgGetUserInfo, payload, &req) {
		return "malformed"
	}
	if _, ok := s.authenticate(fd, wire.MsgGetUserInfo, req.Token); !ok {
		return "unauthorized"
	}
	res := s.svc.GetUserInfo(ctx, req.UserID)
	if !res.OK {
		return s.reply(fd, wire.MsgGetUserInfo, resultEnvelope(res), false)
	}
	return s.reply(fd, wire.MsgGetUserInfo, userInfoResponse{
		response: okResponse(),
		User:     userToPayload(res.Data),
	}, true)
}

// roomSummaries builds the client-facing room list with live occupancy
// overlaid. all=false returns active rooms only.
func (s *Server) roomSummaries(ctx context.Context, all bool) []roomSummary {
	var res service.Result[[]dal.Room]
	if all {
		res = s.svc.GetAllRooms(ctx)
	} else {
		res = s.svc.GetActiveRooms(ctx)
	}
	if !res.OK {
		return []roomSummary{}
	}
	out := make([]roomSummary, 0, len(res.Data))
	for _, room := range res.Data {
		out = append(out, roomToSummary(room, s.reg.MemberCount(room.ID)))
	}
	return out
}

func (s *Server) inactiveRoomSummaries(ctx context.Context) []roomSummary {
	res := s.svc.GetAllRooms(ctx)
	if !res.OK {
		return []roomSummary{}
	}
	out := make([]roomSummary, 0)
	for _, room := range res.Data {
		if !room.IsActive {
			out = append(out, roomToSummary(room, 0))
		}
	}
	return out
}
