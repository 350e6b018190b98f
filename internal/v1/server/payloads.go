package server

import (
	"github.com/harborchat/harbor/internal/v1/dal"
	"github.com/harborchat/harbor/internal/v1/service"
)

// Request bodies. Every authenticated request carries the bearer token
// in its JSON payload; the frame type selects the handler.

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	Email       string `json:"email"`
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type changeDisplayNameRequest struct {
	Token       string `json:"token"`
	DisplayName string `json:"display_name"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type roomIDRequest struct {
	Token  string `json:"token"`
	RoomID int    `json:"room_id"`
}

type createRoomRequest struct {
	Token       string `json:"token"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MaxUsers    int    `json:"max_users"`
}

type setRoomStatusRequest struct {
	Token    string `json:"token"`
	RoomID   int    `json:"room_id"`
	IsActive bool   `json:"is_active"`
}

type setRoomNameRequest struct {
	Token  string `json:"token"`
	RoomID int    `json:"room_id"`
	Name   string `json:"name"`
}

type setRoomDescriptionRequest struct {
	Token       string `json:"token"`
	RoomID      int    `json:"room_id"`
	Description string `json:"description"`
}

type setRoomMaxUsersRequest struct {
	Token    string `json:"token"`
	RoomID   int    `json:"room_id"`
	MaxUsers int    `json:"max_users"`
}

type sendMessageRequest struct {
	Token   string `json:"token"`
	Message string `json:"message"`
}

type userInfoRequest struct {
	Token  string `json:"token"`
	UserID int    `json:"user_id"`
}

// response is the common envelope every reply shares. Handler-specific
// data rides alongside via embedding.
type response struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

func okResponse() response {
	return response{Success: true, Code: 200}
}

func failResponse(code service.ErrorCode, message string) response {
	return response{Success: false, Code: int(code), Message: message}
}

// userPayload is the client-facing shape of an account.
type userPayload struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Discriminator string `json:"discriminator"`
	DisplayName   string `json:"display_name"`
	Email         string `json:"email"`
	IsAdmin       bool   `json:"is_admin"`
	CreatedTime   string `json:"created_time"`
}

func userToPayload(u dal.User) userPayload {
	return userPayload{
		ID:            u.ID,
		Name:          u.Name,
		Discriminator: u.Discriminator,
		DisplayName:   u.FullName(),
		Email:         u.Email,
		IsAdmin:       u.IsAdmin,
		CreatedTime:   u.CreatedTime,
	}
}

// roomSummary is the client-facing shape of a room; current_users is
// the live registry occupancy, not a persisted column.
type roomSummary struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	CreatorID    int    `json:"creator_id"`
	MaxUsers     int    `json:"max_users"`
	CurrentUsers int    `json:"current_users"`
	IsActive     bool   `json:"is_active"`
	CreatedTime  string `json:"created_time"`
}

func roomToSummary(r dal.Room, currentUsers int) roomSummary {
	return roomSummary{
		ID:           r.ID,
		Name:         r.Name,
		Description:  r.Description,
		CreatorID:    r.CreatorID,
		MaxUsers:     r.MaxUsers,
		CurrentUsers: currentUsers,
		IsActive:     r.IsActive,
		CreatedTime:  r.CreatedTime,
	}
}

type registerResponse struct {
	response
	User userPayload `json:"user"`
}

type loginResponse struct {
	response
	Token         string        `json:"token"`
	User          userPayload   `json:"user"`
	ActiveRooms   []roomSummary `json:"active_rooms"`
	InactiveRooms []roomSummary `json:"inactive_rooms,omitempty"`
}

type roomResponse struct {
	response
	Room roomSummary `json:"room"`
}

type roomListResponse struct {
	response
	Rooms []roomSummary `json:"rooms"`
}

type roomMembersResponse struct {
	response
	RoomID  int           `json:"room_id"`
	Members []userPayload `json:"members"`
}

type userInfoResponse struct {
	response
	User userPayload `json:"user"`
}

type messageHistoryResponse struct {
	response
	Messages []dal.Message `json:"messages"`
}

// Push bodies. Pushes carry no success envelope; the frame type is the
// whole story.

type chatMessagePush struct {
	DisplayName string `json:"display_name"`
	Message     string `json:"message"`
	Timestamp   int64  `json:"timestamp"`
}

type userJoinPush struct {
	RoomID      int    `json:"room_id"`
	UserID      int    `json:"user_id"`
	DisplayName string `json:"display_name"`
}

type userLeavePush struct {
	RoomID      int    `json:"room_id"`
	UserID      int    `json:"user_id"`
	DisplayName string `json:"display_name"`
}

type roomStatusChangePush struct {
	RoomID   int  `json:"room_id"`
	IsActive bool `json:"is_active"`
}

type roomNameUpdatePush struct {
	RoomID int    `json:"room_id"`
	Name   string `json:"name"`
}

type roomDescriptionUpdatePush struct {
	RoomID      int    `json:"room_id"`
	Description string `json:"description"`
}

type roomMaxUsersUpdatePush struct {
	RoomID   int `json:"room_id"`
	MaxUsers int `json:"max_users"`
}
