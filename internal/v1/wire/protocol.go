// Package wire implements the framed binary protocol spoken on client
// sockets: a 4-byte header (u16 big-endian message type, u16 big-endian
// payload length) followed by a UTF-8 JSON payload.
//
// Numbering scheme:
//   - 1..20       client requests
//   - 1001..1020  responses (request + ResponseOffset)
//   - 1999        generic error response
//   - 2001..2009  server pushes
package wire

// Request message types.
const (
	MsgRegister          uint16 = 1
	MsgChangePassword    uint16 = 2
	MsgChangeDisplayName uint16 = 3
	MsgLogin             uint16 = 4
	MsgLogout            uint16 = 5
	MsgFetchActiveRooms  uint16 = 6
	MsgFetchInactiveRooms uint16 = 7
	MsgGetRoomInfo       uint16 = 8
	MsgCreateRoom        uint16 = 9
	MsgDeleteRoom        uint16 = 10
	MsgSetRoomName       uint16 = 11
	MsgSetRoomDescription uint16 = 12
	MsgSetRoomMaxUsers   uint16 = 13
	MsgSetRoomStatus     uint16 = 14
	MsgSendMessage       uint16 = 15
	MsgGetMessageHistory uint16 = 16
	MsgJoinRoom          uint16 = 17
	MsgLeaveRoom         uint16 = 18
	MsgGetRoomMembers    uint16 = 19
	MsgGetUserInfo       uint16 = 20
)

// ResponseOffset maps a request type to its response type.
const ResponseOffset uint16 = 1000

// MsgErrorResponse carries a JSON error body when no request-specific
// response type applies.
const MsgErrorResponse uint16 = 1999

// Push message types.
const (
	MsgChatMessagePush           uint16 = 2001
	MsgUserJoinPush              uint16 = 2002
	MsgUserLeavePush             uint16 = 2003
	MsgSystemMessagePush         uint16 = 2004
	MsgRoomNameUpdatePush        uint16 = 2005
	MsgRoomDescriptionUpdatePush uint16 = 2006
	MsgRoomMaxUsersUpdatePush    uint16 = 2007
	MsgRoomStatusChangePush      uint16 = 2008

	// MsgAccountKicked is sent with a zero-length body to the older
	// connection when the same user logs in again.
	MsgAccountKicked uint16 = 2009
)

// ResponseType returns the response code for a request code.
func ResponseType(requestType uint16) uint16 {
	return requestType + ResponseOffset
}

var typeNames = map[uint16]string{
	MsgRegister:                  "register",
	MsgChangePassword:            "change_password",
	MsgChangeDisplayName:         "change_display_name",
	MsgLogin:                     "login",
	MsgLogout:                    "logout",
	MsgFetchActiveRooms:          "fetch_active_rooms",
	MsgFetchInactiveRooms:        "fetch_inactive_rooms",
	MsgGetRoomInfo:               "get_room_info",
	MsgCreateRoom:                "create_room",
	MsgDeleteRoom:                "delete_room",
	MsgSetRoomName:               "set_room_name",
	MsgSetRoomDescription:        "set_room_description",
	MsgSetRoomMaxUsers:           "set_room_max_users",
	MsgSetRoomStatus:             "set_room_status",
	MsgSendMessage:               "send_message",
	MsgGetMessageHistory:         "get_message_history",
	MsgJoinRoom:                  "join_room",
	MsgLeaveRoom:                 "leave_room",
	MsgGetRoomMembers:            "get_room_members",
	MsgGetUserInfo:               "get_user_info",
	MsgErrorResponse:             "error",
	MsgChatMessagePush:           "chat_message_push",
	MsgUserJoinPush:              "user_join_push",
	MsgUserLeavePush:             "user_leave_push",
	MsgSystemMessagePush:         "system_message_push",
	MsgRoomNameUpdatePush:        "room_name_update_push",
	MsgRoomDescriptionUpdatePush: "room_description_update_push",
	MsgRoomMaxUsersUpdatePush:    "room_max_users_update_push",
	MsgRoomStatusChangePush:      "room_status_change_push",
	MsgAccountKicked:             "account_kicked",
}

// TypeName returns a stable label for a message type, for logs and
// metrics.
func TypeName(typ uint16) string {
	if name, ok := typeNames[typ]; ok {
		return name
	}
	return "unknown"
}
