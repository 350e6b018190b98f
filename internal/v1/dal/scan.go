package dal

import (
	"fmt"
	"strconv"

	"github.com/harborchat/harbor/internal/v1/db"
)

// Row shapes returned by the gateway. Every column arrives as a string.
const (
	userColumns    = "id, discriminator, name, email, is_admin, created_time"
	roomColumns    = "id, name, description, creator_id, max_users, is_active, created_time"
	messageColumns = "message_id, user_id, room_id, content, display_name, send_time"
)

func parseIntColumn(table, column, raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("dal: %s.%s: unparseable value %q", table, column, raw)
	}
	return n, nil
}

func parseBoolColumn(raw string) bool {
	return raw != "" && raw != "0" && raw != "false"
}

func userFromRow(row []string) (User, error) {
	if len(row) < 6 {
		return User{}, fmt.Errorf("dal: users row has %d columns, want 6", len(row))
	}
	id, err := parseIntColumn("users", "id", row[0])
	if err != nil {
		return User{}, err
	}
	return User{
		ID:            id,
		Discriminator: row[1],
		Name:          row[2],
		Email:         row[3],
		IsAdmin:       parseBoolColumn(row[4]),
		CreatedTime:   row[5],
	}, nil
}

func roomFromRow(row []string) (Room, error) {
	if len(row) < 7 {
		return Room{}, fmt.Errorf("dal: rooms row has %d columns, want 7", len(row))
	}
	id, err := parseIntColumn("rooms", "id", row[0])
	if err != nil {
		return Room{}, err
	}
	creator, err := parseIntColumn("rooms", "creator_id", row[3])
	if err != nil {
		return Room{}, err
	}
	maxUsers, err := parseIntColumn("rooms", "max_users", row[4])
	if err != nil {
		return Room{}, err
	}
	return Room{
		ID:          id,
		Name:        row[1],
		Description: row[2],
		CreatorID:   creator,
		MaxUsers:    maxUsers,
		IsActive:    parseBoolColumn(row[5]),
		CreatedTime: row[6],
	}, nil
}

func messageFromRow(row []string) (Message, error) {
	if len(row) < 6 {
		return Message{}, fmt.Errorf("dal: messages row has %d columns, want 6", len(row))
	}
	id, err := parseIntColumn("messages", "message_id", row[0])
	if err != nil {
		return Message{}, err
	}
	userID, err := parseIntColumn("messages", "user_id", row[1])
	if err != nil {
		return Message{}, err
	}
	roomID, err := parseIntColumn("messages", "room_id", row[2])
	if err != nil {
		return Message{}, err
	}
	return Message{
		ID:          id,
		UserID:      userID,
		RoomID:      roomID,
		Content:     row[3],
		DisplayName: row[4],
		SendTime:    row[5],
	}, nil
}

// singleRow parses a one-row gateway result with fn, mapping parse
// failures to InternalError.
func singleRow[T any](r db.QueryResult[db.ExecuteResult], fn func([]string) (T, error)) db.QueryResult[T] {
	if !r.IsSuccess() {
		return db.Fail[T](r)
	}
	row := r.Data.Row()
	if row == nil {
		return db.InternalError[T]("dal: expected a single row")
	}
	out, err := fn(row)
	if err != nil {
		return db.InternalError[T](err.Error())
	}
	return db.Success(out)
}

// rowSlice parses a multi-row gateway result with fn. An empty result
// set becomes an empty slice, not a failure.
func rowSlice[T any](r db.QueryResult[db.ExecuteResult], fn func([]string) (T, error)) db.QueryResult[[]T] {
	if r.IsNotFound() {
		return db.Success([]T{})
	}
	if !r.IsSuccess() {
		return db.Fail[[]T](r)
	}
	rows := r.Data.Rows()
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		item, err := fn(row)
		if err != nil {
			return db.InternalError[[]T](err.Error())
		}
		out = append(out, item)
	}
	return db.Success(out)
}
