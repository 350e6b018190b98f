package dal

import (
	"context"

	"github.com/harborchat/harbor/internal/v1/db"
)

type mysqlRoomStore struct {
	gw *db.Gateway
}

// CreateRoom inserts and reads back the fresh row in one transaction so
// LAST_INSERT_ID resolves on the same session.
func (s *mysqlRoomStore) CreateRoom(ctx context.Context, creatorID int, name, description string, maxUsers int) db.QueryResult[Room] {
	return db.ExecuteTx(s.gw, ctx, func(conn *db.Conn) db.QueryResult[Room] {
		insert := s.gw.ExecuteOn(ctx, conn,
			"INSERT INTO rooms (name, description, creator_id, max_users, is_active, created_time) VALUES (?, ?, ?, ?, ?, NOW())",
			db.Str(name), db.Str(description), db.Int(creatorID), db.Int(maxUsers), db.Bool(true))
		if !insert.IsSuccess() {
			return db.Fail[Room](insert)
		}
		created := s.gw.ExecuteOn(ctx, conn,
			"SELECT "+roomColumns+" FROM rooms WHERE id = LAST_INSERT_ID()")
		return singleRow(created, roomFromRow)
	})
}

func (s *mysqlRoomStore) DeleteRoom(ctx context.Context, id int) db.QueryResult[struct{}] {
	return discardResult(s.gw.Execute(ctx, "DELETE FROM rooms WHERE id = ?", db.Int(id)))
}

func (s *mysqlRoomStore) SetRoomStatus(ctx context.Context, id int, active bool) db.QueryResult[struct{}] {
	return discardResult(s.gw.Execute(ctx,
		"UPDATE rooms SET is_active = ? WHERE id = ?", db.Bool(active), db.Int(id)))
}

func (s *mysqlRoomStore) SetRoomName(ctx context.Context, id int, name string) db.QueryResult[struct{}] {
	return discardResult(s.gw.Execute(ctx,
		"UPDATE rooms SET name = ? WHERE id = ?", db.Str(name), db.Int(id)))
}

func (s *mysqlRoomStore) SetRoomDescription(ctx context.Context, id int, description string) db.QueryResult[struct{}] {
	return discardResult(s.gw.Execute(ctx,
		"UPDATE rooms SET description = ? WHERE id = ?", db.Str(description), db.Int(id)))
}

func (s *mysqlRoomStore) SetRoomMaxUsers(ctx context.Context, id, maxUsers int) db.QueryResult[struct{}] {
	return discardResult(s.gw.Execute(ctx,
		"UPDATE rooms SET max_users = ? WHERE id = ?", db.Int(maxUsers), db.Int(id)))
}

func (s *mysqlRoomStore) GetAllRooms(ctx context.Context) db.QueryResult[[]Room] {
	r := s.gw.Execute(ctx, "SELECT "+roomColumns+" FROM rooms ORDER BY id DESC")
	return rowSlice(r, roomFromRow)
}

func (s *mysqlRoomStore) GetActiveRooms(ctx context.Context) db.QueryResult[[]Room] {
	r := s.gw.Execute(ctx,
		"SELECT "+roomColumns+" FROM rooms WHERE is_active = 1 ORDER BY id DESC")
	return rowSlice(r, roomFromRow)
}

func (s *mysqlRoomStore) GetRoomByID(ctx context.Context, id int) db.QueryResult[Room] {
	r := s.gw.Execute(ctx, "SELECT "+roomColumns+" FROM rooms WHERE id = ?", db.Int(id))
	return singleRow(r, roomFromRow)
}

// discardResult collapses a statement outcome to ok/failure.
func discardResult(r db.QueryResult[db.ExecuteResult]) db.QueryResult[struct{}] {
	if !r.IsSuccess() {
		return db.Fail[struct{}](r)
	}
	return db.Success(struct{}{})
}
