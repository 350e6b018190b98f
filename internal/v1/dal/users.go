package dal

import (
	"context"

	"github.com/harborchat/harbor/internal/v1/auth"
	"github.com/harborchat/harbor/internal/v1/db"
)

type mysqlUserStore struct {
	gw *db.Gateway
}

// CreateUser registers an account inside one transaction: email
// uniqueness check, discriminator assignment, insert, then read back
// the stored row on the same session.
func (s *mysqlUserStore) CreateUser(ctx context.Context, name, email, passwordHash string, isAdmin bool) db.QueryResult[User] {
	return db.ExecuteTx(s.gw, ctx, func(conn *db.Conn) db.QueryResult[User] {
		existing := s.gw.ExecuteOn(ctx, conn, "SELECT id FROM users WHERE email = ?", db.Str(email))
		if existing.IsSuccess() {
			return db.NotFoundSub[User](db.SubEmailTaken)
		}
		if existing.IsError() {
			return db.Fail[User](existing)
		}

		disc := s.assignDiscriminator(ctx, conn, name)
		if !disc.IsSuccess() {
			return db.Fail[User](disc)
		}

		insert := s.gw.ExecuteOn(ctx, conn,
			"INSERT INTO users (discriminator, name, email, password_hash, is_admin, created_time) VALUES (?, ?, ?, ?, ?, NOW())",
			db.Str(disc.Data), db.Str(name), db.Str(email), db.Str(passwordHash), db.Bool(isAdmin))
		if !insert.IsSuccess() {
			return db.Fail[User](insert)
		}

		// LAST_INSERT_ID is session-scoped; the pinned connection keeps
		// it tied to the insert above.
		created := s.gw.ExecuteOn(ctx, conn,
			"SELECT "+userColumns+" FROM users WHERE id = LAST_INSERT_ID()")
		return singleRow(created, userFromRow)
	})
}

// assignDiscriminator reads the taken set for name and picks a free
// slot: random draws while sparse, linear scan near saturation.
func (s *mysqlUserStore) assignDiscriminator(ctx context.Context, conn *db.Conn, name string) db.QueryResult[string] {
	taken := s.gw.ExecuteOn(ctx, conn, "SELECT discriminator FROM users WHERE name = ?", db.Str(name))
	if taken.IsError() {
		return db.Fail[string](taken)
	}
	used := make(map[string]struct{})
	if taken.IsSuccess() {
		for _, row := range taken.Data.Rows() {
			if len(row) > 0 {
				used[row[0]] = struct{}{}
			}
		}
	}
	disc, ok := pickDiscriminator(used, nil)
	if !ok {
		return db.NotFoundSub[string](db.SubNameExhausted)
	}
	return db.Success(disc)
}

// Authenticate fetches the row and stored hash in one statement and
// verifies the password. The hash is never returned.
func (s *mysqlUserStore) Authenticate(ctx context.Context, email, password string) db.QueryResult[User] {
	r := s.gw.Execute(ctx,
		"SELECT "+userColumns+", password_hash FROM users WHERE email = ?", db.Str(email))
	if !r.IsSuccess() {
		return db.Fail[User](r)
	}
	row := r.Data.Row()
	if row == nil || len(row) < 7 {
		return db.InternalError[User]("dal: malformed users row")
	}
	if !auth.VerifyPassword(password, row[6]) {
		return db.NotFoundSub[User](db.SubWrongPassword)
	}
	user, err := userFromRow(row[:6])
	if err != nil {
		return db.InternalError[User](err.Error())
	}
	return db.Success(user)
}

// ChangePassword verifies the old password and stores a fresh hash in
// one transaction.
func (s *mysqlUserStore) ChangePassword(ctx context.Context, email, oldPassword, newPassword string) db.QueryResult[struct{}] {
	return db.ExecuteTx(s.gw, ctx, func(conn *db.Conn) db.QueryResult[struct{}] {
		r := s.gw.ExecuteOn(ctx, conn, "SELECT password_hash FROM users WHERE email = ?", db.Str(email))
		if !r.IsSuccess() {
			return db.Fail[struct{}](r)
		}
		row := r.Data.Row()
		if row == nil || len(row) < 1 {
			return db.InternalError[struct{}]("dal: malformed users row")
		}
		if !auth.VerifyPassword(oldPassword, row[0]) {
			return db.NotFoundSub[struct{}](db.SubWrongPassword)
		}
		hash, err := auth.HashPassword(newPassword)
		if err != nil {
			return db.InternalError[struct{}](err.Error())
		}
		update := s.gw.ExecuteOn(ctx, conn,
			"UPDATE users SET password_hash = ? WHERE email = ?", db.Str(hash), db.Str(email))
		if !update.IsSuccess() {
			return db.Fail[struct{}](update)
		}
		return db.Success(struct{}{})
	})
}

// ChangeDisplayName renames a user, assigning a fresh discriminator for
// the new name inside the same transaction.
func (s *mysqlUserStore) ChangeDisplayName(ctx context.Context, userID int, newName string) db.QueryResult[struct{}] {
	return db.ExecuteTx(s.gw, ctx, func(conn *db.Conn) db.QueryResult[struct{}] {
		existing := s.gw.ExecuteOn(ctx, conn, "SELECT id FROM users WHERE id = ?", db.Int(userID))
		if !existing.IsSuccess() {
			return db.Fail[struct{}](existing)
		}

		disc := s.assignDiscriminator(ctx, conn, newName)
		if !disc.IsSuccess() {
			return db.Fail[struct{}](disc)
		}

		update := s.gw.ExecuteOn(ctx, conn,
			"UPDATE users SET name = ?, discriminator = ? WHERE id = ?",
			db.Str(newName), db.Str(disc.Data), db.Int(userID))
		if !update.IsSuccess() {
			return db.Fail[struct{}](update)
		}
		return db.Success(struct{}{})
	})
}

func (s *mysqlUserStore) GetUserByID(ctx context.Context, id int) db.QueryResult[User] {
	r := s.gw.Execute(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", db.Int(id))
	return singleRow(r, userFromRow)
}

func (s *mysqlUserStore) GetUserByEmail(ctx context.Context, email string) db.QueryResult[User] {
	r := s.gw.Execute(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", db.Str(email))
	return singleRow(r, userFromRow)
}

func (s *mysqlUserStore) GetUserByFullName(ctx context.Context, name, discriminator string) db.QueryResult[User] {
	r := s.gw.Execute(ctx,
		"SELECT "+userColumns+" FROM users WHERE name = ? AND discriminator = ?",
		db.Str(name), db.Str(discriminator))
	return singleRow(r, userFromRow)
}
