package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/harborchat/harbor/internal/v1/auth"
	"github.com/harborchat/harbor/internal/v1/dal"
	"github.com/harborchat/harbor/internal/v1/db"
	"github.com/harborchat/harbor/internal/v1/logging"
)

// Manager exposes every domain operation over one store.
type Manager struct {
	store *dal.Store
}

// NewManager wraps a store.
func NewManager(store *dal.Store) *Manager {
	return &Manager{store: store}
}

func validEmail(email string) bool {
	return len(email) >= 5 && strings.Contains(email, "@")
}

// Register creates an account. The password is hashed here; the store
// only ever sees the hash.
func (m *Manager) Register(ctx context.Context, email, password, name string) Result[dal.User] {
	if email == "" || password == "" || name == "" {
		return Fail[dal.User](CodeBadRequest, "email, password and name are required")
	}
	if !validEmail(email) {
		return Fail[dal.User](CodeBadRequest, "invalid email format")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		logging.Error(ctx, "password hashing failed", zap.Error(err))
		return Fail[dal.User](CodeInternalError, "could not process password")
	}

	r := m.store.Users.CreateUser(ctx, name, email, hash, false)
	if r.IsNotFound() {
		switch r.SubCode {
		case db.SubEmailTaken:
			return Fail[dal.User](CodeConflict, "email already in use")
		case db.SubNameExhausted:
			return Fail[dal.User](CodeConflict, "name not available")
		}
		return Fail[dal.User](CodeNotFound, "user not found")
	}
	if !r.IsSuccess() {
		return dbFailure[dal.User](r)
	}
	return Ok(r.Data, "registered")
}

// Login authenticates by email and password.
func (m *Manager) Login(ctx context.Context, email, password string) Result[dal.User] {
	if email == "" || password == "" {
		return Fail[dal.User](CodeBadRequest, "email and password are required")
	}

	r := m.store.Users.Authenticate(ctx, email, password)
	if r.IsNotFound() {
		if r.SubCode == db.SubWrongPassword {
			return Fail[dal.User](CodeUnauthorized, "invalid email or password")
		}
		return Fail[dal.User](CodeNotFound, "user not found")
	}
	if !r.IsSuccess() {
		return dbFailure[dal.User](r)
	}
	return Ok(r.Data, "logged in")
}

// ChangePassword verifies the old password before storing a new hash.
func (m *Manager) ChangePassword(ctx context.Context, email, oldPassword, newPassword string) Result[struct{}] {
	if email == "" || oldPassword == "" || newPassword == "" {
		return Fail[struct{}](CodeBadRequest, "email and passwords are required")
	}

	r := m.store.Users.ChangePassword(ctx, email, oldPassword, newPassword)
	if r.IsNotFound() {
		if r.SubCode == db.SubWrongPassword {
			return Fail[struct{}](CodeUnauthorized, "wrong password")
		}
		return Fail[struct{}](CodeNotFound, "user not found")
	}
	if !r.IsSuccess() {
		return dbFailure[struct{}](r)
	}
	return Ok(struct{}{}, "password changed")
}

// ChangeDisplayName renames a user; a fresh discriminator is assigned
// for the new name.
func (m *Manager) ChangeDisplayName(ctx context.Context, userID int, newName string) Result[struct{}] {
	if newName == "" {
		return Fail[struct{}](CodeBadRequest, "name is required")
	}

	r := m.store.Users.ChangeDisplayName(ctx, userID, newName)
	if r.IsNotFound() {
		if r.SubCode == db.SubNameExhausted {
			return Fail[struct{}](CodeConflict, "name not available")
		}
		return Fail[struct{}](CodeNotFound, "user not found")
	}
	if !r.IsSuccess() {
		return dbFailure[struct{}](r)
	}
	return Ok(struct{}{}, "name changed")
}

// GetUserInfo fetches a user by id.
func (m *Manager) GetUserInfo(ctx context.Context, userID int) Result[dal.User] {
	r := m.store.Users.GetUserByID(ctx, userID)
	if r.IsNotFound() {
		return Fail[dal.User](CodeNotFound, "user not found")
	}
	if !r.IsSuccess() {
		return dbFailure[dal.User](r)
	}
	return Ok(r.Data, "ok")
}

// GetUserByFullName resolves name#discriminator to a user.
func (m *Manager) GetUserByFullName(ctx context.Context, name, discriminator string) Result[dal.User] {
	r := m.store.Users.GetUserByFullName(ctx, name, discriminator)
	if r.IsNotFound() {
		return Fail[dal.User](CodeNotFound, "user not found")
	}
	if !r.IsSuccess() {
		return dbFailure[dal.User](r)
	}
	return Ok(r.Data, "ok")
}
