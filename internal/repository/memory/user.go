// Package memory provides an in-process UserRepository with the same
// uniqueness and not-found semantics as the PostgreSQL one.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/wangyz12/backend-admin/internal/domain"
	apperrors "github.com/wangyz12/backend-admin/pkg/errors"
)

// UserRepository is a mutex-guarded map of users keyed by ID.
type UserRepository struct {
	mu    sync.RWMutex
	users map[string]*domain.User
}

// NewUserRepository creates an empty in-memory user repository.
func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[string]*domain.User)}
}

// Create inserts a copy of u.
func (r *UserRepository) Create(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[u.ID]; ok {
		return apperrors.AlreadyExists("user", "id", "")
	}
	if field := r.conflict(u); field != "" {
		return apperrors.AlreadyExists("user", field, "")
	}
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

// GetByID returns a copy of the user with id.
func (r *UserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, apperrors.NotFound("user", id)
	}
	cp := *u
	return &cp, nil
}

// GetByAccount returns a copy of the user with account.
func (r *UserRepository) GetByAccount(_ context.Context, account string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.Account == account {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperrors.NotFound("user", account)
}

// UpdateProfile copies the profile fields of u onto the stored user.
func (r *UserRepository) UpdateProfile(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.users[u.ID]
	if !ok {
		return apperrors.NotFound("user", u.ID)
	}
	if field := r.conflict(u); field != "" {
		return apperrors.AlreadyExists("user", field, "")
	}

	u.UpdatedAt = time.Now().UTC()
	stored.Username = u.Username
	stored.Avatar = u.Avatar
	stored.Phone = u.Phone
	stored.Email = u.Email
	stored.Department = u.Department
	stored.EmployeeID = u.EmployeeID
	stored.UpdatedAt = u.UpdatedAt
	return nil
}

// UpdateCredential replaces the stored password digest and bumps the token
// version under one write lock.
func (r *UserRepository) UpdateCredential(_ context.Context, id, passwordHash string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return 0, apperrors.NotFound("user", id)
	}
	u.PasswordHash = passwordHash
	u.TokenVersion++
	u.UpdatedAt = time.Now().UTC()
	return u.TokenVersion, nil
}

// IncrementTokenVersion bumps the token version under the write lock.
func (r *UserRepository) IncrementTokenVersion(_ context.Context, id string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return 0, apperrors.NotFound("user", id)
	}
	u.TokenVersion++
	u.UpdatedAt = time.Now().UTC()
	return u.TokenVersion, nil
}

// conflict returns the first unique field u shares with another user.
// Empty optional fields never conflict. Callers hold the lock.
func (r *UserRepository) conflict(u *domain.User) string {
	for id, other := range r.users {
		if id == u.ID {
			continue
		}
		switch {
		case other.Account == u.Account:
			return "account"
		case u.EmployeeID != "" && other.EmployeeID == u.EmployeeID:
			return "employee_id"
		case u.Phone != "" && other.Phone == u.Phone:
			return "phone"
		case u.Email != "" && other.Email == u.Email:
			return "email"
		}
	}
	return ""
}
