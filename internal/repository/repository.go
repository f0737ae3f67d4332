package repository

import (
	"context"

	"github.com/wangyz12/backend-admin/internal/domain"
)

// UserRepository defines the interface for user persistence operations.
type UserRepository interface {
	// Create inserts a new user into the store. A uniqueness conflict is
	// reported as an AlreadyExists error naming the conflicting field.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by their unique identifier.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByAccount retrieves a user by their login account. The match is
	// case-sensitive.
	GetByAccount(ctx context.Context, account string) (*domain.User, error)

	// UpdateProfile writes the profile columns of user. Credentials, role and
	// token version are left untouched.
	UpdateProfile(ctx context.Context, user *domain.User) error

	// UpdateCredential replaces the stored password digest and bumps the
	// token version in the same write, returning the new version.
	UpdateCredential(ctx context.Context, id, passwordHash string) (int64, error)

	// IncrementTokenVersion atomically bumps the token version and returns
	// the new value.
	IncrementTokenVersion(ctx context.Context, id string) (int64, error)
}
