package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wangyz12/backend-admin/internal/domain"
	"github.com/wangyz12/backend-admin/pkg/database"
	apperrors "github.com/wangyz12/backend-admin/pkg/errors"
)

const (
	pgUniqueViolation           = "23505"
	pgInvalidTextRepresentation = "22P02"
)

// constraintFields maps unique constraints on users to request field names.
var constraintFields = map[string]string{
	"users_account_key":     "account",
	"users_employee_id_key": "employee_id",
	"users_phone_key":       "phone",
	"users_email_key":       "email",
}

const userColumns = `id, account, password_hash, username, COALESCE(employee_id, ''), COALESCE(department, ''),
		       role, avatar, COALESCE(phone, ''), COALESCE(email, ''), token_version, created_at, updated_at`

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	db database.DBTX
}

// NewUserRepository creates a new PostgreSQL-backed user repository.
func NewUserRepository(db database.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user into the database.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) (err error) {
	query := `
		INSERT INTO users (id, account, password_hash, username, employee_id, department, role, avatar, phone, email, token_version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8, NULLIF($9, ''), NULLIF($10, ''), $11, $12, $13)`

	ctx, end := database.TraceQuery(ctx, "CreateUser", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		u.ID,
		u.Account,
		u.PasswordHash,
		u.Username,
		u.EmployeeID,
		u.Department,
		u.Role,
		u.Avatar,
		u.Phone,
		u.Email,
		u.TokenVersion,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		if field, ok := uniqueViolationField(err); ok {
			return apperrors.AlreadyExists("user", field, "")
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by their ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + `
		FROM users
		WHERE id = $1`

	return r.scanUser(ctx, "GetUserByID", query, id)
}

// GetByAccount retrieves a user by their login account.
func (r *UserRepository) GetByAccount(ctx context.Context, account string) (*domain.User, error) {
	query := `SELECT ` + userColumns + `
		FROM users
		WHERE account = $1`

	return r.scanUser(ctx, "GetUserByAccount", query, account)
}

// UpdateProfile writes the editable profile columns of u.
func (r *UserRepository) UpdateProfile(ctx context.Context, u *domain.User) (err error) {
	u.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE users
		SET username = $1, avatar = $2, phone = NULLIF($3, ''), email = NULLIF($4, ''),
		    department = NULLIF($5, ''), employee_id = NULLIF($6, ''), updated_at = $7
		WHERE id = $8`

	ctx, end := database.TraceQuery(ctx, "UpdateUserProfile", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query,
		u.Username,
		u.Avatar,
		u.Phone,
		u.Email,
		u.Department,
		u.EmployeeID,
		u.UpdatedAt,
		u.ID,
	)
	if err != nil {
		if field, ok := uniqueViolationField(err); ok {
			return apperrors.AlreadyExists("user", field, "")
		}
		return fmt.Errorf("update user profile: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", u.ID)
	}

	return nil
}

// UpdateCredential replaces the stored password digest and bumps
// token_version in one statement, so a new password never coexists with
// tokens issued under the old one.
func (r *UserRepository) UpdateCredential(ctx context.Context, id, passwordHash string) (version int64, err error) {
	query := `
		UPDATE users
		SET password_hash = $1, token_version = token_version + 1, updated_at = $2
		WHERE id = $3
		RETURNING token_version`

	ctx, end := database.TraceQuery(ctx, "UpdateUserCredential", query)
	defer func() { end(err) }()

	if err = r.db.QueryRow(ctx, query, passwordHash, time.Now().UTC(), id).Scan(&version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidText(err) {
			return 0, apperrors.NotFound("user", id)
		}
		return 0, fmt.Errorf("update user credential: %w", err)
	}

	return version, nil
}

// IncrementTokenVersion bumps token_version in a single statement, so
// concurrent callers never lose an increment.
func (r *UserRepository) IncrementTokenVersion(ctx context.Context, id string) (version int64, err error) {
	query := `
		UPDATE users
		SET token_version = token_version + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING token_version`

	ctx, end := database.TraceQuery(ctx, "IncrementTokenVersion", query)
	defer func() { end(err) }()

	if err = r.db.QueryRow(ctx, query, id).Scan(&version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidText(err) {
			return 0, apperrors.NotFound("user", id)
		}
		return 0, fmt.Errorf("increment token version: %w", err)
	}

	return version, nil
}

// scanUser executes a query expected to return a single user row.
func (r *UserRepository) scanUser(ctx context.Context, operation, query, arg string) (_ *domain.User, err error) {
	ctx, end := database.TraceQuery(ctx, operation, query)
	defer func() { end(err) }()

	var u domain.User
	err = r.db.QueryRow(ctx, query, arg).Scan(
		&u.ID,
		&u.Account,
		&u.PasswordHash,
		&u.Username,
		&u.EmployeeID,
		&u.Department,
		&u.Role,
		&u.Avatar,
		&u.Phone,
		&u.Email,
		&u.TokenVersion,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidText(err) {
			return nil, apperrors.NotFound("user", arg)
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	return &u, nil
}

// uniqueViolationField reports whether err is a unique constraint violation
// and, if so, which user field caused it.
func uniqueViolationField(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != pgUniqueViolation {
			return "", false
		}
		if field, ok := constraintFields[pgErr.ConstraintName]; ok {
			return field, true
		}
		return "account", true
	}

	// Errors that lost their type on the way up still carry the SQLSTATE.
	if !strings.Contains(err.Error(), pgUniqueViolation) {
		return "", false
	}
	for constraint, field := range constraintFields {
		if strings.Contains(err.Error(), constraint) {
			return field, true
		}
	}
	return "account", true
}

// isInvalidText reports a malformed UUID parameter.
func isInvalidText(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgInvalidTextRepresentation
}
