package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wangyz12/backend-admin/internal/auth"
	"github.com/wangyz12/backend-admin/internal/domain"
	"github.com/wangyz12/backend-admin/internal/ratelimit"
	"github.com/wangyz12/backend-admin/internal/repository"
	apperrors "github.com/wangyz12/backend-admin/pkg/errors"
	"github.com/wangyz12/backend-admin/pkg/validator"
)

// invalidLoginMessage is returned for both an unknown account and a wrong
// password.
const invalidLoginMessage = "invalid account or password"

// EventPublisher publishes user domain events. Failures never fail the
// operation that produced the event.
type EventPublisher interface {
	PublishUserRegistered(ctx context.Context, user *domain.User) error
	PublishUserUpdated(ctx context.Context, user *domain.User) error
	PublishPasswordChanged(ctx context.Context, userID string, tokenVersion int64) error
	PublishSessionsRevoked(ctx context.Context, userID, cause string, tokenVersion int64) error
}

// UserService implements the business logic for user and auth operations.
type UserService struct {
	userRepo  repository.UserRepository
	hasher    auth.CredentialHasher
	sessions  *auth.SessionAuthority
	throttle  ratelimit.LoginThrottle
	producer  EventPublisher
	logger    *slog.Logger
	dummyHash string
}

// NewUserService creates a new user service.
func NewUserService(
	userRepo repository.UserRepository,
	hasher auth.CredentialHasher,
	sessions *auth.SessionAuthority,
	throttle ratelimit.LoginThrottle,
	producer EventPublisher,
	logger *slog.Logger,
) *UserService {
	// Verified against on unknown accounts so both login failure paths cost
	// one hash comparison.
	dummy, err := hasher.Hash("dummy_password_0")
	if err != nil {
		logger.Warn("failed to prepare dummy credential digest", slog.String("error", err.Error()))
	}
	return &UserService{
		userRepo:  userRepo,
		hasher:    hasher,
		sessions:  sessions,
		throttle:  throttle,
		producer:  producer,
		logger:    logger,
		dummyHash: dummy,
	}
}

// --- Auth Input types ---

// RegisterInput holds the parameters for registering a new user.
type RegisterInput struct {
	Account    string
	Password   string
	Username   string
	EmployeeID string
	Department string
	Avatar     string
	Phone      string
	Email      string
}

// LoginInput holds the parameters for user login.
type LoginInput struct {
	Account  string
	Password string
}

// --- Auth Operations ---

// Register creates a new account with token version 0 and returns it with a
// fresh token pair. Surrounding spaces are not part of the account name.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (*domain.AuthBundle, error) {
	input.Account = strings.TrimSpace(input.Account)
	if input.Account == "" {
		return nil, apperrors.InvalidField("account", "is required")
	}
	if n := len(input.Account); n < 2 || n > 50 {
		return nil, apperrors.InvalidField("account", "must be between 2 and 50 characters")
	}
	if err := checkPassword("password", input.Password); err != nil {
		return nil, err
	}

	digest, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	username := strings.TrimSpace(input.Username)
	if username == "" {
		username = domain.DefaultUsername
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.New().String(),
		Account:      input.Account,
		PasswordHash: digest,
		Username:     username,
		EmployeeID:   strings.TrimSpace(input.EmployeeID),
		Department:   strings.TrimSpace(input.Department),
		Role:         domain.DefaultRole,
		Avatar:       input.Avatar,
		Phone:        strings.TrimSpace(input.Phone),
		Email:        normalizeEmail(input.Email),
		TokenVersion: 0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	bundle, err := s.sessions.Issue(user)
	if err != nil {
		return nil, err
	}

	// Publish registration event (non-blocking on failure).
	if err := s.producer.PublishUserRegistered(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.registered event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID),
		slog.String("account", user.Account),
	)

	return bundle, nil
}

// Login authenticates a user with account and password. An unknown account
// and a wrong password produce the same error.
func (s *UserService) Login(ctx context.Context, input LoginInput) (*domain.AuthBundle, error) {
	input.Account = strings.TrimSpace(input.Account)
	if input.Account == "" {
		return nil, apperrors.InvalidField("account", "is required")
	}
	if input.Password == "" {
		return nil, apperrors.InvalidField("password", "is required")
	}

	if err := s.throttle.Allow(ctx, input.Account); err != nil {
		loginAttemptsTotal.WithLabelValues(loginThrottled).Inc()
		return nil, err
	}

	user, err := s.userRepo.GetByAccount(ctx, input.Account)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("get user for login: %w", err)
		}
		_, _ = s.hasher.Verify(input.Password, s.dummyHash)
		return nil, s.loginFailed(ctx, input.Account)
	}

	ok, err := s.hasher.Verify(input.Password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, s.loginFailed(ctx, input.Account)
	}

	if err := s.throttle.Reset(ctx, input.Account); err != nil {
		s.logger.WarnContext(ctx, "failed to reset login throttle",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	bundle, err := s.sessions.Issue(user)
	if err != nil {
		return nil, err
	}
	loginAttemptsTotal.WithLabelValues(loginSuccess).Inc()

	s.logger.InfoContext(ctx, "user logged in",
		slog.String("user_id", user.ID),
		slog.String("account", user.Account),
	)

	return bundle, nil
}

func (s *UserService) loginFailed(ctx context.Context, account string) error {
	loginAttemptsTotal.WithLabelValues(loginFailure).Inc()
	if err := s.throttle.Fail(ctx, account); err != nil {
		s.logger.WarnContext(ctx, "failed to record login failure", slog.String("error", err.Error()))
	}
	return apperrors.Unauthorized(invalidLoginMessage)
}

// Refresh exchanges a refresh token for a new token pair.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	if refreshToken == "" {
		return nil, apperrors.InvalidField("refresh_token", "is required")
	}
	return s.sessions.Refresh(ctx, refreshToken)
}

// ChangePassword verifies the current password, stores the new one and
// invalidates every token issued so far.
func (s *UserService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if oldPassword == "" {
		return apperrors.InvalidField("old_password", "is required")
	}
	if err := checkPassword("new_password", newPassword); err != nil {
		return err
	}
	if oldPassword == newPassword {
		return apperrors.InvalidField("new_password", "must differ from the current password")
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user for password change: %w", err)
	}

	ok, err := s.hasher.Verify(oldPassword, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return apperrors.Unauthorized("current password is incorrect")
	}

	digest, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash new password: %w", err)
	}

	// The digest and the token version change in one write.
	version, err := s.userRepo.UpdateCredential(ctx, user.ID, digest)
	if err != nil {
		return fmt.Errorf("update user password: %w", err)
	}
	s.sessions.RecordInvalidation(ctx, user.ID, auth.CausePasswordChange, version)

	if err := s.producer.PublishPasswordChanged(ctx, user.ID, version); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.password_changed event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "password changed",
		slog.String("user_id", user.ID),
	)

	return nil
}

// Logout invalidates every token issued to userID, including the one used
// to call it.
func (s *UserService) Logout(ctx context.Context, userID string) error {
	_, err := s.revoke(ctx, userID, auth.CauseLogout)
	return err
}

// RevokeSessions invalidates every token of userID on an administrator's
// request and returns the new token version.
func (s *UserService) RevokeSessions(ctx context.Context, userID string) (int64, error) {
	return s.revoke(ctx, userID, auth.CauseAdminRevoke)
}

func (s *UserService) revoke(ctx context.Context, userID, cause string) (int64, error) {
	version, err := s.sessions.InvalidateAll(ctx, userID, cause)
	if err != nil {
		return 0, fmt.Errorf("invalidate sessions: %w", err)
	}

	if err := s.producer.PublishSessionsRevoked(ctx, userID, cause, version); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.sessions_revoked event",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	return version, nil
}

// --- Profile Operations ---

// GetProfile retrieves a user by their ID.
func (s *UserService) GetProfile(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user profile: %w", err)
	}
	return user, nil
}

// UpdateProfile applies the non-nil fields of update. It never changes the
// password digest, role or token version.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, update domain.ProfileUpdate) (*domain.User, error) {
	if update.Username != nil {
		name := strings.TrimSpace(*update.Username)
		if name == "" {
			return nil, apperrors.InvalidField("username", "must not be empty")
		}
		update.Username = &name
	}
	if update.Email != nil {
		email := normalizeEmail(*update.Email)
		update.Email = &email
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user for update: %w", err)
	}

	update.Apply(user)

	if err := s.userRepo.UpdateProfile(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}

	// Publish user updated event (non-blocking on failure).
	if err := s.producer.PublishUserUpdated(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.updated event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user profile updated",
		slog.String("user_id", user.ID),
	)

	return user, nil
}

// --- Helpers ---

// checkPassword enforces the password rules on field.
func checkPassword(field, password string) error {
	if password == "" {
		return apperrors.InvalidField(field, "is required")
	}
	if len(password) < 2 || len(password) > 50 {
		return apperrors.InvalidField(field, "must be between 2 and 50 characters")
	}
	if !validator.IsStrongPassword(password) {
		return apperrors.InvalidField(field, "must contain letters, digits and an underscore only, with at least one of each")
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
