package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wangyz12/backend-admin/internal/domain"
	apperrors "github.com/wangyz12/backend-admin/pkg/errors"
)

// Invalidation causes, recorded in logs, metrics and published events.
const (
	CauseLogout         = "logout"
	CausePasswordChange = "password_change"
	CauseAdminRevoke    = "admin_revoke"
)

var (
	errStaleVersion    = errors.New("stale token version")
	errUnknownIdentity = errors.New("unknown identity")
)

// IdentityStore is the slice of the user store the session authority needs.
type IdentityStore interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	IncrementTokenVersion(ctx context.Context, id string) (int64, error)
}

// SessionAuthority issues token pairs and owns the token-version lifecycle.
// Every token it issues carries the version stored for the user at issue
// time; bumping that version invalidates all of them at once.
type SessionAuthority struct {
	store  IdentityStore
	tokens *JWTManager
	logger *slog.Logger
}

// NewSessionAuthority creates a session authority.
func NewSessionAuthority(store IdentityStore, tokens *JWTManager, logger *slog.Logger) *SessionAuthority {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionAuthority{store: store, tokens: tokens, logger: logger}
}

// Tokens exposes the underlying codec.
func (a *SessionAuthority) Tokens() *JWTManager {
	return a.tokens
}

// Issue mints a fresh token pair for u at its current token version.
func (a *SessionAuthority) Issue(u *domain.User) (*domain.AuthBundle, error) {
	pair, err := a.tokens.GenerateTokenPair(ClaimsFor(u))
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("issue tokens: %w", err))
	}
	return &domain.AuthBundle{User: u, TokenPair: *pair}, nil
}

// ReissueFromClaims mints a new pair carrying the same identity and token
// version as c without consulting storage. Callers must have just verified c
// against a freshly loaded user.
func (a *SessionAuthority) ReissueFromClaims(c Claims) (*domain.TokenPair, error) {
	pair, err := a.tokens.GenerateTokenPair(c)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("issue tokens: %w", err))
	}
	return pair, nil
}

// InvalidateAll bumps the stored token version for userID, which makes every
// outstanding token for that user unusable. Concurrent calls each advance
// the version by exactly one.
func (a *SessionAuthority) InvalidateAll(ctx context.Context, userID, cause string) (int64, error) {
	version, err := a.store.IncrementTokenVersion(ctx, userID)
	if err != nil {
		return 0, err
	}
	a.RecordInvalidation(ctx, userID, cause, version)
	return version, nil
}

// RecordInvalidation accounts for a version bump the store made as part of
// another write, such as a credential change.
func (a *SessionAuthority) RecordInvalidation(ctx context.Context, userID, cause string, version int64) {
	tokenInvalidationsTotal.WithLabelValues(cause).Inc()
	a.logger.InfoContext(ctx, "sessions invalidated",
		slog.String("user_id", userID),
		slog.String("cause", cause),
		slog.Int64("token_version", version),
	)
}

// CheckStillValid reports whether a token carrying version is still honoured
// for userID. A missing user is reported as not valid rather than an error.
func (a *SessionAuthority) CheckStillValid(ctx context.Context, userID string, version int64) (bool, error) {
	_, err := a.verifyVersion(ctx, userID, version)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errStaleVersion), errors.Is(err, errUnknownIdentity):
		return false, nil
	default:
		return false, err
	}
}

// verifyVersion loads the user and compares stored and carried versions.
func (a *SessionAuthority) verifyVersion(ctx context.Context, userID string, version int64) (*domain.User, error) {
	u, err := a.store.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, errUnknownIdentity
		}
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}
	if u.TokenVersion != version {
		return nil, fmt.Errorf("%w: carried %d, stored %d", errStaleVersion, version, u.TokenVersion)
	}
	return u, nil
}

// Refresh exchanges a refresh token for a new pair. The refresh token must
// still carry the stored version; the new pair is minted from the stored
// user so role changes are picked up.
func (a *SessionAuthority) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	claims, err := a.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		a.logger.DebugContext(ctx, "refresh token rejected", slog.String("error", err.Error()))
		return nil, apperrors.InvalidCredential(err)
	}

	u, err := a.verifyVersion(ctx, claims.UserID, claims.TokenVersion)
	if err != nil {
		if errors.Is(err, errStaleVersion) || errors.Is(err, errUnknownIdentity) {
			a.logger.DebugContext(ctx, "refresh token rejected",
				slog.String("user_id", claims.UserID),
				slog.String("error", err.Error()),
			)
			return nil, apperrors.InvalidCredential(err)
		}
		return nil, apperrors.Internal(err)
	}

	return a.ReissueFromClaims(ClaimsFor(u))
}
