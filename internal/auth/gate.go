package auth

import (
	"context"
	"errors"
	"log/slog"

	apperrors "github.com/wangyz12/backend-admin/pkg/errors"
	"github.com/wangyz12/backend-admin/pkg/middleware"
)

// Gate admits a request only when its access token verifies and still
// carries the user's current token version. The stored version is re-read
// on every call so invalidation takes effect on the very next request.
type Gate struct {
	authority *SessionAuthority
	logger    *slog.Logger
}

// NewGate creates a gate backed by authority.
func NewGate(authority *SessionAuthority, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{authority: authority, logger: logger}
}

// Validate implements middleware.TokenValidator. Every rejection surfaces as
// the same INVALID_CREDENTIAL error; a storage failure surfaces as internal.
func (g *Gate) Validate(ctx context.Context, token string) (*middleware.Claims, error) {
	claims, err := g.authority.tokens.ValidateAccessToken(token)
	if err != nil {
		reason := ReasonInvalid
		if errors.Is(err, ErrTokenExpired) {
			reason = ReasonExpired
		}
		return nil, g.reject(ctx, reason, "", err)
	}

	if _, err := g.authority.verifyVersion(ctx, claims.UserID, claims.TokenVersion); err != nil {
		switch {
		case errors.Is(err, errStaleVersion):
			return nil, g.reject(ctx, ReasonStaleVersion, claims.UserID, err)
		case errors.Is(err, errUnknownIdentity):
			return nil, g.reject(ctx, ReasonUnknownIdentity, claims.UserID, err)
		default:
			g.logger.ErrorContext(ctx, "token version lookup failed",
				slog.String("user_id", claims.UserID),
				slog.String("error", err.Error()),
			)
			return nil, apperrors.Internal(err)
		}
	}

	return claims.Principal(), nil
}

func (g *Gate) reject(ctx context.Context, reason, userID string, err error) error {
	gateRejectionsTotal.WithLabelValues(reason).Inc()
	g.logger.DebugContext(ctx, "bearer token rejected",
		slog.String("reason", reason),
		slog.String("user_id", userID),
		slog.String("error", err.Error()),
	)
	return apperrors.InvalidCredential(err)
}
