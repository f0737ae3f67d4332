package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wangyz12/backend-admin/internal/domain"
	"github.com/wangyz12/backend-admin/pkg/middleware"
)

// Token verification failures. Callers outside this package only ever see a
// merged "invalid or expired" error; the split is kept for logs and metrics.
var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

// Token types carried in the token_type claim so an access token can never
// be replayed as a refresh token, or the reverse, when both share a secret.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// DefaultIssuer is used when TokenConfig.Issuer is empty.
const DefaultIssuer = "backend-admin"

// Claims is the payload of every token this service mints.
type Claims struct {
	UserID       string `json:"user_id"`
	Account      string `json:"account"`
	Role         string `json:"role"`
	TokenVersion int64  `json:"token_version"`
	TokenType    string `json:"token_type"`
	jwt.RegisteredClaims
}

// ClaimsFor builds the identity part of the claims from a stored user.
func ClaimsFor(u *domain.User) Claims {
	return Claims{
		UserID:       u.ID,
		Account:      u.Account,
		Role:         u.Role,
		TokenVersion: u.TokenVersion,
	}
}

// Principal converts verified claims into the request-scoped identity.
func (c *Claims) Principal() *middleware.Claims {
	return &middleware.Claims{
		UserID:       c.UserID,
		Account:      c.Account,
		Role:         c.Role,
		TokenVersion: c.TokenVersion,
	}
}

// TokenConfig configures secrets and lifetimes. An empty RefreshSecret falls
// back to AccessSecret.
type TokenConfig struct {
	AccessSecret  string
	AccessTTL     time.Duration
	RefreshSecret string
	RefreshTTL    time.Duration
	Issuer        string
}

// JWTManager mints and verifies HS256 tokens. It is immutable after
// construction and safe for concurrent use.
type JWTManager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	now           func() time.Time
}

// NewJWTManager creates a JWT manager from cfg.
func NewJWTManager(cfg TokenConfig) *JWTManager {
	refresh := cfg.RefreshSecret
	if refresh == "" {
		refresh = cfg.AccessSecret
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = DefaultIssuer
	}
	return &JWTManager{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(refresh),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		issuer:        issuer,
		now:           time.Now,
	}
}

// SharesSecret reports whether access and refresh tokens are signed with the
// same key.
func (m *JWTManager) SharesSecret() bool {
	return string(m.accessSecret) == string(m.refreshSecret)
}

// Mint stamps issuer, subject, issued-at and expiry onto c and signs it.
func (m *JWTManager) Mint(c Claims, secret []byte, ttl time.Duration) (string, error) {
	now := m.now().UTC()
	c.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   c.UserID,
		Issuer:    m.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &c).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", c.TokenType, err)
	}
	return signed, nil
}

// Verify checks signature, algorithm, issuer and expiry. Failures wrap either
// ErrTokenExpired or ErrTokenInvalid.
func (m *JWTManager) Verify(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: unexpected claims", ErrTokenInvalid)
	}
	if claims.UserID == "" || claims.TokenVersion < 0 {
		return nil, fmt.Errorf("%w: missing identity claims", ErrTokenInvalid)
	}
	return claims, nil
}

// GenerateAccessToken mints an access token for c.
func (m *JWTManager) GenerateAccessToken(c Claims) (string, error) {
	c.TokenType = TokenTypeAccess
	return m.Mint(c, m.accessSecret, m.accessTTL)
}

// GenerateRefreshToken mints a refresh token for c.
func (m *JWTManager) GenerateRefreshToken(c Claims) (string, error) {
	c.TokenType = TokenTypeRefresh
	return m.Mint(c, m.refreshSecret, m.refreshTTL)
}

// GenerateTokenPair mints both tokens carrying the same identity and version.
func (m *JWTManager) GenerateTokenPair(c Claims) (*domain.TokenPair, error) {
	access, err := m.GenerateAccessToken(c)
	if err != nil {
		return nil, err
	}
	refresh, err := m.GenerateRefreshToken(c)
	if err != nil {
		return nil, err
	}
	return &domain.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// ValidateAccessToken verifies an access token with the access secret.
func (m *JWTManager) ValidateAccessToken(tokenString string) (*Claims, error) {
	return m.validate(tokenString, m.accessSecret, TokenTypeAccess)
}

// ValidateRefreshToken verifies a refresh token with the refresh secret.
func (m *JWTManager) ValidateRefreshToken(tokenString string) (*Claims, error) {
	return m.validate(tokenString, m.refreshSecret, TokenTypeRefresh)
}

func (m *JWTManager) validate(tokenString string, secret []byte, tokenType string) (*Claims, error) {
	claims, err := m.Verify(tokenString, secret)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != tokenType {
		return nil, fmt.Errorf("%w: expected %s token, got %q", ErrTokenInvalid, tokenType, claims.TokenType)
	}
	return claims, nil
}
