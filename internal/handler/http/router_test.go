package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/wangyz12/backend-admin/internal/auth"
	"github.com/wangyz12/backend-admin/internal/domain"
	"github.com/wangyz12/backend-admin/internal/event"
	"github.com/wangyz12/backend-admin/internal/ratelimit"
	"github.com/wangyz12/backend-admin/internal/repository/memory"
	"github.com/wangyz12/backend-admin/internal/service"
	"github.com/wangyz12/backend-admin/pkg/health"
	"github.com/wangyz12/backend-admin/pkg/httputil"
	"github.com/wangyz12/backend-admin/pkg/middleware"
)

// ============================================================================
// Test Helpers
// ============================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) httputil.Response {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

// decodeData re-decodes the data part of the envelope into dst.
func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var raw struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&raw))
	require.NoError(t, json.Unmarshal(raw.Data, dst))
}

type testServer struct {
	handler http.Handler
	repo    *memory.UserRepository
}

func newTestServer(t *testing.T) *testServer {
	return newTestServerWithConfig(t, RouterConfig{ServiceName: "test", CORS: middleware.DefaultCORSConfig()})
}

func newTestServerWithConfig(t *testing.T, cfg RouterConfig) *testServer {
	t.Helper()
	logger := testLogger()
	repo := memory.NewUserRepository()
	tokens := auth.NewJWTManager(auth.TokenConfig{
		AccessSecret: "handler-test-secret",
		AccessTTL:    15 * time.Minute,
		RefreshTTL:   7 * 24 * time.Hour,
	})
	sessions := auth.NewSessionAuthority(repo, tokens, logger)
	gate := auth.NewGate(sessions, logger)
	svc := service.NewUserService(repo, auth.NewBcryptHasher(bcrypt.MinCost), sessions, ratelimit.Nop{}, event.NopProducer{}, logger)

	return &testServer{
		handler: NewRouter(cfg, svc, gate.Validate, health.NewHandler(), logger),
		repo:    repo,
	}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

type bundleView struct {
	User         domain.User `json:"user"`
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
}

func (s *testServer) register(t *testing.T, account, password string) bundleView {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"account":  account,
		"password": password,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var b bundleView
	decodeData(t, rec, &b)
	return b
}

func (s *testServer) login(t *testing.T, account, password string) bundleView {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"account":  account,
		"password": password,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var b bundleView
	decodeData(t, rec, &b)
	return b
}

// seedAdmin stores an administrator directly, since self-registration never
// grants the admin role.
func (s *testServer) seedAdmin(t *testing.T) bundleView {
	t.Helper()
	digest, err := auth.NewBcryptHasher(bcrypt.MinCost).Hash("root_123")
	require.NoError(t, err)
	require.NoError(t, s.repo.Create(context.Background(), &domain.User{
		ID:           uuid.New().String(),
		Account:      "admin01",
		PasswordHash: digest,
		Username:     "Admin",
		Role:         domain.RoleAdmin,
	}))
	return s.login(t, "admin01", "root_123")
}

func assertErrorCode(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) httputil.Response {
	t.Helper()
	assert.Equal(t, status, rec.Code, rec.Body.String())
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, code, resp.Error.Code)
	return resp
}

// ============================================================================
// End-to-end Scenarios
// ============================================================================

func TestScenario_RegisterIssuesVersionZero(t *testing.T) {
	s := newTestServer(t)

	b := s.register(t, "alice01", "abc_123")

	assert.Equal(t, "alice01", b.User.Account)
	assert.Equal(t, int64(0), b.User.TokenVersion)
	assert.NotEmpty(t, b.AccessToken)

	rec := s.do(t, http.MethodGet, "/api/v1/users/me", b.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var me domain.User
	decodeData(t, rec, &me)
	assert.Equal(t, b.User.ID, me.ID)
	assert.Equal(t, int64(0), me.TokenVersion)
}

func TestScenario_ChangePasswordInvalidatesOldToken(t *testing.T) {
	s := newTestServer(t)
	b := s.register(t, "alice01", "abc_123")

	rec := s.do(t, http.MethodPost, "/api/v1/auth/change-password", b.AccessToken, map[string]string{
		"old_password": "abc_123",
		"new_password": "new_456",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/v1/users/me", b.AccessToken, nil)
	assertErrorCode(t, rec, http.StatusUnauthorized, "INVALID_CREDENTIAL")

	fresh := s.login(t, "alice01", "new_456")
	rec = s.do(t, http.MethodGet, "/api/v1/users/me", fresh.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestScenario_LogoutInvalidatesItsOwnToken(t *testing.T) {
	s := newTestServer(t)
	b := s.register(t, "alice01", "abc_123")

	rec := s.do(t, http.MethodPost, "/api/v1/auth/logout", b.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/v1/auth/logout", b.AccessToken, nil)
	assertErrorCode(t, rec, http.StatusUnauthorized, "INVALID_CREDENTIAL")

	rec = s.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refresh_token": b.RefreshToken})
	assertErrorCode(t, rec, http.StatusUnauthorized, "INVALID_CREDENTIAL")
}

func TestScenario_RejectionsAreIndistinguishable(t *testing.T) {
	s := newTestServer(t)
	b := s.register(t, "alice01", "abc_123")

	badSig := b.AccessToken + "x"
	rec := s.do(t, http.MethodGet, "/api/v1/users/me", badSig, nil)
	sigResp := assertErrorCode(t, rec, http.StatusUnauthorized, "INVALID_CREDENTIAL")

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/auth/logout", b.AccessToken, nil).Code)
	rec = s.do(t, http.MethodGet, "/api/v1/users/me", b.AccessToken, nil)
	staleResp := assertErrorCode(t, rec, http.StatusUnauthorized, "INVALID_CREDENTIAL")

	assert.Equal(t, sigResp.Error.Message, staleResp.Error.Message)
}

// ============================================================================
// Router Tests
// ============================================================================

func TestRouter_MissingToken(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/api/v1/users/me", "/api/v1/auth/logout"} {
		method := http.MethodGet
		if path == "/api/v1/auth/logout" {
			method = http.MethodPost
		}
		rec := s.do(t, method, path, "", nil)
		assertErrorCode(t, rec, http.StatusUnauthorized, "NO_CREDENTIAL")
	}
}

func TestRouter_MalformedAuthorizationHeader(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.Header.Set("Authorization", "Token abc")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assertErrorCode(t, rec, http.StatusUnauthorized, "NO_CREDENTIAL")
}

func TestRouter_NotFound(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/nope", "", nil)
	assertErrorCode(t, rec, http.StatusNotFound, "NOT_FOUND")
}

func TestRouter_AuthResponsesAreNotCached(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"account":  "alice01",
		"password": "abc_123",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
}

func TestRouter_Health(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_RateLimitOnPublicAuthRoutes(t *testing.T) {
	s := newTestServerWithConfig(t, RouterConfig{
		ServiceName:    "test",
		CORS:           middleware.DefaultCORSConfig(),
		RateLimitRPS:   0.001,
		RateLimitBurst: 1,
	})

	body := map[string]string{"account": "nobody", "password": "abc_123"}
	rec := s.do(t, http.MethodPost, "/api/v1/auth/login", "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/auth/login", "", body)
	assertErrorCode(t, rec, http.StatusTooManyRequests, "TOO_MANY_REQUESTS")
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestRouter_StaticFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/app.js", []byte("console.log('admin')"), 0o600))

	s := newTestServerWithConfig(t, RouterConfig{ServiceName: "test", StaticDir: dir})

	rec := s.do(t, http.MethodGet, "/app.js", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "admin")
	assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))

	// API responses are never publicly cacheable.
	rec = s.do(t, http.MethodGet, "/api/v1/users/me", "", nil)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	rec = s.do(t, http.MethodGet, "/api/v1/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// httptestRecorder invokes h directly, bypassing the router and its auth
// middleware.
func httptestRecorder(h http.HandlerFunc, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestRouter_CORSPreflightOnLogin(t *testing.T) {
	s := newTestServerWithConfig(t, RouterConfig{
		ServiceName: "test",
		CORS:        middleware.CORSConfig{AllowedOrigins: []string{"https://admin.example.com"}},
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/auth/login", nil)
	req.Header.Set("Origin", "https://admin.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://admin.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestRouter_PprofOnlyFromAllowlist(t *testing.T) {
	s := newTestServerWithConfig(t, RouterConfig{
		ServiceName:    "test",
		CORS:           middleware.DefaultCORSConfig(),
		PprofAllowlist: []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")},
	})

	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/cmdline", nil)
	req.RemoteAddr = "10.1.2.3:4000"
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/debug/pprof/cmdline", nil)
	req.RemoteAddr = "203.0.113.9:4000"
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assertErrorCode(t, rec, http.StatusForbidden, "FORBIDDEN")
}

func TestRouter_PprofNotMountedWithoutAllowlist(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/debug/pprof/cmdline", "", nil)
	assertErrorCode(t, rec, http.StatusNotFound, "NOT_FOUND")
}
