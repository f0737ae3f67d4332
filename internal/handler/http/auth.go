package http

import (
	"log/slog"
	"net/http"

	"github.com/wangyz12/backend-admin/internal/service"
	apperrors "github.com/wangyz12/backend-admin/pkg/errors"
	"github.com/wangyz12/backend-admin/pkg/httputil"
	"github.com/wangyz12/backend-admin/pkg/middleware"
)

// AuthHandler handles HTTP requests for auth endpoints.
type AuthHandler struct {
	service *service.UserService
	logger  *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(svc *service.UserService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, logger: logger}
}

// --- Request DTOs ---

// RegisterRequest is the JSON request body for user registration.
type RegisterRequest struct {
	Account    string `json:"account" validate:"required,min=2,max=50"`
	Password   string `json:"password" validate:"required,min=2,max=50,password"`
	Username   string `json:"username" validate:"omitempty,min=2,max=30"`
	EmployeeID string `json:"employee_id" validate:"omitempty,min=2,max=20"`
	Department string `json:"department" validate:"omitempty,max=50"`
	Avatar     string `json:"avatar" validate:"omitempty,url"`
	Phone      string `json:"phone" validate:"omitempty,cnphone"`
	Email      string `json:"email" validate:"omitempty,email"`
}

// LoginRequest is the JSON request body for user login.
type LoginRequest struct {
	Account  string `json:"account" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RefreshTokenRequest is the JSON request body for token refresh.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// ChangePasswordRequest is the JSON request body for changing the password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=2,max=50,password,nefield=OldPassword"`
}

// --- Handlers ---

// Register handles POST /api/v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	bundle, err := h.service.Register(r.Context(), service.RegisterInput{
		Account:    req.Account,
		Password:   req.Password,
		Username:   req.Username,
		EmployeeID: req.EmployeeID,
		Department: req.Department,
		Avatar:     req.Avatar,
		Phone:      req.Phone,
		Email:      req.Email,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: bundle})
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	bundle, err := h.service.Login(r.Context(), service.LoginInput{
		Account:  req.Account,
		Password: req.Password,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: bundle})
}

// RefreshToken handles POST /api/v1/auth/refresh
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	tokens, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: tokens})
}

// ChangePassword handles POST /api/v1/auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		httputil.WriteError(w, r, apperrors.NoCredential(), h.logger)
		return
	}

	var req ChangePasswordRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	if err := h.service.ChangePassword(r.Context(), userID, req.OldPassword, req.NewPassword); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: httputil.MessageResponse{Message: "password changed, please log in again"},
	})
}

// Logout handles POST /api/v1/auth/logout. Every token of the caller stops
// working, the one used for this request included.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		httputil.WriteError(w, r, apperrors.NoCredential(), h.logger)
		return
	}

	if err := h.service.Logout(r.Context(), userID); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: httputil.MessageResponse{Message: "logged out"},
	})
}
