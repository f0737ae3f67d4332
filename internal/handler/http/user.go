package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wangyz12/backend-admin/internal/domain"
	"github.com/wangyz12/backend-admin/internal/service"
	apperrors "github.com/wangyz12/backend-admin/pkg/errors"
	"github.com/wangyz12/backend-admin/pkg/httputil"
	"github.com/wangyz12/backend-admin/pkg/middleware"
)

// UserHandler handles HTTP requests for user profile endpoints.
type UserHandler struct {
	service *service.UserService
	logger  *slog.Logger
}

// NewUserHandler creates a new user HTTP handler.
func NewUserHandler(svc *service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{service: svc, logger: logger}
}

// --- Request DTOs ---

// UpdateProfileRequest is the JSON request body for updating the caller's
// profile. Omitted fields are left unchanged.
type UpdateProfileRequest struct {
	Username   *string `json:"username" validate:"omitempty,min=2,max=30"`
	Avatar     *string `json:"avatar" validate:"omitempty,url"`
	Phone      *string `json:"phone" validate:"omitempty,cnphone"`
	Email      *string `json:"email" validate:"omitempty,email"`
	Department *string `json:"department" validate:"omitempty,max=50"`
	EmployeeID *string `json:"employee_id" validate:"omitempty,min=2,max=20"`
}

// RevokeSessionsResponse reports the token version after a revoke.
type RevokeSessionsResponse struct {
	UserID       string `json:"user_id"`
	TokenVersion int64  `json:"token_version"`
}

// --- Handlers ---

// GetProfile handles GET /api/v1/users/me
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		httputil.WriteError(w, r, apperrors.NoCredential(), h.logger)
		return
	}

	user, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: user})
}

// UpdateProfile handles PUT /api/v1/users/me
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		httputil.WriteError(w, r, apperrors.NoCredential(), h.logger)
		return
	}

	var req UpdateProfileRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	user, err := h.service.UpdateProfile(r.Context(), userID, domain.ProfileUpdate{
		Username:   req.Username,
		Avatar:     req.Avatar,
		Phone:      req.Phone,
		Email:      req.Email,
		Department: req.Department,
		EmployeeID: req.EmployeeID,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: user})
}

// RevokeSessions handles POST /api/v1/users/{id}/revoke (admin only).
func (h *UserHandler) RevokeSessions(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	version, err := h.service.RevokeSessions(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.logger.InfoContext(r.Context(), "sessions revoked by administrator",
		slog.String("target_user_id", id.String()),
		slog.String("admin_user_id", middleware.UserIDFromContext(r.Context())),
	)

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: RevokeSessionsResponse{UserID: id.String(), TokenVersion: version},
	})
}
