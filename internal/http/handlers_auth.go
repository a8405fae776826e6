package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	domainauth "github.com/target/opsdesk-go/internal/domain/auth"
	apperrors "github.com/target/opsdesk-go/internal/errors"
	"github.com/target/opsdesk-go/internal/service"
)

// SessionService is the session surface the bridge drives.
type SessionService interface {
	Login(ctx context.Context, email, password string) (domainauth.Identity, error)
	Register(ctx context.Context, in service.RegisterInput) (domainauth.Identity, error)
	Logout(ctx context.Context) error
	Current() domainauth.Identity
	State() domainauth.SessionState
	IsActive() bool
	Metadata(ctx context.Context) (domainauth.Metadata, error)
	Watch(ctx context.Context) <-chan domainauth.Identity
}

// ProfileService applies profile edits for the active session.
type ProfileService interface {
	UpdateProfile(ctx context.Context, upd service.ProfileUpdate) (domainauth.Identity, error)
}

// AuthHandlers provides HTTP handlers for authentication operations.
type AuthHandlers struct {
	Sessions SessionService
	Profiles ProfileService
	Logger   *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

type sessionResponse struct {
	Active   bool                    `json:"active"`
	State    domainauth.SessionState `json:"state"`
	Identity *domainauth.Identity    `json:"identity,omitempty"`
}

func newSessionResponse(id domainauth.Identity, state domainauth.SessionState) sessionResponse {
	resp := sessionResponse{State: state}
	if !id.IsZero() {
		resp.Active = true
		resp.Identity = &id
	}
	return resp
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /auth/login.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeLoginFailed(w)
		return
	}

	id, err := h.Sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger().Warn("login rejected", slog.String("error_kind", string(domainauth.KindOf(err))))
		writeLoginFailed(w)
		return
	}
	WriteJSON(w, http.StatusOK, newSessionResponse(id, h.Sessions.State()))
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Collection  string `json:"collection"`
	Role        string `json:"role"`
}

// Register handles POST /auth/register.
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	in := service.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Collection:  domainauth.Collection(req.Collection),
	}
	switch {
	case req.Role != "":
		role, err := domainauth.ParseRole(req.Role)
		if err != nil {
			writeServiceError(w, apperrors.ValidationField("role", "must be a known role"))
			return
		}
		in.Role = role
	case in.Collection == domainauth.CollectionClient:
		in.Role = domainauth.RoleClient
	default:
		in.Role = domainauth.RoleEmployee
	}

	id, err := h.Sessions.Register(r.Context(), in)
	if err != nil {
		if apperrors.IsValidation(err) {
			writeServiceError(w, err)
			return
		}
		h.logger().Warn("registration rejected", slog.String("error_kind", string(domainauth.KindOf(err))))
		writeLoginFailed(w)
		return
	}
	WriteJSON(w, http.StatusCreated, newSessionResponse(id, h.Sessions.State()))
}

// Logout handles POST /auth/logout. The session is always cleared; cleanup
// failures are only logged.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.Logout(r.Context()); err != nil {
		h.logger().Warn("logout cleanup incomplete", slog.Any("error", err))
	}
	w.WriteHeader(http.StatusNoContent)
}

// Session handles GET /auth/session.
func (h *AuthHandlers) Session(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, newSessionResponse(h.Sessions.Current(), h.Sessions.State()))
}

// Metadata handles GET /auth/metadata.
func (h *AuthHandlers) Metadata(w http.ResponseWriter, r *http.Request) {
	md, err := h.Sessions.Metadata(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, md)
}

// UpdateProfile handles PATCH /auth/profile.
func (h *AuthHandlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var upd service.ProfileUpdate
	if !DecodeJSON(w, r, &upd) {
		return
	}
	if upd.Empty() {
		writeServiceError(w, apperrors.Validation("at least one field must be updated"))
		return
	}

	id, err := h.Profiles.UpdateProfile(r.Context(), upd)
	if err != nil {
		if !apperrors.IsValidation(err) && !errors.Is(err, domainauth.ErrNotAuthenticated) {
			h.logger().Error("profile update failed",
				slog.String("error_kind", string(domainauth.KindOf(err))),
				slog.Any("error", err))
		}
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, newSessionResponse(id, h.Sessions.State()))
}
