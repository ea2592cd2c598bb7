package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/score-tracker/internal/auth"
	"github.com/score-tracker/internal/domain"
)

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the issued token and the resulting session
type LoginResponse struct {
	Token   string        `json:"token"`
	Session SessionStatus `json:"session"`
	Notice  domain.Notice `json:"notice"`
}

// SessionStatus is what the top bar shows
type SessionStatus struct {
	IsAuthenticated bool       `json:"is_authenticated"`
	IsAdmin         bool       `json:"is_admin"`
	Username        string     `json:"username,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
}

func statusOf(s *auth.Session) SessionStatus {
	if !s.IsAuthenticated() {
		return SessionStatus{}
	}
	status := SessionStatus{
		IsAuthenticated: true,
		IsAdmin:         s.IsAdmin(),
		Username:        s.Username,
	}
	if !s.ExpiresAt.IsZero() {
		expires := s.ExpiresAt
		status.ExpiresAt = &expires
	}
	return status
}

// sessionMiddleware attaches the caller's session, if any, to the request
// context. Invalid or expired tokens leave the caller anonymous.
func (h *Handler) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s := h.auth.SessionFromRequest(r); s != nil {
			r = r.WithContext(auth.WithSession(r.Context(), s))
		}
		next.ServeHTTP(w, r)
	})
}

// requireAdmin rejects anonymous callers with 401 and non-admins with 403
func requireAdmin(h *Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := auth.FromContext(r.Context())
			if !s.IsAuthenticated() {
				h.writeError(w, http.StatusUnauthorized, domain.ErrAuthRequired)
				return
			}
			if !s.IsAdmin() {
				h.writeError(w, http.StatusForbidden, domain.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Login checks the admin credentials and issues a session token
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	token, session, err := h.auth.Login(req.Username, req.Password)
	if err != nil {
		h.logger.Warn("login failed", "username", req.Username)
		h.writeJSON(w, http.StatusUnauthorized, APIResponse{
			Success: false,
			Data:    domain.Failure("Authentication failed", "Invalid credentials. Please try again."),
			Error:   domain.ErrInvalidCredentials.Error(),
		})
		return
	}

	h.auth.SetCookie(w, token, session.ExpiresAt)
	h.logger.Info("login succeeded", "username", session.Username)
	h.writeSuccess(w, LoginResponse{
		Token:   token,
		Session: statusOf(session),
		Notice:  domain.Success("Welcome back, admin!", "You now have full access to all features."),
	})
}

// Logout clears the session cookie
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.auth.ClearCookie(w)
	h.writeSuccess(w, map[string]any{
		"session": SessionStatus{},
		"notice":  domain.Success("Logged out successfully", "See you soon!"),
	})
}

// GetSession returns the caller's session flags
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, statusOf(auth.FromContext(r.Context())))
}
