package auth

import (
	"context"
	"time"
)

// Session is the caller's identity and role. A nil Session is an
// unauthenticated viewer.
type Session struct {
	Username  string    `json:"username"`
	Admin     bool      `json:"admin"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsAuthenticated reports whether the session belongs to a logged-in caller
func (s *Session) IsAuthenticated() bool {
	return s != nil && s.Username != ""
}

// IsAdmin reports whether the session has elevated privileges
func (s *Session) IsAdmin() bool {
	return s.IsAuthenticated() && s.Admin
}

// ServiceSession returns an authenticated, non-admin session for internal
// producers such as the score ingestion consumer.
func ServiceSession(name string) *Session {
	return &Session{Username: name}
}

type contextKey string

var sessionCtxKey = contextKey("session")

// WithSession returns a copy of ctx carrying s
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey, s)
}

// FromContext returns the session carried by ctx, or nil
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionCtxKey).(*Session)
	return s
}
