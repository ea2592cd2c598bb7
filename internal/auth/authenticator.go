package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/score-tracker/internal/config"
	"github.com/score-tracker/internal/domain"
)

// Claims are the JWT claims of a session token
type Claims struct {
	Admin bool `json:"admin"`
	jwt.RegisteredClaims
}

// Authenticator checks the fixed admin credentials and issues session tokens
type Authenticator struct {
	username     string
	passwordHash []byte
	secret       []byte
	ttl          time.Duration
	cookieName   string
	now          func() time.Time
}

// NewAuthenticator creates an authenticator from configuration
func NewAuthenticator(cfg *config.AuthConfig) (*Authenticator, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing admin password: %w", err)
	}
	return &Authenticator{
		username:     cfg.AdminUsername,
		passwordHash: hash,
		secret:       []byte(cfg.JWTSecret),
		ttl:          cfg.TokenTTL,
		cookieName:   cfg.CookieName,
		now:          time.Now,
	}, nil
}

// Login checks the credentials and returns a signed token for an admin session
func (a *Authenticator) Login(username, password string) (string, *Session, error) {
	userOK := subtle.ConstantTimeCompare([]byte(strings.TrimSpace(username)), []byte(a.username)) == 1
	passOK := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)) == nil
	if !userOK || !passOK {
		return "", nil, domain.ErrInvalidCredentials
	}

	now := a.now()
	session := &Session{
		Username:  a.username,
		Admin:     true,
		ExpiresAt: now.Add(a.ttl),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Admin: session.Admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
	})
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", nil, fmt.Errorf("signing token: %w", err)
	}
	return signed, session, nil
}

// Parse validates a session token and returns its session
func (a *Authenticator) Parse(tokenStr string) (*Session, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil || !token.Valid {
		return nil, errors.Join(domain.ErrAuthRequired, err)
	}
	if claims.Subject == "" {
		return nil, domain.ErrAuthRequired
	}

	session := &Session{Username: claims.Subject, Admin: claims.Admin}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}

// SessionFromRequest returns the session of the request's bearer token or
// cookie, or nil for anonymous callers and invalid tokens.
func (a *Authenticator) SessionFromRequest(r *http.Request) *Session {
	tokenStr := a.tokenFromRequest(r)
	if tokenStr == "" {
		return nil
	}
	session, err := a.Parse(tokenStr)
	if err != nil {
		return nil
	}
	return session
}

func (a *Authenticator) tokenFromRequest(r *http.Request) string {
	// Authorization: Bearer <token>
	if h := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(h), "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	if c, err := r.Cookie(a.cookieName); err == nil {
		return c.Value
	}
	return ""
}

// SetCookie stores the session token in an HTTP-only cookie
func (a *Authenticator) SetCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  expires,
	})
}

// ClearCookie removes the session cookie
func (a *Authenticator) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
