// Package identity provides anonymous per-browser session identity.
package identity

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	SessionCookieName = "coach_session_id"
	SessionHeaderName = "X-Coach-Session-ID"
	sessionCookieAge  = 24 * time.Hour
)

type contextKey int

const sessionIDKey contextKey = iota

// SessionIDFromContext extracts the session ID from the request context.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return ""
}

// WithSessionID returns a context carrying id.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// NewSessionID returns a random session ID.
func NewSessionID() string {
	return uuid.NewString()
}

// sanitizeSessionID returns the canonical form of id, or "" when id is not a UUID.
func sanitizeSessionID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	u, err := uuid.Parse(id)
	if err != nil {
		return ""
	}
	return u.String()
}

func setSessionCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(sessionCookieAge.Seconds()),
		Expires:  time.Now().Add(sessionCookieAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

// sessionIDFromRequest prefers an explicit header, then the cookie.
func sessionIDFromRequest(r *http.Request) string {
	if id := sanitizeSessionID(r.Header.Get(SessionHeaderName)); id != "" {
		return id
	}
	if c, err := r.Cookie(SessionCookieName); err == nil {
		return sanitizeSessionID(c.Value)
	}
	return ""
}

// Middleware injects the session ID, issuing a new cookie when the request
// carries no valid one.
func Middleware(isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := sessionIDFromRequest(r)
			if id == "" {
				id = NewSessionID()
			}
			setSessionCookie(w, id, isDev)
			next.ServeHTTP(w, r.WithContext(WithSessionID(r.Context(), id)))
		})
	}
}

// IPFromRequest returns a normalized remote IP for request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
