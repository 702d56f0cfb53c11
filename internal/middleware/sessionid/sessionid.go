// Package sessionid provides utilities to tie every request to a browser
// session id carried in a cookie and to retrieve that id from the context.
package sessionid

import (
	"context"
	"errors"
	"net/http"

	"github.com/openkcm/addon-auth/internal/config"
)

// Using an unexported type prevents key collisions from other packages.
type contextKey string

// SessionIDKey is the context key for the browser session id.
const SessionIDKey contextKey = "session-id"

var ErrNoSessionID = errors.New("session id not found in context")

// Generator returns a new opaque session id.
type Generator func() string

// Middleware reads the session id from the cookie described by cookie. A
// request without one gets a fresh id, which is also set on the response.
func Middleware(cookie config.CookieTemplate, generate Generator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var sid string
			if c, err := r.Cookie(cookie.Name); err == nil {
				sid = c.Value
			}

			if sid == "" {
				sid = generate()
				http.SetCookie(w, cookie.ToCookie(sid))
			}

			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), sid)))
		})
	}
}

func NewContext(ctx context.Context, sid string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sid)
}

// FromContext retrieves the session id set by Middleware.
func FromContext(ctx context.Context) (string, error) {
	sid, ok := ctx.Value(SessionIDKey).(string)
	if !ok || sid == "" {
		return "", ErrNoSessionID
	}

	return sid, nil
}
