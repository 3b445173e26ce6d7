package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/JonMunkholm/sanandem/internal/auth"
	"github.com/JonMunkholm/sanandem/internal/core"
	"github.com/JonMunkholm/sanandem/internal/logging"
)

// SessionValidator resolves a session token.
type SessionValidator interface {
	ValidateSessionToken(ctx context.Context, token string) (auth.SessionValidationResult, error)
}

// SessionOptions configures Session.
type SessionOptions struct {
	// Secure sets the Secure flag on refreshed cookies.
	Secure bool

	// ProtectedPrefix requires a user for matching paths (default: /dashboard)
	ProtectedPrefix string

	// LoginPath is where anonymous requests for protected paths go (default: /login)
	LoginPath string
}

// Session reads the session cookie, attaches the validated user to the
// request context and keeps the cookie in step with the session expiry.
func Session(validator SessionValidator, opts SessionOptions) func(http.Handler) http.Handler {
	if opts.ProtectedPrefix == "" {
		opts.ProtectedPrefix = "/dashboard"
	}
	if opts.LoginPath == "" {
		opts.LoginPath = "/login"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			protected := strings.HasPrefix(r.URL.Path, opts.ProtectedPrefix)

			token, ok := auth.ReadCookie(r)
			if !ok {
				if protected {
					http.Redirect(w, r, opts.LoginPath, http.StatusFound)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			result, err := validator.ValidateSessionToken(r.Context(), token)
			if err != nil {
				logging.FromContext(r.Context()).Error("session validation failed", "error", err)
			}

			ctx := r.Context()
			if result.Valid() {
				auth.WriteCookie(w, token, result.Session.ExpiresAt, opts.Secure)
				ctx = auth.ContextWithSession(ctx, result)
				ctx = core.ContextWithUserID(ctx, result.User.ID)
				ctx = logging.ContextWithUserID(ctx, result.User.ID)
			} else if err == nil {
				auth.ClearCookie(w, opts.Secure)
			}

			if protected && !result.Valid() {
				http.Redirect(w, r, opts.LoginPath, http.StatusFound)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireUser answers 401 JSON when no signed-in user is attached.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.UserFromContext(r.Context()) == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Unauthorized"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
