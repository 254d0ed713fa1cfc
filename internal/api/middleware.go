package api

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/goizzi/backoffice-service/internal/app"
	"github.com/goizzi/backoffice-service/internal/domain"
)

type contextKey string

const staffSessionContextKey contextKey = "staffSession"

// SessionMiddleware rejects requests without an active staff session. The session
// cookie is checked first, then an "Authorization: Bearer <Firebase ID token>" header.
func SessionMiddleware(sessions *app.SessionService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var session *domain.StaffSession
			if sessions != nil {
				if cookie, err := r.Cookie(app.SessionCookieName); err == nil {
					session = sessions.Resolve(r.Context(), cookie.Value)
				}
				if session == nil {
					if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
						session = sessions.ResolveIDToken(r.Context(), token)
					}
				}
			}
			if session == nil {
				writeError(w, http.StatusUnauthorized, app.ErrUnauthenticated.Error())
				return
			}
			ctx := context.WithValue(r.Context(), staffSessionContextKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NameLoaderMiddleware attaches a request-scoped batching loader for staff display names.
func NameLoaderMiddleware(users *app.UserDirectory) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if users == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := app.WithNameLoader(r.Context(), users.NewNameLoader())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// StaffSessionFromContext returns the session set by SessionMiddleware.
func StaffSessionFromContext(ctx context.Context) (*domain.StaffSession, bool) {
	session, ok := ctx.Value(staffSessionContextKey).(*domain.StaffSession)
	return session, ok && session != nil
}

func bearerToken(authHeader string) (string, bool) {
	authHeader = strings.TrimSpace(authHeader)
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

// clientIP returns the caller address. RealIP has already applied the forwarding
// headers to RemoteAddr when the peer is a trusted proxy.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
