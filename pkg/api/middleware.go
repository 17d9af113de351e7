package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/simracing-tools/laptrack/pkg/api/store"
)

type contextKey string

const sessionContextKey contextKey = "session"

// routeRule statically maps a path pattern to a limiter class and an
// auth requirement. Unmatched paths bypass rate limiting and auth.
type routeRule struct {
	pattern string
	limiter limiterClass
	auth    bool
}

var routeRules = []routeRule{
	{"/leaderboard/{track}", limiterGeneral, false},
	{"/leaderboard/{track}/times", limiterGeneral, false},
	{"/leaderboard/{track}/submit", limiterSubmit, true},
	{"/user", limiterGeneral, true},
	{"/user/logout", limiterAuth, true},
	{"/discord", limiterAuth, false},
	{"/discord/callback", limiterAuth, false},
}

// matchRoute returns the rule for path. Wildcard segments match any
// single path segment; segment counts must be identical.
func matchRoute(path string) *routeRule {
	for i := range routeRules {
		if routeRules[i].pattern == path {
			return &routeRules[i]
		}
	}

	pathParts := strings.Split(path, "/")

	for i := range routeRules {
		rule := &routeRules[i]

		if !strings.Contains(rule.pattern, "{") {
			continue
		}

		patternParts := strings.Split(rule.pattern, "/")
		if len(patternParts) != len(pathParts) {
			continue
		}

		matched := true

		for j, part := range patternParts {
			if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
				continue
			}

			if part != pathParts[j] {
				matched = false

				break
			}
		}

		if matched {
			return rule
		}
	}

	return nil
}

// requestLogger logs incoming HTTP requests.
func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		s.log.WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("remote", r.RemoteAddr).
			WithField("duration", time.Since(start)).
			Debug("Request handled")
	})
}

// rateLimitMiddleware admits requests against the route's limiter
// class.
func (s *server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rule := matchRoute(r.URL.Path)
		if rule == nil {
			next.ServeHTTP(w, r)

			return
		}

		identity := clientIdentity(r)

		limited, retryAfter := s.limiter.checkAndRecord(identity, rule.limiter)
		if limited {
			s.log.WithField("identity", identity).
				WithField("path", r.URL.Path).
				Warn("Rate limit exceeded")

			writeJSON(w, http.StatusTooManyRequests, rateLimitedResponse{
				Error:      "Rate limit exceeded",
				RetryAfter: retryAfter,
			})

			return
		}

		next.ServeHTTP(w, r)
	})
}

// authMiddleware resolves the bearer token for routes that require it
// and injects the auth session into the request context.
func (s *server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rule := matchRoute(r.URL.Path)
		if rule == nil || !rule.auth {
			next.ServeHTTP(w, r)

			return
		}

		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			s.log.WithField("path", r.URL.Path).Warn("Missing auth token")
			writeJSON(w, http.StatusUnauthorized,
				errorResponse{"Missing Authorization header"})

			return
		}

		session, err := s.store.GetAuthSessionByToken(r.Context(), token)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				s.log.WithField("path", r.URL.Path).Warn("Invalid token")
				writeJSON(w, http.StatusUnauthorized,
					errorResponse{"Invalid token"})

				return
			}

			s.log.WithError(err).Error("Auth session lookup failed")
			writeJSON(w, http.StatusInternalServerError,
				errorResponse{"Internal server error"})

			return
		}

		ctx := context.WithValue(r.Context(), sessionContextKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionFromContext extracts the authenticated session from the
// request context.
func sessionFromContext(ctx context.Context) *store.AuthSession {
	session, _ := ctx.Value(sessionContextKey).(*store.AuthSession)

	return session
}
