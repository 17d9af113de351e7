package api

import (
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/simracing-tools/laptrack/pkg/config"
)

// limiterClass names one of the independent rate limit budgets.
type limiterClass string

const (
	limiterGeneral limiterClass = "general"
	limiterSubmit  limiterClass = "submit"
	limiterAuth    limiterClass = "auth"
)

// tokenIdentityLen is how much of a bearer token contributes to the
// client identity.
const tokenIdentityLen = 16

// rateLimiter admits requests per (identity, class) within a trailing
// window. State is process-local and resets on restart.
type rateLimiter struct {
	mu      sync.Mutex
	budgets map[limiterClass]config.RateLimitBudget
	windows map[limiterClass]map[string][]time.Time

	// now is swappable for tests.
	now func() time.Time
}

func newRateLimiter(cfg *config.RateLimitConfig) *rateLimiter {
	budgets := map[limiterClass]config.RateLimitBudget{
		limiterGeneral: cfg.General,
		limiterSubmit:  cfg.Submit,
		limiterAuth:    cfg.Auth,
	}

	windows := make(map[limiterClass]map[string][]time.Time, len(budgets))
	for class := range budgets {
		windows[class] = make(map[string][]time.Time)
	}

	return &rateLimiter{
		budgets: budgets,
		windows: windows,
		now:     time.Now,
	}
}

// checkAndRecord prunes the identity's window, then either rejects with
// the seconds until the oldest recorded request leaves the window, or
// records the request and admits it.
func (l *rateLimiter) checkAndRecord(
	identity string, class limiterClass,
) (limited bool, retryAfter int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	budget := l.budgets[class]
	now := l.now()
	cutoff := now.Add(-time.Duration(budget.WindowSeconds) * time.Second)

	window := l.windows[class][identity]

	kept := window[:0]

	for _, t := range window {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= budget.MaxRequests {
		l.windows[class][identity] = kept

		oldest := kept[0]
		for _, t := range kept[1:] {
			if t.Before(oldest) {
				oldest = t
			}
		}

		wait := oldest.Add(
			time.Duration(budget.WindowSeconds) * time.Second,
		).Sub(now)

		retry := int(math.Ceil(wait.Seconds()))
		if retry < 0 {
			retry = 0
		}

		return true, retry
	}

	l.windows[class][identity] = append(kept, now)

	return false, 0
}

// cleanup drops identities whose every recorded request has aged out of
// its window, keeping the maps from growing without bound.
func (l *rateLimiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	for class, identities := range l.windows {
		cutoff := now.Add(
			-time.Duration(l.budgets[class].WindowSeconds) * time.Second,
		)

		for identity, window := range identities {
			stale := true

			for _, t := range window {
				if t.After(cutoff) {
					stale = false

					break
				}
			}

			if stale {
				delete(identities, identity)
			}
		}
	}
}

// clientIdentity derives the rate limit key for a request: forwarded
// address first, then a bearer token prefix, then the real IP header,
// then a shared bucket.
func clientIdentity(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")

		return strings.TrimSpace(first)
	}

	auth := r.Header.Get("Authorization")

	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		if len(token) > tokenIdentityLen {
			token = token[:tokenIdentityLen]
		}

		return "token:" + token
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	return "unknown"
}
