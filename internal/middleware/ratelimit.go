package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"vellum/internal/httputil"
)

// AIRateLimiter applies a per-user token bucket to the generation endpoints.
// A limited request gets a 429 problem body with retry guidance; everything
// outside /api/ai/ passes through untouched.
type AIRateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex

	perMinute int
	logger    *slog.Logger
}

// NewAIRateLimiter creates a limiter allowing perMinute requests per user
// with a burst of the same size. perMinute <= 0 disables limiting.
func NewAIRateLimiter(perMinute int, logger *slog.Logger) *AIRateLimiter {
	return &AIRateLimiter{
		limiters:  make(map[string]*rate.Limiter),
		perMinute: perMinute,
		logger:    logger,
	}
}

// Handler wraps next with rate limiting for /api/ai/ paths.
func (l *AIRateLimiter) Handler(next http.Handler) http.Handler {
	if l.perMinute <= 0 {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/ai/") {
			next.ServeHTTP(w, r)
			return
		}

		userID := httputil.GetUserID(r)
		if !l.limiterFor(userID).Allow() {
			l.logger.Warn("AI request rate limited", "user_id", userID, "path", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			httputil.RespondError(w, http.StatusTooManyRequests,
				"too many AI requests; wait a minute before retrying")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (l *AIRateLimiter) limiterFor(userID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[userID]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.perMinute)
		l.limiters[userID] = limiter
	}
	return limiter
}
