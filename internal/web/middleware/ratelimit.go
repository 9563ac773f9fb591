package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/asgardtech/pathsec/internal/web/ratelimit"
	"github.com/asgardtech/pathsec/internal/web/response"
)

// RateLimitConfig holds configuration for rate limiting middleware
type RateLimitConfig struct {
	// Limiter is the rate limiter implementation to use
	Limiter ratelimit.Limiter
	// KeyFunc extracts the rate limit key from the request
	KeyFunc RateLimitKeyFunc
	// FailOpen serves the request when the limiter errors
	FailOpen bool
	// Logger receives limiter errors
	Logger *zap.Logger
}

// RateLimitKeyFunc extracts a rate limit key from a request
type RateLimitKeyFunc func(*http.Request) string

// RateLimit limits requests per authenticated client, falling back to the
// client IP, and fails open when the limiter is unavailable
func RateLimit(limiter ratelimit.Limiter, logger *zap.Logger) Middleware {
	return RateLimitWithConfig(RateLimitConfig{
		Limiter:  limiter,
		KeyFunc:  ClientKeyFunc,
		FailOpen: true,
		Logger:   logger,
	})
}

// RateLimitWithConfig creates a rate limiting middleware with custom configuration
func RateLimitWithConfig(config RateLimitConfig) Middleware {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	keyFunc := config.KeyFunc
	if keyFunc == nil {
		keyFunc = IPKeyFunc
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, err := config.Limiter.Allow(r.Context(), keyFunc(r))
			if err != nil {
				logger.Warn("rate limit check failed",
					zap.String("request_id", GetRequestID(r.Context())),
					zap.Error(err),
				)
				if config.FailOpen {
					next.ServeHTTP(w, r)
				} else {
					response.RenderServiceUnavailable(w, "rate limiter unavailable")
				}
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))

			if !info.Allowed {
				response.RenderTooManyRequests(w, info.RetryAfter(time.Now()))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// IPKeyFunc keys by client IP. X-Forwarded-For and X-Real-IP are honoured
// for deployments behind a proxy.
func IPKeyFunc(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip, _, _ := strings.Cut(xff, ",")
		if ip = strings.TrimSpace(ip); ip != "" {
			return "ip:" + ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return "ip:" + xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// ClientKeyFunc keys by authenticated subject when present, else by IP
func ClientKeyFunc(r *http.Request) string {
	if sub := GetSubject(r.Context()); sub != "" {
		return "sub:" + sub
	}
	return IPKeyFunc(r)
}
