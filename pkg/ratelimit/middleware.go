package ratelimit

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/render"
	apperrors "github.com/tendant/simple-device-trust/pkg/errors"
)

// Config holds the per-IP limits applied to token-authorized endpoints.
// Those endpoints have no session, so the client address is the only key.
type Config struct {
	Enabled    bool
	Capacity   int     // Max burst
	RefillRate float64 // Requests per second
	BucketTTL  time.Duration
	RetryAfter time.Duration
}

// DefaultConfig allows 20 requests per minute per IP
func DefaultConfig() *Config {
	return &Config{
		Enabled:    true,
		Capacity:   20,
		RefillRate: 20.0 / 60.0,
		BucketTTL:  time.Hour,
		RetryAfter: time.Minute,
	}
}

// Middleware holds the rate limiting middleware state
type Middleware struct {
	config    *Config
	ipLimiter *RateLimiter
}

// NewMiddleware creates a new rate limiting middleware
func NewMiddleware(config *Config) *Middleware {
	if config == nil {
		config = DefaultConfig()
	}
	m := &Middleware{config: config}
	if config.Enabled {
		m.ipLimiter = NewRateLimiter(config.Capacity, config.RefillRate, config.BucketTTL)
	}
	return m
}

// Handler returns the rate limiting middleware handler
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.ipLimiter != nil {
			ip := getClientIP(r)
			if ip != "" && !m.ipLimiter.Allow(ip) {
				m.rateLimitExceeded(w, r, ip)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Close releases the limiter's background cleanup
func (m *Middleware) Close() {
	if m.ipLimiter != nil {
		m.ipLimiter.Close()
	}
}

func (m *Middleware) rateLimitExceeded(w http.ResponseWriter, r *http.Request, ip string) {
	slog.Warn("Rate limit exceeded", "ip", ip, "path", r.URL.Path, "method", r.Method)

	w.Header().Set("Retry-After", strconv.Itoa(int(m.config.RetryAfter.Seconds())))
	render.Status(r, apperrors.MapErrorCodeToHTTPStatus(apperrors.ErrCodeRateLimited))
	render.JSON(w, r, map[string]string{
		"code":    string(apperrors.ErrCodeRateLimited),
		"message": "too many requests",
	})
}

// getClientIP extracts the client IP address from the request
func getClientIP(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs, take the first one
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
