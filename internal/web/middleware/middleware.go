package middleware

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/sahan/go-idp/internal/errors"
	"github.com/sahan/go-idp/internal/web/response"
)

func LogRoutes(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r)

		logRow := fmt.Sprintf("%s %s %s", time.Since(start).String(), r.Method, r.URL.Path)
		logger.InfoContext(r.Context(), logRow)
	})
}

func HandlePanic(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recovered := recover(); recovered != nil {
				logger.Error("panic recovered", slog.Any("panic", recovered))

				response.Error(w, apperrors.ServerError("something went wrong, please try again", nil), nil)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// RateLimit rejects requests exceeding the per-client-IP budget with
// HTTP 429 and a Retry-After hint.
func RateLimit(limiter *RateLimiter, window time.Duration, logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow(ClientIP(r)) {
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", window.Seconds()))
			response.Error(w, apperrors.RateLimitedError("too many requests, please slow down", nil), logger)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ClientIP extracts the real client IP, honoring common proxy headers.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ips := strings.Split(xff, ","); len(ips) > 0 {
			if ip := strings.TrimSpace(ips[0]); ip != "" {
				return ip
			}
		}
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

// BearerToken extracts the bearer token from the Authorization header.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}

	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
