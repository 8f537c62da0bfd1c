// Package middleware provides the HTTP middleware chain of the license
// server: request IDs, structured request logging, panic recovery, rate
// limiting and admin authentication.
package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	apperrors "github.com/mcrsoft/keyserve/internal/errors"
	"github.com/mcrsoft/keyserve/internal/infrastructure"
)

// RequestID generates a unique request ID for each request and installs it
// as the trace ID for the rest of the chain. Should be the first middleware.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		w.Header().Set("X-Request-ID", requestID)
		ctx := infrastructure.WithTraceID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// StructuredLogger logs request start and completion with slog. Comes after
// RequestID so entries carry the trace ID.
func StructuredLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := r.Context()

			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			logger.DebugContext(ctx, "request started",
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)

			next.ServeHTTP(ww, r)

			logger.InfoContext(ctx, "request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start).String(),
			)
		})
	}
}

// Recoverer converts panics into RFC 7807 responses and logs the stack.
func Recoverer(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					ctx := r.Context()
					logger.ErrorContext(ctx, "panic recovered",
						"panic", rvr,
						"path", r.URL.Path,
						"stack", string(debug.Stack()),
					)

					problem := apperrors.NewProblemDetails(
						http.StatusInternalServerError,
						"/errors/internal-error",
						"Internal Server Error",
						"An unexpected error occurred while processing your request.",
						r.URL.Path,
					).WithExtension("trace_id", infrastructure.GetTraceID(ctx))
					render.Render(w, r, problem)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit applies a global token-bucket limit across all requests.
// Activation endpoints are the target: leaked keys invite brute retries.
func RateLimit(rps float64, burst int) func(next http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				problem := apperrors.NewProblemDetails(
					http.StatusTooManyRequests,
					"/errors/rate-limited",
					"Too Many Requests",
					"Too many requests. Please wait before trying again.",
					r.URL.Path,
				).WithExtension("trace_id", infrastructure.GetTraceID(r.Context())).
					WithExtension("error_code", "RATE_LIMITED")
				render.Render(w, r, problem)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
