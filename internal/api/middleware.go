package api

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/buzzcrawl/internal/crawler"
	"github.com/JakeFAU/buzzcrawl/internal/orchestrator"
)

const requestIDHeader = "X-Request-ID"

func requestIDMiddleware(ids crawler.IDGenerator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get(requestIDHeader)
			if _, err := uuid.Parse(reqID); err != nil {
				reqID = newRequestID(ids)
			}
			w.Header().Set(requestIDHeader, reqID)
			next.ServeHTTP(w, r.WithContext(orchestrator.WithRequestID(r.Context(), reqID)))
		})
	}
}

func newRequestID(ids crawler.IDGenerator) string {
	if ids != nil {
		if id, err := ids.NewID(); err == nil {
			return id
		}
	}
	return uuid.NewString()
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("request_id", orchestrator.RequestIDFrom(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rec),
						zap.String("request_id", orchestrator.RequestIDFrom(r.Context())),
						zap.Stack("stack"),
					)
					writeErrorBody(logger, w, http.StatusInternalServerError, errorBody{Kind: string(crawler.ErrKindInternal), Message: "internal server error"})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, `{"error":{"kind":"timeout","message":"request timed out"}}`)
	}
}

func apiKeyMiddleware(expected string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if !keysEqual(key, expected) {
				writeErrorBody(logger, w, http.StatusForbidden, errorBody{Kind: "unauthorized", Message: "invalid api key"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// adminMiddleware guards operator endpoints. An empty key disables them.
func adminMiddleware(expected string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if expected == "" {
				writeErrorBody(logger, w, http.StatusForbidden, errorBody{Kind: "forbidden", Message: "admin endpoints are disabled"})
				return
			}
			if !keysEqual(r.Header.Get("X-Admin-Key"), expected) {
				writeErrorBody(logger, w, http.StatusForbidden, errorBody{Kind: "forbidden", Message: "invalid admin key"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func keysEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
