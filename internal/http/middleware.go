package http

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"

	"github.com/cultpass/bookings/internal/idempotency"
	"github.com/cultpass/bookings/internal/observability"
	"github.com/cultpass/bookings/internal/rateLimit"
)

type ctxKey int

const (
	ctxKeyLogger ctxKey = iota
	ctxKeyCallerID
)

func RequestIDMiddleware(next http.Handler) http.Handler {
	return middleware.RequestID(next)
}

func LoggerMiddleware(logger observability.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := middleware.GetReqID(r.Context())
			entry := logger.WithField("request_id", reqID)
			ctx := context.WithValue(r.Context(), ctxKeyLogger, entry)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AuthMiddleware resolves the caller from the X-User-ID header set by the
// authenticating edge proxy. This service never sees raw credentials.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("X-User-ID")
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		userID, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid X-User-ID")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyCallerID, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func callerID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(ctxKeyCallerID).(uuid.UUID)
	return id, ok
}

// captureWriter buffers the response so the idempotency layer can store it.
type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (c *captureWriter) WriteHeader(status int) {
	c.status = status
	c.ResponseWriter.WriteHeader(status)
}

func (c *captureWriter) Write(p []byte) (int, error) {
	c.buf.Write(p)
	return c.ResponseWriter.Write(p)
}

// IdempotencyMiddleware makes booking POSTs safe to retry: the first
// completed response under a key is stored and replayed verbatim for any
// later request carrying the same key. 5xx responses are not stored, so a
// failed attempt can be retried for real.
func IdempotencyMiddleware(idemp *idempotency.Idempotency, logger observability.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("Idempotency-Key")
			if len(key) < 16 {
				writeError(w, http.StatusBadRequest, "Idempotency-Key header of at least 16 characters is required")
				return
			}

			stored, err := idemp.Get(r.Context(), key)
			if err != nil {
				logger.WithError(err).Warn("idempotency lookup failed, processing request")
			}
			if stored != nil {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Idempotency-Replayed", "true")
				w.WriteHeader(stored.Status)
				_, _ = w.Write(stored.Body)
				return
			}

			cw := &captureWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(cw, r)

			if cw.status < 500 {
				resp := idempotency.Response{Status: cw.status, Body: cw.buf.Bytes()}
				if err := idemp.Set(r.Context(), key, resp); err != nil {
					logger.WithError(err).Warn("idempotency store failed")
				}
			}
		})
	}
}

func RateLimitMiddleware(rl *rateLimit.RateLimiter) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed := true
			if userID, ok := callerID(r.Context()); ok {
				allowed = rl.Allow(r.Context(), "user:"+userID.String(), 10, time.Minute)
			}
			if allowed {
				ip, _, err := net.SplitHostPort(r.RemoteAddr)
				if err != nil {
					ip = r.RemoteAddr
				}
				allowed = rl.Allow(r.Context(), "ip:"+ip, 100, time.Minute)
			}
			if !allowed {
				observability.RateLimitExceeded.Inc()
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		tracer := otel.Tracer("http")
		ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path)
		defer span.End()

		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.url", r.URL.String()),
		)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
