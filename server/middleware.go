package server

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// Rate limit scopes. AI endpoints get their own, smaller budget.
const (
	scopeAPI = "api"
	scopeAI  = "ai"
)

const limiterIdle = 10 * time.Minute

type ctxKey int

const requestIDKey ctxKey = iota

// RequestID returns the id assigned to the request, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// requestLogger tags each request with an id and logs it once served.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		if s.recorder != nil {
			s.recorder.ObserveHTTP(r.Method, route, status, time.Since(start))
		}

		level := s.logger.Info
		if status >= http.StatusInternalServerError {
			level = s.logger.Error
		}
		level("Request served",
			"method", r.Method,
			"path", r.URL.Path,
			"route", route,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", id,
			"ip", clientIP(r))
	})
}

// recoverer turns a handler panic into the generic 500 envelope.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			s.logger.Error("Unhandled error",
				"panic", fmt.Sprint(rec),
				"path", r.URL.Path,
				"request_id", RequestID(r.Context()),
				"stack", string(debug.Stack()))
			s.fail(w, http.StatusInternalServerError, "Erro interno do servidor")
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) cors() func(http.Handler) http.Handler {
	origins := s.cfg.AllowedOrigins
	return cors.Handler(cors.Options{
		AllowOriginFunc: func(_ *http.Request, origin string) bool {
			return originAllowed(origin, origins)
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Requested-With", "X-API-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           86400,
	})
}

// originAllowed accepts "*", exact origins and "*.domain" suffix patterns.
func originAllowed(origin string, allowed []string) bool {
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		a = strings.TrimSpace(a)
		switch {
		case a == "*", a == origin:
			return true
		case strings.HasPrefix(a, "*."):
			if strings.HasSuffix(origin, a[1:]) {
				return true
			}
		}
	}
	return false
}

// rateLimiter keeps one token bucket per scope and client IP. Idle buckets
// expire from the cache.
type rateLimiter struct {
	buckets *cache.Cache
	perMin  map[string]int
}

func newRateLimiter(apiPerMinute, aiPerMinute int) *rateLimiter {
	return &rateLimiter{
		buckets: cache.New(limiterIdle, 2*limiterIdle),
		perMin:  map[string]int{scopeAPI: apiPerMinute, scopeAI: aiPerMinute},
	}
}

func (rl *rateLimiter) allow(scope, ip string) bool {
	n := rl.perMin[scope]
	if n <= 0 {
		return true
	}
	key := scope + "|" + ip
	v, found := rl.buckets.Get(key)
	if !found {
		lim := rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), n)
		if err := rl.buckets.Add(key, lim, cache.DefaultExpiration); err != nil {
			v, _ = rl.buckets.Get(key)
		} else {
			v = lim
		}
	} else {
		// Sliding expiry: active clients keep their bucket.
		rl.buckets.Set(key, v, cache.DefaultExpiration)
	}
	lim, ok := v.(*rate.Limiter)
	if !ok {
		return true
	}
	return lim.Allow()
}

func (s *Server) rateLimit(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !s.limiter.allow(scope, ip) {
				s.logger.Warn("Rate limit exceeded", "scope", scope, "ip", ip, "path", r.URL.Path)
				w.Header().Set("Retry-After", strconv.Itoa(60/max(1, s.limiter.perMin[scope])+1))
				s.fail(w, http.StatusTooManyRequests, "Muitas requisições, tente novamente em instantes")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
