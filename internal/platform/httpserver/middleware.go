package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/rs/cors"
	"golang.org/x/time/rate"
)

func withMiddleware(next http.Handler, rateLimitPerMinute int, logger *slog.Logger) http.Handler {
	handler := next
	if rateLimitPerMinute > 0 {
		handler = rateLimitMiddleware(handler, rateLimitPerMinute)
	}
	handler = requestLogMiddleware(handler, logger)
	return cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler(handler)
}

// rateLimitMiddleware enforces a per-client request budget. Limiters are
// keyed by client IP and pruned when idle.
func rateLimitMiddleware(next http.Handler, perMinute int) http.Handler {
	type clientLimiter struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}

	var (
		mu      sync.Mutex
		clients = map[string]*clientLimiter{}
	)

	limit := rate.Every(time.Minute / time.Duration(perMinute))
	lookup := func(ip string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()

		now := time.Now()
		client, ok := clients[ip]
		if !ok {
			client = &clientLimiter{limiter: rate.NewLimiter(limit, perMinute)}
			clients[ip] = client
		}
		client.lastSeen = now

		for key, other := range clients {
			if now.Sub(other.lastSeen) > 10*time.Minute {
				delete(clients, key)
			}
		}
		return client.limiter
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !lookup(resolveClientIP(r)).Allow() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": false,
				"error":   "rate limit exceeded",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogMiddleware(next http.Handler, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		logger.Info("http request",
			"event", "http_request",
			"module", "internal/platform/httpserver",
			"layer", "platform",
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.status,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
