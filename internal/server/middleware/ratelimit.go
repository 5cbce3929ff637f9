package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Limit задает бюджет запросов одного клиента в пределах окна
type Limit struct {
	Requests int
	Window   time.Duration
}

// bucket хранит остаток токенов одного клиента
type bucket struct {
	lastRefill time.Time
	tokens     int
}

// RateLimiter реализует token bucket на каждого клиента
type RateLimiter struct {
	buckets map[string]*bucket
	limit   Limit
	logger  *slog.Logger
	stopC   chan struct{}
	mu      sync.Mutex

	now func() time.Time // подменяется в тестах
}

// NewRateLimiter создает limiter и запускает фоновую очистку
// неактивных buckets
func NewRateLimiter(limit Limit, logger *slog.Logger) *RateLimiter {
	rl := &RateLimiter{
		buckets: make(map[string]*bucket),
		limit:   limit,
		logger:  logger,
		stopC:   make(chan struct{}),
		now:     time.Now,
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.limit.Window * 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.dropStale()
		case <-rl.stopC:
			return
		}
	}
}

// dropStale удаляет buckets, не обновлявшиеся дольше двух окон
func (rl *RateLimiter) dropStale() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-2 * rl.limit.Window)
	for key, b := range rl.buckets {
		if b.lastRefill.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
}

// Stop останавливает cleanup goroutine
func (rl *RateLimiter) Stop() {
	close(rl.stopC)
}

// Allow сообщает, укладывается ли запрос клиента key в бюджет
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok || now.Sub(b.lastRefill) >= rl.limit.Window {
		b = &bucket{tokens: rl.limit.Requests, lastRefill: now}
		rl.buckets[key] = b
	}

	if b.tokens == 0 {
		return false
	}
	b.tokens--
	return true
}

// RateLimitMiddleware ограничивает частоту запросов по IP клиента.
// Пути из overrides получают собственный бюджет: у логина он жестче общего
func RateLimitMiddleware(def Limit, overrides map[string]Limit, logger *slog.Logger) func(http.Handler) http.Handler {
	defLimiter := NewRateLimiter(def, logger)
	pathLimiters := make(map[string]*RateLimiter, len(overrides))
	for path, lim := range overrides {
		pathLimiters[path] = NewRateLimiter(lim, logger)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limiter, ok := pathLimiters[r.URL.Path]
			if !ok {
				limiter = defLimiter
			}

			key := clientIP(r)
			if !limiter.Allow(key) {
				logger.Warn("Rate limit exceeded",
					"ip", key,
					"method", r.Method,
					"path", r.URL.Path,
				)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded, please try again later"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP извлекает адрес клиента с учетом прокси-заголовков
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.IndexByte(xff, ','); idx >= 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
