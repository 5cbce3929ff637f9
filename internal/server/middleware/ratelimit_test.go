package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_AllowWithinBudget(t *testing.T) {
	rl := NewRateLimiter(Limit{Requests: 3, Window: time.Minute}, setupTestLogger())
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("10.0.0.1"), "request %d should pass", i+1)
	}
	assert.False(t, rl.Allow("10.0.0.1"), "budget exhausted")

	// Другой клиент не делит bucket
	assert.True(t, rl.Allow("10.0.0.2"))
}

func TestRateLimiter_RefillAfterWindow(t *testing.T) {
	rl := NewRateLimiter(Limit{Requests: 1, Window: time.Minute}, setupTestLogger())
	defer rl.Stop()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return base }

	require.True(t, rl.Allow("10.0.0.1"))
	require.False(t, rl.Allow("10.0.0.1"))

	rl.now = func() time.Time { return base.Add(time.Minute) }
	assert.True(t, rl.Allow("10.0.0.1"), "bucket refills after the window")
}

func TestRateLimiter_DropStale(t *testing.T) {
	rl := NewRateLimiter(Limit{Requests: 1, Window: time.Minute}, setupTestLogger())
	defer rl.Stop()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return base }
	require.True(t, rl.Allow("10.0.0.1"))

	rl.now = func() time.Time { return base.Add(3 * time.Minute) }
	rl.dropStale()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Empty(t, rl.buckets)
}

func TestRateLimitMiddleware_Returns429(t *testing.T) {
	logger := setupTestLogger()
	handler := RateLimitMiddleware(Limit{Requests: 2, Window: time.Minute}, nil, logger)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/conflicts", nil)
		req.RemoteAddr = "10.0.0.1:4321"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conflicts", nil)
	req.RemoteAddr = "10.0.0.1:4321"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "rate limit exceeded")
}

func TestRateLimitMiddleware_PathOverride(t *testing.T) {
	logger := setupTestLogger()
	overrides := map[string]Limit{
		"/api/v1/auth/login": {Requests: 1, Window: time.Minute},
	}
	handler := RateLimitMiddleware(Limit{Requests: 100, Window: time.Minute}, overrides, logger)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	send := func(path string) int {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.RemoteAddr = "10.0.0.1:4321"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	// Логин упирается в собственный жесткий бюджет
	require.Equal(t, http.StatusOK, send("/api/v1/auth/login"))
	assert.Equal(t, http.StatusTooManyRequests, send("/api/v1/auth/login"))

	// Остальные пути живут на общем бюджете
	assert.Equal(t, http.StatusOK, send("/api/v1/conflicts/scan"))
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "remote addr without proxy",
			remoteAddr: "10.0.0.1:4321",
			want:       "10.0.0.1",
		},
		{
			name:       "x-forwarded-for single",
			remoteAddr: "127.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7"},
			want:       "203.0.113.7",
		},
		{
			name:       "x-forwarded-for chain takes first",
			remoteAddr: "127.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"},
			want:       "203.0.113.7",
		},
		{
			name:       "x-real-ip",
			remoteAddr: "127.0.0.1:80",
			headers:    map[string]string{"X-Real-IP": "203.0.113.9"},
			want:       "203.0.113.9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(req))
		})
	}
}
