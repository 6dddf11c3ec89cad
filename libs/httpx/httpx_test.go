package httpx

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMemoryLimiterWindow(t *testing.T) {
	rl := NewMemoryLimiter(2, time.Minute)
	now := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i, want := range []bool{true, true, false} {
		ok, _ := rl.Allow(context.Background(), "1.2.3.4")
		if ok != want {
			t.Fatalf("call %d: expected %v, got %v", i, want, ok)
		}
	}
	if ok, _ := rl.Allow(context.Background(), "5.6.7.8"); !ok {
		t.Fatal("expected separate budget per key")
	}

	now = now.Add(61 * time.Second)
	if ok, _ := rl.Allow(context.Background(), "1.2.3.4"); !ok {
		t.Fatal("expected budget to reset after the window")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	h := Chain(okHandler(), RateLimit(NewMemoryLimiter(1, time.Minute), discardLogger(), false))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/doctors", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")

	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rw.Code)
	}
	if rw.Header().Get("Retry-After") != "60" {
		t.Fatalf("expected Retry-After 60, got %q", rw.Header().Get("Retry-After"))
	}
}

func TestRedisLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	rl := NewRedisLimiter(rdb, 2, time.Minute, "clinic")
	ctx := context.Background()
	for i, want := range []bool{true, true, false} {
		ok, err := rl.Allow(ctx, "10.0.0.1")
		if err != nil {
			t.Fatalf("Allow failed: %v", err)
		}
		if ok != want {
			t.Fatalf("call %d: expected %v, got %v", i, want, ok)
		}
	}
	if ttl := mr.TTL("clinic:10.0.0.1"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expected key to expire within the window, got ttl %v", ttl)
	}

	mr.FastForward(time.Minute + time.Second)
	if ok, _ := rl.Allow(ctx, "10.0.0.1"); !ok {
		t.Fatal("expected budget to reset after expiry")
	}
}

func TestRedisLimiterFailOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	req := httptest.NewRequest(http.MethodGet, "/", nil)

	rw := httptest.NewRecorder()
	Chain(okHandler(), RateLimit(NewRedisLimiter(rdb, 5, time.Minute, ""), discardLogger(), true)).ServeHTTP(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("fail-open: expected 200, got %d", rw.Code)
	}

	rw = httptest.NewRecorder()
	Chain(okHandler(), RateLimit(NewRedisLimiter(rdb, 5, time.Minute, ""), discardLogger(), false)).ServeHTTP(rw, req)
	if rw.Code != http.StatusServiceUnavailable {
		t.Fatalf("fail-closed: expected 503, got %d", rw.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := Chain(okHandler(), WithCORS(APIPolicy([]string{"https://desk.example.com", "*.clinic.test"})))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/appointments", nil)
	req.Header.Set("Origin", "https://front.clinic.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rw.Code)
	}
	if got := rw.Header().Get("Access-Control-Allow-Origin"); got != "https://front.clinic.test" {
		t.Fatalf("unexpected allow origin %q", got)
	}
	if !strings.Contains(rw.Header().Get("Access-Control-Allow-Methods"), http.MethodPatch) {
		t.Fatalf("expected PATCH to be allowed, got %q", rw.Header().Get("Access-Control-Allow-Methods"))
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/appointments", nil)
	req.Header.Set("Origin", "https://evil.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodDelete)
	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for unknown origin, got %d", rw.Code)
	}
}

func TestRequestIDPropagates(t *testing.T) {
	var seen string
	h := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if seen != "abc-123" || rw.Header().Get(RequestIDHeader) != "abc-123" {
		t.Fatalf("expected caller id to be kept, got %q", seen)
	}

	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	if len(seen) != 36 {
		t.Fatalf("expected generated uuid, got %q", seen)
	}
}

func TestRecoverWritesJSON(t *testing.T) {
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }), WithRecover(discardLogger()))
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	if rw.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rw.Code)
	}
	if !strings.Contains(rw.Body.String(), `"error":"internal error"`) {
		t.Fatalf("unexpected body %s", rw.Body.String())
	}
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}
	cases := []struct {
		body    string
		wantErr bool
	}{
		{body: `{"name":"A. Rao"}`},
		{body: ``, wantErr: true},
		{body: `{"nam":"x"}`, wantErr: true},
		{body: `{"name":"a"}{"name":"b"}`, wantErr: true},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
		err := DecodeJSON(req, &dst)
		if (err != nil) != tc.wantErr {
			t.Fatalf("body %q: wantErr=%v got %v", tc.body, tc.wantErr, err)
		}
	}
}
