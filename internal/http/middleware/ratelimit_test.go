package middleware

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestKeyByUserOrIP(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = net.JoinHostPort("203.0.113.9", "12345")

	if got := KeyByUserOrIP()(c); got != "ip:203.0.113.9" {
		t.Fatalf("ip key = %q", got)
	}
	c.Set(userIDKey, "u123")
	if got := KeyByUserOrIP()(c); got != "user:u123" {
		t.Fatalf("user key = %q", got)
	}
}

func TestRateLimiter_Handler(t *testing.T) {
	rl := NewRateLimiter(1, 2, func(c *gin.Context) string { return c.GetHeader("X-Key") })
	now := time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	r := gin.New()
	r.Use(rl.Handler())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	hit := func(key string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Key", key)
		return serve(t, r, req).Code
	}

	if hit("a") != http.StatusNoContent || hit("a") != http.StatusNoContent {
		t.Fatal("burst of 2 should pass")
	}
	if code := hit("a"); code != http.StatusTooManyRequests {
		t.Fatalf("third request = %d, want 429", code)
	}
	if hit("b") != http.StatusNoContent {
		t.Fatal("other key must have its own bucket")
	}
	now = now.Add(time.Second)
	if hit("a") != http.StatusNoContent {
		t.Fatal("bucket should refill after a second")
	}
}

func TestRateLimiter_RetryAfterForSlowRates(t *testing.T) {
	rl := NewRateLimiter(0.25, 1, func(*gin.Context) string { return "k" })
	r := gin.New()
	r.Use(rl.Handler())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	serve(t, r, httptest.NewRequest(http.MethodGet, "/", nil))
	w := serve(t, r, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") != "4" {
		t.Fatalf("got %d Retry-After=%q", w.Code, w.Header().Get("Retry-After"))
	}
}

func TestRateLimiter_PruneAndBurstCoercion(t *testing.T) {
	rl := NewRateLimiter(2, 0, KeyByUserOrIP())
	if rl.burst != 1 {
		t.Fatalf("burst = %d, want 1", rl.burst)
	}
	t0 := time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)
	a := rl.limiterFor("a", t0)
	if rl.limiterFor("a", t0) != a {
		t.Fatal("bucket not reused")
	}
	rl.limiterFor("b", t0.Add(9*time.Minute))

	if n := rl.PruneRateLimits(t0.Add(10 * time.Minute)); n != 1 {
		t.Fatalf("pruned %d, want 1", n)
	}
	if _, ok := rl.visitors["b"]; !ok {
		t.Fatal("recent bucket was pruned")
	}
}
