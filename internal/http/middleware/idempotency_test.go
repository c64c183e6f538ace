package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/media-ratings-backend/internal/domain"
)

type memIdem struct {
	mu   sync.Mutex
	recs map[string]*domain.Idempotency
}

func (m *memIdem) lookup(_ context.Context, uid, scope, key string, _ time.Time) (*domain.Idempotency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.recs[uid+"|"+scope+"|"+key]; ok {
		return rec, nil
	}
	return nil, errors.New("not found")
}

func (m *memIdem) record(_ context.Context, uid, scope, key, res string, status int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[uid+"|"+scope+"|"+key] = &domain.Idempotency{UserID: uid, Scope: scope, Key: key, ResourceID: res, Status: status}
	return nil
}

func idemRouter(store *memIdem, created *int) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(userIDKey, c.GetHeader("X-Test-User")); c.Next() })
	r.Use(Idempotency(IdempotencyOptions{
		Routes: map[string]string{"POST /requests": "media_request"},
		Lookup: store.lookup,
		Record: store.record,
	}))
	r.POST("/requests", func(c *gin.Context) {
		if rec, ok := Replayed(c); ok {
			c.String(rec.Status, "replay:"+rec.ResourceID)
			return
		}
		*created++
		id := "req-" + strings.Repeat("x", *created)
		SetIdempotentResource(c, id)
		c.String(http.StatusCreated, "new:"+id)
	})
	r.POST("/other", func(c *gin.Context) {
		if _, ok := GetIdempotencyKey(c); ok {
			c.String(http.StatusOK, "scoped")
			return
		}
		c.String(http.StatusOK, "unscoped")
	})
	return r
}

func post(path, user, key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	req.Header.Set("X-Test-User", user)
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	return req
}

func TestIdempotency_ReplaysStoredResource(t *testing.T) {
	store := &memIdem{recs: map[string]*domain.Idempotency{}}
	created := 0
	r := idemRouter(store, &created)

	w1 := serve(t, r, post("/requests", "u1", "k-1"))
	w2 := serve(t, r, post("/requests", "u1", "k-1"))
	if w1.Code != http.StatusCreated || w1.Body.String() != "new:req-x" {
		t.Fatalf("first: %d %s", w1.Code, w1.Body.String())
	}
	if w2.Code != http.StatusCreated || w2.Body.String() != "replay:req-x" {
		t.Fatalf("replay: %d %s", w2.Code, w2.Body.String())
	}
	if w2.Header().Get("Idempotent-Replay") != "true" {
		t.Fatal("replay header missing")
	}
	if created != 1 {
		t.Fatalf("handler created %d resources, want 1", created)
	}

	// Keys are per user.
	if w := serve(t, r, post("/requests", "u2", "k-1")); w.Body.String() != "new:req-xx" {
		t.Fatalf("other user: %s", w.Body.String())
	}
	// No key, no dedup.
	serve(t, r, post("/requests", "u1", ""))
	if created != 3 {
		t.Fatalf("created = %d, want 3", created)
	}
}

func TestIdempotency_Validation(t *testing.T) {
	store := &memIdem{recs: map[string]*domain.Idempotency{}}
	created := 0
	r := idemRouter(store, &created)

	for _, bad := range []string{"has space", strings.Repeat("a", 201), "semi;colon"} {
		if w := serve(t, r, post("/requests", "u1", bad)); w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "bad_idempotency_key") {
			t.Fatalf("key %q: %d %s", bad, w.Code, w.Body.String())
		}
	}
	if created != 0 {
		t.Fatal("handler ran for an invalid key")
	}
	// Routes outside the map ignore the header entirely.
	if w := serve(t, r, post("/other", "u1", "has space")); w.Body.String() != "unscoped" {
		t.Fatalf("unscoped route: %d %s", w.Code, w.Body.String())
	}
}

func TestIdempotency_FailuresAreNotRecorded(t *testing.T) {
	store := &memIdem{recs: map[string]*domain.Idempotency{}}
	r := gin.New()
	r.Use(Idempotency(IdempotencyOptions{
		Routes: map[string]string{"POST /requests": "media_request"},
		Lookup: store.lookup,
		Record: store.record,
	}))
	r.POST("/requests", func(c *gin.Context) {
		SetIdempotentResource(c, "r1")
		c.Status(http.StatusConflict)
	})
	serve(t, r, post("/requests", "", "k"))
	if len(store.recs) != 0 {
		t.Fatalf("a failed request was recorded: %v", store.recs)
	}
}

func TestIdempotency_ReplayBypassesRateLimit(t *testing.T) {
	store := &memIdem{recs: map[string]*domain.Idempotency{
		"|media_request|k": {ResourceID: "r1", Status: http.StatusCreated},
	}}
	rl := NewRateLimiter(0.001, 1, KeyByUserOrIP())
	r := gin.New()
	r.Use(Idempotency(IdempotencyOptions{
		Routes: map[string]string{"POST /requests": "media_request"},
		Lookup: store.lookup,
	}), rl.Handler())
	r.POST("/requests", func(c *gin.Context) { c.Status(http.StatusCreated) })

	for i := 0; i < 3; i++ {
		if w := serve(t, r, post("/requests", "", "k")); w.Code != http.StatusCreated {
			t.Fatalf("replay %d limited: %d", i, w.Code)
		}
	}
	serve(t, r, post("/requests", "", ""))
	if w := serve(t, r, post("/requests", "", "")); w.Code != http.StatusTooManyRequests {
		t.Fatalf("fresh requests should be limited, got %d", w.Code)
	}
}
