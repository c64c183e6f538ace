package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/media-ratings-backend/internal/archive"
	"github.com/tbourn/media-ratings-backend/internal/config"
	"github.com/tbourn/media-ratings-backend/internal/domain"
	"github.com/tbourn/media-ratings-backend/internal/host"
	"github.com/tbourn/media-ratings-backend/internal/http/handlers"
	"github.com/tbourn/media-ratings-backend/internal/repo"
	"github.com/tbourn/media-ratings-backend/internal/services"
)

func init() { gin.SetMode(gin.TestMode) }

// tokenIdentity accepts "tok-<user>" tokens.
type tokenIdentity struct{}

func (tokenIdentity) ResolveToken(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", host.ErrNoCredentials
	}
	if len(token) < 5 || token[:4] != "tok-" {
		return "", host.ErrUnknownToken
	}
	return token[4:], nil
}

func (tokenIdentity) LookupUser(_ context.Context, id string) (host.User, error) {
	return host.User{ID: id, Name: id}, nil
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath:    "/api/v1",
		RateRPS:        100,
		RateBurst:      10,
		IdempotencyTTL: time.Hour,
		OTEL:           config.OTELConfig{ServiceName: "test-svc"},
		Features: config.FeatureConfig{
			Ratings:         true,
			Chat:            true,
			MediaManagement: true,
			Notifications:   false,
		},
	}
}

// newRouter builds the full engine over a temp-dir repository and archive.
func newRouter(t *testing.T, cfg config.Config) (*gin.Engine, *repo.Repository) {
	t.Helper()
	dir := t.TempDir()
	r, err := repo.Open(filepath.Join(dir, "data"))
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	db, err := archive.OpenSQLite(filepath.Join(dir, "archive.db"))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if err := archive.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	svc := handlers.Services{
		Ratings:       services.NewRatingService(r, 1, 10),
		Chat:          services.NewChatService(r, services.ChatOptions{RateLimitPerMinute: 10, MaxMessageLength: 500}),
		Moderation:    services.NewModerationService(r, 50),
		Requests:      services.NewRequestService(r, nil, 0),
		Playback:      services.NewPlaybackService(r),
		Notifications: services.NewNotificationService(r, nil, nil, nil),
		Backups:       services.NewBackupService(r, db),
	}
	e := gin.New()
	RegisterRoutes(e, Deps{Config: cfg, Services: svc, Stats: r, Identity: tokenIdentity{}, Archive: db})
	return e, r
}

func send(e http.Handler, method, path, token string, body string, hdr ...string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	e, _ := newRouter(t, testConfig())

	w := send(e, http.MethodGet, "/health", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("security headers missing")
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("request id missing")
	}

	w = send(e, http.MethodGet, "/metrics", "", "")
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	if w = send(e, http.MethodGet, "/nope", "", ""); w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}
	if w = send(e, http.MethodPost, "/health", "", ""); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	cfg := testConfig()
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	e, _ := newRouter(t, cfg)

	w := send(e, http.MethodGet, "/health", "", "", "Origin", "http://example.com")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
}

func TestRegisterRoutes_AuthAndFeatureGates(t *testing.T) {
	e, _ := newRouter(t, testConfig())

	if w := send(e, http.MethodGet, "/api/v1/me/ratings", "", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: %d", w.Code)
	}
	if w := send(e, http.MethodGet, "/api/v1/me/ratings", "garbage", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: %d", w.Code)
	}
	if w := send(e, http.MethodGet, "/api/v1/me/ratings", "tok-alice", ""); w.Code != http.StatusOK {
		t.Fatalf("good token: %d body=%s", w.Code, w.Body.String())
	}

	w := send(e, http.MethodGet, "/api/v1/notifications", "tok-alice", "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("disabled feature: %d", w.Code)
	}
	var er struct{ Code string }
	_ = json.Unmarshal(w.Body.Bytes(), &er)
	if er.Code != "feature_disabled" {
		t.Fatalf("disabled feature code = %q", er.Code)
	}

	// The playback gate answers regardless of feature toggles.
	if w := send(e, http.MethodGet, "/api/v1/playback/status", "tok-alice", ""); w.Code != http.StatusOK {
		t.Fatalf("playback status: %d", w.Code)
	}
}

func TestRegisterRoutes_IdempotentCreateReplays(t *testing.T) {
	e, r := newRouter(t, testConfig())

	body := `{"title":"Arrival","type":"movie"}`
	first := send(e, http.MethodPost, "/api/v1/requests", "tok-alice", body, "Idempotency-Key", "req-001")
	if first.Code != http.StatusCreated {
		t.Fatalf("first create: %d body=%s", first.Code, first.Body.String())
	}
	second := send(e, http.MethodPost, "/api/v1/requests", "tok-alice", body, "Idempotency-Key", "req-001")
	if second.Code != http.StatusCreated || second.Header().Get("Idempotent-Replay") != "true" {
		t.Fatalf("replay: %d replay=%q", second.Code, second.Header().Get("Idempotent-Replay"))
	}

	var a, b domain.MediaRequest
	_ = json.Unmarshal(first.Body.Bytes(), &a)
	_ = json.Unmarshal(second.Body.Bytes(), &b)
	if a.ID == "" || a.ID != b.ID {
		t.Fatalf("replay returned %q, want %q", b.ID, a.ID)
	}
	if n := len(r.ListUserMediaRequests("alice")); n != 1 {
		t.Fatalf("stored %d requests, want 1", n)
	}

	// Another user with the same key gets their own request.
	if w := send(e, http.MethodPost, "/api/v1/requests", "tok-bob", body, "Idempotency-Key", "req-001"); w.Header().Get("Idempotent-Replay") != "" {
		t.Fatal("key leaked across users")
	}

	if w := send(e, http.MethodPost, "/api/v1/requests", "tok-alice", body, "Idempotency-Key", "bad key!"); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid key: %d", w.Code)
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	r := gin.New()
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := send(r, http.MethodPost, "/echo", "", "0123456789AB")
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	r := gin.New()
	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "").GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		w := send(r, http.MethodGet, path, "", "")
		if w.Code != http.StatusOK || w.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, w.Code, w.Body.String())
		}
	}
}

func Test_idempotencyOptions_RoutesFollowBasePath(t *testing.T) {
	opts := idempotencyOptions("/api/v1", nil, 0)
	if opts.Routes["POST /api/v1/requests"] != "media_request" {
		t.Fatalf("routes = %v", opts.Routes)
	}
	if opts.Lookup != nil || opts.Record != nil {
		t.Fatal("nil archive must disable replay")
	}
	if got := idempotencyOptions("/", nil, 0).Routes["POST /deletion-requests"]; got != "deletion_request" {
		t.Fatalf("root base routes = %v", got)
	}
}
