package handlers

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/media-ratings-backend/internal/archive"
	"github.com/tbourn/media-ratings-backend/internal/repo"
	"github.com/tbourn/media-ratings-backend/internal/services"
)

func init() { gin.SetMode(gin.TestMode) }

// testEnv wires real services over a temp-dir repository and archive.
type testEnv struct {
	repo   *repo.Repository
	h      *Handlers
	engine *gin.Engine
}

func newEnv(t *testing.T) *testEnv {
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

	svc := Services{
		Ratings: services.NewRatingService(r, 1, 10),
		Chat: services.NewChatService(r, services.ChatOptions{
			RateLimitPerMinute: 3,
			MaxMessageLength:   200,
			AllowedGIFDomains:  []string{"media.giphy.com"},
		}),
		Moderation:    services.NewModerationService(r, 50),
		Requests:      services.NewRequestService(r, nil, 10),
		Playback:      services.NewPlaybackService(r),
		Notifications: services.NewNotificationService(r, nil, nil, nil),
		Backups:       services.NewBackupService(r, db),
	}
	h := New(svc, r)

	e := gin.New()
	// X-Test-User stands in for the authentication middleware.
	e.Use(func(c *gin.Context) {
		if uid := c.GetHeader("X-Test-User"); uid != "" {
			c.Set("userID", uid)
			c.Set("userName", uid)
		}
		c.Next()
	})
	mount(e, h)

	r.Heartbeat(repo.HeartbeatInput{UserID: "admin", UserName: "admin", IsAdmin: true})
	r.Heartbeat(repo.HeartbeatInput{UserID: "alice", UserName: "alice"})
	r.Heartbeat(repo.HeartbeatInput{UserID: "bob", UserName: "bob"})
	return &testEnv{repo: r, h: h, engine: e}
}

func mount(e *gin.Engine, h *Handlers) {
	e.PUT("/ratings/:itemId", h.Rate)
	e.GET("/ratings/:itemId", h.RatingStats)
	e.DELETE("/ratings/:itemId", h.DeleteRating)
	e.GET("/ratings/:itemId/all", h.ItemRatings)
	e.GET("/me/ratings", h.MyRatings)

	e.POST("/chat/messages", h.SendMessage)
	e.GET("/chat/messages", h.RecentMessages)
	e.DELETE("/chat/messages/:id", h.DeleteChatMessage)
	e.DELETE("/chat/messages", h.ClearChat)
	e.PUT("/chat/typing", h.SetTyping)
	e.GET("/chat/typing", h.Typing)
	e.GET("/chat/unread", h.Unread)
	e.GET("/chat/ban", h.MyBan)

	e.POST("/dm", h.SendPrivate)
	e.GET("/dm", h.Conversations)
	e.GET("/dm/:userId", h.Conversation)
	e.POST("/dm/:userId/read", h.MarkConversationRead)

	e.GET("/moderation/me", h.ModerationRole)
	e.POST("/moderation/bans", h.Ban)
	e.GET("/moderation/bans", h.ListBans)
	e.PUT("/moderation/quotas/:userId", h.SetQuota)

	e.POST("/requests", h.CreateRequest)
	e.GET("/requests", h.ListRequests)
	e.GET("/requests/similar", h.SimilarRequests)
	e.GET("/requests/:id", h.GetRequest)
	e.PATCH("/requests/:id/status", h.UpdateRequestStatus)
	e.POST("/requests/:id/snooze", h.SnoozeRequest)
	e.POST("/deletion-requests", h.CreateDeletionRequest)

	e.GET("/playback/status", h.PlaybackStatus)
	e.POST("/playback/start", h.StartPlayback)

	e.POST("/notifications/test", h.TestNotification)

	e.POST("/backups", h.CreateBackup)
	e.GET("/backups", h.ListBackups)
	e.POST("/backups/:id/restore", h.RestoreBackup)
}

func (env *testEnv) do(t *testing.T, method, path, user string, body any, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if buf.Len() > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	env.engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v body=%s", err, w.Body.String())
	}
	return out
}

func wantStatus(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d; body=%s", w.Code, status, w.Body.String())
	}
}

func wantCode(t *testing.T, w *httptest.ResponseRecorder, status int, code string) ErrorResponse {
	t.Helper()
	wantStatus(t, w, status)
	er := decode[ErrorResponse](t, w)
	if er.Code != code {
		t.Fatalf("code = %q, want %q", er.Code, code)
	}
	return er
}

