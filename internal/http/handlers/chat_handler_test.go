package handlers

import (
	"net/http"
	"testing"

	"github.com/tbourn/media-ratings-backend/internal/domain"
	"github.com/tbourn/media-ratings-backend/internal/services"
)

func TestChat_SendAndRecentWithETag(t *testing.T) {
	env := newEnv(t)

	w := env.do(t, http.MethodPost, "/chat/messages", "alice", map[string]string{"content": "  hello  "})
	wantStatus(t, w, http.StatusCreated)
	if m := decode[domain.ChatMessage](t, w); m.Content != "hello" || m.UserID != "alice" {
		t.Fatalf("message = %+v", m)
	}

	w = env.do(t, http.MethodGet, "/chat/messages?limit=10", "bob", nil)
	wantStatus(t, w, http.StatusOK)
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag")
	}
	if msgs := decode[[]domain.ChatMessage](t, w); len(msgs) != 1 {
		t.Fatalf("recent = %d messages", len(msgs))
	}

	wantStatus(t, env.do(t, http.MethodGet, "/chat/messages?limit=10", "bob", nil, "If-None-Match", etag), http.StatusNotModified)

	wantStatus(t, env.do(t, http.MethodPost, "/chat/messages", "bob", map[string]string{"content": "hi"}), http.StatusCreated)
	w = env.do(t, http.MethodGet, "/chat/messages?limit=10", "bob", nil, "If-None-Match", etag)
	wantStatus(t, w, http.StatusOK)
	if w.Header().Get("ETag") == etag {
		t.Fatal("ETag did not change after a new message")
	}
}

func TestChat_ValidationErrors(t *testing.T) {
	env := newEnv(t)

	wantCode(t, env.do(t, http.MethodPost, "/chat/messages", "alice", map[string]string{"content": "   "}),
		http.StatusBadRequest, ErrCodeValidation)
	wantCode(t, env.do(t, http.MethodPost, "/chat/messages", "alice", map[string]string{"gif_url": "https://evil.example/x.gif"}),
		http.StatusBadRequest, ErrCodeValidation)
	wantCode(t, env.do(t, http.MethodGet, "/chat/messages?since=yesterday", "alice", nil),
		http.StatusBadRequest, ErrCodeBadRequest)
}

func TestChat_RateLimited(t *testing.T) {
	env := newEnv(t)

	for i := 0; i < 3; i++ {
		wantStatus(t, env.do(t, http.MethodPost, "/chat/messages", "alice", map[string]string{"content": "spam"}), http.StatusCreated)
	}
	w := env.do(t, http.MethodPost, "/chat/messages", "alice", map[string]string{"content": "spam"})
	wantCode(t, w, http.StatusTooManyRequests, ErrCodeRateLimited)
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After")
	}
}

func TestChat_BannedSenderSeesBanDetails(t *testing.T) {
	env := newEnv(t)

	w := env.do(t, http.MethodPost, "/moderation/bans", "admin", map[string]any{
		"user_id": "alice", "ban_type": "chat", "reason": "spam", "duration_minutes": 30,
	})
	wantStatus(t, w, http.StatusCreated)

	er := wantCode(t, env.do(t, http.MethodPost, "/chat/messages", "alice", map[string]string{"content": "hi"}),
		http.StatusForbidden, ErrCodeBanned)
	if er.Ban == nil || er.Ban.Type != "chat" || er.Ban.Reason != "spam" || er.Ban.ExpiresAt == nil {
		t.Fatalf("ban details = %+v", er.Ban)
	}

	w = env.do(t, http.MethodGet, "/chat/ban", "alice", nil)
	wantStatus(t, w, http.StatusOK)
	if st := decode[BanStatusResponse](t, w); !st.Banned {
		t.Fatal("GET /chat/ban reports not banned")
	}
}

func TestChat_TypingAndUnread(t *testing.T) {
	env := newEnv(t)

	wantStatus(t, env.do(t, http.MethodPut, "/chat/typing", "alice", map[string]bool{"typing": true}), http.StatusNoContent)
	wantCode(t, env.do(t, http.MethodPut, "/chat/typing", "ghost", map[string]bool{"typing": true}),
		http.StatusNotFound, ErrCodeNotFound)

	w := env.do(t, http.MethodGet, "/chat/typing", "bob", nil)
	wantStatus(t, w, http.StatusOK)
	if us := decode[[]domain.ChatUser](t, w); len(us) != 1 || us[0].UserID != "alice" {
		t.Fatalf("typing = %+v", us)
	}

	wantStatus(t, env.do(t, http.MethodPost, "/chat/messages", "alice", map[string]string{"content": "one"}), http.StatusCreated)
	w = env.do(t, http.MethodGet, "/chat/unread", "bob", nil)
	wantStatus(t, w, http.StatusOK)
	if u := decode[services.UnreadCounts](t, w); u.Chat != 1 {
		t.Fatalf("unread = %+v", u)
	}
}
