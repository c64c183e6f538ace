package handlers

import (
	"net/http"
	"testing"

	"github.com/tbourn/media-ratings-backend/internal/services"
)

func TestPlayback_QuotaExhausted(t *testing.T) {
	env := newEnv(t)

	wantStatus(t, env.do(t, http.MethodPut, "/moderation/quotas/alice", "admin", map[string]int{"daily_limit": 1}), http.StatusOK)

	wantStatus(t, env.do(t, http.MethodPost, "/playback/start", "alice", nil), http.StatusOK)
	er := wantCode(t, env.do(t, http.MethodPost, "/playback/start", "alice", nil), http.StatusForbidden, ErrCodeQuotaExceeded)
	if er.Quota == nil || er.Quota.Window != "daily" || er.Quota.Used != 1 || er.Quota.Limit != 1 {
		t.Fatalf("quota details = %+v", er.Quota)
	}

	w := env.do(t, http.MethodGet, "/playback/status", "alice", nil)
	wantStatus(t, w, http.StatusOK)
	if st := decode[services.PlaybackStatus](t, w); st.Allowed || st.Window != "daily" {
		t.Fatalf("status = %+v", st)
	}
}

func TestPlayback_MediaBan(t *testing.T) {
	env := newEnv(t)

	wantStatus(t, env.do(t, http.MethodPost, "/moderation/bans", "admin", map[string]any{
		"user_id": "bob", "ban_type": "media", "permanent": true,
	}), http.StatusCreated)

	er := wantCode(t, env.do(t, http.MethodPost, "/playback/start", "bob", nil), http.StatusForbidden, ErrCodeBanned)
	if er.Ban == nil || er.Ban.Type != "media" || !er.Ban.Permanent {
		t.Fatalf("ban details = %+v", er.Ban)
	}
}
