package handlers

import (
	"net/http"
	"testing"

	"github.com/tbourn/media-ratings-backend/internal/domain"
)

func TestBackups_AdminRoundTrip(t *testing.T) {
	env := newEnv(t)

	wantCode(t, env.do(t, http.MethodPost, "/backups", "alice", nil), http.StatusForbidden, ErrCodeForbidden)

	wantStatus(t, env.do(t, http.MethodPut, "/ratings/item-9", "alice", map[string]int{"rating": 7}), http.StatusOK)

	w := env.do(t, http.MethodPost, "/backups", "admin", map[string]string{"label": "nightly"})
	wantStatus(t, w, http.StatusCreated)
	b := decode[domain.Backup](t, w)
	if b.Label != "nightly" || b.SizeBytes == 0 {
		t.Fatalf("backup = %+v", b)
	}

	w = env.do(t, http.MethodGet, "/backups", "admin", nil)
	wantStatus(t, w, http.StatusOK)
	if list := decode[[]domain.Backup](t, w); len(list) != 1 {
		t.Fatalf("backups = %d", len(list))
	}

	wantStatus(t, env.do(t, http.MethodDelete, "/ratings/item-9", "alice", nil), http.StatusNoContent)

	w = env.do(t, http.MethodPost, "/backups/"+b.ID+"/restore", "admin", nil)
	wantStatus(t, w, http.StatusOK)
	if rr := decode[RestoreResponse](t, w); len(rr.Files) == 0 {
		t.Fatal("restore reported no files")
	}

	w = env.do(t, http.MethodGet, "/ratings/item-9", "alice", nil)
	wantStatus(t, w, http.StatusOK)
	if st := decode[domain.RatingStats](t, w); st.TotalRatings != 1 {
		t.Fatalf("rating not restored: %+v", st)
	}
}

func TestNotifications_TestNeedsLibrary(t *testing.T) {
	env := newEnv(t)

	wantCode(t, env.do(t, http.MethodPost, "/notifications/test", "alice", nil), http.StatusForbidden, ErrCodeForbidden)
	wantCode(t, env.do(t, http.MethodPost, "/notifications/test", "admin", nil), http.StatusServiceUnavailable, ErrCodeFeatureUnavailable)
}

func TestListBackups_Paginated(t *testing.T) {
	env := newEnv(t)
	for i := 0; i < 3; i++ {
		wantStatus(t, env.do(t, http.MethodPost, "/backups", "admin", nil), http.StatusCreated)
	}

	w := env.do(t, http.MethodGet, "/backups?page=2&page_size=2", "admin", nil)
	wantStatus(t, w, http.StatusOK)
	if got := w.Header().Get("X-Total-Pages"); got != "2" {
		t.Fatalf("X-Total-Pages = %q", got)
	}
	if list := decode[[]domain.Backup](t, w); len(list) != 1 {
		t.Fatalf("page 2 = %d backups", len(list))
	}
}
