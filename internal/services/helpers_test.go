package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/media-ratings-backend/internal/host"
	"github.com/tbourn/media-ratings-backend/internal/repo"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

var t0 = time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)

func newRepo(t *testing.T) (*repo.Repository, *clock) {
	t.Helper()
	c := &clock{t: t0}
	r, err := repo.Open(t.TempDir(), repo.WithClock(c.Now))
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r, c
}

// asAdmin and asUser register presence so the admin flag is known.
func asAdmin(r *repo.Repository, id string) {
	r.Heartbeat(repo.HeartbeatInput{UserID: id, UserName: id, IsAdmin: true})
}

func asUser(r *repo.Repository, id string) {
	r.Heartbeat(repo.HeartbeatInput{UserID: id, UserName: id})
}

// ----- host fakes -----

type fakeLibrary struct {
	mu      sync.Mutex
	items   map[string]host.Item
	deleted []string
	failOn  string
}

func newFakeLibrary(items ...host.Item) *fakeLibrary {
	l := &fakeLibrary{items: map[string]host.Item{}}
	for _, it := range items {
		l.items[it.ID] = it
	}
	return l
}

func (l *fakeLibrary) GetItem(_ context.Context, id string) (host.Item, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	it, ok := l.items[id]
	if !ok {
		return host.Item{}, host.ErrItemNotFound
	}
	return it, nil
}

func (l *fakeLibrary) DeleteItem(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if id == l.failOn {
		return errors.New("disk busy")
	}
	if _, ok := l.items[id]; !ok {
		return host.ErrItemNotFound
	}
	delete(l.items, id)
	l.deleted = append(l.deleted, id)
	return nil
}

func (l *fakeLibrary) ListItems(_ context.Context, itemType string) ([]host.Item, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []host.Item
	for _, it := range l.items {
		if it.Type == itemType {
			out = append(out, it)
		}
	}
	return out, nil
}

type fakeSessions struct {
	mu       sync.Mutex
	sessions []host.Session
	sent     []string
	failID   string
}

func (s *fakeSessions) ListSessions(context.Context) ([]host.Session, error) {
	return s.sessions, nil
}

func (s *fakeSessions) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

func (s *fakeSessions) SendMessage(_ context.Context, id, header, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == s.failID {
		return errors.New("gone")
	}
	s.sent = append(s.sent, id+"|"+header+"|"+text)
	return nil
}
