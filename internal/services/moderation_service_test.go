package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/media-ratings-backend/internal/domain"
	"github.com/tbourn/media-ratings-backend/internal/repo"
)

func newModeration(t *testing.T, deleteLimit int) (*ModerationService, *repo.Repository, *clock) {
	t.Helper()
	r, c := newRepo(t)
	s := NewModerationService(r, deleteLimit)
	s.Now = c.Now
	asAdmin(r, "admin")
	asUser(r, "alice")
	return s, r, c
}

func TestBan_ModeratorMediaBanRefusedChatBanLogged(t *testing.T) {
	s, r, c := newModeration(t, 50)
	ctx := context.Background()
	r.AddModerator("mod", "Mod", "admin", 1)

	if _, err := s.Ban(ctx, "mod", BanInput{TargetID: "alice", Type: domain.BanMedia, Duration: time.Hour}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("moderator media ban: want ErrForbidden, got %v", err)
	}
	if n := len(r.ListModeratorActions(0)); n != 0 {
		t.Fatalf("refused ban must not be logged, got %d actions", n)
	}

	ban, err := s.Ban(ctx, "mod", BanInput{TargetID: "alice", Type: domain.BanChat, Duration: time.Hour, Reason: "spam"})
	if err != nil {
		t.Fatalf("chat ban: %v", err)
	}
	if ban.UserName != "alice" || ban.ExpiresAt == nil || !ban.ExpiresAt.Equal(c.Now().Add(time.Hour)) {
		t.Fatalf("unexpected ban: %#v", ban)
	}

	acts := r.ListModeratorActions(0)
	if len(acts) != 1 {
		t.Fatalf("want exactly one action, got %d", len(acts))
	}
	if acts[0].ActionType != domain.ActionChatBan || acts[0].ModeratorID != "mod" || acts[0].TargetUserID != "alice" {
		t.Fatalf("unexpected action: %#v", acts[0])
	}
	d, err := acts[0].DecodeDetails()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if bi, ok := d.(domain.BanIssued); !ok || bi.DurationMinutes != 60 || bi.BanID != ban.ID {
		t.Fatalf("unexpected details: %#v", d)
	}
}

func TestBan_Rules(t *testing.T) {
	s, r, _ := newModeration(t, 50)
	ctx := context.Background()
	r.AddModerator("m1", "", "admin", 1)
	r.AddModerator("m2", "", "admin", 2)
	r.AddModerator("m3", "", "admin", 3)

	cases := []struct {
		name  string
		actor string
		in    BanInput
		want  error
	}{
		{"plain user", "alice", BanInput{TargetID: "bob", Type: domain.BanChat, Duration: time.Hour}, ErrForbidden},
		{"bad type", "admin", BanInput{TargetID: "bob", Type: "kick", Duration: time.Hour}, ErrInvalidBanType},
		{"admin target", "m3", BanInput{TargetID: "admin", Type: domain.BanChat, Permanent: true}, ErrCannotBanAdmin},
		{"permanent snooze", "admin", BanInput{TargetID: "bob", Type: domain.BanSnooze, Permanent: true}, ErrDurationNotAllowed},
		{"zero duration", "admin", BanInput{TargetID: "bob", Type: domain.BanChat}, ErrDurationNotAllowed},
		{"level 1 over a day", "m1", BanInput{TargetID: "bob", Type: domain.BanChat, Duration: 25 * time.Hour}, ErrDurationNotAllowed},
		{"level 1 permanent", "m1", BanInput{TargetID: "bob", Type: domain.BanChat, Permanent: true}, ErrDurationNotAllowed},
		{"level 1 a day", "m1", BanInput{TargetID: "bob", Type: domain.BanChat, Duration: 24 * time.Hour}, nil},
		{"level 2 a week", "m2", BanInput{TargetID: "bob", Type: domain.BanSnooze, Duration: 7 * 24 * time.Hour}, nil},
		{"level 2 over a week", "m2", BanInput{TargetID: "bob", Type: domain.BanChat, Duration: 8 * 24 * time.Hour}, ErrDurationNotAllowed},
		{"level 3 permanent", "m3", BanInput{TargetID: "bob", Type: domain.BanChat, Permanent: true}, nil},
		{"admin media", "admin", BanInput{TargetID: "bob", Type: domain.BanMedia, Duration: 36 * time.Hour}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Ban(ctx, tc.actor, tc.in)
			if !errors.Is(err, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
		})
	}

	// media ban days are rounded up
	acts := r.ListModeratorActions(1)
	d, _ := acts[0].DecodeDetails()
	if bi := d.(domain.BanIssued); bi.DurationDays != 2 {
		t.Fatalf("36h media ban should report 2 days, got %d", bi.DurationDays)
	}
	days, err := s.MediaBanDaysThisMonth(ctx, "admin", "admin", "bob")
	if err != nil || days != 2 {
		t.Fatalf("MediaBanDaysThisMonth = %d, %v", days, err)
	}
}

func TestUnban_MediaNeedsAdmin(t *testing.T) {
	s, r, _ := newModeration(t, 50)
	ctx := context.Background()
	r.AddModerator("mod", "", "admin", 3)

	media, err := s.Ban(ctx, "admin", BanInput{TargetID: "alice", Type: domain.BanMedia, Permanent: true})
	if err != nil {
		t.Fatalf("ban: %v", err)
	}
	if _, err := s.Unban(ctx, "mod", media.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("moderator lifting media ban: want ErrForbidden, got %v", err)
	}
	if _, err := s.Unban(ctx, "admin", media.ID); err != nil {
		t.Fatalf("admin unban: %v", err)
	}
	if _, err := s.Unban(ctx, "admin", media.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second unban: want ErrNotFound, got %v", err)
	}
	if got := r.ListModeratorActions(1)[0].ActionType; got != domain.ActionUnban {
		t.Fatalf("want unban action, got %s", got)
	}
}

func TestDeleteMessage_DailyCap(t *testing.T) {
	s, r, c := newModeration(t, 2)
	ctx := context.Background()
	r.AddModerator("mod", "", "admin", 1)

	var ids []string
	for i := 0; i < 4; i++ {
		ids = append(ids, r.AddChatMessage(repo.NewChatMessage{UserID: "alice", Content: "x"}).ID)
	}
	for _, id := range ids[:2] {
		if _, err := s.DeleteMessage(ctx, "mod", id); err != nil {
			t.Fatalf("delete %s: %v", id, err)
		}
	}
	if _, err := s.DeleteMessage(ctx, "mod", ids[2]); !errors.Is(err, ErrDailyLimitReached) {
		t.Fatalf("third delete: want ErrDailyLimitReached, got %v", err)
	}
	if _, err := s.DeleteMessage(ctx, "admin", ids[2]); err != nil {
		t.Fatalf("admins are uncapped: %v", err)
	}
	if _, err := s.DeleteMessage(ctx, "mod", ids[0]); !errors.Is(err, ErrNotFound) {
		t.Fatalf("already deleted: want ErrNotFound, got %v", err)
	}

	c.Advance(24 * time.Hour)
	if _, err := s.DeleteMessage(ctx, "mod", ids[3]); err != nil {
		t.Fatalf("next day: %v", err)
	}
}

func TestDeleteMessage_MissingMessageKeepsAllowance(t *testing.T) {
	s, r, _ := newModeration(t, 1)
	ctx := context.Background()
	r.AddModerator("mod", "", "admin", 1)
	m := r.AddChatMessage(repo.NewChatMessage{UserID: "alice", Content: "x"})

	if _, err := s.DeleteMessage(ctx, "admin", m.ID); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	for _, id := range []string{m.ID, "00000000-0000-0000-0000-000000000000"} {
		if _, err := s.DeleteMessage(ctx, "mod", id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("delete %s: want ErrNotFound, got %v", id, err)
		}
	}
	if mod, _ := r.GetModerator("mod"); mod.DailyDeleteCount != 0 {
		t.Fatalf("failed deletes spent allowance: %d", mod.DailyDeleteCount)
	}

	other := r.AddChatMessage(repo.NewChatMessage{UserID: "alice", Content: "y"})
	if _, err := s.DeleteMessage(ctx, "mod", other.ID); err != nil {
		t.Fatalf("allowance should still be available: %v", err)
	}
}

func TestAdminOnlyOperations(t *testing.T) {
	s, r, _ := newModeration(t, 50)
	ctx := context.Background()
	r.AddModerator("mod", "", "admin", 3)

	if _, err := s.ClearChat(ctx, "mod"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("ClearChat by moderator: %v", err)
	}
	if _, err := s.AddModerator(ctx, "mod", "bob", "Bob", 1); !errors.Is(err, ErrForbidden) {
		t.Fatalf("AddModerator by moderator: %v", err)
	}
	if _, err := s.SetStyle(ctx, "mod", domain.UserStyleOverride{UserID: "bob"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("SetStyle by moderator: %v", err)
	}
	if _, err := s.SetQuota(ctx, "mod", "bob", 1, 0, 0); !errors.Is(err, ErrForbidden) {
		t.Fatalf("SetQuota by moderator: %v", err)
	}

	m, err := s.AddModerator(ctx, "admin", "bob", "Bob", 9)
	if err != nil || m.Level != MaxModeratorLevel {
		t.Fatalf("level should clamp to %d: %#v, %v", MaxModeratorLevel, m, err)
	}
	if err := s.RemoveModerator(ctx, "admin", "bob"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.RemoveModerator(ctx, "admin", "bob"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second remove: %v", err)
	}

	if _, err := s.SetStyle(ctx, "admin", domain.UserStyleOverride{UserID: "bob", NicknameColor: "#f00"}); err != nil {
		t.Fatalf("style: %v", err)
	}
	if _, err := s.SetQuota(ctx, "admin", "bob", 3, 0, 0); err != nil {
		t.Fatalf("quota: %v", err)
	}
	r.AddChatMessage(repo.NewChatMessage{UserID: "bob", Content: "x"})
	if n, err := s.ClearChat(ctx, "admin"); err != nil || n != 1 {
		t.Fatalf("clear: %d, %v", n, err)
	}

	acts, err := s.Actions(ctx, "admin", 0)
	if err != nil {
		t.Fatalf("actions: %v", err)
	}
	want := []domain.ActionType{
		domain.ActionClearChat,
		domain.ActionSetQuota,
		domain.ActionSetStyle,
		domain.ActionRemoveModerator,
		domain.ActionAddModerator,
	}
	if len(acts) != len(want) {
		t.Fatalf("want %d actions, got %d", len(want), len(acts))
	}
	for i, a := range acts {
		if a.ActionType != want[i] {
			t.Fatalf("action %d: want %s, got %s", i, want[i], a.ActionType)
		}
	}
}

func TestRole(t *testing.T) {
	s, r, _ := newModeration(t, 50)
	ctx := context.Background()
	r.AddModerator("mod", "Mod", "admin", 2)

	if got := s.Role(ctx, "admin"); !got.IsAdmin || got.IsModerator {
		t.Fatalf("admin role: %#v", got)
	}
	if got := s.Role(ctx, "mod"); got.IsAdmin || !got.IsModerator || got.Level != 2 {
		t.Fatalf("moderator role: %#v", got)
	}
	if got := s.Role(ctx, "alice"); got != (Role{}) {
		t.Fatalf("plain user role: %#v", got)
	}
}
