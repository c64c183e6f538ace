// Package services – ModerationService
//
// ModerationService gates every privileged chat operation. Admin status is
// the flag a client asserted in its last heartbeat; moderator status is the
// existence of a moderator record. Each successful privileged mutation
// appends exactly one typed entry to the moderator action log.
package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/media-ratings-backend/internal/domain"
	"github.com/tbourn/media-ratings-backend/internal/repo"
)

// ModerationStore is the repository contract ModerationService needs.
type ModerationStore interface {
	IsAdmin(userID string) bool
	IsModerator(userID string) bool
	GetModerator(userID string) (domain.ChatModerator, bool)
	GetChatUser(userID string) (domain.ChatUser, bool)

	CreateChatBan(in repo.NewChatBan) domain.ChatBan
	RemoveChatBan(id string) (domain.ChatBan, bool)
	ListChatBans(activeOnly bool, now time.Time) []domain.ChatBan

	DeleteChatMessage(id, deletedBy string) (domain.ChatMessage, bool)
	ClearChatMessages() int
	ModeratorDeleteChatMessage(id, userID string, limit int, now time.Time) (domain.ChatMessage, bool, bool)

	AddModerator(userID, userName, assignedBy string, level int) domain.ChatModerator
	RemoveModerator(userID string) bool
	ListModerators() []domain.ChatModerator

	LogModeratorAction(moderatorID, targetUserID string, details domain.ActionDetails) domain.ModeratorAction
	ListModeratorActions(limit int) []domain.ModeratorAction
	SumMediaBanDays(moderatorID, targetUserID string, now time.Time) int

	SetStyleOverride(in domain.UserStyleOverride) domain.UserStyleOverride
	RemoveStyleOverride(userID string) bool

	SetQuota(userID string, daily, weekly, monthly int, setBy string) domain.MediaQuota
	RemoveQuota(userID string) bool
	ListQuotas(now time.Time) []domain.MediaQuota
}

// Moderator ban ceilings by level. Level 3 and up, like admins, may issue
// bans of any length including permanent ones.
const (
	MaxBanLevel1      = 24 * time.Hour
	MaxBanLevel2      = 7 * 24 * time.Hour
	MaxModeratorLevel = 3
)

// ModerationService enforces the admin > moderator > user hierarchy.
type ModerationService struct {
	Store ModerationStore
	// DailyDeleteLimit caps message deletions per moderator per UTC day;
	// 0 means uncapped. Admins are never capped.
	DailyDeleteLimit int
	Now              func() time.Time
}

// NewModerationService constructs a ModerationService.
func NewModerationService(s ModerationStore, dailyDeleteLimit int) *ModerationService {
	return &ModerationService{
		Store:            s,
		DailyDeleteLimit: dailyDeleteLimit,
		Now:              func() time.Time { return time.Now().UTC() },
	}
}

// IsAdmin reports the admin flag asserted in userID's last heartbeat.
func (s *ModerationService) IsAdmin(userID string) bool { return s.Store.IsAdmin(userID) }

// IsModerator reports whether userID holds a moderator record.
func (s *ModerationService) IsModerator(userID string) bool { return s.Store.IsModerator(userID) }

// CanModerate reports whether userID is an admin or a moderator.
func (s *ModerationService) CanModerate(userID string) bool {
	return s.IsAdmin(userID) || s.IsModerator(userID)
}

// Role is the caller's moderation standing.
type Role struct {
	IsAdmin     bool `json:"is_admin"`
	IsModerator bool `json:"is_moderator"`
	Level       int  `json:"level,omitempty"`
}

// Role reports whether userID is an admin or a moderator, and at what level.
func (s *ModerationService) Role(ctx context.Context, userID string) Role {
	r := Role{IsAdmin: s.IsAdmin(userID)}
	if m, ok := s.Store.GetModerator(userID); ok {
		r.IsModerator = true
		r.Level = m.Level
	}
	return r
}

// BanInput describes a ban request. Duration is ignored for permanent bans.
type BanInput struct {
	TargetID   string
	TargetName string
	Type       domain.BanType
	Reason     string
	Duration   time.Duration
	Permanent  bool
}

// Ban issues a chat, snooze or media ban on behalf of actorID.
func (s *ModerationService) Ban(ctx context.Context, actorID string, in BanInput) (domain.ChatBan, error) {
	_, span := otel.Tracer("services/ModerationService").Start(ctx, "Ban",
		trace.WithAttributes(
			attribute.String("actor.id", actorID),
			attribute.String("target.id", in.TargetID),
			attribute.String("ban.type", string(in.Type)),
		),
	)
	defer span.End()

	admin := s.IsAdmin(actorID)
	if !admin && !s.IsModerator(actorID) {
		return domain.ChatBan{}, ErrForbidden
	}
	if !in.Type.Valid() {
		return domain.ChatBan{}, ErrInvalidBanType
	}
	if s.IsAdmin(in.TargetID) {
		return domain.ChatBan{}, ErrCannotBanAdmin
	}
	if in.Type == domain.BanMedia && !admin {
		return domain.ChatBan{}, ErrForbidden
	}
	if in.Permanent && in.Type == domain.BanSnooze {
		return domain.ChatBan{}, ErrDurationNotAllowed
	}
	if !in.Permanent && in.Duration <= 0 {
		return domain.ChatBan{}, ErrDurationNotAllowed
	}
	if !admin {
		mod, _ := s.Store.GetModerator(actorID)
		if !durationAllowed(mod.Level, in.Duration, in.Permanent) {
			return domain.ChatBan{}, ErrDurationNotAllowed
		}
	}

	now := s.Now()
	nb := repo.NewChatBan{
		UserID:      in.TargetID,
		UserName:    in.TargetName,
		BanType:     in.Type,
		Reason:      in.Reason,
		BannedBy:    actorID,
		IsPermanent: in.Permanent,
	}
	if nb.UserName == "" {
		if u, ok := s.Store.GetChatUser(in.TargetID); ok {
			nb.UserName = u.UserName
		}
	}
	if !in.Permanent {
		exp := now.Add(in.Duration)
		nb.ExpiresAt = &exp
	}
	ban := s.Store.CreateChatBan(nb)

	details := domain.BanIssued{
		BanID:     ban.ID,
		BanType:   ban.BanType,
		Permanent: ban.IsPermanent,
		Reason:    ban.Reason,
	}
	if !in.Permanent {
		details.DurationMinutes = int(in.Duration / time.Minute)
		if in.Type == domain.BanMedia {
			details.DurationDays = wholeDays(in.Duration)
		}
	}
	s.Store.LogModeratorAction(actorID, in.TargetID, details)

	log.Info().
		Str("actor", actorID).
		Str("target", in.TargetID).
		Str("ban_type", string(in.Type)).
		Bool("permanent", in.Permanent).
		Msg("ban issued")
	return ban, nil
}

// Unban removes a ban. Media bans can only be lifted by an admin.
func (s *ModerationService) Unban(ctx context.Context, actorID, banID string) (domain.ChatBan, error) {
	admin := s.IsAdmin(actorID)
	if !admin && !s.IsModerator(actorID) {
		return domain.ChatBan{}, ErrForbidden
	}
	for _, b := range s.Store.ListChatBans(false, s.Now()) {
		if b.ID == banID && b.BanType == domain.BanMedia && !admin {
			return domain.ChatBan{}, ErrForbidden
		}
	}
	ban, ok := s.Store.RemoveChatBan(banID)
	if !ok {
		return domain.ChatBan{}, ErrNotFound
	}
	s.Store.LogModeratorAction(actorID, ban.UserID, domain.BanLifted{BanID: ban.ID, BanType: ban.BanType})
	return ban, nil
}

// ListBans returns bans for moderators, optionally only those in force.
func (s *ModerationService) ListBans(ctx context.Context, actorID string, activeOnly bool) ([]domain.ChatBan, error) {
	if !s.CanModerate(actorID) {
		return nil, ErrForbidden
	}
	return s.Store.ListChatBans(activeOnly, s.Now()), nil
}

// DeleteMessage soft-deletes a room message. Moderators spend one unit of
// their daily allowance per message actually deleted.
func (s *ModerationService) DeleteMessage(ctx context.Context, actorID, messageID string) (domain.ChatMessage, error) {
	_, span := otel.Tracer("services/ModerationService").Start(ctx, "DeleteMessage",
		trace.WithAttributes(attribute.String("actor.id", actorID), attribute.String("message.id", messageID)))
	defer span.End()

	admin := s.IsAdmin(actorID)
	if !admin && !s.IsModerator(actorID) {
		return domain.ChatMessage{}, ErrForbidden
	}
	var (
		deleted domain.ChatMessage
		ok      bool
	)
	if admin {
		deleted, ok = s.Store.DeleteChatMessage(messageID, actorID)
	} else {
		var allowed bool
		deleted, ok, allowed = s.Store.ModeratorDeleteChatMessage(messageID, actorID, s.DailyDeleteLimit, s.Now())
		if !allowed {
			return domain.ChatMessage{}, ErrDailyLimitReached
		}
	}
	if !ok {
		return domain.ChatMessage{}, ErrNotFound
	}
	s.Store.LogModeratorAction(actorID, deleted.UserID, domain.MessageDeleted{MessageID: deleted.ID, AuthorID: deleted.UserID})
	return deleted, nil
}

// ClearChat removes every room message. Admin only.
func (s *ModerationService) ClearChat(ctx context.Context, actorID string) (int, error) {
	if !s.IsAdmin(actorID) {
		return 0, ErrForbidden
	}
	n := s.Store.ClearChatMessages()
	s.Store.LogModeratorAction(actorID, "", domain.ChatCleared{Removed: n})
	log.Warn().Str("actor", actorID).Int("removed", n).Msg("chat cleared")
	return n, nil
}

// AddModerator grants moderation rights at level (clamped to 1..3). Admin only.
func (s *ModerationService) AddModerator(ctx context.Context, actorID, targetID, targetName string, level int) (domain.ChatModerator, error) {
	if !s.IsAdmin(actorID) {
		return domain.ChatModerator{}, ErrForbidden
	}
	level = max(1, min(level, MaxModeratorLevel))
	m := s.Store.AddModerator(targetID, targetName, actorID, level)
	s.Store.LogModeratorAction(actorID, targetID, domain.ModeratorAdded{Level: level})
	return m, nil
}

// RemoveModerator revokes moderation rights. Admin only.
func (s *ModerationService) RemoveModerator(ctx context.Context, actorID, targetID string) error {
	if !s.IsAdmin(actorID) {
		return ErrForbidden
	}
	if !s.Store.RemoveModerator(targetID) {
		return ErrNotFound
	}
	s.Store.LogModeratorAction(actorID, targetID, domain.ModeratorRemoved{})
	return nil
}

// ListModerators returns the moderator roster.
func (s *ModerationService) ListModerators(ctx context.Context, actorID string) ([]domain.ChatModerator, error) {
	if !s.CanModerate(actorID) {
		return nil, ErrForbidden
	}
	return s.Store.ListModerators(), nil
}

// SetStyle replaces the display override of a user. Admin only.
func (s *ModerationService) SetStyle(ctx context.Context, actorID string, in domain.UserStyleOverride) (domain.UserStyleOverride, error) {
	if !s.IsAdmin(actorID) {
		return domain.UserStyleOverride{}, ErrForbidden
	}
	in.SetBy = actorID
	out := s.Store.SetStyleOverride(in)
	s.Store.LogModeratorAction(actorID, in.UserID, domain.StyleChanged{
		NicknameColor: in.NicknameColor,
		MessageColor:  in.MessageColor,
		TextStyle:     in.TextStyle,
	})
	return out, nil
}

// RemoveStyle deletes the display override of a user. Admin only.
func (s *ModerationService) RemoveStyle(ctx context.Context, actorID, targetID string) error {
	if !s.IsAdmin(actorID) {
		return ErrForbidden
	}
	if !s.Store.RemoveStyleOverride(targetID) {
		return ErrNotFound
	}
	s.Store.LogModeratorAction(actorID, targetID, domain.StyleRemoved{})
	return nil
}

// SetQuota sets the playback limits of a user. Admin only.
func (s *ModerationService) SetQuota(ctx context.Context, actorID, targetID string, daily, weekly, monthly int) (domain.MediaQuota, error) {
	if !s.IsAdmin(actorID) {
		return domain.MediaQuota{}, ErrForbidden
	}
	q := s.Store.SetQuota(targetID, daily, weekly, monthly, actorID)
	s.Store.LogModeratorAction(actorID, targetID, domain.QuotaChanged{
		DailyLimit:   daily,
		WeeklyLimit:  weekly,
		MonthlyLimit: monthly,
	})
	return q, nil
}

// RemoveQuota lifts every playback limit of a user. Admin only.
func (s *ModerationService) RemoveQuota(ctx context.Context, actorID, targetID string) error {
	if !s.IsAdmin(actorID) {
		return ErrForbidden
	}
	if !s.Store.RemoveQuota(targetID) {
		return ErrNotFound
	}
	s.Store.LogModeratorAction(actorID, targetID, domain.QuotaRemoved{})
	return nil
}

// ListQuotas returns all quotas rolled over to now. Admin only.
func (s *ModerationService) ListQuotas(ctx context.Context, actorID string) ([]domain.MediaQuota, error) {
	if !s.IsAdmin(actorID) {
		return nil, ErrForbidden
	}
	return s.Store.ListQuotas(s.Now()), nil
}

// Actions returns the newest audit entries.
func (s *ModerationService) Actions(ctx context.Context, actorID string, limit int) ([]domain.ModeratorAction, error) {
	if !s.CanModerate(actorID) {
		return nil, ErrForbidden
	}
	return s.Store.ListModeratorActions(limit), nil
}

// MediaBanDaysThisMonth totals the media-ban days moderatorID issued against
// targetID in the current calendar month. Admin only.
func (s *ModerationService) MediaBanDaysThisMonth(ctx context.Context, actorID, moderatorID, targetID string) (int, error) {
	if !s.IsAdmin(actorID) {
		return 0, ErrForbidden
	}
	return s.Store.SumMediaBanDays(moderatorID, targetID, s.Now()), nil
}

// durationAllowed applies the moderator level ceilings.
func durationAllowed(level int, d time.Duration, permanent bool) bool {
	switch {
	case level >= MaxModeratorLevel:
		return true
	case permanent:
		return false
	case level == 2:
		return d <= MaxBanLevel2
	default:
		return d <= MaxBanLevel1
	}
}

// wholeDays rounds d up to whole days.
func wholeDays(d time.Duration) int {
	const day = 24 * time.Hour
	return int((d + day - 1) / day)
}
