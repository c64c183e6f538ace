package repo

import (
	"sort"
	"time"

	"github.com/tbourn/media-ratings-backend/internal/domain"
)

// NewChatBan describes a chat, snooze or media ban to create.
type NewChatBan struct {
	UserID      string
	UserName    string
	BanType     domain.BanType
	Reason      string
	BannedBy    string
	ExpiresAt   *time.Time
	IsPermanent bool
}

// CreateChatBan stores a ban. Authorization (admin targets, media bans,
// moderator level caps) is checked by the caller.
func (r *Repository) CreateChatBan(in NewChatBan) domain.ChatBan {
	var out domain.ChatBan
	r.mutate(func(tx *txn) {
		out = domain.ChatBan{
			ID:          newID(),
			UserID:      in.UserID,
			UserName:    in.UserName,
			BanType:     in.BanType,
			Reason:      in.Reason,
			BannedBy:    in.BannedBy,
			BannedAt:    r.now(),
			ExpiresAt:   copyTime(in.ExpiresAt),
			IsPermanent: in.IsPermanent,
		}
		if out.IsPermanent {
			out.ExpiresAt = nil
		}
		r.chatBans[out.ID] = out
		tx.touch(r.cChatBans)
	})
	return out
}

// RemoveChatBan deletes the ban with id and returns it.
func (r *Repository) RemoveChatBan(id string) (domain.ChatBan, bool) {
	var (
		out domain.ChatBan
		ok  bool
	)
	r.mutate(func(tx *txn) {
		if out, ok = r.chatBans[id]; !ok {
			return
		}
		delete(r.chatBans, id)
		tx.touch(r.cChatBans)
	})
	return out, ok
}

// ListChatBans returns bans newest first. With activeOnly set, only bans in
// force at now are returned.
func (r *Repository) ListChatBans(activeOnly bool, now time.Time) []domain.ChatBan {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ChatBan, 0)
	for _, v := range r.chatBans {
		if activeOnly && !v.IsActiveAt(now) {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].BannedAt.Equal(out[j].BannedAt) {
			return out[i].BannedAt.After(out[j].BannedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// GetActiveChatBan returns a ban in force for userID at now whose type is one
// of types. Permanent bans win over timed ones, then the latest expiry.
func (r *Repository) GetActiveChatBan(userID string, now time.Time, types ...domain.BanType) (domain.ChatBan, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var (
		best  domain.ChatBan
		found bool
	)
	for _, v := range r.chatBans {
		if v.UserID != userID || !v.IsActiveAt(now) || !hasBanType(types, v.BanType) {
			continue
		}
		if !found || chatBanOutlasts(v, best) {
			best, found = v, true
		}
	}
	return best, found
}

func chatBanOutlasts(a, b domain.ChatBan) bool {
	if a.IsPermanent != b.IsPermanent {
		return a.IsPermanent
	}
	if a.IsPermanent {
		return false
	}
	return outlasts(a.ExpiresAt, b.ExpiresAt)
}

func hasBanType(types []domain.BanType, t domain.BanType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

// ----------------------------------------------------------------------------
// Moderators

// AddModerator grants moderation rights to userID at level. An existing
// moderator keeps its counters and gets the new level.
func (r *Repository) AddModerator(userID, userName, assignedBy string, level int) domain.ChatModerator {
	var out domain.ChatModerator
	r.mutate(func(tx *txn) {
		now := r.now()
		if cur, ok := r.moderators[userID]; ok {
			cur.Level = level
			if userName != "" {
				cur.UserName = userName
			}
			out = cur
		} else {
			out = domain.ChatModerator{
				ID:               newID(),
				UserID:           userID,
				UserName:         userName,
				AssignedBy:       assignedBy,
				AssignedAt:       now,
				Level:            level,
				DailyDeleteReset: domain.NextDailyReset(now),
			}
		}
		r.moderators[userID] = out
		tx.touch(r.cModerators)
		if u, ok := r.chatUsers[userID]; ok && !u.IsModerator {
			u.IsModerator = true
			r.chatUsers[userID] = u
			tx.touch(r.cChatUsers)
		}
	})
	return out
}

// RemoveModerator revokes moderation rights.
func (r *Repository) RemoveModerator(userID string) bool {
	removed := false
	r.mutate(func(tx *txn) {
		if _, ok := r.moderators[userID]; !ok {
			return
		}
		delete(r.moderators, userID)
		removed = true
		tx.touch(r.cModerators)
		if u, ok := r.chatUsers[userID]; ok && u.IsModerator {
			u.IsModerator = false
			r.chatUsers[userID] = u
			tx.touch(r.cChatUsers)
		}
	})
	return removed
}

// GetModerator returns the moderator record of userID.
func (r *Repository) GetModerator(userID string) (domain.ChatModerator, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.moderators[userID]
	return v, ok
}

// ListModerators returns moderators in assignment order.
func (r *Repository) ListModerators() []domain.ChatModerator {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedValues(r.moderators, func(v domain.ChatModerator) time.Time { return v.AssignedAt })
}

// IsModerator reports whether a moderator record exists for userID.
func (r *Repository) IsModerator(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.moderators[userID]
	return ok
}

// TryConsumeModeratorDelete counts one message deletion against the daily
// cap of moderator userID. The counter resets lazily at UTC midnight. It
// returns false, without counting, when userID is not a moderator or the cap
// is reached; limit <= 0 means uncapped.
func (r *Repository) TryConsumeModeratorDelete(userID string, limit int, now time.Time) bool {
	ok := false
	r.mutate(func(tx *txn) {
		ok = r.consumeModeratorDeleteLocked(tx, userID, limit, now)
	})
	return ok
}

// ModeratorDeleteChatMessage soft-deletes message id on behalf of moderator
// userID. One unit of the daily cap is spent only when the message is
// actually deleted; a missing or already deleted message costs nothing.
// allowed is false when userID is not a moderator or the cap is reached.
func (r *Repository) ModeratorDeleteChatMessage(id, userID string, limit int, now time.Time) (out domain.ChatMessage, deleted, allowed bool) {
	allowed = true
	r.mutate(func(tx *txn) {
		i := r.messageIndexLocked(id)
		if i < 0 || r.messages[i].IsDeleted {
			return
		}
		if allowed = r.consumeModeratorDeleteLocked(tx, userID, limit, now); !allowed {
			return
		}
		r.messages[i].IsDeleted = true
		r.messages[i].DeletedBy = userID
		out, deleted = r.messages[i], true
		tx.touch(r.cMessages)
	})
	return out, deleted, allowed
}

func (r *Repository) consumeModeratorDeleteLocked(tx *txn, userID string, limit int, now time.Time) bool {
	m, found := r.moderators[userID]
	if !found {
		return false
	}
	m.RollDaily(now)
	ok := limit <= 0 || m.DailyDeleteCount < limit
	if ok {
		m.DailyDeleteCount++
	}
	r.moderators[userID] = m
	tx.touch(r.cModerators)
	return ok
}

// ----------------------------------------------------------------------------
// Moderator actions

// LogModeratorAction appends an audit record built from details. The log
// keeps the newest domain.MaxModeratorLog entries.
func (r *Repository) LogModeratorAction(moderatorID, targetUserID string, details domain.ActionDetails) domain.ModeratorAction {
	var out domain.ModeratorAction
	r.mutate(func(tx *txn) {
		out = domain.NewModeratorAction(newID(), moderatorID, targetUserID, details, r.now())
		r.actions = appendBounded(r.actions, out, domain.MaxModeratorLog)
		tx.touch(r.cActions)
	})
	return out
}

// ListModeratorActions returns up to limit actions, newest first. limit <= 0
// returns all.
func (r *Repository) ListModeratorActions(limit int) []domain.ModeratorAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.actions)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.ModeratorAction, 0, n)
	for i := len(r.actions) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, r.actions[i])
	}
	return out
}

// SumMediaBanDays totals the day counts of media bans moderatorID issued
// against targetUserID in the calendar month (UTC) containing now. Records
// whose details cannot be decoded are skipped.
func (r *Repository) SumMediaBanDays(moderatorID, targetUserID string, now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	start := domain.StartOfMonth(now)
	end := domain.NextMonthlyReset(now)
	total := 0
	for _, a := range r.actions {
		if a.ActionType != domain.ActionMediaBan || a.ModeratorID != moderatorID || a.TargetUserID != targetUserID {
			continue
		}
		if a.Timestamp.Before(start) || !a.Timestamp.Before(end) {
			continue
		}
		d, err := a.DecodeDetails()
		if err != nil {
			r.log.Warn().Err(err).Str("action_id", a.ID).Msg("skip undecodable moderator action")
			continue
		}
		if ban, ok := d.(domain.BanIssued); ok {
			total += ban.DurationDays
		}
	}
	return total
}

// ----------------------------------------------------------------------------
// Style overrides

// SetStyleOverride replaces the style override of a user.
func (r *Repository) SetStyleOverride(in domain.UserStyleOverride) domain.UserStyleOverride {
	r.mutate(func(tx *txn) {
		in.UpdatedAt = r.now()
		r.styles[in.UserID] = in
		tx.touch(r.cStyles)
	})
	return in
}

// GetStyleOverride returns the style override of userID.
func (r *Repository) GetStyleOverride(userID string) (domain.UserStyleOverride, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.styles[userID]
	return v, ok
}

// ListStyleOverrides returns all overrides, least recently updated first.
func (r *Repository) ListStyleOverrides() []domain.UserStyleOverride {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedValues(r.styles, func(v domain.UserStyleOverride) time.Time { return v.UpdatedAt })
}

// RemoveStyleOverride deletes the override of userID.
func (r *Repository) RemoveStyleOverride(userID string) bool {
	removed := false
	r.mutate(func(tx *txn) {
		if _, ok := r.styles[userID]; !ok {
			return
		}
		delete(r.styles, userID)
		removed = true
		tx.touch(r.cStyles)
	})
	return removed
}

// appendBounded appends v and drops the oldest entries beyond max.
func appendBounded[T any](s []T, v T, max int) []T {
	s = append(s, v)
	if len(s) > max {
		s = append(s[:0:0], s[len(s)-max:]...)
	}
	return s
}
