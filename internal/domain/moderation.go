package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// BanType is the scope of a ChatBan.
type BanType string

const (
	// BanChat blocks posting to chat and direct messages.
	BanChat BanType = "chat"
	// BanSnooze is a short mute enforced at the same point as BanChat.
	BanSnooze BanType = "snooze"
	// BanMedia blocks playback; enforced by the playback gate.
	BanMedia BanType = "media"
)

// Valid reports whether t is a known chat ban type.
func (t BanType) Valid() bool {
	return t == BanChat || t == BanSnooze || t == BanMedia
}

// ChatBan restricts a user. Activity is computed, never stored: permanent bans
// are always active and timed bans are active until ExpiresAt.
type ChatBan struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	UserName    string     `json:"user_name,omitempty"`
	BanType     BanType    `json:"ban_type"`
	Reason      string     `json:"reason,omitempty"`
	BannedBy    string     `json:"banned_by"`
	BannedAt    time.Time  `json:"banned_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	IsPermanent bool       `json:"is_permanent"`
}

// IsActiveAt reports whether the ban is in force at now.
func (b ChatBan) IsActiveAt(now time.Time) bool {
	if b.IsPermanent {
		return true
	}
	return b.ExpiresAt != nil && b.ExpiresAt.After(now)
}

// IsExpiredAt reports whether a timed ban has run out at now. Permanent bans
// never expire.
func (b ChatBan) IsExpiredAt(now time.Time) bool {
	return !b.IsPermanent && b.ExpiresAt != nil && !b.ExpiresAt.After(now)
}

// ChatModerator is a user granted moderation rights. Level gates escalation
// (longer bans); the daily delete counter resets lazily at UTC midnight.
type ChatModerator struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	UserName         string    `json:"user_name,omitempty"`
	AssignedBy       string    `json:"assigned_by"`
	AssignedAt       time.Time `json:"assigned_at"`
	Level            int       `json:"level"`
	DailyDeleteCount int       `json:"daily_delete_count"`
	DailyDeleteReset time.Time `json:"daily_delete_reset"`
}

// RollDaily zeroes the daily delete counter when now has reached the reset
// mark and moves the mark to the next UTC midnight.
func (m *ChatModerator) RollDaily(now time.Time) {
	if !now.Before(m.DailyDeleteReset) {
		m.DailyDeleteCount = 0
		m.DailyDeleteReset = NextDailyReset(now)
	}
}

// UserStyleOverride customizes how a user's name and messages render in chat.
type UserStyleOverride struct {
	UserID        string    `json:"user_id"`
	NicknameColor string    `json:"nickname_color,omitempty"`
	MessageColor  string    `json:"message_color,omitempty"`
	TextStyle     string    `json:"text_style,omitempty"`
	SetBy         string    `json:"set_by"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ActionType classifies a ModeratorAction.
type ActionType string

const (
	ActionDeleteMessage   ActionType = "delete_message"
	ActionClearChat       ActionType = "clear_chat"
	ActionChatBan         ActionType = "chat_ban"
	ActionSnooze          ActionType = "snooze"
	ActionMediaBan        ActionType = "media_ban"
	ActionUnban           ActionType = "unban"
	ActionSetQuota        ActionType = "set_quota"
	ActionRemoveQuota     ActionType = "remove_quota"
	ActionSetStyle        ActionType = "set_style"
	ActionRemoveStyle     ActionType = "remove_style"
	ActionAddModerator    ActionType = "add_moderator"
	ActionRemoveModerator ActionType = "remove_moderator"
)

// BanActionType maps a ban type to the action recorded when it is issued.
func BanActionType(t BanType) ActionType {
	switch t {
	case BanSnooze:
		return ActionSnooze
	case BanMedia:
		return ActionMediaBan
	default:
		return ActionChatBan
	}
}

func banTypeFor(a ActionType) BanType {
	switch a {
	case ActionSnooze:
		return BanSnooze
	case ActionMediaBan:
		return BanMedia
	default:
		return BanChat
	}
}

// ModeratorAction is an append-only audit record. Details holds the JSON form
// of the typed ActionDetails for ActionType.
type ModeratorAction struct {
	ID           string     `json:"id"`
	ModeratorID  string     `json:"moderator_id"`
	ActionType   ActionType `json:"action_type"`
	TargetUserID string     `json:"target_user_id,omitempty"`
	Details      string     `json:"details"`
	Timestamp    time.Time  `json:"timestamp"`
}

// ActionDetails is the typed payload of a ModeratorAction. Each implementation
// belongs to exactly one ActionType.
type ActionDetails interface {
	Action() ActionType
}

// MessageDeleted is recorded for ActionDeleteMessage.
type MessageDeleted struct {
	MessageID string `json:"messageId"`
	AuthorID  string `json:"authorId,omitempty"`
}

// ChatCleared is recorded for ActionClearChat.
type ChatCleared struct {
	Removed int `json:"removed"`
}

// BanIssued is recorded for ActionChatBan, ActionSnooze and ActionMediaBan.
// DurationDays is the whole-day length reported for media bans.
type BanIssued struct {
	BanID           string  `json:"banId"`
	BanType         BanType `json:"banType"`
	DurationMinutes int     `json:"durationMinutes,omitempty"`
	DurationDays    int     `json:"durationDays,omitempty"`
	Permanent       bool    `json:"permanent,omitempty"`
	Reason          string  `json:"reason,omitempty"`
}

// Action implements ActionDetails.
func (d BanIssued) Action() ActionType { return BanActionType(d.BanType) }

// BanLifted is recorded for ActionUnban.
type BanLifted struct {
	BanID   string  `json:"banId"`
	BanType BanType `json:"banType"`
}

// QuotaChanged is recorded for ActionSetQuota.
type QuotaChanged struct {
	DailyLimit   int `json:"dailyLimit"`
	WeeklyLimit  int `json:"weeklyLimit"`
	MonthlyLimit int `json:"monthlyLimit"`
}

// QuotaRemoved is recorded for ActionRemoveQuota.
type QuotaRemoved struct{}

// StyleChanged is recorded for ActionSetStyle.
type StyleChanged struct {
	NicknameColor string `json:"nicknameColor,omitempty"`
	MessageColor  string `json:"messageColor,omitempty"`
	TextStyle     string `json:"textStyle,omitempty"`
}

// StyleRemoved is recorded for ActionRemoveStyle.
type StyleRemoved struct{}

// ModeratorAdded is recorded for ActionAddModerator.
type ModeratorAdded struct {
	Level int `json:"level"`
}

// ModeratorRemoved is recorded for ActionRemoveModerator.
type ModeratorRemoved struct{}

func (MessageDeleted) Action() ActionType   { return ActionDeleteMessage }
func (ChatCleared) Action() ActionType      { return ActionClearChat }
func (BanLifted) Action() ActionType        { return ActionUnban }
func (QuotaChanged) Action() ActionType     { return ActionSetQuota }
func (QuotaRemoved) Action() ActionType     { return ActionRemoveQuota }
func (StyleChanged) Action() ActionType     { return ActionSetStyle }
func (StyleRemoved) Action() ActionType     { return ActionRemoveStyle }
func (ModeratorAdded) Action() ActionType   { return ActionAddModerator }
func (ModeratorRemoved) Action() ActionType { return ActionRemoveModerator }

// NewModeratorAction builds the audit record for details. The details blob is
// stored in its JSON form so existing readers of the file keep working.
func NewModeratorAction(id, moderatorID, targetUserID string, details ActionDetails, now time.Time) ModeratorAction {
	blob, err := json.Marshal(details)
	if err != nil {
		blob = []byte("{}")
	}
	return ModeratorAction{
		ID:           id,
		ModeratorID:  moderatorID,
		ActionType:   details.Action(),
		TargetUserID: targetUserID,
		Details:      string(blob),
		Timestamp:    now,
	}
}

// DecodeDetails parses Details into the typed payload for ActionType.
func (a ModeratorAction) DecodeDetails() (ActionDetails, error) {
	var target ActionDetails
	switch a.ActionType {
	case ActionDeleteMessage:
		target = &MessageDeleted{}
	case ActionClearChat:
		target = &ChatCleared{}
	case ActionChatBan, ActionSnooze, ActionMediaBan:
		target = &BanIssued{}
	case ActionUnban:
		target = &BanLifted{}
	case ActionSetQuota:
		target = &QuotaChanged{}
	case ActionRemoveQuota:
		return QuotaRemoved{}, nil
	case ActionSetStyle:
		target = &StyleChanged{}
	case ActionRemoveStyle:
		return StyleRemoved{}, nil
	case ActionAddModerator:
		target = &ModeratorAdded{}
	case ActionRemoveModerator:
		return ModeratorRemoved{}, nil
	default:
		return nil, fmt.Errorf("unknown action type %q", a.ActionType)
	}
	if a.Details != "" {
		if err := json.Unmarshal([]byte(a.Details), target); err != nil {
			return nil, fmt.Errorf("decode %s details: %w", a.ActionType, err)
		}
	}
	if b, ok := target.(*BanIssued); ok && b.BanType == "" {
		b.BanType = banTypeFor(a.ActionType)
	}
	return deref(target), nil
}

// deref returns the value behind the pointers DecodeDetails unmarshals into.
func deref(d ActionDetails) ActionDetails {
	switch v := d.(type) {
	case *MessageDeleted:
		return *v
	case *ChatCleared:
		return *v
	case *BanIssued:
		return *v
	case *BanLifted:
		return *v
	case *QuotaChanged:
		return *v
	case *StyleChanged:
		return *v
	case *ModeratorAdded:
		return *v
	}
	return d
}
