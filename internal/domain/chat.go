package domain

import "time"

// Chat limits.
const (
	MaxChatMessages    = 1000
	MaxPrivateMessages = 5000
	MaxModeratorLog    = 10000
	MaxNotifications   = 100

	// TypingExpiry is how long a typing flag stays valid without a refresh.
	TypingExpiry = 10 * time.Second
)

// ChatMessage is a post in the shared chat room. Deletion is soft: the
// content stays so replies keep their context.
type ChatMessage struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Content   string    `json:"content"`
	GifURL    string    `json:"gif_url,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	IsDeleted bool      `json:"is_deleted"`
	DeletedBy string    `json:"deleted_by,omitempty"`
	ReplyToID string    `json:"reply_to_id,omitempty"`
}

// ChatUser is a presence record refreshed on every heartbeat.
//
// IsAdmin is asserted by the client in its heartbeat and trusted as sent; it
// is the value moderation checks read.
type ChatUser struct {
	UserID            string     `json:"user_id"`
	UserName          string     `json:"user_name"`
	AvatarURL         string     `json:"avatar_url,omitempty"`
	LastSeen          time.Time  `json:"last_seen"`
	IsTyping          bool       `json:"is_typing"`
	TypingStarted     *time.Time `json:"typing_started,omitempty"`
	LastSeenMessageID string     `json:"last_seen_message_id,omitempty"`
	IsAdmin           bool       `json:"is_admin"`
	IsModerator       bool       `json:"is_moderator"`
}

// IsTypingAt reports whether the typing flag is still fresh at now.
func (u ChatUser) IsTypingAt(now time.Time) bool {
	return u.IsTyping && u.TypingStarted != nil && now.Sub(*u.TypingStarted) <= TypingExpiry
}

// TypingStale reports whether the typing flag is set but has expired at now.
func (u ChatUser) TypingStale(now time.Time) bool {
	return u.IsTyping && !u.IsTypingAt(now)
}

// PrivateMessage is a direct message between two users. A conversation is the
// unordered pair (SenderID, RecipientID).
type PrivateMessage struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"sender_id"`
	SenderName  string    `json:"sender_name"`
	RecipientID string    `json:"recipient_id"`
	Content     string    `json:"content"`
	GifURL      string    `json:"gif_url,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	IsRead      bool      `json:"is_read"`
	IsDeleted   bool      `json:"is_deleted"`
}

// Involves reports whether userID is a participant of m.
func (m PrivateMessage) Involves(userID string) bool {
	return m.SenderID == userID || m.RecipientID == userID
}

// Other returns the participant of m that is not userID.
func (m PrivateMessage) Other(userID string) string {
	if m.SenderID == userID {
		return m.RecipientID
	}
	return m.SenderID
}

// Conversation summarizes the direct messages between a user and one other
// participant.
type Conversation struct {
	OtherUserID   string         `json:"other_user_id"`
	OtherUserName string         `json:"other_user_name,omitempty"`
	LastMessage   PrivateMessage `json:"last_message"`
	UnreadCount   int            `json:"unread_count"`
}
