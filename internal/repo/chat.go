package repo

import (
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/tbourn/media-ratings-backend/internal/domain"
)

// NewChatMessage carries the fields of a chat post.
type NewChatMessage struct {
	UserID    string
	UserName  string
	Content   string
	GifURL    string
	ReplyToID string
}

// AddChatMessage appends a message to the room log, evicting the oldest
// entries beyond domain.MaxChatMessages.
func (r *Repository) AddChatMessage(in NewChatMessage) domain.ChatMessage {
	var out domain.ChatMessage
	r.mutate(func(tx *txn) {
		out = domain.ChatMessage{
			ID:        newID(),
			UserID:    in.UserID,
			UserName:  in.UserName,
			Content:   in.Content,
			GifURL:    in.GifURL,
			Timestamp: r.now(),
			ReplyToID: in.ReplyToID,
		}
		r.messages = appendBounded(r.messages, out, domain.MaxChatMessages)
		tx.touch(r.cMessages)
	})
	return out
}

// GetRecentChatMessages returns at most limit messages, optionally only those
// posted after since, in chronological order. The newest messages are kept
// when the result is truncated.
func (r *Repository) GetRecentChatMessages(limit int, since *time.Time) []domain.ChatMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 {
		limit = domain.MaxChatMessages
	}
	newest := make([]domain.ChatMessage, 0, min(limit, len(r.messages)))
	for i := len(r.messages) - 1; i >= 0 && len(newest) < limit; i-- {
		m := r.messages[i]
		if since != nil && !m.Timestamp.After(*since) {
			continue
		}
		newest = append(newest, m)
	}
	for i, j := 0, len(newest)-1; i < j; i, j = i+1, j-1 {
		newest[i], newest[j] = newest[j], newest[i]
	}
	return newest
}

// GetChatMessage returns the message with id.
func (r *Repository) GetChatMessage(id string) (domain.ChatMessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.messageIndexLocked(id); i >= 0 {
		return r.messages[i], true
	}
	return domain.ChatMessage{}, false
}

// DeleteChatMessage soft-deletes a message. The content stays so replies keep
// their context. Deleting an already deleted message reports false.
func (r *Repository) DeleteChatMessage(id, deletedBy string) (domain.ChatMessage, bool) {
	var (
		out domain.ChatMessage
		ok  bool
	)
	r.mutate(func(tx *txn) {
		i := r.messageIndexLocked(id)
		if i < 0 || r.messages[i].IsDeleted {
			return
		}
		r.messages[i].IsDeleted = true
		r.messages[i].DeletedBy = deletedBy
		out, ok = r.messages[i], true
		tx.touch(r.cMessages)
	})
	return out, ok
}

// ClearChatMessages removes every message and returns how many there were.
func (r *Repository) ClearChatMessages() int {
	n := 0
	r.mutate(func(tx *txn) {
		n = len(r.messages)
		r.messages = nil
		tx.touch(r.cMessages)
	})
	return n
}

// CleanupOldChatMessages purges messages older than daysOld days. It is a
// no-op when daysOld <= 0.
func (r *Repository) CleanupOldChatMessages(daysOld int) int {
	if daysOld <= 0 {
		return 0
	}
	n := 0
	r.mutate(func(tx *txn) {
		cutoff := r.now().AddDate(0, 0, -daysOld)
		kept := r.messages[:0:0]
		for _, m := range r.messages {
			if m.Timestamp.Before(cutoff) {
				n++
				continue
			}
			kept = append(kept, m)
		}
		if n > 0 {
			r.messages = kept
			tx.touch(r.cMessages)
		}
	})
	return n
}

func (r *Repository) messageIndexLocked(id string) int {
	for i := len(r.messages) - 1; i >= 0; i-- {
		if r.messages[i].ID == id {
			return i
		}
	}
	return -1
}

// ----------------------------------------------------------------------------
// Presence

// HeartbeatInput describes a client presence ping. IsAdmin is asserted by the
// client and stored as sent.
type HeartbeatInput struct {
	UserID    string
	UserName  string
	AvatarURL string
	IsAdmin   bool
}

// Heartbeat upserts the presence record of a user, refreshing LastSeen, the
// display fields and the admin and moderator flags.
func (r *Repository) Heartbeat(in HeartbeatInput) domain.ChatUser {
	var out domain.ChatUser
	r.mutate(func(tx *txn) {
		now := r.now()
		u := r.chatUsers[in.UserID]
		u.UserID = in.UserID
		u.UserName = in.UserName
		u.AvatarURL = in.AvatarURL
		u.LastSeen = now
		u.IsAdmin = in.IsAdmin
		_, u.IsModerator = r.moderators[in.UserID]
		if id, ok := r.lastSeen[in.UserID]; ok {
			u.LastSeenMessageID = id
		}
		if u.TypingStale(now) {
			clearTyping(&u)
		}
		r.chatUsers[in.UserID] = u
		out = u
		tx.touch(r.cChatUsers)
	})
	return out
}

// SetTyping sets or clears the typing flag of a user who has sent at least
// one heartbeat. Entering the typing state restamps TypingStarted. For a user
// without a presence record it changes nothing and returns false; no record
// is created, since only Heartbeat carries the name and admin flag.
func (r *Repository) SetTyping(userID string, typing bool) bool {
	ok := false
	r.mutate(func(tx *txn) {
		u, found := r.chatUsers[userID]
		if !found {
			return
		}
		now := r.now()
		if typing {
			u.IsTyping = true
			u.TypingStarted = &now
		} else {
			clearTyping(&u)
		}
		u.LastSeen = now
		r.chatUsers[userID] = u
		ok = true
		tx.touch(r.cChatUsers)
	})
	return ok
}

// GetTypingUsers returns users whose typing flag is fresh, ordered by name,
// excluding excludeUserID. Stale flags are cleared on the way.
func (r *Repository) GetTypingUsers(excludeUserID string) []domain.ChatUser {
	var out []domain.ChatUser
	r.mutate(func(tx *txn) {
		now := r.now()
		out = make([]domain.ChatUser, 0)
		for id, u := range r.chatUsers {
			if u.TypingStale(now) {
				clearTyping(&u)
				r.chatUsers[id] = u
				tx.touch(r.cChatUsers)
				continue
			}
			if u.IsTypingAt(now) && id != excludeUserID {
				out = append(out, u)
			}
		}
		r.sortByNameLocked(out)
	})
	return out
}

// GetOnlineUsers returns users seen within window, ordered by name. Stale
// typing flags are cleared on the way.
func (r *Repository) GetOnlineUsers(window time.Duration) []domain.ChatUser {
	var out []domain.ChatUser
	r.mutate(func(tx *txn) {
		now := r.now()
		cutoff := now.Add(-window)
		out = make([]domain.ChatUser, 0)
		for id, u := range r.chatUsers {
			if u.LastSeen.Before(cutoff) {
				continue
			}
			if u.TypingStale(now) {
				clearTyping(&u)
				r.chatUsers[id] = u
				tx.touch(r.cChatUsers)
			}
			out = append(out, u)
		}
		r.sortByNameLocked(out)
	})
	return out
}

// GetChatUser returns the presence record of userID.
func (r *Repository) GetChatUser(userID string) (domain.ChatUser, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.chatUsers[userID]
	return u, ok
}

// IsAdmin reports the admin flag last asserted in a heartbeat of userID.
func (r *Repository) IsAdmin(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chatUsers[userID].IsAdmin
}

// MarkChatSeen records messageID as the last room message userID has seen.
func (r *Repository) MarkChatSeen(userID, messageID string) {
	r.mutate(func(tx *txn) {
		r.lastSeen[userID] = messageID
		tx.touch(r.cLastSeen)
		if u, ok := r.chatUsers[userID]; ok {
			u.LastSeenMessageID = messageID
			r.chatUsers[userID] = u
			tx.touch(r.cChatUsers)
		}
	})
}

// GetUnreadChatCount counts non-deleted room messages posted after the last
// message userID has seen. Without a usable mark every message is unread.
func (r *Repository) GetUnreadChatCount(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var after *time.Time
	if id, ok := r.lastSeen[userID]; ok {
		if i := r.messageIndexLocked(id); i >= 0 {
			ts := r.messages[i].Timestamp
			after = &ts
		}
	}
	n := 0
	for _, m := range r.messages {
		if m.IsDeleted {
			continue
		}
		if after != nil && !m.Timestamp.After(*after) {
			continue
		}
		n++
	}
	return n
}

// EvictStalePresence drops presence records not seen for maxAge.
func (r *Repository) EvictStalePresence(maxAge time.Duration) int {
	n := 0
	r.mutate(func(tx *txn) {
		cutoff := r.now().Add(-maxAge)
		for id, u := range r.chatUsers {
			if u.LastSeen.Before(cutoff) {
				delete(r.chatUsers, id)
				n++
			}
		}
		if n > 0 {
			tx.touch(r.cChatUsers)
		}
	})
	return n
}

func clearTyping(u *domain.ChatUser) {
	u.IsTyping = false
	u.TypingStarted = nil
}

// sortByNameLocked orders users by display name using Unicode collation,
// then by ID. The collator is not safe for concurrent use; the state lock
// covers it.
func (r *Repository) sortByNameLocked(users []domain.ChatUser) {
	if r.collator == nil {
		r.collator = collate.New(language.Und, collate.IgnoreCase)
	}
	c := r.collator
	sortStable(users, func(a, b domain.ChatUser) bool {
		if d := c.CompareString(a.UserName, b.UserName); d != 0 {
			return d < 0
		}
		return a.UserID < b.UserID
	})
}
