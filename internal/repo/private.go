package repo

import (
	"sort"

	"github.com/tbourn/media-ratings-backend/internal/domain"
)

// NewPrivateMessage carries the fields of a direct message.
type NewPrivateMessage struct {
	SenderID    string
	SenderName  string
	RecipientID string
	Content     string
	GifURL      string
}

// SendPrivateMessage appends a direct message, evicting the oldest beyond
// domain.MaxPrivateMessages.
func (r *Repository) SendPrivateMessage(in NewPrivateMessage) domain.PrivateMessage {
	var out domain.PrivateMessage
	r.mutate(func(tx *txn) {
		out = domain.PrivateMessage{
			ID:          newID(),
			SenderID:    in.SenderID,
			SenderName:  in.SenderName,
			RecipientID: in.RecipientID,
			Content:     in.Content,
			GifURL:      in.GifURL,
			Timestamp:   r.now(),
		}
		r.dms = appendBounded(r.dms, out, domain.MaxPrivateMessages)
		tx.touch(r.cDMs)
	})
	return out
}

// GetConversation returns up to limit non-deleted messages exchanged between
// userID and otherUserID in chronological order, keeping the newest.
func (r *Repository) GetConversation(userID, otherUserID string, limit int) []domain.PrivateMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 {
		limit = domain.MaxPrivateMessages
	}
	out := make([]domain.PrivateMessage, 0)
	for i := len(r.dms) - 1; i >= 0 && len(out) < limit; i-- {
		m := r.dms[i]
		if m.IsDeleted || !m.Involves(userID) || m.Other(userID) != otherUserID {
			continue
		}
		out = append(out, m)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// GetConversations groups the non-deleted direct messages of userID by the
// other participant. Each conversation carries its latest message and the
// number of unread messages userID received; the most recently active
// conversation comes first.
func (r *Repository) GetConversations(userID string) []domain.Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()

	byOther := make(map[string]*domain.Conversation)
	for _, m := range r.dms {
		if m.IsDeleted || !m.Involves(userID) {
			continue
		}
		other := m.Other(userID)
		c, ok := byOther[other]
		if !ok {
			c = &domain.Conversation{OtherUserID: other}
			byOther[other] = c
		}
		if !m.Timestamp.Before(c.LastMessage.Timestamp) {
			c.LastMessage = m
		}
		if m.SenderID != userID {
			c.OtherUserName = m.SenderName
		}
		if m.RecipientID == userID && !m.IsRead {
			c.UnreadCount++
		}
	}

	out := make([]domain.Conversation, 0, len(byOther))
	for _, c := range byOther {
		if c.OtherUserName == "" {
			if u, ok := r.chatUsers[c.OtherUserID]; ok {
				c.OtherUserName = u.UserName
			}
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].LastMessage.Timestamp, out[j].LastMessage.Timestamp
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return out[i].OtherUserID < out[j].OtherUserID
	})
	return out
}

// MarkConversationRead marks every message otherUserID sent to userID as
// read and returns how many changed.
func (r *Repository) MarkConversationRead(userID, otherUserID string) int {
	n := 0
	r.mutate(func(tx *txn) {
		for i := range r.dms {
			m := &r.dms[i]
			if m.RecipientID == userID && m.SenderID == otherUserID && !m.IsRead {
				m.IsRead = true
				n++
			}
		}
		if n > 0 {
			tx.touch(r.cDMs)
		}
	})
	return n
}

// DeletePrivateMessage soft-deletes a direct message. Only its sender may
// delete it; any other caller gets false.
func (r *Repository) DeletePrivateMessage(id, requesterID string) bool {
	ok := false
	r.mutate(func(tx *txn) {
		for i := range r.dms {
			m := &r.dms[i]
			if m.ID != id {
				continue
			}
			if m.SenderID != requesterID || m.IsDeleted {
				return
			}
			m.IsDeleted = true
			ok = true
			tx.touch(r.cDMs)
			return
		}
	})
	return ok
}

// GetPrivateMessage returns the direct message with id.
func (r *Repository) GetPrivateMessage(id string) (domain.PrivateMessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.dms {
		if m.ID == id {
			return m, true
		}
	}
	return domain.PrivateMessage{}, false
}

// GetUnreadPrivateCount counts unread, non-deleted messages sent to userID.
func (r *Repository) GetUnreadPrivateCount(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.dms {
		if m.RecipientID == userID && !m.IsRead && !m.IsDeleted {
			n++
		}
	}
	return n
}
