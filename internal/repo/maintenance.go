package repo

import (
	"time"

	"github.com/tbourn/media-ratings-backend/internal/domain"
)

// AddNotification records a new-media notification. Notifications live in
// memory only; the newest domain.MaxNotifications are kept.
func (r *Repository) AddNotification(n domain.NewMediaNotification) domain.NewMediaNotification {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n.ID == "" {
		n.ID = newID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = r.now()
	}
	r.notifications = appendBounded(r.notifications, n, domain.MaxNotifications)
	return n
}

// GetNotificationsSince returns notifications created after since, oldest
// first. A nil since returns all of them.
func (r *Repository) GetNotificationsSince(since *time.Time) []domain.NewMediaNotification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.NewMediaNotification, 0, len(r.notifications))
	for _, n := range r.notifications {
		if since != nil && !n.CreatedAt.After(*since) {
			continue
		}
		out = append(out, n)
	}
	return out
}

// CleanupOldNotifications drops notifications older than maxAge.
func (r *Repository) CleanupOldNotifications(maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-maxAge)
	kept := r.notifications[:0:0]
	for _, n := range r.notifications {
		if n.CreatedAt.Before(cutoff) {
			continue
		}
		kept = append(kept, n)
	}
	removed := len(r.notifications) - len(kept)
	r.notifications = kept
	return removed
}

// PurgeExpiredBans physically removes chat bans and request bans whose
// expiry has passed at now. Permanent chat bans and open-ended request bans
// are never purged. It returns the counts removed from each collection.
func (r *Repository) PurgeExpiredBans(now time.Time) (chatBans, userBans int) {
	r.mutate(func(tx *txn) {
		for id, b := range r.chatBans {
			if b.IsExpiredAt(now) {
				delete(r.chatBans, id)
				chatBans++
			}
		}
		for id, b := range r.userBans {
			if b.IsExpiredAt(now) {
				delete(r.userBans, id)
				userBans++
			}
		}
		if chatBans > 0 {
			tx.touch(r.cChatBans)
		}
		if userBans > 0 {
			tx.touch(r.cUserBans)
		}
	})
	return chatBans, userBans
}
