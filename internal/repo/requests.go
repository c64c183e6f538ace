package repo

import (
	"sort"
	"time"

	"github.com/tbourn/media-ratings-backend/internal/domain"
)

// NewMediaRequest carries the user-supplied fields of a media request.
type NewMediaRequest struct {
	UserID   string
	Username string
	Title    string
	Type     string
	Notes    string
}

// CreateMediaRequest stores a new pending request.
func (r *Repository) CreateMediaRequest(in NewMediaRequest) domain.MediaRequest {
	var out domain.MediaRequest
	r.mutate(func(tx *txn) {
		out = domain.MediaRequest{
			ID:        newID(),
			UserID:    in.UserID,
			Username:  in.Username,
			Title:     in.Title,
			Type:      in.Type,
			Notes:     in.Notes,
			Status:    domain.RequestPending,
			CreatedAt: r.now(),
		}
		r.requests[out.ID] = out
		tx.touch(r.cRequests)
	})
	return out
}

// GetMediaRequest returns the request with id.
func (r *Repository) GetMediaRequest(id string) (domain.MediaRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.requests[id]
	return v, ok
}

// ListMediaRequests returns all requests, newest first. An empty status
// matches every request.
func (r *Repository) ListMediaRequests(status domain.RequestStatus) []domain.MediaRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filterRequestsLocked(func(v domain.MediaRequest) bool {
		return status == "" || v.Status == status
	})
}

// ListUserMediaRequests returns the requests of userID, newest first.
func (r *Repository) ListUserMediaRequests(userID string) []domain.MediaRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filterRequestsLocked(func(v domain.MediaRequest) bool { return v.UserID == userID })
}

// UpdateMediaRequestStatus moves a request to status and maintains its
// completion fields. It returns false when the request does not exist.
func (r *Repository) UpdateMediaRequestStatus(id string, status domain.RequestStatus, mediaLink, rejectionReason string) (domain.MediaRequest, bool) {
	var (
		out domain.MediaRequest
		ok  bool
	)
	r.mutate(func(tx *txn) {
		var cur domain.MediaRequest
		if cur, ok = r.requests[id]; !ok {
			return
		}
		cur.ApplyStatus(status, mediaLink, rejectionReason, r.now())
		r.requests[id] = cur
		out = cur
		tx.touch(r.cRequests)
	})
	return out, ok
}

// SnoozeMediaRequest parks a request until the given time.
func (r *Repository) SnoozeMediaRequest(id string, until time.Time) (domain.MediaRequest, bool) {
	var (
		out domain.MediaRequest
		ok  bool
	)
	r.mutate(func(tx *txn) {
		var cur domain.MediaRequest
		if cur, ok = r.requests[id]; !ok {
			return
		}
		cur.ApplyStatus(domain.RequestSnoozed, "", "", r.now())
		u := until
		cur.SnoozedUntil = &u
		r.requests[id] = cur
		out = cur
		tx.touch(r.cRequests)
	})
	return out, ok
}

// UnsnoozeMediaRequest returns a snoozed request to pending. Requests in any
// other status are left alone and reported as not found.
func (r *Repository) UnsnoozeMediaRequest(id string) (domain.MediaRequest, bool) {
	var (
		out domain.MediaRequest
		ok  bool
	)
	r.mutate(func(tx *txn) {
		cur, exists := r.requests[id]
		if !exists || cur.Status != domain.RequestSnoozed {
			return
		}
		cur.ApplyStatus(domain.RequestPending, "", "", r.now())
		r.requests[id] = cur
		out, ok = cur, true
		tx.touch(r.cRequests)
	})
	return out, ok
}

// UnsnoozeDue returns every snoozed request whose SnoozedUntil has passed to
// pending and reports how many changed.
func (r *Repository) UnsnoozeDue(now time.Time) int {
	n := 0
	r.mutate(func(tx *txn) {
		for id, cur := range r.requests {
			if cur.Status != domain.RequestSnoozed || cur.SnoozedUntil == nil || cur.SnoozedUntil.After(now) {
				continue
			}
			cur.ApplyStatus(domain.RequestPending, "", "", now)
			r.requests[id] = cur
			n++
		}
		if n > 0 {
			tx.touch(r.cRequests)
		}
	})
	return n
}

// DeleteMediaRequest removes a request and reports whether it existed.
func (r *Repository) DeleteMediaRequest(id string) bool {
	removed := false
	r.mutate(func(tx *txn) {
		if _, ok := r.requests[id]; !ok {
			return
		}
		delete(r.requests, id)
		removed = true
		tx.touch(r.cRequests)
	})
	return removed
}

// CleanupOldRejected purges rejected requests completed more than daysOld
// days ago. It is a no-op when daysOld <= 0.
func (r *Repository) CleanupOldRejected(daysOld int) int {
	if daysOld <= 0 {
		return 0
	}
	n := 0
	r.mutate(func(tx *txn) {
		cutoff := r.now().AddDate(0, 0, -daysOld)
		for id, v := range r.requests {
			if v.Status == domain.RequestRejected && v.CompletedAt != nil && v.CompletedAt.Before(cutoff) {
				delete(r.requests, id)
				n++
			}
		}
		if n > 0 {
			tx.touch(r.cRequests)
		}
	})
	return n
}

// CountUserRequestsInMonth counts the requests userID created in the calendar
// month (UTC) containing now.
func (r *Repository) CountUserRequestsInMonth(userID string, now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	start := domain.StartOfMonth(now)
	end := domain.NextMonthlyReset(now)
	n := 0
	for _, v := range r.requests {
		if v.UserID == userID && !v.CreatedAt.Before(start) && v.CreatedAt.Before(end) {
			n++
		}
	}
	return n
}

func (r *Repository) filterRequestsLocked(keep func(domain.MediaRequest) bool) []domain.MediaRequest {
	out := make([]domain.MediaRequest, 0)
	for _, v := range r.requests {
		if keep(v) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ----------------------------------------------------------------------------
// Deletion requests

// NewDeletionRequest carries the user-supplied fields of a deletion request.
type NewDeletionRequest struct {
	UserID         string
	Username       string
	MediaRequestID string
	ItemID         string
	Title          string
	Reason         string
}

// CreateDeletionRequest stores a new pending deletion request. Callers check
// HasPendingDeletionRequest first; this method does not.
func (r *Repository) CreateDeletionRequest(in NewDeletionRequest) domain.DeletionRequest {
	var out domain.DeletionRequest
	r.mutate(func(tx *txn) {
		out = domain.DeletionRequest{
			ID:             newID(),
			UserID:         in.UserID,
			Username:       in.Username,
			MediaRequestID: in.MediaRequestID,
			ItemID:         in.ItemID,
			Title:          in.Title,
			Reason:         in.Reason,
			Status:         domain.DeletionPending,
			CreatedAt:      r.now(),
		}
		r.deletions[out.ID] = out
		tx.touch(r.cDeletions)
	})
	return out
}

// HasPendingDeletionRequest reports whether a pending deletion request exists
// for mediaRequestID.
func (r *Repository) HasPendingDeletionRequest(mediaRequestID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.deletions {
		if v.MediaRequestID == mediaRequestID && v.Status == domain.DeletionPending {
			return true
		}
	}
	return false
}

// GetDeletionRequest returns the deletion request with id.
func (r *Repository) GetDeletionRequest(id string) (domain.DeletionRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.deletions[id]
	return v, ok
}

// ListDeletionRequests returns deletion requests newest first. An empty
// status matches all.
func (r *Repository) ListDeletionRequests(status domain.DeletionStatus) []domain.DeletionRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filterDeletionsLocked(func(v domain.DeletionRequest) bool { return status == "" || v.Status == status })
}

// ListUserDeletionRequests returns the deletion requests of userID, newest first.
func (r *Repository) ListUserDeletionRequests(userID string) []domain.DeletionRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filterDeletionsLocked(func(v domain.DeletionRequest) bool { return v.UserID == userID })
}

// ResolveDeletionRequest approves or rejects a deletion request, stamping
// ResolvedAt and ResolvedByUsername. RejectionReason is kept only for
// rejections.
func (r *Repository) ResolveDeletionRequest(id string, status domain.DeletionStatus, resolvedBy, rejectionReason string) (domain.DeletionRequest, bool) {
	var (
		out domain.DeletionRequest
		ok  bool
	)
	r.mutate(func(tx *txn) {
		var cur domain.DeletionRequest
		if cur, ok = r.deletions[id]; !ok {
			return
		}
		now := r.now()
		cur.Status = status
		cur.ResolvedAt = &now
		cur.ResolvedByUsername = resolvedBy
		if status == domain.DeletionRejected {
			cur.RejectionReason = rejectionReason
		} else {
			cur.RejectionReason = ""
		}
		r.deletions[id] = cur
		out = cur
		tx.touch(r.cDeletions)
	})
	return out, ok
}

func (r *Repository) filterDeletionsLocked(keep func(domain.DeletionRequest) bool) []domain.DeletionRequest {
	out := make([]domain.DeletionRequest, 0)
	for _, v := range r.deletions {
		if keep(v) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ----------------------------------------------------------------------------
// Scheduled deletions

// ScheduleDeletion schedules itemID for deletion at deleteAt. An existing
// entry for the item, cancelled or not, is overwritten in place and keeps
// its ID.
func (r *Repository) ScheduleDeletion(itemID, title string, deleteAt time.Time, scheduledBy string) domain.ScheduledDeletion {
	var out domain.ScheduledDeletion
	r.mutate(func(tx *txn) {
		now := r.now()
		if cur, ok := r.scheduledByItemLocked(itemID); ok {
			cur.Title = title
			cur.DeleteAt = deleteAt
			cur.ScheduledByUserID = scheduledBy
			cur.CreatedAt = now
			cur.IsCancelled = false
			cur.CancelledAt = nil
			out = cur
		} else {
			out = domain.ScheduledDeletion{
				ID:                newID(),
				ItemID:            itemID,
				Title:             title,
				DeleteAt:          deleteAt,
				ScheduledByUserID: scheduledBy,
				CreatedAt:         now,
			}
		}
		r.scheduled[out.ID] = out
		tx.touch(r.cScheduled)
	})
	return out
}

// CancelScheduledDeletion marks the active entry for itemID cancelled.
func (r *Repository) CancelScheduledDeletion(itemID string) bool {
	ok := false
	r.mutate(func(tx *txn) {
		cur, found := r.scheduledByItemLocked(itemID)
		if !found || cur.IsCancelled {
			return
		}
		now := r.now()
		cur.IsCancelled = true
		cur.CancelledAt = &now
		r.scheduled[cur.ID] = cur
		ok = true
		tx.touch(r.cScheduled)
	})
	return ok
}

// GetScheduledDeletion returns the entry for itemID, cancelled or not.
func (r *Repository) GetScheduledDeletion(itemID string) (domain.ScheduledDeletion, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scheduledByItemLocked(itemID)
}

// ListScheduledDeletions returns active entries ordered by DeleteAt.
func (r *Repository) ListScheduledDeletions() []domain.ScheduledDeletion {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filterScheduledLocked(func(v domain.ScheduledDeletion) bool { return !v.IsCancelled })
}

// GetDueDeletions returns active entries whose DeleteAt is at or before now.
func (r *Repository) GetDueDeletions(now time.Time) []domain.ScheduledDeletion {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filterScheduledLocked(func(v domain.ScheduledDeletion) bool { return v.IsDue(now) })
}

// RemoveScheduledDeletion drops the entry for itemID.
func (r *Repository) RemoveScheduledDeletion(itemID string) bool {
	removed := false
	r.mutate(func(tx *txn) {
		cur, ok := r.scheduledByItemLocked(itemID)
		if !ok {
			return
		}
		delete(r.scheduled, cur.ID)
		removed = true
		tx.touch(r.cScheduled)
	})
	return removed
}

// PurgeCancelledDeletions drops every cancelled entry.
func (r *Repository) PurgeCancelledDeletions() int {
	n := 0
	r.mutate(func(tx *txn) {
		for id, v := range r.scheduled {
			if v.IsCancelled {
				delete(r.scheduled, id)
				n++
			}
		}
		if n > 0 {
			tx.touch(r.cScheduled)
		}
	})
	return n
}

func (r *Repository) scheduledByItemLocked(itemID string) (domain.ScheduledDeletion, bool) {
	for _, v := range r.scheduled {
		if v.ItemID == itemID {
			return v, true
		}
	}
	return domain.ScheduledDeletion{}, false
}

func (r *Repository) filterScheduledLocked(keep func(domain.ScheduledDeletion) bool) []domain.ScheduledDeletion {
	out := make([]domain.ScheduledDeletion, 0)
	for _, v := range r.scheduled {
		if keep(v) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DeleteAt.Equal(out[j].DeleteAt) {
			return out[i].DeleteAt.Before(out[j].DeleteAt)
		}
		return out[i].ItemID < out[j].ItemID
	})
	return out
}

// ----------------------------------------------------------------------------
// Request bans

// CreateUserBan revokes a request privilege of userID. A nil expiresAt bans
// until lifted.
func (r *Repository) CreateUserBan(userID string, banType domain.UserBanType, reason, bannedBy string, expiresAt *time.Time) domain.UserBan {
	var out domain.UserBan
	r.mutate(func(tx *txn) {
		out = domain.UserBan{
			ID:        newID(),
			UserID:    userID,
			BanType:   banType,
			Reason:    reason,
			BannedBy:  bannedBy,
			CreatedAt: r.now(),
			ExpiresAt: copyTime(expiresAt),
		}
		r.userBans[out.ID] = out
		tx.touch(r.cUserBans)
	})
	return out
}

// LiftUserBan lifts a ban logically; the record is kept.
func (r *Repository) LiftUserBan(id string) bool {
	ok := false
	r.mutate(func(tx *txn) {
		cur, found := r.userBans[id]
		if !found || cur.IsLifted {
			return
		}
		now := r.now()
		cur.IsLifted = true
		cur.LiftedAt = &now
		r.userBans[id] = cur
		ok = true
		tx.touch(r.cUserBans)
	})
	return ok
}

// ListUserBans returns the bans of userID (all users when empty), newest first.
func (r *Repository) ListUserBans(userID string) []domain.UserBan {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.UserBan, 0)
	for _, v := range r.userBans {
		if userID == "" || v.UserID == userID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// GetActiveUserBan returns a ban of banType in force for userID at now. When
// several apply, the one lasting longest wins; open-ended bans outrank timed.
func (r *Repository) GetActiveUserBan(userID string, banType domain.UserBanType, now time.Time) (domain.UserBan, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var (
		best  domain.UserBan
		found bool
	)
	for _, v := range r.userBans {
		if v.UserID != userID || v.BanType != banType || !v.IsActiveAt(now) {
			continue
		}
		if !found || outlasts(v.ExpiresAt, best.ExpiresAt) {
			best, found = v, true
		}
	}
	return best, found
}

// outlasts reports whether expiry a ends after expiry b; nil never ends.
func outlasts(a, b *time.Time) bool {
	switch {
	case b == nil:
		return false
	case a == nil:
		return true
	default:
		return a.After(*b)
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
