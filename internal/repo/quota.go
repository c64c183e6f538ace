package repo

import (
	"time"

	"github.com/tbourn/media-ratings-backend/internal/domain"
)

// SetQuota creates or replaces the limits of userID. Existing usage counters
// and reset marks are kept so changing a limit does not forgive past use.
func (r *Repository) SetQuota(userID string, daily, weekly, monthly int, setBy string) domain.MediaQuota {
	var out domain.MediaQuota
	r.mutate(func(tx *txn) {
		now := r.now()
		q, ok := r.quotas[userID]
		if !ok {
			q = domain.NewMediaQuota(userID, daily, weekly, monthly, now)
		}
		q.DailyLimit = daily
		q.WeeklyLimit = weekly
		q.MonthlyLimit = monthly
		q.SetBy = setBy
		q.UpdatedAt = now
		q.Rollover(now)
		r.quotas[userID] = q
		out = q
		tx.touch(r.cQuotas)
	})
	return out
}

// GetQuota returns the quota of userID with its windows rolled over to now.
func (r *Repository) GetQuota(userID string, now time.Time) (domain.MediaQuota, bool) {
	var (
		out domain.MediaQuota
		ok  bool
	)
	r.mutate(func(tx *txn) {
		var q domain.MediaQuota
		if q, ok = r.quotas[userID]; !ok {
			return
		}
		if q.Rollover(now) {
			r.quotas[userID] = q
			tx.touch(r.cQuotas)
		}
		out = q
	})
	return out, ok
}

// ListQuotas returns all quotas with their windows rolled over to now.
func (r *Repository) ListQuotas(now time.Time) []domain.MediaQuota {
	var out []domain.MediaQuota
	r.mutate(func(tx *txn) {
		for id, q := range r.quotas {
			if q.Rollover(now) {
				r.quotas[id] = q
				tx.touch(r.cQuotas)
			}
		}
		out = sortedValues(r.quotas, func(v domain.MediaQuota) time.Time { return v.UpdatedAt })
	})
	return out
}

// RemoveQuota deletes the quota of userID.
func (r *Repository) RemoveQuota(userID string) bool {
	removed := false
	r.mutate(func(tx *txn) {
		if _, ok := r.quotas[userID]; !ok {
			return
		}
		delete(r.quotas, userID)
		removed = true
		tx.touch(r.cQuotas)
	})
	return removed
}

// IsQuotaExceeded rolls the windows of userID over to now and reports whether
// any limited window is used up. Users without a quota are never limited.
func (r *Repository) IsQuotaExceeded(userID string, now time.Time) (domain.MediaQuota, bool) {
	var (
		out      domain.MediaQuota
		exceeded bool
	)
	r.mutate(func(tx *txn) {
		q, ok := r.quotas[userID]
		if !ok {
			return
		}
		changed := q.Rollover(now)
		exceeded = q.IsExceeded(now)
		if changed {
			r.quotas[userID] = q
			tx.touch(r.cQuotas)
		}
		out = q
	})
	return out, exceeded
}

// IncrementQuotaUsage counts one use in every window of userID's quota and
// reports whether a quota exists.
func (r *Repository) IncrementQuotaUsage(userID string, now time.Time) bool {
	ok := false
	r.mutate(func(tx *txn) {
		var q domain.MediaQuota
		if q, ok = r.quotas[userID]; !ok {
			return
		}
		q.Increment(now)
		r.quotas[userID] = q
		tx.touch(r.cQuotas)
	})
	return ok
}

// TryConsumeQuota rolls userID's windows over to now and, unless a limited
// window is used up, counts one use. The check and the increment happen under
// one lock hold. Users without a quota are always allowed and nothing is
// recorded for them.
func (r *Repository) TryConsumeQuota(userID string, now time.Time) (domain.MediaQuota, bool) {
	var (
		out     domain.MediaQuota
		allowed = true
	)
	r.mutate(func(tx *txn) {
		q, ok := r.quotas[userID]
		if !ok {
			return
		}
		changed := q.Rollover(now)
		if q.IsExceeded(now) {
			allowed = false
		} else {
			q.Increment(now)
			changed = true
		}
		if changed {
			r.quotas[userID] = q
			tx.touch(r.cQuotas)
		}
		out = q
	})
	return out, allowed
}
