package repo

import (
	"math"
	"sort"

	"github.com/tbourn/media-ratings-backend/internal/domain"
)

// SetRating upserts the rating of userID for itemID. An existing rating is
// updated in place and keeps its ID and CreatedAt. Range checks belong to
// the caller.
func (r *Repository) SetRating(userID, itemID string, value int) domain.UserRating {
	var out domain.UserRating
	r.mutate(func(tx *txn) {
		now := r.now()
		if id, ok := r.findRatingLocked(userID, itemID); ok {
			cur := r.ratings[id]
			cur.Rating = value
			cur.UpdatedAt = now
			r.ratings[id] = cur
			out = cur
		} else {
			out = domain.UserRating{
				ID:        newID(),
				UserID:    userID,
				ItemID:    itemID,
				Rating:    value,
				CreatedAt: now,
				UpdatedAt: now,
			}
			r.ratings[out.ID] = out
		}
		tx.touch(r.cRatings)
	})
	return out
}

// GetUserRating returns the rating userID gave itemID.
func (r *Repository) GetUserRating(userID, itemID string) (domain.UserRating, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.findRatingLocked(userID, itemID)
	if !ok {
		return domain.UserRating{}, false
	}
	return r.ratings[id], true
}

// GetItemRatings lists every rating of itemID, oldest first.
func (r *Repository) GetItemRatings(itemID string) []domain.UserRating {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filterRatingsLocked(func(v domain.UserRating) bool { return v.ItemID == itemID })
}

// GetUserRatings lists every rating userID has given, oldest first.
func (r *Repository) GetUserRatings(userID string) []domain.UserRating {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filterRatingsLocked(func(v domain.UserRating) bool { return v.UserID == userID })
}

// DeleteRating removes the rating of userID for itemID and reports whether
// one existed.
func (r *Repository) DeleteRating(userID, itemID string) bool {
	removed := false
	r.mutate(func(tx *txn) {
		id, ok := r.findRatingLocked(userID, itemID)
		if !ok {
			return
		}
		delete(r.ratings, id)
		removed = true
		tx.touch(r.cRatings)
	})
	return removed
}

// GetStats aggregates the ratings of itemID in one pass. When userID is not
// empty and that user rated the item, UserRating is set.
func (r *Repository) GetStats(itemID, userID string) domain.RatingStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := domain.RatingStats{ItemID: itemID}
	sum := 0
	for _, v := range r.ratings {
		if v.ItemID != itemID {
			continue
		}
		st.TotalRatings++
		sum += v.Rating
		if v.Rating >= 1 && v.Rating <= domain.RatingBuckets {
			st.Distribution[v.Rating-1]++
		}
		if userID != "" && v.UserID == userID {
			own := v.Rating
			st.UserRating = &own
		}
	}
	if st.TotalRatings > 0 {
		avg := float64(sum) / float64(st.TotalRatings)
		st.AverageRating = math.Round(avg*100) / 100
	}
	return st
}

func (r *Repository) findRatingLocked(userID, itemID string) (string, bool) {
	for id, v := range r.ratings {
		if v.UserID == userID && v.ItemID == itemID {
			return id, true
		}
	}
	return "", false
}

func (r *Repository) filterRatingsLocked(keep func(domain.UserRating) bool) []domain.UserRating {
	out := make([]domain.UserRating, 0)
	for _, v := range r.ratings {
		if keep(v) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
