// Package domain defines the entities owned by the repository: ratings, media
// and deletion requests, chat and direct messages, bans, moderators, quotas and
// notifications. Entities are plain structs serialized to JSON on disk; the time
// dependent rules (ban activity, quota rollover, typing expiry) are pure
// functions of an explicit "now" so callers and tests control the clock.
package domain

import "time"

// UserRating is one user's score for one library item. There is at most one
// rating per (UserID, ItemID) pair.
type UserRating struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ItemID    string    `json:"item_id"`
	Rating    int       `json:"rating"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RatingBuckets is the number of histogram buckets in RatingStats (ratings 1..10).
const RatingBuckets = 10

// RatingStats aggregates all ratings of one item.
//
// Distribution[i] counts ratings equal to i+1. UserRating is set only when the
// stats were requested on behalf of a user who rated the item.
type RatingStats struct {
	ItemID        string             `json:"item_id"`
	AverageRating float64            `json:"average_rating"`
	TotalRatings  int                `json:"total_ratings"`
	Distribution  [RatingBuckets]int `json:"distribution"`
	UserRating    *int               `json:"user_rating,omitempty"`
}
