package domain

import "time"

// NewMediaNotification announces a top-level item (movie or series) added to
// the library. IsTest marks notifications produced by the admin test action.
type NewMediaNotification struct {
	ID        string    `json:"id"`
	ItemID    string    `json:"item_id"`
	Title     string    `json:"title"`
	MediaType string    `json:"media_type"`
	Year      int       `json:"year,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	IsTest    bool      `json:"is_test"`
}
