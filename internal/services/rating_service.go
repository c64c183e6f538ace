// Package services – RatingService
//
// RatingService enforces the configured rating bounds and delegates to the
// rating ledger in the repository. The ledger itself accepts any integer.
package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/media-ratings-backend/internal/domain"
)

// RatingStore is the ledger contract RatingService needs.
type RatingStore interface {
	SetRating(userID, itemID string, value int) domain.UserRating
	GetUserRating(userID, itemID string) (domain.UserRating, bool)
	GetItemRatings(itemID string) []domain.UserRating
	GetUserRatings(userID string) []domain.UserRating
	DeleteRating(userID, itemID string) bool
	GetStats(itemID, userID string) domain.RatingStats
}

// RatingService validates and records item ratings.
type RatingService struct {
	Store RatingStore
	Min   int
	Max   int
}

// NewRatingService returns a service accepting ratings in [min, max].
func NewRatingService(s RatingStore, min, max int) *RatingService {
	return &RatingService{Store: s, Min: min, Max: max}
}

// Rate upserts userID's rating of itemID.
func (s *RatingService) Rate(ctx context.Context, userID, itemID string, value int) (domain.UserRating, error) {
	_, span := otel.Tracer("services/RatingService").Start(ctx, "Rate",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("item.id", itemID),
			attribute.Int("rating", value),
		),
	)
	defer span.End()

	if value < s.Min || value > s.Max {
		return domain.UserRating{}, ErrRatingOutOfRange
	}
	return s.Store.SetRating(userID, itemID, value), nil
}

// Get returns userID's rating of itemID.
func (s *RatingService) Get(ctx context.Context, userID, itemID string) (domain.UserRating, error) {
	r, ok := s.Store.GetUserRating(userID, itemID)
	if !ok {
		return domain.UserRating{}, ErrNotFound
	}
	return r, nil
}

// Delete removes userID's rating of itemID and reports whether one existed.
func (s *RatingService) Delete(ctx context.Context, userID, itemID string) bool {
	_, span := otel.Tracer("services/RatingService").Start(ctx, "Delete",
		trace.WithAttributes(attribute.String("user.id", userID), attribute.String("item.id", itemID)))
	defer span.End()
	return s.Store.DeleteRating(userID, itemID)
}

// Stats aggregates the ratings of itemID; userID, when set, attaches the
// caller's own rating.
func (s *RatingService) Stats(ctx context.Context, itemID, userID string) domain.RatingStats {
	return s.Store.GetStats(itemID, userID)
}

// ItemRatings lists every rating of itemID.
func (s *RatingService) ItemRatings(ctx context.Context, itemID string) []domain.UserRating {
	return s.Store.GetItemRatings(itemID)
}

// UserRatings lists every rating userID has given.
func (s *RatingService) UserRatings(ctx context.Context, userID string) []domain.UserRating {
	return s.Store.GetUserRatings(userID)
}
