// Package services defines the business logic for ratings, chat, moderation,
// media requests, playback gating, notifications and backups. This file
// centralizes the service-level error values so that they are returned
// consistently by service methods and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/tbourn/media-ratings-backend/internal/domain"
)

// Generic errors.
var (
	// ErrNotFound indicates that the referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the caller lacks the privilege level the
	// operation requires.
	ErrForbidden = errors.New("forbidden")
)

// Rating errors.
var (
	// ErrRatingOutOfRange is returned when a rating falls outside the
	// configured [min, max] bounds.
	ErrRatingOutOfRange = errors.New("rating out of range")
)

// Chat errors.
var (
	// ErrEmptyMessage is returned for a message with neither text nor GIF.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrMessageTooLong is returned when a message exceeds the configured
	// maximum length.
	ErrMessageTooLong = errors.New("message too long")

	// ErrDisallowedGIF is returned when a GIF URL is not https or its host is
	// not on the allowlist.
	ErrDisallowedGIF = errors.New("gif url not allowed")

	// ErrRateLimited is returned when the sender exhausted the per-minute
	// message budget.
	ErrRateLimited = errors.New("rate limited")

	// ErrChatBanned is returned when the sender has an active chat or snooze
	// ban. It is wrapped by *BanError.
	ErrChatBanned = errors.New("banned from chat")
)

// Moderation errors.
var (
	// ErrCannotBanAdmin is returned when the ban target is an administrator.
	ErrCannotBanAdmin = errors.New("administrators cannot be banned")

	// ErrInvalidBanType is returned for a ban type other than chat, snooze
	// or media.
	ErrInvalidBanType = errors.New("invalid ban type")

	// ErrDurationNotAllowed is returned when a moderator asks for a ban
	// longer than their level permits.
	ErrDurationNotAllowed = errors.New("ban duration not allowed for moderator level")

	// ErrDailyLimitReached is returned when a moderator used up the daily
	// message-deletion allowance.
	ErrDailyLimitReached = errors.New("daily moderation limit reached")
)

// Request and playback errors.
var (
	// ErrRequestBanned is returned when the user may not file media
	// requests. It is wrapped by *BanError.
	ErrRequestBanned = errors.New("banned from media requests")

	// ErrRequestLimitReached is returned when the monthly request limit is
	// used up.
	ErrRequestLimitReached = errors.New("monthly request limit reached")

	// ErrPendingDeletionExists is returned when a deletion request for the
	// same media request is still pending.
	ErrPendingDeletionExists = errors.New("a deletion request is already pending")

	// ErrInvalidStatus is returned for an unknown request or deletion status.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrEmptyTitle is returned when a media request has a blank title.
	ErrEmptyTitle = errors.New("title is required")

	// ErrMediaBanned is returned by the playback gate for an active media
	// ban. It is wrapped by *BanError.
	ErrMediaBanned = errors.New("banned from playback")

	// ErrQuotaExceeded is returned by the playback gate when a quota window
	// is used up. It is wrapped by *QuotaError.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrFeatureUnavailable is returned when an operation needs a host
	// collaborator that is not configured.
	ErrFeatureUnavailable = errors.New("feature unavailable")
)

// BanError carries the ban behind a rejection. It unwraps to Kind so callers
// can match with errors.Is.
type BanError struct {
	Kind      error
	BanType   string
	Reason    string
	ExpiresAt *time.Time
	Permanent bool
}

func (e *BanError) Error() string {
	switch {
	case e.Permanent:
		return fmt.Sprintf("%v (permanent)", e.Kind)
	case e.ExpiresAt != nil:
		return fmt.Sprintf("%v until %s", e.Kind, e.ExpiresAt.UTC().Format(time.RFC3339))
	default:
		return e.Kind.Error()
	}
}

func (e *BanError) Unwrap() error { return e.Kind }

func chatBanError(kind error, b domain.ChatBan) *BanError {
	return &BanError{Kind: kind, BanType: string(b.BanType), Reason: b.Reason, ExpiresAt: b.ExpiresAt, Permanent: b.IsPermanent}
}

func userBanError(b domain.UserBan) *BanError {
	return &BanError{Kind: ErrRequestBanned, BanType: string(b.BanType), Reason: b.Reason, ExpiresAt: b.ExpiresAt, Permanent: b.ExpiresAt == nil}
}

// QuotaError names the exhausted window and when it resets.
type QuotaError struct {
	Window  string
	Limit   int
	Used    int
	ResetAt time.Time
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s quota exceeded (%d/%d), resets %s", e.Window, e.Used, e.Limit, e.ResetAt.UTC().Format(time.RFC3339))
}

func (e *QuotaError) Unwrap() error { return ErrQuotaExceeded }

func quotaError(q domain.MediaQuota) *QuotaError {
	e := &QuotaError{Window: q.ExceededWindow()}
	switch e.Window {
	case "daily":
		e.Limit, e.Used, e.ResetAt = q.DailyLimit, q.DailyUsed, q.DailyResetAt
	case "weekly":
		e.Limit, e.Used, e.ResetAt = q.WeeklyLimit, q.WeeklyUsed, q.WeeklyResetAt
	case "monthly":
		e.Limit, e.Used, e.ResetAt = q.MonthlyLimit, q.MonthlyUsed, q.MonthlyResetAt
	}
	return e
}
