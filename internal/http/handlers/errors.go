// Package handlers maps HTTP requests onto the services. Handlers stay thin:
// bind and validate input, call one service method, and translate the result
// or error into a response.
//
// Error responses share one envelope (see ErrorResponse) with a stable
// machine-readable code from the list below. Ban and quota rejections also
// carry the ban or quota that caused them.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeValidation       = "validation_failed"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeBanned              = "banned"
	ErrCodeQuotaExceeded       = "quota_exceeded"
	ErrCodeCannotBanAdmin      = "cannot_ban_admin"
	ErrCodeDurationNotAllowed  = "duration_not_allowed"
	ErrCodeDailyLimitReached   = "daily_limit_reached"
	ErrCodeRequestLimitReached = "request_limit_reached"
	ErrCodeFeatureUnavailable  = "feature_unavailable"
)
