package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/media-ratings-backend/internal/http/middleware"
	"github.com/tbourn/media-ratings-backend/internal/services"
)

// ErrorResponse is the error envelope of every endpoint.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"resource not found"`
	// Ban is set when an active ban caused the rejection.
	Ban *BanDetails `json:"ban,omitempty"`
	// Quota is set when an exhausted quota window caused the rejection.
	Quota *QuotaDetails `json:"quota,omitempty"`
}

// BanDetails describes the ban behind a "banned" rejection.
type BanDetails struct {
	Type      string     `json:"type" example:"chat"`
	Reason    string     `json:"reason,omitempty" example:"spam"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Permanent bool       `json:"permanent"`
}

// QuotaDetails describes the window behind a "quota_exceeded" rejection.
type QuotaDetails struct {
	Window  string    `json:"window" example:"daily"`
	Limit   int       `json:"limit" example:"3"`
	Used    int       `json:"used" example:"3"`
	ResetAt time.Time `json:"reset_at"`
}

// fail aborts with the error envelope. 5xx responses are logged.
func fail(c *gin.Context, status int, code, msg string) {
	abort(c, status, ErrorResponse{Code: code, Message: msg})
}

func abort(c *gin.Context, status int, resp ErrorResponse) {
	resp.RequestID = c.Writer.Header().Get("X-Request-ID")
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", resp.Code).
			Str("message", resp.Message).
			Msg("api error")
	} else if status != http.StatusNotFound && status != http.StatusBadRequest {
		middleware.CountRejection(resp.Code)
	}
	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail for the router's fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failErr translates a service error into a response. Unknown errors become
// a generic 500; their text stays in the logs.
func failErr(c *gin.Context, err error) {
	var (
		banErr   *services.BanError
		quotaErr *services.QuotaError
	)
	switch {
	case errors.As(err, &banErr):
		abort(c, http.StatusForbidden, ErrorResponse{
			Code:    ErrCodeBanned,
			Message: banErr.Error(),
			Ban: &BanDetails{
				Type:      banErr.BanType,
				Reason:    banErr.Reason,
				ExpiresAt: banErr.ExpiresAt,
				Permanent: banErr.Permanent,
			},
		})
	case errors.As(err, &quotaErr):
		abort(c, http.StatusForbidden, ErrorResponse{
			Code:    ErrCodeQuotaExceeded,
			Message: quotaErr.Error(),
			Quota: &QuotaDetails{
				Window:  quotaErr.Window,
				Limit:   quotaErr.Limit,
				Used:    quotaErr.Used,
				ResetAt: quotaErr.ResetAt,
			},
		})
	case errors.Is(err, services.ErrNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrForbidden):
		fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
	case errors.Is(err, services.ErrCannotBanAdmin):
		fail(c, http.StatusForbidden, ErrCodeCannotBanAdmin, err.Error())
	case errors.Is(err, services.ErrDurationNotAllowed):
		fail(c, http.StatusForbidden, ErrCodeDurationNotAllowed, err.Error())
	case errors.Is(err, services.ErrRateLimited):
		c.Header("Retry-After", "60")
		fail(c, http.StatusTooManyRequests, ErrCodeRateLimited, err.Error())
	case errors.Is(err, services.ErrDailyLimitReached):
		fail(c, http.StatusTooManyRequests, ErrCodeDailyLimitReached, err.Error())
	case errors.Is(err, services.ErrRequestLimitReached):
		fail(c, http.StatusTooManyRequests, ErrCodeRequestLimitReached, err.Error())
	case errors.Is(err, services.ErrPendingDeletionExists):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, services.ErrFeatureUnavailable):
		fail(c, http.StatusServiceUnavailable, ErrCodeFeatureUnavailable, err.Error())
	case errors.Is(err, services.ErrEmptyMessage),
		errors.Is(err, services.ErrMessageTooLong),
		errors.Is(err, services.ErrDisallowedGIF),
		errors.Is(err, services.ErrRatingOutOfRange),
		errors.Is(err, services.ErrInvalidBanType),
		errors.Is(err, services.ErrInvalidStatus),
		errors.Is(err, services.ErrEmptyTitle):
		fail(c, http.StatusBadRequest, ErrCodeValidation, err.Error())
	default:
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal error")
	}
}

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
