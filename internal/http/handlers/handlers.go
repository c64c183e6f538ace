package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/tbourn/media-ratings-backend/internal/http/middleware"
	"github.com/tbourn/media-ratings-backend/internal/services"
	"github.com/tbourn/media-ratings-backend/internal/utils"
)

// Services bundles the application services the handlers call.
type Services struct {
	Ratings       *services.RatingService
	Chat          *services.ChatService
	Moderation    *services.ModerationService
	Requests      *services.RequestService
	Playback      *services.PlaybackService
	Notifications *services.NotificationService
	Backups       *services.BackupService
}

// Stats feeds the weak ETags of the list endpoints.
type Stats interface {
	ChatStats() (count, deleted int, latest *time.Time)
	MediaRequestStats() (count int, revision uint64)
}

// Handlers groups every endpoint.
type Handlers struct {
	svc   Services
	stats Stats
}

// New constructs Handlers. stats may be nil, which disables ETags.
func New(svc Services, stats Stats) *Handlers {
	return &Handlers{svc: svc, stats: stats}
}

var validate = validator.New()

// bind decodes the JSON body into dst and runs its validate tags.
func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeValidation, validationMessage(err))
		return false
	}
	return true
}

// validationMessage names the first failing field and rule.
func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		fe := ve[0]
		if fe.Param() != "" {
			return fmt.Sprintf("%s: must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param())
		}
		return fmt.Sprintf("%s: must satisfy %s", fe.Field(), fe.Tag())
	}
	return err.Error()
}

// entityID reads a UUID path parameter.
func entityID(c *gin.Context, name string) (string, bool) {
	id := c.Param(name)
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, name+" must be a UUID")
		return "", false
	}
	return id, true
}

// pathParam reads a required opaque path parameter (host item or user IDs).
func pathParam(c *gin.Context, name string) (string, bool) {
	v := strings.TrimSpace(c.Param(name))
	if v == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, name+" is required")
		return "", false
	}
	return v, true
}

// sinceParam parses an optional RFC 3339 "since" query parameter.
func sinceParam(c *gin.Context) (*time.Time, bool) {
	raw := c.Query("since")
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "since must be RFC 3339")
		return nil, false
	}
	t = t.UTC()
	return &t, true
}

// limitParam bounds the "limit" query parameter to [1, max].
func limitParam(c *gin.Context, def, max int) int {
	n := utils.AtoiDefault(c.Query("limit"), def)
	return utils.Clamp(n, 1, max)
}

// notModified sets a weak ETag and reports whether the client already has it.
func notModified(c *gin.Context, etag string) bool {
	c.Header("ETag", etag)
	c.Header("Cache-Control", "private, no-cache")
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}

func unixOrZero(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixNano()
}

func caller(c *gin.Context) string { return middleware.UserID(c) }
