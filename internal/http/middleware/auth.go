package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/media-ratings-backend/internal/host"
)

const (
	userIDKey    = "userID"
	userNameKey  = "userName"
	avatarURLKey = "avatarURL"

	// TokenHeader is the host's native token header, accepted alongside
	// Authorization: Bearer.
	TokenHeader = "X-MediaBrowser-Token"
)

// Authenticate resolves the caller's token through id and stores the user in
// the context. A missing token and a bad token are both 401 but carry
// different codes; an identity backend failure is 503.
func Authenticate(id host.Identity) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		uid, err := id.ResolveToken(ctx, TokenFrom(c.Request))
		if err == nil {
			var u host.User
			u, err = id.LookupUser(ctx, uid)
			if err == nil {
				c.Set(userIDKey, u.ID)
				c.Set(userNameKey, u.Name)
				c.Set(avatarURLKey, u.AvatarURL)
				c.Next()
				return
			}
		}

		status, code, msg := http.StatusServiceUnavailable, "identity_unavailable", "identity service unavailable"
		switch {
		case errors.Is(err, host.ErrNoCredentials):
			status, code, msg = http.StatusUnauthorized, "unauthorized", "missing credentials"
		case errors.Is(err, host.ErrUnknownToken), errors.Is(err, host.ErrUnknownUser):
			status, code, msg = http.StatusUnauthorized, "invalid_token", "token not recognized"
		default:
			LoggerFrom(c).Warn().Err(err).Msg("identity lookup failed")
		}
		c.AbortWithStatusJSON(status, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       code,
			"message":    msg,
		})
	}
}

// TokenFrom extracts a bearer token from Authorization (Bearer or the host's
// MediaBrowser scheme) or from X-MediaBrowser-Token.
func TokenFrom(r *http.Request) string {
	if t := strings.TrimSpace(r.Header.Get(TokenHeader)); t != "" {
		return t
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, rest, ok := strings.Cut(auth, " ")
	if !ok {
		return ""
	}
	switch strings.ToLower(scheme) {
	case "bearer":
		return strings.TrimSpace(rest)
	case "mediabrowser", "emby":
		return mediaBrowserToken(rest)
	}
	return ""
}

// mediaBrowserToken reads Token="..." out of a MediaBrowser auth header.
func mediaBrowserToken(params string) string {
	for _, p := range strings.Split(params, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if ok && strings.EqualFold(k, "token") {
			return strings.Trim(v, `"`)
		}
	}
	return ""
}

// UserID returns the authenticated user, or "".
func UserID(c *gin.Context) string { return c.GetString(userIDKey) }

// UserName returns the authenticated user's display name.
func UserName(c *gin.Context) string { return c.GetString(userNameKey) }

// AvatarURL returns the authenticated user's avatar, if the host has one.
func AvatarURL(c *gin.Context) string { return c.GetString(avatarURLKey) }

// Feature answers 403 feature_disabled for every route behind it when the
// named area is switched off in configuration.
func Feature(name string, enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if enabled {
			c.Next()
			return
		}
		featureRejections.WithLabelValues(name).Inc()
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "feature_disabled",
			"message":    name + " is disabled",
		})
	}
}
