// Package middleware contains the Gin middleware shared by every route:
// correlation IDs, access logging with credential scrubbing, panic recovery,
// authentication, feature gates, idempotency, rate limiting, metrics and
// security headers.
package middleware

import (
	"net/http"
	"regexp"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
	loggerKey       = "logger"

	maxQueryLogLength = 2048
	redacted          = "[REDACTED]"
)

// Headers whose values never reach the logs.
var sensitiveHeaders = map[string]struct{}{
	"authorization":        {},
	"cookie":               {},
	"set-cookie":           {},
	"x-mediabrowser-token": {},
	"x-emby-token":         {},
}

// Query parameters that carry credentials.
var tokenParamRE = regexp.MustCompile(`(?i)\b(api_key|token|access_token)=[^&]*`)

// RequestID reuses an incoming X-Request-ID or generates one, and echoes it
// on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// AccessLogOptions tunes AccessLog.
type AccessLogOptions struct {
	// MaskHeaders adds header names to the built-in sensitive set.
	MaskHeaders []string
	// LogHeaders includes the scrubbed request headers in each line.
	LogHeaders bool
}

// AccessLog emits one structured line per request and stores a request
// scoped logger for handlers (see LoggerFrom). Credentials in headers and
// query strings are masked. Level follows the outcome: error for 5xx or
// recorded gin errors, warn for 4xx, info otherwise.
func AccessLog(opts AccessLogOptions) gin.HandlerFunc {
	mask := make(map[string]struct{}, len(sensitiveHeaders)+len(opts.MaskHeaders))
	for k := range sensitiveHeaders {
		mask[k] = struct{}{}
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			mask[h] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()
		rid, _ := c.Get(requestIDKey)
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		l := log.With().
			Str("request_id", asString(rid)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("remote_ip", c.ClientIP()).
			Logger()
		c.Set(loggerKey, &l)

		c.Next()

		status := c.Writer.Status()
		ev := l.Info()
		switch {
		case len(c.Errors) > 0 || status >= http.StatusInternalServerError:
			ev = l.Error()
			if len(c.Errors) > 0 {
				ev = ev.Str("errors", c.Errors.String())
			}
		case status >= http.StatusBadRequest:
			ev = l.Warn()
		}
		if uid := UserID(c); uid != "" {
			ev = ev.Str("user_id", uid)
		}
		if opts.LogHeaders {
			ev = ev.Interface("headers", scrubHeaders(c.Request.Header, mask))
		}
		ev.Str("query", ScrubQuery(truncate(c.Request.URL.RawQuery, maxQueryLogLength))).
			Str("user_agent", c.Request.UserAgent()).
			Int("status", status).
			Int("bytes_out", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Msg("http_request")
	}
}

// ScrubQuery masks credential-bearing query parameters.
func ScrubQuery(q string) string {
	if q == "" {
		return q
	}
	return tokenParamRE.ReplaceAllString(q, "${1}="+redacted)
}

func scrubHeaders(h http.Header, mask map[string]struct{}) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		if _, ok := mask[strings.ToLower(k)]; ok {
			out[k] = redacted
			continue
		}
		out[k] = strings.Join(vv, ", ")
	}
	return out
}

// Recovery turns a panic into a JSON 500 carrying the request ID and logs the
// stack.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rid, _ := c.Get(requestIDKey)
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.Header(requestIDHeader, asString(rid))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": asString(rid),
				"code":       "internal_error",
				"message":    "internal server error",
			})
		}()
		c.Next()
	}
}

// LoggerFrom returns the request scoped logger, or a bare one when AccessLog
// did not run.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// truncate cuts s to max bytes. A max <= 0 disables truncation.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
