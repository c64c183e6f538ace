package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/media-ratings-backend/internal/domain"
)

// HeaderIdempotencyKey carries the client's key for an unsafe request.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey      = "idem.key"
	ctxKeyIdemReplay   = "idem.replay"
	ctxKeyIdemResource = "idem.resource"
	ctxKeyRateBypass   = "rate.bypass"
)

var defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// IdempotencyLookup returns the unexpired record for (user, scope, key) or an
// error when there is none.
type IdempotencyLookup func(ctx context.Context, userID, scope, key string, now time.Time) (*domain.Idempotency, error)

// IdempotencyRecord stores the outcome of a completed request.
type IdempotencyRecord func(ctx context.Context, userID, scope, key, resourceID string, status int) error

// IdempotencyOptions configures Idempotency.
type IdempotencyOptions struct {
	// Routes maps "METHOD /full/route" to the scope records are stored under.
	// Requests on other routes pass through untouched.
	Routes map[string]string
	// MaxLen caps the key length; <= 0 means 200.
	MaxLen  int
	Pattern *regexp.Regexp
	Lookup  IdempotencyLookup
	Record  IdempotencyRecord
	Now     func() time.Time
}

// Idempotency makes the configured create routes safe to retry. A request
// whose key matches a stored record is flagged as a replay (see Replayed) and
// bypasses the rate limiter; the handler answers with the stored resource.
// After a fresh request succeeds with a resource set via SetIdempotentResource,
// the outcome is recorded.
func Idempotency(opts IdempotencyOptions) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultKeyPattern
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return func(c *gin.Context) {
		scope, scoped := opts.Routes[c.Request.Method+" "+c.FullPath()]
		key := c.GetHeader(HeaderIdempotencyKey)
		if !scoped || key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)
		uid := UserID(c)

		if opts.Lookup != nil {
			if rec, err := opts.Lookup(c.Request.Context(), uid, scope, key, now()); err == nil && rec != nil {
				idempotentReplays.Inc()
				c.Set(ctxKeyIdemReplay, rec)
				c.Set(ctxKeyRateBypass, true)
				c.Header("Idempotent-Replay", "true")
				c.Next()
				return
			}
		}

		c.Next()

		res, ok := c.Get(ctxKeyIdemResource)
		status := c.Writer.Status()
		if !ok || opts.Record == nil || status < 200 || status > 299 {
			return
		}
		if err := opts.Record(c.Request.Context(), uid, scope, key, asString(res), status); err != nil {
			LoggerFrom(c).Warn().Err(err).Str("scope", scope).Msg("idempotency record not stored")
		}
	}
}

// GetIdempotencyKey returns the validated key, if the request carried one.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	s := c.GetString(ctxKeyIdemKey)
	return s, s != ""
}

// Replayed returns the stored record when the request repeats a completed
// one.
func Replayed(c *gin.Context) (*domain.Idempotency, bool) {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return nil, false
	}
	rec, ok := v.(*domain.Idempotency)
	return rec, ok && rec != nil
}

// SetIdempotentResource names the resource a create handler produced so the
// middleware can record it.
func SetIdempotentResource(c *gin.Context, id string) {
	c.Set(ctxKeyIdemResource, id)
}

// IsRateBypass reports whether the rate limiter should skip this request.
func IsRateBypass(c *gin.Context) bool {
	return c.GetBool(ctxKeyRateBypass)
}
