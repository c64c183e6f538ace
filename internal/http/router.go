// Package httpapi wires the HTTP transport (Gin) to the application services,
// middleware and route handlers. It owns the cross-cutting concerns: tracing,
// correlation IDs, access logging, panic recovery, metrics, CORS, security
// headers, compression, authentication, idempotency, rate limiting and
// feature gates.
//
// @title                      Media Ratings API
// @version                    1.0
// @description                Ratings, chat, media requests and moderation for a media server.
// @BasePath                   /api/v1
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/media-ratings-backend/internal/archive"
	"github.com/tbourn/media-ratings-backend/internal/config"
	"github.com/tbourn/media-ratings-backend/internal/domain"
	"github.com/tbourn/media-ratings-backend/internal/host"
	_ "github.com/tbourn/media-ratings-backend/internal/http/docs"
	"github.com/tbourn/media-ratings-backend/internal/http/handlers"
	"github.com/tbourn/media-ratings-backend/internal/http/middleware"
)

// Deps are the collaborators RegisterRoutes mounts.
type Deps struct {
	Config   config.Config
	Services handlers.Services
	// Stats feeds the list ETags; nil disables them.
	Stats handlers.Stats
	// Identity resolves bearer tokens to users.
	Identity host.Identity
	// Archive stores idempotency records; nil disables replay.
	Archive *gorm.DB
}

// idempotentRoutes maps "METHOD fullpath" (relative to the API base) to the
// scope its keys are recorded under.
var idempotentRoutes = map[string]string{
	"POST /requests":          "media_request",
	"POST /deletion-requests": "deletion_request",
}

// RegisterRoutes attaches all middleware and endpoints to r and returns the
// edge rate limiter so the sweeper can prune its idle visitors.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. AccessLog: structured logs with header and query scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. CORS, security headers, gzip
//
// and inside the API group:
//  8. Authenticate (token -> user)
//  9. Idempotency (before the rate limiter so replays bypass it)
//  10. Rate limiter (per user/IP)
//  11. Feature gates per area
func RegisterRoutes(r *gin.Engine, d Deps) *middleware.RateLimiter {
	cfg := d.Config
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog(middleware.AccessLogOptions{
		MaskHeaders: []string{"X-Api-Key"},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(1 << 20))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(corsMiddleware(cfg.CORS)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS: cfg.Security.EnableHSTS,
		HSTSMaxAge: cfg.Security.HSTSMaxAge,
	}))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())

	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(middleware.Authenticate(d.Identity))
	api.Use(middleware.Idempotency(idempotencyOptions(api.BasePath(), d.Archive, cfg.IdempotencyTTL)))
	api.Use(rl.Handler())

	h := handlers.New(d.Services, d.Stats)
	f := cfg.Features

	ratings := api.Group("", middleware.Feature("ratings", f.Ratings))
	{
		ratings.PUT("/ratings/:itemId", h.Rate)
		ratings.GET("/ratings/:itemId", h.RatingStats)
		ratings.DELETE("/ratings/:itemId", h.DeleteRating)
		ratings.GET("/ratings/:itemId/all", h.ItemRatings)
		ratings.GET("/me/ratings", h.MyRatings)
	}

	chat := api.Group("", middleware.Feature("chat", f.Chat))
	{
		chat.POST("/chat/messages", h.SendMessage)
		chat.GET("/chat/messages", h.RecentMessages)
		chat.DELETE("/chat/messages/:id", h.DeleteChatMessage)
		chat.DELETE("/chat/messages", h.ClearChat)
		chat.POST("/chat/heartbeat", h.Heartbeat)
		chat.PUT("/chat/typing", h.SetTyping)
		chat.GET("/chat/typing", h.Typing)
		chat.GET("/chat/online", h.Online)
		chat.POST("/chat/seen", h.MarkSeen)
		chat.GET("/chat/unread", h.Unread)
		chat.GET("/chat/ban", h.MyBan)
		chat.GET("/chat/styles", h.Styles)

		chat.POST("/dm", h.SendPrivate)
		chat.GET("/dm", h.Conversations)
		chat.GET("/dm/:userId", h.Conversation)
		chat.POST("/dm/:userId/read", h.MarkConversationRead)
		chat.DELETE("/dm/messages/:id", h.DeletePrivate)

		chat.POST("/moderation/bans", h.Ban)
		chat.GET("/moderation/bans", h.ListBans)
		chat.DELETE("/moderation/bans/:id", h.Unban)
		chat.PUT("/moderation/moderators/:userId", h.AddModerator)
		chat.DELETE("/moderation/moderators/:userId", h.RemoveModerator)
		chat.GET("/moderation/moderators", h.ListModerators)
		chat.PUT("/moderation/styles/:userId", h.SetStyle)
		chat.DELETE("/moderation/styles/:userId", h.RemoveStyle)
		chat.GET("/moderation/actions", h.ModeratorActions)
	}

	// Role, quotas and media-ban reporting serve both chat and playback.
	api.GET("/moderation/me", h.ModerationRole)
	api.PUT("/moderation/quotas/:userId", h.SetQuota)
	api.DELETE("/moderation/quotas/:userId", h.RemoveQuota)
	api.GET("/moderation/quotas", h.ListQuotas)
	api.GET("/moderation/media-ban-days", h.MediaBanDays)

	// The playback gate always answers; the host consults it before playback.
	api.GET("/playback/status", h.PlaybackStatus)
	api.POST("/playback/authorize", h.AuthorizePlayback)
	api.POST("/playback/start", h.StartPlayback)

	media := api.Group("", middleware.Feature("media_management", f.MediaManagement))
	{
		media.POST("/requests", h.CreateRequest)
		media.GET("/requests", h.ListRequests)
		media.GET("/requests/similar", h.SimilarRequests)
		media.GET("/requests/mine", h.MyRequests)
		media.GET("/requests/:id", h.GetRequest)
		media.DELETE("/requests/:id", h.DeleteRequest)
		media.PATCH("/requests/:id/status", h.UpdateRequestStatus)
		media.POST("/requests/:id/snooze", h.SnoozeRequest)
		media.POST("/requests/:id/unsnooze", h.UnsnoozeRequest)

		media.POST("/deletion-requests", h.CreateDeletionRequest)
		media.GET("/deletion-requests", h.ListDeletionRequests)
		media.GET("/deletion-requests/mine", h.MyDeletionRequests)
		media.POST("/deletion-requests/:id/resolve", h.ResolveDeletionRequest)

		media.POST("/request-bans", h.BanRequester)
		media.GET("/request-bans", h.ListRequestBans)
		media.DELETE("/request-bans/:id", h.LiftRequestBan)

		media.PUT("/scheduled-deletions/:itemId", h.ScheduleDeletion)
		media.DELETE("/scheduled-deletions/:itemId", h.CancelScheduledDeletion)
		media.GET("/scheduled-deletions", h.ListScheduledDeletions)
	}

	notifications := api.Group("", middleware.Feature("notifications", f.Notifications))
	{
		notifications.GET("/notifications", h.Notifications)
		notifications.POST("/notifications/test", h.TestNotification)
	}

	api.POST("/backups", h.CreateBackup)
	api.GET("/backups", h.ListBackups)
	api.DELETE("/backups/:id", h.DeleteBackup)
	api.POST("/backups/:id/restore", h.RestoreBackup)

	return rl
}

// idempotencyOptions binds the idempotency middleware to the archive. Routes
// are keyed by their full path, so the API base is prefixed here.
func idempotencyOptions(base string, db *gorm.DB, ttl time.Duration) middleware.IdempotencyOptions {
	routes := make(map[string]string, len(idempotentRoutes))
	for k, scope := range idempotentRoutes {
		method, p, _ := strings.Cut(k, " ")
		routes[method+" "+path.Join(base, p)] = scope
	}
	opts := middleware.IdempotencyOptions{Routes: routes, MaxLen: 200}
	if db == nil {
		return opts
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	opts.Lookup = func(ctx context.Context, userID, scope, key string, now time.Time) (*domain.Idempotency, error) {
		return archive.GetIdempotency(ctx, db, userID, scope, key, now)
	}
	opts.Record = func(ctx context.Context, userID, scope, key, resourceID string, status int) error {
		_, err := archive.CreateIdempotency(ctx, db, userID, scope, key, resourceID, status, ttl)
		if errors.Is(err, archive.ErrDuplicate) {
			return nil
		}
		return err
	}
	return opts
}

// corsMiddleware keeps safe defaults: allow every origin when none is
// configured, otherwise echo only allowlisted origins.
func corsMiddleware(cc config.CORSConfig) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match",
			middleware.TokenHeader, middleware.HeaderIdempotencyKey,
		},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag", "Retry-After", "Idempotent-Replay", "X-Total-Pages"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	if len(cc.AllowedOrigins) == 0 {
		base.AllowAllOrigins = true
		// Force ACAO: * even for requests without an Origin header.
		return []gin.HandlerFunc{
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]struct{}, len(cc.AllowedOrigins))
	for _, o := range cc.AllowedOrigins {
		allowed[o] = struct{}{}
	}
	base.AllowOrigins = cc.AllowedOrigins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(base),
	}
}

// limitBody caps the request body at maxBytes. Reads past the cap fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
