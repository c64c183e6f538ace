package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/tbourn/media-ratings-backend/internal/archive"
	"github.com/tbourn/media-ratings-backend/internal/auth"
	"github.com/tbourn/media-ratings-backend/internal/config"
	"github.com/tbourn/media-ratings-backend/internal/host"
	"github.com/tbourn/media-ratings-backend/internal/hostapi"
	httpapi "github.com/tbourn/media-ratings-backend/internal/http"
	"github.com/tbourn/media-ratings-backend/internal/http/handlers"
	"github.com/tbourn/media-ratings-backend/internal/observability"
	"github.com/tbourn/media-ratings-backend/internal/repo"
	"github.com/tbourn/media-ratings-backend/internal/services"
	"github.com/tbourn/media-ratings-backend/internal/sweeper"
	"github.com/tbourn/media-ratings-backend/internal/sysutil"
)

// errNoIdentity is returned when neither a JWT secret nor a host URL is set.
var errNoIdentity = errors.New("no identity source: set JWT_SECRET or HOST_URL")

func newApp() *cli.App {
	return &cli.App{
		Name:    "ratingsd",
		Usage:   "media server companion: ratings, chat, requests and playback gating",
		Version: sysutil.Version(version),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env-file",
				Usage:   "dotenv file loaded before configuration; missing files are ignored",
				Value:   ".env",
				EnvVars: []string{"ENV_FILE"},
			},
		},
		Before: func(cctx *cli.Context) error {
			return loadEnv(cctx.String("env-file"))
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API and the background sweeper",
				Action: runServe,
			},
			{
				Name:   "sweep",
				Usage:  "run one maintenance cycle and print what it did",
				Action: runSweep,
			},
			{
				Name:  "backup",
				Usage: "archive every collection file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "label", Aliases: []string{"l"}, Usage: "free-form backup label"},
				},
				Action: runBackup,
			},
			{
				Name:   "backups",
				Usage:  "list archived backups",
				Action: runListBackups,
			},
			{
				Name:      "restore",
				Usage:     "restore the collection files from a backup",
				ArgsUsage: "<backup-id>",
				Action:    runRestore,
			},
		},
		DefaultCommand: "serve",
	}
}

// loadEnv reads a dotenv file without overriding variables already set.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("env file %s: %w", path, err)
	}
	return nil
}

// runtime holds everything a command needs, opened from one Config.
type runtime struct {
	cfg   config.Config
	repo  *repo.Repository
	db    *gorm.DB
	host  *hostapi.Client
	ident host.Identity
	svc   handlers.Services
	otel  observability.Shutdown
}

func bootstrap(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty, nil)

	rt := &runtime{cfg: cfg}
	rt.otel, err = observability.SetupOTel(ctx, cfg.OTEL, sysutil.Version(version))
	if err != nil {
		return nil, err
	}
	if rt.repo, err = repo.Open(cfg.DataDir); err != nil {
		rt.close(ctx)
		return nil, err
	}
	if rt.db, err = archive.OpenSQLite(cfg.ArchiveDBPath); err != nil {
		rt.close(ctx)
		return nil, fmt.Errorf("archive: %w", err)
	}
	if err := archive.AutoMigrate(rt.db); err != nil {
		rt.close(ctx)
		return nil, fmt.Errorf("archive migrate: %w", err)
	}
	if cfg.Host.URL != "" {
		rt.host = hostapi.New(hostapi.Options{
			BaseURL:  cfg.Host.URL,
			APIKey:   cfg.Host.APIKey,
			Timeout:  cfg.Host.Timeout,
			RetryMax: cfg.Host.RetryMax,
		})
	}
	if rt.ident, err = identity(cfg.Auth, rt.host); err != nil {
		rt.close(ctx)
		return nil, err
	}
	rt.svc = buildServices(cfg, rt.repo, rt.db, rt.host)
	return rt, nil
}

// identity picks the token resolver: a shared JWT secret when configured,
// otherwise the host's own access tokens. User lookups go to the host when
// one is configured.
func identity(cfg config.AuthConfig, hc *hostapi.Client) (host.Identity, error) {
	var chain auth.Chain
	switch {
	case cfg.JWTSecret != "":
		chain.Tokens = auth.NewJWT(cfg.JWTSecret, cfg.JWTIssuer)
	case hc != nil:
		chain.Tokens = hc
	default:
		return nil, errNoIdentity
	}
	if hc != nil {
		chain.Users = hc
	}
	return auth.NewCached(chain, cfg.IdentityCacheMax, cfg.IdentityCacheTTL), nil
}

func buildServices(cfg config.Config, r *repo.Repository, db *gorm.DB, hc *hostapi.Client) handlers.Services {
	var (
		lib    host.Library
		sess   host.Sessions
		events host.LibraryEvents
	)
	if hc != nil {
		lib, sess = hc, hc
		if cfg.Host.EventsEnabled {
			events = hc
		}
	}
	return handlers.Services{
		Ratings: services.NewRatingService(r, cfg.MinRating, cfg.MaxRating),
		Chat: services.NewChatService(r, services.ChatOptions{
			RateLimitPerMinute: cfg.Chat.RateLimitPerMinute,
			MaxMessageLength:   cfg.Chat.MaxMessageLength,
			AllowedGIFDomains:  cfg.Chat.AllowedGIFDomains,
			OnlineWindow:       cfg.Chat.OnlineWindow,
		}),
		Moderation:    services.NewModerationService(r, cfg.Chat.ModeratorDailyDeleteLimit),
		Requests:      services.NewRequestService(r, lib, cfg.Requests.MaxPerMonth),
		Playback:      services.NewPlaybackService(r),
		Notifications: services.NewNotificationService(r, lib, sess, events),
		Backups:       services.NewBackupService(r, db),
	}
}

func (rt *runtime) sweeper(extra ...sweeper.Option) *sweeper.Sweeper {
	opts := []sweeper.Option{
		sweeper.WithPruner(rt.svc.Chat),
		sweeper.WithArchive(rt.db),
	}
	if rt.host != nil {
		opts = append(opts, sweeper.WithLibrary(rt.host))
	}
	return sweeper.New(rt.repo, sweeper.Options{
		Interval:            rt.cfg.Sweep.Interval,
		InitialDelay:        rt.cfg.Sweep.InitialDelay,
		ScheduledDeletions:  rt.cfg.Features.ScheduledDeletions,
		RejectedCleanupDays: rt.cfg.Requests.RejectedCleanupDays,
		ChatRetentionDays:   rt.cfg.Chat.MessageRetentionDays,
	}, append(opts, extra...)...)
}

// close flushes the repository and releases the archive and tracer.
func (rt *runtime) close(ctx context.Context) {
	if rt.repo != nil {
		if err := rt.repo.Close(); err != nil {
			log.Error().Err(err).Msg("repository close failed")
		}
	}
	if rt.db != nil {
		if sqlDB, err := rt.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if rt.otel != nil {
		if err := rt.otel(ctx); err != nil {
			log.Error().Err(err).Msg("otel shutdown failed")
		}
	}
}

func runServe(cctx *cli.Context) error {
	ctx, stop := signal.NotifyContext(cctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	cfg := rt.cfg

	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	limiter := httpapi.RegisterRoutes(engine, httpapi.Deps{
		Config:   cfg,
		Services: rt.svc,
		Stats:    rt.repo,
		Identity: rt.ident,
		Archive:  rt.db,
	})

	sw := rt.sweeper(sweeper.WithPruner(limiter))
	sw.Start()

	if cfg.Features.Notifications && rt.host != nil && cfg.Host.EventsEnabled {
		go rt.svc.Notifications.Run(ctx)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", sysutil.Version(version)).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		log.Error().Err(serr).Msg("http server shutdown failed")
	}
	sw.Shutdown()
	rt.svc.Notifications.Wait()
	rt.close(shutdownCtx)
	return err
}

func runSweep(cctx *cli.Context) error {
	rt, err := bootstrap(cctx.Context)
	if err != nil {
		return err
	}
	defer rt.close(context.Background())
	res := rt.sweeper().RunOnce(cctx.Context)
	return printJSON(cctx.App.Writer, res)
}

func runBackup(cctx *cli.Context) error {
	rt, err := bootstrap(cctx.Context)
	if err != nil {
		return err
	}
	defer rt.close(context.Background())
	b, err := rt.svc.Backups.Create(cctx.Context, "", cctx.String("label"))
	if err != nil {
		return err
	}
	return printJSON(cctx.App.Writer, b)
}

func runListBackups(cctx *cli.Context) error {
	rt, err := bootstrap(cctx.Context)
	if err != nil {
		return err
	}
	defer rt.close(context.Background())
	list, err := rt.svc.Backups.List(cctx.Context, "")
	if err != nil {
		return err
	}
	return printJSON(cctx.App.Writer, list)
}

func runRestore(cctx *cli.Context) error {
	id := cctx.Args().First()
	if id == "" {
		return cli.Exit("restore needs a backup id", 2)
	}
	rt, err := bootstrap(cctx.Context)
	if err != nil {
		return err
	}
	defer rt.close(context.Background())
	files, err := rt.svc.Backups.Restore(cctx.Context, "", id)
	if err != nil {
		return err
	}
	return printJSON(cctx.App.Writer, map[string]any{"backup_id": id, "files": files})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
