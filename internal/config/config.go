// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, storage paths, feature toggles, chat and request limits, the
// sweeper schedule, host integration and observability settings.
//
// The resulting Config is read-only: nothing in the service writes it back.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "media-ratings-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// FeatureConfig toggles whole areas of the API. A disabled area answers 403
// before any core logic runs.
type FeatureConfig struct {
	Ratings            bool // ENABLE_RATINGS
	Chat               bool // ENABLE_CHAT
	MediaManagement    bool // ENABLE_MEDIA_MANAGEMENT
	Notifications      bool // ENABLE_NOTIFICATIONS
	ScheduledDeletions bool // ENABLE_SCHEDULED_DELETIONS
}

// ChatConfig bounds chat traffic and moderation.
type ChatConfig struct {
	RateLimitPerMinute        int           // CHAT_RATE_LIMIT_PER_MINUTE, 0 disables
	MaxMessageLength          int           // MAX_MESSAGE_LENGTH in runes
	AllowedGIFDomains         []string      // ALLOWED_GIF_DOMAINS
	ModeratorDailyDeleteLimit int           // MODERATOR_DAILY_DELETE_LIMIT, 0 uncapped
	MessageRetentionDays      int           // CHAT_MESSAGE_RETENTION_DAYS, 0 keeps forever
	OnlineWindow              time.Duration // ONLINE_WINDOW
}

// RequestConfig bounds media requests.
type RequestConfig struct {
	MaxPerMonth         int // MAX_REQUESTS_PER_MONTH, 0 unlimited
	RejectedCleanupDays int // REJECTED_CLEANUP_DAYS, 0 disables
}

// SweepConfig schedules the background sweeper.
type SweepConfig struct {
	Interval     time.Duration // SWEEP_INTERVAL
	InitialDelay time.Duration // SWEEP_INITIAL_DELAY
}

// HostConfig points at the media server.
type HostConfig struct {
	URL           string        // HOST_URL
	APIKey        string        // HOST_API_KEY
	Timeout       time.Duration // HOST_TIMEOUT
	RetryMax      int           // HOST_RETRY_MAX
	EventsEnabled bool          // HOST_EVENTS_ENABLED
}

// AuthConfig verifies bearer tokens.
type AuthConfig struct {
	JWTSecret        string        // JWT_SECRET
	JWTIssuer        string        // JWT_ISSUER, optional
	IdentityCacheTTL time.Duration // IDENTITY_CACHE_TTL
	IdentityCacheMax int           // IDENTITY_CACHE_SIZE
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Storage
	DataDir       string // JSON collection files
	ArchiveDBPath string // SQLite archive (backups, idempotency)

	Features FeatureConfig

	// Ratings
	MinRating int
	MaxRating int

	Chat     ChatConfig
	Requests RequestConfig
	Sweep    SweepConfig
	Host     HostConfig
	Auth     AuthConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Storage
		DataDir:       getenv("DATA_DIR", "data"),
		ArchiveDBPath: getenv("ARCHIVE_DB_PATH", "data/archive.db"),

		Features: FeatureConfig{
			Ratings:            getbool("ENABLE_RATINGS", true),
			Chat:               getbool("ENABLE_CHAT", true),
			MediaManagement:    getbool("ENABLE_MEDIA_MANAGEMENT", true),
			Notifications:      getbool("ENABLE_NOTIFICATIONS", true),
			ScheduledDeletions: getbool("ENABLE_SCHEDULED_DELETIONS", false),
		},

		MinRating: getint("MIN_RATING", 1),
		MaxRating: getint("MAX_RATING", 10),

		Chat: ChatConfig{
			RateLimitPerMinute:        getint("CHAT_RATE_LIMIT_PER_MINUTE", 10),
			MaxMessageLength:          getint("MAX_MESSAGE_LENGTH", 500),
			AllowedGIFDomains:         splitCSV(getenv("ALLOWED_GIF_DOMAINS", "giphy.com,tenor.com")),
			ModeratorDailyDeleteLimit: getint("MODERATOR_DAILY_DELETE_LIMIT", 50),
			MessageRetentionDays:      getint("CHAT_MESSAGE_RETENTION_DAYS", 0),
			OnlineWindow:              getdur("ONLINE_WINDOW", 5*time.Minute),
		},
		Requests: RequestConfig{
			MaxPerMonth:         getint("MAX_REQUESTS_PER_MONTH", 0),
			RejectedCleanupDays: getint("REJECTED_CLEANUP_DAYS", 0),
		},
		Sweep: SweepConfig{
			Interval:     getdur("SWEEP_INTERVAL", time.Hour),
			InitialDelay: getdur("SWEEP_INITIAL_DELAY", 30*time.Second),
		},
		Host: HostConfig{
			URL:           strings.TrimRight(getenv("HOST_URL", ""), "/"),
			APIKey:        getenv("HOST_API_KEY", ""),
			Timeout:       getdur("HOST_TIMEOUT", 10*time.Second),
			RetryMax:      getint("HOST_RETRY_MAX", 3),
			EventsEnabled: getbool("HOST_EVENTS_ENABLED", false),
		},
		Auth: AuthConfig{
			JWTSecret:        getenv("JWT_SECRET", ""),
			JWTIssuer:        getenv("JWT_ISSUER", ""),
			IdentityCacheTTL: getdur("IDENTITY_CACHE_TTL", 5*time.Minute),
			IdentityCacheMax: getint("IDENTITY_CACHE_SIZE", 1024),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "media-ratings-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	for i, d := range cfg.Chat.AllowedGIFDomains {
		cfg.Chat.AllowedGIFDomains[i] = strings.ToLower(d)
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return cfg, errors.New("DATA_DIR must not be empty")
	}
	if strings.TrimSpace(cfg.ArchiveDBPath) == "" {
		return cfg, errors.New("ARCHIVE_DB_PATH must not be empty")
	}
	if cfg.MinRating < 1 || cfg.MaxRating > 10 || cfg.MinRating > cfg.MaxRating {
		return cfg, errors.New("MIN_RATING and MAX_RATING must satisfy 1 <= MIN_RATING <= MAX_RATING <= 10")
	}
	if cfg.Chat.RateLimitPerMinute < 0 {
		return cfg, errors.New("CHAT_RATE_LIMIT_PER_MINUTE must be >= 0")
	}
	if cfg.Chat.MaxMessageLength <= 0 {
		return cfg, errors.New("MAX_MESSAGE_LENGTH must be > 0")
	}
	if cfg.Chat.ModeratorDailyDeleteLimit < 0 {
		return cfg, errors.New("MODERATOR_DAILY_DELETE_LIMIT must be >= 0")
	}
	if cfg.Chat.MessageRetentionDays < 0 {
		return cfg, errors.New("CHAT_MESSAGE_RETENTION_DAYS must be >= 0")
	}
	if cfg.Chat.OnlineWindow <= 0 {
		return cfg, errors.New("ONLINE_WINDOW must be > 0")
	}
	if cfg.Requests.MaxPerMonth < 0 {
		return cfg, errors.New("MAX_REQUESTS_PER_MONTH must be >= 0")
	}
	if cfg.Requests.RejectedCleanupDays < 0 {
		return cfg, errors.New("REJECTED_CLEANUP_DAYS must be >= 0")
	}
	if cfg.Sweep.Interval <= 0 {
		return cfg, errors.New("SWEEP_INTERVAL must be > 0")
	}
	if cfg.Sweep.InitialDelay < 0 {
		return cfg, errors.New("SWEEP_INITIAL_DELAY must be >= 0")
	}
	if cfg.Host.Timeout <= 0 {
		return cfg, errors.New("HOST_TIMEOUT must be > 0")
	}
	if cfg.Host.RetryMax < 0 {
		return cfg, errors.New("HOST_RETRY_MAX must be >= 0")
	}
	if cfg.Host.EventsEnabled && cfg.Host.URL == "" {
		return cfg, errors.New("HOST_EVENTS_ENABLED requires HOST_URL")
	}
	if cfg.Auth.IdentityCacheTTL <= 0 {
		return cfg, errors.New("IDENTITY_CACHE_TTL must be > 0")
	}
	if cfg.Auth.IdentityCacheMax < 1 {
		return cfg, errors.New("IDENTITY_CACHE_SIZE must be >= 1")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
