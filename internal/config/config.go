// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, quota limits, LLM and
// downstream endpoints, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings. The allowlist
// doubles as the origin authorization source for the generation endpoint.
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-generation-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// QuotaConfig defines the two independent generation quotas enforced before a
// workflow run is admitted.
type QuotaConfig struct {
	PerCallerLimit int64  // lifetime cap per caller
	DailyLimit     int64  // global cap, reset every UTC calendar day
	Backend        string // "sqlite" or "redis"
	RedisAddr      string
	RedisPassword  string
	RedisPrefix    string
}

// LLMConfig defines the language-model service connection.
type LLMConfig struct {
	BaseURL string        // OpenAI-compatible base URL, including /v1
	APIKey  string        // bearer token; may be empty for local models
	Model   string        // model identifier
	Timeout time.Duration // per-call HTTP timeout
}

// NotifyConfig defines downstream delivery behavior (bounded retry).
type NotifyConfig struct {
	Endpoint       string        // downstream renderer URL
	MaxAttempts    int           // total attempts before giving up
	RetryDelay     time.Duration // fixed delay between attempts
	AttemptTimeout time.Duration // per-attempt timeout enforced via context
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

	// App
	DBPath        string        // SQLite path
	ShutdownGrace time.Duration // how long to drain in-flight background runs

	// Edge rate limiting (token bucket, abuse control; distinct from quotas)
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Quotas
	Quota QuotaConfig

	// External services
	LLM    LLMConfig
	Notify NotifyConfig

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

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

		// App
		DBPath:        getenv("DB_PATH", "app.db"),
		ShutdownGrace: getdur("SHUTDOWN_GRACE", 5*time.Minute),

		// Edge rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Quotas
		Quota: QuotaConfig{
			PerCallerLimit: int64(getint("QUOTA_PER_CALLER", 2)),
			DailyLimit:     int64(getint("QUOTA_DAILY", 10)),
			Backend:        strings.ToLower(getenv("QUOTA_BACKEND", "sqlite")),
			RedisAddr:      getenv("QUOTA_REDIS_ADDR", ""),
			RedisPassword:  getenv("QUOTA_REDIS_PASSWORD", ""),
			RedisPrefix:    getenv("QUOTA_REDIS_PREFIX", "genbackend:quota"),
		},

		// External services
		LLM: LLMConfig{
			BaseURL: getenv("LLM_BASE_URL", "https://openrouter.ai/api/v1"),
			APIKey:  getenv("LLM_API_KEY", ""),
			Model:   getenv("LLM_MODEL", "openai/gpt-4o-mini"),
			Timeout: getdur("LLM_TIMEOUT", 120*time.Second),
		},
		Notify: NotifyConfig{
			Endpoint:       getenv("RENDERER_URL", ""),
			MaxAttempts:    getint("NOTIFY_MAX_ATTEMPTS", 3),
			RetryDelay:     getdur("NOTIFY_RETRY_DELAY", 5*time.Second),
			AttemptTimeout: getdur("NOTIFY_ATTEMPT_TIMEOUT", 10*time.Second),
		},

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-generation-backend"),
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
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.ShutdownGrace <= 0 {
		return cfg, errors.New("SHUTDOWN_GRACE must be > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Quota.PerCallerLimit < 1 {
		return cfg, errors.New("QUOTA_PER_CALLER must be >= 1")
	}
	if cfg.Quota.DailyLimit < 1 {
		return cfg, errors.New("QUOTA_DAILY must be >= 1")
	}
	switch cfg.Quota.Backend {
	case "sqlite", "redis":
	default:
		return cfg, errors.New("QUOTA_BACKEND must be one of: sqlite, redis")
	}
	if cfg.Quota.Backend == "redis" && strings.TrimSpace(cfg.Quota.RedisAddr) == "" {
		return cfg, errors.New("QUOTA_REDIS_ADDR is required when QUOTA_BACKEND=redis")
	}
	if strings.TrimSpace(cfg.LLM.BaseURL) == "" {
		return cfg, errors.New("LLM_BASE_URL must not be empty")
	}
	if cfg.LLM.Timeout <= 0 {
		return cfg, errors.New("LLM_TIMEOUT must be > 0")
	}
	if cfg.Notify.MaxAttempts < 1 {
		return cfg, errors.New("NOTIFY_MAX_ATTEMPTS must be >= 1")
	}
	if cfg.Notify.RetryDelay < 0 {
		return cfg, errors.New("NOTIFY_RETRY_DELAY must be >= 0")
	}
	if cfg.Notify.AttemptTimeout <= 0 {
		return cfg, errors.New("NOTIFY_ATTEMPT_TIMEOUT must be > 0")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
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
