// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, storage, authentication, the model endpoint, rate limiting, and
// observability settings.
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
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects the storage backend.
type DBConfig struct {
	Driver string // sqlite|postgres
	Path   string // SQLite file
	DSN    string // PostgreSQL connection string
}

// AuthConfig controls token issuance and password hashing.
type AuthConfig struct {
	JWTSecret  string
	TokenTTL   time.Duration
	BcryptCost int
}

// ModelConfig describes the external inference endpoint.
type ModelConfig struct {
	URL         string        // base URL, POST {URL}/generate
	Timeout     time.Duration // bound on a single inference call
	DefaultName string        // recorded when the endpoint omits its model id
}

// AssistantConfig holds the persona used for greetings and identity answers.
type AssistantConfig struct {
	Name             string
	IdentityAnswer   string
	MaxQuestionRunes int
}

// LogFileConfig enables an additional rotating JSON log file.
type LogFileConfig struct {
	Path       string // empty disables file logging
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool
	LogFile        LogFileConfig
	SwaggerEnabled bool
	APIBasePath    string

	DB        DBConfig
	Auth      AuthConfig
	Model     ModelConfig
	Assistant AssistantConfig

	// Rate limiting
	RateRPS   float64
	RateBurst int

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration

	OTEL OTELConfig
}

// DefaultIdentityAnswer is returned for questions about the assistant itself.
const DefaultIdentityAnswer = "I am EmpaTalk, an AI assistant created by Pushya and team for mental health support."

// devJWTSecret is accepted only outside release mode.
const devJWTSecret = "dev-only-empatalk-secret-change-me"

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
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		// Must outlast a full inference call.
		WriteTimeout:   getdur("WRITE_TIMEOUT", 120*time.Second),
		IdleTimeout:    getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes: getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:        strings.ToLower(getenv("GIN_MODE", "release")),

		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),
		LogFile: LogFileConfig{
			Path:       getenv("LOG_FILE", ""),
			MaxSizeMB:  getint("LOG_FILE_MAX_SIZE_MB", 10),
			MaxBackups: getint("LOG_FILE_MAX_BACKUPS", 5),
			MaxAgeDays: getint("LOG_FILE_MAX_AGE_DAYS", 30),
		},
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/")),

		DB: DBConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:   getenv("DB_PATH", "empatalk.db"),
			DSN:    getenv("DB_DSN", ""),
		},
		Auth: AuthConfig{
			JWTSecret:  getenv("JWT_SECRET", ""),
			TokenTTL:   getdur("TOKEN_TTL", 30*24*time.Hour),
			BcryptCost: getint("BCRYPT_COST", 10),
		},
		Model: ModelConfig{
			URL:         strings.TrimRight(getenv("MODEL_URL", "http://127.0.0.1:8008"), "/"),
			Timeout:     getdur("MODEL_TIMEOUT", 90*time.Second),
			DefaultName: getenv("MODEL_NAME", "Qwen"),
		},
		Assistant: AssistantConfig{
			Name:             getenv("ASSISTANT_NAME", "EmpaTalk"),
			IdentityAnswer:   getenv("IDENTITY_ANSWER", DefaultIdentityAnswer),
			MaxQuestionRunes: getint("MAX_QUESTION_RUNES", 4000),
		},

		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-empatalk-backend"),
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
	if cfg.Auth.JWTSecret == "" && cfg.GinMode != "release" {
		cfg.Auth.JWTSecret = devJWTSecret
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
	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DB.DSN) == "" {
			return cfg, errors.New("DB_DSN is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if len(cfg.Auth.JWTSecret) < 16 {
		return cfg, errors.New("JWT_SECRET must be at least 16 bytes")
	}
	if cfg.Auth.TokenTTL <= 0 {
		return cfg, errors.New("TOKEN_TTL must be > 0")
	}
	if cfg.Auth.BcryptCost < 4 || cfg.Auth.BcryptCost > 31 {
		return cfg, errors.New("BCRYPT_COST must be between 4 and 31")
	}
	if !strings.HasPrefix(cfg.Model.URL, "http://") && !strings.HasPrefix(cfg.Model.URL, "https://") {
		return cfg, errors.New("MODEL_URL must be an http(s) URL")
	}
	if cfg.Model.Timeout <= 0 {
		return cfg, errors.New("MODEL_TIMEOUT must be > 0")
	}
	if cfg.WriteTimeout <= cfg.Model.Timeout {
		return cfg, errors.New("WRITE_TIMEOUT must exceed MODEL_TIMEOUT")
	}
	if strings.TrimSpace(cfg.Assistant.Name) == "" || strings.TrimSpace(cfg.Assistant.IdentityAnswer) == "" {
		return cfg, errors.New("ASSISTANT_NAME and IDENTITY_ANSWER must not be empty")
	}
	if cfg.Assistant.MaxQuestionRunes < 0 {
		return cfg, errors.New("MAX_QUESTION_RUNES must be >= 0")
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

// ---- helpers ----

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
		if t := strings.TrimSpace(p); t != "" {
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
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			p = "/"
		}
	}
	return p
}
