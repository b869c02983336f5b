package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server       ServerConfig
	App          AppConfig
	Log          LogConfig
	Cache        CacheConfig
	Database     DatabaseConfig
	ReviewDB     ReviewDBConfig
	Upstream     UpstreamConfig
	Auth         AuthConfig
	Review       ReviewConfig
	Autocomplete AutocompleteConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	AllowedOrigins  []string      `envconfig:"SERVER_ALLOWED_ORIGINS" default:"*"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"pricelens-gateway"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Debug       bool   `envconfig:"APP_DEBUG" default:"false"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"` // json or console
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	Type string        `envconfig:"CACHE_TYPE" default:"memory"` // memory or redis
	TTL  time.Duration `envconfig:"CACHE_TTL" default:"60s"`

	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	KeyPrefix     string `envconfig:"REDIS_KEY_PREFIX" default:"pricelens"`
}

// DatabaseConfig holds MySQL connection settings (for user profiles).
type DatabaseConfig struct {
	Enabled  bool   `envconfig:"DB_ENABLED" default:"true"`
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"3306"`
	Name     string `envconfig:"DB_NAME" default:"pricelens"`
	User     string `envconfig:"DB_USER" default:"root"`
	Password string `envconfig:"DB_PASS" default:""`
}

// ReviewDBConfig holds settings for the anomaly review audit log.
type ReviewDBConfig struct {
	Type string `envconfig:"REVIEW_DB_TYPE" default:"sqlite"` // sqlite or postgres
	Path string `envconfig:"REVIEW_DB_PATH" default:"./data/review.db"`
	// PostgreSQL settings
	Host     string `envconfig:"REVIEW_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"REVIEW_DB_PORT" default:"5432"`
	Name     string `envconfig:"REVIEW_DB_NAME" default:"pricelens"`
	User     string `envconfig:"REVIEW_DB_USER" default:"postgres"`
	Password string `envconfig:"REVIEW_DB_PASS" default:""`
	SSLMode  string `envconfig:"REVIEW_DB_SSLMODE" default:"disable"`
}

// UpstreamConfig holds settings for the backend REST API.
type UpstreamConfig struct {
	BaseURL        string        `envconfig:"UPSTREAM_BASE_URL" default:"http://localhost:8000"`
	Timeout        time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"10s"`
	RetryAttempts  int           `envconfig:"UPSTREAM_RETRY_ATTEMPTS" default:"3"`
	RetryBaseDelay time.Duration `envconfig:"UPSTREAM_RETRY_BASE_DELAY" default:"200ms"`
	RetryMaxDelay  time.Duration `envconfig:"UPSTREAM_RETRY_MAX_DELAY" default:"2s"`
	// RetryMutations enables automatic retry for POST/PUT/DELETE. Such requests then
	// always carry an Idempotency-Key header.
	RetryMutations bool `envconfig:"UPSTREAM_RETRY_MUTATIONS" default:"false"`
}

// AuthConfig holds settings for the external auth service and local sessions.
type AuthConfig struct {
	ProviderURL string        `envconfig:"AUTH_PROVIDER_URL" default:"http://localhost:9999"`
	AnonKey     string        `envconfig:"AUTH_ANON_KEY" default:""`
	SessionTTL  time.Duration `envconfig:"AUTH_SESSION_TTL" default:"1h"`
	AdminEmails []string      `envconfig:"AUTH_ADMIN_EMAILS" default:""`
}

// ReviewConfig holds anomaly review workflow settings.
type ReviewConfig struct {
	RollbackOnFailure bool          `envconfig:"REVIEW_ROLLBACK_ON_FAILURE" default:"false"`
	PageSize          int           `envconfig:"REVIEW_PAGE_SIZE" default:"50"`
	RequestTimeout    time.Duration `envconfig:"REVIEW_REQUEST_TIMEOUT" default:"15s"`
	WorkspaceIdleTTL  time.Duration `envconfig:"REVIEW_WORKSPACE_IDLE_TTL" default:"30m"`
	AuditRetention    time.Duration `envconfig:"REVIEW_AUDIT_RETENTION" default:"720h"`
	AuditPruneEvery   time.Duration `envconfig:"REVIEW_AUDIT_PRUNE_INTERVAL" default:"24h"`
}

// AutocompleteConfig holds debounce settings for search suggestions.
type AutocompleteConfig struct {
	MinLength int           `envconfig:"AUTOCOMPLETE_MIN_LENGTH" default:"2"`
	Delay     time.Duration `envconfig:"AUTOCOMPLETE_DELAY" default:"300ms"`
}

// PostgresDSN returns the PostgreSQL connection string.
func (r *ReviewDBConfig) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		r.User, r.Password, r.Host, r.Port, r.Name, r.SSLMode)
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// DSN returns the MySQL data source name.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// IsAdminEmail reports whether email is listed in AUTH_ADMIN_EMAILS.
func (a *AuthConfig) IsAdminEmail(email string) bool {
	for _, admin := range a.AdminEmails {
		if admin != "" && strings.EqualFold(strings.TrimSpace(admin), email) {
			return true
		}
	}
	return false
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.Autocomplete.MinLength < 1 {
		return nil, fmt.Errorf("failed to load config: AUTOCOMPLETE_MIN_LENGTH must be positive")
	}
	if cfg.Upstream.RetryAttempts < 1 {
		cfg.Upstream.RetryAttempts = 1
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
