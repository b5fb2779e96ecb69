// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvProduction is the APP_ENV value that turns on Secure cookies and strict secret checks.
const EnvProduction = "production"

// minProductionSecretLen is the minimum length in bytes of each token secret in production.
const minProductionSecretLen = 32

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address of the gRPC health server (e.g. :9090). Empty disables it.
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN; empty runs with in-memory stores (development only).
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment ("development", "production").
	Env string `mapstructure:"APP_ENV"`

	AccessTokenSecret  string `mapstructure:"ACCESS_TOKEN_SECRET"`
	RefreshTokenSecret string `mapstructure:"REFRESH_TOKEN_SECRET"`
	// AccessTokenTTL etc. are Go durations (e.g. "10m", "168h").
	AccessTokenTTL    string `mapstructure:"ACCESS_TOKEN_TTL"`
	RefreshTokenTTL   string `mapstructure:"REFRESH_TOKEN_TTL"`
	ChallengeTokenTTL string `mapstructure:"CHALLENGE_TOKEN_TTL"`
	// TokenVersion is the current token version. Bumping it invalidates every outstanding token.
	TokenVersion int    `mapstructure:"TOKEN_VERSION"`
	JWTIssuer    string `mapstructure:"JWT_ISSUER"`
	JWTAudience  string `mapstructure:"JWT_AUDIENCE"`

	// TOTPEncryptionKey is 64 hex chars (32 bytes) used to seal TOTP secrets at rest.
	TOTPEncryptionKey string `mapstructure:"TOTP_ENCRYPTION_KEY"`
	// TOTPIssuer is shown in authenticator apps.
	TOTPIssuer string `mapstructure:"TOTP_ISSUER"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// RefreshAcceptDelay is slept before each refresh is validated and reissued.
	RefreshAcceptDelay string `mapstructure:"REFRESH_ACCEPT_DELAY"`
	// TxMaxAttempts bounds retries of serialization failures in token transactions.
	TxMaxAttempts int `mapstructure:"TX_MAX_ATTEMPTS"`

	RateLimitMax    int    `mapstructure:"RATE_LIMIT_MAX"`
	RateLimitWindow string `mapstructure:"RATE_LIMIT_WINDOW"`
	// RedisAddr enables the shared Redis rate limiter; empty uses the in-process one.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// CORSAllowedOrigins is a comma-separated list of browser origins allowed to send credentials.
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	// BindingPolicyFile is an optional Rego file overriding the device-binding policy.
	BindingPolicyFile string `mapstructure:"BINDING_POLICY_FILE"`

	// OTelEndpoint is the OTLP gRPC collector; empty disables export.
	OTelEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	ServiceName  string `mapstructure:"OTEL_SERVICE_NAME"`

	// KafkaBrokers is a comma-separated broker list; when set, audit events are streamed to AuditKafkaTopic.
	KafkaBrokers    string `mapstructure:"KAFKA_BROKERS"`
	AuditKafkaTopic string `mapstructure:"AUDIT_KAFKA_TOPIC"`

	// Worker-only: Loki URL for the audit worker to push logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the audit worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("ACCESS_TOKEN_SECRET", "")
	v.SetDefault("REFRESH_TOKEN_SECRET", "")
	v.SetDefault("ACCESS_TOKEN_TTL", "10m")
	v.SetDefault("REFRESH_TOKEN_TTL", "168h") // 7d
	v.SetDefault("CHALLENGE_TOKEN_TTL", "5m")
	v.SetDefault("TOKEN_VERSION", 1)
	v.SetDefault("JWT_ISSUER", "election-voting-auth")
	v.SetDefault("JWT_AUDIENCE", "election-voting-api")
	v.SetDefault("TOTP_ENCRYPTION_KEY", "")
	v.SetDefault("TOTP_ISSUER", "ElectionVoting")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("REFRESH_ACCEPT_DELAY", "1s")
	v.SetDefault("TX_MAX_ATTEMPTS", 3)
	v.SetDefault("RATE_LIMIT_MAX", 5)
	v.SetDefault("RATE_LIMIT_WINDOW", "5m")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173")
	v.SetDefault("BINDING_POLICY_FILE", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "election-auth")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("AUDIT_KAFKA_TOPIC", "election-auth-audit")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "election-auth-audit-worker")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = 12
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if c.TokenVersion < 1 {
		return errors.New("config: TOKEN_VERSION must be at least 1")
	}
	if c.TxMaxAttempts < 1 {
		return errors.New("config: TX_MAX_ATTEMPTS must be at least 1")
	}
	if c.RateLimitMax < 1 {
		return errors.New("config: RATE_LIMIT_MAX must be at least 1")
	}
	if c.TOTPEncryptionKey != "" {
		if _, err := c.TOTPKey(); err != nil {
			return err
		}
	}
	if !c.IsProduction() {
		return nil
	}
	if len(c.AccessTokenSecret) < minProductionSecretLen || len(c.RefreshTokenSecret) < minProductionSecretLen {
		return fmt.Errorf("config: ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must be at least %d bytes when APP_ENV=production", minProductionSecretLen)
	}
	if c.AccessTokenSecret == c.RefreshTokenSecret {
		return errors.New("config: ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ")
	}
	if c.TOTPEncryptionKey == "" {
		return errors.New("config: TOTP_ENCRYPTION_KEY must be set when APP_ENV=production")
	}
	if c.DatabaseURL == "" {
		return errors.New("config: DATABASE_URL must be set when APP_ENV=production")
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, EnvProduction)
}

// TOTPKey decodes TOTPEncryptionKey; it must be exactly 32 bytes.
func (c *Config) TOTPKey() ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(c.TOTPEncryptionKey))
	if err != nil || len(key) != 32 {
		return nil, errors.New("config: TOTP_ENCRYPTION_KEY must be 64 hex characters (32 bytes)")
	}
	return key, nil
}

// AccessTTL parses AccessTokenTTL as a time.Duration. Returns 10m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parsePositive(c.AccessTokenTTL, 10*time.Minute)
}

// RefreshTTL parses RefreshTokenTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return parsePositive(c.RefreshTokenTTL, 168*time.Hour)
}

// ChallengeTTL parses ChallengeTokenTTL as a time.Duration. Returns 5m if unset or invalid.
func (c *Config) ChallengeTTL() time.Duration {
	return parsePositive(c.ChallengeTokenTTL, 5*time.Minute)
}

// RateLimitPeriod parses RateLimitWindow. Returns 5m if unset or invalid.
func (c *Config) RateLimitPeriod() time.Duration {
	return parsePositive(c.RateLimitWindow, 5*time.Minute)
}

// AcceptDelay parses RefreshAcceptDelay. Zero is allowed; invalid or negative values return 1s.
func (c *Config) AcceptDelay() time.Duration {
	d, err := time.ParseDuration(c.RefreshAcceptDelay)
	if err != nil || d < 0 {
		return time.Second
	}
	return d
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// An empty list disables audit streaming.
func (c *Config) KafkaBrokersList() []string {
	return splitList(c.KafkaBrokers)
}

// AllowedOrigins returns the CORS origins from the comma-separated config.
func (c *Config) AllowedOrigins() []string {
	return splitList(c.CORSAllowedOrigins)
}

func parsePositive(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
