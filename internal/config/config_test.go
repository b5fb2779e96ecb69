package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

const testTOTPKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.GRPCAddr != ":9090" {
		t.Errorf("addrs = %q, %q", cfg.HTTPAddr, cfg.GRPCAddr)
	}
	if cfg.AccessTTL() != 10*time.Minute {
		t.Errorf("AccessTTL = %v, want 10m", cfg.AccessTTL())
	}
	if cfg.RefreshTTL() != 168*time.Hour {
		t.Errorf("RefreshTTL = %v, want 168h", cfg.RefreshTTL())
	}
	if cfg.ChallengeTTL() != 5*time.Minute {
		t.Errorf("ChallengeTTL = %v, want 5m", cfg.ChallengeTTL())
	}
	if cfg.TokenVersion != 1 {
		t.Errorf("TokenVersion = %d, want 1", cfg.TokenVersion)
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d, want 12", cfg.BcryptCost)
	}
	if cfg.TOTPIssuer != "ElectionVoting" {
		t.Errorf("TOTPIssuer = %q", cfg.TOTPIssuer)
	}
	if cfg.AcceptDelay() != time.Second {
		t.Errorf("AcceptDelay = %v, want 1s", cfg.AcceptDelay())
	}
	if cfg.TxMaxAttempts != 3 {
		t.Errorf("TxMaxAttempts = %d, want 3", cfg.TxMaxAttempts)
	}
	if cfg.RateLimitMax != 5 || cfg.RateLimitPeriod() != 5*time.Minute {
		t.Errorf("rate limit = %d per %v, want 5 per 5m", cfg.RateLimitMax, cfg.RateLimitPeriod())
	}
	if cfg.IsProduction() {
		t.Error("default env should not be production")
	}
	if cfg.KafkaBrokersList() != nil {
		t.Error("Kafka should be disabled by default")
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":9999")
	os.Setenv("ACCESS_TOKEN_TTL", "2m")
	os.Setenv("BCRYPT_COST", "10")
	os.Setenv("TOKEN_VERSION", "4")
	os.Setenv("REFRESH_ACCEPT_DELAY", "0s")
	os.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	os.Setenv("CORS_ALLOWED_ORIGINS", "https://vote.example.org")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9999" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.AccessTTL() != 2*time.Minute {
		t.Errorf("AccessTTL = %v", cfg.AccessTTL())
	}
	if cfg.BcryptCost != 10 || cfg.TokenVersion != 4 {
		t.Errorf("BcryptCost = %d, TokenVersion = %d", cfg.BcryptCost, cfg.TokenVersion)
	}
	if cfg.AcceptDelay() != 0 {
		t.Errorf("AcceptDelay = %v, want 0", cfg.AcceptDelay())
	}
	if got := cfg.KafkaBrokersList(); len(got) != 2 || got[0] != "k1:9092" || got[1] != "k2:9092" {
		t.Errorf("KafkaBrokersList = %v", got)
	}
	if got := cfg.AllowedOrigins(); len(got) != 1 || got[0] != "https://vote.example.org" {
		t.Errorf("AllowedOrigins = %v", got)
	}
}

func TestLoad_BCRYPT_COSTRange(t *testing.T) {
	testCases := []struct {
		name  string
		value string
		want  int
		err   bool
	}{
		{"valid min", "4", 4, false},
		{"valid max", "31", 31, false},
		{"too low", "3", 0, true},
		{"too high", "32", 0, true},
		{"zero", "0", 12, false}, // Should default to 12
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			os.Clearenv()
			os.Setenv("BCRYPT_COST", tc.value)

			cfg, err := Load()
			if tc.err {
				if err == nil {
					t.Fatal("Load should return error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.BcryptCost != tc.want {
				t.Errorf("BcryptCost = %d, want %d", cfg.BcryptCost, tc.want)
			}
		})
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	testCases := []struct {
		key, value string
	}{
		{"TOKEN_VERSION", "0"},
		{"TX_MAX_ATTEMPTS", "0"},
		{"RATE_LIMIT_MAX", "0"},
		{"TOTP_ENCRYPTION_KEY", "abcd"},
		{"TOTP_ENCRYPTION_KEY", strings.Repeat("zz", 32)},
	}
	for _, tc := range testCases {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			os.Clearenv()
			os.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load should reject %s=%q", tc.key, tc.value)
			}
		})
	}
}

func setProductionEnv() {
	os.Clearenv()
	os.Setenv("APP_ENV", "production")
	os.Setenv("ACCESS_TOKEN_SECRET", strings.Repeat("a", 32))
	os.Setenv("REFRESH_TOKEN_SECRET", strings.Repeat("r", 32))
	os.Setenv("TOTP_ENCRYPTION_KEY", testTOTPKey)
	os.Setenv("DATABASE_URL", "postgres://localhost/election")
}

func TestLoad_Production(t *testing.T) {
	setProductionEnv()
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.IsProduction() {
		t.Error("IsProduction should be true")
	}
	key, err := cfg.TOTPKey()
	if err != nil || len(key) != 32 {
		t.Errorf("TOTPKey = %d bytes, %v", len(key), err)
	}
}

func TestLoad_ProductionRejectsWeakSecrets(t *testing.T) {
	testCases := []struct {
		name  string
		key   string
		value string
	}{
		{"short access secret", "ACCESS_TOKEN_SECRET", "short"},
		{"identical secrets", "REFRESH_TOKEN_SECRET", strings.Repeat("a", 32)},
		{"missing totp key", "TOTP_ENCRYPTION_KEY", ""},
		{"missing database", "DATABASE_URL", ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			setProductionEnv()
			os.Setenv(tc.key, tc.value)
			cfg, err := Load()
			if err == nil {
				t.Fatal("Load should return error")
			}
			if cfg != nil {
				t.Error("Load should return nil config on error")
			}
			if !strings.HasPrefix(err.Error(), "config: ") {
				t.Errorf("error = %q, want config: prefix", err.Error())
			}
		})
	}
}

func TestDurations_FallBackOnInvalid(t *testing.T) {
	cfg := &Config{
		AccessTokenTTL:     "invalid",
		RefreshTokenTTL:    "-1h",
		ChallengeTokenTTL:  "0",
		RateLimitWindow:    "",
		RefreshAcceptDelay: "-5s",
	}
	if cfg.AccessTTL() != 10*time.Minute {
		t.Errorf("AccessTTL = %v", cfg.AccessTTL())
	}
	if cfg.RefreshTTL() != 168*time.Hour {
		t.Errorf("RefreshTTL = %v", cfg.RefreshTTL())
	}
	if cfg.ChallengeTTL() != 5*time.Minute {
		t.Errorf("ChallengeTTL = %v", cfg.ChallengeTTL())
	}
	if cfg.RateLimitPeriod() != 5*time.Minute {
		t.Errorf("RateLimitPeriod = %v", cfg.RateLimitPeriod())
	}
	if cfg.AcceptDelay() != time.Second {
		t.Errorf("AcceptDelay = %v", cfg.AcceptDelay())
	}
}
