package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds process configuration, loaded once at startup and injected
// into the components that need it.
type Config struct {
	// Database
	DatabaseDriver string
	DatabaseURL    string
	AutoMigrate    bool

	// Server
	Port        int
	FrontendURL string

	// Sessions
	JWTSecret  string
	SessionTTL time.Duration

	// Privilege sets. Keyed by external (identity provider) id.
	SuperAdminIDs  IDSet
	InitialAdminID string

	// Erasure denylist
	IdentityHashPepper string

	// Discord OAuth
	DiscordClientID     string
	DiscordClientSecret string
	DiscordRedirectURI  string

	// Ephemeral challenge state. Redis is optional; without it challenges
	// live in process memory and are lost on restart.
	RedisAddr   string
	NonceTTL    time.Duration
	StateTTL    time.Duration
	AuthCodeTTL time.Duration

	// Rate limiting for wallet and auth endpoints
	RateLimitRPS   float64
	RateLimitBurst int

	// Optional operator alerts for privileged actions
	AlertWebhookURL string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseDriver:      getEnv("DATABASE_DRIVER", DriverPostgres),
		DatabaseURL:         getEnv("DATABASE_URL", getEnv("POSTGRES_DSN", "")),
		AutoMigrate:         getEnvBool("AUTO_MIGRATE", false),
		Port:                getEnvInt("PORT", 8080),
		FrontendURL:         getEnv("FRONTEND_URL", "http://localhost:5173"),
		JWTSecret:           getEnv("JWT_SECRET", ""),
		SessionTTL:          getEnvDuration("SESSION_TTL", 24*time.Hour),
		SuperAdminIDs:       ParseIDSet(getEnv("SUPER_ADMIN_DISCORD_IDS", "")),
		InitialAdminID:      strings.TrimSpace(getEnv("INITIAL_ADMIN_ID", "")),
		IdentityHashPepper:  getEnv("IDENTITY_HASH_PEPPER", ""),
		DiscordClientID:     getEnv("DISCORD_CLIENT_ID", ""),
		DiscordClientSecret: getEnv("DISCORD_CLIENT_SECRET", ""),
		DiscordRedirectURI:  getEnv("DISCORD_REDIRECT_URI", ""),
		RedisAddr:           getEnv("REDIS_ADDR", ""),
		NonceTTL:            getEnvDuration("NONCE_TTL", 5*time.Minute),
		StateTTL:            getEnvDuration("OAUTH_STATE_TTL", 5*time.Minute),
		AuthCodeTTL:         getEnvDuration("AUTH_CODE_TTL", 30*time.Second),
		RateLimitRPS:        getEnvFloat("RATE_LIMIT_RPS", 2),
		RateLimitBurst:      getEnvInt("RATE_LIMIT_BURST", 5),
		AlertWebhookURL:     getEnv("ALERT_WEBHOOK_URL", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.DatabaseDriver != DriverPostgres && c.DatabaseDriver != DriverSQLite {
		return fmt.Errorf("DATABASE_DRIVER must be '%s' or '%s', got: %s", DriverPostgres, DriverSQLite, c.DatabaseDriver)
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET is required and must be at least 32 bytes")
	}

	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}

	if c.IdentityHashPepper == "" {
		return fmt.Errorf("IDENTITY_HASH_PEPPER is required")
	}

	if c.DiscordClientID == "" || c.DiscordClientSecret == "" || c.DiscordRedirectURI == "" {
		return fmt.Errorf("DISCORD_CLIENT_ID, DISCORD_CLIENT_SECRET and DISCORD_REDIRECT_URI are required")
	}

	if c.NonceTTL <= 0 || c.StateTTL <= 0 || c.AuthCodeTTL <= 0 {
		return fmt.Errorf("challenge TTLs must be positive")
	}

	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}

	return nil
}

// IDSet is an immutable set of external identity ids.
type IDSet map[string]struct{}

// ParseIDSet parses a comma-separated list, ignoring blanks.
func ParseIDSet(raw string) IDSet {
	set := make(IDSet)
	for _, part := range strings.Split(raw, ",") {
		if id := strings.TrimSpace(part); id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}

// NewIDSet builds a set from explicit ids.
func NewIDSet(ids ...string) IDSet {
	return ParseIDSet(strings.Join(ids, ","))
}

// Contains reports whether id is in the set.
func (s IDSet) Contains(id string) bool {
	if id == "" {
		return false
	}
	_, ok := s[id]
	return ok
}

// List returns the ids in sorted order.
func (s IDSet) List() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvFloat gets a float environment variable with a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvDuration accepts Go duration strings ("5m") or whole seconds ("300").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	valueStr = strings.ToLower(valueStr)
	return valueStr == "true" || valueStr == "1" || valueStr == "yes"
}
