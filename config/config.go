package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const defaultJWTSecret = "change-me-in-production"

type Config struct {
	Port           string          `koanf:"port"`
	Environment    string          `koanf:"environment"`
	LogLevel       string          `koanf:"log_level"`
	AllowedOrigins []string        `koanf:"allowed_origins"`
	JWTSecret      string          `koanf:"jwt_secret"`
	SessionTTL     time.Duration   `koanf:"session_ttl"`
	ICEServers     []string        `koanf:"ice_servers"`
	Rooms          RoomsConfig     `koanf:"rooms"`
	RateLimit      RateLimitConfig `koanf:"rate_limit"`
	Upgrade        UpgradeConfig   `koanf:"upgrade"`
	Redis          RedisConfig     `koanf:"redis"`
}

type RoomsConfig struct {
	TTL           time.Duration `koanf:"ttl"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

type RateLimitConfig struct {
	MaxTokens       int           `koanf:"max_tokens"`
	RefillRate      int           `koanf:"refill_rate"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
}

// UpgradeConfig bounds how fast a single IP may open control channels.
type UpgradeConfig struct {
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`
}

type RedisConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Host     string `koanf:"host"`
	Port     string `koanf:"port"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// Addr returns host:port for the redis client.
func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

var durationKeys = []string{
	"session_ttl",
	"rooms.ttl",
	"rooms.sweep_interval",
	"rate_limit.cleanup_interval",
}

// Load reads the optional yaml file at path, fills in defaults and applies
// environment overrides. An empty path means defaults plus environment.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	applyDefaults(k)
	applyEnvOverrides(k)
	if err := normalizeDurations(k); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ResolvePath picks the config file: the flag value wins over AIRTEXT_CONFIG.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return getEnv("AIRTEXT_CONFIG", "")
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("port is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secret is required"))
	}
	if c.Environment == "production" && c.JWTSecret == defaultJWTSecret {
		errs = append(errs, errors.New("jwt_secret must be changed in production"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("session_ttl must be positive"))
	}
	if c.Rooms.TTL <= 0 {
		errs = append(errs, errors.New("rooms.ttl must be positive"))
	}
	if c.Rooms.SweepInterval <= 0 {
		errs = append(errs, errors.New("rooms.sweep_interval must be positive"))
	}
	if c.RateLimit.MaxTokens <= 0 {
		errs = append(errs, errors.New("rate_limit.max_tokens must be positive"))
	}
	if c.RateLimit.RefillRate <= 0 {
		errs = append(errs, errors.New("rate_limit.refill_rate must be positive"))
	}
	if c.RateLimit.CleanupInterval <= 0 {
		errs = append(errs, errors.New("rate_limit.cleanup_interval must be positive"))
	}
	if c.Upgrade.RequestsPerSecond <= 0 || c.Upgrade.Burst <= 0 {
		errs = append(errs, errors.New("upgrade limits must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func applyDefaults(k *koanf.Koanf) {
	setDefault(k, "port", "8080")
	setDefault(k, "environment", "development")
	setDefault(k, "log_level", "info")
	setDefault(k, "allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	setDefault(k, "jwt_secret", defaultJWTSecret)
	setDefault(k, "session_ttl", "24h")
	setDefault(k, "ice_servers", []string{"stun:stun.l.google.com:19302", "stun:stun1.l.google.com:19302"})

	setDefault(k, "rooms.ttl", "10m")
	setDefault(k, "rooms.sweep_interval", "1m")

	setDefault(k, "rate_limit.max_tokens", 100)
	setDefault(k, "rate_limit.refill_rate", 10)
	setDefault(k, "rate_limit.cleanup_interval", "1m")

	setDefault(k, "upgrade.requests_per_second", 5)
	setDefault(k, "upgrade.burst", 10)

	setDefault(k, "redis.enabled", false)
	setDefault(k, "redis.host", "localhost")
	setDefault(k, "redis.port", "6379")
	setDefault(k, "redis.password", "")
	setDefault(k, "redis.db", 0)
}

var envKeys = map[string]string{
	"PORT":                        "port",
	"ENVIRONMENT":                 "environment",
	"LOG_LEVEL":                   "log_level",
	"JWT_SECRET":                  "jwt_secret",
	"SESSION_TTL":                 "session_ttl",
	"ROOM_TTL":                    "rooms.ttl",
	"ROOM_SWEEP_INTERVAL":         "rooms.sweep_interval",
	"RATE_LIMIT_MAX_TOKENS":       "rate_limit.max_tokens",
	"RATE_LIMIT_REFILL_RATE":      "rate_limit.refill_rate",
	"RATE_LIMIT_CLEANUP_INTERVAL": "rate_limit.cleanup_interval",
	"UPGRADE_RPS":                 "upgrade.requests_per_second",
	"UPGRADE_BURST":               "upgrade.burst",
	"REDIS_ENABLED":               "redis.enabled",
	"REDIS_HOST":                  "redis.host",
	"REDIS_PORT":                  "redis.port",
	"REDIS_PASSWORD":              "redis.password",
	"REDIS_DB":                    "redis.db",
}

func applyEnvOverrides(k *koanf.Koanf) {
	for env, key := range envKeys {
		if value := getEnv(env, ""); value != "" {
			k.Set(key, value)
		}
	}

	// Comma-separated lists
	if origins := getEnv("ALLOWED_ORIGINS", ""); origins != "" {
		k.Set("allowed_origins", splitList(origins))
	}
	if servers := getEnv("ICE_SERVERS", ""); servers != "" {
		k.Set("ice_servers", splitList(servers))
	}
}

// normalizeDurations accepts Go duration strings and bare integers, which
// are read as milliseconds.
func normalizeDurations(k *koanf.Koanf) error {
	for _, key := range durationKeys {
		d, err := parseDuration(k.Get(key))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		k.Set(key, d)
	}
	return nil
}

func parseDuration(v any) (time.Duration, error) {
	switch t := v.(type) {
	case time.Duration:
		return t, nil
	case int:
		return time.Duration(t) * time.Millisecond, nil
	case int64:
		return time.Duration(t) * time.Millisecond, nil
	case float64:
		return time.Duration(t * float64(time.Millisecond)), nil
	case string:
		s := strings.TrimSpace(t)
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Duration(ms) * time.Millisecond, nil
		}
		return time.ParseDuration(s)
	}
	return 0, fmt.Errorf("unsupported duration value %v", v)
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// setDefault only sets the value if the key doesn't already exist
func setDefault(k *koanf.Koanf, key string, value any) {
	if !k.Exists(key) {
		k.Set(key, value)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
