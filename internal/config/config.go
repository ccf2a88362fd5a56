package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Delivery modes
const (
	DeliveryPush = "push"
	DeliveryPoll = "poll"
)

// Storage types
const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
)

// Config is the server configuration, read from the environment, an
// optional .env file and command-line flags
type Config struct {
	Host string `mapstructure:"HOST"`
	Port int    `mapstructure:"PORT"`

	Delivery    string `mapstructure:"DELIVERY"`
	StorageType string `mapstructure:"STORAGE_TYPE"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	MaxPlayers   int           `mapstructure:"MAX_PLAYERS"`
	RoomTTL      time.Duration `mapstructure:"ROOM_TTL"`
	ExpiryPolicy string        `mapstructure:"EXPIRY_POLICY"`

	SweepInterval    time.Duration `mapstructure:"SWEEP_INTERVAL"`
	GameDuration     time.Duration `mapstructure:"GAME_DURATION"`
	OperationTimeout time.Duration `mapstructure:"OPERATION_TIMEOUT"`
	StorageTimeout   time.Duration `mapstructure:"STORAGE_TIMEOUT"`
	HeartbeatTimeout time.Duration `mapstructure:"HEARTBEAT_TIMEOUT"`
	PollInterval     time.Duration `mapstructure:"POLL_INTERVAL"`

	AllowedOrigins []string `mapstructure:"ALLOWED_ORIGINS"`
	RateLimit      int      `mapstructure:"RATE_LIMIT"`
	LogLevel       string   `mapstructure:"LOG_LEVEL"`
}

// SetDefaults registers every key with its default. Keys must be known to
// viper for AutomaticEnv to apply during Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("HOST", "")
	v.SetDefault("PORT", 8080)
	v.SetDefault("DELIVERY", DeliveryPush)
	v.SetDefault("STORAGE_TYPE", StorageMemory)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("MAX_PLAYERS", 4)
	v.SetDefault("ROOM_TTL", 10*time.Minute)
	v.SetDefault("EXPIRY_POLICY", "empty_only")
	v.SetDefault("SWEEP_INTERVAL", time.Minute)
	v.SetDefault("GAME_DURATION", 120*time.Second)
	v.SetDefault("OPERATION_TIMEOUT", 5*time.Second)
	v.SetDefault("STORAGE_TIMEOUT", 2*time.Second)
	v.SetDefault("HEARTBEAT_TIMEOUT", 60*time.Second)
	v.SetDefault("POLL_INTERVAL", 2*time.Second)
	v.SetDefault("ALLOWED_ORIGINS", []string{})
	v.SetDefault("RATE_LIMIT", 120)
	v.SetDefault("LOG_LEVEL", "info")
}

// Load reads configuration into v from the environment and, when present,
// a .env file in dir
func Load(v *viper.Viper, dir string) (Config, error) {
	SetDefaults(v)

	v.AddConfigPath(dir)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("reading .env: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	cfg.AllowedOrigins = splitOrigins(cfg.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable
func (c Config) Validate() error {
	var errs []error
	switch c.Delivery {
	case DeliveryPush, DeliveryPoll:
	default:
		errs = append(errs, fmt.Errorf("DELIVERY must be %q or %q, got %q", DeliveryPush, DeliveryPoll, c.Delivery))
	}
	switch c.StorageType {
	case StorageMemory:
	case StorageRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL required when STORAGE_TYPE=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_TYPE must be %q or %q, got %q", StorageMemory, StorageRedis, c.StorageType))
	}
	switch c.ExpiryPolicy {
	case "empty_only", "evict":
	default:
		errs = append(errs, fmt.Errorf("EXPIRY_POLICY must be empty_only or evict, got %q", c.ExpiryPolicy))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT out of range: %d", c.Port))
	}
	if c.MaxPlayers < 2 {
		errs = append(errs, fmt.Errorf("MAX_PLAYERS must be at least 2, got %d", c.MaxPlayers))
	}
	for name, d := range map[string]time.Duration{
		"ROOM_TTL":          c.RoomTTL,
		"SWEEP_INTERVAL":    c.SweepInterval,
		"GAME_DURATION":     c.GameDuration,
		"OPERATION_TIMEOUT": c.OperationTimeout,
		"STORAGE_TIMEOUT":   c.StorageTimeout,
		"HEARTBEAT_TIMEOUT": c.HeartbeatTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	return errors.Join(errs...)
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info
func (c Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// splitOrigins accepts both repeated values and a single comma-separated one
func splitOrigins(in []string) []string {
	var out []string
	for _, v := range in {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				out = append(out, o)
			}
		}
	}
	return out
}
