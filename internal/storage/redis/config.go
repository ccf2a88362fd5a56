package redis

import "time"

// Config holds Redis connection and behavior settings
type Config struct {
	// URL is the Redis connection URL (e.g., redis://localhost:6379)
	URL string

	// Pool settings
	PoolSize     int
	MinIdleConns int

	// Network timeouts. Exceeding any of them surfaces as model.ErrStorageTimeout.
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// TTL settings, refreshed on every write
	RoomTTL   time.Duration
	StatusTTL time.Duration

	// MaxTxRetries bounds optimistic transaction retries on a contended room
	MaxTxRetries int
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		URL:          "redis://localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		RoomTTL:      30 * time.Minute,
		StatusTTL:    30 * time.Minute,
		MaxTxRetries: 16,
	}
}
