package factory

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mcoot/roommatch/internal/api"
	"github.com/mcoot/roommatch/internal/api/handler"
	"github.com/mcoot/roommatch/internal/api/socket"
	"github.com/mcoot/roommatch/internal/api/stream"
	"github.com/mcoot/roommatch/internal/config"
	"github.com/mcoot/roommatch/internal/dependencies/clock"
	"github.com/mcoot/roommatch/internal/dependencies/random"
	"github.com/mcoot/roommatch/internal/notify/poll"
	"github.com/mcoot/roommatch/internal/notify/push"
	"github.com/mcoot/roommatch/internal/services/directory"
	"github.com/mcoot/roommatch/internal/services/matchmaking"
	"github.com/mcoot/roommatch/internal/storage"
	"github.com/mcoot/roommatch/internal/storage/memory"
	redisstorage "github.com/mcoot/roommatch/internal/storage/redis"
)

// Storage type constants
const (
	StorageTypeMemory = config.StorageMemory
	StorageTypeRedis  = config.StorageRedis
)

// Delivery mode constants
const (
	DeliveryPush = config.DeliveryPush
	DeliveryPoll = config.DeliveryPoll
)

// App contains all wired application components
type App struct {
	// Storage
	Storage     storage.Storage
	StorageType string

	// External dependencies
	Clock  clock.Clock
	Random random.Random
	Logger *slog.Logger

	// Services
	Directory *directory.Directory
	Service   *matchmaking.Service

	// Delivery. Registry is set in push mode, PollNotifier in poll mode.
	Delivery     string
	Registry     *push.Registry
	PollNotifier *poll.Notifier
}

// Config holds configuration for the application factory
type Config struct {
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StorageType selects the storage backend ("memory" or "redis")
	// If empty, defaults to "memory"
	StorageType string
	// RedisConfig holds Redis connection settings (required if StorageType is "redis")
	RedisConfig *redisstorage.Config
	// Delivery selects how room events reach players ("push" or "poll")
	// If empty, defaults to "push"
	Delivery string

	// Component settings. Zero values fall back to each DefaultConfig.
	Directory   directory.Config
	Matchmaking matchmaking.Config
	Poll        poll.Config
}

// FromServerConfig maps the server configuration onto factory settings
func FromServerConfig(c config.Config, logger *slog.Logger) (Config, error) {
	policy, err := directory.ParseExpiryPolicy(c.ExpiryPolicy)
	if err != nil {
		return Config{}, err
	}

	dirCfg := directory.DefaultConfig()
	dirCfg.MaxPlayers = c.MaxPlayers
	dirCfg.RoomTTL = c.RoomTTL
	dirCfg.ExpiryPolicy = policy

	mmCfg := matchmaking.DefaultConfig()
	mmCfg.GameDuration = c.GameDuration
	mmCfg.OperationTimeout = c.OperationTimeout
	mmCfg.SweepInterval = c.SweepInterval

	pollCfg := poll.DefaultConfig()
	pollCfg.ReadTimeout = c.StorageTimeout
	pollCfg.WriteTimeout = c.StorageTimeout

	cfg := Config{
		Logger:      logger,
		StorageType: c.StorageType,
		Delivery:    c.Delivery,
		Directory:   dirCfg,
		Matchmaking: mmCfg,
		Poll:        pollCfg,
	}

	if c.StorageType == StorageTypeRedis {
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = c.RedisURL
		redisCfg.ReadTimeout = c.StorageTimeout
		redisCfg.WriteTimeout = c.StorageTimeout
		// Records outlive the directory TTL so the sweeper sees them expire first
		if ttl := 3 * c.RoomTTL; ttl > redisCfg.RoomTTL {
			redisCfg.RoomTTL = ttl
			redisCfg.StatusTTL = ttl
		}
		cfg.RedisConfig = &redisCfg
	}
	return cfg, nil
}

// New creates a new application with all dependencies wired
func New(cfg Config) (*App, error) {
	// Use no-op logger if not provided
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	// Create storage based on type
	var store storage.Storage
	storageType := cfg.StorageType
	if storageType == "" {
		storageType = StorageTypeMemory
	}

	switch storageType {
	case StorageTypeMemory:
		store = memory.New()
	case StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when StorageType is redis")
		}
		redisStore, err := redisstorage.New(*cfg.RedisConfig)
		if err != nil {
			return nil, err
		}
		store = redisStore
	default:
		return nil, errors.New("invalid StorageType: must be 'memory' or 'redis'")
	}

	cfg.StorageType = storageType
	return newWithDependencies(store, clock.New(), random.New(), cfg, logger)
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(store storage.Storage, clk clock.Clock, rnd random.Random, cfg Config, logger *slog.Logger) (*App, error) {
	if cfg.Directory.MaxPlayers == 0 {
		cfg.Directory = directory.DefaultConfig()
	}
	if cfg.Matchmaking.GameDuration == 0 {
		cfg.Matchmaking = matchmaking.DefaultConfig()
	}
	if cfg.Poll.WriteTimeout == 0 {
		cfg.Poll = poll.DefaultConfig()
	}
	if cfg.Delivery == "" {
		cfg.Delivery = DeliveryPush
	}
	if cfg.StorageType == "" {
		cfg.StorageType = StorageTypeMemory
	}

	app := &App{
		Storage:     store,
		StorageType: cfg.StorageType,
		Clock:       clk,
		Random:      rnd,
		Logger:      logger,
		Directory:   directory.New(store, clk, rnd, cfg.Directory, logger),
		Delivery:    cfg.Delivery,
	}

	var notifier matchmaking.Notifier
	var status matchmaking.StatusReader
	switch cfg.Delivery {
	case DeliveryPush:
		app.Registry = push.NewRegistry(clk, logger)
		notifier = push.NewNotifier(app.Registry, logger)
	case DeliveryPoll:
		app.PollNotifier = poll.New(store, clk, cfg.Poll, logger)
		notifier = app.PollNotifier
		status = app.PollNotifier
	default:
		return nil, fmt.Errorf("invalid Delivery %q: must be 'push' or 'poll'", cfg.Delivery)
	}

	app.Service = matchmaking.New(app.Directory, store, notifier, status, clk, rnd, cfg.Matchmaking, logger)
	return app, nil
}

// RouterConfig builds the API router configuration for this app
func (a *App) RouterConfig(c config.Config) api.RouterConfig {
	socketCfg := socket.DefaultConfig()
	if c.HeartbeatTimeout > 0 {
		socketCfg.HeartbeatTimeout = c.HeartbeatTimeout
	}
	socketCfg.DisconnectTimeout = a.Service.Config().OperationTimeout

	streamCfg := stream.DefaultConfig()
	streamCfg.DisconnectTimeout = a.Service.Config().OperationTimeout

	var pinger handler.Pinger
	if p, ok := a.Storage.(handler.Pinger); ok {
		pinger = p
	}

	return api.RouterConfig{
		Logger:         a.Logger,
		Service:        a.Service,
		Clock:          a.Clock,
		Random:         a.Random,
		Registry:       a.Registry,
		Socket:         socketCfg,
		Stream:         streamCfg,
		Delivery:       a.Delivery,
		StorageName:    a.StorageType,
		PollInterval:   c.PollInterval,
		Pinger:         pinger,
		RateLimit:      c.RateLimit,
		AllowedOrigins: c.AllowedOrigins,
	}
}

// Close stops timers, drops push connections and closes storage
func (a *App) Close() error {
	a.Service.Close()
	if a.Registry != nil {
		a.Registry.Close()
	}
	if closer, ok := a.Storage.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
