package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

type rawConfig struct {
	// Database configuration
	Storage    string `long:"storage" env:"STORAGE" default:"postgres" choice:"postgres" choice:"memory" description:"Persistence backend"`
	DBHost     string `long:"db-host" env:"DB_HOST" default:"localhost" description:"Database host"`
	DBPort     string `long:"db-port" env:"DB_PORT" default:"5432" description:"Database port"`
	DBUser     string `long:"db-user" env:"DB_USER" default:"postgres" description:"Database user"`
	DBPassword string `long:"db-password" env:"DB_PASSWORD" description:"Database password"`
	DBName     string `long:"db-name" env:"DB_NAME" default:"reddit_clone" description:"Database name"`
	DBSSLMode  string `long:"db-sslmode" env:"DB_SSLMODE" default:"disable" description:"Database sslmode"`
	DBRetries  int    `long:"db-retry-attempts" env:"DB_RETRY_ATTEMPTS" default:"4" description:"Attempts per store operation on transient database errors"`

	// HTTP
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	JWTSecret    string `long:"jwt-secret" env:"JWT_SECRET" description:"HS256 secret used to verify access tokens"`
	CursorSecret string `long:"cursor-secret" env:"CURSOR_SECRET" description:"HS256 secret used to sign feed cursors (defaults to JWT secret)"`

	// Feed cache
	CacheBackend string        `long:"cache-backend" env:"CACHE_BACKEND" default:"lru" choice:"lru" choice:"redis" choice:"none" description:"Feed materializer backend"`
	CacheSize    int           `long:"cache-size" env:"CACHE_SIZE" default:"2048" description:"Max feed snapshots kept in the LRU backend"`
	CacheTTL     time.Duration `long:"cache-ttl" env:"CACHE_TTL" default:"5m" description:"Snapshot TTL backstop"`
	RedisAddr    string        `long:"redis-addr" env:"REDIS_ADDR" default:"localhost:6379" description:"Redis address for the redis backend"`

	// Feed aggregation
	FeedSourceCeiling int           `long:"feed-source-ceiling" env:"FEED_SOURCE_CEILING" default:"200" description:"Max posts fetched per source"`
	FeedFanout        int           `long:"feed-fanout" env:"FEED_FANOUT" default:"8" description:"Concurrent source fetches per feed request"`
	FeedSourceTimeout time.Duration `long:"feed-source-timeout" env:"FEED_SOURCE_TIMEOUT" default:"2s" description:"Timeout for a single source fetch"`
	FeedMaxInflight   int64         `long:"feed-max-inflight" env:"FEED_MAX_INFLIGHT" default:"64" description:"Max source fetches in flight across all requests"`

	// Ledger / comments
	VoteMaxAttempts int `long:"vote-max-attempts" env:"VOTE_MAX_ATTEMPTS" default:"3" description:"Attempts before a vote conflict is surfaced"`
	MaxTreeDepth    int `long:"max-tree-depth" env:"MAX_TREE_DEPTH" default:"64" description:"Comment tree traversal cap"`

	Debug bool `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

type Config struct {
	Storage string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	DBRetries  int

	Port         string
	JWTSecret    string
	CursorSecret string

	CacheBackend string
	CacheSize    int
	CacheTTL     time.Duration
	RedisAddr    string

	FeedSourceCeiling int
	FeedFanout        int
	FeedSourceTimeout time.Duration
	FeedMaxInflight   int64

	VoteMaxAttempts int
	MaxTreeDepth    int

	Debug bool
}

// ErrHelp is returned when --help was requested.
var ErrHelp = errors.New("help requested")

// Load reads .env files (if any) and parses the process arguments.
func Load() (*Config, error) {
	loadDotEnv()
	return Parse(os.Args[1:])
}

// Parse builds a Config from args, falling back to the environment and defaults.
func Parse(args []string) (*Config, error) {
	var raw rawConfig

	parser := flags.NewParser(&raw, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			parser.WriteHelp(os.Stdout)
			return nil, ErrHelp
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Config{
		Storage:           raw.Storage,
		DBHost:            raw.DBHost,
		DBPort:            raw.DBPort,
		DBUser:            raw.DBUser,
		DBPassword:        raw.DBPassword,
		DBName:            raw.DBName,
		DBSSLMode:         raw.DBSSLMode,
		DBRetries:         raw.DBRetries,
		Port:              raw.Port,
		JWTSecret:         raw.JWTSecret,
		CursorSecret:      raw.CursorSecret,
		CacheBackend:      raw.CacheBackend,
		CacheSize:         raw.CacheSize,
		CacheTTL:          raw.CacheTTL,
		RedisAddr:         raw.RedisAddr,
		FeedSourceCeiling: raw.FeedSourceCeiling,
		FeedFanout:        raw.FeedFanout,
		FeedSourceTimeout: raw.FeedSourceTimeout,
		FeedMaxInflight:   raw.FeedMaxInflight,
		VoteMaxAttempts:   raw.VoteMaxAttempts,
		MaxTreeDepth:      raw.MaxTreeDepth,
		Debug:             raw.Debug,
	}

	if cfg.CursorSecret == "" {
		cfg.CursorSecret = cfg.JWTSecret
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.Storage == "postgres" && c.DBPassword == "" {
		return errors.New("DB_PASSWORD is required for postgres storage")
	}
	if c.CacheSize < 1 {
		return fmt.Errorf("cache size must be positive, got %d", c.CacheSize)
	}
	if c.FeedSourceCeiling < 1 || c.FeedFanout < 1 || c.FeedMaxInflight < 1 {
		return errors.New("feed ceiling, fanout and max inflight must be positive")
	}
	if c.DBRetries < 1 {
		return fmt.Errorf("db retry attempts must be positive, got %d", c.DBRetries)
	}
	if c.VoteMaxAttempts < 1 {
		return fmt.Errorf("vote max attempts must be positive, got %d", c.VoteMaxAttempts)
	}
	return nil
}

// DSN returns the postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode,
	)
}

// loadDotEnv tries common .env locations; a missing file is not an error.
func loadDotEnv() {
	for _, path := range []string{".env", "../.env", "../../.env"} {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}
