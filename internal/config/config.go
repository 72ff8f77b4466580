package config

import "time"

// Config is the root configuration for a pricefeed instance.
type Config struct {
	Feed      FeedConfig      `yaml:"feed"`
	API       APIConfig       `yaml:"api"`
	Watchlist WatchlistConfig `yaml:"watchlist"`
	Database  DBConfig        `yaml:"database"`
	Cache     CacheConfig     `yaml:"cache"`
	HTTP      HTTPConfig      `yaml:"http"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// FeedConfig holds the streaming connection and reconciler settings.
type FeedConfig struct {
	WSURL                string        `yaml:"ws_url"`
	ReconnectInterval    time.Duration `yaml:"reconnect_interval"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	HandshakeTimeout     time.Duration `yaml:"handshake_timeout"`
	PingInterval         time.Duration `yaml:"ping_interval"`
	PingTimeout          time.Duration `yaml:"ping_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	BufferSize           int           `yaml:"buffer_size"`
	FlashWindow          time.Duration `yaml:"flash_window"` // How long an up/down flag stays set
	EqualPolicy          string        `yaml:"equal_policy"` // "none" or "down"
}

// APIConfig holds REST session settings.
type APIConfig struct {
	RestURL    string        `yaml:"rest_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	Email      string        `yaml:"email"`
	Password   string        `yaml:"password"`
	Token      string        `yaml:"token"`      // Pre-issued session token; skips login
	TokenPath  string        `yaml:"token_path"` // File holding a session token
}

// WatchlistConfig selects where the subscribed tickers come from.
type WatchlistConfig struct {
	Source          string        `yaml:"source"`    // "api", "postgres" or "static"
	Tickers         []string      `yaml:"tickers"`   // Static list, also merged into other sources
	Supported       []string      `yaml:"supported"` // Tickers the feed server can price
	Owner           string        `yaml:"owner"`     // Row owner for the postgres source; defaults to api.email
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// CacheConfig holds the Redis mirror settings.
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	TTL       time.Duration `yaml:"ttl"`
	KeyPrefix string        `yaml:"key_prefix"`
}

// HTTPConfig holds the status server settings. A negative port disables the
// server.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds slog handler settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
