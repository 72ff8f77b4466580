package config

import (
	"time"

	"github.com/rickgao/pricefeed/internal/model"
)

// Default values for optional configuration fields.
const (
	DefaultWSURL                = "ws://localhost:5000"
	DefaultRestURL              = "http://localhost:5000/api"
	DefaultReconnectInterval    = 3 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultHandshakeTimeout     = 10 * time.Second
	DefaultPingInterval         = 30 * time.Second
	DefaultPingTimeout          = 90 * time.Second
	DefaultWriteTimeout         = 5 * time.Second
	DefaultBufferSize           = 1000
	DefaultFlashWindow          = 500 * time.Millisecond
	DefaultEqualPolicy          = "none"
	DefaultAPITimeout           = 30 * time.Second
	DefaultMaxRetries           = 3
	DefaultWatchlistSource      = SourceAPI
	DefaultRefreshInterval      = 30 * time.Second
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 10
	DefaultMinConns             = 2
	DefaultCacheAddr            = "localhost:6379"
	DefaultCacheTTL             = time.Hour
	DefaultCacheKeyPrefix       = "pricefeed:"
	DefaultHTTPPort             = 8080
	DefaultLogLevel             = "info"
	DefaultLogFormat            = "text"
)

// Watchlist sources.
const (
	SourceAPI      = "api"
	SourcePostgres = "postgres"
	SourceStatic   = "static"
)

func (c *Config) applyDefaults() {
	// Feed defaults
	if c.Feed.WSURL == "" {
		c.Feed.WSURL = DefaultWSURL
	}
	if c.Feed.ReconnectInterval == 0 {
		c.Feed.ReconnectInterval = DefaultReconnectInterval
	}
	if c.Feed.MaxReconnectAttempts == 0 {
		c.Feed.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Feed.HandshakeTimeout == 0 {
		c.Feed.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Feed.PingInterval == 0 {
		c.Feed.PingInterval = DefaultPingInterval
	}
	if c.Feed.PingTimeout == 0 {
		c.Feed.PingTimeout = DefaultPingTimeout
	}
	if c.Feed.WriteTimeout == 0 {
		c.Feed.WriteTimeout = DefaultWriteTimeout
	}
	if c.Feed.BufferSize == 0 {
		c.Feed.BufferSize = DefaultBufferSize
	}
	if c.Feed.FlashWindow == 0 {
		c.Feed.FlashWindow = DefaultFlashWindow
	}
	if c.Feed.EqualPolicy == "" {
		c.Feed.EqualPolicy = DefaultEqualPolicy
	}

	// API defaults
	if c.API.RestURL == "" {
		c.API.RestURL = DefaultRestURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}

	// Watchlist defaults
	if c.Watchlist.Source == "" {
		c.Watchlist.Source = DefaultWatchlistSource
	}
	if len(c.Watchlist.Supported) == 0 {
		c.Watchlist.Supported = append([]string(nil), model.DefaultTickers...)
	}
	if c.Watchlist.Owner == "" {
		c.Watchlist.Owner = c.API.Email
	}
	if c.Watchlist.RefreshInterval == 0 {
		c.Watchlist.RefreshInterval = DefaultRefreshInterval
	}

	// Database defaults
	applyDBDefaults(&c.Database)

	// Cache defaults
	if c.Cache.Addr == "" {
		c.Cache.Addr = DefaultCacheAddr
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = DefaultCacheTTL
	}
	if c.Cache.KeyPrefix == "" {
		c.Cache.KeyPrefix = DefaultCacheKeyPrefix
	}

	// HTTP defaults
	if c.HTTP.Port == 0 {
		c.HTTP.Port = DefaultHTTPPort
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
