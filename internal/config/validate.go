package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if err := c.Feed.validate(); err != nil {
		return err
	}

	if c.API.RestURL == "" {
		return errors.New("api.rest_url is required")
	}
	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}
	if !c.API.HasCredential() {
		return errors.New("api: one of token, token_path or email and password is required")
	}

	switch c.Watchlist.Source {
	case SourceAPI:
	case SourceStatic:
		if len(c.Watchlist.Tickers) == 0 {
			return errors.New("watchlist.tickers is required for the static source")
		}
	case SourcePostgres:
		if err := c.Database.validate("database"); err != nil {
			return err
		}
		if c.Watchlist.Owner == "" {
			return errors.New("watchlist.owner is required for the postgres source")
		}
	default:
		return fmt.Errorf("watchlist.source must be one of api, postgres, static, got %q", c.Watchlist.Source)
	}
	if c.Watchlist.RefreshInterval < 0 {
		return errors.New("watchlist.refresh_interval must be >= 0")
	}

	if c.Cache.Enabled && c.Cache.Addr == "" {
		return errors.New("cache.addr is required when the cache is enabled")
	}

	if c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be at most 65535, got %d", c.HTTP.Port)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// HasCredential reports whether a session token can be obtained.
func (a APIConfig) HasCredential() bool {
	return a.Token != "" || a.TokenPath != "" || (a.Email != "" && a.Password != "")
}

func (f *FeedConfig) validate() error {
	if f.WSURL == "" {
		return errors.New("feed.ws_url is required")
	}
	if !strings.HasPrefix(f.WSURL, "ws://") && !strings.HasPrefix(f.WSURL, "wss://") {
		return fmt.Errorf("feed.ws_url must use ws:// or wss://, got %q", f.WSURL)
	}
	if f.ReconnectInterval <= 0 {
		return errors.New("feed.reconnect_interval must be > 0")
	}
	if f.MaxReconnectAttempts < 0 {
		return errors.New("feed.max_reconnect_attempts must be >= 0")
	}
	if f.BufferSize < 1 {
		return errors.New("feed.buffer_size must be >= 1")
	}
	if f.FlashWindow <= 0 {
		return errors.New("feed.flash_window must be > 0")
	}
	switch strings.ToLower(f.EqualPolicy) {
	case "none", "down":
	default:
		return fmt.Errorf("feed.equal_policy must be none or down, got %q", f.EqualPolicy)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
