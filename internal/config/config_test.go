package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
feed:
  ws_url: ws://feed.example:5000
  reconnect_interval: 2s
  flash_window: 750ms
  equal_policy: down
api:
  rest_url: http://feed.example:5000/api
  email: trader@example.com
  password: hunter2
watchlist:
  source: static
  tickers: [GOOG, NVDA]
cache:
  enabled: true
  addr: redis:6379
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Feed.WSURL != "ws://feed.example:5000" {
		t.Errorf("Feed.WSURL = %q, want %q", cfg.Feed.WSURL, "ws://feed.example:5000")
	}
	if cfg.Feed.ReconnectInterval != 2*time.Second {
		t.Errorf("Feed.ReconnectInterval = %v, want 2s", cfg.Feed.ReconnectInterval)
	}
	if cfg.Feed.FlashWindow != 750*time.Millisecond {
		t.Errorf("Feed.FlashWindow = %v, want 750ms", cfg.Feed.FlashWindow)
	}
	if cfg.Feed.EqualPolicy != "down" {
		t.Errorf("Feed.EqualPolicy = %q, want down", cfg.Feed.EqualPolicy)
	}
	if cfg.API.Email != "trader@example.com" {
		t.Errorf("API.Email = %q", cfg.API.Email)
	}
	if len(cfg.Watchlist.Tickers) != 2 || cfg.Watchlist.Tickers[1] != "NVDA" {
		t.Errorf("Watchlist.Tickers = %v", cfg.Watchlist.Tickers)
	}
	if !cfg.Cache.Enabled || cfg.Cache.Addr != "redis:6379" {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_FEED_PASSWORD", "secret123")

	yaml := `
api:
  email: trader@example.com
  password: ${TEST_FEED_PASSWORD}
database:
  host: localhost
  name: pricefeed
  user: feed
  password: ${TEST_FEED_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.API.Password != "secret123" {
		t.Errorf("API.Password = %q, want %q", cfg.API.Password, "secret123")
	}
	if cfg.Database.Password != "secret123" {
		t.Errorf("Database.Password = %q, want %q", cfg.Database.Password, "secret123")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PRICEFEED_TOKEN", "env-token")
	t.Setenv("PRICEFEED_WS_URL", "wss://override.example")
	t.Setenv("PRICEFEED_LOG_LEVEL", "debug")

	yaml := `
feed:
  ws_url: ws://file.example
api:
  token: file-token
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.API.Token != "env-token" {
		t.Errorf("API.Token = %q, want env-token", cfg.API.Token)
	}
	if cfg.Feed.WSURL != "wss://override.example" {
		t.Errorf("Feed.WSURL = %q, want wss://override.example", cfg.Feed.WSURL)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadDotEnvNextToConfig(t *testing.T) {
	const key = "PRICEFEED_TEST_DOTENV_SECRET"
	t.Cleanup(func() { os.Unsetenv(key) })

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(key+"=from-dotenv\n"), 0644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("api:\n  token: ${"+key+"}\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.API.Token != "from-dotenv" {
		t.Errorf("API.Token = %q, want from-dotenv", cfg.API.Token)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
api:
  token: abc
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.Feed.WSURL != DefaultWSURL {
		t.Errorf("Feed.WSURL = %q, want default %q", cfg.Feed.WSURL, DefaultWSURL)
	}
	if cfg.Feed.ReconnectInterval != DefaultReconnectInterval {
		t.Errorf("Feed.ReconnectInterval = %v, want default %v", cfg.Feed.ReconnectInterval, DefaultReconnectInterval)
	}
	if cfg.Feed.MaxReconnectAttempts != DefaultMaxReconnectAttempts {
		t.Errorf("Feed.MaxReconnectAttempts = %d, want default %d", cfg.Feed.MaxReconnectAttempts, DefaultMaxReconnectAttempts)
	}
	if cfg.Feed.FlashWindow != DefaultFlashWindow {
		t.Errorf("Feed.FlashWindow = %v, want default %v", cfg.Feed.FlashWindow, DefaultFlashWindow)
	}
	if cfg.API.RestURL != DefaultRestURL {
		t.Errorf("API.RestURL = %q, want default %q", cfg.API.RestURL, DefaultRestURL)
	}
	if cfg.Watchlist.Source != SourceAPI {
		t.Errorf("Watchlist.Source = %q, want %q", cfg.Watchlist.Source, SourceAPI)
	}
	if len(cfg.Watchlist.Supported) != 5 {
		t.Errorf("Watchlist.Supported = %v, want the five default tickers", cfg.Watchlist.Supported)
	}
	if cfg.Database.Port != DefaultDBPort {
		t.Errorf("Database.Port = %d, want default %d", cfg.Database.Port, DefaultDBPort)
	}
	if cfg.Cache.TTL != DefaultCacheTTL {
		t.Errorf("Cache.TTL = %v, want default %v", cfg.Cache.TTL, DefaultCacheTTL)
	}
	if cfg.HTTP.Port != DefaultHTTPPort {
		t.Errorf("HTTP.Port = %d, want default %d", cfg.HTTP.Port, DefaultHTTPPort)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults with a token should validate: %v", err)
	}
}

func validConfig() Config {
	cfg := Config{API: APIConfig{Token: "tok"}}
	cfg.applyDefaults()
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: "",
		},
		{
			name:    "non websocket feed url",
			mutate:  func(c *Config) { c.Feed.WSURL = "http://localhost:5000" },
			wantErr: `feed.ws_url must use ws:// or wss://, got "http://localhost:5000"`,
		},
		{
			name:    "bad equal policy",
			mutate:  func(c *Config) { c.Feed.EqualPolicy = "up" },
			wantErr: `feed.equal_policy must be none or down, got "up"`,
		},
		{
			name:    "negative flash window",
			mutate:  func(c *Config) { c.Feed.FlashWindow = -time.Second },
			wantErr: "feed.flash_window must be > 0",
		},
		{
			name:    "no credential",
			mutate:  func(c *Config) { c.API.Token = "" },
			wantErr: "api: one of token, token_path or email and password is required",
		},
		{
			name: "email without password",
			mutate: func(c *Config) {
				c.API.Token = ""
				c.API.Email = "trader@example.com"
			},
			wantErr: "api: one of token, token_path or email and password is required",
		},
		{
			name:    "static source without tickers",
			mutate:  func(c *Config) { c.Watchlist.Source = SourceStatic },
			wantErr: "watchlist.tickers is required for the static source",
		},
		{
			name:    "unknown source",
			mutate:  func(c *Config) { c.Watchlist.Source = "kafka" },
			wantErr: `watchlist.source must be one of api, postgres, static, got "kafka"`,
		},
		{
			name:    "postgres source without host",
			mutate:  func(c *Config) { c.Watchlist.Source = SourcePostgres },
			wantErr: "database.host is required",
		},
		{
			name: "min_conns exceeds max_conns",
			mutate: func(c *Config) {
				c.Watchlist.Source = SourcePostgres
				c.Database = DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 5, MinConns: 10}
			},
			wantErr: "database.min_conns (10) cannot exceed max_conns (5)",
		},
		{
			name: "postgres source without owner",
			mutate: func(c *Config) {
				c.Watchlist.Source = SourcePostgres
				c.Database = DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 5, MinConns: 1}
			},
			wantErr: "watchlist.owner is required for the postgres source",
		},
		{
			name: "cache enabled without addr",
			mutate: func(c *Config) {
				c.Cache.Enabled = true
				c.Cache.Addr = ""
			},
			wantErr: "cache.addr is required when the cache is enabled",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: `logging.format must be text or json, got "xml"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func TestLoadAndValidate(t *testing.T) {
	path := writeTempFile(t, "feed:\n  ws_url: https://wrong\napi:\n  token: abc\n")

	if _, err := LoadAndValidate(path); err == nil {
		t.Error("expected validation error")
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
