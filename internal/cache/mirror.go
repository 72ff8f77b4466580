package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rickgao/pricefeed/internal/model"
	"github.com/rickgao/pricefeed/internal/router"
)

// ErrNotFound is returned by Latest when no entry is cached for a ticker.
var ErrNotFound = errors.New("no cached price")

const (
	latestKey     = "latest:"
	channelPrefix = "prices."
)

// Config configures a Mirror.
type Config struct {
	Addr      string
	Password  string
	DB        int
	TTL       time.Duration
	KeyPrefix string
}

// Entry is the cached state of one ticker.
type Entry struct {
	Ticker    string          `json:"ticker"`
	Price     float64         `json:"price"`
	Direction model.Direction `json:"direction"`
	Batch     uint64          `json:"batch"`
	UpdatedAt int64           `json:"updated_at"` // µs since epoch
}

// store is the subset of Redis the mirror needs.
type store interface {
	// SetAndPublish stores value under key and publishes it on channel in
	// one round trip.
	SetAndPublish(ctx context.Context, key, channel string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Ping(ctx context.Context) error
	Close() error
}

// redisStore adapts *redis.Client to store.
type redisStore struct {
	client *redis.Client
}

func (r redisStore) SetAndPublish(ctx context.Context, key, channel string, value []byte, ttl time.Duration) error {
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, key, value, ttl)
	pipe.Publish(ctx, channel, value)
	_, err := pipe.Exec(ctx)
	return err
}

func (r redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return data, err
}

func (r redisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r redisStore) Close() error {
	return r.client.Close()
}

// Stats contains runtime statistics.
type Stats struct {
	Written int64
	Errors  int64
}

// Mirror copies reconciler change events into Redis.
type Mirror struct {
	cfg    Config
	store  store
	logger *slog.Logger

	// Only touched by the Run goroutine; read after Run returns.
	stats Stats
}

// NewMirror connects to Redis and verifies the connection.
func NewMirror(ctx context.Context, cfg Config, logger *slog.Logger) (*Mirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	m := newMirror(redisStore{client: client}, cfg, logger)
	if err := m.store.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", cfg.Addr, err)
	}
	return m, nil
}

func newMirror(s store, cfg Config, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{cfg: cfg, store: s, logger: logger}
}

// Run writes every event from q until q is closed or ctx is done. Redis
// errors are logged and counted, never fatal.
func (m *Mirror) Run(ctx context.Context, q *router.Queue[model.PriceChange]) error {
	m.logger.Info("redis mirror started", "addr", m.cfg.Addr, "ttl", m.cfg.TTL)

	for {
		change, err := q.Receive(ctx)
		if err != nil {
			if errors.Is(err, router.ErrQueueClosed) || ctx.Err() != nil {
				m.logger.Info("redis mirror stopped",
					"written", m.stats.Written,
					"errors", m.stats.Errors,
				)
				return nil
			}
			return err
		}

		if err := m.Write(ctx, change); err != nil {
			m.stats.Errors++
			m.logger.Warn("failed to mirror price", "ticker", change.Ticker, "error", err)
		}
	}
}

// Write stores one change as the ticker's latest entry and publishes it.
func (m *Mirror) Write(ctx context.Context, c model.PriceChange) error {
	entry := Entry{
		Ticker:    c.Ticker,
		Price:     c.Price,
		Direction: c.Direction,
		Batch:     c.Batch,
		UpdatedAt: c.ReceivedAt,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	if err := m.store.SetAndPublish(ctx, m.LatestKey(c.Ticker), m.Channel(c.Ticker), data, m.cfg.TTL); err != nil {
		return fmt.Errorf("mirror %s: %w", c.Ticker, err)
	}
	m.stats.Written++
	return nil
}

// Latest returns the cached entry for ticker, or ErrNotFound.
func (m *Mirror) Latest(ctx context.Context, ticker string) (*Entry, error) {
	data, err := m.store.Get(ctx, m.LatestKey(ticker))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get latest price: %w", err)
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshal entry: %w", err)
	}
	return &e, nil
}

// LatestKey returns the key holding ticker's latest entry.
func (m *Mirror) LatestKey(ticker string) string {
	return m.cfg.KeyPrefix + latestKey + ticker
}

// Channel returns the pub/sub channel for ticker.
func (m *Mirror) Channel(ticker string) string {
	return m.cfg.KeyPrefix + channelPrefix + ticker
}

// Stats returns counters. Only meaningful once Run has returned, or when Run
// is not used.
func (m *Mirror) Stats() Stats {
	return m.stats
}

// Close closes the Redis connection.
func (m *Mirror) Close() error {
	return m.store.Close()
}
