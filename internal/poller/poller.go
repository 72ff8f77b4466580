package poller

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/pricefeed/internal/model"
)

// Source provides the tickers a user subscribes to.
type Source interface {
	ListSubscriptions(ctx context.Context) ([]model.Subscription, error)
}

// SourceFunc is a function adapter for Source.
type SourceFunc func(ctx context.Context) ([]model.Subscription, error)

func (f SourceFunc) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	return f(ctx)
}

// Static returns a Source that always yields tickers.
func Static(tickers ...string) Source {
	subs := make([]model.Subscription, 0, len(tickers))
	for _, t := range tickers {
		subs = append(subs, model.Subscription{Ticker: t, Source: "static"})
	}
	return SourceFunc(func(context.Context) ([]model.Subscription, error) {
		return subs, nil
	})
}

// ChangeHandler receives the new watchlist whenever it changes.
type ChangeHandler interface {
	HandleWatchlist(tickers []string)
}

// ChangeHandlerFunc is a function adapter for ChangeHandler.
type ChangeHandlerFunc func([]string)

func (f ChangeHandlerFunc) HandleWatchlist(tickers []string) {
	f(tickers)
}

// Config holds poller configuration.
type Config struct {
	Interval    time.Duration // Refresh interval (default: 30s)
	Concurrency int           // Max sources queried at once (default: 4)
	Timeout     time.Duration // Per-source timeout (default: 10s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    30 * time.Second,
		Concurrency: 4,
		Timeout:     10 * time.Second,
	}
}

// Stats contains runtime statistics.
type Stats struct {
	Refreshes int64
	Failures  int64
	Changes   int64
	Tickers   int
}

// Poller periodically refreshes the watchlist from its sources.
type Poller struct {
	cfg     Config
	sources map[string]Source
	handler ChangeHandler
	logger  *slog.Logger

	mu      sync.RWMutex
	tickers []string
	set     map[string]bool
	loaded  bool
	stats   Stats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller. sources is keyed by a name used in logs.
func New(cfg Config, sources map[string]Source, handler ChangeHandler, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Poller{
		cfg:     cfg,
		sources: sources,
		handler: handler,
		logger:  logger,
		set:     make(map[string]bool),
	}
}

// Start begins the refresh loop. The first refresh runs immediately.
func (p *Poller) Start(ctx context.Context) error {
	if len(p.sources) == 0 {
		return fmt.Errorf("poller has no sources")
	}
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("watchlist poller started",
		"interval", p.cfg.Interval,
		"sources", len(p.sources),
	)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("watchlist poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.refreshLogged()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.refreshLogged()
		}
	}
}

func (p *Poller) refreshLogged() {
	if err := p.Refresh(p.ctx); err != nil && p.ctx.Err() == nil {
		p.logger.Warn("watchlist refresh failed, keeping previous list", "error", err)
	}
}

// Refresh queries every source and replaces the watchlist with the union of
// their tickers. If any source fails the watchlist is left unchanged.
func (p *Poller) Refresh(ctx context.Context) error {
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)

	var mu sync.Mutex
	var all []model.Subscription

	for name, src := range p.sources {
		g.Go(func() error {
			subs, err := p.fetch(gctx, src)
			if err != nil {
				return fmt.Errorf("source %s: %w", name, err)
			}
			mu.Lock()
			all = append(all, subs...)
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()

	p.mu.Lock()
	p.stats.Refreshes++
	if err != nil {
		p.stats.Failures++
		p.mu.Unlock()
		return err
	}
	tickers := Merge(all)
	changed := !p.loaded || !slices.Equal(tickers, p.tickers)
	if changed {
		p.tickers = tickers
		p.set = make(map[string]bool, len(tickers))
		for _, t := range tickers {
			p.set[t] = true
		}
		p.loaded = true
		p.stats.Changes++
	}
	p.stats.Tickers = len(p.tickers)
	p.mu.Unlock()

	p.logger.Debug("watchlist refresh complete",
		"tickers", len(tickers),
		"changed", changed,
		"duration", time.Since(start),
	)

	if changed {
		p.logger.Info("watchlist updated", "tickers", tickers)
		if p.handler != nil {
			p.handler.HandleWatchlist(slices.Clone(tickers))
		}
	}
	return nil
}

func (p *Poller) fetch(ctx context.Context, src Source) ([]model.Subscription, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	return src.ListSubscriptions(ctx)
}

// Tickers returns the current watchlist, sorted.
func (p *Poller) Tickers() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.tickers)
}

// Contains reports whether ticker is on the watchlist.
func (p *Poller) Contains(ticker string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.set[ticker]
}

// Loaded reports whether at least one refresh has succeeded.
func (p *Poller) Loaded() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loaded
}

// Stats returns current statistics.
func (p *Poller) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats
}

// Merge returns the sorted, de-duplicated tickers of subs. Blank tickers are
// dropped.
func Merge(subs []model.Subscription) []string {
	seen := make(map[string]bool, len(subs))
	out := make([]string, 0, len(subs))
	for _, s := range subs {
		if s.Ticker == "" || seen[s.Ticker] {
			continue
		}
		seen[s.Ticker] = true
		out = append(out, s.Ticker)
	}
	slices.Sort(out)
	return out
}
