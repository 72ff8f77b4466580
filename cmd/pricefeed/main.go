// pricefeed streams live prices, reconciles them against the day's baseline
// and prints every change for the tickers on the user's watchlist.
//
// Usage: go run ./cmd/pricefeed --config configs/pricefeed.local.yaml [-register] [-subscribe TSLA] [-unsubscribe GOOG]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/pricefeed/internal/api"
	"github.com/rickgao/pricefeed/internal/cache"
	"github.com/rickgao/pricefeed/internal/config"
	"github.com/rickgao/pricefeed/internal/connection"
	"github.com/rickgao/pricefeed/internal/model"
	"github.com/rickgao/pricefeed/internal/poller"
	"github.com/rickgao/pricefeed/internal/prices"
	"github.com/rickgao/pricefeed/internal/router"
	"github.com/rickgao/pricefeed/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/pricefeed.local.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	var opts runOptions
	flag.BoolVar(&opts.register, "register", false, "register api.email/api.password as a new account before starting")
	flag.Var(&opts.subscribe, "subscribe", "add `TICKER` to the watchlist (repeatable, comma-separated)")
	flag.Var(&opts.unsubscribe, "unsubscribe", "remove `TICKER` from the watchlist (repeatable, comma-separated)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting pricefeed",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, opts, logger); err != nil {
		logger.Error("pricefeed stopped", "error", err)
		os.Exit(1)
	}

	logger.Info("pricefeed stopped")
}

// runOptions carries the one-shot account and watchlist actions given on the
// command line.
type runOptions struct {
	register    bool
	subscribe   tickerList
	unsubscribe tickerList
}

func run(ctx context.Context, cfg *config.Config, opts runOptions, logger *slog.Logger) error {
	apiClient := api.NewClient(
		cfg.API.RestURL,
		"",
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, time.Second),
		api.WithSupportedTickers(cfg.Watchlist.Supported),
	)

	creds, err := resolveCredentials(ctx, cfg.API, apiClient, opts.register, logger)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	logger.Info("using session token", "source", creds.Source, "token", creds.Redacted())

	// Watchlist
	backend, err := openWatchlist(ctx, cfg, apiClient, logger)
	if err != nil {
		return fmt.Errorf("watchlist: %w", err)
	}
	defer backend.close()

	watchlist := poller.New(poller.Config{
		Interval:    cfg.Watchlist.RefreshInterval,
		Concurrency: len(backend.sources),
		Timeout:     cfg.API.Timeout,
	}, backend.sources, nil, logger)

	if err := applyEdits(ctx, backend.editor, opts.subscribe, opts.unsubscribe, watchlist, logger); err != nil {
		return fmt.Errorf("watchlist: %w", err)
	}

	// Reconciler
	policy, err := prices.ParseEqualPolicy(cfg.Feed.EqualPolicy)
	if err != nil {
		return err
	}
	rec := prices.New(prices.Config{
		FlashWindow: cfg.Feed.FlashWindow,
		EqualPolicy: policy,
	}, logger)
	defer rec.Stop()

	// Connection Manager
	mgr := connection.NewManager(managerConfig(cfg.Feed, creds.Header()), logger)
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		mgr.Stop(shutdownCtx)
	}()

	states := mgr.WatchState()
	changes := rec.Subscribe()
	rec.Attach(mgr)

	var (
		mirror   *cache.Mirror
		mirrored *router.Queue[model.PriceChange]
	)
	if cfg.Cache.Enabled {
		mirror, err = cache.NewMirror(ctx, cache.Config{
			Addr:      cfg.Cache.Addr,
			Password:  cfg.Cache.Password,
			DB:        cfg.Cache.DB,
			TTL:       cfg.Cache.TTL,
			KeyPrefix: cfg.Cache.KeyPrefix,
		}, logger)
		if err != nil {
			return err
		}
		defer mirror.Close()
		mirrored = rec.Subscribe()
		logger.Info("redis mirror enabled", "addr", cfg.Cache.Addr)
	}

	if err := watchlist.Start(ctx); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		watchlist.Stop(shutdownCtx)
	}()

	logger.Info("connecting to price feed", "url", cfg.Feed.WSURL)
	connectCtx, connectCancel := context.WithTimeout(ctx, cfg.Feed.HandshakeTimeout)
	err = mgr.Connect(connectCtx, creds.Token)
	connectCancel()
	if err != nil {
		return fmt.Errorf("connect to %s: %w", cfg.Feed.WSURL, err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return superviseConnection(gctx, states, logger)
	})

	con := newConsole(os.Stdout, rec, watchlist)
	g.Go(func() error {
		return con.Run(gctx, changes)
	})

	if mirror != nil {
		g.Go(func() error {
			return mirror.Run(gctx, mirrored)
		})
	}

	if cfg.HTTP.Port > 0 {
		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
			Handler:           newStatusHandler(mgr, rec, watchlist),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("starting status server", "port", cfg.HTTP.Port)
			if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("status server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	logger.Info("pricefeed running", "watchlist_source", cfg.Watchlist.Source)

	err = g.Wait()
	logger.Info("shutting down...")
	return err
}

func managerConfig(feed config.FeedConfig, header http.Header) connection.ManagerConfig {
	return connection.ManagerConfig{
		Client: connection.ClientConfig{
			URL:              feed.WSURL,
			Header:           header,
			HandshakeTimeout: feed.HandshakeTimeout,
			PingInterval:     feed.PingInterval,
			PingTimeout:      feed.PingTimeout,
			WriteTimeout:     feed.WriteTimeout,
			BufferSize:       feed.BufferSize,
		},
		ReconnectInterval:    feed.ReconnectInterval,
		MaxReconnectAttempts: feed.MaxReconnectAttempts,
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
