// streamtest connects to the price feed and prints every decoded frame.
// Usage: go run ./cmd/streamtest --config configs/pricefeed.local.yaml
//
// A session token is taken from the config (api.token or api.token_path) or
// from the environment:
//
//	PRICEFEED_TOKEN - session token issued by /auth/login
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/rickgao/pricefeed/internal/auth"
	"github.com/rickgao/pricefeed/internal/config"
	"github.com/rickgao/pricefeed/internal/connection"
	"github.com/rickgao/pricefeed/internal/router"
)

func main() {
	configPath := flag.String("config", "configs/pricefeed.example.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "print full message JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Load config
	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	creds, err := auth.LoadCredentials(cfg.API.Token, cfg.API.TokenPath)
	if err != nil {
		logger.Error("session token required",
			"error", err,
			"token_set", cfg.API.Token != "",
			"token_path_set", cfg.API.TokenPath != "",
		)
		logger.Info("Set api.token in the config or the PRICEFEED_TOKEN environment variable")
		os.Exit(1)
	}
	logger.Info("using session token", "source", creds.Source, "token", creds.Redacted())

	connCfg := connection.DefaultManagerConfig()
	connCfg.Client.URL = cfg.Feed.WSURL
	connCfg.Client.Header = creds.Header()
	connCfg.ReconnectInterval = cfg.Feed.ReconnectInterval
	connCfg.MaxReconnectAttempts = cfg.Feed.MaxReconnectAttempts

	connMgr := connection.NewManager(connCfg, logger)

	states := connMgr.WatchState()
	go printStates(ctx, states)

	connMgr.On(router.TypeAuthSuccess, func(msg router.Message) {
		fmt.Printf("[AUTH_SUCCESS] at=%s\n", msg.(router.AuthSuccess).ReceivedAt.Format(time.RFC3339Nano))
	})
	connMgr.On(router.TypeInitialPrices, func(msg router.Message) {
		printPrices("INITIAL_PRICES", msg.(router.InitialPrices).Prices, *verbose)
	})
	connMgr.On(router.TypePriceUpdate, func(msg router.Message) {
		printPrices("PRICE_UPDATE", msg.(router.PriceUpdate).Prices, *verbose)
	})

	logger.Info("connecting", "url", cfg.Feed.WSURL)
	connectCtx, connectCancel := context.WithTimeout(ctx, cfg.Feed.HandshakeTimeout)
	err = connMgr.Connect(connectCtx, creds.Token)
	connectCancel()
	if err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := connMgr.Stats()
				logger.Info("stats",
					"state", stats.State,
					"session_id", stats.SessionID,
					"reconnects", stats.Reconnects,
					"received", stats.Bus.MessagesReceived,
					"routed", stats.Bus.MessagesRouted,
					"parse_errors", stats.Bus.ParseErrors,
					"unrouted", stats.Bus.Unrouted,
					"stale_drops", stats.StaleDrops,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	// Wait for shutdown
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	connMgr.Stop(shutdownCtx)

	logger.Info("shutdown complete")
}

func printStates(ctx context.Context, q *router.Queue[connection.StateChange]) {
	for {
		sc, err := q.Receive(ctx)
		if err != nil {
			return
		}
		if sc.Err != nil {
			fmt.Printf("[STATE] %s -> %s attempts=%d err=%v\n", sc.From, sc.To, sc.Attempts, sc.Err)
			continue
		}
		fmt.Printf("[STATE] %s -> %s attempts=%d\n", sc.From, sc.To, sc.Attempts)
	}
}

func printPrices(kind string, prices map[string]float64, verbose bool) {
	if verbose {
		data, _ := json.MarshalIndent(prices, "", "  ")
		fmt.Printf("[%s] %s\n", kind, data)
		return
	}

	tickers := make([]string, 0, len(prices))
	for t := range prices {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	fmt.Printf("[%s] tickers=%d", kind, len(tickers))
	for _, t := range tickers {
		fmt.Printf(" %s=%.2f", t, prices[t])
	}
	fmt.Println()
}
