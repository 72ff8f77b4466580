package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rickgao/pricefeed/internal/api"
	"github.com/rickgao/pricefeed/internal/config"
	"github.com/rickgao/pricefeed/internal/database"
	"github.com/rickgao/pricefeed/internal/model"
	"github.com/rickgao/pricefeed/internal/poller"
)

var errStaticWatchlist = errors.New("the static watchlist source cannot be edited; change watchlist.tickers instead")

// tickerList is a repeatable flag taking one or more comma-separated tickers.
type tickerList []string

func (l *tickerList) String() string {
	return strings.Join(*l, ",")
}

func (l *tickerList) Set(v string) error {
	for _, t := range strings.Split(v, ",") {
		if t = api.NormalizeTicker(t); t != "" {
			*l = append(*l, t)
		}
	}
	return nil
}

// watchlistEditor adds and removes tickers on the configured source.
type watchlistEditor interface {
	Subscribe(ctx context.Context, ticker string) error
	Unsubscribe(ctx context.Context, ticker string) error
}

// apiEditor edits the server-side watchlist over REST.
type apiEditor struct {
	client *api.Client
}

func (e apiEditor) Subscribe(ctx context.Context, ticker string) error {
	return e.client.AddSubscription(ctx, ticker)
}

func (e apiEditor) Unsubscribe(ctx context.Context, ticker string) error {
	return e.client.RemoveSubscription(ctx, ticker)
}

// subscriptionStore is the part of *database.Store the postgres editor uses.
type subscriptionStore interface {
	AddSubscriptions(ctx context.Context, owner string, tickers ...string) (int, error)
	RemoveSubscription(ctx context.Context, owner, ticker string) (bool, error)
}

// storeEditor edits the owner's rows in the subscriptions table. It applies
// the same supported-ticker rule as the REST API.
type storeEditor struct {
	store     subscriptionStore
	owner     string
	supported map[string]bool
	logger    *slog.Logger
}

func newStoreEditor(store subscriptionStore, owner string, supported []string, logger *slog.Logger) *storeEditor {
	set := make(map[string]bool, len(supported))
	for _, t := range supported {
		set[t] = true
	}
	return &storeEditor{store: store, owner: owner, supported: set, logger: logger}
}

func (e *storeEditor) Subscribe(ctx context.Context, ticker string) error {
	if !e.supported[ticker] {
		return fmt.Errorf("add subscription %q: %w", ticker, api.ErrUnsupportedTicker)
	}
	added, err := e.store.AddSubscriptions(ctx, e.owner, ticker)
	if err != nil {
		return err
	}
	if added == 0 {
		e.logger.Info("ticker already on watchlist", "ticker", ticker, "owner", e.owner)
	}
	return nil
}

func (e *storeEditor) Unsubscribe(ctx context.Context, ticker string) error {
	existed, err := e.store.RemoveSubscription(ctx, e.owner, ticker)
	if err != nil {
		return err
	}
	if !existed {
		e.logger.Info("ticker was not on watchlist", "ticker", ticker, "owner", e.owner)
	}
	return nil
}

// watchlistBackend is what the configured source provides: the sources the
// poller reads, an editor (nil for the static source) and a release func.
type watchlistBackend struct {
	sources map[string]poller.Source
	editor  watchlistEditor
	close   func()
}

// openWatchlist builds the backend for cfg.Watchlist.Source. The static
// ticker list is merged into every source.
func openWatchlist(ctx context.Context, cfg *config.Config, client *api.Client, logger *slog.Logger) (*watchlistBackend, error) {
	b := &watchlistBackend{
		sources: make(map[string]poller.Source),
		close:   func() {},
	}

	if len(cfg.Watchlist.Tickers) > 0 {
		b.sources[config.SourceStatic] = poller.Static(cfg.Watchlist.Tickers...)
	}

	switch cfg.Watchlist.Source {
	case config.SourceAPI:
		b.sources[config.SourceAPI] = client
		b.editor = apiEditor{client: client}

	case config.SourcePostgres:
		logger.Info("connecting to database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)
		store, err := database.Open(ctx, cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("database connected")

		owner := cfg.Watchlist.Owner
		b.sources[config.SourcePostgres] = poller.SourceFunc(func(ctx context.Context) ([]model.Subscription, error) {
			return store.ListSubscriptions(ctx, owner)
		})
		b.editor = newStoreEditor(store, owner, cfg.Watchlist.Supported, logger)
		b.close = store.Close
	}

	return b, nil
}

// applyEdits subscribes to add and unsubscribes from remove, in that order,
// then refreshes the watchlist so the change is visible immediately. It stops
// at the first failure.
func applyEdits(ctx context.Context, editor watchlistEditor, add, remove []string, wl *poller.Poller, logger *slog.Logger) error {
	if len(add) == 0 && len(remove) == 0 {
		return nil
	}
	if editor == nil {
		return errStaticWatchlist
	}

	for _, t := range add {
		if err := editor.Subscribe(ctx, t); err != nil {
			return fmt.Errorf("subscribe %s: %w", t, err)
		}
		logger.Info("subscribed", "ticker", t)
	}
	for _, t := range remove {
		if err := editor.Unsubscribe(ctx, t); err != nil {
			return fmt.Errorf("unsubscribe %s: %w", t, err)
		}
		logger.Info("unsubscribed", "ticker", t)
	}

	if err := wl.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh watchlist: %w", err)
	}
	logger.Info("watchlist after edits", "tickers", wl.Tickers())
	return nil
}
