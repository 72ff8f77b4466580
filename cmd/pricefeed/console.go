package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/rickgao/pricefeed/internal/connection"
	"github.com/rickgao/pricefeed/internal/model"
	"github.com/rickgao/pricefeed/internal/router"
)

// errFeedFailed ends the process once the manager gives up reconnecting.
var errFeedFailed = errors.New("price feed connection failed")

type priceReader interface {
	Snapshot() map[string]float64
	Baseline() map[string]float64
	Flags() map[string]model.Direction
	DayChange(ticker string) (float64, bool)
}

type watchlistReader interface {
	Tickers() []string
	Contains(ticker string) bool
	Loaded() bool
}

// console prints change events for watchlist tickers, one per line.
type console struct {
	w         io.Writer
	prices    priceReader
	watchlist watchlistReader
}

func newConsole(w io.Writer, p priceReader, wl watchlistReader) *console {
	return &console{w: w, prices: p, watchlist: wl}
}

// Run prints events from q until q is closed or ctx is done.
func (c *console) Run(ctx context.Context, q *router.Queue[model.PriceChange]) error {
	for {
		change, err := q.Receive(ctx)
		if err != nil {
			return nil
		}
		c.print(change)
	}
}

// visible reports whether ticker should be shown. Everything is shown until
// the watchlist has loaded once.
func (c *console) visible(ticker string) bool {
	return !c.watchlist.Loaded() || c.watchlist.Contains(ticker)
}

func (c *console) print(change model.PriceChange) {
	if !c.visible(change.Ticker) {
		return
	}
	fmt.Fprintln(c.w, c.format(change))
}

func (c *console) format(change model.PriceChange) string {
	line := fmt.Sprintf("[%s] %-6s %10.2f %s", change.Kind, change.Ticker, change.Price, arrow(change.Direction))
	if pct, ok := c.prices.DayChange(change.Ticker); ok {
		line += fmt.Sprintf(" %+.2f%%", pct)
	}
	return line
}

func arrow(d model.Direction) string {
	switch d {
	case model.Up:
		return "▲"
	case model.Down:
		return "▼"
	}
	return "-"
}

// superviseConnection logs state changes and fails once the manager gives up.
func superviseConnection(ctx context.Context, states *router.Queue[connection.StateChange], logger *slog.Logger) error {
	for {
		sc, err := states.Receive(ctx)
		if err != nil {
			return nil
		}

		attrs := []any{"from", sc.From, "to", sc.To, "attempts", sc.Attempts}
		if sc.Err != nil {
			attrs = append(attrs, "error", sc.Err)
		}

		switch sc.To {
		case connection.StateFailed:
			logger.Error("price feed unavailable", attrs...)
			return errFeedFailed
		case connection.StateReconnecting:
			logger.Warn("price feed connection lost", attrs...)
		case connection.StateConnected:
			logger.Info("price feed connected", attrs...)
		default:
			logger.Debug("price feed state changed", attrs...)
		}
	}
}
