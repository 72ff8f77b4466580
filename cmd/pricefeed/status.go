package main

import (
	"encoding/json"
	"net/http"
	"slices"

	"github.com/rickgao/pricefeed/internal/connection"
	"github.com/rickgao/pricefeed/internal/model"
	"github.com/rickgao/pricefeed/internal/prices"
)

type connectionReader interface {
	State() connection.State
	Stats() connection.ManagerStats
}

type tickerStatus struct {
	Ticker    string          `json:"ticker"`
	Price     *float64        `json:"price,omitempty"`
	Baseline  *float64        `json:"baseline,omitempty"`
	Flag      model.Direction `json:"flag"`
	DayChange *float64        `json:"day_change_pct,omitempty"`
}

// newStatusHandler creates the HTTP handler for health and price queries.
func newStatusHandler(conn connectionReader, p priceReader, wl watchlistReader) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		state := conn.State()
		stats := conn.Stats()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		health.Components["feed"] = map[string]any{
			"state":      state.String(),
			"session_id": stats.SessionID.String(),
			"attempts":   stats.Attempts,
			"reconnects": stats.Reconnects,
		}
		switch state {
		case connection.StateConnected:
		case connection.StateFailed, connection.StateDisconnected:
			health.Status = "unhealthy"
		default:
			health.Status = "degraded"
		}

		health.Components["prices"] = map[string]any{
			"tickers": len(p.Snapshot()),
		}
		health.Components["watchlist"] = map[string]any{
			"loaded":  wl.Loaded(),
			"tickers": len(wl.Tickers()),
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/prices", func(w http.ResponseWriter, r *http.Request) {
		snapshot := p.Snapshot()
		baseline := p.Baseline()
		flags := p.Flags()

		tickers := wl.Tickers()
		if r.URL.Query().Get("all") == "true" || !wl.Loaded() {
			tickers = sortedKeys(snapshot)
		}

		out := make([]tickerStatus, 0, len(tickers))
		for _, t := range tickers {
			ts := tickerStatus{Ticker: t, Flag: flags[t]}
			cur, hasCur := snapshot[t]
			base, hasBase := baseline[t]
			if hasCur {
				ts.Price = &cur
			}
			if hasBase {
				ts.Baseline = &base
			}
			if hasCur && hasBase {
				if pct, ok := prices.PercentChange(cur, base); ok {
					ts.DayChange = &pct
				}
			}
			out = append(out, ts)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"count":  len(out),
			"prices": out,
		})
	})

	return mux
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
