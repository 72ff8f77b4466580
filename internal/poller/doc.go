// Package poller implements the Watchlist Poller component.
//
// The Watchlist Poller:
//   - Refreshes the subscription list on a fixed interval (default 30s)
//   - Queries every configured source in parallel and merges the results
//   - Keeps the previous watchlist when any source fails
//   - Notifies a handler only when the ticker set actually changes
package poller
