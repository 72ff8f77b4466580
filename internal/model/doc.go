// Package model defines shared data types used across the price feed client.
//
// Conventions:
//   - Tickers: opaque case-sensitive strings (e.g. "GOOG")
//   - Prices: float64 in quote currency units, as sent by the feed
//   - Timestamps: int64 microseconds since Unix epoch
//   - IDs: uuid.UUID for change events, string for users
package model
