// Package cache mirrors reconciled prices into Redis.
//
// Keys (with the configured prefix, default "pricefeed:"):
//
//	latest:<ticker>  JSON Entry, expires after the configured TTL
//
// Every change is also published on the channel prices.<ticker> so other
// processes can follow the feed without their own WebSocket session. Only
// the latest value is kept; there is no history.
package cache
