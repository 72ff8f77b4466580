// Package database provides the PostgreSQL connection pool and the
// subscription store used as a watchlist source.
//
// Schema:
//
//	subscriptions (owner TEXT, ticker TEXT, created_at TIMESTAMPTZ)
//	PRIMARY KEY (owner, ticker)
package database
