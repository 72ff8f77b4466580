// Package prices reconciles feed batches into a price snapshot with
// self-expiring change flags.
//
// A Reconciler listens for INITIAL_PRICES and PRICE_UPDATE on any Source (the
// connection.Manager in production). It holds:
//   - the snapshot: latest known price per ticker
//   - the baseline: the first INITIAL_PRICES payload since the last Reset
//   - the flags: Up/Down per ticker, reverted to None FlashWindow after the
//     batch that set them
//
// Readers always get copies. Every batch is applied under a single write
// lock, so no reader observes a half-applied batch.
package prices
