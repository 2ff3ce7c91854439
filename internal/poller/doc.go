// Package poller implements the periodic REST candle poller.
//
// Each cycle fetches the most recent candles of one series, upserts them, and
// records a heartbeat. A failed cycle is logged with its failure kind and the
// next cycle waits at least the error backoff. The poller never gives up on
// its own; only context cancellation stops it.
package poller
