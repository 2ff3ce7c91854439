// Package exchange provides a client for the OKX public market-data REST API.
//
// The client is stateless and performs no retries: retry policy belongs to
// the loops that call it. Rows come back oldest first regardless of the
// order the exchange sent them.
//
// Normalizer turns raw candle rows into model.Bar values, and Fetcher
// combines both into the call the ingestion loops use.
package exchange
