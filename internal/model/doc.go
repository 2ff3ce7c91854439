// Package model defines shared data types used across barsync.
//
// Conventions:
//   - Timestamps: int64 milliseconds since Unix epoch (UTC), always the interval start
//   - Prices and volumes: float64, parsed from exchange decimal strings
//   - A bar is identified by (source, symbol, timeframe, ts)
package model
