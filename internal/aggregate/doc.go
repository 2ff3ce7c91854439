// Package aggregate rolls stored bars up into a coarser timeframe.
//
// Buckets start at target.Floor(ts) in UTC. Within a bucket open is the first
// bar's open, close the last bar's close, high and low the extremes, and
// volume the sum. Duplicate timestamps keep the last bar seen.
package aggregate
