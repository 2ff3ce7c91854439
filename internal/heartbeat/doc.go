// Package heartbeat rate-limits liveness reports.
//
// A Throttle forwards at most one call per interval to its sink, measured by
// wall-clock deltas at call time. Writers use it so a burst of stream updates
// turns into a handful of heartbeat rows.
package heartbeat
