// Package merger turns a stream of repeated partial-candle updates into
// closed bars.
//
// The exchange pushes the forming candle many times per interval. A candle is
// treated as closed when the first update with a later timestamp arrives:
//
//	Empty --u--> Forming(u)
//	Forming(b) --u, u.ts == b.ts--> Forming(u)
//	Forming(b) --u, u.ts >  b.ts--> Forming(u), emit b
//	Forming(b) --u, u.ts <  b.ts--> Forming(b), ConsistencyWarning
//
// A Merger belongs to one streaming session and is not safe for concurrent use.
package merger
