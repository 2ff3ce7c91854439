// Package backfill pages historical candles backward from the oldest known
// cursor until a series holds a target number of rows.
//
// A run reads the newest stored timestamp as its initial cursor, then asks
// the history endpoint for confirmed candles strictly older than the cursor.
// Each page is upserted and the cursor moves to the oldest raw timestamp the
// exchange returned, so pages whose rows were all dropped as malformed or
// forming still advance it. The run stops when the target is reached, the
// exchange returns no rows, the cursor fails to move, or the optional page
// bound is hit.
//
// Errors are returned to the caller; nothing is retried here.
package backfill
