// Package gaps finds and repairs irregular spacing in stored bar series.
//
// Detect classifies each adjacent pair of ascending timestamps:
//
//	diff == step                 regular
//	diff > step, diff % step == 0  hole, missing diff/step - 1 bars
//	otherwise                    anomaly (duplicate, out_of_order, misaligned)
//
// Filler pages the history endpoint backward from the far edge of each hole
// and upserts what it receives. Only an empty response counts as exhausted
// history; a page of unusable rows still moves the cursor. Its stop check only
// confirms the first missing bar; run Detect again to verify a hole is closed.
package gaps
