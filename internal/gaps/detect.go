package gaps

import (
	"context"
	"fmt"

	"github.com/rickgao/barsync/internal/failure"
	"github.com/rickgao/barsync/internal/model"
)

// Hole is a run of missing bars between two stored bars.
type Hole struct {
	PrevTS  int64
	NextTS  int64
	Diff    int64
	Missing int64
}

// Anomaly is irregular spacing that is not a hole.
type Anomaly struct {
	PrevTS int64
	NextTS int64
	Diff   int64
	Kind   string // failure.Duplicate, failure.OutOfOrder or failure.Misaligned
}

// Report is the result of scanning one series.
type Report struct {
	Rows      int
	Step      int64
	Holes     []Hole
	Anomalies []Anomaly
}

// Clean reports whether the series has neither holes nor anomalies.
func (r Report) Clean() bool {
	return len(r.Holes) == 0 && len(r.Anomalies) == 0
}

// Missing returns the total number of bars missing across all holes.
func (r Report) Missing() int64 {
	var n int64
	for _, h := range r.Holes {
		n += h.Missing
	}
	return n
}

// Detect classifies the spacing of ts, which is expected in ascending order.
func Detect(ts []int64, step int64) Report {
	r := Report{Rows: len(ts), Step: step}
	if step <= 0 {
		return r
	}

	for i := 1; i < len(ts); i++ {
		prev, next := ts[i-1], ts[i]
		diff := next - prev

		switch {
		case diff == step:
		case diff > step && diff%step == 0:
			r.Holes = append(r.Holes, Hole{PrevTS: prev, NextTS: next, Diff: diff, Missing: diff/step - 1})
		case diff == 0:
			r.Anomalies = append(r.Anomalies, Anomaly{PrevTS: prev, NextTS: next, Diff: diff, Kind: failure.Duplicate})
		case diff < 0:
			r.Anomalies = append(r.Anomalies, Anomaly{PrevTS: prev, NextTS: next, Diff: diff, Kind: failure.OutOfOrder})
		default:
			r.Anomalies = append(r.Anomalies, Anomaly{PrevTS: prev, NextTS: next, Diff: diff, Kind: failure.Misaligned})
		}
	}

	return r
}

// TimestampSource lists stored timestamps. store.BarStore implements it.
type TimestampSource interface {
	Timestamps(ctx context.Context, s model.Series) ([]int64, error)
}

// Scan loads every timestamp of a series and runs Detect.
func Scan(ctx context.Context, src TimestampSource, s model.Series) (Report, error) {
	ts, err := src.Timestamps(ctx, s)
	if err != nil {
		return Report{}, fmt.Errorf("load timestamps: %w", err)
	}
	return Detect(ts, s.Timeframe.StepMS()), nil
}
