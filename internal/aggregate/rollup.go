package aggregate

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/rickgao/barsync/internal/model"
)

// Compatible checks that src bars can be rolled up into target.
func Compatible(src, target model.Timeframe) error {
	if !src.Valid() {
		return fmt.Errorf("unsupported source timeframe %q", src)
	}
	if !target.Valid() {
		return fmt.Errorf("unsupported target timeframe %q", target)
	}
	s, t := src.StepMS(), target.StepMS()
	if t <= s || t%s != 0 {
		return fmt.Errorf("cannot roll %s up into %s", src, target)
	}
	return nil
}

// Rollup aggregates bars of one series into target buckets, oldest first.
// With completeOnly a bucket is emitted only when every source bar of it is
// present. Bars are assumed to share a series with a timeframe Compatible
// with target.
func Rollup(bars []model.Bar, target model.Timeframe, completeOnly bool) []model.Bar {
	if len(bars) == 0 {
		return nil
	}

	sorted := make([]model.Bar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TS < sorted[j].TS })

	// Last write wins on duplicate ts.
	deduped := sorted[:0]
	for _, b := range sorted {
		if n := len(deduped); n > 0 && deduped[n-1].TS == b.TS {
			deduped[n-1] = b
			continue
		}
		deduped = append(deduped, b)
	}

	var perBucket int64
	if step := deduped[0].Timeframe.StepMS(); step > 0 {
		perBucket = target.StepMS() / step
	}

	var (
		out    []model.Bar
		cur    model.Bar
		volume decimal.Decimal
		count  int64
	)
	flush := func() {
		if count == 0 {
			return
		}
		if completeOnly && count != perBucket {
			return
		}
		cur.Volume = volume.InexactFloat64()
		out = append(out, cur)
	}

	for _, b := range deduped {
		bucket := target.Floor(b.TS)
		if count > 0 && bucket == cur.TS {
			cur.High = max(cur.High, b.High)
			cur.Low = min(cur.Low, b.Low)
			cur.Close = b.Close
			volume = volume.Add(decimal.NewFromFloat(b.Volume))
			count++
			continue
		}

		flush()
		cur = model.Bar{
			Source:    b.Source,
			Symbol:    b.Symbol,
			Timeframe: target,
			TS:        bucket,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
		}
		volume = decimal.NewFromFloat(b.Volume)
		count = 1
	}
	flush()

	return out
}
