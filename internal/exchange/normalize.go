package exchange

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/rickgao/barsync/internal/failure"
	"github.com/rickgao/barsync/internal/model"
)

// Normalizer converts raw candle rows into bars stamped with Source.
type Normalizer struct {
	Source string
}

// IsConfirmed reports whether the exchange marked the candle as closed.
// Rows without a confirm field come from endpoints that only serve closed
// candles and count as confirmed.
func (n Normalizer) IsConfirmed(raw RawCandle) bool {
	if len(raw) <= fieldConfirm {
		return true
	}
	return raw[fieldConfirm] == "1"
}

// ToBar parses one row. Any malformed field or violated price invariant
// yields a *failure.DecodeError.
func (n Normalizer) ToBar(symbol string, tf model.Timeframe, raw RawCandle) (model.Bar, error) {
	const op = "decode candle"

	if len(raw) < minCandleFields {
		return model.Bar{}, &failure.DecodeError{Op: op, Err: fmt.Errorf("want at least %d fields, got %d", minCandleFields, len(raw))}
	}

	ts, err := strconv.ParseInt(raw[fieldTS], 10, 64)
	if err != nil {
		return model.Bar{}, &failure.DecodeError{Op: op, Err: fmt.Errorf("ts %q: %w", raw[fieldTS], err)}
	}

	var vals [5]float64
	names := [5]string{"open", "high", "low", "close", "volume"}
	for i := range vals {
		d, err := decimal.NewFromString(raw[fieldOpen+i])
		if err != nil {
			return model.Bar{}, &failure.DecodeError{Op: op, Err: fmt.Errorf("%s %q: %w", names[i], raw[fieldOpen+i], err)}
		}
		vals[i] = d.InexactFloat64()
	}

	bar := model.Bar{
		Source:    n.Source,
		Symbol:    symbol,
		Timeframe: tf,
		TS:        ts,
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
	}
	if err := bar.Validate(); err != nil {
		return model.Bar{}, &failure.DecodeError{Op: op, Err: fmt.Errorf("ts %d: %w", ts, err)}
	}

	return bar, nil
}
