package exchange

import "strconv"

// Candle row field positions.
const (
	fieldTS = iota
	fieldOpen
	fieldHigh
	fieldLow
	fieldClose
	fieldVolume
	fieldVolCcy
	fieldVolCcyQuote
	fieldConfirm
)

// minCandleFields is ts through volume.
const minCandleFields = fieldVolume + 1

// RawCandle is one candle row as sent by the exchange:
// [ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm], all strings.
type RawCandle []string

// TS returns the row timestamp, or 0 when it is missing or malformed.
func (r RawCandle) TS() int64 {
	if len(r) == 0 {
		return 0
	}
	ts, err := strconv.ParseInt(r[fieldTS], 10, 64)
	if err != nil {
		return 0
	}
	return ts
}

// candlesResponse is the envelope of GET /api/v5/market/candles and history-candles.
type candlesResponse struct {
	Code string      `json:"code"`
	Msg  string      `json:"msg"`
	Data []RawCandle `json:"data"`
}
