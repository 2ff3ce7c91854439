package model

import (
	"errors"
	"fmt"
)

// Bar is one OHLCV observation over a single timeframe interval.
type Bar struct {
	Source    string    // Exchange identifier (e.g., "okx")
	Symbol    string    // Instrument id (e.g., "BTC-USDT-SWAP")
	Timeframe Timeframe // Interval length label
	TS        int64     // Interval start (ms since epoch, UTC)

	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Series returns the time series this bar belongs to.
func (b Bar) Series() Series {
	return Series{Source: b.Source, Symbol: b.Symbol, Timeframe: b.Timeframe}
}

// Validate checks the price and volume invariants of a bar.
func (b Bar) Validate() error {
	if b.Source == "" || b.Symbol == "" || b.Timeframe == "" {
		return errors.New("bar key is incomplete")
	}
	if b.TS <= 0 {
		return fmt.Errorf("bar ts must be positive, got %d", b.TS)
	}
	if b.High < b.Low {
		return fmt.Errorf("high %v below low %v", b.High, b.Low)
	}
	if b.High < b.Open || b.High < b.Close {
		return fmt.Errorf("high %v below open/close", b.High)
	}
	if b.Low > b.Open || b.Low > b.Close {
		return fmt.Errorf("low %v above open/close", b.Low)
	}
	if b.Volume < 0 {
		return fmt.Errorf("negative volume %v", b.Volume)
	}
	return nil
}

// Series identifies one (source, symbol, timeframe) time series.
type Series struct {
	Source    string
	Symbol    string
	Timeframe Timeframe
}

func (s Series) String() string {
	return s.Source + ":" + s.Symbol + ":" + string(s.Timeframe)
}

// Heartbeat records that a service made progress at TS (ms since epoch).
type Heartbeat struct {
	Source  string
	Service string
	TS      int64
}
