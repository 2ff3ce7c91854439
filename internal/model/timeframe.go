package model

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe is a bar interval label such as "1m" or "4h".
type Timeframe string

// Supported timeframes.
const (
	Minute1  Timeframe = "1m"
	Minute3  Timeframe = "3m"
	Minute5  Timeframe = "5m"
	Minute15 Timeframe = "15m"
	Minute30 Timeframe = "30m"
	Hour1    Timeframe = "1h"
	Hour2    Timeframe = "2h"
	Hour4    Timeframe = "4h"
	Hour6    Timeframe = "6h"
	Hour12   Timeframe = "12h"
	Day1     Timeframe = "1d"
	Week1    Timeframe = "1w"
)

type timeframeInfo struct {
	step    time.Duration
	okxCode string
}

// Intervals of 6h and longer use the UTC-aligned exchange codes.
var timeframes = map[Timeframe]timeframeInfo{
	Minute1:  {time.Minute, "1m"},
	Minute3:  {3 * time.Minute, "3m"},
	Minute5:  {5 * time.Minute, "5m"},
	Minute15: {15 * time.Minute, "15m"},
	Minute30: {30 * time.Minute, "30m"},
	Hour1:    {time.Hour, "1H"},
	Hour2:    {2 * time.Hour, "2H"},
	Hour4:    {4 * time.Hour, "4H"},
	Hour6:    {6 * time.Hour, "6Hutc"},
	Hour12:   {12 * time.Hour, "12Hutc"},
	Day1:     {24 * time.Hour, "1Dutc"},
	Week1:    {7 * 24 * time.Hour, "1Wutc"},
}

// ParseTimeframe validates a timeframe label. Labels are case-insensitive
// except that "1M" is never accepted as a minute.
func ParseTimeframe(s string) (Timeframe, error) {
	label := strings.TrimSpace(s)
	if label != "1M" {
		label = strings.ToLower(label)
	}
	tf := Timeframe(label)
	if _, ok := timeframes[tf]; !ok {
		return "", fmt.Errorf("unsupported timeframe %q", s)
	}
	return tf, nil
}

// Valid reports whether tf is a supported timeframe.
func (tf Timeframe) Valid() bool {
	_, ok := timeframes[tf]
	return ok
}

// Step returns the interval length. It is zero for unsupported timeframes.
func (tf Timeframe) Step() time.Duration {
	return timeframes[tf].step
}

// StepMS returns the interval length in milliseconds.
func (tf Timeframe) StepMS() int64 {
	return tf.Step().Milliseconds()
}

// OKXBar returns the exchange bar code (e.g., "1H" for "1h").
func (tf Timeframe) OKXBar() string {
	return timeframes[tf].okxCode
}

// mondayEpochMS is 1970-01-05T00:00:00Z. Weekly bars start on Mondays.
const mondayEpochMS = 4 * 24 * 60 * 60 * 1000

// Floor returns the start of the interval containing ts.
func (tf Timeframe) Floor(ts int64) int64 {
	step := tf.StepMS()
	if step == 0 {
		return ts
	}
	var offset int64
	if tf == Week1 {
		offset = mondayEpochMS
	}
	rel := ts - offset
	return ts - ((rel%step)+step)%step
}

func (tf Timeframe) String() string {
	return string(tf)
}
