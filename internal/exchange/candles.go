package exchange

import (
	"context"
	"net/url"
	"sort"
	"strconv"

	"github.com/rickgao/barsync/internal/failure"
)

const (
	candlesPath        = "/api/v5/market/candles"
	historyCandlesPath = "/api/v5/market/history-candles"
)

// CandleRequest selects a page of candles.
type CandleRequest struct {
	InstID string // Instrument id
	Bar    string // Exchange bar code, see model.Timeframe.OKXBar
	Limit  int    // 0 = exchange default

	// After returns rows strictly older than this ts (paging backward).
	After int64
	// Before returns rows strictly newer than this ts.
	Before int64

	// History selects the archive endpoint, which reaches further back.
	History bool
}

// FetchCandles returns one page of raw candle rows, oldest first.
func (c *Client) FetchCandles(ctx context.Context, req CandleRequest) ([]RawCandle, error) {
	const op = "fetch candles"

	path := candlesPath
	if req.History {
		path = historyCandlesPath
	}

	query := url.Values{}
	query.Set("instId", req.InstID)
	query.Set("bar", req.Bar)
	if req.Limit > 0 {
		query.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.After > 0 {
		query.Set("after", strconv.FormatInt(req.After, 10))
	}
	if req.Before > 0 {
		query.Set("before", strconv.FormatInt(req.Before, 10))
	}

	var resp candlesResponse
	if err := c.get(ctx, op, path, query, &resp); err != nil {
		return nil, err
	}

	if resp.Code != "0" {
		return nil, &failure.TransportError{Op: op, StatusCode: 200, Code: resp.Code, Message: resp.Msg}
	}

	rows := resp.Data
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].TS() < rows[j].TS()
	})

	return rows, nil
}
