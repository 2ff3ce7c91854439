package exchange

import (
	"context"
	"log/slog"

	"github.com/rickgao/barsync/internal/model"
)

// CandleAPI is the raw candle source Fetcher reads from. *Client implements it.
type CandleAPI interface {
	FetchCandles(ctx context.Context, req CandleRequest) ([]RawCandle, error)
}

// FetchRequest selects a page of bars.
type FetchRequest struct {
	Symbol        string
	Timeframe     model.Timeframe
	Limit         int
	After         int64 // Strictly older than, 0 = newest page
	Before        int64 // Strictly newer than, 0 = unbounded
	History       bool
	ConfirmedOnly bool // Drop candles the exchange still reports as forming
}

// Fetcher returns normalized bars from the exchange.
type Fetcher struct {
	api        CandleAPI
	normalizer Normalizer
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher stamping bars with source.
func NewFetcher(api CandleAPI, source string, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		api:        api,
		normalizer: Normalizer{Source: source},
		logger:     logger,
	}
}

// Page is one exchange response after normalization. Rows counts what the
// exchange returned before any filtering, so an empty Bars slice with Rows > 0
// means every row was unconfirmed or malformed, not that history ran out.
type Page struct {
	Bars        []model.Bar
	Rows        int
	Unconfirmed int
	Skipped     int
	OldestTS    int64 // Oldest decodable raw open time, 0 when no row had one
}

// Fetch returns one page of bars, oldest first. A malformed candle is logged
// and skipped; the rest of the page is still returned.
func (f *Fetcher) Fetch(ctx context.Context, req FetchRequest) ([]model.Bar, error) {
	page, err := f.FetchPage(ctx, req)
	if err != nil {
		return nil, err
	}
	return page.Bars, nil
}

// FetchPage is Fetch with the raw row accounting pagers need to move their
// cursor past pages that normalize to nothing.
func (f *Fetcher) FetchPage(ctx context.Context, req FetchRequest) (Page, error) {
	rows, err := f.api.FetchCandles(ctx, CandleRequest{
		InstID:  req.Symbol,
		Bar:     req.Timeframe.OKXBar(),
		Limit:   req.Limit,
		After:   req.After,
		Before:  req.Before,
		History: req.History,
	})
	if err != nil {
		return Page{}, err
	}

	page := Page{
		Bars: make([]model.Bar, 0, len(rows)),
		Rows: len(rows),
	}
	for _, raw := range rows {
		if ts := raw.TS(); ts > 0 && (page.OldestTS == 0 || ts < page.OldestTS) {
			page.OldestTS = ts
		}
		if req.ConfirmedOnly && !f.normalizer.IsConfirmed(raw) {
			page.Unconfirmed++
			continue
		}
		bar, err := f.normalizer.ToBar(req.Symbol, req.Timeframe, raw)
		if err != nil {
			page.Skipped++
			f.logger.Warn("skipping malformed candle",
				"symbol", req.Symbol,
				"timeframe", req.Timeframe,
				"error", err,
			)
			continue
		}
		page.Bars = append(page.Bars, bar)
	}

	f.logger.Debug("fetched candles",
		"symbol", req.Symbol,
		"timeframe", req.Timeframe,
		"rows", page.Rows,
		"bars", len(page.Bars),
		"unconfirmed", page.Unconfirmed,
		"skipped", page.Skipped,
	)

	return page, nil
}
