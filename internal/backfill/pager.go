package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/barsync/internal/exchange"
	"github.com/rickgao/barsync/internal/model"
	"github.com/rickgao/barsync/internal/store"
)

// PageFetcher fetches one normalized page with its raw row counts.
// *exchange.Fetcher implements it.
type PageFetcher interface {
	FetchPage(ctx context.Context, req exchange.FetchRequest) (exchange.Page, error)
}

// Store is the subset of store.BarStore a backfill needs.
type Store interface {
	Upsert(ctx context.Context, bars []model.Bar) (store.UpsertResult, error)
	LatestTS(ctx context.Context, s model.Series) (int64, bool, error)
	Count(ctx context.Context, s model.Series) (int64, error)
}

// StopReason explains why a run ended.
type StopReason string

const (
	StopTargetReached StopReason = "target_reached"
	StopExhausted     StopReason = "exhausted"
	StopCursorStalled StopReason = "cursor_stalled"
	StopMaxPages      StopReason = "max_pages"
)

// Config holds backfill configuration.
type Config struct {
	Series   model.Series
	Target   int64 // Stop once the series holds this many rows (default: 5000)
	PageSize int   // Candles per request, at most 100 (default: 100)
	MaxPages int   // 0 = unbounded
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(series model.Series) Config {
	return Config{
		Series:   series,
		Target:   5000,
		PageSize: 100,
	}
}

// Result summarizes one run.
type Result struct {
	RunID      string
	Pages      int   // Requests issued
	Fetched    int   // Bars returned by the exchange
	Skipped    int   // Raw rows dropped as malformed or unconfirmed
	Written    int   // Rows inserted or overwritten
	StartCount int64
	EndCount   int64
	Cursor     int64 // Last after cursor, 0 when the run never paged
	StopReason StopReason
	Duration   time.Duration
}

// Pager runs backfills for one series.
type Pager struct {
	cfg     Config
	fetcher PageFetcher
	store   Store
	logger  *slog.Logger
}

// New creates a Pager.
func New(cfg Config, fetcher PageFetcher, st Store, logger *slog.Logger) *Pager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	return &Pager{
		cfg:     cfg,
		fetcher: fetcher,
		store:   st,
		logger:  logger,
	}
}

// Run pages backward until a stop condition holds.
func (p *Pager) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	series := p.cfg.Series
	res := Result{RunID: uuid.NewString()}
	logger := p.logger.With("run_id", res.RunID, "series", series.String())

	latest, ok, err := p.store.LatestTS(ctx, series)
	if err != nil {
		return res, fmt.Errorf("read latest ts: %w", err)
	}
	if ok {
		res.Cursor = latest
	}

	count, err := p.store.Count(ctx, series)
	if err != nil {
		return res, fmt.Errorf("count bars: %w", err)
	}
	res.StartCount = count
	res.EndCount = count

	logger.Info("backfill started",
		"count", count,
		"latest_ts", latest,
		"target", p.cfg.Target,
	)

	for res.EndCount < p.cfg.Target {
		if p.cfg.MaxPages > 0 && res.Pages >= p.cfg.MaxPages {
			res.StopReason = StopMaxPages
			break
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		page, err := p.fetcher.FetchPage(ctx, exchange.FetchRequest{
			Symbol:        series.Symbol,
			Timeframe:     series.Timeframe,
			Limit:         p.cfg.PageSize,
			After:         res.Cursor,
			History:       true,
			ConfirmedOnly: true,
		})
		res.Pages++
		if err != nil {
			return res, fmt.Errorf("fetch page after %d: %w", res.Cursor, err)
		}
		if page.Rows == 0 {
			logger.Info("no more history returned")
			res.StopReason = StopExhausted
			break
		}
		res.Fetched += len(page.Bars)
		res.Skipped += page.Skipped + page.Unconfirmed

		if len(page.Bars) > 0 {
			up, err := p.store.Upsert(ctx, page.Bars)
			if err != nil {
				return res, fmt.Errorf("upsert page: %w", err)
			}
			res.Written += up.Written

			if res.EndCount, err = p.store.Count(ctx, series); err != nil {
				return res, fmt.Errorf("count bars: %w", err)
			}
		} else {
			logger.Warn("page held no usable bars",
				"rows", page.Rows,
				"skipped", page.Skipped,
				"unconfirmed", page.Unconfirmed,
			)
		}

		// Page from the oldest raw row so a page of unusable rows still moves
		// the cursor. No decodable timestamp at all leaves nowhere to go.
		oldest := page.OldestTS
		if oldest == 0 || (res.Cursor != 0 && oldest >= res.Cursor) {
			logger.Warn("cursor did not move backward",
				"cursor", res.Cursor,
				"oldest", oldest,
			)
			res.StopReason = StopCursorStalled
			break
		}
		res.Cursor = oldest

		logger.Info("backfill page written",
			"page", res.Pages,
			"fetched", len(page.Bars),
			"skipped", page.Skipped+page.Unconfirmed,
			"total", res.EndCount,
			"next_after", res.Cursor,
		)
	}

	if res.StopReason == "" {
		res.StopReason = StopTargetReached
	}
	res.Duration = time.Since(start)

	logger.Info("backfill done",
		"stop_reason", res.StopReason,
		"pages", res.Pages,
		"written", res.Written,
		"skipped", res.Skipped,
		"count", res.EndCount,
		"duration", res.Duration,
	)

	return res, nil
}
