package gaps

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

// Store is the subset of store.BarStore the filler needs.
type Store interface {
	Upsert(ctx context.Context, bars []model.Bar) (store.UpsertResult, error)
	Exists(ctx context.Context, s model.Series, ts int64) (bool, error)
}

// Hole stop reasons.
const (
	StopFirstMissingFound = "first_missing_found"
	StopExhausted         = "exhausted"
	StopRoundsExhausted   = "rounds_exhausted"
	StopPassedHole        = "passed_hole"
	StopCursorStalled     = "cursor_stalled"
)

// FillConfig holds filler configuration.
type FillConfig struct {
	Series    model.Series
	MaxHoles  int // Holes repaired per run (default: 50)
	MaxRounds int // Pages per hole (default: 50)
	PageSize  int // Candles per request, at most 100 (default: 100)
}

// DefaultFillConfig returns sensible defaults.
func DefaultFillConfig(series model.Series) FillConfig {
	return FillConfig{
		Series:    series,
		MaxHoles:  50,
		MaxRounds: 50,
		PageSize:  100,
	}
}

// HoleResult records the repair of one hole.
type HoleResult struct {
	Hole       Hole
	Rounds     int
	Written    int
	Skipped    int  // Raw rows dropped as malformed or unconfirmed
	Closed     bool // The first missing bar is now stored
	StopReason string
}

// FillResult summarizes one run.
type FillResult struct {
	RunID    string
	Holes    []HoleResult
	Skipped  int // Holes beyond MaxHoles
	Written  int
	Duration time.Duration
}

// Filler repairs holes of one series from the history endpoint.
type Filler struct {
	cfg     FillConfig
	fetcher PageFetcher
	store   Store
	logger  *slog.Logger
}

// NewFiller creates a Filler.
func NewFiller(cfg FillConfig, fetcher PageFetcher, st Store, logger *slog.Logger) *Filler {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultFillConfig(cfg.Series)
	if cfg.MaxHoles <= 0 {
		cfg.MaxHoles = def.MaxHoles
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = def.MaxRounds
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	return &Filler{
		cfg:     cfg,
		fetcher: fetcher,
		store:   st,
		logger:  logger,
	}
}

// Fill repairs up to MaxHoles holes in order. The first error aborts the run.
func (f *Filler) Fill(ctx context.Context, holes []Hole) (FillResult, error) {
	start := time.Now()
	res := FillResult{RunID: uuid.NewString()}
	logger := f.logger.With("run_id", res.RunID, "series", f.cfg.Series.String())

	if len(holes) > f.cfg.MaxHoles {
		res.Skipped = len(holes) - f.cfg.MaxHoles
		holes = holes[:f.cfg.MaxHoles]
	}

	logger.Info("gap fill started", "holes", len(holes), "skipped", res.Skipped)

	for i, h := range holes {
		hr, err := f.fillHole(ctx, logger, h)
		res.Holes = append(res.Holes, hr)
		res.Written += hr.Written
		if err != nil {
			return res, fmt.Errorf("fill hole %d (%d..%d): %w", i+1, h.PrevTS, h.NextTS, err)
		}

		logger.Info("hole processed",
			"index", i+1,
			"prev", h.PrevTS,
			"next", h.NextTS,
			"missing", h.Missing,
			"rounds", hr.Rounds,
			"written", hr.Written,
			"skipped", hr.Skipped,
			"stop_reason", hr.StopReason,
		)
	}

	res.Duration = time.Since(start)
	logger.Info("gap fill done",
		"written", res.Written,
		"duration", res.Duration,
	)
	return res, nil
}

func (f *Filler) fillHole(ctx context.Context, logger *slog.Logger, h Hole) (HoleResult, error) {
	hr := HoleResult{Hole: h}
	series := f.cfg.Series
	firstMissing := h.PrevTS + series.Timeframe.StepMS()
	after := h.NextTS

	for hr.Rounds < f.cfg.MaxRounds {
		if err := ctx.Err(); err != nil {
			return hr, err
		}
		hr.Rounds++

		page, err := f.fetcher.FetchPage(ctx, exchange.FetchRequest{
			Symbol:        series.Symbol,
			Timeframe:     series.Timeframe,
			Limit:         f.cfg.PageSize,
			After:         after,
			History:       true,
			ConfirmedOnly: true,
		})
		if err != nil {
			return hr, err
		}
		if page.Rows == 0 {
			hr.StopReason = StopExhausted
			return hr, nil
		}
		hr.Skipped += page.Skipped + page.Unconfirmed

		var written int
		if len(page.Bars) > 0 {
			up, err := f.store.Upsert(ctx, page.Bars)
			if err != nil {
				return hr, err
			}
			written = up.Written
			hr.Written += written
		}

		ok, err := f.store.Exists(ctx, series, firstMissing)
		if err != nil {
			return hr, err
		}

		oldest := page.OldestTS
		logger.Debug("gap fill round",
			"round", hr.Rounds,
			"written", written,
			"skipped", page.Skipped+page.Unconfirmed,
			"next_after", oldest,
			"first_missing_exists", ok,
		)

		switch {
		case ok:
			hr.Closed = true
			hr.StopReason = StopFirstMissingFound
			return hr, nil
		case oldest == 0:
			// No decodable timestamp on the page to page from.
			hr.StopReason = StopCursorStalled
			return hr, nil
		case oldest <= h.PrevTS:
			hr.StopReason = StopPassedHole
			return hr, nil
		case oldest >= after:
			hr.StopReason = StopCursorStalled
			return hr, nil
		}
		after = oldest
	}

	hr.StopReason = StopRoundsExhausted
	return hr, nil
}
