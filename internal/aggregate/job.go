package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/barsync/internal/model"
	"github.com/rickgao/barsync/internal/store"
)

// ErrNoSourceBars is returned when the requested range holds no source bars.
var ErrNoSourceBars = errors.New("no source bars in range")

// Store is the subset of store.BarStore a rollup job needs.
type Store interface {
	Fetch(ctx context.Context, q store.Query) ([]model.Bar, error)
	Upsert(ctx context.Context, bars []model.Bar) (store.UpsertResult, error)
}

// Request selects the source series and range of one rollup.
type Request struct {
	Series       model.Series // Source series
	Target       model.Timeframe
	From         int64 // Inclusive ms, 0 = open
	To           int64 // Inclusive ms, 0 = open
	Limit        int   // Source bars read, 0 = all
	DryRun       bool
	CompleteOnly bool
}

// Result summarizes one rollup.
type Result struct {
	RunID      string
	SourceRows int
	Bars       []model.Bar
	Written    int
	LatestTS   int64
	Duration   time.Duration
}

// Job reads source bars, rolls them up and writes the result back.
type Job struct {
	store  Store
	logger *slog.Logger
}

// NewJob creates a Job.
func NewJob(st Store, logger *slog.Logger) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{store: st, logger: logger}
}

// Run executes req. With DryRun nothing is written.
func (j *Job) Run(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	res := Result{RunID: uuid.NewString()}

	if err := Compatible(req.Series.Timeframe, req.Target); err != nil {
		return res, err
	}

	logger := j.logger.With(
		"run_id", res.RunID,
		"series", req.Series.String(),
		"target", req.Target,
	)

	src, err := j.store.Fetch(ctx, store.Query{
		Series:    req.Series,
		From:      req.From,
		To:        req.To,
		Limit:     req.Limit,
		Ascending: true,
	})
	if err != nil {
		return res, fmt.Errorf("load source bars: %w", err)
	}
	if len(src) == 0 {
		return res, ErrNoSourceBars
	}
	res.SourceRows = len(src)
	res.Bars = Rollup(src, req.Target, req.CompleteOnly)

	logger.Info("rollup computed",
		"source_rows", res.SourceRows,
		"target_rows", len(res.Bars),
		"complete_only", req.CompleteOnly,
	)

	if req.DryRun || len(res.Bars) == 0 {
		res.Duration = time.Since(start)
		return res, nil
	}

	up, err := j.store.Upsert(ctx, res.Bars)
	if err != nil {
		return res, fmt.Errorf("upsert rollup: %w", err)
	}
	res.Written = up.Written
	res.LatestTS = up.LatestTS
	res.Duration = time.Since(start)

	logger.Info("rollup written",
		"written", res.Written,
		"latest_ts", res.LatestTS,
		"duration", res.Duration,
	)

	return res, nil
}
