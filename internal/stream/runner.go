package stream

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/barsync/internal/exchange"
	"github.com/rickgao/barsync/internal/failure"
	"github.com/rickgao/barsync/internal/heartbeat"
	"github.com/rickgao/barsync/internal/merger"
	"github.com/rickgao/barsync/internal/model"
	"github.com/rickgao/barsync/internal/store"
)

// ServiceComponent prefixes the heartbeat service name of the stream runner.
const ServiceComponent = "stream"

// BarWriter persists closed bars. store.BarStore implements it.
type BarWriter interface {
	Upsert(ctx context.Context, bars []model.Bar) (store.UpsertResult, error)
}

// Source delivers raw candles until ctx is canceled. *Subscriber implements it.
type Source interface {
	Run(ctx context.Context, handle func(Candle)) error
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Series            model.Series
	HeartbeatInterval time.Duration
	StoreRetries      int           // Attempts per closed bar before it is dropped
	StoreRetryDelay   time.Duration // Fixed delay between attempts
	StoreTimeout      time.Duration // Per attempt
}

// DefaultRunnerConfig returns sensible defaults.
func DefaultRunnerConfig(series model.Series) RunnerConfig {
	return RunnerConfig{
		Series:            series,
		HeartbeatInterval: 30 * time.Second,
		StoreRetries:      3,
		StoreRetryDelay:   time.Second,
		StoreTimeout:      10 * time.Second,
	}
}

// RunnerStats counts runner activity.
type RunnerStats struct {
	Merger        merger.Stats
	DecodeErrors  int64
	Written       int64
	StoreFailures int64 // Closed bars dropped after exhausting retries
	PendingTS     int64 // Forming candle held when Run returned, 0 = none
}

// Runner chains a stream source, the normalizer, the merger, and the store.
type Runner struct {
	cfg        RunnerConfig
	source     Source
	normalizer exchange.Normalizer
	writer     BarWriter
	beats      heartbeat.Recorder
	logger     *slog.Logger

	merger *merger.Merger
	stats  RunnerStats

	// now is swapped in tests.
	now func() time.Time
}

// NewRunner creates a Runner. beats may be nil to disable heartbeats.
func NewRunner(cfg RunnerConfig, source Source, writer BarWriter, beats heartbeat.Recorder, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StoreRetries < 1 {
		cfg.StoreRetries = 1
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 10 * time.Second
	}
	return &Runner{
		cfg:        cfg,
		source:     source,
		normalizer: exchange.Normalizer{Source: cfg.Series.Source},
		writer:     writer,
		beats:      beats,
		logger:     logger,
		now:        time.Now,
	}
}

// Run consumes the stream until ctx is canceled. It returns nil on
// cancellation. The merger state lives for the duration of one call.
func (r *Runner) Run(ctx context.Context) error {
	session := uuid.NewString()
	logger := r.logger.With("run_id", session, "series", r.cfg.Series.String())

	var liveness merger.Liveness
	if r.beats != nil {
		service := heartbeat.ServiceName(ServiceComponent, r.cfg.Series)
		sink := heartbeat.StoreSink(context.WithoutCancel(ctx), r.beats, r.cfg.Series.Source, service, r.cfg.StoreTimeout, logger)
		liveness = heartbeat.NewThrottle(r.cfg.HeartbeatInterval, sink).WithClock(r.now)
	}
	r.merger = merger.New(r.cfg.Series, liveness)

	logger.Info("stream runner started",
		"heartbeat_interval", r.cfg.HeartbeatInterval,
	)

	err := r.source.Run(ctx, func(c Candle) {
		r.handle(ctx, logger, c)
	})

	r.stats.Merger = r.merger.Stats()
	if pending, ok := r.merger.Pending(); ok {
		r.stats.PendingTS = pending.Bar.TS
	}
	logger.Info("stream runner stopped",
		"updates", r.stats.Merger.Updates,
		"closed", r.stats.Merger.Closed,
		"written", r.stats.Written,
		"out_of_order", r.stats.Merger.OutOfOrder,
		"decode_errors", r.stats.DecodeErrors,
		"store_failures", r.stats.StoreFailures,
		"pending_ts", r.stats.PendingTS,
	)

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stats returns counters of the last Run. Call after Run returns.
func (r *Runner) Stats() RunnerStats {
	return r.stats
}

func (r *Runner) handle(ctx context.Context, logger *slog.Logger, c Candle) {
	bar, err := r.normalizer.ToBar(r.cfg.Series.Symbol, r.cfg.Series.Timeframe, c.Raw)
	if err != nil {
		r.stats.DecodeErrors++
		logger.Warn("skipping malformed stream candle", "error", err)
		return
	}

	closed, ok, err := r.merger.Apply(merger.Update{
		Bar:       bar,
		Confirmed: r.normalizer.IsConfirmed(c.Raw),
	})
	if err != nil {
		logger.Warn("dropping stream update", "error", err, "kind", failure.KindOf(err))
		return
	}
	if !ok {
		return
	}

	if !closed.Confirmed {
		logger.Debug("bar closed by newer interval without exchange confirmation", "ts", closed.Bar.TS)
	}
	r.write(ctx, logger, closed.Bar)
}

// write persists one closed bar with a bounded number of fixed-delay retries.
// The in-flight write is not interrupted by shutdown.
func (r *Runner) write(ctx context.Context, logger *slog.Logger, bar model.Bar) {
	writeCtx := context.WithoutCancel(ctx)

	for attempt := 1; attempt <= r.cfg.StoreRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(writeCtx, r.cfg.StoreTimeout)
		_, err := r.writer.Upsert(attemptCtx, []model.Bar{bar})
		cancel()

		if err == nil {
			r.stats.Written++
			logger.Debug("stored closed bar", "ts", bar.TS, "close", bar.Close)
			return
		}

		logger.Warn("failed to store closed bar",
			"ts", bar.TS,
			"attempt", attempt,
			"error", err,
			"kind", failure.KindOf(err),
		)

		if attempt == r.cfg.StoreRetries {
			break
		}
		select {
		case <-ctx.Done():
			// One last attempt was made; the poller re-covers this interval.
			r.stats.StoreFailures++
			return
		case <-time.After(r.cfg.StoreRetryDelay):
		}
	}

	r.stats.StoreFailures++
	logger.Error("dropped closed bar after retries", "ts", bar.TS, "retries", r.cfg.StoreRetries)
}
