package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/barsync/internal/exchange"
	"github.com/rickgao/barsync/internal/failure"
	"github.com/rickgao/barsync/internal/heartbeat"
	"github.com/rickgao/barsync/internal/model"
	"github.com/rickgao/barsync/internal/store"
)

// ServiceComponent prefixes the heartbeat service name of the poller.
const ServiceComponent = "poller"

// BarFetcher fetches normalized bars. *exchange.Fetcher implements it.
type BarFetcher interface {
	Fetch(ctx context.Context, req exchange.FetchRequest) ([]model.Bar, error)
}

// BarWriter persists bars. store.BarStore implements it.
type BarWriter interface {
	Upsert(ctx context.Context, bars []model.Bar) (store.UpsertResult, error)
}

// Config holds poller configuration.
type Config struct {
	Series        model.Series
	Interval      time.Duration // Sleep between successful cycles (default: 60s)
	ErrorBackoff  time.Duration // Minimum sleep after a failed cycle (default: 10s)
	Limit         int           // Candles per fetch (default: 100)
	Timeout       time.Duration // Per-cycle timeout (default: 30s)
	ConfirmedOnly bool          // Skip the forming candle
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(series model.Series) Config {
	return Config{
		Series:       series,
		Interval:     60 * time.Second,
		ErrorBackoff: 10 * time.Second,
		Limit:        100,
		Timeout:      30 * time.Second,
	}
}

// Stats counts poller activity.
type Stats struct {
	Cycles  int64
	Errors  int64
	Written int64
}

// Poller periodically fetches recent candles via the REST API.
type Poller struct {
	cfg     Config
	fetcher BarFetcher
	writer  BarWriter
	beats   heartbeat.Recorder
	logger  *slog.Logger
	service string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	stats Stats

	// now is swapped in tests.
	now func() time.Time
}

// New creates a new Poller. beats may be nil to disable heartbeats.
func New(cfg Config, fetcher BarFetcher, writer BarWriter, beats heartbeat.Recorder, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Poller{
		cfg:     cfg,
		fetcher: fetcher,
		writer:  writer,
		beats:   beats,
		logger:  logger,
		service: heartbeat.ServiceName(ServiceComponent, cfg.Series),
		now:     time.Now,
	}
}

// Start begins the polling loop in the background.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.Run(p.ctx)
	}()

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("candle poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run polls until ctx is canceled. It always returns nil.
func (p *Poller) Run(ctx context.Context) error {
	p.run(ctx)
	return nil
}

// Stats returns a copy of the counters.
func (p *Poller) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// run is the main polling loop.
func (p *Poller) run(ctx context.Context) {
	p.logger.Info("candle poller started",
		"series", p.cfg.Series.String(),
		"interval", p.cfg.Interval,
		"limit", p.cfg.Limit,
	)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		wait := p.cfg.Interval
		if err := p.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			wait = max(p.cfg.Interval, p.cfg.ErrorBackoff)
			p.logger.Warn("poll cycle failed",
				"error", err,
				"kind", failure.KindOf(err),
				"retry_in", wait,
			)
		}
		timer.Reset(wait)
	}
}

// PollOnce runs a single fetch, upsert, and heartbeat cycle.
func (p *Poller) PollOnce(ctx context.Context) error {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	p.mu.Lock()
	p.stats.Cycles++
	p.mu.Unlock()

	bars, err := p.fetcher.Fetch(ctx, exchange.FetchRequest{
		Symbol:        p.cfg.Series.Symbol,
		Timeframe:     p.cfg.Series.Timeframe,
		Limit:         p.cfg.Limit,
		ConfirmedOnly: p.cfg.ConfirmedOnly,
	})
	if err != nil {
		p.recordError()
		return err
	}

	// The write is not interrupted by shutdown once the fetch succeeded, but
	// it still gets its own Timeout so a stalled store cannot block the loop.
	wctx, wcancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.Timeout)
	defer wcancel()

	res, err := p.writer.Upsert(wctx, bars)
	if err != nil {
		p.recordError()
		return err
	}

	p.mu.Lock()
	p.stats.Written += int64(res.Written)
	p.mu.Unlock()

	if p.beats != nil {
		hb := model.Heartbeat{Source: p.cfg.Series.Source, Service: p.service, TS: p.now().UnixMilli()}
		if err := p.beats.Beat(wctx, hb); err != nil {
			p.logger.Warn("failed to record heartbeat", "service", p.service, "error", err)
		}
	}

	p.logger.Info("poll cycle complete",
		"fetched", len(bars),
		"written", res.Written,
		"latest_ts", res.LatestTS,
		"duration", time.Since(start),
	)

	return nil
}

func (p *Poller) recordError() {
	p.mu.Lock()
	p.stats.Errors++
	p.mu.Unlock()
}
