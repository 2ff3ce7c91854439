package stream

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/barsync/internal/exchange"
	"github.com/rickgao/barsync/internal/model"
	"github.com/rickgao/barsync/internal/store"
)

// scriptedSource replays candles then blocks until canceled.
type scriptedSource struct {
	candles []Candle
}

func (s *scriptedSource) Run(ctx context.Context, handle func(Candle)) error {
	for _, c := range s.candles {
		handle(c)
	}
	<-ctx.Done()
	return ctx.Err()
}

type memWriter struct {
	mu       sync.Mutex
	bars     []model.Bar
	failures int // Upsert calls to fail before succeeding
	calls    int
}

func (w *memWriter) Upsert(ctx context.Context, bars []model.Bar) (store.UpsertResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.failures > 0 {
		w.failures--
		return store.UpsertResult{}, errors.New("db unavailable")
	}
	w.bars = append(w.bars, bars...)
	return store.UpsertResult{Written: len(bars), LatestTS: bars[len(bars)-1].TS}, nil
}

type memBeats struct {
	mu    sync.Mutex
	beats []model.Heartbeat
}

func (b *memBeats) Beat(ctx context.Context, hb model.Heartbeat) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.beats = append(b.beats, hb)
	return nil
}

var runnerSeries = model.Series{Source: "okx", Symbol: "BTC-USDT-SWAP", Timeframe: model.Minute1}

func raw(ts int64, close string, confirm string) Candle {
	return Candle{Raw: exchange.RawCandle{strconv.FormatInt(ts, 10), close, "100", "1", close, "5", "0", "0", confirm}}
}

func runFor(t *testing.T, r *Runner) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := r.Run(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() error: %v", err)
	}
}

func TestRunner_StoresClosedBars(t *testing.T) {
	src := &scriptedSource{candles: []Candle{
		raw(60_000, "10", "0"),
		raw(60_000, "11", "1"),
		raw(120_000, "12", "0"),
		raw(60_000, "99", "1"), // late update for a closed interval
		{Raw: exchange.RawCandle{"oops"}},
		raw(180_000, "13", "0"),
	}}
	w := &memWriter{}
	beats := &memBeats{}

	cfg := DefaultRunnerConfig(runnerSeries)
	r := NewRunner(cfg, src, w, beats, nil)
	runFor(t, r)

	if len(w.bars) != 2 {
		t.Fatalf("stored %d bars, want 2: %+v", len(w.bars), w.bars)
	}
	if w.bars[0].TS != 60_000 || w.bars[0].Close != 11 {
		t.Errorf("bars[0] = %+v, want ts 60000 close 11", w.bars[0])
	}
	if w.bars[1].TS != 120_000 || w.bars[1].Close != 12 {
		t.Errorf("bars[1] = %+v, want ts 120000 close 12", w.bars[1])
	}
	if w.bars[0].Source != "okx" || w.bars[0].Timeframe != model.Minute1 {
		t.Errorf("bar not stamped with series: %+v", w.bars[0])
	}

	stats := r.Stats()
	if stats.Written != 2 {
		t.Errorf("Written = %d, want 2", stats.Written)
	}
	if stats.DecodeErrors != 1 {
		t.Errorf("DecodeErrors = %d, want 1", stats.DecodeErrors)
	}
	if stats.Merger.OutOfOrder != 1 {
		t.Errorf("OutOfOrder = %d, want 1", stats.Merger.OutOfOrder)
	}
	if stats.Merger.UnconfirmedCloses != 1 {
		t.Errorf("UnconfirmedCloses = %d, want 1", stats.Merger.UnconfirmedCloses)
	}
	if stats.PendingTS != 180_000 {
		t.Errorf("PendingTS = %d, want 180000", stats.PendingTS)
	}

	// All accepted updates happen within one throttle interval.
	if len(beats.beats) != 1 {
		t.Fatalf("heartbeats = %d, want 1", len(beats.beats))
	}
	if beats.beats[0].Service != "stream:BTC-USDT-SWAP:1m" || beats.beats[0].Source != "okx" {
		t.Errorf("heartbeat = %+v", beats.beats[0])
	}
}

func TestRunner_RetriesStore(t *testing.T) {
	src := &scriptedSource{candles: []Candle{raw(60_000, "10", "1"), raw(120_000, "12", "0")}}
	w := &memWriter{failures: 2}

	cfg := DefaultRunnerConfig(runnerSeries)
	cfg.StoreRetries = 3
	cfg.StoreRetryDelay = time.Millisecond
	r := NewRunner(cfg, src, w, nil, nil)
	runFor(t, r)

	if w.calls != 3 {
		t.Errorf("Upsert calls = %d, want 3", w.calls)
	}
	if len(w.bars) != 1 {
		t.Errorf("stored %d bars, want 1", len(w.bars))
	}
	if r.Stats().StoreFailures != 0 {
		t.Errorf("StoreFailures = %d, want 0", r.Stats().StoreFailures)
	}
}

func TestRunner_DropsAfterRetries(t *testing.T) {
	src := &scriptedSource{candles: []Candle{raw(60_000, "10", "1"), raw(120_000, "12", "0")}}
	w := &memWriter{failures: 10}

	cfg := DefaultRunnerConfig(runnerSeries)
	cfg.StoreRetries = 2
	cfg.StoreRetryDelay = time.Millisecond
	r := NewRunner(cfg, src, w, nil, nil)
	runFor(t, r)

	if w.calls != 2 {
		t.Errorf("Upsert calls = %d, want 2", w.calls)
	}
	if r.Stats().StoreFailures != 1 {
		t.Errorf("StoreFailures = %d, want 1", r.Stats().StoreFailures)
	}
}

func TestRunner_ReturnsSourceError(t *testing.T) {
	boom := errors.New("boom")
	r := NewRunner(DefaultRunnerConfig(runnerSeries), sourceFunc(func(ctx context.Context, handle func(Candle)) error {
		return boom
	}), &memWriter{}, nil, nil)

	if err := r.Run(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Run() = %v, want boom", err)
	}
}

type sourceFunc func(ctx context.Context, handle func(Candle)) error

func (f sourceFunc) Run(ctx context.Context, handle func(Candle)) error { return f(ctx, handle) }

// stallingBeats blocks until its context ends.
type stallingBeats struct{}

func (stallingBeats) Beat(ctx context.Context, hb model.Heartbeat) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(3 * time.Second):
		return nil
	}
}

func TestRunner_StalledHeartbeatDoesNotBlockStream(t *testing.T) {
	src := &scriptedSource{candles: []Candle{
		raw(60_000, "10", "1"),
		raw(120_000, "11", "1"),
		raw(180_000, "12", "0"),
	}}
	w := &memWriter{}

	cfg := DefaultRunnerConfig(runnerSeries)
	cfg.StoreTimeout = 50 * time.Millisecond
	r := NewRunner(cfg, src, w, stallingBeats{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Run(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() error: %v", err)
	}

	if len(w.bars) != 2 {
		t.Errorf("stored %d bars, want 2", len(w.bars))
	}
}
