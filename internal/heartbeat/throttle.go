package heartbeat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/barsync/internal/model"
)

// Recorder persists heartbeats. store.HeartbeatStore implements it.
type Recorder interface {
	Beat(ctx context.Context, hb model.Heartbeat) error
}

// Throttle forwards Touch calls to a sink at most once per interval.
type Throttle struct {
	interval time.Duration
	now      func() time.Time
	sink     func(time.Time)

	mu    sync.Mutex
	last  time.Time
	fired bool
}

// NewThrottle creates a Throttle calling sink with the current time.
func NewThrottle(interval time.Duration, sink func(time.Time)) *Throttle {
	return &Throttle{
		interval: interval,
		now:      time.Now,
		sink:     sink,
	}
}

// WithClock replaces the time source. Intended for tests.
func (t *Throttle) WithClock(now func() time.Time) *Throttle {
	t.now = now
	return t
}

// Touch reports activity. It returns true when the sink was called.
func (t *Throttle) Touch() bool {
	now := t.now()

	t.mu.Lock()
	if t.fired && now.Sub(t.last) < t.interval {
		t.mu.Unlock()
		return false
	}
	t.last = now
	t.fired = true
	t.mu.Unlock()

	if t.sink != nil {
		t.sink(now)
	}
	return true
}

// StoreSink returns a sink that records a heartbeat for service. Each write is
// bounded by timeout when it is positive. Failures are logged and otherwise
// ignored: a missed heartbeat must not stop ingestion.
func StoreSink(ctx context.Context, rec Recorder, source, service string, timeout time.Duration, logger *slog.Logger) func(time.Time) {
	if logger == nil {
		logger = slog.Default()
	}
	return func(at time.Time) {
		beatCtx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			beatCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		hb := model.Heartbeat{Source: source, Service: service, TS: at.UnixMilli()}
		if err := rec.Beat(beatCtx, hb); err != nil {
			logger.Warn("failed to record heartbeat",
				"service", service,
				"error", err,
			)
		}
	}
}

// ServiceName builds the heartbeat service name of a component for a series.
func ServiceName(component string, s model.Series) string {
	return component + ":" + s.Symbol + ":" + string(s.Timeframe)
}
