package heartbeat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rickgao/barsync/internal/model"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestThrottle_FiresOncePerInterval(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	var fired []time.Time
	th := NewThrottle(30*time.Second, func(at time.Time) { fired = append(fired, at) }).WithClock(clock.now)

	if !th.Touch() {
		t.Fatal("first Touch should fire")
	}
	clock.advance(10 * time.Second)
	if th.Touch() {
		t.Error("Touch within interval should not fire")
	}
	clock.advance(20 * time.Second)
	if !th.Touch() {
		t.Error("Touch after a full interval should fire")
	}

	if len(fired) != 2 {
		t.Fatalf("fired %d times, want 2", len(fired))
	}
	if got := fired[1].Sub(fired[0]); got != 30*time.Second {
		t.Errorf("gap between fires = %v, want 30s", got)
	}
}

func TestThrottle_Burst(t *testing.T) {
	tests := []struct {
		name     string
		updates  int
		spacing  time.Duration
		interval time.Duration
	}{
		{"1000 updates in 10s", 1000, 10 * time.Millisecond, 30 * time.Second},
		{"1000 updates in 100s", 1000, 100 * time.Millisecond, 30 * time.Second},
		{"1000 updates in 1000s", 1000, time.Second, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{t: time.Unix(0, 0)}
			count := 0
			th := NewThrottle(tt.interval, func(time.Time) { count++ }).WithClock(clock.now)

			for i := 0; i < tt.updates; i++ {
				th.Touch()
				clock.advance(tt.spacing)
			}

			window := time.Duration(tt.updates) * tt.spacing
			limit := int((window + tt.interval - 1) / tt.interval)
			if count > limit {
				t.Errorf("fired %d times, want at most %d", count, limit)
			}
			if count < 1 {
				t.Error("expected at least one fire")
			}
		})
	}
}

type recorder struct {
	beats []model.Heartbeat
	err   error
}

func (r *recorder) Beat(ctx context.Context, hb model.Heartbeat) error {
	r.beats = append(r.beats, hb)
	return r.err
}

func TestStoreSink(t *testing.T) {
	rec := &recorder{}
	sink := StoreSink(context.Background(), rec, "okx", "stream:BTC-USDT:1m", 0, nil)

	at := time.UnixMilli(1700000000123)
	sink(at)

	if len(rec.beats) != 1 {
		t.Fatalf("len(beats) = %d, want 1", len(rec.beats))
	}
	want := model.Heartbeat{Source: "okx", Service: "stream:BTC-USDT:1m", TS: 1700000000123}
	if rec.beats[0] != want {
		t.Errorf("beat = %+v, want %+v", rec.beats[0], want)
	}

	// Errors are swallowed.
	rec.err = errors.New("db down")
	sink(at.Add(time.Minute))
	if len(rec.beats) != 2 {
		t.Errorf("len(beats) = %d, want 2", len(rec.beats))
	}
}

func TestServiceName(t *testing.T) {
	s := model.Series{Source: "okx", Symbol: "ETH-USDT", Timeframe: model.Hour4}
	if got := ServiceName("poller", s); got != "poller:ETH-USDT:4h" {
		t.Errorf("ServiceName() = %q, want %q", got, "poller:ETH-USDT:4h")
	}
}

// stallingRecorder blocks until its context ends.
type stallingRecorder struct{}

func (stallingRecorder) Beat(ctx context.Context, hb model.Heartbeat) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(3 * time.Second):
		return nil
	}
}

func TestStoreSink_Timeout(t *testing.T) {
	sink := StoreSink(context.Background(), stallingRecorder{}, "okx", "stream:BTC-USDT:1m", 50*time.Millisecond, nil)

	start := time.Now()
	sink(time.Now())

	if elapsed := time.Since(start); elapsed >= time.Second {
		t.Errorf("sink took %v, want about 50ms", elapsed)
	}
}
