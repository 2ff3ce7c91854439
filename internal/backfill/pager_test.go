package backfill

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/barsync/internal/exchange"
	"github.com/rickgao/barsync/internal/failure"
	"github.com/rickgao/barsync/internal/model"
	"github.com/rickgao/barsync/internal/store"
)

var testSeries = model.Series{Source: "okx", Symbol: "BTC-USDT-SWAP", Timeframe: model.Minute1}

const step = int64(60_000)

func bar(i int64) model.Bar {
	return model.Bar{
		Source: testSeries.Source, Symbol: testSeries.Symbol, Timeframe: testSeries.Timeframe,
		TS: i * step, Open: 10, High: 11, Low: 9, Close: 10, Volume: 1,
	}
}

// history serves bars 1..n the way the history endpoint pages: the newest
// Limit bars strictly older than After, oldest first. Rows whose ts is in
// malformed are returned by the exchange but fail normalization.
type history struct {
	mu          sync.Mutex
	bars        []model.Bar
	malformed   map[int64]bool
	ignoreAfter bool
	err         error
	calls       []exchange.FetchRequest
}

func newHistory(n int64) *history {
	h := &history{}
	for i := int64(1); i <= n; i++ {
		h.bars = append(h.bars, bar(i))
	}
	return h
}

func (h *history) FetchPage(ctx context.Context, req exchange.FetchRequest) (exchange.Page, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, req)
	if h.err != nil {
		return exchange.Page{}, h.err
	}

	var older []model.Bar
	for _, b := range h.bars {
		if h.ignoreAfter || req.After == 0 || b.TS < req.After {
			older = append(older, b)
		}
	}
	if len(older) > req.Limit {
		older = older[len(older)-req.Limit:]
	}

	page := exchange.Page{Rows: len(older)}
	for _, b := range older {
		if page.OldestTS == 0 || b.TS < page.OldestTS {
			page.OldestTS = b.TS
		}
		if h.malformed[b.TS] {
			page.Skipped++
			continue
		}
		page.Bars = append(page.Bars, b)
	}
	return page, nil
}

func newStore(t *testing.T) *store.SQLite {
	t.Helper()
	s, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "bars.db"), nil)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestPager_EmptyFirstPage(t *testing.T) {
	h := newHistory(0)
	st := newStore(t)

	res, err := New(DefaultConfig(testSeries), h, st, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, h.calls, 1)
	assert.Equal(t, StopExhausted, res.StopReason)
	assert.Equal(t, 0, res.Written)
	assert.Equal(t, int64(0), res.EndCount)
	assert.NotEmpty(t, res.RunID)
}

func TestPager_ReachesTarget(t *testing.T) {
	h := newHistory(250)
	st := newStore(t)

	cfg := DefaultConfig(testSeries)
	cfg.Target = 120
	cfg.PageSize = 50

	res, err := New(cfg, h, st, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StopTargetReached, res.StopReason)
	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, int64(150), res.EndCount)
	assert.Equal(t, 101*step, res.Cursor)

	require.Len(t, h.calls, 3)
	assert.Equal(t, int64(0), h.calls[0].After)
	assert.Equal(t, 201*step, h.calls[1].After)
	assert.Equal(t, 151*step, h.calls[2].After)
	for _, req := range h.calls {
		assert.True(t, req.History)
		assert.True(t, req.ConfirmedOnly)
		assert.Equal(t, 50, req.Limit)
	}

	latest, ok, err := st.LatestTS(context.Background(), testSeries)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 250*step, latest)
}

func TestPager_ResumesFromLatest(t *testing.T) {
	ctx := context.Background()
	h := newHistory(100)
	st := newStore(t)

	_, err := st.Upsert(ctx, []model.Bar{bar(90)})
	require.NoError(t, err)

	cfg := DefaultConfig(testSeries)
	cfg.Target = 11
	cfg.PageSize = 10

	res, err := New(cfg, h, st, nil).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(1), res.StartCount)
	assert.Equal(t, int64(11), res.EndCount)
	require.Len(t, h.calls, 1)
	assert.Equal(t, 90*step, h.calls[0].After)
}

func TestPager_Exhausted(t *testing.T) {
	h := newHistory(30)
	st := newStore(t)

	cfg := DefaultConfig(testSeries)
	cfg.Target = 100
	cfg.PageSize = 20

	res, err := New(cfg, h, st, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StopExhausted, res.StopReason)
	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, 30, res.Fetched)
	assert.Equal(t, int64(30), res.EndCount)
}

func TestPager_MalformedPageIsNotExhaustion(t *testing.T) {
	h := newHistory(30)
	h.malformed = map[int64]bool{}
	for i := int64(11); i <= 30; i++ {
		h.malformed[i*step] = true
	}
	st := newStore(t)

	cfg := DefaultConfig(testSeries)
	cfg.Target = 100
	cfg.PageSize = 20

	res, err := New(cfg, h, st, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StopExhausted, res.StopReason)
	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, 10, res.Fetched)
	assert.Equal(t, 20, res.Skipped)
	assert.Equal(t, int64(10), res.EndCount)

	require.Len(t, h.calls, 3)
	assert.Equal(t, 11*step, h.calls[1].After)
	assert.Equal(t, 1*step, h.calls[2].After)
}

func TestPager_UndecodablePageStalls(t *testing.T) {
	st := newStore(t)
	f := pageFunc(func(ctx context.Context, req exchange.FetchRequest) (exchange.Page, error) {
		return exchange.Page{Rows: 3, Skipped: 3}, nil
	})

	res, err := New(DefaultConfig(testSeries), f, st, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StopCursorStalled, res.StopReason)
	assert.Equal(t, 1, res.Pages)
	assert.Equal(t, 3, res.Skipped)
	assert.Equal(t, int64(0), res.EndCount)
}

type pageFunc func(ctx context.Context, req exchange.FetchRequest) (exchange.Page, error)

func (f pageFunc) FetchPage(ctx context.Context, req exchange.FetchRequest) (exchange.Page, error) {
	return f(ctx, req)
}

func TestPager_CursorStalled(t *testing.T) {
	h := newHistory(10)
	h.ignoreAfter = true
	st := newStore(t)

	cfg := DefaultConfig(testSeries)
	cfg.Target = 1000

	res, err := New(cfg, h, st, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StopCursorStalled, res.StopReason)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, int64(10), res.EndCount)
}

func TestPager_MaxPages(t *testing.T) {
	h := newHistory(500)
	st := newStore(t)

	cfg := DefaultConfig(testSeries)
	cfg.PageSize = 10
	cfg.MaxPages = 2

	res, err := New(cfg, h, st, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StopMaxPages, res.StopReason)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, int64(20), res.EndCount)
}

func TestPager_FetchErrorPropagates(t *testing.T) {
	h := newHistory(10)
	h.err = &failure.TransportError{Op: "fetch candles", StatusCode: 502}
	st := newStore(t)

	res, err := New(DefaultConfig(testSeries), h, st, nil).Run(context.Background())
	require.Error(t, err)

	assert.Equal(t, failure.KindTransport, failure.KindOf(err))
	assert.Equal(t, 1, res.Pages)
	assert.Equal(t, 0, res.Written)
}
