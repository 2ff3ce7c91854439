package gaps

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/barsync/internal/exchange"
	"github.com/rickgao/barsync/internal/model"
	"github.com/rickgao/barsync/internal/store"
)

var testSeries = model.Series{Source: "okx", Symbol: "ETH-USDT-SWAP", Timeframe: model.Minute1}

const step = int64(60_000)

func bar(i int64) model.Bar {
	return model.Bar{
		Source: testSeries.Source, Symbol: testSeries.Symbol, Timeframe: testSeries.Timeframe,
		TS: i * step, Open: 10, High: 11, Low: 9, Close: 10, Volume: 1,
	}
}

func bars(from, to int64) []model.Bar {
	var out []model.Bar
	for i := from; i <= to; i++ {
		out = append(out, bar(i))
	}
	return out
}

// history pages bars the way the history endpoint does. Rows whose ts is in
// malformed come back from the exchange but fail normalization.
type history struct {
	mu        sync.Mutex
	bars      []model.Bar
	malformed map[int64]bool
	calls     []exchange.FetchRequest
}

func (h *history) FetchPage(ctx context.Context, req exchange.FetchRequest) (exchange.Page, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, req)

	var older []model.Bar
	for _, b := range h.bars {
		if req.After == 0 || b.TS < req.After {
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

func newStore(t *testing.T, seed ...[]model.Bar) *store.SQLite {
	t.Helper()
	s, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "bars.db"), nil)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	for _, b := range seed {
		_, err := s.Upsert(context.Background(), b)
		require.NoError(t, err)
	}
	return s
}

func fillConfig(pageSize int) FillConfig {
	cfg := DefaultFillConfig(testSeries)
	cfg.PageSize = pageSize
	return cfg
}

func TestFiller_ClosesHole(t *testing.T) {
	ctx := context.Background()
	st := newStore(t, bars(1, 40), bars(61, 100))
	h := &history{bars: bars(1, 100)}

	before, err := Scan(ctx, st, testSeries)
	require.NoError(t, err)
	require.Len(t, before.Holes, 1)
	assert.Equal(t, int64(20), before.Holes[0].Missing)

	res, err := NewFiller(fillConfig(10), h, st, nil).Fill(ctx, before.Holes)
	require.NoError(t, err)

	require.Len(t, res.Holes, 1)
	hr := res.Holes[0]
	assert.True(t, hr.Closed)
	assert.Equal(t, StopFirstMissingFound, hr.StopReason)
	assert.Equal(t, 2, hr.Rounds)
	assert.Equal(t, 20, res.Written)

	require.Len(t, h.calls, 2)
	assert.Equal(t, 61*step, h.calls[0].After)
	assert.Equal(t, 51*step, h.calls[1].After)
	assert.True(t, h.calls[0].History)
	assert.True(t, h.calls[0].ConfirmedOnly)

	after, err := Scan(ctx, st, testSeries)
	require.NoError(t, err)
	assert.True(t, after.Clean())
	assert.Equal(t, 100, after.Rows)
}

func TestFiller_ExchangeAlsoMissing(t *testing.T) {
	ctx := context.Background()
	st := newStore(t, bars(1, 40), bars(61, 100))
	h := &history{bars: append(bars(1, 40), bars(61, 100)...)}

	report, err := Scan(ctx, st, testSeries)
	require.NoError(t, err)

	res, err := NewFiller(fillConfig(10), h, st, nil).Fill(ctx, report.Holes)
	require.NoError(t, err)

	require.Len(t, res.Holes, 1)
	assert.False(t, res.Holes[0].Closed)
	assert.Equal(t, StopPassedHole, res.Holes[0].StopReason)
	assert.Equal(t, 1, res.Holes[0].Rounds)
}

func TestFiller_PagesPastMalformedRows(t *testing.T) {
	ctx := context.Background()
	st := newStore(t, bars(1, 40), bars(61, 100))
	h := &history{bars: bars(1, 100), malformed: map[int64]bool{}}
	for i := int64(51); i <= 60; i++ {
		h.malformed[i*step] = true
	}

	report, err := Scan(ctx, st, testSeries)
	require.NoError(t, err)

	res, err := NewFiller(fillConfig(10), h, st, nil).Fill(ctx, report.Holes)
	require.NoError(t, err)

	require.Len(t, res.Holes, 1)
	hr := res.Holes[0]
	assert.True(t, hr.Closed)
	assert.Equal(t, StopFirstMissingFound, hr.StopReason)
	assert.Equal(t, 2, hr.Rounds)
	assert.Equal(t, 10, hr.Written)
	assert.Equal(t, 10, hr.Skipped)

	require.Len(t, h.calls, 2)
	assert.Equal(t, 51*step, h.calls[1].After)
}

func TestFiller_RoundsExhausted(t *testing.T) {
	ctx := context.Background()
	st := newStore(t, bars(1, 10), bars(91, 100))
	h := &history{bars: bars(1, 100)}

	report, err := Scan(ctx, st, testSeries)
	require.NoError(t, err)

	cfg := fillConfig(10)
	cfg.MaxRounds = 1

	res, err := NewFiller(cfg, h, st, nil).Fill(ctx, report.Holes)
	require.NoError(t, err)

	require.Len(t, res.Holes, 1)
	assert.Equal(t, StopRoundsExhausted, res.Holes[0].StopReason)
	assert.Equal(t, 10, res.Written)
}

func TestFiller_EmptyHistory(t *testing.T) {
	st := newStore(t)
	h := &history{}

	res, err := NewFiller(fillConfig(10), h, st, nil).Fill(context.Background(), []Hole{
		{PrevTS: 1 * step, NextTS: 5 * step, Diff: 4 * step, Missing: 3},
	})
	require.NoError(t, err)

	require.Len(t, res.Holes, 1)
	assert.Equal(t, StopExhausted, res.Holes[0].StopReason)
	assert.Equal(t, 0, res.Written)
}

func TestFiller_MaxHoles(t *testing.T) {
	st := newStore(t)
	h := &history{}

	cfg := fillConfig(10)
	cfg.MaxHoles = 2

	holes := []Hole{
		{PrevTS: 1 * step, NextTS: 3 * step},
		{PrevTS: 5 * step, NextTS: 7 * step},
		{PrevTS: 9 * step, NextTS: 11 * step},
	}

	res, err := NewFiller(cfg, h, st, nil).Fill(context.Background(), holes)
	require.NoError(t, err)

	assert.Len(t, res.Holes, 2)
	assert.Equal(t, 1, res.Skipped)
	assert.Len(t, h.calls, 2)
}
