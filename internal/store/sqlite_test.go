package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/barsync/internal/failure"
	"github.com/rickgao/barsync/internal/model"
)

var testSeries = model.Series{Source: "okx", Symbol: "BTC-USDT-SWAP", Timeframe: model.Minute1}

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "bars.db"), nil)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func bar(ts int64, close float64) model.Bar {
	return model.Bar{
		Source: testSeries.Source, Symbol: testSeries.Symbol, Timeframe: testSeries.Timeframe,
		TS: ts, Open: close, High: close + 1, Low: close - 1, Close: close, Volume: 10,
	}
}

func TestSQLite_UpsertEmpty(t *testing.T) {
	s := newTestSQLite(t)

	res, err := s.Upsert(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Written)
	assert.False(t, res.HasLatest())
}

func TestSQLite_UpsertIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	first := bar(60_000, 100)
	second := bar(60_000, 105)

	_, err := s.Upsert(ctx, []model.Bar{first})
	require.NoError(t, err)
	res, err := s.Upsert(ctx, []model.Bar{second})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Written)
	assert.Equal(t, int64(60_000), res.LatestTS)

	n, err := s.Count(ctx, testSeries)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	bars, err := s.Fetch(ctx, Query{Series: testSeries, Ascending: true})
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, second, bars[0])
}

func TestSQLite_UpsertDuplicateKeysInOneBatch(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	res, err := s.Upsert(ctx, []model.Bar{bar(60_000, 1), bar(60_000, 2), bar(120_000, 3)})
	require.NoError(t, err)
	assert.Equal(t, int64(120_000), res.LatestTS)

	n, err := s.Count(ctx, testSeries)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	bars, err := s.Fetch(ctx, Query{Series: testSeries, Ascending: true})
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 2.0, bars[0].Close)
}

func TestSQLite_FetchRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	in := []model.Bar{bar(180_000, 3), bar(60_000, 1), bar(120_000, 2), bar(240_000, 4)}
	_, err := s.Upsert(ctx, in)
	require.NoError(t, err)

	asc, err := s.Fetch(ctx, Query{Series: testSeries, Ascending: true})
	require.NoError(t, err)
	require.Len(t, asc, 4)
	for i, b := range asc {
		assert.Equal(t, int64(i+1)*60_000, b.TS)
		assert.Equal(t, float64(i+1), b.Close)
	}

	desc, err := s.Fetch(ctx, Query{Series: testSeries, Limit: 2})
	require.NoError(t, err)
	require.Len(t, desc, 2)
	assert.Equal(t, int64(240_000), desc[0].TS)
	assert.Equal(t, int64(180_000), desc[1].TS)

	ranged, err := s.Fetch(ctx, Query{Series: testSeries, From: 120_000, To: 180_000, Ascending: true})
	require.NoError(t, err)
	require.Len(t, ranged, 2)
	assert.Equal(t, int64(120_000), ranged[0].TS)

	other := testSeries
	other.Timeframe = model.Hour1
	none, err := s.Fetch(ctx, Query{Series: other})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLite_LatestTimestampsExists(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	_, ok, err := s.LatestTS(ctx, testSeries)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Upsert(ctx, []model.Bar{bar(300, 1), bar(100, 1), bar(200, 1)})
	require.NoError(t, err)

	latest, ok, err := s.LatestTS(ctx, testSeries)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(300), latest)

	ts, err := s.Timestamps(ctx, testSeries)
	require.NoError(t, err)
	assert.Equal(t, []int64{100, 200, 300}, ts)

	exists, err := s.Exists(ctx, testSeries, 200)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.Exists(ctx, testSeries, 250)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSQLite_ConcurrentUpserts(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			batch := make([]model.Bar, 0, 50)
			for i := int64(1); i <= 50; i++ {
				batch = append(batch, bar(i*60_000, float64(w)))
			}
			_, err := s.Upsert(ctx, batch)
			assert.NoError(t, err)
		}(w)
	}
	wg.Wait()

	n, err := s.Count(ctx, testSeries)
	require.NoError(t, err)
	assert.Equal(t, int64(50), n)
}

func TestSQLite_Heartbeats(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	_, ok, err := s.LastBeat(ctx, "okx", "poller:BTC-USDT:1m")
	require.NoError(t, err)
	assert.False(t, ok)

	for _, ts := range []int64{1000, 3000, 2000, 3000} {
		require.NoError(t, s.Beat(ctx, model.Heartbeat{Source: "okx", Service: "poller:BTC-USDT:1m", TS: ts}))
	}
	require.NoError(t, s.Beat(ctx, model.Heartbeat{Source: "okx", Service: "stream:BTC-USDT:1m", TS: 9000}))

	last, ok, err := s.LastBeat(ctx, "okx", "poller:BTC-USDT:1m")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(3000), last)
}

func TestSQLite_ErrorsAreStoreErrors(t *testing.T) {
	s := newTestSQLite(t)
	s.Close()

	_, err := s.Count(context.Background(), testSeries)
	require.Error(t, err)

	var storeErr *failure.StoreError
	assert.True(t, errors.As(err, &storeErr))
	assert.Equal(t, failure.KindStore, failure.KindOf(err))
}
