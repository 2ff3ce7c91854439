package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/barsync/internal/config"
	"github.com/rickgao/barsync/internal/database"
	"github.com/rickgao/barsync/internal/failure"
	"github.com/rickgao/barsync/internal/model"
)

const pgUpsertBar = `
	INSERT INTO bars (source, symbol, timeframe, ts, open, high, low, close, volume)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (source, symbol, timeframe, ts) DO UPDATE SET
		open = EXCLUDED.open,
		high = EXCLUDED.high,
		low = EXCLUDED.low,
		close = EXCLUDED.close,
		volume = EXCLUDED.volume
`

// Postgres is the production store backed by a pgx pool.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{pool: pool, logger: logger}
}

// OpenPostgres connects a pool and wraps it.
func OpenPostgres(ctx context.Context, cfg config.DBConfig, logger *slog.Logger) (*Postgres, error) {
	pool, err := database.Connect(ctx, cfg)
	if err != nil {
		return nil, &failure.StoreError{Op: "connect", Err: err}
	}
	return NewPostgres(pool, logger), nil
}

// Upsert writes all bars in one transaction using a pgx batch.
func (s *Postgres) Upsert(ctx context.Context, bars []model.Bar) (UpsertResult, error) {
	if len(bars) == 0 {
		return UpsertResult{}, nil
	}
	start := time.Now()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return UpsertResult{}, &failure.StoreError{Op: "upsert", Err: fmt.Errorf("begin tx: %w", err)}
	}
	// Rollback after a successful commit is a no-op.
	defer tx.Rollback(context.Background())

	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(pgUpsertBar,
			b.Source, b.Symbol, string(b.Timeframe), b.TS,
			b.Open, b.High, b.Low, b.Close, b.Volume,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for i := range bars {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return UpsertResult{}, &failure.StoreError{Op: "upsert", Err: fmt.Errorf("row %d: %w", i, err)}
		}
	}
	if err := results.Close(); err != nil {
		return UpsertResult{}, &failure.StoreError{Op: "upsert", Err: fmt.Errorf("close batch: %w", err)}
	}

	if err := tx.Commit(ctx); err != nil {
		return UpsertResult{}, &failure.StoreError{Op: "upsert", Err: fmt.Errorf("commit: %w", err)}
	}

	res := summarize(bars)
	s.logger.Debug("upserted bars",
		"count", res.Written,
		"latest_ts", res.LatestTS,
		"duration", time.Since(start),
	)
	return res, nil
}

// Fetch reads bars matching q.
func (s *Postgres) Fetch(ctx context.Context, q Query) ([]model.Bar, error) {
	sql, args := buildFetch(q, func(n int) string { return "$" + strconv.Itoa(n) })

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, &failure.StoreError{Op: "fetch", Err: err}
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var (
			b  model.Bar
			tf string
		)
		if err := rows.Scan(&b.Source, &b.Symbol, &tf, &b.TS, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, &failure.StoreError{Op: "fetch", Err: fmt.Errorf("scan: %w", err)}
		}
		b.Timeframe = model.Timeframe(tf)
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, &failure.StoreError{Op: "fetch", Err: err}
	}
	return bars, nil
}

// LatestTS returns the newest ts of the series.
func (s *Postgres) LatestTS(ctx context.Context, series model.Series) (int64, bool, error) {
	var ts *int64
	err := s.pool.QueryRow(ctx,
		`SELECT MAX(ts) FROM bars WHERE source = $1 AND symbol = $2 AND timeframe = $3`,
		series.Source, series.Symbol, string(series.Timeframe),
	).Scan(&ts)
	if err != nil {
		return 0, false, &failure.StoreError{Op: "latest ts", Err: err}
	}
	if ts == nil {
		return 0, false, nil
	}
	return *ts, true, nil
}

// Count returns the number of rows in the series.
func (s *Postgres) Count(ctx context.Context, series model.Series) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM bars WHERE source = $1 AND symbol = $2 AND timeframe = $3`,
		series.Source, series.Symbol, string(series.Timeframe),
	).Scan(&n)
	if err != nil {
		return 0, &failure.StoreError{Op: "count", Err: err}
	}
	return n, nil
}

// Timestamps returns all stored ts of the series, ascending.
func (s *Postgres) Timestamps(ctx context.Context, series model.Series) ([]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT ts FROM bars WHERE source = $1 AND symbol = $2 AND timeframe = $3 ORDER BY ts ASC`,
		series.Source, series.Symbol, string(series.Timeframe),
	)
	if err != nil {
		return nil, &failure.StoreError{Op: "timestamps", Err: err}
	}

	ts, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, &failure.StoreError{Op: "timestamps", Err: err}
	}
	return ts, nil
}

// Exists reports whether the bar at ts is stored.
func (s *Postgres) Exists(ctx context.Context, series model.Series, ts int64) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM bars WHERE source = $1 AND symbol = $2 AND timeframe = $3 AND ts = $4`,
		series.Source, series.Symbol, string(series.Timeframe), ts,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, &failure.StoreError{Op: "exists", Err: err}
	}
	return true, nil
}

// Beat inserts a heartbeat row.
func (s *Postgres) Beat(ctx context.Context, hb model.Heartbeat) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO heartbeats (source, service, ts) VALUES ($1, $2, $3)
		 ON CONFLICT (source, service, ts) DO NOTHING`,
		hb.Source, hb.Service, hb.TS,
	)
	if err != nil {
		return &failure.StoreError{Op: "beat", Err: err}
	}
	return nil
}

// LastBeat returns the newest heartbeat of a service.
func (s *Postgres) LastBeat(ctx context.Context, source, service string) (int64, bool, error) {
	var ts int64
	err := s.pool.QueryRow(ctx,
		`SELECT ts FROM heartbeats WHERE source = $1 AND service = $2 ORDER BY ts DESC LIMIT 1`,
		source, service,
	).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, &failure.StoreError{Op: "last beat", Err: err}
	}
	return ts, true, nil
}

// Ping verifies the pool is healthy.
func (s *Postgres) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return &failure.StoreError{Op: "ping", Err: err}
	}
	return nil
}

// Close releases the pool.
func (s *Postgres) Close() {
	s.pool.Close()
}
