package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/rickgao/barsync/internal/failure"
	"github.com/rickgao/barsync/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS bars (
	source    TEXT    NOT NULL,
	symbol    TEXT    NOT NULL,
	timeframe TEXT    NOT NULL,
	ts        INTEGER NOT NULL,
	open      REAL    NOT NULL,
	high      REAL    NOT NULL,
	low       REAL    NOT NULL,
	close     REAL    NOT NULL,
	volume    REAL    NOT NULL,
	PRIMARY KEY (source, symbol, timeframe, ts)
);

CREATE TABLE IF NOT EXISTS heartbeats (
	source  TEXT    NOT NULL,
	service TEXT    NOT NULL,
	ts      INTEGER NOT NULL,
	PRIMARY KEY (source, service, ts)
);
`

const sqliteUpsertBar = `
	INSERT INTO bars (source, symbol, timeframe, ts, open, high, low, close, volume)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (source, symbol, timeframe, ts) DO UPDATE SET
		open = excluded.open,
		high = excluded.high,
		low = excluded.low,
		close = excluded.close,
		volume = excluded.volume
`

// SQLite is a single-file local store.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens (or creates) the database at path and ensures the schema.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &failure.StoreError{Op: "open", Err: fmt.Errorf("create data directory: %w", err)}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, &failure.StoreError{Op: "open", Err: err}
	}

	// One writer at a time; the driver serializes through this connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &failure.StoreError{Op: "open", Err: fmt.Errorf("ping: %w", err)}
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, &failure.StoreError{Op: "open", Err: fmt.Errorf("initialize schema: %w", err)}
	}

	logger.Info("sqlite store opened", "path", path)

	return &SQLite{db: db, logger: logger}, nil
}

// Upsert writes all bars in one transaction.
func (s *SQLite) Upsert(ctx context.Context, bars []model.Bar) (UpsertResult, error) {
	if len(bars) == 0 {
		return UpsertResult{}, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return UpsertResult{}, &failure.StoreError{Op: "upsert", Err: fmt.Errorf("begin tx: %w", err)}
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, sqliteUpsertBar)
	if err != nil {
		return UpsertResult{}, &failure.StoreError{Op: "upsert", Err: fmt.Errorf("prepare: %w", err)}
	}
	defer stmt.Close()

	for i, b := range bars {
		if _, err := stmt.ExecContext(ctx,
			b.Source, b.Symbol, string(b.Timeframe), b.TS,
			b.Open, b.High, b.Low, b.Close, b.Volume,
		); err != nil {
			return UpsertResult{}, &failure.StoreError{Op: "upsert", Err: fmt.Errorf("row %d: %w", i, err)}
		}
	}

	if err := tx.Commit(); err != nil {
		return UpsertResult{}, &failure.StoreError{Op: "upsert", Err: fmt.Errorf("commit: %w", err)}
	}

	res := summarize(bars)
	s.logger.Debug("upserted bars", "count", res.Written, "latest_ts", res.LatestTS)
	return res, nil
}

// Fetch reads bars matching q.
func (s *SQLite) Fetch(ctx context.Context, q Query) ([]model.Bar, error) {
	query, args := buildFetch(q, func(int) string { return "?" })

	rows, err := s.db.QueryContext(ctx, query, args...)
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
func (s *SQLite) LatestTS(ctx context.Context, series model.Series) (int64, bool, error) {
	var ts sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(ts) FROM bars WHERE source = ? AND symbol = ? AND timeframe = ?`,
		series.Source, series.Symbol, string(series.Timeframe),
	).Scan(&ts)
	if err != nil {
		return 0, false, &failure.StoreError{Op: "latest ts", Err: err}
	}
	return ts.Int64, ts.Valid, nil
}

// Count returns the number of rows in the series.
func (s *SQLite) Count(ctx context.Context, series model.Series) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bars WHERE source = ? AND symbol = ? AND timeframe = ?`,
		series.Source, series.Symbol, string(series.Timeframe),
	).Scan(&n)
	if err != nil {
		return 0, &failure.StoreError{Op: "count", Err: err}
	}
	return n, nil
}

// Timestamps returns all stored ts of the series, ascending.
func (s *SQLite) Timestamps(ctx context.Context, series model.Series) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts FROM bars WHERE source = ? AND symbol = ? AND timeframe = ? ORDER BY ts ASC`,
		series.Source, series.Symbol, string(series.Timeframe),
	)
	if err != nil {
		return nil, &failure.StoreError{Op: "timestamps", Err: err}
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			return nil, &failure.StoreError{Op: "timestamps", Err: err}
		}
		out = append(out, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, &failure.StoreError{Op: "timestamps", Err: err}
	}
	return out, nil
}

// Exists reports whether the bar at ts is stored.
func (s *SQLite) Exists(ctx context.Context, series model.Series, ts int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM bars WHERE source = ? AND symbol = ? AND timeframe = ? AND ts = ?`,
		series.Source, series.Symbol, string(series.Timeframe), ts,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, &failure.StoreError{Op: "exists", Err: err}
	}
	return true, nil
}

// Beat inserts a heartbeat row.
func (s *SQLite) Beat(ctx context.Context, hb model.Heartbeat) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO heartbeats (source, service, ts) VALUES (?, ?, ?)
		 ON CONFLICT (source, service, ts) DO NOTHING`,
		hb.Source, hb.Service, hb.TS,
	)
	if err != nil {
		return &failure.StoreError{Op: "beat", Err: err}
	}
	return nil
}

// LastBeat returns the newest heartbeat of a service.
func (s *SQLite) LastBeat(ctx context.Context, source, service string) (int64, bool, error) {
	var ts int64
	err := s.db.QueryRowContext(ctx,
		`SELECT ts FROM heartbeats WHERE source = ? AND service = ? ORDER BY ts DESC LIMIT 1`,
		source, service,
	).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, &failure.StoreError{Op: "last beat", Err: err}
	}
	return ts, true, nil
}

// Ping verifies the database is reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &failure.StoreError{Op: "ping", Err: err}
	}
	return nil
}

// Close closes the database.
func (s *SQLite) Close() {
	if err := s.db.Close(); err != nil {
		s.logger.Warn("close sqlite store", "error", err)
	}
}
