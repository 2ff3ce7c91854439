package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rickgao/barsync/internal/config"
	"github.com/rickgao/barsync/internal/model"
)

// BarStore is idempotent bar persistence.
type BarStore interface {
	// Upsert writes bars in one transaction. Empty input is a no-op.
	Upsert(ctx context.Context, bars []model.Bar) (UpsertResult, error)

	// Fetch reads bars of one series.
	Fetch(ctx context.Context, q Query) ([]model.Bar, error)

	// LatestTS returns the newest stored ts, ok=false when the series is empty.
	LatestTS(ctx context.Context, s model.Series) (ts int64, ok bool, err error)

	// Count returns the number of stored bars.
	Count(ctx context.Context, s model.Series) (int64, error)

	// Timestamps returns every stored ts in ascending order.
	Timestamps(ctx context.Context, s model.Series) ([]int64, error)

	// Exists reports whether a bar with this ts is stored.
	Exists(ctx context.Context, s model.Series, ts int64) (bool, error)
}

// HeartbeatStore records service liveness.
type HeartbeatStore interface {
	// Beat inserts a heartbeat, ignoring an identical existing one.
	Beat(ctx context.Context, hb model.Heartbeat) error

	// LastBeat returns the newest heartbeat ts for a service.
	LastBeat(ctx context.Context, source, service string) (ts int64, ok bool, err error)
}

// Store is a full backend.
type Store interface {
	BarStore
	HeartbeatStore
	Ping(ctx context.Context) error
	Close()
}

// UpsertResult summarizes one Upsert call.
type UpsertResult struct {
	Written  int   // Rows inserted or overwritten
	LatestTS int64 // Max ts of the written rows, 0 when nothing was written
}

// HasLatest reports whether LatestTS is meaningful.
func (r UpsertResult) HasLatest() bool {
	return r.Written > 0
}

// Query selects bars of one series. From and To are inclusive; 0 leaves the
// bound open. Limit 0 returns every match.
type Query struct {
	Series    model.Series
	From      int64
	To        int64
	Limit     int
	Ascending bool
}

// Open connects the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		return OpenPostgres(ctx, cfg.Postgres, logger)
	case "sqlite":
		return OpenSQLite(ctx, cfg.SQLite.Path, logger)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func summarize(bars []model.Bar) UpsertResult {
	res := UpsertResult{Written: len(bars)}
	for _, b := range bars {
		if b.TS > res.LatestTS {
			res.LatestTS = b.TS
		}
	}
	return res
}

// buildFetch renders the SELECT for q. placeholder renders the n-th (1-based)
// bind parameter in the backend's syntax.
func buildFetch(q Query, placeholder func(n int) string) (string, []any) {
	var sb strings.Builder
	args := []any{q.Series.Source, q.Series.Symbol, string(q.Series.Timeframe)}

	sb.WriteString(`SELECT source, symbol, timeframe, ts, open, high, low, close, volume FROM bars WHERE source = `)
	sb.WriteString(placeholder(1))
	sb.WriteString(` AND symbol = `)
	sb.WriteString(placeholder(2))
	sb.WriteString(` AND timeframe = `)
	sb.WriteString(placeholder(3))

	if q.From > 0 {
		args = append(args, q.From)
		sb.WriteString(` AND ts >= ` + placeholder(len(args)))
	}
	if q.To > 0 {
		args = append(args, q.To)
		sb.WriteString(` AND ts <= ` + placeholder(len(args)))
	}

	if q.Ascending {
		sb.WriteString(` ORDER BY ts ASC`)
	} else {
		sb.WriteString(` ORDER BY ts DESC`)
	}

	if q.Limit > 0 {
		args = append(args, q.Limit)
		sb.WriteString(` LIMIT ` + placeholder(len(args)))
	}

	return sb.String(), args
}
