package config

import (
	"errors"
	"fmt"

	"github.com/rickgao/barsync/internal/model"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Exchange.Source == "" {
		return errors.New("exchange.source is required")
	}
	if c.Exchange.RestURL == "" {
		return errors.New("exchange.rest_url is required")
	}

	if c.Market.Symbol == "" {
		return errors.New("market.symbol is required")
	}
	if _, err := model.ParseTimeframe(c.Market.Timeframe); err != nil {
		return fmt.Errorf("market.timeframe: %w", err)
	}

	if c.Poller.Interval <= 0 {
		return errors.New("poller.interval must be > 0")
	}
	// OKX caps candle pages at 300 rows (100 for history).
	if c.Poller.Limit < 1 || c.Poller.Limit > 300 {
		return fmt.Errorf("poller.limit must be between 1 and 300, got %d", c.Poller.Limit)
	}

	if c.Stream.IsEnabled() && c.Exchange.WSURL == "" {
		return errors.New("exchange.ws_url is required when streaming is enabled")
	}
	if c.Stream.ReconnectMaxDelay < c.Stream.ReconnectBaseDelay {
		return fmt.Errorf("stream.reconnect_max_delay (%v) cannot be less than reconnect_base_delay (%v)",
			c.Stream.ReconnectMaxDelay, c.Stream.ReconnectBaseDelay)
	}
	if c.Stream.BufferSize < 1 {
		return errors.New("stream.buffer_size must be >= 1")
	}

	if c.Backfill.TargetRows < 1 {
		return errors.New("backfill.target_rows must be >= 1")
	}
	if c.Backfill.PageSize < 1 || c.Backfill.PageSize > 100 {
		return fmt.Errorf("backfill.page_size must be between 1 and 100, got %d", c.Backfill.PageSize)
	}
	if c.Backfill.MaxPages < 0 {
		return errors.New("backfill.max_pages must be >= 0")
	}

	if c.Gaps.MaxHoles < 1 {
		return errors.New("gaps.max_holes must be >= 1")
	}
	if c.Gaps.MaxRounds < 1 {
		return errors.New("gaps.max_rounds must be >= 1")
	}
	if c.Gaps.PageSize < 1 || c.Gaps.PageSize > 100 {
		return fmt.Errorf("gaps.page_size must be between 1 and 100, got %d", c.Gaps.PageSize)
	}

	switch c.Database.Driver {
	case "postgres":
		if err := c.Database.Postgres.validate("database.postgres"); err != nil {
			return err
		}
	case "sqlite":
		if c.Database.SQLite.Path == "" {
			return errors.New("database.sqlite.path is required")
		}
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}

	if c.Health.Port < 1 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

// Series returns the configured time series.
func (c *Config) Series() model.Series {
	tf, _ := model.ParseTimeframe(c.Market.Timeframe)
	return model.Series{
		Source:    c.Exchange.Source,
		Symbol:    c.Market.Symbol,
		Timeframe: tf,
	}
}
