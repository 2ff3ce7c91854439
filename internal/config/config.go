package config

import "time"

// Config is the root configuration for barsync.
type Config struct {
	Exchange ExchangeConfig `yaml:"exchange"`
	Market   MarketConfig   `yaml:"market"`
	Poller   PollerConfig   `yaml:"poller"`
	Stream   StreamConfig   `yaml:"stream"`
	Backfill BackfillConfig `yaml:"backfill"`
	Gaps     GapsConfig     `yaml:"gaps"`
	Database DatabaseConfig `yaml:"database"`
	Health   HealthConfig   `yaml:"health"`
	Log      LogConfig      `yaml:"log"`
}

// ExchangeConfig holds OKX endpoint settings.
type ExchangeConfig struct {
	Source  string        `yaml:"source"` // Value stored in the bars.source column
	RestURL string        `yaml:"rest_url"`
	WSURL   string        `yaml:"ws_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// MarketConfig selects the series to ingest.
type MarketConfig struct {
	Symbol    string `yaml:"symbol"`    // e.g. BTC-USDT-SWAP
	Timeframe string `yaml:"timeframe"` // e.g. 1m, 1h
}

// PollerConfig holds REST poller settings.
type PollerConfig struct {
	Interval      time.Duration `yaml:"interval"`
	Limit         int           `yaml:"limit"`
	ErrorBackoff  time.Duration `yaml:"error_backoff"` // Minimum sleep after a failed cycle
	ConfirmedOnly bool          `yaml:"confirmed_only"`
}

// StreamConfig holds WebSocket ingestion settings.
type StreamConfig struct {
	Enabled            *bool         `yaml:"enabled"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	ReadTimeout        time.Duration `yaml:"read_timeout"`
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval"`
	BufferSize         int           `yaml:"buffer_size"`
	StoreRetries       int           `yaml:"store_retries"`
}

// IsEnabled reports whether streaming ingestion should run. Defaults to true.
func (s StreamConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// BackfillConfig holds historical backfill settings.
type BackfillConfig struct {
	TargetRows int64 `yaml:"target_rows"`
	PageSize   int   `yaml:"page_size"`
	MaxPages   int   `yaml:"max_pages"` // 0 = unbounded
}

// GapsConfig holds gap detection and repair settings.
type GapsConfig struct {
	MaxHoles    int `yaml:"max_holes"`
	MaxRounds   int `yaml:"max_rounds"`
	PageSize    int `yaml:"page_size"`
	ReportLimit int `yaml:"report_limit"`
}

// DatabaseConfig selects and configures the bar store backend.
type DatabaseConfig struct {
	Driver   string       `yaml:"driver"` // "postgres" or "sqlite"
	Postgres DBConfig     `yaml:"postgres"`
	SQLite   SQLiteConfig `yaml:"sqlite"`
}

// DBConfig holds a single PostgreSQL connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// SQLiteConfig holds the local SQLite database location.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// HealthConfig holds health endpoint settings.
type HealthConfig struct {
	Port int `yaml:"port"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // text|json
}
