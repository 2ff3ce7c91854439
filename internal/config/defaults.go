package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultSource             = "okx"
	DefaultRestURL            = "https://www.okx.com"
	DefaultWSURL              = "wss://ws.okx.com:8443/ws/v5/business"
	DefaultAPITimeout         = 10 * time.Second
	DefaultTimeframe          = "1m"
	DefaultPollInterval       = 60 * time.Second
	DefaultPollLimit          = 100
	DefaultErrorBackoff       = 10 * time.Second
	DefaultReconnectBaseDelay = 3 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultPingInterval       = 20 * time.Second
	DefaultReadTimeout        = 30 * time.Second
	DefaultHeartbeatInterval  = 30 * time.Second
	DefaultStreamBufferSize   = 1000
	DefaultStoreRetries       = 3
	DefaultBackfillTarget     = 5000
	DefaultPageSize           = 100
	DefaultMaxHoles           = 50
	DefaultMaxRounds          = 50
	DefaultReportLimit        = 20
	DefaultDriver             = "postgres"
	DefaultSQLitePath         = "./data/barsync.db"
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 10
	DefaultMinConns           = 2
	DefaultHealthPort         = 8080
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
)

func (c *Config) applyDefaults() {
	// Exchange defaults
	if c.Exchange.Source == "" {
		c.Exchange.Source = DefaultSource
	}
	if c.Exchange.RestURL == "" {
		c.Exchange.RestURL = DefaultRestURL
	}
	if c.Exchange.WSURL == "" {
		c.Exchange.WSURL = DefaultWSURL
	}
	if c.Exchange.Timeout == 0 {
		c.Exchange.Timeout = DefaultAPITimeout
	}

	if c.Market.Timeframe == "" {
		c.Market.Timeframe = DefaultTimeframe
	}

	// Poller defaults
	if c.Poller.Interval == 0 {
		c.Poller.Interval = DefaultPollInterval
	}
	if c.Poller.Limit == 0 {
		c.Poller.Limit = DefaultPollLimit
	}
	if c.Poller.ErrorBackoff == 0 {
		c.Poller.ErrorBackoff = DefaultErrorBackoff
	}

	// Stream defaults
	if c.Stream.ReconnectBaseDelay == 0 {
		c.Stream.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Stream.ReconnectMaxDelay == 0 {
		c.Stream.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Stream.PingInterval == 0 {
		c.Stream.PingInterval = DefaultPingInterval
	}
	if c.Stream.ReadTimeout == 0 {
		c.Stream.ReadTimeout = DefaultReadTimeout
	}
	if c.Stream.HeartbeatInterval == 0 {
		c.Stream.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Stream.BufferSize == 0 {
		c.Stream.BufferSize = DefaultStreamBufferSize
	}
	if c.Stream.StoreRetries == 0 {
		c.Stream.StoreRetries = DefaultStoreRetries
	}

	// Backfill defaults
	if c.Backfill.TargetRows == 0 {
		c.Backfill.TargetRows = DefaultBackfillTarget
	}
	if c.Backfill.PageSize == 0 {
		c.Backfill.PageSize = DefaultPageSize
	}

	// Gaps defaults
	if c.Gaps.MaxHoles == 0 {
		c.Gaps.MaxHoles = DefaultMaxHoles
	}
	if c.Gaps.MaxRounds == 0 {
		c.Gaps.MaxRounds = DefaultMaxRounds
	}
	if c.Gaps.PageSize == 0 {
		c.Gaps.PageSize = DefaultPageSize
	}
	if c.Gaps.ReportLimit == 0 {
		c.Gaps.ReportLimit = DefaultReportLimit
	}

	// Database defaults
	if c.Database.Driver == "" {
		c.Database.Driver = DefaultDriver
	}
	applyDBDefaults(&c.Database.Postgres)
	if c.Database.SQLite.Path == "" {
		c.Database.SQLite.Path = DefaultSQLitePath
	}

	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
