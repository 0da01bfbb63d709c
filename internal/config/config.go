package config

import (
	"time"
)

type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Scanner  ScannerConfig  `mapstructure:"scanner"`
}

type LoggerConfig struct {
	Level       string   `mapstructure:"level"`
	Format      string   `mapstructure:"format"`
	OutputPaths []string `mapstructure:"output_paths"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	MaxRetries   int           `mapstructure:"max_retries"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type WorkerConfig struct {
	Count             int           `mapstructure:"count"`
	QueuePollInterval time.Duration `mapstructure:"queue_poll_interval"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
}

// ScannerConfig bounds the passive probes. Timeouts apply to the single
// blocking network call each probe makes; a hit produces a failed-status
// finding, never an aborted scan.
type ScannerConfig struct {
	AnalysisVersion string        `mapstructure:"analysis_version"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	UserAgent       string        `mapstructure:"user_agent"`
	DNSTimeout      time.Duration `mapstructure:"dns_timeout"`
	TLSTimeout      time.Duration `mapstructure:"tls_timeout"`
	HTTPTimeout     time.Duration `mapstructure:"http_timeout"`
	TLSPort         int           `mapstructure:"tls_port"`
	RateLimit       RateLimit     `mapstructure:"rate_limit"`
}

type RateLimit struct {
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	BurstSize         int           `mapstructure:"burst_size"`
	MinDelay          time.Duration `mapstructure:"min_delay"`
}

// Defaults fills zero-valued fields programmatically; no YAML files are
// consulted, configuration comes from flags and environment only.
func (c *Config) Defaults() {
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "console"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Database.MaxConnections == 0 {
		c.Database.MaxConnections = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = time.Hour
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}
	if c.Worker.Count == 0 {
		c.Worker.Count = 3
	}
	if c.Worker.QueuePollInterval == 0 {
		c.Worker.QueuePollInterval = 5 * time.Second
	}
	if c.Worker.MaxRetries == 0 {
		c.Worker.MaxRetries = 3
	}
	if c.Worker.RetryDelay == 0 {
		c.Worker.RetryDelay = 10 * time.Second
	}
	c.Scanner.Defaults()
}

// Defaults mirrors the limits of the original analysis pipeline: 5s DNS,
// 8s TLS handshake, 24h result cache.
func (s *ScannerConfig) Defaults() {
	if s.AnalysisVersion == "" {
		s.AnalysisVersion = "v1"
	}
	if s.CacheTTL == 0 {
		s.CacheTTL = 24 * time.Hour
	}
	if s.UserAgent == "" {
		s.UserAgent = "domainrisk-scanner/1.0"
	}
	if s.DNSTimeout == 0 {
		s.DNSTimeout = 5 * time.Second
	}
	if s.TLSTimeout == 0 {
		s.TLSTimeout = 8 * time.Second
	}
	if s.HTTPTimeout == 0 {
		s.HTTPTimeout = 15 * time.Second
	}
	if s.TLSPort == 0 {
		s.TLSPort = 443
	}
	if s.RateLimit.RequestsPerSecond == 0 {
		s.RateLimit.RequestsPerSecond = 10
	}
	if s.RateLimit.BurstSize == 0 {
		s.RateLimit.BurstSize = 5
	}
	if s.RateLimit.MinDelay == 0 {
		s.RateLimit.MinDelay = 100 * time.Millisecond
	}
}
