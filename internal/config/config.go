// Package config defines the top-level configuration for the hedge bot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by HEDGEBOT_* environment
// variables.
type Config struct {
	Exchange1 ExchangeConfig `toml:"exchange1"`
	Exchange2 ExchangeConfig `toml:"exchange2"`
	Trade     TradeConfig    `toml:"trade"`
	Risk      RiskConfig     `toml:"risk"`
	Postgres  PostgresConfig `toml:"postgres"`
	Redis     RedisConfig    `toml:"redis"`
	S3        S3Config       `toml:"s3"`
	Server    ServerConfig   `toml:"server"`
	Notify    NotifyConfig   `toml:"notify"`
	Mode      string         `toml:"mode"`
	LogLevel  string         `toml:"log_level"`
}

// ExchangeConfig holds one exchange's identity, credentials, and endpoints.
type ExchangeConfig struct {
	Name                string  `toml:"name"` // "binance" or "bybit"
	ApiKey              string  `toml:"api_key"`
	ApiSecret           string  `toml:"api_secret"`
	EncryptedSecretPath string  `toml:"encrypted_secret_path"`
	SecretPassword      string  `toml:"secret_password"`
	BaseURL             string  `toml:"base_url"`
	WsURL               string  `toml:"ws_url"`
	TakerFeeRate        float64 `toml:"taker_fee_rate"`
}

// TradeConfig holds the paired-trade execution parameters.
type TradeConfig struct {
	Symbol string `toml:"symbol"` // unified symbol, e.g. "BTCUSDT"
	Side1  string `toml:"side1"`  // "BUY" or "SELL", leg on exchange1
	Side2  string `toml:"side2"`  // opposite leg on exchange2

	MinQuantity  float64 `toml:"min_quantity"`
	MaxQuantity  float64 `toml:"max_quantity"`
	QuantityStep float64 `toml:"quantity_step"`

	// SafetyFactor scales the smaller top-of-book size so an order never
	// consumes the full displayed depth. Must be in (0, 1).
	SafetyFactor float64 `toml:"safety_factor"`

	MinNotionalUSD float64 `toml:"min_notional_usd"`

	PerLegTimeout  duration `toml:"per_leg_timeout"`
	NoTradeTimeout duration `toml:"no_trade_timeout"` // 0 disables
	TradeInterval  duration `toml:"trade_interval"`

	// MaxLegRetries bounds retry attempts on a failed leg before forcing an
	// unwind of the filled leg.
	MaxLegRetries int `toml:"max_leg_retries"`
}

// RiskConfig holds the gating thresholds applied to every signal.
type RiskConfig struct {
	MaxBookStaleness duration `toml:"max_book_staleness"`
	MaxSpreadPct     float64  `toml:"max_spread_pct"`
	MinTopDepth      float64  `toml:"min_top_depth"`
	MinProfitRate    float64  `toml:"min_profit_rate"` // baseline, before dynamic adjustment

	// Dynamic profit-rate adjustment (bounded correction from realized
	// execution quality).
	QualityWindowSize int      `toml:"quality_window_size"`
	QualityWindowAge  duration `toml:"quality_window_age"`
	MaxAdjustFactor   float64  `toml:"max_adjust_factor"` // clamp on the multiplicative correction
	RelaxStep         float64  `toml:"relax_step"`        // per-step no-trade relaxation fraction
	MaxRelaxSteps     int      `toml:"max_relax_steps"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for trade-history
// archival.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds the status HTTP server parameters.
type ServerConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Exchange1: ExchangeConfig{
			Name:         "binance",
			BaseURL:      "https://fapi.binance.com",
			WsURL:        "wss://fstream.binance.com/ws",
			TakerFeeRate: 0.0005,
		},
		Exchange2: ExchangeConfig{
			Name:         "bybit",
			BaseURL:      "https://api.bybit.com",
			WsURL:        "wss://stream.bybit.com/v5/public/linear",
			TakerFeeRate: 0.00055,
		},
		Trade: TradeConfig{
			Symbol:         "BTCUSDT",
			Side1:          "BUY",
			Side2:          "SELL",
			MinQuantity:    0.001,
			MaxQuantity:    1.0,
			QuantityStep:   0.001,
			SafetyFactor:   0.5,
			MinNotionalUSD: 50.0,
			PerLegTimeout:  duration{5 * time.Second},
			NoTradeTimeout: duration{30 * time.Minute},
			TradeInterval:  duration{100 * time.Millisecond},
			MaxLegRetries:  2,
		},
		Risk: RiskConfig{
			MaxBookStaleness:  duration{1 * time.Second},
			MaxSpreadPct:      0.0015,
			MinTopDepth:       0.01,
			MinProfitRate:     0.0005,
			QualityWindowSize: 10,
			QualityWindowAge:  duration{30 * time.Minute},
			MaxAdjustFactor:   2.0,
			RelaxStep:         0.1,
			MaxRelaxSteps:     5,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "hedgebot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "hedgebot-data",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8000,
		},
		Notify: NotifyConfig{
			Events: []string{"trade_filled", "partial_failure", "no_trade_timeout", "engine_stopped"},
		},
		Mode:     "hedge",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"hedge":   true,
	"monitor": true,
	"archive": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validExchanges enumerates the exchange adapters the factory can build.
var validExchanges = map[string]bool{
	"binance": true,
	"bybit":   true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found. Configuration errors fail
// fast at startup; they are never retried at runtime.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: hedge, monitor, archive)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	for i, ex := range []ExchangeConfig{c.Exchange1, c.Exchange2} {
		prefix := fmt.Sprintf("exchange%d", i+1)
		if !validExchanges[strings.ToLower(ex.Name)] {
			errs = append(errs, fmt.Sprintf("%s: unknown exchange %q (valid: binance, bybit)", prefix, ex.Name))
		}
		if ex.BaseURL == "" {
			errs = append(errs, prefix+": base_url must not be empty")
		}
		if ex.WsURL == "" {
			errs = append(errs, prefix+": ws_url must not be empty")
		}
		if c.Mode == "hedge" {
			if ex.ApiKey == "" {
				errs = append(errs, prefix+": api_key is required for hedge mode")
			}
			if ex.ApiSecret == "" && ex.EncryptedSecretPath == "" {
				errs = append(errs, prefix+": either api_secret or encrypted_secret_path must be set for hedge mode")
			}
			if ex.EncryptedSecretPath != "" && ex.SecretPassword == "" {
				errs = append(errs, prefix+": secret_password is required when encrypted_secret_path is set")
			}
		}
		if ex.TakerFeeRate < 0 {
			errs = append(errs, prefix+": taker_fee_rate must be >= 0")
		}
	}
	if strings.EqualFold(c.Exchange1.Name, c.Exchange2.Name) {
		errs = append(errs, "exchange1 and exchange2 must be different venues")
	}

	// Trade
	t := c.Trade
	if t.Symbol == "" {
		errs = append(errs, "trade: symbol must not be empty")
	}
	if t.Side1 != "BUY" && t.Side1 != "SELL" {
		errs = append(errs, fmt.Sprintf("trade: side1 must be BUY or SELL, got %q", t.Side1))
	}
	if t.Side2 != "BUY" && t.Side2 != "SELL" {
		errs = append(errs, fmt.Sprintf("trade: side2 must be BUY or SELL, got %q", t.Side2))
	}
	if t.Side1 == t.Side2 {
		errs = append(errs, "trade: side1 and side2 must be opposing")
	}
	if t.MinQuantity <= 0 {
		errs = append(errs, "trade: min_quantity must be > 0")
	}
	if t.MaxQuantity < t.MinQuantity {
		errs = append(errs, "trade: max_quantity must be >= min_quantity")
	}
	if t.QuantityStep <= 0 {
		errs = append(errs, "trade: quantity_step must be > 0")
	}
	if t.SafetyFactor <= 0 || t.SafetyFactor >= 1 {
		errs = append(errs, fmt.Sprintf("trade: safety_factor must be in (0, 1), got %v", t.SafetyFactor))
	}
	if t.MinNotionalUSD <= 0 {
		errs = append(errs, "trade: min_notional_usd must be > 0")
	}
	if t.PerLegTimeout.Duration <= 0 {
		errs = append(errs, "trade: per_leg_timeout must be > 0")
	}
	if t.MaxLegRetries < 0 {
		errs = append(errs, "trade: max_leg_retries must be >= 0")
	}

	// Risk
	r := c.Risk
	if r.MaxBookStaleness.Duration <= 0 {
		errs = append(errs, "risk: max_book_staleness must be > 0")
	}
	if r.MaxSpreadPct <= 0 {
		errs = append(errs, "risk: max_spread_pct must be > 0")
	}
	if r.MinTopDepth <= 0 {
		errs = append(errs, "risk: min_top_depth must be > 0")
	}
	if r.MinProfitRate <= 0 {
		errs = append(errs, "risk: min_profit_rate must be > 0")
	}
	if r.QualityWindowSize < 1 {
		errs = append(errs, "risk: quality_window_size must be >= 1")
	}
	if r.MaxAdjustFactor < 1 {
		errs = append(errs, "risk: max_adjust_factor must be >= 1")
	}
	if r.RelaxStep < 0 || r.RelaxStep >= 1 {
		errs = append(errs, "risk: relax_step must be in [0, 1)")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
