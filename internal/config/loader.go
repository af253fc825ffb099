package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads configuration from the TOML file at path, layered on top of
// Defaults, then applies HEDGEBOT_* environment variable overrides. A .env
// file in the working directory is loaded first if present so local runs can
// keep credentials out of the TOML file.
func Load(path string) (Config, error) {
	// Best effort; a missing .env is not an error.
	_ = godotenv.Load()

	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// applyEnvOverrides maps HEDGEBOT_* environment variables onto cfg. Only
// variables that are set override file values, so the layering is
// defaults < file < environment.
func applyEnvOverrides(cfg *Config) {
	setStr("HEDGEBOT_MODE", &cfg.Mode)
	setStr("HEDGEBOT_LOG_LEVEL", &cfg.LogLevel)

	setStr("HEDGEBOT_EXCHANGE1_NAME", &cfg.Exchange1.Name)
	setStr("HEDGEBOT_EXCHANGE1_API_KEY", &cfg.Exchange1.ApiKey)
	setStr("HEDGEBOT_EXCHANGE1_API_SECRET", &cfg.Exchange1.ApiSecret)
	setStr("HEDGEBOT_EXCHANGE1_SECRET_PASSWORD", &cfg.Exchange1.SecretPassword)
	setStr("HEDGEBOT_EXCHANGE1_BASE_URL", &cfg.Exchange1.BaseURL)
	setStr("HEDGEBOT_EXCHANGE1_WS_URL", &cfg.Exchange1.WsURL)

	setStr("HEDGEBOT_EXCHANGE2_NAME", &cfg.Exchange2.Name)
	setStr("HEDGEBOT_EXCHANGE2_API_KEY", &cfg.Exchange2.ApiKey)
	setStr("HEDGEBOT_EXCHANGE2_API_SECRET", &cfg.Exchange2.ApiSecret)
	setStr("HEDGEBOT_EXCHANGE2_SECRET_PASSWORD", &cfg.Exchange2.SecretPassword)
	setStr("HEDGEBOT_EXCHANGE2_BASE_URL", &cfg.Exchange2.BaseURL)
	setStr("HEDGEBOT_EXCHANGE2_WS_URL", &cfg.Exchange2.WsURL)

	setStr("HEDGEBOT_TRADE_SYMBOL", &cfg.Trade.Symbol)
	setStr("HEDGEBOT_TRADE_SIDE1", &cfg.Trade.Side1)
	setStr("HEDGEBOT_TRADE_SIDE2", &cfg.Trade.Side2)
	setFloat("HEDGEBOT_TRADE_MIN_QUANTITY", &cfg.Trade.MinQuantity)
	setFloat("HEDGEBOT_TRADE_MAX_QUANTITY", &cfg.Trade.MaxQuantity)
	setFloat("HEDGEBOT_TRADE_SAFETY_FACTOR", &cfg.Trade.SafetyFactor)
	setDuration("HEDGEBOT_TRADE_NO_TRADE_TIMEOUT", &cfg.Trade.NoTradeTimeout)
	setDuration("HEDGEBOT_TRADE_INTERVAL", &cfg.Trade.TradeInterval)

	setFloat("HEDGEBOT_RISK_MIN_PROFIT_RATE", &cfg.Risk.MinProfitRate)
	setFloat("HEDGEBOT_RISK_MAX_SPREAD_PCT", &cfg.Risk.MaxSpreadPct)
	setDuration("HEDGEBOT_RISK_MAX_BOOK_STALENESS", &cfg.Risk.MaxBookStaleness)

	setBool("HEDGEBOT_POSTGRES_ENABLED", &cfg.Postgres.Enabled)
	setStr("HEDGEBOT_POSTGRES_DSN", &cfg.Postgres.DSN)
	setStr("HEDGEBOT_POSTGRES_HOST", &cfg.Postgres.Host)
	setInt("HEDGEBOT_POSTGRES_PORT", &cfg.Postgres.Port)
	setStr("HEDGEBOT_POSTGRES_USER", &cfg.Postgres.User)
	setStr("HEDGEBOT_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	setStr("HEDGEBOT_POSTGRES_DATABASE", &cfg.Postgres.Database)

	setBool("HEDGEBOT_REDIS_ENABLED", &cfg.Redis.Enabled)
	setStr("HEDGEBOT_REDIS_ADDR", &cfg.Redis.Addr)
	setStr("HEDGEBOT_REDIS_PASSWORD", &cfg.Redis.Password)
	setInt("HEDGEBOT_REDIS_DB", &cfg.Redis.DB)

	setBool("HEDGEBOT_S3_ENABLED", &cfg.S3.Enabled)
	setStr("HEDGEBOT_S3_ENDPOINT", &cfg.S3.Endpoint)
	setStr("HEDGEBOT_S3_BUCKET", &cfg.S3.Bucket)
	setStr("HEDGEBOT_S3_ACCESS_KEY", &cfg.S3.AccessKey)
	setStr("HEDGEBOT_S3_SECRET_KEY", &cfg.S3.SecretKey)

	setBool("HEDGEBOT_SERVER_ENABLED", &cfg.Server.Enabled)
	setInt("HEDGEBOT_SERVER_PORT", &cfg.Server.Port)

	setStr("HEDGEBOT_TELEGRAM_TOKEN", &cfg.Notify.TelegramToken)
	setStr("HEDGEBOT_TELEGRAM_CHAT_ID", &cfg.Notify.TelegramChatID)
	setStr("HEDGEBOT_DISCORD_WEBHOOK_URL", &cfg.Notify.DiscordWebhookURL)
}

func setStr(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(key string, dst *int) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(key string, dst *float64) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(key string, dst *bool) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(key string, dst *duration) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
