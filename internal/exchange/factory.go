package exchange

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/hedgebot/internal/book"
	"github.com/alanyoungcy/hedgebot/internal/config"
	"github.com/alanyoungcy/hedgebot/internal/crypto"
)

// NewTrader builds the trading client for the configured venue, resolving
// the API secret from its raw or encrypted source.
func NewTrader(cfg config.ExchangeConfig, logger *slog.Logger) (Trader, error) {
	secret, err := crypto.LoadSecret(cfg.ApiSecret, cfg.EncryptedSecretPath, cfg.SecretPassword)
	if err != nil {
		return nil, fmt.Errorf("exchange %s: resolve secret: %w", cfg.Name, err)
	}
	logger.Debug("exchange credentials loaded",
		slog.String("exchange", cfg.Name),
		slog.String("api_key", crypto.Redact(cfg.ApiKey)))

	switch strings.ToLower(cfg.Name) {
	case "binance":
		return NewBinanceTrader(cfg.ApiKey, secret, cfg.BaseURL, logger), nil
	case "bybit":
		return NewBybitTrader(cfg.ApiKey, secret, cfg.BaseURL, logger), nil
	default:
		return nil, fmt.Errorf("exchange: unknown venue %q", cfg.Name)
	}
}

// NewFeedDialer builds the order-book feed dialer for the configured venue.
func NewFeedDialer(cfg config.ExchangeConfig) (book.FeedDialer, error) {
	switch strings.ToLower(cfg.Name) {
	case "binance":
		return NewBinanceFeedDialer(cfg.WsURL), nil
	case "bybit":
		return NewBybitFeedDialer(cfg.WsURL), nil
	default:
		return nil, fmt.Errorf("exchange: unknown venue %q", cfg.Name)
	}
}
