package exchange

import (
	"fmt"
	"log/slog"

	"arbiter/internal/config"
)

// NewFeed creates a feed handler for the named exchange.
func NewFeed(name string, logger *slog.Logger, cfg config.FeedConfig, symbol string) (FeedClient, error) {
	switch name {
	case "upbit":
		return NewUpbitFeed(logger, cfg, symbol), nil
	case "binance":
		return NewBinanceFeed(logger, cfg, symbol), nil
	default:
		return nil, fmt.Errorf("unknown exchange: %s", name)
	}
}
