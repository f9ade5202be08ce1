package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"arbiter/internal/config"
	"arbiter/internal/model"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// BinanceFeed streams best bid/ask for the configured symbol from Binance's
// bookTicker channel. Prices are USDT-quoted.
type BinanceFeed struct {
	feedRuntime
	symbol string
}

// NewBinanceFeed creates a feed handler for one logical symbol (e.g. "BTC").
func NewBinanceFeed(logger *slog.Logger, cfg config.FeedConfig, symbol string) *BinanceFeed {
	return &BinanceFeed{
		feedRuntime: newFeedRuntime(logger, "binance", cfg),
		symbol:      symbol,
	}
}

func (b *BinanceFeed) Name() string {
	return "binance"
}

// StartStream connects to the Binance WebSocket API and publishes canonical
// price ticks until the context is cancelled.
func (b *BinanceFeed) StartStream(ctx context.Context, ticks chan<- model.PriceTick) error {
	wsURL := fmt.Sprintf("wss://stream.binance.com:9443/ws/%susdt@bookTicker", strings.ToLower(b.symbol))

	dial := func(ctx context.Context) (*websocket.Conn, error) {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
		return conn, err
	}

	handle := func(payload []byte) error {
		tick, err := parseBinanceBookTicker(payload, b.symbol)
		if err != nil {
			return err
		}
		select {
		case ticks <- tick:
		case <-ctx.Done():
		}
		return nil
	}

	return b.run(ctx, dial, handle)
}

// binanceBookTicker is the native bookTicker payload. The update id "u" is
// monotonically increasing and serves as the tick sequence.
type binanceBookTicker struct {
	UpdateID uint64 `json:"u"`
	Symbol   string `json:"s"`
	Bid      string `json:"b"`
	Ask      string `json:"a"`
}

func parseBinanceBookTicker(payload []byte, symbol string) (model.PriceTick, error) {
	var msg binanceBookTicker
	if err := json.Unmarshal(payload, &msg); err != nil {
		return model.PriceTick{}, fmt.Errorf("%w: %v", errMalformed, err)
	}
	if msg.UpdateID == 0 || msg.Bid == "" || msg.Ask == "" {
		return model.PriceTick{}, fmt.Errorf("%w: missing fields", errMalformed)
	}
	bid, err := decimal.NewFromString(msg.Bid)
	if err != nil {
		return model.PriceTick{}, fmt.Errorf("%w: bid %q", errMalformed, msg.Bid)
	}
	ask, err := decimal.NewFromString(msg.Ask)
	if err != nil {
		return model.PriceTick{}, fmt.Errorf("%w: ask %q", errMalformed, msg.Ask)
	}
	return model.PriceTick{
		Exchange:  "binance",
		Symbol:    symbol,
		Bid:       bid,
		Ask:       ask,
		Timestamp: time.Now(),
		Sequence:  msg.UpdateID,
	}, nil
}
