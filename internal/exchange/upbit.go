package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"arbiter/internal/config"
	"arbiter/internal/model"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const upbitWSURL = "wss://api.upbit.com/websocket/v1"

// UpbitFeed streams top-of-book for the configured symbol from Upbit's
// orderbook channel. Prices are KRW-quoted.
type UpbitFeed struct {
	feedRuntime
	symbol string
}

// NewUpbitFeed creates a feed handler for one logical symbol (e.g. "BTC").
func NewUpbitFeed(logger *slog.Logger, cfg config.FeedConfig, symbol string) *UpbitFeed {
	return &UpbitFeed{
		feedRuntime: newFeedRuntime(logger, "upbit", cfg),
		symbol:      symbol,
	}
}

func (u *UpbitFeed) Name() string {
	return "upbit"
}

// StartStream connects to the Upbit WebSocket API and publishes canonical
// price ticks until the context is cancelled.
func (u *UpbitFeed) StartStream(ctx context.Context, ticks chan<- model.PriceTick) error {
	code := "KRW-" + u.symbol

	dial := func(ctx context.Context) (*websocket.Conn, error) {
		return dialUpbit(ctx, code)
	}

	handle := func(payload []byte) error {
		tick, err := parseUpbitOrderbook(payload, u.symbol, code, "upbit")
		if err != nil {
			return err
		}
		select {
		case ticks <- tick:
		case <-ctx.Done():
		}
		return nil
	}

	return u.run(ctx, dial, handle)
}

// dialUpbit opens a connection and subscribes to the orderbook channel for
// one market code.
func dialUpbit(ctx context.Context, code string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, upbitWSURL, nil)
	if err != nil {
		return nil, err
	}
	subscription := []interface{}{
		map[string]string{"ticket": uuid.NewString()},
		map[string]interface{}{"type": "orderbook", "codes": []string{code}},
	}
	if err := conn.WriteJSON(subscription); err != nil {
		conn.Close()
		return nil, fmt.Errorf("upbit subscribe: %w", err)
	}
	return conn, nil
}

// upbitOrderbook is the native orderbook payload. The millisecond timestamp
// is monotonically increasing per market and serves as the tick sequence.
type upbitOrderbook struct {
	Type      string `json:"type"`
	Code      string `json:"code"`
	Timestamp uint64 `json:"timestamp"`
	Units     []struct {
		BidPrice float64 `json:"bid_price"`
		AskPrice float64 `json:"ask_price"`
	} `json:"orderbook_units"`
}

func parseUpbitOrderbook(payload []byte, symbol, code, exchange string) (model.PriceTick, error) {
	var msg upbitOrderbook
	if err := json.Unmarshal(payload, &msg); err != nil {
		return model.PriceTick{}, fmt.Errorf("%w: %v", errMalformed, err)
	}
	if msg.Type != "orderbook" || msg.Code != code {
		return model.PriceTick{}, fmt.Errorf("%w: unexpected type %q code %q", errMalformed, msg.Type, msg.Code)
	}
	if len(msg.Units) == 0 || msg.Timestamp == 0 {
		return model.PriceTick{}, fmt.Errorf("%w: empty orderbook", errMalformed)
	}
	top := msg.Units[0]
	if top.BidPrice <= 0 || top.AskPrice <= 0 {
		return model.PriceTick{}, fmt.Errorf("%w: non-positive top of book", errMalformed)
	}
	return model.PriceTick{
		Exchange:  exchange,
		Symbol:    symbol,
		Bid:       decimal.NewFromFloat(top.BidPrice),
		Ask:       decimal.NewFromFloat(top.AskPrice),
		Timestamp: time.Now(),
		Sequence:  msg.Timestamp,
	}, nil
}
