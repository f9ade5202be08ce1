package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"arbiter/internal/config"
	"arbiter/internal/database"
	"arbiter/internal/engine"
	"arbiter/internal/exchange"
	"arbiter/internal/fx"
	"arbiter/internal/market"
	"arbiter/internal/model"
	"arbiter/internal/order"
	"arbiter/internal/risk"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("cannot load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.URL())
	if err != nil {
		logger.Error("cannot connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	repo := &database.PostgresRepository{Pool: pool}
	if err := repo.Migrate(ctx); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}

	fxCache := fx.NewCache()
	ticks := market.NewTickCache()
	norm := market.NewNormalizer(logger, fxCache, cfg.Fx, cfg.Arbitrage.CommonCurrency, cfg.Exchanges)

	tickCh := make(chan model.PriceTick, 256)
	go func() {
		for tick := range tickCh {
			ticks.Publish(tick)
		}
	}()

	for name := range cfg.Exchanges {
		feed, err := exchange.NewFeed(name, logger, cfg.Feed, cfg.Arbitrage.Symbol)
		if err != nil {
			logger.Error("cannot build feed", "exchange", name, "error", err)
			os.Exit(1)
		}
		go func() {
			if err := feed.StartStream(ctx, tickCh); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("feed stopped", "exchange", feed.Name(), "error", err)
			}
		}()
	}

	fxStream := exchange.NewFxStream(logger, cfg.Feed, fxCache, cfg.Fx.Pair)
	go func() {
		if err := fxStream.StartStream(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("fx stream stopped", "error", err)
		}
	}()

	// Live exchange adapters are wired in by the deployment; the core trades
	// against paper venues until then, whatever mode the config asks for.
	traders := make(map[string]exchange.Trader, len(cfg.Exchanges))
	for name, ex := range cfg.Exchanges {
		traders[name] = exchange.NewPaperTrader(logger, name, ex.QuoteCurrency,
			cfg.Order.SimulatedLatency(), map[string]decimal.Decimal{
				ex.QuoteCurrency: decimal.NewFromFloat(cfg.Risk.ExposureCap),
			})
	}

	guard := risk.NewGuard(logger, cfg.Risk, cfg.Exchanges)
	orders := order.NewManager(logger, traders, cfg.Order.FillTimeout())

	sessionID := os.Getenv("ARBITER_SESSION_ID")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	eng := engine.New(logger, cfg, repo, guard, orders, ticks, norm, fxCache, traders, sessionID)

	logger.Info("arbiter starting",
		"session", sessionID, "mode", guard.Mode(), "symbol", cfg.Arbitrage.Symbol,
		"commonCurrency", cfg.Arbitrage.CommonCurrency)

	if err := eng.Run(ctx); err != nil {
		logger.Error("engine stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("arbiter stopped cleanly", "session", sessionID)
}
