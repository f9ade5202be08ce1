package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"arbiter/internal/config"
	"arbiter/internal/database"
	"arbiter/internal/exchange"
	"arbiter/internal/fx"
	"arbiter/internal/market"
	"arbiter/internal/model"
	"arbiter/internal/order"
	"arbiter/internal/risk"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// State is the engine control loop state.
type State string

const (
	StateIdle       State = "idle"
	StateScanning   State = "scanning"
	StateEntering   State = "entering"
	StateMonitoring State = "monitoring"
	StateExiting    State = "exiting"
	StateCooldown   State = "cooldown"
	StateHalted     State = "halted"
)

// ErrHalted is returned by Run when the engine stops on the kill switch or
// an unrecoverable error.
var ErrHalted = errors.New("engine: halted")

var bpsScale = decimal.NewFromInt(10000)

// openTrip tracks an in-flight round trip between entry and close.
type openTrip struct {
	roundTripID  string
	buyExchange  string
	sellExchange string
	buyOrderID   string
	sellOrderID  string
	qty          decimal.Decimal
	// Venue-native prices the legs were placed at.
	rawBuyPrice  decimal.Decimal
	rawSellPrice decimal.Decimal
	// Common-currency prices at detection time.
	normBuyPrice  decimal.Decimal
	normSellPrice decimal.Decimal
	costBps       decimal.Decimal
	openedAt      time.Time
	exitReason    string
	// Hedge order id when one leg had to be flattened.
	hedgeOrderID string
}

// Engine sequences detection, risk checks, order placement, monitoring, and
// exit, writing one durable snapshot per loop iteration. One engine instance
// owns one session; it is the session's only snapshot writer.
type Engine struct {
	logger  *slog.Logger
	cfg     config.Config
	repo    database.Repository
	guard   *risk.Guard
	orders  *order.Manager
	ticks   *market.TickCache
	norm    *market.Normalizer
	fxCache *fx.Cache
	traders map[string]exchange.Trader

	sessionID string

	mu           sync.Mutex
	state        State
	loopCount    int64
	lastOpp      *model.Opportunity
	open         *openTrip
	pnlCommon    decimal.Decimal
	pnlNative    decimal.Decimal
	cooldownTill time.Time
	haltReason   string
	draining     bool
}

// New creates an engine for one trading session.
func New(logger *slog.Logger, cfg config.Config, repo database.Repository, guard *risk.Guard,
	orders *order.Manager, ticks *market.TickCache, norm *market.Normalizer, fxCache *fx.Cache,
	traders map[string]exchange.Trader, sessionID string) *Engine {
	return &Engine{
		logger:    logger,
		cfg:       cfg,
		repo:      repo,
		guard:     guard,
		orders:    orders,
		ticks:     ticks,
		norm:      norm,
		fxCache:   fxCache,
		traders:   traders,
		sessionID: sessionID,
		state:     StateIdle,
	}
}

// Run drives the state machine until the context is cancelled or the engine
// halts. Cancellation stops new entries but lets an in-flight round trip
// reach cooldown before the loop terminates.
func (e *Engine) Run(ctx context.Context) error {
	// Order and persistence calls must be able to outlive cancellation so an
	// open position is never abandoned; each call is bounded by its own
	// timeout instead.
	opCtx := context.WithoutCancel(ctx)

	if err := e.resume(opCtx); err != nil {
		return err
	}

	ticker := time.NewTicker(e.cfg.Arbitrage.LoopInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.mu.Lock()
			e.draining = true
			inFlight := e.open != nil
			e.mu.Unlock()
			if !inFlight {
				e.logger.Info("Engine: stop requested, no open position, shutting down", "session", e.sessionID)
				e.writeFinalSnapshot(opCtx, model.SessionStopped)
				return nil
			}
			e.logger.Info("Engine: stop requested, finishing open round trip first", "session", e.sessionID)
		default:
		}

		if err := e.Iterate(opCtx); err != nil {
			e.writeFinalSnapshot(opCtx, model.SessionError)
			return err
		}

		e.mu.Lock()
		doneDraining := e.draining && e.open == nil
		e.mu.Unlock()
		if doneDraining {
			e.logger.Info("Engine: open round trip settled, shutting down", "session", e.sessionID)
			e.writeFinalSnapshot(opCtx, model.SessionStopped)
			return nil
		}

		<-ticker.C
	}
}

// Iterate runs one full pass of the state machine and persists a snapshot,
// so resume granularity is one iteration.
func (e *Engine) Iterate(ctx context.Context) error {
	if e.guard.KillSwitchActive() && e.currentState() != StateHalted {
		e.halt("kill switch active")
	}

	switch e.currentState() {
	case StateIdle:
		e.setState(StateScanning)
	case StateScanning:
		e.stepScanning(ctx)
	case StateEntering:
		e.stepEntering(ctx)
	case StateMonitoring:
		e.stepMonitoring(ctx)
	case StateExiting:
		e.stepExiting(ctx)
	case StateCooldown:
		e.stepCooldown()
	case StateHalted:
	}

	if err := e.snapshot(ctx, model.SessionRunning); err != nil {
		// Running without verifiable recoverability is worse than stopping.
		e.halt(fmt.Sprintf("snapshot persistence failed: %v", err))
		return fmt.Errorf("%w: %s", ErrHalted, e.haltedReason())
	}

	if e.currentState() == StateHalted {
		return fmt.Errorf("%w: %s", ErrHalted, e.haltedReason())
	}
	return nil
}

// stepScanning evaluates the latest quotes in both directions and, when a
// tradeable opportunity passes the risk gate, moves to entering.
func (e *Engine) stepScanning(ctx context.Context) {
	names := e.exchangeNames()
	if len(names) != 2 {
		return
	}
	a, okA := e.ticks.Latest(names[0])
	b, okB := e.ticks.Latest(names[1])
	if !okA || !okB {
		return
	}

	// Try both directions: buy where it is cheap, sell where it is rich.
	for _, dir := range [][2]model.PriceTick{{a, b}, {b, a}} {
		buyTick, sellTick := dir[0], dir[1]
		if e.tryDirection(ctx, buyTick, sellTick) {
			return
		}
	}
}

// tryDirection evaluates buying on buyTick's venue and selling on sellTick's
// venue. Returns true when the engine committed to entering.
func (e *Engine) tryDirection(ctx context.Context, buyTick, sellTick model.PriceTick) bool {
	buyQuote, err := e.norm.Normalize(buyTick.Exchange, buyTick.Ask)
	if err != nil {
		// A stale or missing fx rate blocks entry decisions only.
		e.logger.Warn("Engine: entry evaluation blocked", "error", err)
		return false
	}
	sellQuote, err := e.norm.Normalize(sellTick.Exchange, sellTick.Bid)
	if err != nil {
		e.logger.Warn("Engine: entry evaluation blocked", "error", err)
		return false
	}

	totalCost := buyQuote.LegCostBps.Add(sellQuote.LegCostBps)
	threshold := decimal.NewFromFloat(e.cfg.Arbitrage.EntryThresholdBps)
	signal := market.EvaluateEntry(buyQuote.Price, sellQuote.Price, totalCost, threshold)

	opp := market.NewOpportunity(buyTick.Exchange, sellTick.Exchange, e.cfg.Arbitrage.Symbol,
		buyQuote.Price, sellQuote.Price, time.Now())
	e.mu.Lock()
	if e.lastOpp == nil || opp.SpreadBps.GreaterThan(e.lastOpp.SpreadBps) || time.Since(e.lastOpp.DetectedAt) > time.Minute {
		e.lastOpp = &opp
	}
	draining := e.draining
	e.mu.Unlock()

	if !signal.Tradeable || draining {
		return false
	}

	notional := decimal.NewFromFloat(e.cfg.Arbitrage.TradeNotional)
	balances, err := e.commonBalances(ctx)
	if err != nil {
		e.logger.Warn("Engine: balance lookup failed, skipping entry", "error", err)
		return false
	}
	if err := e.guard.Authorize(risk.EntryRequest{
		Notional:     notional,
		OpenExposure: e.openExposure(),
		Balances:     balances,
	}); err != nil {
		e.logger.Info("Engine: entry denied", "error", err)
		return false
	}

	qty := notional.DivRound(buyQuote.Price, 8)
	e.mu.Lock()
	e.open = &openTrip{
		roundTripID:   uuid.NewString(),
		buyExchange:   buyTick.Exchange,
		sellExchange:  sellTick.Exchange,
		qty:           qty,
		rawBuyPrice:   buyTick.Ask,
		rawSellPrice:  sellTick.Bid,
		normBuyPrice:  buyQuote.Price,
		normSellPrice: sellQuote.Price,
		costBps:       totalCost,
	}
	e.mu.Unlock()

	e.logger.Info("Engine: tradeable opportunity, entering",
		"buyExchange", buyTick.Exchange, "sellExchange", sellTick.Exchange,
		"spreadBps", signal.SpreadBps, "netEdgeBps", signal.NetEdgeBps, "qty", qty)
	e.setState(StateEntering)
	return true
}

// stepEntering places both legs. Both confirmed open moves to monitoring; a
// clean rejection with no position returns to scanning; a one-sided fill is
// hedge-closed.
func (e *Engine) stepEntering(ctx context.Context) {
	e.mu.Lock()
	trip := e.open
	e.mu.Unlock()
	if trip == nil {
		e.setState(StateScanning)
		return
	}

	buyID, err := e.orders.Submit(ctx, order.Spec{
		Exchange: trip.buyExchange,
		Symbol:   e.cfg.Arbitrage.Symbol,
		Side:     model.SideBuy,
		Qty:      trip.qty,
		Price:    trip.rawBuyPrice,
	})
	if err != nil {
		// Nothing placed yet: clean abort, no position taken.
		e.logger.Warn("Engine: entry leg rejected, returning to scanning", "error", err)
		e.guard.RecordFailure()
		e.clearOpen()
		e.setState(StateScanning)
		return
	}
	e.mu.Lock()
	trip.buyOrderID = buyID
	e.mu.Unlock()

	sellID, err := e.orders.Submit(ctx, order.Spec{
		Exchange: trip.sellExchange,
		Symbol:   e.cfg.Arbitrage.Symbol,
		Side:     model.SideSell,
		Qty:      trip.qty,
		Price:    trip.rawSellPrice,
	})
	if err != nil {
		e.logger.Warn("Engine: second leg rejected, unwinding first", "error", err)
		e.abandonLeg(ctx, trip, buyID)
		return
	}
	e.mu.Lock()
	trip.sellOrderID = sellID
	trip.openedAt = time.Now()
	e.mu.Unlock()

	e.logger.Info("Engine: both legs open, round trip created",
		"roundTripID", trip.roundTripID, "buyOrderID", buyID, "sellOrderID", sellID)
	e.setState(StateMonitoring)
}

// abandonLeg cancels a live first leg after the second leg failed to be
// placed. A fill discovered during cancellation is hedge-closed.
func (e *Engine) abandonLeg(ctx context.Context, trip *openTrip, legID string) {
	if err := e.orders.Cancel(ctx, legID); err != nil {
		e.logger.Error("Engine: cancel of abandoned leg failed", "orderID", legID, "error", err)
	}
	leg, err := e.orders.Get(legID)
	if err == nil && leg.FilledQty.IsPositive() {
		e.hedgeAndClose(ctx, trip, legID, decimal.Zero)
		return
	}
	e.guard.RecordFailure()
	e.clearOpen()
	e.setState(StateScanning)
}

// stepMonitoring polls both legs, handles rejections, fill timeouts and the
// max-hold stop, and decides when the round trip is done.
func (e *Engine) stepMonitoring(ctx context.Context) {
	e.mu.Lock()
	trip := e.open
	e.mu.Unlock()
	if trip == nil {
		e.setState(StateScanning)
		return
	}

	now := time.Now()

	// Max-hold depends only on local state, so a dead query API can never
	// keep a position open past the stop.
	if now.Sub(trip.openedAt) >= e.cfg.Arbitrage.MaxHold() {
		e.stopMaxHold(ctx, trip)
		return
	}

	buy, err := e.orders.Poll(ctx, trip.buyOrderID)
	if err != nil {
		e.logger.Error("Engine: poll failed", "orderID", trip.buyOrderID, "error", err)
		e.guard.RecordFailure()
		return
	}
	sell, err := e.orders.Poll(ctx, trip.sellOrderID)
	if err != nil {
		e.logger.Error("Engine: poll failed", "orderID", trip.sellOrderID, "error", err)
		e.guard.RecordFailure()
		return
	}

	// Fill timeout: cancel the laggard and reassess on the next pass.
	for _, leg := range []model.Order{buy, sell} {
		if !leg.Status.Terminal() && e.orders.TimedOut(leg.OrderID, now) {
			e.logger.Warn("Engine: fill timeout, cancelling leg", "orderID", leg.OrderID)
			if err := e.orders.Cancel(ctx, leg.OrderID); err != nil {
				e.logger.Error("Engine: cancel failed", "orderID", leg.OrderID, "error", err)
			}
			return
		}
	}

	// One leg dead while the other filled: flatten rather than carry a naked
	// position.
	buyDead := buy.Status == model.OrderRejected || buy.Status == model.OrderCancelled
	sellDead := sell.Status == model.OrderRejected || sell.Status == model.OrderCancelled
	switch {
	case buyDead && sellDead:
		// Whatever each dead leg filled before terminating, only the net
		// position matters; it must be flattened, not just recorded.
		net := buy.FilledQty.Sub(sell.FilledQty)
		switch {
		case net.IsPositive():
			e.hedgeAndClose(ctx, trip, trip.buyOrderID, net)
		case net.IsNegative():
			e.hedgeAndClose(ctx, trip, trip.sellOrderID, net.Neg())
		case buy.FilledQty.IsPositive():
			// Equal fills on both sides leave no net position to flatten.
			e.finishTrip(trip, model.ExitReasonHedgeClose, false)
		default:
			e.logger.Info("Engine: both legs cancelled with no fills, no position taken")
			e.guard.RecordFailure()
			e.clearOpen()
			e.setState(StateScanning)
		}
		return
	case buyDead && !buy.FilledQty.IsPositive() && sell.FilledQty.IsPositive():
		e.hedgeAndClose(ctx, trip, trip.sellOrderID, decimal.Zero)
		return
	case sellDead && !sell.FilledQty.IsPositive() && buy.FilledQty.IsPositive():
		e.hedgeAndClose(ctx, trip, trip.buyOrderID, decimal.Zero)
		return
	case buyDead && !sell.Status.Terminal():
		// Dead buy leg, sell still live with nothing filled: take it down.
		if err := e.orders.Cancel(ctx, trip.sellOrderID); err != nil {
			e.logger.Error("Engine: cancel failed", "orderID", trip.sellOrderID, "error", err)
		}
		return
	case sellDead && !buy.Status.Terminal():
		if err := e.orders.Cancel(ctx, trip.buyOrderID); err != nil {
			e.logger.Error("Engine: cancel failed", "orderID", trip.buyOrderID, "error", err)
		}
		return
	}

	bothFilled := buy.Status == model.OrderFilled && sell.Status == model.OrderFilled
	realizedEdge := e.realizedEdgeBps(buy, sell, trip)
	decision := market.EvaluateExit(trip.openedAt, now, bothFilled, realizedEdge,
		decimal.NewFromFloat(e.cfg.Arbitrage.TakeProfitBps), e.cfg.Arbitrage.MaxHold())
	if !decision.Exit {
		return
	}

	if decision.Reason == model.ExitReasonMaxHold {
		e.stopMaxHold(ctx, trip)
		return
	}

	e.finishTrip(trip, decision.Reason, decision.Reason == model.ExitReasonTakeProfit)
}

// stopMaxHold enforces the hold stop: cancel anything still working, then
// flatten the net filled position and settle what remains.
func (e *Engine) stopMaxHold(ctx context.Context, trip *openTrip) {
	for _, id := range []string{trip.buyOrderID, trip.sellOrderID} {
		if err := e.orders.Cancel(ctx, id); err != nil {
			e.logger.Error("Engine: cancel failed", "orderID", id, "error", err)
		}
	}
	buy, _ := e.orders.Get(trip.buyOrderID)
	sell, _ := e.orders.Get(trip.sellOrderID)
	net := buy.FilledQty.Sub(sell.FilledQty)
	switch {
	case net.IsPositive():
		e.hedgeAndClose(ctx, trip, trip.buyOrderID, net)
	case net.IsNegative():
		e.hedgeAndClose(ctx, trip, trip.sellOrderID, net.Neg())
	default:
		e.finishTrip(trip, model.ExitReasonMaxHold, false)
	}
}

// hedgeAndClose flattens the filled leg of a broken pair and records the
// round trip as a degraded-but-contained outcome. A zero qty flattens the
// leg's whole fill; a positive qty flattens only that net amount.
func (e *Engine) hedgeAndClose(ctx context.Context, trip *openTrip, filledLegID string, qty decimal.Decimal) {
	hedge, err := e.orders.HedgeClose(ctx, filledLegID, qty)
	if err != nil {
		e.logger.Error("Engine: hedge-close failed, manual intervention required",
			"orderID", filledLegID, "error", err)
		e.guard.TripKillSwitch("hedge-close failed: position may be naked")
		e.halt("hedge-close failed")
		return
	}
	e.mu.Lock()
	trip.hedgeOrderID = hedge.OrderID
	e.mu.Unlock()
	e.finishTrip(trip, model.ExitReasonHedgeClose, false)
}

// finishTrip marks the outcome and hands off to the exiting step, which
// settles PnL and persists the round trip.
func (e *Engine) finishTrip(trip *openTrip, reason string, success bool) {
	e.mu.Lock()
	trip.exitReason = reason
	e.mu.Unlock()
	if success {
		e.guard.RecordSuccess()
	} else {
		e.guard.RecordFailure()
	}
	e.setState(StateExiting)
}

// stepExiting settles the round trip: realized PnL in both currencies, fees,
// slippage, then the ledger write and cooldown.
func (e *Engine) stepExiting(ctx context.Context) {
	e.mu.Lock()
	trip := e.open
	e.mu.Unlock()
	if trip == nil {
		e.setState(StateScanning)
		return
	}

	legs := e.executedLegs(trip)
	pnlCommon, fees := e.settleCommon(legs)
	pnlNative := e.toNative(pnlCommon)
	slippage := e.entrySlippageBps(trip)

	rt := model.RoundTrip{
		RoundTripID:       trip.roundTripID,
		EntryOrderID:      trip.buyOrderID,
		ExitOrderID:       trip.sellOrderID,
		RealizedPnLNative: pnlNative,
		RealizedPnLCommon: pnlCommon,
		FeesPaid:          fees,
		SlippageBps:       slippage,
		ExitReason:        trip.exitReason,
		OpenedAt:          trip.openedAt,
		ClosedAt:          time.Now(),
	}

	if err := e.persistRoundTrip(ctx, rt); err != nil {
		e.logger.Error("Engine: round trip ledger write failed", "roundTripID", rt.RoundTripID, "error", err)
	}

	e.mu.Lock()
	e.pnlCommon = e.pnlCommon.Add(pnlCommon)
	e.pnlNative = e.pnlNative.Add(pnlNative)
	e.open = nil
	e.cooldownTill = time.Now().Add(e.cfg.Arbitrage.Cooldown())
	e.mu.Unlock()

	e.logger.Info("Engine: round trip closed",
		"roundTripID", rt.RoundTripID, "exitReason", rt.ExitReason,
		"pnlCommon", pnlCommon, "pnlNative", pnlNative, "fees", fees)
	e.setState(StateCooldown)
}

// stepCooldown waits out the configured pause to avoid thrashing.
func (e *Engine) stepCooldown() {
	e.mu.Lock()
	done := time.Now().After(e.cooldownTill)
	e.mu.Unlock()
	if done {
		e.setState(StateScanning)
	}
}

// executedLegs collects every order that took part in the trip.
func (e *Engine) executedLegs(trip *openTrip) []model.Order {
	var legs []model.Order
	for _, id := range []string{trip.buyOrderID, trip.sellOrderID, trip.hedgeOrderID} {
		if id == "" {
			continue
		}
		if o, err := e.orders.Get(id); err == nil {
			legs = append(legs, o)
		}
	}
	return legs
}

// settleCommon values every executed leg in the common currency: sells add,
// buys subtract, taker fees accrue on executed notional. An open position is
// still valued when the fx stream lags, with a stale-rate warning.
func (e *Engine) settleCommon(legs []model.Order) (pnl, fees decimal.Decimal) {
	for _, leg := range legs {
		if !leg.FilledQty.IsPositive() {
			continue
		}
		quote, err := e.norm.NormalizeAllowStale(leg.Exchange, leg.AvgFillPrice)
		if err != nil {
			e.logger.Error("Engine: cannot value leg in common currency", "orderID", leg.OrderID, "error", err)
			continue
		}
		notional := leg.FilledQty.Mul(quote.Price)
		fee := notional.Mul(decimal.NewFromFloat(e.cfg.Exchanges[leg.Exchange].TakerFeeBps)).Div(bpsScale)
		fees = fees.Add(fee)
		if leg.Side == model.SideSell {
			pnl = pnl.Add(notional)
		} else {
			pnl = pnl.Sub(notional)
		}
	}
	return pnl.Sub(fees), fees
}

// toNative converts a common-currency amount into the foreign quote currency
// using the last known rate. Zero when no rate was ever observed.
func (e *Engine) toNative(common decimal.Decimal) decimal.Decimal {
	rate, _, ok := e.fxCache.Get(e.cfg.Fx.Pair)
	if !ok || !rate.Rate.IsPositive() {
		return decimal.Zero
	}
	return common.DivRound(rate.Rate, 10)
}

// realizedEdgeBps computes the locked-in spread of the actual fills net of
// the modelled costs. Zero until both legs have fills.
func (e *Engine) realizedEdgeBps(buy, sell model.Order, trip *openTrip) decimal.Decimal {
	if !buy.FilledQty.IsPositive() || !sell.FilledQty.IsPositive() {
		return decimal.Zero
	}
	buyQuote, err1 := e.norm.NormalizeAllowStale(buy.Exchange, buy.AvgFillPrice)
	sellQuote, err2 := e.norm.NormalizeAllowStale(sell.Exchange, sell.AvgFillPrice)
	if err1 != nil || err2 != nil {
		return decimal.Zero
	}
	return market.SpreadBps(buyQuote.Price, sellQuote.Price).Sub(trip.costBps)
}

// entrySlippageBps measures how far the entry fill drifted from the price
// the leg was placed at.
func (e *Engine) entrySlippageBps(trip *openTrip) decimal.Decimal {
	if trip.buyOrderID == "" {
		return decimal.Zero
	}
	buy, err := e.orders.Get(trip.buyOrderID)
	if err != nil || !buy.FilledQty.IsPositive() || !trip.rawBuyPrice.IsPositive() {
		return decimal.Zero
	}
	return buy.AvgFillPrice.Sub(trip.rawBuyPrice).Abs().Div(trip.rawBuyPrice).Mul(bpsScale)
}

// commonBalances fetches each venue's quote-currency balance and values it
// in the common currency for the balance gate.
func (e *Engine) commonBalances(ctx context.Context) (map[string]decimal.Decimal, error) {
	balances := make(map[string]decimal.Decimal, len(e.traders))
	for name, trader := range e.traders {
		bal, err := trader.Balance(ctx, e.cfg.Exchanges[name].QuoteCurrency)
		if err != nil {
			return nil, fmt.Errorf("engine: balance on %s: %w", name, err)
		}
		quote, err := e.norm.Normalize(name, bal)
		if err != nil {
			return nil, fmt.Errorf("engine: balance conversion on %s: %w", name, err)
		}
		balances[name] = quote.Price
	}
	return balances, nil
}

// openExposure values the in-flight round trip in the common currency so
// the exposure-cap gate sees real exposure, not an assumed zero.
func (e *Engine) openExposure() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.open == nil {
		return decimal.Zero
	}
	return e.open.qty.Mul(e.open.normBuyPrice)
}

func (e *Engine) exchangeNames() []string {
	names := make([]string, 0, len(e.cfg.Exchanges))
	for name := range e.cfg.Exchanges {
		names = append(names, name)
	}
	return names
}

func (e *Engine) currentState() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	if e.state != s {
		e.logger.Debug("Engine: state transition", "from", e.state, "to", s)
		e.state = s
	}
	e.mu.Unlock()
}

func (e *Engine) clearOpen() {
	e.mu.Lock()
	e.open = nil
	e.mu.Unlock()
}

func (e *Engine) halt(reason string) {
	e.mu.Lock()
	if e.state != StateHalted {
		e.state = StateHalted
		e.haltReason = reason
		e.logger.Error("Engine: halted", "reason", reason)
	}
	e.mu.Unlock()
}

func (e *Engine) haltedReason() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.haltReason
}
