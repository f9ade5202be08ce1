package market

import (
	"time"

	"arbiter/internal/model"

	"github.com/shopspring/decimal"
)

var bpsScale = decimal.NewFromInt(10000)

// EntrySignal is the result of evaluating the latest cross-venue quotes.
type EntrySignal struct {
	Tradeable  bool
	SpreadBps  decimal.Decimal
	NetEdgeBps decimal.Decimal
}

// SpreadBps computes the cross-venue spread in basis points of the buy price.
func SpreadBps(buyPrice, sellPrice decimal.Decimal) decimal.Decimal {
	if !buyPrice.IsPositive() {
		return decimal.Zero
	}
	return sellPrice.Sub(buyPrice).Div(buyPrice).Mul(bpsScale)
}

// EvaluateEntry classifies a spread as tradeable when the cost-adjusted edge
// meets the entry threshold. Pure function of its inputs.
func EvaluateEntry(buyPrice, sellPrice, totalCostBps, entryThresholdBps decimal.Decimal) EntrySignal {
	spread := SpreadBps(buyPrice, sellPrice)
	edge := spread.Sub(totalCostBps)
	return EntrySignal{
		Tradeable:  edge.GreaterThanOrEqual(entryThresholdBps),
		SpreadBps:  spread,
		NetEdgeBps: edge,
	}
}

// NewOpportunity builds an immutable opportunity record from an entry
// evaluation. Discard and recompute rather than mutate.
func NewOpportunity(buyExchange, sellExchange, symbol string, buyPrice, sellPrice decimal.Decimal, now time.Time) model.Opportunity {
	return model.Opportunity{
		BuyExchange:       buyExchange,
		SellExchange:      sellExchange,
		Symbol:            symbol,
		SpreadBps:         SpreadBps(buyPrice, sellPrice),
		ImpliedEntryPrice: buyPrice,
		ImpliedExitPrice:  sellPrice,
		DetectedAt:        now,
	}
}

// ExitDecision says whether and why an open round trip should be closed.
type ExitDecision struct {
	Exit   bool
	Reason string
}

// EvaluateExit decides whether an open round trip is done: take profit once
// both legs are filled and the realized edge meets the take-profit threshold,
// or stop out a position held past maxHold. Pure function of its inputs.
func EvaluateExit(openedAt, now time.Time, bothLegsFilled bool, realizedEdgeBps, takeProfitBps decimal.Decimal, maxHold time.Duration) ExitDecision {
	if bothLegsFilled && realizedEdgeBps.GreaterThanOrEqual(takeProfitBps) {
		return ExitDecision{Exit: true, Reason: model.ExitReasonTakeProfit}
	}
	if now.Sub(openedAt) >= maxHold {
		return ExitDecision{Exit: true, Reason: model.ExitReasonMaxHold}
	}
	return ExitDecision{}
}
