package risk

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"arbiter/internal/config"
	"arbiter/internal/model"

	"github.com/shopspring/decimal"
)

// Reason identifies which safety gate denied an entry. Every denial is
// specific; there is no generic failure.
type Reason string

const (
	ReasonKillSwitch       Reason = "kill_switch_active"
	ReasonBalanceShortfall Reason = "balance_shortfall"
	ReasonExposureCap      Reason = "exposure_cap_exceeded"
	ReasonFailureCeiling   Reason = "failure_ceiling_reached"
)

// Denial is the error returned when a pre-trade gate fails.
type Denial struct {
	Reason Reason
	Detail string
}

func (d *Denial) Error() string {
	return fmt.Sprintf("risk: entry denied (%s): %s", d.Reason, d.Detail)
}

// EntryRequest carries everything the guard needs to authorize one entry
// attempt. Balances are keyed by exchange name, in that venue's quote
// currency converted to the common currency.
type EntryRequest struct {
	Notional     decimal.Decimal
	OpenExposure decimal.Decimal
	Balances     map[string]decimal.Decimal
}

// Guard is the single pre-trade authorization point. All live-credential and
// safety checks live here so no call site can skip one by omission.
type Guard struct {
	logger *slog.Logger
	cfg    config.RiskConfig

	margin      decimal.Decimal
	exposureCap decimal.Decimal

	mu    sync.Mutex
	state model.RiskGuardState
}

// NewGuard creates the risk guard. Live mode is granted only when the
// credentials for every exchange pass the validity check; otherwise the
// guard forces dry-run and logs why (never the credential itself).
func NewGuard(logger *slog.Logger, cfg config.RiskConfig, exchanges map[string]config.ExchangeConfig) *Guard {
	mode := model.ModeDryRun
	if cfg.Mode == string(model.ModeLive) {
		mode = model.ModeLive
		for name, ex := range exchanges {
			if err := ValidateCredentials(ex.APIKey, ex.APISecret); err != nil {
				logger.Warn("RiskGuard: forcing dry-run mode", "exchange", name, "error", err)
				mode = model.ModeDryRun
				break
			}
		}
	}

	return &Guard{
		logger:      logger,
		cfg:         cfg,
		margin:      decimal.NewFromFloat(cfg.BalanceMarginPercent).Div(decimal.NewFromInt(100)),
		exposureCap: decimal.NewFromFloat(cfg.ExposureCap),
		state: model.RiskGuardState{
			Mode: mode,
		},
	}
}

// placeholderCredentials are values that look configured but are not.
var placeholderCredentials = []string{
	"changeme", "your_api_key", "your_api_secret", "placeholder", "xxx", "test", "dummy",
}

// ValidateCredentials rejects empty, placeholder, or malformed credential
// material. Absence of proof of validity is treated as invalid.
func ValidateCredentials(apiKey, apiSecret string) error {
	for _, cred := range []struct{ name, value string }{
		{"api key", apiKey},
		{"api secret", apiSecret},
	} {
		v := strings.TrimSpace(cred.value)
		if v == "" {
			return fmt.Errorf("risk: %s is empty", cred.name)
		}
		lower := strings.ToLower(v)
		for _, p := range placeholderCredentials {
			if strings.Contains(lower, p) {
				return fmt.Errorf("risk: %s looks like a placeholder", cred.name)
			}
		}
		if len(v) < 16 || strings.ContainsAny(v, " \t\n") {
			return fmt.Errorf("risk: %s has unexpected format", cred.name)
		}
	}
	return nil
}

// Authorize runs the ordered gate checklist for one entry attempt,
// short-circuiting on the first failure. A nil return authorizes the entry.
func (g *Guard) Authorize(req EntryRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state.LastCheckAt = time.Now()

	if g.state.KillSwitchActive {
		return &Denial{Reason: ReasonKillSwitch, Detail: "kill switch is latched, manual reset required"}
	}

	required := req.Notional.Add(req.Notional.Mul(g.margin))
	for exchangeName, balance := range req.Balances {
		if balance.LessThan(required) {
			return &Denial{
				Reason: ReasonBalanceShortfall,
				Detail: fmt.Sprintf("%s balance %s below required %s (notional plus margin)", exchangeName, balance, required),
			}
		}
	}

	if req.OpenExposure.Add(req.Notional).GreaterThan(g.exposureCap) {
		return &Denial{
			Reason: ReasonExposureCap,
			Detail: fmt.Sprintf("open exposure %s plus notional %s exceeds cap %s", req.OpenExposure, req.Notional, g.exposureCap),
		}
	}

	if g.state.ConsecutiveFailures >= g.cfg.MaxConsecutiveFailures {
		g.state.KillSwitchActive = true
		g.logger.Error("RiskGuard: kill switch activated",
			"consecutiveFailures", g.state.ConsecutiveFailures,
			"ceiling", g.cfg.MaxConsecutiveFailures)
		return &Denial{
			Reason: ReasonFailureCeiling,
			Detail: fmt.Sprintf("%d consecutive failures reached ceiling %d", g.state.ConsecutiveFailures, g.cfg.MaxConsecutiveFailures),
		}
	}

	return nil
}

// Mode returns the effective trading mode.
func (g *Guard) Mode() model.Mode {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.Mode
}

// RecordFailure increments the consecutive failure count and latches the
// kill switch when the ceiling is reached.
func (g *Guard) RecordFailure() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state.ConsecutiveFailures++
	if g.state.ConsecutiveFailures >= g.cfg.MaxConsecutiveFailures {
		g.state.KillSwitchActive = true
		g.logger.Error("RiskGuard: kill switch activated", "consecutiveFailures", g.state.ConsecutiveFailures)
	}
}

// RecordSuccess resets the consecutive failure count.
func (g *Guard) RecordSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state.ConsecutiveFailures = 0
}

// TripKillSwitch latches the kill switch explicitly.
func (g *Guard) TripKillSwitch(detail string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.state.KillSwitchActive {
		g.state.KillSwitchActive = true
		g.logger.Error("RiskGuard: kill switch tripped", "detail", detail)
	}
}

// Reset clears the kill switch and failure count. Manual operation only.
func (g *Guard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state.KillSwitchActive = false
	g.state.ConsecutiveFailures = 0
	g.logger.Info("RiskGuard: manually reset")
}

// KillSwitchActive reports the latched state.
func (g *Guard) KillSwitchActive() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.KillSwitchActive
}

// State returns a copy of the current risk state.
func (g *Guard) State() model.RiskGuardState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}
