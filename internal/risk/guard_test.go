package risk

import (
	"log/slog"
	"os"
	"testing"

	"arbiter/internal/config"
	"arbiter/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		Mode:                   "dry_run",
		ExposureCap:            5_000_000,
		BalanceMarginPercent:   5,
		MaxConsecutiveFailures: 3,
	}
}

func request(notional, exposure int64, balances map[string]int64) EntryRequest {
	b := make(map[string]decimal.Decimal, len(balances))
	for name, v := range balances {
		b[name] = decimal.NewFromInt(v)
	}
	return EntryRequest{
		Notional:     decimal.NewFromInt(notional),
		OpenExposure: decimal.NewFromInt(exposure),
		Balances:     b,
	}
}

func TestGuard_Authorize(t *testing.T) {
	t.Run("passes all gates", func(t *testing.T) {
		g := NewGuard(testLogger(), testRiskConfig(), nil)
		err := g.Authorize(request(1_000_000, 0, map[string]int64{"upbit": 2_000_000, "binance": 2_000_000}))
		assert.NoError(t, err)
	})

	t.Run("balance shortfall", func(t *testing.T) {
		g := NewGuard(testLogger(), testRiskConfig(), nil)
		// 1,000,000 notional needs 1,050,000 with the 5% margin.
		err := g.Authorize(request(1_000_000, 0, map[string]int64{"upbit": 1_040_000, "binance": 2_000_000}))
		var denial *Denial
		require.ErrorAs(t, err, &denial)
		assert.Equal(t, ReasonBalanceShortfall, denial.Reason)
	})

	t.Run("exposure cap exceeded", func(t *testing.T) {
		g := NewGuard(testLogger(), testRiskConfig(), nil)
		err := g.Authorize(request(1_000_000, 4_500_000, map[string]int64{"upbit": 2_000_000, "binance": 2_000_000}))
		var denial *Denial
		require.ErrorAs(t, err, &denial)
		assert.Equal(t, ReasonExposureCap, denial.Reason)
	})

	t.Run("kill switch denies everything", func(t *testing.T) {
		g := NewGuard(testLogger(), testRiskConfig(), nil)
		g.TripKillSwitch("unit test")
		err := g.Authorize(request(1, 0, map[string]int64{"upbit": 2_000_000, "binance": 2_000_000}))
		var denial *Denial
		require.ErrorAs(t, err, &denial)
		assert.Equal(t, ReasonKillSwitch, denial.Reason)
	})

	t.Run("denial reasons are distinguishable", func(t *testing.T) {
		g := NewGuard(testLogger(), testRiskConfig(), nil)
		shortfall := g.Authorize(request(1_000_000, 0, map[string]int64{"upbit": 1}))
		exposure := g.Authorize(request(1_000_000, 5_000_000, map[string]int64{"upbit": 2_000_000}))
		var a, b *Denial
		require.ErrorAs(t, shortfall, &a)
		require.ErrorAs(t, exposure, &b)
		assert.NotEqual(t, a.Reason, b.Reason)
	})
}

func TestGuard_FailureCeilingLatchesKillSwitch(t *testing.T) {
	g := NewGuard(testLogger(), testRiskConfig(), nil)

	g.RecordFailure()
	g.RecordFailure()
	assert.False(t, g.KillSwitchActive())

	g.RecordFailure()
	assert.True(t, g.KillSwitchActive())

	// Latched until manual reset.
	err := g.Authorize(request(1, 0, map[string]int64{"upbit": 1_000_000}))
	var denial *Denial
	require.ErrorAs(t, err, &denial)
	assert.Equal(t, ReasonKillSwitch, denial.Reason)

	g.Reset()
	assert.False(t, g.KillSwitchActive())
	assert.NoError(t, g.Authorize(request(1, 0, map[string]int64{"upbit": 1_000_000})))
}

func TestGuard_SuccessResetsFailureCount(t *testing.T) {
	g := NewGuard(testLogger(), testRiskConfig(), nil)
	g.RecordFailure()
	g.RecordFailure()
	g.RecordSuccess()
	g.RecordFailure()
	g.RecordFailure()
	assert.False(t, g.KillSwitchActive())
	assert.Equal(t, 2, g.State().ConsecutiveFailures)
}

func TestGuard_ModeSelection(t *testing.T) {
	valid := map[string]config.ExchangeConfig{
		"upbit":   {APIKey: "AKlweirjhsldkfjh23l4kj", APISecret: "Sdkfjh2l34kjhsdlfkjh234"},
		"binance": {APIKey: "BKlweirjhsldkfjh23l4kj", APISecret: "Tdkfjh2l34kjhsdlfkjh234"},
	}

	t.Run("live with valid credentials", func(t *testing.T) {
		cfg := testRiskConfig()
		cfg.Mode = "live"
		g := NewGuard(testLogger(), cfg, valid)
		assert.Equal(t, model.ModeLive, g.Mode())
	})

	t.Run("placeholder credentials force dry run", func(t *testing.T) {
		cfg := testRiskConfig()
		cfg.Mode = "live"
		bad := map[string]config.ExchangeConfig{
			"upbit":   valid["upbit"],
			"binance": {APIKey: "your_api_key", APISecret: "your_api_secret"},
		}
		g := NewGuard(testLogger(), cfg, bad)
		assert.Equal(t, model.ModeDryRun, g.Mode())
	})

	t.Run("dry run stays dry run", func(t *testing.T) {
		g := NewGuard(testLogger(), testRiskConfig(), valid)
		assert.Equal(t, model.ModeDryRun, g.Mode())
	})
}

func TestValidateCredentials(t *testing.T) {
	assert.NoError(t, ValidateCredentials("AKlweirjhsldkfjh23l4kj", "Sdkfjh2l34kjhsdlfkjh234"))
	assert.Error(t, ValidateCredentials("", "Sdkfjh2l34kjhsdlfkjh234"))
	assert.Error(t, ValidateCredentials("AKlweirjhsldkfjh23l4kj", ""))
	assert.Error(t, ValidateCredentials("changeme", "Sdkfjh2l34kjhsdlfkjh234"))
	assert.Error(t, ValidateCredentials("short", "Sdkfjh2l34kjhsdlfkjh234"))
	assert.Error(t, ValidateCredentials("AKlweirjh sldkfjh23l4kj", "Sdkfjh2l34kjhsdlfkjh234"))
}
