package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/equitron/equity-agent/internal/broker"
	"github.com/equitron/equity-agent/internal/risk"
	"github.com/equitron/equity-agent/pkg/types"
)

func quietConfig() Config {
	return Config{
		InitialBalance: 10000,
		Profile:        risk.ProfileModerate,
		Timezone:       "UTC",
		Paper: broker.PaperConfig{
			SimulateSlippage:    false,
			SimulateCommissions: false,
			Seed:                1,
		},
	}
}

func sig(day int, hour int, symbol string, score, price float64) types.ResearchSignal {
	return types.ResearchSignal{
		Symbol:    symbol,
		Score:     score,
		RiskScore: 0.2,
		Price:     price,
		Timestamp: time.Date(2025, 6, day, hour, 0, 0, 0, time.UTC),
	}
}

func TestBacktestRejectsEmptyInput(t *testing.T) {
	engine, err := NewEngine(quietConfig())
	require.NoError(t, err)
	_, err = engine.Run(nil)
	assert.Error(t, err)
}

func TestBacktestOpensAndLiquidatesAtEnd(t *testing.T) {
	engine, err := NewEngine(quietConfig())
	require.NoError(t, err)

	result, err := engine.Run([]types.ResearchSignal{
		sig(2, 10, "AAPL", 0.5, 50),
		sig(2, 11, "MSFT", 0.0, 52), // below threshold, price update only
	})
	require.NoError(t, err)

	// entry at 50, liquidated at the last seen price
	assert.Equal(t, 1, result.OrdersAdmitted)
	assert.Equal(t, 2, result.TotalTrades)
	require.Len(t, result.Trades, 1)
	assert.Equal(t, "END_OF_REPLAY", result.Trades[0].CloseReason)
	assert.InDelta(t, 10000, result.EndBalance, 1e-9)
}

func TestBacktestTakeProfitExit(t *testing.T) {
	engine, err := NewEngine(quietConfig())
	require.NoError(t, err)

	result, err := engine.Run([]types.ResearchSignal{
		sig(2, 10, "AAPL", 0.5, 50),
		sig(2, 11, "AAPL", 0.0, 54), // above the 6% take profit at 53
	})
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	trade := result.Trades[0]
	assert.Equal(t, "TAKE_PROFIT", trade.CloseReason)
	assert.InDelta(t, 40, trade.PnL, 1e-9) // (54-50) * 10 shares
	assert.Equal(t, 1, result.WinningTrades)
	assert.InDelta(t, 10040, result.EndBalance, 1e-9)
}

func TestBacktestStopLossExit(t *testing.T) {
	engine, err := NewEngine(quietConfig())
	require.NoError(t, err)

	result, err := engine.Run([]types.ResearchSignal{
		sig(2, 10, "AAPL", 0.5, 50),
		sig(2, 11, "AAPL", 0.0, 47), // below the 3% stop at 48.50
	})
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	assert.Equal(t, "STOP_LOSS", result.Trades[0].CloseReason)
	assert.InDelta(t, -30, result.Trades[0].PnL, 1e-9)
	assert.Equal(t, 0, result.WinningTrades)
}

func TestBacktestCountsRejections(t *testing.T) {
	engine, err := NewEngine(quietConfig())
	require.NoError(t, err)

	result, err := engine.Run([]types.ResearchSignal{
		sig(2, 10, "AAPL", 0.5, 50),
		sig(2, 11, "AAPL", 0.9, 50), // position already open
		sig(2, 12, "MSFT", 0.01, 80), // below score threshold
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Evaluations)
	assert.Equal(t, 1, result.Rejections[risk.ReasonPositionOpen])
	assert.Equal(t, 1, result.Rejections[risk.ReasonZeroSize])
}

func TestBacktestDailySamples(t *testing.T) {
	engine, err := NewEngine(quietConfig())
	require.NoError(t, err)

	result, err := engine.Run([]types.ResearchSignal{
		sig(2, 10, "AAPL", 0.5, 50),
		sig(2, 14, "AAPL", 0.0, 54), // take profit, +40
		sig(3, 10, "MSFT", 0.5, 100),
		sig(3, 14, "MSFT", 0.0, 96), // stop loss
	})
	require.NoError(t, err)

	require.Equal(t, 2, result.Days)
	first := result.Samples[0]
	assert.Equal(t, "2025-06-02", first.Date)
	assert.InDelta(t, 10000, first.StartingEquity, 1e-9)
	assert.InDelta(t, 10040, first.EndingEquity, 1e-9)
	assert.Equal(t, 1, first.TradeCount)
	assert.Equal(t, 1, first.WinCount)

	second := result.Samples[1]
	assert.Equal(t, "2025-06-03", second.Date)
	assert.InDelta(t, 10040, second.StartingEquity, 1e-9)
}

func TestBacktestDeterministicWithSeed(t *testing.T) {
	signals := []types.ResearchSignal{
		sig(2, 10, "AAPL", 0.5, 50),
		sig(2, 12, "AAPL", 0.0, 53.5),
		sig(3, 10, "MSFT", 0.5, 100),
		sig(3, 12, "MSFT", 0.0, 104),
	}

	run := func() float64 {
		cfg := quietConfig()
		cfg.Paper.SimulateSlippage = true
		cfg.Paper.SlippagePct = 0.1
		cfg.Paper.Seed = 42
		engine, err := NewEngine(cfg)
		require.NoError(t, err)
		result, err := engine.Run(signals)
		require.NoError(t, err)
		return result.EndBalance
	}

	assert.Equal(t, run(), run())
}

func TestBacktestDailyLossBreaker(t *testing.T) {
	cfg := quietConfig()
	// tight breaker: one losing trade trips it
	profiles := risk.DefaultProfiles()
	p := profiles[risk.ProfileModerate]
	p.MaxDailyLossPct = 0.2 // cap $20 on a 10k book
	p.MaxDailyTrades = 100
	profiles[risk.ProfileModerate] = p
	cfg.Profiles = profiles

	engine, err := NewEngine(cfg)
	require.NoError(t, err)

	result, err := engine.Run([]types.ResearchSignal{
		sig(2, 10, "AAPL", 0.5, 50),
		sig(2, 11, "AAPL", 0.0, 47),  // stop loss, -30 realized; breaker trips
		sig(2, 12, "MSFT", 0.5, 100), // blocked by the tripped breaker
	})
	require.NoError(t, err)

	// the breaker check precedes zero-size, so the post-exit evaluation of
	// the second signal is also counted against it
	assert.Equal(t, 2, result.Rejections[risk.ReasonDailyLossLimit])
	assert.Equal(t, 1, result.OrdersAdmitted)
}

func TestBacktestExitDoesNotSpendTradeBudget(t *testing.T) {
	cfg := quietConfig()
	profiles := risk.DefaultProfiles()
	p := profiles[risk.ProfileModerate]
	p.MaxDailyTrades = 2
	profiles[risk.ProfileModerate] = p
	cfg.Profiles = profiles

	engine, err := NewEngine(cfg)
	require.NoError(t, err)

	result, err := engine.Run([]types.ResearchSignal{
		sig(2, 10, "AAPL", 0.5, 50),
		sig(2, 11, "AAPL", 0.0, 47),  // stop loss exit
		sig(2, 12, "MSFT", 0.5, 100), // second entry fits the two-entry budget
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.OrdersAdmitted)
	assert.Equal(t, 0, result.Rejections[risk.ReasonDailyTradeLimit])
}

func TestBacktestSortsSignalsByTimestamp(t *testing.T) {
	engine, err := NewEngine(quietConfig())
	require.NoError(t, err)

	// out of order: the exit-triggering price precedes the entry in the slice
	result, err := engine.Run([]types.ResearchSignal{
		sig(2, 14, "AAPL", 0.0, 54),
		sig(2, 10, "AAPL", 0.5, 50),
	})
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	assert.Equal(t, "TAKE_PROFIT", result.Trades[0].CloseReason)
}
