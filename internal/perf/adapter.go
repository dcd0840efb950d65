package perf

import (
	"github.com/equitron/equity-agent/internal/risk"
)

// AdapterConfig tunes the profile adaptation rules
type AdapterConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	// EvaluationDays is how many recent days the adapter judges on
	EvaluationDays int `json:"evaluation_days" yaml:"evaluation_days"`
	// MinTrades is the minimum trade count in the evaluation window before
	// any recommendation is made
	MinTrades int `json:"min_trades" yaml:"min_trades"`
	// PromoteReturnPct promotes when the window's average daily return
	// exceeds this (percent, e.g. 0.5 = +0.5%/day)
	PromoteReturnPct float64 `json:"promote_return_pct" yaml:"promote_return_pct"`
	// PromoteWinRate is the additional win-rate floor for promotion
	PromoteWinRate float64 `json:"promote_win_rate" yaml:"promote_win_rate"`
	// DemoteReturnPct demotes when the average daily return falls below
	// this (percent, typically negative)
	DemoteReturnPct float64 `json:"demote_return_pct" yaml:"demote_return_pct"`
	// DemoteDrawdownPct demotes when the window drawdown exceeds this percent
	DemoteDrawdownPct float64 `json:"demote_drawdown_pct" yaml:"demote_drawdown_pct"`
	// EnableBacktesting requires a shadow replay of recent signals to confirm
	// a recommended promotion before it is applied
	EnableBacktesting bool `json:"enable_backtesting" yaml:"enable_backtesting"`
	// BacktestDays is how many days of signal history the replay keeps
	BacktestDays int `json:"backtest_days" yaml:"backtest_days"`
}

// DefaultAdapterConfig returns conservative adaptation settings
func DefaultAdapterConfig() AdapterConfig {
	return AdapterConfig{
		Enabled:           true,
		EvaluationDays:    5,
		MinTrades:         10,
		PromoteReturnPct:  0.5,
		PromoteWinRate:    0.55,
		DemoteReturnPct:   -0.3,
		DemoteDrawdownPct: 4.0,
		BacktestDays:      5,
	}
}

// Recommendation is the adapter's verdict for one evaluation
type Recommendation struct {
	Switch bool   `json:"switch"`
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason"`
	Window Stats  `json:"window"`
}

// Adapter moves the active risk profile along the built-in ladder based on
// recent performance: sustained gains promote toward aggressive, losses or
// drawdowns demote toward conservative. Demotion checks run first so a
// losing streak can never be promoted on a stale win rate.
type Adapter struct {
	config  AdapterConfig
	tracker *Tracker
}

// NewAdapter creates a profile adapter over the tracker
func NewAdapter(config AdapterConfig, tracker *Tracker) *Adapter {
	if config.EvaluationDays <= 0 {
		config.EvaluationDays = 5
	}
	return &Adapter{config: config, tracker: tracker}
}

// Evaluate judges the recent window and returns a recommendation. It never
// mutates the profile book; the caller applies the switch between
// evaluation cycles.
func (a *Adapter) Evaluate(activeProfile string) Recommendation {
	rec := Recommendation{From: activeProfile, To: activeProfile}
	if !a.config.Enabled {
		rec.Reason = "adaptation disabled"
		return rec
	}

	samples := a.tracker.Recent(a.config.EvaluationDays)
	if len(samples) < a.config.EvaluationDays {
		rec.Reason = "insufficient history"
		return rec
	}

	stats := Summarize(samples)
	rec.Window = stats

	if stats.TradeCount < a.config.MinTrades {
		rec.Reason = "insufficient trades in window"
		return rec
	}

	avgPct := stats.AvgDailyReturn * 100
	drawdownPct := stats.MaxDrawdown * 100

	if avgPct <= a.config.DemoteReturnPct || drawdownPct >= a.config.DemoteDrawdownPct {
		target := risk.Demote(activeProfile)
		if target != activeProfile {
			rec.Switch = true
			rec.To = target
			rec.Reason = "losing window"
			return rec
		}
		rec.Reason = "losing window, already at most conservative profile"
		return rec
	}

	if avgPct >= a.config.PromoteReturnPct && stats.WinRate >= a.config.PromoteWinRate {
		target := risk.Promote(activeProfile)
		if target != activeProfile {
			rec.Switch = true
			rec.To = target
			rec.Reason = "winning window"
			return rec
		}
		rec.Reason = "winning window, already at most aggressive profile"
		return rec
	}

	rec.Reason = "performance within holding band"
	return rec
}

// Apply evaluates and, when warranted, switches the active profile on the
// book. Returns the recommendation that was acted on.
func (a *Adapter) Apply(book *risk.ProfileBook) (Recommendation, error) {
	rec := a.Evaluate(book.ActiveName())
	if !rec.Switch {
		return rec, nil
	}
	if err := book.Switch(rec.To); err != nil {
		return rec, err
	}
	return rec, nil
}
