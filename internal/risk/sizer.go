package risk

import (
	"math"

	"github.com/equitron/equity-agent/pkg/types"
)

// PositionSizer converts a research signal into a proposed share quantity
// under the active risk profile. Sizing is a pure computation over its
// inputs so the same code path serves live trading and backtest replay.
type PositionSizer struct {
	// AllowFractional keeps quantities at 4 decimal places instead of
	// flooring to whole shares
	AllowFractional bool
}

// NewPositionSizer creates a position sizer
func NewPositionSizer(allowFractional bool) *PositionSizer {
	return &PositionSizer{AllowFractional: allowFractional}
}

// Size returns the proposed quantity (>= 0) for the signal given current
// equity. A zero quantity means no trade: the signal missed the profile's
// thresholds, or the stop distance is undefined and the position cannot be
// sized safely.
func (s *PositionSizer) Size(signal types.ResearchSignal, equity float64, profile RiskProfile) float64 {
	if math.Abs(signal.Score) < profile.MinScoreThreshold {
		return 0
	}
	if signal.RiskScore > profile.MaxRiskScore {
		return 0
	}
	if signal.Price <= 0 || equity <= 0 {
		return 0
	}

	riskCapital := equity * profile.RiskPercentage / 100
	perShareRisk := signal.Price * profile.StopLossPct / 100
	if perShareRisk <= 0 {
		// zero stop distance: cannot bound the loss, skip
		return 0
	}

	rawQuantity := riskCapital / perShareRisk

	maxPositionValue := equity * profile.MaxPositionSizePct / 100
	capQuantity := maxPositionValue / signal.Price

	quantity := math.Min(rawQuantity, capQuantity)
	if quantity <= 0 {
		return 0
	}

	if s.AllowFractional {
		return math.Floor(quantity*10000) / 10000
	}
	return math.Floor(quantity)
}

// StopLossPrice returns the stop price for an entry at the given price.
// Short entries mirror the stop above the entry.
func StopLossPrice(entryPrice float64, side types.OrderSide, profile RiskProfile) float64 {
	if profile.StopLossPct <= 0 {
		return 0
	}
	offset := entryPrice * profile.StopLossPct / 100
	if side == types.SideSell {
		return entryPrice + offset
	}
	return entryPrice - offset
}

// TakeProfitPrice returns the take-profit price for an entry at the given price
func TakeProfitPrice(entryPrice float64, side types.OrderSide, profile RiskProfile) float64 {
	if profile.TakeProfitPct <= 0 {
		return 0
	}
	offset := entryPrice * profile.TakeProfitPct / 100
	if side == types.SideSell {
		return entryPrice - offset
	}
	return entryPrice + offset
}
