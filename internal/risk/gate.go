package risk

import (
	"math"

	"github.com/equitron/equity-agent/pkg/types"
)

// Reason identifies why an evaluation cycle produced no trade
type Reason string

const (
	ReasonDailyTradeLimit        Reason = "DAILY_TRADE_LIMIT"
	ReasonDailyLossLimit         Reason = "DAILY_LOSS_LIMIT"
	ReasonInsufficientCapital    Reason = "INSUFFICIENT_CAPITAL"
	ReasonZeroSize               Reason = "ZERO_SIZE"
	ReasonOrderInFlight          Reason = "ORDER_IN_FLIGHT"
	ReasonReconciliationRequired Reason = "RECONCILIATION_REQUIRED"
	ReasonPositionOpen           Reason = "POSITION_OPEN"
	ReasonConfirmationPending    Reason = "CONFIRMATION_PENDING"
)

// Verdict is the gate's decision for a proposed order
type Verdict struct {
	Accepted bool
	Reason   Reason
}

// Accept returns an accepting verdict
func Accept() Verdict {
	return Verdict{Accepted: true}
}

// Reject returns a rejecting verdict with the given reason
func Reject(reason Reason) Verdict {
	return Verdict{Reason: reason}
}

// AccountView is the read-only slice of portfolio state the gate consults.
// The gate never mutates portfolio state; counters only move on confirmed
// fills, so a broker-side rejection cannot corrupt them.
type AccountView struct {
	Equity         float64
	Cash           float64
	TradesToday    int
	LossToday      float64
	DayStartEquity float64
	// HeldQuantity is the signed quantity currently held in the order's
	// symbol (negative for shorts, zero when flat)
	HeldQuantity float64
}

// moneyEpsilon absorbs float rounding in cash sufficiency checks
const moneyEpsilon = 1e-9

// RiskGate validates proposed orders against daily and account limits
type RiskGate struct {
	AllowShortSelling bool
}

// NewRiskGate creates a risk gate
func NewRiskGate(allowShortSelling bool) *RiskGate {
	return &RiskGate{AllowShortSelling: allowShortSelling}
}

// Admit checks the proposed entry order in a fixed sequence; the first
// failing check is the rejection reason. refPrice is the reference price
// used to value the order (market orders carry no price of their own).
func (g *RiskGate) Admit(order types.OrderRequest, refPrice float64, acct AccountView, profile RiskProfile) Verdict {
	if acct.TradesToday >= profile.MaxDailyTrades {
		return Reject(ReasonDailyTradeLimit)
	}

	// Daily-loss circuit breaker: once realized losses reach the cap, no
	// further entries are admitted until the day-boundary reset.
	lossCap := acct.DayStartEquity * profile.MaxDailyLossPct / 100
	if lossCap > 0 && acct.LossToday >= lossCap-moneyEpsilon {
		return Reject(ReasonDailyLossLimit)
	}

	price := refPrice
	if order.Type == types.OrderTypeLimit && order.LimitPrice > 0 {
		price = order.LimitPrice
	}

	switch order.Side {
	case types.SideBuy:
		cost := order.Quantity * price
		if cost > acct.Cash+moneyEpsilon {
			return Reject(ReasonInsufficientCapital)
		}
	case types.SideSell:
		if acct.HeldQuantity >= order.Quantity {
			break
		}
		if !g.AllowShortSelling {
			return Reject(ReasonInsufficientCapital)
		}
		// shorts are cash-secured: the uncovered part must be backed
		uncovered := order.Quantity - math.Max(acct.HeldQuantity, 0)
		if uncovered*price > acct.Cash+moneyEpsilon {
			return Reject(ReasonInsufficientCapital)
		}
	}

	if order.Quantity <= 0 {
		return Reject(ReasonZeroSize)
	}

	return Accept()
}
