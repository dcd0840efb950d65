package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/equitron/equity-agent/pkg/types"
)

func buyOrder(qty float64) types.OrderRequest {
	return types.OrderRequest{
		ID:       "order-1",
		Symbol:   "AAPL",
		Side:     types.SideBuy,
		Quantity: qty,
		Type:     types.OrderTypeMarket,
	}
}

func sellOrder(qty float64) types.OrderRequest {
	o := buyOrder(qty)
	o.Side = types.SideSell
	return o
}

func healthyAccount() AccountView {
	return AccountView{
		Equity:         10000,
		Cash:           10000,
		TradesToday:    0,
		LossToday:      0,
		DayStartEquity: 10000,
	}
}

func TestGateAcceptsHealthyOrder(t *testing.T) {
	gate := NewRiskGate(false)
	verdict := gate.Admit(buyOrder(10), 50, healthyAccount(), testProfile())
	assert.True(t, verdict.Accepted)
	assert.Empty(t, verdict.Reason)
}

func TestGateDailyTradeLimit(t *testing.T) {
	gate := NewRiskGate(false)
	acct := healthyAccount()
	acct.TradesToday = 10

	verdict := gate.Admit(buyOrder(10), 50, acct, testProfile())
	assert.False(t, verdict.Accepted)
	assert.Equal(t, ReasonDailyTradeLimit, verdict.Reason)
}

func TestGateDailyLossBreaker(t *testing.T) {
	gate := NewRiskGate(false)
	profile := testProfile() // 5% of 10000 day-start equity = 500 cap

	tests := []struct {
		name      string
		lossToday float64
		accepted  bool
	}{
		{"below cap", 499.99, true},
		{"exactly at cap", 500.00, false},
		{"within epsilon of cap", 500.0 - 1e-12, false},
		{"above cap", 600.00, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acct := healthyAccount()
			acct.LossToday = tt.lossToday
			verdict := gate.Admit(buyOrder(1), 50, acct, profile)
			assert.Equal(t, tt.accepted, verdict.Accepted)
			if !tt.accepted {
				assert.Equal(t, ReasonDailyLossLimit, verdict.Reason)
			}
		})
	}
}

func TestGateBreakerTripsRegardlessOfQuantity(t *testing.T) {
	// the breaker check runs before the zero-size check, so a tripped day
	// reports DAILY_LOSS_LIMIT even for unsizable signals
	gate := NewRiskGate(false)
	acct := healthyAccount()
	acct.LossToday = 600

	verdict := gate.Admit(buyOrder(0), 50, acct, testProfile())
	assert.Equal(t, ReasonDailyLossLimit, verdict.Reason)
}

func TestGateInsufficientCapital(t *testing.T) {
	gate := NewRiskGate(false)
	acct := healthyAccount()
	acct.Cash = 400

	verdict := gate.Admit(buyOrder(10), 50, acct, testProfile())
	assert.False(t, verdict.Accepted)
	assert.Equal(t, ReasonInsufficientCapital, verdict.Reason)
}

func TestGateCashEpsilonTolerance(t *testing.T) {
	gate := NewRiskGate(false)
	acct := healthyAccount()
	acct.Cash = 500 - 1e-12

	// a float-rounding shortfall must not reject the order
	verdict := gate.Admit(buyOrder(10), 50, acct, testProfile())
	assert.True(t, verdict.Accepted)
}

func TestGateSellRequiresHeldOrShortPermission(t *testing.T) {
	profile := testProfile()

	t.Run("covered sell accepted", func(t *testing.T) {
		gate := NewRiskGate(false)
		acct := healthyAccount()
		acct.HeldQuantity = 10
		verdict := gate.Admit(sellOrder(10), 50, acct, profile)
		assert.True(t, verdict.Accepted)
	})

	t.Run("naked sell rejected without short permission", func(t *testing.T) {
		gate := NewRiskGate(false)
		verdict := gate.Admit(sellOrder(10), 50, healthyAccount(), profile)
		assert.Equal(t, ReasonInsufficientCapital, verdict.Reason)
	})

	t.Run("short accepted when allowed and cash-secured", func(t *testing.T) {
		gate := NewRiskGate(true)
		verdict := gate.Admit(sellOrder(10), 50, healthyAccount(), profile)
		assert.True(t, verdict.Accepted)
	})

	t.Run("short rejected when not cash-secured", func(t *testing.T) {
		gate := NewRiskGate(true)
		acct := healthyAccount()
		acct.Cash = 100
		verdict := gate.Admit(sellOrder(10), 50, acct, profile)
		assert.Equal(t, ReasonInsufficientCapital, verdict.Reason)
	})
}

func TestGateZeroSize(t *testing.T) {
	gate := NewRiskGate(false)
	verdict := gate.Admit(buyOrder(0), 50, healthyAccount(), testProfile())
	assert.False(t, verdict.Accepted)
	assert.Equal(t, ReasonZeroSize, verdict.Reason)
}

func TestGateChecksRunInOrder(t *testing.T) {
	// when several checks would fail, the first one in the sequence wins
	gate := NewRiskGate(false)
	acct := healthyAccount()
	acct.TradesToday = 10
	acct.LossToday = 600
	acct.Cash = 0

	verdict := gate.Admit(buyOrder(0), 50, acct, testProfile())
	assert.Equal(t, ReasonDailyTradeLimit, verdict.Reason)
}

func TestGateUsesLimitPriceForLimitOrders(t *testing.T) {
	gate := NewRiskGate(false)
	acct := healthyAccount()
	acct.Cash = 450

	order := buyOrder(10)
	order.Type = types.OrderTypeLimit
	order.LimitPrice = 44 // cost 440, fits; the 50 reference would not

	verdict := gate.Admit(order, 50, acct, testProfile())
	assert.True(t, verdict.Accepted)
}
