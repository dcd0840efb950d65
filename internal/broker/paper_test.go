package broker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/equitron/equity-agent/pkg/types"
)

func marketBuy(qty float64) types.OrderRequest {
	return types.OrderRequest{
		ID:       "order-1",
		Symbol:   "AAPL",
		Side:     types.SideBuy,
		Quantity: qty,
		Type:     types.OrderTypeMarket,
	}
}

func TestPaperBrokerFillsAtQuote(t *testing.T) {
	cfg := DefaultPaperConfig()
	cfg.SimulateSlippage = false
	cfg.SimulateCommissions = false

	b := NewPaperBroker(cfg)
	b.SetQuote("AAPL", 50)

	res, err := b.SubmitOrder(context.Background(), marketBuy(10))
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusFilled, res.Status)
	assert.Equal(t, 10.0, res.FilledQuantity)
	assert.Equal(t, 50.0, res.FillPrice)
	assert.Equal(t, 0.0, res.Commission)
	assert.NotEmpty(t, res.ResultID)
}

func TestPaperBrokerRejectsWithoutQuote(t *testing.T) {
	b := NewPaperBroker(DefaultPaperConfig())

	res, err := b.SubmitOrder(context.Background(), marketBuy(10))
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusRejected, res.Status)
	assert.Contains(t, res.Reason, "no quote")
}

func TestPaperBrokerRejectsNonPositiveQuantity(t *testing.T) {
	b := NewPaperBroker(DefaultPaperConfig())
	b.SetQuote("AAPL", 50)

	res, err := b.SubmitOrder(context.Background(), marketBuy(0))
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusRejected, res.Status)
}

func TestPaperBrokerSlippageStaysBounded(t *testing.T) {
	cfg := DefaultPaperConfig()
	cfg.SlippagePct = 0.1
	cfg.Seed = 7

	b := NewPaperBroker(cfg)
	b.SetQuote("AAPL", 100)

	for i := 0; i < 50; i++ {
		res, err := b.SubmitOrder(context.Background(), marketBuy(1))
		require.NoError(t, err)
		assert.InDelta(t, 100, res.FillPrice, 0.1001)
	}
}

func TestPaperBrokerCommission(t *testing.T) {
	cfg := DefaultPaperConfig()
	cfg.SimulateSlippage = false
	cfg.CommissionRate = 0.005

	b := NewPaperBroker(cfg)
	b.SetQuote("AAPL", 50)

	res, err := b.SubmitOrder(context.Background(), marketBuy(10))
	require.NoError(t, err)
	assert.InDelta(t, 2.5, res.Commission, 1e-9)
}

func TestPaperBrokerDeterministicWithSeed(t *testing.T) {
	run := func() []float64 {
		cfg := DefaultPaperConfig()
		cfg.Seed = 42
		b := NewPaperBroker(cfg)
		b.SetQuote("AAPL", 100)

		var prices []float64
		for i := 0; i < 10; i++ {
			res, err := b.SubmitOrder(context.Background(), marketBuy(1))
			require.NoError(t, err)
			prices = append(prices, res.FillPrice)
		}
		return prices
	}

	assert.Equal(t, run(), run())
}

// failingBroker fails a fixed number of times before succeeding
type failingBroker struct {
	failures int
	calls    int
}

func (f *failingBroker) Name() string { return "failing" }

func (f *failingBroker) SubmitOrder(ctx context.Context, order types.OrderRequest) (*types.OrderResult, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("connection reset")
	}
	return &types.OrderResult{
		OrderID:        order.ID,
		ResultID:       "r1",
		Status:         types.OrderStatusFilled,
		FilledQuantity: order.Quantity,
		FillPrice:      50,
	}, nil
}

func TestGuardedBrokerOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &failingBroker{failures: 100}
	g := NewGuardedBroker(inner, GuardConfig{ConsecutiveFailures: 3})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := g.SubmitOrder(ctx, marketBuy(1))
		assert.Error(t, err)
	}

	// breaker is open now: calls fail fast without reaching the broker
	callsBefore := inner.calls
	_, err := g.SubmitOrder(ctx, marketBuy(1))
	assert.Error(t, err)
	assert.Equal(t, callsBefore, inner.calls)
}

func TestGuardedBrokerPassesThroughSuccess(t *testing.T) {
	inner := &failingBroker{failures: 0}
	g := NewGuardedBroker(inner, DefaultGuardConfig())

	res, err := g.SubmitOrder(context.Background(), marketBuy(5))
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusFilled, res.Status)
	assert.Equal(t, 5.0, res.FilledQuantity)
}
