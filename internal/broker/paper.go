package broker

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/equitron/equity-agent/pkg/types"
)

// PaperConfig controls the simulated execution of the paper broker
type PaperConfig struct {
	SimulateSlippage    bool    `json:"simulate_slippage" yaml:"simulate_slippage"`
	SlippagePct         float64 `json:"slippage_pct" yaml:"slippage_pct"` // max deviation, e.g. 0.1 = ±0.1%
	SimulateCommissions bool    `json:"simulate_commissions" yaml:"simulate_commissions"`
	CommissionRate      float64 `json:"commission_rate" yaml:"commission_rate"` // 0.005 = 0.5%
	// Seed makes execution deterministic for tests and backtests; 0 seeds
	// from the clock
	Seed int64 `json:"-" yaml:"-"`
}

// DefaultPaperConfig returns the default virtual-trading settings
func DefaultPaperConfig() PaperConfig {
	return PaperConfig{
		SimulateSlippage:    true,
		SlippagePct:         0.1,
		SimulateCommissions: true,
		CommissionRate:      0.005,
	}
}

// PaperBroker simulates order execution against quoted prices. It serves
// virtual trading mode and backtest replay; quotes are pushed in by
// whoever owns the market data (the signal loop live, the replay loop in
// backtests).
type PaperBroker struct {
	config PaperConfig

	mu     sync.RWMutex
	quotes map[string]float64
	rng    *rand.Rand
}

// NewPaperBroker creates a paper broker
func NewPaperBroker(config PaperConfig) *PaperBroker {
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &PaperBroker{
		config: config,
		quotes: make(map[string]float64),
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Name identifies the broker implementation
func (b *PaperBroker) Name() string {
	return "paper"
}

// SetQuote records the latest known price for a symbol
func (b *PaperBroker) SetQuote(symbol string, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.quotes[symbol] = price
}

// Quote returns the latest known price for a symbol
func (b *PaperBroker) Quote(symbol string) (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	price, ok := b.quotes[symbol]
	return price, ok
}

// SubmitOrder fills the order at the quoted price with optional slippage
// and commission. Orders for symbols without a quote are rejected, never
// left in limbo.
func (b *PaperBroker) SubmitOrder(ctx context.Context, order types.OrderRequest) (*types.OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &types.OrderResult{
		OrderID:   order.ID,
		ResultID:  uuid.NewString(),
		Timestamp: time.Now(),
	}

	if order.Quantity <= 0 {
		result.Status = types.OrderStatusRejected
		result.Reason = "non-positive quantity"
		return result, nil
	}

	price := order.LimitPrice
	if order.Type == types.OrderTypeMarket || price <= 0 {
		quoted, ok := b.Quote(order.Symbol)
		if !ok || quoted <= 0 {
			result.Status = types.OrderStatusRejected
			result.Reason = fmt.Sprintf("no quote for %s", order.Symbol)
			return result, nil
		}
		price = quoted
	}

	fillPrice := b.applySlippage(price)

	result.Status = types.OrderStatusFilled
	result.FilledQuantity = order.Quantity
	result.FillPrice = fillPrice
	if b.config.SimulateCommissions {
		result.Commission = order.Quantity * fillPrice * b.config.CommissionRate
	}

	return result, nil
}

// applySlippage perturbs the price within ±SlippagePct
func (b *PaperBroker) applySlippage(price float64) float64 {
	if !b.config.SimulateSlippage || b.config.SlippagePct <= 0 {
		return price
	}
	b.mu.Lock()
	variation := (b.rng.Float64()*2 - 1) * b.config.SlippagePct / 100
	b.mu.Unlock()
	return price * (1 + variation)
}
