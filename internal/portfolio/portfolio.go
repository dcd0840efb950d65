package portfolio

import (
	"fmt"
	"sync"
	"time"

	"github.com/equitron/equity-agent/internal/risk"
	"github.com/equitron/equity-agent/pkg/types"
)

// Portfolio owns cash, open positions, realized P&L and the daily risk
// counters. It is the only shared mutable state in the trading pipeline:
// reads may run concurrently, every mutation happens inside a fill
// application or the day-boundary reset, both serialized by the mutex.
type Portfolio struct {
	mu sync.RWMutex

	cash           float64
	positions      map[string]types.Position
	realizedPnL    float64
	tradesToday    int
	lossToday      float64
	dayStartEquity float64
	tradingDay     string

	loc *time.Location

	// appliedResults makes settlement idempotent per result id so
	// duplicate OrderResult delivery cannot double-apply a fill
	appliedResults map[string]bool

	lastUpdated time.Time
}

// Fill is a confirmed order execution to be applied to the portfolio.
// Day carries the trading day the originating signal was evaluated on, so a
// settlement straddling midnight is attributed to the correct day.
type Fill struct {
	ResultID    string
	OrderID     string
	Symbol      string
	Side        types.OrderSide
	Quantity    float64
	Price       float64
	Commission  float64
	Day         string
	StopLoss    float64
	TakeProfit  float64
	CloseReason string
	Timestamp   time.Time
}

// TradeOutcome reports what a fill did to the portfolio
type TradeOutcome struct {
	Symbol      string
	Side        types.OrderSide
	Quantity    float64
	Price       float64
	Opened      bool
	Closed      bool
	RealizedPnL float64
	EntryPrice  float64
	CloseReason string
	Duplicate   bool
}

// New creates a portfolio with the given starting cash. The location
// defines the trading-day boundary for the daily counters.
func New(initialCash float64, loc *time.Location, now time.Time) *Portfolio {
	if loc == nil {
		loc = time.UTC
	}
	return &Portfolio{
		cash:           initialCash,
		positions:      make(map[string]types.Position),
		dayStartEquity: initialCash,
		tradingDay:     now.In(loc).Format("2006-01-02"),
		loc:            loc,
		appliedResults: make(map[string]bool),
		lastUpdated:    now,
	}
}

// Cash returns the uncommitted cash balance
func (p *Portfolio) Cash() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cash
}

// Equity returns cash plus the market value of all open positions
func (p *Portfolio) Equity() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.equityLocked()
}

func (p *Portfolio) equityLocked() float64 {
	equity := p.cash
	for _, pos := range p.positions {
		equity += pos.MarketValue()
	}
	return equity
}

// TradingDay returns the current trading day in the portfolio's location
func (p *Portfolio) TradingDay() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.tradingDay
}

// HasPosition reports whether a position is open for the symbol
func (p *Portfolio) HasPosition(symbol string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.positions[symbol]
	return ok
}

// Position returns a copy of the open position for the symbol
func (p *Portfolio) Position(symbol string) (types.Position, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pos, ok := p.positions[symbol]
	return pos, ok
}

// Positions returns a copy of all open positions
func (p *Portfolio) Positions() map[string]types.Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]types.Position, len(p.positions))
	for sym, pos := range p.positions {
		out[sym] = pos
	}
	return out
}

// ViewFor returns the read-only account view the risk gate consults when
// admitting an order for the symbol
func (p *Portfolio) ViewFor(symbol string) risk.AccountView {
	p.mu.RLock()
	defer p.mu.RUnlock()
	view := risk.AccountView{
		Equity:         p.equityLocked(),
		Cash:           p.cash,
		TradesToday:    p.tradesToday,
		LossToday:      p.lossToday,
		DayStartEquity: p.dayStartEquity,
	}
	if pos, ok := p.positions[symbol]; ok {
		view.HeldQuantity = pos.Quantity
	}
	return view
}

// MarkPrice updates the current market price of an open position
func (p *Portfolio) MarkPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[symbol]
	if !ok || price <= 0 {
		return
	}
	pos.CurrentPrice = price
	p.positions[symbol] = pos
	p.lastUpdated = time.Now()
}

// ApplyFill applies a confirmed fill. Application is idempotent per result
// id; re-delivery of the same result is reported as a duplicate outcome and
// changes nothing.
func (p *Portfolio) ApplyFill(f Fill) (*TradeOutcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if f.ResultID != "" && p.appliedResults[f.ResultID] {
		return &TradeOutcome{Symbol: f.Symbol, Duplicate: true}, nil
	}

	outcome := &TradeOutcome{
		Symbol:   f.Symbol,
		Side:     f.Side,
		Quantity: f.Quantity,
		Price:    f.Price,
	}

	if f.Quantity <= 0 || f.Price <= 0 {
		// zero fill: nothing to settle, but remember the result id
		p.markApplied(f.ResultID)
		return outcome, nil
	}

	pos, hasPos := p.positions[f.Symbol]

	switch {
	case f.Side == types.SideBuy && hasPos && pos.Quantity < 0:
		// buy to cover a short
		p.closeLocked(f, pos, outcome)
	case f.Side == types.SideSell && hasPos && pos.Quantity > 0:
		// sell to close a long
		p.closeLocked(f, pos, outcome)
	case !hasPos:
		p.openLocked(f, outcome)
	default:
		// same-direction fill for an open position: no netting is done at
		// this layer, the engine never requests it
		return nil, fmt.Errorf("unexpected %s fill for open position %s", f.Side, f.Symbol)
	}

	p.markApplied(f.ResultID)
	if outcome.Opened {
		p.countEntryLocked(f.Day)
	}
	p.lastUpdated = f.Timestamp
	return outcome, nil
}

func (p *Portfolio) openLocked(f Fill, outcome *TradeOutcome) {
	quantity := f.Quantity
	if f.Side == types.SideSell {
		quantity = -quantity
	}

	if f.Side == types.SideBuy {
		p.cash -= f.Quantity*f.Price + f.Commission
	} else {
		p.cash += f.Quantity*f.Price - f.Commission
	}

	p.positions[f.Symbol] = types.Position{
		Symbol:          f.Symbol,
		Quantity:        quantity,
		EntryPrice:      f.Price,
		CurrentPrice:    f.Price,
		StopLossPrice:   f.StopLoss,
		TakeProfitPrice: f.TakeProfit,
		OpenedAt:        f.Timestamp,
	}
	outcome.Opened = true
}

func (p *Portfolio) closeLocked(f Fill, pos types.Position, outcome *TradeOutcome) {
	// partial closes keep the remainder open at the original entry
	quantity := f.Quantity
	held := pos.Quantity
	if held < 0 {
		held = -held
	}
	if quantity > held {
		quantity = held
	}

	var realized float64
	if pos.Quantity > 0 {
		realized = (f.Price-pos.EntryPrice)*quantity - f.Commission
		p.cash += quantity*f.Price - f.Commission
	} else {
		realized = (pos.EntryPrice-f.Price)*quantity - f.Commission
		p.cash -= quantity*f.Price + f.Commission
	}

	p.realizedPnL += realized
	if realized < 0 && f.Day == p.tradingDay {
		// the breaker counter accumulates realized losses only; profits
		// never offset it
		p.lossToday += -realized
	}

	remaining := held - quantity
	if remaining > 1e-9 {
		if pos.Quantity > 0 {
			pos.Quantity = remaining
		} else {
			pos.Quantity = -remaining
		}
		pos.CurrentPrice = f.Price
		p.positions[f.Symbol] = pos
	} else {
		delete(p.positions, f.Symbol)
		outcome.Closed = true
	}

	outcome.RealizedPnL = realized
	outcome.EntryPrice = pos.EntryPrice
	outcome.CloseReason = f.CloseReason
}

func (p *Portfolio) markApplied(resultID string) {
	if resultID != "" {
		p.appliedResults[resultID] = true
	}
}

// countEntryLocked spends one unit of the daily trade budget. Only entry
// fills count; exits settle through the same path but reduce risk and never
// consume the budget.
func (p *Portfolio) countEntryLocked(day string) {
	// fills attributed to an already-closed day do not move today's counters
	if day == "" || day == p.tradingDay {
		p.tradesToday++
	}
}

// ResetDayIfNeeded resets the daily counters when the trading day in the
// portfolio's location has advanced. The reset is idempotent: calling it
// twice within the same day is a no-op.
func (p *Portfolio) ResetDayIfNeeded(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	day := now.In(p.loc).Format("2006-01-02")
	if day == p.tradingDay {
		return false
	}

	p.tradingDay = day
	p.tradesToday = 0
	p.lossToday = 0
	p.dayStartEquity = p.equityLocked()
	p.lastUpdated = now
	return true
}

// Snapshot returns a read-only copy of the portfolio state for the
// dashboard collaborator and reporting
func (p *Portfolio) Snapshot() types.PortfolioSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	positions := make(map[string]types.Position, len(p.positions))
	var unrealized float64
	for sym, pos := range p.positions {
		positions[sym] = pos
		unrealized += pos.UnrealizedPnL()
	}

	return types.PortfolioSnapshot{
		Cash:           p.cash,
		Equity:         p.equityLocked(),
		RealizedPnL:    p.realizedPnL,
		UnrealizedPnL:  unrealized,
		TradesToday:    p.tradesToday,
		LossToday:      p.lossToday,
		DayStartEquity: p.dayStartEquity,
		TradingDay:     p.tradingDay,
		Positions:      positions,
		LastUpdated:    p.lastUpdated,
	}
}

// PersistedState is the serializable form of the portfolio
type PersistedState struct {
	Version        string                    `json:"version"`
	Cash           float64                   `json:"cash"`
	Positions      map[string]types.Position `json:"positions"`
	RealizedPnL    float64                   `json:"realized_pnl"`
	TradesToday    int                       `json:"trades_today"`
	LossToday      float64                   `json:"loss_today"`
	DayStartEquity float64                   `json:"day_start_equity"`
	TradingDay     string                    `json:"trading_day"`
	AppliedResults []string                  `json:"applied_results"`
	LastUpdated    time.Time                 `json:"last_updated"`
}

// Export returns the serializable state of the portfolio
func (p *Portfolio) Export() *PersistedState {
	p.mu.RLock()
	defer p.mu.RUnlock()

	positions := make(map[string]types.Position, len(p.positions))
	for sym, pos := range p.positions {
		positions[sym] = pos
	}
	applied := make([]string, 0, len(p.appliedResults))
	for id := range p.appliedResults {
		applied = append(applied, id)
	}

	return &PersistedState{
		Version:        "1.0",
		Cash:           p.cash,
		Positions:      positions,
		RealizedPnL:    p.realizedPnL,
		TradesToday:    p.tradesToday,
		LossToday:      p.lossToday,
		DayStartEquity: p.dayStartEquity,
		TradingDay:     p.tradingDay,
		AppliedResults: applied,
		LastUpdated:    p.lastUpdated,
	}
}

// Restore replaces the portfolio state with a previously exported one
func (p *Portfolio) Restore(state *PersistedState) error {
	if state == nil {
		return fmt.Errorf("nil portfolio state")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.cash = state.Cash
	p.positions = make(map[string]types.Position, len(state.Positions))
	for sym, pos := range state.Positions {
		p.positions[sym] = pos
	}
	p.realizedPnL = state.RealizedPnL
	p.tradesToday = state.TradesToday
	p.lossToday = state.LossToday
	p.dayStartEquity = state.DayStartEquity
	p.tradingDay = state.TradingDay
	p.appliedResults = make(map[string]bool, len(state.AppliedResults))
	for _, id := range state.AppliedResults {
		p.appliedResults[id] = true
	}
	p.lastUpdated = state.LastUpdated
	return nil
}
