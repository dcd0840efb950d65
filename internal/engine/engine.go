package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/equitron/equity-agent/internal/broker"
	agenterrors "github.com/equitron/equity-agent/internal/errors"
	"github.com/equitron/equity-agent/internal/logger"
	"github.com/equitron/equity-agent/internal/portfolio"
	"github.com/equitron/equity-agent/internal/risk"
	"github.com/equitron/equity-agent/pkg/types"
)

// DecisionState is the terminal state of an evaluation cycle
type DecisionState string

const (
	StateNoTrade      DecisionState = "NO_TRADE"
	StatePendingOrder DecisionState = "PENDING_ORDER"
	StateSettled      DecisionState = "SETTLED"
)

// Decision records the outcome of one evaluation cycle for observability
type Decision struct {
	Symbol    string          `json:"symbol"`
	State     DecisionState   `json:"state"`
	Reason    risk.Reason     `json:"reason,omitempty"`
	OrderID   string          `json:"order_id,omitempty"`
	Side      types.OrderSide `json:"side"`
	Quantity  float64         `json:"quantity"`
	Profile   string          `json:"profile"`
	Timestamp time.Time       `json:"timestamp"`
}

// Settlement records an applied (or failed) order result
type Settlement struct {
	Symbol    string                  `json:"symbol"`
	OrderID   string                  `json:"order_id"`
	Side      types.OrderSide         `json:"side"`
	Status    types.OrderStatus       `json:"status"`
	Result    types.OrderResult       `json:"result"`
	Outcome   *portfolio.TradeOutcome `json:"outcome,omitempty"`
	IsExit    bool                    `json:"is_exit"`
	Profile   string                  `json:"profile"`
	Timestamp time.Time               `json:"timestamp"`
}

// Observer receives decision, settlement and day-rollover events.
// Implementations must not block; they run on the engine's goroutines.
type Observer interface {
	OnDecision(d Decision)
	OnSettlement(s Settlement)
	// OnDayRollover fires once per trading-day boundary with the completed
	// day and the portfolio snapshot taken before the counters reset
	OnDayRollover(day string, snap types.PortfolioSnapshot)
}

// NopObserver discards all events
type NopObserver struct{}

func (NopObserver) OnDecision(Decision)                           {}
func (NopObserver) OnSettlement(Settlement)                       {}
func (NopObserver) OnDayRollover(string, types.PortfolioSnapshot) {}

// Close reasons carried on exit orders
const (
	CloseReasonStopLoss   = "STOP_LOSS"
	CloseReasonTakeProfit = "TAKE_PROFIT"
	CloseReasonManual     = "MANUAL"
)

// Config holds the engine's trading-mode settings
type Config struct {
	Mode                string        // "virtual" or "real"
	RequireConfirmation bool          // real mode only: hold entries until confirmed
	AllowShortSelling   bool
	AllowFractional     bool
	OrderTimeout        time.Duration // how long to await an order result
}

// pendingOrder tracks one in-flight order and the context it was created
// with: the profile snapshot, the evaluation day for counter attribution
// and the reference price.
type pendingOrder struct {
	order       types.OrderRequest
	profile     risk.RiskProfile
	day         string
	refPrice    float64
	isExit      bool
	closeReason string
	timer       *time.Timer
}

// Engine orchestrates sizing and gating per incoming signal and settles
// broker results. Evaluation is read-only against the portfolio and may run
// concurrently across symbols; all mutations happen on the single settle
// goroutine.
type Engine struct {
	config   Config
	profiles *risk.ProfileBook
	sizer    *risk.PositionSizer
	gate     *risk.RiskGate
	pf       *portfolio.Portfolio
	broker   broker.Broker
	log      *logger.Logger
	observer Observer

	mu              sync.Mutex
	pending         map[string]*pendingOrder // by order id
	pendingBySymbol map[string]string
	blocked         map[string]bool // symbols awaiting reconciliation
	confirmed       bool            // one-shot confirmation grant (real mode)

	results chan types.OrderResult
	done    chan struct{}
	wg      sync.WaitGroup
	started bool
}

// New creates a decision engine
func New(config Config, profiles *risk.ProfileBook, pf *portfolio.Portfolio, brk broker.Broker, log *logger.Logger, observer Observer) *Engine {
	if config.OrderTimeout <= 0 {
		config.OrderTimeout = 30 * time.Second
	}
	if observer == nil {
		observer = NopObserver{}
	}
	return &Engine{
		config:          config,
		profiles:        profiles,
		sizer:           risk.NewPositionSizer(config.AllowFractional),
		gate:            risk.NewRiskGate(config.AllowShortSelling),
		pf:              pf,
		broker:          brk,
		log:             log,
		observer:        observer,
		pending:         make(map[string]*pendingOrder),
		pendingBySymbol: make(map[string]string),
		blocked:         make(map[string]bool),
		results:         make(chan types.OrderResult, 64),
		done:            make(chan struct{}),
	}
}

// Start launches the settle goroutine. Settlements are serialized on it so
// two concurrent fills can never corrupt cash or position invariants.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for {
			select {
			case result := <-e.results:
				e.settle(result)
			case <-e.done:
				return
			}
		}
	}()
}

// Stop shuts down the settle goroutine. In-flight orders are not cancelled
// (cancellation belongs to the broker adapter); unsettled symbols will need
// reconciliation on restart.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	for _, po := range e.pending {
		if po.timer != nil {
			po.timer.Stop()
		}
	}
	e.mu.Unlock()

	close(e.done)
	e.wg.Wait()
}

// Portfolio returns the engine's portfolio for read-only snapshots
func (e *Engine) Portfolio() *portfolio.Portfolio {
	return e.pf
}

// Profiles returns the engine's profile book
func (e *Engine) Profiles() *risk.ProfileBook {
	return e.profiles
}

// GrantConfirmation allows the next real-mode entry to proceed. The grant
// is consumed by the first order submitted.
func (e *Engine) GrantConfirmation() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.confirmed = true
}

// RolloverDay advances the trading day if the boundary has passed,
// reporting the completed day to the observer before the counters reset
func (e *Engine) RolloverDay(now time.Time) bool {
	day := e.pf.TradingDay()
	snap := e.pf.Snapshot()
	if !e.pf.ResetDayIfNeeded(now) {
		return false
	}
	e.observer.OnDayRollover(day, snap)
	return true
}

// Reconcile clears the reconciliation block for a symbol after its order
// fate has been verified externally
func (e *Engine) Reconcile(symbol string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.blocked, symbol)
}

// PendingCount returns the number of in-flight orders
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// BlockedSymbols returns the symbols awaiting reconciliation
func (e *Engine) BlockedSymbols() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	symbols := make([]string, 0, len(e.blocked))
	for sym := range e.blocked {
		symbols = append(symbols, sym)
	}
	return symbols
}

// Evaluate runs one decision cycle for a research signal: size the
// position under the active profile, pass the proposed order through the
// risk gate, and submit it when admitted. The returned decision is
// NO_TRADE or PENDING_ORDER; settlement is reported to the observer.
func (e *Engine) Evaluate(ctx context.Context, signal types.ResearchSignal) Decision {
	now := signal.Timestamp
	if now.IsZero() {
		now = time.Now()
	}
	e.RolloverDay(now)

	profile := e.profiles.Active()
	decision := Decision{
		Symbol:    signal.Symbol,
		Profile:   profile.Name,
		Timestamp: now,
	}

	reject := func(reason risk.Reason) Decision {
		decision.State = StateNoTrade
		decision.Reason = reason
		if e.log != nil {
			e.log.LogDecision(signal.Symbol, string(StateNoTrade), string(reason), 0)
		}
		e.observer.OnDecision(decision)
		return decision
	}

	e.mu.Lock()
	if e.blocked[signal.Symbol] {
		e.mu.Unlock()
		return reject(risk.ReasonReconciliationRequired)
	}
	if _, inFlight := e.pendingBySymbol[signal.Symbol]; inFlight {
		e.mu.Unlock()
		return reject(risk.ReasonOrderInFlight)
	}
	e.mu.Unlock()

	// one position per symbol: no stacking entries while a position is open
	if e.pf.HasPosition(signal.Symbol) {
		return reject(risk.ReasonPositionOpen)
	}

	side := types.SideBuy
	if signal.Score < 0 {
		side = types.SideSell
	}

	quantity := e.sizer.Size(signal, e.pf.Equity(), profile)

	order := types.OrderRequest{
		ID:        uuid.NewString(),
		Symbol:    signal.Symbol,
		Side:      side,
		Quantity:  quantity,
		Type:      types.OrderTypeMarket,
		Timestamp: now,
	}

	verdict := e.gate.Admit(order, signal.Price, e.pf.ViewFor(signal.Symbol), profile)
	if !verdict.Accepted {
		return reject(verdict.Reason)
	}

	if e.config.Mode == "real" && e.config.RequireConfirmation && !e.consumeConfirmation() {
		return reject(risk.ReasonConfirmationPending)
	}

	po := &pendingOrder{
		order:    order,
		profile:  profile,
		day:      e.pf.TradingDay(),
		refPrice: signal.Price,
	}
	if !e.register(po) {
		// lost the race with another evaluation for the same symbol
		return reject(risk.ReasonOrderInFlight)
	}

	decision.State = StatePendingOrder
	decision.OrderID = order.ID
	decision.Side = side
	decision.Quantity = quantity
	if e.log != nil {
		e.log.LogDecision(signal.Symbol, string(StatePendingOrder), "", quantity)
	}
	e.observer.OnDecision(decision)

	e.submit(ctx, order)
	return decision
}

// ReviewPositions marks open positions to the given prices and emits exit
// orders for any stop-loss or take-profit level that has been hit. Exits
// bypass the entry gate: reducing risk is always admitted.
func (e *Engine) ReviewPositions(ctx context.Context, prices map[string]float64) {
	for symbol, price := range prices {
		e.pf.MarkPrice(symbol, price)
	}

	for symbol, pos := range e.pf.Positions() {
		price, ok := prices[symbol]
		if !ok || price <= 0 {
			continue
		}
		reason := exitReason(pos, price)
		if reason == "" {
			continue
		}
		if err := e.ClosePosition(ctx, symbol, price, reason); err != nil && e.log != nil {
			e.log.LogError(fmt.Sprintf("exit %s", symbol), err)
		}
	}
}

// ClosePosition submits an exit order for the full open position
func (e *Engine) ClosePosition(ctx context.Context, symbol string, refPrice float64, reason string) error {
	pos, ok := e.pf.Position(symbol)
	if !ok {
		return fmt.Errorf("no open position for %s", symbol)
	}

	e.mu.Lock()
	if e.blocked[symbol] {
		e.mu.Unlock()
		return agenterrors.NewReconciliationError("engine", "close_position",
			fmt.Sprintf("%s is blocked pending reconciliation", symbol))
	}
	if _, inFlight := e.pendingBySymbol[symbol]; inFlight {
		e.mu.Unlock()
		return fmt.Errorf("order already in flight for %s", symbol)
	}
	e.mu.Unlock()

	side := types.SideSell
	quantity := pos.Quantity
	if quantity < 0 {
		side = types.SideBuy
		quantity = -quantity
	}

	order := types.OrderRequest{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Side:      side,
		Quantity:  quantity,
		Type:      types.OrderTypeMarket,
		Timestamp: time.Now(),
	}

	po := &pendingOrder{
		order:       order,
		profile:     e.profiles.Active(),
		day:         e.pf.TradingDay(),
		refPrice:    refPrice,
		isExit:      true,
		closeReason: reason,
	}
	if !e.register(po) {
		return fmt.Errorf("order already in flight for %s", symbol)
	}

	e.submit(ctx, order)
	return nil
}

// HandleResult feeds an externally delivered order result into the settle
// path (broker callback entry point)
func (e *Engine) HandleResult(result types.OrderResult) {
	select {
	case e.results <- result:
	case <-e.done:
	}
}

// register records an in-flight order and arms its result timeout.
// Returns false if the symbol already has an order in flight.
func (e *Engine) register(po *pendingOrder) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	symbol := po.order.Symbol
	if _, exists := e.pendingBySymbol[symbol]; exists {
		return false
	}

	e.pending[po.order.ID] = po
	e.pendingBySymbol[symbol] = po.order.ID

	orderID := po.order.ID
	po.timer = time.AfterFunc(e.config.OrderTimeout, func() {
		e.HandleResult(types.OrderResult{
			OrderID:   orderID,
			ResultID:  uuid.NewString(),
			Status:    types.OrderStatusUnknown,
			Reason:    "order result timeout",
			Timestamp: time.Now(),
		})
	})
	return true
}

// submit issues the broker call on its own goroutine so no lock over
// shared state is held across the only blocking operation in the pipeline
func (e *Engine) submit(ctx context.Context, order types.OrderRequest) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		result, err := e.broker.SubmitOrder(ctx, order)
		if err != nil {
			berr := agenterrors.NewBrokerError("engine", "submit_order", err).
				WithContext("symbol", order.Symbol).
				WithContext("order_id", order.ID)
			if e.log != nil {
				e.log.LogError("order submission", berr)
			}
			result = &types.OrderResult{
				OrderID:   order.ID,
				ResultID:  uuid.NewString(),
				Status:    types.OrderStatusError,
				Reason:    berr.Error(),
				Timestamp: time.Now(),
			}
		}
		if result.OrderID == "" {
			result.OrderID = order.ID
		}
		e.HandleResult(*result)
	}()
}

// settle applies one order result. It runs only on the settle goroutine.
func (e *Engine) settle(result types.OrderResult) {
	e.mu.Lock()
	po, ok := e.pending[result.OrderID]
	if !ok {
		// duplicate delivery for an already settled order
		e.mu.Unlock()
		return
	}
	if po.timer != nil {
		po.timer.Stop()
	}
	delete(e.pending, result.OrderID)
	delete(e.pendingBySymbol, po.order.Symbol)

	if result.Status == types.OrderStatusUnknown {
		// fate unknown: block the symbol until reconciled
		e.blocked[po.order.Symbol] = true
	}
	e.mu.Unlock()

	settlement := Settlement{
		Symbol:    po.order.Symbol,
		OrderID:   result.OrderID,
		Side:      po.order.Side,
		Status:    result.Status,
		Result:    result,
		IsExit:    po.isExit,
		Profile:   po.profile.Name,
		Timestamp: time.Now(),
	}

	switch result.Status {
	case types.OrderStatusFilled, types.OrderStatusPartiallyFilled:
		fill := portfolio.Fill{
			ResultID:    result.ResultID,
			OrderID:     result.OrderID,
			Symbol:      po.order.Symbol,
			Side:        po.order.Side,
			Quantity:    result.FilledQuantity,
			Price:       result.FillPrice,
			Commission:  result.Commission,
			Day:         po.day,
			CloseReason: po.closeReason,
			Timestamp:   result.Timestamp,
		}
		if !po.isExit {
			// stop and take-profit levels are fixed at entry from the
			// profile snapshot the decision was made with
			fill.StopLoss = risk.StopLossPrice(result.FillPrice, po.order.Side, po.profile)
			fill.TakeProfit = risk.TakeProfitPrice(result.FillPrice, po.order.Side, po.profile)
		}

		outcome, err := e.pf.ApplyFill(fill)
		if err != nil {
			if e.log != nil {
				e.log.LogError("settlement", err)
			}
			break
		}
		settlement.Outcome = outcome

		if e.log != nil && outcome != nil && !outcome.Duplicate {
			e.log.LogFill(po.order.Symbol, po.order.Side.String(), result.OrderID,
				result.FilledQuantity, result.FillPrice, result.Commission)
			if outcome.Closed {
				e.log.LogPositionClose(po.order.Symbol, po.closeReason,
					outcome.EntryPrice, result.FillPrice, outcome.RealizedPnL)
			}
		}

	case types.OrderStatusRejected, types.OrderStatusError:
		// broker-side failure leaves the portfolio untouched; no retries
		// at this layer
		if e.log != nil {
			e.log.Warning("order %s for %s not executed: %s (%s)",
				result.OrderID, po.order.Symbol, result.Status, result.Reason)
		}

	case types.OrderStatusUnknown:
		if e.log != nil {
			e.log.Error("order %s for %s timed out awaiting result; %s blocked until reconciled",
				result.OrderID, po.order.Symbol, po.order.Symbol)
		}
	}

	e.observer.OnSettlement(settlement)
}

// consumeConfirmation takes the one-shot confirmation grant
func (e *Engine) consumeConfirmation() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.confirmed {
		return false
	}
	e.confirmed = false
	return true
}

// exitReason reports which protective level the price has crossed, if any
func exitReason(pos types.Position, price float64) string {
	if pos.Quantity > 0 {
		if pos.StopLossPrice > 0 && price <= pos.StopLossPrice {
			return CloseReasonStopLoss
		}
		if pos.TakeProfitPrice > 0 && price >= pos.TakeProfitPrice {
			return CloseReasonTakeProfit
		}
		return ""
	}
	if pos.StopLossPrice > 0 && price >= pos.StopLossPrice {
		return CloseReasonStopLoss
	}
	if pos.TakeProfitPrice > 0 && price <= pos.TakeProfitPrice {
		return CloseReasonTakeProfit
	}
	return ""
}
