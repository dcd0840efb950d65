package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/equitron/equity-agent/internal/broker"
	"github.com/equitron/equity-agent/internal/portfolio"
	"github.com/equitron/equity-agent/internal/risk"
	"github.com/equitron/equity-agent/pkg/types"
)

// recordingObserver collects events for assertions
type recordingObserver struct {
	mu          sync.Mutex
	decisions   []Decision
	settlements []Settlement
	rollovers   []string
}

func (o *recordingObserver) OnDecision(d Decision) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.decisions = append(o.decisions, d)
}

func (o *recordingObserver) OnSettlement(s Settlement) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.settlements = append(o.settlements, s)
}

func (o *recordingObserver) OnDayRollover(day string, snap types.PortfolioSnapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rollovers = append(o.rollovers, day)
}

func (o *recordingObserver) settledCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.settlements)
}

func (o *recordingObserver) lastSettlement() Settlement {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.settlements[len(o.settlements)-1]
}

var evalDay = time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

func testSignal(symbol string, score, price float64) types.ResearchSignal {
	return types.ResearchSignal{
		Symbol:    symbol,
		Score:     score,
		RiskScore: 0.2,
		Price:     price,
		Timestamp: evalDay,
	}
}

func quietPaper() *broker.PaperBroker {
	cfg := broker.DefaultPaperConfig()
	cfg.SimulateSlippage = false
	cfg.SimulateCommissions = false
	return broker.NewPaperBroker(cfg)
}

func newTestEngine(t *testing.T, brk broker.Broker, obs Observer) (*Engine, *portfolio.Portfolio) {
	t.Helper()
	profiles, err := risk.NewProfileBook(nil, risk.ProfileModerate)
	require.NoError(t, err)
	pf := portfolio.New(10000, time.UTC, evalDay)
	eng := New(Config{
		Mode:         "virtual",
		OrderTimeout: 2 * time.Second,
	}, profiles, pf, brk, nil, obs)
	eng.Start()
	t.Cleanup(eng.Stop)
	return eng, pf
}

// waitSettled blocks until the observer has seen n settlements
func waitSettled(t *testing.T, obs *recordingObserver, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return obs.settledCount() >= n
	}, 3*time.Second, 10*time.Millisecond, "orders never settled")
}

func TestEvaluateOpensPosition(t *testing.T) {
	paper := quietPaper()
	paper.SetQuote("AAPL", 50)
	obs := &recordingObserver{}
	eng, pf := newTestEngine(t, paper, obs)

	decision := eng.Evaluate(context.Background(), testSignal("AAPL", 0.5, 50))
	assert.Equal(t, StatePendingOrder, decision.State)
	assert.Equal(t, types.SideBuy, decision.Side)
	assert.Equal(t, 10.0, decision.Quantity) // 5% cap of 10000 at $50
	assert.NotEmpty(t, decision.OrderID)

	waitSettled(t, obs, 1)
	require.True(t, pf.HasPosition("AAPL"))

	pos, _ := pf.Position("AAPL")
	// protective levels fixed at entry from the moderate profile (3% / 6%)
	assert.InDelta(t, 48.5, pos.StopLossPrice, 1e-9)
	assert.InDelta(t, 53.0, pos.TakeProfitPrice, 1e-9)

	settlement := obs.lastSettlement()
	assert.Equal(t, types.OrderStatusFilled, settlement.Status)
	assert.True(t, settlement.Outcome.Opened)
}

func TestEvaluateNoTradeBelowThreshold(t *testing.T) {
	paper := quietPaper()
	paper.SetQuote("AAPL", 50)
	eng, pf := newTestEngine(t, paper, &recordingObserver{})

	// moderate threshold is 0.1: the sizer yields zero, the gate says so
	decision := eng.Evaluate(context.Background(), testSignal("AAPL", 0.05, 50))
	assert.Equal(t, StateNoTrade, decision.State)
	assert.Equal(t, risk.ReasonZeroSize, decision.Reason)
	assert.False(t, pf.HasPosition("AAPL"))
	assert.Equal(t, 0, eng.PendingCount())
}

func TestEvaluateRejectsWhileOrderInFlight(t *testing.T) {
	slow := &slowBroker{delay: 300 * time.Millisecond, price: 50}
	obs := &recordingObserver{}
	eng, _ := newTestEngine(t, slow, obs)

	first := eng.Evaluate(context.Background(), testSignal("AAPL", 0.5, 50))
	require.Equal(t, StatePendingOrder, first.State)

	second := eng.Evaluate(context.Background(), testSignal("AAPL", 0.8, 50))
	assert.Equal(t, StateNoTrade, second.State)
	assert.Equal(t, risk.ReasonOrderInFlight, second.Reason)

	// other symbols are unaffected
	third := eng.Evaluate(context.Background(), testSignal("MSFT", 0.5, 50))
	assert.Equal(t, StatePendingOrder, third.State)

	waitSettled(t, obs, 2)
}

func TestEvaluateRejectsWhenPositionOpen(t *testing.T) {
	paper := quietPaper()
	paper.SetQuote("AAPL", 50)
	obs := &recordingObserver{}
	eng, pf := newTestEngine(t, paper, obs)

	eng.Evaluate(context.Background(), testSignal("AAPL", 0.5, 50))
	waitSettled(t, obs, 1)
	require.True(t, pf.HasPosition("AAPL"))

	decision := eng.Evaluate(context.Background(), testSignal("AAPL", 0.9, 50))
	assert.Equal(t, StateNoTrade, decision.State)
	assert.Equal(t, risk.ReasonPositionOpen, decision.Reason)
}

func TestOrderTimeoutBlocksSymbolUntilReconciled(t *testing.T) {
	hung := &slowBroker{delay: 10 * time.Second, price: 50}
	profiles, err := risk.NewProfileBook(nil, risk.ProfileModerate)
	require.NoError(t, err)
	pf := portfolio.New(10000, time.UTC, evalDay)
	obs := &recordingObserver{}
	eng := New(Config{OrderTimeout: 100 * time.Millisecond}, profiles, pf, hung, nil, obs)
	eng.Start()
	defer eng.Stop()

	// cancel unblocks the hung submit goroutine before Stop waits on it
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	decision := eng.Evaluate(ctx, testSignal("AAPL", 0.5, 50))
	require.Equal(t, StatePendingOrder, decision.State)

	waitSettled(t, obs, 1)
	assert.Equal(t, types.OrderStatusUnknown, obs.lastSettlement().Status)

	// the symbol is blocked until reconciled; the portfolio was untouched
	assert.Contains(t, eng.BlockedSymbols(), "AAPL")
	assert.False(t, pf.HasPosition("AAPL"))

	blocked := eng.Evaluate(ctx, testSignal("AAPL", 0.5, 50))
	assert.Equal(t, risk.ReasonReconciliationRequired, blocked.Reason)

	eng.Reconcile("AAPL")
	assert.Empty(t, eng.BlockedSymbols())
}

func TestBrokerRejectionLeavesPortfolioUntouched(t *testing.T) {
	paper := quietPaper() // no quote set: every order is rejected
	obs := &recordingObserver{}
	eng, pf := newTestEngine(t, paper, obs)

	eng.Evaluate(context.Background(), testSignal("AAPL", 0.5, 50))
	waitSettled(t, obs, 1)

	settlement := obs.lastSettlement()
	assert.Equal(t, types.OrderStatusRejected, settlement.Status)
	assert.False(t, pf.HasPosition("AAPL"))
	assert.InDelta(t, 10000, pf.Cash(), 1e-9)
	assert.Equal(t, 0, pf.Snapshot().TradesToday)

	// a rejection does not block the symbol
	assert.Empty(t, eng.BlockedSymbols())
}

func TestReviewPositionsClosesOnStopLoss(t *testing.T) {
	paper := quietPaper()
	paper.SetQuote("AAPL", 50)
	obs := &recordingObserver{}
	eng, pf := newTestEngine(t, paper, obs)

	eng.Evaluate(context.Background(), testSignal("AAPL", 0.5, 50))
	waitSettled(t, obs, 1)
	require.True(t, pf.HasPosition("AAPL"))

	// price drops through the 3% stop at 48.50
	paper.SetQuote("AAPL", 48)
	eng.ReviewPositions(context.Background(), map[string]float64{"AAPL": 48})
	waitSettled(t, obs, 2)

	assert.False(t, pf.HasPosition("AAPL"))
	settlement := obs.lastSettlement()
	assert.True(t, settlement.IsExit)
	require.NotNil(t, settlement.Outcome)
	assert.Equal(t, CloseReasonStopLoss, settlement.Outcome.CloseReason)
	assert.InDelta(t, -20, settlement.Outcome.RealizedPnL, 1e-9)
}

func TestReviewPositionsClosesOnTakeProfit(t *testing.T) {
	paper := quietPaper()
	paper.SetQuote("AAPL", 50)
	obs := &recordingObserver{}
	eng, pf := newTestEngine(t, paper, obs)

	eng.Evaluate(context.Background(), testSignal("AAPL", 0.5, 50))
	waitSettled(t, obs, 1)

	// take profit for moderate (6%) sits at 53
	paper.SetQuote("AAPL", 53.5)
	eng.ReviewPositions(context.Background(), map[string]float64{"AAPL": 53.5})
	waitSettled(t, obs, 2)

	assert.False(t, pf.HasPosition("AAPL"))
	assert.Equal(t, CloseReasonTakeProfit, obs.lastSettlement().Outcome.CloseReason)
}

func TestConfirmationRequiredInRealMode(t *testing.T) {
	paper := quietPaper()
	paper.SetQuote("AAPL", 50)
	profiles, err := risk.NewProfileBook(nil, risk.ProfileModerate)
	require.NoError(t, err)
	pf := portfolio.New(10000, time.UTC, evalDay)
	obs := &recordingObserver{}
	eng := New(Config{
		Mode:                "real",
		RequireConfirmation: true,
		OrderTimeout:        2 * time.Second,
	}, profiles, pf, paper, nil, obs)
	eng.Start()
	defer eng.Stop()

	held := eng.Evaluate(context.Background(), testSignal("AAPL", 0.5, 50))
	assert.Equal(t, risk.ReasonConfirmationPending, held.Reason)

	eng.GrantConfirmation()
	allowed := eng.Evaluate(context.Background(), testSignal("AAPL", 0.5, 50))
	assert.Equal(t, StatePendingOrder, allowed.State)
	waitSettled(t, obs, 1)

	// the grant is one-shot
	require.True(t, pf.HasPosition("AAPL"))
	again := eng.Evaluate(context.Background(), testSignal("MSFT", 0.5, 50))
	assert.Equal(t, risk.ReasonConfirmationPending, again.Reason)
}

func TestDuplicateResultDeliveryIsIgnored(t *testing.T) {
	paper := quietPaper()
	paper.SetQuote("AAPL", 50)
	obs := &recordingObserver{}
	eng, pf := newTestEngine(t, paper, obs)

	decision := eng.Evaluate(context.Background(), testSignal("AAPL", 0.5, 50))
	waitSettled(t, obs, 1)
	cashAfter := pf.Cash()

	// the broker re-delivers the result for the settled order
	eng.HandleResult(types.OrderResult{
		OrderID:        decision.OrderID,
		ResultID:       "replay",
		Status:         types.OrderStatusFilled,
		FilledQuantity: 10,
		FillPrice:      50,
	})
	time.Sleep(100 * time.Millisecond)

	assert.InDelta(t, cashAfter, pf.Cash(), 1e-9)
	assert.Equal(t, 1, pf.Snapshot().TradesToday)
	assert.Equal(t, 1, obs.settledCount())
}

func TestRolloverDayFiresObserverOnce(t *testing.T) {
	paper := quietPaper()
	obs := &recordingObserver{}
	eng, _ := newTestEngine(t, paper, obs)

	next := evalDay.Add(24 * time.Hour)
	assert.True(t, eng.RolloverDay(next))
	assert.False(t, eng.RolloverDay(next))

	require.Len(t, obs.rollovers, 1)
	assert.Equal(t, "2025-06-02", obs.rollovers[0])
}

// slowBroker delays before filling at a fixed price
type slowBroker struct {
	delay time.Duration
	price float64
}

func (s *slowBroker) Name() string { return "slow" }

func (s *slowBroker) SubmitOrder(ctx context.Context, order types.OrderRequest) (*types.OrderResult, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &types.OrderResult{
		OrderID:        order.ID,
		ResultID:       order.ID + "-result",
		Status:         types.OrderStatusFilled,
		FilledQuantity: order.Quantity,
		FillPrice:      s.price,
		Timestamp:      time.Now(),
	}, nil
}
