package backtest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/equitron/equity-agent/internal/broker"
	"github.com/equitron/equity-agent/internal/perf"
	"github.com/equitron/equity-agent/internal/portfolio"
	"github.com/equitron/equity-agent/internal/risk"
	"github.com/equitron/equity-agent/pkg/types"
)

// Config holds backtest parameters
type Config struct {
	InitialBalance  float64
	Profile         string
	Profiles        map[string]risk.RiskProfile
	AllowFractional bool
	AllowShort      bool
	Timezone        string
	Paper           broker.PaperConfig
	// Adapt runs the profile adapter at each day boundary, mirroring the
	// live agent's end-of-day adaptation
	Adapt   bool
	Adapter perf.AdapterConfig
}

// ClosedTrade is one completed round trip in the replay
type ClosedTrade struct {
	Symbol      string    `json:"symbol"`
	Side        string    `json:"side"`
	Quantity    float64   `json:"quantity"`
	EntryPrice  float64   `json:"entry_price"`
	ExitPrice   float64   `json:"exit_price"`
	PnL         float64   `json:"pnl"`
	CloseReason string    `json:"close_reason"`
	Profile     string    `json:"profile"`
	ClosedAt    time.Time `json:"closed_at"`
}

// EquityPoint is one point on the replay equity curve
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// Result aggregates the outcome of a replay
type Result struct {
	StartBalance   float64                   `json:"start_balance"`
	EndBalance     float64                   `json:"end_balance"`
	TotalReturn    float64                   `json:"total_return"` // fractional
	MaxDrawdown    float64                   `json:"max_drawdown"` // fractional
	TotalTrades    int                       `json:"total_trades"`
	WinningTrades  int                       `json:"winning_trades"`
	Evaluations    int                       `json:"evaluations"`
	OrdersAdmitted int                       `json:"orders_admitted"`
	Rejections     map[risk.Reason]int       `json:"rejections"`
	Days           int                       `json:"days"`
	FinalProfile   string                    `json:"final_profile"`
	Samples        []types.PerformanceSample `json:"samples"`
	Trades         []ClosedTrade             `json:"trades"`
	EquityCurve    []EquityPoint             `json:"equity_curve"`
}

// WinRate reports winning trades over closed trades
func (r *Result) WinRate() float64 {
	if len(r.Trades) == 0 {
		return 0
	}
	return float64(r.WinningTrades) / float64(len(r.Trades))
}

// Engine replays a signal series through the same sizing, gating and
// settlement primitives the live agent uses, against the paper broker.
// Execution is synchronous so a seeded run is fully deterministic.
type Engine struct {
	config   Config
	profiles *risk.ProfileBook
	sizer    *risk.PositionSizer
	gate     *risk.RiskGate
	paper    *broker.PaperBroker
	tracker  *perf.Tracker
	adapter  *perf.Adapter
}

// NewEngine creates a backtest engine
func NewEngine(config Config) (*Engine, error) {
	if config.InitialBalance <= 0 {
		return nil, fmt.Errorf("initial balance must be positive")
	}
	profiles, err := risk.NewProfileBook(config.Profiles, config.Profile)
	if err != nil {
		return nil, err
	}

	tracker := perf.NewTracker(0)

	e := &Engine{
		config:   config,
		profiles: profiles,
		sizer:    risk.NewPositionSizer(config.AllowFractional),
		gate:     risk.NewRiskGate(config.AllowShort),
		paper:    broker.NewPaperBroker(config.Paper),
		tracker:  tracker,
	}
	if config.Adapt {
		e.adapter = perf.NewAdapter(config.Adapter, tracker)
	}
	return e, nil
}

// Run replays the signals in timestamp order and returns the aggregate
// result. Open positions are closed at their last seen price at the end of
// the replay so the final balance is fully realized.
func (e *Engine) Run(signals []types.ResearchSignal) (*Result, error) {
	if len(signals) == 0 {
		return nil, fmt.Errorf("no signals to replay")
	}

	loc := time.UTC
	if e.config.Timezone != "" {
		var err error
		if loc, err = time.LoadLocation(e.config.Timezone); err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", e.config.Timezone, err)
		}
	}

	ordered := make([]types.ResearchSignal, len(signals))
	copy(ordered, signals)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	pf := portfolio.New(e.config.InitialBalance, loc, ordered[0].Timestamp)

	result := &Result{
		StartBalance: e.config.InitialBalance,
		Rejections:   make(map[risk.Reason]int),
	}

	winsToday := 0
	lastPrice := make(map[string]float64)
	lastTime := ordered[0].Timestamp

	for _, signal := range ordered {
		lastTime = signal.Timestamp

		// day rollover: record the completed day before counters reset
		prevDay := pf.TradingDay()
		snap := pf.Snapshot()
		if pf.ResetDayIfNeeded(signal.Timestamp) {
			e.recordDay(result, prevDay, snap, winsToday)
			winsToday = 0
		}

		if signal.Price > 0 {
			lastPrice[signal.Symbol] = signal.Price
			e.paper.SetQuote(signal.Symbol, signal.Price)
			pf.MarkPrice(signal.Symbol, signal.Price)
		}

		// protective exits before the new signal is considered
		winsToday += e.reviewExits(pf, result, signal.Symbol, signal.Price, signal.Timestamp)

		result.Evaluations++
		profile := e.profiles.Active()

		if pf.HasPosition(signal.Symbol) {
			result.Rejections[risk.ReasonPositionOpen]++
			continue
		}

		side := types.SideBuy
		if signal.Score < 0 {
			side = types.SideSell
		}
		quantity := e.sizer.Size(signal, pf.Equity(), profile)

		order := types.OrderRequest{
			ID:        uuid.NewString(),
			Symbol:    signal.Symbol,
			Side:      side,
			Quantity:  quantity,
			Type:      types.OrderTypeMarket,
			Timestamp: signal.Timestamp,
		}

		verdict := e.gate.Admit(order, signal.Price, pf.ViewFor(signal.Symbol), profile)
		if !verdict.Accepted {
			result.Rejections[verdict.Reason]++
			continue
		}
		result.OrdersAdmitted++

		wins, err := e.execute(pf, result, order, profile, "", signal.Timestamp)
		if err != nil {
			return nil, err
		}
		winsToday += wins

		result.EquityCurve = append(result.EquityCurve, EquityPoint{
			Timestamp: signal.Timestamp,
			Equity:    pf.Equity(),
		})
	}

	// liquidate remaining positions at their last seen price
	for symbol, pos := range pf.Positions() {
		price, ok := lastPrice[symbol]
		if !ok || price <= 0 {
			continue
		}
		side := types.SideSell
		qty := pos.Quantity
		if qty < 0 {
			side = types.SideBuy
			qty = -qty
		}
		order := types.OrderRequest{
			ID:        uuid.NewString(),
			Symbol:    symbol,
			Side:      side,
			Quantity:  qty,
			Type:      types.OrderTypeMarket,
			Timestamp: lastTime,
		}
		wins, err := e.execute(pf, result, order, e.profiles.Active(), "END_OF_REPLAY", lastTime)
		if err != nil {
			return nil, err
		}
		winsToday += wins
	}

	// record the final (possibly partial) day
	e.recordDay(result, pf.TradingDay(), pf.Snapshot(), winsToday)

	result.EndBalance = pf.Equity()
	result.TotalReturn = (result.EndBalance - result.StartBalance) / result.StartBalance
	result.Days = len(result.Samples)
	result.FinalProfile = e.profiles.ActiveName()

	stats := perf.Summarize(result.Samples)
	result.MaxDrawdown = stats.MaxDrawdown

	return result, nil
}

// execute fills the order on the paper broker and settles it immediately
func (e *Engine) execute(pf *portfolio.Portfolio, result *Result, order types.OrderRequest, profile risk.RiskProfile, closeReason string, ts time.Time) (wins int, err error) {
	res, err := e.paper.SubmitOrder(context.Background(), order)
	if err != nil {
		return 0, err
	}
	if res.Status != types.OrderStatusFilled && res.Status != types.OrderStatusPartiallyFilled {
		return 0, nil
	}

	fill := portfolio.Fill{
		ResultID:    res.ResultID,
		OrderID:     order.ID,
		Symbol:      order.Symbol,
		Side:        order.Side,
		Quantity:    res.FilledQuantity,
		Price:       res.FillPrice,
		Commission:  res.Commission,
		Day:         pf.TradingDay(),
		CloseReason: closeReason,
		Timestamp:   ts,
	}
	if closeReason == "" {
		fill.StopLoss = risk.StopLossPrice(res.FillPrice, order.Side, profile)
		fill.TakeProfit = risk.TakeProfitPrice(res.FillPrice, order.Side, profile)
	}

	outcome, err := pf.ApplyFill(fill)
	if err != nil {
		return 0, err
	}

	result.TotalTrades++
	if outcome.Closed {
		trade := ClosedTrade{
			Symbol:      order.Symbol,
			Side:        order.Side.String(),
			Quantity:    res.FilledQuantity,
			EntryPrice:  outcome.EntryPrice,
			ExitPrice:   res.FillPrice,
			PnL:         outcome.RealizedPnL,
			CloseReason: outcome.CloseReason,
			Profile:     profile.Name,
			ClosedAt:    ts,
		}
		result.Trades = append(result.Trades, trade)
		if outcome.RealizedPnL > 0 {
			result.WinningTrades++
			wins = 1
		}
	}
	return wins, nil
}

// reviewExits closes the position if the signal's price crosses a
// protective level
func (e *Engine) reviewExits(pf *portfolio.Portfolio, result *Result, symbol string, price float64, ts time.Time) int {
	if price <= 0 {
		return 0
	}
	pos, ok := pf.Position(symbol)
	if !ok {
		return 0
	}

	var reason string
	if pos.Quantity > 0 {
		if pos.StopLossPrice > 0 && price <= pos.StopLossPrice {
			reason = "STOP_LOSS"
		} else if pos.TakeProfitPrice > 0 && price >= pos.TakeProfitPrice {
			reason = "TAKE_PROFIT"
		}
	} else {
		if pos.StopLossPrice > 0 && price >= pos.StopLossPrice {
			reason = "STOP_LOSS"
		} else if pos.TakeProfitPrice > 0 && price <= pos.TakeProfitPrice {
			reason = "TAKE_PROFIT"
		}
	}
	if reason == "" {
		return 0
	}

	side := types.SideSell
	qty := pos.Quantity
	if qty < 0 {
		side = types.SideBuy
		qty = -qty
	}
	order := types.OrderRequest{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Side:      side,
		Quantity:  qty,
		Type:      types.OrderTypeMarket,
		Timestamp: ts,
	}
	wins, err := e.execute(pf, result, order, e.profiles.Active(), reason, ts)
	if err != nil {
		return 0
	}
	return wins
}

// recordDay appends a performance sample for a completed day and runs the
// adapter, mirroring the live end-of-day flow
func (e *Engine) recordDay(result *Result, day string, snap types.PortfolioSnapshot, wins int) {
	sample := types.PerformanceSample{
		Date:           day,
		StartingEquity: snap.DayStartEquity,
		EndingEquity:   snap.Equity,
		TradeCount:     snap.TradesToday,
		WinCount:       wins,
	}
	result.Samples = append(result.Samples, sample)
	e.tracker.RecordDay(sample)

	if e.adapter != nil {
		e.adapter.Apply(e.profiles) //nolint:errcheck // built-in ladder names always resolve
	}
}
