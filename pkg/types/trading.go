package types

import "time"

// Duration wraps time.Duration so config values can be written as "30s"
// or "1m" in yaml
type Duration time.Duration

// Std returns the wrapped time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML accepts a duration string or integer nanoseconds
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err == nil {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	}
	var ns int64
	if err := unmarshal(&ns); err != nil {
		return err
	}
	*d = Duration(ns)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// ResearchSignal is a directional conviction score for a symbol produced by
// the research collaborator. Score sign gives direction, magnitude gives
// confidence; RiskScore estimates how risky the setup is.
type ResearchSignal struct {
	Symbol    string    `json:"symbol"`
	Score     float64   `json:"score"`      // -1.0 .. 1.0
	RiskScore float64   `json:"risk_score"` // 0.0 .. 1.0
	Price     float64   `json:"price"`      // reference price at evaluation time
	Timestamp time.Time `json:"timestamp"`
}

// OrderSide represents the direction of an order
type OrderSide int

const (
	SideBuy OrderSide = iota
	SideSell
)

func (s OrderSide) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// OrderType represents the execution type of an order
type OrderType int

const (
	OrderTypeMarket OrderType = iota
	OrderTypeLimit
)

func (t OrderType) String() string {
	switch t {
	case OrderTypeMarket:
		return "MARKET"
	case OrderTypeLimit:
		return "LIMIT"
	default:
		return "UNKNOWN"
	}
}

// OrderStatus reports the terminal state of an order as seen by the broker
type OrderStatus string

const (
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusError           OrderStatus = "ERROR"
	// OrderStatusUnknown marks an order whose fate could not be confirmed
	// before the result timeout. The symbol requires reconciliation before
	// it may trade again.
	OrderStatusUnknown OrderStatus = "UNKNOWN"
)

// OrderRequest is submitted to the broker collaborator
type OrderRequest struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Side       OrderSide `json:"side"`
	Quantity   float64   `json:"quantity"`
	Type       OrderType `json:"type"`
	LimitPrice float64   `json:"limit_price,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// OrderResult is delivered by the broker collaborator, correlated by order id.
// A result may report a partial or zero fill; settlement must be idempotent
// per result id to tolerate duplicate delivery.
type OrderResult struct {
	OrderID        string      `json:"order_id"`
	ResultID       string      `json:"result_id"`
	FilledQuantity float64     `json:"filled_quantity"`
	FillPrice      float64     `json:"fill_price"`
	Commission     float64     `json:"commission"`
	Status         OrderStatus `json:"status"`
	Reason         string      `json:"reason,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
}

// Position is an open holding owned by the portfolio. At most one position
// per symbol exists at a time; Quantity is negative for short positions.
type Position struct {
	Symbol          string    `json:"symbol"`
	Quantity        float64   `json:"quantity"`
	EntryPrice      float64   `json:"entry_price"`
	CurrentPrice    float64   `json:"current_price"`
	StopLossPrice   float64   `json:"stop_loss_price"`
	TakeProfitPrice float64   `json:"take_profit_price"`
	OpenedAt        time.Time `json:"opened_at"`
}

// MarketValue returns the current market value of the position
func (p *Position) MarketValue() float64 {
	price := p.CurrentPrice
	if price == 0 {
		price = p.EntryPrice
	}
	return p.Quantity * price
}

// UnrealizedPnL returns the unrealized profit or loss of the position
func (p *Position) UnrealizedPnL() float64 {
	if p.CurrentPrice == 0 {
		return 0
	}
	return (p.CurrentPrice - p.EntryPrice) * p.Quantity
}

// PerformanceSample is one day of trading outcome, appended to the
// performance tracker's rolling window
type PerformanceSample struct {
	Date           string  `json:"date"` // YYYY-MM-DD in the trading timezone
	StartingEquity float64 `json:"starting_equity"`
	EndingEquity   float64 `json:"ending_equity"`
	TradeCount     int     `json:"trade_count"`
	WinCount       int     `json:"win_count"`
}

// Return reports the day's fractional return
func (s PerformanceSample) Return() float64 {
	if s.StartingEquity == 0 {
		return 0
	}
	return (s.EndingEquity - s.StartingEquity) / s.StartingEquity
}

// PortfolioSnapshot is a read-only view of portfolio state for the
// dashboard collaborator and for reporting
type PortfolioSnapshot struct {
	Cash           float64             `json:"cash"`
	Equity         float64             `json:"equity"`
	RealizedPnL    float64             `json:"realized_pnl"`
	UnrealizedPnL  float64             `json:"unrealized_pnl"`
	TradesToday    int                 `json:"trades_today"`
	LossToday      float64             `json:"loss_today"`
	DayStartEquity float64             `json:"day_start_equity"`
	TradingDay     string              `json:"trading_day"`
	Positions      map[string]Position `json:"positions"`
	LastUpdated    time.Time           `json:"last_updated"`
}
