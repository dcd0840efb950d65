package agent

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/equitron/equity-agent/internal/broker"
	"github.com/equitron/equity-agent/internal/config"
	"github.com/equitron/equity-agent/internal/engine"
	agenterrors "github.com/equitron/equity-agent/internal/errors"
	"github.com/equitron/equity-agent/internal/logger"
	"github.com/equitron/equity-agent/internal/monitoring"
	"github.com/equitron/equity-agent/internal/notifications"
	"github.com/equitron/equity-agent/internal/perf"
	"github.com/equitron/equity-agent/internal/portfolio"
	"github.com/equitron/equity-agent/internal/risk"
	"github.com/equitron/equity-agent/internal/state"
	"github.com/equitron/equity-agent/pkg/types"
)

// Agent wires the decision engine to its collaborators: signal source,
// broker, portfolio, state persistence, performance adaptation,
// notifications and the status server. One Agent runs one strategy.
type Agent struct {
	cfg      *config.Config
	log      *logger.Logger
	pf       *portfolio.Portfolio
	profiles *risk.ProfileBook
	eng      *engine.Engine
	paper    *broker.PaperBroker
	guarded  *broker.GuardedBroker
	tracker  *perf.Tracker
	adapter  *perf.Adapter
	history  *signalHistory
	stateMgr *state.Manager
	notifier notifications.Notifier
	health   *monitoring.HealthChecker
	server   *monitoring.Server

	mu         sync.Mutex
	winsToday  int
	lastPrices map[string]float64
}

// New builds an agent from the configuration, restoring any persisted
// state for the strategy
func New(cfg *config.Config) (*Agent, error) {
	log, err := logger.NewLogger(cfg.Trading.Strategy)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	a := &Agent{
		cfg:        cfg,
		log:        log,
		health:     monitoring.NewHealthChecker(),
		lastPrices: make(map[string]float64),
	}

	a.stateMgr, err = state.NewManager(cfg.State.Dir, cfg.Trading.Strategy)
	if err != nil {
		return nil, err
	}
	saved, err := a.stateMgr.Load()
	if err != nil {
		return nil, err
	}

	loc := cfg.Location()
	a.pf = portfolio.New(cfg.Trading.InitialBalance, loc, time.Now())

	activeProfile := cfg.Trading.ActiveProfile
	if saved != nil {
		if err := a.pf.Restore(saved.Portfolio); err != nil {
			return nil, err
		}
		if saved.Profile != "" {
			activeProfile = saved.Profile
		}
		log.Info("restored state: equity $%.2f, profile %s, day %s",
			a.pf.Equity(), activeProfile, a.pf.TradingDay())
	}

	a.profiles, err = risk.NewProfileBook(cfg.Profiles, cfg.Trading.ActiveProfile)
	if err != nil {
		return nil, err
	}
	if activeProfile != a.profiles.ActiveName() {
		if err := a.profiles.Switch(activeProfile); err != nil {
			log.Warning("saved profile %q no longer configured, using %s", activeProfile, a.profiles.ActiveName())
		}
	}

	a.tracker = perf.NewTracker(cfg.Learning.WindowDays)
	if saved != nil {
		a.tracker.Restore(saved.Performance)
	}
	a.adapter = perf.NewAdapter(cfg.Learning.Adapter, a.tracker)
	a.history = newSignalHistory(cfg.Learning.Adapter.BacktestDays)

	a.paper = broker.NewPaperBroker(cfg.Virtual)
	if cfg.Trading.Mode == config.ModeReal {
		// no brokerage adapter is wired in this build; real mode keeps the
		// confirmation flow but executes against the paper broker
		log.Warning("real mode selected without a brokerage adapter, orders execute on the paper broker")
	}
	a.guarded = broker.NewGuardedBroker(a.paper, cfg.Guard)

	a.eng = engine.New(engine.Config{
		Mode:                cfg.Trading.Mode,
		RequireConfirmation: cfg.Trading.RequireConfirmation,
		AllowShortSelling:   cfg.Trading.AllowShortSelling,
		AllowFractional:     cfg.Trading.AllowFractional,
		OrderTimeout:        cfg.Trading.OrderTimeout.Std(),
	}, a.profiles, a.pf, a.guarded, log, a)

	a.notifier = a.buildNotifier()

	if cfg.Monitoring.Enabled {
		a.server = monitoring.NewServer(cfg.Monitoring.ListenAddr, a, a.health)
	}

	return a, nil
}

func (a *Agent) buildNotifier() notifications.Notifier {
	var notifiers notifications.Multi
	tg := a.cfg.Notifications.Telegram
	if tg.Enabled {
		token := envOrEmpty(tg.TokenEnv)
		chatID := envOrEmpty(tg.ChatIDEnv)
		if token != "" && chatID != "" {
			notifiers = append(notifiers, notifications.NewTelegramNotifier(token, chatID, a.cfg.Trading.Strategy))
		} else {
			a.log.Warning("telegram notifier enabled but %s or %s is unset", tg.TokenEnv, tg.ChatIDEnv)
		}
	}
	wh := a.cfg.Notifications.Webhook
	if wh.Enabled {
		notifiers = append(notifiers, notifications.NewWebhookNotifier(wh.URL, wh.Timeout.Std()))
	}
	if len(notifiers) == 0 {
		return nil
	}
	return notifiers
}

// Run consumes signals until the source is exhausted or the context is
// cancelled, then settles outstanding orders and persists state
func (a *Agent) Run(ctx context.Context, source SignalSource) error {
	a.eng.Start()
	defer a.shutdown()

	if a.server != nil {
		go func() {
			if err := a.server.Start(); err != nil {
				a.reportError("status server", err)
			}
		}()
	}

	a.notify(notifications.LevelInfo, fmt.Sprintf("Agent started: %s mode, profile %s, equity $%.2f",
		a.cfg.Trading.Mode, a.profiles.ActiveName(), a.pf.Equity()))

	reviewTicker := time.NewTicker(a.cfg.Trading.ReviewInterval.Std())
	defer reviewTicker.Stop()
	saveTicker := time.NewTicker(a.cfg.State.SaveInterval.Std())
	defer saveTicker.Stop()
	rolloverTicker := time.NewTicker(time.Minute)
	defer rolloverTicker.Stop()

	signals := make(chan types.ResearchSignal)
	readErr := make(chan error, 1)
	go func() {
		defer close(signals)
		for {
			signal, err := source.Next(ctx)
			if err != nil {
				if err != io.EOF && ctx.Err() == nil {
					readErr <- err
				}
				return
			}
			select {
			case signals <- signal:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-readErr:
			return fmt.Errorf("signal source failed: %w", err)

		case signal, ok := <-signals:
			if !ok {
				a.awaitSettlement(ctx)
				return nil
			}
			a.handleSignal(ctx, signal)

		case <-reviewTicker.C:
			a.eng.ReviewPositions(ctx, a.prices())

		case <-saveTicker.C:
			a.saveState()

		case <-rolloverTicker.C:
			a.eng.RolloverDay(time.Now())
			a.health.SetBlockedSymbols(len(a.eng.BlockedSymbols()))
			monitoring.UpdateBreakerState(a.guarded.State().String() != "closed")
			a.health.SetBrokerOK(a.guarded.State().String() == "closed")
		}
	}
}

func (a *Agent) handleSignal(ctx context.Context, signal types.ResearchSignal) {
	if signal.Price > 0 {
		a.paper.SetQuote(signal.Symbol, signal.Price)
		a.pf.MarkPrice(signal.Symbol, signal.Price)
		a.mu.Lock()
		a.lastPrices[signal.Symbol] = signal.Price
		a.mu.Unlock()
	}
	a.history.Add(signal)

	// protective exits take priority over new entries for the symbol
	a.eng.ReviewPositions(ctx, map[string]float64{signal.Symbol: signal.Price})

	a.eng.Evaluate(ctx, signal)
	a.health.MarkEvaluation()
}

func (a *Agent) prices() map[string]float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]float64, len(a.lastPrices))
	for sym, price := range a.lastPrices {
		out[sym] = price
	}
	return out
}

// awaitSettlement waits for in-flight orders to settle before shutdown,
// bounded by the order timeout
func (a *Agent) awaitSettlement(ctx context.Context) {
	deadline := time.Now().Add(a.cfg.Trading.OrderTimeout.Std() + time.Second)
	for time.Now().Before(deadline) {
		if a.eng.PendingCount() == 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (a *Agent) shutdown() {
	a.eng.Stop()
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		a.server.Shutdown(ctx) //nolint:errcheck // best effort on the way out
		cancel()
	}
	a.saveState()
	a.notify(notifications.LevelInfo, fmt.Sprintf("Agent stopped: equity $%.2f", a.pf.Equity()))
	a.log.Close()
}

func (a *Agent) saveState() {
	err := a.stateMgr.Save(&state.AgentState{
		Profile:     a.profiles.ActiveName(),
		Portfolio:   a.pf.Export(),
		Performance: a.tracker.Export(),
	})
	if err != nil {
		a.reportError("state save", err)
		monitoring.RecordError("state_save")
		return
	}
	a.health.MarkSave(a.stateMgr.LastSave())
}

// reportError logs a failure together with its category and suggested
// recovery action when the error is categorized; stop-class errors are also
// pushed to the notifier
func (a *Agent) reportError(operation string, err error) {
	var aerr *agenterrors.AgentError
	if stderrors.As(err, &aerr) {
		action := aerr.GetRecoveryAction()
		a.log.LogError(fmt.Sprintf("%s [%s/%s]", operation, aerr.Category, action), err)
		if action == agenterrors.RecoveryActionStop {
			a.notify(notifications.LevelError, fmt.Sprintf("Fatal %s failure: %v", aerr.Category, err))
		}
		return
	}
	a.log.LogError(operation, err)
}

func (a *Agent) notify(level, message string) {
	if a.notifier == nil {
		return
	}
	if err := a.notifier.SendAlert(level, message); err != nil {
		a.log.LogError("notification", err)
		monitoring.RecordError("notification")
	}
}

// OnDecision implements engine.Observer
func (a *Agent) OnDecision(d engine.Decision) {
	monitoring.RecordDecision(string(d.State))
	if d.Reason != "" {
		monitoring.RecordRejection(string(d.Reason))
	}
	if d.Reason == risk.ReasonDailyLossLimit {
		a.notify(notifications.LevelWarning, notifications.BreakerTripped(d.Symbol))
	}
}

// OnSettlement implements engine.Observer
func (a *Agent) OnSettlement(s engine.Settlement) {
	switch s.Status {
	case types.OrderStatusFilled, types.OrderStatusPartiallyFilled:
		monitoring.RecordFill(s.Symbol, s.Side.String())
		if s.Outcome != nil && s.Outcome.Closed {
			if s.Outcome.RealizedPnL > 0 {
				a.mu.Lock()
				a.winsToday++
				a.mu.Unlock()
			}
			a.notify(levelForPnL(s.Outcome.RealizedPnL),
				notifications.TradeClosed(s.Symbol, s.Outcome.CloseReason, s.Outcome.RealizedPnL))
		}
	case types.OrderStatusUnknown:
		monitoring.RecordError("order_timeout")
		a.health.RecordError(fmt.Sprintf("order %s for %s timed out", s.OrderID, s.Symbol))
		a.notify(notifications.LevelError,
			fmt.Sprintf("Order %s for %s timed out, symbol blocked pending reconciliation", s.OrderID, s.Symbol))
	case types.OrderStatusRejected, types.OrderStatusError:
		monitoring.RecordError("order_" + string(s.Status))
	}

	snap := a.pf.Snapshot()
	monitoring.UpdatePortfolio(snap.Equity, snap.RealizedPnL, snap.LossToday, snap.TradesToday, len(snap.Positions))
	a.health.SetBlockedSymbols(len(a.eng.BlockedSymbols()))
}

// OnDayRollover implements engine.Observer: record the completed day and
// let the adapter move the risk profile between cycles
func (a *Agent) OnDayRollover(day string, snap types.PortfolioSnapshot) {
	a.mu.Lock()
	wins := a.winsToday
	a.winsToday = 0
	a.mu.Unlock()

	a.tracker.RecordDay(types.PerformanceSample{
		Date:           day,
		StartingEquity: snap.DayStartEquity,
		EndingEquity:   snap.Equity,
		TradeCount:     snap.TradesToday,
		WinCount:       wins,
	})

	a.log.LogDailySummary(day, snap.DayStartEquity, snap.Equity, snap.LossToday, snap.TradesToday)
	a.notify(notifications.LevelInfo,
		notifications.DailySummary(day, snap.DayStartEquity, snap.Equity, snap.LossToday, snap.TradesToday))

	rec := a.adapter.Evaluate(a.profiles.ActiveName())

	// promotions must survive a shadow replay of the recent signals before
	// going live; demotions are defensive and apply unconditionally
	if rec.Switch && a.cfg.Learning.Adapter.EnableBacktesting && rec.To == risk.Promote(rec.From) {
		approved, err := projectSwitch(a.history.Recent(), snap.Equity, rec.From, rec.To,
			a.cfg.Profiles, a.cfg.Trading.Timezone, a.cfg.Trading.AllowFractional, a.cfg.Trading.AllowShortSelling)
		if err != nil {
			a.reportError("switch projection", err)
			approved = false
		}
		if !approved {
			a.log.Info("profile switch %s -> %s held back, shadow replay favors %s", rec.From, rec.To, rec.From)
			rec.Switch = false
		}
	}

	if rec.Switch {
		if err := a.profiles.Switch(rec.To); err != nil {
			a.reportError("profile adaptation", err)
		} else {
			a.log.Info("risk profile switched %s -> %s (%s)", rec.From, rec.To, rec.Reason)
			a.notify(notifications.LevelInfo, notifications.ProfileSwitched(rec.From, rec.To, rec.Reason))
		}
	}
	monitoring.UpdateActiveProfile(a.profiles.ActiveName(), a.profiles.Names())

	a.saveState()
}

// PortfolioSnapshot implements monitoring.StatusSource
func (a *Agent) PortfolioSnapshot() types.PortfolioSnapshot {
	return a.pf.Snapshot()
}

// ActiveProfile implements monitoring.StatusSource
func (a *Agent) ActiveProfile() string {
	return a.profiles.ActiveName()
}

// BlockedSymbols implements monitoring.StatusSource
func (a *Agent) BlockedSymbols() []string {
	return a.eng.BlockedSymbols()
}

// Engine exposes the decision engine, for confirmation and reconciliation
// commands
func (a *Agent) Engine() *engine.Engine {
	return a.eng
}

func levelForPnL(pnl float64) string {
	if pnl >= 0 {
		return notifications.LevelSuccess
	}
	return notifications.LevelWarning
}

func envOrEmpty(key string) string {
	if key == "" {
		return ""
	}
	return os.Getenv(key)
}
