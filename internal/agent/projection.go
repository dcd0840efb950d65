package agent

import (
	"sync"
	"time"

	"github.com/equitron/equity-agent/internal/backtest"
	"github.com/equitron/equity-agent/internal/broker"
	"github.com/equitron/equity-agent/internal/risk"
	"github.com/equitron/equity-agent/pkg/types"
)

// signalHistory keeps the recent research signals so a recommended profile
// switch can be projected with a shadow replay before going live
type signalHistory struct {
	mu      sync.Mutex
	maxAge  time.Duration
	signals []types.ResearchSignal
}

func newSignalHistory(days int) *signalHistory {
	if days <= 0 {
		days = 5
	}
	return &signalHistory{maxAge: time.Duration(days) * 24 * time.Hour}
}

// Add appends a signal and drops everything older than the retention window
func (h *signalHistory) Add(signal types.ResearchSignal) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.signals = append(h.signals, signal)
	cutoff := signal.Timestamp.Add(-h.maxAge)
	trim := 0
	for trim < len(h.signals) && h.signals[trim].Timestamp.Before(cutoff) {
		trim++
	}
	h.signals = h.signals[trim:]
}

// Recent returns a copy of the retained signals
func (h *signalHistory) Recent() []types.ResearchSignal {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]types.ResearchSignal, len(h.signals))
	copy(out, h.signals)
	return out
}

// projectSwitch replays the signal history under the current and the
// candidate profile against a shadow portfolio and approves the switch only
// when the candidate does not end behind the current profile. An empty
// history approves: there is nothing to project against.
func projectSwitch(history []types.ResearchSignal, balance float64, current, candidate string, profiles map[string]risk.RiskProfile, timezone string, allowFractional, allowShort bool) (bool, error) {
	if len(history) == 0 {
		return true, nil
	}

	replay := func(profile string) (float64, error) {
		eng, err := backtest.NewEngine(backtest.Config{
			InitialBalance:  balance,
			Profile:         profile,
			Profiles:        cloneProfiles(profiles),
			AllowFractional: allowFractional,
			AllowShort:      allowShort,
			Timezone:        timezone,
			Paper:           broker.PaperConfig{Seed: 1},
		})
		if err != nil {
			return 0, err
		}
		result, err := eng.Run(history)
		if err != nil {
			return 0, err
		}
		return result.EndBalance, nil
	}

	currentEnd, err := replay(current)
	if err != nil {
		return false, err
	}
	candidateEnd, err := replay(candidate)
	if err != nil {
		return false, err
	}
	return candidateEnd >= currentEnd, nil
}

// cloneProfiles copies the profile map so the shadow replay never touches
// the live book's backing storage
func cloneProfiles(src map[string]risk.RiskProfile) map[string]risk.RiskProfile {
	out := make(map[string]risk.RiskProfile, len(src))
	for name, p := range src {
		out[name] = p
	}
	return out
}
