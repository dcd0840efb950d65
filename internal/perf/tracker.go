package perf

import (
	"sync"

	"github.com/equitron/equity-agent/pkg/types"
)

// DefaultWindowDays bounds the rolling performance window
const DefaultWindowDays = 30

// Tracker keeps a rolling window of daily performance samples. Samples are
// appended at the day-boundary rollover and feed the profile adapter; the
// window survives restarts through the state manager.
type Tracker struct {
	mu         sync.RWMutex
	windowDays int
	samples    []types.PerformanceSample
}

// NewTracker creates a tracker with the given window size in days
func NewTracker(windowDays int) *Tracker {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	return &Tracker{windowDays: windowDays}
}

// RecordDay appends a completed trading day to the window. A sample for an
// already recorded date replaces the previous one, so a restart on the same
// day does not double-count.
func (t *Tracker) RecordDay(sample types.PerformanceSample) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.samples {
		if t.samples[i].Date == sample.Date {
			t.samples[i] = sample
			return
		}
	}

	t.samples = append(t.samples, sample)
	if len(t.samples) > t.windowDays {
		t.samples = t.samples[len(t.samples)-t.windowDays:]
	}
}

// Samples returns a copy of the window, oldest first
func (t *Tracker) Samples() []types.PerformanceSample {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]types.PerformanceSample, len(t.samples))
	copy(out, t.samples)
	return out
}

// Len returns the number of recorded days
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.samples)
}

// Recent returns the newest n samples, oldest first
func (t *Tracker) Recent(n int) []types.PerformanceSample {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if n <= 0 || len(t.samples) == 0 {
		return nil
	}
	if n > len(t.samples) {
		n = len(t.samples)
	}
	out := make([]types.PerformanceSample, n)
	copy(out, t.samples[len(t.samples)-n:])
	return out
}

// Stats summarizes a slice of samples
type Stats struct {
	Days           int     `json:"days"`
	TotalReturn    float64 `json:"total_return"`     // compounded fractional return
	AvgDailyReturn float64 `json:"avg_daily_return"` // arithmetic mean of daily returns
	WinRate        float64 `json:"win_rate"`         // winning trades / total trades
	TradeCount     int     `json:"trade_count"`
	MaxDrawdown    float64 `json:"max_drawdown"` // worst peak-to-trough equity drop, fractional
}

// Summarize computes window statistics over the given samples
func Summarize(samples []types.PerformanceSample) Stats {
	stats := Stats{Days: len(samples)}
	if len(samples) == 0 {
		return stats
	}

	compounded := 1.0
	sumReturns := 0.0
	wins := 0

	peak := samples[0].StartingEquity
	maxDrawdown := 0.0

	for _, s := range samples {
		r := s.Return()
		compounded *= 1 + r
		sumReturns += r
		stats.TradeCount += s.TradeCount
		wins += s.WinCount

		if s.EndingEquity > peak {
			peak = s.EndingEquity
		}
		if peak > 0 {
			drawdown := (peak - s.EndingEquity) / peak
			if drawdown > maxDrawdown {
				maxDrawdown = drawdown
			}
		}
	}

	stats.TotalReturn = compounded - 1
	stats.AvgDailyReturn = sumReturns / float64(len(samples))
	if stats.TradeCount > 0 {
		stats.WinRate = float64(wins) / float64(stats.TradeCount)
	}
	stats.MaxDrawdown = maxDrawdown
	return stats
}

// WindowStats summarizes the whole window
func (t *Tracker) WindowStats() Stats {
	return Summarize(t.Samples())
}

// Export returns the samples for persistence
func (t *Tracker) Export() []types.PerformanceSample {
	return t.Samples()
}

// Restore replaces the window with persisted samples
func (t *Tracker) Restore(samples []types.PerformanceSample) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(samples) > t.windowDays {
		samples = samples[len(samples)-t.windowDays:]
	}
	t.samples = make([]types.PerformanceSample, len(samples))
	copy(t.samples, samples)
}
