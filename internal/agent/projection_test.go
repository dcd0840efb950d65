package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/equitron/equity-agent/internal/risk"
	"github.com/equitron/equity-agent/pkg/types"
)

func histSig(day, hour int, score, price float64) types.ResearchSignal {
	return types.ResearchSignal{
		Symbol:    "AAPL",
		Score:     score,
		RiskScore: 0.2,
		Price:     price,
		Timestamp: time.Date(2025, 6, day, hour, 0, 0, 0, time.UTC),
	}
}

func TestSignalHistoryPrunesByAge(t *testing.T) {
	h := newSignalHistory(1)

	h.Add(histSig(2, 10, 0.5, 50))
	h.Add(histSig(2, 14, 0.5, 51))
	h.Add(histSig(4, 10, 0.5, 52)) // two days later, earlier entries expire

	recent := h.Recent()
	require.Len(t, recent, 1)
	assert.Equal(t, 52.0, recent[0].Price)
}

func TestSignalHistoryRecentIsACopy(t *testing.T) {
	h := newSignalHistory(5)
	h.Add(histSig(2, 10, 0.5, 50))

	recent := h.Recent()
	recent[0].Price = 999

	assert.Equal(t, 50.0, h.Recent()[0].Price)
}

func TestProjectSwitchApprovesOnEmptyHistory(t *testing.T) {
	ok, err := projectSwitch(nil, 10000, risk.ProfileModerate, risk.ProfileAggressive,
		risk.DefaultProfiles(), "UTC", false, false)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestProjectSwitchVetoesWorsePerformingCandidate(t *testing.T) {
	// a score only the aggressive profile trades on, followed by a drop
	// through its stop: the candidate loses money the moderate profile
	// never risked
	history := []types.ResearchSignal{
		histSig(2, 10, 0.07, 50),
		histSig(2, 14, 0, 44),
	}

	ok, err := projectSwitch(history, 10000, risk.ProfileModerate, risk.ProfileAggressive,
		risk.DefaultProfiles(), "UTC", false, false)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProjectSwitchApprovesBetterPerformingCandidate(t *testing.T) {
	// both profiles catch the move; the aggressive one sizes larger
	history := []types.ResearchSignal{
		histSig(2, 10, 0.5, 50),
		histSig(2, 14, 0, 60),
	}

	ok, err := projectSwitch(history, 10000, risk.ProfileModerate, risk.ProfileAggressive,
		risk.DefaultProfiles(), "UTC", false, false)
	require.NoError(t, err)
	assert.True(t, ok)
}
