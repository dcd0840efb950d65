package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/equitron/equity-agent/internal/portfolio"
	"github.com/equitron/equity-agent/pkg/types"
)

func buildState(t *testing.T) *AgentState {
	t.Helper()
	pf := portfolio.New(10000, time.UTC, time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC))
	_, err := pf.ApplyFill(portfolio.Fill{
		ResultID: "r1",
		OrderID:  "o1",
		Symbol:   "AAPL",
		Side:     types.SideBuy,
		Quantity: 10,
		Price:    50,
		Day:      "2025-06-02",
	})
	require.NoError(t, err)

	return &AgentState{
		Profile:   "moderate",
		Portfolio: pf.Export(),
		Performance: []types.PerformanceSample{
			{Date: "2025-06-01", StartingEquity: 9900, EndingEquity: 10000, TradeCount: 3, WinCount: 2},
		},
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	mgr, err := NewManager(t.TempDir(), "main")
	require.NoError(t, err)

	require.NoError(t, mgr.Save(buildState(t)))
	assert.False(t, mgr.LastSave().IsZero())

	loaded, err := mgr.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, "main", loaded.Strategy)
	assert.Equal(t, "moderate", loaded.Profile)
	assert.Len(t, loaded.Performance, 1)

	pf := portfolio.New(0, time.UTC, time.Now())
	require.NoError(t, pf.Restore(loaded.Portfolio))
	assert.InDelta(t, 9500, pf.Cash(), 1e-9)
	assert.True(t, pf.HasPosition("AAPL"))
}

func TestLoadMissingStateIsNil(t *testing.T) {
	mgr, err := NewManager(t.TempDir(), "main")
	require.NoError(t, err)

	loaded, err := mgr.Load()
	assert.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestSaveKeepsBackup(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(dir, "main")
	require.NoError(t, err)

	require.NoError(t, mgr.Save(buildState(t)))
	require.NoError(t, mgr.Save(buildState(t)))

	_, err = os.Stat(filepath.Join(dir, "main_state_backup.json"))
	assert.NoError(t, err)
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(dir, "main")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "main_state.json"), []byte("{broken"), 0644))
	_, err = mgr.Load()
	assert.Error(t, err)
}

func TestLoadRejectsStateWithoutPortfolio(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(dir, "main")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "main_state.json"), []byte(`{"version":"1.0"}`), 0644))
	_, err = mgr.Load()
	assert.Error(t, err)
}

func TestStrategiesDoNotCollide(t *testing.T) {
	dir := t.TempDir()
	a, err := NewManager(dir, "alpha")
	require.NoError(t, err)
	b, err := NewManager(dir, "beta")
	require.NoError(t, err)

	require.NoError(t, a.Save(buildState(t)))

	loaded, err := b.Load()
	assert.NoError(t, err)
	assert.Nil(t, loaded)
}
