package backtest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSignals(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "signals.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadSignalsCSV(t *testing.T) {
	path := writeSignals(t, `timestamp,symbol,score,risk_score,price
2025-06-02T10:00:00Z,aapl,0.5,0.2,50.25
2025-06-02 11:30:00,MSFT,-0.3,0.4,410
2025-06-03,NVDA,0.8,0.6,120
`)

	signals, err := LoadSignalsCSV(path, time.UTC)
	require.NoError(t, err)
	require.Len(t, signals, 3)

	assert.Equal(t, "AAPL", signals[0].Symbol) // symbols are upper-cased
	assert.Equal(t, 0.5, signals[0].Score)
	assert.Equal(t, 50.25, signals[0].Price)
	assert.Equal(t, time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC), signals[0].Timestamp.UTC())

	assert.Equal(t, "MSFT", signals[1].Symbol)
	assert.Equal(t, time.Date(2025, 6, 2, 11, 30, 0, 0, time.UTC), signals[1].Timestamp)

	assert.Equal(t, "NVDA", signals[2].Symbol)
}

func TestLoadSignalsCSVWithoutHeader(t *testing.T) {
	path := writeSignals(t, "2025-06-02T10:00:00Z,AAPL,0.5,0.2,50\n")

	signals, err := LoadSignalsCSV(path, time.UTC)
	require.NoError(t, err)
	assert.Len(t, signals, 1)
}

func TestLoadSignalsCSVValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"score out of range", "2025-06-02T10:00:00Z,AAPL,1.5,0.2,50\n"},
		{"risk score out of range", "2025-06-02T10:00:00Z,AAPL,0.5,2.0,50\n"},
		{"bad timestamp", "yesterday,AAPL,0.5,0.2,50\n"},
		{"missing columns", "2025-06-02T10:00:00Z,AAPL,0.5\n"},
		{"empty symbol", "2025-06-02T10:00:00Z, ,0.5,0.2,50\n"},
		{"empty file", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeSignals(t, tt.content)
			_, err := LoadSignalsCSV(path, time.UTC)
			assert.Error(t, err)
		})
	}
}

func TestLoadSignalsCSVMissingFile(t *testing.T) {
	_, err := LoadSignalsCSV(filepath.Join(t.TempDir(), "missing.csv"), time.UTC)
	assert.Error(t, err)
}
