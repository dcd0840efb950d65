package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/equitron/equity-agent/pkg/types"
)

// LoadSignalsCSV reads a research signal series from a CSV file with the
// columns timestamp,symbol,score,risk_score,price. A header row is detected
// and skipped. Timestamps are RFC 3339 or "2006-01-02 15:04:05"
// (interpreted in the given location) or a bare date.
func LoadSignalsCSV(path string, loc *time.Location) ([]types.ResearchSignal, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open signal file: %w", err)
	}
	defer f.Close()

	if loc == nil {
		loc = time.UTC
	}

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true

	var signals []types.ResearchSignal
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read signal file: %w", err)
		}
		line++

		if len(record) < 5 {
			return nil, fmt.Errorf("line %d: expected 5 columns, got %d", line, len(record))
		}

		if line == 1 && strings.EqualFold(strings.TrimSpace(record[0]), "timestamp") {
			continue
		}

		ts, err := parseTimestamp(strings.TrimSpace(record[0]), loc)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		score, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid score: %w", line, err)
		}
		riskScore, err := strconv.ParseFloat(strings.TrimSpace(record[3]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid risk_score: %w", line, err)
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(record[4]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid price: %w", line, err)
		}

		signal := types.ResearchSignal{
			Symbol:    strings.ToUpper(strings.TrimSpace(record[1])),
			Score:     score,
			RiskScore: riskScore,
			Price:     price,
			Timestamp: ts,
		}
		if signal.Symbol == "" {
			return nil, fmt.Errorf("line %d: empty symbol", line)
		}
		if signal.Score < -1 || signal.Score > 1 {
			return nil, fmt.Errorf("line %d: score %.4f out of [-1, 1]", line, signal.Score)
		}
		if signal.RiskScore < 0 || signal.RiskScore > 1 {
			return nil, fmt.Errorf("line %d: risk_score %.4f out of [0, 1]", line, signal.RiskScore)
		}

		signals = append(signals, signal)
	}

	if len(signals) == 0 {
		return nil, fmt.Errorf("signal file %s contains no signals", path)
	}
	return signals, nil
}

func parseTimestamp(s string, loc *time.Location) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if ts, err := time.ParseInLocation("2006-01-02 15:04:05", s, loc); err == nil {
		return ts, nil
	}
	if ts, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
