package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/equitron/equity-agent/pkg/types"
)

// SignalSource delivers research signals to the agent. Next blocks until a
// signal is available, the source is exhausted (io.EOF) or the context is
// cancelled.
type SignalSource interface {
	Next(ctx context.Context) (types.ResearchSignal, error)
}

// JSONLSource reads newline-delimited JSON signals from a stream, one
// object per line. This is how a research process pipes signals into the
// agent.
type JSONLSource struct {
	scanner *bufio.Scanner
}

// NewJSONLSource creates a source reading from r
func NewJSONLSource(r io.Reader) *JSONLSource {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	return &JSONLSource{scanner: scanner}
}

// Next returns the next signal on the stream
func (s *JSONLSource) Next(ctx context.Context) (types.ResearchSignal, error) {
	for {
		if err := ctx.Err(); err != nil {
			return types.ResearchSignal{}, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return types.ResearchSignal{}, err
			}
			return types.ResearchSignal{}, io.EOF
		}

		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var signal types.ResearchSignal
		if err := json.Unmarshal([]byte(line), &signal); err != nil {
			return types.ResearchSignal{}, fmt.Errorf("malformed signal line: %w", err)
		}
		if signal.Symbol == "" {
			return types.ResearchSignal{}, fmt.Errorf("signal line missing symbol")
		}
		if signal.Timestamp.IsZero() {
			signal.Timestamp = time.Now()
		}
		return signal, nil
	}
}

// SliceSource replays a fixed slice of signals, for tests and dry runs
type SliceSource struct {
	signals []types.ResearchSignal
	next    int
}

// NewSliceSource creates a source over the given signals
func NewSliceSource(signals []types.ResearchSignal) *SliceSource {
	return &SliceSource{signals: signals}
}

// Next returns the next signal or io.EOF when exhausted
func (s *SliceSource) Next(ctx context.Context) (types.ResearchSignal, error) {
	if err := ctx.Err(); err != nil {
		return types.ResearchSignal{}, err
	}
	if s.next >= len(s.signals) {
		return types.ResearchSignal{}, io.EOF
	}
	signal := s.signals[s.next]
	s.next++
	return signal, nil
}
