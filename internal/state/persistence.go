package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	agenterrors "github.com/equitron/equity-agent/internal/errors"
	"github.com/equitron/equity-agent/internal/portfolio"
	"github.com/equitron/equity-agent/pkg/types"
)

// AgentState is the complete recoverable state of a trading strategy:
// the portfolio plus the performance window feeding the adapter.
type AgentState struct {
	Version     string                    `json:"version"`
	Strategy    string                    `json:"strategy"`
	Profile     string                    `json:"profile"`
	Portfolio   *portfolio.PersistedState `json:"portfolio"`
	Performance []types.PerformanceSample `json:"performance"`
	LastUpdated time.Time                 `json:"last_updated"`
}

// Manager saves and loads agent state as JSON. Writes go through a
// temporary file and an atomic rename so a crash mid-save never leaves a
// corrupt state file; the previous state is kept as a backup.
type Manager struct {
	stateDir string
	strategy string
	mu       sync.Mutex
	lastSave time.Time
}

// NewManager creates a state manager writing under stateDir
func NewManager(stateDir, strategy string) (*Manager, error) {
	if stateDir == "" {
		stateDir = "state"
	}
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &Manager{stateDir: stateDir, strategy: strategy}, nil
}

func (m *Manager) stateFile() string {
	return filepath.Join(m.stateDir, fmt.Sprintf("%s_state.json", m.strategy))
}

func (m *Manager) backupFile() string {
	return filepath.Join(m.stateDir, fmt.Sprintf("%s_state_backup.json", m.strategy))
}

// Save persists the agent state to disk
func (m *Manager) Save(state *AgentState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	state.Version = "1.0"
	state.Strategy = m.strategy
	state.LastUpdated = time.Now()

	stateFile := m.stateFile()

	// keep the previous state as a backup
	if _, err := os.Stat(stateFile); err == nil {
		if err := copyFile(stateFile, m.backupFile()); err != nil {
			fmt.Printf("⚠️ Failed to back up state file: %v\n", err)
		}
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return agenterrors.NewStateError("state_manager", "marshal", err)
	}

	tempFile := stateFile + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return agenterrors.NewStateError("state_manager", "write_temp", err)
	}

	if err := os.Rename(tempFile, stateFile); err != nil {
		return agenterrors.NewStateError("state_manager", "rename", err)
	}

	m.lastSave = time.Now()
	return nil
}

// Load reads the agent state from disk. A missing file is not an error:
// the agent starts with a clean state.
func (m *Manager) Load() (*AgentState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stateFile := m.stateFile()

	if _, err := os.Stat(stateFile); os.IsNotExist(err) {
		return nil, nil
	}

	data, err := os.ReadFile(stateFile)
	if err != nil {
		return nil, agenterrors.NewStateError("state_manager", "read", err)
	}

	var state AgentState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, agenterrors.NewStateError("state_manager", "parse", err)
	}

	if state.Portfolio == nil {
		return nil, fmt.Errorf("state file %s has no portfolio section", stateFile)
	}

	return &state, nil
}

// LastSave returns the time of the last successful save
func (m *Manager) LastSave() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSave
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}
