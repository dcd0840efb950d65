package monitoring

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

var startTime = time.Now()

// HealthChecker tracks the agent's liveness signals
type HealthChecker struct {
	mu             sync.RWMutex
	lastEvaluation time.Time
	lastSave       time.Time
	brokerOK       bool
	blocked        int
	errors         []string
}

// HealthStatus is the /healthz response body
type HealthStatus struct {
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
	LastEvaluation time.Time `json:"last_evaluation"`
	LastStateSave  time.Time `json:"last_state_save"`
	BrokerOK       bool      `json:"broker_ok"`
	BlockedSymbols int       `json:"blocked_symbols"`
	Uptime         string    `json:"uptime"`
	Errors         []string  `json:"errors,omitempty"`
}

// NewHealthChecker creates a health checker
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		brokerOK: true,
		errors:   make([]string, 0),
	}
}

// MarkEvaluation records that an evaluation cycle ran
func (h *HealthChecker) MarkEvaluation() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastEvaluation = time.Now()
}

// MarkSave records a successful state save
func (h *HealthChecker) MarkSave(at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastSave = at
}

// SetBrokerOK records whether the broker breaker is closed
func (h *HealthChecker) SetBrokerOK(ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.brokerOK = ok
}

// SetBlockedSymbols records how many symbols await reconciliation
func (h *HealthChecker) SetBlockedSymbols(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.blocked = n
}

// RecordError appends an error to the health report, keeping the last few
func (h *HealthChecker) RecordError(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, msg)
	if len(h.errors) > 10 {
		h.errors = h.errors[len(h.errors)-10:]
	}
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	code := http.StatusOK
	if !h.brokerOK || h.blocked > 0 {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	if len(h.errors) > 0 {
		status = "unhealthy"
		code = http.StatusInternalServerError
	}

	health := HealthStatus{
		Status:         status,
		Timestamp:      time.Now(),
		LastEvaluation: h.lastEvaluation,
		LastStateSave:  h.lastSave,
		BrokerOK:       h.brokerOK,
		BlockedSymbols: h.blocked,
		Uptime:         time.Since(startTime).String(),
		Errors:         h.errors,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(health)
}
