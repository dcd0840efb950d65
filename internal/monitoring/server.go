package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/equitron/equity-agent/pkg/types"
)

// StatusSource provides the read-only views the status server exposes
type StatusSource interface {
	PortfolioSnapshot() types.PortfolioSnapshot
	ActiveProfile() string
	BlockedSymbols() []string
}

// Server is the agent's status HTTP server: health, portfolio snapshot and
// Prometheus metrics. It exposes no mutating endpoints.
type Server struct {
	source StatusSource
	health *HealthChecker
	srv    *http.Server
}

// NewServer creates the status server
func NewServer(addr string, source StatusSource, health *HealthChecker) *Server {
	s := &Server{source: source, health: health}

	router := mux.NewRouter()
	router.Handle("/healthz", health).Methods(http.MethodGet)
	router.HandleFunc("/portfolio", s.handlePortfolio).Methods(http.MethodGet)
	router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	router.Handle("/metrics", NewMetricsHandler()).Methods(http.MethodGet)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.source.PortfolioSnapshot())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.source.PortfolioSnapshot()
	writeJSON(w, map[string]interface{}{
		"profile":         s.source.ActiveProfile(),
		"equity":          snap.Equity,
		"cash":            snap.Cash,
		"trades_today":    snap.TradesToday,
		"loss_today":      snap.LossToday,
		"trading_day":     snap.TradingDay,
		"open_positions":  len(snap.Positions),
		"blocked_symbols": s.source.BlockedSymbols(),
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
