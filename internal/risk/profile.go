package risk

import (
	"fmt"
	"sync"
)

// RiskProfile is an immutable per-strategy parameter set. Profiles are
// loaded once at startup; the active profile only changes between
// evaluation cycles, never mid-flight.
type RiskProfile struct {
	Name               string  `json:"name" yaml:"name"`
	RiskPercentage     float64 `json:"risk_percentage" yaml:"risk_percentage"`             // % of equity risked per trade
	MaxPositionSizePct float64 `json:"max_position_size_pct" yaml:"max_position_size_pct"` // % of equity per position
	MaxDailyTrades     int     `json:"max_daily_trades" yaml:"max_daily_trades"`
	MaxDailyLossPct    float64 `json:"max_daily_loss_pct" yaml:"max_daily_loss_pct"`       // circuit breaker threshold
	StopLossPct        float64 `json:"stop_loss_pct" yaml:"stop_loss_pct"`
	TakeProfitPct      float64 `json:"take_profit_pct" yaml:"take_profit_pct"`
	MinScoreThreshold  float64 `json:"min_score_threshold" yaml:"min_score_threshold"`
	MaxRiskScore       float64 `json:"max_risk_score" yaml:"max_risk_score"`
}

// Validate checks that the profile parameters are internally consistent
func (p RiskProfile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile name cannot be empty")
	}
	if p.RiskPercentage <= 0 || p.RiskPercentage > 100 {
		return fmt.Errorf("profile %s: risk_percentage %.2f out of range (0, 100]", p.Name, p.RiskPercentage)
	}
	if p.MaxPositionSizePct <= 0 || p.MaxPositionSizePct > 100 {
		return fmt.Errorf("profile %s: max_position_size_pct %.2f out of range (0, 100]", p.Name, p.MaxPositionSizePct)
	}
	if p.MaxDailyTrades <= 0 {
		return fmt.Errorf("profile %s: max_daily_trades must be positive", p.Name)
	}
	if p.MaxDailyLossPct <= 0 || p.MaxDailyLossPct > 100 {
		return fmt.Errorf("profile %s: max_daily_loss_pct %.2f out of range (0, 100]", p.Name, p.MaxDailyLossPct)
	}
	if p.StopLossPct < 0 {
		return fmt.Errorf("profile %s: stop_loss_pct cannot be negative", p.Name)
	}
	if p.TakeProfitPct < 0 {
		return fmt.Errorf("profile %s: take_profit_pct cannot be negative", p.Name)
	}
	if p.MinScoreThreshold < 0 || p.MinScoreThreshold > 1 {
		return fmt.Errorf("profile %s: min_score_threshold %.2f out of range [0, 1]", p.Name, p.MinScoreThreshold)
	}
	if p.MaxRiskScore < 0 || p.MaxRiskScore > 1 {
		return fmt.Errorf("profile %s: max_risk_score %.2f out of range [0, 1]", p.Name, p.MaxRiskScore)
	}
	return nil
}

// Built-in profile names, ordered from least to most aggressive
const (
	ProfileConservative = "conservative"
	ProfileModerate     = "moderate"
	ProfileAggressive   = "aggressive"
)

// profileRanks orders the built-in profiles for promotion/demotion
var profileRanks = []string{ProfileConservative, ProfileModerate, ProfileAggressive}

// DefaultProfiles returns the built-in conservative/moderate/aggressive set
func DefaultProfiles() map[string]RiskProfile {
	return map[string]RiskProfile{
		ProfileConservative: {
			Name:               ProfileConservative,
			RiskPercentage:     1.0,
			MaxPositionSizePct: 3.0,
			MaxDailyTrades:     5,
			MaxDailyLossPct:    3.0,
			StopLossPct:        2.0,
			TakeProfitPct:      4.0,
			MinScoreThreshold:  0.3,
			MaxRiskScore:       0.5,
		},
		ProfileModerate: {
			Name:               ProfileModerate,
			RiskPercentage:     2.0,
			MaxPositionSizePct: 5.0,
			MaxDailyTrades:     10,
			MaxDailyLossPct:    5.0,
			StopLossPct:        3.0,
			TakeProfitPct:      6.0,
			MinScoreThreshold:  0.1,
			MaxRiskScore:       0.8,
		},
		ProfileAggressive: {
			Name:               ProfileAggressive,
			RiskPercentage:     3.0,
			MaxPositionSizePct: 8.0,
			MaxDailyTrades:     15,
			MaxDailyLossPct:    7.0,
			StopLossPct:        5.0,
			TakeProfitPct:      10.0,
			MinScoreThreshold:  0.05,
			MaxRiskScore:       0.9,
		},
	}
}

// ProfileBook holds the named risk profiles and the single active one.
// Switching is atomic; callers take a value snapshot via Active so in-flight
// decisions keep the profile they were created with.
type ProfileBook struct {
	mu       sync.RWMutex
	profiles map[string]RiskProfile
	active   string
}

// NewProfileBook creates a profile book from the given profiles
func NewProfileBook(profiles map[string]RiskProfile, active string) (*ProfileBook, error) {
	if len(profiles) == 0 {
		profiles = DefaultProfiles()
	}
	for name, p := range profiles {
		if p.Name == "" {
			p.Name = name
			profiles[name] = p
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}
	if active == "" {
		active = ProfileModerate
	}
	if _, ok := profiles[active]; !ok {
		return nil, fmt.Errorf("active profile %q not found", active)
	}
	return &ProfileBook{profiles: profiles, active: active}, nil
}

// Active returns a snapshot of the currently active profile
func (b *ProfileBook) Active() RiskProfile {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.profiles[b.active]
}

// ActiveName returns the name of the active profile
func (b *ProfileBook) ActiveName() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.active
}

// Get returns the named profile
func (b *ProfileBook) Get(name string) (RiskProfile, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.profiles[name]
	return p, ok
}

// Names returns all profile names
func (b *ProfileBook) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.profiles))
	for name := range b.profiles {
		names = append(names, name)
	}
	return names
}

// Switch atomically changes the active profile. Only new evaluation cycles
// observe the change.
func (b *ProfileBook) Switch(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.profiles[name]; !ok {
		return fmt.Errorf("unknown profile %q", name)
	}
	b.active = name
	return nil
}

// Demote returns the next less aggressive built-in profile, or the current
// name if already at the bottom of the ladder or not on it
func Demote(name string) string {
	for i, n := range profileRanks {
		if n == name && i > 0 {
			return profileRanks[i-1]
		}
	}
	return name
}

// Promote returns the next more aggressive built-in profile, or the current
// name if already at the top of the ladder or not on it
func Promote(name string) string {
	for i, n := range profileRanks {
		if n == name && i < len(profileRanks)-1 {
			return profileRanks[i+1]
		}
	}
	return name
}
