package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/equitron/equity-agent/internal/broker"
	agenterrors "github.com/equitron/equity-agent/internal/errors"
	"github.com/equitron/equity-agent/internal/perf"
	"github.com/equitron/equity-agent/internal/risk"
	"github.com/equitron/equity-agent/pkg/types"
)

// Trading modes
const (
	ModeVirtual = "virtual"
	ModeReal    = "real"
)

// TradingConfig holds the core trading settings
type TradingConfig struct {
	Strategy            string         `yaml:"strategy"`
	Mode                string         `yaml:"mode"`
	InitialBalance      float64        `yaml:"initial_balance"`
	ActiveProfile       string         `yaml:"active_profile"`
	RequireConfirmation bool           `yaml:"require_confirmation"`
	AllowFractional     bool           `yaml:"allow_fractional_shares"`
	AllowShortSelling   bool           `yaml:"allow_short_selling"`
	OrderTimeout        types.Duration `yaml:"order_timeout"`
	Timezone            string         `yaml:"timezone"`
	// ReviewInterval is how often open positions are checked against their
	// protective levels
	ReviewInterval types.Duration `yaml:"review_interval"`
}

// LearningConfig tunes the performance tracker and profile adapter
type LearningConfig struct {
	WindowDays int                `yaml:"window_days"`
	Adapter    perf.AdapterConfig `yaml:"adapter"`
}

// TelegramConfig configures the Telegram notifier. The token and chat id
// come from the environment, never from the config file.
type TelegramConfig struct {
	Enabled   bool   `yaml:"enabled"`
	TokenEnv  string `yaml:"token_env"`
	ChatIDEnv string `yaml:"chat_id_env"`
}

// WebhookConfig configures the JSON webhook notifier
type WebhookConfig struct {
	Enabled bool           `yaml:"enabled"`
	URL     string         `yaml:"url"`
	Timeout types.Duration `yaml:"timeout"`
}

// NotificationsConfig groups the notifiers
type NotificationsConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Webhook  WebhookConfig  `yaml:"webhook"`
}

// MonitoringConfig configures the status HTTP server and metrics
type MonitoringConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// StateConfig configures state persistence
type StateConfig struct {
	Dir          string         `yaml:"dir"`
	SaveInterval types.Duration `yaml:"save_interval"`
}

// Config is the complete agent configuration
type Config struct {
	Trading       TradingConfig               `yaml:"trading"`
	Profiles      map[string]risk.RiskProfile `yaml:"profiles"`
	Virtual       broker.PaperConfig          `yaml:"virtual"`
	Guard         broker.GuardConfig          `yaml:"guard"`
	Learning      LearningConfig              `yaml:"learning"`
	Notifications NotificationsConfig         `yaml:"notifications"`
	Monitoring    MonitoringConfig            `yaml:"monitoring"`
	State         StateConfig                 `yaml:"state"`
}

// Load reads and validates the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, agenterrors.WrapError(err, agenterrors.ErrorCategoryConfiguration, "config", "parse")
	}

	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a ready-to-run virtual-trading configuration
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	if c.Trading.Strategy == "" {
		c.Trading.Strategy = "main"
	}
	if c.Trading.Mode == "" {
		c.Trading.Mode = ModeVirtual
	}
	if c.Trading.InitialBalance == 0 {
		c.Trading.InitialBalance = 10000
	}
	if c.Trading.ActiveProfile == "" {
		c.Trading.ActiveProfile = risk.ProfileModerate
	}
	if c.Trading.OrderTimeout == 0 {
		c.Trading.OrderTimeout = types.Duration(30 * time.Second)
	}
	if c.Trading.Timezone == "" {
		c.Trading.Timezone = "America/New_York"
	}
	if c.Trading.ReviewInterval == 0 {
		c.Trading.ReviewInterval = types.Duration(30 * time.Second)
	}

	if len(c.Profiles) == 0 {
		c.Profiles = risk.DefaultProfiles()
	}
	for name, p := range c.Profiles {
		if p.Name == "" {
			p.Name = name
			c.Profiles[name] = p
		}
	}

	if !c.Virtual.SimulateSlippage && !c.Virtual.SimulateCommissions && c.Virtual.SlippagePct == 0 && c.Virtual.CommissionRate == 0 {
		c.Virtual = broker.DefaultPaperConfig()
	}
	if c.Guard.ConsecutiveFailures == 0 && c.Guard.MaxOrdersPerSecond == 0 {
		c.Guard = broker.DefaultGuardConfig()
	}

	if c.Learning.WindowDays == 0 {
		c.Learning.WindowDays = perf.DefaultWindowDays
	}
	if c.Learning.Adapter.EvaluationDays == 0 {
		c.Learning.Adapter = perf.DefaultAdapterConfig()
	}

	if c.Notifications.Telegram.TokenEnv == "" {
		c.Notifications.Telegram.TokenEnv = "TELEGRAM_BOT_TOKEN"
	}
	if c.Notifications.Telegram.ChatIDEnv == "" {
		c.Notifications.Telegram.ChatIDEnv = "TELEGRAM_CHAT_ID"
	}
	if c.Notifications.Webhook.Timeout == 0 {
		c.Notifications.Webhook.Timeout = types.Duration(10 * time.Second)
	}

	if c.Monitoring.ListenAddr == "" {
		c.Monitoring.ListenAddr = ":8080"
	}

	if c.State.Dir == "" {
		c.State.Dir = "state"
	}
	if c.State.SaveInterval == 0 {
		c.State.SaveInterval = types.Duration(time.Minute)
	}
}

func (c *Config) validate() error {
	if c.Trading.Mode != ModeVirtual && c.Trading.Mode != ModeReal {
		return agenterrors.NewConfigurationError("config", "validate",
			fmt.Sprintf("trading.mode must be %q or %q, got %q", ModeVirtual, ModeReal, c.Trading.Mode))
	}
	if c.Trading.InitialBalance <= 0 {
		return fmt.Errorf("trading.initial_balance must be positive")
	}
	if c.Trading.OrderTimeout <= 0 {
		return fmt.Errorf("trading.order_timeout must be positive")
	}
	if _, err := time.LoadLocation(c.Trading.Timezone); err != nil {
		return fmt.Errorf("trading.timezone %q is invalid: %w", c.Trading.Timezone, err)
	}

	if _, ok := c.Profiles[c.Trading.ActiveProfile]; !ok {
		return fmt.Errorf("trading.active_profile %q not found in profiles", c.Trading.ActiveProfile)
	}
	for _, p := range c.Profiles {
		if err := p.Validate(); err != nil {
			return err
		}
	}

	if c.Notifications.Webhook.Enabled && c.Notifications.Webhook.URL == "" {
		return fmt.Errorf("notifications.webhook.url is required when the webhook notifier is enabled")
	}

	return nil
}

// Location returns the trading timezone. Call after validate.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Trading.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
