// Package config handles loading and validating the engine's configuration:
// every governance threshold the admission pipeline consults, plus the
// ambient keys the rest of the pipeline needs (store path, queue sizing,
// ports).
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete configuration structure, loaded from YAML with
// ${ENV_VAR} expansion applied before unmarshalling.
type Config struct {
	Governor    GovernorConfig    `yaml:"governor"`
	Filters     FiltersConfig     `yaml:"filters"`
	OrderMgr    OrderMgrConfig    `yaml:"order_manager"`
	System      SystemConfig      `yaml:"system"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
}

// GovernorConfig holds the per-VA cooldown and throttle thresholds.
type GovernorConfig struct {
	MaxLossCooldown         int  `yaml:"max_loss_cooldown"`
	CooldownDurationSeconds int  `yaml:"cooldown_duration_seconds"`
	MaxOpenPositionsPerVA   int  `yaml:"max_open_positions_per_va"`
	KillSwitchEnabled       bool `yaml:"kill_switch_enabled"`
	PanicCloseIncidentLimit int  `yaml:"panic_close_incident_threshold"`
}

// FiltersConfig holds the pre-trade filter chain thresholds.
type FiltersConfig struct {
	MaxSpreadBPS       float64 `yaml:"max_spread_bps"`
	MaxSlippageBPS     float64 `yaml:"max_slippage_bps"`
	MaxLatencyMS       float64 `yaml:"max_latency_ms"`
	TradingWindowStart string  `yaml:"trading_window_start"` // "HH:MM", empty means always open
	TradingWindowEnd   string  `yaml:"trading_window_end"`
	TradingWindowTZ    string  `yaml:"trading_window_timezone"`
}

// OrderMgrConfig holds order lifecycle and reconciliation thresholds.
type OrderMgrConfig struct {
	StopLossPercentage         float64 `yaml:"stop_loss_percentage"`
	ReconcileIntervalSeconds   int     `yaml:"reconcile_interval_seconds"`
	StaleOrderThresholdSeconds int     `yaml:"stale_order_threshold_seconds"`
	ExchangeCallTimeoutSeconds int     `yaml:"exchange_call_timeout_seconds"`
}

// SystemConfig holds ambient process settings.
type SystemConfig struct {
	LogLevel                string `yaml:"log_level"`
	StorePath               string `yaml:"store_path"`
	SignalQueueCapacity     int    `yaml:"signal_queue_capacity"`
	MetricsAddr             string `yaml:"metrics_addr"`
	DashboardRefreshSeconds int    `yaml:"dashboard_refresh_interval_seconds"`
}

// ConcurrencyConfig sizes the worker pools used for alert/dashboard fan-out.
type ConcurrencyConfig struct {
	AlertPoolSize     int `yaml:"alert_pool_size"`
	AlertPoolCapacity int `yaml:"alert_pool_capacity"`
}

// ValidationError describes one failed configuration constraint.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig reads filename, expands ${ENV_VAR} references, parses YAML,
// applies defaults for anything left zero, and validates the result.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate collects every constraint violation instead of failing on the
// first, so an operator sees the whole list of bad values at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Governor.MaxLossCooldown <= 0 {
		errs = append(errs, ValidationError{"governor.max_loss_cooldown", c.Governor.MaxLossCooldown, "must be positive"}.Error())
	}
	if c.Governor.CooldownDurationSeconds <= 0 {
		errs = append(errs, ValidationError{"governor.cooldown_duration_seconds", c.Governor.CooldownDurationSeconds, "must be positive"}.Error())
	}
	if c.Governor.MaxOpenPositionsPerVA <= 0 {
		errs = append(errs, ValidationError{"governor.max_open_positions_per_va", c.Governor.MaxOpenPositionsPerVA, "must be positive"}.Error())
	}

	if c.Filters.MaxSpreadBPS <= 0 {
		errs = append(errs, ValidationError{"filters.max_spread_bps", c.Filters.MaxSpreadBPS, "must be positive"}.Error())
	}
	if c.Filters.MaxSlippageBPS <= 0 {
		errs = append(errs, ValidationError{"filters.max_slippage_bps", c.Filters.MaxSlippageBPS, "must be positive"}.Error())
	}
	if c.Filters.MaxLatencyMS <= 0 {
		errs = append(errs, ValidationError{"filters.max_latency_ms", c.Filters.MaxLatencyMS, "must be positive"}.Error())
	}
	if (c.Filters.TradingWindowStart == "") != (c.Filters.TradingWindowEnd == "") {
		errs = append(errs, ValidationError{"filters.trading_window_start/end", "", "must both be set or both be empty"}.Error())
	}

	if c.OrderMgr.StopLossPercentage <= 0 {
		errs = append(errs, ValidationError{"order_manager.stop_loss_percentage", c.OrderMgr.StopLossPercentage, "must be positive"}.Error())
	}
	if c.OrderMgr.ReconcileIntervalSeconds <= 0 {
		errs = append(errs, ValidationError{"order_manager.reconcile_interval_seconds", c.OrderMgr.ReconcileIntervalSeconds, "must be positive"}.Error())
	}

	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		errs = append(errs, ValidationError{"system.log_level", c.System.LogLevel, fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", "))}.Error())
	}
	if c.System.StorePath == "" {
		errs = append(errs, ValidationError{"system.store_path", "", "must not be empty"}.Error())
	}
	if c.System.SignalQueueCapacity <= 0 {
		errs = append(errs, ValidationError{"system.signal_queue_capacity", c.System.SignalQueueCapacity, "must be positive"}.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errs, "\n"))
	}
	return nil
}

// Default returns the configuration with every documented default
// pre-filled, used when no config file is present.
func Default() *Config {
	return &Config{
		Governor: GovernorConfig{
			MaxLossCooldown:         3,
			CooldownDurationSeconds: 300,
			MaxOpenPositionsPerVA:   5,
			KillSwitchEnabled:       false,
			PanicCloseIncidentLimit: 3,
		},
		Filters: FiltersConfig{
			MaxSpreadBPS:       10.0,
			MaxSlippageBPS:     5.0,
			MaxLatencyMS:       500.0,
			TradingWindowStart: "09:30",
			TradingWindowEnd:   "16:00",
			TradingWindowTZ:    "UTC",
		},
		OrderMgr: OrderMgrConfig{
			StopLossPercentage:         2.0,
			ReconcileIntervalSeconds:   5,
			StaleOrderThresholdSeconds: 30,
			ExchangeCallTimeoutSeconds: 5,
		},
		System: SystemConfig{
			LogLevel:                "INFO",
			StorePath:               "./data/engine.db",
			SignalQueueCapacity:     256,
			MetricsAddr:             ":9090",
			DashboardRefreshSeconds: 2,
		},
		Concurrency: ConcurrencyConfig{
			AlertPoolSize:     4,
			AlertPoolCapacity: 64,
		},
	}
}

func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		return os.Getenv(key)
	})
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
