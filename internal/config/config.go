// Package config loads and hot-reloads the execution core's configuration:
// exchange credentials, risk limits, the distributed lock backend, logging,
// and the strategies to load at startup. Structure and yaml tagging follow
// the reference codebase's config package; the fields are the execution
// core's own.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Quant-Club/Quant-Engine/internal/domain"
)

// ExchangeConfig describes one configured exchange connection.
type ExchangeConfig struct {
	Enabled   bool   `yaml:"enabled"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Testnet   bool   `yaml:"testnet"`
}

// RiskConfig maps directly onto domain.RiskLimits plus the enabled flag.
type RiskConfig struct {
	Enabled         bool    `yaml:"enabled"`
	MaxOrderSize    float64 `yaml:"max_order_size"`
	MaxPositionSize float64 `yaml:"max_position_size"`
	MaxLeverage     float64 `yaml:"max_leverage"`
	MaxDrawdown     float64 `yaml:"max_drawdown"`
	MaxDailyLoss    float64 `yaml:"max_daily_loss"`
}

// ToLimits converts the YAML-facing risk config into domain.RiskLimits.
func (r RiskConfig) ToLimits() domain.RiskLimits {
	return domain.RiskLimits{
		MaxOrderSize:    r.MaxOrderSize,
		MaxPositionSize: r.MaxPositionSize,
		MaxLeverage:     r.MaxLeverage,
		MaxDrawdown:     r.MaxDrawdown,
		MaxDailyLoss:    r.MaxDailyLoss,
	}
}

// LockConfig configures the distributed order-submission lock.
type LockConfig struct {
	Enabled bool   `yaml:"enabled"`
	Prefix  string `yaml:"prefix"`
	Redis   struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"` // "text" or "json"
	LogDir   string `yaml:"log_dir"`
	FilePfx  string `yaml:"file_prefix"`
	Timezone string `yaml:"timezone"`
}

// StrategyConfig names a strategy to be loaded at startup and the
// symbol/exchange pairs it should subscribe to.
type StrategyConfig struct {
	Name string   `yaml:"name"`
	Type string   `yaml:"type"`
	Subs []string `yaml:"subscriptions"` // "SYMBOL@exchange" entries
}

// MetricsConfig controls the Prometheus exporter.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// StoreConfig configures the audit/persistence backend.
type StoreConfig struct {
	Driver string `yaml:"driver"` // sqlite, postgres, mysql
	DSN    string `yaml:"dsn"`
}

// HTTPConfig configures the read-only status API.
type HTTPConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Addr        string `yaml:"addr"`
	OperatorKey string `yaml:"operator_key"` // bcrypt hash of the bearer token, empty disables auth
}

// Config is the execution core's top-level configuration document.
type Config struct {
	Exchanges  map[string]ExchangeConfig `yaml:"exchanges"`
	Risk       RiskConfig                `yaml:"risk"`
	Lock       LockConfig                `yaml:"lock"`
	Logging    LoggingConfig             `yaml:"logging"`
	Metrics    MetricsConfig             `yaml:"metrics"`
	Store      StoreConfig               `yaml:"store"`
	HTTP       HTTPConfig                `yaml:"http"`
	Strategies []StrategyConfig          `yaml:"strategies"`
}

// Default returns a config with the same defaults as domain.DefaultRiskLimits
// plus sane logging/lock/store fallbacks for single-instance operation.
func Default() *Config {
	limits := domain.DefaultRiskLimits()
	cfg := &Config{
		Risk: RiskConfig{
			Enabled:         true,
			MaxOrderSize:    limits.MaxOrderSize,
			MaxPositionSize: limits.MaxPositionSize,
			MaxLeverage:     limits.MaxLeverage,
			MaxDrawdown:     limits.MaxDrawdown,
			MaxDailyLoss:    limits.MaxDailyLoss,
		},
		Logging: LoggingConfig{Level: "info", Format: "text", LogDir: "logs", FilePfx: "quantcore"},
		Store:   StoreConfig{Driver: "sqlite", DSN: "quantcore.db"},
		Metrics: MetricsConfig{Enabled: false, Addr: ":9090"},
	}
	cfg.Lock.Prefix = "quantcore:lock"
	return cfg
}

// Load reads and parses a YAML config file, overlaying it onto Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
