package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

type Config struct {
	General    GeneralConfig    `toml:"general" yaml:"general"`
	Schedule   ScheduleConfig   `toml:"schedule" yaml:"schedule"`
	Risk       RiskConfig       `toml:"risk" yaml:"risk"`
	Manifold   ManifoldConfig   `toml:"manifold" yaml:"manifold"`
	NATS       NATSConfig       `toml:"nats" yaml:"nats"`
	Strategies []StrategyConfig `toml:"strategies" yaml:"strategies"`
}

type GeneralConfig struct {
	DBPath   string  `toml:"db_path" yaml:"db_path"`
	LogLevel string  `toml:"log_level" yaml:"log_level"`
	LogFile  string  `toml:"log_file" yaml:"log_file"` // empty logs to stdout only
	Mode     string  `toml:"mode" yaml:"mode"`       // PAPER, LIVE or SHADOW
	Balance  float64 `toml:"balance" yaml:"balance"` // starting balance of the paper account
}

type ScheduleConfig struct {
	CycleInterval    Duration `toml:"cycle_interval" yaml:"cycle_interval"`
	CycleTimeout     Duration `toml:"cycle_timeout" yaml:"cycle_timeout"`
	SnapshotInterval Duration `toml:"snapshot_interval" yaml:"snapshot_interval"`
	ReportInterval   Duration `toml:"report_interval" yaml:"report_interval"`
}

type RiskConfig struct {
	MaxPosition          float64            `toml:"max_position" yaml:"max_position"`
	MaxPositionPerMarket map[string]float64 `toml:"max_position_per_market" yaml:"max_position_per_market"`
	ShortTolerance       float64            `toml:"short_tolerance" yaml:"short_tolerance"`
	PriceFloor           float64            `toml:"price_floor" yaml:"price_floor"`
	PriceCeiling         float64            `toml:"price_ceiling" yaml:"price_ceiling"`
}

type ManifoldConfig struct {
	ScanLimit       int64    `toml:"scan_limit" yaml:"scan_limit"`
	SyntheticSpread float64  `toml:"synthetic_spread" yaml:"synthetic_spread"`
	CacheTTL        Duration `toml:"cache_ttl" yaml:"cache_ttl"`
	MinLiquidity    float64  `toml:"min_liquidity" yaml:"min_liquidity"`
	MinBet          float64  `toml:"min_bet" yaml:"min_bet"`
}

type NATSConfig struct {
	Enabled        bool     `toml:"enabled" yaml:"enabled"`
	URL            string   `toml:"url" yaml:"url"`
	Subject        string   `toml:"subject" yaml:"subject"`
	ClientID       string   `toml:"client_id" yaml:"client_id"`
	ConnectTimeout Duration `toml:"connect_timeout" yaml:"connect_timeout"`
}

// StrategyConfig declares one strategy instance. Params are handed to the
// strategy's Initialize untouched.
type StrategyConfig struct {
	Name    string         `toml:"name" yaml:"name"`
	Kind    string         `toml:"kind" yaml:"kind"`
	Enabled *bool          `toml:"enabled" yaml:"enabled"` // nil means enabled
	Params  map[string]any `toml:"params" yaml:"params"`
}

// IsEnabled reports whether the instance should run.
func (s StrategyConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Duration wraps time.Duration for TOML and YAML unmarshaling.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

// Load reads a TOML file, or a YAML file when the extension is .yaml or .yml,
// over the defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = toml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		General: GeneralConfig{
			DBPath:   "./data/polytrader.db",
			LogLevel: "info",
			Mode:     "PAPER",
			Balance:  1000,
		},
		Schedule: ScheduleConfig{
			CycleInterval:    Duration{1 * time.Minute},
			CycleTimeout:     Duration{10 * time.Second},
			SnapshotInterval: Duration{15 * time.Minute},
			ReportInterval:   Duration{1 * time.Hour},
		},
		Risk: RiskConfig{
			MaxPosition:  100,
			PriceFloor:   0.01,
			PriceCeiling: 0.99,
		},
		Manifold: ManifoldConfig{
			ScanLimit:       200,
			SyntheticSpread: 0.02,
			CacheTTL:        Duration{10 * time.Minute},
			MinLiquidity:    50,
			MinBet:          1,
		},
		NATS: NATSConfig{
			URL:            "nats://127.0.0.1:4222",
			Subject:        "polytrader.orders",
			ClientID:       "polytrader",
			ConnectTimeout: Duration{5 * time.Second},
		},
	}
}

// Validate rejects settings the runtime cannot honour.
func (c *Config) Validate() error {
	switch strings.ToUpper(c.General.Mode) {
	case "PAPER", "LIVE", "SHADOW":
	default:
		return fmt.Errorf("general.mode: unknown mode %q", c.General.Mode)
	}
	switch c.General.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("general.log_level: unknown level %q", c.General.LogLevel)
	}
	if c.General.Balance < 0 {
		return fmt.Errorf("general.balance: must not be negative")
	}

	for name, d := range map[string]Duration{
		"schedule.cycle_interval":    c.Schedule.CycleInterval,
		"schedule.cycle_timeout":     c.Schedule.CycleTimeout,
		"schedule.snapshot_interval": c.Schedule.SnapshotInterval,
		"schedule.report_interval":   c.Schedule.ReportInterval,
	} {
		if d.Duration <= 0 {
			return fmt.Errorf("%s: must be positive", name)
		}
	}

	if !(c.Risk.MaxPosition > 0) {
		return fmt.Errorf("risk.max_position: must be positive")
	}
	for id, v := range c.Risk.MaxPositionPerMarket {
		if !(v > 0) {
			return fmt.Errorf("risk.max_position_per_market.%s: must be positive", id)
		}
	}
	if c.Risk.ShortTolerance < 0 {
		return fmt.Errorf("risk.short_tolerance: must not be negative")
	}
	if !(c.Risk.PriceFloor < c.Risk.PriceCeiling) {
		return fmt.Errorf("risk: price_floor %v must be below price_ceiling %v", c.Risk.PriceFloor, c.Risk.PriceCeiling)
	}

	if c.Manifold.SyntheticSpread < 0 || c.Manifold.SyntheticSpread >= 1 {
		return fmt.Errorf("manifold.synthetic_spread: must be in [0, 1)")
	}
	if c.Manifold.ScanLimit <= 0 {
		return fmt.Errorf("manifold.scan_limit: must be positive")
	}

	if c.NATS.Enabled && (c.NATS.URL == "" || c.NATS.Subject == "") {
		return fmt.Errorf("nats: url and subject are required when enabled")
	}

	seen := make(map[string]bool, len(c.Strategies))
	for i, s := range c.Strategies {
		if s.Name == "" || s.Kind == "" {
			return fmt.Errorf("strategies[%d]: name and kind are required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("strategies[%d]: duplicate name %q", i, s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}
