package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/fract/market"
)

// Config is the complete runtime configuration.
type Config struct {
	OANDA       OANDAConfig    `json:"oanda" yaml:"oanda"`
	Instruments []string       `json:"instruments" yaml:"instruments"`
	Feature     FeatureConfig  `json:"feature" yaml:"feature"`
	Model       ModelConfig    `json:"model" yaml:"model"`
	Position    PositionConfig `json:"position" yaml:"position"`
	Loop        LoopConfig     `json:"loop" yaml:"loop"`
	Log         LogConfig      `json:"log" yaml:"log"`
	Journal     JournalConfig  `json:"journal" yaml:"journal"`
	Metrics     MetricsConfig  `json:"metrics" yaml:"metrics"`
}

type OANDAConfig struct {
	Environment string `json:"environment" yaml:"environment"` // "practice" or "live"
	AccountID   string `json:"account_id" yaml:"account_id"`
	Token       string `json:"token,omitempty" yaml:"token,omitempty"`
}

type FeatureConfig struct {
	Type          string   `json:"type" yaml:"type"` // LR, R or MID
	Granularities []string `json:"granularities" yaml:"granularities"`
	CacheLength   int      `json:"cache_length" yaml:"cache_length"`
}

type ModelConfig struct {
	Name string     `json:"name" yaml:"name"`
	EWMA EWMAConfig `json:"ewma" yaml:"ewma"`
}

type EWMAConfig struct {
	Alpha       float64 `json:"alpha" yaml:"alpha"`
	SigmaBand   float64 `json:"sigma_band" yaml:"sigma_band"`
	ClosingOnly bool    `json:"closing_only" yaml:"closing_only"`
	Contrary    bool    `json:"contrary" yaml:"contrary"`
}

type PositionConfig struct {
	Bet             string          `json:"bet" yaml:"bet"`
	BetMultiplier   float64         `json:"bet_multiplier" yaml:"bet_multiplier"`
	MarginNAVRatio  MarginNAVRatio  `json:"margin_nav_ratio" yaml:"margin_nav_ratio"`
	LimitPriceRatio LimitPriceRatio `json:"limit_price_ratio" yaml:"limit_price_ratio"`
	TTLSec          int             `json:"ttl_sec" yaml:"ttl_sec"`
}

// MarginNAVRatio holds fractions of the account balance.
type MarginNAVRatio struct {
	Unit     float64 `json:"unit" yaml:"unit"`
	Init     float64 `json:"init" yaml:"init"`
	Cap      float64 `json:"cap" yaml:"cap"`
	Preserve float64 `json:"preserve" yaml:"preserve"`
}

// LimitPriceRatio holds fractions of the entry price.
type LimitPriceRatio struct {
	TakeProfit   float64 `json:"take_profit" yaml:"take_profit"`
	StopLoss     float64 `json:"stop_loss" yaml:"stop_loss"`
	TrailingStop float64 `json:"trailing_stop" yaml:"trailing_stop"`
	MaxSpread    float64 `json:"max_spread" yaml:"max_spread"`
}

type LoopConfig struct {
	Interval       Duration `json:"interval" yaml:"interval"`
	RequestSpacing Duration `json:"request_spacing" yaml:"request_spacing"`
	Timeout        Duration `json:"timeout" yaml:"timeout"`
	IgnoreAPIError bool     `json:"ignore_api_error" yaml:"ignore_api_error"`
}

type LogConfig struct {
	Dir   string `json:"dir,omitempty" yaml:"dir,omitempty"`
	Level string `json:"level" yaml:"level"`
	Quiet bool   `json:"quiet" yaml:"quiet"`
}

type JournalConfig struct {
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

type MetricsConfig struct {
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
}

// Duration is a time.Duration that reads and writes as "1m30s".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(v *yaml.Node) error {
	return d.parse(v.Value)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d *Duration) parse(s string) error {
	if s == "" {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = v
	return nil
}

// ConfigurationError reports a configuration problem found before the loop
// starts. It is always fatal.
type ConfigurationError struct {
	Field string
	Msg   string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration: " + e.Msg
	}
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Msg)
}

func invalid(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// LoadFromFile loads configuration from a file (YAML, with JSON fallback),
// fills secrets from the environment and validates the result.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, &ConfigurationError{Msg: fmt.Sprintf("parse %s (tried YAML and JSON): %v", path, err)}
		}
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv loads an optional .env file and fills empty OANDA credentials
// from OANDA_TOKEN, OANDA_ACCOUNT_ID and OANDA_ENV.
func (c *Config) ApplyEnv() {
	_ = godotenv.Load()

	if c.OANDA.Token == "" {
		c.OANDA.Token = os.Getenv("OANDA_TOKEN")
	}
	if c.OANDA.AccountID == "" {
		c.OANDA.AccountID = os.Getenv("OANDA_ACCOUNT_ID")
	}
	if v := os.Getenv("OANDA_ENV"); v != "" && c.OANDA.Environment == "" {
		c.OANDA.Environment = v
	}
}

// SaveToFile writes YAML for .yml/.yaml paths and JSON otherwise. The token
// is never written.
func (c *Config) SaveToFile(path string) error {
	out := *c
	out.OANDA.Token = ""

	var data []byte
	var err error
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(&out)
	} else {
		data, err = json.MarshalIndent(&out, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Practice reports whether the practice endpoint should be used.
func (c *Config) Practice() bool {
	return c.OANDA.Environment != "live"
}

// Resolutions parses the configured granularities in order.
func (c *Config) Resolutions() ([]market.Resolution, error) {
	out := make([]market.Resolution, 0, len(c.Feature.Granularities))
	for _, g := range c.Feature.Granularities {
		r, err := market.ParseResolution(g)
		if err != nil {
			return nil, invalid("feature.granularities", "%v", err)
		}
		out = append(out, r)
	}
	return out, nil
}

// Validate checks static constraints. Instrument availability and
// conversion paths need the broker and are checked at startup.
func (c *Config) Validate() error {
	switch c.OANDA.Environment {
	case "", "practice", "live":
	default:
		return invalid("oanda.environment", "must be practice or live, got %q", c.OANDA.Environment)
	}
	if len(c.Instruments) == 0 {
		return invalid("instruments", "at least one instrument is required")
	}
	seen := make(map[string]bool)
	for _, name := range c.Instruments {
		if _, _, err := market.SplitInstrument(name); err != nil {
			return invalid("instruments", "%v", err)
		}
		if seen[name] {
			return invalid("instruments", "duplicate %s", name)
		}
		seen[name] = true
	}

	switch strings.ToUpper(c.Feature.Type) {
	case "LR", "R", "MID":
	default:
		return invalid("feature.type", "must be LR, R or MID, got %q", c.Feature.Type)
	}
	if len(c.Feature.Granularities) == 0 {
		return invalid("feature.granularities", "at least one granularity is required")
	}
	if _, err := c.Resolutions(); err != nil {
		return err
	}
	if c.Feature.CacheLength < 2 {
		return invalid("feature.cache_length", "must be at least 2")
	}
	if c.Feature.CacheLength > 5000 {
		return invalid("feature.cache_length", "must be at most 5000")
	}

	if c.Model.EWMA.Alpha <= 0 || c.Model.EWMA.Alpha > 1 {
		return invalid("model.ewma.alpha", "must be in (0, 1]")
	}
	if c.Model.EWMA.SigmaBand < 0 {
		return invalid("model.ewma.sigma_band", "must not be negative")
	}

	p := c.Position
	if p.BetMultiplier < 1 {
		return invalid("position.bet_multiplier", "must be at least 1")
	}
	r := p.MarginNAVRatio
	for _, v := range []struct {
		name string
		val  float64
	}{
		{"unit", r.Unit}, {"init", r.Init}, {"cap", r.Cap}, {"preserve", r.Preserve},
	} {
		if v.val < 0 || v.val > 1 {
			return invalid("position.margin_nav_ratio."+v.name, "must be in [0, 1]")
		}
	}
	if r.Unit <= 0 {
		return invalid("position.margin_nav_ratio.unit", "must be positive")
	}
	if r.Init < r.Unit || r.Cap < r.Init {
		return invalid("position.margin_nav_ratio", "want unit <= init <= cap")
	}
	switch strings.ToLower(strings.TrimSpace(p.Bet)) {
	case "", "martingale", "paroli":
		// A multiplier of 1 or cap == init would never grow a bet.
		if p.BetMultiplier <= 1 {
			return invalid("position.bet_multiplier", "must be above 1 for %s", betName(p.Bet))
		}
		if r.Cap <= r.Init {
			return invalid("position.margin_nav_ratio", "cap must exceed init for %s", betName(p.Bet))
		}
	case "dalembert":
		if r.Cap <= r.Init {
			return invalid("position.margin_nav_ratio", "cap must exceed init for dalembert")
		}
	}
	l := p.LimitPriceRatio
	if l.TakeProfit < 0 || l.StopLoss < 0 || l.TrailingStop < 0 || l.MaxSpread <= 0 {
		return invalid("position.limit_price_ratio", "ratios must be non-negative and max_spread positive")
	}
	if p.TTLSec < 0 {
		return invalid("position.ttl_sec", "must not be negative")
	}

	if c.Loop.Interval.Duration < 0 || c.Loop.RequestSpacing.Duration < 0 {
		return invalid("loop", "durations must not be negative")
	}
	if c.Loop.Timeout.Duration <= 0 {
		return invalid("loop.timeout", "must be positive")
	}
	return nil
}

func betName(s string) string {
	if strings.TrimSpace(s) == "" {
		return "martingale"
	}
	return strings.ToLower(strings.TrimSpace(s))
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		OANDA: OANDAConfig{
			Environment: "practice",
		},
		Instruments: []string{"EUR_USD", "USD_JPY", "GBP_USD"},
		Feature: FeatureConfig{
			Type:          "LR",
			Granularities: []string{"TICK", "S5", "M1"},
			CacheLength:   1000,
		},
		Model: ModelConfig{
			Name: "ewma",
			EWMA: EWMAConfig{
				Alpha:     0.01,
				SigmaBand: 1,
			},
		},
		Position: PositionConfig{
			Bet:           "martingale",
			BetMultiplier: 2,
			MarginNAVRatio: MarginNAVRatio{
				Unit:     0.01,
				Init:     0.01,
				Cap:      0.2,
				Preserve: 0.5,
			},
			LimitPriceRatio: LimitPriceRatio{
				TakeProfit:   0.01,
				StopLoss:     0.01,
				TrailingStop: 0.005,
				MaxSpread:    0.0002,
			},
			TTLSec: 86400,
		},
		Loop: LoopConfig{
			Interval:       Duration{0},
			RequestSpacing: Duration{500 * time.Millisecond},
			Timeout:        Duration{30 * time.Second},
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
