package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LedgerDir string         `yaml:"ledger_dir"`
	LedgerDB  string         `yaml:"ledger_db"`
	Engine    EngineConfig   `yaml:"engine"`
	Bundles   []BundleConfig `yaml:"bundles"`
	Run       RunConfig      `yaml:"run"`
	Report    ReportConfig   `yaml:"report"`
}

type EngineConfig struct {
	Binary      string        `yaml:"binary"`
	CallTimeout time.Duration `yaml:"call_timeout"`
	// DecisionLogRetries is a pointer so an explicit 0 (no retries) is
	// distinguishable from an unset field, which defaults to 2.
	DecisionLogRetries *int `yaml:"decision_log_retries"`
}

type BundleConfig struct {
	ID   string `yaml:"id"`
	Path string `yaml:"path"`
}

type RunConfig struct {
	Workers int           `yaml:"workers"`
	Timeout time.Duration `yaml:"timeout"`
	Combine string        `yaml:"combine"`
	Strict  bool          `yaml:"strict"`
}

type ReportConfig struct {
	Verbose bool `yaml:"verbose"`
}

const (
	CombineFirstWins     = "first-wins"
	CombineAllMustPass   = "all-must-pass"
	CombineWeightedMerge = "weighted-merge"
)

func Load(path string) (Config, error) {
	// #nosec G304 -- path is operator-provided config path.
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	expanded := os.ExpandEnv(string(raw))
	expanded = strings.ReplaceAll(expanded, "\r\n", "\n")

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()
	return cfg, cfg.Validate()
}

func (c *Config) applyDefaults() {
	if c.Engine.Binary == "" {
		c.Engine.Binary = "opa"
	}
	if c.Engine.CallTimeout <= 0 {
		c.Engine.CallTimeout = 30 * time.Second
	}
	if c.Engine.DecisionLogRetries == nil {
		retries := 2
		c.Engine.DecisionLogRetries = &retries
	}
	if c.Run.Workers <= 0 {
		c.Run.Workers = 4
	}
	if c.Run.Combine == "" {
		c.Run.Combine = CombineFirstWins
	}
}

func (c Config) Validate() error {
	if c.LedgerDir == "" && c.LedgerDB == "" {
		return fmt.Errorf("one of ledger_dir, ledger_db is required")
	}
	if len(c.Bundles) == 0 {
		return fmt.Errorf("at least one bundle is required")
	}
	for i, b := range c.Bundles {
		if b.ID == "" {
			return fmt.Errorf("bundles[%d].id is required", i)
		}
		if b.Path == "" {
			return fmt.Errorf("bundles[%d].path is required", i)
		}
	}

	if c.Engine.DecisionLogRetries != nil && *c.Engine.DecisionLogRetries < 0 {
		return fmt.Errorf("engine.decision_log_retries must not be negative")
	}

	switch c.Run.Combine {
	case CombineFirstWins, CombineAllMustPass, CombineWeightedMerge:
	default:
		return fmt.Errorf("run.combine must be one of %s, %s, %s",
			CombineFirstWins, CombineAllMustPass, CombineWeightedMerge)
	}

	return nil
}
