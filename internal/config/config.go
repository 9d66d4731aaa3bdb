package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models riskline.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Pipeline struct {
		// Cron expression for the daily batch run.
		Schedule string `yaml:"schedule"`
	} `yaml:"pipeline"`
	Risk struct {
		AtRiskThreshold        float64 `yaml:"at_risk_threshold"`
		CriticalAlertThreshold float64 `yaml:"critical_alert_threshold"`
		WarningAlertThreshold  float64 `yaml:"warning_alert_threshold"`
		DefaultTrustScore      float64 `yaml:"default_trust_score"`
	} `yaml:"risk"`
	Alerts struct {
		// Dedup suppresses a project-level alert while an unread one of the
		// same type and severity exists for the project. Off by default: the
		// pipeline re-emits threshold alerts on every daily run.
		Dedup bool `yaml:"dedup"`
	} `yaml:"alerts"`
	Models struct {
		// Dir overrides the artifact directory (default <workspace>/.riskline/models).
		Dir string `yaml:"dir"`
	} `yaml:"models"`
	Auth struct {
		JWTSecretEnv string `yaml:"jwt_secret_env"`
	} `yaml:"auth"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Pipeline.Schedule) == "" {
		return fmt.Errorf("config.pipeline.schedule is required")
	}
	if c.Risk.AtRiskThreshold <= 0 || c.Risk.AtRiskThreshold > 100 {
		return fmt.Errorf("config.risk.at_risk_threshold must be in (0,100]")
	}
	if c.Risk.WarningAlertThreshold <= 0 || c.Risk.WarningAlertThreshold > 100 {
		return fmt.Errorf("config.risk.warning_alert_threshold must be in (0,100]")
	}
	if c.Risk.CriticalAlertThreshold < c.Risk.WarningAlertThreshold {
		return fmt.Errorf("config.risk.critical_alert_threshold must be >= warning_alert_threshold")
	}
	if c.Risk.DefaultTrustScore < 0 || c.Risk.DefaultTrustScore > 100 {
		return fmt.Errorf("config.risk.default_trust_score must be in [0,100]")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "riskline.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	cfg.Server.Addr = ":8080"
	cfg.Server.BasePath = "/v0"
	cfg.Pipeline.Schedule = "0 9 * * *"
	cfg.Risk.AtRiskThreshold = 60
	cfg.Risk.CriticalAlertThreshold = 80
	cfg.Risk.WarningAlertThreshold = 60
	cfg.Risk.DefaultTrustScore = 80
	cfg.Auth.JWTSecretEnv = "RISKLINE_JWT_SECRET"
	return &cfg
}

// GenerateDefault returns the default config as YAML.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `server:
  addr: ":8080"
  base_path: /v0

pipeline:
  # Daily risk pipeline, 09:00 local time.
  schedule: "0 9 * * *"

risk:
  at_risk_threshold: 60
  critical_alert_threshold: 80
  warning_alert_threshold: 60
  default_trust_score: 80

alerts:
  dedup: false

models:
  dir: ""

auth:
  jwt_secret_env: RISKLINE_JWT_SECRET
`
