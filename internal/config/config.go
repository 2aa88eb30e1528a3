package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models leasekeeper.yml.
type Config struct {
	Agreements struct {
		Dir             string `yaml:"dir"`
		DefaultTemplate string `yaml:"default_template"`
		SeedTemplates   bool   `yaml:"seed_templates"`
	} `yaml:"agreements"`
	Ledger struct {
		RevenueAccount Account `yaml:"revenue_account"`
		Vendor         string  `yaml:"vendor"`
		AutoApprove    bool    `yaml:"auto_approve"`
	} `yaml:"ledger"`
	Export struct {
		Timezone string `yaml:"timezone"`
	} `yaml:"export"`
	Server struct {
		Addr                   string `yaml:"addr"`
		BasePath               string `yaml:"base_path"`
		JWTSecret              string `yaml:"jwt_secret"`
		AllowLegacyActorHeader bool   `yaml:"allow_legacy_actor_header"`
	} `yaml:"server"`
}

type Account struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create it with lk init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Agreements.Dir) == "" {
		return fmt.Errorf("config.agreements.dir is required")
	}
	if filepath.IsAbs(c.Agreements.Dir) {
		return fmt.Errorf("config.agreements.dir must be relative to the workspace")
	}
	if c.Ledger.RevenueAccount.Code == "" {
		return fmt.Errorf("config.ledger.revenue_account.code is required")
	}
	if c.Ledger.RevenueAccount.Name == "" {
		return fmt.Errorf("config.ledger.revenue_account.name is required")
	}
	if _, err := c.ExportLocation(); err != nil {
		return fmt.Errorf("config.export.timezone: %w", err)
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	return nil
}

// ExportLocation resolves the timezone used to group ledger exports by day.
func (c *Config) ExportLocation() (*time.Location, error) {
	switch c.Export.Timezone {
	case "", "Local":
		return time.Local, nil
	case "UTC":
		return time.UTC, nil
	default:
		return time.LoadLocation(c.Export.Timezone)
	}
}

// AgreementsDir returns the absolute directory holding the Leases tier tree.
func (c *Config) AgreementsDir(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, c.Agreements.Dir)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "leasekeeper.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns the default config if the config file does not exist.
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

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing keys keep
// their default values.
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

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `agreements:
  # Parent of the Leases/{Templates,WorkingCopies,CompletedAgreements} tiers.
  dir: .
  default_template: Cash_Rent
  seed_templates: true

ledger:
  revenue_account:
    code: "4000"
    name: Lease Revenue
  vendor: ""
  auto_approve: false

export:
  timezone: Local

server:
  addr: 127.0.0.1:8080
  base_path: /v0
  jwt_secret: ""
  allow_legacy_actor_header: false
`
