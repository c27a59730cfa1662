package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"facilityfix/internal/domain"
	"facilityfix/internal/engine/auth"
)

// Config models facilityfix.yml.
type Config struct {
	Service struct {
		Name string `yaml:"name"`
	} `yaml:"service"`
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret              string `yaml:"jwt_secret"`
		AllowLegacyActorHeader bool   `yaml:"allow_legacy_actor_header"`
		DevLogin               bool   `yaml:"dev_login"`
	} `yaml:"auth"`
	Access struct {
		Grants map[string][]string `yaml:"grants"`
	} `yaml:"access"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; run ffx init first", path)
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

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Service.Name == "" {
		return fmt.Errorf("config.service.name is required")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	for op, roles := range c.Access.Grants {
		if !auth.KnownOperation(op) {
			return fmt.Errorf("config.access.grants references unknown operation %s", op)
		}
		if len(roles) == 0 {
			return fmt.Errorf("config.access.grants.%s has no roles", op)
		}
		for _, role := range roles {
			switch role {
			case domain.RoleAdmin, domain.RoleStaff, domain.RoleTenant:
			default:
				return fmt.Errorf("config.access.grants.%s has unknown role %s", op, role)
			}
		}
	}
	return nil
}

// Policy builds the capability table from the grant overrides.
func (c *Config) Policy() auth.Policy {
	return auth.NewPolicy(c.Access.Grants)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "facilityfix.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `service:
  name: facilityfix

server:
  addr: :8080
  base_path: /api

auth:
  jwt_secret: ""
  allow_legacy_actor_header: true
  dev_login: true

access:
  grants: {}
`
