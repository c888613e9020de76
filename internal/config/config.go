package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"planline/internal/domain"
)

// Config models planline.yml.
type Config struct {
	Project struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"project"`
	Workload struct {
		BaseCapacity int                `yaml:"base_capacity"`
		Multipliers  map[string]float64 `yaml:"multipliers"`
	} `yaml:"workload"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with pl project init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
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

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Project.ID == "" {
		return fmt.Errorf("config.project.id is required")
	}
	if c.Workload.BaseCapacity < 0 {
		return fmt.Errorf("config.workload.base_capacity must not be negative")
	}
	for level, m := range c.Workload.Multipliers {
		if !domain.ValidLevel(domain.MemberLevel(level)) {
			return fmt.Errorf("config.workload.multipliers has unknown level %s", level)
		}
		if m <= 0 {
			return fmt.Errorf("multiplier for level %s must be positive", level)
		}
	}
	return nil
}

// Multipliers returns the configured per-level capacity multipliers, falling
// back to the standard set for levels the file does not mention.
func (c *Config) Multipliers() map[domain.MemberLevel]float64 {
	out := map[domain.MemberLevel]float64{
		domain.LevelJunior:     0.6,
		domain.LevelMid:        1.0,
		domain.LevelSenior:     1.3,
		domain.LevelSpecialist: 1.2,
		domain.LevelLead:       1.1,
	}
	for level, m := range c.Workload.Multipliers {
		out[domain.MemberLevel(level)] = m
	}
	return out
}

// BaseCapacity returns the configured base capacity, defaulting to 10.
func (c *Config) BaseCapacity() int {
	if c.Workload.BaseCapacity == 0 {
		return 10
	}
	return c.Workload.BaseCapacity
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "planline.yml")
}

// Default returns the default Config struct for a project.
func Default(projectID string) *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(fmt.Sprintf(defaultTemplate, projectID)), &cfg)
	cfg.Project.ID = projectID
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault(projectID string) string {
	return fmt.Sprintf(defaultTemplate, projectID)
}

const defaultTemplate = `project:
  id: %s
  name: ""

workload:
  base_capacity: 10
  multipliers:
    junior: 0.6
    mid: 1.0
    senior: 1.3
    specialist: 1.2
    lead: 1.1
`
