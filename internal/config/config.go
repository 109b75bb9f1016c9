package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models inkline.yml.
type Config struct {
	Project struct {
		ID   string `yaml:"id"`
		Kind string `yaml:"kind"`
	} `yaml:"project"`
	Pipeline struct {
		MaxConcurrentJobs   int `yaml:"max_concurrent_jobs"`
		AgentTimeoutSeconds int `yaml:"agent_timeout_seconds"`
		HeartbeatSeconds    int `yaml:"heartbeat_seconds"`
		MaxIterations       int `yaml:"max_iterations"`
	} `yaml:"pipeline"`
	Storage struct {
		Backend string `yaml:"backend"`
		Dir     string `yaml:"dir"`
	} `yaml:"storage"`
	LLM struct {
		Provider  string `yaml:"provider"`
		Model     string `yaml:"model"`
		APIKeyEnv string `yaml:"api_key_env"`
		MaxTokens int    `yaml:"max_tokens"`
	} `yaml:"llm"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; generate one with ink project init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Project.ID == "" {
		return fmt.Errorf("config.project.id is required")
	}
	if c.Project.Kind != "book-pipeline" {
		return fmt.Errorf("config.project.kind must be 'book-pipeline'")
	}
	if c.Pipeline.MaxConcurrentJobs < 1 {
		return fmt.Errorf("config.pipeline.max_concurrent_jobs must be at least 1")
	}
	if c.Pipeline.AgentTimeoutSeconds < 0 {
		return fmt.Errorf("config.pipeline.agent_timeout_seconds cannot be negative")
	}
	if c.Pipeline.HeartbeatSeconds < 1 {
		return fmt.Errorf("config.pipeline.heartbeat_seconds must be at least 1")
	}
	if c.Pipeline.MaxIterations < 1 {
		return fmt.Errorf("config.pipeline.max_iterations must be at least 1")
	}
	switch c.Storage.Backend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("config.storage.backend must be 'file' or 'sqlite', got %q", c.Storage.Backend)
	}
	switch c.LLM.Provider {
	case "", "none", "anthropic":
	default:
		return fmt.Errorf("config.llm.provider must be 'anthropic' or 'none', got %q", c.LLM.Provider)
	}
	return nil
}

// AgentTimeout returns the per-agent execution deadline; zero means none.
func (c *Config) AgentTimeout() time.Duration {
	return time.Duration(c.Pipeline.AgentTimeoutSeconds) * time.Second
}

// HeartbeatInterval returns how often running jobs persist a liveness event.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Pipeline.HeartbeatSeconds) * time.Second
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "inkline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(projectID string) string {
	return fmt.Sprintf(defaultTemplate, projectID)
}

// Default returns the default Config struct for a project.
func Default(projectID string) *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(GenerateDefault(projectID)), &cfg)
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

const defaultTemplate = `project:
  id: %s
  kind: book-pipeline

pipeline:
  max_concurrent_jobs: 1
  agent_timeout_seconds: 600
  heartbeat_seconds: 30
  max_iterations: 200

storage:
  backend: file
  dir: data

llm:
  provider: none
  model: claude-sonnet-4-20250514
  api_key_env: ANTHROPIC_API_KEY
  max_tokens: 16000
`
