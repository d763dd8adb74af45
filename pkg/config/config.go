// Package config loads and validates the framework's YAML
// configuration.
package config

import (
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/XiaoConstantine/ace-go/pkg/errors"
)

// Config is the root configuration for the framework and its CLI.
type Config struct {
	// Manual configures the evolving manual itself.
	Manual ManualConfig `yaml:"manual,omitempty" validate:"omitempty"`

	// LLM configures the model backing the agents. Optional: without
	// it the agents run in their offline modes.
	LLM LLMConfig `yaml:"llm,omitempty" validate:"omitempty"`

	// Storage configures snapshot persistence.
	Storage StorageConfig `yaml:"storage,omitempty" validate:"omitempty"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging,omitempty" validate:"omitempty"`
}

// ManualConfig tunes manual behavior.
type ManualConfig struct {
	// ID names the manual; empty means a generated id.
	ID string `yaml:"id,omitempty"`

	// DuplicateThreshold is the similarity above which new content is
	// flagged as a duplicate.
	DuplicateThreshold float64 `yaml:"duplicate_threshold,omitempty" validate:"omitempty,gt=0,lte=1"`

	// MaxContextItems caps the items rendered into a prompt. Zero
	// means no cap.
	MaxContextItems int `yaml:"max_context_items,omitempty" validate:"min=0"`

	// PrioritizeBy selects context ordering: usage or confidence.
	PrioritizeBy string `yaml:"prioritize_by,omitempty" validate:"omitempty,oneof=usage confidence"`
}

// LLMConfig selects and tunes the model provider.
type LLMConfig struct {
	Provider string `yaml:"provider,omitempty" validate:"omitempty,oneof=anthropic"`

	// Model identifier understood by the provider.
	Model string `yaml:"model,omitempty"`

	// APIKey falls back to the provider's environment variable.
	APIKey string `yaml:"api_key,omitempty"`

	MaxTokens   int     `yaml:"max_tokens,omitempty" validate:"min=0"`
	Temperature float64 `yaml:"temperature,omitempty" validate:"min=0,max=2"`
}

// StorageConfig configures the snapshot store.
type StorageConfig struct {
	// Path to the SQLite database file; empty disables persistence.
	Path string `yaml:"path,omitempty"`

	// KeepVersions caps snapshots retained per manual. Zero keeps all.
	KeepVersions int `yaml:"keep_versions,omitempty" validate:"min=0"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty" validate:"omitempty,oneof=DEBUG INFO WARN ERROR FATAL"`
	File  string `yaml:"file,omitempty"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Manual: ManualConfig{
			DuplicateThreshold: 0.8,
			PrioritizeBy:       "usage",
		},
		LLM: LLMConfig{
			Provider:  "anthropic",
			MaxTokens: 2000,
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
	}
}

// applyDefaults fills zero-valued fields a loaded file left out.
func (c *Config) applyDefaults() {
	if c.Manual.DuplicateThreshold == 0 {
		c.Manual.DuplicateThreshold = 0.8
	}
	if c.Manual.PrioritizeBy == "" {
		c.Manual.PrioritizeBy = "usage"
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "anthropic"
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 2000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "INFO"
	}
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, errors.ValidationFailed, "invalid configuration")
	}
	return nil
}

// Load reads, defaults, and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.ResourceNotFound, "failed to read config file"),
			errors.Fields{"path": path})
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.SerializationFailed, "failed to parse config file"),
			errors.Fields{"path": path})
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
