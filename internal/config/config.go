// Package config loads the layered application configuration: defaults,
// config.yml, config.local.yml, then environment overrides.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chainfeedhq/chainfeed/internal/index"
	"github.com/chainfeedhq/chainfeed/internal/ingest"
	"github.com/chainfeedhq/chainfeed/internal/schedule"
	"github.com/chainfeedhq/chainfeed/internal/source/mongo"
	"github.com/chainfeedhq/chainfeed/internal/stats"
	"github.com/chainfeedhq/chainfeed/internal/store/elastic"
)

// Config holds the application configuration.
type Config struct {
	Elastic  elastic.Config  `yaml:"elastic"`
	Nats     NatsConfig      `yaml:"nats"`
	Source   mongo.Config    `yaml:"source"`
	Index    index.Config    `yaml:"index"`
	Ingest   ingest.Config   `yaml:"ingest"`
	Schedule schedule.Config `yaml:"schedule"`
	Stats    stats.Config    `yaml:"stats"`
	Logging  LoggingConfig   `yaml:"logging"`
}

// NatsConfig holds the message bus connection settings.
type NatsConfig struct {
	URL string `yaml:"url"`
}

// Load reads configuration from configDir. Missing files are skipped; a file
// that exists but does not parse is an error.
func Load(configDir string) (*Config, error) {
	cfg := &Config{
		Elastic:  elastic.DefaultConfig(),
		Nats:     NatsConfig{URL: "nats://localhost:4222"},
		Source:   mongo.DefaultConfig(),
		Index:    index.DefaultConfig(),
		Ingest:   ingest.DefaultConfig(),
		Schedule: schedule.DefaultConfig(),
		Stats:    stats.DefaultConfig(),
		Logging:  DefaultLoggingConfig(),
	}

	if err := loadFile(filepath.Join(configDir, "config.yml"), cfg); err != nil {
		return nil, err
	}
	if err := loadFile(filepath.Join(configDir, "config.local.yml"), cfg); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad is Load for main functions.
func MustLoad(configDir string) *Config {
	cfg, err := Load(configDir)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	return cfg
}

func loadFile(filename string, cfg *Config) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", filename, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing %s: %w", filename, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CHAINFEED_ELASTIC_ADDRESSES"); v != "" {
		c.Elastic.Addresses = splitAndTrim(v)
	}
	if v := os.Getenv("CHAINFEED_ELASTIC_USERNAME"); v != "" {
		c.Elastic.Username = v
	}
	if v := os.Getenv("CHAINFEED_ELASTIC_PASSWORD"); v != "" {
		c.Elastic.Password = v
	}
	if v := os.Getenv("CHAINFEED_NATS_URL"); v != "" {
		c.Nats.URL = v
	}
	if v := os.Getenv("CHAINFEED_MONGO_URI"); v != "" {
		c.Source.URI = v
	}
	if v := os.Getenv("CHAINFEED_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func splitAndTrim(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the assembled configuration.
func (c *Config) Validate() error {
	if len(c.Elastic.Addresses) == 0 {
		return fmt.Errorf("elastic: at least one address is required")
	}
	if c.Nats.URL == "" {
		return fmt.Errorf("nats: url is required")
	}
	if c.Index.Name == "" {
		return fmt.Errorf("index: name is required")
	}
	if _, ok := index.Mapping(c.Index.MappingName); !ok {
		return fmt.Errorf("index: unknown mapping %q (known: %s)",
			c.Index.MappingName, strings.Join(index.MappingNames(), ", "))
	}
	if c.Ingest.StreamName == "" {
		return fmt.Errorf("ingest: stream name is required")
	}
	return c.Logging.Validate()
}
