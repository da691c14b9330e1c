// Package clipper is the service façade: it receives clip requests
// from the extension front end over a local HTTP API, runs the image
// pipeline and the markup conversion, and hands the result to the
// publish orchestrator.
package clipper

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yult97/mowen-plugin-sub000/split"
)

// Config is the service configuration, loaded from YAML with env
// overrides applied by the caller.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	DBPath     string `yaml:"db_path"`

	APIBaseURL  string        `yaml:"api_base_url"`
	APIKey      string        `yaml:"api_key"`
	MinInterval time.Duration `yaml:"min_interval"`

	DefaultPublic        bool `yaml:"default_public"`
	DefaultIncludeImages bool `yaml:"default_include_images"`
	MaxImages            int  `yaml:"max_images"`
	CreateIndexNote      bool `yaml:"create_index_note"`
	EnableAutoTag        bool `yaml:"enable_auto_tag"`

	SplitBudget int `yaml:"split_budget"`
}

const maxImagesCeiling = 200

func (c *Config) defaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = "127.0.0.1:8787"
	}
	if c.DBPath == "" {
		c.DBPath = "data/clipper.db"
	}
	if c.MinInterval <= 0 {
		c.MinInterval = time.Second
	}
	if c.MaxImages <= 0 {
		c.MaxImages = 50
	}
	if c.MaxImages > maxImagesCeiling {
		c.MaxImages = maxImagesCeiling
	}
	if c.SplitBudget <= 0 {
		c.SplitBudget = split.DefaultBudget
	}
}

// LoadConfig reads a YAML config file. A missing path returns the
// defaults; MOWEN_API_KEY in the environment overrides the file.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{DefaultIncludeImages: true, CreateIndexNote: true}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("clipper: read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("clipper: parse config %s: %w", path, err)
		}
	}
	if key := os.Getenv("MOWEN_API_KEY"); key != "" {
		cfg.APIKey = key
	}
	cfg.defaults()
	return cfg, nil
}
