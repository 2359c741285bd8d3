// Package config loads graphcore configuration from YAML with GRAPHCORE_*
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-graphcore/pkg/logging"
	"github.com/dd0wney/cluso-graphcore/pkg/storage"
	"github.com/dd0wney/cluso-graphcore/pkg/validation"
)

// Store backends.
const (
	BackendMemory  = "memory"
	BackendJournal = "journal"
	BackendBadger  = "badger"
)

// Token allocation modes.
const (
	TokensLocal   = "local"
	TokensPrimary = "primary"
	TokensReplica = "replica"
)

// Config is the full graphcore configuration.
type Config struct {
	DataDir string        `yaml:"data_dir"`
	Store   StoreConfig   `yaml:"store"`
	Cache   CacheConfig   `yaml:"cache"`
	Tokens  TokensConfig  `yaml:"tokens"`
	Logging LoggingConfig `yaml:"logging"`
}

// StoreConfig selects and tunes the backing store.
type StoreConfig struct {
	Backend    string `yaml:"backend" validate:"required,oneof=memory journal badger"`
	SyncWrites bool   `yaml:"sync_writes"`
	// InMemory runs the badger backend without touching disk.
	InMemory bool `yaml:"in_memory"`
}

// CacheConfig sizes the shared cache and the chain batch.
type CacheConfig struct {
	GrabSize             int `yaml:"grab_size" validate:"min=1,max=100000"`
	NodeCapacity         int `yaml:"node_capacity" validate:"min=1"`
	RelationshipCapacity int `yaml:"relationship_capacity" validate:"min=1"`
}

// TokensConfig selects how relationship type ids are allocated.
type TokensConfig struct {
	Mode        string        `yaml:"mode" validate:"required,oneof=local primary replica"`
	PrimaryAddr string        `yaml:"primary_addr" validate:"omitempty,sockaddr"`
	ListenAddr  string        `yaml:"listen_addr" validate:"omitempty,sockaddr"`
	Timeout     time.Duration `yaml:"timeout"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

// Default returns a configuration for a process-local in-memory graph.
func Default() *Config {
	opts := storage.DefaultOptions()
	return &Config{
		DataDir: "./data",
		Store: StoreConfig{
			Backend: BackendMemory,
		},
		Cache: CacheConfig{
			GrabSize:             opts.GrabSize,
			NodeCapacity:         opts.NodeCacheCapacity,
			RelationshipCapacity: opts.RelationshipCacheCapacity,
		},
		Tokens: TokensConfig{
			Mode:    TokensLocal,
			Timeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result. The
// environment is not consulted.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(data); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	return yaml.Unmarshal(data, c)
}

// Validate checks field constraints and cross-field requirements.
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	rules := validation.NewRules("config")
	rules.If(c.Store.Backend != BackendMemory && !c.Store.InMemory, func(r *validation.Rules) {
		r.Require("data_dir", c.DataDir)
	})
	rules.If(c.Store.InMemory, func(r *validation.Rules) {
		r.Check("store.in_memory", func() error {
			if c.Store.Backend != BackendBadger {
				return fmt.Errorf("only the badger backend has an in-memory mode")
			}
			return nil
		})
	})
	rules.If(c.Tokens.Mode == TokensReplica, func(r *validation.Rules) {
		r.Require("tokens.primary_addr", c.Tokens.PrimaryAddr)
	})
	rules.If(c.Tokens.Mode == TokensPrimary, func(r *validation.Rules) {
		r.Require("tokens.listen_addr", c.Tokens.ListenAddr)
	})
	rules.If(c.Tokens.Mode != TokensLocal, func(r *validation.Rules) {
		r.AtLeast("tokens.timeout", c.Tokens.Timeout, 10*time.Millisecond)
	})
	if err := rules.Err(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// StorePath returns the directory a file-backed store lives in.
func (c *Config) StorePath() string {
	return filepath.Join(c.DataDir, c.Store.Backend)
}

// ToStorageOptions maps the cache section onto storage options. The caller
// supplies the token allocator, logger and metrics.
func (c *Config) ToStorageOptions() storage.Options {
	opts := storage.DefaultOptions()
	opts.GrabSize = validation.DefaultOr(c.Cache.GrabSize, opts.GrabSize)
	opts.NodeCacheCapacity = validation.DefaultOr(c.Cache.NodeCapacity, opts.NodeCacheCapacity)
	opts.RelationshipCacheCapacity = validation.DefaultOr(c.Cache.RelationshipCapacity, opts.RelationshipCacheCapacity)
	return opts
}

// LoggingOptions returns the logging section as a logging.Config.
func (c *Config) LoggingOptions() logging.Config {
	return logging.Config{Level: c.Logging.Level, Format: c.Logging.Format}
}
