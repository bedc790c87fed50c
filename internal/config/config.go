// Package config provides layered configuration loading for the
// orchestrator: defaults, then a user config file, then a project config
// file, then environment overrides. The result is immutable once loaded —
// nothing in the core re-reads the environment at runtime.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete, immutable orchestrator configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store"`
	VectorIndex VectorIndexConfig `yaml:"vector_index"`
	Cache       CacheConfig       `yaml:"cache"`
	Sandbox     SandboxConfig     `yaml:"sandbox"`
	Tier        TierConfig        `yaml:"tier"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Runtime     RuntimeConfig     `yaml:"runtime"`
	Cost        CostConfig        `yaml:"cost"`
}

// StoreConfig configures the Durable Store (C1).
type StoreConfig struct {
	// URL is the NATS server URL (empty = use an embedded server).
	URL      string `yaml:"url"`
	Embedded bool   `yaml:"embedded"`
}

// VectorIndexConfig configures the pgvector-backed Vector Index (C2).
type VectorIndexConfig struct {
	DSN       string `yaml:"dsn"`
	VectorDim int    `yaml:"vector_dim"`
}

// CacheConfig configures the Redis-backed Pattern Cache (C3).
type CacheConfig struct {
	Addr string        `yaml:"addr"`
	TTL  time.Duration `yaml:"ttl"`
}

// SandboxConfig configures the Sandbox Pool (C4).
type SandboxConfig struct {
	MaxConcurrent int               `yaml:"max_concurrent"`
	Timeout       time.Duration     `yaml:"timeout"`
	NetworkOff    bool              `yaml:"network_off"`
	MemoryLimitMB int64             `yaml:"memory_limit_mb"`
	CPULimit      float64           `yaml:"cpu_limit"`
	Images        map[string]string `yaml:"images"`
}

// TierConfig configures the Agent Tier Router (C6).
type TierConfig struct {
	Endpoints map[string]string `yaml:"endpoints"`
}

// SchedulerConfig configures the Task Scheduler (C10).
type SchedulerConfig struct {
	BatchConcurrency int `yaml:"batch_concurrency"`
	ContextFrameCap  int `yaml:"context_frame_cap_bytes"`
}

// RuntimeConfig configures the Durable Workflow Runtime (C11).
type RuntimeConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	CancelGrace       time.Duration `yaml:"cancel_grace"`
}

// CostConfig configures the LLM Cost Accountant (C7).
type CostConfig struct {
	DefaultInputPricePerM  float64 `yaml:"default_input_price_per_m"`
	DefaultOutputPricePerM float64 `yaml:"default_output_price_per_m"`
}

// DefaultConfig returns a Config with sensible defaults, matching the
// happy-path scenario of an all-embedded, single-process deployment.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			URL:      "",
			Embedded: true,
		},
		VectorIndex: VectorIndexConfig{
			DSN:       "",
			VectorDim: 1536,
		},
		Cache: CacheConfig{
			Addr: "localhost:6379",
			TTL:  24 * time.Hour,
		},
		Sandbox: SandboxConfig{
			MaxConcurrent: 8,
			Timeout:       30 * time.Second,
			NetworkOff:    true,
			MemoryLimitMB: 512,
			CPULimit:      1.0,
			Images: map[string]string{
				"python":     "python:3.12-slim",
				"go":         "golang:1.23-alpine",
				"javascript": "node:22-slim",
				"typescript": "node:22-slim",
			},
		},
		Tier: TierConfig{
			Endpoints: map[string]string{},
		},
		Scheduler: SchedulerConfig{
			BatchConcurrency: 8,
			ContextFrameCap:  32 * 1024,
		},
		Runtime: RuntimeConfig{
			HeartbeatInterval: 30 * time.Second,
			CancelGrace:       10 * time.Second,
		},
		Cost: CostConfig{
			DefaultInputPricePerM:  3.00,
			DefaultOutputPricePerM: 15.00,
		},
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.VectorIndex.VectorDim <= 0 {
		return fmt.Errorf("vector_index.vector_dim must be positive")
	}
	if c.Sandbox.MaxConcurrent <= 0 {
		return fmt.Errorf("sandbox.max_concurrent must be positive")
	}
	if c.Scheduler.BatchConcurrency <= 0 {
		return fmt.Errorf("scheduler.batch_concurrency must be positive")
	}
	if c.Runtime.HeartbeatInterval <= 0 {
		return fmt.Errorf("runtime.heartbeat_interval must be positive")
	}
	return nil
}

// LoadFromFile loads configuration overrides from a YAML file, starting
// from defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes the configuration to path as YAML, creating parent
// directories as needed.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Merge merges other into c; non-zero fields in other take precedence.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Store.URL != "" {
		c.Store.URL = other.Store.URL
		c.Store.Embedded = false
	}

	if other.VectorIndex.DSN != "" {
		c.VectorIndex.DSN = other.VectorIndex.DSN
	}
	if other.VectorIndex.VectorDim != 0 {
		c.VectorIndex.VectorDim = other.VectorIndex.VectorDim
	}

	if other.Cache.Addr != "" {
		c.Cache.Addr = other.Cache.Addr
	}
	if other.Cache.TTL != 0 {
		c.Cache.TTL = other.Cache.TTL
	}

	if other.Sandbox.MaxConcurrent != 0 {
		c.Sandbox.MaxConcurrent = other.Sandbox.MaxConcurrent
	}
	if other.Sandbox.Timeout != 0 {
		c.Sandbox.Timeout = other.Sandbox.Timeout
	}
	if other.Sandbox.MemoryLimitMB != 0 {
		c.Sandbox.MemoryLimitMB = other.Sandbox.MemoryLimitMB
	}
	if other.Sandbox.CPULimit != 0 {
		c.Sandbox.CPULimit = other.Sandbox.CPULimit
	}
	if len(other.Sandbox.Images) > 0 {
		for k, v := range other.Sandbox.Images {
			if c.Sandbox.Images == nil {
				c.Sandbox.Images = map[string]string{}
			}
			c.Sandbox.Images[k] = v
		}
	}

	if len(other.Tier.Endpoints) > 0 {
		for k, v := range other.Tier.Endpoints {
			if c.Tier.Endpoints == nil {
				c.Tier.Endpoints = map[string]string{}
			}
			c.Tier.Endpoints[k] = v
		}
	}

	if other.Scheduler.BatchConcurrency != 0 {
		c.Scheduler.BatchConcurrency = other.Scheduler.BatchConcurrency
	}
	if other.Scheduler.ContextFrameCap != 0 {
		c.Scheduler.ContextFrameCap = other.Scheduler.ContextFrameCap
	}

	if other.Runtime.HeartbeatInterval != 0 {
		c.Runtime.HeartbeatInterval = other.Runtime.HeartbeatInterval
	}
	if other.Runtime.CancelGrace != 0 {
		c.Runtime.CancelGrace = other.Runtime.CancelGrace
	}

	if other.Cost.DefaultInputPricePerM != 0 {
		c.Cost.DefaultInputPricePerM = other.Cost.DefaultInputPricePerM
	}
	if other.Cost.DefaultOutputPricePerM != 0 {
		c.Cost.DefaultOutputPricePerM = other.Cost.DefaultOutputPricePerM
	}
}
