// Package common provides shared utilities for coursegen.
package common

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bobmcallan/coursegen/internal/interfaces"
	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for the coursegen service.
type Config struct {
	Environment string          `toml:"environment"`
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Clients     ClientsConfig   `toml:"clients"`
	Queue       QueueConfig     `toml:"queue"`
	Refinement  RefinementConfig `toml:"refinement"`
	Logging     LoggingConfig   `toml:"logging"`
}

// ServerConfig holds the optional status-endpoint HTTP configuration.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig selects and configures the metadata store backend (C9).
type StorageConfig struct {
	Backend  string         `toml:"backend"` // "badger" (dev/test) or "surrealdb" (production)
	Badger   BadgerConfig   `toml:"badger"`
	Surreal  SurrealConfig  `toml:"surrealdb"`
}

// BadgerConfig holds the embedded dev/test backend path.
type BadgerConfig struct {
	Path string `toml:"path"`
}

// SurrealConfig holds the production metadata-store connection.
type SurrealConfig struct {
	Endpoint  string `toml:"endpoint"`
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
}

// ClientsConfig holds external-collaborator client configurations.
type ClientsConfig struct {
	LLMGateway  LLMGatewayConfig  `toml:"llm_gateway"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
}

// LLMGatewayConfig configures C4's escalation ladder.
type LLMGatewayConfig struct {
	PrimaryModel   string `toml:"primary_model"`
	FallbackModel  string `toml:"fallback_model"`
	EmergencyModel string `toml:"emergency_model"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`         // OpenRouter-style HTTP base for fallback/emergency
	Timeout        string `toml:"timeout"`
	MaxTokensPerCall int  `toml:"max_tokens_per_call"`
}

// GetTimeout parses and returns the per-call timeout duration.
func (c *LLMGatewayConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// VectorStoreConfig configures C5's external vector-store collaborator.
type VectorStoreConfig struct {
	BaseURL string `toml:"base_url"`
	Timeout string `toml:"timeout"`
}

// GetTimeout parses and returns the vector-store call timeout duration.
func (c *VectorStoreConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// QueueConfig configures C1.
type QueueConfig struct {
	WorkerPoolSize   int            `toml:"worker_pool_size"`
	MaxAttempts      map[string]int `toml:"max_attempts"` // keyed by JobType wire name
	BackoffBaseMs    int            `toml:"backoff_base_ms"`
	BackoffMaxMs     int            `toml:"backoff_max_ms"`
	HeavyJobConcurrency int         `toml:"heavy_job_concurrency"`
}

// MaxAttemptsFor returns the configured cap for a job type, or the
// spec-default if unset.
func (c *QueueConfig) MaxAttemptsFor(jobType string, fallback int) int {
	if c.MaxAttempts == nil {
		return fallback
	}
	if v, ok := c.MaxAttempts[jobType]; ok && v > 0 {
		return v
	}
	return fallback
}

// RefinementConfig configures Stage 6's judge/router/batcher.
type RefinementConfig struct {
	MaxIterations         int             `toml:"max_iterations"`
	MaxConcurrentPatchers int             `toml:"max_concurrent_patchers"`
	AdjacentSectionGap    int             `toml:"adjacent_section_gap"`
	AcceptanceThreshold   float64         `toml:"acceptance_threshold"`
	TokenCosts            TokenCostConfig `toml:"token_costs"`
}

// TokenCostConfig holds the estimated token-cost bands per executor.
type TokenCostConfig struct {
	Patcher         CostBand `toml:"patcher"`
	SectionExpander CostBand `toml:"section_expander"`
	FullRegenerate  CostBand `toml:"full_regenerate"`
}

// CostBand is a [min, max] estimated token-cost range.
type CostBand struct {
	Min int `toml:"min"`
	Max int `toml:"max"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	FilePath   string `toml:"file_path"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

// NewDefaultConfig returns a Config with sensible defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			Backend: "badger",
			Badger:  BadgerConfig{Path: "data/coursegen"},
			Surreal: SurrealConfig{
				Endpoint:  "ws://localhost:8000/rpc",
				Namespace: "coursegen",
				Database:  "coursegen",
			},
		},
		Clients: ClientsConfig{
			LLMGateway: LLMGatewayConfig{
				PrimaryModel:     "gemini-2.0-flash",
				FallbackModel:    "openrouter/anthropic/claude-3.5-sonnet",
				EmergencyModel:   "openrouter/openai/gpt-4o-mini",
				BaseURL:          "https://openrouter.ai/api/v1",
				Timeout:          "60s",
				MaxTokensPerCall: 16000,
			},
			VectorStore: VectorStoreConfig{
				Timeout: "10s",
			},
		},
		Queue: QueueConfig{
			WorkerPoolSize: 5,
			MaxAttempts: map[string]int{
				"DOCUMENT_UPLOAD":       3,
				"DOCUMENT_PROCESSING":   3,
				"SUMMARIZATION":        3,
				"STRUCTURE_ANALYSIS":   3,
				"STRUCTURE_GENERATION": 3,
				"LESSON_CONTENT":       2,
			},
			BackoffBaseMs:       1000,
			BackoffMaxMs:        60000,
			HeavyJobConcurrency: 2,
		},
		Refinement: RefinementConfig{
			MaxIterations:         2,
			MaxConcurrentPatchers: 3,
			AdjacentSectionGap:    1,
			AcceptanceThreshold:   0.75,
			TokenCosts: TokenCostConfig{
				Patcher:         CostBand{Min: 200, Max: 800},
				SectionExpander: CostBand{Min: 800, Max: 2500},
				FullRegenerate:  CostBand{Min: 2500, Max: 6000},
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			FilePath:   "./logs/coursegen.log",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
	}
}

// LoadConfig loads configuration from files with environment overrides.
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("COURSEGEN_ENV"); env != "" {
		config.Environment = env
	}
	if host := os.Getenv("COURSEGEN_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("COURSEGEN_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if level := os.Getenv("COURSEGEN_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if path := os.Getenv("COURSEGEN_DATA_PATH"); path != "" {
		config.Storage.Badger.Path = filepath.Join(path, "coursegen")
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		config.Clients.LLMGateway.APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		config.Clients.LLMGateway.BaseURL = v
	}
	if v := os.Getenv("VECTOR_URL"); v != "" {
		config.Clients.VectorStore.BaseURL = v
	}
	if v := os.Getenv("MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			for k := range config.Queue.MaxAttempts {
				config.Queue.MaxAttempts[k] = n
			}
		}
	}
	if v := os.Getenv("REFINEMENT_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Refinement.MaxIterations = n
		}
	}
	if v := os.Getenv("REFINEMENT_MAX_CONCURRENT_PATCHERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Refinement.MaxConcurrentPatchers = n
		}
	}
	if v := os.Getenv("REFINEMENT_ADJACENT_SECTION_GAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Refinement.AdjacentSectionGap = n
		}
	}
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// ResolveAPIKey resolves a secret from environment, the metadata store's
// internal KV, or a config-file fallback, in that priority order.
func ResolveAPIKey(ctx context.Context, store interfaces.InternalKVStore, name string, fallback string) (string, error) {
	keyToEnvMapping := map[string][]string{
		"llm_api_key": {"LLM_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"},
	}

	if envVarNames, ok := keyToEnvMapping[name]; ok {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	if store != nil {
		apiKey, err := store.GetSystemKV(ctx, name)
		if err == nil && apiKey != "" {
			return apiKey, nil
		}
	}

	if fallback != "" {
		return fallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment or store", name)
}
