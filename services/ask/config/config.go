// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the service configuration: embedded YAML defaults,
// an optional overlay file, environment overrides and validation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianAsk/services/ask/evidence"
	"github.com/AleutianAI/AleutianAsk/services/ask/keywords"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// EnvConfigPath names the overlay file when no path is given explicitly.
const EnvConfigPath = "ASK_CONFIG"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Planner   PlannerConfig   `yaml:"planner"`
	Executor  ExecutorConfig  `yaml:"executor"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Keywords  keywords.Config `yaml:"keywords"`
	Compose   ComposeConfig   `yaml:"compose"`
	Evidence  EvidenceConfig  `yaml:"evidence"`
	Synthesis SynthesisConfig `yaml:"synthesis"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Tools     ToolsConfig     `yaml:"tools"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Addr              string        `yaml:"addr" validate:"required"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" validate:"gt=0"`
}

type PlannerConfig struct {
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

type ExecutorConfig struct {
	MaxParallel int           `yaml:"max_parallel" validate:"gte=0"`
	StepTimeout time.Duration `yaml:"step_timeout" validate:"gte=0"`
	CyclePolicy string        `yaml:"cycle_policy" validate:"oneof=best_effort reject"`
}

type ArtifactsConfig struct {
	Timeout    time.Duration `yaml:"timeout" validate:"gt=0"`
	MaxEntries int           `yaml:"max_entries" validate:"gt=0"`

	// StorePath enables the persistent embedding store when set.
	StorePath string        `yaml:"store_path"`
	StoreTTL  time.Duration `yaml:"store_ttl" validate:"gte=0"`
}

type ComposeConfig struct {
	ExclusionSuffix string   `yaml:"exclusion_suffix"`
	MetricKeywords  []string `yaml:"metric_keywords"`
}

type EvidenceConfig struct {
	Planned evidence.Budget `yaml:"planned"`
	Direct  evidence.Budget `yaml:"direct"`
}

// Budgets returns the per-mode budgets keyed by mode name.
func (e EvidenceConfig) Budgets() map[string]evidence.Budget {
	return map[string]evidence.Budget{
		evidence.ModePlanned: e.Planned,
		evidence.ModeDirect:  e.Direct,
	}
}

type SynthesisConfig struct {
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

type LLMConfig struct {
	// Provider is openai, anthropic, langchain-openai, langchain-ollama or none.
	Provider    string        `yaml:"provider" validate:"oneof=openai anthropic langchain-openai langchain-ollama none"`
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url" validate:"omitempty,url"`
	Timeout     time.Duration `yaml:"timeout" validate:"gt=0"`
	Temperature float32       `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int           `yaml:"max_tokens" validate:"gte=0"`
}

type EmbeddingConfig struct {
	URL               string        `yaml:"url" validate:"omitempty,url"`
	Model             string        `yaml:"model"`
	Timeout           time.Duration `yaml:"timeout" validate:"gt=0"`
	ChunkMaxWords     int           `yaml:"chunk_max_words" validate:"gt=0"`
	ChunkOverlapWords int           `yaml:"chunk_overlap_words" validate:"gte=0,ltfield=ChunkMaxWords"`
}

type ToolsConfig struct {
	HTTPTimeout time.Duration   `yaml:"http_timeout" validate:"gt=0"`
	Slack       SlackConfig     `yaml:"slack"`
	Docs        DocsConfig      `yaml:"docs"`
	Community   CommunityConfig `yaml:"community"`
	Typesense   TypesenseConfig `yaml:"typesense"`
	MCP         MCPConfig       `yaml:"mcp"`
	Fathom      FathomConfig    `yaml:"fathom"`
}

type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BaseURL    string `yaml:"base_url" validate:"omitempty,url"`
	MaxQueries int    `yaml:"max_queries" validate:"gt=0"`
	PerQuery   int    `yaml:"per_query" validate:"gt=0,lte=100"`
}

type DocsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	IndexPath string `yaml:"index_path"`
	BaseURL   string `yaml:"base_url" validate:"omitempty,url"`
	TopK      int    `yaml:"top_k" validate:"gt=0"`
}

type CommunityConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Scheme  string `yaml:"scheme" validate:"oneof=http https"`
	Class   string `yaml:"class" validate:"required"`
	TopK    int    `yaml:"top_k" validate:"gt=0"`
}

type TypesenseConfig struct {
	Enabled      bool   `yaml:"enabled"`
	URL          string `yaml:"url" validate:"omitempty,url"`
	Collection   string `yaml:"collection" validate:"required"`
	MaxResults   int    `yaml:"max_results" validate:"gt=0"`
	FetchLive    bool   `yaml:"fetch_live"`
	MaxPageChars int    `yaml:"max_page_chars" validate:"gt=0"`
}

type MCPConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url" validate:"omitempty,url"`
	ModelID string `yaml:"model_id"`
}

type FathomConfig struct {
	Enabled           bool    `yaml:"enabled"`
	BaseURL           string  `yaml:"base_url" validate:"omitempty,url"`
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gt=0"`
	MaxRetries        int     `yaml:"max_retries" validate:"gte=0,lte=10"`
	MaxPages          int     `yaml:"max_pages" validate:"gt=0"`
}

type TelemetryConfig struct {
	Exporter     string `yaml:"exporter" validate:"oneof=none stdout otlp"`
	OTLPEndpoint string `yaml:"otlp_endpoint" validate:"required_if=Exporter otlp"`
	ServiceName  string `yaml:"service_name" validate:"required"`
}

// =============================================================================
// Loading
// =============================================================================

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

// Defaults returns the embedded defaults.
func Defaults() (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse defaults: %w", err)
	}
	return &cfg, nil
}

// Load builds the configuration from the process environment.
//
// # Description
//
// Starts from the embedded defaults, overlays path (or $ASK_CONFIG when path
// is empty) if set, applies environment overrides and validates.
//
// # Outputs
//
//   - *Config: The validated configuration.
//   - error: Parse or read errors, or an error wrapping ErrInvalid.
func Load(path string) (*Config, error) {
	return LoadWith(path, os.LookupEnv)
}

// LoadWith is Load with an explicit environment.
func LoadWith(path string, lookup LookupFunc) (*Config, error) {
	cfg, err := Defaults()
	if err != nil {
		return nil, err
	}
	if path == "" {
		path, _ = lookup(EnvConfigPath)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := ApplyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envOverrides maps environment variables onto string fields.
var envOverrides = []struct {
	key   string
	field func(*Config) *string
}{
	{"ASK_ADDR", func(c *Config) *string { return &c.Server.Addr }},
	{"LLM_PROVIDER", func(c *Config) *string { return &c.LLM.Provider }},
	{"LLM_MODEL", func(c *Config) *string { return &c.LLM.Model }},
	{"LLM_BASE_URL", func(c *Config) *string { return &c.LLM.BaseURL }},
	{"EMBEDDING_SERVICE_URL", func(c *Config) *string { return &c.Embedding.URL }},
	{"EMBEDDING_MODEL", func(c *Config) *string { return &c.Embedding.Model }},
	{"ASK_ARTIFACT_STORE", func(c *Config) *string { return &c.Artifacts.StorePath }},
	{"SLACK_API_URL", func(c *Config) *string { return &c.Tools.Slack.BaseURL }},
	{"DOCS_INDEX_PATH", func(c *Config) *string { return &c.Tools.Docs.IndexPath }},
	{"WEAVIATE_HOST", func(c *Config) *string { return &c.Tools.Community.Host }},
	{"WEAVIATE_SCHEME", func(c *Config) *string { return &c.Tools.Community.Scheme }},
	{"TYPESENSE_URL", func(c *Config) *string { return &c.Tools.Typesense.URL }},
	{"MCP_URL", func(c *Config) *string { return &c.Tools.MCP.URL }},
	{"OMNI_MODEL_ID", func(c *Config) *string { return &c.Tools.MCP.ModelID }},
	{"FATHOM_BASE_URL", func(c *Config) *string { return &c.Tools.Fathom.BaseURL }},
	{"ASK_TELEMETRY_EXPORTER", func(c *Config) *string { return &c.Telemetry.Exporter }},
	{"OTEL_EXPORTER_OTLP_ENDPOINT", func(c *Config) *string { return &c.Telemetry.OTLPEndpoint }},
	{"OTEL_SERVICE_NAME", func(c *Config) *string { return &c.Telemetry.ServiceName }},
}

// ApplyEnv overrides endpoints, models and a few knobs from the environment.
// Empty variables are ignored.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	for _, o := range envOverrides {
		if v, ok := lookup(o.key); ok && v != "" {
			*o.field(cfg) = v
		}
	}
	if v, ok := lookup("ASK_MAX_PARALLEL"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: ASK_MAX_PARALLEL: %v", ErrInvalid, err)
		}
		cfg.Executor.MaxParallel = n
	}
	if v, ok := lookup("ASK_STEP_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: ASK_STEP_TIMEOUT: %v", ErrInvalid, err)
		}
		cfg.Executor.StepTimeout = d
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks cfg. The returned error wraps ErrInvalid.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("%w: %s failed %q (%d problems)", ErrInvalid, f.Namespace(), f.Tag(), len(verrs))
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := keywords.NewExtractor(cfg.Keywords); err != nil {
		return fmt.Errorf("%w: keywords: %v", ErrInvalid, err)
	}
	return nil
}
