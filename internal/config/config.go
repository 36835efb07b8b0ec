// Package config loads AgentConfig, the top-level configuration for
// cmd/agentd, from a YAML file with environment variable expansion and
// a small set of LLAMA_AGENT_* overrides.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/llama-agent/internal/agent"
	"github.com/haasonsaas/llama-agent/internal/mcp"
	"github.com/haasonsaas/llama-agent/internal/model"
	"github.com/haasonsaas/llama-agent/internal/queue"
	"github.com/haasonsaas/llama-agent/internal/session"
)

// AgentConfig is the full configuration for one agentd process: the
// model to load, the queue and session store sizing, the MCP servers
// to connect, and the orchestrator's own tuning.
type AgentConfig struct {
	Server  ServerConfig   `yaml:"server"`
	Logging LoggingConfig  `yaml:"logging"`
	Tracing TracingConfig  `yaml:"tracing"`
	Model   model.Config   `yaml:"model"`
	Queue   queue.Config   `yaml:"queue"`
	Session session.Config `yaml:"session"`
	MCP     mcp.Config     `yaml:"mcp"`
	Agent   agent.Config   `yaml:"agent"`
}

// ServerConfig configures agentd's own listeners.
type ServerConfig struct {
	Host        string `yaml:"host"`
	HTTPPort    int    `yaml:"http_port"`
	MetricsPort int    `yaml:"metrics_port"`
}

// LoggingConfig configures the process-wide slog handler.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// TracingConfig configures the tracer provider's service name.
type TracingConfig struct {
	ServiceName string `yaml:"service_name"`
}

// DefaultAgentConfig returns the zero-value config after defaults are
// applied, useful for tests and `agentd` subcommands that don't read a
// file.
func DefaultAgentConfig() AgentConfig {
	cfg := AgentConfig{}
	applyDefaults(&cfg)
	return cfg
}

// Load reads path, expands ${VAR} references against the process
// environment, strictly decodes it onto AgentConfig (unknown keys are
// an error), applies LLAMA_AGENT_* overrides and defaults, and
// validates the result.
func Load(path string) (*AgentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg AgentConfig
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("parse config: expected a single YAML document")
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides applies the three documented LLAMA_AGENT_*
// environment overrides, taking precedence over whatever the file set.
func applyEnvOverrides(cfg *AgentConfig) {
	if v := strings.TrimSpace(os.Getenv("LLAMA_AGENT_CACHE_DIR")); v != "" {
		cfg.Model.CacheDir = v
	}
	if v := strings.TrimSpace(os.Getenv("LLAMA_AGENT_CACHE_MAX_SIZE")); v != "" {
		if gb, err := strconv.ParseFloat(v, 64); err == nil && gb > 0 {
			cfg.Model.CacheMaxSizeGB = gb
		}
	}
	if v := strings.TrimSpace(os.Getenv("LLAMA_AGENT_LOG_LEVEL")); v != "" {
		cfg.Logging.Level = v
	}
}

func applyDefaults(cfg *AgentConfig) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 9090
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "llama-agent"
	}
	// Queue, Session, MCP, and Agent each apply their own defaults
	// lazily in their constructors (queue.New, session.NewMemoryStore,
	// agent.New); AgentConfig only needs to fill the cross-cutting link
	// between the loaded model and the orchestrator's template family
	// detection.
	if cfg.Agent.ModelSource == "" {
		cfg.Agent.ModelSource = cfg.Model.Source.String()
	}
}

func validate(cfg *AgentConfig) error {
	var issues []string

	switch cfg.Model.Source.Kind {
	case "", "huggingface", "local":
	default:
		issues = append(issues, fmt.Sprintf("model.source.kind must be \"huggingface\" or \"local\", got %q", cfg.Model.Source.Kind))
	}
	if cfg.Model.Source.Kind == "huggingface" && cfg.Model.Source.Repo == "" {
		issues = append(issues, "model.source.repo is required when model.source.kind is \"huggingface\"")
	}
	if cfg.Model.Source.Kind == "local" && cfg.Model.Source.Folder == "" {
		issues = append(issues, "model.source.folder is required when model.source.kind is \"local\"")
	}

	if cfg.Server.HTTPPort < 0 || cfg.Server.HTTPPort > 65535 {
		issues = append(issues, fmt.Sprintf("server.http_port out of range: %d", cfg.Server.HTTPPort))
	}
	if cfg.Server.MetricsPort < 0 || cfg.Server.MetricsPort > 65535 {
		issues = append(issues, fmt.Sprintf("server.metrics_port out of range: %d", cfg.Server.MetricsPort))
	}

	for _, sc := range cfg.MCP.Servers {
		if strings.TrimSpace(sc.Name) == "" {
			issues = append(issues, "mcp.servers entries must set name")
		}
		if strings.TrimSpace(sc.Command) == "" {
			issues = append(issues, fmt.Sprintf("mcp server %q must set command", sc.Name))
		}
	}

	if len(issues) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(issues, "\n  - "))
	}
	return nil
}
