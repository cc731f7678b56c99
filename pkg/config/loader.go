package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// FaultMavenYAMLConfig represents the complete faultmaven.yaml file structure
type FaultMavenYAMLConfig struct {
	LLM       *LLMConfig           `yaml:"llm"`
	Engine    *EngineConfig        `yaml:"engine"`
	Knowledge *KnowledgeConfig     `yaml:"knowledge"`
	Server    *ServerConfig        `yaml:"server"`
	Queue     *QueueConfig         `yaml:"queue"`
	Retention *RetentionYAMLConfig `yaml:"retention"`
	Masking   *MaskingYAMLConfig   `yaml:"masking"`
	Slack     *SlackYAMLConfig     `yaml:"slack"`
}

// RetentionYAMLConfig holds retention settings from YAML. Enabled is a
// pointer so an explicit `enabled: false` can override the default.
type RetentionYAMLConfig struct {
	Enabled       *bool    `yaml:"enabled,omitempty"`
	PurgeAfter    Duration `yaml:"purge_after,omitempty"`
	SweepInterval Duration `yaml:"sweep_interval,omitempty"`
	EventTTL      Duration `yaml:"event_ttl,omitempty"`
}

// MaskingYAMLConfig holds secret-masking settings from YAML.
type MaskingYAMLConfig struct {
	Enabled      *bool  `yaml:"enabled,omitempty"`
	PatternGroup string `yaml:"pattern_group,omitempty"`
}

// SlackYAMLConfig holds Slack notification settings from YAML.
type SlackYAMLConfig struct {
	Enabled      *bool  `yaml:"enabled,omitempty"`
	TokenEnv     string `yaml:"token_env,omitempty"`
	Channel      string `yaml:"channel,omitempty"`
	DashboardURL string `yaml:"dashboard_url,omitempty"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load faultmaven.yaml from configDir
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Merge user values over built-in defaults
//  5. Validate all configuration
//  6. Return Config ready for use
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	// 1. Load configuration file
	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// 2. Validate all configuration
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration initialized successfully",
		"llm_endpoint", cfg.LLM.Endpoint,
		"llm_model", cfg.LLM.Model,
		"knowledge_enabled", cfg.Knowledge.Enabled(),
		"retention_enabled", cfg.Retention.Enabled,
		"slack_enabled", cfg.Slack.Enabled)

	return cfg, nil
}

// load is the internal loader (not exported)
func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{
		configDir: configDir,
	}

	// 1. Load faultmaven.yaml
	fileCfg, err := loader.loadFaultMavenYAML()
	if err != nil {
		return nil, NewLoadError("faultmaven.yaml", err)
	}

	// 2. Merge user sections over built-in defaults (non-zero values win)
	llmCfg := DefaultLLMConfig()
	if fileCfg.LLM != nil {
		if err := mergo.Merge(llmCfg, fileCfg.LLM, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge llm config: %w", err)
		}
	}

	engineCfg := DefaultEngineConfig()
	if fileCfg.Engine != nil {
		if err := mergo.Merge(engineCfg, fileCfg.Engine, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge engine config: %w", err)
		}
	}

	knowledgeCfg := DefaultKnowledgeConfig()
	if fileCfg.Knowledge != nil {
		if err := mergo.Merge(knowledgeCfg, fileCfg.Knowledge, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge knowledge config: %w", err)
		}
	}

	serverCfg := DefaultServerConfig()
	if fileCfg.Server != nil {
		if err := mergo.Merge(serverCfg, fileCfg.Server, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge server config: %w", err)
		}
	}

	queueCfg := DefaultQueueConfig()
	if fileCfg.Queue != nil {
		if err := mergo.Merge(queueCfg, fileCfg.Queue, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge queue config: %w", err)
		}
	}

	// 3. Resolve sections whose booleans need explicit-false support
	retentionCfg := resolveRetentionConfig(fileCfg.Retention)
	maskingCfg := resolveMaskingConfig(fileCfg.Masking)
	slackCfg := resolveSlackConfig(fileCfg.Slack)

	return &Config{
		configDir: configDir,
		LLM:       llmCfg,
		Engine:    engineCfg,
		Knowledge: knowledgeCfg,
		Server:    serverCfg,
		Queue:     queueCfg,
		Retention: retentionCfg,
		Masking:   maskingCfg,
		Slack:     slackCfg,
	}, nil
}

// validate performs comprehensive validation on loaded configuration
func validate(cfg *Config) error {
	validator := NewValidator(cfg)
	return validator.ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// Expand environment variables using {{.VAR}} template syntax
	// Note: ExpandEnv passes through original data on parse/execution errors,
	// allowing YAML parser to handle the content (or fail with clearer error message)
	data = ExpandEnv(data)

	// Parse YAML
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

func (l *configLoader) loadFaultMavenYAML() (*FaultMavenYAMLConfig, error) {
	var config FaultMavenYAMLConfig

	if err := l.loadYAML("faultmaven.yaml", &config); err != nil {
		return nil, err
	}

	return &config, nil
}

// resolveRetentionConfig resolves retention configuration from YAML, applying defaults.
func resolveRetentionConfig(r *RetentionYAMLConfig) *RetentionConfig {
	cfg := DefaultRetentionConfig()

	if r == nil {
		return cfg
	}

	if r.Enabled != nil {
		cfg.Enabled = *r.Enabled
	}
	if r.PurgeAfter > 0 {
		cfg.PurgeAfter = r.PurgeAfter
	}
	if r.SweepInterval > 0 {
		cfg.SweepInterval = r.SweepInterval
	}
	if r.EventTTL > 0 {
		cfg.EventTTL = r.EventTTL
	}

	return cfg
}

// resolveMaskingConfig resolves masking configuration from YAML, applying defaults.
func resolveMaskingConfig(m *MaskingYAMLConfig) *MaskingConfig {
	cfg := &MaskingConfig{
		Enabled:      true,
		PatternGroup: "security",
	}

	if m == nil {
		return cfg
	}

	if m.Enabled != nil {
		cfg.Enabled = *m.Enabled
	}
	if m.PatternGroup != "" {
		cfg.PatternGroup = m.PatternGroup
	}

	return cfg
}

// resolveSlackConfig resolves Slack configuration from YAML, applying defaults.
func resolveSlackConfig(s *SlackYAMLConfig) *SlackConfig {
	cfg := &SlackConfig{
		Enabled:  false,
		TokenEnv: "SLACK_BOT_TOKEN",
	}

	if s == nil {
		return cfg
	}

	if s.Enabled != nil {
		cfg.Enabled = *s.Enabled
	}
	if s.TokenEnv != "" {
		cfg.TokenEnv = s.TokenEnv
	}
	if s.Channel != "" {
		cfg.Channel = s.Channel
	}
	if s.DashboardURL != "" {
		cfg.DashboardURL = s.DashboardURL
	}

	return cfg
}
