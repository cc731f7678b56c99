package config

// Config is the umbrella configuration object that encapsulates all
// resolved settings. This is the primary object returned by Initialize()
// and used throughout the application.
type Config struct {
	configDir string // Configuration directory path (for reference)

	// LLM sidecar connection and sampling
	LLM *LLMConfig

	// Investigation engine tunables
	Engine *EngineConfig

	// Optional knowledge-base search integration
	Knowledge *KnowledgeConfig

	// HTTP API listener
	Server *ServerConfig

	// Turn executor and case leases
	Queue *QueueConfig

	// Closed-case retention
	Retention *RetentionConfig

	// Secret masking of user-supplied text
	Masking *MaskingConfig

	// Slack escalation notifications
	Slack *SlackConfig
}

// Initialize is defined in loader.go

// ConfigDir returns the configuration directory path
func (c *Config) ConfigDir() string {
	return c.configDir
}
