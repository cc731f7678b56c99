package config

// MaskingConfig holds resolved secret-masking configuration. Masking runs
// over user-supplied case text before it is persisted or sent to the LLM.
type MaskingConfig struct {
	Enabled      bool
	PatternGroup string // Named pattern group (default: "security")
}

// SlackConfig holds resolved Slack notification configuration.
type SlackConfig struct {
	Enabled      bool
	TokenEnv     string // Env var name for Slack bot token (default: "SLACK_BOT_TOKEN")
	Channel      string // Slack channel ID (e.g., "C12345678")
	DashboardURL string // Base URL for case links in notifications
}
