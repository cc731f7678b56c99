package config

import "time"

// KnowledgeConfig controls the optional knowledge-base search integration.
// An empty endpoint disables knowledge lookups entirely; the engine then
// builds prompts without a knowledge section.
type KnowledgeConfig struct {
	// Endpoint is the base URL of the knowledge search service.
	Endpoint string `yaml:"endpoint"`

	// APIKeyEnv names the environment variable holding the service API
	// key. Empty means unauthenticated.
	APIKeyEnv string `yaml:"api_key_env"`

	// TopK is how many hits are requested per search.
	TopK int `yaml:"top_k"`

	// CacheTTL is how long search results are served from cache.
	CacheTTL Duration `yaml:"cache_ttl"`

	// Timeout bounds each search call.
	Timeout Duration `yaml:"timeout"`
}

// DefaultKnowledgeConfig returns the built-in knowledge defaults
// (disabled until an endpoint is configured).
func DefaultKnowledgeConfig() *KnowledgeConfig {
	return &KnowledgeConfig{
		APIKeyEnv: "KNOWLEDGE_API_KEY",
		TopK:      3,
		CacheTTL:  Duration(60 * time.Second),
		Timeout:   Duration(10 * time.Second),
	}
}

// Enabled reports whether an endpoint is configured.
func (k *KnowledgeConfig) Enabled() bool {
	return k != nil && k.Endpoint != ""
}
