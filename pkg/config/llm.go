package config

// LLMConfig controls the connection to the LLM sidecar and the sampling
// parameters sent with each request.
type LLMConfig struct {
	// Endpoint is the host:port of the sidecar gRPC service.
	Endpoint string `yaml:"endpoint"`

	// Model is the model identifier passed through to the sidecar.
	Model string `yaml:"model"`

	// TimeoutSeconds bounds each LLM call end to end.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// Temperature is the default sampling temperature.
	Temperature float32 `yaml:"temperature"`

	// TemperatureByPhase overrides Temperature for specific investigation
	// phases (keys are phase names such as VALIDATION). Entries merge over
	// the built-in defaults rather than replacing them.
	TemperatureByPhase map[string]float32 `yaml:"temperature_by_phase"`
}

// DefaultLLMConfig returns the built-in LLM defaults. VALIDATION runs
// cooler than the other phases so evidence assessments stay conservative.
func DefaultLLMConfig() *LLMConfig {
	return &LLMConfig{
		Endpoint:       "localhost:50051",
		Model:          "gpt-4o",
		TimeoutSeconds: 60,
		Temperature:    0.7,
		TemperatureByPhase: map[string]float32{
			"VALIDATION": 0.2,
		},
	}
}
