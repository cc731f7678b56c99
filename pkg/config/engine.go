package config

// EngineConfig groups the investigation engine tunables. Every knob has a
// built-in default; faultmaven.yaml only needs the values being changed.
type EngineConfig struct {
	Memory     *MemoryConfig     `yaml:"memory"`
	Hypothesis *HypothesisConfig `yaml:"hypothesis"`
	Anchoring  *AnchoringConfig  `yaml:"anchoring"`
	Phase      *PhaseConfig      `yaml:"phase"`
	Degraded   *DegradedConfig   `yaml:"degraded"`
	OODA       *OODAConfig       `yaml:"ooda"`
}

// MemoryConfig bounds the working-memory digest fed into prompts and the
// snapshot counts kept per recency tier.
type MemoryConfig struct {
	MaxContextTokens       int `yaml:"max_context_tokens"`
	CompressionEveryNTurns int `yaml:"compression_every_n_turns"`
	HotSnapshots           int `yaml:"hot_snapshots"`
	WarmSnapshots          int `yaml:"warm_snapshots"`
	ColdSnapshots          int `yaml:"cold_snapshots"`
}

// HypothesisConfig holds the confidence scoring thresholds.
type HypothesisConfig struct {
	ValidateThreshold float64 `yaml:"validate_threshold"`
	RefuteThreshold   float64 `yaml:"refute_threshold"`
	DecayFactor       float64 `yaml:"decay_factor"`
	DecayMinDelta     float64 `yaml:"decay_per_iter_min_delta"`

	// CategoryKeywords overrides the built-in lexicon used to infer a
	// hypothesis category from its statement. Keys are category names
	// (CODE, INFRASTRUCTURE, ...); values are lowercase keywords.
	CategoryKeywords map[string][]string `yaml:"category_keywords"`
}

// AnchoringConfig tunes anchoring-bias detection.
type AnchoringConfig struct {
	// SameCategoryLimit is the number of active same-category hypotheses
	// that triggers a diversity intervention.
	SameCategoryLimit int `yaml:"same_category_limit"`

	// StagnationIterations is how many iterations a lead hypothesis may
	// sit without new evidence before it counts as stagnant.
	StagnationIterations int `yaml:"stagnation_iterations"`
}

// PhaseConfig tunes phase progression.
type PhaseConfig struct {
	// LoopbackMax is the loop-back budget per case. Once spent, further
	// loop-backs are suppressed and the case asks for escalation.
	LoopbackMax int `yaml:"loopback_max"`
}

// DegradedConfig tunes degraded-mode entry.
type DegradedConfig struct {
	// TurnsThreshold is how many consecutive no-progress turns put an
	// investigation into degraded mode.
	TurnsThreshold int `yaml:"turns_threshold"`
}

// OODAConfig optionally overrides the built-in analysis intensity table.
// Keys are phase names; values are the [early, mid, late] intensity bands
// ("none", "light", "medium", "full"). Phases not listed keep their
// built-in bands.
type OODAConfig struct {
	IntensityTable map[string][]string `yaml:"intensity_table"`
}

// DefaultEngineConfig returns the built-in engine defaults.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		Memory: &MemoryConfig{
			MaxContextTokens:       1600,
			CompressionEveryNTurns: 3,
			HotSnapshots:           3,
			WarmSnapshots:          5,
			ColdSnapshots:          10,
		},
		Hypothesis: &HypothesisConfig{
			ValidateThreshold: 0.70,
			RefuteThreshold:   0.20,
			DecayFactor:       0.85,
			DecayMinDelta:     0.05,
		},
		Anchoring: &AnchoringConfig{
			SameCategoryLimit:    4,
			StagnationIterations: 3,
		},
		Phase:    &PhaseConfig{LoopbackMax: 3},
		Degraded: &DegradedConfig{TurnsThreshold: 3},
		OODA:     &OODAConfig{},
	}
}
