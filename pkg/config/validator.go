package config

import (
	"fmt"

	"github.com/faultmaven/faultmaven/pkg/engine/state"
)

// ConfigValidator validates configuration comprehensively with clear error messages
type ConfigValidator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration
func NewValidator(cfg *Config) *ConfigValidator {
	return &ConfigValidator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast - stops at first error)
func (v *ConfigValidator) ValidateAll() error {
	if err := v.validateLLM(); err != nil {
		return fmt.Errorf("llm validation failed: %w", err)
	}

	if err := v.validateEngine(); err != nil {
		return fmt.Errorf("engine validation failed: %w", err)
	}

	if err := v.validateKnowledge(); err != nil {
		return fmt.Errorf("knowledge validation failed: %w", err)
	}

	if err := v.validateServer(); err != nil {
		return fmt.Errorf("server validation failed: %w", err)
	}

	if err := v.validateQueue(); err != nil {
		return fmt.Errorf("queue validation failed: %w", err)
	}

	if err := v.validateRetention(); err != nil {
		return fmt.Errorf("retention validation failed: %w", err)
	}

	if err := v.validateSlack(); err != nil {
		return fmt.Errorf("slack validation failed: %w", err)
	}

	return nil
}

func (v *ConfigValidator) validateLLM() error {
	llm := v.cfg.LLM

	if llm.Endpoint == "" {
		return NewValidationError("llm", "endpoint", fmt.Errorf("endpoint is required"))
	}
	if llm.Model == "" {
		return NewValidationError("llm", "model", fmt.Errorf("model is required"))
	}
	if llm.TimeoutSeconds <= 0 {
		return NewValidationError("llm", "timeout_seconds", fmt.Errorf("must be positive, got %d", llm.TimeoutSeconds))
	}
	if llm.Temperature < 0 || llm.Temperature > 2 {
		return NewValidationError("llm", "temperature", fmt.Errorf("must be between 0 and 2, got %v", llm.Temperature))
	}
	for phase, temp := range llm.TemperatureByPhase {
		if !state.Phase(phase).IsValid() {
			return NewValidationError("llm", "temperature_by_phase", fmt.Errorf("unknown phase %q", phase))
		}
		if temp < 0 || temp > 2 {
			return NewValidationError("llm", "temperature_by_phase", fmt.Errorf("%s: must be between 0 and 2, got %v", phase, temp))
		}
	}

	return nil
}

func (v *ConfigValidator) validateEngine() error {
	eng := v.cfg.Engine

	mem := eng.Memory
	if mem.MaxContextTokens <= 0 {
		return NewValidationError("engine", "memory.max_context_tokens", fmt.Errorf("must be positive, got %d", mem.MaxContextTokens))
	}
	if mem.CompressionEveryNTurns <= 0 {
		return NewValidationError("engine", "memory.compression_every_n_turns", fmt.Errorf("must be positive, got %d", mem.CompressionEveryNTurns))
	}
	if mem.HotSnapshots <= 0 || mem.WarmSnapshots <= 0 || mem.ColdSnapshots <= 0 {
		return NewValidationError("engine", "memory", fmt.Errorf("snapshot counts must be positive"))
	}

	hyp := eng.Hypothesis
	if hyp.ValidateThreshold <= 0 || hyp.ValidateThreshold > 1 {
		return NewValidationError("engine", "hypothesis.validate_threshold", fmt.Errorf("must be in (0, 1], got %v", hyp.ValidateThreshold))
	}
	if hyp.RefuteThreshold < 0 || hyp.RefuteThreshold >= 1 {
		return NewValidationError("engine", "hypothesis.refute_threshold", fmt.Errorf("must be in [0, 1), got %v", hyp.RefuteThreshold))
	}
	if hyp.RefuteThreshold >= hyp.ValidateThreshold {
		return NewValidationError("engine", "hypothesis.refute_threshold", fmt.Errorf("must be below validate_threshold"))
	}
	if hyp.DecayFactor <= 0 || hyp.DecayFactor > 1 {
		return NewValidationError("engine", "hypothesis.decay_factor", fmt.Errorf("must be in (0, 1], got %v", hyp.DecayFactor))
	}
	if hyp.DecayMinDelta < 0 {
		return NewValidationError("engine", "hypothesis.decay_per_iter_min_delta", fmt.Errorf("must be non-negative, got %v", hyp.DecayMinDelta))
	}
	for category := range hyp.CategoryKeywords {
		if !state.HypothesisCategory(category).IsValid() {
			return NewValidationError("engine", "hypothesis.category_keywords", fmt.Errorf("unknown category %q", category))
		}
	}

	anch := eng.Anchoring
	if anch.SameCategoryLimit <= 0 {
		return NewValidationError("engine", "anchoring.same_category_limit", fmt.Errorf("must be positive, got %d", anch.SameCategoryLimit))
	}
	if anch.StagnationIterations <= 0 {
		return NewValidationError("engine", "anchoring.stagnation_iterations", fmt.Errorf("must be positive, got %d", anch.StagnationIterations))
	}

	if eng.Phase.LoopbackMax < 0 {
		return NewValidationError("engine", "phase.loopback_max", fmt.Errorf("must be non-negative, got %d", eng.Phase.LoopbackMax))
	}
	if eng.Degraded.TurnsThreshold <= 0 {
		return NewValidationError("engine", "degraded.turns_threshold", fmt.Errorf("must be positive, got %d", eng.Degraded.TurnsThreshold))
	}

	for phase, bands := range eng.OODA.IntensityTable {
		if !state.Phase(phase).IsValid() {
			return NewValidationError("engine", "ooda.intensity_table", fmt.Errorf("unknown phase %q", phase))
		}
		if len(bands) != 3 {
			return NewValidationError("engine", "ooda.intensity_table", fmt.Errorf("%s: expected 3 intensity bands, got %d", phase, len(bands)))
		}
		for _, band := range bands {
			if !state.Intensity(band).IsValid() {
				return NewValidationError("engine", "ooda.intensity_table", fmt.Errorf("%s: unknown intensity %q", phase, band))
			}
		}
	}

	return nil
}

func (v *ConfigValidator) validateKnowledge() error {
	know := v.cfg.Knowledge

	// Empty endpoint means the integration is disabled; nothing to check.
	if know.Endpoint == "" {
		return nil
	}

	if know.TopK <= 0 {
		return NewValidationError("knowledge", "top_k", fmt.Errorf("must be positive, got %d", know.TopK))
	}
	if know.Timeout <= 0 {
		return NewValidationError("knowledge", "timeout", fmt.Errorf("must be positive, got %s", know.Timeout))
	}
	if know.CacheTTL < 0 {
		return NewValidationError("knowledge", "cache_ttl", fmt.Errorf("must be non-negative, got %s", know.CacheTTL))
	}

	return nil
}

func (v *ConfigValidator) validateServer() error {
	srv := v.cfg.Server

	if srv.Host == "" {
		return NewValidationError("server", "host", fmt.Errorf("host is required"))
	}
	if srv.Port < 1 || srv.Port > 65535 {
		return NewValidationError("server", "port", fmt.Errorf("must be between 1 and 65535, got %d", srv.Port))
	}

	return nil
}

func (v *ConfigValidator) validateQueue() error {
	q := v.cfg.Queue

	if q.MaxConcurrentTurns <= 0 {
		return NewValidationError("queue", "max_concurrent_turns", fmt.Errorf("must be positive, got %d", q.MaxConcurrentTurns))
	}
	if q.LeaseTTL <= 0 {
		return NewValidationError("queue", "lease_ttl", fmt.Errorf("must be positive, got %s", q.LeaseTTL))
	}
	if q.HeartbeatInterval <= 0 {
		return NewValidationError("queue", "heartbeat_interval", fmt.Errorf("must be positive, got %s", q.HeartbeatInterval))
	}
	if q.HeartbeatInterval >= q.LeaseTTL {
		return NewValidationError("queue", "heartbeat_interval", fmt.Errorf("must be less than lease_ttl (%s >= %s)", q.HeartbeatInterval, q.LeaseTTL))
	}
	if q.OrphanSweepInterval <= 0 {
		return NewValidationError("queue", "orphan_sweep_interval", fmt.Errorf("must be positive, got %s", q.OrphanSweepInterval))
	}
	if q.TurnTimeout <= 0 {
		return NewValidationError("queue", "turn_timeout", fmt.Errorf("must be positive, got %s", q.TurnTimeout))
	}
	if q.GracefulShutdownTimeout <= 0 {
		return NewValidationError("queue", "graceful_shutdown_timeout", fmt.Errorf("must be positive, got %s", q.GracefulShutdownTimeout))
	}

	return nil
}

func (v *ConfigValidator) validateRetention() error {
	r := v.cfg.Retention

	if !r.Enabled {
		return nil
	}

	if r.PurgeAfter <= 0 {
		return NewValidationError("retention", "purge_after", fmt.Errorf("must be positive, got %s", r.PurgeAfter))
	}
	if r.SweepInterval <= 0 {
		return NewValidationError("retention", "sweep_interval", fmt.Errorf("must be positive, got %s", r.SweepInterval))
	}
	if r.EventTTL <= 0 {
		return NewValidationError("retention", "event_ttl", fmt.Errorf("must be positive, got %s", r.EventTTL))
	}

	return nil
}

func (v *ConfigValidator) validateSlack() error {
	s := v.cfg.Slack

	if !s.Enabled {
		return nil
	}

	if s.TokenEnv == "" {
		return NewValidationError("slack", "token_env", fmt.Errorf("token_env is required when slack is enabled"))
	}
	if s.Channel == "" {
		return NewValidationError("slack", "channel", fmt.Errorf("channel is required when slack is enabled"))
	}

	return nil
}
