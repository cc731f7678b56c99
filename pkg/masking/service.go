// Package masking scrubs secrets from user-submitted text before it is
// persisted or forwarded to the LLM provider. Masking is pattern-based
// (compiled regexes grouped by concern) and fail-open: content that
// cannot be masked is passed through rather than dropped, since user
// messages are the primary investigation record.
package masking

import (
	"log/slog"

	"github.com/faultmaven/faultmaven/pkg/config"
)

// Service applies the configured pattern group to user content.
// Created once at application startup. Thread-safe and stateless
// aside from compiled patterns.
type Service struct {
	enabled  bool
	group    string
	patterns []*CompiledPattern
}

// NewService creates a masking service with eagerly compiled patterns.
// A nil config disables masking.
func NewService(cfg *config.MaskingConfig) *Service {
	s := &Service{}
	if cfg != nil {
		s.enabled = cfg.Enabled
		s.group = cfg.PatternGroup
	}
	if s.enabled {
		s.patterns = compileGroup(s.group)
	}

	slog.Info("Masking service initialized",
		"enabled", s.enabled,
		"pattern_group", s.group,
		"compiled_patterns", len(s.patterns))

	return s
}

// MaskUserContent applies the configured pattern group to user-submitted
// content (case descriptions and messages). Returns the content unchanged
// when masking is disabled or no patterns resolved.
func (s *Service) MaskUserContent(content string) string {
	if s == nil || !s.enabled || content == "" || len(s.patterns) == 0 {
		return content
	}

	masked := content
	for _, p := range s.patterns {
		masked = p.Regex.ReplaceAllString(masked, p.Replacement)
	}
	return masked
}
