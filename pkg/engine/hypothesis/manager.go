// Package hypothesis owns the hypothesis lifecycle: creation and promotion,
// evidence linking, confidence recomputation with stagnation decay,
// auto-transitions to VALIDATED/REFUTED, and anchoring detection with its
// retire-and-diversify mitigation.
package hypothesis

import (
	"fmt"
	"math"
	"strings"

	"github.com/faultmaven/faultmaven/pkg/engine/state"
)

// Evidence link weights from the confidence model. Fixed by contract, not
// configuration.
const (
	supportWeight = 0.15
	refuteWeight  = 0.20
)

// defaultLikelihood is the prior used when the model supplies none.
const defaultLikelihood = 0.5

// Config bounds the manager's thresholds.
type Config struct {
	ValidateThreshold    float64
	RefuteThreshold      float64
	DecayFactor          float64
	DecayMinDelta        float64
	SameCategoryLimit    int
	StagnationIterations int
	// CategoryKeywords overrides the built-in category inference lexicon.
	CategoryKeywords map[state.HypothesisCategory][]string
}

// DefaultConfig returns the stock thresholds: validate at 0.70 with two
// supporting links, refute at 0.20 with two refuting links, 0.85 decay with
// a 0.05 progress delta, anchoring at 4 same-category actives or 3 stagnant
// iterations.
func DefaultConfig() Config {
	return Config{
		ValidateThreshold:    0.70,
		RefuteThreshold:      0.20,
		DecayFactor:          0.85,
		DecayMinDelta:        0.05,
		SameCategoryLimit:    4,
		StagnationIterations: 3,
	}
}

// Manager applies the hypothesis confidence model to an investigation
// state. Stateless aside from configuration; safe for concurrent use
// across cases.
type Manager struct {
	cfg      Config
	keywords map[state.HypothesisCategory][]string
}

// NewManager builds a manager, filling zero config fields with defaults.
func NewManager(cfg Config) *Manager {
	def := DefaultConfig()
	if cfg.ValidateThreshold <= 0 {
		cfg.ValidateThreshold = def.ValidateThreshold
	}
	if cfg.RefuteThreshold <= 0 {
		cfg.RefuteThreshold = def.RefuteThreshold
	}
	if cfg.DecayFactor <= 0 {
		cfg.DecayFactor = def.DecayFactor
	}
	if cfg.DecayMinDelta <= 0 {
		cfg.DecayMinDelta = def.DecayMinDelta
	}
	if cfg.SameCategoryLimit <= 0 {
		cfg.SameCategoryLimit = def.SameCategoryLimit
	}
	if cfg.StagnationIterations <= 0 {
		cfg.StagnationIterations = def.StagnationIterations
	}
	keywords := cfg.CategoryKeywords
	if len(keywords) == 0 {
		keywords = defaultCategoryKeywords()
	}
	return &Manager{cfg: cfg, keywords: keywords}
}

// Proposal is a hypothesis candidate extracted from an LLM response.
type Proposal struct {
	Statement  string
	Category   state.HypothesisCategory
	Likelihood float64
}

// CreateOrPromote records a proposed hypothesis. A proposal whose
// normalized statement matches an existing hypothesis updates that one
// instead of duplicating it; a CAPTURED match is promoted to ACTIVE when
// the proposal came from structured output. Returns the hypothesis and
// whether it was newly created.
func (m *Manager) CreateOrPromote(s *state.InvestigationState, p Proposal, turn int, structured bool) (*state.Hypothesis, bool) {
	norm := normalizeStatement(p.Statement)
	for i := range s.Hypotheses {
		h := &s.Hypotheses[i]
		if normalizeStatement(h.Statement) != norm {
			continue
		}
		if structured && h.Status == state.HypothesisCaptured {
			h.Status = state.HypothesisActive
		}
		h.LastUpdatedTurn = turn
		return h, false
	}

	likelihood := p.Likelihood
	if likelihood <= 0 || likelihood > 1 {
		likelihood = defaultLikelihood
	}
	category := p.Category
	if category == "" || category == state.CategoryUnknown || !category.IsValid() {
		category = m.InferCategory(p.Statement)
	}
	status := state.HypothesisCaptured
	if structured {
		status = state.HypothesisActive
	}

	h := state.Hypothesis{
		ID:                    s.NextHypothesisID(),
		Statement:             strings.TrimSpace(p.Statement),
		Category:              category,
		Status:                status,
		Likelihood:            likelihood,
		Confidence:            likelihood,
		ConfidenceTrajectory:  []state.ConfidencePoint{{Turn: turn, Confidence: likelihood}},
		SupportingEvidenceIDs: []string{},
		RefutingEvidenceIDs:   []string{},
		CreatedTurn:           turn,
		LastUpdatedTurn:       turn,
	}
	s.Hypotheses = append(s.Hypotheses, h)
	return &s.Hypotheses[len(s.Hypotheses)-1], true
}

// Stance is the direction of an evidence link.
type Stance string

const (
	StanceSupports Stance = "supports"
	StanceRefutes  Stance = "refutes"
)

// LinkEvidence attaches evidence to a hypothesis with the given stance.
// Linking counts as progress for the hypothesis, so its stagnation counter
// resets. Closed hypotheses (VALIDATED, REFUTED, RETIRED, SUPERSEDED)
// reject new links.
func (m *Manager) LinkEvidence(s *state.InvestigationState, hypothesisID, evidenceID string, stance Stance, turn int) error {
	h := s.FindHypothesis(hypothesisID)
	if h == nil {
		return fmt.Errorf("link evidence: unknown hypothesis %q", hypothesisID)
	}
	if s.FindEvidence(evidenceID) == nil {
		return fmt.Errorf("link evidence: unknown evidence %q", evidenceID)
	}
	if !h.Status.IsOpen() {
		return fmt.Errorf("link evidence: hypothesis %s is %s", hypothesisID, h.Status)
	}
	switch stance {
	case StanceSupports:
		h.SupportingEvidenceIDs = state.AddToSet(h.SupportingEvidenceIDs, evidenceID)
	case StanceRefutes:
		h.RefutingEvidenceIDs = state.AddToSet(h.RefutingEvidenceIDs, evidenceID)
	default:
		return fmt.Errorf("link evidence: invalid stance %q", stance)
	}
	h.IterationsWithoutProgress = 0
	h.LastUpdatedTurn = turn
	return nil
}

// Recompute recalculates confidence for every open hypothesis and applies
// auto-transitions. The posterior is the evidence formula discounted by
// stagnation decay (ACTIVE only; decay uses the iteration count from before
// this turn, and a hypothesis that just gained evidence had its counter
// reset by LinkEvidence):
//
//	clamp(likelihood + 0.15·|supporting| − 0.20·|refuting|, 0, 1) · decay^iterations_without_progress
//
// A changed confidence appends a trajectory point for this turn, so the
// trajectory tail always matches the current value.
func (m *Manager) Recompute(s *state.InvestigationState, turn int) {
	for i := range s.Hypotheses {
		h := &s.Hypotheses[i]
		if !h.Status.IsOpen() {
			continue
		}
		before := h.Confidence
		base := clamp01(h.Likelihood +
			supportWeight*float64(len(h.SupportingEvidenceIDs)) -
			refuteWeight*float64(len(h.RefutingEvidenceIDs)))
		decay := 1.0
		if h.Status == state.HypothesisActive {
			decay = math.Pow(m.cfg.DecayFactor, float64(h.IterationsWithoutProgress))
		}
		h.Confidence = clamp01(round3(base * decay))

		if h.Confidence != before {
			h.RecordConfidence(turn, h.Confidence)
			h.LastUpdatedTurn = turn
		}

		m.autoTransition(s, h, turn)
	}
}

// MinProgressDelta exposes the configured confidence delta below which a
// change does not count as hypothesis progress.
func (m *Manager) MinProgressDelta() float64 {
	return m.cfg.DecayMinDelta
}

// autoTransition applies the VALIDATED / REFUTED rules after a recompute.
// At most one hypothesis stays VALIDATED: when a second qualifies, the
// lower-confidence of the pair is demoted to SUPERSEDED (tie: the older).
func (m *Manager) autoTransition(s *state.InvestigationState, h *state.Hypothesis, turn int) {
	if !h.Status.IsOpen() {
		return
	}
	switch {
	case h.Confidence >= m.cfg.ValidateThreshold && len(h.SupportingEvidenceIDs) >= 2:
		if prev := firstValidated(s, h.ID); prev != nil {
			loser := prev
			if h.Confidence < prev.Confidence ||
				(h.Confidence == prev.Confidence && h.CreatedTurn < prev.CreatedTurn) {
				loser = h
			}
			loser.Status = state.HypothesisSuperseded
			loser.LastUpdatedTurn = turn
			if loser == h {
				return
			}
		}
		h.Status = state.HypothesisValidated
		h.LastUpdatedTurn = turn
	case h.Confidence <= m.cfg.RefuteThreshold && len(h.RefutingEvidenceIDs) >= 2:
		h.Status = state.HypothesisRefuted
		h.LastUpdatedTurn = turn
	}
}

// BumpStagnation increments the no-progress counter for every open
// hypothesis not named in exempt. Called once per turn, after linking and
// recompute; the engine exempts hypotheses that gained evidence or moved
// at least the progress delta this turn. Pure decay movement never exempts
// a hypothesis, otherwise decay would reset its own clock.
func (m *Manager) BumpStagnation(s *state.InvestigationState, exempt []string) {
	moved := make(map[string]struct{}, len(exempt))
	for _, id := range exempt {
		moved[id] = struct{}{}
	}
	for i := range s.Hypotheses {
		h := &s.Hypotheses[i]
		if !h.Status.IsOpen() {
			continue
		}
		if _, ok := moved[h.ID]; ok {
			continue
		}
		h.IterationsWithoutProgress++
	}
}

// Retire explicitly closes a hypothesis. This is the only sanctioned exit
// from VALIDATED or REFUTED.
func (m *Manager) Retire(s *state.InvestigationState, hypothesisID string, turn int) error {
	h := s.FindHypothesis(hypothesisID)
	if h == nil {
		return fmt.Errorf("retire: unknown hypothesis %q", hypothesisID)
	}
	h.Status = state.HypothesisRetired
	h.LastUpdatedTurn = turn
	return nil
}

func firstValidated(s *state.InvestigationState, excludeID string) *state.Hypothesis {
	for i := range s.Hypotheses {
		if s.Hypotheses[i].Status == state.HypothesisValidated && s.Hypotheses[i].ID != excludeID {
			return &s.Hypotheses[i]
		}
	}
	return nil
}

func normalizeStatement(statement string) string {
	normalized := strings.ToLower(strings.TrimSpace(statement))
	normalized = strings.TrimRight(normalized, ".!? ")
	return strings.Join(strings.Fields(normalized), " ")
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// round3 keeps confidences at millis precision so decay chains stay
// representable and comparisons in trajectories behave.
func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
