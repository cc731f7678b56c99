package hypothesis

import (
	"fmt"
	"math"
	"sort"

	"github.com/faultmaven/faultmaven/pkg/engine/state"
)

// DetectAnchoring checks for over-commitment to one line of investigation.
// Invoked only at full intensity. It fires when any of these hold:
//
//   - at least same_category_limit ACTIVE hypotheses share a category
//   - no ACTIVE hypothesis moved ±0.10 confidence across the last
//     stagnation_iterations iterations
//   - the top-confidence ACTIVE hypothesis has gone stagnation_iterations
//     iterations without new evidence or meaningful movement
//
// The OODA record's last-check marker is updated on every invocation.
func (m *Manager) DetectAnchoring(s *state.InvestigationState, currentTurn int) (bool, string) {
	if s.OODA != nil {
		s.OODA.LastAnchoringCheckIteration = s.OODA.CurrentIteration
	}

	active := s.HypothesesByStatus(state.HypothesisActive)
	if len(active) == 0 {
		return false, ""
	}

	perCategory := make(map[state.HypothesisCategory]int)
	for _, h := range active {
		perCategory[h.Category]++
		if perCategory[h.Category] >= m.cfg.SameCategoryLimit {
			return true, fmt.Sprintf("%d active hypotheses in category %s", perCategory[h.Category], h.Category)
		}
	}

	iterations := 0
	if s.OODA != nil {
		iterations = s.OODA.CurrentIteration
	}
	if iterations >= m.cfg.StagnationIterations {
		windowStart := currentTurn - m.cfg.StagnationIterations
		stagnant := true
		for _, h := range active {
			if math.Abs(h.Confidence-confidenceAt(h, windowStart)) >= 0.10 {
				stagnant = false
				break
			}
		}
		if stagnant {
			return true, fmt.Sprintf("no active hypothesis moved ±0.10 in %d iterations", m.cfg.StagnationIterations)
		}
	}

	top := active[0]
	for _, h := range active[1:] {
		if h.Confidence > top.Confidence {
			top = h
		}
	}
	if top.IterationsWithoutProgress >= m.cfg.StagnationIterations {
		return true, fmt.Sprintf("top hypothesis %s static for %d iterations with no new evidence", top.ID, top.IterationsWithoutProgress)
	}

	return false, ""
}

// ForceAlternatives mitigates detected anchoring: the two ACTIVE hypotheses
// with the lowest stagnation-adjusted confidence are retired, and the state
// is flagged so the next prompt asks for hypotheses from categories not yet
// represented among the remaining ACTIVE ones.
func (m *Manager) ForceAlternatives(s *state.InvestigationState, turn int) []string {
	active := s.HypothesesByStatus(state.HypothesisActive)
	adjusted := func(h *state.Hypothesis) float64 {
		return h.Confidence * math.Pow(m.cfg.DecayFactor, float64(h.IterationsWithoutProgress))
	}
	sort.SliceStable(active, func(i, j int) bool {
		ai, aj := adjusted(active[i]), adjusted(active[j])
		if ai != aj {
			return ai < aj
		}
		return active[i].ID < active[j].ID
	})

	var retired []string
	for i := 0; i < len(active) && i < 2; i++ {
		active[i].Status = state.HypothesisRetired
		active[i].LastUpdatedTurn = turn
		retired = append(retired, active[i].ID)
	}
	s.ForceAlternativeCategories = true
	return retired
}

// UnrepresentedCategories lists categories with no ACTIVE hypothesis, in
// stable order, for the diversification prompt directive.
func UnrepresentedCategories(s *state.InvestigationState) []state.HypothesisCategory {
	present := make(map[state.HypothesisCategory]struct{})
	for _, h := range s.HypothesesByStatus(state.HypothesisActive) {
		present[h.Category] = struct{}{}
	}
	var out []state.HypothesisCategory
	for _, c := range state.AllCategories() {
		if _, ok := present[c]; !ok {
			out = append(out, c)
		}
	}
	return out
}

// confidenceAt returns the trajectory value in effect at the given turn:
// the last point at or before it, or the first point when the hypothesis
// is younger than the window.
func confidenceAt(h *state.Hypothesis, turn int) float64 {
	if len(h.ConfidenceTrajectory) == 0 {
		return h.Confidence
	}
	value := h.ConfidenceTrajectory[0].Confidence
	for _, p := range h.ConfidenceTrajectory {
		if p.Turn > turn {
			break
		}
		value = p.Confidence
	}
	return value
}
