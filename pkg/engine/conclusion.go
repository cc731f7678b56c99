package engine

import (
	"fmt"
	"math"
	"sort"

	"github.com/faultmaven/faultmaven/pkg/engine/state"
)

// turnDelta aggregates what one turn added, for progress accounting and
// outcome classification.
type turnDelta struct {
	milestones []string
	hypotheses []string
	evidence   []string
}

// progressed reports whether the turn added a milestone, hypothesis, or
// evidence. Only these three reset the no-progress counter.
func (d turnDelta) progressed() bool {
	return len(d.milestones) > 0 || len(d.hypotheses) > 0 || len(d.evidence) > 0
}

// closeConfidenceGap is how near a rival must be to the leading hypothesis
// before the conclusion carries a "competing hypothesis" caveat.
const closeConfidenceGap = 0.10

// updateWorkingConclusion regenerates the case's best current answer from
// the hypothesis board. With no VALIDATED or open hypothesis the conclusion
// is cleared. LastUpdatedTurn moves only when the content changed;
// LastConfidenceChangeTurn only when confidence moved at least minDelta.
func updateWorkingConclusion(s *state.InvestigationState, turn int, minDelta, validateThreshold float64) {
	top := leadingHypothesis(s)
	if top == nil {
		s.WorkingConclusion = nil
		return
	}

	prev := s.WorkingConclusion
	next := &state.WorkingConclusion{
		Statement:                top.Statement,
		Confidence:               top.Confidence,
		Caveats:                  conclusionCaveats(s, top, validateThreshold),
		AlternativeHypothesesIDs: alternativeIDs(s, top.ID, 3),
		GeneratedAtTurn:          turn,
	}

	if prev == nil {
		next.LastUpdatedTurn = turn
		next.LastConfidenceChangeTurn = turn
		s.WorkingConclusion = next
		return
	}

	next.LastUpdatedTurn = prev.LastUpdatedTurn
	if next.Statement != prev.Statement ||
		!sameStrings(next.Caveats, prev.Caveats) ||
		!sameStrings(next.AlternativeHypothesesIDs, prev.AlternativeHypothesesIDs) {
		next.LastUpdatedTurn = turn
	}
	next.LastConfidenceChangeTurn = prev.LastConfidenceChangeTurn
	if math.Abs(next.Confidence-prev.Confidence) >= minDelta {
		next.LastConfidenceChangeTurn = turn
	}
	s.WorkingConclusion = next
}

// leadingHypothesis picks the conclusion's subject: the VALIDATED
// hypothesis when one exists, otherwise the highest-confidence ACTIVE,
// otherwise the highest-confidence CAPTURED. Ties go to the older id.
func leadingHypothesis(s *state.InvestigationState) *state.Hypothesis {
	rank := func(h *state.Hypothesis) int {
		switch h.Status {
		case state.HypothesisValidated:
			return 2
		case state.HypothesisActive:
			return 1
		case state.HypothesisCaptured:
			return 0
		default:
			return -1
		}
	}
	var best *state.Hypothesis
	for i := range s.Hypotheses {
		h := &s.Hypotheses[i]
		if rank(h) < 0 {
			continue
		}
		if best == nil {
			best = h
			continue
		}
		switch {
		case rank(h) != rank(best):
			if rank(h) > rank(best) {
				best = h
			}
		case h.Confidence != best.Confidence:
			if h.Confidence > best.Confidence {
				best = h
			}
		case h.ID < best.ID:
			best = h
		}
	}
	return best
}

func conclusionCaveats(s *state.InvestigationState, top *state.Hypothesis, validateThreshold float64) []string {
	var caveats []string
	if top.Status != state.HypothesisValidated && top.Confidence < validateThreshold {
		caveats = append(caveats, "confidence is below the validation threshold")
	}
	if len(top.SupportingEvidenceIDs) == 0 {
		caveats = append(caveats, "no supporting evidence has been linked yet")
	}
	if len(top.RefutingEvidenceIDs) > 0 {
		caveats = append(caveats, fmt.Sprintf("%d piece(s) of contradicting evidence on record", len(top.RefutingEvidenceIDs)))
	}
	for i := range s.Hypotheses {
		h := &s.Hypotheses[i]
		if h.ID == top.ID || !h.Status.IsOpen() {
			continue
		}
		if top.Confidence-h.Confidence < closeConfidenceGap {
			caveats = append(caveats, "a competing hypothesis is close in confidence")
			break
		}
	}
	return caveats
}

// alternativeIDs lists the strongest open hypotheses other than the leader.
func alternativeIDs(s *state.InvestigationState, excludeID string, limit int) []string {
	var open []*state.Hypothesis
	for i := range s.Hypotheses {
		h := &s.Hypotheses[i]
		if h.ID == excludeID || !h.Status.IsOpen() {
			continue
		}
		open = append(open, h)
	}
	sort.SliceStable(open, func(i, j int) bool {
		if open[i].Confidence != open[j].Confidence {
			return open[i].Confidence > open[j].Confidence
		}
		return open[i].ID < open[j].ID
	})
	if len(open) > limit {
		open = open[:limit]
	}
	ids := make([]string, len(open))
	for i, h := range open {
		ids[i] = h.ID
	}
	return ids
}

// updateProgressMetrics recomputes the per-case progress snapshot after a
// turn's mutations. The no-progress counter resets on any milestone,
// hypothesis, or evidence and increments otherwise.
func updateProgressMetrics(s *state.InvestigationState, turn int, d turnDelta, stalledAfter int) {
	twp := 1
	if s.Progress != nil {
		twp = s.Progress.TurnsWithoutProgress + 1
	}
	if d.progressed() {
		twp = 0
	}
	s.Progress = &state.ProgressMetrics{
		TurnsWithoutProgress:  twp,
		Momentum:              classifyMomentum(s, turn, twp, d, stalledAfter),
		EvidenceProvidedCount: len(s.Evidence),
		EvidencePendingCount:  pendingEvidenceCount(s),
		NextCriticalSteps:     nextCriticalSteps(s, twp),
		IsDegradedMode:        s.DegradedMode != nil,
		GeneratedAtTurn:       turn,
	}
}

// classifyMomentum applies the momentum rules: EARLY for the first two
// turns, STALLED once the no-progress counter reaches the degraded
// threshold, ACCELERATING when the last three turns (including this one)
// produced at least 2 milestones or 3 hypotheses, STEADY otherwise.
func classifyMomentum(s *state.InvestigationState, turn, twp int, d turnDelta, stalledAfter int) state.Momentum {
	if turn <= 2 {
		return state.MomentumEarly
	}
	if twp >= stalledAfter {
		return state.MomentumStalled
	}
	milestones := len(d.milestones)
	hypotheses := len(d.hypotheses)
	history := s.TurnHistory
	for i := len(history) - 1; i >= 0 && i >= len(history)-2; i-- {
		milestones += len(history[i].MilestonesCompleted)
		hypotheses += len(history[i].HypothesesCreated)
	}
	if milestones >= 2 || hypotheses >= 3 {
		return state.MomentumAccelerating
	}
	return state.MomentumSteady
}

// pendingEvidenceCount counts open hypotheses with no linked evidence at
// all; each still needs at least one observation to move.
func pendingEvidenceCount(s *state.InvestigationState) int {
	n := 0
	for i := range s.Hypotheses {
		h := &s.Hypotheses[i]
		if h.Status.IsOpen() && len(h.SupportingEvidenceIDs) == 0 && len(h.RefutingEvidenceIDs) == 0 {
			n++
		}
	}
	return n
}

func nextCriticalSteps(s *state.InvestigationState, twp int) []string {
	var steps []string
	switch s.CurrentPhase {
	case state.PhaseIntake:
		steps = append(steps, "Verify the reported symptom first-hand.")
	case state.PhaseBlastRadius:
		steps = append(steps, "Establish which systems and users are affected.")
	case state.PhaseTimeline:
		steps = append(steps, "Pin down when the fault started and what changed around then.")
	case state.PhaseHypothesis:
		steps = append(steps, "Generate root-cause candidates across more than one category.")
	case state.PhaseValidation:
		steps = append(steps, "Collect evidence that supports or refutes the leading hypotheses.")
	case state.PhaseSolution:
		steps = append(steps, "Propose a fix and verify it against the original symptom.")
	case state.PhaseDocument:
		steps = append(steps, "Capture the findings in a retrospective.")
	}
	if twp >= 2 {
		steps = append(steps, "Ask for logs, dashboards, or configuration details not shared yet.")
	}
	return steps
}

// applyDegradedMode enters or exits degraded mode after a turn's outcome is
// known. Entry requires the no-progress counter to reach the threshold
// while not already degraded; exit requires a turn whose outcome is
// PROGRESS. The progress snapshot's flag is kept in sync either way.
func applyDegradedMode(s *state.InvestigationState, turn, threshold int, outcome state.TurnOutcomeKind) {
	switch {
	case outcome == state.TurnOutcomeProgress && s.DegradedMode != nil:
		s.DegradedMode = nil
	case s.DegradedMode == nil && s.Progress != nil && s.Progress.TurnsWithoutProgress >= threshold:
		s.DegradedMode = &state.DegradedModeData{
			EnteredAtTurn: turn,
			Reason:        fmt.Sprintf("no progress for %d turns", threshold),
			RecoveryHints: []string{
				"Share raw logs or error messages from the affected system.",
				"Re-state the problem in one sentence to re-anchor the investigation.",
				"Consider escalating to someone with direct access to the system.",
			},
		}
	}
	if s.Progress != nil {
		s.Progress.IsDegradedMode = s.DegradedMode != nil
	}
}

// classifyOutcome picks the turn outcome by priority: progress beats
// evidence collection beats stalling beats plain conversation. Phase and
// status movement counts as progress even without a new milestone.
func classifyOutcome(d turnDelta, advanced bool, twp, stalledAfter int) state.TurnOutcomeKind {
	switch {
	case len(d.milestones) > 0 || len(d.hypotheses) > 0 || advanced:
		return state.TurnOutcomeProgress
	case len(d.evidence) > 0:
		return state.TurnOutcomeEvidenceCollected
	case twp >= stalledAfter:
		return state.TurnOutcomeStalled
	default:
		return state.TurnOutcomeConversation
	}
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
