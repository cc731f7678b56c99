// Package phase owns investigation phase progression: implicit forward
// advancement driven by completed milestones, and loop-back detection with
// a per-case budget.
package phase

import (
	"fmt"

	"github.com/faultmaven/faultmaven/pkg/engine/state"
)

// hypothesisReadyConfidence is the bar for leaving the HYPOTHESIS phase:
// at least one ACTIVE hypothesis at or above it.
const hypothesisReadyConfidence = 0.5

// Orchestrator decides phase movement. Stateless aside from the loop-back
// budget.
type Orchestrator struct {
	loopbackMax int
}

// NewOrchestrator builds an orchestrator; non-positive budgets fall back to
// the stock limit of 3 loop-backs per case.
func NewOrchestrator(loopbackMax int) *Orchestrator {
	if loopbackMax <= 0 {
		loopbackMax = 3
	}
	return &Orchestrator{loopbackMax: loopbackMax}
}

// Current reports the phase, defaulting to INTAKE for zero-valued states.
func (o *Orchestrator) Current(s *state.InvestigationState) state.Phase {
	if s.CurrentPhase == "" {
		return state.PhaseIntake
	}
	return s.CurrentPhase
}

// AdvanceForward walks the phase forward as far as the completed milestones
// and hypothesis lifecycle allow, returning the phases entered. Multiple
// steps can complete in one turn when a single message satisfies several
// milestones.
func (o *Orchestrator) AdvanceForward(s *state.InvestigationState) []state.Phase {
	var entered []state.Phase
	for {
		next, ok := o.nextPhase(s)
		if !ok {
			return entered
		}
		s.CurrentPhase = next
		entered = append(entered, next)
	}
}

func (o *Orchestrator) nextPhase(s *state.InvestigationState) (state.Phase, bool) {
	switch o.Current(s) {
	case state.PhaseIntake:
		if s.MilestoneDone(state.MilestoneSymptomVerified) {
			return state.PhaseBlastRadius, true
		}
	case state.PhaseBlastRadius:
		if s.MilestoneDone(state.MilestoneScopeConfirmed) {
			return state.PhaseTimeline, true
		}
	case state.PhaseTimeline:
		if s.MilestoneDone(state.MilestoneTimelineReconstructed) {
			return state.PhaseHypothesis, true
		}
	case state.PhaseHypothesis:
		for _, h := range s.HypothesesByStatus(state.HypothesisActive) {
			if h.Confidence >= hypothesisReadyConfidence {
				return state.PhaseValidation, true
			}
		}
	case state.PhaseValidation:
		if len(s.HypothesesByStatus(state.HypothesisValidated)) > 0 {
			return state.PhaseSolution, true
		}
	case state.PhaseSolution:
		if s.MilestoneDone(state.MilestoneSolutionVerified) {
			return state.PhaseDocument, true
		}
	}
	return "", false
}

// Signals carries the per-turn observations loop-back detection needs from
// the milestone engine.
type Signals struct {
	// RefutedThisTurn counts hypotheses that transitioned to REFUTED during
	// this turn's recompute.
	RefutedThisTurn int
	// ScopeChanged is set when the assistant signals the blast radius was
	// wrong (suggested_phase back to BLAST_RADIUS, or scope-change wording).
	ScopeChanged bool
	// TimelineContradicted is set when newly arrived evidence contradicts
	// the reconstructed timeline.
	TimelineContradicted bool
}

// Decision is the loop-back verdict for one turn.
type Decision struct {
	Needed  bool
	Outcome state.LoopbackOutcome
	Target  state.Phase
	Reason  string
}

// DetectLoopback evaluates the non-forward transition rules in priority
// order. It only decides; ApplyLoopback mutates.
func (o *Orchestrator) DetectLoopback(s *state.InvestigationState, sig Signals) Decision {
	phase := o.Current(s)

	active := len(s.HypothesesByStatus(state.HypothesisActive))
	validated := len(s.HypothesesByStatus(state.HypothesisValidated))
	captured := len(s.HypothesesByStatus(state.HypothesisCaptured))

	if phase == state.PhaseValidation && sig.RefutedThisTurn > 0 && active == 0 && validated == 0 {
		return Decision{
			Needed:  true,
			Outcome: state.LoopbackHypothesisRefuted,
			Target:  state.PhaseHypothesis,
			Reason:  fmt.Sprintf("all active hypotheses refuted this turn (%d)", sig.RefutedThisTurn),
		}
	}

	// Validation cannot proceed with fewer than two viable candidates and
	// nothing validated.
	if phase == state.PhaseValidation && validated == 0 && active+captured < 2 {
		return Decision{
			Needed:  true,
			Outcome: state.LoopbackInsufficientHypotheses,
			Target:  state.PhaseHypothesis,
			Reason:  fmt.Sprintf("%d viable hypotheses remain, need at least 2", active+captured),
		}
	}

	if phase == state.PhaseTimeline && sig.ScopeChanged {
		return Decision{
			Needed:  true,
			Outcome: state.LoopbackScopeChanged,
			Target:  state.PhaseBlastRadius,
			Reason:  "scope change signaled during timeline reconstruction",
		}
	}

	if phase == state.PhaseValidation && sig.TimelineContradicted {
		return Decision{
			Needed:  true,
			Outcome: state.LoopbackTimelineContradicted,
			Target:  state.PhaseTimeline,
			Reason:  "contradictory temporal evidence arrived",
		}
	}

	return Decision{}
}

// ApplyLoopback executes a loop-back decision under the per-case budget.
// Returns (applied, suppressed): suppressed means the budget is exhausted
// and the caller must surface escalation instead of moving the phase.
func (o *Orchestrator) ApplyLoopback(s *state.InvestigationState, d Decision) (bool, bool) {
	if !d.Needed {
		return false, false
	}
	if s.LoopbackCount >= o.loopbackMax {
		return false, true
	}
	s.CurrentPhase = d.Target
	s.LoopbackCount++
	return true, false
}
