package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/faultmaven/faultmaven/pkg/engine/state"
	"github.com/faultmaven/faultmaven/pkg/llm"
)

// TransitionProposal is the assistant's read of the problem, offered to
// the user before the case moves from consulting to investigating. The
// user confirms or corrects it; nothing here binds until confirmation.
type TransitionProposal struct {
	TemporalState state.TemporalState `json:"temporal_state"`
	UrgencyLevel  state.UrgencyLevel  `json:"urgency_level"`
	Strategy      state.Strategy      `json:"strategy"`
	Confidence    float64             `json:"confidence"`
	Reasoning     string              `json:"reasoning"`
}

// ProposeInvestigationTransition asks the LLM to classify the case for
// the consulting-to-investigating handoff. Read-only: no state mutation,
// no turn record. Only valid while the case is CONSULTING.
func (e *Engine) ProposeInvestigationTransition(ctx context.Context, c *Case) (*TransitionProposal, error) {
	if c.Status != state.CaseStatusConsulting {
		return nil, fmt.Errorf("%w: case %s is %s, transition proposals require CONSULTING", ErrPhaseGuardFailed, c.ID, c.Status)
	}

	resp, err := e.chat(ctx, &llm.ChatRequest{
		CaseID:         c.ID,
		TurnID:         fmt.Sprintf("%s-transition", c.ID),
		Messages:       e.prompts.BuildTransitionProposalMessages(c.Title, c.Description, c.History),
		Model:          e.cfg.Model,
		Temperature:    e.temperatureFor(state.PhaseIntake),
		ResponseFormat: llm.ResponseFormatJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLLMUnavailable, err)
	}

	proposal, err := parseTransitionProposal(resp.Text)
	if err != nil {
		return nil, err
	}
	return proposal, nil
}

func parseTransitionProposal(text string) (*TransitionProposal, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty transition proposal", ErrLLMMalformed)
	}

	var raw struct {
		TemporalState string  `json:"temporal_state"`
		UrgencyLevel  string  `json:"urgency_level"`
		Strategy      string  `json:"strategy"`
		Confidence    float64 `json:"confidence"`
		Reasoning     string  `json:"reasoning"`
	}
	candidate := trimmed
	if !strings.HasPrefix(candidate, "{") {
		m := fencedJSONPattern.FindStringSubmatch(candidate)
		if m == nil {
			return nil, fmt.Errorf("%w: transition proposal is not JSON", ErrLLMMalformed)
		}
		candidate = m[1]
	}
	if err := json.Unmarshal([]byte(candidate), &raw); err != nil {
		return nil, fmt.Errorf("%w: transition proposal: %v", ErrLLMMalformed, err)
	}

	temporal := state.TemporalState(strings.ToUpper(strings.TrimSpace(raw.TemporalState)))
	if !temporal.IsValid() {
		return nil, fmt.Errorf("%w: invalid temporal_state %q", ErrLLMMalformed, raw.TemporalState)
	}
	urgency := state.UrgencyLevel(strings.ToUpper(strings.TrimSpace(raw.UrgencyLevel)))
	if !urgency.IsValid() {
		return nil, fmt.Errorf("%w: invalid urgency_level %q", ErrLLMMalformed, raw.UrgencyLevel)
	}
	strategy := state.Strategy(strings.ToUpper(strings.TrimSpace(raw.Strategy)))
	if !strategy.IsValid() {
		strategy = deriveStrategy(temporal, urgency)
	}

	confidence := raw.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return &TransitionProposal{
		TemporalState: temporal,
		UrgencyLevel:  urgency,
		Strategy:      strategy,
		Confidence:    confidence,
		Reasoning:     strings.TrimSpace(raw.Reasoning),
	}, nil
}

// ConfirmInvestigationTransition records the user-approved classification
// and moves the case to INVESTIGATING. Sets both consulting milestones,
// seeds the problem statement, and opens the first OODA iteration. Not a
// turn: no turn record is committed.
func (e *Engine) ConfirmInvestigationTransition(ctx context.Context, c *Case, temporal state.TemporalState, urgency state.UrgencyLevel) (*state.InvestigationState, error) {
	if c.Status != state.CaseStatusConsulting {
		return nil, fmt.Errorf("%w: case %s is %s, transition confirmation requires CONSULTING", ErrPhaseGuardFailed, c.ID, c.Status)
	}
	if !temporal.IsValid() {
		return nil, fmt.Errorf("invalid temporal state %q", temporal)
	}
	if !urgency.IsValid() {
		return nil, fmt.Errorf("invalid urgency level %q", urgency)
	}

	loaded, err := e.store.Load(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("load investigation state: %w", err)
	}
	work := state.New()
	if loaded != nil {
		work, err = loaded.Clone()
		if err != nil {
			return nil, fmt.Errorf("clone investigation state: %w", err)
		}
	}

	work.SetMilestone(state.MilestoneProblemStatementConfirmed)
	work.SetMilestone(state.MilestoneDecidedToInvestigate)
	work.TemporalState = temporal
	work.UrgencyLevel = urgency
	work.Strategy = deriveStrategy(temporal, urgency)
	if work.ProblemStatement == "" {
		work.ProblemStatement = c.Description
	}
	e.ooda.Bump(work)

	if err := work.Validate(e.caps); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvariantViolation, err)
	}
	if err := e.store.Save(ctx, c.ID, work); err != nil {
		if errors.Is(err, ErrLeaseLost) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrStatePersistFailed, err)
	}

	c.Status = state.CaseStatusInvestigating
	c.TemporalState = temporal
	c.UrgencyLevel = urgency
	c.Strategy = work.Strategy

	e.logger.Info("Case transitioned to investigation",
		"case_id", c.ID,
		"temporal_state", string(temporal),
		"urgency_level", string(urgency),
		"strategy", string(work.Strategy))
	return work, nil
}

// deriveStrategy picks mitigation-first for ongoing high-impact
// incidents, root-cause otherwise.
func deriveStrategy(temporal state.TemporalState, urgency state.UrgencyLevel) state.Strategy {
	if temporal == state.TemporalOngoing &&
		(urgency == state.UrgencyCritical || urgency == state.UrgencyHigh) {
		return state.StrategyMitigationFirst
	}
	return state.StrategyRootCause
}
