package state

// CaseStatus is the lifecycle status of a case. The engine reads it to pick
// the prompt template and writes it on auto-transitions.
type CaseStatus string

const (
	CaseStatusConsulting    CaseStatus = "CONSULTING"
	CaseStatusInvestigating CaseStatus = "INVESTIGATING"
	CaseStatusDocumenting   CaseStatus = "DOCUMENTING"
	CaseStatusResolved      CaseStatus = "RESOLVED"
	CaseStatusClosed        CaseStatus = "CLOSED"
)

// IsValid checks if the case status is valid.
func (s CaseStatus) IsValid() bool {
	switch s {
	case CaseStatusConsulting, CaseStatusInvestigating, CaseStatusDocumenting,
		CaseStatusResolved, CaseStatusClosed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the case accepts no new hypotheses or evidence.
func (s CaseStatus) IsTerminal() bool {
	return s == CaseStatusResolved || s == CaseStatusClosed
}

// Phase is the current stage of an investigation. Phases advance when
// milestones complete and may loop back when findings invalidate earlier
// work.
type Phase string

const (
	PhaseIntake      Phase = "INTAKE"
	PhaseBlastRadius Phase = "BLAST_RADIUS"
	PhaseTimeline    Phase = "TIMELINE"
	PhaseHypothesis  Phase = "HYPOTHESIS"
	PhaseValidation  Phase = "VALIDATION"
	PhaseSolution    Phase = "SOLUTION"
	PhaseDocument    Phase = "DOCUMENT"
)

// IsValid checks if the phase is valid.
func (p Phase) IsValid() bool {
	switch p {
	case PhaseIntake, PhaseBlastRadius, PhaseTimeline, PhaseHypothesis,
		PhaseValidation, PhaseSolution, PhaseDocument:
		return true
	default:
		return false
	}
}

// AllPhases returns the phases in forward progression order.
func AllPhases() []Phase {
	return []Phase{
		PhaseIntake, PhaseBlastRadius, PhaseTimeline, PhaseHypothesis,
		PhaseValidation, PhaseSolution, PhaseDocument,
	}
}

// HypothesisStatus is the lifecycle status of a hypothesis.
type HypothesisStatus string

const (
	// HypothesisCaptured marks an opportunistic hypothesis not yet selected
	// for testing (keyword-fallback parsing creates these).
	HypothesisCaptured HypothesisStatus = "CAPTURED"
	// HypothesisActive marks a hypothesis explicitly under test.
	HypothesisActive     HypothesisStatus = "ACTIVE"
	HypothesisValidated  HypothesisStatus = "VALIDATED"
	HypothesisRefuted    HypothesisStatus = "REFUTED"
	HypothesisRetired    HypothesisStatus = "RETIRED"
	HypothesisSuperseded HypothesisStatus = "SUPERSEDED"
)

// IsValid checks if the hypothesis status is valid.
func (s HypothesisStatus) IsValid() bool {
	switch s {
	case HypothesisCaptured, HypothesisActive, HypothesisValidated,
		HypothesisRefuted, HypothesisRetired, HypothesisSuperseded:
		return true
	default:
		return false
	}
}

// IsOpen reports whether the hypothesis can still gain or lose confidence.
func (s HypothesisStatus) IsOpen() bool {
	return s == HypothesisCaptured || s == HypothesisActive
}

// HypothesisCategory classifies the suspected fault domain.
type HypothesisCategory string

const (
	CategoryInfrastructure HypothesisCategory = "INFRASTRUCTURE"
	CategoryCode           HypothesisCategory = "CODE"
	CategoryConfig         HypothesisCategory = "CONFIG"
	CategoryData           HypothesisCategory = "DATA"
	CategoryExternal       HypothesisCategory = "EXTERNAL"
	CategoryHuman          HypothesisCategory = "HUMAN"
	CategoryUnknown        HypothesisCategory = "UNKNOWN"
)

// IsValid checks if the category is valid.
func (c HypothesisCategory) IsValid() bool {
	switch c {
	case CategoryInfrastructure, CategoryCode, CategoryConfig, CategoryData,
		CategoryExternal, CategoryHuman, CategoryUnknown:
		return true
	default:
		return false
	}
}

// AllCategories returns every category except UNKNOWN, in stable order.
func AllCategories() []HypothesisCategory {
	return []HypothesisCategory{
		CategoryInfrastructure, CategoryCode, CategoryConfig,
		CategoryData, CategoryExternal, CategoryHuman,
	}
}

// EvidenceCategory is the stance of a piece of evidence in the investigation.
type EvidenceCategory string

const (
	EvidenceSymptom    EvidenceCategory = "SYMPTOM_EVIDENCE"
	EvidenceCausal     EvidenceCategory = "CAUSAL_EVIDENCE"
	EvidenceResolution EvidenceCategory = "RESOLUTION_EVIDENCE"
)

// IsValid checks if the evidence category is valid.
func (c EvidenceCategory) IsValid() bool {
	return c == EvidenceSymptom || c == EvidenceCausal || c == EvidenceResolution
}

// EvidenceSourceType records where a piece of evidence came from.
type EvidenceSourceType string

const (
	SourceUserProvided EvidenceSourceType = "USER_PROVIDED"
	SourceSystemQuery  EvidenceSourceType = "SYSTEM_QUERY"
	SourceDocument     EvidenceSourceType = "DOCUMENT"
	SourceLLMInferred  EvidenceSourceType = "LLM_INFERRED"
)

// IsValid checks if the source type is valid.
func (s EvidenceSourceType) IsValid() bool {
	switch s {
	case SourceUserProvided, SourceSystemQuery, SourceDocument, SourceLLMInferred:
		return true
	default:
		return false
	}
}

// TurnOutcomeKind categorizes what a committed turn achieved.
type TurnOutcomeKind string

const (
	TurnOutcomeProgress          TurnOutcomeKind = "PROGRESS"
	TurnOutcomeEvidenceCollected TurnOutcomeKind = "EVIDENCE_COLLECTED"
	TurnOutcomeConversation      TurnOutcomeKind = "CONVERSATION"
	TurnOutcomeStalled           TurnOutcomeKind = "STALLED"
	TurnOutcomeError             TurnOutcomeKind = "ERROR"
)

// IsValid checks if the turn outcome is valid.
func (o TurnOutcomeKind) IsValid() bool {
	switch o {
	case TurnOutcomeProgress, TurnOutcomeEvidenceCollected,
		TurnOutcomeConversation, TurnOutcomeStalled, TurnOutcomeError:
		return true
	default:
		return false
	}
}

// Momentum summarizes investigation velocity for progress metrics.
type Momentum string

const (
	MomentumEarly        Momentum = "EARLY"
	MomentumAccelerating Momentum = "ACCELERATING"
	MomentumSteady       Momentum = "STEADY"
	MomentumStalled      Momentum = "STALLED"
)

// IsValid checks if the momentum value is valid.
func (m Momentum) IsValid() bool {
	switch m {
	case MomentumEarly, MomentumAccelerating, MomentumSteady, MomentumStalled:
		return true
	default:
		return false
	}
}

// MemoryTier identifies which retention tier a snapshot lives in.
type MemoryTier string

const (
	TierHot  MemoryTier = "hot"
	TierWarm MemoryTier = "warm"
	TierCold MemoryTier = "cold"
)

// IsValid checks if the memory tier is valid.
func (t MemoryTier) IsValid() bool {
	return t == TierHot || t == TierWarm || t == TierCold
}

// Intensity is the adaptive thoroughness level chosen per turn from
// (phase, OODA iteration). Downstream prompt composition and the anchoring
// check key off it.
type Intensity string

const (
	IntensityNone   Intensity = "none"
	IntensityLight  Intensity = "light"
	IntensityMedium Intensity = "medium"
	IntensityFull   Intensity = "full"
)

// IsValid checks if the intensity is valid.
func (i Intensity) IsValid() bool {
	switch i {
	case IntensityNone, IntensityLight, IntensityMedium, IntensityFull:
		return true
	default:
		return false
	}
}

// TemporalState records whether the incident is still happening.
type TemporalState string

const (
	TemporalOngoing    TemporalState = "ONGOING"
	TemporalHistorical TemporalState = "HISTORICAL"
)

// IsValid checks if the temporal state is valid.
func (t TemporalState) IsValid() bool {
	return t == TemporalOngoing || t == TemporalHistorical
}

// UrgencyLevel is the operator-confirmed urgency of the case.
type UrgencyLevel string

const (
	UrgencyCritical UrgencyLevel = "CRITICAL"
	UrgencyHigh     UrgencyLevel = "HIGH"
	UrgencyMedium   UrgencyLevel = "MEDIUM"
	UrgencyLow      UrgencyLevel = "LOW"
	UrgencyUnknown  UrgencyLevel = "UNKNOWN"
)

// IsValid checks if the urgency level is valid.
func (u UrgencyLevel) IsValid() bool {
	switch u {
	case UrgencyCritical, UrgencyHigh, UrgencyMedium, UrgencyLow, UrgencyUnknown:
		return true
	default:
		return false
	}
}

// Strategy is the agreed investigation strategy.
type Strategy string

const (
	StrategyMitigationFirst Strategy = "MITIGATION_FIRST"
	StrategyRootCause       Strategy = "ROOT_CAUSE"
	StrategyUserChoice      Strategy = "USER_CHOICE"
)

// IsValid checks if the strategy is valid.
func (s Strategy) IsValid() bool {
	return s == StrategyMitigationFirst || s == StrategyRootCause || s == StrategyUserChoice
}

// Milestone is a named boolean predicate about investigation progress.
// The set of keys is frozen; adding one requires a schema version bump.
type Milestone string

const (
	MilestoneProblemStatementConfirmed Milestone = "problem_statement_confirmed"
	MilestoneDecidedToInvestigate      Milestone = "decided_to_investigate"
	MilestoneSymptomVerified           Milestone = "symptom_verified"
	MilestoneScopeConfirmed            Milestone = "scope_confirmed"
	MilestoneTimelineReconstructed     Milestone = "timeline_reconstructed"
	MilestoneRootCauseIdentified       Milestone = "root_cause_identified"
	MilestoneSolutionProposed          Milestone = "solution_proposed"
	MilestoneSolutionVerified          Milestone = "solution_verified"
	MilestoneVerificationComplete      Milestone = "verification_complete"
	MilestoneDocumented                Milestone = "documented"
)

// AllMilestones returns the frozen milestone keys in canonical order.
func AllMilestones() []Milestone {
	return []Milestone{
		MilestoneProblemStatementConfirmed,
		MilestoneDecidedToInvestigate,
		MilestoneSymptomVerified,
		MilestoneScopeConfirmed,
		MilestoneTimelineReconstructed,
		MilestoneRootCauseIdentified,
		MilestoneSolutionProposed,
		MilestoneSolutionVerified,
		MilestoneVerificationComplete,
		MilestoneDocumented,
	}
}

// IsValid checks if the milestone key is one of the frozen set.
func (m Milestone) IsValid() bool {
	for _, known := range AllMilestones() {
		if m == known {
			return true
		}
	}
	return false
}

// LoopbackOutcome labels why a loop-back fired.
type LoopbackOutcome string

const (
	LoopbackHypothesisRefuted      LoopbackOutcome = "HYPOTHESIS_REFUTED"
	LoopbackInsufficientHypotheses LoopbackOutcome = "INSUFFICIENT_HYPOTHESES"
	LoopbackScopeChanged           LoopbackOutcome = "SCOPE_CHANGED"
	LoopbackTimelineContradicted   LoopbackOutcome = "TIMELINE_CONTRADICTED"
)
