// Package engine implements the FaultMaven investigation engine: a
// deterministic per-turn orchestrator over a single case's investigation
// state. Given the loaded state, the user message, and the LLM response,
// every mutation is a pure function; the LLM call is the only source of
// non-determinism. Persistence, leasing, and transport live outside this
// package behind the StateStore and llm.Provider interfaces.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/faultmaven/faultmaven/pkg/engine/hypothesis"
	"github.com/faultmaven/faultmaven/pkg/engine/memory"
	"github.com/faultmaven/faultmaven/pkg/engine/ooda"
	"github.com/faultmaven/faultmaven/pkg/engine/phase"
	"github.com/faultmaven/faultmaven/pkg/engine/prompt"
	"github.com/faultmaven/faultmaven/pkg/engine/state"
	"github.com/faultmaven/faultmaven/pkg/knowledge"
	"github.com/faultmaven/faultmaven/pkg/llm"
)

// malformedReply is shown to the user when a turn's LLM output could not
// be parsed at any tier.
const malformedReply = "I could not produce a well-formed analysis for this turn, so no investigative changes were made. Please try again or rephrase your last message."

// escalationSuffix is appended to the reply when a needed loop-back was
// suppressed by the per-case budget.
const escalationSuffix = "\n\nThis investigation has used up its loop-back budget without converging. Escalation to someone with deeper system access is recommended."

// StateStore loads and saves investigation state blobs. Load returns
// (nil, nil) when no state exists for the case yet. Save must be
// all-or-nothing; a failed save leaves the stored state untouched.
type StateStore interface {
	Load(ctx context.Context, caseID string) (*state.InvestigationState, error)
	Save(ctx context.Context, caseID string, s *state.InvestigationState) error
}

// KnowledgeSearcher finds reference material related to a user message.
// Implementations should be fast; results are prompt hints, not facts.
type KnowledgeSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]knowledge.Hit, error)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Config tunes the engine. Zero fields fall back to defaults.
type Config struct {
	// Model names the LLM to request; empty uses the provider default.
	Model string
	// Temperature applies when TemperatureByPhase has no entry for the
	// current phase. Zero means the stock default.
	Temperature        float32
	TemperatureByPhase map[state.Phase]float32
	// LLMTimeout bounds a single completion call. Zero disables the
	// engine-side deadline.
	LLMTimeout time.Duration

	CompressionEveryNTurns int
	LoopbackMax            int
	DegradedTurnsThreshold int
	KnowledgeTopK          int

	Hypothesis hypothesis.Config
	Memory     memory.Config
	// OODATable overrides intensity bands per phase; nil keeps the stock
	// table.
	OODATable ooda.Table
}

// DefaultConfig returns the stock engine tuning.
func DefaultConfig() Config {
	return Config{
		Temperature:            0.2,
		CompressionEveryNTurns: 3,
		LoopbackMax:            3,
		DegradedTurnsThreshold: 3,
		KnowledgeTopK:          3,
		Hypothesis:             hypothesis.DefaultConfig(),
		Memory:                 memory.DefaultConfig(),
	}
}

// Dependencies are the engine's external collaborators. Provider and
// Store are required; the rest default to no-ops or system facilities.
type Dependencies struct {
	Provider  llm.Provider
	Store     StateStore
	Knowledge KnowledgeSearcher
	Clock     Clock
	Logger    *slog.Logger
}

// Engine processes investigation turns for cases. Stateless between
// calls; all per-case data lives in the StateStore. Safe for concurrent
// use across distinct cases; the caller must hold the per-case lease so
// that no two turns for the same case run concurrently.
type Engine struct {
	cfg       Config
	provider  llm.Provider
	store     StateStore
	knowledge KnowledgeSearcher
	clock     Clock
	logger    *slog.Logger

	prompts    *prompt.Builder
	hypotheses *hypothesis.Manager
	memories   *memory.Manager
	ooda       *ooda.Engine
	phases     *phase.Orchestrator
	caps       state.Caps
}

// New builds an engine from config and dependencies.
func New(cfg Config, deps Dependencies) (*Engine, error) {
	if deps.Provider == nil {
		return nil, errors.New("engine: llm provider is required")
	}
	if deps.Store == nil {
		return nil, errors.New("engine: state store is required")
	}

	def := DefaultConfig()
	if cfg.Temperature <= 0 {
		cfg.Temperature = def.Temperature
	}
	if cfg.CompressionEveryNTurns <= 0 {
		cfg.CompressionEveryNTurns = def.CompressionEveryNTurns
	}
	if cfg.LoopbackMax <= 0 {
		cfg.LoopbackMax = def.LoopbackMax
	}
	if cfg.DegradedTurnsThreshold <= 0 {
		cfg.DegradedTurnsThreshold = def.DegradedTurnsThreshold
	}
	if cfg.KnowledgeTopK <= 0 {
		cfg.KnowledgeTopK = def.KnowledgeTopK
	}
	hypDefaults := hypothesis.DefaultConfig()
	if cfg.Hypothesis.ValidateThreshold <= 0 {
		cfg.Hypothesis.ValidateThreshold = hypDefaults.ValidateThreshold
	}
	if cfg.Hypothesis.DecayMinDelta <= 0 {
		cfg.Hypothesis.DecayMinDelta = hypDefaults.DecayMinDelta
	}
	memDefaults := memory.DefaultConfig()
	if cfg.Memory.MaxContextTokens <= 0 {
		cfg.Memory.MaxContextTokens = memDefaults.MaxContextTokens
	}
	if cfg.Memory.HotSnapshots <= 0 {
		cfg.Memory.HotSnapshots = memDefaults.HotSnapshots
	}
	if cfg.Memory.WarmSnapshots <= 0 {
		cfg.Memory.WarmSnapshots = memDefaults.WarmSnapshots
	}
	if cfg.Memory.ColdSnapshots <= 0 {
		cfg.Memory.ColdSnapshots = memDefaults.ColdSnapshots
	}

	clock := deps.Clock
	if clock == nil {
		clock = systemClock{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		cfg:       cfg,
		provider:  deps.Provider,
		store:     deps.Store,
		knowledge: deps.Knowledge,
		clock:     clock,
		logger:    logger,

		prompts:    prompt.NewBuilder(),
		hypotheses: hypothesis.NewManager(cfg.Hypothesis),
		memories:   memory.NewManager(cfg.Memory),
		ooda:       ooda.NewEngine(cfg.OODATable),
		phases:     phase.NewOrchestrator(cfg.LoopbackMax),
		caps: state.Caps{
			HotSnapshots:  cfg.Memory.HotSnapshots,
			WarmSnapshots: cfg.Memory.WarmSnapshots,
			ColdSnapshots: cfg.Memory.ColdSnapshots,
			LoopbackMax:   cfg.LoopbackMax,
		},
	}, nil
}

// Case is the engine's view of a support case. History carries the prior
// conversation oldest-first; the engine never persists it.
type Case struct {
	ID            string
	Title         string
	Description   string
	Status        state.CaseStatus
	TemporalState state.TemporalState
	UrgencyLevel  state.UrgencyLevel
	Strategy      state.Strategy
	History       []llm.Message
}

// TurnOutcome describes one committed turn.
type TurnOutcome struct {
	TurnNumber int
	Reply      string
	Outcome    state.TurnOutcomeKind
	// ErrorKind is set when Outcome is ERROR.
	ErrorKind string

	ParseTier ParseTier
	Intensity state.Intensity

	Phase        state.Phase
	PhaseChanged bool
	Status       state.CaseStatus
	// StatusChanged signals the caller to persist the new case status.
	StatusChanged      bool
	EscalationRequired bool

	MilestonesCompleted []string
	HypothesesCreated   []string
	EvidenceAdded       []string

	Usage llm.Usage
	// State is the committed post-turn state.
	State *state.InvestigationState
}

// ProcessTurn runs one full investigation turn: compose the prompt for
// the case's status, call the LLM, ingest the parsed envelope, update
// phase/progress/memory, apply status transitions, and commit a turn
// record. The caller must hold the case's exclusive lease. On
// ErrLLMUnavailable, ErrInvariantViolation, ErrStatePersistFailed, and
// ErrLeaseLost nothing is committed; an unparseable response commits an
// ERROR turn with a fallback reply instead of failing.
func (e *Engine) ProcessTurn(ctx context.Context, c *Case, userMessage string) (*TurnOutcome, error) {
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
	turn := work.NextTurnNumber()
	investigating := c.Status == state.CaseStatusInvestigating

	e.memories.Organize(work)

	intensity := state.IntensityNone
	if investigating {
		iteration := e.ooda.Bump(work)
		intensity = e.ooda.IntensityFor(e.phases.Current(work), iteration)
	}
	phaseBefore := e.phases.Current(work)

	input := prompt.TurnInput{
		CaseTitle:       c.Title,
		CaseDescription: c.Description,
		Status:          c.Status,
		UserMessage:     userMessage,
		History:         c.History,
		State:           work,
		Phase:           phaseBefore,
		Intensity:       intensity,
	}
	if investigating {
		input.MemoryContext = e.memories.ContextForPrompt(work, e.cfg.Memory.MaxContextTokens)
		input.KnowledgeHints = e.knowledgeHints(ctx, userMessage)
	}
	messages := e.prompts.BuildTurnMessages(input)

	resp, err := e.chat(ctx, &llm.ChatRequest{
		CaseID:         c.ID,
		TurnID:         fmt.Sprintf("%s-turn-%03d", c.ID, turn),
		Messages:       messages,
		Model:          e.cfg.Model,
		Temperature:    e.temperatureFor(phaseBefore),
		ResponseFormat: llm.ResponseFormatJSON,
	})
	var usage llm.Usage
	responseText := ""
	if err != nil {
		if !errors.Is(err, llm.ErrEmptyCompletion) {
			return nil, fmt.Errorf("%w: %v", ErrLLMUnavailable, err)
		}
	} else {
		usage = resp.Usage
		responseText = resp.Text
	}

	parsed, perr := parseResponse(responseText)
	if perr != nil {
		return e.commitErrorTurn(ctx, c, work, turn, intensity, usage, perr)
	}
	env := parsed.envelope
	structured := parsed.tier != TierKeyword
	// The force-alternatives directive was consumed by this composition.
	work.ForceAlternativeCategories = false

	var delta turnDelta
	for _, key := range env.MilestonesCompleted {
		m := state.Milestone(strings.TrimSpace(key))
		if !m.IsValid() {
			e.logger.Debug("Ignoring unknown milestone key", "case_id", c.ID, "milestone", key)
			continue
		}
		if work.SetMilestone(m) {
			delta.milestones = append(delta.milestones, string(m))
		}
	}

	leadBefore := 0.0
	if lead := leadingHypothesis(work); lead != nil {
		leadBefore = lead.Confidence
	}

	var refuted, validated []string
	if investigating {
		e.ingestHypotheses(work, env.Hypotheses, turn, structured, &delta)
		evidenced := e.ingestEvidenceLinks(c.ID, work, env.EvidenceLinks, turn, &delta)

		statusesBefore := hypothesisStatuses(work)
		e.hypotheses.Recompute(work, turn)
		refuted, validated = hypothesisStatusChanges(statusesBefore, work)

		exempt := append(append([]string{}, delta.hypotheses...), evidenced...)
		e.hypotheses.BumpStagnation(work, exempt)

		if intensity == state.IntensityFull {
			if hit, reason := e.hypotheses.DetectAnchoring(work, turn); hit {
				retired := e.hypotheses.ForceAlternatives(work, turn)
				e.logger.Info("Anchoring mitigation applied",
					"case_id", c.ID, "reason", reason, "retired", retired)
			}
		}

		updateWorkingConclusion(work, turn, e.hypotheses.MinProgressDelta(), e.cfg.Hypothesis.ValidateThreshold)
		updateProgressMetrics(work, turn, delta, e.cfg.DegradedTurnsThreshold)
	} else if len(env.Hypotheses) > 0 || len(env.EvidenceLinks) > 0 {
		e.logger.Warn("Dropping hypothesis or evidence output outside an active investigation",
			"case_id", c.ID, "status", string(c.Status))
	}

	suggested := suggestedPhase(env.SuggestedPhase)

	reply := env.Reply
	phaseChanged := false
	escalate := false
	if investigating {
		decision := e.phases.DetectLoopback(work, phase.Signals{
			RefutedThisTurn:      len(refuted),
			ScopeChanged:         suggested == state.PhaseBlastRadius && work.CurrentPhase == state.PhaseTimeline,
			TimelineContradicted: suggested == state.PhaseTimeline && work.CurrentPhase == state.PhaseValidation,
		})
		applied, suppressed := e.phases.ApplyLoopback(work, decision)
		switch {
		case applied:
			phaseChanged = true
			e.logger.Info("Loop-back applied",
				"case_id", c.ID,
				"outcome", string(decision.Outcome),
				"target", string(decision.Target),
				"reason", decision.Reason)
		case suppressed:
			escalate = true
			if work.Progress != nil {
				work.Progress.Momentum = state.MomentumStalled
			}
			reply += escalationSuffix
			e.logger.Warn("Loop-back suppressed by budget",
				"case_id", c.ID,
				"outcome", string(decision.Outcome),
				"loopback_count", work.LoopbackCount)
		default:
			if advanced := e.phases.AdvanceForward(work); len(advanced) > 0 {
				phaseChanged = true
			}
		}
	}

	status, statusChanged := e.applyStatusTransitions(c, work, suggested)

	twp := 0
	if work.Progress != nil {
		twp = work.Progress.TurnsWithoutProgress
	}
	outcome := classifyOutcome(delta, phaseChanged || statusChanged, twp, e.cfg.DegradedTurnsThreshold)
	if investigating {
		applyDegradedMode(work, turn, e.cfg.DegradedTurnsThreshold, outcome)
	}

	e.memories.RecordTurn(work, memory.TurnDigest{
		TurnNumber:        turn,
		Summary:           env.Reply,
		KeyInsights:       delta.milestones,
		EvidenceIDs:       delta.evidence,
		HypothesisUpdates: hypothesisUpdates(delta.hypotheses, refuted, validated),
		ConfidenceDelta:   leadConfidenceDelta(work, leadBefore),
	}, e.clock.Now())
	if turn%e.cfg.CompressionEveryNTurns == 0 {
		e.memories.Compress(work)
	}

	rec := state.TurnRecord{
		TurnNumber:          turn,
		Role:                "assistant",
		Outcome:             outcome,
		ProgressMade:        delta.progressed(),
		MilestonesCompleted: milestoneKeys(delta.milestones),
		HypothesesCreated:   delta.hypotheses,
		Timestamp:           e.clock.Now().UTC(),
	}
	if err := e.commit(ctx, c.ID, work, rec); err != nil {
		return nil, err
	}
	c.Status = status

	return &TurnOutcome{
		TurnNumber:          turn,
		Reply:               reply,
		Outcome:             outcome,
		ParseTier:           parsed.tier,
		Intensity:           intensity,
		Phase:               work.CurrentPhase,
		PhaseChanged:        phaseChanged,
		Status:              status,
		StatusChanged:       statusChanged,
		EscalationRequired:  escalate,
		MilestonesCompleted: delta.milestones,
		HypothesesCreated:   delta.hypotheses,
		EvidenceAdded:       delta.evidence,
		Usage:               usage,
		State:               work,
	}, nil
}

// commitErrorTurn records an unparseable LLM response as an ERROR turn:
// no hypothesis or evidence mutation, progress counters advance under
// their normal no-progress rule, and the user gets a fallback reply.
func (e *Engine) commitErrorTurn(ctx context.Context, c *Case, work *state.InvestigationState, turn int, intensity state.Intensity, usage llm.Usage, cause error) (*TurnOutcome, error) {
	e.logger.Error("Turn failed on malformed LLM output",
		"case_id", c.ID, "turn", turn, "error", cause)

	if c.Status == state.CaseStatusInvestigating {
		updateProgressMetrics(work, turn, turnDelta{}, e.cfg.DegradedTurnsThreshold)
		applyDegradedMode(work, turn, e.cfg.DegradedTurnsThreshold, state.TurnOutcomeError)
	}

	e.memories.RecordTurn(work, memory.TurnDigest{
		TurnNumber: turn,
		Summary:    "Turn failed: the model response could not be parsed. No investigative changes.",
	}, e.clock.Now())
	if turn%e.cfg.CompressionEveryNTurns == 0 {
		e.memories.Compress(work)
	}

	rec := state.TurnRecord{
		TurnNumber: turn,
		Role:       "assistant",
		Outcome:    state.TurnOutcomeError,
		Timestamp:  e.clock.Now().UTC(),
	}
	if err := e.commit(ctx, c.ID, work, rec); err != nil {
		return nil, err
	}

	return &TurnOutcome{
		TurnNumber: turn,
		Reply:      malformedReply,
		Outcome:    state.TurnOutcomeError,
		ErrorKind:  ErrorKind(ErrLLMMalformed),
		ParseTier:  TierKeyword,
		Intensity:  intensity,
		Phase:      work.CurrentPhase,
		Status:     c.Status,
		Usage:      usage,
		State:      work,
	}, nil
}

// commit validates the mutated state and saves it. Validation failure
// means the turn's mutations are defective and must not be persisted.
func (e *Engine) commit(ctx context.Context, caseID string, work *state.InvestigationState, rec state.TurnRecord) error {
	work.TurnHistory = append(work.TurnHistory, rec)
	if err := work.Validate(e.caps); err != nil {
		return fmt.Errorf("%w: %v", ErrInvariantViolation, err)
	}
	if err := e.store.Save(ctx, caseID, work); err != nil {
		if errors.Is(err, ErrLeaseLost) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrStatePersistFailed, err)
	}
	return nil
}

func (e *Engine) chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if e.cfg.LLMTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.LLMTimeout)
		defer cancel()
	}
	return e.provider.Chat(ctx, req)
}

func (e *Engine) temperatureFor(p state.Phase) *float32 {
	temp := e.cfg.Temperature
	if byPhase, ok := e.cfg.TemperatureByPhase[p]; ok {
		temp = byPhase
	}
	return &temp
}

// knowledgeHints searches the knowledge base and formats hits for the
// prompt. Failures degrade to no hints; a search outage must never block
// a turn.
func (e *Engine) knowledgeHints(ctx context.Context, query string) []string {
	if e.knowledge == nil || strings.TrimSpace(query) == "" {
		return nil
	}
	hits, err := e.knowledge.Search(ctx, query, e.cfg.KnowledgeTopK)
	if err != nil {
		e.logger.Warn("Knowledge search failed, continuing without hints", "error", err)
		return nil
	}
	hints := make([]string, 0, len(hits))
	for _, hit := range hits {
		title := strings.TrimSpace(hit.Title)
		snippet := strings.TrimSpace(hit.Snippet)
		switch {
		case title == "":
			hints = append(hints, snippet)
		case snippet == "":
			hints = append(hints, title)
		default:
			hints = append(hints, title+": "+snippet)
		}
	}
	return hints
}

// ingestHypotheses records the envelope's hypothesis proposals. Keyword
// extractions arrive unstructured and land as CAPTURED.
func (e *Engine) ingestHypotheses(s *state.InvestigationState, dicts []HypothesisDict, turn int, structured bool, delta *turnDelta) {
	for _, d := range dicts {
		statement := strings.TrimSpace(d.Statement)
		if statement == "" {
			continue
		}
		h, created := e.hypotheses.CreateOrPromote(s, hypothesis.Proposal{
			Statement:  statement,
			Category:   state.HypothesisCategory(strings.ToUpper(strings.TrimSpace(d.Category))),
			Likelihood: d.Likelihood,
		}, turn, structured)
		if created {
			delta.hypotheses = append(delta.hypotheses, h.ID)
		}
	}
}

// ingestEvidenceLinks registers referenced evidence and attaches it to
// hypotheses. Links naming evidence the case does not know and carrying
// no content summary are dropped; individual link failures are logged
// and skipped, never fatal. Returns the ids of hypotheses that gained a
// link this turn.
func (e *Engine) ingestEvidenceLinks(caseID string, s *state.InvestigationState, links []EvidenceLink, turn int, delta *turnDelta) []string {
	var touched []string
	for _, link := range links {
		evidenceID := strings.TrimSpace(link.EvidenceID)
		if s.FindEvidence(evidenceID) == nil {
			summary := strings.TrimSpace(link.ContentSummary)
			if summary == "" {
				e.logger.Warn("Dropping link to unknown evidence",
					"case_id", caseID, "evidence_id", evidenceID)
				continue
			}
			evidenceID = s.NextEvidenceID()
			s.Evidence = append(s.Evidence, state.Evidence{
				ID:             evidenceID,
				Category:       evidenceCategory(s, link),
				SourceType:     evidenceSource(link),
				ContentSummary: summary,
				TurnAdded:      turn,
			})
			delta.evidence = append(delta.evidence, evidenceID)
		}

		for _, hid := range link.Supports {
			if err := e.hypotheses.LinkEvidence(s, hid, evidenceID, hypothesis.StanceSupports, turn); err != nil {
				e.logger.Warn("Dropping evidence link", "case_id", caseID, "error", err)
				continue
			}
			touched = append(touched, hid)
		}
		for _, hid := range link.Refutes {
			if err := e.hypotheses.LinkEvidence(s, hid, evidenceID, hypothesis.StanceRefutes, turn); err != nil {
				e.logger.Warn("Dropping evidence link", "case_id", caseID, "error", err)
				continue
			}
			touched = append(touched, hid)
		}
	}
	return touched
}

// evidenceCategory picks the category for newly minted evidence: the
// link's own when valid, otherwise inferred from how far the
// investigation has progressed.
func evidenceCategory(s *state.InvestigationState, link EvidenceLink) state.EvidenceCategory {
	if c := state.EvidenceCategory(strings.ToUpper(strings.TrimSpace(link.Category))); c.IsValid() {
		return c
	}
	switch {
	case !s.MilestoneDone(state.MilestoneVerificationComplete):
		return state.EvidenceSymptom
	case s.MilestoneDone(state.MilestoneSolutionProposed):
		return state.EvidenceResolution
	default:
		return state.EvidenceCausal
	}
}

func evidenceSource(link EvidenceLink) state.EvidenceSourceType {
	if s := state.EvidenceSourceType(strings.ToUpper(strings.TrimSpace(link.SourceType))); s.IsValid() {
		return s
	}
	return state.SourceLLMInferred
}

// applyStatusTransitions evaluates the status ladder in order, allowing
// several rungs in one turn. Returns the final status and whether it
// moved.
func (e *Engine) applyStatusTransitions(c *Case, work *state.InvestigationState, suggested state.Phase) (state.CaseStatus, bool) {
	status := c.Status

	if status == state.CaseStatusConsulting &&
		work.MilestoneDone(state.MilestoneProblemStatementConfirmed) &&
		work.MilestoneDone(state.MilestoneDecidedToInvestigate) {
		status = state.CaseStatusInvestigating
		if work.ProblemStatement == "" {
			work.ProblemStatement = c.Description
		}
		e.ooda.Bump(work)
	}
	if status == state.CaseStatusInvestigating && work.MilestoneDone(state.MilestoneSolutionVerified) {
		status = state.CaseStatusResolved
	}
	if status == state.CaseStatusResolved && suggested == state.PhaseDocument {
		status = state.CaseStatusDocumenting
		work.CurrentPhase = state.PhaseDocument
	}
	if status == state.CaseStatusDocumenting && work.MilestoneDone(state.MilestoneDocumented) {
		status = state.CaseStatusClosed
	}

	return status, status != c.Status
}

func suggestedPhase(raw string) state.Phase {
	p := state.Phase(strings.ToUpper(strings.TrimSpace(raw)))
	if !p.IsValid() {
		return ""
	}
	return p
}

func hypothesisStatuses(s *state.InvestigationState) map[string]state.HypothesisStatus {
	statuses := make(map[string]state.HypothesisStatus, len(s.Hypotheses))
	for i := range s.Hypotheses {
		statuses[s.Hypotheses[i].ID] = s.Hypotheses[i].Status
	}
	return statuses
}

// hypothesisStatusChanges diffs statuses across a recompute and reports
// which hypotheses became REFUTED and which VALIDATED this turn.
func hypothesisStatusChanges(before map[string]state.HypothesisStatus, s *state.InvestigationState) (refuted, validated []string) {
	for i := range s.Hypotheses {
		h := &s.Hypotheses[i]
		switch h.Status {
		case state.HypothesisRefuted:
			if before[h.ID] != state.HypothesisRefuted {
				refuted = append(refuted, h.ID)
			}
		case state.HypothesisValidated:
			if before[h.ID] != state.HypothesisValidated {
				validated = append(validated, h.ID)
			}
		}
	}
	return refuted, validated
}

func hypothesisUpdates(created, refuted, validated []string) []string {
	var updates []string
	for _, id := range created {
		updates = append(updates, id+" created")
	}
	for _, id := range validated {
		updates = append(updates, id+" validated")
	}
	for _, id := range refuted {
		updates = append(updates, id+" refuted")
	}
	return updates
}

func leadConfidenceDelta(s *state.InvestigationState, before float64) float64 {
	lead := leadingHypothesis(s)
	if lead == nil {
		return 0 - before
	}
	return lead.Confidence - before
}

func milestoneKeys(names []string) []state.Milestone {
	if len(names) == 0 {
		return nil
	}
	keys := make([]state.Milestone, 0, len(names))
	for _, n := range names {
		keys = append(keys, state.Milestone(n))
	}
	return keys
}
