package prompt

import (
	"fmt"
	"strings"

	"github.com/faultmaven/faultmaven/pkg/engine/state"
	"github.com/faultmaven/faultmaven/pkg/llm"
)

// evidenceTailLen is how many recent evidence entries the investigating
// prompt carries.
const evidenceTailLen = 5

// transitionHistoryLen caps how much raw conversation the transition
// proposal prompt sees.
const transitionHistoryLen = 20

// historyTailLen caps how many prior messages are replayed verbatim before
// the composed turn message. Older context reaches the model through the
// memory section instead.
const historyTailLen = 12

// Builder composes the per-turn conversations sent to the LLM. Stateless
// and safe for concurrent use.
type Builder struct{}

// NewBuilder creates a prompt builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// TurnInput carries everything one turn's prompt composition needs.
type TurnInput struct {
	CaseTitle       string
	CaseDescription string
	Status          state.CaseStatus
	UserMessage     string

	// History is the prior conversation, oldest first. Only a short tail
	// is replayed verbatim.
	History []llm.Message

	// Investigating-only fields. State may be nil for consulting turns.
	State          *state.InvestigationState
	Phase          state.Phase
	Intensity      state.Intensity
	MemoryContext  string
	KnowledgeHints []string
}

// hypothesisTopK maps turn intensity to how many open hypotheses the prompt
// shows.
func hypothesisTopK(intensity state.Intensity) int {
	switch intensity {
	case state.IntensityMedium:
		return 5
	case state.IntensityFull:
		return 10
	default:
		return 3
	}
}

// BuildTurnMessages selects the status-specific template and builds the
// system and user messages for one turn.
func (b *Builder) BuildTurnMessages(in TurnInput) []llm.Message {
	switch in.Status {
	case state.CaseStatusInvestigating:
		return b.buildInvestigatingMessages(in)
	case state.CaseStatusDocumenting, state.CaseStatusResolved, state.CaseStatusClosed:
		return b.buildTerminalMessages(in)
	default:
		return b.buildConsultingMessages(in)
	}
}

func (b *Builder) buildConsultingMessages(in TurnInput) []llm.Message {
	var sb strings.Builder
	sb.WriteString(FormatCaseSection(in.CaseTitle, in.CaseDescription))
	sb.WriteString("\n")
	sb.WriteString("## User Message\n")
	sb.WriteString(in.UserMessage)
	sb.WriteString("\n\n")
	sb.WriteString(consultingTask)

	return spliceHistory(
		llm.Message{Role: llm.RoleSystem, Content: ComposeConsultingSystem()},
		in.History,
		llm.Message{Role: llm.RoleUser, Content: sb.String()},
	)
}

func (b *Builder) buildInvestigatingMessages(in TurnInput) []llm.Message {
	var sb strings.Builder
	sb.WriteString(FormatCaseSection(in.CaseTitle, in.CaseDescription))
	sb.WriteString("\n")

	if in.State != nil {
		sb.WriteString(FormatMemorySection(in.MemoryContext))
		sb.WriteString("\n")
		sb.WriteString(FormatMilestoneSection(in.State))
		sb.WriteString("\n")
		sb.WriteString(FormatHypothesisBoard(in.State, hypothesisTopK(in.Intensity)))
		sb.WriteString("\n")
		sb.WriteString(FormatEvidenceSection(in.State, evidenceTailLen))
		sb.WriteString("\n")
	}

	if ks := FormatKnowledgeSection(in.KnowledgeHints); ks != "" {
		sb.WriteString(ks)
		sb.WriteString("\n")
	}

	if in.State != nil && in.State.ForceAlternativeCategories {
		missing := unrepresentedCategoryNames(in.State)
		fmt.Fprintf(&sb, alternativeCategoriesDirective, strings.Join(missing, ", "))
		sb.WriteString("\n\n")
	}
	if in.State != nil && in.State.Progress != nil && in.State.Progress.IsDegradedMode {
		fmt.Fprintf(&sb, degradedModeNotice, in.State.Progress.TurnsWithoutProgress)
		sb.WriteString("\n\n")
	}
	if in.State != nil && in.State.Progress != nil &&
		in.State.Progress.Momentum == state.MomentumStalled &&
		in.State.LoopbackCount >= state.DefaultCaps().LoopbackMax {
		sb.WriteString(escalationNotice)
		sb.WriteString("\n\n")
	}

	sb.WriteString("## User Message\n")
	sb.WriteString(in.UserMessage)
	sb.WriteString("\n\n")
	sb.WriteString(investigatingTask)

	return spliceHistory(
		llm.Message{Role: llm.RoleSystem, Content: ComposeInvestigatingSystem(in.Phase, in.Intensity)},
		in.History,
		llm.Message{Role: llm.RoleUser, Content: sb.String()},
	)
}

func (b *Builder) buildTerminalMessages(in TurnInput) []llm.Message {
	var sb strings.Builder
	sb.WriteString(FormatCaseSection(in.CaseTitle, in.CaseDescription))
	sb.WriteString("\n")
	if in.State != nil {
		sb.WriteString(FormatMilestoneSection(in.State))
		sb.WriteString("\n")
		sb.WriteString(FormatHypothesisBoard(in.State, 3))
		sb.WriteString("\n")
		sb.WriteString(FormatMemorySection(in.MemoryContext))
		sb.WriteString("\n")
	}
	sb.WriteString("## User Message\n")
	sb.WriteString(in.UserMessage)
	sb.WriteString("\n\n")
	sb.WriteString(terminalTask)

	return spliceHistory(
		llm.Message{Role: llm.RoleSystem, Content: ComposeTerminalSystem()},
		in.History,
		llm.Message{Role: llm.RoleUser, Content: sb.String()},
	)
}

// spliceHistory places a bounded tail of the prior conversation between the
// system message and the composed turn message.
func spliceHistory(system llm.Message, history []llm.Message, user llm.Message) []llm.Message {
	tail := history
	if len(tail) > historyTailLen {
		tail = tail[len(tail)-historyTailLen:]
	}
	out := make([]llm.Message, 0, len(tail)+2)
	out = append(out, system)
	out = append(out, tail...)
	out = append(out, user)
	return out
}

// BuildTransitionProposalMessages builds the conversation for inferring
// investigation parameters from consulting history.
func (b *Builder) BuildTransitionProposalMessages(title, description string, history []llm.Message) []llm.Message {
	var sb strings.Builder
	sb.WriteString(FormatCaseSection(title, description))
	sb.WriteString("\n")
	sb.WriteString(FormatConversationTail(history, transitionHistoryLen))
	sb.WriteString("\n")
	sb.WriteString(transitionProposalTask)

	return []llm.Message{
		{Role: llm.RoleSystem, Content: transitionProposalInstructions},
		{Role: llm.RoleUser, Content: sb.String()},
	}
}

// unrepresentedCategoryNames lists categories with no open hypothesis, in
// canonical order.
func unrepresentedCategoryNames(s *state.InvestigationState) []string {
	present := map[state.HypothesisCategory]bool{}
	for i := range s.Hypotheses {
		if s.Hypotheses[i].Status.IsOpen() {
			present[s.Hypotheses[i].Category] = true
		}
	}
	var out []string
	for _, c := range state.AllCategories() {
		if !present[c] {
			out = append(out, string(c))
		}
	}
	if len(out) == 0 {
		for _, c := range state.AllCategories() {
			out = append(out, string(c))
		}
	}
	return out
}
