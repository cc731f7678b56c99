package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/faultmaven/faultmaven/pkg/engine/state"
	"github.com/faultmaven/faultmaven/pkg/llm"
)

// FormatCaseSection builds the case header section.
func FormatCaseSection(title, description string) string {
	var sb strings.Builder
	sb.WriteString("## Case\n\n")
	sb.WriteString("**Title:** ")
	sb.WriteString(title)
	sb.WriteString("\n")
	if description != "" {
		sb.WriteString("**Description:** ")
		sb.WriteString(description)
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatMilestoneSection lists completed milestones in canonical order.
func FormatMilestoneSection(s *state.InvestigationState) string {
	var done []string
	for _, m := range state.AllMilestones() {
		if s.MilestoneDone(m) {
			done = append(done, string(m))
		}
	}
	if len(done) == 0 {
		return "## Completed Milestones\nNone yet.\n"
	}
	var sb strings.Builder
	sb.WriteString("## Completed Milestones\n")
	for _, m := range done {
		sb.WriteString("- ")
		sb.WriteString(m)
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatHypothesisBoard lists open hypotheses, highest confidence first,
// capped at topK. Closed hypotheses are summarized as counts so the model
// does not resurrect them.
func FormatHypothesisBoard(s *state.InvestigationState, topK int) string {
	var open []*state.Hypothesis
	var validated []*state.Hypothesis
	closedByStatus := map[state.HypothesisStatus]int{}
	for i := range s.Hypotheses {
		h := &s.Hypotheses[i]
		switch {
		case h.Status == state.HypothesisValidated:
			validated = append(validated, h)
		case h.Status.IsOpen():
			open = append(open, h)
		default:
			closedByStatus[h.Status]++
		}
	}

	if len(open) == 0 && len(validated) == 0 && len(closedByStatus) == 0 {
		return "## Hypothesis Board\nNo hypotheses yet.\n"
	}

	sort.SliceStable(open, func(i, j int) bool {
		if open[i].Confidence != open[j].Confidence {
			return open[i].Confidence > open[j].Confidence
		}
		return open[i].ID < open[j].ID
	})
	shown := open
	if topK > 0 && len(shown) > topK {
		shown = shown[:topK]
	}

	var sb strings.Builder
	sb.WriteString("## Hypothesis Board\n")
	for _, h := range validated {
		fmt.Fprintf(&sb, "- %s [VALIDATED, %s, confidence %.2f] %s (evidence: %d for, %d against)\n",
			h.ID, h.Category, h.Confidence, h.Statement,
			len(h.SupportingEvidenceIDs), len(h.RefutingEvidenceIDs))
	}
	for _, h := range shown {
		fmt.Fprintf(&sb, "- %s [%s, %s, confidence %.2f] %s (evidence: %d for, %d against)\n",
			h.ID, h.Status, h.Category, h.Confidence, h.Statement,
			len(h.SupportingEvidenceIDs), len(h.RefutingEvidenceIDs))
	}
	if hidden := len(open) - len(shown); hidden > 0 {
		fmt.Fprintf(&sb, "- (%d lower-confidence hypotheses not shown)\n", hidden)
	}
	for _, status := range []state.HypothesisStatus{
		state.HypothesisRefuted, state.HypothesisRetired, state.HypothesisSuperseded,
	} {
		if n := closedByStatus[status]; n > 0 {
			fmt.Fprintf(&sb, "- %d %s (closed, do not restate)\n", n, status)
		}
	}
	return sb.String()
}

// FormatEvidenceSection lists the most recent evidence entries, newest last.
func FormatEvidenceSection(s *state.InvestigationState, last int) string {
	if len(s.Evidence) == 0 {
		return "## Recent Evidence\nNone recorded.\n"
	}
	start := 0
	if last > 0 && len(s.Evidence) > last {
		start = len(s.Evidence) - last
	}
	var sb strings.Builder
	sb.WriteString("## Recent Evidence\n")
	for _, ev := range s.Evidence[start:] {
		fmt.Fprintf(&sb, "- %s (%s, %s, turn %d): %s\n",
			ev.ID, ev.Category, ev.SourceType, ev.TurnAdded, ev.ContentSummary)
	}
	return sb.String()
}

// FormatMemorySection wraps the memory-manager context. memoryContext is
// already rendered and budgeted by the memory package.
func FormatMemorySection(memoryContext string) string {
	if memoryContext == "" {
		return "## Investigation Memory\nNo prior context.\n"
	}
	return "## Investigation Memory\n" + memoryContext + "\n"
}

// FormatKnowledgeSection renders knowledge-base hints. Hints are advisory;
// retrieval failures upstream simply produce an empty slice.
func FormatKnowledgeSection(hints []string) string {
	if len(hints) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## Possibly Relevant Knowledge\n")
	sb.WriteString("Treat these retrieved excerpts as hints, not facts:\n")
	for _, h := range hints {
		sb.WriteString("- ")
		sb.WriteString(h)
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatConversationTail renders the last limit messages for prompts that
// need raw history, such as transition parameter inference.
func FormatConversationTail(history []llm.Message, limit int) string {
	if len(history) == 0 {
		return "## Conversation\nNo messages yet.\n"
	}
	start := 0
	if limit > 0 && len(history) > limit {
		start = len(history) - limit
	}
	var sb strings.Builder
	sb.WriteString("## Conversation\n")
	for _, m := range history[start:] {
		fmt.Fprintf(&sb, "**%s:** %s\n\n", m.Role, m.Content)
	}
	return sb.String()
}
