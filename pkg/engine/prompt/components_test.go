package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/faultmaven/faultmaven/pkg/engine/state"
	"github.com/faultmaven/faultmaven/pkg/llm"
)

func TestFormatCaseSection(t *testing.T) {
	result := FormatCaseSection("API 500s", "Prod API returning 500s since 14:00")
	assert.Contains(t, result, "## Case")
	assert.Contains(t, result, "**Title:** API 500s")
	assert.Contains(t, result, "**Description:** Prod API returning 500s since 14:00")
}

func TestFormatCaseSection_NoDescription(t *testing.T) {
	result := FormatCaseSection("API 500s", "")
	assert.Contains(t, result, "**Title:** API 500s")
	assert.NotContains(t, result, "Description")
}

func TestFormatMilestoneSection(t *testing.T) {
	s := state.New()
	assert.Contains(t, FormatMilestoneSection(s), "None yet")

	s.SetMilestone(state.MilestoneSymptomVerified)
	s.SetMilestone(state.MilestoneScopeConfirmed)
	result := FormatMilestoneSection(s)
	assert.Contains(t, result, "- symptom_verified")
	assert.Contains(t, result, "- scope_confirmed")
	assert.NotContains(t, result, "timeline_reconstructed")

	// canonical ordering, not insertion ordering
	assert.Less(t, strings.Index(result, "symptom_verified"), strings.Index(result, "scope_confirmed"))
}

func TestFormatHypothesisBoard_Empty(t *testing.T) {
	s := state.New()
	assert.Contains(t, FormatHypothesisBoard(s, 5), "No hypotheses yet")
}

func TestFormatHypothesisBoard_OrdersByConfidence(t *testing.T) {
	s := state.New()
	s.Hypotheses = []state.Hypothesis{
		{ID: "hyp-001", Statement: "low lead", Category: state.CategoryCode, Status: state.HypothesisActive, Confidence: 0.3},
		{ID: "hyp-002", Statement: "strong lead", Category: state.CategoryInfrastructure, Status: state.HypothesisActive, Confidence: 0.8},
	}

	result := FormatHypothesisBoard(s, 5)
	assert.Less(t, strings.Index(result, "hyp-002"), strings.Index(result, "hyp-001"))
	assert.Contains(t, result, "confidence 0.80")
}

func TestFormatHypothesisBoard_TopKAndClosedCounts(t *testing.T) {
	s := state.New()
	s.Hypotheses = []state.Hypothesis{
		{ID: "hyp-001", Statement: "a", Category: state.CategoryCode, Status: state.HypothesisActive, Confidence: 0.9},
		{ID: "hyp-002", Statement: "b", Category: state.CategoryCode, Status: state.HypothesisActive, Confidence: 0.8},
		{ID: "hyp-003", Statement: "c", Category: state.CategoryCode, Status: state.HypothesisActive, Confidence: 0.7},
		{ID: "hyp-004", Statement: "d", Category: state.CategoryData, Status: state.HypothesisRefuted, Confidence: 0.1},
		{ID: "hyp-005", Statement: "e", Category: state.CategoryData, Status: state.HypothesisRetired, Confidence: 0.2},
	}

	result := FormatHypothesisBoard(s, 2)
	assert.Contains(t, result, "hyp-001")
	assert.Contains(t, result, "hyp-002")
	assert.NotContains(t, result, "hyp-003")
	assert.Contains(t, result, "(1 lower-confidence hypotheses not shown)")
	assert.Contains(t, result, "1 REFUTED (closed, do not restate)")
	assert.Contains(t, result, "1 RETIRED (closed, do not restate)")
}

func TestFormatHypothesisBoard_ValidatedShownFirst(t *testing.T) {
	s := state.New()
	s.Hypotheses = []state.Hypothesis{
		{ID: "hyp-001", Statement: "open lead", Category: state.CategoryCode, Status: state.HypothesisActive, Confidence: 0.95},
		{ID: "hyp-002", Statement: "confirmed root cause", Category: state.CategoryConfig, Status: state.HypothesisValidated, Confidence: 0.85},
	}

	result := FormatHypothesisBoard(s, 5)
	assert.Contains(t, result, "VALIDATED")
	assert.Less(t, strings.Index(result, "hyp-002"), strings.Index(result, "hyp-001"))
}

func TestFormatEvidenceSection(t *testing.T) {
	s := state.New()
	assert.Contains(t, FormatEvidenceSection(s, 5), "None recorded")

	for i := 1; i <= 7; i++ {
		s.Evidence = append(s.Evidence, state.Evidence{
			ID:             s.NextEvidenceID(),
			Category:       state.EvidenceSymptom,
			SourceType:     state.SourceUserProvided,
			ContentSummary: "observation",
			TurnAdded:      i,
		})
	}

	result := FormatEvidenceSection(s, 5)
	assert.NotContains(t, result, "ev-001")
	assert.NotContains(t, result, "ev-002")
	assert.Contains(t, result, "ev-003")
	assert.Contains(t, result, "ev-007")
}

func TestFormatMemorySection(t *testing.T) {
	assert.Contains(t, FormatMemorySection(""), "No prior context")

	result := FormatMemorySection("### Recent Turns\n- Turn 4: checked DNS")
	assert.Contains(t, result, "## Investigation Memory")
	assert.Contains(t, result, "Turn 4: checked DNS")
}

func TestFormatKnowledgeSection(t *testing.T) {
	assert.Empty(t, FormatKnowledgeSection(nil))

	result := FormatKnowledgeSection([]string{"past incident: DNS TTL misconfig"})
	assert.Contains(t, result, "## Possibly Relevant Knowledge")
	assert.Contains(t, result, "hints, not facts")
	assert.Contains(t, result, "DNS TTL misconfig")
}

func TestFormatConversationTail(t *testing.T) {
	assert.Contains(t, FormatConversationTail(nil, 5), "No messages yet")

	history := []llm.Message{
		{Role: llm.RoleUser, Content: "first"},
		{Role: llm.RoleAssistant, Content: "second"},
		{Role: llm.RoleUser, Content: "third"},
	}
	result := FormatConversationTail(history, 2)
	assert.NotContains(t, result, "first")
	assert.Contains(t, result, "**assistant:** second")
	assert.Contains(t, result, "**user:** third")
}
