package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faultmaven/faultmaven/pkg/engine/state"
)

func TestParseResponse_StructuredEnvelope(t *testing.T) {
	text := `{
		"reply": "The symptom is confirmed on both replicas.",
		"milestones_completed": ["symptom_verified"],
		"hypotheses": [
			{"statement": "Connection pool exhaustion under burst load", "category": "CONFIG", "likelihood": 0.6}
		],
		"evidence_links": [
			{"evidence_id": "ev-001", "supports": ["hyp-001"], "refutes": []}
		],
		"suggested_phase": "BLAST_RADIUS"
	}`

	result, err := parseResponse(text)
	require.NoError(t, err)

	assert.Equal(t, TierStructured, result.tier)
	assert.Equal(t, "The symptom is confirmed on both replicas.", result.envelope.Reply)
	assert.Equal(t, []string{"symptom_verified"}, result.envelope.MilestonesCompleted)
	require.Len(t, result.envelope.Hypotheses, 1)
	assert.Equal(t, "CONFIG", result.envelope.Hypotheses[0].Category)
	assert.InDelta(t, 0.6, result.envelope.Hypotheses[0].Likelihood, 1e-9)
	require.Len(t, result.envelope.EvidenceLinks, 1)
	assert.Equal(t, []string{"hyp-001"}, result.envelope.EvidenceLinks[0].Supports)
	assert.Equal(t, "BLAST_RADIUS", result.envelope.SuggestedPhase)
}

func TestParseResponse_StructuredWithoutReplyFallsThrough(t *testing.T) {
	text := `{"milestones_completed": ["scope_confirmed"]}`

	result, err := parseResponse(text)
	require.NoError(t, err)

	assert.Equal(t, TierKeyword, result.tier)
	assert.Equal(t, text, result.envelope.Reply)
	assert.Contains(t, result.envelope.MilestonesCompleted, string(state.MilestoneScopeConfirmed))
}

func TestParseResponse_EmbeddedEnvelope(t *testing.T) {
	text := "Here is what I found so far.\n\n" +
		"```json\n" +
		`{"reply": "", "milestones_completed": ["timeline_reconstructed"], "hypotheses": [], "evidence_links": []}` +
		"\n```\n\nLet me know if the window looks right."

	result, err := parseResponse(text)
	require.NoError(t, err)

	assert.Equal(t, TierEmbedded, result.tier)
	assert.Equal(t, []string{"timeline_reconstructed"}, result.envelope.MilestonesCompleted)
	assert.Contains(t, result.envelope.Reply, "Here is what I found so far.")
	assert.Contains(t, result.envelope.Reply, "Let me know if the window looks right.")
	assert.NotContains(t, result.envelope.Reply, "```")
}

func TestParseResponse_EmbeddedKeepsEnvelopeReply(t *testing.T) {
	text := "Preamble the model wrote.\n" +
		"```json\n" +
		`{"reply": "Inner reply wins.", "milestones_completed": [], "hypotheses": [], "evidence_links": []}` +
		"\n```"

	result, err := parseResponse(text)
	require.NoError(t, err)

	assert.Equal(t, TierEmbedded, result.tier)
	assert.Equal(t, "Inner reply wins.", result.envelope.Reply)
}

func TestParseResponse_EmbeddedSkipsBrokenBlocks(t *testing.T) {
	text := "First attempt:\n" +
		"```json\n{\"broken\": }\n```\n" +
		"Second attempt:\n" +
		"```json\n{\"reply\": \"Recovered.\", \"milestones_completed\": [], \"hypotheses\": [], \"evidence_links\": []}\n```"

	result, err := parseResponse(text)
	require.NoError(t, err)

	assert.Equal(t, TierEmbedded, result.tier)
	assert.Equal(t, "Recovered.", result.envelope.Reply)
}

func TestParseResponse_EmbeddedBareBlockWithoutReplyFallsThrough(t *testing.T) {
	text := "```json\n" +
		`{"reply": "", "milestones_completed": ["scope_confirmed"], "hypotheses": [], "evidence_links": []}` +
		"\n```"

	result, err := parseResponse(text)
	require.NoError(t, err)

	assert.Equal(t, TierKeyword, result.tier)
	assert.Equal(t, text, result.envelope.Reply)
}

func TestParseResponse_EmptyTextIsMalformed(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t\n"} {
		_, err := parseResponse(text)
		assert.ErrorIs(t, err, ErrLLMMalformed)
	}
}

func TestParseKeywords_MilestoneCues(t *testing.T) {
	tests := []struct {
		name string
		text string
		want state.Milestone
	}{
		{"reproduce", "I was able to reproduce the error on staging.", state.MilestoneSymptomVerified},
		{"affected", "Only the EU region is affected.", state.MilestoneScopeConfirmed},
		{"started at", "The errors started at 14:02 UTC.", state.MilestoneTimelineReconstructed},
		{"root cause", "The root cause is a stale DNS entry.", state.MilestoneRootCauseIdentified},
		{"workaround", "A workaround is to restart the pods.", state.MilestoneSolutionProposed},
		{"verified", "The rollback is verified in production.", state.MilestoneSolutionVerified},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := parseKeywords(tc.text)
			assert.Contains(t, env.MilestonesCompleted, string(tc.want))
			assert.Equal(t, tc.text, env.Reply)
		})
	}
}

func TestParseKeywords_HypothesisSentence(t *testing.T) {
	text := "Thanks for the logs. I suspect the connection pool is exhausted. We should check pool metrics next."

	env := parseKeywords(text)

	require.Len(t, env.Hypotheses, 1)
	assert.Equal(t, "I suspect the connection pool is exhausted", env.Hypotheses[0].Statement)
	assert.Zero(t, env.Hypotheses[0].Likelihood)
}

func TestParseKeywords_NoHypothesisWithoutCue(t *testing.T) {
	env := parseKeywords("Please share the deploy log for the gateway service.")
	assert.Empty(t, env.Hypotheses)
}

func TestParseKeywords_SuggestedPhase(t *testing.T) {
	tests := []struct {
		name string
		text string
		want state.Phase
	}{
		{"scope change", "This looks like a scope change, more services are failing.", state.PhaseBlastRadius},
		{"timeline contradiction", "That log line contradicts the timeline we built.", state.PhaseTimeline},
		{"retrospective", "Time to write the retrospective.", state.PhaseDocument},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := parseKeywords(tc.text)
			assert.Equal(t, string(tc.want), env.SuggestedPhase)
		})
	}
}

func TestParseTierString(t *testing.T) {
	assert.Equal(t, "structured", TierStructured.String())
	assert.Equal(t, "embedded", TierEmbedded.String())
	assert.Equal(t, "keyword", TierKeyword.String())
}
