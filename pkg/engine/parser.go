package engine

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/faultmaven/faultmaven/pkg/engine/state"
)

// ParseTier identifies which strategy recovered the envelope from the raw
// LLM text. Lower tiers are more trustworthy; the engine treats keyword
// extractions as unstructured (hypotheses land as CAPTURED, not ACTIVE).
type ParseTier int

const (
	// TierStructured means the whole response body was a JSON envelope.
	TierStructured ParseTier = 1
	// TierEmbedded means a fenced JSON block inside prose held the envelope.
	TierEmbedded ParseTier = 2
	// TierKeyword means plain text was scanned for milestone and hypothesis
	// cues.
	TierKeyword ParseTier = 3
)

func (t ParseTier) String() string {
	switch t {
	case TierStructured:
		return "structured"
	case TierEmbedded:
		return "embedded"
	case TierKeyword:
		return "keyword"
	default:
		return fmt.Sprintf("tier-%d", int(t))
	}
}

var fencedJSONPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// parseResult is the outcome of envelope recovery for one turn.
type parseResult struct {
	envelope Envelope
	tier     ParseTier
}

// parseResponse recovers a structured envelope from raw LLM output. It
// never fails on well-formed text: when neither JSON tier applies, the
// keyword tier produces a best-effort envelope whose reply is the text
// itself. Only an empty response is an error.
func parseResponse(text string) (*parseResult, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty response text", ErrLLMMalformed)
	}

	if env, ok := parseStructured(trimmed); ok {
		return &parseResult{envelope: *env, tier: TierStructured}, nil
	}
	if env, ok := parseEmbedded(trimmed); ok {
		return &parseResult{envelope: *env, tier: TierEmbedded}, nil
	}
	return &parseResult{envelope: *parseKeywords(trimmed), tier: TierKeyword}, nil
}

// parseStructured accepts only a response whose entire body is a JSON
// envelope carrying a reply. Anything else falls through to the next tier.
func parseStructured(text string) (*Envelope, bool) {
	if !strings.HasPrefix(text, "{") {
		return nil, false
	}
	var env Envelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return nil, false
	}
	if strings.TrimSpace(env.Reply) == "" {
		return nil, false
	}
	return &env, true
}

// parseEmbedded looks for a fenced JSON block inside prose. The first block
// that unmarshals as an envelope wins; prose around the block becomes the
// reply when the envelope itself carries none.
func parseEmbedded(text string) (*Envelope, bool) {
	for _, loc := range fencedJSONPattern.FindAllStringSubmatchIndex(text, -1) {
		candidate := text[loc[2]:loc[3]]
		var env Envelope
		if err := json.Unmarshal([]byte(candidate), &env); err != nil {
			continue
		}
		if strings.TrimSpace(env.Reply) == "" {
			surrounding := strings.TrimSpace(text[:loc[0]] + text[loc[1]:])
			if surrounding == "" {
				continue
			}
			env.Reply = surrounding
		}
		return &env, true
	}
	return nil, false
}

// keywordMilestones maps plain-text cues to milestone keys for the keyword
// tier. Scanned in order; matching is substring on the lowercased reply.
var keywordMilestones = []struct {
	cues      []string
	milestone state.Milestone
}{
	{[]string{"symptom", "reproduce"}, state.MilestoneSymptomVerified},
	{[]string{"scope", "affected"}, state.MilestoneScopeConfirmed},
	{[]string{"timeline", "started at"}, state.MilestoneTimelineReconstructed},
	{[]string{"root cause"}, state.MilestoneRootCauseIdentified},
	{[]string{"fix", "mitigation", "workaround"}, state.MilestoneSolutionProposed},
	{[]string{"verified", "confirmed fix"}, state.MilestoneSolutionVerified},
}

// hypothesisCues mark a sentence as a root-cause candidate worth capturing.
var hypothesisCues = []string{
	"i suspect",
	"hypothesis:",
	"likely cause",
	"probably caused by",
	"might be",
	"could be",
}

// phaseCues map loop-back and wrap-up language to a suggested phase.
var phaseCues = []struct {
	cue   string
	phase state.Phase
}{
	{"scope change", state.PhaseBlastRadius},
	{"contradicts the timeline", state.PhaseTimeline},
	{"retrospective", state.PhaseDocument},
	{"document", state.PhaseDocument},
}

var sentenceSplitPattern = regexp.MustCompile(`[.!?\n]+`)

// parseKeywords builds a best-effort envelope from free text. The whole
// text becomes the reply; milestones, one captured hypothesis, and a
// suggested phase are inferred from cue words.
func parseKeywords(text string) *Envelope {
	lower := strings.ToLower(text)
	env := &Envelope{Reply: text}

	for _, km := range keywordMilestones {
		for _, cue := range km.cues {
			if strings.Contains(lower, cue) {
				env.MilestonesCompleted = append(env.MilestonesCompleted, string(km.milestone))
				break
			}
		}
	}

	if sentence := hypothesisSentence(text); sentence != "" {
		env.Hypotheses = append(env.Hypotheses, HypothesisDict{Statement: sentence})
	}

	for _, pc := range phaseCues {
		if strings.Contains(lower, pc.cue) {
			env.SuggestedPhase = string(pc.phase)
			break
		}
	}
	return env
}

// hypothesisSentence returns the first sentence containing a hypothesis
// cue, or "" when the text offers none.
func hypothesisSentence(text string) string {
	for _, raw := range sentenceSplitPattern.Split(text, -1) {
		sentence := strings.TrimSpace(raw)
		if sentence == "" {
			continue
		}
		lower := strings.ToLower(sentence)
		for _, cue := range hypothesisCues {
			if strings.Contains(lower, cue) {
				return sentence
			}
		}
	}
	return ""
}
