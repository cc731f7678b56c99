package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validState() *InvestigationState {
	s := New()
	s.Evidence = []Evidence{
		{ID: "ev-001", Category: EvidenceSymptom, SourceType: SourceUserProvided, TurnAdded: 1},
	}
	s.Hypotheses = []Hypothesis{{
		ID: "hyp-001", Statement: "bad deploy", Category: CategoryCode,
		Status: HypothesisActive, Likelihood: 0.5, Confidence: 0.65,
		ConfidenceTrajectory:  []ConfidencePoint{{Turn: 1, Confidence: 0.65}},
		SupportingEvidenceIDs: []string{"ev-001"},
		CreatedTurn:           1, LastUpdatedTurn: 1,
	}}
	s.TurnHistory = []TurnRecord{
		{TurnNumber: 1, Role: "assistant", Outcome: TurnOutcomeProgress, ProgressMade: true},
	}
	return s
}

func TestValidate_OK(t *testing.T) {
	require.NoError(t, validState().Validate(DefaultCaps()))
}

func TestValidate_TurnGap(t *testing.T) {
	s := validState()
	s.TurnHistory = append(s.TurnHistory, TurnRecord{TurnNumber: 3})

	err := s.Validate(DefaultCaps())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not contiguous")
}

func TestValidate_DanglingEvidenceRef(t *testing.T) {
	s := validState()
	s.Hypotheses[0].RefutingEvidenceIDs = []string{"ev-999"}

	err := s.Validate(DefaultCaps())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing refuting evidence")
}

func TestValidate_TwoValidated(t *testing.T) {
	s := validState()
	s.Hypotheses[0].Status = HypothesisValidated
	s.Hypotheses = append(s.Hypotheses, Hypothesis{
		ID: "hyp-002", Status: HypothesisValidated, Confidence: 0.8,
		ConfidenceTrajectory: []ConfidencePoint{{Turn: 1, Confidence: 0.8}},
	})

	err := s.Validate(DefaultCaps())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VALIDATED")
}

func TestValidate_TrajectoryOutOfOrder(t *testing.T) {
	s := validState()
	s.Hypotheses[0].ConfidenceTrajectory = []ConfidencePoint{
		{Turn: 3, Confidence: 0.5}, {Turn: 2, Confidence: 0.65},
	}

	err := s.Validate(DefaultCaps())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not monotonic")
}

func TestValidate_TrajectoryTailMismatch(t *testing.T) {
	s := validState()
	s.Hypotheses[0].Confidence = 0.9 // tail still says 0.65

	err := s.Validate(DefaultCaps())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disagrees with confidence")
}

func TestValidate_ConfidenceRange(t *testing.T) {
	s := validState()
	s.Hypotheses[0].Confidence = 1.2
	s.Hypotheses[0].ConfidenceTrajectory = []ConfidencePoint{{Turn: 1, Confidence: 1.2}}

	err := s.Validate(DefaultCaps())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside [0,1]")
}

func TestValidate_MemoryCaps(t *testing.T) {
	s := validState()
	for i := 0; i < 4; i++ {
		s.Memory.Hot = append(s.Memory.Hot, MemorySnapshot{SnapshotID: "x", Tier: TierHot})
	}

	err := s.Validate(DefaultCaps())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hot memory")
}

func TestValidate_LoopbackCap(t *testing.T) {
	s := validState()
	s.LoopbackCount = 4

	err := s.Validate(DefaultCaps())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loopback_count")
}

func TestValidate_UnknownMilestoneKey(t *testing.T) {
	s := validState()
	s.Milestones["made_up_milestone"] = true

	err := s.Validate(DefaultCaps())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown milestone")
}
