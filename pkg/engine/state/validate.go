package state

import "fmt"

// Caps bound the structural invariants that depend on configuration.
type Caps struct {
	HotSnapshots  int
	WarmSnapshots int
	ColdSnapshots int
	LoopbackMax   int
}

// DefaultCaps returns the stock limits: hot ≤ 3, warm ≤ 5, cold ≤ 10
// snapshots and at most 3 loop-backs per case.
func DefaultCaps() Caps {
	return Caps{HotSnapshots: 3, WarmSnapshots: 5, ColdSnapshots: 10, LoopbackMax: 3}
}

// Validate checks every structural invariant the aggregate must satisfy
// after a turn commits. A non-nil return means the attempted mutation is a
// defect and must be discarded, not persisted.
func (s *InvestigationState) Validate(caps Caps) error {
	for i, rec := range s.TurnHistory {
		if want := i + 1; rec.TurnNumber != want {
			return fmt.Errorf("turn history not contiguous: index %d has turn_number %d, want %d", i, rec.TurnNumber, want)
		}
	}

	evidenceIDs := make(map[string]struct{}, len(s.Evidence))
	for _, e := range s.Evidence {
		if _, dup := evidenceIDs[e.ID]; dup {
			return fmt.Errorf("duplicate evidence id %q", e.ID)
		}
		evidenceIDs[e.ID] = struct{}{}
	}

	validated := 0
	hypothesisIDs := make(map[string]struct{}, len(s.Hypotheses))
	for _, h := range s.Hypotheses {
		if _, dup := hypothesisIDs[h.ID]; dup {
			return fmt.Errorf("duplicate hypothesis id %q", h.ID)
		}
		hypothesisIDs[h.ID] = struct{}{}

		if h.Status == HypothesisValidated {
			validated++
		}
		if h.Confidence < 0 || h.Confidence > 1 {
			return fmt.Errorf("hypothesis %s confidence %.3f outside [0,1]", h.ID, h.Confidence)
		}
		for _, id := range h.SupportingEvidenceIDs {
			if _, ok := evidenceIDs[id]; !ok {
				return fmt.Errorf("hypothesis %s references missing supporting evidence %q", h.ID, id)
			}
		}
		for _, id := range h.RefutingEvidenceIDs {
			if _, ok := evidenceIDs[id]; !ok {
				return fmt.Errorf("hypothesis %s references missing refuting evidence %q", h.ID, id)
			}
		}
		for i := 1; i < len(h.ConfidenceTrajectory); i++ {
			if h.ConfidenceTrajectory[i].Turn <= h.ConfidenceTrajectory[i-1].Turn {
				return fmt.Errorf("hypothesis %s confidence trajectory not monotonic at index %d", h.ID, i)
			}
		}
		if n := len(h.ConfidenceTrajectory); n > 0 && h.ConfidenceTrajectory[n-1].Confidence != h.Confidence {
			return fmt.Errorf("hypothesis %s trajectory tail %.3f disagrees with confidence %.3f",
				h.ID, h.ConfidenceTrajectory[n-1].Confidence, h.Confidence)
		}
	}
	if validated > 1 {
		return fmt.Errorf("%d hypotheses VALIDATED at once, at most one allowed", validated)
	}

	if n := len(s.Memory.Hot); n > caps.HotSnapshots {
		return fmt.Errorf("hot memory holds %d snapshots, cap %d", n, caps.HotSnapshots)
	}
	if n := len(s.Memory.Warm); n > caps.WarmSnapshots {
		return fmt.Errorf("warm memory holds %d snapshots, cap %d", n, caps.WarmSnapshots)
	}
	if n := len(s.Memory.Cold); n > caps.ColdSnapshots {
		return fmt.Errorf("cold memory holds %d snapshots, cap %d", n, caps.ColdSnapshots)
	}

	if s.LoopbackCount > caps.LoopbackMax {
		return fmt.Errorf("loopback_count %d exceeds cap %d", s.LoopbackCount, caps.LoopbackMax)
	}

	if !s.CurrentPhase.IsValid() {
		return fmt.Errorf("invalid phase %q", s.CurrentPhase)
	}
	for m := range s.Milestones {
		if !m.IsValid() {
			return fmt.Errorf("unknown milestone key %q", m)
		}
	}
	return nil
}
