// Package ooda tracks Observe-Orient-Decide-Act iterations for an
// investigation and maps (phase, iteration) to an adaptive intensity that
// prompt composition and the anchoring check key off.
package ooda

import (
	"github.com/faultmaven/faultmaven/pkg/engine/state"
)

// Bands holds the intensity for the three iteration bands: 1–2, 3–5, 6+.
type Bands [3]state.Intensity

// Table maps each phase to its iteration bands.
type Table map[state.Phase]Bands

// DefaultTable returns the stock intensity matrix.
func DefaultTable() Table {
	return Table{
		state.PhaseIntake:      {state.IntensityNone, state.IntensityNone, state.IntensityNone},
		state.PhaseBlastRadius: {state.IntensityLight, state.IntensityLight, state.IntensityMedium},
		state.PhaseTimeline:    {state.IntensityLight, state.IntensityLight, state.IntensityMedium},
		state.PhaseHypothesis:  {state.IntensityLight, state.IntensityMedium, state.IntensityMedium},
		state.PhaseValidation:  {state.IntensityMedium, state.IntensityMedium, state.IntensityFull},
		state.PhaseSolution:    {state.IntensityMedium, state.IntensityMedium, state.IntensityMedium},
		state.PhaseDocument:    {state.IntensityLight, state.IntensityLight, state.IntensityLight},
	}
}

// Engine selects adaptive intensity from the configured table.
type Engine struct {
	table Table
}

// NewEngine builds an OODA engine. Phases present in override replace the
// default row; a nil or empty override keeps the stock matrix.
func NewEngine(override Table) *Engine {
	table := DefaultTable()
	for phase, bands := range override {
		table[phase] = bands
	}
	return &Engine{table: table}
}

// Bump ensures the state carries an OODA record, advances the global
// iteration by one, and bumps the per-phase count for the current phase.
// Returns the new iteration number.
func (e *Engine) Bump(s *state.InvestigationState) int {
	if s.OODA == nil {
		s.OODA = &state.OODAState{PhaseIterations: make(map[state.Phase]int)}
	}
	if s.OODA.PhaseIterations == nil {
		s.OODA.PhaseIterations = make(map[state.Phase]int)
	}
	s.OODA.CurrentIteration++
	s.OODA.PhaseIterations[s.CurrentPhase]++
	return s.OODA.CurrentIteration
}

// IntensityFor returns the intensity for the given phase at the given
// global iteration. Iterations below 1 are treated as the first band.
func (e *Engine) IntensityFor(phase state.Phase, iteration int) state.Intensity {
	bands, ok := e.table[phase]
	if !ok {
		return state.IntensityLight
	}
	switch {
	case iteration <= 2:
		return bands[0]
	case iteration <= 5:
		return bands[1]
	default:
		return bands[2]
	}
}
