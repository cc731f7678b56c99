package engine

import "errors"

// Sentinel errors for turn processing. Callers distinguish outcomes with
// errors.Is; wrapped detail carries the specifics.
var (
	// ErrLeaseLost means another worker holds (or took over) the case
	// lease. The turn must be abandoned without persisting anything.
	ErrLeaseLost = errors.New("case lease lost")

	// ErrLLMUnavailable means the LLM call failed outright. No state is
	// committed for the turn.
	ErrLLMUnavailable = errors.New("llm unavailable")

	// ErrLLMMalformed means the response could not be parsed even by the
	// keyword tier, or was empty.
	ErrLLMMalformed = errors.New("llm response malformed")

	// ErrPhaseGuardFailed means the requested operation is not valid for
	// the case's current status.
	ErrPhaseGuardFailed = errors.New("operation not allowed in current case status")

	// ErrInvariantViolation means a turn's mutations produced a state that
	// fails validation. The mutation is discarded.
	ErrInvariantViolation = errors.New("state invariant violated")

	// ErrStatePersistFailed means the state store rejected the write after
	// the turn's mutations validated.
	ErrStatePersistFailed = errors.New("state persist failed")
)

// ErrorKind maps a turn error to a stable token for audit records and
// metrics. Unrecognized errors map to "internal".
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrLeaseLost):
		return "lease_lost"
	case errors.Is(err, ErrLLMUnavailable):
		return "llm_unavailable"
	case errors.Is(err, ErrLLMMalformed):
		return "llm_malformed"
	case errors.Is(err, ErrPhaseGuardFailed):
		return "phase_guard_failed"
	case errors.Is(err, ErrInvariantViolation):
		return "invariant_violation"
	case errors.Is(err, ErrStatePersistFailed):
		return "state_persist_failed"
	default:
		return "internal"
	}
}
