// Package queue runs investigation turns asynchronously. A TurnExecutor
// claims one queued user message per case, runs the engine on its own
// goroutine under a database lease, and commits the result through the
// service layer. Orphan sweeps reclaim leases and messages left behind
// by crashed pods.
package queue

import (
	"errors"
	"time"
)

// Sentinel errors for turn submission.
var (
	// ErrShuttingDown indicates the executor no longer accepts turns.
	ErrShuttingDown = errors.New("executor is shutting down")

	// ErrTurnActive indicates the case already has an in-flight turn on
	// this pod.
	ErrTurnActive = errors.New("case already has an active turn")

	// ErrQueueFull indicates the global concurrent turn limit has been
	// reached.
	ErrQueueFull = errors.New("turn queue is full")
)

// ExecutorHealth is the executor's contribution to the health endpoint.
// Every pod reports its own view; orphan metrics are per-pod counters,
// not cluster totals.
type ExecutorHealth struct {
	IsHealthy      bool      `json:"is_healthy"`
	DBReachable    bool      `json:"db_reachable"`
	DBError        string    `json:"db_error,omitempty"`
	PodID          string    `json:"pod_id"`
	ActiveTurns    int       `json:"active_turns"`
	MaxConcurrent  int       `json:"max_concurrent"`
	LastOrphanScan time.Time `json:"last_orphan_scan"`
	LeasesSwept    int       `json:"leases_swept"`
	MessagesFailed int       `json:"messages_failed"`
}
