package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/faultmaven/faultmaven/ent/caselease"
)

// orphanState tracks sweep metrics for the health endpoint (thread-safe).
type orphanState struct {
	mu             sync.Mutex
	lastScan       time.Time
	leasesSwept    int
	messagesFailed int
}

// Start launches the periodic orphan sweep. Turn submission needs no
// explicit start; Submit is usable as soon as the executor is
// constructed.
func (e *TurnExecutor) Start(ctx context.Context) {
	go e.runOrphanSweeps(ctx)
}

// CleanupStartupOrphans reclaims work abandoned by this pod's previous
// life. Called once at startup, before the executor accepts turns.
func (e *TurnExecutor) CleanupStartupOrphans(ctx context.Context) error {
	// Leases held by a previous process of this pod are fenced garbage:
	// the holder is dead, nothing will renew or release them. Dropping
	// them immediately spares their cases a full TTL of lockout.
	n, err := e.db.CaseLease.Delete().
		Where(caselease.HolderHasPrefix(e.execConfig.PodID + "/")).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to release stale leases: %w", err)
	}
	if n > 0 {
		slog.Warn("Released leases from previous run",
			"pod_id", e.execConfig.PodID,
			"count", n)
	}

	// Expired leases from other pods and stuck messages go through the
	// same sweep the ticker runs.
	return e.sweepOrphans(ctx)
}

// runOrphanSweeps periodically reclaims expired leases and stuck
// messages. All pods run this independently — both operations are
// idempotent.
func (e *TurnExecutor) runOrphanSweeps(ctx context.Context) {
	ticker := time.NewTicker(e.execConfig.OrphanSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			if err := e.sweepOrphans(ctx); err != nil {
				slog.Error("Orphan sweep failed", "error", err)
			}
		}
	}
}

// sweepOrphans releases expired leases and fails messages stuck in
// processing. A message only stays processing while its turn is alive
// and renewing the case lease, so the stuck threshold is the turn
// timeout plus one lease lifetime.
func (e *TurnExecutor) sweepOrphans(ctx context.Context) error {
	swept, err := e.leaseService.SweepExpired(ctx)
	if err != nil {
		return fmt.Errorf("failed to sweep expired leases: %w", err)
	}
	if swept > 0 {
		slog.Warn("Released expired case leases", "count", swept)
	}

	stuckThreshold := e.execConfig.TurnTimeout + e.execConfig.LeaseTTL
	failed, err := e.messageService.FailStuckProcessing(ctx, stuckThreshold)
	if err != nil {
		return fmt.Errorf("failed to fail stuck messages: %w", err)
	}
	if failed > 0 {
		slog.Warn("Failed stuck processing messages", "count", failed)
	}

	e.orphans.mu.Lock()
	e.orphans.lastScan = time.Now()
	e.orphans.leasesSwept += swept
	e.orphans.messagesFailed += failed
	e.orphans.mu.Unlock()

	return nil
}
