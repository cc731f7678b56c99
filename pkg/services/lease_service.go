package services

import (
	"context"
	"fmt"
	"time"

	"github.com/faultmaven/faultmaven/ent"
	"github.com/faultmaven/faultmaven/ent/caselease"
	"github.com/google/uuid"
)

// LeaseService manages the per-case row leases that serialize turn
// execution across replicas. A worker must hold the lease while running a
// turn; CommitTurn re-checks it inside the commit transaction, so a lease
// lost mid-turn can never produce a committed write.
type LeaseService struct {
	client *ent.Client
	ttl    time.Duration
}

// NewLeaseService creates a new LeaseService. ttl is the lease lifetime
// granted by Acquire and restored by each Heartbeat.
func NewLeaseService(client *ent.Client, ttl time.Duration) *LeaseService {
	return &LeaseService{client: client, ttl: ttl}
}

// TTL returns the configured lease lifetime
func (s *LeaseService) TTL() time.Duration {
	return s.ttl
}

// Acquire takes the case lease for holder. An existing lease is taken over
// only when it has expired. Returns ErrLeaseHeld when a live lease belongs
// to another worker and ErrNotFound when the case does not exist.
func (s *LeaseService) Acquire(ctx context.Context, caseID, holder string) (*ent.CaseLease, error) {
	now := time.Now()

	lease, err := s.client.CaseLease.Create().
		SetID(uuid.New().String()).
		SetCaseID(caseID).
		SetHolder(holder).
		SetAcquiredAt(now).
		SetExpiresAt(now.Add(s.ttl)).
		Save(ctx)
	if err == nil {
		return lease, nil
	}
	if !ent.IsConstraintError(err) {
		return nil, fmt.Errorf("failed to create lease: %w", err)
	}

	// A lease row exists (or the case does not). Take over an expired row;
	// the conditional update is atomic, so racing takeovers cannot both win.
	n, err := s.client.CaseLease.Update().
		Where(
			caselease.CaseIDEQ(caseID),
			caselease.ExpiresAtLTE(now),
		).
		SetHolder(holder).
		SetAcquiredAt(now).
		SetExpiresAt(now.Add(s.ttl)).
		ClearLastHeartbeatAt().
		Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to take over lease: %w", err)
	}
	if n == 0 {
		exists, err := s.client.CaseLease.Query().
			Where(caselease.CaseIDEQ(caseID)).
			Exist(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to check lease: %w", err)
		}
		if !exists {
			// The create failed on the case FK, not the unique case_id.
			return nil, ErrNotFound
		}
		return nil, ErrLeaseHeld
	}

	lease, err = s.client.CaseLease.Query().
		Where(
			caselease.CaseIDEQ(caseID),
			caselease.HolderEQ(holder),
		).
		Only(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load lease after takeover: %w", err)
	}

	return lease, nil
}

// Heartbeat extends a live lease held by holder. Returns ErrLeaseLost when
// the lease expired or was taken over; the caller must abort its turn.
func (s *LeaseService) Heartbeat(ctx context.Context, leaseID, holder string) error {
	now := time.Now()

	n, err := s.client.CaseLease.Update().
		Where(
			caselease.IDEQ(leaseID),
			caselease.HolderEQ(holder),
			caselease.ExpiresAtGT(now),
		).
		SetLastHeartbeatAt(now).
		SetExpiresAt(now.Add(s.ttl)).
		Save(ctx)
	if err != nil {
		return fmt.Errorf("failed to heartbeat lease: %w", err)
	}
	if n == 0 {
		return ErrLeaseLost
	}

	return nil
}

// Release drops the lease. Releasing a lease already swept or taken over
// is not an error.
func (s *LeaseService) Release(_ context.Context, leaseID, holder string) error {
	// Use background context with timeout so release survives caller
	// cancellation during shutdown.
	writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.client.CaseLease.Delete().
		Where(
			caselease.IDEQ(leaseID),
			caselease.HolderEQ(holder),
		).
		Exec(writeCtx)
	if err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}

	return nil
}

// SweepExpired deletes expired lease rows so crashed workers do not block
// their cases for longer than one TTL.
func (s *LeaseService) SweepExpired(ctx context.Context) (int, error) {
	writeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	count, err := s.client.CaseLease.Delete().
		Where(caselease.ExpiresAtLT(time.Now())).
		Exec(writeCtx)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired leases: %w", err)
	}

	return count, nil
}
