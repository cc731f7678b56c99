package services

import (
	"context"
	"fmt"
	"time"

	"github.com/faultmaven/faultmaven/ent"
	"github.com/faultmaven/faultmaven/ent/caselease"
	"github.com/faultmaven/faultmaven/ent/casemessage"
	"github.com/faultmaven/faultmaven/ent/faultcase"
	"github.com/faultmaven/faultmaven/ent/turninteraction"
	"github.com/faultmaven/faultmaven/pkg/models"
	"github.com/google/uuid"
)

// TurnService commits engine turns and serves the audit trail
type TurnService struct {
	client *ent.Client
}

// NewTurnService creates a new TurnService
func NewTurnService(client *ent.Client) *TurnService {
	return &TurnService{client: client}
}

// CommitTurnParams carries everything one committed turn writes
type CommitTurnParams struct {
	// Fencing: the commit only succeeds while this lease is live.
	LeaseID string
	Holder  string

	CaseID        string
	UserMessageID string

	// Serialized investigation state after the turn.
	StateJSON string

	// Case row fields after the turn.
	Status             faultcase.Status
	EscalationRequired bool

	// Audit record mirrored from the engine's turn outcome.
	Turn models.RecordTurnRequest
}

// CommitTurn persists one turn atomically: the investigation state, the
// case status, the assistant reply, the triggering user message's
// completion and the audit record all commit together or not at all. The
// transaction is fenced on the lease; ErrLeaseLost means another worker
// owns the case now and nothing was written. ErrCaseClosed means the case
// was closed while the turn ran.
func (s *TurnService) CommitTurn(_ context.Context, p CommitTurnParams) (*ent.TurnInteraction, *ent.CaseMessage, error) {
	if p.LeaseID == "" || p.Holder == "" {
		return nil, nil, NewValidationError("lease", "required")
	}
	if p.CaseID == "" {
		return nil, nil, NewValidationError("case_id", "required")
	}
	if p.Turn.TurnID == "" {
		return nil, nil, NewValidationError("turn_id", "required")
	}
	if p.StateJSON == "" {
		return nil, nil, NewValidationError("state", "required")
	}

	// Use background context with timeout: a committed turn must not be
	// torn apart by the caller's deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	tx, err := s.client.Tx(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()

	// Fence: the lease must still be ours and unexpired.
	n, err := tx.CaseLease.Update().
		Where(
			caselease.IDEQ(p.LeaseID),
			caselease.HolderEQ(p.Holder),
			caselease.ExpiresAtGT(now),
		).
		SetLastHeartbeatAt(now).
		Save(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to check lease: %w", err)
	}
	if n == 0 {
		return nil, nil, ErrLeaseLost
	}

	// Case row: state blob, status, escalation flag. Conditional on the
	// case not having been closed under us.
	n, err = tx.FaultCase.Update().
		Where(
			faultcase.IDEQ(p.CaseID),
			faultcase.StatusNEQ(faultcase.StatusClosed),
		).
		SetInvestigationState(p.StateJSON).
		SetStatus(p.Status).
		SetEscalationRequired(p.EscalationRequired).
		Save(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update case: %w", err)
	}
	if n == 0 {
		return nil, nil, ErrCaseClosed
	}

	// The triggering user message is done.
	if p.UserMessageID != "" {
		err = tx.CaseMessage.UpdateOneID(p.UserMessageID).
			SetStatus(casemessage.StatusCompleted).
			SetTurnNumber(p.Turn.TurnNumber).
			Exec(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to complete user message: %w", err)
		}
	}

	// Assistant reply.
	reply, err := tx.CaseMessage.Create().
		SetID(uuid.New().String()).
		SetCaseID(p.CaseID).
		SetRole(casemessage.RoleAssistant).
		SetContent(p.Turn.Reply).
		SetStatus(casemessage.StatusCompleted).
		SetTurnNumber(p.Turn.TurnNumber).
		Save(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create assistant message: %w", err)
	}

	// Audit record.
	builder := tx.TurnInteraction.Create().
		SetID(p.Turn.TurnID).
		SetCaseID(p.CaseID).
		SetTurnNumber(p.Turn.TurnNumber).
		SetOutcome(turninteraction.Outcome(p.Turn.Outcome)).
		SetPhase(p.Turn.Phase).
		SetCaseStatus(string(p.Status)).
		SetEscalationRequired(p.EscalationRequired).
		SetReply(p.Turn.Reply)
	if p.UserMessageID != "" {
		builder.SetMessageID(p.UserMessageID)
	}
	if p.Turn.ErrorKind != "" {
		builder.SetErrorKind(p.Turn.ErrorKind)
	}
	if p.Turn.Intensity != "" {
		builder.SetIntensity(p.Turn.Intensity)
	}
	if p.Turn.ParseTier != "" {
		builder.SetParseTier(p.Turn.ParseTier)
	}
	if len(p.Turn.MilestonesCompleted) > 0 {
		builder.SetMilestonesCompleted(p.Turn.MilestonesCompleted)
	}
	if len(p.Turn.HypothesesCreated) > 0 {
		builder.SetHypothesesCreated(p.Turn.HypothesesCreated)
	}
	if len(p.Turn.EvidenceAdded) > 0 {
		builder.SetEvidenceAdded(p.Turn.EvidenceAdded)
	}
	if p.Turn.InputTokens > 0 {
		builder.SetInputTokens(p.Turn.InputTokens)
	}
	if p.Turn.OutputTokens > 0 {
		builder.SetOutputTokens(p.Turn.OutputTokens)
	}
	if p.Turn.TotalTokens > 0 {
		builder.SetTotalTokens(p.Turn.TotalTokens)
	}
	if p.Turn.DurationMs > 0 {
		builder.SetDurationMs(p.Turn.DurationMs)
	}

	turn, err := builder.Save(ctx)
	if err != nil {
		if ent.IsConstraintError(err) {
			// (case_id, turn_number) is unique: this turn already committed.
			return nil, nil, ErrAlreadyExists
		}
		return nil, nil, fmt.Errorf("failed to create turn record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit turn: %w", err)
	}

	return turn, reply, nil
}

// ListTurns returns a case's turn audit records in turn order
func (s *TurnService) ListTurns(ctx context.Context, caseID string) (*models.TurnListResponse, error) {
	turns, err := s.client.TurnInteraction.Query().
		Where(turninteraction.CaseIDEQ(caseID)).
		Order(ent.Asc(turninteraction.FieldTurnNumber)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}

	return &models.TurnListResponse{Turns: turns}, nil
}
