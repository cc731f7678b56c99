// Package services contains the persistence layer: thin, validated
// operations over the ent client that the API handlers and the turn
// executor compose. Services return sentinel errors from errors.go so
// callers can map them without string matching.
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/faultmaven/faultmaven/ent"
	"github.com/faultmaven/faultmaven/ent/faultcase"
	"github.com/faultmaven/faultmaven/pkg/models"
	"github.com/google/uuid"
)

// CaseService manages case lifecycle
type CaseService struct {
	client *ent.Client
}

// NewCaseService creates a new CaseService
func NewCaseService(client *ent.Client) *CaseService {
	return &CaseService{client: client}
}

// CreateCase opens a new case in CONSULTING
func (s *CaseService) CreateCase(httpCtx context.Context, req models.CreateCaseRequest) (*ent.FaultCase, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, NewValidationError("title", "required")
	}
	if strings.TrimSpace(req.Description) == "" {
		return nil, NewValidationError("description", "required")
	}

	// Use background context with timeout for critical write
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	builder := s.client.FaultCase.Create().
		SetID(uuid.New().String()).
		SetTitle(req.Title).
		SetDescription(req.Description).
		SetStatus(faultcase.StatusConsulting)
	if req.Owner != "" {
		builder.SetOwner(req.Owner)
	}

	c, err := builder.Save(ctx)
	if err != nil {
		if ent.IsConstraintError(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create case: %w", err)
	}

	return c, nil
}

// GetCase retrieves a case by ID
func (s *CaseService) GetCase(ctx context.Context, caseID string) (*ent.FaultCase, error) {
	c, err := s.client.FaultCase.Get(ctx, caseID)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get case: %w", err)
	}

	return c, nil
}

// ListCases lists cases with filtering and pagination
func (s *CaseService) ListCases(ctx context.Context, filters models.CaseFilters) (*models.CaseListResponse, error) {
	query := s.client.FaultCase.Query()

	if filters.Status != "" {
		query = query.Where(faultcase.StatusEQ(faultcase.Status(filters.Status)))
	}
	if filters.Owner != "" {
		query = query.Where(faultcase.OwnerEQ(filters.Owner))
	}
	if filters.Escalated != nil {
		query = query.Where(faultcase.EscalationRequired(*filters.Escalated))
	}
	if filters.CreatedAfter != nil {
		query = query.Where(faultcase.CreatedAtGTE(*filters.CreatedAfter))
	}
	if filters.CreatedBefore != nil {
		query = query.Where(faultcase.CreatedAtLT(*filters.CreatedBefore))
	}

	totalCount, err := query.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count cases: %w", err)
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 20 // Default
	}
	offset := filters.Offset
	if offset < 0 {
		offset = 0
	}

	cases, err := query.
		Limit(limit).
		Offset(offset).
		Order(ent.Desc(faultcase.FieldCreatedAt)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}

	return &models.CaseListResponse{
		Cases:      cases,
		TotalCount: totalCount,
		Limit:      limit,
		Offset:     offset,
	}, nil
}

// ApplyConsultingTransition persists the CONSULTING -> INVESTIGATING flip
// after the engine has confirmed it: temporal state, urgency and strategy
// become immutable case facts. The update is conditional on the case still
// being in CONSULTING so a repeated confirm cannot re-apply it.
func (s *CaseService) ApplyConsultingTransition(ctx context.Context, caseID, temporalState, urgencyLevel, strategy string) (*ent.FaultCase, error) {
	writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := s.client.FaultCase.Update().
		Where(
			faultcase.IDEQ(caseID),
			faultcase.StatusEQ(faultcase.StatusConsulting),
		).
		SetStatus(faultcase.StatusInvestigating).
		SetTemporalState(temporalState).
		SetUrgencyLevel(urgencyLevel).
		SetStrategy(strategy).
		Save(writeCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to apply consulting transition: %w", err)
	}
	if n == 0 {
		// Either the case does not exist or it already left CONSULTING.
		if _, getErr := s.GetCase(ctx, caseID); getErr != nil {
			return nil, getErr
		}
		return nil, ErrWrongStatus
	}

	return s.GetCase(ctx, caseID)
}

// CloseCase moves a DOCUMENTING or RESOLVED case to CLOSED and stamps
// closed_at, the retention purge anchor.
func (s *CaseService) CloseCase(ctx context.Context, caseID string) (*ent.FaultCase, error) {
	writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := s.client.FaultCase.Update().
		Where(
			faultcase.IDEQ(caseID),
			faultcase.StatusIn(faultcase.StatusDocumenting, faultcase.StatusResolved),
		).
		SetStatus(faultcase.StatusClosed).
		SetClosedAt(time.Now()).
		Save(writeCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to close case: %w", err)
	}
	if n == 0 {
		c, getErr := s.GetCase(ctx, caseID)
		if getErr != nil {
			return nil, getErr
		}
		if c.Status == faultcase.StatusClosed {
			return nil, ErrCaseClosed
		}
		return nil, ErrNotCloseable
	}

	return s.GetCase(ctx, caseID)
}

// SetSlackFingerprint records the dedup key after an escalation was posted
func (s *CaseService) SetSlackFingerprint(ctx context.Context, caseID, fingerprint string) error {
	writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.client.FaultCase.UpdateOneID(caseID).
		SetSlackFingerprint(fingerprint).
		Exec(writeCtx)
	if err != nil {
		if ent.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to set slack fingerprint: %w", err)
	}

	return nil
}

// PurgeClosedCases hard-deletes cases closed before the cutoff. Messages,
// turns, leases and events go with them via FK cascade.
func (s *CaseService) PurgeClosedCases(ctx context.Context, cutoff time.Time) (int, error) {
	writeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	count, err := s.client.FaultCase.Delete().
		Where(
			faultcase.StatusEQ(faultcase.StatusClosed),
			faultcase.ClosedAtLT(cutoff),
		).
		Exec(writeCtx)
	if err != nil {
		return 0, fmt.Errorf("failed to purge closed cases: %w", err)
	}

	return count, nil
}
