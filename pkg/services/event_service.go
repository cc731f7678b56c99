package services

import (
	"context"
	"fmt"
	"time"

	"github.com/faultmaven/faultmaven/ent"
	"github.com/faultmaven/faultmaven/ent/event"
	"github.com/faultmaven/faultmaven/pkg/models"
)

// EventService queries the persisted event stream. Publishing goes
// through events.EventPublisher (which pairs the insert with pg_notify);
// this service serves WebSocket catch-up and retention cleanup.
type EventService struct {
	client *ent.Client
}

// NewEventService creates a new EventService
func NewEventService(client *ent.Client) *EventService {
	return &EventService{client: client}
}

// CreateEvent persists an event without notifying. Used by tests that
// exercise catch-up without a live NOTIFY pipeline.
func (s *EventService) CreateEvent(httpCtx context.Context, req models.CreateEventRequest) (*ent.Event, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	evt, err := s.client.Event.Create().
		SetCaseID(req.CaseID).
		SetEventType(req.EventType).
		SetPayload(req.Payload).
		SetCreatedAt(time.Now()).
		Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	return evt, nil
}

// GetEventsSince retrieves events after sinceID, oldest first. caseID
// narrows to one case; eventTypes narrows by type; both empty means all
// events. limit <= 0 means no limit.
func (s *EventService) GetEventsSince(ctx context.Context, caseID string, eventTypes []string, sinceID, limit int) ([]*ent.Event, error) {
	query := s.client.Event.Query().
		Where(event.IDGT(sinceID))
	if caseID != "" {
		query = query.Where(event.CaseIDEQ(caseID))
	}
	if len(eventTypes) > 0 {
		query = query.Where(event.EventTypeIn(eventTypes...))
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	events, err := query.Order(ent.Asc(event.FieldID)).All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}

	return events, nil
}

// CleanupExpiredEvents removes events older than the TTL. Events exist to
// bridge WebSocket reconnects, not as history; the turn audit trail is in
// turn_interactions.
func (s *EventService) CleanupExpiredEvents(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := time.Now().Add(-ttl)

	writeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	count, err := s.client.Event.Delete().
		Where(event.CreatedAtLT(cutoff)).
		Exec(writeCtx)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired events: %w", err)
	}

	return count, nil
}
