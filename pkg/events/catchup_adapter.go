package events

import (
	"context"
	"fmt"

	"github.com/faultmaven/faultmaven/ent"
)

// globalEventTypes are the event types replayed on the global cases
// channel. The events table has no channel column — a row's channel is
// derived from its case and type — so global catch-up selects by type.
var globalEventTypes = []string{EventTypeCaseStatus, EventTypeEscalationRequired}

// eventQuerier is the slice of services.EventService the adapter needs.
type eventQuerier interface {
	GetEventsSince(ctx context.Context, caseID string, eventTypes []string, sinceID, limit int) ([]*ent.Event, error)
}

// EventServiceAdapter implements CatchupQuerier on top of the event
// service, translating channel names into event queries.
type EventServiceAdapter struct {
	events eventQuerier
}

// NewEventServiceAdapter creates a CatchupQuerier from an EventService.
func NewEventServiceAdapter(events eventQuerier) *EventServiceAdapter {
	return &EventServiceAdapter{events: events}
}

// GetCatchupEvents queries events since sinceID up to limit for the catchup mechanism.
func (a *EventServiceAdapter) GetCatchupEvents(ctx context.Context, channel string, sinceID, limit int) ([]CatchupEvent, error) {
	var (
		caseID     string
		eventTypes []string
	)
	switch {
	case channel == GlobalCasesChannel:
		eventTypes = globalEventTypes
	default:
		id, ok := CaseIDFromChannel(channel)
		if !ok {
			return nil, fmt.Errorf("unknown channel %q", channel)
		}
		caseID = id
	}

	events, err := a.events.GetEventsSince(ctx, caseID, eventTypes, sinceID, limit)
	if err != nil {
		return nil, err
	}

	result := make([]CatchupEvent, len(events))
	for i, evt := range events {
		result[i] = CatchupEvent{
			ID:      evt.ID,
			Payload: evt.Payload,
		}
	}
	return result, nil
}
