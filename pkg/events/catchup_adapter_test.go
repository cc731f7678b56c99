package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faultmaven/faultmaven/ent"
)

// mockEventQuerier records the arguments the adapter translates the
// channel into.
type mockEventQuerier struct {
	gotCaseID     string
	gotEventTypes []string
	gotSinceID    int
	gotLimit      int

	events []*ent.Event
	err    error
}

func (m *mockEventQuerier) GetEventsSince(_ context.Context, caseID string, eventTypes []string, sinceID, limit int) ([]*ent.Event, error) {
	m.gotCaseID = caseID
	m.gotEventTypes = eventTypes
	m.gotSinceID = sinceID
	m.gotLimit = limit
	return m.events, m.err
}

func TestEventServiceAdapter_CaseChannel(t *testing.T) {
	mock := &mockEventQuerier{
		events: []*ent.Event{
			{ID: 7, Payload: map[string]interface{}{"type": "turn.started", "case_id": "abc-123"}},
			{ID: 9, Payload: map[string]interface{}{"type": "turn.completed", "case_id": "abc-123"}},
		},
	}
	adapter := NewEventServiceAdapter(mock)

	got, err := adapter.GetCatchupEvents(context.Background(), "case:abc-123", 5, 50)
	require.NoError(t, err)

	// Per-case channels query by case id with no type filter.
	assert.Equal(t, "abc-123", mock.gotCaseID)
	assert.Nil(t, mock.gotEventTypes)
	assert.Equal(t, 5, mock.gotSinceID)
	assert.Equal(t, 50, mock.gotLimit)

	require.Len(t, got, 2)
	assert.Equal(t, 7, got[0].ID)
	assert.Equal(t, "turn.started", got[0].Payload["type"])
	assert.Equal(t, 9, got[1].ID)
}

func TestEventServiceAdapter_GlobalChannel(t *testing.T) {
	mock := &mockEventQuerier{}
	adapter := NewEventServiceAdapter(mock)

	_, err := adapter.GetCatchupEvents(context.Background(), GlobalCasesChannel, 0, 100)
	require.NoError(t, err)

	// The global channel spans all cases but only carries case-level
	// lifecycle types.
	assert.Empty(t, mock.gotCaseID)
	assert.Equal(t, []string{EventTypeCaseStatus, EventTypeEscalationRequired}, mock.gotEventTypes)
}

func TestEventServiceAdapter_UnknownChannel(t *testing.T) {
	adapter := NewEventServiceAdapter(&mockEventQuerier{})

	_, err := adapter.GetCatchupEvents(context.Background(), "sessions:abc", 0, 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown channel")
}

func TestEventServiceAdapter_QuerierError(t *testing.T) {
	mock := &mockEventQuerier{err: errors.New("connection refused")}
	adapter := NewEventServiceAdapter(mock)

	_, err := adapter.GetCatchupEvents(context.Background(), "case:abc-123", 0, 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestEventServiceAdapter_EmptyResult(t *testing.T) {
	adapter := NewEventServiceAdapter(&mockEventQuerier{})

	got, err := adapter.GetCatchupEvents(context.Background(), "case:abc-123", 0, 100)
	require.NoError(t, err)
	assert.Empty(t, got)
}
