package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCaseChannel(t *testing.T) {
	assert.Equal(t, "case:abc-123", CaseChannel("abc-123"))
	assert.Equal(t, "case:f7e9d8c0-1234-5678-9abc-def012345678", CaseChannel("f7e9d8c0-1234-5678-9abc-def012345678"))
}

func TestCaseIDFromChannel(t *testing.T) {
	tests := []struct {
		name    string
		channel string
		wantID  string
		wantOK  bool
	}{
		{name: "per-case channel", channel: "case:abc-123", wantID: "abc-123", wantOK: true},
		{name: "global channel is not a case channel", channel: "cases", wantOK: false},
		{name: "empty case id", channel: "case:", wantOK: false},
		{name: "unknown prefix", channel: "session:abc-123", wantOK: false},
		{name: "empty string", channel: "", wantOK: false},
		{name: "prefix is case sensitive", channel: "CASE:abc-123", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := CaseIDFromChannel(tt.channel)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestValidChannel(t *testing.T) {
	tests := []struct {
		channel string
		want    bool
	}{
		{channel: "cases", want: true},
		{channel: "case:abc-123", want: true},
		{channel: "case:", want: false},
		{channel: "", want: false},
		{channel: "sessions", want: false},
		{channel: "case", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.channel, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidChannel(tt.channel))
		})
	}
}

func TestEventTypeConstants(t *testing.T) {
	// These values are stored in the events table and matched by the
	// catch-up filter for the global channel; changing them breaks
	// reconnecting clients.
	assert.Equal(t, "turn.started", EventTypeTurnStarted)
	assert.Equal(t, "turn.completed", EventTypeTurnCompleted)
	assert.Equal(t, "case.status_changed", EventTypeCaseStatus)
	assert.Equal(t, "case.escalation_required", EventTypeEscalationRequired)
}
