package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// notifyByteLimit leaves headroom under PostgreSQL's 8000-byte NOTIFY
// payload ceiling. Anything larger ships as a truncation envelope; the
// full row is still in the events table for catch-up.
const notifyByteLimit = 7900

// EventPublisher writes events for WebSocket delivery. An event is
// inserted into the events table and pg_notify'd in the same transaction,
// so the live stream and the catch-up query can never disagree about what
// happened.
//
// The public methods each take one typed payload from payloads.go. Case
// lifecycle events additionally mirror a transient copy onto the global
// "cases" channel for list views; that copy is never persisted, since
// catch-up on the global channel replays the case-level rows directly.
type EventPublisher struct {
	db *sql.DB
}

// NewEventPublisher wraps the service's *sql.DB (database.Client.DB()).
func NewEventPublisher(db *sql.DB) *EventPublisher {
	return &EventPublisher{db: db}
}

// PublishTurnStarted emits turn.started on the case channel.
func (p *EventPublisher) PublishTurnStarted(ctx context.Context, caseID string, payload TurnStartedPayload) error {
	return p.publishToCase(ctx, caseID, payload.Type, payload)
}

// PublishTurnCompleted emits turn.completed on the case channel.
func (p *EventPublisher) PublishTurnCompleted(ctx context.Context, caseID string, payload TurnCompletedPayload) error {
	return p.publishToCase(ctx, caseID, payload.Type, payload)
}

// PublishCaseStatus emits case.status_changed on the case channel and
// mirrors it to the global channel.
func (p *EventPublisher) PublishCaseStatus(ctx context.Context, caseID string, payload CaseStatusPayload) error {
	return p.publishWithMirror(ctx, caseID, payload.Type, payload)
}

// PublishEscalationRequired emits case.escalation_required on the case
// channel and mirrors it to the global channel.
func (p *EventPublisher) PublishEscalationRequired(ctx context.Context, caseID string, payload EscalationRequiredPayload) error {
	return p.publishWithMirror(ctx, caseID, payload.Type, payload)
}

// publishToCase persists the payload and notifies the per-case channel.
func (p *EventPublisher) publishToCase(ctx context.Context, caseID, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return p.persistAndNotify(ctx, caseID, eventType, CaseChannel(caseID), body)
}

// publishWithMirror does publishToCase plus a transient copy on the
// global channel. Both legs are attempted even when the first fails; the
// first error wins.
func (p *EventPublisher) publishWithMirror(ctx context.Context, caseID, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	var firstErr error
	if err := p.persistAndNotify(ctx, caseID, eventType, CaseChannel(caseID), body); err != nil {
		slog.Warn("Failed to publish to case channel",
			"case_id", caseID, "event_type", eventType, "error", err)
		firstErr = err
	}
	if err := p.notifyOnly(ctx, GlobalCasesChannel, body); err != nil {
		slog.Warn("Failed to publish to global channel",
			"case_id", caseID, "event_type", eventType, "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// persistAndNotify inserts the event row and fires pg_notify inside one
// transaction. pg_notify is transactional, so the NOTIFY is held until
// COMMIT and never observed for a row that rolled back. The row id is
// injected into the NOTIFY copy as db_event_id, the client's catch-up
// cursor.
func (p *EventPublisher) persistAndNotify(ctx context.Context, caseID, eventType, channel string, body []byte) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var eventID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO events (case_id, event_type, payload, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		caseID, eventType, body, time.Now(),
	).Scan(&eventID)
	if err != nil {
		return fmt.Errorf("failed to persist event: %w", err)
	}

	wire, err := withEventID(body, eventID)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "SELECT pg_notify($1, $2)", channel, wire); err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit event transaction: %w", err)
	}
	return nil
}

// notifyOnly fires pg_notify without persisting anything.
func (p *EventPublisher) notifyOnly(ctx context.Context, channel string, body []byte) error {
	wire, err := truncateIfNeeded(string(body))
	if err != nil {
		return err
	}
	if _, err := p.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", channel, wire); err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}
	return nil
}

// withEventID adds db_event_id to the payload and applies the NOTIFY size
// limit to the result.
func withEventID(body []byte, eventID int64) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return "", fmt.Errorf("failed to unmarshal payload for db_event_id injection: %w", err)
	}
	m["db_event_id"] = eventID

	enriched, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to marshal enriched NOTIFY payload: %w", err)
	}
	return truncateIfNeeded(string(enriched))
}

// truncateIfNeeded passes payloads under the NOTIFY limit through
// unchanged and reduces oversized ones to a routing-only envelope the
// client can resolve against the events table.
func truncateIfNeeded(payload string) (string, error) {
	if len(payload) <= notifyByteLimit {
		return payload, nil
	}

	var routing struct {
		Type      string `json:"type"`
		CaseID    string `json:"case_id"`
		TurnID    string `json:"turn_id"`
		DBEventID *int64 `json:"db_event_id,omitempty"`
	}
	if err := json.Unmarshal([]byte(payload), &routing); err != nil {
		return "", fmt.Errorf("failed to extract routing fields for truncation: %w", err)
	}

	envelope := map[string]any{
		"type":      routing.Type,
		"case_id":   routing.CaseID,
		"truncated": true,
	}
	if routing.TurnID != "" {
		envelope["turn_id"] = routing.TurnID
	}
	if routing.DBEventID != nil {
		envelope["db_event_id"] = *routing.DBEventID
	}

	out, err := json.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("failed to marshal truncated payload: %w", err)
	}
	return string(out), nil
}
