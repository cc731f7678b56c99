package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Event holds the schema definition for the Event entity: the persisted
// notification outbox fanned out to WebSocket subscribers via pg NOTIFY.
// The integer primary key is the catch-up cursor on reconnect.
type Event struct {
	ent.Schema
}

// Fields of the Event.
func (Event) Fields() []ent.Field {
	return []ent.Field{
		field.String("case_id").
			Immutable(),
		field.String("event_type").
			Immutable().
			Comment("turn.started, turn.completed, case.status_changed, case.escalation_required"),
		field.JSON("payload", map[string]interface{}{}).
			Comment("Typed payload marshaled by pkg/events"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the Event.
func (Event) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("case", FaultCase.Type).
			Ref("events").
			Field("case_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the Event.
func (Event) Indexes() []ent.Index {
	return []ent.Index{
		// Per-case catch-up scans
		index.Fields("case_id"),
		// TTL cleanup
		index.Fields("created_at"),
	}
}
